// Package maintenance runs the background sweeper that cleans up records
// the request path deliberately leaves behind: conversations whose first
// turn failed before any message was written, and soft-deleted file rows
// whose blobs still sit on disk.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/actionlab/ignacio/internal/files"
	"github.com/actionlab/ignacio/internal/shared"
	"github.com/actionlab/ignacio/internal/store"
)

// Sweeper periodically prunes empty conversations and purges deleted files.
type Sweeper struct {
	repo    store.Repository
	storage *files.Storage

	interval             time.Duration
	emptyConversationTTL time.Duration
	deletedFileTTL       time.Duration
}

// NewSweeper creates the sweeper.
func NewSweeper(repo store.Repository, storage *files.Storage, interval, emptyConversationTTL, deletedFileTTL time.Duration) *Sweeper {
	return &Sweeper{
		repo:                 repo,
		storage:              storage,
		interval:             interval,
		emptyConversationTTL: emptyConversationTTL,
		deletedFileTTL:       deletedFileTTL,
	}
}

// Start runs the sweep loop until the context is canceled.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		slog.Info("maintenance sweeper started",
			"interval", s.interval,
			"empty_conversation_ttl", s.emptyConversationTTL,
			"deleted_file_ttl", s.deletedFileTTL)

		for {
			select {
			case <-ticker.C:
				s.Sweep(ctx)
			case <-ctx.Done():
				slog.Info("maintenance sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Sweep runs one pass. Exposed for tests.
func (s *Sweeper) Sweep(ctx context.Context) {
	s.pruneEmptyConversations(ctx)
	s.purgeDeletedFiles(ctx)
}

func (s *Sweeper) pruneEmptyConversations(ctx context.Context) {
	pruned, err := deleteEmptyWithRetry(ctx, s.repo, s.emptyConversationTTL)
	if err != nil {
		slog.Error("sweeper failed to prune empty conversations", "error", err)
		return
	}
	if pruned > 0 {
		slog.Info("sweeper pruned empty conversations", "count", pruned)
	}
}

func (s *Sweeper) purgeDeletedFiles(ctx context.Context) {
	paths, err := s.repo.PurgeDeletedFiles(ctx, s.deletedFileTTL)
	if err != nil {
		slog.Error("sweeper failed to purge deleted file rows", "error", err)
		return
	}
	for _, path := range paths {
		if err := s.storage.Remove(path); err != nil {
			slog.Warn("sweeper failed to remove blob", "path", path, "error", err)
		}
		if err := s.storage.RemoveMirror(path); err != nil {
			slog.Warn("sweeper failed to remove mirror blob", "path", path, "error", err)
		}
	}
	if len(paths) > 0 {
		slog.Info("sweeper purged deleted files", "count", len(paths))
	}
}

// deleteEmptyWithRetry backs off on SQLite concurrency errors; the sweep
// can collide with the WAL writer on a busy instance.
func deleteEmptyWithRetry(ctx context.Context, repo store.Repository, olderThan time.Duration) (int64, error) {
	const maxRetries = 3
	baseDelay := 100 * time.Millisecond

	var (
		pruned int64
		err    error
	)
	for i := 0; i < maxRetries; i++ {
		pruned, err = repo.DeleteEmptyConversations(ctx, olderThan)
		if err == nil {
			return pruned, nil
		}
		if !shared.IsSQLiteConflictError(err) || i == maxRetries-1 {
			return 0, err
		}
		delay := baseDelay * time.Duration(1<<i)
		slog.Debug("sweeper retrying after database contention", "attempt", i+1, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return 0, err
}
