package maintenance

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/actionlab/ignacio/internal/domain"
	"github.com/actionlab/ignacio/internal/files"
	"github.com/actionlab/ignacio/internal/store"
)

func sweepHarness(t *testing.T) (store.Repository, *files.Storage, string) {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "sweep.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	root := t.TempDir()
	storage, err := files.NewStorage(root, "test-secret")
	if err != nil {
		t.Fatalf("NewStorage failed: %v", err)
	}
	return repo, storage, root
}

func TestSweepPrunesOnlyStaleEmptyConversations(t *testing.T) {
	t.Parallel()
	repo, storage, _ := sweepHarness(t)
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)

	stale := &domain.Conversation{ID: "stale", UserID: "u1", Title: "t", CreatedAt: old, UpdatedAt: old}
	active := &domain.Conversation{ID: "active", UserID: "u1", Title: "t", CreatedAt: old, UpdatedAt: old}
	fresh := &domain.Conversation{ID: "fresh", UserID: "u1", Title: "t", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	for _, c := range []*domain.Conversation{stale, active, fresh} {
		if err := repo.CreateConversation(ctx, c); err != nil {
			t.Fatalf("CreateConversation failed: %v", err)
		}
	}
	msg := &domain.Message{ID: "m1", ConversationID: "active", Role: domain.RoleUser, Content: "hi", CreatedAt: old}
	if err := repo.CreateMessage(ctx, msg); err != nil {
		t.Fatalf("CreateMessage failed: %v", err)
	}

	sweeper := NewSweeper(repo, storage, time.Hour, 24*time.Hour, 24*time.Hour)
	sweeper.Sweep(ctx)

	if got, _ := repo.GetConversation(ctx, "stale"); got != nil {
		t.Error("stale empty conversation should be pruned")
	}
	if got, _ := repo.GetConversation(ctx, "active"); got == nil {
		t.Error("conversation with messages must survive")
	}
	if got, _ := repo.GetConversation(ctx, "fresh"); got == nil {
		t.Error("recent empty conversation must survive")
	}
}

func TestSweepPurgesDeletedFileBlobs(t *testing.T) {
	t.Parallel()
	repo, storage, root := sweepHarness(t)
	ctx := context.Background()

	rel, _, err := storage.Save("u1", "f1", strings.NewReader("blob bytes"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	file := &domain.UserFile{
		ID: "f1", UserID: "u1", ConversationID: "c1",
		Name: "deck.pdf", ContentType: "application/pdf",
		SizeBytes: 10, StoragePath: rel,
		SyncState: domain.SyncPending, CreatedAt: time.Now(),
	}
	if err := repo.CreateFile(ctx, file); err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}
	// Mirror synchronously so the sweep has a second copy to clean.
	storage.Mirror(ctx, repo, file)
	mirror := filepath.Join(root, ".mirror", rel)
	if _, err := os.Stat(mirror); err != nil {
		t.Fatalf("mirror copy missing: %v", err)
	}

	if err := repo.MarkFileDeleted(ctx, "f1"); err != nil {
		t.Fatalf("MarkFileDeleted failed: %v", err)
	}

	// Negative TTL makes the just-deleted row purgeable immediately.
	sweeper := NewSweeper(repo, storage, time.Hour, 24*time.Hour, -time.Minute)
	sweeper.Sweep(ctx)

	if _, err := os.Stat(filepath.Join(root, rel)); !os.IsNotExist(err) {
		t.Errorf("blob still on disk after purge, stat err = %v", err)
	}
	if _, err := os.Stat(mirror); !os.IsNotExist(err) {
		t.Errorf("mirror still on disk after purge, stat err = %v", err)
	}

	// A second sweep finds nothing and must not fail on the missing blobs.
	sweeper.Sweep(ctx)
}
