// Package files manages uploaded attachments: disk blobs, metadata rows,
// signed download URLs, and the best-effort mirror task.
package files

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/actionlab/ignacio/internal/domain"
	"github.com/actionlab/ignacio/internal/store"
)

// Storage writes attachment blobs under a root directory, one subdirectory
// per user. Paths recorded in the store are relative to the root so the
// root can move between deployments.
type Storage struct {
	root   string
	secret []byte
}

// NewStorage creates the disk store, making the root directory if needed.
func NewStorage(root, secret string) (*Storage, error) {
	if err := os.MkdirAll(root, 0750); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Storage{root: root, secret: []byte(secret)}, nil
}

// Save streams an upload to disk and returns the relative blob path and
// byte count. The blob is keyed by file ID, never by the client filename.
func (s *Storage) Save(userID, fileID string, r io.Reader) (string, int64, error) {
	rel := filepath.Join(userID, fileID)
	abs := filepath.Join(s.root, rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0750); err != nil {
		return "", 0, fmt.Errorf("create user storage directory: %w", err)
	}

	f, err := os.Create(abs)
	if err != nil {
		return "", 0, fmt.Errorf("create blob: %w", err)
	}

	n, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(abs)
		return "", 0, fmt.Errorf("write blob: %w", err)
	}
	return rel, n, nil
}

// Open opens a stored blob for reading.
func (s *Storage) Open(relPath string) (*os.File, error) {
	f, err := os.Open(filepath.Join(s.root, relPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("blob %s: %w", relPath, domain.ErrNotFound)
		}
		return nil, err
	}
	return f, nil
}

// Remove deletes a stored blob. Missing blobs are not an error; the sweeper
// may retry a purge.
func (s *Storage) Remove(relPath string) error {
	err := os.Remove(filepath.Join(s.root, relPath))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// SignedQuery returns the exp/sig query parameters that authorize an
// unauthenticated download of the file until the expiry time.
func (s *Storage) SignedQuery(fileID string, ttl time.Duration) (exp int64, sig string) {
	exp = time.Now().Add(ttl).Unix()
	return exp, s.sign(fileID, exp)
}

// VerifySignedQuery checks a signed download's exp/sig pair. Expired or
// forged parameters map to ErrUnauthorized.
func (s *Storage) VerifySignedQuery(fileID, expStr, sig string) error {
	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad expiry", domain.ErrUnauthorized)
	}
	if time.Now().Unix() >= exp {
		return fmt.Errorf("%w: signed url expired", domain.ErrUnauthorized)
	}
	want := s.sign(fileID, exp)
	if !hmac.Equal([]byte(sig), []byte(want)) {
		return fmt.Errorf("%w: bad signature", domain.ErrUnauthorized)
	}
	return nil
}

func (s *Storage) sign(fileID string, exp int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s\n%d", fileID, exp)
	return hex.EncodeToString(mac.Sum(nil))
}

// mirrorDirName holds the secondary copy written by the sync task.
const mirrorDirName = ".mirror"

// Mirror copies a stored blob into the mirror directory and records the
// outcome on the file row. Best effort: failures are logged and marked,
// never surfaced to the uploader. Run in its own goroutine.
func (s *Storage) Mirror(ctx context.Context, repo store.Repository, file *domain.UserFile) {
	state := domain.SyncDone
	if err := s.copyToMirror(file.StoragePath); err != nil {
		slog.Warn("file mirror sync failed", "file_id", file.ID, "error", err)
		state = domain.SyncFailed
	}
	if err := repo.UpdateFileSyncState(ctx, file.ID, state); err != nil {
		slog.Warn("failed to record file sync state", "file_id", file.ID, "error", err)
	}
}

func (s *Storage) copyToMirror(relPath string) error {
	src, err := os.Open(filepath.Join(s.root, relPath))
	if err != nil {
		return err
	}
	defer src.Close()

	dstPath := filepath.Join(s.root, mirrorDirName, relPath)
	if err := os.MkdirAll(filepath.Dir(dstPath), 0750); err != nil {
		return err
	}
	dst, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	return err
}

// RemoveMirror deletes the mirror copy of a purged blob.
func (s *Storage) RemoveMirror(relPath string) error {
	err := os.Remove(filepath.Join(s.root, mirrorDirName, relPath))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
