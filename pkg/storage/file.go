package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

// FileDestination writes documents to the local filesystem. Writers hold an
// exclusive lock on a sibling ".lock" file so concurrent processes never
// interleave, and data is renamed into place so readers see whole files.
type FileDestination struct {
	// Root is joined with the name passed to Save; empty means the name is
	// used as is
	Root        string
	Perm        os.FileMode
	LockTimeout time.Duration
	logger      *zap.Logger
}

// NewFileDestination creates a file destination rooted at root
func NewFileDestination(root string, logger *zap.Logger) *FileDestination {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileDestination{
		Root:        root,
		Perm:        0o644,
		LockTimeout: 10 * time.Second,
		logger:      logger,
	}
}

// Path returns the file a name maps to
func (f *FileDestination) Path(name string) string {
	if f.Root == "" {
		return name
	}
	return filepath.Join(f.Root, name)
}

// Save writes data to the named file, creating parent directories
func (f *FileDestination) Save(ctx context.Context, name string, data []byte, _ map[string]string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("file name is required")
	}
	path := f.Path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating directory: %w", err)
	}

	lockCtx := ctx
	if f.LockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, f.LockTimeout)
		defer cancel()
	}
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLockContext(lockCtx, 25*time.Millisecond)
	if err != nil {
		return "", fmt.Errorf("acquiring lock: %w", err)
	}
	if !locked {
		return "", fmt.Errorf("lock for %s held by another writer", path)
	}
	defer func() { _ = lock.Unlock() }()

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), f.Perm); err != nil {
		return "", fmt.Errorf("setting permissions on %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("replacing %s: %w", path, err)
	}

	f.logger.Debug("Wrote document",
		zap.String("path", path),
		zap.Int("size_bytes", len(data)))
	return path, nil
}

var _ Destination = (*FileDestination)(nil)
