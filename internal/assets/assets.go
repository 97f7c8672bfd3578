// Package assets manages the lifecycle of uploaded images: upload before the owning row
// is written, synchronous best-effort removal, and deferred cleanup through the worker queue.
package assets

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/menuqr/backend/internal/apperr"
	"github.com/menuqr/backend/pkg/storage"
)

var errDisabled = errors.New("image storage is not configured")

// ObjectStore uploads and deletes public objects.
type ObjectStore interface {
	Upload(ctx context.Context, prefix string, f storage.File) (string, error)
	Delete(ctx context.Context, url string) error
}

// CleanupQueue defers object deletion to the worker.
type CleanupQueue interface {
	EnqueueBlobDeletes(ctx context.Context, urls []string, reason string) error
}

// Manager uploads and releases images. Either collaborator may be nil.
type Manager struct {
	objects ObjectStore
	cleanup CleanupQueue
	logger  *zap.Logger
}

// NewManager creates an asset manager.
func NewManager(objects ObjectStore, cleanup CleanupQueue, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{objects: objects, cleanup: cleanup, logger: logger}
}

// ValidateImage checks size and type of an optional upload.
func ValidateImage(f *storage.File) error {
	if f == nil {
		return nil
	}
	if f.Size > storage.MaxImageSize {
		return apperr.Validation("image must be at most %d bytes", storage.MaxImageSize)
	}
	if !storage.ValidateImageType(f.ContentType, f.Name) {
		return apperr.Validation("image must be jpeg, png, webp or gif")
	}
	return nil
}

// Upload stores f under prefix and returns its public URL.
func (m *Manager) Upload(ctx context.Context, prefix string, f *storage.File) (string, error) {
	if m.objects == nil {
		return "", apperr.Upstream("upload image", errDisabled)
	}
	url, err := m.objects.Upload(ctx, prefix, *f)
	if err != nil {
		return "", apperr.Upstream("upload image", err)
	}
	return url, nil
}

// Remove deletes one object now. Failures are logged and swallowed.
func (m *Manager) Remove(ctx context.Context, url string) {
	if url == "" || m.objects == nil {
		return
	}
	if err := m.objects.Delete(ctx, url); err != nil {
		m.logger.Warn("image delete failed", zap.String("url", url), zap.Error(err))
	}
}

// Release hands urls to the cleanup queue, or deletes them inline when the queue is
// missing or refuses the batch.
func (m *Manager) Release(ctx context.Context, urls []string, reason string) {
	if len(urls) == 0 {
		return
	}
	if m.cleanup != nil {
		err := m.cleanup.EnqueueBlobDeletes(ctx, urls, reason)
		if err == nil {
			return
		}
		m.logger.Warn("enqueue blob cleanup failed, deleting inline",
			zap.String("reason", reason), zap.Int("count", len(urls)), zap.Error(err))
	}
	for _, u := range urls {
		m.Remove(ctx, u)
	}
}
