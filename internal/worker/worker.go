package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/menuqr/backend/pkg/queue"
	"github.com/menuqr/backend/pkg/storage"
)

// retryTimeout bounds the requeue of a failed job.
const retryTimeout = 5 * time.Second

// BlobDeleter removes an object by its public URL.
type BlobDeleter interface {
	Delete(ctx context.Context, url string) error
}

// JobQueue is the subset of queue.Queue the cleaner needs.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// BlobCleaner deletes images orphaned by restaurant, menu and category deletes.
type BlobCleaner struct {
	blobs   BlobDeleter
	queue   JobQueue
	logger  *zap.Logger
	backoff time.Duration
}

// NewBlobCleaner creates a blob cleanup processor.
func NewBlobCleaner(blobs BlobDeleter, q JobQueue, logger *zap.Logger) *BlobCleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BlobCleaner{blobs: blobs, queue: q, logger: logger, backoff: queue.RetryBackoff}
}

// Process executes one blob deletion job. URLs outside the bucket are dropped, not retried.
func (p *BlobCleaner) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeBlobDelete {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.BlobDeletePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if payload.URL == "" {
		return nil
	}
	if err := p.blobs.Delete(ctx, payload.URL); err != nil {
		if errors.Is(err, storage.ErrForeignURL) {
			p.logger.Warn("skipping foreign blob url", zap.String("url", payload.URL))
			return nil
		}
		return fmt.Errorf("delete blob: %w", err)
	}
	p.logger.Info("blob deleted", zap.String("url", payload.URL), zap.String("reason", payload.Reason))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *BlobCleaner) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("blob cleanup worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			// Requeue even when shutdown cancelled ctx mid-job.
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), retryTimeout)
			if reErr := p.queue.Retry(rctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.String("job_id", job.ID), zap.Error(reErr))
			}
			cancel()
			p.sleep(ctx)
		}
	}
}

func (p *BlobCleaner) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
