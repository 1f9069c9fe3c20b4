// Package worker runs background jobs from the Redis queue.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-classroom/backend/pkg/queue"
	"github.com/aura-classroom/backend/pkg/storage"
)

// JobSource is the queue side the processor consumes. *queue.Queue satisfies it.
type JobSource interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// ObjectStore reads artifact metadata. *storage.S3 satisfies it.
type ObjectStore interface {
	Bucket() string
	HeadObject(ctx context.Context, bucket, key string) (*storage.ObjectInfo, error)
}

// SizeStore records the verified artifact size on the room.
type SizeStore interface {
	SetArtifactSize(ctx context.Context, id uuid.UUID, location string, size int64) error
}

// ArtifactProcessor verifies that a completed recording landed in the bucket and stores its size.
type ArtifactProcessor struct {
	queue   JobSource
	objects ObjectStore
	rooms   SizeStore
	backoff time.Duration
	logger  *zap.Logger
}

// NewArtifactProcessor creates an artifact verification processor.
func NewArtifactProcessor(q JobSource, objects ObjectStore, rooms SizeStore, logger *zap.Logger) *ArtifactProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArtifactProcessor{queue: q, objects: objects, rooms: rooms, backoff: queue.RetryBackoff, logger: logger}
}

// Process executes one artifact job.
func (p *ArtifactProcessor) Process(ctx context.Context, job *queue.Job) error {
	payload, err := queue.DecodeArtifact(job)
	if err != nil {
		return err
	}
	bucket, key, err := storage.ParseLocation(payload.Location, p.objects.Bucket())
	if err != nil {
		return fmt.Errorf("artifact location: %w", err)
	}
	info, err := p.objects.HeadObject(ctx, bucket, key)
	if err != nil {
		return fmt.Errorf("head %s/%s: %w", bucket, key, err)
	}
	if err := p.rooms.SetArtifactSize(ctx, payload.RoomID, payload.Location, info.Size); err != nil {
		return fmt.Errorf("store artifact size: %w", err)
	}
	p.logger.Info("recording artifact verified",
		zap.String("room_id", payload.RoomID.String()),
		zap.String("egress_id", payload.JobID),
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.Int64("size_bytes", info.Size))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error. It returns when ctx is done.
func (p *ArtifactProcessor) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			p.logger.Info("artifact worker stopping")
			return
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() == nil {
				p.logger.Warn("dequeue error", zap.Error(err))
			}
			p.wait(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.String("job_id", job.ID), zap.Error(reErr))
			}
			p.wait(ctx)
		}
	}
}

func (p *ArtifactProcessor) wait(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
