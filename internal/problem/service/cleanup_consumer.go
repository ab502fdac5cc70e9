package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"codearena/internal/common/mq"
	"codearena/internal/common/storage"
	"codearena/internal/problem/model"
	"codearena/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultCleanupBatchSize = 1000
	defaultCleanupTimeout   = 2 * time.Minute
)

// ProblemChecker reports whether a problem still exists.
type ProblemChecker interface {
	Exists(ctx context.Context, problemID int64) (bool, error)
}

// CleanupOptions controls cleanup behavior.
type CleanupOptions struct {
	Bucket    string
	KeyPrefix string
	BatchSize int
	Timeout   time.Duration
}

// ProblemCleanupConsumer removes the stored objects of deleted problems.
type ProblemCleanupConsumer struct {
	consumer  mq.Consumer
	problems  ProblemChecker
	storage   storage.ObjectStorage
	bucket    string
	keyPrefix string
	batchSize int
	timeout   time.Duration
}

func NewProblemCleanupConsumer(consumer mq.Consumer, problems ProblemChecker, obj storage.ObjectStorage, opts CleanupOptions) *ProblemCleanupConsumer {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultCleanupBatchSize
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultCleanupTimeout
	}
	return &ProblemCleanupConsumer{
		consumer:  consumer,
		problems:  problems,
		storage:   obj,
		bucket:    opts.Bucket,
		keyPrefix: opts.KeyPrefix,
		batchSize: batchSize,
		timeout:   timeout,
	}
}

// Subscribe registers the cleanup handler. The caller starts the consumer.
func (c *ProblemCleanupConsumer) Subscribe(ctx context.Context, topic, consumerGroup string, opts *mq.SubscribeOptions) error {
	if c == nil || c.consumer == nil {
		return errors.New("message queue is nil")
	}
	if topic == "" {
		return errors.New("cleanup topic is required")
	}
	options := opts
	if options == nil {
		options = &mq.SubscribeOptions{}
	}
	if options.ConsumerGroup == "" {
		options.ConsumerGroup = consumerGroup
	}
	return c.consumer.SubscribeWithOptions(ctx, topic, c.HandleMessage, options)
}

// HandleMessage processes a cleanup event message. Malformed events are dropped.
func (c *ProblemCleanupConsumer) HandleMessage(ctx context.Context, message *mq.Message) error {
	var event model.ProblemCleanupEvent
	if err := json.Unmarshal(message.Body, &event); err != nil {
		logger.Warn(ctx, "parse cleanup event failed", zap.Error(err))
		return nil
	}
	if event.EventType != model.ProblemCleanupEventDeleted {
		return nil
	}
	if event.ProblemID <= 0 {
		logger.Warn(ctx, "cleanup event missing problem_id")
		return nil
	}
	return c.Cleanup(ctx, event)
}

// Cleanup removes every object under the event prefix unless the problem exists again.
func (c *ProblemCleanupConsumer) Cleanup(ctx context.Context, event model.ProblemCleanupEvent) error {
	bucket := event.Bucket
	if bucket == "" {
		bucket = c.bucket
	}
	prefix := event.Prefix
	if prefix == "" {
		prefix = problemObjectPrefix(c.keyPrefix, event.ProblemID)
	}
	if bucket == "" || prefix == "" {
		return errors.New("cleanup bucket or prefix is empty")
	}
	if c.storage == nil {
		return errors.New("object storage is nil")
	}
	if c.problems != nil {
		exists, err := c.problems.Exists(ctx, event.ProblemID)
		if err != nil {
			return fmt.Errorf("check problem exists failed: %w", err)
		}
		if exists {
			logger.Info(ctx, "skip cleanup for existing problem", zap.Int64("problem_id", event.ProblemID))
			return nil
		}
	}

	cleanupCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	removed, err := storage.RemovePrefix(cleanupCtx, c.storage, bucket, prefix, c.batchSize)
	if err != nil {
		return fmt.Errorf("remove objects under %s failed: %w", prefix, err)
	}
	logger.Info(ctx, "problem objects removed",
		zap.Int64("problem_id", event.ProblemID),
		zap.String("prefix", prefix),
		zap.Int("removed", removed),
	)
	return nil
}
