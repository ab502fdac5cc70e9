package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"codearena/internal/common/mq"
	"codearena/internal/problem/model"
)

const defaultVideoKeyPrefix = "videos"

// ProblemCleanupPublisher publishes async cleanup events.
type ProblemCleanupPublisher struct {
	producer  mq.Producer
	topic     string
	bucket    string
	keyPrefix string
}

func NewProblemCleanupPublisher(producer mq.Producer, topic, bucket, keyPrefix string) *ProblemCleanupPublisher {
	return &ProblemCleanupPublisher{
		producer:  producer,
		topic:     topic,
		bucket:    bucket,
		keyPrefix: keyPrefix,
	}
}

// PublishProblemDeleted publishes a cleanup event for the deleted problem.
func (p *ProblemCleanupPublisher) PublishProblemDeleted(ctx context.Context, problemID int64) error {
	if p == nil || p.producer == nil {
		return errors.New("cleanup publisher is nil")
	}
	if p.topic == "" {
		return errors.New("cleanup topic is empty")
	}
	if problemID <= 0 {
		return errors.New("problemID is required")
	}
	message, err := mq.NewJSONMessage(newCleanupEvent(problemID, p.bucket, p.keyPrefix))
	if err != nil {
		return fmt.Errorf("marshal cleanup event failed: %w", err)
	}
	message.ID = fmt.Sprintf("problem-delete-%d-%d", problemID, time.Now().UnixNano())
	if err := p.producer.Publish(ctx, p.topic, message); err != nil {
		return fmt.Errorf("publish cleanup event failed: %w", err)
	}
	return nil
}

// InlineCleanup runs the cleanup synchronously when no broker is configured.
type InlineCleanup struct {
	consumer  *ProblemCleanupConsumer
	bucket    string
	keyPrefix string
}

func NewInlineCleanup(consumer *ProblemCleanupConsumer, bucket, keyPrefix string) *InlineCleanup {
	return &InlineCleanup{consumer: consumer, bucket: bucket, keyPrefix: keyPrefix}
}

func (c *InlineCleanup) PublishProblemDeleted(ctx context.Context, problemID int64) error {
	if c == nil || c.consumer == nil {
		return errors.New("inline cleanup is not configured")
	}
	return c.consumer.Cleanup(ctx, newCleanupEvent(problemID, c.bucket, c.keyPrefix))
}

func newCleanupEvent(problemID int64, bucket, keyPrefix string) model.ProblemCleanupEvent {
	return model.ProblemCleanupEvent{
		EventType:   model.ProblemCleanupEventDeleted,
		ProblemID:   problemID,
		Bucket:      bucket,
		Prefix:      problemObjectPrefix(keyPrefix, problemID),
		RequestedAt: time.Now().UTC(),
	}
}

func problemObjectPrefix(keyPrefix string, problemID int64) string {
	if keyPrefix == "" {
		keyPrefix = defaultVideoKeyPrefix
	}
	return fmt.Sprintf("%s/%d/", keyPrefix, problemID)
}
