package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"codearena/internal/common/mq"
	"codearena/internal/submit/model"
	appErr "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	"go.uber.org/zap"
)

// JudgedHandler reacts to a finished submission.
type JudgedHandler interface {
	HandleJudged(ctx context.Context, event model.JudgedEvent) error
}

// JudgedHandlerFunc adapts a function to JudgedHandler.
type JudgedHandlerFunc func(ctx context.Context, event model.JudgedEvent) error

func (f JudgedHandlerFunc) HandleJudged(ctx context.Context, event model.JudgedEvent) error {
	return f(ctx, event)
}

// ProfileInvalidator drops a cached user profile.
type ProfileInvalidator interface {
	InvalidateProfile(ctx context.Context, userID int64) error
}

// InvalidateProfileOnJudged refreshes the submitter's profile after every verdict.
func InvalidateProfileOnJudged(profiles ProfileInvalidator) JudgedHandler {
	return JudgedHandlerFunc(func(ctx context.Context, event model.JudgedEvent) error {
		if profiles == nil || event.UserID <= 0 {
			return nil
		}
		return profiles.InvalidateProfile(ctx, event.UserID)
	})
}

// JudgedEventPublisher publishes judged events to the broker.
type JudgedEventPublisher struct {
	producer mq.Producer
	topic    string
}

func NewJudgedEventPublisher(producer mq.Producer, topic string) *JudgedEventPublisher {
	if topic == "" {
		topic = model.SubmissionJudgedEvent
	}
	return &JudgedEventPublisher{producer: producer, topic: topic}
}

func (p *JudgedEventPublisher) PublishJudged(ctx context.Context, event model.JudgedEvent) error {
	if p == nil || p.producer == nil {
		return errors.New("judged publisher is nil")
	}
	message, err := mq.NewJSONMessage(event)
	if err != nil {
		return fmt.Errorf("marshal judged event failed: %w", err)
	}
	message.ID = fmt.Sprintf("submission-judged-%d", event.SubmissionID)
	if err := p.producer.Publish(ctx, p.topic, message); err != nil {
		return fmt.Errorf("publish judged event failed: %w", err)
	}
	return nil
}

// JudgedDispatcher fans a judged event out to its handlers. It serves as the
// broker consumer and, without a broker, as an in-process publisher.
type JudgedDispatcher struct {
	consumer mq.Consumer
	handlers []JudgedHandler
}

func NewJudgedDispatcher(consumer mq.Consumer, handlers ...JudgedHandler) *JudgedDispatcher {
	return &JudgedDispatcher{consumer: consumer, handlers: handlers}
}

// Subscribe registers the dispatcher on topic. The caller starts the consumer.
func (d *JudgedDispatcher) Subscribe(ctx context.Context, topic, consumerGroup string, opts *mq.SubscribeOptions) error {
	if d == nil || d.consumer == nil {
		return errors.New("message queue is nil")
	}
	if topic == "" {
		topic = model.SubmissionJudgedEvent
	}
	options := opts
	if options == nil {
		options = &mq.SubscribeOptions{}
	}
	if options.ConsumerGroup == "" {
		options.ConsumerGroup = consumerGroup
	}
	return d.consumer.SubscribeWithOptions(ctx, topic, d.HandleMessage, options)
}

// HandleMessage decodes a judged event and dispatches it.
func (d *JudgedDispatcher) HandleMessage(ctx context.Context, msg *mq.Message) error {
	if msg == nil {
		return appErr.New(appErr.InvalidParams).WithMessage("message is nil")
	}
	var event model.JudgedEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		logger.Warn(ctx, "decode judged event failed", zap.Error(err))
		return nil
	}
	if event.EventType != model.SubmissionJudgedEvent {
		return nil
	}
	return d.PublishJudged(ctx, event)
}

// PublishJudged runs every handler and joins their failures.
func (d *JudgedDispatcher) PublishJudged(ctx context.Context, event model.JudgedEvent) error {
	var errs []error
	for _, handler := range d.handlers {
		if handler == nil {
			continue
		}
		if err := handler.HandleJudged(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("handle judged event failed: %w", errors.Join(errs...))
	}
	return nil
}
