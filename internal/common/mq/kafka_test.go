package mq

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

func TestDeliverRetriesThenDeadLetters(t *testing.T) {
	calls := 0
	handler := func(ctx context.Context, m *Message) error {
		calls++
		return errors.New("boom")
	}
	var dead *Message
	opts := SubscribeOptions{MaxRetries: 2, RetryDelay: time.Millisecond}
	opts.SetDefaults()

	deliver(t.Context(), &Message{ID: "m1", Timestamp: time.Now()}, handler, opts, func(_ context.Context, m *Message) {
		dead = m
	})

	if calls != 3 {
		t.Fatalf("unexpected attempts: %d", calls)
	}
	if dead == nil || dead.ID != "m1" || dead.RetryCount != 3 {
		t.Fatalf("unexpected dead letter: %+v", dead)
	}
}

func TestDeliverStopsOnSuccess(t *testing.T) {
	calls := 0
	handler := func(ctx context.Context, m *Message) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	}
	opts := SubscribeOptions{RetryDelay: time.Millisecond}
	opts.SetDefaults()
	deliver(t.Context(), &Message{Timestamp: time.Now()}, handler, opts, func(context.Context, *Message) {
		t.Fatalf("unexpected dead letter")
	})
	if calls != 2 {
		t.Fatalf("unexpected attempts: %d", calls)
	}
}

func TestDeliverDropsExpired(t *testing.T) {
	opts := SubscribeOptions{MessageTTL: time.Second}
	opts.SetDefaults()
	deliver(t.Context(), &Message{Timestamp: time.Now().Add(-time.Minute)}, func(context.Context, *Message) error {
		t.Fatalf("handler should not run for expired message")
		return nil
	}, opts, nil)
}

func TestKafkaMessageRoundTrip(t *testing.T) {
	msg, err := NewJSONMessage(map[string]int{"problem_id": 7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msg.Expiration = 5 * time.Second
	msg.RetryCount = 1

	km := toKafkaMessage("problem.deleted", msg)
	if km.Topic != "problem.deleted" || string(km.Key) != msg.ID {
		t.Fatalf("unexpected kafka message: %+v", km)
	}
	back := fromKafkaMessage(kafka.Message{Key: km.Key, Value: km.Value, Headers: km.Headers, Time: km.Time})
	if back.ID != msg.ID || back.RetryCount != 1 || back.Expiration != 5*time.Second {
		t.Fatalf("unexpected decoded message: %+v", back)
	}
	if back.Headers["content-type"] != "application/json" {
		t.Fatalf("unexpected headers: %v", back.Headers)
	}
}

func TestNewKafkaQueueRequiresBrokers(t *testing.T) {
	if _, err := NewKafkaQueue(KafkaConfig{}); err == nil {
		t.Fatalf("expected error without brokers")
	}
}
