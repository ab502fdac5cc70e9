package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"codearena/internal/common/mq"
	judgemodel "codearena/internal/judge/model"
	"codearena/internal/submit/model"
	"codearena/internal/submit/repository"
)

type captureProducer struct {
	topic    string
	messages []*mq.Message
}

func (p *captureProducer) Publish(_ context.Context, topic string, message *mq.Message) error {
	p.topic = topic
	p.messages = append(p.messages, message)
	return nil
}

func (p *captureProducer) PublishBatch(ctx context.Context, topic string, messages []*mq.Message) error {
	for _, m := range messages {
		_ = p.Publish(ctx, topic, m)
	}
	return nil
}

type invalidations []int64

func (i *invalidations) InvalidateProfile(_ context.Context, userID int64) error {
	*i = append(*i, userID)
	return nil
}

func TestJudgedEventRoundTripThroughDispatcher(t *testing.T) {
	producer := &captureProducer{}
	pub := NewJudgedEventPublisher(producer, "")
	event := model.JudgedEvent{EventType: model.SubmissionJudgedEvent, SubmissionID: 4, UserID: 7, Accepted: true}
	if err := pub.PublishJudged(t.Context(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if producer.topic != model.SubmissionJudgedEvent || producer.messages[0].ID != "submission-judged-4" {
		t.Fatalf("unexpected publish: %s %+v", producer.topic, producer.messages[0])
	}

	var seen invalidations
	dispatcher := NewJudgedDispatcher(nil, InvalidateProfileOnJudged(&seen))
	if err := dispatcher.HandleMessage(t.Context(), producer.messages[0]); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seen) != 1 || seen[0] != 7 {
		t.Fatalf("unexpected invalidations: %v", seen)
	}
}

func TestDispatcherDropsForeignAndMalformedEvents(t *testing.T) {
	calls := 0
	dispatcher := NewJudgedDispatcher(nil, JudgedHandlerFunc(func(context.Context, model.JudgedEvent) error {
		calls++
		return nil
	}))
	if err := dispatcher.HandleMessage(t.Context(), mq.NewMessage([]byte("not json"))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body, _ := json.Marshal(model.JudgedEvent{EventType: "other"})
	if err := dispatcher.HandleMessage(t.Context(), mq.NewMessage(body)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 0 {
		t.Fatalf("handlers must not run, got %d calls", calls)
	}
	if err := dispatcher.Subscribe(t.Context(), "", "g", nil); err == nil {
		t.Fatalf("expected error without a consumer")
	}
}

func TestDispatcherRunsAllHandlersAndJoinsErrors(t *testing.T) {
	calls := 0
	failing := JudgedHandlerFunc(func(context.Context, model.JudgedEvent) error {
		calls++
		return errors.New("boom")
	})
	counting := JudgedHandlerFunc(func(context.Context, model.JudgedEvent) error {
		calls++
		return nil
	})
	dispatcher := NewJudgedDispatcher(nil, failing, nil, counting)
	err := dispatcher.PublishJudged(t.Context(), model.JudgedEvent{EventType: model.SubmissionJudgedEvent, UserID: 1})
	if err == nil || calls != 2 {
		t.Fatalf("expected both handlers and an error, got calls=%d err=%v", calls, err)
	}
}

func TestEvaluate(t *testing.T) {
	tm := "0.5"
	mem := int64(2048)
	stderr := "Traceback"
	results := []judgemodel.Result{
		{StatusID: judgemodel.StatusAccepted, Time: &tm, Memory: &mem},
		{StatusID: judgemodel.StatusTimeLimitExceeded, Time: &tm},
		{StatusID: judgemodel.StatusRuntimeErrorNZEC, Stderr: &stderr},
	}
	out := Evaluate(results)
	if out.Status != repository.StatusError || out.Passed != 1 || out.Total != 3 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if out.Runtime != 1.0 || out.Memory != 2048 || out.ErrorMessage != "Time Limit Exceeded" {
		t.Fatalf("unexpected aggregates: %+v", out)
	}
	if got := Evaluate(results[:2]).Status; got != repository.StatusWrong {
		t.Fatalf("unexpected status: %s", got)
	}
	if got := Evaluate(nil).Status; got != repository.StatusWrong {
		t.Fatalf("empty batch must not be accepted, got %s", got)
	}
}
