package repository

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"codearena/internal/common/cache"
)

type fakeScanner struct {
	values []interface{}
}

func (s fakeScanner) Scan(dest ...interface{}) error {
	if len(dest) != len(s.values) {
		return fmt.Errorf("expected %d columns, got %d", len(s.values), len(dest))
	}
	for i, d := range dest {
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(s.values[i]))
	}
	return nil
}

func TestScanSubmissionHandlesNullError(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	msg := "Wrong Answer"
	row := fakeScanner{values: []interface{}{
		int64(3), int64(7), int64(1), "print()", "python", StatusWrong,
		0.25, int64(2048), &msg, 2, 3, now, now,
	}}
	s, err := scanSubmission(row)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.ID != 3 || s.ErrorMessage != "Wrong Answer" || s.TestCasesTotal != 3 || !s.Final() {
		t.Fatalf("unexpected submission: %+v", s)
	}

	var null *string
	row.values[8] = null
	row.values[5] = StatusPending
	s, err = scanSubmission(row)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.ErrorMessage != "" || s.Final() {
		t.Fatalf("unexpected submission: %+v", s)
	}
}

func TestSubmissionCacheCodec(t *testing.T) {
	in := &Submission{ID: 5, UserID: 7, Status: StatusAccepted, CreatedAt: time.Now().UTC().Truncate(time.Second)}
	out, err := unmarshalSubmission(marshalSubmission(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.ID != 5 || out.Status != StatusAccepted || !out.CreatedAt.Equal(in.CreatedAt) {
		t.Fatalf("unexpected submission: %+v", out)
	}
	if out, err := unmarshalSubmission(cache.NullCacheValue); err != nil || out != nil {
		t.Fatalf("null marker must decode to nil, got %+v %v", out, err)
	}
	if got := submissionCacheKey(5); got != "submission:5" {
		t.Fatalf("unexpected key: %s", got)
	}
	if nullableString("") != nil || nullableString("x") != "x" {
		t.Fatalf("unexpected nullable conversion")
	}
}
