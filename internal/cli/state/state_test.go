package state

import (
	"path/filepath"
	"testing"
	"time"
)

func TestSaveLoadClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	empty, err := Load(path)
	if err != nil || empty.AccessToken != "" {
		t.Fatalf("unexpected missing-file result: %+v %v", empty, err)
	}

	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := Save(path, TokenState{AccessToken: "abc", ExpiresAt: expires, UserID: 7, Role: "admin"}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.AccessToken != "abc" || loaded.UserID != 7 || !loaded.ExpiresAt.Equal(expires) {
		t.Fatalf("unexpected state: %+v", loaded)
	}

	if err := Clear(path); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if err := Clear(path); err != nil {
		t.Fatalf("clear of missing file failed: %v", err)
	}
}

func TestExpired(t *testing.T) {
	now := time.Now()
	if (TokenState{}).Expired(now) {
		t.Fatalf("zero expiry should not be expired")
	}
	if !(TokenState{ExpiresAt: now.Add(-time.Minute)}).Expired(now) {
		t.Fatalf("past expiry should be expired")
	}
}
