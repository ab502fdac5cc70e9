package repository

import (
	"errors"
	"testing"
	"time"

	"codearena/internal/sheet/model"
)

type rowValues []interface{}

func (r rowValues) Scan(dest ...interface{}) error {
	if len(dest) != len(r) {
		return errors.New("column count mismatch")
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *int64:
			*p = r[i].(int64)
		case *bool:
			*p = r[i].(bool)
		case *string:
			*p = r[i].(string)
		case *time.Time:
			*p = r[i].(time.Time)
		default:
			return errors.New("unsupported destination")
		}
	}
	return nil
}

func TestScanSheet(t *testing.T) {
	now := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	sheet, err := scanSheet(rowValues{int64(3), "Graphs", "BFS and DFS", int64(1), true, "advanced", now})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sheet.ID != 3 || !sheet.IsPublic || sheet.Difficulty != model.DifficultyAdvanced || !sheet.CreatedAt.Equal(now) {
		t.Fatalf("unexpected sheet: %+v", sheet)
	}
	if !sheet.VisibleTo(42) {
		t.Fatalf("public sheet should be visible to everyone")
	}
	sheet.IsPublic = false
	if sheet.VisibleTo(42) || !sheet.VisibleTo(1) {
		t.Fatalf("private sheet should be visible to its creator only")
	}
}

func TestNonNil(t *testing.T) {
	if got := nonNil(nil); got == nil || len(got) != 0 {
		t.Fatalf("expected empty slice, got %v", got)
	}
}
