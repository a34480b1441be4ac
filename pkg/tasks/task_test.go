package tasks

import (
	"testing"
	"time"
)

func TestRowRoundTrip(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	completed := created.Add(2 * time.Hour)
	task := Task{
		ID:             "CT-048",
		Owner:          "Worker-A",
		Category:       "wiring",
		Priority:       PriorityHigh,
		Status:         StatusComplete,
		Description:    "Fix sensor wiring",
		ExpectedOutput: "sensor online",
		Dependencies:   []string{"CT-001", "CT-002"},
		CreatedAt:      created,
		CompletedAt:    &completed,
		RequestedBy:    "alice",
	}

	got := FromRow(task.Row())

	for _, f := range Fields {
		if got.Get(f) != task.Get(f) {
			t.Errorf("field %s: expected %q, got %q", f, task.Get(f), got.Get(f))
		}
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("expected created_at %v, got %v", created, got.CreatedAt)
	}
}

func TestFromRowShortRow(t *testing.T) {
	got := FromRow([]string{"CT-001", "Worker-A"})
	if got.ID != "CT-001" || got.Owner != "Worker-A" {
		t.Fatalf("unexpected task: %+v", got)
	}
	if got.CompletedAt != nil {
		t.Errorf("expected empty completed_at")
	}
}

func TestSetKeepsUnparseableTimestamps(t *testing.T) {
	var task Task
	if err := task.Set(FieldCreatedAt, "last tuesday"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := task.Get(FieldCreatedAt); got != "last tuesday" {
		t.Errorf("expected raw cell to survive, got %q", got)
	}
	if !task.CreatedAt.IsZero() {
		t.Errorf("expected zero typed value")
	}

	clone := task.Clone()
	_ = task.Set(FieldCreatedAt, "")
	if clone.Get(FieldCreatedAt) != "last tuesday" {
		t.Errorf("clone shares raw cells with original")
	}
}

func TestSetUnknownStatusIsVisible(t *testing.T) {
	var task Task
	_ = task.Set(FieldStatus, "waiting on parts")
	if task.Get(FieldStatus) != "waiting on parts" {
		t.Errorf("unexpected status cell %q", task.Get(FieldStatus))
	}
	_ = task.Set(FieldStatus, "in_progress")
	if task.Status != StatusInProgress {
		t.Errorf("expected In Progress, got %q", task.Status)
	}
}

func TestSplitDependencies(t *testing.T) {
	got := SplitDependencies("CT-001, CT-002;CT-003\nCT-004")
	want := []string{"CT-001", "CT-002", "CT-003", "CT-004"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestParseField(t *testing.T) {
	f, err := ParseField(" Status ")
	if err != nil || f != FieldStatus {
		t.Fatalf("expected status field, got %q (%v)", f, err)
	}
	if _, err := ParseField("colour"); err == nil {
		t.Error("expected error for unknown field")
	}
	if FieldCompletedAt.Column() != 9 {
		t.Errorf("expected completed_at in column J, got index %d", FieldCompletedAt.Column())
	}
}
