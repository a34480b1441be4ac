package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/slimstrongarm/industrial-iot-stack-sub003/internal/store"
	"github.com/slimstrongarm/industrial-iot-stack-sub003/pkg/tasks"
)

// flakyStore wraps a Memory store and fails reads or writes on demand
type flakyStore struct {
	*store.Memory
	failList   bool
	failAppend bool
	failUpdate bool
}

var errUnavailable = errors.New("sheet unavailable")

func (f *flakyStore) ListRows(ctx context.Context) ([]tasks.Task, error) {
	if f.failList {
		return nil, errUnavailable
	}
	return f.Memory.ListRows(ctx)
}

func (f *flakyStore) AppendRow(ctx context.Context, task tasks.Task) (string, error) {
	if f.failAppend {
		return "", errUnavailable
	}
	return f.Memory.AppendRow(ctx, task)
}

func (f *flakyStore) UpdateCell(ctx context.Context, taskID string, field tasks.Field, value string) error {
	if f.failUpdate {
		return errUnavailable
	}
	return f.Memory.UpdateCell(ctx, taskID, field, value)
}

func TestAllocatorEmptyStore(t *testing.T) {
	a := NewAllocator(store.NewMemory(), "CT")
	id, err := a.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if id != "CT-001" {
		t.Errorf("expected CT-001, got %s", id)
	}
}

func TestAllocatorIsIdempotentWithoutWrites(t *testing.T) {
	st := store.NewMemory(
		tasks.Task{ID: "CT-001"},
		tasks.Task{ID: "CT-047"},
		tasks.Task{ID: "CT-012"},
	)
	a := NewAllocator(st, "CT")

	first, err := a.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	second, err := a.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if first != "CT-048" || second != first {
		t.Errorf("expected CT-048 twice, got %s and %s", first, second)
	}
}

func TestAllocatorSkipsCorruptIDs(t *testing.T) {
	st := store.NewMemory(
		tasks.Task{ID: "CT-003"},
		tasks.Task{ID: "CT-abc"},
		tasks.Task{ID: "garbage"},
		tasks.Task{ID: "XX-900"},
		tasks.Task{ID: ""},
	)
	id, err := NewAllocator(st, "CT").Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if id != "CT-004" {
		t.Errorf("expected CT-004, got %s", id)
	}
}

func TestAllocatorPastThreeDigits(t *testing.T) {
	st := store.NewMemory(tasks.Task{ID: "CT-999"})
	id, err := NewAllocator(st, "CT").Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if id != "CT-1000" {
		t.Errorf("expected CT-1000, got %s", id)
	}
}

func TestAllocatorReadFailure(t *testing.T) {
	st := &flakyStore{Memory: store.NewMemory(), failList: true}
	if _, err := NewAllocator(st, "CT").Next(context.Background()); !errors.Is(err, errUnavailable) {
		t.Fatalf("expected wrapped read error, got %v", err)
	}
}

func TestParseID(t *testing.T) {
	tests := []struct {
		id   string
		want int
		ok   bool
	}{
		{"CT-048", 48, true},
		{"ct-7", 7, true},
		{" CT-010 ", 10, true},
		{"CT-", 0, false},
		{"CT048", 0, false},
		{"AB-001", 0, false},
		{"CT--1", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseID("CT", tt.id)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseID(%q) = %d, %v; want %d, %v", tt.id, got, ok, tt.want, tt.ok)
		}
	}
}
