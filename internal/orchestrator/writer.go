package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/slimstrongarm/industrial-iot-stack-sub003/internal/store"
	"github.com/slimstrongarm/industrial-iot-stack-sub003/pkg/tasks"
)

// Writer creates rows and moves them through the status machine.
// Every status write it makes keeps completed_at set iff status is Complete.
type Writer struct {
	store     store.Store
	allocator *Allocator
	config    *Config
	metrics   *Metrics
	now       func() time.Time
}

// NewWriter creates a task writer
func NewWriter(st store.Store, config *Config) *Writer {
	if config == nil {
		config = DefaultConfig()
	}
	return &Writer{
		store:     st,
		allocator: NewAllocator(st, config.IDPrefix),
		config:    config,
		now:       time.Now,
	}
}

// Create allocates an id and appends a new row. Failures are returned to the
// caller as-is; task creation is never retried automatically.
func (w *Writer) Create(ctx context.Context, description string, opts ...CreateOption) (tasks.Task, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return tasks.Task{}, fmt.Errorf("failed to create task: empty description")
	}

	options := &CreateOptions{
		Owner:    w.config.DefaultOwner,
		Category: w.config.DefaultCategory,
		Priority: w.config.DefaultPriority,
		Status:   tasks.StatusPending,
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.Status != tasks.StatusPending && options.Status != tasks.StatusStart {
		return tasks.Task{}, fmt.Errorf("failed to create task: initial status must be Pending or Start, got %q", options.Status)
	}

	id, err := w.allocator.Next(ctx)
	if err != nil {
		return tasks.Task{}, err
	}

	task := tasks.Task{
		ID:             id,
		Owner:          options.Owner,
		Category:       options.Category,
		Priority:       options.Priority,
		Status:         options.Status,
		Description:    description,
		ExpectedOutput: options.ExpectedOutput,
		Dependencies:   options.Dependencies,
		CreatedAt:      w.now().UTC().Truncate(time.Second),
		RequestedBy:    options.RequestedBy,
	}

	if _, err := w.store.AppendRow(ctx, task); err != nil {
		return tasks.Task{}, fmt.Errorf("failed to create task: %w", err)
	}

	w.metrics.TaskCreated()
	slog.InfoContext(ctx, "task created", "task_id", task.ID, "owner", task.Owner, "category", task.Category)
	return task, nil
}

// SetStatus writes a status unconditionally, stamping or clearing completed_at
func (w *Writer) SetStatus(ctx context.Context, taskID string, status tasks.Status) error {
	if err := w.store.UpdateCell(ctx, taskID, tasks.FieldStatus, string(status)); err != nil {
		return fmt.Errorf("failed to set status of %s: %w", taskID, err)
	}
	return w.syncCompletedAt(ctx, taskID, status, true)
}

// Transition moves a task from its current status to the next one, refusing
// moves the status machine does not allow.
func (w *Writer) Transition(ctx context.Context, current tasks.Task, to tasks.Status) error {
	if !tasks.CanTransition(current.Status, to) {
		return fmt.Errorf("illegal transition for %s: %q -> %q", current.ID, current.Status, to)
	}
	if err := w.store.UpdateCell(ctx, current.ID, tasks.FieldStatus, string(to)); err != nil {
		return fmt.Errorf("failed to set status of %s: %w", current.ID, err)
	}
	return w.syncCompletedAt(ctx, current.ID, to, current.Get(tasks.FieldCompletedAt) != "")
}

// Assign changes the owner column
func (w *Writer) Assign(ctx context.Context, taskID, owner string) error {
	if err := w.store.UpdateCell(ctx, taskID, tasks.FieldOwner, strings.TrimSpace(owner)); err != nil {
		return fmt.Errorf("failed to assign %s: %w", taskID, err)
	}
	return nil
}

func (w *Writer) syncCompletedAt(ctx context.Context, taskID string, status tasks.Status, hadCompletedAt bool) error {
	var value string
	switch {
	case status == tasks.StatusComplete:
		value = w.now().UTC().Format(tasks.TimeLayout)
	case hadCompletedAt:
		value = ""
	default:
		return nil
	}

	if err := w.store.UpdateCell(ctx, taskID, tasks.FieldCompletedAt, value); err != nil {
		return fmt.Errorf("failed to update completed_at of %s: %w", taskID, err)
	}
	return nil
}
