package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/slimstrongarm/industrial-iot-stack-sub003/internal/store"
	"github.com/slimstrongarm/industrial-iot-stack-sub003/pkg/tasks"
)

const instrumentationName = "github.com/slimstrongarm/industrial-iot-stack-sub003/internal/orchestrator"

// EventSink receives the events of one polling cycle, in row order
type EventSink func(ctx context.Context, events []tasks.ChangeEvent)

// Watcher detects edits to the sheet by diffing successive full reads
type Watcher struct {
	store    store.Store
	interval time.Duration
	wake     <-chan struct{}
	metrics  *Metrics
	tracer   trace.Tracer
	now      func() time.Time

	snapshot map[string]tasks.Task
	order    []string
	primed   bool
}

// NewWatcher creates a watcher polling every interval
func NewWatcher(st store.Store, interval time.Duration, metrics *Metrics) *Watcher {
	if interval <= 0 {
		interval = DefaultConfig().PollInterval
	}
	return &Watcher{
		store:    st,
		interval: interval,
		metrics:  metrics,
		tracer:   otel.Tracer(instrumentationName),
		now:      time.Now,
	}
}

// WakeOn makes the watcher poll immediately whenever ch fires. The ticker
// keeps running as the fallback.
func (w *Watcher) WakeOn(ch <-chan struct{}) {
	w.wake = ch
}

// Seed installs a snapshot so the next poll diffs against it
func (w *Watcher) Seed(rows []tasks.Task) {
	w.snapshot, w.order = index(rows)
	w.primed = true
}

// Poll reads the sheet once and returns the changes since the previous
// successful poll. The first successful poll only records the snapshot.
// On error the snapshot is left untouched.
func (w *Watcher) Poll(ctx context.Context) ([]tasks.ChangeEvent, error) {
	start := time.Now()
	rows, err := w.store.ListRows(ctx)
	if err != nil {
		if w.metrics != nil {
			w.metrics.pollErrors.Inc()
		}
		return nil, err
	}
	if w.metrics != nil {
		defer func() {
			w.metrics.pollDuration.Observe(time.Since(start).Seconds())
		}()
		w.metrics.observeRows(rows)
	}

	current, order := index(rows)
	if !w.primed {
		w.snapshot, w.order, w.primed = current, order, true
		slog.InfoContext(ctx, "watcher primed", "rows", len(order))
		return nil, nil
	}

	events := diff(w.snapshot, w.order, current, order, w.now())
	w.snapshot, w.order = current, order

	if w.metrics != nil {
		for _, ev := range events {
			w.metrics.eventsDetected.WithLabelValues(string(ev.Type)).Inc()
		}
	}
	return events, nil
}

// Run polls on every tick (and wake-up) until ctx is done, handing each
// non-empty batch to sink before the next poll starts.
func (w *Watcher) Run(ctx context.Context, sink EventSink) error {
	w.cycle(ctx, sink)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	wake := w.wake
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.cycle(ctx, sink)
		case _, ok := <-wake:
			if !ok {
				wake = nil
				continue
			}
			w.cycle(ctx, sink)
		}
	}
}

func (w *Watcher) cycle(ctx context.Context, sink EventSink) {
	ctx, span := w.tracer.Start(ctx, "watcher.poll")
	defer span.End()

	events, err := w.Poll(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "poll failed")
		slog.ErrorContext(ctx, "failed to poll task sheet, retrying next interval", "error", err)
		return
	}

	span.SetAttributes(attribute.Int("events", len(events)))
	if len(events) > 0 {
		sink(ctx, events)
	}
}

// index keys rows by task id, dropping blank ids and later duplicates
func index(rows []tasks.Task) (map[string]tasks.Task, []string) {
	byID := make(map[string]tasks.Task, len(rows))
	order := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.ID == "" {
			continue
		}
		if _, dup := byID[row.ID]; dup {
			slog.Warn("duplicate task id in sheet, keeping first row", "task_id", row.ID)
			continue
		}
		byID[row.ID] = row
		order = append(order, row.ID)
	}
	return byID, order
}

// diff emits, in current row order, one created event per new id and one
// updated event per changed cell, followed by deleted events in previous order.
func diff(prev map[string]tasks.Task, prevOrder []string, cur map[string]tasks.Task, curOrder []string, at time.Time) []tasks.ChangeEvent {
	var events []tasks.ChangeEvent

	for _, id := range curOrder {
		row := cur[id]
		old, existed := prev[id]
		if !existed {
			events = append(events, tasks.NewChangeEvent(tasks.EventCreated, row.Clone(), at))
			continue
		}

		for _, f := range tasks.Fields {
			if f == tasks.FieldID {
				continue
			}
			before, after := old.Get(f), row.Get(f)
			if before == after {
				continue
			}
			ev := tasks.NewChangeEvent(tasks.EventUpdated, row.Clone(), at)
			ev.Field = f
			ev.OldValue = before
			ev.NewValue = after
			events = append(events, ev)
		}
	}

	for _, id := range prevOrder {
		if _, still := cur[id]; still {
			continue
		}
		events = append(events, tasks.NewChangeEvent(tasks.EventDeleted, prev[id].Clone(), at))
	}

	return events
}
