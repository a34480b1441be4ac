package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/slimstrongarm/industrial-iot-stack-sub003/internal/notify"
	"github.com/slimstrongarm/industrial-iot-stack-sub003/internal/store"
	"github.com/slimstrongarm/industrial-iot-stack-sub003/pkg/tasks"
)

// HandlerFunc is the function signature for local actions
type HandlerFunc func(ctx context.Context, task *tasks.Task) error

// Notifier receives sheet changes and action outcomes
type Notifier interface {
	NotifyEvent(ctx context.Context, ev tasks.ChangeEvent)
	NotifyOutcome(ctx context.Context, out notify.Outcome)
}

// Result is the dispatch decision for one event
type Result string

// Result constants
const (
	ResultSkipped     Result = "skipped"      // not a Start event for this worker
	ResultIgnored     Result = "ignored"      // no handler for the category
	ResultClaimFailed Result = "claim_failed" // could not write In Progress
	ResultCompleted   Result = "completed"
	ResultBlocked     Result = "blocked"
)

// Server watches the sheet and runs local actions for tasks started for
// this worker. Events are handled one at a time in detection order.
type Server struct {
	store    store.Store
	config   *Config
	writer   *Writer
	watcher  *Watcher
	handlers map[string]HandlerFunc
	configs  map[string]ActionConfig
	notifier Notifier
	announce bool
	metrics  *Metrics
	feed     *Feed
	tracer   trace.Tracer

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// ServerOption customizes a Server
type ServerOption func(*Server)

// WithNotifier reports action outcomes, and sheet changes when announce is set
func WithNotifier(n Notifier, announce bool) ServerOption {
	return func(s *Server) {
		s.notifier = n
		s.announce = announce
	}
}

// WithMetrics records dispatch and watcher metrics
func WithMetrics(m *Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithFeed publishes events and action output to a live feed
func WithFeed(f *Feed) ServerOption {
	return func(s *Server) { s.feed = f }
}

// WithWake polls immediately whenever ch fires
func WithWake(ch <-chan struct{}) ServerOption {
	return func(s *Server) { s.watcher.WakeOn(ch) }
}

// NewServer creates a dispatcher over st
func NewServer(st store.Store, config *Config, opts ...ServerOption) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	s := &Server{
		store:    st,
		config:   config,
		writer:   NewWriter(st, config),
		watcher:  NewWatcher(st, config.PollInterval, nil),
		handlers: make(map[string]HandlerFunc),
		configs:  make(map[string]ActionConfig),
		tracer:   otel.Tracer(instrumentationName),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.watcher.metrics = s.metrics
	s.writer.metrics = s.metrics
	return s
}

// HandleFunc registers the local action for a category
func (s *Server) HandleFunc(category string, handler HandlerFunc, actionConfig ...ActionConfig) {
	key := categoryKey(category)
	s.handlers[key] = handler

	config := DefaultActionConfig()
	if len(actionConfig) > 0 {
		config = actionConfig[0]
	}
	s.configs[key] = config

	slog.Info("handler registered", "category", key, "timeout", config.Timeout)
}

// GetHandlers returns the registered categories, sorted
func (s *Server) GetHandlers() []string {
	categories := make([]string, 0, len(s.handlers))
	for k := range s.handlers {
		categories = append(categories, k)
	}
	sort.Strings(categories)
	return categories
}

// Writer returns the task writer bound to the server's store
func (s *Server) Writer() *Writer {
	return s.writer
}

// Watcher returns the server's change watcher
func (s *Server) Watcher() *Watcher {
	return s.watcher
}

// Start runs the watch loop until ctx is cancelled or Shutdown is called
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()
	defer close(s.done)

	slog.Info("dispatcher started",
		"worker_id", s.config.WorkerID,
		"poll_interval", s.config.PollInterval,
		"categories", s.GetHandlers())

	err := s.watcher.Run(ctx, s.handleEvents)
	slog.Info("dispatcher stopping")
	return err
}

// handleEvents is the watcher sink: publish, announce, then dispatch. A row
// is dispatched at most once per batch, so a status and an owner edit seen in
// the same poll run the action once.
func (s *Server) handleEvents(ctx context.Context, events []tasks.ChangeEvent) {
	dispatched := make(map[string]bool)
	for _, ev := range events {
		slog.DebugContext(ctx, "change detected",
			"task_id", ev.TaskID,
			"type", ev.Type,
			"field", ev.Field,
			"old", ev.OldValue,
			"new", ev.NewValue)

		s.feed.PublishEvent(ev)
		if s.announce && s.notifier != nil {
			s.notifier.NotifyEvent(ctx, ev)
		}
		if dispatched[ev.TaskID] {
			continue
		}
		if result := s.Dispatch(ctx, ev); result != ResultSkipped {
			dispatched[ev.TaskID] = true
		}
	}
}

// Dispatch runs the local action for ev if ev left a task owned by this
// worker in Start. The action runs to completion even if ctx is cancelled.
func (s *Server) Dispatch(ctx context.Context, ev tasks.ChangeEvent) Result {
	if !startsTask(ev) {
		return ResultSkipped
	}
	task := ev.Task.Clone()
	if !s.ownsTask(task.Owner) {
		slog.DebugContext(ctx, "task started for another worker", "task_id", task.ID, "owner", task.Owner)
		return ResultSkipped
	}

	key := categoryKey(task.Category)
	handler, exists := s.handlers[key]
	if !exists {
		slog.DebugContext(ctx, "no handler for category", "task_id", task.ID, "category", task.Category)
		s.countDispatch(key, ResultIgnored)
		return ResultIgnored
	}

	ctx = context.WithoutCancel(ctx)

	if err := s.writer.SetStatus(ctx, task.ID, tasks.StatusInProgress); err != nil {
		slog.ErrorContext(ctx, "failed to claim task", "task_id", task.ID, "error", err)
		s.countDispatch(key, ResultClaimFailed)
		return ResultClaimFailed
	}
	task.Status = tasks.StatusInProgress
	slog.InfoContext(ctx, "task claimed", "task_id", task.ID, "category", key, "worker_id", s.config.WorkerID)

	start := time.Now()
	err := s.runAction(ctx, key, handler, &task)
	elapsed := time.Since(start)

	result, final := ResultCompleted, tasks.StatusComplete
	if err != nil {
		result, final = ResultBlocked, tasks.StatusBlocked
		slog.ErrorContext(ctx, "task action failed", "task_id", task.ID, "category", key, "error", err)
	} else {
		slog.InfoContext(ctx, "task action completed", "task_id", task.ID, "category", key, "duration", elapsed)
	}

	if werr := s.writer.SetStatus(ctx, task.ID, final); werr != nil {
		slog.ErrorContext(ctx, "failed to record task result", "task_id", task.ID, "status", final, "error", werr)
	}
	s.countDispatch(key, result)

	s.feed.Publish(FeedEntry{Kind: FeedOutcome, TaskID: task.ID, Message: string(final)})
	if s.notifier != nil {
		s.notifier.NotifyOutcome(ctx, notify.Outcome{
			TaskID:   task.ID,
			Worker:   s.config.WorkerID,
			Category: key,
			Status:   final,
			Duration: elapsed,
			Err:      err,
		})
	}
	return result
}

// startsTask reports whether ev puts a row into Start: a status edit to
// Start, a row created in Start, or an owner edit on a row already in Start.
func startsTask(ev tasks.ChangeEvent) bool {
	if ev.Type == tasks.EventUpdated && ev.Field == tasks.FieldOwner {
		return ev.Task.Status == tasks.StatusStart
	}
	status, ok := ev.NewStatus()
	return ok && status == tasks.StatusStart
}

// runAction invokes a handler under its timeout inside a span
func (s *Server) runAction(ctx context.Context, category string, handler HandlerFunc, task *tasks.Task) (err error) {
	if timeout := s.configs[category].Timeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ctx, span := s.tracer.Start(ctx, "dispatch.action", trace.WithAttributes(
		attribute.String("task.id", task.ID),
		attribute.String("task.category", category),
		attribute.String("worker.id", s.config.WorkerID),
	))
	defer span.End()

	ctx = WithOutput(ctx, s.feed.TaskWriter(task.ID))
	slog.DebugContext(ctx, "running task action", "task_id", task.ID, "category", category)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "action failed")
		}
	}()

	return s.withMetrics(category, handler)(ctx, task)
}

// withMetrics wraps a handler with duration metrics
func (s *Server) withMetrics(category string, handler HandlerFunc) HandlerFunc {
	return func(ctx context.Context, task *tasks.Task) error {
		if s.metrics == nil {
			return handler(ctx, task)
		}
		start := time.Now()
		defer func() {
			s.metrics.actionDuration.WithLabelValues(category).Observe(time.Since(start).Seconds())
		}()
		return handler(ctx, task)
	}
}

func (s *Server) countDispatch(category string, result Result) {
	if s.metrics != nil {
		s.metrics.dispatched.WithLabelValues(category, string(result)).Inc()
	}
}

// ownsTask reports whether owner names this worker or any worker
func (s *Server) ownsTask(owner string) bool {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return false
	}
	return strings.EqualFold(owner, s.config.WorkerID) ||
		strings.EqualFold(owner, WildcardOwner) ||
		owner == "*"
}

func categoryKey(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}

// Shutdown stops polling and waits for the in-flight action, if any
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("initiating graceful shutdown", "worker_id", s.config.WorkerID)

	s.mu.Lock()
	started := s.started
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	if !started {
		return nil
	}

	select {
	case <-s.done:
		slog.Info("dispatcher stopped gracefully")
		return nil
	case <-ctx.Done():
		slog.Warn("shutdown timeout exceeded, in-flight action abandoned")
		return ctx.Err()
	}
}
