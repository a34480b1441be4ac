package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/slimstrongarm/industrial-iot-stack-sub003/internal/orchestrator"
	"github.com/slimstrongarm/industrial-iot-stack-sub003/internal/store"
	"github.com/slimstrongarm/industrial-iot-stack-sub003/pkg/tasks"
)

// ErrInvalidInput marks a request the service refuses to act on
var ErrInvalidInput = errors.New("invalid input")

// Service handles data fetching for the dashboard
type Service struct {
	store       store.Store
	writer      *orchestrator.Writer
	feed        *orchestrator.Feed
	getHandlers func() []string
}

// NewService creates a new dashboard service. feed and getHandlers may be nil.
func NewService(st store.Store, writer *orchestrator.Writer, feed *orchestrator.Feed, getHandlers func() []string) *Service {
	return &Service{
		store:       st,
		writer:      writer,
		feed:        feed,
		getHandlers: getHandlers,
	}
}

// StatusCount is the number of rows in one status
type StatusCount struct {
	Status tasks.Status `json:"status"`
	Count  int          `json:"count"`
}

// Stats holds high-level dashboard statistics
type Stats struct {
	Total              int           `json:"total"`
	Open               int           `json:"open"`
	ByStatus           []StatusCount `json:"by_status"`
	RegisteredHandlers []string      `json:"registered_handlers"`
}

// GetStats counts rows per status. Unknown statuses are listed after the
// known ones so a typo in the sheet stays visible.
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	rows, err := s.store.ListRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query task stats: %w", err)
	}

	counts := make(map[tasks.Status]int)
	stats := &Stats{}
	for _, row := range rows {
		if row.ID == "" {
			continue
		}
		stats.Total++
		counts[row.Status]++
		if row.Status != tasks.StatusComplete {
			stats.Open++
		}
	}

	for _, st := range tasks.Statuses {
		stats.ByStatus = append(stats.ByStatus, StatusCount{Status: st, Count: counts[st]})
		delete(counts, st)
	}
	var unknown []tasks.Status
	for st := range counts {
		unknown = append(unknown, st)
	}
	sort.Slice(unknown, func(i, j int) bool { return unknown[i] < unknown[j] })
	for _, st := range unknown {
		stats.ByStatus = append(stats.ByStatus, StatusCount{Status: st, Count: counts[st]})
	}

	if s.getHandlers != nil {
		stats.RegisteredHandlers = s.getHandlers()
	}
	return stats, nil
}

// Filter narrows ListTasks. Empty fields match everything.
type Filter struct {
	Status tasks.Status
	Owner  string
	Limit  int
}

// ListTasks returns rows in sheet order, newest last
func (s *Service) ListTasks(ctx context.Context, f Filter) ([]tasks.Task, error) {
	rows, err := s.store.ListRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}

	result := make([]tasks.Task, 0, len(rows))
	for _, row := range rows {
		if row.ID == "" {
			continue
		}
		if f.Status != "" && row.Status != f.Status {
			continue
		}
		if f.Owner != "" && !strings.EqualFold(row.Owner, f.Owner) {
			continue
		}
		result = append(result, row)
	}

	if f.Limit > 0 && len(result) > f.Limit {
		result = result[len(result)-f.Limit:]
	}
	return result, nil
}

// GetTask returns one row
func (s *Service) GetTask(ctx context.Context, id string) (tasks.Task, error) {
	rows, err := s.store.ListRows(ctx)
	if err != nil {
		return tasks.Task{}, fmt.Errorf("failed to get task: %w", err)
	}
	for _, row := range rows {
		if strings.EqualFold(row.ID, id) {
			return row, nil
		}
	}
	return tasks.Task{}, fmt.Errorf("%s: %w", id, store.ErrTaskNotFound)
}

// CreateRequest is the body of a task creation
type CreateRequest struct {
	Description    string   `json:"description"`
	Owner          string   `json:"owner,omitempty"`
	Category       string   `json:"category,omitempty"`
	Priority       string   `json:"priority,omitempty"`
	Status         string   `json:"status,omitempty"`
	ExpectedOutput string   `json:"expected_output,omitempty"`
	Dependencies   []string `json:"dependencies,omitempty"`
	RequestedBy    string   `json:"requested_by,omitempty"`
}

// CreateTask appends a row through the task writer
func (s *Service) CreateTask(ctx context.Context, req CreateRequest) (tasks.Task, error) {
	if strings.TrimSpace(req.Description) == "" {
		return tasks.Task{}, fmt.Errorf("description is required: %w", ErrInvalidInput)
	}

	var opts []orchestrator.CreateOption
	if req.Owner != "" {
		opts = append(opts, orchestrator.WithOwner(req.Owner))
	}
	if req.Category != "" {
		opts = append(opts, orchestrator.WithCategory(req.Category))
	}
	if req.Priority != "" {
		p, err := tasks.ParsePriority(req.Priority)
		if err != nil {
			return tasks.Task{}, fmt.Errorf("%v: %w", err, ErrInvalidInput)
		}
		opts = append(opts, orchestrator.WithPriority(p))
	}
	if req.Status != "" {
		st, err := tasks.ParseStatus(req.Status)
		if err != nil || (st != tasks.StatusPending && st != tasks.StatusStart) {
			return tasks.Task{}, fmt.Errorf("initial status must be Pending or Start: %w", ErrInvalidInput)
		}
		opts = append(opts, orchestrator.WithInitialStatus(st))
	}
	if req.ExpectedOutput != "" {
		opts = append(opts, orchestrator.WithExpectedOutput(req.ExpectedOutput))
	}
	if len(req.Dependencies) > 0 {
		opts = append(opts, orchestrator.WithDependencies(req.Dependencies...))
	}
	if req.RequestedBy != "" {
		opts = append(opts, orchestrator.WithRequestedBy(req.RequestedBy))
	}

	return s.writer.Create(ctx, req.Description, opts...)
}

// SetStatus writes a status as a human editing the sheet would
func (s *Service) SetStatus(ctx context.Context, id, value string) (tasks.Task, error) {
	st, err := tasks.ParseStatus(value)
	if err != nil {
		return tasks.Task{}, fmt.Errorf("%v: %w", err, ErrInvalidInput)
	}
	current, err := s.GetTask(ctx, id)
	if err != nil {
		return tasks.Task{}, err
	}
	if err := s.writer.SetStatus(ctx, current.ID, st); err != nil {
		return tasks.Task{}, err
	}
	return s.GetTask(ctx, current.ID)
}

// Assign changes the owner of a task
func (s *Service) Assign(ctx context.Context, id, owner string) (tasks.Task, error) {
	if strings.TrimSpace(owner) == "" {
		return tasks.Task{}, fmt.Errorf("owner is required: %w", ErrInvalidInput)
	}
	current, err := s.GetTask(ctx, id)
	if err != nil {
		return tasks.Task{}, err
	}
	if err := s.writer.Assign(ctx, current.ID, owner); err != nil {
		return tasks.Task{}, err
	}
	return s.GetTask(ctx, current.ID)
}

// Subscribe attaches to the live feed
func (s *Service) Subscribe() (<-chan orchestrator.FeedEntry, []orchestrator.FeedEntry, func(), error) {
	if s.feed == nil {
		return nil, nil, nil, fmt.Errorf("live feed not configured")
	}
	ch, history, cleanup := s.feed.Subscribe()
	return ch, history, cleanup, nil
}

// RecentActivity returns the last n feed entries, newest first
func (s *Service) RecentActivity(n int) []orchestrator.FeedEntry {
	history := s.feed.History()
	if n > 0 && len(history) > n {
		history = history[len(history)-n:]
	}
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}
	return history
}
