package orchestrator

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/slimstrongarm/industrial-iot-stack-sub003/pkg/tasks"
)

// FeedKind tells subscribers what a feed entry carries
type FeedKind string

// FeedKind constants
const (
	FeedEvent   FeedKind = "event"
	FeedOutput  FeedKind = "output"
	FeedOutcome FeedKind = "outcome"
)

// FeedEntry is one item of the live feed
type FeedEntry struct {
	Time    time.Time          `json:"time"`
	Kind    FeedKind           `json:"kind"`
	TaskID  string             `json:"task_id,omitempty"`
	Message string             `json:"message,omitempty"`
	Event   *tasks.ChangeEvent `json:"event,omitempty"`
}

// Feed keeps a bounded history of change events and action output and fans
// new entries out to subscribers. Slow subscribers miss entries instead of
// blocking publishers.
type Feed struct {
	buffer      []FeedEntry
	maxSize     int
	subscribers map[chan FeedEntry]struct{}
	mu          sync.RWMutex
}

// NewFeed creates a feed remembering the last maxSize entries
func NewFeed(maxSize int) *Feed {
	if maxSize <= 0 {
		maxSize = 500
	}
	return &Feed{
		buffer:      make([]FeedEntry, 0, maxSize),
		maxSize:     maxSize,
		subscribers: make(map[chan FeedEntry]struct{}),
	}
}

// Publish appends an entry and broadcasts it
func (f *Feed) Publish(entry FeedEntry) {
	if f == nil {
		return
	}
	if entry.Time.IsZero() {
		entry.Time = time.Now()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.buffer) >= f.maxSize {
		f.buffer = f.buffer[1:]
	}
	f.buffer = append(f.buffer, entry)

	for ch := range f.subscribers {
		select {
		case ch <- entry:
		default:
		}
	}
}

// PublishEvent records a detected change
func (f *Feed) PublishEvent(ev tasks.ChangeEvent) {
	f.Publish(FeedEntry{Time: ev.DetectedAt, Kind: FeedEvent, TaskID: ev.TaskID, Event: &ev})
}

// History returns a copy of the buffered entries, oldest first
func (f *Feed) History() []FeedEntry {
	if f == nil {
		return nil
	}
	f.mu.RLock()
	defer f.mu.RUnlock()

	history := make([]FeedEntry, len(f.buffer))
	copy(history, f.buffer)
	return history
}

// Subscribe returns a channel of new entries, the current history and a
// cleanup function that must be called when the subscriber goes away.
func (f *Feed) Subscribe() (<-chan FeedEntry, []FeedEntry, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan FeedEntry, 100)
	f.subscribers[ch] = struct{}{}

	history := make([]FeedEntry, len(f.buffer))
	copy(history, f.buffer)

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.subscribers, ch)
			close(ch)
		})
	}

	return ch, history, cleanup
}

// TaskWriter returns a writer publishing each written line as output of taskID
func (f *Feed) TaskWriter(taskID string) io.Writer {
	return &feedWriter{feed: f, taskID: taskID}
}

type feedWriter struct {
	feed   *Feed
	taskID string
}

func (w *feedWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(string(p), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		w.feed.Publish(FeedEntry{Kind: FeedOutput, TaskID: w.taskID, Message: line})
	}
	return len(p), nil
}

type outputKey struct{}

// WithOutput attaches the writer a handler should copy its output to
func WithOutput(ctx context.Context, w io.Writer) context.Context {
	return context.WithValue(ctx, outputKey{}, w)
}

// OutputFrom returns the writer attached by WithOutput, or io.Discard
func OutputFrom(ctx context.Context) io.Writer {
	if w, ok := ctx.Value(outputKey{}).(io.Writer); ok && w != nil {
		return w
	}
	return io.Discard
}
