// Package notify posts human-readable summaries of sheet changes and
// worker outcomes to the chat channel. Delivery is best effort.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/slimstrongarm/industrial-iot-stack-sub003/internal/chat"
	"github.com/slimstrongarm/industrial-iot-stack-sub003/pkg/tasks"
)

// Outcome summarizes a finished local action
type Outcome struct {
	TaskID   string
	Worker   string
	Category string
	Status   tasks.Status
	Duration time.Duration
	Err      error
}

// Notifier formats events and sends them to one channel
type Notifier struct {
	sender    chat.Sender
	channelID string
	allFields bool
	onFailure func()
}

// Option customizes a Notifier
type Option func(*Notifier)

// WithAllFields announces every changed cell, not just status and owner
func WithAllFields(all bool) Option {
	return func(n *Notifier) { n.allFields = all }
}

// WithFailureHook is called once per message that could not be delivered
func WithFailureHook(hook func()) Option {
	return func(n *Notifier) { n.onFailure = hook }
}

// New creates a notifier. A nil sender or empty channel only logs.
func New(sender chat.Sender, channelID string, opts ...Option) *Notifier {
	n := &Notifier{sender: sender, channelID: channelID}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify sends text. Errors are logged and swallowed; nothing is retried.
func (n *Notifier) Notify(ctx context.Context, text string) {
	if n == nil || text == "" {
		return
	}
	if n.sender == nil || n.channelID == "" {
		slog.Info("notification", "text", text)
		return
	}
	if err := n.sender.Send(ctx, n.channelID, text); err != nil {
		slog.Error("failed to send notification", "channel_id", n.channelID, "error", err)
		if n.onFailure != nil {
			n.onFailure()
		}
	}
}

// NotifyEvent announces a sheet change if it is worth announcing
func (n *Notifier) NotifyEvent(ctx context.Context, ev tasks.ChangeEvent) {
	if n == nil {
		return
	}
	if text := n.FormatEvent(ev); text != "" {
		n.Notify(ctx, text)
	}
}

// NotifyOutcome announces a finished action
func (n *Notifier) NotifyOutcome(ctx context.Context, out Outcome) {
	if n == nil {
		return
	}
	n.Notify(ctx, FormatOutcome(out))
}

// FormatEvent renders an event, or "" when the event is filtered out
func (n *Notifier) FormatEvent(ev tasks.ChangeEvent) string {
	switch ev.Type {
	case tasks.EventCreated:
		return fmt.Sprintf("New task %s [%s] %s (owner: %s, status: %s)",
			ev.TaskID, orDash(string(ev.Task.Priority)), ev.Task.Description,
			orDash(ev.Task.Owner), orDash(string(ev.Task.Status)))
	case tasks.EventDeleted:
		return fmt.Sprintf("Task %s was removed from the sheet", ev.TaskID)
	case tasks.EventUpdated:
		if !n.allFields && ev.Field != tasks.FieldStatus && ev.Field != tasks.FieldOwner {
			return ""
		}
		return fmt.Sprintf("%s %s: %s → %s", ev.TaskID, ev.Field, orDash(ev.OldValue), orDash(ev.NewValue))
	}
	return ""
}

// FormatOutcome renders an action result
func FormatOutcome(out Outcome) string {
	switch {
	case out.Status == tasks.StatusComplete:
		return fmt.Sprintf("%s completed by %s in %s", out.TaskID, out.Worker, out.Duration.Round(time.Second))
	case out.Err != nil:
		return fmt.Sprintf("%s blocked on %s: %s", out.TaskID, out.Worker, firstLine(out.Err.Error()))
	}
	return fmt.Sprintf("%s is now %s (%s)", out.TaskID, out.Status, out.Worker)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func firstLine(s string) string {
	if line, _, found := strings.Cut(s, "\n"); found {
		return line
	}
	return s
}
