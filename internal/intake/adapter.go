package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/slimstrongarm/industrial-iot-stack-sub003/internal/chat"
	"github.com/slimstrongarm/industrial-iot-stack-sub003/internal/orchestrator"
	"github.com/slimstrongarm/industrial-iot-stack-sub003/internal/store"
	"github.com/slimstrongarm/industrial-iot-stack-sub003/pkg/tasks"
)

// HelpText is sent for help requests and unrecognized commands
const HelpText = "I understand:\n" +
	"• `add task <description>` (also `create task`, `new task`)\n" +
	"• `status` (also `list tasks`, `show tasks`, `queue`)\n" +
	"• `help`"

const defaultListLimit = 10

// Adapter answers chat messages addressed to the bot
type Adapter struct {
	channel   chat.Channel
	writer    *orchestrator.Writer
	store     store.Store
	commands  *prometheus.CounterVec
	listLimit int
}

// Option customizes an Adapter
type Option func(*Adapter)

// WithRegisterer registers the command counter with reg
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(a *Adapter) { reg.MustRegister(a.commands) }
}

// WithListLimit caps the open tasks listed by the status command
func WithListLimit(n int) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.listLimit = n
		}
	}
}

// New creates an adapter replying through channel
func New(channel chat.Channel, writer *orchestrator.Writer, st store.Store, opts ...Option) *Adapter {
	a := &Adapter{
		channel: channel,
		writer:  writer,
		store:   st,
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskrelay_intake_commands_total",
				Help: "Total number of chat commands handled",
			},
			[]string{"command"},
		),
		listLimit: defaultListLimit,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run handles messages one at a time until ctx is done or the channel closes
func (a *Adapter) Run(ctx context.Context) error {
	slog.Info("intake listening")
	for {
		msg, err := a.channel.Receive(ctx)
		if err != nil {
			if errors.Is(err, chat.ErrClosed) {
				return nil
			}
			return err
		}
		if err := a.HandleMessage(ctx, msg); err != nil {
			slog.Error("failed to reply", "channel_id", msg.ChannelID, "sender", msg.SenderName, "error", err)
		}
	}
}

// HandleMessage runs the command in msg. Messages that do not address the
// bot are ignored. The returned error is a failure to reply.
func (a *Adapter) HandleMessage(ctx context.Context, msg chat.Message) error {
	if !msg.MentionedMe {
		return nil
	}

	cmd := Parse(msg.Text)
	a.commands.WithLabelValues(cmd.Kind.String()).Inc()
	slog.Debug("chat command", "command", cmd.Kind.String(), "sender", msg.SenderName)

	var reply string
	switch cmd.Kind {
	case KindAddTask:
		reply = a.addTask(ctx, msg, cmd.Description)
	case KindStatus:
		reply = a.status(ctx)
	default:
		reply = HelpText
	}

	return a.channel.Send(ctx, msg.ChannelID, reply)
}

func (a *Adapter) addTask(ctx context.Context, msg chat.Message, description string) string {
	if description == "" {
		return "Usage: `add task <description>`"
	}

	requester := msg.SenderName
	if requester == "" {
		requester = msg.SenderID
	}

	task, err := a.writer.Create(ctx, description, orchestrator.WithRequestedBy(requester))
	if err != nil {
		slog.Error("failed to create task from chat", "sender", requester, "error", err)
		return fmt.Sprintf("Could not create task %q: %v. Please retry.", description, err)
	}

	return fmt.Sprintf("Created %s: %s (owner: %s, status: %s)", task.ID, task.Description, task.Owner, task.Status)
}

func (a *Adapter) status(ctx context.Context) string {
	rows, err := a.store.ListRows(ctx)
	if err != nil {
		slog.Error("failed to read task sheet for status", "error", err)
		return fmt.Sprintf("Could not read the task sheet: %v. Please retry.", err)
	}
	return Summarize(rows, a.listLimit)
}

// Summarize renders per-status counts and up to limit open tasks
func Summarize(rows []tasks.Task, limit int) string {
	counts := make(map[tasks.Status]int)
	var open []tasks.Task
	for _, row := range rows {
		if row.ID == "" {
			continue
		}
		counts[row.Status]++
		if row.Status != tasks.StatusComplete {
			open = append(open, row)
		}
	}

	var b strings.Builder
	parts := make([]string, 0, len(tasks.Statuses))
	for _, s := range tasks.Statuses {
		parts = append(parts, fmt.Sprintf("%d %s", counts[s], s))
	}
	fmt.Fprintf(&b, "Tasks: %s", strings.Join(parts, ", "))

	if len(open) == 0 {
		b.WriteString("\nNo open tasks.")
		return b.String()
	}
	for i, t := range open {
		if i == limit {
			fmt.Fprintf(&b, "\n… and %d more", len(open)-limit)
			break
		}
		fmt.Fprintf(&b, "\n%s [%s] %s: %s (%s)", t.ID, t.Priority, t.Status, t.Description, t.Owner)
	}
	return b.String()
}
