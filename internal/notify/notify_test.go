package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/slimstrongarm/industrial-iot-stack-sub003/pkg/tasks"
)

type recordingSender struct {
	sent []string
	err  error
}

func (r *recordingSender) Send(_ context.Context, channelID, text string) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, channelID+": "+text)
	return nil
}

func TestFormatEvent(t *testing.T) {
	n := New(nil, "")
	task := tasks.Task{ID: "CT-048", Priority: tasks.PriorityMedium, Status: tasks.StatusPending, Description: "Fix sensor wiring"}

	created := tasks.NewChangeEvent(tasks.EventCreated, task, time.Now())
	if got := n.FormatEvent(created); got != "New task CT-048 [Medium] Fix sensor wiring (owner: -, status: Pending)" {
		t.Errorf("unexpected created text: %q", got)
	}

	status := tasks.NewChangeEvent(tasks.EventUpdated, task, time.Now())
	status.Field, status.OldValue, status.NewValue = tasks.FieldStatus, "Pending", "Start"
	if got := n.FormatEvent(status); got != "CT-048 status: Pending → Start" {
		t.Errorf("unexpected status text: %q", got)
	}

	desc := tasks.NewChangeEvent(tasks.EventUpdated, task, time.Now())
	desc.Field, desc.OldValue, desc.NewValue = tasks.FieldDescription, "a", "b"
	if got := n.FormatEvent(desc); got != "" {
		t.Errorf("expected description change to be filtered, got %q", got)
	}

	all := New(nil, "", WithAllFields(true))
	if got := all.FormatEvent(desc); got == "" {
		t.Error("expected description change with all fields enabled")
	}
}

func TestFormatOutcome(t *testing.T) {
	done := FormatOutcome(Outcome{TaskID: "CT-048", Worker: "Worker-A", Status: tasks.StatusComplete, Duration: 3200 * time.Millisecond})
	if done != "CT-048 completed by Worker-A in 3s" {
		t.Errorf("unexpected text: %q", done)
	}

	blocked := FormatOutcome(Outcome{TaskID: "CT-048", Worker: "Worker-A", Status: tasks.StatusBlocked, Err: errors.New("exit status 1\nstack")})
	if blocked != "CT-048 blocked on Worker-A: exit status 1" {
		t.Errorf("unexpected text: %q", blocked)
	}
}

func TestNotifySendsToChannel(t *testing.T) {
	sender := &recordingSender{}
	n := New(sender, "ops")
	n.Notify(context.Background(), "hello")
	if len(sender.sent) != 1 || sender.sent[0] != "ops: hello" {
		t.Fatalf("unexpected sends: %v", sender.sent)
	}
}

func TestNotifyFailureIsSwallowed(t *testing.T) {
	failures := 0
	n := New(&recordingSender{err: errors.New("rate limited")}, "ops", WithFailureHook(func() { failures++ }))
	n.Notify(context.Background(), "hello")
	n.Notify(context.Background(), "again")
	if failures != 2 {
		t.Errorf("expected 2 failures counted, got %d", failures)
	}
}

func TestNilNotifierIsSafe(t *testing.T) {
	var n *Notifier
	n.Notify(context.Background(), "hello")
	n.NotifyOutcome(context.Background(), Outcome{TaskID: "CT-001"})
	n.NotifyEvent(context.Background(), tasks.ChangeEvent{})
}
