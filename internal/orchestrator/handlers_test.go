package orchestrator

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/slimstrongarm/industrial-iot-stack-sub003/pkg/tasks"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestCommandHandlerExportsTask(t *testing.T) {
	requireShell(t)

	feed := NewFeed(10)
	ctx := WithOutput(context.Background(), feed.TaskWriter("CT-048"))
	handler := CommandHandler(CommandSpec{
		Command: []string{"sh", "-c", `echo "$TASK_ID|$TASK_CATEGORY|$TASK_DESCRIPTION|$EXTRA"`},
		Env:     []string{"EXTRA=yes"},
	})

	task := &tasks.Task{ID: "CT-048", Category: "General", Description: "Fix sensor wiring"}
	if err := handler(ctx, task); err != nil {
		t.Fatalf("handler: %v", err)
	}

	history := feed.History()
	if len(history) != 1 || history[0].Message != "CT-048|General|Fix sensor wiring|yes" {
		t.Fatalf("unexpected output: %+v", history)
	}
}

func TestCommandHandlerFailure(t *testing.T) {
	requireShell(t)

	handler := CommandHandler(CommandSpec{Command: []string{"sh", "-c", "echo broken >&2; exit 3"}})
	err := handler(context.Background(), &tasks.Task{ID: "CT-001"})
	if err == nil || !strings.Contains(err.Error(), "exited with error") {
		t.Fatalf("expected exit error, got %v", err)
	}
}

func TestCommandHandlerTimeout(t *testing.T) {
	requireShell(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	handler := CommandHandler(CommandSpec{Command: []string{"sh", "-c", "sleep 5"}})
	start := time.Now()
	err := handler(ctx, &tasks.Task{ID: "CT-001"})
	if err == nil || !strings.Contains(err.Error(), "stopped") {
		t.Fatalf("expected stop error, got %v", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Errorf("command was not killed promptly")
	}
}

func TestCommandHandlerValidation(t *testing.T) {
	if err := CommandHandler(CommandSpec{})(context.Background(), &tasks.Task{}); err == nil {
		t.Error("expected error for empty command")
	}
	spec := CommandSpec{Command: []string{"true"}, Dir: "/definitely/not/here"}
	if err := CommandHandler(spec)(context.Background(), &tasks.Task{}); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestLogHandler(t *testing.T) {
	feed := NewFeed(10)
	ctx := WithOutput(context.Background(), feed.TaskWriter("CT-007"))
	if err := LogHandler(ctx, &tasks.Task{ID: "CT-007", Description: "check pump"}); err != nil {
		t.Fatalf("LogHandler: %v", err)
	}
	if h := feed.History(); len(h) != 1 || h[0].Message != "noted: check pump" {
		t.Errorf("unexpected output: %+v", h)
	}
}
