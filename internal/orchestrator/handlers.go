package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/slimstrongarm/industrial-iot-stack-sub003/pkg/tasks"
)

// CommandSpec describes a local command run for a category
type CommandSpec struct {
	Command []string // argv; the first element is the program
	Dir     string   // working directory, empty for the current one
	Env     []string // extra KEY=VALUE pairs
}

// CommandHandler runs a local command for each started task. The task is
// exported through TASK_* environment variables; a non-zero exit blocks it.
func CommandHandler(spec CommandSpec) HandlerFunc {
	return func(ctx context.Context, task *tasks.Task) error {
		if len(spec.Command) == 0 {
			return errors.New("no command configured")
		}
		if spec.Dir != "" {
			if _, err := os.Stat(spec.Dir); os.IsNotExist(err) {
				return fmt.Errorf("working directory does not exist: %s", spec.Dir)
			}
		}

		cmd := exec.CommandContext(ctx, spec.Command[0], spec.Command[1:]...)
		cmd.Dir = spec.Dir

		// Own process group so a timeout kills the whole tree
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
		cmd.Cancel = func() error {
			return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		cmd.WaitDelay = 5 * time.Second

		output := OutputFrom(ctx)
		cmd.Stdout = io.MultiWriter(&logWriter{taskID: task.ID, level: slog.LevelInfo}, output)
		cmd.Stderr = io.MultiWriter(&logWriter{taskID: task.ID, level: slog.LevelWarn}, output)

		cmd.Env = append(os.Environ(), spec.Env...)
		cmd.Env = append(cmd.Env, taskEnv(task)...)

		slog.InfoContext(ctx, "starting task command",
			"task_id", task.ID,
			"command", spec.Command[0],
			"dir", spec.Dir)

		if err := cmd.Start(); err != nil {
			return fmt.Errorf("failed to start %s: %w", spec.Command[0], err)
		}

		if err := cmd.Wait(); err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%s stopped: %w", spec.Command[0], ctx.Err())
			}
			return fmt.Errorf("%s exited with error: %w", spec.Command[0], err)
		}

		slog.InfoContext(ctx, "task command exited normally", "task_id", task.ID)
		return nil
	}
}

// LogHandler records the task and succeeds
func LogHandler(ctx context.Context, task *tasks.Task) error {
	slog.InfoContext(ctx, "task noted",
		"task_id", task.ID,
		"category", task.Category,
		"description", task.Description,
		"requested_by", task.RequestedBy)
	fmt.Fprintf(OutputFrom(ctx), "noted: %s\n", task.Description)
	return nil
}

func taskEnv(task *tasks.Task) []string {
	return []string{
		"TASK_ID=" + task.ID,
		"TASK_CATEGORY=" + task.Category,
		"TASK_PRIORITY=" + string(task.Priority),
		"TASK_DESCRIPTION=" + task.Description,
		"TASK_EXPECTED_OUTPUT=" + task.ExpectedOutput,
		"TASK_DEPENDENCIES=" + strings.Join(task.Dependencies, ","),
		"TASK_REQUESTED_BY=" + task.RequestedBy,
	}
}

// logWriter implements io.Writer for structured logging
type logWriter struct {
	taskID string
	level  slog.Level
}

func (w *logWriter) Write(p []byte) (n int, err error) {
	for _, line := range strings.Split(strings.TrimSpace(string(p)), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			slog.Log(context.Background(), w.level, line, "source", "command", "task_id", w.taskID)
		}
	}
	return len(p), nil
}

// Ensure io.Writer interface is implemented
var _ io.Writer = (*logWriter)(nil)
