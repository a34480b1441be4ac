package orchestrator

import (
	"time"

	"github.com/slimstrongarm/industrial-iot-stack-sub003/pkg/tasks"
)

// WildcardOwner marks a task any worker may pick up
const WildcardOwner = "Any"

// Config holds the pipeline configuration
type Config struct {
	// Worker identity matched against the owner column
	WorkerID string

	// Watcher
	PollInterval time.Duration // How often to read the sheet (default: 15s)

	// Task creation
	IDPrefix        string         // Literal prefix of task ids (default: CT)
	DefaultOwner    string         // Owner of chat-created tasks (default: Unassigned)
	DefaultCategory string         // Category of chat-created tasks (default: General)
	DefaultPriority tasks.Priority // Priority of chat-created tasks (default: Medium)

	// Shutdown
	ShutdownTimeout time.Duration // Grace period for an in-flight action (default: 30s)
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		WorkerID:        "Worker-A",
		PollInterval:    15 * time.Second,
		IDPrefix:        "CT",
		DefaultOwner:    "Unassigned",
		DefaultCategory: "General",
		DefaultPriority: tasks.PriorityMedium,
		ShutdownTimeout: 30 * time.Second,
	}
}

// ActionConfig holds per-category execution settings
type ActionConfig struct {
	Timeout time.Duration // 0 means no limit
}

// DefaultActionConfig returns an action configuration with sensible defaults
func DefaultActionConfig() ActionConfig {
	return ActionConfig{Timeout: 30 * time.Minute}
}

// CreateOptions holds the optional columns of a new task
type CreateOptions struct {
	Owner          string
	Category       string
	Priority       tasks.Priority
	Status         tasks.Status
	ExpectedOutput string
	Dependencies   []string
	RequestedBy    string
}

// CreateOption is a functional option for creating tasks
type CreateOption func(*CreateOptions)

// WithOwner sets the task owner
func WithOwner(owner string) CreateOption {
	return func(o *CreateOptions) { o.Owner = owner }
}

// WithCategory sets the task category
func WithCategory(category string) CreateOption {
	return func(o *CreateOptions) { o.Category = category }
}

// WithPriority sets the task priority
func WithPriority(priority tasks.Priority) CreateOption {
	return func(o *CreateOptions) { o.Priority = priority }
}

// WithInitialStatus creates the task directly in Start instead of Pending
func WithInitialStatus(status tasks.Status) CreateOption {
	return func(o *CreateOptions) { o.Status = status }
}

// WithExpectedOutput sets the expected output column
func WithExpectedOutput(output string) CreateOption {
	return func(o *CreateOptions) { o.ExpectedOutput = output }
}

// WithDependencies sets the dependency list
func WithDependencies(deps ...string) CreateOption {
	return func(o *CreateOptions) { o.Dependencies = deps }
}

// WithRequestedBy records who asked for the task
func WithRequestedBy(requester string) CreateOption {
	return func(o *CreateOptions) { o.RequestedBy = requester }
}
