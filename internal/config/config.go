// Package config loads process settings from the environment (and an
// optional .env file) plus the YAML actions file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/slimstrongarm/industrial-iot-stack-sub003/internal/orchestrator"
	"github.com/slimstrongarm/industrial-iot-stack-sub003/internal/store"
	"github.com/slimstrongarm/industrial-iot-stack-sub003/pkg/tasks"
)

// ErrMissing marks a required setting that is not set
var ErrMissing = errors.New("required setting is missing")

// Mode selects which loops a process runs
type Mode string

// Mode constants
const (
	ModeBot    Mode = "bot"
	ModeWorker Mode = "worker"
	ModeAll    Mode = "all"
)

// ParseMode validates a command-line mode
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeBot, ModeWorker, ModeAll:
		return m, nil
	}
	return "", fmt.Errorf("unknown mode %q (want bot, worker or all)", s)
}

// Config is everything a taskrelay process needs
type Config struct {
	Store    store.Options
	Pipeline *orchestrator.Config

	DiscordToken     string
	DiscordChannelID string

	ActionsFile     string
	HTTPPort        string
	NotifyAllFields bool
	OTelStdout      bool
	Debug           bool
}

// Load reads the given env files (default .env) and then the environment.
// Missing env files are fine; real variables win over file values.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				slog.Debug("no env file found", "file", f)
				continue
			}
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	defaults := orchestrator.DefaultConfig()

	priority, err := tasks.ParsePriority(getEnv("DEFAULT_PRIORITY", string(defaults.DefaultPriority)))
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_PRIORITY: %w", err)
	}

	cfg := &Config{
		Store: store.Options{
			Backend:         strings.ToLower(getEnv("STORE_BACKEND", store.BackendSheets)),
			SpreadsheetID:   os.Getenv("SHEETS_SPREADSHEET_ID"),
			SheetTab:        getEnv("SHEETS_TAB", "Tasks"),
			CredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
			DatabaseURL:     os.Getenv("DATABASE_URL"),
		},
		Pipeline: &orchestrator.Config{
			WorkerID:        strings.TrimSpace(os.Getenv("WORKER_ID")),
			PollInterval:    getEnvDuration("POLL_INTERVAL", defaults.PollInterval),
			IDPrefix:        getEnv("TASK_ID_PREFIX", defaults.IDPrefix),
			DefaultOwner:    getEnv("DEFAULT_OWNER", defaults.DefaultOwner),
			DefaultCategory: getEnv("DEFAULT_CATEGORY", defaults.DefaultCategory),
			DefaultPriority: priority,
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", defaults.ShutdownTimeout),
		},
		DiscordToken:     os.Getenv("DISCORD_TOKEN"),
		DiscordChannelID: os.Getenv("DISCORD_CHANNEL_ID"),
		ActionsFile:      os.Getenv("ACTIONS_FILE"),
		HTTPPort:         getEnv("HTTP_PORT", "9090"),
		NotifyAllFields:  getEnvBool("NOTIFY_ALL_FIELDS", false),
		OTelStdout:       getEnvBool("OTEL_STDOUT", false),
		Debug:            getEnvBool("DEBUG", false),
	}
	return cfg, nil
}

// Validate reports every setting mode needs but does not have
func (c *Config) Validate(mode Mode) error {
	var errs []error
	missing := func(key string) {
		errs = append(errs, fmt.Errorf("%s: %w", key, ErrMissing))
	}

	switch c.Store.Backend {
	case store.BackendSheets:
		if c.Store.SpreadsheetID == "" {
			missing("SHEETS_SPREADSHEET_ID")
		}
		if c.Store.CredentialsFile == "" {
			missing("GOOGLE_APPLICATION_CREDENTIALS")
		}
	case store.BackendPostgres:
		if c.Store.DatabaseURL == "" {
			missing("DATABASE_URL")
		}
	case store.BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND: unknown backend %q", c.Store.Backend))
	}

	// Workers post outcomes, bots talk to users; both need the chat
	if c.DiscordToken == "" {
		missing("DISCORD_TOKEN")
	}
	if (mode == ModeWorker || mode == ModeAll) && c.DiscordChannelID == "" {
		missing("DISCORD_CHANNEL_ID")
	}
	if (mode == ModeWorker || mode == ModeAll) && strings.TrimSpace(c.Pipeline.WorkerID) == "" {
		missing("WORKER_ID")
	}
	if c.Pipeline.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("POLL_INTERVAL: must be positive"))
	}

	return errors.Join(errs...)
}

// Action configures the local command run for one category
type Action struct {
	Category string            `yaml:"category"`
	Command  []string          `yaml:"command,omitempty"`
	Shell    string            `yaml:"shell,omitempty"`
	Dir      string            `yaml:"dir,omitempty"`
	Env      map[string]string `yaml:"env,omitempty"`
	Timeout  time.Duration     `yaml:"timeout,omitempty"`
	Builtin  string            `yaml:"builtin,omitempty"`
}

// Argv returns the command line, wrapping Shell in sh -c
func (a Action) Argv() []string {
	if a.Shell != "" {
		return []string{"sh", "-c", a.Shell}
	}
	return a.Command
}

// EnvList returns Env as sorted KEY=VALUE pairs
func (a Action) EnvList() []string {
	keys := make([]string, 0, len(a.Env))
	for k := range a.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+a.Env[k])
	}
	return env
}

// ActionsFile models the actions YAML document
type ActionsFile struct {
	Actions []Action `yaml:"actions"`
}

// LoadActions reads and validates an actions file
func LoadActions(path string) ([]Action, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read actions file: %w", err)
	}
	return ParseActions(data)
}

// ParseActions decodes an actions document
func ParseActions(data []byte) ([]Action, error) {
	var file ActionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse actions file: %w", err)
	}

	seen := make(map[string]bool)
	for i, a := range file.Actions {
		key := strings.ToLower(strings.TrimSpace(a.Category))
		if key == "" {
			return nil, fmt.Errorf("action %d: category is required", i+1)
		}
		if seen[key] {
			return nil, fmt.Errorf("action %d: duplicate category %q", i+1, a.Category)
		}
		seen[key] = true

		if a.Builtin == "" && len(a.Argv()) == 0 {
			return nil, fmt.Errorf("action %q: command, shell or builtin is required", a.Category)
		}
		if a.Builtin != "" && a.Builtin != "log" {
			return nil, fmt.Errorf("action %q: unknown builtin %q", a.Category, a.Builtin)
		}
	}
	return file.Actions, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		slog.Warn("invalid duration, using default", "key", key, "value", value, "default", defaultValue)
	}
	return defaultValue
}
