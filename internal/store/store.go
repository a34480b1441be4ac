// Package store holds the shared task sheet backends.
//
// Every backend is a plain row store: no locks, no transactions, no version
// tokens. Two processes writing the same cell race and the last write wins.
// Volume is low enough that this is accepted, but callers must not assume
// a read reflects their own write if another process touched the same cell.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/slimstrongarm/industrial-iot-stack-sub003/pkg/tasks"
)

var (
	// ErrTaskNotFound is returned when no row carries the requested task id
	ErrTaskNotFound = errors.New("task not found")
	// ErrReadOnlyField is returned when a caller tries to rewrite task_id
	ErrReadOnlyField = errors.New("field is read-only")
)

// Store is the shared task sheet
type Store interface {
	// ListRows returns every row in sheet order
	ListRows(ctx context.Context) ([]tasks.Task, error)
	// AppendRow adds a row and returns its task id
	AppendRow(ctx context.Context, task tasks.Task) (string, error)
	// UpdateCell overwrites one cell of the row with the given task id
	UpdateCell(ctx context.Context, taskID string, field tasks.Field, value string) error
}

// Backend names accepted by Open
const (
	BackendMemory   = "memory"
	BackendSheets   = "sheets"
	BackendPostgres = "postgres"
)

// Options selects and configures a backend
type Options struct {
	Backend string

	// Sheets
	SpreadsheetID   string
	SheetTab        string
	CredentialsFile string

	// Postgres
	DatabaseURL string
}

// Open builds the backend named in opts. The returned close func is never nil.
func Open(ctx context.Context, opts Options) (Store, func() error, error) {
	noop := func() error { return nil }

	switch opts.Backend {
	case BackendMemory, "":
		return NewMemory(), noop, nil
	case BackendSheets:
		s, err := NewSheets(ctx, opts.SpreadsheetID, opts.SheetTab, opts.CredentialsFile)
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil
	case BackendPostgres:
		p, err := OpenPostgres(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, noop, err
		}
		return p, p.Close, nil
	}
	return nil, noop, fmt.Errorf("unknown store backend: %q", opts.Backend)
}

func checkWritable(field tasks.Field) error {
	if field == tasks.FieldID {
		return fmt.Errorf("%s: %w", field, ErrReadOnlyField)
	}
	if field.Column() < 0 {
		return fmt.Errorf("unknown field: %q", field)
	}
	return nil
}
