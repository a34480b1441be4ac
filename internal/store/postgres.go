package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/slimstrongarm/industrial-iot-stack-sub003/pkg/tasks"
)

//go:embed schema.sql
var schemaSQL string

// NotifyChannel is the LISTEN/NOTIFY channel raised on every row change
const NotifyChannel = "task_sheet_changed"

// Postgres keeps the task sheet in a single text-only table
type Postgres struct {
	db  *sql.DB
	dsn string
}

// OpenPostgres connects, pings, and applies the embedded schema
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, fmt.Errorf("failed to open postgres store: empty DATABASE_URL")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	p := &Postgres{db: db, dsn: dsn}
	if err := p.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

// Migrate applies the embedded schema. It is safe to run repeatedly.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute migration: %w", err)
	}
	slog.Info("database migrations completed")
	return nil
}

// Close releases the connection pool
func (p *Postgres) Close() error {
	return p.db.Close()
}

func columnList() string {
	cols := make([]string, len(tasks.Fields))
	for i, f := range tasks.Fields {
		cols[i] = pq.QuoteIdentifier(string(f))
	}
	return strings.Join(cols, ", ")
}

// ListRows returns every row ordered by insertion
func (p *Postgres) ListRows(ctx context.Context) ([]tasks.Task, error) {
	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM task_sheet
		ORDER BY row_num ASC
	`, columnList()))
	if err != nil {
		return nil, fmt.Errorf("failed to list rows: %w", err)
	}
	defer rows.Close()

	var taskList []tasks.Task
	for rows.Next() {
		cells := make([]string, len(tasks.Fields))
		dest := make([]any, len(cells))
		for i := range cells {
			dest[i] = &cells[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		taskList = append(taskList, tasks.FromRow(cells))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list rows: %w", err)
	}
	return taskList, nil
}

// AppendRow inserts a row at the end of the sheet
func (p *Postgres) AppendRow(ctx context.Context, task tasks.Task) (string, error) {
	if task.ID == "" {
		return "", fmt.Errorf("failed to append row: empty task id")
	}

	cells := task.Row()
	args := make([]any, len(cells))
	placeholders := make([]string, len(cells))
	for i, cell := range cells {
		args[i] = cell
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	var id string
	err := p.db.QueryRowContext(ctx, fmt.Sprintf(`
		INSERT INTO task_sheet (%s)
		VALUES (%s)
		RETURNING task_id
	`, columnList(), strings.Join(placeholders, ", ")), args...).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to append row: %w", err)
	}
	return id, nil
}

// UpdateCell overwrites one column for every row carrying the task id
func (p *Postgres) UpdateCell(ctx context.Context, taskID string, field tasks.Field, value string) error {
	if err := checkWritable(field); err != nil {
		return err
	}

	result, err := p.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE task_sheet
		SET %s = $1
		WHERE task_id = $2
	`, pq.QuoteIdentifier(string(field))), value, taskID)
	if err != nil {
		return fmt.Errorf("failed to update %s of %s: %w", field, taskID, err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%s: %w", taskID, ErrTaskNotFound)
	}
	return nil
}

// Listen subscribes to row-change notifications. The returned channel gets a
// value (coalesced) whenever any row changes, and also after a reconnect since
// notifications may have been missed. It closes when ctx is done.
func (p *Postgres) Listen(ctx context.Context) (<-chan struct{}, error) {
	reportProblem := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			slog.Error("listener error", "event", ev, "error", err)
		}
	}

	listener := pq.NewListener(p.dsn, 10*time.Second, time.Minute, reportProblem)
	if err := listener.Listen(NotifyChannel); err != nil {
		listener.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", NotifyChannel, err)
	}

	wake := make(chan struct{}, 1)
	go func() {
		defer close(wake)
		defer listener.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case n := <-listener.Notify:
				if n != nil {
					slog.Debug("received notification", "task_id", n.Extra)
				}
				select {
				case wake <- struct{}{}:
				default:
				}
			case <-time.After(90 * time.Second):
				go listener.Ping()
			}
		}
	}()

	return wake, nil
}
