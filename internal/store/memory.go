package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/slimstrongarm/industrial-iot-stack-sub003/pkg/tasks"
)

// Memory is an in-process task sheet. Rows keep insertion order.
type Memory struct {
	mu   sync.RWMutex
	rows []tasks.Task
}

// NewMemory creates an empty sheet, optionally seeded with rows
func NewMemory(rows ...tasks.Task) *Memory {
	m := &Memory{}
	for _, row := range rows {
		m.rows = append(m.rows, row.Clone())
	}
	return m
}

// ListRows returns a copy of every row
func (m *Memory) ListRows(ctx context.Context) ([]tasks.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := make([]tasks.Task, len(m.rows))
	for i, row := range m.rows {
		rows[i] = row.Clone()
	}
	return rows, nil
}

// AppendRow adds a row at the end of the sheet
func (m *Memory) AppendRow(ctx context.Context, task tasks.Task) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if task.ID == "" {
		return "", fmt.Errorf("failed to append row: empty task id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.rows = append(m.rows, task.Clone())
	return task.ID, nil
}

// UpdateCell overwrites a single cell
func (m *Memory) UpdateCell(ctx context.Context, taskID string, field tasks.Field, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkWritable(field); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.rows {
		if m.rows[i].ID == taskID {
			return m.rows[i].Set(field, value)
		}
	}
	return fmt.Errorf("%s: %w", taskID, ErrTaskNotFound)
}

// Delete removes a row, mimicking a manual deletion in the sheet
func (m *Memory) Delete(taskID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.rows {
		if m.rows[i].ID == taskID {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return true
		}
	}
	return false
}
