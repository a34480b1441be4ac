package tasks

import (
	"time"

	"github.com/google/uuid"
)

// EventType describes what happened to a row between two polls
type EventType string

// EventType constants
const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
)

// ChangeEvent is a single detected change in the task sheet. Updated events
// carry one field each; Task is the row as seen in the poll that detected it.
type ChangeEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	TaskID     string    `json:"task_id"`
	Field      Field     `json:"field,omitempty"`
	OldValue   string    `json:"old_value,omitempty"`
	NewValue   string    `json:"new_value,omitempty"`
	Task       Task      `json:"task"`
	DetectedAt time.Time `json:"detected_at"`
}

// NewChangeEvent stamps a fresh event id
func NewChangeEvent(typ EventType, task Task, detectedAt time.Time) ChangeEvent {
	return ChangeEvent{
		ID:         uuid.NewString(),
		Type:       typ,
		TaskID:     task.ID,
		Task:       task,
		DetectedAt: detectedAt,
	}
}

// NewStatus returns the status the event moves the task to, if any
func (e ChangeEvent) NewStatus() (Status, bool) {
	switch {
	case e.Type == EventCreated:
		return e.Task.Status, true
	case e.Type == EventUpdated && e.Field == FieldStatus:
		if s, err := ParseStatus(e.NewValue); err == nil {
			return s, true
		}
		return Status(e.NewValue), true
	}
	return "", false
}
