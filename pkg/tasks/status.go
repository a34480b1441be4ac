package tasks

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a task
type Status string

// Status constants
const (
	StatusPending    Status = "Pending"
	StatusStart      Status = "Start"
	StatusInProgress Status = "In Progress"
	StatusComplete   Status = "Complete"
	StatusBlocked    Status = "Blocked"
)

// Statuses lists every known status in lifecycle order
var Statuses = []Status{StatusPending, StatusStart, StatusInProgress, StatusComplete, StatusBlocked}

// transitions is the common-path graph. Blocked is reachable from every
// non-terminal state and is added in CanTransition.
var transitions = map[Status]map[Status]struct{}{
	StatusPending: {
		StatusStart: {},
	},
	StatusStart: {
		StatusInProgress: {},
	},
	StatusInProgress: {
		StatusComplete: {},
	},
	StatusBlocked: {
		StatusPending:    {},
		StatusInProgress: {},
	},
}

// ParseStatus resolves a status cell, ignoring case and separators
func ParseStatus(value string) (Status, error) {
	key := normalize(value)
	for _, s := range Statuses {
		if normalize(string(s)) == key {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown status: %q", value)
}

// IsTerminal reports whether no transition leaves the status
func IsTerminal(s Status) bool {
	return s == StatusComplete
}

// IsKnown reports whether the status is one of the defined states
func IsKnown(s Status) bool {
	for _, candidate := range Statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// CanTransition reports whether from -> to is a legal move. The store itself
// accepts any write; only the worker consults this before its own updates.
func CanTransition(from, to Status) bool {
	if !IsKnown(from) || !IsKnown(to) {
		return false
	}
	if to == StatusBlocked {
		return from != StatusBlocked && !IsTerminal(from)
	}
	_, ok := transitions[from][to]
	return ok
}

// Priority is the urgency of a task
type Priority string

// Priority constants
const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// ParsePriority resolves a priority cell, ignoring case
func ParsePriority(value string) (Priority, error) {
	switch normalize(value) {
	case "high":
		return PriorityHigh, nil
	case "medium", "med":
		return PriorityMedium, nil
	case "low":
		return PriorityLow, nil
	}
	return "", fmt.Errorf("unknown priority: %q", value)
}

func normalize(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(value)
}
