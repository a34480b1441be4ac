// Package intake turns chat messages addressed to the bot into task
// operations and answers in the same channel.
package intake

import (
	"regexp"
	"strings"
)

// Kind is the recognized command verb
type Kind int

// Kind constants
const (
	KindUnknown Kind = iota
	KindStatus
	KindAddTask
	KindHelp
)

func (k Kind) String() string {
	switch k {
	case KindStatus:
		return "status"
	case KindAddTask:
		return "add_task"
	case KindHelp:
		return "help"
	}
	return "unknown"
}

// Command is a parsed chat command. Description is only set for KindAddTask.
type Command struct {
	Kind        Kind
	Description string
}

var (
	// Verbs match as substrings: "add tasks: x" and "statuses?" still count.
	addTaskPattern = regexp.MustCompile(`(?is)\b(?:add|create|new)\s+task(?:s\b)?(.*)$`)
	statusPattern  = regexp.MustCompile(`(?i)\b(?:status|list\s+tasks|show\s+tasks|queue)`)
	helpPattern    = regexp.MustCompile(`(?i)\b(?:help|commands|usage)\b`)
)

// Parse classifies free text. Creation is checked first so a description
// may mention other verbs.
func Parse(text string) Command {
	if m := addTaskPattern.FindStringSubmatch(text); m != nil {
		return Command{Kind: KindAddTask, Description: cleanDescription(m[1])}
	}
	if statusPattern.MatchString(text) {
		return Command{Kind: KindStatus}
	}
	if helpPattern.MatchString(text) {
		return Command{Kind: KindHelp}
	}
	return Command{Kind: KindUnknown}
}

func cleanDescription(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, ":-–")
	return strings.TrimSpace(s)
}
