package tasks

import (
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the cell format used for created_at and completed_at
const TimeLayout = time.RFC3339

// Task represents one row in the shared task sheet
type Task struct {
	ID             string     `json:"task_id"`
	Owner          string     `json:"owner"`
	Category       string     `json:"category"`
	Priority       Priority   `json:"priority"`
	Status         Status     `json:"status"`
	Description    string     `json:"description"`
	ExpectedOutput string     `json:"expected_output,omitempty"`
	Dependencies   []string   `json:"dependencies,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	RequestedBy    string     `json:"requested_by,omitempty"`

	// raw keeps timestamp cells that did not parse so the cell view can
	// report exactly what a human typed.
	raw map[Field]string
}

// Field names a column of the task sheet
type Field string

// Field constants, in sheet column order
const (
	FieldID             Field = "task_id"
	FieldOwner          Field = "owner"
	FieldCategory       Field = "category"
	FieldPriority       Field = "priority"
	FieldStatus         Field = "status"
	FieldDescription    Field = "description"
	FieldExpectedOutput Field = "expected_output"
	FieldDependencies   Field = "dependencies"
	FieldCreatedAt      Field = "created_at"
	FieldCompletedAt    Field = "completed_at"
	FieldRequestedBy    Field = "requested_by"
)

// Fields lists every column in sheet order
var Fields = []Field{
	FieldID,
	FieldOwner,
	FieldCategory,
	FieldPriority,
	FieldStatus,
	FieldDescription,
	FieldExpectedOutput,
	FieldDependencies,
	FieldCreatedAt,
	FieldCompletedAt,
	FieldRequestedBy,
}

// ParseField resolves a column name
func ParseField(name string) (Field, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, f := range Fields {
		if string(f) == name {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown field: %q", name)
}

// Column returns the zero-based column index of the field
func (f Field) Column() int {
	for i, candidate := range Fields {
		if candidate == f {
			return i
		}
	}
	return -1
}

// Get returns the cell value of a field
func (t *Task) Get(f Field) string {
	if v, ok := t.raw[f]; ok {
		return v
	}
	switch f {
	case FieldID:
		return t.ID
	case FieldOwner:
		return t.Owner
	case FieldCategory:
		return t.Category
	case FieldPriority:
		return string(t.Priority)
	case FieldStatus:
		return string(t.Status)
	case FieldDescription:
		return t.Description
	case FieldExpectedOutput:
		return t.ExpectedOutput
	case FieldDependencies:
		return strings.Join(t.Dependencies, ", ")
	case FieldCreatedAt:
		if t.CreatedAt.IsZero() {
			return ""
		}
		return t.CreatedAt.UTC().Format(TimeLayout)
	case FieldCompletedAt:
		if t.CompletedAt == nil {
			return ""
		}
		return t.CompletedAt.UTC().Format(TimeLayout)
	case FieldRequestedBy:
		return t.RequestedBy
	}
	return ""
}

// Set assigns a cell value to a field. Status and priority cells keep
// whatever text was written; unknown values stay visible to the watcher.
func (t *Task) Set(f Field, value string) error {
	value = strings.TrimSpace(value)
	delete(t.raw, f)

	switch f {
	case FieldID:
		t.ID = value
	case FieldOwner:
		t.Owner = value
	case FieldCategory:
		t.Category = value
	case FieldPriority:
		if p, err := ParsePriority(value); err == nil {
			t.Priority = p
		} else {
			t.Priority = Priority(value)
		}
	case FieldStatus:
		if s, err := ParseStatus(value); err == nil {
			t.Status = s
		} else {
			t.Status = Status(value)
		}
	case FieldDescription:
		t.Description = value
	case FieldExpectedOutput:
		t.ExpectedOutput = value
	case FieldDependencies:
		t.Dependencies = SplitDependencies(value)
	case FieldCreatedAt:
		t.CreatedAt = time.Time{}
		if value == "" {
			return nil
		}
		ts, err := time.Parse(TimeLayout, value)
		if err != nil {
			t.setRaw(f, value)
			return nil
		}
		t.CreatedAt = ts.UTC()
	case FieldCompletedAt:
		t.CompletedAt = nil
		if value == "" {
			return nil
		}
		ts, err := time.Parse(TimeLayout, value)
		if err != nil {
			t.setRaw(f, value)
			return nil
		}
		ts = ts.UTC()
		t.CompletedAt = &ts
	case FieldRequestedBy:
		t.RequestedBy = value
	default:
		return fmt.Errorf("unknown field: %q", f)
	}
	return nil
}

func (t *Task) setRaw(f Field, value string) {
	if t.raw == nil {
		t.raw = make(map[Field]string)
	}
	t.raw[f] = value
}

// Row returns the cell values in sheet column order
func (t *Task) Row() []string {
	row := make([]string, len(Fields))
	for i, f := range Fields {
		row[i] = t.Get(f)
	}
	return row
}

// FromRow builds a task from cell values in sheet column order.
// Missing trailing cells are treated as empty.
func FromRow(row []string) Task {
	var t Task
	for i, f := range Fields {
		value := ""
		if i < len(row) {
			value = row[i]
		}
		_ = t.Set(f, value)
	}
	return t
}

// Clone returns a deep copy of the task
func (t Task) Clone() Task {
	c := t
	if t.Dependencies != nil {
		c.Dependencies = append([]string(nil), t.Dependencies...)
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		c.CompletedAt = &ts
	}
	if t.raw != nil {
		c.raw = make(map[Field]string, len(t.raw))
		for k, v := range t.raw {
			c.raw[k] = v
		}
	}
	return c
}

// SplitDependencies parses a dependency cell ("CT-001, CT-002")
func SplitDependencies(value string) []string {
	var deps []string
	for _, part := range strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\n'
	}) {
		if part = strings.TrimSpace(part); part != "" {
			deps = append(deps, part)
		}
	}
	return deps
}
