package intake

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		text string
		kind Kind
		desc string
	}{
		{"add task Fix sensor wiring", KindAddTask, "Fix sensor wiring"},
		{"ADD TASK: Replace pump seal", KindAddTask, "Replace pump seal"},
		{"please create task - calibrate PLC clock", KindAddTask, "calibrate PLC clock"},
		{"new task check status page", KindAddTask, "check status page"},
		{"add task", KindAddTask, ""},
		{"add tasks later", KindAddTask, "later"},
		{"add tasks: calibrate PLC", KindAddTask, "calibrate PLC"},
		{"status", KindStatus, ""},
		{"what's the Status?", KindStatus, ""},
		{"statuses?", KindStatus, ""},
		{"list tasks", KindStatus, ""},
		{"show tasks please", KindStatus, ""},
		{"queue", KindStatus, ""},
		{"help", KindHelp, ""},
		{"what commands do you know", KindHelp, ""},
		{"usage", KindHelp, ""},
		{"hello there", KindUnknown, ""},
		{"", KindUnknown, ""},
	}

	for _, tt := range tests {
		got := Parse(tt.text)
		if got.Kind != tt.kind || got.Description != tt.desc {
			t.Errorf("Parse(%q) = {%s %q}, want {%s %q}", tt.text, got.Kind, got.Description, tt.kind, tt.desc)
		}
	}
}
