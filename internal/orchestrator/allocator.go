package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/slimstrongarm/industrial-iot-stack-sub003/internal/store"
)

// Allocator derives the next task id by scanning the sheet.
//
// Scan-then-increment is not atomic: two producers allocating at the same
// time can both compute the same id. Run a single intake process per sheet.
type Allocator struct {
	store  store.Store
	prefix string
}

// NewAllocator creates an allocator for ids of the form PREFIX-NNN
func NewAllocator(st store.Store, prefix string) *Allocator {
	return &Allocator{store: st, prefix: prefix}
}

// Next returns the id following the highest existing one. It does not
// reserve anything, so two calls without a write in between agree.
func (a *Allocator) Next(ctx context.Context) (string, error) {
	rows, err := a.store.ListRows(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to allocate task id: %w", err)
	}

	highest := 0
	for _, row := range rows {
		n, ok := ParseID(a.prefix, row.ID)
		if !ok {
			if row.ID != "" {
				slog.Debug("skipping unparseable task id", "task_id", row.ID)
			}
			continue
		}
		if n > highest {
			highest = n
		}
	}

	return FormatID(a.prefix, highest+1), nil
}

// FormatID renders a sequence number as PREFIX-NNN
func FormatID(prefix string, n int) string {
	return fmt.Sprintf("%s-%03d", prefix, n)
}

// ParseID extracts the sequence number of an id carrying the prefix
func ParseID(prefix, id string) (int, bool) {
	id = strings.TrimSpace(id)
	head, suffix, found := strings.Cut(id, "-")
	if !found || !strings.EqualFold(head, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(suffix)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
