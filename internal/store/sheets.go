package store

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/slimstrongarm/industrial-iot-stack-sub003/pkg/tasks"
)

// DefaultSheetTab is the worksheet holding the task table
const DefaultSheetTab = "Tasks"

// valuesAPI is the slice of the Sheets values endpoint the store needs
type valuesAPI interface {
	get(ctx context.Context, spreadsheetID, rng string) ([][]interface{}, error)
	appendRow(ctx context.Context, spreadsheetID, rng string, row []interface{}) error
	update(ctx context.Context, spreadsheetID, rng string, value interface{}) error
}

// Sheets keeps the task table in a Google Sheets worksheet. Row 1 is the
// header; data starts at row 2 with columns A..K in tasks.Fields order.
type Sheets struct {
	values        valuesAPI
	spreadsheetID string
	tab           string
}

// NewSheets authenticates with a service-account credentials file
func NewSheets(ctx context.Context, spreadsheetID, tab, credentialsFile string) (*Sheets, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("failed to open sheets store: empty spreadsheet id")
	}

	opts := []option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets client: %w", err)
	}
	return newSheets(&sheetsValues{srv: srv}, spreadsheetID, tab), nil
}

func newSheets(values valuesAPI, spreadsheetID, tab string) *Sheets {
	if tab == "" {
		tab = DefaultSheetTab
	}
	return &Sheets{values: values, spreadsheetID: spreadsheetID, tab: tab}
}

// ListRows reads every data row. Rows without a task id are kept so callers
// see the sheet as a human would; the watcher decides what to ignore.
func (s *Sheets) ListRows(ctx context.Context) ([]tasks.Task, error) {
	values, err := s.values.get(ctx, s.spreadsheetID, s.rangeOf("A2", lastColumn()))
	if err != nil {
		return nil, fmt.Errorf("failed to list rows: %w", err)
	}

	taskList := make([]tasks.Task, 0, len(values))
	for _, raw := range values {
		cells := make([]string, len(raw))
		for i, v := range raw {
			cells[i] = fmt.Sprint(v)
		}
		taskList = append(taskList, tasks.FromRow(cells))
	}
	return taskList, nil
}

// AppendRow inserts a row after the last data row
func (s *Sheets) AppendRow(ctx context.Context, task tasks.Task) (string, error) {
	if task.ID == "" {
		return "", fmt.Errorf("failed to append row: empty task id")
	}

	cells := task.Row()
	row := make([]interface{}, len(cells))
	for i, c := range cells {
		row[i] = c
	}

	if err := s.values.appendRow(ctx, s.spreadsheetID, s.rangeOf("A1", lastColumn()), row); err != nil {
		return "", fmt.Errorf("failed to append row: %w", err)
	}
	return task.ID, nil
}

// UpdateCell locates the row by scanning column A, then writes one cell
func (s *Sheets) UpdateCell(ctx context.Context, taskID string, field tasks.Field, value string) error {
	if err := checkWritable(field); err != nil {
		return err
	}

	ids, err := s.values.get(ctx, s.spreadsheetID, s.rangeOf("A2", "A"))
	if err != nil {
		return fmt.Errorf("failed to locate %s: %w", taskID, err)
	}

	rowNum := -1
	for i, raw := range ids {
		if len(raw) > 0 && strings.TrimSpace(fmt.Sprint(raw[0])) == taskID {
			rowNum = i + 2
			break
		}
	}
	if rowNum < 0 {
		return fmt.Errorf("%s: %w", taskID, ErrTaskNotFound)
	}

	cell := fmt.Sprintf("%s!%s%d", quoteTab(s.tab), columnLetter(field.Column()), rowNum)
	if err := s.values.update(ctx, s.spreadsheetID, cell, value); err != nil {
		return fmt.Errorf("failed to update %s of %s: %w", field, taskID, err)
	}
	return nil
}

func (s *Sheets) rangeOf(from, to string) string {
	return fmt.Sprintf("%s!%s:%s", quoteTab(s.tab), from, to)
}

func lastColumn() string {
	return columnLetter(len(tasks.Fields) - 1)
}

func columnLetter(index int) string {
	letters := ""
	for index >= 0 {
		letters = string(rune('A'+index%26)) + letters
		index = index/26 - 1
	}
	return letters
}

func quoteTab(tab string) string {
	if strings.ContainsAny(tab, " '!") {
		return "'" + strings.ReplaceAll(tab, "'", "''") + "'"
	}
	return tab
}

// sheetsValues adapts the generated client to valuesAPI
type sheetsValues struct {
	srv *sheets.Service
}

func (v *sheetsValues) get(ctx context.Context, spreadsheetID, rng string) ([][]interface{}, error) {
	resp, err := v.srv.Spreadsheets.Values.Get(spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (v *sheetsValues) appendRow(ctx context.Context, spreadsheetID, rng string, row []interface{}) error {
	_, err := v.srv.Spreadsheets.Values.Append(spreadsheetID, rng, &sheets.ValueRange{
		Values: [][]interface{}{row},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	return err
}

func (v *sheetsValues) update(ctx context.Context, spreadsheetID, rng string, value interface{}) error {
	_, err := v.srv.Spreadsheets.Values.Update(spreadsheetID, rng, &sheets.ValueRange{
		Values: [][]interface{}{{value}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}
