package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/slimstrongarm/industrial-iot-stack-sub003/internal/orchestrator"
	"github.com/slimstrongarm/industrial-iot-stack-sub003/internal/store"
	"github.com/slimstrongarm/industrial-iot-stack-sub003/pkg/tasks"
)

func seedRows() []tasks.Task {
	created := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	return []tasks.Task{
		{ID: "CT-001", Owner: "Worker-A", Category: "build", Priority: tasks.PriorityHigh, Status: tasks.StatusPending, Description: "Compile firmware", CreatedAt: created},
		{ID: "CT-002", Owner: "Worker-B", Category: "note", Priority: tasks.PriorityLow, Status: tasks.StatusComplete, Description: "Write notes", CreatedAt: created},
		{ID: "CT-003", Owner: "Worker-A", Category: "build", Priority: tasks.PriorityMedium, Status: tasks.StatusBlocked, Description: "Flash PLC", CreatedAt: created},
	}
}

type testEnv struct {
	store   *store.Memory
	feed    *orchestrator.Feed
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := store.NewMemory(seedRows()...)
	feed := orchestrator.NewFeed(50)
	writer := orchestrator.NewWriter(st, orchestrator.DefaultConfig())
	svc := NewService(st, writer, feed, func() []string { return []string{"build", "note"} })

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "taskrelay_test_total", Help: "test"}))

	router := NewRouter(NewHandler(svc), reg, HealthInfo{Mode: "all", WorkerID: "Worker-A", Store: "memory"})
	return &testEnv{store: st, feed: feed, handler: router}
}

func (e *testEnv) do(t *testing.T, method, target, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestListTasksFilters(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/tasks?owner=worker-a", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var list []tasks.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(list) != 2 || list[0].ID != "CT-001" || list[1].ID != "CT-003" {
		t.Errorf("unexpected owner filter result: %+v", list)
	}

	rec = env.do(t, http.MethodGet, "/api/tasks?status=complete", "", "")
	list = nil
	json.Unmarshal(rec.Body.Bytes(), &list)
	if len(list) != 1 || list[0].ID != "CT-002" {
		t.Errorf("unexpected status filter result: %+v", list)
	}

	rec = env.do(t, http.MethodGet, "/api/tasks?limit=1", "", "")
	list = nil
	json.Unmarshal(rec.Body.Bytes(), &list)
	if len(list) != 1 || list[0].ID != "CT-003" {
		t.Errorf("expected only the newest row, got %+v", list)
	}

	if rec := env.do(t, http.MethodGet, "/api/tasks?status=Someday", "", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown status, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/tasks?limit=-2", "", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for negative limit, got %d", rec.Code)
	}
}

func TestGetTask(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/tasks/ct-003", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var task tasks.Task
	json.Unmarshal(rec.Body.Bytes(), &task)
	if task.ID != "CT-003" || task.Status != tasks.StatusBlocked {
		t.Errorf("unexpected task: %+v", task)
	}

	if rec := env.do(t, http.MethodGet, "/api/tasks/CT-999", "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestCreateTaskJSON(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/tasks", "application/json",
		`{"description":"Fix sensor wiring","owner":"Worker-A","priority":"high","requested_by":"ops"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var task tasks.Task
	json.Unmarshal(rec.Body.Bytes(), &task)
	if task.ID != "CT-004" {
		t.Errorf("expected next id CT-004, got %s", task.ID)
	}
	if task.Priority != tasks.PriorityHigh || task.Status != tasks.StatusPending || task.Category != "General" {
		t.Errorf("unexpected defaults: %+v", task)
	}

	rows, _ := env.store.ListRows(context.Background())
	if len(rows) != 4 || rows[3].RequestedBy != "ops" {
		t.Errorf("row not appended: %+v", rows)
	}
}

func TestCreateTaskRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)

	cases := []string{
		`{"description":"  "}`,
		`{"description":"x","priority":"urgent"}`,
		`{"description":"x","status":"Complete"}`,
		`not json`,
	}
	for _, body := range cases {
		if rec := env.do(t, http.MethodPost, "/api/tasks", "application/json", body); rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: expected 400, got %d", body, rec.Code)
		}
	}

	rows, _ := env.store.ListRows(context.Background())
	if len(rows) != 3 {
		t.Errorf("expected no rows appended, got %d", len(rows))
	}
}

func TestCreateTaskForm(t *testing.T) {
	env := newTestEnv(t)

	form := url.Values{"description": {"Calibrate flow meter"}, "priority": {"Low"}}
	rec := env.do(t, http.MethodPost, "/api/tasks", "application/x-www-form-urlencoded", form.Encode())
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/tasks/CT-004" {
		t.Errorf("unexpected redirect target %q", loc)
	}

	rows, _ := env.store.ListRows(context.Background())
	if rows[3].RequestedBy != "dashboard" {
		t.Errorf("expected requested_by dashboard, got %q", rows[3].RequestedBy)
	}
}

func TestSetStatus(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/tasks/CT-001/status", "application/json", `{"status":"complete"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var task tasks.Task
	json.Unmarshal(rec.Body.Bytes(), &task)
	if task.Status != tasks.StatusComplete || task.CompletedAt == nil {
		t.Errorf("expected Complete with completed_at, got %+v", task)
	}

	rec = env.do(t, http.MethodPost, "/api/tasks/CT-001/status", "application/json", `{"status":"start"}`)
	task = tasks.Task{}
	json.Unmarshal(rec.Body.Bytes(), &task)
	if task.Status != tasks.StatusStart || task.CompletedAt != nil {
		t.Errorf("expected completed_at cleared, got %+v", task)
	}

	if rec := env.do(t, http.MethodPost, "/api/tasks/CT-001/status", "application/json", `{"status":"Done"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown status, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/tasks/CT-404/status", "application/json", `{"status":"Start"}`); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestAssign(t *testing.T) {
	env := newTestEnv(t)

	form := url.Values{"owner": {"Worker-C"}}
	req := httptest.NewRequest(http.MethodPost, "/api/tasks/CT-002/owner", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", "/")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/" {
		t.Fatalf("expected redirect back to referer, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
	rows, _ := env.store.ListRows(context.Background())
	if rows[1].Owner != "Worker-C" {
		t.Errorf("owner not written: %+v", rows[1])
	}

	if rec := env.do(t, http.MethodPost, "/api/tasks/CT-002/owner", "application/json", `{"owner":""}`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty owner, got %d", rec.Code)
	}
}

func TestStats(t *testing.T) {
	env := newTestEnv(t)
	env.store.AppendRow(context.Background(), tasks.Task{ID: "CT-010", Status: "Waiting", Description: "typo"})

	svc := NewService(env.store, nil, nil, nil)
	stats, err := svc.GetStats(context.Background())
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.Total != 4 || stats.Open != 3 {
		t.Errorf("unexpected totals: %+v", stats)
	}
	last := stats.ByStatus[len(stats.ByStatus)-1]
	if last.Status != "Waiting" || last.Count != 1 {
		t.Errorf("expected unknown status listed last, got %+v", stats.ByStatus)
	}
	if len(stats.ByStatus) != len(tasks.Statuses)+1 {
		t.Errorf("expected every known status listed, got %+v", stats.ByStatus)
	}
}

func TestPagesRender(t *testing.T) {
	env := newTestEnv(t)
	ev := tasks.NewChangeEvent(tasks.EventUpdated, seedRows()[0], time.Now())
	ev.Field, ev.OldValue, ev.NewValue = tasks.FieldStatus, "Pending", "Start"
	env.feed.PublishEvent(ev)

	rec := env.do(t, http.MethodGet, "/?status=Blocked", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("index: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Flash PLC") || strings.Contains(body, "Compile firmware</td>") {
		t.Errorf("index did not apply the status filter")
	}
	if !strings.Contains(body, "Pending → Start") {
		t.Errorf("index missing recent activity")
	}

	rec = env.do(t, http.MethodGet, "/tasks/CT-002", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("details: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "Write notes") {
		t.Errorf("details page missing description")
	}

	if rec := env.do(t, http.MethodGet, "/tasks/CT-404", "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing task page, got %d", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var health struct {
		Status string     `json:"status"`
		Info   HealthInfo `json:"info"`
	}
	json.Unmarshal(rec.Body.Bytes(), &health)
	if health.Status != "healthy" || health.Info.WorkerID != "Worker-A" {
		t.Errorf("unexpected health body: %s", rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/metrics", "", "")
	if !strings.Contains(rec.Body.String(), "taskrelay_test_total") {
		t.Errorf("metrics missing registered collector")
	}
}

func TestEventsStream(t *testing.T) {
	env := newTestEnv(t)
	env.feed.Publish(orchestrator.FeedEntry{Kind: orchestrator.FeedOutput, TaskID: "CT-001", Message: "compiling"})
	env.feed.Publish(orchestrator.FeedEntry{Kind: orchestrator.FeedOutput, TaskID: "CT-003", Message: "flashing"})

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events?task=ct-001", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		env.handler.ServeHTTP(rec, req)
		close(done)
	}()
	cancel()
	<-done

	body := rec.Body.String()
	if rec.Header().Get("Content-Type") != "text/event-stream" {
		t.Errorf("unexpected content type %q", rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(body, "event: output") || !strings.Contains(body, "compiling") {
		t.Errorf("history not replayed: %q", body)
	}
	if strings.Contains(body, "flashing") {
		t.Errorf("stream not filtered by task: %q", body)
	}
}
