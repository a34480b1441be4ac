package dashboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/slimstrongarm/industrial-iot-stack-sub003/internal/orchestrator"
	"github.com/slimstrongarm/industrial-iot-stack-sub003/internal/store"
	"github.com/slimstrongarm/industrial-iot-stack-sub003/pkg/tasks"
)

// Handler serves dashboard pages and the JSON API
type Handler struct {
	service *Service
}

// NewHandler creates a new dashboard handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers dashboard routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.HandleIndex)
	r.Get("/tasks/{id}", h.HandleTaskDetails)

	r.Route("/api", func(r chi.Router) {
		r.Get("/tasks", h.HandleListTasks)
		r.Post("/tasks", h.HandleCreateTask)
		r.Get("/tasks/{id}", h.HandleGetTask)
		r.Post("/tasks/{id}/status", h.HandleSetStatus)
		r.Post("/tasks/{id}/owner", h.HandleAssign)
		r.Get("/events", h.HandleEvents)
	})
}

// HandleIndex renders the task board
func (h *Handler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetStats(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	filter := Filter{Owner: r.URL.Query().Get("owner"), Limit: 100}
	if s := r.URL.Query().Get("status"); s != "" {
		if st, err := tasks.ParseStatus(s); err == nil {
			filter.Status = st
		}
	}
	list, err := h.service.ListTasks(r.Context(), filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data := map[string]interface{}{
		"Title":      "Task board",
		"Stats":      stats,
		"Tasks":      list,
		"Filter":     filter,
		"Statuses":   tasks.Statuses,
		"Activity":   h.service.RecentActivity(20),
		"ActivePage": "home",
	}

	if err := Render(w, "index.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleTaskDetails renders a single task with its live output
func (h *Handler) HandleTaskDetails(w http.ResponseWriter, r *http.Request) {
	task, err := h.service.GetTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	data := map[string]interface{}{
		"Title":      "Task " + task.ID,
		"Task":       task,
		"Statuses":   tasks.Statuses,
		"ActivePage": "tasks",
	}

	if err := Render(w, "task_details.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleListTasks returns rows as JSON, filtered by ?status, ?owner and ?limit
func (h *Handler) HandleListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := Filter{Owner: q.Get("owner")}
	if s := q.Get("status"); s != "" {
		st, err := tasks.ParseStatus(s)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		filter.Status = st
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		filter.Limit = n
	}

	list, err := h.service.ListTasks(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleGetTask returns one row as JSON
func (h *Handler) HandleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.service.GetTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// HandleCreateTask appends a row. Accepts JSON or a form post.
func (h *Handler) HandleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	form := isForm(r)
	if form {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Failed to parse form", http.StatusBadRequest)
			return
		}
		req = CreateRequest{
			Description: r.FormValue("description"),
			Owner:       r.FormValue("owner"),
			Category:    r.FormValue("category"),
			Priority:    r.FormValue("priority"),
			RequestedBy: "dashboard",
		}
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	task, err := h.service.CreateTask(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	if form {
		http.Redirect(w, r, "/tasks/"+task.ID, http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// HandleSetStatus writes the status cell of a task
func (h *Handler) HandleSetStatus(w http.ResponseWriter, r *http.Request) {
	value, ok := readValue(w, r, "status")
	if !ok {
		return
	}
	task, err := h.service.SetStatus(r.Context(), chi.URLParam(r, "id"), value)
	h.respondUpdate(w, r, task, err)
}

// HandleAssign writes the owner cell of a task
func (h *Handler) HandleAssign(w http.ResponseWriter, r *http.Request) {
	value, ok := readValue(w, r, "owner")
	if !ok {
		return
	}
	task, err := h.service.Assign(r.Context(), chi.URLParam(r, "id"), value)
	h.respondUpdate(w, r, task, err)
}

func (h *Handler) respondUpdate(w http.ResponseWriter, r *http.Request, task tasks.Task, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	if isForm(r) {
		referer := r.Header.Get("Referer")
		if referer == "" {
			referer = "/tasks/" + task.ID
		}
		http.Redirect(w, r, referer, http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// HandleEvents streams the live feed via SSE. ?task=ID limits the stream
// to one task.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch, history, cleanup, err := h.service.Subscribe()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer cleanup()

	taskID := r.URL.Query().Get("task")

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	send := func(entry orchestrator.FeedEntry) error {
		if taskID != "" && !strings.EqualFold(entry.TaskID, taskID) {
			return nil
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", entry.Kind, data)
		return err
	}

	for _, entry := range history {
		if err := send(entry); err != nil {
			return
		}
	}
	flusher.Flush()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case entry, ok := <-ch:
			if !ok {
				return
			}
			if err := send(entry); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			// Keepalive comment
			if _, err := fmt.Fprintf(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func isForm(r *http.Request) bool {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return ct == "application/x-www-form-urlencoded" || ct == "multipart/form-data"
}

// readValue extracts a single field from a form or a JSON object
func readValue(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	if isForm(r) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Failed to parse form", http.StatusBadRequest)
			return "", false
		}
		return r.FormValue(key), true
	}

	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return "", false
	}
	return body[key], true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrTaskNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
