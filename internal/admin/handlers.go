// Package admin exposes the operator HTTP surface: overview, schedule and
// task management, manual runs. Mutating endpoints accept form posts and
// redirect back to / with the outcome in the query string.
package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"batchplane/internal/engine"
	"batchplane/internal/store"
	"batchplane/pkg/api"
)

// Store combines the persistence surfaces the admin handlers need.
type Store interface {
	store.TaskAdmin
	store.ScheduleAdmin
}

// RunnerResolver answers type-code lookups for validation, manual runs and
// the overview listing.
type RunnerResolver interface {
	Has(typeCode string) bool
	Get(typeCode string) (engine.Runner, bool)
	Types() []string
}

// Interrupter lets the cancel endpoint nudge a task running on this
// process. May be nil when the admin surface runs without an engine.
type Interrupter interface {
	InterruptIfRunning(taskID int64) bool
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	store       Store
	runners     RunnerResolver
	interrupter Interrupter
	log         *slog.Logger
}

// New creates a new Handlers instance.
func New(s Store, runners RunnerResolver, interrupter Interrupter, log *slog.Logger) *Handlers {
	if log == nil {
		log = slog.Default()
	}
	return &Handlers{store: s, runners: runners, interrupter: interrupter, log: log}
}

// Overview handles GET /. It returns schedules, recent tasks, the known
// runner types and the outcome fields echoed from the last redirect.
func (h *Handlers) Overview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	schedules, err := h.store.ListSchedules(ctx)
	if err != nil {
		h.httpError(w, "Failed to list schedules", http.StatusInternalServerError)
		return
	}
	tasks, err := h.store.ListTasks(ctx, 100)
	if err != nil {
		h.httpError(w, "Failed to list tasks", http.StatusInternalServerError)
		return
	}

	resp := api.OverviewResponse{
		Runners: h.runners.Types(),
		Outcome: outcomeFromQuery(r.URL.Query()),
	}
	for _, s := range schedules {
		resp.Schedules = append(resp.Schedules, api.ScheduleInfo{
			ID: s.ID, Type: s.Type, Cron: s.Cron, Payload: s.Payload,
			Enabled: s.Enabled, LastFireAt: s.LastFireAt,
		})
	}
	for _, t := range tasks {
		resp.Tasks = append(resp.Tasks, api.TaskInfo{
			ID: t.ID, ScheduleID: t.ScheduleID, Ticket: t.Ticket, Type: t.Type,
			Payload: t.Payload, Priority: t.Priority, Status: string(t.Status),
			Attempts: t.Attempts, NotBefore: t.NotBefore, Owner: t.Owner,
			CreatedAt: t.CreatedAt, UpdatedAt: t.UpdatedAt, FinishAt: t.FinishAt,
			Message: t.Message,
		})
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// ManualRun handles POST /manual/run: execute a registered runner
// synchronously with the supplied payload.
func (h *Handlers) ManualRun(w http.ResponseWriter, r *http.Request) {
	typeCode := r.FormValue("type")
	payload := normalizePayload(r.FormValue("payload"))
	start := time.Now()

	runner, ok := h.runners.Get(typeCode)
	if !ok {
		h.redirectError(w, r, typeCode, payload, "Unknown type: "+typeCode)
		return
	}
	if !json.Valid([]byte(payload)) {
		h.redirectError(w, r, typeCode, payload, "BadPayload: payload is not valid JSON")
		return
	}

	var errText string
	if err := runner.Run(r.Context(), json.RawMessage(payload)); err != nil {
		h.log.Warn("manual run failed", "type", typeCode, "error", err)
		errText = safeMsg(err.Error())
	}

	cost := time.Since(start).Milliseconds()
	q := url.Values{}
	q.Set("ok", strconv.FormatBool(errText == ""))
	q.Set("type", typeCode)
	q.Set("payload", payload)
	q.Set("cost", strconv.FormatInt(cost, 10))
	if errText != "" {
		q.Set("error", errText)
	}
	h.redirect(w, r, q)
}

// CreateSchedule handles POST /schedules.
func (h *Handlers) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	typeCode := r.FormValue("type")
	cronExpr := r.FormValue("cron")
	payload := normalizePayload(r.FormValue("payload"))

	if !h.runners.Has(typeCode) {
		h.redirectError(w, r, typeCode, payload,
			"Unknown type: "+typeCode+". Register a runner for it first.")
		return
	}
	if !json.Valid([]byte(payload)) {
		h.redirectError(w, r, typeCode, payload, "BadPayload in schedule: payload is not valid JSON")
		return
	}

	enabled := true
	if v := r.FormValue("enabled"); v != "" {
		enabled = v == "true" || v == "1"
	}

	_, err := h.store.CreateSchedule(r.Context(), &store.Schedule{
		Type: typeCode, Cron: cronExpr, Payload: payload, Enabled: enabled,
	})
	if err != nil {
		h.redirectError(w, r, typeCode, payload, "Failed to create schedule: "+safeMsg(err.Error()))
		return
	}

	q := url.Values{}
	q.Set("ok", "true")
	q.Set("type", typeCode)
	q.Set("payload", payload)
	h.redirect(w, r, q)
}

// EnqueueTask handles POST /tasks/enqueue.
func (h *Handlers) EnqueueTask(w http.ResponseWriter, r *http.Request) {
	typeCode := r.FormValue("type")
	payload := normalizePayload(r.FormValue("payload"))

	if !h.runners.Has(typeCode) {
		h.redirectError(w, r, typeCode, payload, "Unknown type: "+typeCode)
		return
	}
	if !json.Valid([]byte(payload)) {
		h.redirectError(w, r, typeCode, payload, "BadPayload: payload is not valid JSON")
		return
	}

	notBefore, err := parseNotBefore(r.FormValue("notBefore"))
	if err != nil {
		h.redirectError(w, r, typeCode, payload,
			"notBefore format invalid; examples: 2025-09-22 08:00:00 or 2025-09-22T08:00")
		return
	}

	priority := 0
	if v := r.FormValue("priority"); v != "" {
		if p, perr := strconv.Atoi(v); perr == nil {
			priority = p
		}
	}

	_, err = h.store.EnqueueTask(r.Context(), &store.Task{
		Type: typeCode, Payload: payload, Priority: priority,
		MaxAttempts: 3, NotBefore: notBefore,
	})
	if err != nil {
		h.redirectError(w, r, typeCode, payload, "Failed to enqueue task: "+safeMsg(err.Error()))
		return
	}

	q := url.Values{}
	q.Set("ok", "true")
	q.Set("type", typeCode)
	q.Set("payload", payload)
	h.redirect(w, r, q)
}

// ToggleSchedule handles POST /schedule/{id}/toggle.
func (h *Handlers) ToggleSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	enabled := r.FormValue("enabled") == "true" || r.FormValue("enabled") == "1"

	err := h.store.SetScheduleEnabled(r.Context(), id, enabled)
	if errors.Is(err, store.ErrNotFound) {
		h.redirectErrorPlain(w, r, fmt.Sprintf("Schedule not found: id=%d", id))
		return
	}
	if err != nil {
		h.redirectErrorPlain(w, r, "Failed to toggle schedule: "+safeMsg(err.Error()))
		return
	}
	h.redirectOK(w, r, "")
}

// DeleteSchedule handles POST /schedule/{id}/delete. Deletion is refused
// while any task still references the schedule.
func (h *Handlers) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	if _, err := h.store.GetSchedule(ctx, id); errors.Is(err, store.ErrNotFound) {
		h.redirectErrorPlain(w, r, fmt.Sprintf("Schedule not found: id=%d", id))
		return
	} else if err != nil {
		h.redirectErrorPlain(w, r, "Failed to load schedule: "+safeMsg(err.Error()))
		return
	}

	total, err := h.store.CountTasksBySchedule(ctx, id)
	if err != nil {
		h.redirectErrorPlain(w, r, "Failed to count schedule tasks: "+safeMsg(err.Error()))
		return
	}
	if total > 0 {
		h.redirectErrorPlain(w, r,
			fmt.Sprintf("This schedule still has %d associated tasks. Delete the tasks first.", total))
		return
	}

	if err := h.store.DeleteSchedule(ctx, id); err != nil {
		h.redirectErrorPlain(w, r, "Failed to delete schedule: "+safeMsg(err.Error()))
		return
	}
	h.redirectOK(w, r, fmt.Sprintf("Schedule deleted: id=%d", id))
}

// DeleteTask handles POST /tasks/{id}/delete. Running and cancel-pending
// tasks cannot be deleted.
func (h *Handlers) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	t, err := h.store.GetTask(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		h.redirectErrorPlain(w, r, fmt.Sprintf("Task not found: id=%d", id))
		return
	}
	if err != nil {
		h.redirectErrorPlain(w, r, "Failed to load task: "+safeMsg(err.Error()))
		return
	}

	if t.Status == store.TaskStatusRunning || t.Status == store.TaskStatusCancelRequested {
		h.redirectErrorPlain(w, r,
			fmt.Sprintf("Running or cancel-pending tasks cannot be deleted: id=%d", id))
		return
	}

	if err := h.store.DeleteTask(ctx, id); err != nil {
		h.redirectErrorPlain(w, r, "Failed to delete task: "+safeMsg(err.Error()))
		return
	}
	h.redirectOK(w, r, fmt.Sprintf("Task deleted: id=%d", id))
}

// CancelTask handles POST /tasks/{id}/cancel. A PENDING task becomes
// CANCELED immediately; a RUNNING task gets a cancel request and, when it
// runs on this process, a cooperative interrupt.
func (h *Handlers) CancelTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	t, err := h.store.GetTask(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		h.redirectErrorPlain(w, r, fmt.Sprintf("Task not found: id=%d", id))
		return
	}
	if err != nil {
		h.redirectErrorPlain(w, r, "Failed to load task: "+safeMsg(err.Error()))
		return
	}

	switch t.Status {
	case store.TaskStatusPending:
		moved, err := h.store.SetTaskStatus(ctx, id, store.TaskStatusPending, store.TaskStatusCanceled)
		if err != nil {
			h.redirectErrorPlain(w, r, "Failed to cancel task: "+safeMsg(err.Error()))
			return
		}
		if !moved {
			h.redirectOK(w, r, fmt.Sprintf("Task already left PENDING: id=%d", id))
			return
		}
		h.redirectOK(w, r, fmt.Sprintf("Task canceled: id=%d", id))

	case store.TaskStatusRunning:
		moved, err := h.store.SetTaskStatus(ctx, id, store.TaskStatusRunning, store.TaskStatusCancelRequested)
		if err != nil {
			h.redirectErrorPlain(w, r, "Failed to request cancel: "+safeMsg(err.Error()))
			return
		}
		if moved && h.interrupter != nil {
			h.interrupter.InterruptIfRunning(id)
		}
		h.redirectOK(w, r, fmt.Sprintf("Cancel requested for running task: id=%d", id))

	default:
		h.redirectOK(w, r, fmt.Sprintf("No cancel needed in current state: id=%d, status=%s", id, t.Status))
	}
}

func (h *Handlers) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.redirectErrorPlain(w, r, "Invalid id in path")
		return 0, false
	}
	return id, true
}

func (h *Handlers) redirect(w http.ResponseWriter, r *http.Request, q url.Values) {
	http.Redirect(w, r, "/?"+q.Encode(), http.StatusSeeOther)
}

func (h *Handlers) redirectOK(w http.ResponseWriter, r *http.Request, info string) {
	q := url.Values{}
	q.Set("ok", "true")
	if info != "" {
		q.Set("info", info)
	}
	h.redirect(w, r, q)
}

func (h *Handlers) redirectError(w http.ResponseWriter, r *http.Request, typeCode, payload, msg string) {
	q := url.Values{}
	q.Set("ok", "false")
	if typeCode != "" {
		q.Set("type", typeCode)
	}
	if payload != "" {
		q.Set("payload", payload)
	}
	q.Set("error", msg)
	h.redirect(w, r, q)
}

func (h *Handlers) redirectErrorPlain(w http.ResponseWriter, r *http.Request, msg string) {
	h.redirectError(w, r, "", "", msg)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJSON(w, code, map[string]string{"error": message})
}

func normalizePayload(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "{}"
	}
	return p
}

// parseNotBefore accepts "YYYY-MM-DD HH:MM[:SS]" and "YYYY-MM-DDTHH:MM":
// the T becomes a space, 16-char forms get ":00" appended, longer strings
// are cut to 19 chars.
func parseNotBefore(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	s = strings.Replace(s, "T", " ", 1)
	if len(s) == 16 {
		s += ":00"
	}
	if len(s) > 19 {
		s = s[:19]
	}
	t, err := time.ParseInLocation("2006-01-02 15:04:05", s, time.Local)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

var msgWhitespaceRe = regexp.MustCompile(`\s+`)

func safeMsg(msg string) string {
	msg = strings.TrimSpace(msgWhitespaceRe.ReplaceAllString(msg, " "))
	if len(msg) > 500 {
		return msg[:500] + "..."
	}
	return msg
}

func outcomeFromQuery(q url.Values) api.Outcome {
	var o api.Outcome
	if v := q.Get("ok"); v != "" {
		ok := v == "true"
		o.OK = &ok
	}
	o.Type = q.Get("type")
	o.Payload = q.Get("payload")
	if v := q.Get("cost"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			o.CostMs = &ms
		}
	}
	o.Error = q.Get("error")
	o.Info = q.Get("info")
	return o
}
