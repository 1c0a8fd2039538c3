// Package api exposes HTTP handlers for the practice engine.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"example.com/practice/internal/activity"
	"example.com/practice/internal/auth"
	"example.com/practice/internal/batch"
	"example.com/practice/internal/domain"
	"example.com/practice/internal/notify"
	"example.com/practice/internal/persistence"
)

// SchedulerSecretHeader carries the shared secret for the notification trigger.
const SchedulerSecretHeader = "X-Scheduler-Secret"

// PreferencesStore reads and replaces notification preferences.
type PreferencesStore interface {
	Preferences(ctx context.Context, userID string) (*notify.Preferences, error)
	SavePreferences(ctx context.Context, userID string, prefs notify.Preferences) error
}

// BatchRunner performs one notification pass.
type BatchRunner interface {
	RunOnce(ctx context.Context) (batch.Report, error)
}

// Option configures a Handler.
type Option func(*Handler)

// WithPreferences enables the preference endpoints.
func WithPreferences(store PreferencesStore) Option {
	return func(h *Handler) {
		h.prefs = store
	}
}

// WithTrigger wires the scheduler trigger. An empty secret leaves the endpoint
// answering with a configuration error.
func WithTrigger(runner BatchRunner, secret string) Option {
	return func(h *Handler) {
		h.runner = runner
		h.schedulerSecret = secret
	}
}

// WithLogger sets the handler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service         *domain.Service
	prefs           PreferencesStore
	runner          BatchRunner
	schedulerSecret string
	logger          *slog.Logger
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, opts ...Option) *Handler {
	h := &Handler{service: service, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes wires endpoints to the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", healthz)

	r.Route("/v1/users/{userID}", func(r chi.Router) {
		r.Get("/practice/summary", h.summary)
		r.Get("/practice/history", h.history)
		r.Get("/practice/most-common", h.mostCommon)
		r.Get("/notifications", h.notificationLog)
		if h.prefs != nil {
			r.Get("/notification-preferences", h.getPreferences)
			r.Put("/notification-preferences", h.putPreferences)
		}
	})

	r.Post("/v1/notifications/run", h.runNotifications)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorizeRead(w, r)
	if !ok {
		return
	}
	offset, ok := parseOffset(w, r)
	if !ok {
		return
	}

	summary, err := h.service.Summary(r.Context(), userID, offset)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorizeRead(w, r)
	if !ok {
		return
	}
	offset, ok := parseOffset(w, r)
	if !ok {
		return
	}

	months, err := h.service.History(r.Context(), userID, offset)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{UserID: userID, Months: months})
}

func (h *Handler) mostCommon(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorizeRead(w, r)
	if !ok {
		return
	}

	limit := activity.DefaultRankingLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			if parsed > 50 {
				parsed = 50
			}
			limit = parsed
		}
	}

	ranked, err := h.service.MostCommon(r.Context(), userID, limit)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MostCommonResponse{UserID: userID, Items: ranked})
}

func (h *Handler) notificationLog(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorizeRead(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	entries, next, err := h.service.NotificationLog(r.Context(), userID, cursor, limit)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	items := make([]NotificationView, 0, len(entries))
	for _, e := range entries {
		items = append(items, toNotificationView(e))
	}
	writeJSON(w, http.StatusOK, NotificationLogResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) getPreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorizeRead(w, r)
	if !ok {
		return
	}

	prefs, err := h.prefs.Preferences(r.Context(), userID)
	if err != nil {
		h.logger.Error("load preferences", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", "unable to load preferences")
		return
	}
	if prefs == nil {
		disabled := notify.DisabledPreferences()
		prefs = &disabled
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (h *Handler) putPreferences(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !auth.CanWrite(claims, userID) {
		writeError(w, http.StatusForbidden, "forbidden", "scope practice:write required")
		return
	}

	var prefs notify.Preferences
	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if prefs.Kinds == nil {
		prefs.Kinds = map[notify.Kind]bool{}
	}
	if err := prefs.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	if err := h.prefs.SavePreferences(r.Context(), userID, prefs); err != nil {
		h.logger.Error("save preferences", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", "unable to save preferences")
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (h *Handler) runNotifications(w http.ResponseWriter, r *http.Request) {
	if h.schedulerSecret == "" || h.runner == nil {
		h.logger.Error("notification trigger called without scheduler configuration")
		writeError(w, http.StatusInternalServerError, "configuration_error", "scheduler secret is not configured")
		return
	}
	given := r.Header.Get(SchedulerSecretHeader)
	if subtle.ConstantTimeCompare([]byte(given), []byte(h.schedulerSecret)) != 1 {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid scheduler secret")
		return
	}

	report, err := h.runner.RunOnce(r.Context())
	if err != nil {
		h.logger.Error("notification pass failed", "run_id", report.RunID, "error", err)
		writeJSON(w, http.StatusInternalServerError, RunResponse{Report: report, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, RunResponse{Report: report, Totals: report.Totals()})
}

// authorizeRead resolves the path user and checks the caller may read it.
func authorizeRead(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := chi.URLParam(r, "userID")
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return "", false
	}
	if !auth.CanRead(claims, userID) {
		writeError(w, http.StatusForbidden, "forbidden", "scope practice:read required")
		return "", false
	}
	return userID, true
}

// parseOffset reads tz_offset (minutes behind UTC). Absent means "use the
// stored timezone".
func parseOffset(w http.ResponseWriter, r *http.Request) (*int, bool) {
	raw := r.URL.Query().Get("tz_offset")
	if raw == "" {
		return nil, true
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "tz_offset must be an integer number of minutes")
		return nil, false
	}
	return &parsed, true
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "not_found", "user not found")
	case errors.Is(err, domain.ErrInvalidOffset):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	default:
		h.logger.Error("dashboard query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

// HistoryResponse lists practice days per month.
type HistoryResponse struct {
	UserID string                `json:"user_id"`
	Months []activity.MonthCount `json:"months"`
}

// MostCommonResponse ranks practiced items per source.
type MostCommonResponse struct {
	UserID string                                    `json:"user_id"`
	Items  map[activity.SourceType][]activity.Ranked `json:"items"`
}

// NotificationView is one delivered notification.
type NotificationView struct {
	ID      string           `json:"id"`
	Kind    notify.Kind      `json:"kind"`
	Variant string           `json:"variant,omitempty"`
	Value   int              `json:"value,omitempty"`
	Subject string           `json:"subject,omitempty"`
	SentVia []notify.Channel `json:"sent_via"`
	SentAt  time.Time        `json:"sent_at"`
}

// NotificationLogResponse packages a page of the notification log.
type NotificationLogResponse struct {
	Items      []NotificationView `json:"items"`
	NextCursor string             `json:"next_cursor,omitempty"`
}

// RunResponse is the body returned by the scheduler trigger.
type RunResponse struct {
	batch.Report
	Totals batch.Counters `json:"totals"`
	Error  string         `json:"error,omitempty"`
}

func toNotificationView(e notify.LogEntry) NotificationView {
	return NotificationView{
		ID:      e.ID,
		Kind:    e.Trigger.Kind,
		Variant: string(e.Trigger.Variant),
		Value:   e.Trigger.Value,
		Subject: e.Trigger.Subject,
		SentVia: e.SentVia,
		SentAt:  e.SentAt,
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
