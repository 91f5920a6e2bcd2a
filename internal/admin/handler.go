// Package admin serves the cache administration routes that span features:
// the template cache overview plus invalidation of the memoized schedule and
// settings lookups.
package admin

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"punchclock/internal/biometric/models"
	id "punchclock/pkg/domain"
	"punchclock/pkg/platform/httputil"
	"punchclock/pkg/platform/middleware/request"
	"punchclock/pkg/platform/readcache"
)

type TemplateCache interface {
	CacheStats(ctx context.Context) models.CacheStats
}

type ScheduleCache interface {
	InvalidateEmployee(employeeID id.EmployeeID) int
	InvalidateAll() int
	CacheStats() readcache.Stats
}

type SettingsCache interface {
	Invalidate() int
	CacheStats() readcache.Stats
}

type Handler struct {
	templates TemplateCache
	schedules ScheduleCache
	settings  SettingsCache
	logger    *slog.Logger
}

func New(templates TemplateCache, schedules ScheduleCache, settings SettingsCache, logger *slog.Logger) *Handler {
	return &Handler{
		templates: templates,
		schedules: schedules,
		settings:  settings,
		logger:    logger,
	}
}

// Register mounts the routes. Callers are expected to have applied admin auth.
func (h *Handler) Register(r chi.Router) {
	r.Get("/admin/caches", h.HandleCaches)
	r.Delete("/admin/caches/schedules", h.HandleInvalidateSchedules)
	r.Delete("/admin/caches/schedules/{employeeID}", h.HandleInvalidateEmployeeSchedule)
	r.Delete("/admin/caches/settings", h.HandleInvalidateSettings)
}

func (h *Handler) HandleCaches(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, CachesResponse{
		Templates: h.templates.CacheStats(r.Context()),
		Schedules: h.schedules.CacheStats(),
		Settings:  h.settings.CacheStats(),
	})
}

func (h *Handler) HandleInvalidateSchedules(w http.ResponseWriter, r *http.Request) {
	n := h.schedules.InvalidateAll()
	h.logInvalidated(r.Context(), "schedules", n)
	httputil.WriteJSON(w, http.StatusOK, InvalidatedResponse{Cache: "schedules", Invalidated: n})
}

func (h *Handler) HandleInvalidateEmployeeSchedule(w http.ResponseWriter, r *http.Request) {
	employeeID, err := id.ParseEmployeeID(chi.URLParam(r, "employeeID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	n := h.schedules.InvalidateEmployee(employeeID)
	h.logInvalidated(r.Context(), "schedules", n, "employee_id", employeeID)
	httputil.WriteJSON(w, http.StatusOK, InvalidatedResponse{Cache: "schedules", Invalidated: n})
}

func (h *Handler) HandleInvalidateSettings(w http.ResponseWriter, r *http.Request) {
	n := h.settings.Invalidate()
	h.logInvalidated(r.Context(), "settings", n)
	httputil.WriteJSON(w, http.StatusOK, InvalidatedResponse{Cache: "settings", Invalidated: n})
}

func (h *Handler) logInvalidated(ctx context.Context, cache string, n int, attrs ...any) {
	args := append([]any{
		"cache", cache,
		"invalidated", n,
		"request_id", request.GetRequestID(ctx),
	}, attrs...)
	h.logger.InfoContext(ctx, "cache invalidated", args...)
}
