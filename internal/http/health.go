package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"punchclock/internal/biometric/models"
	"punchclock/pkg/platform/httputil"
)

const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusDown     = "unavailable"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type TemplateCacheProbe interface {
	CacheStats(ctx context.Context) models.CacheStats
}

// EventsProbe is satisfied by the Kafka producer.
type EventsProbe interface {
	Health(ctx context.Context) error
}

type HealthResponse struct {
	Status        string            `json:"status"`
	Database      string            `json:"database"`
	TemplateCache models.CacheStats `json:"template_cache"`
	Events        string            `json:"events,omitempty"`
}

// Health reports dependency status. Only a database outage fails the probe:
// identification falls back to the store when the template cache is down
// and punch events are best-effort.
type Health struct {
	db      Pinger
	cache   TemplateCacheProbe
	events  EventsProbe
	timeout time.Duration
	logger  *slog.Logger
}

// NewHealth builds the probe. events may be nil when publishing is disabled.
func NewHealth(db Pinger, cache TemplateCacheProbe, events EventsProbe, logger *slog.Logger) *Health {
	return &Health{
		db:      db,
		cache:   cache,
		events:  events,
		timeout: 2 * time.Second,
		logger:  logger,
	}
}

func (h *Health) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp := HealthResponse{Status: statusOK, Database: statusOK}
	code := http.StatusOK

	if err := h.db.PingContext(ctx); err != nil {
		h.logger.ErrorContext(ctx, "health check: database unreachable", "error", err)
		resp.Database = statusDown
		resp.Status = statusDown
		code = http.StatusServiceUnavailable
	}

	resp.TemplateCache = h.cache.CacheStats(ctx)
	if !resp.TemplateCache.Available && resp.Status == statusOK {
		resp.Status = statusDegraded
	}

	if h.events != nil {
		resp.Events = statusOK
		if err := h.events.Health(ctx); err != nil {
			h.logger.WarnContext(ctx, "health check: event broker unreachable", "error", err)
			resp.Events = statusDown
			if resp.Status == statusOK {
				resp.Status = statusDegraded
			}
		}
	}

	httputil.WriteJSON(w, code, resp)
}
