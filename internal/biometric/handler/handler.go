package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"punchclock/internal/biometric/models"
	id "punchclock/pkg/domain"
	dErrors "punchclock/pkg/domain-errors"
	"punchclock/pkg/platform/httputil"
	"punchclock/pkg/platform/middleware/request"
)

// Service is the biometric enrollment and cache administration surface.
type Service interface {
	RegisterFaceTemplate(ctx context.Context, employeeID id.EmployeeID, template models.Template) (*models.Enrollment, error)
	RemoveFaceTemplate(ctx context.Context, employeeID id.EmployeeID) error
	CacheStats(ctx context.Context) models.CacheStats
	WarmCache(ctx context.Context) (int, error)
	InvalidateCache(ctx context.Context) error
}

// Handler serves administrator routes for face enrollment and the template cache.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the routes. Callers are expected to have applied admin auth.
func (h *Handler) Register(r chi.Router) {
	r.Post("/employees/{employeeID}/face", h.HandleRegisterFace)
	r.Delete("/employees/{employeeID}/face", h.HandleRemoveFace)
	r.Get("/biometric/cache", h.HandleCacheStats)
	r.Post("/biometric/cache/warm", h.HandleWarmCache)
	r.Delete("/biometric/cache", h.HandleInvalidateCache)
}

type registerFaceRequest struct {
	Template models.Template `json:"template"`
}

type warmCacheResponse struct {
	Populated int `json:"populated"`
}

func (h *Handler) HandleRegisterFace(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	employeeID, err := id.ParseEmployeeID(chi.URLParam(r, "employeeID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req registerFaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid register face request",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	enrollment, err := h.service.RegisterFaceTemplate(ctx, employeeID, req.Template)
	if err != nil {
		h.logError(ctx, "failed to register face template", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, enrollment)
}

func (h *Handler) HandleRemoveFace(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	employeeID, err := id.ParseEmployeeID(chi.URLParam(r, "employeeID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.RemoveFaceTemplate(ctx, employeeID); err != nil {
		h.logError(ctx, "failed to remove face template", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleCacheStats(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.service.CacheStats(r.Context()))
}

func (h *Handler) HandleWarmCache(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	n, err := h.service.WarmCache(ctx)
	if err != nil {
		h.logError(ctx, "failed to warm template cache", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, warmCacheResponse{Populated: n})
}

func (h *Handler) HandleInvalidateCache(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.service.InvalidateCache(ctx); err != nil {
		h.logError(ctx, "failed to invalidate template cache", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// logError logs client errors at warn and everything else at error.
func (h *Handler) logError(ctx context.Context, msg string, err error) {
	level := slog.LevelError
	switch dErrors.CodeOf(err) {
	case dErrors.CodeValidation, dErrors.CodeInvalidInput, dErrors.CodeBadRequest, dErrors.CodeNotFound:
		level = slog.LevelWarn
	}
	h.logger.Log(ctx, level, msg,
		"request_id", request.GetRequestID(ctx),
		"error", err,
	)
}
