package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	bmodels "punchclock/internal/biometric/models"
	"punchclock/internal/punch/models"
	id "punchclock/pkg/domain"
	dErrors "punchclock/pkg/domain-errors"
	"punchclock/pkg/platform/httputil"
	"punchclock/pkg/platform/middleware/request"
	"punchclock/pkg/requestcontext"
)

// Service is the punch registration surface.
type Service interface {
	IdentifyAndPunch(ctx context.Context, probe bmodels.Template, departmentID *id.DepartmentID) (*models.Outcome, error)
	PunchByCredential(ctx context.Context, identifier string, departmentID *id.DepartmentID) (*models.Outcome, error)
	ListDay(ctx context.Context, employeeID id.EmployeeID, date time.Time) ([]models.Punch, error)
	Location() *time.Location
}

// Handler serves kiosk punch routes and the administrator day view.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterKiosk mounts the routes kiosks call.
func (h *Handler) RegisterKiosk(r chi.Router) {
	r.Post("/punches/identify", h.HandleIdentifyAndPunch)
	r.Post("/punches/credential", h.HandlePunchByCredential)
}

// RegisterAdmin mounts read-only punch queries.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/employees/{employeeID}/punches", h.HandleListDay)
}

type identifyRequest struct {
	Template     bmodels.Template `json:"template"`
	DepartmentID *string          `json:"department_id,omitempty"`
}

type credentialRequest struct {
	Identifier   string  `json:"identifier"`
	DepartmentID *string `json:"department_id,omitempty"`
}

type listDayResponse struct {
	EmployeeID id.EmployeeID  `json:"employee_id"`
	Date       string         `json:"date"`
	Punches    []models.Punch `json:"punches"`
}

// Every outcome, including no-match and rejections, is a 200 with a structured body.
func (h *Handler) HandleIdentifyAndPunch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req identifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badBody(ctx, w, err)
		return
	}
	dept, err := parseDepartment(req.DepartmentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out, err := h.service.IdentifyAndPunch(ctx, req.Template, dept)
	h.respond(ctx, w, out, err)
}

func (h *Handler) HandlePunchByCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req credentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badBody(ctx, w, err)
		return
	}
	dept, err := parseDepartment(req.DepartmentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out, err := h.service.PunchByCredential(ctx, req.Identifier, dept)
	h.respond(ctx, w, out, err)
}

// HandleListDay returns one employee's punches for ?date=YYYY-MM-DD, defaulting to today.
func (h *Handler) HandleListDay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	employeeID, err := id.ParseEmployeeID(chi.URLParam(r, "employeeID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	loc := h.service.Location()
	date := requestcontext.Now(ctx).In(loc)
	if raw := r.URL.Query().Get("date"); raw != "" {
		date, err = time.ParseInLocation(time.DateOnly, raw, loc)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "date must be YYYY-MM-DD"))
			return
		}
	}
	punches, err := h.service.ListDay(ctx, employeeID, date)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list punches",
			"request_id", request.GetRequestID(ctx),
			"employee_id", employeeID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	if punches == nil {
		punches = []models.Punch{}
	}
	httputil.WriteJSON(w, http.StatusOK, listDayResponse{
		EmployeeID: employeeID,
		Date:       date.Format(time.DateOnly),
		Punches:    punches,
	})
}

func (h *Handler) respond(ctx context.Context, w http.ResponseWriter, out *models.Outcome, err error) {
	if err != nil {
		level := slog.LevelError
		if dErrors.HasCode(err, dErrors.CodeValidation) || dErrors.HasCode(err, dErrors.CodeInvalidInput) {
			level = slog.LevelWarn
		}
		h.logger.Log(ctx, level, "punch failed",
			"request_id", request.GetRequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) badBody(ctx context.Context, w http.ResponseWriter, err error) {
	h.logger.WarnContext(ctx, "invalid punch request",
		"request_id", request.GetRequestID(ctx),
		"error", err,
	)
	httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
}

func parseDepartment(raw *string) (*id.DepartmentID, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	dept, err := id.ParseDepartmentID(*raw)
	if err != nil {
		return nil, err
	}
	return &dept, nil
}
