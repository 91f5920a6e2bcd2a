// Package httpapi assembles the HTTP surface: shared middleware, the public
// probes and the kiosk and administrator route groups.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"punchclock/internal/admin"
	biometrichandler "punchclock/internal/biometric/handler"
	jwttoken "punchclock/internal/jwt_token"
	"punchclock/internal/platform/metrics"
	punchhandler "punchclock/internal/punch/handler"
	"punchclock/pkg/platform/middleware/auth"
	"punchclock/pkg/platform/middleware/device"
	"punchclock/pkg/platform/middleware/request"
	"punchclock/pkg/platform/middleware/requesttime"
)

// Deps carries everything the router mounts. Metrics may be nil.
type Deps struct {
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Tokens    auth.JWTValidator
	Health    http.Handler
	Biometric *biometrichandler.Handler
	Punch     *punchhandler.Handler
	Admin     *admin.Handler
}

// NewRouter wires middleware and routes. Kiosk routes accept kiosk and admin
// tokens; everything else under the authenticated group is admin only.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(d.Logger))
	r.Use(request.Logger(d.Logger, d.Metrics))
	r.Use(requesttime.Middleware)
	r.Use(device.Middleware)

	r.Handle("/metrics", promhttp.Handler())
	r.Method(http.MethodGet, "/healthz", d.Health)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(d.Tokens, d.Logger))

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(d.Logger, jwttoken.RoleKiosk, jwttoken.RoleAdmin))
			d.Punch.RegisterKiosk(r)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(d.Logger, jwttoken.RoleAdmin))
			d.Biometric.Register(r)
			d.Punch.RegisterAdmin(r)
			d.Admin.Register(r)
		})
	})

	return r
}
