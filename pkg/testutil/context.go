package testutil

import (
	"net/http"

	"punchclock/pkg/requestcontext"
)

// WithCaller stores the identity the auth middleware would have set.
func WithCaller(req *http.Request, callerID, role string) *http.Request {
	return req.WithContext(requestcontext.WithCaller(req.Context(), callerID, role))
}

func WithKiosk(req *http.Request) *http.Request {
	return WithCaller(req, "kiosk-test", "kiosk")
}

func WithAdmin(req *http.Request) *http.Request {
	return WithCaller(req, "admin-test", "admin")
}
