// Package device labels the kiosk or browser that submitted a punch.
package device

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"punchclock/pkg/requestcontext"
)

// HeaderDeviceID lets a registered kiosk identify itself explicitly.
const HeaderDeviceID = "X-Device-ID"

const maxLabelLen = 120

// Middleware stores a device label in the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		label := Label(r.Header.Get(HeaderDeviceID), r.Header.Get("User-Agent"))
		ctx := requestcontext.WithDevice(r.Context(), label)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Label prefers an explicit device id and falls back to a summary of the User-Agent.
//
//	Label("", "Mozilla/5.0 (Linux; Android 13; SM-T220) ... Chrome/120.0 Safari/537.36")
//	// "Chrome 120.0 on Android 13 (mobile)"
func Label(deviceID, userAgent string) string {
	if id := strings.TrimSpace(deviceID); id != "" {
		return truncate("kiosk:" + id)
	}
	if strings.TrimSpace(userAgent) == "" {
		return "unknown"
	}

	ua := useragent.New(userAgent)
	if ua.Bot() {
		name, _ := ua.Browser()
		return truncate("bot:" + name)
	}

	name, version := ua.Browser()
	var b strings.Builder
	b.WriteString(name)
	if version != "" {
		b.WriteString(" " + version)
	}
	if osName := ua.OS(); osName != "" {
		b.WriteString(" on " + osName)
	}
	if ua.Mobile() {
		b.WriteString(" (mobile)")
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return truncate(b.String())
}

func truncate(s string) string {
	if len(s) > maxLabelLen {
		return s[:maxLabelLen]
	}
	return s
}
