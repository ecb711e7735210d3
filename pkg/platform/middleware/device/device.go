// Package device derives a display label for the client device (typically a
// scanner phone) from its User-Agent so audit records can say which device
// performed a check-in.
package device

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"eventpass/pkg/requestcontext"
)

const unknownDevice = "Unknown Device"

// ParseUserAgent returns a label like "Chrome on Android 14". Empty input yields
// "Unknown Device".
func ParseUserAgent(ua string) string {
	ua = strings.TrimSpace(ua)
	if ua == "" {
		return unknownDevice
	}
	parsed := useragent.New(ua)

	browser, _ := parsed.Browser()
	browser = strings.TrimSpace(browser)
	if browser == "" {
		browser = "Unknown Browser"
	}
	os := strings.TrimSpace(parsed.OS())
	if os == "" {
		os = strings.TrimSpace(parsed.Platform())
	}
	if os == "" {
		os = "Unknown OS"
	}
	if parsed.Bot() {
		browser += " (bot)"
	}
	return strings.Join(strings.Fields(browser+" on "+os), " ")
}

// Middleware stores the parsed device label in the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithDeviceLabel(r.Context(), ParseUserAgent(r.UserAgent()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
