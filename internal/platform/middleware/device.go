package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mssola/useragent"
)

type contextKeyDevice struct{}

// ContextKeyDevice is exported for tests that need to seed device info.
var ContextKeyDevice = contextKeyDevice{}

// GetDevice retrieves the submitting client description from the context.
// Empty when the request carried no recognizable User-Agent.
func GetDevice(ctx context.Context) string {
	device, ok := ctx.Value(ContextKeyDevice).(string)
	if !ok {
		return ""
	}
	return device
}

// Device parses the User-Agent header into a compact "browser/os" description
// carried into audit events. Parsing failures leave the context untouched.
func Device(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if uaHeader := r.Header.Get("User-Agent"); uaHeader != "" {
			ua := useragent.New(uaHeader)
			name, version := ua.Browser()
			device := name
			if version != "" {
				device = fmt.Sprintf("%s %s", name, version)
			}
			if os := ua.OS(); os != "" {
				device = fmt.Sprintf("%s on %s", device, os)
			}
			ctx := context.WithValue(r.Context(), ContextKeyDevice, device)
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}
