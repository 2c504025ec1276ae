package middleware

import (
	"net/http"

	"github.com/weatherroute/weatherroute/internal/api/models"
)

// securityHeaders are set on every response. Vessel positions are
// sensitive, so nothing may be cached by intermediaries.
var securityHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Strict-Transport-Security", "max-age=31536000; includeSubDomains"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
	{"Permissions-Policy", "geolocation=(), camera=(), microphone=()"},
	{"Cache-Control", "no-store"},
}

// SecurityHeaders sets the API's fixed response headers before the handler
// runs, so handlers may still override them.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for _, kv := range securityHeaders {
			h.Set(kv[0], kv[1])
		}
		next.ServeHTTP(w, r)
	})
}

// RequireTLS rejects plain HTTP with 403 when enabled. Behind the load
// balancer X-Forwarded-Proto is authoritative; a direct connection without
// the header passes so local development keeps working.
func RequireTLS(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.TLS == nil {
				if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" && proto != "https" {
					models.KindTLSRequired.New(GetRequestID(r.Context()), "This endpoint requires HTTPS").At(r).Write(w)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
