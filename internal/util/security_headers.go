package util

import (
	"net/http"
	"strings"
)

// apiSecurityHeaders are sent on every response. The API only serves JSON, so
// nothing may be framed, scripted or sniffed.
var apiSecurityHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "no-referrer"},
	{"Permissions-Policy", "geolocation=(), camera=(), microphone=()"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'none'"},
	{"Cache-Control", "no-store"},
}

// WithSecurityHeaders sets apiSecurityHeaders, plus HSTS when the request
// arrived over HTTPS directly or through a proxy.
func WithSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for _, kv := range apiSecurityHeaders {
			h.Set(kv[0], kv[1])
		}
		if r.TLS != nil || strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https") {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}
