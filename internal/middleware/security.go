// internal/middleware/security.go
//
// Security-header middleware.
//
// Injects standard headers on every response of the JSON API:
//
//   • Strict-Transport-Security  –  forces HTTPS (2 years)
//   • Content-Security-Policy   –  nothing may load from an API response
//   • X-Frame-Options           –  click-jacking defence
//   • X-Content-Type-Options    –  MIME-sniffing defence
//   • Referrer-Policy           –  drops path and query from Referer
//   • Cache-Control             –  form state carries personal data
//
// Notes
// -----
// • Headers are set *before* next.ServeHTTP, because they cannot change once
//   the handler writes the status line.  Handlers may still override any of
//   them.
// • HSTS is only sent when the request arrived over TLS or forceHTTPS is set.

package middleware

import "net/http"

// Security returns a wrapper that sets security headers on every response.
func Security(forceHTTPS bool) func(http.Handler) http.Handler {
	const (
		hsts  = "max-age=63072000; includeSubDomains"
		csp   = "default-src 'none'; frame-ancestors 'none'"
		xfo   = "DENY"
		nosn  = "nosniff"
		refer = "no-referrer"
		cache = "no-store"
	)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if r.TLS != nil || forceHTTPS {
				h.Set("Strict-Transport-Security", hsts)
			}
			h.Set("Content-Security-Policy", csp)
			h.Set("X-Frame-Options", xfo)
			h.Set("X-Content-Type-Options", nosn)
			h.Set("Referrer-Policy", refer)
			h.Set("Cache-Control", cache)

			next.ServeHTTP(w, r)
		})
	}
}
