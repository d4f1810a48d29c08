// internal/middleware/logging.go
//
// Request logging.
//
// Context
// -------
// Logger stores a request-scoped *zap.SugaredLogger (tagged with chi's
// request ID) in the context, so the forms pipeline and post-create actions
// log with the same ID.  One INFO line per request is written on completion
// with status, size, and latency.
//
// Notes
// -----
// • Must run after chi's middleware.RequestID.

package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/yanizio/adept-users/internal/logger"
)

// Logger returns a wrapper that attaches base (with request_id) to the
// context and logs each completed request.
func Logger(base *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			log := base.With("request_id", chimw.GetReqID(r.Context()))
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(logger.WithContext(r.Context(), log)))

			log.Infow("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"took", time.Since(start),
			)
		})
	}
}
