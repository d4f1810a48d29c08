// internal/server/timeouts.go
//
// HTTP server helper with robust timeouts.
//
//   • ReadHeaderTimeout – abort slow-loris headers (5 s)
//   • ReadTimeout       – bound the whole body, images included (30 s)
//   • WriteTimeout      – cap total response time; submissions wait on the
//                         users service, so this exceeds the API timeout
//   • IdleTimeout       – close keep-alives on idle clients (60 s)
//

package server

import (
	"net/http"
	"time"
)

// New constructs an *http.Server.  apiTimeout is the users-service call
// budget; the write timeout leaves headroom above it.
func New(addr string, handler http.Handler, apiTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      max(15*time.Second, apiTimeout+5*time.Second),
		IdleTimeout:       60 * time.Second,
	}
}
