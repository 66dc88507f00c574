package metrics

import (
	"net/http"
	"strconv"
	"time"

	chimw "github.com/go-chi/chi/middleware"
)

// Collect produces the HTTP middleware that records the gateway counters.
func Collect() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			startTime := time.Now()

			defer func() {
				// Skip self-scrape
				if r.URL.Path == "/metrics" {
					return
				}
				code := strconv.Itoa(ww.Status())
				uri := r.URL.Path // path only; avoid cardinality explosion
				gatewayRequests.WithLabelValues(code, uri, r.Method).Inc()
				gatewayResponseTime.Observe(time.Since(startTime).Seconds())
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
