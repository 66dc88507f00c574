package logger

import (
	"net/http"
	"time"

	chimd "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type Middleware struct{}

func ProvideLoggerMiddleware() *Middleware { return &Middleware{} }
func ProvideLogger() *zap.Logger           { return NewLog("system.log") }

// Middleware emits one access-log line per gateway request.
func (m *Middleware) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := httpAccessLogger

			ww := chimd.NewWrapResponseWriter(w, r.ProtoMajor)

			scheme := "http"
			if r.TLS != nil {
				scheme = "https"
			}

			start := time.Now()
			defer func() {
				l.Info("request",
					zap.String("dateTime", start.UTC().Format(time.RFC1123)),
					zap.String("requestId", chimd.GetReqID(r.Context())),
					zap.String("httpScheme", scheme),
					zap.String("httpProto", r.Proto),
					zap.String("httpMethod", r.Method),
					zap.String("remoteAddr", r.RemoteAddr),
					zap.String("uri", r.URL.Path),
					zap.Duration("lat", time.Since(start)),
					zap.Int("responseSize", ww.BytesWritten()),
					zap.Int("status", ww.Status()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
