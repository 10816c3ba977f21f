package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// requestLogger логирует запросы и пишет время ответа в метрики
func requestLogger(logger *zap.Logger, stats Stats) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				duration := time.Since(start)
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}

				if stats != nil {
					stats.RecordResponseTime(duration)
					if status >= http.StatusInternalServerError {
						stats.RecordError()
					}
				}

				fields := []zap.Field{
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", status),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", duration),
				}
				switch {
				case status >= http.StatusInternalServerError:
					logger.Error("Request failed", fields...)
				case status >= http.StatusBadRequest:
					logger.Warn("Request rejected", fields...)
				default:
					logger.Debug("Request handled", fields...)
				}
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
