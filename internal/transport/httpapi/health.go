package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// healthStatus представляет статус здоровья сервиса
type healthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Uptime     string            `json:"uptime"`
	Version    string            `json:"version"`
	Components map[string]string `json:"components,omitempty"`
}

// formatUptime форматирует время в читаемый формат (например: 8s)
func formatUptime(d time.Duration) string {
	return fmt.Sprintf("%ds", int(d.Seconds()))
}

func (s *Server) status(state string, components map[string]string) healthStatus {
	return healthStatus{
		Status:     state,
		Timestamp:  time.Now(),
		Uptime:     formatUptime(time.Since(s.startTime)),
		Version:    s.cfg.Version,
		Components: components,
	}
}

// handleHealth всегда отвечает 200, состояние компонентов в теле
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status("healthy", s.checkComponents(r.Context())))
}

// handleReady отвечает 503, если хранилище недоступно
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	components := s.checkComponents(r.Context())

	overall := "ready"
	if status, ok := components["storage"]; ok && status != "healthy" {
		overall = "unhealthy"
	}

	if overall != "ready" {
		s.logger.Warn("Readiness check failed", zap.Any("components", components))
		writeJSON(w, http.StatusServiceUnavailable, s.status(overall, components))
		return
	}
	writeJSON(w, http.StatusOK, s.status(overall, components))
}

func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.status("alive", nil))
}

// checkComponents проверяет состояние всех компонентов
func (s *Server) checkComponents(ctx context.Context) map[string]string {
	components := make(map[string]string)

	if s.deps.Store != nil {
		ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := s.deps.Store.Ping(ctx); err != nil {
			components["storage"] = "unhealthy"
			s.logger.Error("Storage check failed", zap.Error(err))
		} else {
			components["storage"] = "healthy"
		}
	}

	if s.deps.Jobs != nil {
		components["worker_pool"] = "healthy"
	}

	if s.deps.Charts != nil {
		if s.deps.Charts.Online() {
			components["upstream"] = "healthy"
		} else {
			components["upstream"] = "degraded"
		}
	}

	return components
}
