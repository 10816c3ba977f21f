package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"musiccharts/internal/domain/feed"
	"musiccharts/internal/service"
)

type metaResponse struct {
	Types     []feed.TypeInfo `json:"types"`
	Countries []feed.Country  `json:"countries"`
	Online    bool            `json:"online"`
}

// parseRequest собирает запрос чарта из пути и query: country, limit
func parseRequest(r *http.Request) (feed.Request, error) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return feed.Request{}, fmt.Errorf("%w: limit must be a number", feed.ErrInvalidRequest)
		}
		limit = n
	}
	return feed.NewRequest(chi.URLParam(r, "type"), r.URL.Query().Get("country"), limit)
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Charts.Load(r.Context(), req))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	state, err := s.deps.Charts.Refresh(r.Context(), req)
	if errors.Is(err, service.ErrRefreshTooFrequent) {
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: err.Error(), Data: state})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleMeta(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, metaResponse{
		Types:     feed.Types,
		Countries: feed.Countries(),
		Online:    s.deps.Charts.Online(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	stats := map[string]interface{}{}
	if s.deps.Metrics != nil {
		stats = s.deps.Metrics.GetStats()
	}
	if s.deps.Images != nil {
		stats["image_cache"] = s.deps.Images.Stats()
	}
	if s.deps.Jobs != nil {
		m := s.deps.Jobs.GetMetrics()
		stats["workers"] = map[string]interface{}{
			"processed_jobs":  m.ProcessedJobs,
			"failed_jobs":     m.FailedJobs,
			"queue_size":      m.QueueSize,
			"processing_time": m.ProcessingTime.String(),
		}
	}
	writeJSON(w, http.StatusOK, stats)
}
