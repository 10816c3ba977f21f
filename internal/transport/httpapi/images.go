package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"musiccharts/internal/infrastructure/worker"
)

const maxPreloadURLs = 200

type imageResponse struct {
	URL    string `json:"url"`
	Src    string `json:"src"`
	Cached bool   `json:"cached"`
}

type preloadRequest struct {
	URLs []string `json:"urls"`
}

type sizeResponse struct {
	Megabytes float64 `json:"megabytes"`
	Entries   int     `json:"entries"`
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	url := strings.TrimSpace(r.URL.Query().Get("url"))
	if url == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	src := s.deps.Images.GetCachedImage(r.Context(), url)
	writeJSON(w, http.StatusOK, imageResponse{
		URL:    url,
		Src:    src,
		Cached: src != url && strings.HasPrefix(src, "data:"),
	})
}

func (s *Server) handlePreload(w http.ResponseWriter, r *http.Request) {
	var body preloadRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	urls := make([]string, 0, len(body.URLs))
	for _, u := range body.URLs {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	if len(urls) == 0 {
		writeError(w, http.StatusBadRequest, "urls must not be empty")
		return
	}
	if len(urls) > maxPreloadURLs {
		writeError(w, http.StatusBadRequest, "too many urls")
		return
	}

	err := s.deps.Jobs.Submit(worker.Job{
		Name: "preload:api",
		Handler: func(ctx context.Context) error {
			n := s.deps.Images.PreloadImages(ctx, urls)
			s.logger.Debug("Preload finished", zap.Int("requested", len(urls)), zap.Int("cached", n))
			return nil
		},
	})
	switch {
	case errors.Is(err, worker.ErrQueueFull), errors.Is(err, worker.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]int{"queued": len(urls)})
}

func (s *Server) handleClearImages(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Images.ClearCache(r.Context()); err != nil {
		s.logger.Error("Failed to clear image cache", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to clear image cache")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveImage(w http.ResponseWriter, r *http.Request) {
	url := strings.TrimSpace(r.URL.Query().Get("url"))
	if url == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": s.deps.Images.RemoveFromCache(url)})
}

func (s *Server) handleImageSize(w http.ResponseWriter, r *http.Request) {
	stats := s.deps.Images.Stats()
	writeJSON(w, http.StatusOK, sizeResponse{
		Megabytes: s.deps.Images.CacheSize(r.Context()),
		Entries:   stats.PersistedEntries,
	})
}
