package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"musiccharts/internal/domain/feed"
	"musiccharts/internal/infrastructure/imagecache"
	"musiccharts/internal/infrastructure/metrics"
	"musiccharts/internal/infrastructure/worker"
	"musiccharts/internal/service"
	"musiccharts/internal/storage"
)

type MockCharts struct {
	mock.Mock
}

func (m *MockCharts) Load(ctx context.Context, req feed.Request) service.State {
	args := m.Called(ctx, req)
	return args.Get(0).(service.State)
}

func (m *MockCharts) Refresh(ctx context.Context, req feed.Request) (service.State, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(service.State), args.Error(1)
}

func (m *MockCharts) Online() bool {
	return m.Called().Bool(0)
}

type MockImages struct {
	mock.Mock
}

func (m *MockImages) GetCachedImage(ctx context.Context, url string) string {
	return m.Called(ctx, url).String(0)
}

func (m *MockImages) PreloadImages(ctx context.Context, urls []string) int {
	return m.Called(ctx, urls).Int(0)
}

func (m *MockImages) ClearCache(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockImages) RemoveFromCache(url string) bool {
	return m.Called(url).Bool(0)
}

func (m *MockImages) CacheSize(ctx context.Context) float64 {
	return m.Called(ctx).Get(0).(float64)
}

func (m *MockImages) Stats() imagecache.Stats {
	return m.Called().Get(0).(imagecache.Stats)
}

// inlineJobs runs submitted jobs immediately
type inlineJobs struct {
	submitted []string
	err       error
}

func (j *inlineJobs) Submit(job worker.Job) error {
	if j.err != nil {
		return j.err
	}
	j.submitted = append(j.submitted, job.Name)
	return job.Handler(context.Background())
}

func (j *inlineJobs) GetMetrics() worker.Metrics {
	return worker.Metrics{ProcessedJobs: int64(len(j.submitted))}
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

type fixture struct {
	charts  *MockCharts
	images  *MockImages
	jobs    *inlineJobs
	metrics *metrics.Metrics
	handler http.Handler
}

func newFixture(t *testing.T, store Pinger) *fixture {
	t.Helper()
	f := &fixture{
		charts:  new(MockCharts),
		images:  new(MockImages),
		jobs:    &inlineJobs{},
		metrics: metrics.NewMetrics(zap.NewNop()),
	}
	srv := NewServer(Config{Addr: ":0", Version: "test"}, Deps{
		Charts:  f.charts,
		Images:  f.images,
		Jobs:    f.jobs,
		Metrics: f.metrics,
		Store:   store,
	}, zap.NewNop())
	f.handler = srv.Router()
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func sampleState() service.State {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return service.State{
		Feed: &feed.NormalizedFeed{
			Title:   "Top Songs",
			Country: "us",
			Source:  "direct",
			Results: []feed.Item{{ID: "1", Name: "Song"}},
		},
		UpdatedAt: &now,
	}
}

func TestHandleFeed(t *testing.T) {
	f := newFixture(t, nil)
	req, err := feed.NewRequest("songs", "gb", 25)
	require.NoError(t, err)
	f.charts.On("Load", mock.Anything, req).Return(sampleState()).Once()

	w := f.do(t, http.MethodGet, "/api/feeds/songs?country=GB&limit=25", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Loading bool                `json:"loading"`
		Data    feed.NormalizedFeed `json:"data"`
	}
	decode(t, w, &body)
	assert.False(t, body.Loading)
	assert.Equal(t, "Top Songs", body.Data.Title)
	assert.Len(t, body.Data.Results, 1)
	f.charts.AssertExpectations(t)
}

func TestHandleFeed_Defaults(t *testing.T) {
	f := newFixture(t, nil)
	req, err := feed.NewRequest("albums", "", 0)
	require.NoError(t, err)
	f.charts.On("Load", mock.Anything, req).Return(sampleState()).Once()

	w := f.do(t, http.MethodGet, "/api/feeds/albums", "")
	assert.Equal(t, http.StatusOK, w.Code)
	f.charts.AssertExpectations(t)
}

func TestHandleFeed_Validation(t *testing.T) {
	tests := []struct {
		name   string
		target string
	}{
		{"unknown type", "/api/feeds/podcasts"},
		{"bad country", "/api/feeds/songs?country=usa"},
		{"limit not a number", "/api/feeds/songs?limit=ten"},
		{"limit too large", "/api/feeds/songs?limit=500"},
		{"negative limit", "/api/feeds/songs?limit=-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			w := f.do(t, http.MethodGet, tt.target, "")
			assert.Equal(t, http.StatusBadRequest, w.Code)

			var body errorResponse
			decode(t, w, &body)
			assert.NotEmpty(t, body.Error)
			f.charts.AssertNotCalled(t, "Load", mock.Anything, mock.Anything)
		})
	}
}

func TestHandleRefresh(t *testing.T) {
	f := newFixture(t, nil)
	req, err := feed.NewRequest("songs", "us", 50)
	require.NoError(t, err)

	f.charts.On("Refresh", mock.Anything, req).Return(sampleState(), nil).Once()
	f.charts.On("Refresh", mock.Anything, req).
		Return(sampleState(), fmt.Errorf("%w: retry in 5s", service.ErrRefreshTooFrequent)).Once()

	w := f.do(t, http.MethodPost, "/api/feeds/songs/refresh", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPost, "/api/feeds/songs/refresh", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	var body struct {
		Error string        `json:"error"`
		Data  service.State `json:"data"`
	}
	decode(t, w, &body)
	assert.Contains(t, body.Error, "too frequently")
	assert.NotNil(t, body.Data.Feed, "current state accompanies the rejection")
}

func TestHandleMeta(t *testing.T) {
	f := newFixture(t, nil)
	f.charts.On("Online").Return(false)

	w := f.do(t, http.MethodGet, "/api/meta", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body metaResponse
	decode(t, w, &body)
	assert.Len(t, body.Types, len(feed.Types))
	assert.Len(t, body.Countries, len(feed.SupportedCountries))
	assert.False(t, body.Online)
}

func TestHandleImage(t *testing.T) {
	f := newFixture(t, nil)
	f.images.On("GetCachedImage", mock.Anything, "https://img/a.jpg").Return("data:image/jpeg;base64,AAAA")
	f.images.On("GetCachedImage", mock.Anything, "https://img/missing.jpg").Return("https://img/missing.jpg")

	w := f.do(t, http.MethodGet, "/api/images?url=https://img/a.jpg", "")
	require.Equal(t, http.StatusOK, w.Code)
	var hit imageResponse
	decode(t, w, &hit)
	assert.True(t, hit.Cached)
	assert.Equal(t, "data:image/jpeg;base64,AAAA", hit.Src)

	w = f.do(t, http.MethodGet, "/api/images?url=https://img/missing.jpg", "")
	var miss imageResponse
	decode(t, w, &miss)
	assert.False(t, miss.Cached)
	assert.Equal(t, miss.URL, miss.Src)

	w = f.do(t, http.MethodGet, "/api/images", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlePreload(t *testing.T) {
	f := newFixture(t, nil)
	urls := []string{"https://img/1.jpg", "https://img/2.jpg"}
	f.images.On("PreloadImages", mock.Anything, urls).Return(2).Once()

	w := f.do(t, http.MethodPost, "/api/images/preload", `{"urls":["https://img/1.jpg"," ","https://img/2.jpg"]}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"preload:api"}, f.jobs.submitted)
	f.images.AssertExpectations(t)
}

func TestHandlePreload_Rejected(t *testing.T) {
	t.Run("invalid body", func(t *testing.T) {
		f := newFixture(t, nil)
		w := f.do(t, http.MethodPost, "/api/images/preload", `{"urls":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("empty list", func(t *testing.T) {
		f := newFixture(t, nil)
		w := f.do(t, http.MethodPost, "/api/images/preload", `{"urls":[]}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("queue full", func(t *testing.T) {
		f := newFixture(t, nil)
		f.jobs.err = worker.ErrQueueFull
		w := f.do(t, http.MethodPost, "/api/images/preload", `{"urls":["https://img/1.jpg"]}`)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		f.images.AssertNotCalled(t, "PreloadImages", mock.Anything, mock.Anything)
	})
}

func TestHandleImageManagement(t *testing.T) {
	f := newFixture(t, nil)
	f.images.On("ClearCache", mock.Anything).Return(nil).Once()
	f.images.On("RemoveFromCache", "https://img/1.jpg").Return(true).Once()
	f.images.On("CacheSize", mock.Anything).Return(1.5).Once()
	f.images.On("Stats").Return(imagecache.Stats{MemoryEntries: 4, PersistedEntries: 3})

	w := f.do(t, http.MethodDelete, "/api/images", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodDelete, "/api/images/entry?url=https://img/1.jpg", "")
	require.Equal(t, http.StatusOK, w.Code)
	var removed map[string]bool
	decode(t, w, &removed)
	assert.True(t, removed["removed"])

	w = f.do(t, http.MethodGet, "/api/images/size", "")
	require.Equal(t, http.StatusOK, w.Code)
	var size sizeResponse
	decode(t, w, &size)
	assert.InDelta(t, 1.5, size.Megabytes, 1e-9)
	assert.Equal(t, 3, size.Entries)

	f.images.AssertExpectations(t)
}

func TestHandleClearImages_Error(t *testing.T) {
	f := newFixture(t, nil)
	f.images.On("ClearCache", mock.Anything).Return(storage.ErrQuotaExceeded)

	w := f.do(t, http.MethodDelete, "/api/images", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandleStats(t *testing.T) {
	f := newFixture(t, nil)
	f.images.On("Stats").Return(imagecache.Stats{MemoryEntries: 2})
	f.metrics.RecordFallback()

	w := f.do(t, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	decode(t, w, &body)
	for _, key := range []string{"feeds", "images", "performance", "system", "image_cache", "workers"} {
		assert.Contains(t, body, key)
	}
}

func TestHealthEndpoints(t *testing.T) {
	f := newFixture(t, storage.NewMemoryStore(0))
	f.charts.On("Online").Return(true)

	for _, path := range []string{"/health", "/ready", "/live"} {
		w := f.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, w.Code, path)

		var body healthStatus
		decode(t, w, &body)
		assert.Equal(t, "test", body.Version)
	}
}

func TestReady_StorageDown(t *testing.T) {
	f := newFixture(t, failingPinger{})
	f.charts.On("Online").Return(true)

	w := f.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body healthStatus
	decode(t, w, &body)
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "unhealthy", body.Components["storage"])

	w = f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReady_DegradedUpstreamStaysReady(t *testing.T) {
	f := newFixture(t, storage.NewMemoryStore(0))
	f.charts.On("Online").Return(false)

	w := f.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestLogger_RecordsMetrics(t *testing.T) {
	f := newFixture(t, nil)
	f.images.On("ClearCache", mock.Anything).Return(errors.New("boom"))

	f.do(t, http.MethodGet, "/live", "")
	f.do(t, http.MethodDelete, "/api/images", "")

	stats := f.metrics.GetStats()
	perf := stats["performance"].(map[string]interface{})
	assert.EqualValues(t, 2, perf["total_requests"])
	assert.EqualValues(t, 1, perf["error_count"])
}
