package applerss

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"musiccharts/internal/domain/feed"
)

const validFeed = `{"feed":{"title":"Top Songs","updated":"2024-05-01T00:00:00Z","country":"us","results":[` + itemJSON + `]}}`

// chartServer emulates the three upstream endpoints on one test server
type chartServer struct {
	*httptest.Server
	direct, proxy, legacy http.HandlerFunc
	hits                  sync.Map
	proxiedURL            atomic.Value
	proxyKey              atomic.Value
}

func newChartServer(t *testing.T) *chartServer {
	t.Helper()
	cs := &chartServer{}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var name string
		var h http.HandlerFunc
		switch {
		case strings.HasPrefix(r.URL.Path, "/direct"):
			name, h = StrategyDirect, cs.direct
		case strings.HasPrefix(r.URL.Path, "/proxy"):
			name, h = StrategyProxy, cs.proxy
			cs.proxiedURL.Store(r.URL.Query().Get("url"))
			cs.proxyKey.Store(r.Header.Get("x-cors-api-key"))
		case strings.HasPrefix(r.URL.Path, "/legacy"):
			name, h = StrategyLegacy, cs.legacy
		}
		counter, _ := cs.hits.LoadOrStore(name, new(int32))
		atomic.AddInt32(counter.(*int32), 1)
		if h == nil {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		h(w, r)
	}))
	t.Cleanup(cs.Close)
	return cs
}

func (cs *chartServer) hitCount(name string) int {
	counter, ok := cs.hits.Load(name)
	if !ok {
		return 0
	}
	return int(atomic.LoadInt32(counter.(*int32)))
}

func (cs *chartServer) config() Config {
	return Config{
		DirectBaseURL: cs.URL + "/direct",
		ProxyBaseURL:  cs.URL + "/proxy?url=",
		LegacyBaseURL: cs.URL + "/legacy",
		Timeout:       time.Second,
	}
}

func respond(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

type recordedResult struct {
	strategy string
	ok       bool
}

type fakeRecorder struct {
	mu        sync.Mutex
	results   []recordedResult
	fallbacks int
}

func (r *fakeRecorder) RecordStrategyResult(strategy string, ok bool, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, recordedResult{strategy: strategy, ok: ok})
}

func (r *fakeRecorder) RecordFallback() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks++
}

func songsRequest(t *testing.T) feed.Request {
	t.Helper()
	req, err := feed.NewRequest("songs", "us", 10)
	require.NoError(t, err)
	return req
}

func TestFetchFeed_DirectSuccess(t *testing.T) {
	cs := newChartServer(t)
	cs.direct = respond(validFeed)

	client := NewClient(cs.config(), cs.Client(), zap.NewNop())
	got := client.FetchFeed(context.Background(), songsRequest(t))

	require.NotNil(t, got)
	assert.Equal(t, StrategyDirect, got.Source)
	assert.False(t, got.Degraded)
	assert.Len(t, got.Results, 1)
	assert.Equal(t, 1, cs.hitCount(StrategyDirect))
	assert.Equal(t, 0, cs.hitCount(StrategyProxy))
	assert.Equal(t, 0, cs.hitCount(StrategyLegacy))
}

func TestFetchFeed_ProxyAfterDirectFailure(t *testing.T) {
	cs := newChartServer(t)
	cs.direct = func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}
	cs.proxy = respond(quote(t, validFeed))

	cfg := cs.config()
	cfg.ProxyAPIKey = "secret"
	recorder := &fakeRecorder{}
	client := NewClient(cfg, cs.Client(), zap.NewNop(), WithMetrics(recorder))
	got := client.FetchFeed(context.Background(), songsRequest(t))

	assert.Equal(t, StrategyProxy, got.Source)
	assert.Equal(t, "X", got.Results[0].Name)
	assert.Equal(t, 0, cs.hitCount(StrategyLegacy))
	assert.Equal(t, cs.URL+"/direct/us/music/most-played/10/songs.json", cs.proxiedURL.Load())
	assert.Equal(t, "secret", cs.proxyKey.Load())

	assert.Equal(t, []recordedResult{
		{strategy: StrategyDirect, ok: false},
		{strategy: StrategyProxy, ok: true},
	}, recorder.results)
	assert.Zero(t, recorder.fallbacks)
}

func TestFetchFeed_DirectTimeout(t *testing.T) {
	cs := newChartServer(t)
	cs.direct = func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}
	cs.proxy = respond(validFeed)

	cfg := cs.config()
	cfg.Timeout = 50 * time.Millisecond
	client := NewClient(cfg, cs.Client(), zap.NewNop())

	start := time.Now()
	got := client.FetchFeed(context.Background(), songsRequest(t))

	assert.Equal(t, StrategyProxy, got.Source)
	assert.Less(t, time.Since(start), time.Second)
}

func TestFetchFeed_EmptyResultsMoveOn(t *testing.T) {
	cs := newChartServer(t)
	cs.direct = respond(`{"feed":{"results":[]}}`)
	cs.proxy = respond(`{"results":[]}`)
	cs.legacy = respond(`{"feed":{"entry":[]}}`)

	client := NewClient(cs.config(), cs.Client(), zap.NewNop())
	got := client.FetchFeed(context.Background(), songsRequest(t))

	// пустой ответ старого API принимается как есть
	assert.Equal(t, StrategyLegacy, got.Source)
	assert.NotNil(t, got.Results)
	assert.Empty(t, got.Results)
	assert.Equal(t, "us", got.Country)
	assert.NotEmpty(t, got.Updated)
	assert.Equal(t, 1, cs.hitCount(StrategyProxy))
}

func TestFetchFeed_LegacyShape(t *testing.T) {
	cs := newChartServer(t)
	cs.legacy = func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/legacy/us/rss/topsongs/limit=10/json", r.URL.Path)
		respond(`{"feed":{"entry":[{"im:name":{"label":"NOKIA"},"id":{"label":"u","attributes":{"im:id":"1"}}}]}}`)(w, r)
	}

	client := NewClient(cs.config(), cs.Client(), zap.NewNop())
	got := client.FetchFeed(context.Background(), songsRequest(t))

	assert.Equal(t, StrategyLegacy, got.Source)
	require.Len(t, got.Results, 1)
	assert.Equal(t, "NOKIA", got.Results[0].Name)
}

func TestFetchFeed_AllFail(t *testing.T) {
	cs := newChartServer(t)
	cs.direct = respond("<html>oops</html>")
	cs.proxy = respond(`{"contents":"nothing"}`)

	recorder := &fakeRecorder{}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	client := NewClient(cs.config(), cs.Client(), zap.NewNop(), WithMetrics(recorder), WithClock(func() time.Time { return now }))

	got := client.FetchFeed(context.Background(), songsRequest(t))

	require.NotNil(t, got)
	assert.Equal(t, SourceFallback, got.Source)
	assert.True(t, got.Degraded)
	require.Len(t, got.Results, 1)
	assert.True(t, got.Results[0].Placeholder)
	assert.NotEmpty(t, got.Title)
	assert.Equal(t, "2024-05-01T12:00:00Z", got.Updated)
	assert.Equal(t, 1, recorder.fallbacks)
	assert.Len(t, recorder.results, 3)
}

func TestFetchFeed_PlaylistsSkipLegacy(t *testing.T) {
	cs := newChartServer(t)

	req, err := feed.NewRequest("playlists", "gb", 25)
	require.NoError(t, err)

	client := NewClient(cs.config(), cs.Client(), zap.NewNop())
	got := client.FetchFeed(context.Background(), req)

	assert.Equal(t, SourceFallback, got.Source)
	assert.Equal(t, "gb", got.Country)
	assert.Equal(t, "Today's Hits", got.Results[0].Name)
	assert.Equal(t, 0, cs.hitCount(StrategyLegacy))
}

func TestFetchFeed_CancelledContext(t *testing.T) {
	cs := newChartServer(t)
	cs.direct = respond(validFeed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	recorder := &fakeRecorder{}
	client := NewClient(cs.config(), cs.Client(), zap.NewNop(), WithMetrics(recorder))
	got := client.FetchFeed(ctx, songsRequest(t))

	assert.Equal(t, SourceFallback, got.Source)
	assert.Len(t, got.Results, 1)
	assert.Equal(t, 0, cs.hitCount(StrategyDirect))
	assert.Empty(t, recorder.results)
	assert.Zero(t, recorder.fallbacks)
}

// cancelStrategy fails the way an aborted request does
type cancelStrategy struct {
	cancel context.CancelFunc
}

func (s *cancelStrategy) Name() string { return "cancelling" }

func (s *cancelStrategy) Fetch(ctx context.Context, _ feed.Request) (*feed.NormalizedFeed, error) {
	s.cancel()
	return nil, ctx.Err()
}

func TestFetchFeed_CancelledMidChain(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	next := &stubStrategy{name: "next", feed: &feed.NormalizedFeed{Title: "T"}}
	recorder := &fakeRecorder{}
	client := NewClient(Config{}, http.DefaultClient, zap.NewNop(),
		WithMetrics(recorder), WithStrategies(&cancelStrategy{cancel: cancel}, next))

	got := client.FetchFeed(ctx, songsRequest(t))

	require.NotNil(t, got)
	assert.True(t, got.Degraded)
	assert.Equal(t, 0, next.hits)
	assert.Empty(t, recorder.results)
	assert.Zero(t, recorder.fallbacks)
}

type stubStrategy struct {
	name string
	feed *feed.NormalizedFeed
	err  error
	hits int
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Fetch(context.Context, feed.Request) (*feed.NormalizedFeed, error) {
	s.hits++
	return s.feed, s.err
}

func TestFetchFeed_CustomStrategies(t *testing.T) {
	first := &stubStrategy{name: "first", err: feed.ErrNetwork}
	second := &stubStrategy{name: "second", feed: &feed.NormalizedFeed{Title: "T"}}
	third := &stubStrategy{name: "third", err: feed.ErrShape}

	client := NewClient(Config{}, http.DefaultClient, zap.NewNop(), WithStrategies(first, second, third))
	got := client.FetchFeed(context.Background(), songsRequest(t))

	assert.Equal(t, "second", got.Source)
	assert.NotNil(t, got.Results)
	assert.Equal(t, 1, first.hits)
	assert.Equal(t, 1, second.hits)
	assert.Equal(t, 0, third.hits)
}

func TestURLBuilders(t *testing.T) {
	req := songsRequest(t)
	assert.Equal(t, "https://rss.example.com/api/v2/us/music/most-played/10/songs.json",
		canonicalURL("https://rss.example.com/api/v2/", req))
	assert.Equal(t, "https://relay/?url=https%3A%2F%2Fa%2Fb.json",
		proxyURL("https://relay/?url=", "https://a/b.json"))

	legacy, err := legacyURL("https://itunes.example.com", req)
	require.NoError(t, err)
	assert.Equal(t, "https://itunes.example.com/us/rss/topsongs/limit=10/json", legacy)

	_, err = legacyURL("https://itunes.example.com", feed.Request{Type: feed.TypePlaylists, Country: "us", Limit: 10})
	assert.ErrorIs(t, err, feed.ErrShape)
}

func TestFetcher_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := &fetcher{doer: srv.Client(), timeout: time.Second}
	_, err := f.get(context.Background(), srv.URL, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, feed.ErrHTTP)
	var statusErr *feed.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.Code)
}
