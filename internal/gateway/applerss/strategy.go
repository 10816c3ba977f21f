package applerss

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"musiccharts/internal/domain/feed"
)

// Strategy names
const (
	StrategyDirect = "direct"
	StrategyProxy  = "proxy"
	StrategyLegacy = "legacy"
)

// maxFeedBytes caps the body read from any feed endpoint
const maxFeedBytes = 10 << 20

// HTTPDoer is satisfied by *http.Client
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Strategy is one way of getting a chart. Fetch returns a validated feed or an error.
type Strategy interface {
	Name() string
	Fetch(ctx context.Context, req feed.Request) (*feed.NormalizedFeed, error)
}

type decodeFunc func(raw []byte, feedType feed.Type) (*feed.NormalizedFeed, error)

// endpointStrategy fetches one URL derived from the request and decodes the body
type endpointStrategy struct {
	name     string
	buildURL func(req feed.Request) (string, error)
	headers  http.Header
	decode   decodeFunc
	fetcher  *fetcher
}

func (s *endpointStrategy) Name() string {
	return s.name
}

func (s *endpointStrategy) Fetch(ctx context.Context, req feed.Request) (*feed.NormalizedFeed, error) {
	target, err := s.buildURL(req)
	if err != nil {
		return nil, err
	}
	body, err := s.fetcher.get(ctx, target, s.headers)
	if err != nil {
		return nil, err
	}
	return s.decode(body, req.Type)
}

// canonicalURL builds the RSS v2 most-played URL
func canonicalURL(base string, req feed.Request) string {
	return fmt.Sprintf("%s/%s/music/most-played/%d/%s.json",
		strings.TrimRight(base, "/"), req.Country, req.Limit, req.Type)
}

// proxyURL rewrites target through a CORS relay
func proxyURL(proxyBase, target string) string {
	return proxyBase + url.QueryEscape(target)
}

// legacyURL builds the iTunes RSS URL; playlists are not available there
func legacyURL(base string, req feed.Request) (string, error) {
	name, ok := req.Type.LegacyName()
	if !ok {
		return "", fmt.Errorf("%w: no legacy feed for %s", feed.ErrShape, req.Type)
	}
	return fmt.Sprintf("%s/%s/rss/%s/limit=%d/json",
		strings.TrimRight(base, "/"), req.Country, name, req.Limit), nil
}

func newDirectStrategy(cfg Config, f *fetcher) Strategy {
	return &endpointStrategy{
		name: StrategyDirect,
		buildURL: func(req feed.Request) (string, error) {
			return canonicalURL(cfg.DirectBaseURL, req), nil
		},
		decode:  strictDecode(Normalize),
		fetcher: f,
	}
}

func newProxyStrategy(cfg Config, f *fetcher) Strategy {
	headers := http.Header{}
	if cfg.ProxyAPIKey != "" {
		headers.Set("x-cors-api-key", cfg.ProxyAPIKey)
	}
	return &endpointStrategy{
		name: StrategyProxy,
		buildURL: func(req feed.Request) (string, error) {
			return proxyURL(cfg.ProxyBaseURL, canonicalURL(cfg.DirectBaseURL, req)), nil
		},
		headers: headers,
		decode:  strictDecode(Normalize),
		fetcher: f,
	}
}

// newLegacyStrategy is the last network stage: an empty but well-formed feed is accepted
func newLegacyStrategy(cfg Config, f *fetcher) Strategy {
	return &endpointStrategy{
		name: StrategyLegacy,
		buildURL: func(req feed.Request) (string, error) {
			return legacyURL(cfg.LegacyBaseURL, req)
		},
		decode: func(raw []byte, feedType feed.Type) (*feed.NormalizedFeed, error) {
			return NormalizeLegacy(raw, feedType, true)
		},
		fetcher: f,
	}
}

func strictDecode(normalize func([]byte, feed.Type, bool) (*feed.NormalizedFeed, error)) decodeFunc {
	return func(raw []byte, feedType feed.Type) (*feed.NormalizedFeed, error) {
		return normalize(raw, feedType, false)
	}
}

// fetcher performs a single GET with a per-attempt timeout
type fetcher struct {
	doer      HTTPDoer
	timeout   time.Duration
	userAgent string
}

func (f *fetcher) get(ctx context.Context, target string, headers http.Header) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", feed.ErrNetwork, err)
	}
	req.Header.Set("Accept", "application/json")
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	for key, values := range headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := f.doer.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: request timed out after %s", feed.ErrNetwork, f.timeout)
		}
		return nil, fmt.Errorf("%w: %v", feed.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, &feed.StatusError{Code: resp.StatusCode, URL: target}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response body: %v", feed.ErrNetwork, err)
	}
	return body, nil
}
