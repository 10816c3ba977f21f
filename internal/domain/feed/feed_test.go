package feed

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequest(t *testing.T) {
	tests := []struct {
		name     string
		feedType string
		country  string
		limit    int
		want     Request
		wantErr  bool
	}{
		{
			name:     "defaults",
			feedType: "songs",
			want:     Request{Type: TypeSongs, Country: "us", Limit: 50},
		},
		{
			name:     "upper case country",
			feedType: "Music-Videos",
			country:  "GB",
			limit:    25,
			want:     Request{Type: TypeMusicVideos, Country: "gb", Limit: 25},
		},
		{name: "unknown type", feedType: "podcasts", wantErr: true},
		{name: "unknown country", feedType: "albums", country: "0x", wantErr: true},
		{name: "three letter country", feedType: "albums", country: "usa", wantErr: true},
		{name: "negative limit", feedType: "albums", limit: -1, wantErr: true},
		{name: "limit over max", feedType: "albums", limit: MaxLimit + 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewRequest(tt.feedType, tt.country, tt.limit)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidRequest))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequestKey(t *testing.T) {
	req := Request{Type: TypePlaylists, Country: "jp", Limit: 10}
	assert.Equal(t, "jp/playlists/10", req.Key())
}

func TestLegacyName(t *testing.T) {
	name, ok := TypeSongs.LegacyName()
	assert.True(t, ok)
	assert.Equal(t, "topsongs", name)

	_, ok = TypePlaylists.LegacyName()
	assert.False(t, ok)
}

func TestTypeTitle(t *testing.T) {
	assert.Equal(t, "Top Songs", TypeSongs.Title())
	assert.Equal(t, "Top Music Videos", TypeMusicVideos.Title())
}

func TestCountries(t *testing.T) {
	countries := Countries()
	require.Len(t, countries, len(SupportedCountries))
	assert.Equal(t, Country{Code: "us", Name: "United States"}, countries[0])
	assert.Equal(t, "Japan", CountryName("jp"))
}

func TestResolveProxy(t *testing.T) {
	base, err := ResolveProxy("")
	require.NoError(t, err)
	assert.Equal(t, ProxyPresets[DefaultProxy], base)

	base, err = ResolveProxy("https://relay.example.com/?u=")
	require.NoError(t, err)
	assert.Equal(t, "https://relay.example.com/?u=", base)

	_, err = ResolveProxy("nope")
	assert.Error(t, err)
}

func TestStatusErrorIsHTTP(t *testing.T) {
	var err error = &StatusError{Code: 500, URL: "https://example.com"}
	assert.True(t, errors.Is(err, ErrHTTP))
	assert.False(t, errors.Is(err, ErrNetwork))
}

func TestArtworkURLs(t *testing.T) {
	f := &NormalizedFeed{Results: []Item{{ArtworkURL: "a"}, {}, {ArtworkURL: "b"}}}
	assert.Equal(t, []string{"a", "b"}, f.ArtworkURLs())

	var nilFeed *NormalizedFeed
	assert.Nil(t, nilFeed.ArtworkURLs())
}
