// Package feed описывает модель чартов Apple Music: запросы, нормализованные фиды и элементы.
package feed

import (
	"fmt"
	"strings"
)

// Type is a chart kind served by the most-played feed.
type Type string

// Типы фидов
const (
	TypeSongs       Type = "songs"
	TypeAlbums      Type = "albums"
	TypePlaylists   Type = "playlists"
	TypeMusicVideos Type = "music-videos"
)

// Request limits
const (
	DefaultCountry = "us"
	DefaultLimit   = 50
	MaxLimit       = 100
)

// legacyNames maps feed types to the old iTunes RSS feed names.
var legacyNames = map[Type]string{
	TypeSongs:       "topsongs",
	TypeAlbums:      "topalbums",
	TypeMusicVideos: "topmusicvideos",
}

// ParseType parses a feed type from its URL form
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case TypeSongs, TypeAlbums, TypePlaylists, TypeMusicVideos:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unknown feed type %q", ErrInvalidRequest, s)
	}
}

// String returns the feed type as used in URLs
func (t Type) String() string {
	return string(t)
}

// LegacyName returns the iTunes RSS feed name for the type.
// Playlists have no legacy equivalent.
func (t Type) LegacyName() (string, bool) {
	name, ok := legacyNames[t]
	return name, ok
}

// Request описывает один запрос чарта. Значение неизменяемо в рамках вызова.
type Request struct {
	Type    Type
	Country string
	Limit   int
}

// NewRequest собирает и валидирует запрос; пустые значения заменяются значениями по умолчанию
func NewRequest(feedType, country string, limit int) (Request, error) {
	t, err := ParseType(feedType)
	if err != nil {
		return Request{}, err
	}

	country = strings.ToLower(strings.TrimSpace(country))
	if country == "" {
		country = DefaultCountry
	}
	if limit == 0 {
		limit = DefaultLimit
	}

	req := Request{Type: t, Country: country, Limit: limit}
	if err := req.Validate(); err != nil {
		return Request{}, err
	}
	return req, nil
}

// Validate checks the request fields
func (r Request) Validate() error {
	if _, err := ParseType(string(r.Type)); err != nil {
		return err
	}
	if !IsValidCountry(r.Country) {
		return fmt.Errorf("%w: unknown country code %q", ErrInvalidRequest, r.Country)
	}
	if r.Limit <= 0 || r.Limit > MaxLimit {
		return fmt.Errorf("%w: limit must be between 1 and %d, got %d", ErrInvalidRequest, MaxLimit, r.Limit)
	}
	return nil
}

// Key returns a stable identifier for the request
func (r Request) Key() string {
	return fmt.Sprintf("%s/%s/%d", r.Country, r.Type, r.Limit)
}

// NormalizedFeed is the canonical chart representation. Results is never nil.
type NormalizedFeed struct {
	Title    string `json:"title"`
	Updated  string `json:"updated"`
	Country  string `json:"country,omitempty"`
	Source   string `json:"source"`
	Degraded bool   `json:"degraded"`
	Results  []Item `json:"results"`
}

// ArtworkURLs returns artwork URLs of all items in feed order, skipping empty ones
func (f *NormalizedFeed) ArtworkURLs() []string {
	if f == nil {
		return nil
	}
	urls := make([]string, 0, len(f.Results))
	for _, item := range f.Results {
		if item.ArtworkURL != "" {
			urls = append(urls, item.ArtworkURL)
		}
	}
	return urls
}

// Genre is a genre tag attached to an item
type Genre struct {
	ID   string `json:"genreId,omitempty"`
	Name string `json:"name"`
}

// Item — элемент чарта. Поля, не относящиеся к типу фида, опускаются.
type Item struct {
	ID                    string  `json:"id"`
	Name                  string  `json:"name"`
	ArtistName            string  `json:"artistName,omitempty"`
	ArtistURL             string  `json:"artistUrl,omitempty"`
	ArtworkURL            string  `json:"artworkUrl,omitempty"`
	URL                   string  `json:"url,omitempty"`
	ReleaseDate           string  `json:"releaseDate,omitempty"`
	Kind                  string  `json:"kind,omitempty"`
	ContentAdvisoryRating string  `json:"contentAdvisoryRating,omitempty"`
	Genres                []Genre `json:"genres,omitempty"`

	TrackCount     *int   `json:"trackCount,omitempty"`
	DurationMs     *int   `json:"durationMs,omitempty"`
	PreviewURL     string `json:"previewUrl,omitempty"`
	CuratorName    string `json:"curatorName,omitempty"`
	CuratorURL     string `json:"curatorUrl,omitempty"`
	Description    string `json:"description,omitempty"`
	CollectionName string `json:"collectionName,omitempty"`
	RecordLabel    string `json:"recordLabel,omitempty"`
	Copyright      string `json:"copyright,omitempty"`
	ISRC           string `json:"isrc,omitempty"`
	Placeholder    bool   `json:"placeholder,omitempty"`
}

// GenreNames joins genre names for display
func (i Item) GenreNames() string {
	names := make([]string, 0, len(i.Genres))
	for _, g := range i.Genres {
		names = append(names, g.Name)
	}
	return strings.Join(names, ", ")
}
