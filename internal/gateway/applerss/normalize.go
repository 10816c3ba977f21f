package applerss

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"musiccharts/internal/domain/feed"
)

// maxUnwrap bounds how many JSON string layers are peeled off a payload
const maxUnwrap = 2

// envelope is the part of a chart payload we care about. It appears either
// under "feed" or flattened at the top level.
type envelope struct {
	Title   string          `json:"title"`
	Updated string          `json:"updated"`
	Country string          `json:"country"`
	Results json.RawMessage `json:"results"`
}

type document struct {
	Feed *envelope `json:"feed"`
	envelope
}

// rawItem is an item as the RSS v2 API (and most proxies) return it
type rawItem struct {
	ID                    flexString    `json:"id"`
	Name                  string        `json:"name"`
	ArtistName            string        `json:"artistName"`
	ArtistURL             string        `json:"artistUrl"`
	ArtworkURL100         string        `json:"artworkUrl100"`
	URL                   string        `json:"url"`
	ReleaseDate           string        `json:"releaseDate"`
	Kind                  string        `json:"kind"`
	ContentAdvisoryRating string        `json:"contentAdvisoryRating"`
	Genres                []feed.Genre  `json:"genres"`
	TrackCount            *int          `json:"trackCount"`
	Duration              *int          `json:"duration"`
	Previews              []rawPreview  `json:"previews"`
	CuratorName           string        `json:"curatorName"`
	CuratorURL            string        `json:"curatorUrl"`
	Description           textValue     `json:"description"`
	EditorialNotes        *editorial    `json:"editorialNotes"`
	CollectionName        string        `json:"collectionName"`
	RecordLabel           string        `json:"recordLabel"`
	Copyright             string        `json:"copyright"`
	ISRC                  string        `json:"isrc"`
}

type rawPreview struct {
	URL string `json:"url"`
}

type editorial struct {
	Standard string `json:"standard"`
	Short    string `json:"short"`
}

// flexString accepts both JSON strings and numbers
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*s = flexString(n.String())
	return nil
}

// textValue accepts a plain string or an object with standard/short variants
type textValue string

func (v *textValue) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = textValue(s)
		return nil
	}
	var e editorial
	if err := json.Unmarshal(data, &e); err != nil {
		return err
	}
	if e.Standard != "" {
		*v = textValue(e.Standard)
	} else {
		*v = textValue(e.Short)
	}
	return nil
}

// Normalize приводит ответ к NormalizedFeed. Поддерживаются формы
// {feed:{results}}, {results} и JSON-строка с любой из них.
// Пустой results считается ошибкой формы, если acceptEmpty не задан.
func Normalize(raw []byte, feedType feed.Type, acceptEmpty bool) (*feed.NormalizedFeed, error) {
	data, err := unwrapJSON(raw)
	if err != nil {
		return nil, err
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decoding payload: %v", feed.ErrShape, err)
	}

	env := selectEnvelope(&doc)
	if env == nil {
		return nil, fmt.Errorf("%w: payload has no results", feed.ErrShape)
	}

	var items []rawItem
	if err := json.Unmarshal(env.Results, &items); err != nil {
		return nil, fmt.Errorf("%w: results is not a list of items: %v", feed.ErrShape, err)
	}
	if len(items) == 0 && !acceptEmpty {
		return nil, fmt.Errorf("%w: results is empty", feed.ErrShape)
	}

	return buildFeed(env.Title, env.Updated, env.Country, feedType, items), nil
}

// unwrapJSON strips surrounding whitespace and JSON string layers and returns
// the bytes of a JSON object
func unwrapJSON(raw []byte) ([]byte, error) {
	data := bytes.TrimSpace(raw)
	for depth := 0; depth <= maxUnwrap; depth++ {
		if len(data) == 0 {
			return nil, fmt.Errorf("%w: empty body", feed.ErrParse)
		}
		switch data[0] {
		case '"':
			var s string
			if err := json.Unmarshal(data, &s); err != nil {
				return nil, fmt.Errorf("%w: %v", feed.ErrParse, err)
			}
			data = bytes.TrimSpace([]byte(s))
		case '{':
			if !json.Valid(data) {
				return nil, fmt.Errorf("%w: invalid JSON object", feed.ErrParse)
			}
			return data, nil
		default:
			if json.Valid(data) {
				return nil, fmt.Errorf("%w: payload is not a JSON object", feed.ErrShape)
			}
			return nil, fmt.Errorf("%w: body is not JSON", feed.ErrParse)
		}
	}
	return nil, fmt.Errorf("%w: payload nested too deeply in strings", feed.ErrParse)
}

func selectEnvelope(doc *document) *envelope {
	if doc.Feed != nil && hasValue(doc.Feed.Results) {
		return doc.Feed
	}
	if hasValue(doc.Results) {
		env := doc.envelope
		if doc.Feed != nil {
			// заголовок мог остаться в feed, а results вынесен наверх
			if env.Title == "" {
				env.Title = doc.Feed.Title
			}
			if env.Updated == "" {
				env.Updated = doc.Feed.Updated
			}
		}
		return &env
	}
	return nil
}

func hasValue(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

func buildFeed(title, updated, country string, feedType feed.Type, items []rawItem) *feed.NormalizedFeed {
	if title == "" {
		title = feedType.Title()
	}
	results := make([]feed.Item, 0, len(items))
	for _, item := range items {
		results = append(results, mapItem(feedType, item))
	}
	return &feed.NormalizedFeed{
		Title:   title,
		Updated: updated,
		Country: country,
		Results: results,
	}
}

// mapItem raises the artwork resolution and fills in type-specific fields
func mapItem(feedType feed.Type, raw rawItem) feed.Item {
	item := feed.Item{
		ID:                    string(raw.ID),
		Name:                  raw.Name,
		ArtistName:            raw.ArtistName,
		ArtistURL:             raw.ArtistURL,
		ArtworkURL:            upscaleArtwork(raw.ArtworkURL100),
		URL:                   raw.URL,
		ReleaseDate:           raw.ReleaseDate,
		Kind:                  raw.Kind,
		ContentAdvisoryRating: raw.ContentAdvisoryRating,
		Genres:                raw.Genres,
		Copyright:             raw.Copyright,
	}

	switch feedType {
	case feed.TypePlaylists:
		item.CuratorName = raw.CuratorName
		item.CuratorURL = raw.CuratorURL
		item.ArtistName = raw.CuratorName
		if item.ArtistName == "" {
			item.ArtistName = "Apple Music"
		}
		item.ArtistURL = raw.CuratorURL
		item.Description = string(raw.Description)
		item.TrackCount = raw.TrackCount
	case feed.TypeMusicVideos:
		item.PreviewURL = firstPreview(raw.Previews)
		item.DurationMs = raw.Duration
		item.CollectionName = raw.CollectionName
	case feed.TypeAlbums:
		item.TrackCount = raw.TrackCount
		item.RecordLabel = raw.RecordLabel
		if raw.EditorialNotes != nil {
			item.Description = raw.EditorialNotes.Standard
			if item.Description == "" {
				item.Description = raw.EditorialNotes.Short
			}
		}
	default:
		item.CollectionName = raw.CollectionName
		item.DurationMs = raw.Duration
		item.PreviewURL = firstPreview(raw.Previews)
		item.ISRC = raw.ISRC
	}

	return item
}

func firstPreview(previews []rawPreview) string {
	if len(previews) == 0 {
		return ""
	}
	return previews[0].URL
}

// upscaleArtwork swaps the 100x100 thumbnail for the 300x300 variant
func upscaleArtwork(u string) string {
	return strings.Replace(u, "100x100", "300x300", 1)
}

// atoiOrNil parses an integer attribute, nil when absent or malformed
func atoiOrNil(s string) *int {
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}
