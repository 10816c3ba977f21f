package applerss

import (
	"bytes"
	"encoding/json"
	"fmt"

	"musiccharts/internal/domain/feed"
)

// Старый iTunes RSS отдает значения в виде {"label": ..., "attributes": {...}}.

type label struct {
	Label string `json:"label"`
}

type legacyDocument struct {
	Feed *struct {
		Title   label         `json:"title"`
		Updated label         `json:"updated"`
		Entry   legacyEntries `json:"entry"`
	} `json:"feed"`
}

type legacyEntry struct {
	Name   label `json:"im:name"`
	Images []struct {
		Label string `json:"label"`
	} `json:"im:image"`
	Artist struct {
		Label      string `json:"label"`
		Attributes struct {
			Href string `json:"href"`
		} `json:"attributes"`
	} `json:"im:artist"`
	ID struct {
		Label      string `json:"label"`
		Attributes struct {
			ID string `json:"im:id"`
		} `json:"attributes"`
	} `json:"id"`
	ReleaseDate label `json:"im:releaseDate"`
	Category    struct {
		Attributes struct {
			ID    string `json:"im:id"`
			Label string `json:"label"`
		} `json:"attributes"`
	} `json:"category"`
	Rights     label `json:"rights"`
	Collection struct {
		Name label `json:"im:name"`
	} `json:"im:collection"`
	Duration struct {
		Attributes struct {
			Duration string `json:"duration"`
		} `json:"attributes"`
	} `json:"im:duration"`
}

// legacyEntries accepts a single entry object as well as a list.
// The endpoint returns an object when the chart has exactly one item.
type legacyEntries []legacyEntry

func (e *legacyEntries) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var single legacyEntry
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return err
		}
		*e = legacyEntries{single}
		return nil
	}
	var list []legacyEntry
	if err := json.Unmarshal(trimmed, &list); err != nil {
		return err
	}
	*e = list
	return nil
}

// NormalizeLegacy decodes the legacy iTunes shape. Payloads that already use
// the RSS v2 shape go through Normalize.
func NormalizeLegacy(raw []byte, feedType feed.Type, acceptEmpty bool) (*feed.NormalizedFeed, error) {
	data, err := unwrapJSON(raw)
	if err != nil {
		return nil, err
	}

	var doc legacyDocument
	if err := json.Unmarshal(data, &doc); err != nil || doc.Feed == nil || doc.Feed.Entry == nil {
		return Normalize(data, feedType, acceptEmpty)
	}

	entries := doc.Feed.Entry
	if len(entries) == 0 && !acceptEmpty {
		return nil, fmt.Errorf("%w: legacy feed has no entries", feed.ErrShape)
	}

	items := make([]rawItem, 0, len(entries))
	for _, entry := range entries {
		items = append(items, entry.toRawItem(feedType))
	}

	return buildFeed(doc.Feed.Title.Label, doc.Feed.Updated.Label, "", feedType, items), nil
}

func (e legacyEntry) toRawItem(feedType feed.Type) rawItem {
	item := rawItem{
		ID:             flexString(e.ID.Attributes.ID),
		Name:           e.Name.Label,
		ArtistName:     e.Artist.Label,
		ArtistURL:      e.Artist.Attributes.Href,
		URL:            e.ID.Label,
		ReleaseDate:    dateOnly(e.ReleaseDate.Label),
		Kind:           string(feedType),
		Copyright:      e.Rights.Label,
		CollectionName: e.Collection.Name.Label,
		Duration:       atoiOrNil(e.Duration.Attributes.Duration),
	}
	if len(e.Images) > 0 {
		// последняя картинка самая крупная
		item.ArtworkURL100 = e.Images[len(e.Images)-1].Label
	}
	if e.Category.Attributes.Label != "" {
		item.Genres = []feed.Genre{{ID: e.Category.Attributes.ID, Name: e.Category.Attributes.Label}}
	}
	return item
}

func dateOnly(s string) string {
	if len(s) >= 10 {
		return s[:10]
	}
	return s
}
