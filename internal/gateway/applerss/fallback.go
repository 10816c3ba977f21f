package applerss

import (
	"time"

	"musiccharts/internal/domain/feed"
)

// SourceFallback marks feeds synthesized without any network data
const SourceFallback = "fallback"

// placeholders — по одной записи на тип фида, чтобы клиенту всегда было что показать
var placeholders = map[feed.Type]rawItem{
	feed.TypeSongs: {
		ID:                    "1796127375",
		Name:                  "NOKIA",
		ArtistName:            "Drake",
		ArtistURL:             "https://music.apple.com/us/artist/drake/271256",
		ArtworkURL100:         "https://is1-ssl.mzstatic.com/image/thumb/Music211/v4/34/10/1e/34101e1f-f4b9-907a-ce47-3fba5b3ee5e8/50222.jpg/100x100bb.jpg",
		URL:                   "https://music.apple.com/us/album/nokia/1796127242?i=1796127375",
		ReleaseDate:           "2023-02-14",
		Kind:                  "songs",
		ContentAdvisoryRating: "Explicit",
		Genres:                []feed.Genre{{ID: "15", Name: "R&B/Soul"}, {ID: "34", Name: "Music"}},
	},
	feed.TypeAlbums: {
		ID:                    "1713575456",
		Name:                  "The Tortured Poets Department",
		ArtistName:            "Taylor Swift",
		ArtistURL:             "https://music.apple.com/us/artist/taylor-swift/159260351",
		ArtworkURL100:         "https://is1-ssl.mzstatic.com/image/thumb/Music116/v4/8e/b6/23/8eb623f9-b0d7-0d0e-8b2a-5d145e7cf9cf/23UM1IM46882.rgb.jpg/100x100bb.jpg",
		URL:                   "https://music.apple.com/us/album/the-tortured-poets-department/1713575456",
		ReleaseDate:           "2023-04-19",
		Kind:                  "albums",
		ContentAdvisoryRating: "Explicit",
		Genres:                []feed.Genre{{ID: "14", Name: "Pop"}, {ID: "34", Name: "Music"}},
	},
	feed.TypePlaylists: {
		ID:            "pl.a5ef67f3dde74a0b9930944b2f74e9b5",
		Name:          "Today's Hits",
		CuratorName:   "Apple Music",
		CuratorURL:    "https://music.apple.com/us/curator/apple-music/976439526",
		ArtworkURL100: "https://is1-ssl.mzstatic.com/image/thumb/Features116/v4/77/5a/c7/775ac764-9c2e-2d2a-e022-f8bc9ec6ae3e/source/100x100bb.jpg",
		URL:           "https://music.apple.com/us/playlist/todays-hits/pl.a5ef67f3dde74a0b9930944b2f74e9b5",
		Description:   "The songs everyone is listening to right now.",
	},
	feed.TypeMusicVideos: {
		ID:            "1739659144",
		Name:          "WILDFLOWER",
		ArtistName:    "Billie Eilish",
		ArtistURL:     "https://music.apple.com/us/artist/billie-eilish/1065981054",
		ArtworkURL100: "https://is1-ssl.mzstatic.com/image/thumb/Music211/v4/92/9f/69/929f69f1-9977-3a44-d674-11f70c852d1b/24UMGIM36186.rgb.jpg/100x100bb.jpg",
		URL:           "https://music.apple.com/us/music-video/wildflower/1739659144",
		ReleaseDate:   "2023-05-17",
		Kind:          "music-videos",
		Genres:        []feed.Genre{{ID: "20", Name: "Alternative"}, {ID: "34", Name: "Music"}},
	},
}

// Fallback builds the single-item feed returned when every strategy failed.
// Unknown feed types fall back to songs.
func Fallback(req feed.Request, now time.Time) *feed.NormalizedFeed {
	feedType := req.Type
	raw, ok := placeholders[feedType]
	if !ok {
		feedType = feed.TypeSongs
		raw = placeholders[feedType]
	}

	item := mapItem(feedType, raw)
	item.Placeholder = true

	country := req.Country
	if country == "" {
		country = feed.DefaultCountry
	}

	return &feed.NormalizedFeed{
		Title:    feedType.Title() + " (Fallback)",
		Updated:  now.UTC().Format(time.RFC3339),
		Country:  country,
		Source:   SourceFallback,
		Degraded: true,
		Results:  []feed.Item{item},
	}
}
