package feed

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// TypeInfo describes a feed type for clients
type TypeInfo struct {
	Type        Type   `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Types lists feed types in display order
var Types = []TypeInfo{
	{Type: TypeSongs, Name: "Top Songs", Description: "Most popular songs on Apple Music"},
	{Type: TypeAlbums, Name: "Top Albums", Description: "Best-selling albums on Apple Music"},
	{Type: TypeMusicVideos, Name: "Music Videos", Description: "Popular music videos on Apple Music"},
	{Type: TypePlaylists, Name: "Featured Playlists", Description: "Curated playlists from Apple Music editors"},
}

// SupportedCountries — страны, которые предлагаются клиенту в селекторе
var SupportedCountries = []string{"us", "gb", "jp", "ca", "de", "fr", "au", "br", "es", "it", "kr", "mx"}

// Country is a country entry for clients
type Country struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Countries returns the supported countries with English names
func Countries() []Country {
	countries := make([]Country, 0, len(SupportedCountries))
	for _, code := range SupportedCountries {
		countries = append(countries, Country{Code: code, Name: CountryName(code)})
	}
	return countries
}

// IsValidCountry reports whether code is an ISO-3166 alpha-2 country code
func IsValidCountry(code string) bool {
	if len(code) != 2 {
		return false
	}
	region, err := language.ParseRegion(code)
	if err != nil {
		return false
	}
	return region.IsCountry()
}

// CountryName returns the English country name or the upper-cased code
func CountryName(code string) string {
	region, err := language.ParseRegion(code)
	if err != nil {
		return strings.ToUpper(code)
	}
	if name := display.English.Regions().Name(region); name != "" {
		return name
	}
	return strings.ToUpper(code)
}

// Title returns the chart title for a feed type, e.g. "Top Music Videos"
func (t Type) Title() string {
	words := strings.ReplaceAll(string(t), "-", " ")
	return "Top " + cases.Title(language.English).String(words)
}

// ProxyPresets — известные CORS-прокси; URL цели дописывается в конец в закодированном виде
var ProxyPresets = map[string]string{
	"allOrigins":   "https://api.allorigins.win/raw?url=",
	"corsAnywhere": "https://cors-anywhere.herokuapp.com/",
	"corsproxy":    "https://cors.sh/",
}

// DefaultProxy is the preset used when nothing is configured
const DefaultProxy = "allOrigins"

// ResolveProxy returns the proxy base for a preset name or an absolute URL
func ResolveProxy(nameOrURL string) (string, error) {
	if nameOrURL == "" {
		nameOrURL = DefaultProxy
	}
	if base, ok := ProxyPresets[nameOrURL]; ok {
		return base, nil
	}
	u, err := url.Parse(nameOrURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("unknown proxy %q: expected preset name or absolute URL", nameOrURL)
	}
	return nameOrURL, nil
}
