package livedata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/markusmobius/go-trafilatura"

	"blackhole/internal/textproc"
)

const (
	SourceWeather = "weather"
	SourceWeb     = "web"

	DefaultWeatherURL      = "https://wttr.in/%s?format=j1"
	DefaultWeatherLocation = "London"
)

var (
	// ErrUnknownSource is returned when no source is registered under a name
	ErrUnknownSource = errors.New("unknown live data source")
	// ErrDisallowed is returned when robots.txt forbids fetching a URL
	ErrDisallowed = errors.New("fetching disallowed by robots.txt")
	// ErrNoContent is returned when a page has no extractable text
	ErrNoContent = errors.New("no content extracted from page")
)

// Source fetches fresh data for a query
type Source interface {
	Name() string
	Fetch(ctx context.Context, query string) (map[string]interface{}, error)
}

// Sources is a registry of sources keyed by name
type Sources struct {
	byName map[string]Source
}

// NewSources registers the given sources
func NewSources(sources ...Source) *Sources {
	s := &Sources{byName: make(map[string]Source, len(sources))}
	for _, src := range sources {
		s.byName[src.Name()] = src
	}
	return s
}

// Get returns the source registered under name
func (s *Sources) Get(name string) (Source, error) {
	src, ok := s.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, name)
	}
	return src, nil
}

// Names lists registered source names in sorted order
func (s *Sources) Names() []string {
	names := make([]string, 0, len(s.byName))
	for name := range s.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var weatherPrefix = regexp.MustCompile(`(?i)^\s*(?:what(?:'s| is) the )?(?:current )?weather(?:\s+(?:in|for|at))?\s*`)

// WeatherSource reads current conditions from a wttr.in style JSON endpoint
type WeatherSource struct {
	fetcher   *Fetcher
	urlFormat string
}

// NewWeatherSource creates a weather source. urlFormat must contain one %s
// for the location.
func NewWeatherSource(fetcher *Fetcher, urlFormat string) *WeatherSource {
	if urlFormat == "" {
		urlFormat = DefaultWeatherURL
	}
	return &WeatherSource{fetcher: fetcher, urlFormat: urlFormat}
}

func (w *WeatherSource) Name() string { return SourceWeather }

// Location extracts the place name from a free-form weather query
func Location(query string) string {
	loc := strings.TrimSpace(weatherPrefix.ReplaceAllString(query, ""))
	loc = strings.TrimRight(loc, "?!. ")
	if loc == "" {
		return DefaultWeatherLocation
	}
	return loc
}

func (w *WeatherSource) Fetch(ctx context.Context, query string) (map[string]interface{}, error) {
	location := Location(query)
	apiURL := fmt.Sprintf(w.urlFormat, url.PathEscape(location))

	resp, err := w.fetcher.Get(ctx, apiURL)
	if err != nil {
		return nil, err
	}

	var report wttrReport
	if err := json.Unmarshal(resp.Body, &report); err != nil {
		return nil, fmt.Errorf("failed to decode weather response: %w", err)
	}

	data := map[string]interface{}{
		"location": location,
		"api_url":  apiURL,
	}
	if len(report.Current) > 0 {
		c := report.Current[0]
		data["current"] = map[string]interface{}{
			"temp_c":           c.TempC,
			"temp_f":           c.TempF,
			"feels_like_c":     c.FeelsLikeC,
			"humidity":         c.Humidity,
			"wind_kmph":        c.WindKmph,
			"description":      firstValue(c.WeatherDesc),
			"observation_time": c.ObservationTime,
		}
	}
	if len(report.NearestArea) > 0 {
		a := report.NearestArea[0]
		data["area"] = map[string]interface{}{
			"name":    firstValue(a.AreaName),
			"region":  firstValue(a.Region),
			"country": firstValue(a.Country),
		}
	}
	if len(report.Weather) > 0 {
		days := make([]interface{}, 0, len(report.Weather))
		for _, d := range report.Weather {
			days = append(days, map[string]interface{}{
				"date":      d.Date,
				"max_c":     d.MaxTempC,
				"min_c":     d.MinTempC,
				"avg_c":     d.AvgTempC,
				"sun_hours": d.SunHour,
			})
		}
		data["forecast"] = days
	}
	return data, nil
}

type wttrValue struct {
	Value string `json:"value"`
}

func firstValue(v []wttrValue) string {
	if len(v) == 0 {
		return ""
	}
	return v[0].Value
}

type wttrReport struct {
	Current []struct {
		TempC           string      `json:"temp_C"`
		TempF           string      `json:"temp_F"`
		FeelsLikeC      string      `json:"FeelsLikeC"`
		Humidity        string      `json:"humidity"`
		WindKmph        string      `json:"windspeedKmph"`
		ObservationTime string      `json:"observation_time"`
		WeatherDesc     []wttrValue `json:"weatherDesc"`
	} `json:"current_condition"`
	NearestArea []struct {
		AreaName []wttrValue `json:"areaName"`
		Region   []wttrValue `json:"region"`
		Country  []wttrValue `json:"country"`
	} `json:"nearest_area"`
	Weather []struct {
		Date     string `json:"date"`
		MaxTempC string `json:"maxtempC"`
		MinTempC string `json:"mintempC"`
		AvgTempC string `json:"avgtempC"`
		SunHour  string `json:"sunHour"`
	} `json:"weather"`
}

// WebSource fetches a page and extracts its main text. The query is the page URL.
type WebSource struct {
	fetcher *Fetcher
	robots  *RobotsChecker
	maxText int
}

// NewWebSource creates a web source honoring robots.txt
func NewWebSource(fetcher *Fetcher) *WebSource {
	return &WebSource{
		fetcher: fetcher,
		robots:  NewRobotsChecker(fetcher),
		maxText: 100_000,
	}
}

func (s *WebSource) Name() string { return SourceWeb }

func (s *WebSource) Fetch(ctx context.Context, query string) (map[string]interface{}, error) {
	u, err := s.fetcher.check(strings.TrimSpace(query))
	if err != nil {
		return nil, err
	}

	allowed, delay := s.robots.Allowed(ctx, u)
	if !allowed {
		return nil, fmt.Errorf("%w: %s", ErrDisallowed, u.Redacted())
	}
	s.fetcher.SetCrawlDelay(u.Host, delay)

	resp, err := s.fetcher.Get(ctx, u.String())
	if err != nil {
		return nil, err
	}

	data := map[string]interface{}{
		"url":          u.String(),
		"content_type": resp.ContentType,
	}

	if strings.Contains(resp.ContentType, "json") {
		var payload interface{}
		if err := json.Unmarshal(resp.Body, &payload); err != nil {
			return nil, fmt.Errorf("failed to decode JSON response: %w", err)
		}
		data["json"] = payload
		return data, nil
	}

	result, err := trafilatura.Extract(bytes.NewReader(resp.Body), trafilatura.Options{OriginalURL: u})
	if err != nil {
		return nil, fmt.Errorf("failed to extract content: %w", err)
	}
	if result == nil || strings.TrimSpace(result.ContentText) == "" {
		return nil, ErrNoContent
	}

	text := textproc.Normalize(result.ContentText)
	truncated := false
	if len(text) > s.maxText {
		text = textproc.Preview(text, s.maxText)
		truncated = true
	}

	data["title"] = result.Metadata.Title
	data["text"] = text
	data["word_count"] = textproc.CountWords(text)
	data["truncated"] = truncated
	if result.Metadata.Author != "" {
		data["author"] = result.Metadata.Author
	}
	if result.Metadata.Sitename != "" {
		data["site_name"] = result.Metadata.Sitename
	}
	if result.Metadata.Description != "" {
		data["description"] = result.Metadata.Description
	}
	if !result.Metadata.Date.IsZero() {
		data["published"] = result.Metadata.Date
	}
	return data, nil
}
