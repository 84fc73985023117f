// Package pioupiou polls openwindmap.org's live-with-meta feed and pushes
// it through the ingestion engine. Unlike internal/adapter/holfuy it
// resolves names via engine.DerivedNames: the feed's meta.name is used when
// present, and the reverse-geocoded names otherwise. It derives station visibility from the
// uplink's own health fields instead of a fixed status.
package pioupiou

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/couchcryptid/windstation-fabric/internal/engine"
	"github.com/couchcryptid/windstation-fabric/internal/geocode"
	"github.com/couchcryptid/windstation-fabric/internal/store"
	"github.com/couchcryptid/windstation-fabric/internal/units"
)

const (
	ProviderCode = "pioupiou"
	ProviderName = "openwindmap.org"
	ProviderURL  = "https://www.openwindmap.org"

	liveURL = "https://api.pioupiou.fr/v1/live-with-meta/all"

	// staleLocationWindow is how long a station's last known location fix
	// stays considered fresh.
	staleLocationWindow = 15 * 24 * time.Hour
)

// Adapter polls Pioupiou's combined live/metadata feed.
type Adapter struct {
	Engine     *engine.Engine
	HTTPClient *http.Client
	LiveURL    string
	Clock      func() time.Time
}

// New constructs an Adapter bound to e, defaulting its HTTP client, feed
// URL, and clock to the production ones.
func New(e *engine.Engine, httpClient *http.Client) *Adapter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Adapter{Engine: e, HTTPClient: httpClient, LiveURL: liveURL, Clock: time.Now}
}

type liveResponse struct {
	Data []station `json:"data"`
}

type station struct {
	ID           int          `json:"id"`
	Location     location     `json:"location"`
	Status       statusField  `json:"status"`
	Meta         meta         `json:"meta"`
	Measurements measurements `json:"measurements"`
}

type location struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Date      string   `json:"date"`
	Success   bool     `json:"success"`
}

type statusField struct {
	State string `json:"state"`
}

type meta struct {
	Name string `json:"name"`
}

type measurements struct {
	Date         string  `json:"date"`
	WindHeading  float64 `json:"wind_heading"`
	WindSpeedAvg float64 `json:"wind_speed_avg"`
	WindSpeedMax float64 `json:"wind_speed_max"`
	Pressure     *float64 `json:"pressure"`
}

// Run fetches the current feed and ingests every station through the
// engine, continuing past a single station's failure.
func (a *Adapter) Run(ctx context.Context) error {
	feed, err := fetchJSON[liveResponse](ctx, a.HTTPClient, a.LiveURL)
	if err != nil {
		return fmt.Errorf("pioupiou: fetch live feed: %w", err)
	}

	var lastErr error
	for _, st := range feed.Data {
		if err := a.processStation(ctx, st); err != nil {
			a.Engine.Logger.WarnContext(ctx, "pioupiou: station failed", "piou_id", st.ID, "error", err)
			lastErr = err
		}
	}
	return lastErr
}

func (a *Adapter) processStation(ctx context.Context, st station) error {
	lat, lon := st.Location.Latitude, st.Location.Longitude
	if lat == nil || lon == nil || (*lat == 0 && *lon == 0) {
		return nil
	}

	var locationDate time.Time
	if st.Location.Date != "" {
		if t, err := time.Parse(time.RFC3339, st.Location.Date); err == nil {
			locationDate = t
		}
	}
	status := a.status(st.ID, st.Status.State, locationDate, st.Location.Success)

	providerID := fmt.Sprintf("%d", st.ID)

	saved, err := a.Engine.SaveStation(ctx, engine.SaveStationInput{
		ProviderID: providerID,
		Names: engine.DerivedNames{Resolve: func(n geocode.GeocodedNames) (string, string) {
			if st.Meta.Name != "" {
				return st.Meta.Name, st.Meta.Name
			}
			return n.ShortName, n.Name
		}},
		Latitude:   *lat, Longitude: *lon,
		Status: status,
		URL:    fmt.Sprintf("%s/PP%d", ProviderURL, st.ID),
	})
	if err != nil {
		return fmt.Errorf("save station: %w", err)
	}

	if st.Measurements.Date == "" {
		return nil
	}
	ts, err := time.Parse(time.RFC3339, st.Measurements.Date)
	if err != nil {
		return fmt.Errorf("parse measurement time: %w", err)
	}
	key := ts.Unix()

	has, err := a.Engine.HasMeasure(ctx, saved, key)
	if err != nil {
		return fmt.Errorf("check existing measure: %w", err)
	}
	if has {
		return nil
	}

	input := engine.MeasureInput{
		TimestampSeconds: key,
		WindDirection:    units.RawNumber(st.Measurements.WindHeading),
		WindAverage:      units.RawNumber(st.Measurements.WindSpeedAvg),
		WindMaximum:      units.RawNumber(st.Measurements.WindSpeedMax),
	}
	if st.Measurements.Pressure != nil {
		input.Pressure = &engine.PressureInput{QFE: units.RawNumber(*st.Measurements.Pressure)}
	}

	created, err := a.Engine.CreateMeasure(ctx, saved, input)
	if err != nil {
		return fmt.Errorf("create measure: %w", err)
	}
	if _, err := a.Engine.InsertMeasures(ctx, saved, []store.Measurement{created}); err != nil {
		return fmt.Errorf("insert measure: %w", err)
	}
	return nil
}

// status derives station visibility from uplink health: a station
// reporting "off" uplink state is hidden outright; an "on" station with a
// stale or missing location fix is downgraded to orange (or red, if there
// has never been a known location at all).
func (a *Adapter) status(stationID int, uplinkState string, locationDate time.Time, locationSuccess bool) store.Status {
	if uplinkState != "on" {
		return store.StatusHidden
	}
	if locationDate.IsZero() {
		a.Engine.Logger.Warn("pioupiou: no last known location", "piou_id", stationID)
		return store.StatusRed
	}

	upToDate := a.Clock().Sub(locationDate) < staleLocationWindow
	if !upToDate {
		a.Engine.Logger.Warn("pioupiou: last known location is stale", "piou_id", stationID, "location_date", locationDate)
	}
	if locationSuccess && upToDate {
		return store.StatusGreen
	}
	return store.StatusOrange
}

func fetchJSON[T any](ctx context.Context, client *http.Client, url string) (T, error) {
	var zero T
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return zero, fmt.Errorf("create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return zero, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return zero, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}

	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return zero, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}
