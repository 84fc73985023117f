// Package holfuy polls holfuy.com's public station list and live feed and
// pushes them through the ingestion engine. It is one of two sample
// adapters demonstrating the Engine contract (the full adapter roster —
// real per-provider network integrations — is out of scope); the other is
// internal/adapter/pioupiou.
package holfuy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/couchcryptid/windstation-fabric/internal/engine"
	"github.com/couchcryptid/windstation-fabric/internal/store"
	"github.com/couchcryptid/windstation-fabric/internal/units"
)

const (
	ProviderCode = "holfuy"
	ProviderName = "holfuy.com"
	ProviderURL  = "https://holfuy.com"

	stationsURL = "https://api.holfuy.com/stations/stations.json"
	liveURL     = "https://api.holfuy.com/live/?s=all&m=JSON&tu=C&su=km/h&utc"
)

// Adapter polls Holfuy's stations and live-measurement endpoints.
type Adapter struct {
	Engine     *engine.Engine
	HTTPClient *http.Client
	StationsURL, LiveURL string
}

// New constructs an Adapter bound to e, defaulting its HTTP client and
// endpoint URLs to the production ones.
func New(e *engine.Engine, httpClient *http.Client) *Adapter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Adapter{Engine: e, HTTPClient: httpClient, StationsURL: stationsURL, LiveURL: liveURL}
}

type stationsResponse struct {
	HolfuyStationsList []station `json:"holfuyStationsList"`
}

type station struct {
	ID       int      `json:"id"`
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Location location `json:"location"`
}

type location struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Altitude  *float64 `json:"altitude"`
}

type liveResponse struct {
	Measurements []liveMeasurement `json:"measurements"`
}

type liveMeasurement struct {
	StationID   int     `json:"stationId"`
	DateTime    string  `json:"dateTime"`
	Wind        wind    `json:"wind"`
	Temperature *float64 `json:"temperature"`
	Pressure    *float64 `json:"pressure"`
}

type wind struct {
	Direction float64 `json:"direction"`
	Speed     float64 `json:"speed"`
	Gust      float64 `json:"gust"`
}

// Run fetches the current station list and live measurements and ingests
// them through the engine, continuing past a single station's failure so
// one bad record never blocks the rest.
func (a *Adapter) Run(ctx context.Context) error {
	stations, err := fetchJSON[stationsResponse](ctx, a.HTTPClient, a.StationsURL)
	if err != nil {
		return fmt.Errorf("holfuy: fetch stations: %w", err)
	}
	live, err := fetchJSON[liveResponse](ctx, a.HTTPClient, a.LiveURL)
	if err != nil {
		return fmt.Errorf("holfuy: fetch live feed: %w", err)
	}

	byStationID := make(map[int]liveMeasurement, len(live.Measurements))
	for _, m := range live.Measurements {
		byStationID[m.StationID] = m
	}

	var lastErr error
	for _, st := range stations.HolfuyStationsList {
		if err := a.processStation(ctx, st, byStationID); err != nil {
			a.Engine.Logger.WarnContext(ctx, "holfuy: station failed", "holfuy_id", st.ID, "error", err)
			lastErr = err
		}
	}
	return lastErr
}

func (a *Adapter) processStation(ctx context.Context, st station, live map[int]liveMeasurement) error {
	lat, lon := st.Location.Latitude, st.Location.Longitude
	if lat == nil || lon == nil || (*lat == 0 && *lon == 0) {
		return fmt.Errorf("no geolocation found")
	}

	providerID := fmt.Sprintf("%d", st.ID)
	saved, err := a.Engine.SaveStation(ctx, engine.SaveStationInput{
		ProviderID: providerID,
		Names:      engine.FixedNames{Short: st.Name, Name: st.Name},
		Latitude:   *lat, Longitude: *lon,
		Status:   store.StatusGreen,
		Altitude: st.Location.Altitude,
		URL: map[string]string{
			"default": fmt.Sprintf("%s/en/weather/%d", ProviderURL, st.ID),
			"en":      fmt.Sprintf("%s/en/weather/%d", ProviderURL, st.ID),
			"de":      fmt.Sprintf("%s/de/weather/%d", ProviderURL, st.ID),
			"fr":      fmt.Sprintf("%s/fr/weather/%d", ProviderURL, st.ID),
			"it":      fmt.Sprintf("%s/it/weather/%d", ProviderURL, st.ID),
		},
	})
	if err != nil {
		return fmt.Errorf("save station: %w", err)
	}

	measure, ok := live[st.ID]
	if !ok {
		return fmt.Errorf("station %q not found in live feed: type=%s", st.Name, st.Type)
	}

	ts, err := time.Parse(time.RFC3339, measure.DateTime)
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
		WindDirection:    units.RawNumber(measure.Wind.Direction),
		WindAverage:      units.Q(measure.Wind.Speed, units.KilometersPerHour),
		WindMaximum:      units.Q(measure.Wind.Gust, units.KilometersPerHour),
	}
	if measure.Temperature != nil {
		input.Temperature = units.Q(*measure.Temperature, units.Celsius)
	}
	if measure.Pressure != nil {
		input.Pressure = &engine.PressureInput{QNH: units.Q(*measure.Pressure, units.Hectopascal)}
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
