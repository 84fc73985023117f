// Package geocode calls the Google Geocoding, Elevation, and Timezone APIs
// to resolve a station's name, altitude/peak status, and timezone from
// coordinates, memoizing successes and upstream error markers in
// internal/cache (timeouts are not cached).
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/windstation-fabric/internal/cache"
	"github.com/couchcryptid/windstation-fabric/internal/observability"
	"github.com/sony/gobreaker"
)

// GeocodedNames is the short/long station name pair resolved from a reverse
// geocode, consumed by engine.DerivedNames. CountryCode is derived from any
// address component of type "country" across all results.
type GeocodedNames struct {
	ShortName   string
	Name        string
	CountryCode string
}

// ElevationInfo is the altitude and summit classification resolved by the
// 7-point elevation sample.
type ElevationInfo struct {
	Elevation float64
	IsPeak    bool
}

// Client calls the Google Geocoding, Elevation, and Timezone APIs, each
// behind its own circuit breaker and memoized in Cache.
type Client struct {
	apiKey     string
	httpClient *http.Client
	cache      cache.Cache
	logger     *slog.Logger
	metrics    *observability.Metrics
	baseURL    string

	reverseBreaker   *gobreaker.CircuitBreaker
	elevationBreaker *gobreaker.CircuitBreaker
	timezoneBreaker  *gobreaker.CircuitBreaker
}

// Option configures a Client beyond NewClient's required parameters.
type Option func(*Client)

// WithBaseURL points a Client at a different API host, e.g. an
// httptest.Server standing in for Google's APIs in another package's tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

// NewClient constructs a Client. baseURL defaults to the real Google Maps
// API host; pass WithBaseURL to override it (tests in other packages use
// this since the field itself is unexported).
func NewClient(apiKey string, timeout time.Duration, c cache.Cache, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Client {
	client := &Client{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		cache:      c,
		logger:     logger,
		metrics:    metrics,
		baseURL:    "https://maps.googleapis.com/maps/api",

		reverseBreaker:   newBreaker("google-reverse-geocode", metrics),
		elevationBreaker: newBreaker("google-elevation", metrics),
		timezoneBreaker:  newBreaker("google-timezone", metrics),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func newBreaker(name string, metrics *observability.Metrics) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     1 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(_ string, _, to gobreaker.State) {
			if metrics == nil {
				return
			}
			if to == gobreaker.StateOpen {
				metrics.CircuitBreakerOpen.WithLabelValues(name).Set(1)
			} else {
				metrics.CircuitBreakerOpen.WithLabelValues(name).Set(0)
			}
		},
	})
}

// ReverseGeocode resolves the address-component-derived short/long name for
// a coordinate, following provider.py's __parse_reverse_geocoding_results
// address-type priority order.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) Result[GeocodedNames] {
	key := fmt.Sprintf("address2/%v,%v", lat, lon)
	if entry, ok := c.lookup(ctx, key); ok {
		return decodeCached[GeocodedNames](entry, func(p map[string]any) GeocodedNames {
			return GeocodedNames{
				ShortName:   fmt.Sprintf("%v", p["short"]),
				Name:        fmt.Sprintf("%v", p["name"]),
				CountryCode: fmt.Sprintf("%v", p["country"]),
			}
		})
	}

	u := fmt.Sprintf("%s/geocode/json?%s", c.baseURL, url.Values{
		"latlng": {fmt.Sprintf("%v,%v", lat, lon)},
		"key":    {c.apiKey},
	}.Encode())

	result, outcome, err := doBreaker[geocodeResponse](ctx, c.reverseBreaker, c.httpClient, u)
	if kind, msg, ok := c.storeOutcome(ctx, key, outcome, err); !ok {
		return errResult[GeocodedNames](kind, msg)
	}
	if err != nil {
		return UpstreamError[GeocodedNames](err.Error())
	}

	names, found := parseReverseGeocodingResult(result)
	if !found {
		c.logger.Warn("google reverse geocoding: no address match", "key", key)
		return UpstreamError[GeocodedNames]("no address match")
	}
	names.CountryCode = findCountryCode(result)
	c.put(ctx, key, cache.OutcomeSuccess, map[string]any{
		"short": names.ShortName, "name": names.Name, "country": names.CountryCode,
	}, "")
	return Ok(names)
}

func findCountryCode(resp geocodeResponse) string {
	for _, r := range resp.Results {
		for _, component := range r.AddressComponents {
			if containsType(component.Types, "country") {
				return component.ShortName
			}
		}
	}
	return ""
}

var addressTypePriority = []string{
	"airport", "locality", "colloquial_area", "natural_feature",
	"point_of_interest", "neighborhood", "sublocality", "administrative_area_level_3",
}

func parseReverseGeocodingResult(resp geocodeResponse) (GeocodedNames, bool) {
	if len(resp.Results) == 0 {
		return GeocodedNames{}, false
	}

	best := resp.Results[0]
	bestRank := rankAddress(best)
	for _, r := range resp.Results[1:] {
		if rank := rankAddress(r); rank < bestRank {
			best, bestRank = r, rank
		}
	}

	for _, addressType := range addressTypePriority {
		for _, component := range best.AddressComponents {
			if containsType(component.Types, addressType) {
				return GeocodedNames{ShortName: component.ShortName, Name: component.LongName}, true
			}
		}
	}
	return GeocodedNames{}, false
}

func rankAddress(r geocodeResult) int {
	for i, addressType := range addressTypePriority {
		for _, t := range r.Types {
			if t == addressType {
				return i
			}
		}
	}
	return 100
}

func containsType(types []string, want string) bool {
	for _, t := range types {
		if t == want {
			return true
		}
	}
	return false
}

// Elevation resolves altitude and summit classification via a 7-point
// sample (the target plus 6 points on a 500m ring), following
// provider.py's __compute_elevation glide-ratio rule: a neighbour within
// glide ratio (0, 6) of the centre point marks it a peak.
func (c *Client) Elevation(ctx context.Context, lat, lon float64) Result[ElevationInfo] {
	key := fmt.Sprintf("alt/%v,%v", lat, lon)
	if entry, ok := c.lookup(ctx, key); ok {
		return decodeCached[ElevationInfo](entry, func(p map[string]any) ElevationInfo {
			elev, _ := strconv.ParseFloat(fmt.Sprintf("%v", p["alt"]), 64)
			peak := fmt.Sprintf("%v", p["is_peak"]) == "true"
			return ElevationInfo{Elevation: elev, IsPeak: peak}
		})
	}

	path := elevationSamplePath(lat, lon)
	u := fmt.Sprintf("%s/elevation/json?%s", c.baseURL, url.Values{
		"locations": {path},
		"key":       {c.apiKey},
	}.Encode())

	result, outcome, err := doBreaker[elevationResponse](ctx, c.elevationBreaker, c.httpClient, u)
	if kind, msg, ok := c.storeOutcome(ctx, key, outcome, err); !ok {
		return errResult[ElevationInfo](kind, msg)
	}
	if err != nil {
		return UpstreamError[ElevationInfo](err.Error())
	}
	if len(result.Results) == 0 {
		return UpstreamError[ElevationInfo]("elevation: empty results")
	}

	info := ElevationInfo{Elevation: result.Results[0].Elevation}
	const radius = 500.0
	for _, p := range result.Results[1:] {
		delta := info.Elevation - p.Elevation
		glideRatio := math.Inf(1)
		if delta != 0 {
			glideRatio = radius / delta
		}
		if glideRatio > 0 && glideRatio < 6 {
			info.IsPeak = true
			break
		}
	}

	c.put(ctx, key, cache.OutcomeSuccess, map[string]any{"alt": info.Elevation, "is_peak": fmt.Sprintf("%v", info.IsPeak)}, "")
	return Ok(info)
}

func elevationSamplePath(lat, lon float64) string {
	const radius = 500.0
	const earthRadius = 6378137.0
	const nb = 6

	path := fmt.Sprintf("%v,%v", lat, lon)
	for k := 0; k < nb; k++ {
		angle := 2 * math.Pi * float64(k) / nb
		dx := radius * math.Cos(angle)
		dy := radius * math.Sin(angle)
		dLat := lat + (180/math.Pi)*(dy/earthRadius)
		dLon := lon + (180/math.Pi)*(dx/earthRadius)/math.Cos(lat*math.Pi/180)
		path += fmt.Sprintf("|%v,%v", dLat, dLon)
	}
	return path
}

// Timezone resolves the IANA timezone name for a coordinate via the Google
// Timezone API.
func (c *Client) Timezone(ctx context.Context, lat, lon float64) Result[string] {
	key := fmt.Sprintf("tz/%v,%v", lat, lon)
	if entry, ok := c.lookup(ctx, key); ok {
		return decodeCached[string](entry, func(p map[string]any) string { return fmt.Sprintf("%v", p["tz"]) })
	}

	u := fmt.Sprintf("%s/timezone/json?%s", c.baseURL, url.Values{
		"location":  {fmt.Sprintf("%v,%v", lat, lon)},
		"timestamp": {"0"},
		"key":       {c.apiKey},
	}.Encode())

	result, outcome, err := doBreaker[timezoneResponse](ctx, c.timezoneBreaker, c.httpClient, u)
	if kind, msg, ok := c.storeOutcome(ctx, key, outcome, err); !ok {
		return errResult[string](kind, msg)
	}
	if err != nil {
		return UpstreamError[string](err.Error())
	}
	if result.TimeZoneID == "" {
		return UpstreamError[string]("timezone: empty timeZoneId")
	}

	c.put(ctx, key, cache.OutcomeSuccess, map[string]any{"tz": result.TimeZoneID}, "")
	return Ok(result.TimeZoneID)
}

func (c *Client) lookup(ctx context.Context, key string) (cache.Entry, bool) {
	if c.cache == nil {
		return cache.Entry{}, false
	}
	entry, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("geocode cache lookup failed", "key", key, "error", err)
		return cache.Entry{}, false
	}
	return entry, ok
}

func (c *Client) put(ctx context.Context, key string, outcome cache.Outcome, payload map[string]any, errMsg string) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Put(ctx, key, cache.Entry{Outcome: outcome, Payload: payload, Error: errMsg}); err != nil {
		c.logger.Warn("geocode cache write failed", "key", key, "error", err)
	}
}

// storeOutcome writes a sticky error marker for usage-limit and other
// upstream errors (never for timeouts or for calls the open circuit
// breaker rejected), returning ok=false with the
// Kind/message to surface when the call must not proceed further.
func (c *Client) storeOutcome(ctx context.Context, key string, outcome cache.Outcome, err error) (Kind, string, bool) {
	if err == nil {
		return KindOk, "", true
	}
	if isTimeout(err) {
		return KindTimeout, err.Error(), false
	}
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return KindUpstreamError, err.Error(), false
	}
	if ule, ok := err.(usageLimitError); ok {
		c.put(ctx, key, cache.OutcomeUsageLimit, nil, ule.Error())
		return KindUsageLimit, ule.Error(), false
	}
	c.put(ctx, key, cache.OutcomeError, nil, err.Error())
	return KindUpstreamError, err.Error(), false
}

func errResult[T any](kind Kind, msg string) Result[T] {
	switch kind {
	case KindUsageLimit:
		return UsageLimit[T](msg)
	case KindTimeout:
		return Timeout[T](msg)
	default:
		return UpstreamError[T](msg)
	}
}

func decodeCached[T any](entry cache.Entry, decode func(map[string]any) T) Result[T] {
	switch entry.Outcome {
	case cache.OutcomeSuccess:
		return Ok(decode(entry.Payload))
	case cache.OutcomeUsageLimit:
		return UsageLimit[T](entry.Error)
	default:
		return UpstreamError[T](entry.Error)
	}
}

type usageLimitError struct{ msg string }

func (e usageLimitError) Error() string { return e.msg }

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	var t timeouter
	for u := err; u != nil; {
		if te, ok := u.(timeouter); ok {
			t = te
			break
		}
		unwrap, ok := u.(interface{ Unwrap() error })
		if !ok {
			break
		}
		u = unwrap.Unwrap()
	}
	return t != nil && t.Timeout()
}

// doBreaker executes an HTTP GET against url through breaker, decoding the
// JSON body into T and mapping Google's "status" field the way
// provider.py's call_google_api does (OVER_QUERY_LIMIT -> usage-limit
// error, INVALID_REQUEST/ZERO_RESULTS -> plain error).
func doBreaker[T statusBearer](ctx context.Context, breaker *gobreaker.CircuitBreaker, httpClient *http.Client, target string) (T, cache.Outcome, error) {
	var zero T
	raw, err := breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		resp, err := httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		var body T
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, err
		}
		if status := body.apiStatus(); status == "OVER_QUERY_LIMIT" {
			return nil, usageLimitError{msg: "OVER_QUERY_LIMIT"}
		} else if status != "" && status != "OK" {
			return nil, fmt.Errorf("google api status %s", status)
		}
		return body, nil
	})
	if err != nil {
		return zero, cache.OutcomeError, err
	}
	return raw.(T), cache.OutcomeSuccess, nil
}

type statusBearer interface {
	apiStatus() string
}

type geocodeResponse struct {
	Status  string         `json:"status"`
	Results []geocodeResult `json:"results"`
}

func (r geocodeResponse) apiStatus() string { return r.Status }

type geocodeResult struct {
	Types             []string            `json:"types"`
	AddressComponents []addressComponent `json:"address_components"`
}

type addressComponent struct {
	ShortName string   `json:"short_name"`
	LongName  string   `json:"long_name"`
	Types     []string `json:"types"`
}

type elevationResponse struct {
	Status  string            `json:"status"`
	Results []elevationResult `json:"results"`
}

func (r elevationResponse) apiStatus() string { return r.Status }

type elevationResult struct {
	Elevation float64 `json:"elevation"`
}

type timezoneResponse struct {
	Status     string `json:"status"`
	TimeZoneID string `json:"timeZoneId"`
}

func (r timezoneResponse) apiStatus() string { return r.Status }
