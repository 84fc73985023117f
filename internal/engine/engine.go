package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/couchcryptid/windstation-fabric/internal/cache"
	"github.com/couchcryptid/windstation-fabric/internal/events"
	"github.com/couchcryptid/windstation-fabric/internal/geocode"
	"github.com/couchcryptid/windstation-fabric/internal/observability"
	"github.com/couchcryptid/windstation-fabric/internal/pressure"
	"github.com/couchcryptid/windstation-fabric/internal/store"
	"github.com/couchcryptid/windstation-fabric/internal/units"
	"github.com/jonboulle/clockwork"
)

// Engine is the capability handle every adapter function receives, bound
// to exactly one provider for its lifetime: one adapter owns each
// provider code.
type Engine struct {
	ProviderCode string
	ProviderName string
	ProviderURL  string

	Store    store.Store
	Cache    cache.Cache
	Geocoder *geocode.Client
	Logger   *slog.Logger
	Metrics  *observability.Metrics
	Clock    clockwork.Clock
	Events   events.Publisher
}

// NewEngine constructs an Engine for one provider. A nil Events defaults to
// events.NoopPublisher, and a nil Clock defaults to the package clock.
func NewEngine(providerCode, providerName, providerURL string, st store.Store, c cache.Cache, geocoder *geocode.Client, logger *slog.Logger, metrics *observability.Metrics, clk clockwork.Clock, publisher events.Publisher) *Engine {
	if clk == nil {
		clk = clock
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Engine{
		ProviderCode: providerCode, ProviderName: providerName, ProviderURL: providerURL,
		Store: st, Cache: c, Geocoder: geocoder, Logger: logger, Metrics: metrics,
		Clock: clk, Events: publisher,
	}
}

// GetStationID returns the canonical station identifier for providerID,
// "<provider_code>-<provider_station_id>".
func (e *Engine) GetStationID(providerID string) string {
	return e.ProviderCode + "-" + providerID
}

// SaveStationInput carries the fields an adapter supplies when it has
// observed a station.
type SaveStationInput struct {
	ProviderID string
	Names      Names
	Latitude   float64
	Longitude  float64
	Status     store.Status
	Altitude   *float64
	Timezone   *string
	// URL is nil (use the provider default), a string (one URL used as
	// "default"), or a map[string]string that must contain "default".
	URL any
}

// SaveStation resolves names/altitude/timezone (enriching from external
// services only when needed), applies any fix override, and upserts the
// station document.
func (e *Engine) SaveStation(ctx context.Context, in SaveStationInput) (store.Station, error) {
	if in.ProviderID == "" {
		return store.Station{}, fmt.Errorf("%w: missing provider_id", ErrInvalidInput)
	}
	lat, lon := units.Round(in.Latitude, 6), units.Round(in.Longitude, 6)
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return store.Station{}, fmt.Errorf("%w: invalid coordinates %v,%v", ErrInvalidInput, lat, lon)
	}

	stationID := e.GetStationID(in.ProviderID)
	existing, found, err := e.Store.GetStation(ctx, stationID)
	if err != nil {
		return store.Station{}, fmt.Errorf("%w: %v", ErrTransientStorage, err)
	}

	moved := !found || hasMovedSignificantly(existing.Location.Lat, existing.Location.Lon, lat, lon)

	shortName, name, countryCode, err := e.resolveNames(ctx, in.Names, existing, found, moved, lat, lon)
	if err != nil {
		return store.Station{}, err
	}
	if shortName == "" || name == "" {
		return store.Station{}, fmt.Errorf("%w: invalid station short_name %q or name %q", ErrInvalidInput, shortName, name)
	}

	altitude, isPeak, err := e.resolveAltitude(ctx, in.Altitude, existing, found, moved, lat, lon)
	if err != nil {
		return store.Station{}, err
	}

	tz, err := e.resolveTimezone(ctx, in.Timezone, lat, lon)
	if err != nil {
		return store.Station{}, err
	}

	urls, err := normalizeURLs(in.URL, e.ProviderURL)
	if err != nil {
		return store.Station{}, err
	}

	fix, hasFix, err := e.Store.GetFixOverride(ctx, stationID)
	if err != nil {
		return store.Station{}, fmt.Errorf("%w: %v", ErrTransientStorage, err)
	}
	if hasFix {
		if fix.Short != nil {
			shortName = *fix.Short
		}
		if fix.Name != nil {
			name = *fix.Name
		}
		if fix.Alt != nil {
			altitude = float64(*fix.Alt)
		}
		if fix.Peak != nil {
			isPeak = *fix.Peak
		}
		if fix.Latitude != nil {
			lat = *fix.Latitude
		}
		if fix.Longitude != nil {
			lon = *fix.Longitude
		}
	}

	now := e.Clock.Now().UTC()
	station := store.Station{
		ID:           stationID,
		ProviderID:   in.ProviderID,
		ProviderCode: e.ProviderCode,
		ProviderName: e.ProviderName,
		ShortName:    shortName,
		Name:         name,
		Altitude:     int(math.Round(altitude)),
		IsPeak:       isPeak,
		Location:     store.Point{Lat: lat, Lon: lon},
		Status:       in.Status,
		CountryCode:  countryCode,
		Timezone:     tz,
		URLs:         urls,
		LastSeenAt:   now,
	}
	if found {
		station.Last = existing.Last
		station.Clusters = existing.Clusters
		station.Duplicates = existing.Duplicates
		if station.CountryCode == "" {
			station.CountryCode = existing.CountryCode
		}
	}

	if err := e.Store.UpsertStation(ctx, station); err != nil {
		return store.Station{}, fmt.Errorf("%w: %v", ErrTransientStorage, err)
	}
	if err := e.Store.UpsertProviderSeen(ctx, e.ProviderCode, e.ProviderName, e.ProviderURL, now); err != nil {
		return store.Station{}, fmt.Errorf("%w: %v", ErrTransientStorage, err)
	}

	if e.Metrics != nil {
		e.Metrics.StationsSaved.Inc()
	}
	e.publish(ctx, events.KindStationUpserted, stationID, nil)

	return station, nil
}

func (e *Engine) resolveNames(ctx context.Context, names Names, existing store.Station, found, moved bool, lat, lon float64) (short, name, countryCode string, err error) {
	switch n := names.(type) {
	case FixedNames:
		return n.Short, n.Name, "", nil
	case DerivedNames:
		if found && !moved {
			return existing.ShortName, existing.Name, existing.CountryCode, nil
		}
		result := e.Geocoder.ReverseGeocode(ctx, lat, lon)
		geocoded, ok := result.Value()
		if !ok {
			return "", "", "", resultToError(result)
		}
		short, name := n.Resolve(geocoded)
		return short, name, geocoded.CountryCode, nil
	default:
		return "", "", "", fmt.Errorf("%w: invalid station names", ErrInvalidInput)
	}
}

func (e *Engine) resolveAltitude(ctx context.Context, altitude *float64, existing store.Station, found, moved bool, lat, lon float64) (float64, bool, error) {
	// A supplied altitude is used without an elevation lookup unless a
	// previously stored station has moved.
	if altitude != nil && (!found || !moved) {
		isPeak := false
		if found {
			isPeak = existing.IsPeak
		}
		return *altitude, isPeak, nil
	}

	result := e.Geocoder.Elevation(ctx, lat, lon)
	info, ok := result.Value()
	if !ok {
		return 0, false, resultToError(result)
	}
	if altitude != nil {
		return *altitude, info.IsPeak, nil
	}
	return info.Elevation, info.IsPeak, nil
}

func (e *Engine) resolveTimezone(ctx context.Context, tz *string, lat, lon float64) (string, error) {
	if tz != nil && *tz != "" {
		return *tz, nil
	}
	result := e.Geocoder.Timezone(ctx, lat, lon)
	name, ok := result.Value()
	if !ok {
		return "", resultToError(result)
	}
	return name, nil
}

func resultToError[T any](r geocode.Result[T]) error {
	switch r.Kind() {
	case geocode.KindUsageLimit:
		return fmt.Errorf("%w: %s", ErrUsageLimit, r.Message())
	case geocode.KindTimeout:
		return fmt.Errorf("%w: %s", ErrUpstreamTimeout, r.Message())
	default:
		return fmt.Errorf("%w: %s", ErrUpstreamError, r.Message())
	}
}

func normalizeURLs(u any, providerDefault string) (map[string]string, error) {
	switch v := u.(type) {
	case nil:
		return map[string]string{"default": providerDefault}, nil
	case string:
		return map[string]string{"default": v}, nil
	case map[string]string:
		if _, ok := v["default"]; !ok {
			return nil, fmt.Errorf("%w: url map missing 'default' key", ErrInvalidInput)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("%w: invalid url value", ErrInvalidInput)
	}
}

func (e *Engine) publish(ctx context.Context, kind events.Kind, stationID string, payload any) {
	if e.Events == nil {
		return
	}
	err := e.Events.Publish(ctx, events.Envelope{
		Kind: kind, StationID: stationID, ProcessedAt: e.Clock.Now().UTC(), Payload: payload,
	})
	if err != nil && e.Logger != nil {
		e.Logger.Warn("event publication failed", "kind", kind, "station_id", stationID, "error", err)
	}
}

// MeasureInput carries the fields an adapter supplies for one measurement.
// Every numeric field accepts either units.RawNumber or units.Quantity; nil
// means absent for the optional fields.
type MeasureInput struct {
	TimestampSeconds int64
	WindDirection    units.Magnitude
	WindAverage      units.Magnitude
	WindMaximum      units.Magnitude
	Temperature      units.Magnitude
	Humidity         units.Magnitude
	Pressure         *PressureInput
	Rain             units.Magnitude
}

// PressureInput carries the raw QFE/QNH/QFF inputs, any subset present.
type PressureInput struct {
	QFE units.Magnitude
	QNH units.Magnitude
	QFF units.Magnitude
}

// CreateMeasure converts, rounds, and derives the pressure triplet for one
// observation instant, then applies any fix-override field offsets.
func (e *Engine) CreateMeasure(ctx context.Context, station store.Station, in MeasureInput) (store.Measurement, error) {
	if in.WindDirection == nil && in.WindAverage == nil && in.WindMaximum == nil {
		return store.Measurement{}, fmt.Errorf("%w: all mandatory values are null", ErrInvalidInput)
	}

	measure := store.Measurement{
		ID:         in.TimestampSeconds,
		Time:       time.Unix(in.TimestampSeconds, 0).UTC(),
		ReceivedAt: e.Clock.Now().UTC(),
		WindDir:    int(units.Round(canonicalOrZero(in.WindDirection), 0)),
		WindAvg:    units.Round(canonicalOrZero(in.WindAverage), 1),
		WindMax:    units.Round(canonicalOrZero(in.WindMaximum), 1),
	}

	if in.Temperature != nil {
		v, err := units.ToCanonical(in.Temperature)
		if err != nil {
			return store.Measurement{}, fmt.Errorf("%w: temperature: %v", ErrInvalidInput, err)
		}
		v = units.Round(v, 1)
		measure.Temperature = &v
	}
	if in.Humidity != nil {
		v, err := units.ToCanonical(in.Humidity)
		if err != nil {
			return store.Measurement{}, fmt.Errorf("%w: humidity: %v", ErrInvalidInput, err)
		}
		v = units.Round(v, 1)
		measure.Humidity = &v
	}
	if in.Rain != nil {
		v, err := units.ToCanonical(in.Rain)
		if err != nil {
			return store.Measurement{}, fmt.Errorf("%w: rain: %v", ErrInvalidInput, err)
		}
		v = units.Round(v, 1)
		measure.Rain = &v
	}

	if in.Pressure != nil {
		triplet, err := toPressureTriplet(*in.Pressure)
		if err != nil {
			return store.Measurement{}, fmt.Errorf("%w: pressure: %v", ErrInvalidInput, err)
		}
		if triplet.QFE != nil || triplet.QNH != nil || triplet.QFF != nil {
			derived := pressure.Derive(triplet, float64(station.Altitude), measure.Temperature, measure.Humidity)
			measure.Pressure = &store.Pressure{QFE: roundPtr(derived.QFE), QNH: roundPtr(derived.QNH), QFF: roundPtr(derived.QFF)}
		}
	}

	fix, hasFix, err := e.Store.GetFixOverride(ctx, station.ID)
	if err != nil {
		return store.Measurement{}, fmt.Errorf("%w: %v", ErrTransientStorage, err)
	}
	if hasFix {
		applyMeasureFixes(&measure, fix.Measures)
	}

	return measure, nil
}

func canonicalOrZero(m units.Magnitude) float64 {
	if m == nil {
		return 0
	}
	v, err := units.ToCanonical(m)
	if err != nil {
		return 0
	}
	return v
}

func toPressureTriplet(in PressureInput) (pressure.Triplet, error) {
	var out pressure.Triplet
	for _, pair := range []struct {
		mag units.Magnitude
		dst **float64
	}{{in.QFE, &out.QFE}, {in.QNH, &out.QNH}, {in.QFF, &out.QFF}} {
		if pair.mag == nil {
			continue
		}
		v, err := units.ToCanonical(pair.mag)
		if err != nil {
			return pressure.Triplet{}, err
		}
		v = units.Round(v, 4)
		*pair.dst = &v
	}
	return out, nil
}

func roundPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := units.Round(*v, 4)
	return &r
}

func applyMeasureFixes(measure *store.Measurement, offsets map[string]float64) {
	for field, offset := range offsets {
		switch field {
		case "w-dir":
			fixed := math.Mod(float64(measure.WindDir)+offset, 360)
			if fixed < 0 {
				fixed += 360
			}
			measure.WindDir = int(fixed)
		case "w-avg":
			measure.WindAvg += offset
		case "w-max":
			measure.WindMax += offset
		case "temp":
			if measure.Temperature != nil {
				v := *measure.Temperature + offset
				measure.Temperature = &v
			}
		case "hum":
			if measure.Humidity != nil {
				v := *measure.Humidity + offset
				measure.Humidity = &v
			}
		case "rain":
			if measure.Rain != nil {
				v := *measure.Rain + offset
				measure.Rain = &v
			}
		}
	}
}

// HasMeasure reports whether station's stream already holds a document at
// timestamp ts.
func (e *Engine) HasMeasure(ctx context.Context, station store.Station, ts int64) (bool, error) {
	ok, err := e.Store.HasMeasure(ctx, station.ID, ts)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrTransientStorage, err)
	}
	return ok, nil
}

// InsertMeasures bulk-inserts measures (duplicates silently dropped),
// updates stations.last to the single largest-_id document, and marks the
// provider as seen.
func (e *Engine) InsertMeasures(ctx context.Context, station store.Station, measures []store.Measurement) (int, error) {
	inserted, err := e.Store.InsertMeasures(ctx, station.ID, measures)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTransientStorage, err)
	}
	if inserted == 0 {
		return 0, nil
	}

	latest, ok, err := e.Store.LatestMeasure(ctx, station.ID)
	if err != nil {
		return inserted, fmt.Errorf("%w: %v", ErrTransientStorage, err)
	}
	if ok {
		station.Last = &latest
		if err := e.Store.UpsertStation(ctx, station); err != nil {
			return inserted, fmt.Errorf("%w: %v", ErrTransientStorage, err)
		}
	}

	now := e.Clock.Now().UTC()
	if err := e.Store.UpsertProviderSeen(ctx, e.ProviderCode, e.ProviderName, e.ProviderURL, now); err != nil {
		return inserted, fmt.Errorf("%w: %v", ErrTransientStorage, err)
	}

	if e.Metrics != nil {
		e.Metrics.MeasuresInserted.Add(float64(inserted))
		if dup := len(measures) - inserted; dup > 0 {
			e.Metrics.MeasuresDuplicate.Add(float64(dup))
		}
	}
	e.publish(ctx, events.KindMeasureInserted, station.ID, nil)

	return inserted, nil
}
