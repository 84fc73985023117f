package pioupiou_test

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/couchcryptid/windstation-fabric/internal/adapter/pioupiou"
	"github.com/couchcryptid/windstation-fabric/internal/cache"
	"github.com/couchcryptid/windstation-fabric/internal/engine"
	"github.com/couchcryptid/windstation-fabric/internal/geocode"
	"github.com/couchcryptid/windstation-fabric/internal/observability"
	"github.com/couchcryptid/windstation-fabric/internal/store"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const googleGeocodeBody = `{"status":"OK","results":[{"types":["locality"],"address_components":[
	{"short_name":"Annecy","long_name":"Annecy","types":["locality"]},
	{"short_name":"FR","long_name":"France","types":["country"]}
]}]}`

const googleElevationBody = `{"status":"OK","results":[
	{"elevation":450},{"elevation":450},{"elevation":450},{"elevation":450},
	{"elevation":450},{"elevation":450},{"elevation":450}
]}`

const googleTimezoneBody = `{"status":"OK","timeZoneId":"Europe/Paris"}`

func newMockGoogleServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/geocode/json":
			fmt.Fprint(w, googleGeocodeBody)
		case "/elevation/json":
			fmt.Fprint(w, googleElevationBody)
		case "/timezone/json":
			fmt.Fprint(w, googleTimezoneBody)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newStubFeed(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestAdapter(t *testing.T, liveURL string, now time.Time) (*pioupiou.Adapter, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	fakeClock := clockwork.NewFakeClockAt(now)
	googleSrv := newMockGoogleServer(t)
	geocoder := geocode.NewClient("test-key", 5*time.Second, cache.NewMemoryCache(fakeClock), slog.Default(),
		observability.NewMetricsForTesting(), geocode.WithBaseURL(googleSrv.URL))

	e := engine.NewEngine(pioupiou.ProviderCode, pioupiou.ProviderName, pioupiou.ProviderURL,
		st, cache.NewMemoryCache(fakeClock), geocoder, slog.Default(), observability.NewMetricsForTesting(), fakeClock, nil)

	a := pioupiou.New(e, http.DefaultClient)
	a.LiveURL = liveURL
	a.Clock = func() time.Time { return now }
	return a, st
}

const liveBodyTemplate = `{"data": [
	{"id": 321, "location": {"latitude": 45.9, "longitude": 6.1, "date": "%s", "success": true},
	 "status": {"state": "on"}, "meta": {"name": ""},
	 "measurements": {"date": "2024-01-15T10:00:00Z", "wind_heading": 180, "wind_speed_avg": 5.5, "wind_speed_max": 9.1, "pressure": 980.4}}
]}`

func TestRun_DerivesNameViaReverseGeocodeAndSavesMeasure(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 5, 0, 0, time.UTC)
	body := fmt.Sprintf(liveBodyTemplate, now.Add(-24*time.Hour).Format(time.RFC3339))
	liveSrv := newStubFeed(t, body)

	a, st := newTestAdapter(t, liveSrv.URL, now)
	require.NoError(t, a.Run(t.Context()))

	station, ok, err := st.GetStation(t.Context(), "pioupiou-321")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Annecy", station.ShortName)
	assert.Equal(t, store.StatusGreen, station.Status)
	require.NotNil(t, station.Last)
	assert.Equal(t, int64(1705312800), station.Last.ID)
	require.NotNil(t, station.Last.Pressure)
	require.NotNil(t, station.Last.Pressure.QFE)
	assert.InDelta(t, 980.4, *station.Last.Pressure.QFE, 1e-9)
}

func TestRun_UsesMetaNameWhenPresent(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 5, 0, 0, time.UTC)
	body := `{"data": [
		{"id": 654, "location": {"latitude": 45.9, "longitude": 6.1, "date": "2024-01-14T10:00:00Z", "success": true},
		 "status": {"state": "on"}, "meta": {"name": "Le Col"},
		 "measurements": {"date": "", "wind_heading": 0, "wind_speed_avg": 0, "wind_speed_max": 0}}
	]}`
	liveSrv := newStubFeed(t, body)

	a, st := newTestAdapter(t, liveSrv.URL, now)
	require.NoError(t, a.Run(t.Context()))

	station, ok, err := st.GetStation(t.Context(), "pioupiou-654")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Le Col", station.ShortName)
	assert.Nil(t, station.Last)
}

func TestRun_HidesStationWithUplinkOff(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 5, 0, 0, time.UTC)
	body := `{"data": [
		{"id": 777, "location": {"latitude": 45.9, "longitude": 6.1, "date": "2024-01-14T10:00:00Z", "success": true},
		 "status": {"state": "off"}, "meta": {"name": "Dead"},
		 "measurements": {"date": "", "wind_heading": 0, "wind_speed_avg": 0, "wind_speed_max": 0}}
	]}`
	liveSrv := newStubFeed(t, body)

	a, st := newTestAdapter(t, liveSrv.URL, now)
	require.NoError(t, a.Run(t.Context()))

	station, ok, err := st.GetStation(t.Context(), "pioupiou-777")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, store.StatusHidden, station.Status)
}

func TestRun_MarksOrangeWhenLocationFixIsStale(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 5, 0, 0, time.UTC)
	staleDate := now.Add(-20 * 24 * time.Hour).Format(time.RFC3339)
	body := fmt.Sprintf(`{"data": [
		{"id": 888, "location": {"latitude": 45.9, "longitude": 6.1, "date": "%s", "success": true},
		 "status": {"state": "on"}, "meta": {"name": "Stale"},
		 "measurements": {"date": "", "wind_heading": 0, "wind_speed_avg": 0, "wind_speed_max": 0}}
	]}`, staleDate)
	liveSrv := newStubFeed(t, body)

	a, st := newTestAdapter(t, liveSrv.URL, now)
	require.NoError(t, a.Run(t.Context()))

	station, ok, err := st.GetStation(t.Context(), "pioupiou-888")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, store.StatusOrange, station.Status)
}

func TestRun_MarksRedWhenNoKnownLocationDate(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 5, 0, 0, time.UTC)
	body := `{"data": [
		{"id": 999, "location": {"latitude": 45.9, "longitude": 6.1, "date": "", "success": false},
		 "status": {"state": "on"}, "meta": {"name": "NoFix"},
		 "measurements": {"date": "", "wind_heading": 0, "wind_speed_avg": 0, "wind_speed_max": 0}}
	]}`
	liveSrv := newStubFeed(t, body)

	a, st := newTestAdapter(t, liveSrv.URL, now)
	require.NoError(t, a.Run(t.Context()))

	station, ok, err := st.GetStation(t.Context(), "pioupiou-999")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, store.StatusRed, station.Status)
}
