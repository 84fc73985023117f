package pressure_test

import (
	"testing"

	"github.com/couchcryptid/windstation-fabric/internal/pressure"
	"github.com/stretchr/testify/assert"
)

func f(v float64) *float64 { return &v }

func TestStationToAltimeter_MatchesFixture(t *testing.T) {
	// StationToAltimeter(836.25, 1588) ~= 1013 (rel=1e-3); checked in the
	// opposite direction from the matching AltimeterToStation fixture below.
	qnh := pressure.StationToAltimeter(836.25, 1588)
	assert.InEpsilon(t, 1013.0, qnh, 1e-3)
}

func TestAltimeterToStation_MatchesFixture(t *testing.T) {
	qfe := pressure.AltimeterToStation(1013, 1588)
	assert.InEpsilon(t, 836.25, qfe, 1e-3)
}

func TestScenario1_QFEFromQNH(t *testing.T) {
	// altitude 830m, QNH=1013 -> QFE ~= 916.49 hPa.
	qfe := pressure.AltimeterToStation(1013, 830)
	assert.InDelta(t, 916.49, qfe, 0.5)
}

func TestRoundTrip_QFE_QNH(t *testing.T) {
	for _, elevation := range []float64{0, 500, 1500, 3000} {
		for _, qfe := range []float64{950, 1000, 1013.25} {
			qnh := pressure.StationToAltimeter(qfe, elevation)
			back := pressure.AltimeterToStation(qnh, elevation)
			assert.InDelta(t, qfe, back, 0.1, "elevation=%v qfe=%v", elevation, qfe)
		}
	}
}

func TestRoundTrip_QFE_QFF(t *testing.T) {
	for _, elevation := range []float64{0, 500, 1500, 3000} {
		for _, temp := range []float64{-30, 0, 15, 30} {
			for _, humidity := range []float64{10, 50, 90} {
				qfe := 950.0
				qff := pressure.StationToSeaLevel(qfe, elevation, temp, humidity)
				back := pressure.SeaLevelToStation(qff, elevation, temp, humidity)
				assert.InDelta(t, qfe, back, 0.1,
					"elevation=%v temp=%v humidity=%v", elevation, temp, humidity)
			}
		}
	}
}

func TestDerive_QFEOnly_NoTempHumidity(t *testing.T) {
	out := pressure.Derive(pressure.Triplet{QFE: f(916.49)}, 830, nil, nil)
	if assert.NotNil(t, out.QNH) {
		assert.InDelta(t, 1013, *out.QNH, 0.5)
	}
	assert.Nil(t, out.QFF)
}

func TestDerive_QFEWithTempAndHumidity(t *testing.T) {
	temp, humidity := 25.7, 60.0
	out := pressure.Derive(pressure.Triplet{QFE: f(916.49)}, 830, &temp, &humidity)
	assert.NotNil(t, out.QNH)
	assert.NotNil(t, out.QFF)
}

func TestDerive_QNHOnly(t *testing.T) {
	out := pressure.Derive(pressure.Triplet{QNH: f(1013)}, 830, nil, nil)
	if assert.NotNil(t, out.QFE) {
		assert.InDelta(t, 916.49, *out.QFE, 0.5)
	}
}

func TestDerive_AllNil(t *testing.T) {
	out := pressure.Derive(pressure.Triplet{}, 830, nil, nil)
	assert.Nil(t, out.QFE)
	assert.Nil(t, out.QNH)
	assert.Nil(t, out.QFF)
}
