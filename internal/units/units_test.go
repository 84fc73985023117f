package units_test

import (
	"testing"

	"github.com/couchcryptid/windstation-fabric/internal/units"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawNumber_Canonical(t *testing.T) {
	v, err := units.RawNumber(10.5).Canonical()
	require.NoError(t, err)
	assert.Equal(t, 10.5, v)
}

func TestQuantity_Canonical_WindSpeed(t *testing.T) {
	tests := []struct {
		name     string
		qty      units.Quantity
		expected float64
	}{
		{"m/s to km/h", units.Q(3.0, units.MetersPerSecond), 10.8},
		{"knots to km/h", units.Q(10, units.Knots), 18.52},
		{"mph to km/h", units.Q(10, units.MilesPerHour), 16.09344},
		{"already km/h", units.Q(42, units.KilometersPerHour), 42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := tt.qty.Canonical()
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, v, 0.1)
		})
	}
}

func TestQuantity_Canonical_Temperature(t *testing.T) {
	v, err := units.Q(98.6, units.Fahrenheit).Canonical()
	require.NoError(t, err)
	assert.InDelta(t, 37.0, v, 0.01)
}

func TestQuantity_Canonical_UnknownUnit(t *testing.T) {
	_, err := units.Quantity{Value: 1, Unit: units.Unit(999)}.Canonical()
	assert.Error(t, err)
}

func TestToCanonical_Nil(t *testing.T) {
	_, err := units.ToCanonical(nil)
	assert.Error(t, err)
}

func TestRound(t *testing.T) {
	assert.Equal(t, 180.0, units.Round(179.6, 0))
	assert.Equal(t, 10.5, units.Round(10.51, 1))
	assert.Equal(t, 916.4875, units.Round(916.48749, 4))
	assert.Equal(t, -1.2, units.Round(-1.2345, 1))
}

func TestScenario3_UnitNormalisation(t *testing.T) {
	// wind_average in m/s (3.0), wind_maximum in knots (10).
	avg, err := units.ToCanonical(units.Q(3.0, units.MetersPerSecond))
	require.NoError(t, err)
	maxV, err := units.ToCanonical(units.Q(10, units.Knots))
	require.NoError(t, err)

	assert.InDelta(t, 10.8, units.Round(avg, 1), 0.1)
	assert.InDelta(t, 18.5, units.Round(maxV, 1), 0.1)
}
