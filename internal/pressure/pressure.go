// Package pressure derives the missing legs of a station's pressure triplet
// (QFE, QNH, QFF) from the legs an adapter supplies, using the standard
// ICAO/ISA meteorological conversions.
package pressure

import "math"

// Standard atmosphere constants (ICAO / ISA), used for the QFE<->QNH leg.
const (
	lapseRate    = 0.0065  // K/m
	seaLevelTemp = 288.15  // K
	isaExponent  = 5.25588 // g0*M / (R*L)
)

// Triplet is the station/QNH/QFF pressure set.
type Triplet struct {
	QFE *float64
	QNH *float64
	QFF *float64
}

// StationToAltimeter converts a station-level pressure (QFE, hPa) to the
// altimeter setting (QNH, hPa) using only the station elevation, per the
// International Standard Atmosphere.
func StationToAltimeter(qfe, elevationM float64) float64 {
	return qfe * math.Pow(seaLevelTemp/(seaLevelTemp-lapseRate*elevationM), isaExponent)
}

// AltimeterToStation is the inverse of StationToAltimeter.
func AltimeterToStation(qnh, elevationM float64) float64 {
	return qnh * math.Pow((seaLevelTemp-lapseRate*elevationM)/seaLevelTemp, isaExponent)
}

// StationToSeaLevel converts a station-level pressure (QFE, hPa) to a
// sea-level reduction (QFF, hPa) using the hypsometric equation with a
// virtual-temperature correction for humidity.
func StationToSeaLevel(qfe, elevationM, tempC, humidityPct float64) float64 {
	tVirtualK := virtualTemperatureK(tempC, humidityPct, qfe)
	meanTempK := tVirtualK + lapseRate*elevationM/2
	return qfe * math.Exp(elevationM*9.80665/(287.05*meanTempK))
}

// SeaLevelToStation is the inverse of StationToSeaLevel, solved by four
// fixed-point iteration passes (the mean-layer temperature depends weakly
// on the unknown QFE, so the iteration converges in a few steps).
func SeaLevelToStation(qff, elevationM, tempC, humidityPct float64) float64 {
	qfe := qff
	for i := 0; i < 4; i++ {
		tVirtualK := virtualTemperatureK(tempC, humidityPct, qfe)
		meanTempK := tVirtualK + lapseRate*elevationM/2
		qfe = qff / math.Exp(elevationM*9.80665/(287.05*meanTempK))
	}
	return qfe
}

// virtualTemperatureK approximates the virtual temperature (in kelvin) of
// moist air at the station, which is warmer than the dry-bulb temperature
// by an amount that grows with humidity and heat.
func virtualTemperatureK(tempC, humidityPct, pressureHPa float64) float64 {
	tK := tempC + 273.15
	if humidityPct <= 0 {
		return tK
	}
	// Saturation vapor pressure (Tetens' formula, hPa) and actual vapor
	// pressure from relative humidity.
	es := 6.1078 * math.Exp(17.27*tempC/(tempC+237.3))
	e := es * (humidityPct / 100)
	if pressureHPa <= e {
		return tK
	}
	return tK / (1 - (e/pressureHPa)*(1-0.622))
}

// Derive completes a Triplet given station altitude and, optionally,
// current temperature and humidity. If exactly one of QFE/QNH/QFF is
// supplied, the others are derived as far as the available inputs allow:
// the QFE<->QNH leg always derives from altitude alone; the QFE<->QFF leg
// additionally requires temperature and humidity.
func Derive(in Triplet, elevationM float64, tempC, humidityPct *float64) Triplet {
	out := in

	switch {
	case in.QFE != nil && in.QNH == nil:
		v := StationToAltimeter(*in.QFE, elevationM)
		out.QNH = &v
	case in.QNH != nil && in.QFE == nil:
		v := AltimeterToStation(*in.QNH, elevationM)
		out.QFE = &v
	}

	if tempC == nil || humidityPct == nil {
		return out
	}

	qfe := out.QFE
	if qfe == nil && out.QNH != nil {
		v := AltimeterToStation(*out.QNH, elevationM)
		qfe = &v
		out.QFE = qfe
	}

	switch {
	case qfe != nil && out.QFF == nil:
		v := StationToSeaLevel(*qfe, elevationM, *tempC, *humidityPct)
		out.QFF = &v
	case out.QFF != nil && qfe == nil:
		v := SeaLevelToStation(*out.QFF, elevationM, *tempC, *humidityPct)
		out.QFE = &v
		if out.QNH == nil {
			n := StationToAltimeter(v, elevationM)
			out.QNH = &n
		}
	}

	return out
}
