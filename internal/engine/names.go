package engine

import "github.com/couchcryptid/windstation-fabric/internal/geocode"

// Names is a sum type for how an adapter supplies station naming: either a
// fixed (short, long) pair supplied verbatim by the adapter, or a function
// deriving them from reverse-geocoded address components.
type Names interface {
	isNames()
}

// FixedNames is a station name pair the adapter already knows, used
// verbatim with no reverse geocoding performed.
type FixedNames struct {
	Short string
	Name  string
}

func (FixedNames) isNames() {}

// DerivedNames wraps a function that blends reverse-geocoded address
// components into a station name pair. The engine resolves
// geocode.GeocodedNames first and invokes Resolve with the result.
type DerivedNames struct {
	Resolve func(geocode.GeocodedNames) (short, name string)
}

func (DerivedNames) isNames() {}
