// Package engine implements the station/measurement ingestion contract
// every adapter calls into: SaveStation, CreateMeasure, HasMeasure,
// InsertMeasures, and GetStationID. It is a capability interface: one
// Engine value per provider, constructed once at startup and passed to
// that provider's adapter function, rather than an adapter subclassing a
// shared base.
//
// # Names
//
// An adapter supplies station naming one of two ways, modelled as the
// Names sum type: FixedNames(short, name) when the upstream feed already
// names the station, or DerivedNames(fn) when names must be derived from
// reverse-geocoded address components the adapter blends with upstream
// hints.
//
// # Numeric inputs
//
// Every measurement field accepts either a bare float64 already in
// canonical units (units.RawNumber) or a value tagged with an explicit
// unit (units.Quantity); Engine converts at the boundary via
// units.ToCanonical.
//
// # Errors
//
// Engine operations fail with one of the sentinel errors in errors.go;
// callers branch with errors.Is, never on message text.
package engine
