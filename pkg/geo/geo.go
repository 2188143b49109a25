// Package geo provides the small set of geographic primitives needed for
// map queries: WGS84 positions, latitude/longitude rectangles, great-circle
// distances and the rectangle manipulations (inflation, antimeridian split)
// used when querying aircraft by bounding box.
package geo

import "math"

// Constants for coordinate calculations
const (
	// DegreesToRadians converts degrees to radians
	DegreesToRadians = math.Pi / 180.0

	// RadiansToDegrees converts radians to degrees
	RadiansToDegrees = 180.0 / math.Pi

	// EarthRadiusNM is the Earth's mean radius in nautical miles (WGS84)
	EarthRadiusNM = 3440.065

	// MetersPerNauticalMile converts nautical miles to meters
	MetersPerNauticalMile = 1852.0
)

// Pos is a position on Earth's surface in the WGS84 coordinate system.
type Pos struct {
	// Lat is latitude in decimal degrees (-90 to +90)
	Lat float64

	// Lon is longitude in decimal degrees (-180 to +180)
	Lon float64
}

// Valid reports whether the position is within the WGS84 coordinate ranges.
func (p Pos) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// DistanceNM returns the great-circle distance between two positions in
// nautical miles using the haversine formula.
func DistanceNM(a, b Pos) float64 {
	lat1 := a.Lat * DegreesToRadians
	lat2 := b.Lat * DegreesToRadians
	dLat := (b.Lat - a.Lat) * DegreesToRadians
	dLon := (b.Lon - a.Lon) * DegreesToRadians

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusNM * c
}

// NMToMeters converts nautical miles to meters.
func NMToMeters(nm float64) float64 {
	return nm * MetersPerNauticalMile
}

// Rect is a latitude/longitude rectangle. West may be greater than East
// when the rectangle crosses the antimeridian.
type Rect struct {
	// North is the top latitude in decimal degrees
	North float64

	// South is the bottom latitude in decimal degrees
	South float64

	// West is the left longitude in decimal degrees
	West float64

	// East is the right longitude in decimal degrees
	East float64
}

// CrossesAntimeridian reports whether the rectangle spans the +/-180
// degree longitude boundary.
func (r Rect) CrossesAntimeridian() bool {
	return r.West > r.East
}

// Width returns the longitudinal extent of the rectangle in degrees,
// accounting for an antimeridian crossing.
func (r Rect) Width() float64 {
	if r.CrossesAntimeridian() {
		return (180 - r.West) + (r.East + 180)
	}
	return r.East - r.West
}

// Height returns the latitudinal extent of the rectangle in degrees.
func (r Rect) Height() float64 {
	return r.North - r.South
}

// Contains reports whether the position lies within the rectangle,
// accounting for an antimeridian crossing.
func (r Rect) Contains(p Pos) bool {
	if p.Lat > r.North || p.Lat < r.South {
		return false
	}
	if r.CrossesAntimeridian() {
		return p.Lon >= r.West || p.Lon <= r.East
	}
	return p.Lon >= r.West && p.Lon <= r.East
}

// ContainsRect reports whether the other rectangle lies entirely inside
// this one. Rectangles crossing the antimeridian are only contained by
// rectangles that also cross it.
func (r Rect) ContainsRect(other Rect) bool {
	if other.North > r.North || other.South < r.South {
		return false
	}
	if r.CrossesAntimeridian() != other.CrossesAntimeridian() {
		return false
	}
	if r.CrossesAntimeridian() {
		return other.West >= r.West && other.East <= r.East
	}
	return other.West >= r.West && other.East <= r.East
}

// Inflated returns the rectangle grown on each side by factor times its
// extent plus a fixed increment in degrees. Latitudes are clamped to the
// poles; longitudes are normalized into [-180, 180].
func (r Rect) Inflated(factor, increment float64) Rect {
	dLon := r.Width()*factor + increment
	dLat := r.Height()*factor + increment

	out := Rect{
		North: math.Min(r.North+dLat, 90),
		South: math.Max(r.South-dLat, -90),
		West:  normalizeLon(r.West - dLon),
		East:  normalizeLon(r.East + dLon),
	}

	// Inflation covering more than the full longitude range collapses to it.
	if r.Width()+2*dLon >= 360 {
		out.West = -180
		out.East = 180
	}
	return out
}

// SplitAtAntimeridian inflates the rectangle and splits it into one or two
// sub-rectangles that never cross the antimeridian. Bounding-box queries
// with simple between-predicates require longitudes in ascending order.
func SplitAtAntimeridian(r Rect, factor, increment float64) []Rect {
	inflated := r.Inflated(factor, increment)
	if !inflated.CrossesAntimeridian() {
		return []Rect{inflated}
	}
	return []Rect{
		{North: inflated.North, South: inflated.South, West: inflated.West, East: 180},
		{North: inflated.North, South: inflated.South, West: -180, East: inflated.East},
	}
}

// normalizeLon wraps a longitude into the [-180, 180] range.
func normalizeLon(lon float64) float64 {
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}
