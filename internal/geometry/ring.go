// Package geometry implements the planar and ellipsoidal computations used to
// validate request polygons and derive their metadata. Rings are slices of
// [lon, lat] geom.Coord values; functions accept open or closed rings unless
// stated otherwise.
package geometry

import (
	"math"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/orientation"
)

// Coords converts [lon, lat] pairs into go-geom coordinates.
func Coords(pairs [][2]float64) []geom.Coord {
	out := make([]geom.Coord, len(pairs))
	for i, p := range pairs {
		out[i] = geom.Coord{p[0], p[1]}
	}
	return out
}

func sameXY(a, b geom.Coord) bool {
	return a[0] == b[0] && a[1] == b[1]
}

// openRing drops the closing vertex when present.
func openRing(ring []geom.Coord) []geom.Coord {
	if len(ring) > 1 && sameXY(ring[0], ring[len(ring)-1]) {
		return ring[:len(ring)-1]
	}
	return ring
}

// closeRing returns a copy of ring with the closing vertex present.
func closeRing(ring []geom.Coord) []geom.Coord {
	out := make([]geom.Coord, 0, len(ring)+1)
	out = append(out, ring...)
	if len(out) > 0 && !sameXY(out[0], out[len(out)-1]) {
		out = append(out, out[0])
	}
	return out
}

// Dedupe removes consecutive repeated vertices, including a repeat across
// the closing edge, and returns an open ring.
func Dedupe(ring []geom.Coord) []geom.Coord {
	ring = openRing(ring)
	out := make([]geom.Coord, 0, len(ring))
	for _, c := range ring {
		if len(out) > 0 && sameXY(out[len(out)-1], c) {
			continue
		}
		out = append(out, c)
	}
	for len(out) > 1 && sameXY(out[0], out[len(out)-1]) {
		out = out[:len(out)-1]
	}
	return out
}

// DuplicateIndexes returns the indexes i (0-based) where vertex i+1 repeats
// vertex i. The ring is scanned as given, without wrapping around.
func DuplicateIndexes(ring []geom.Coord) []int {
	var dups []int
	for i := 0; i+1 < len(ring); i++ {
		if sameXY(ring[i], ring[i+1]) {
			dups = append(dups, i)
		}
	}
	return dups
}

func flatCoords(ring []geom.Coord) []float64 {
	closed := closeRing(ring)
	flat := make([]float64, 0, 2*len(closed))
	for _, c := range closed {
		flat = append(flat, c[0], c[1])
	}
	return flat
}

// SignedArea returns the planar shoelace area of the ring, positive for
// counter-clockwise rings.
func SignedArea(ring []geom.Coord) float64 {
	return -xy.SignedArea(geom.XY, flatCoords(ring))
}

// IsCollinear reports whether every vertex lies on one straight line
// (including the case of a single repeated point).
func IsCollinear(ring []geom.Coord) bool {
	ring = Dedupe(ring)
	if len(ring) < 3 {
		return true
	}
	origin := ring[0]
	for _, c := range ring[1:] {
		if sameXY(c, origin) {
			continue
		}
		for _, p := range ring {
			if xy.OrientationIndex(origin, c, p) != orientation.Collinear {
				return false
			}
		}
		return true
	}
	return true
}

// NewPolygon builds a single-ring go-geom polygon from the ring.
func NewPolygon(ring []geom.Coord) (*geom.Polygon, error) {
	return geom.NewPolygon(geom.XY).SetCoords([][]geom.Coord{closeRing(ring)})
}

// Centroid returns the area-weighted planar centroid of a simple ring.
func Centroid(ring []geom.Coord) (geom.Coord, error) {
	poly, err := NewPolygon(ring)
	if err != nil {
		return nil, err
	}
	return xy.PolygonsCentroid(poly), nil
}

// Bounds returns the planar bounding box as [minx, miny, maxx, maxy].
func Bounds(ring []geom.Coord) [4]float64 {
	b := geom.NewLinearRingFlat(geom.XY, flatCoords(ring)).Bounds()
	return [4]float64{b.Min(0), b.Min(1), b.Max(0), b.Max(1)}
}

// CrossesAntimeridian reports whether any edge jumps more than 180° of
// longitude, which is taken to mean the ring wraps across ±180°.
func CrossesAntimeridian(ring []geom.Coord) bool {
	closed := closeRing(ring)
	for i := 0; i+1 < len(closed); i++ {
		if math.Abs(closed[i+1][0]-closed[i][0]) > 180 {
			return true
		}
	}
	return false
}

// Unwrap returns the ring with negative longitudes shifted by +360 when it
// crosses the antimeridian, so planar operations see a contiguous shape.
// The second return value reports whether a shift was applied.
func Unwrap(ring []geom.Coord) ([]geom.Coord, bool) {
	out := make([]geom.Coord, len(ring))
	if !CrossesAntimeridian(ring) {
		copy(out, ring)
		return out, false
	}
	for i, c := range ring {
		lon := c[0]
		if lon < 0 {
			lon += 360
		}
		out[i] = geom.Coord{lon, c[1]}
	}
	return out, true
}

// NormalizeLongitude folds a longitude into [-180, 180].
func NormalizeLongitude(lon float64) float64 {
	if lon >= -180 && lon <= 180 {
		return lon
	}
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}

// WrappedBounds normalises a bounding box computed on an unwrapped ring.
// When the ring crossed the antimeridian the east edge is folded back so
// that west > east, as in RFC 7946.
func WrappedBounds(b [4]float64) [4]float64 {
	return [4]float64{NormalizeLongitude(b[0]), b[1], NormalizeLongitude(b[2]), b[3]}
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
