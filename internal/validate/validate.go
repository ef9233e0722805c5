// Package validate checks user-submitted polygons before any downstream work
// runs. Checks execute in a fixed order and the first failure is returned
// verbatim as a *ValidationError.
package validate

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/erosion-api/internal/config"
	"github.com/sells-group/erosion-api/internal/geometry"
	"github.com/sells-group/erosion-api/internal/model"
)

const minVertices = 3

// ValidationError is a user-actionable polygon rejection.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func fail(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// AsValidationError extracts a *ValidationError from err's chain.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// Limits are the policy bounds applied to a polygon.
type Limits struct {
	MaxVertices    int
	MinAreaKm2     float64
	MaxAreaKm2     float64
	MaxAspectRatio float64
}

// DefaultLimits returns the production limits.
func DefaultLimits() Limits {
	return Limits{
		MaxVertices:    1000,
		MinAreaKm2:     0.01,
		MaxAreaKm2:     30000,
		MaxAspectRatio: 100,
	}
}

// LimitsFromConfig converts configuration values, falling back to defaults
// for unset fields.
func LimitsFromConfig(c config.ValidationConfig) Limits {
	l := DefaultLimits()
	if c.MaxVertices > 0 {
		l.MaxVertices = c.MaxVertices
	}
	if c.MinAreaKm2 > 0 {
		l.MinAreaKm2 = c.MinAreaKm2
	}
	if c.MaxAreaKm2 > 0 {
		l.MaxAreaKm2 = c.MaxAreaKm2
	}
	if c.MaxAspectRatio > 0 {
		l.MaxAspectRatio = c.MaxAspectRatio
	}
	return l
}

// Result is a successful validation.
type Result struct {
	Report model.ValidationReport
	// Ring is the closed ring that passed validation, after any repair,
	// with longitudes in [-180, 180].
	Ring []model.Vertex
}

// Validator runs the polygon checks against a set of limits. It holds no
// mutable state and is safe for concurrent use.
type Validator struct {
	limits Limits
}

// New creates a Validator.
func New(limits Limits) *Validator {
	return &Validator{limits: limits}
}

// Limits returns the limits the validator enforces.
func (v *Validator) Limits() Limits {
	return v.limits
}

// Validate runs range, minimum point, auto-close, geometry, complexity, area,
// aspect ratio and duplicate checks in that order.
func (v *Validator) Validate(vertices []model.Vertex) (*Result, error) {
	if err := checkRanges(vertices); err != nil {
		return nil, err
	}
	if len(vertices) < minVertices {
		return nil, fail("Polygon requires at least %d vertices. Received only %d points.", minVertices, len(vertices))
	}

	closed := model.Close(vertices)
	raw := make([]geom.Coord, len(closed))
	for i, vx := range closed {
		raw[i] = geom.Coord{vx.Longitude, vx.Latitude}
	}
	ring, shifted := geometry.Unwrap(raw)

	ring, err := checkGeometry(ring)
	if err != nil {
		return nil, err
	}

	if len(closed) > v.limits.MaxVertices {
		return nil, fail("Polygon too complex: %d vertices exceeds limit of %d. Simplify polygon or split into multiple requests.",
			len(closed), v.limits.MaxVertices)
	}

	areaKm2 := geometry.GeodesicArea(ring) / 1e6
	if areaKm2 < v.limits.MinAreaKm2 {
		return nil, fail("Polygon area too small: %.4f km² is below minimum %g km² (%.1f hectares). RUSLE results may be unreliable for very small areas.",
			areaKm2, v.limits.MinAreaKm2, v.limits.MinAreaKm2*100)
	}
	if areaKm2 > v.limits.MaxAreaKm2 {
		return nil, fail("Polygon area too large: %.1f km² exceeds limit of %g km². Please select a smaller area or split into multiple requests.",
			areaKm2, v.limits.MaxAreaKm2)
	}

	bounds := geometry.Bounds(ring)
	width, height := bounds[2]-bounds[0], bounds[3]-bounds[1]
	if width == 0 || height == 0 {
		return nil, fail("Polygon has zero width or height (forms a degenerate line).")
	}
	ratio := max(width/height, height/width)
	if ratio > v.limits.MaxAspectRatio {
		return nil, fail("Polygon aspect ratio too extreme: %.1f:1 exceeds limit of %g:1. Polygon appears to be a thin sliver, which may cause unreliable erosion estimates. Try a more compact polygon shape.",
			ratio, v.limits.MaxAspectRatio)
	}

	var warnings []string
	if dups := duplicatePositions(raw); len(dups) > 0 {
		msg := fmt.Sprintf("Found %d consecutive duplicate points at indices: %v", len(dups), dups)
		zap.L().Warn("polygon has duplicate consecutive points", zap.Ints("indices", dups))
		warnings = append(warnings, msg)
	}

	centroid, err := geometry.Centroid(ring)
	if err != nil {
		return nil, eris.Wrap(err, "validate: centroid")
	}
	if shifted {
		bounds = geometry.WrappedBounds(bounds)
	}

	report := model.ValidationReport{
		Valid:        true,
		AreaKm2:      geometry.Round(areaKm2, 4),
		AreaHectares: geometry.Round(areaKm2*100, 2),
		Centroid: [2]float64{
			geometry.Round(geometry.NormalizeLongitude(centroid[0]), 6),
			geometry.Round(centroid[1], 6),
		},
		BBox:        roundBounds(bounds),
		NumVertices: len(closed),
		PerimeterKm: geometry.Round(geometry.GeodesicPerimeter(ring)/1000, 2),
		Warnings:    warnings,
	}
	return &Result{Report: report, Ring: toVertices(ring)}, nil
}

func checkRanges(vertices []model.Vertex) error {
	for i, vx := range vertices {
		if vx.Longitude < -180 || vx.Longitude > 180 {
			return fail("Point %d: Longitude %g° is out of valid range [-180, 180]. Check coordinate order (longitude, latitude).",
				i+1, vx.Longitude)
		}
		if vx.Latitude < -90 || vx.Latitude > 90 {
			return fail("Point %d: Latitude %g° is out of valid range [-90, 90]. Check coordinate order (longitude, latitude).",
				i+1, vx.Latitude)
		}
	}
	return nil
}

const noAreaMessage = "Polygon has no area. All points may be collinear (on same line)."

func invalidGeometry(reason string) error {
	return fail("Invalid polygon geometry: %s. Common issues: self-intersecting edges, duplicate consecutive points.", reason)
}

// checkGeometry returns the ring to use for the remaining checks: the input
// itself when it is simple, or its repaired form.
func checkGeometry(ring []geom.Coord) ([]geom.Coord, error) {
	if _, err := geometry.NewPolygon(ring); err != nil {
		return nil, fail("Failed to create polygon from coordinates: %s", err)
	}

	reason, simple := geometry.CheckSimple(ring)
	if !simple {
		if geometry.IsCollinear(ring) {
			return nil, fail(noAreaMessage)
		}
		if geometry.SignedArea(ring) == 0 {
			return nil, invalidGeometry(reason)
		}
		repaired, err := geometry.Repair(ring)
		switch {
		case errors.Is(err, geometry.ErrRepairEmpty):
			return nil, fail(noAreaMessage)
		case err != nil:
			return nil, invalidGeometry(reason)
		}
		if _, ok := geometry.CheckSimple(repaired); !ok {
			return nil, invalidGeometry(reason)
		}
		zap.L().Debug("repaired self-intersecting polygon",
			zap.String("reason", reason),
			zap.Int("vertices", len(repaired)),
		)
		ring = geometry.Dedupe(repaired)
		ring = append(ring, ring[0])
	}

	if geometry.SignedArea(ring) == 0 {
		return nil, fail(noAreaMessage)
	}
	return ring, nil
}

// duplicatePositions returns the 1-based positions of vertices that repeat
// their predecessor.
func duplicatePositions(ring []geom.Coord) []int {
	idx := geometry.DuplicateIndexes(ring)
	for i := range idx {
		idx[i]++
	}
	return idx
}

func roundBounds(b [4]float64) [4]float64 {
	for i := range b {
		b[i] = geometry.Round(b[i], 6)
	}
	return b
}

func toVertices(ring []geom.Coord) []model.Vertex {
	out := make([]model.Vertex, len(ring))
	for i, c := range ring {
		out[i] = model.Vertex{Longitude: geometry.NormalizeLongitude(c[0]), Latitude: c[1]}
	}
	return out
}

// BBox checks a [minx, miny, maxx, maxy] bounding box.
func BBox(bbox []float64) error {
	if len(bbox) != 4 {
		return fail("Bounding box must have exactly 4 values [minx, miny, maxx, maxy]. Got %d.", len(bbox))
	}
	minX, minY, maxX, maxY := bbox[0], bbox[1], bbox[2], bbox[3]
	if minX < -180 || minX > 180 || maxX < -180 || maxX > 180 {
		return fail("Longitude out of range in bbox: [%g, %g]", minX, maxX)
	}
	if minY < -90 || minY > 90 || maxY < -90 || maxY > 90 {
		return fail("Latitude out of range in bbox: [%g, %g]", minY, maxY)
	}
	if minX >= maxX {
		return fail("Bbox minx (%g) must be less than maxx (%g)", minX, maxX)
	}
	if minY >= maxY {
		return fail("Bbox miny (%g) must be less than maxy (%g)", minY, maxY)
	}
	return nil
}
