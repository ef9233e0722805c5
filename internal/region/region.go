// Package region turns a polygon into the buffered GeoJSON region sent to the
// computation services.
package region

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/erosion-api/internal/geometry"
	"github.com/sells-group/erosion-api/internal/model"
)

// DefaultBufferDeg is roughly 1.1 km at the equator.
const DefaultBufferDeg = 0.01

// CRS is the coordinate reference system of every region.
const CRS = "EPSG:4326"

const kmPerDegree = 111.32

// Properties are the metadata of the buffered shape.
type Properties struct {
	AreaKm2          float64    `json:"area_km2"`
	AreaHectares     float64    `json:"area_hectares"`
	AreaM2           float64    `json:"area_m2"`
	PerimeterKm      float64    `json:"perimeter_km"`
	PerimeterM       float64    `json:"perimeter_m"`
	Centroid         [2]float64 `json:"centroid"`
	BBox             [4]float64 `json:"bbox"`
	NumVertices      int        `json:"num_vertices"`
	BufferAppliedDeg float64    `json:"buffer_applied_deg"`
	BufferAppliedKm  float64    `json:"buffer_applied_km"`
	CRS              string     `json:"crs"`
}

// Map returns the properties as a GeoJSON properties object.
func (p Properties) Map() map[string]interface{} {
	return map[string]interface{}{
		"area_km2":           p.AreaKm2,
		"area_hectares":      p.AreaHectares,
		"area_m2":            p.AreaM2,
		"perimeter_km":       p.PerimeterKm,
		"perimeter_m":        p.PerimeterM,
		"centroid":           p.Centroid,
		"bbox":               p.BBox,
		"num_vertices":       p.NumVertices,
		"buffer_applied_deg": p.BufferAppliedDeg,
		"buffer_applied_km":  p.BufferAppliedKm,
		"crs":                p.CRS,
	}
}

// Region is a buffered request polygon with its derived metadata.
//
// A ring crossing the antimeridian keeps its unwrapped longitudes (east of
// 180 up to 360) in Polygon and Extent so planar consumers see one contiguous
// shape. Properties.BBox reports the same box RFC 7946 style.
type Region struct {
	Polygon    *geom.Polygon
	Properties Properties
	// Extent is the planar [minx, miny, maxx, maxy] of Polygon. minx < maxx
	// always holds.
	Extent [4]float64
}

// Feature returns the region as a GeoJSON Feature.
func (r *Region) Feature() *geojson.Feature {
	return &geojson.Feature{
		Geometry:   r.Polygon,
		Properties: r.Properties.Map(),
	}
}

// MarshalJSON encodes the region as a GeoJSON Feature.
func (r *Region) MarshalJSON() ([]byte, error) {
	return r.Feature().MarshalJSON()
}

// Marshal returns the encoded Feature, wrapping encoder failures.
func (r *Region) Marshal() (json.RawMessage, error) {
	b, err := r.MarshalJSON()
	if err != nil {
		return nil, eris.Wrap(err, "region: encode feature")
	}
	return b, nil
}

// Build buffers the polygon by bufferDeg degrees and computes the metadata of
// the buffered shape. A non-positive buffer keeps the shape as given.
func Build(vertices []model.Vertex, bufferDeg float64) (*Region, error) {
	if len(vertices) < 3 {
		return nil, eris.Errorf("region: need at least 3 vertices, got %d", len(vertices))
	}
	raw := make([]geom.Coord, len(vertices))
	for i, v := range vertices {
		raw[i] = geom.Coord{v.Longitude, v.Latitude}
	}
	ring, shifted := geometry.Unwrap(raw)

	bufferDeg = max(bufferDeg, 0)
	buffered, err := geometry.Buffer(ring, bufferDeg, geometry.DefaultQuadrantSegments)
	if err != nil {
		return nil, eris.Wrap(err, "region: buffer polygon")
	}
	buffered = append(buffered, buffered[0])

	centroid, err := geometry.Centroid(buffered)
	if err != nil {
		return nil, eris.Wrap(err, "region: centroid")
	}
	var extent [4]float64
	for i, b := range geometry.Bounds(buffered) {
		extent[i] = geometry.Round(b, 6)
	}
	bounds := extent
	if shifted {
		bounds = geometry.WrappedBounds(bounds)
		for i := range bounds {
			bounds[i] = geometry.Round(bounds[i], 6)
		}
	}

	areaM2 := geometry.GeodesicArea(buffered)
	perimeterM := geometry.GeodesicPerimeter(buffered)
	props := Properties{
		AreaKm2:      geometry.Round(areaM2/1e6, 4),
		AreaHectares: geometry.Round(areaM2/1e4, 2),
		AreaM2:       geometry.Round(areaM2, 2),
		PerimeterKm:  geometry.Round(perimeterM/1000, 3),
		PerimeterM:   geometry.Round(perimeterM, 2),
		Centroid: [2]float64{
			geometry.Round(geometry.NormalizeLongitude(centroid[0]), 6),
			geometry.Round(centroid[1], 6),
		},
		BBox:             bounds,
		NumVertices:      len(buffered),
		BufferAppliedDeg: bufferDeg,
		BufferAppliedKm:  geometry.Round(bufferDeg*kmPerDegree, 2),
		CRS:              CRS,
	}

	poly, err := geom.NewPolygon(geom.XY).SetCoords([][]geom.Coord{buffered})
	if err != nil {
		return nil, eris.Wrap(err, "region: build polygon")
	}

	zap.L().Debug("built region",
		zap.Float64("area_km2", props.AreaKm2),
		zap.Int("vertices", props.NumVertices),
		zap.Float64("buffer_deg", bufferDeg),
		zap.Bool("antimeridian", shifted),
	)
	return &Region{Polygon: poly, Properties: props, Extent: extent}, nil
}
