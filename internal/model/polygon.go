package model

// Vertex is a single WGS84 coordinate of a request polygon.
type Vertex struct {
	Longitude float64  `json:"longitude"`
	Latitude  float64  `json:"latitude"`
	Height    *float64 `json:"height,omitempty"`
}

// Equal reports whether two vertices share the same position. Height is ignored.
func (v Vertex) Equal(o Vertex) bool {
	return v.Longitude == o.Longitude && v.Latitude == o.Latitude
}

// XY returns the vertex as a planar [lon, lat] pair.
func (v Vertex) XY() [2]float64 {
	return [2]float64{v.Longitude, v.Latitude}
}

// VerticesFromPairs builds vertices from [lon, lat] pairs.
func VerticesFromPairs(pairs [][2]float64) []Vertex {
	out := make([]Vertex, len(pairs))
	for i, p := range pairs {
		out[i] = Vertex{Longitude: p[0], Latitude: p[1]}
	}
	return out
}

// IsClosed reports whether the first and last vertex are identical.
func IsClosed(vertices []Vertex) bool {
	if len(vertices) == 0 {
		return false
	}
	return vertices[0].Equal(vertices[len(vertices)-1])
}

// Close returns the ring with the first vertex appended when it is not already
// closed. The input slice is never modified.
func Close(vertices []Vertex) []Vertex {
	out := make([]Vertex, len(vertices), len(vertices)+1)
	copy(out, vertices)
	if len(out) > 0 && !IsClosed(out) {
		out = append(out, out[0])
	}
	return out
}

// ValidationReport is the metadata produced by a successful polygon validation.
type ValidationReport struct {
	Valid        bool       `json:"valid"`
	AreaKm2      float64    `json:"area_km2"`
	AreaHectares float64    `json:"area_hectares"`
	Centroid     [2]float64 `json:"centroid"`
	BBox         [4]float64 `json:"bbox"`
	NumVertices  int        `json:"num_vertices"`
	PerimeterKm  float64    `json:"perimeter_km"`
	Warnings     []string   `json:"warnings,omitempty"`
}

// PolygonMetadata is the subset of the validation report echoed in responses.
type PolygonMetadata struct {
	AreaKm2     float64    `json:"area_km2"`
	Centroid    [2]float64 `json:"centroid"`
	BBox        [4]float64 `json:"bbox"`
	NumVertices int        `json:"num_vertices"`
}

// Metadata projects the report onto the response metadata block.
func (r ValidationReport) Metadata() PolygonMetadata {
	return PolygonMetadata{
		AreaKm2:     r.AreaKm2,
		Centroid:    r.Centroid,
		BBox:        r.BBox,
		NumVertices: r.NumVertices,
	}
}
