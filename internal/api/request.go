package api

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sells-group/erosion-api/internal/analysis"
	"github.com/sells-group/erosion-api/internal/catalog"
	"github.com/sells-group/erosion-api/internal/model"
)

const maxBodyBytes = 4 << 20

type coordinateJSON struct {
	Longitude *float64 `json:"longitude"`
	Latitude  *float64 `json:"latitude"`
	Height    *float64 `json:"height,omitempty"`
}

type optionsJSON struct {
	PToggle              *bool    `json:"p_toggle"`
	DateRange            *string  `json:"date_range"`
	ThresholdTHaYr       *float64 `json:"threshold_t_ha_yr"`
	ComputeSensitivities *bool    `json:"compute_sensitivities"`
}

type analyzeRequest struct {
	Coordinates []coordinateJSON `json:"coordinates"`
	Options     *optionsJSON     `json:"options"`
}

// requestRules are the structural bounds checked before the analysis runs.
type requestRules struct {
	maxVertices int
	defaults    catalog.RequestDefaults
}

func structural(format string, args ...any) *analysis.Error {
	return analysis.NewError(analysis.KindStructuralInput, fmt.Sprintf(format, args...), nil)
}

// decodeRequest parses and structurally validates an analysis request body.
func (rr requestRules) decodeRequest(body io.Reader) (analysis.Request, *analysis.Error) {
	var raw analyzeRequest
	dec := json.NewDecoder(io.LimitReader(body, maxBodyBytes))
	if err := dec.Decode(&raw); err != nil {
		return analysis.Request{}, structural("Invalid request body: %s", err)
	}

	vertices, aerr := rr.coordinates(raw.Coordinates)
	if aerr != nil {
		return analysis.Request{}, aerr
	}
	opts, aerr := rr.options(raw.Options)
	if aerr != nil {
		return analysis.Request{}, aerr
	}
	return analysis.Request{Coordinates: vertices, Options: opts}, nil
}

func (rr requestRules) coordinates(in []coordinateJSON) ([]model.Vertex, *analysis.Error) {
	if in == nil {
		return nil, structural("coordinates: field required")
	}
	if len(in) < 3 {
		return nil, structural("Polygon requires at least 3 vertices")
	}

	vertices := make([]model.Vertex, len(in))
	for i, c := range in {
		if c.Longitude == nil || c.Latitude == nil {
			return nil, structural("coordinates[%d]: longitude and latitude are required", i)
		}
		vertices[i] = model.Vertex{Longitude: *c.Longitude, Latitude: *c.Latitude, Height: c.Height}
	}

	if n := len(model.Close(vertices)); n > rr.maxVertices {
		return nil, structural("Polygon too complex (max %d vertices)", rr.maxVertices)
	}
	for i, v := range vertices {
		if v.Longitude < -180 || v.Longitude > 180 {
			return nil, structural("Point %d: Longitude %g out of valid range [-180, 180]", i+1, v.Longitude)
		}
		if v.Latitude < -90 || v.Latitude > 90 {
			return nil, structural("Point %d: Latitude %g out of valid range [-90, 90]", i+1, v.Latitude)
		}
	}
	return vertices, nil
}

func (rr requestRules) options(in *optionsJSON) (analysis.Options, *analysis.Error) {
	opts := analysis.DefaultOptions()
	if rr.defaults.DefaultDateRange != "" {
		opts.DateRange = rr.defaults.DefaultDateRange
	}
	if rr.defaults.DefaultThreshold > 0 {
		opts.ThresholdTHaYr = rr.defaults.DefaultThreshold
	}
	if in == nil {
		return opts, nil
	}

	if in.PToggle != nil {
		opts.PToggle = *in.PToggle
	}
	if in.ComputeSensitivities != nil {
		opts.ComputeSensitivities = *in.ComputeSensitivities
	}
	if in.DateRange != nil {
		if err := checkDateRange(*in.DateRange, rr.defaults.MaxDateRangeDays); err != "" {
			return opts, structural("Invalid date_range format: %s", err)
		}
		opts.DateRange = *in.DateRange
	}
	if in.ThresholdTHaYr != nil {
		t := *in.ThresholdTHaYr
		if t <= 0 || t > rr.defaults.MaxThreshold {
			return opts, structural("threshold_t_ha_yr must be greater than 0 and at most %g", rr.defaults.MaxThreshold)
		}
		opts.ThresholdTHaYr = t
	}
	return opts, nil
}

// checkDateRange returns a description of what is wrong with s, or "".
func checkDateRange(s string, maxDays int) string {
	start, end, ok := strings.Cut(s, "/")
	if !ok {
		return "expected YYYY-MM-DD/YYYY-MM-DD"
	}
	from, err := time.Parse(time.DateOnly, start)
	if err != nil {
		return "expected YYYY-MM-DD/YYYY-MM-DD"
	}
	to, err := time.Parse(time.DateOnly, end)
	if err != nil {
		return "expected YYYY-MM-DD/YYYY-MM-DD"
	}
	if !to.After(from) {
		return "End date must be after start date"
	}
	if days := int(to.Sub(from).Hours() / 24); maxDays > 0 && days > maxDays {
		return fmt.Sprintf("Date range too long (max %d days)", maxDays)
	}
	return ""
}
