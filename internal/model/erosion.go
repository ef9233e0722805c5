package model

import (
	"bytes"
	"encoding/json"
)

// DefaultP95Threshold is used for cross-validation when the compute service
// omits the 95th percentile.
const DefaultP95Threshold = 20.0

// Factor codes of the RUSLE equation A = R × K × LS × C × P.
const (
	FactorR  = "R"
	FactorK  = "K"
	FactorLS = "LS"
	FactorC  = "C"
	FactorP  = "P"
)

// FactorCodes lists the RUSLE factors in equation order.
var FactorCodes = []string{FactorR, FactorK, FactorLS, FactorC, FactorP}

// FactorStats summarises one RUSLE factor over the region.
type FactorStats struct {
	Mean   float64 `json:"mean"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Stddev float64 `json:"stddev"`
	Unit   string  `json:"unit,omitempty"`
	Source string  `json:"source,omitempty"`
}

// ErosionStats summarises the soil loss raster in t/ha/yr.
type ErosionStats struct {
	Mean   float64  `json:"mean"`
	Min    float64  `json:"min"`
	Max    float64  `json:"max"`
	Stddev float64  `json:"stddev"`
	P50    float64  `json:"p50"`
	P95    *float64 `json:"p95,omitempty"`
	Unit   string   `json:"unit,omitempty"`
}

// P95Threshold returns the 95th percentile or DefaultP95Threshold when absent.
func (e ErosionStats) P95Threshold() float64 {
	if e.P95 == nil {
		return DefaultP95Threshold
	}
	return *e.P95
}

// ComputeResult is the response of the RUSLE computation service.
type ComputeResult struct {
	Erosion    ErosionStats           `json:"erosion"`
	Factors    map[string]FactorStats `json:"factors"`
	Validation map[string]any         `json:"validation,omitempty"`
	TileURLs   map[string]string      `json:"tile_urls,omitempty"`
}

// NormalizeTileURLs flattens a raw tile URL object into string values.
// Strings are kept, nulls dropped and any other JSON value is re-encoded as
// compact JSON text.
func NormalizeTileURLs(raw map[string]json.RawMessage) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		trimmed := bytes.TrimSpace(v)
		if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
			continue
		}
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			out[k] = s
			continue
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err != nil {
			out[k] = string(trimmed)
			continue
		}
		out[k] = buf.String()
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
