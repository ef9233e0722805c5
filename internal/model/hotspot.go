package model

import "encoding/json"

// Severity grades a hotspot.
type Severity string

// Hotspot severities.
const (
	SeverityLow      Severity = "low"
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityModerate, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// HotspotProperties are the erosion figures of a flagged sub-area.
type HotspotProperties struct {
	AreaHa         float64 `json:"area_ha"`
	MeanErosion    float64 `json:"mean_erosion"`
	MaxErosion     float64 `json:"max_erosion"`
	DominantFactor string  `json:"dominant_factor,omitempty"`
}

// FactorContext explains a hotspot's dominant factor against the region-wide mean.
type FactorContext struct {
	DominantFactor string  `json:"dominant_factor"`
	GlobalMean     float64 `json:"global_mean"`
	Description    string  `json:"description"`
}

// Hotspot is a high erosion-risk sub-area reported by the classifier.
type Hotspot struct {
	ID            string            `json:"id"`
	Geometry      json.RawMessage   `json:"geometry,omitempty"`
	Properties    HotspotProperties `json:"properties"`
	Reason        string            `json:"reason"`
	Severity      Severity          `json:"severity"`
	Confidence    *float64          `json:"confidence,omitempty"`
	FactorContext *FactorContext    `json:"factor_context,omitempty"`
}

// HotspotSummary aggregates the classifier output.
type HotspotSummary struct {
	TotalHotspots        int            `json:"total_hotspots"`
	TotalHighRiskAreaHa  *float64       `json:"total_high_risk_area_ha,omitempty"`
	SeverityDistribution map[string]int `json:"severity_distribution,omitempty"`
	DominantFactors      []string       `json:"dominant_factors,omitempty"`
	Error                string         `json:"error,omitempty"`
}

// HotspotResult is the response of the hotspot classification service.
type HotspotResult struct {
	Hotspots []Hotspot      `json:"hotspots"`
	Summary  HotspotSummary `json:"summary"`
}

// DegradedHotspots is the empty result substituted when the optional
// hotspot call fails.
func DegradedHotspots(reason string) HotspotResult {
	return HotspotResult{
		Hotspots: []Hotspot{},
		Summary:  HotspotSummary{TotalHotspots: 0, Error: reason},
	}
}

// CrossValidation records how well hotspots agree with the erosion statistics.
type CrossValidation struct {
	Validated      bool     `json:"validated"`
	ValidationRate *float64 `json:"validation_rate,omitempty"`
	ValidatedCount *int     `json:"validated_count,omitempty"`
	TotalCount     *int     `json:"total_count,omitempty"`
	Notes          string   `json:"notes"`
}

// MergedResult combines the compute and hotspot responses.
type MergedResult struct {
	Erosion         ErosionStats           `json:"erosion"`
	Factors         map[string]FactorStats `json:"factors"`
	Validation      map[string]any         `json:"validation,omitempty"`
	TileURLs        map[string]string      `json:"tile_urls,omitempty"`
	Hotspots        []Hotspot              `json:"hotspots"`
	HotspotSummary  HotspotSummary         `json:"hotspot_summary"`
	CrossValidation CrossValidation        `json:"cross_validation"`
}
