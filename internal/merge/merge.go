// Package merge combines the compute and hotspot service responses into a
// single report.
package merge

import (
	"fmt"
	"math"

	"github.com/sells-group/erosion-api/internal/model"
)

const (
	// hotspotShareOfP95 is the fraction of the 95th percentile a hotspot's
	// mean erosion must reach to count as confirmed.
	hotspotShareOfP95 = 0.8
	// minValidationRate is the confirmed share needed for the hotspot set
	// as a whole to validate.
	minValidationRate = 0.7
)

// Describer maps a factor code to a human readable hotspot driver.
type Describer interface {
	Describe(code string) string
}

// Merger joins service responses. It holds no per-call state.
type Merger struct {
	describe Describer
}

// New creates a Merger using d for factor descriptions.
func New(d Describer) *Merger {
	return &Merger{describe: d}
}

// Merge copies the compute statistics and hotspot list into one result,
// attaches factor context to each hotspot and cross-validates the hotspots
// against the erosion percentiles. Inputs are not modified.
func (m *Merger) Merge(compute model.ComputeResult, hotspots model.HotspotResult) model.MergedResult {
	enriched := m.enrich(hotspots.Hotspots, compute.Factors)
	return model.MergedResult{
		Erosion:         compute.Erosion,
		Factors:         compute.Factors,
		Validation:      compute.Validation,
		TileURLs:        compute.TileURLs,
		Hotspots:        enriched,
		HotspotSummary:  hotspots.Summary,
		CrossValidation: CrossValidate(enriched, compute.Erosion),
	}
}

func (m *Merger) enrich(in []model.Hotspot, factors map[string]model.FactorStats) []model.Hotspot {
	out := make([]model.Hotspot, len(in))
	copy(out, in)
	if len(factors) == 0 {
		return out
	}
	for i := range out {
		code := out[i].Properties.DominantFactor
		stats, ok := factors[code]
		if code == "" || !ok {
			continue
		}
		out[i].FactorContext = &model.FactorContext{
			DominantFactor: code,
			GlobalMean:     stats.Mean,
			Description:    m.describe.Describe(code),
		}
	}
	return out
}

// CrossValidate checks whether the hotspots carry high erosion according to
// the compute service's own distribution.
func CrossValidate(hotspots []model.Hotspot, erosion model.ErosionStats) model.CrossValidation {
	if len(hotspots) == 0 {
		return model.CrossValidation{Validated: true, Notes: "No hotspots to validate"}
	}

	cutoff := erosion.P95Threshold() * hotspotShareOfP95
	validated := 0
	for _, h := range hotspots {
		if h.Properties.MeanErosion >= cutoff {
			validated++
		}
	}
	total := len(hotspots)
	rate := float64(validated) / float64(total)
	rounded := math.Round(rate*100) / 100

	return model.CrossValidation{
		Validated:      rate >= minValidationRate,
		ValidationRate: &rounded,
		ValidatedCount: &validated,
		TotalCount:     &total,
		Notes:          fmt.Sprintf("%d/%d hotspots have erosion >= %.1f t/ha/yr", validated, total, cutoff),
	}
}
