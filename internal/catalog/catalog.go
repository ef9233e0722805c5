// Package catalog holds the RUSLE factor reference data and request defaults
// shipped with the binary.
package catalog

import (
	_ "embed"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/erosion-api/internal/model"
)

//go:embed factors.yaml
var embedded []byte

// UnknownFactor describes a dominant factor code missing from the catalogue.
const UnknownFactor = "Unknown factor"

// Factor describes one term of the RUSLE equation.
type Factor struct {
	Code          string `yaml:"code" json:"-"`
	Name          string `yaml:"name" json:"name"`
	Unit          string `yaml:"unit" json:"unit"`
	Source        string `yaml:"source" json:"source"`
	HotspotDriver string `yaml:"hotspot_driver" json:"-"`
}

// RequestDefaults bound and default the analysis request options.
type RequestDefaults struct {
	DefaultDateRange string  `yaml:"default_date_range"`
	DefaultThreshold float64 `yaml:"default_threshold_t_ha_yr"`
	MaxThreshold     float64 `yaml:"max_threshold_t_ha_yr"`
	MaxDateRangeDays int     `yaml:"max_date_range_days"`
}

// Catalog is the parsed factor catalogue.
type Catalog struct {
	Equation   string          `yaml:"equation"`
	OutputUnit string          `yaml:"output_unit"`
	Factors    []Factor        `yaml:"factors"`
	Request    RequestDefaults `yaml:"request"`

	byCode map[string]Factor
}

// Load parses the embedded catalogue.
func Load() (*Catalog, error) {
	return Parse(embedded)
}

// Parse reads a catalogue document with a top-level "rusle" key.
func Parse(data []byte) (*Catalog, error) {
	var wrapper struct {
		RUSLE Catalog `yaml:"rusle"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "catalog: parse")
	}

	c := &wrapper.RUSLE
	if len(c.Factors) == 0 {
		return nil, eris.New("catalog: no factors defined")
	}
	c.byCode = make(map[string]Factor, len(c.Factors))
	for _, f := range c.Factors {
		if f.Code == "" {
			return nil, eris.Errorf("catalog: factor %q has no code", f.Name)
		}
		if _, dup := c.byCode[f.Code]; dup {
			return nil, eris.Errorf("catalog: duplicate factor %s", f.Code)
		}
		c.byCode[f.Code] = f
	}
	for _, code := range model.FactorCodes {
		if _, ok := c.byCode[code]; !ok {
			return nil, eris.Errorf("catalog: missing factor %s", code)
		}
	}
	return c, nil
}

// Factor returns the factor with the given code.
func (c *Catalog) Factor(code string) (Factor, bool) {
	f, ok := c.byCode[code]
	return f, ok
}

// Describe returns the hotspot driver description for a factor code.
func (c *Catalog) Describe(code string) string {
	if f, ok := c.Factor(code); ok && f.HotspotDriver != "" {
		return f.HotspotDriver
	}
	return UnknownFactor
}

// FactorMap returns the factors keyed by code.
func (c *Catalog) FactorMap() map[string]Factor {
	out := make(map[string]Factor, len(c.byCode))
	for k, v := range c.byCode {
		out[k] = v
	}
	return out
}
