package resilience

import (
	"time"

	"github.com/sells-group/erosion-api/internal/config"
)

// BreakerFromConfig converts configuration values to a BreakerConfig,
// keeping defaults for unset fields.
func BreakerFromConfig(name string, c config.BreakerConfig) BreakerConfig {
	cfg := DefaultBreakerConfig(name)
	if c.FailureThreshold > 0 {
		cfg.FailureThreshold = c.FailureThreshold
	}
	if c.ResetTimeoutSecs > 0 {
		cfg.ResetTimeout = time.Duration(c.ResetTimeoutSecs) * time.Second
	}
	return cfg
}
