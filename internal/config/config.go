package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Server         ServerConfig     `yaml:"server" mapstructure:"server"`
	Backend        BackendConfig    `yaml:"backend" mapstructure:"backend"`
	Sentinel       SentinelConfig   `yaml:"sentinel" mapstructure:"sentinel"`
	Validation     ValidationConfig `yaml:"validation" mapstructure:"validation"`
	HotspotBreaker BreakerConfig    `yaml:"hotspot_breaker" mapstructure:"hotspot_breaker"`
	Log            LogConfig        `yaml:"log" mapstructure:"log"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port                int      `yaml:"port" mapstructure:"port"`
	CORSOrigins         []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	RateLimitPerHour    int      `yaml:"rate_limit_per_hour" mapstructure:"rate_limit_per_hour"`
	RateLimitBurst      int      `yaml:"rate_limit_burst" mapstructure:"rate_limit_burst"`
	ShutdownTimeoutSecs int      `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
}

// BackendConfig points at the RUSLE computation service that also hosts
// the hotspot classifier.
type BackendConfig struct {
	BaseURL            string `yaml:"base_url" mapstructure:"base_url"`
	ComputeTimeoutSecs int    `yaml:"compute_timeout_secs" mapstructure:"compute_timeout_secs"`
	HotspotTimeoutSecs int    `yaml:"hotspot_timeout_secs" mapstructure:"hotspot_timeout_secs"`
	HealthTimeoutSecs  int    `yaml:"health_timeout_secs" mapstructure:"health_timeout_secs"`
}

// SentinelConfig holds Copernicus Data Space credentials and process API settings.
type SentinelConfig struct {
	ClientID         string  `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret     string  `yaml:"client_secret" mapstructure:"client_secret"`
	TokenURL         string  `yaml:"token_url" mapstructure:"token_url"`
	ProcessURL       string  `yaml:"process_url" mapstructure:"process_url"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries       int     `yaml:"max_retries" mapstructure:"max_retries"`
	ImageSize        int     `yaml:"image_size" mapstructure:"image_size"`
	MaxCloudCoverage float64 `yaml:"max_cloud_coverage" mapstructure:"max_cloud_coverage"`
}

// ValidationConfig holds the polygon acceptance limits.
type ValidationConfig struct {
	MaxVertices    int     `yaml:"max_vertices" mapstructure:"max_vertices"`
	MinAreaKm2     float64 `yaml:"min_area_km2" mapstructure:"min_area_km2"`
	MaxAreaKm2     float64 `yaml:"max_area_km2" mapstructure:"max_area_km2"`
	MaxAspectRatio float64 `yaml:"max_aspect_ratio" mapstructure:"max_aspect_ratio"`
	BufferDeg      float64 `yaml:"buffer_deg" mapstructure:"buffer_deg"`
}

// BreakerConfig configures the circuit breaker in front of the hotspot service.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ComputeTimeout returns the compute call timeout.
func (b BackendConfig) ComputeTimeout() time.Duration {
	return time.Duration(b.ComputeTimeoutSecs) * time.Second
}

// HotspotTimeout returns the hotspot call timeout.
func (b BackendConfig) HotspotTimeout() time.Duration {
	return time.Duration(b.HotspotTimeoutSecs) * time.Second
}

// HealthTimeout returns the readiness probe timeout.
func (b BackendConfig) HealthTimeout() time.Duration {
	return time.Duration(b.HealthTimeoutSecs) * time.Second
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("EROSION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.rate_limit_per_hour", 100)
	v.SetDefault("server.rate_limit_burst", 10)
	v.SetDefault("server.shutdown_timeout_secs", 10)
	v.SetDefault("backend.base_url", "http://localhost:8001")
	v.SetDefault("backend.compute_timeout_secs", 120)
	v.SetDefault("backend.hotspot_timeout_secs", 30)
	v.SetDefault("backend.health_timeout_secs", 5)
	v.SetDefault("sentinel.token_url", "https://identity.dataspace.copernicus.eu/auth/realms/CDSE/protocol/openid-connect/token")
	v.SetDefault("sentinel.process_url", "https://sh.dataspace.copernicus.eu/api/v1/process")
	v.SetDefault("sentinel.timeout_secs", 60)
	v.SetDefault("sentinel.max_retries", 3)
	v.SetDefault("sentinel.image_size", 512)
	v.SetDefault("sentinel.max_cloud_coverage", 20)
	v.SetDefault("validation.max_vertices", 1000)
	v.SetDefault("validation.min_area_km2", 0.01)
	v.SetDefault("validation.max_area_km2", 30000)
	v.SetDefault("validation.max_aspect_ratio", 100)
	v.SetDefault("validation.buffer_deg", 0.01)
	v.SetDefault("hotspot_breaker.failure_threshold", 5)
	v.SetDefault("hotspot_breaker.reset_timeout_secs", 30)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings required by the given command mode
// ("serve", "validate" or "health").
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Server.RateLimitPerHour <= 0 {
			problems = append(problems, "server.rate_limit_per_hour must be > 0")
		}
		problems = append(problems, c.validateBackend()...)
		problems = append(problems, c.validateLimits()...)
		if c.Sentinel.ClientID == "" || c.Sentinel.ClientSecret == "" {
			problems = append(problems, "sentinel.client_id and sentinel.client_secret are required")
		}
		if c.Sentinel.ImageSize <= 0 {
			problems = append(problems, "sentinel.image_size must be > 0")
		}
	case "validate":
		problems = append(problems, c.validateLimits()...)
	case "health":
		problems = append(problems, c.validateBackend()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) validateBackend() []string {
	var problems []string
	if c.Backend.BaseURL == "" {
		problems = append(problems, "backend.base_url is required")
	}
	if c.Backend.ComputeTimeoutSecs <= 0 || c.Backend.HotspotTimeoutSecs <= 0 || c.Backend.HealthTimeoutSecs <= 0 {
		problems = append(problems, "backend timeouts must be > 0")
	}
	return problems
}

func (c *Config) validateLimits() []string {
	var problems []string
	v := c.Validation
	if v.MaxVertices < 4 {
		problems = append(problems, "validation.max_vertices must be >= 4")
	}
	if v.MinAreaKm2 <= 0 || v.MaxAreaKm2 <= v.MinAreaKm2 {
		problems = append(problems, "validation.min_area_km2 must be > 0 and below max_area_km2")
	}
	if v.MaxAspectRatio < 1 {
		problems = append(problems, "validation.max_aspect_ratio must be >= 1")
	}
	if v.BufferDeg < 0 {
		problems = append(problems, "validation.buffer_deg must be >= 0")
	}
	return problems
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
