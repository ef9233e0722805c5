package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 100, cfg.Server.RateLimitPerHour)
	assert.Equal(t, "http://localhost:8001", cfg.Backend.BaseURL)
	assert.Equal(t, 120*time.Second, cfg.Backend.ComputeTimeout())
	assert.Equal(t, 30*time.Second, cfg.Backend.HotspotTimeout())
	assert.Equal(t, 5*time.Second, cfg.Backend.HealthTimeout())
	assert.Equal(t, 60, cfg.Sentinel.TimeoutSecs)
	assert.Equal(t, 3, cfg.Sentinel.MaxRetries)
	assert.Equal(t, 512, cfg.Sentinel.ImageSize)
	assert.InDelta(t, 20, cfg.Sentinel.MaxCloudCoverage, 0.001)
	assert.Equal(t, 1000, cfg.Validation.MaxVertices)
	assert.InDelta(t, 0.01, cfg.Validation.MinAreaKm2, 1e-9)
	assert.InDelta(t, 30000, cfg.Validation.MaxAreaKm2, 1e-9)
	assert.InDelta(t, 100, cfg.Validation.MaxAspectRatio, 1e-9)
	assert.InDelta(t, 0.01, cfg.Validation.BufferDeg, 1e-9)
	assert.Equal(t, 5, cfg.HotspotBreaker.FailureThreshold)
	assert.Equal(t, 30, cfg.HotspotBreaker.ResetTimeoutSecs)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
  format: console
server:
  port: 9090
backend:
  base_url: http://rusle:8001
validation:
  max_vertices: 500
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "http://rusle:8001", cfg.Backend.BaseURL)
	assert.Equal(t, 500, cfg.Validation.MaxVertices)
	// Defaults still apply for unset values
	assert.Equal(t, 120, cfg.Backend.ComputeTimeoutSecs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
backend:
  base_url: http://rusle:8001
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("EROSION_BACKEND_BASE_URL", "http://other:9000")
	t.Setenv("EROSION_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "http://other:9000", cfg.Backend.BaseURL)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("EROSION_SERVER_PORT", "3000")
	t.Setenv("EROSION_SENTINEL_CLIENT_ID", "cid")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "cid", cfg.Sentinel.ClientID)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: [oops"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Server.Port = 8000
	cfg.Server.RateLimitPerHour = 100
	cfg.Backend = BackendConfig{
		BaseURL:            "http://localhost:8001",
		ComputeTimeoutSecs: 120,
		HotspotTimeoutSecs: 30,
		HealthTimeoutSecs:  5,
	}
	cfg.Sentinel.ClientID = "id"
	cfg.Sentinel.ClientSecret = "secret"
	cfg.Sentinel.ImageSize = 512
	cfg.Validation = ValidationConfig{
		MaxVertices:    1000,
		MinAreaKm2:     0.01,
		MaxAreaKm2:     30000,
		MaxAspectRatio: 100,
		BufferDeg:      0.01,
	}
	return cfg
}

func TestValidateServe_Valid(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("serve"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateServe_MissingSentinelCredentials(t *testing.T) {
	cfg := validDefaults()
	cfg.Sentinel.ClientSecret = ""

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "sentinel.client_id and sentinel.client_secret are required")
}

func TestValidateServe_CollectsAllProblems(t *testing.T) {
	cfg := validDefaults()
	cfg.Backend.BaseURL = ""
	cfg.Validation.MinAreaKm2 = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend.base_url is required")
	assert.Contains(t, err.Error(), "validation.min_area_km2")
}

func TestValidateValidate_IgnoresServerSettings(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0
	cfg.Sentinel = SentinelConfig{}

	assert.NoError(t, cfg.Validate("validate"))

	cfg.Validation.MaxAspectRatio = 0.5
	err := cfg.Validate("validate")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max_aspect_ratio")
}

func TestValidateHealth(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("health"))

	cfg.Backend.HealthTimeoutSecs = 0
	err := cfg.Validate("health")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "backend timeouts must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
