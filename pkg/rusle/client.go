// Package rusle provides a client for the RUSLE computation backend: the
// required factor computation, the optional hotspot classifier and the
// readiness probe.
package rusle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/erosion-api/internal/model"
	"github.com/sells-group/erosion-api/internal/resilience"
)

// ErrTimeout marks a computation that did not finish in time, either on our
// side or reported by the backend with a 504.
var ErrTimeout = eris.New("rusle: computation timed out")

// Endpoint paths relative to the base URL.
const (
	ComputePath  = "/api/rusle/compute"
	HotspotsPath = "/api/ml/hotspots"
	HealthPath   = "/health"
)

// Client defines the backend operations.
type Client interface {
	// Compute runs the RUSLE factor computation. Failures are returned.
	Compute(ctx context.Context, geojson json.RawMessage, opts ComputeOptions) (*model.ComputeResult, error)
	// Hotspots classifies high-risk sub-areas. It never fails: errors are
	// reported in the summary of an empty result.
	Hotspots(ctx context.Context, geojson json.RawMessage, thresholdTHaYr float64) model.HotspotResult
	// Health reports backend readiness.
	Health(ctx context.Context) (*HealthStatus, error)
}

// ComputeOptions are forwarded to the computation service.
type ComputeOptions struct {
	PToggle              bool `json:"p_toggle"`
	ComputeSensitivities bool `json:"compute_sensitivities"`
}

// HealthStatus is the readiness report of the backend.
type HealthStatus struct {
	RUSLEService string `json:"rusle_service"`
	MLService    string `json:"ml_service"`
}

// Ready reports whether both backend services are healthy.
func (h HealthStatus) Ready() bool {
	return h.RUSLEService == "healthy" && h.MLService == "healthy"
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets the backend base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithComputeTimeout overrides the 120s computation timeout.
func WithComputeTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.computeTimeout = d
	}
}

// WithHotspotTimeout overrides the 30s hotspot timeout.
func WithHotspotTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.hotspotTimeout = d
	}
}

// WithHealthTimeout overrides the 5s health check timeout.
func WithHealthTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.healthTimeout = d
	}
}

type httpClient struct {
	baseURL        string
	http           *http.Client
	computeTimeout time.Duration
	hotspotTimeout time.Duration
	healthTimeout  time.Duration
}

// NewClient creates a backend client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: "http://localhost:8001",
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		computeTimeout: 120 * time.Second,
		hotspotTimeout: 30 * time.Second,
		healthTimeout:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type computeRequest struct {
	GeoJSON json.RawMessage `json:"geojson"`
	Options ComputeOptions  `json:"options"`
}

type computeResponse struct {
	Erosion    model.ErosionStats           `json:"erosion"`
	Factors    map[string]model.FactorStats `json:"factors"`
	Validation map[string]any               `json:"validation"`
	TileURLs   map[string]json.RawMessage   `json:"tile_urls"`
}

func (c *httpClient) Compute(ctx context.Context, geojson json.RawMessage, opts ComputeOptions) (*model.ComputeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.computeTimeout)
	defer cancel()

	body, status, err := c.post(ctx, ComputePath, computeRequest{GeoJSON: geojson, Options: opts})
	if err != nil {
		if resilience.IsTimeout(err) {
			zap.L().Error("rusle: compute timed out", zap.Duration("timeout", c.computeTimeout))
			return nil, eris.Wrapf(ErrTimeout,
				"RUSLE computation timed out after %s. The polygon may be too large or the data source is slow. Try reducing area",
				c.computeTimeout)
		}
		return nil, eris.Wrap(err, "rusle: compute request failed")
	}

	if status == http.StatusGatewayTimeout {
		return nil, eris.Wrap(ErrTimeout, "RUSLE computation timed out. Try a smaller polygon or shorter date range")
	}
	if status < 200 || status >= 300 {
		zap.L().Error("rusle: compute returned error status", zap.Int("status", status))
		err := eris.Errorf("RUSLE service error (%d): %s", status, string(body))
		if resilience.IsTransientHTTPStatus(status) {
			return nil, resilience.NewTransientError(err, status)
		}
		return nil, err
	}

	var resp computeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "rusle: unmarshal compute response")
	}

	zap.L().Info("rusle: compute completed", zap.Float64("mean_erosion", resp.Erosion.Mean))
	return &model.ComputeResult{
		Erosion:    resp.Erosion,
		Factors:    resp.Factors,
		Validation: resp.Validation,
		TileURLs:   model.NormalizeTileURLs(resp.TileURLs),
	}, nil
}

type hotspotRequest struct {
	GeoJSON        json.RawMessage `json:"geojson"`
	ThresholdTHaYr float64         `json:"threshold_t_ha_yr"`
}

type hotspotResponse struct {
	Hotspots       []model.Hotspot       `json:"hotspots"`
	Summary        *model.HotspotSummary `json:"summary"`
	HotspotSummary *model.HotspotSummary `json:"hotspot_summary"`
}

// StatusError is a non-2xx backend response.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s service error: %d", e.Service, e.StatusCode)
}

func (c *httpClient) Hotspots(ctx context.Context, geojson json.RawMessage, thresholdTHaYr float64) model.HotspotResult {
	res, err := c.hotspots(ctx, geojson, thresholdTHaYr)
	if err != nil {
		reason := DegradeReason(err)
		zap.L().Warn("rusle: hotspot classification degraded", zap.String("reason", reason), zap.Error(err))
		return model.DegradedHotspots(reason)
	}
	return res
}

func (c *httpClient) hotspots(ctx context.Context, geojson json.RawMessage, thresholdTHaYr float64) (model.HotspotResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.hotspotTimeout)
	defer cancel()

	body, status, err := c.post(ctx, HotspotsPath, hotspotRequest{GeoJSON: geojson, ThresholdTHaYr: thresholdTHaYr})
	if err != nil {
		return model.HotspotResult{}, err
	}
	if status < 200 || status >= 300 {
		return model.HotspotResult{}, &StatusError{Service: "ML", StatusCode: status, Body: string(body)}
	}

	var resp hotspotResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return model.HotspotResult{}, eris.Wrap(err, "rusle: unmarshal hotspot response")
	}

	out := model.HotspotResult{Hotspots: resp.Hotspots}
	if out.Hotspots == nil {
		out.Hotspots = []model.Hotspot{}
	}
	switch {
	case resp.Summary != nil:
		out.Summary = *resp.Summary
	case resp.HotspotSummary != nil:
		out.Summary = *resp.HotspotSummary
	default:
		out.Summary = model.HotspotSummary{TotalHotspots: len(out.Hotspots)}
	}
	zap.L().Info("rusle: hotspot classification completed", zap.Int("hotspots", len(out.Hotspots)))
	return out, nil
}

// DegradeReason describes a hotspot failure for the degraded summary.
func DegradeReason(err error) string {
	if resilience.IsTimeout(err) {
		return "ML service timeout"
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Error()
	}
	return err.Error()
}

func (c *httpClient) Health(ctx context.Context) (*HealthStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+HealthPath, nil)
	if err != nil {
		return nil, eris.Wrap(err, "rusle: create health request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "rusle: health request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "rusle: read health response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("rusle: health unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var status HealthStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, eris.Wrap(err, "rusle: unmarshal health response")
	}
	return &status, nil
}

func (c *httpClient) post(ctx context.Context, path string, payload any) ([]byte, int, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, eris.Wrap(err, "rusle: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, 0, eris.Wrap(err, "rusle: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}
