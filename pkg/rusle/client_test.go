package rusle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/erosion-api/internal/model"
	"github.com/sells-group/erosion-api/internal/resilience"
)

var testRegion = json.RawMessage(`{"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]},"properties":{}}`)

const computeBody = `{
	"erosion": {"mean": 12.4, "min": 0.3, "max": 45.2, "stddev": 8.7, "p50": 9.1, "p95": 28.3, "unit": "t/ha/yr"},
	"factors": {
		"R": {"mean": 1850, "min": 1620, "max": 2100, "stddev": 120, "unit": "MJ mm/(ha h yr)"},
		"LS": {"mean": 4.2, "min": 0.1, "max": 18, "stddev": 3.1}
	},
	"validation": {"model_valid": true, "high_veg_reduction_pct": 68.2},
	"tile_urls": {"erosion_risk": "https://tiles/erosion", "factors": {"R": "https://tiles/r"}, "missing": null}
}`

func TestCompute_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, ComputePath, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req struct {
			GeoJSON json.RawMessage `json:"geojson"`
			Options map[string]bool `json:"options"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.JSONEq(t, string(testRegion), string(req.GeoJSON))
		assert.Equal(t, map[string]bool{"p_toggle": true, "compute_sensitivities": false}, req.Options)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(computeBody))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL + "/"))
	res, err := c.Compute(context.Background(), testRegion, ComputeOptions{PToggle: true})
	require.NoError(t, err)

	assert.InDelta(t, 12.4, res.Erosion.Mean, 1e-9)
	require.NotNil(t, res.Erosion.P95)
	assert.InDelta(t, 28.3, *res.Erosion.P95, 1e-9)
	assert.InDelta(t, 1850.0, res.Factors[model.FactorR].Mean, 1e-9)
	assert.Equal(t, true, res.Validation["model_valid"])
	assert.Equal(t, map[string]string{
		"erosion_risk": "https://tiles/erosion",
		"factors":      `{"R":"https://tiles/r"}`,
	}, res.TileURLs)
}

func TestCompute_ErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream unavailable"))
	}))
	defer srv.Close()

	_, err := NewClient(WithBaseURL(srv.URL)).Compute(context.Background(), testRegion, ComputeOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RUSLE service error (502): upstream unavailable")
	assert.False(t, eris.Is(err, ErrTimeout))
	assert.True(t, resilience.IsTransient(err))
}

func TestCompute_ClientError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"bad geojson"}`))
	}))
	defer srv.Close()

	_, err := NewClient(WithBaseURL(srv.URL)).Compute(context.Background(), testRegion, ComputeOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `RUSLE service error (400): {"detail":"bad geojson"}`)
	assert.False(t, resilience.IsTransient(err))
}

func TestCompute_RemoteGatewayTimeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusGatewayTimeout)
	}))
	defer srv.Close()

	_, err := NewClient(WithBaseURL(srv.URL)).Compute(context.Background(), testRegion, ComputeOptions{})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrTimeout))
}

func TestCompute_ClientTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(WithBaseURL(srv.URL), WithComputeTimeout(50*time.Millisecond))
	_, err := c.Compute(context.Background(), testRegion, ComputeOptions{})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrTimeout))
	assert.Contains(t, err.Error(), "timed out after 50ms")
}

func TestCompute_MalformedBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	_, err := NewClient(WithBaseURL(srv.URL)).Compute(context.Background(), testRegion, ComputeOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal compute response")
}

func TestHotspots_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, HotspotsPath, r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		assert.NoError(t, json.Unmarshal(body, &req))
		assert.InDelta(t, 25.0, req["threshold_t_ha_yr"], 1e-9)

		_, _ = w.Write([]byte(`{
			"hotspots": [{
				"id": "hotspot_1",
				"geometry": {"type": "Polygon", "coordinates": []},
				"properties": {"area_ha": 3.2, "mean_erosion": 38.5, "max_erosion": 52.1, "dominant_factor": "LS"},
				"reason": "Steep slope",
				"severity": "high",
				"confidence": 0.89
			}],
			"summary": {"total_hotspots": 1, "total_high_risk_area_ha": 3.2, "dominant_factors": ["LS"]}
		}`))
	}))
	defer srv.Close()

	res := NewClient(WithBaseURL(srv.URL)).Hotspots(context.Background(), testRegion, 25)
	require.Len(t, res.Hotspots, 1)
	h := res.Hotspots[0]
	assert.Equal(t, "hotspot_1", h.ID)
	assert.Equal(t, model.SeverityHigh, h.Severity)
	assert.Equal(t, "LS", h.Properties.DominantFactor)
	require.NotNil(t, h.Confidence)
	assert.InDelta(t, 0.89, *h.Confidence, 1e-9)
	assert.Equal(t, 1, res.Summary.TotalHotspots)
	assert.Empty(t, res.Summary.Error)
}

func TestHotspots_SummaryFallback(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"hotspot_summary": {"total_hotspots": 0, "dominant_factors": []}}`))
	}))
	defer srv.Close()

	res := NewClient(WithBaseURL(srv.URL)).Hotspots(context.Background(), testRegion, 20)
	assert.NotNil(t, res.Hotspots)
	assert.Empty(t, res.Hotspots)
	assert.Equal(t, 0, res.Summary.TotalHotspots)
	assert.Empty(t, res.Summary.Error)
}

func TestHotspots_Degrades(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
		timeout time.Duration
		want    string
	}{
		{
			name: "error status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			want: "ML service error: 500",
		},
		{
			name: "timeout",
			handler: func(_ http.ResponseWriter, r *http.Request) {
				_, _ = io.Copy(io.Discard, r.Body)
				<-r.Context().Done()
			},
			timeout: 50 * time.Millisecond,
			want:    "ML service timeout",
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("{"))
			},
			want: "unmarshal hotspot response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			opts := []Option{WithBaseURL(srv.URL)}
			if tt.timeout > 0 {
				opts = append(opts, WithHotspotTimeout(tt.timeout))
			}
			res := NewClient(opts...).Hotspots(context.Background(), testRegion, 20)
			assert.NotNil(t, res.Hotspots)
			assert.Empty(t, res.Hotspots)
			assert.Equal(t, 0, res.Summary.TotalHotspots)
			assert.Contains(t, res.Summary.Error, tt.want)
		})
	}
}

func TestHotspots_Unreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	res := NewClient(WithBaseURL(url)).Hotspots(context.Background(), testRegion, 20)
	assert.Empty(t, res.Hotspots)
	assert.NotEmpty(t, res.Summary.Error)
}

func TestDegradeReason(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "ML service timeout", DegradeReason(context.DeadlineExceeded))
	assert.Equal(t, "ML service error: 503", DegradeReason(fmt.Errorf("hotspots: %w", &StatusError{Service: "ML", StatusCode: 503})))
	assert.Equal(t, "boom", DegradeReason(errors.New("boom")))
}

func TestHealth(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, HealthPath, r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"ok","rusle_service":"healthy","ml_service":"degraded"}`))
	}))
	defer srv.Close()

	status, err := NewClient(WithBaseURL(srv.URL)).Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", status.RUSLEService)
	assert.Equal(t, "degraded", status.MLService)
	assert.False(t, status.Ready())

	status.MLService = "healthy"
	assert.True(t, status.Ready())
}

func TestHealth_ErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(WithBaseURL(srv.URL)).Health(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
