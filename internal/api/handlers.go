package api

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/erosion-api/internal/analysis"
	"github.com/sells-group/erosion-api/internal/catalog"
	"github.com/sells-group/erosion-api/internal/observability"
)

type handlers struct {
	deps  Deps
	rules requestRules
}

func (h *handlers) timestamp() string {
	return h.deps.now().UTC().Format(time.RFC3339)
}

func (h *handlers) describe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"service": ServiceName,
		"version": h.deps.Version,
		"status":  "operational",
		"endpoints": map[string]string{
			"analyze": "POST /api/rusle",
			"factors": "GET /api/factors",
			"limits":  "GET /api/limits",
			"health":  "GET /health",
			"metrics": "GET /metrics",
		},
	})
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{
		"status":    "healthy",
		"service":   ServiceName,
		"timestamp": h.timestamp(),
	})
}

func (h *handlers) factors(w http.ResponseWriter, r *http.Request) {
	c := h.deps.Catalog
	if c == nil {
		writeError(w, analysis.NewError(analysis.KindInternalAssembly, "Factor catalogue unavailable", nil))
		return
	}
	writeJSON(w, r, http.StatusOK, struct {
		Factors    map[string]catalog.Factor `json:"factors"`
		Equation   string                    `json:"equation"`
		OutputUnit string                    `json:"output_unit"`
	}{c.FactorMap(), c.Equation, c.OutputUnit})
}

func (h *handlers) limits(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"max_polygon_area_km2":    h.deps.Limits.MaxAreaKm2,
		"max_vertices":            h.rules.maxVertices,
		"max_date_range_days":     h.rules.defaults.MaxDateRangeDays,
		"computation_timeout_sec": int(h.deps.ComputeTimeout.Seconds()),
		"rate_limit":              fmt.Sprintf("%d requests/hour", h.deps.Server.RateLimitPerHour),
	})
}

func (h *handlers) analyze(w http.ResponseWriter, r *http.Request) {
	log := observability.Logger(r.Context())

	req, aerr := h.rules.decodeRequest(r.Body)
	if aerr != nil {
		log.Warn("rejected analysis request", zap.String("detail", aerr.Message))
		h.deps.Metrics.ObserveRequest(string(aerr.Kind))
		writeError(w, aerr)
		return
	}

	resp, err := h.deps.Analyzer.Run(r.Context(), req)
	if err != nil {
		writeError(w, analysis.AsError(err))
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (h *handlers) notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, analysis.NewError(analysis.KindNotFound,
		fmt.Sprintf("No route for %s %s", r.Method, r.URL.Path), nil))
}
