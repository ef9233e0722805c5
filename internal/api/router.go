// Package api exposes the erosion analysis over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sells-group/erosion-api/internal/analysis"
	"github.com/sells-group/erosion-api/internal/catalog"
	"github.com/sells-group/erosion-api/internal/config"
	"github.com/sells-group/erosion-api/internal/observability"
	"github.com/sells-group/erosion-api/internal/validate"
)

// ServiceName identifies the API in descriptors and health responses.
const ServiceName = "RUSLE Erosion Analysis API"

// Analyzer runs an analysis request.
type Analyzer interface {
	Run(ctx context.Context, req analysis.Request) (*analysis.Response, error)
}

// Deps are the collaborators of the HTTP layer.
type Deps struct {
	Analyzer       Analyzer
	Catalog        *catalog.Catalog
	Limits         validate.Limits
	Metrics        *observability.Collector
	Server         config.ServerConfig
	ComputeTimeout time.Duration
	Version        string

	now func() time.Time
}

// NewRouter builds the HTTP handler for the API.
func NewRouter(d Deps) http.Handler {
	if d.now == nil {
		d.now = time.Now
	}
	h := &handlers{deps: d, rules: newRequestRules(d.Limits, d.Catalog)}

	origins := d.Server.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(requestLogger)
	r.Use(recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         300,
	}))

	r.NotFound(h.notFound)
	r.MethodNotAllowed(h.notFound)

	r.Get("/", h.describe)
	r.Get("/health", h.health)
	r.Handle("/metrics", d.Metrics.Handler())

	limiter := newRateLimiter(d.Server.RateLimitPerHour, d.Server.RateLimitBurst)
	r.Route("/api", func(api chi.Router) {
		api.Get("/factors", h.factors)
		api.Get("/limits", h.limits)
		api.With(limiter.middleware).Post("/rusle", h.analyze)
	})

	return r
}

func newRequestRules(l validate.Limits, c *catalog.Catalog) requestRules {
	rr := requestRules{maxVertices: l.MaxVertices}
	if rr.maxVertices <= 0 {
		rr.maxVertices = validate.DefaultLimits().MaxVertices
	}
	if c != nil {
		rr.defaults = c.Request
	}
	if rr.defaults.MaxThreshold <= 0 {
		rr.defaults.MaxThreshold = 100
	}
	if rr.defaults.MaxDateRangeDays <= 0 {
		rr.defaults.MaxDateRangeDays = 730
	}
	return rr
}
