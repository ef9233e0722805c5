// Package analysis runs an erosion analysis request end to end: polygon
// validation, region construction, the concurrent imagery and backend calls,
// and the merge into the response.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/erosion-api/internal/merge"
	"github.com/sells-group/erosion-api/internal/model"
	"github.com/sells-group/erosion-api/internal/observability"
	"github.com/sells-group/erosion-api/internal/region"
	"github.com/sells-group/erosion-api/internal/resilience"
	"github.com/sells-group/erosion-api/internal/validate"
	"github.com/sells-group/erosion-api/pkg/rusle"
	"github.com/sells-group/erosion-api/pkg/sentinel"
)

// State is a step of the request lifecycle.
type State string

// Request states. Errored is reachable from every other state.
const (
	StateReceived         State = "received"
	StateValidated        State = "validated"
	StateRegionBuilt      State = "region_built"
	StateAwaitingServices State = "awaiting_services"
	StateMerged           State = "merged"
	StateResponded        State = "responded"
	StateErrored          State = "errored"
)

// Options are the analysis request options after defaults are applied.
type Options struct {
	PToggle              bool    `json:"p_toggle"`
	DateRange            string  `json:"date_range"`
	ThresholdTHaYr       float64 `json:"threshold_t_ha_yr"`
	ComputeSensitivities bool    `json:"compute_sensitivities"`
}

// DefaultOptions returns the options used when a request omits them.
func DefaultOptions() Options {
	return Options{
		DateRange:            "2025-01-01/2025-12-31",
		ThresholdTHaYr:       model.DefaultP95Threshold,
		ComputeSensitivities: true,
	}
}

// Request is a structurally valid analysis request.
type Request struct {
	Coordinates []model.Vertex
	Options     Options
}

// Response is the successful analysis result.
type Response struct {
	Success            bool                         `json:"success"`
	ComputationTimeSec float64                      `json:"computation_time_sec"`
	Timestamp          string                       `json:"timestamp"`
	Polygon            json.RawMessage              `json:"polygon"`
	PolygonMetadata    model.PolygonMetadata        `json:"polygon_metadata"`
	SatelliteImage     string                       `json:"satellite_image"`
	Erosion            model.ErosionStats           `json:"erosion"`
	Factors            map[string]model.FactorStats `json:"factors"`
	Highlights         []model.Hotspot              `json:"highlights"`
	NumHotspots        int                          `json:"num_hotspots"`
	Validation         map[string]any               `json:"validation,omitempty"`
	TileURLs           map[string]string            `json:"tile_urls,omitempty"`
	HotspotSummary     *model.HotspotSummary        `json:"hotspot_summary,omitempty"`
	CrossValidation    *model.CrossValidation       `json:"cross_validation,omitempty"`
	Warnings           []string                     `json:"warnings,omitempty"`
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithBufferDeg sets the region buffer in degrees.
func WithBufferDeg(deg float64) Option {
	return func(o *Orchestrator) {
		o.bufferDeg = deg
	}
}

// WithHotspotBreaker guards the hotspot call with b.
func WithHotspotBreaker(b *resilience.Breaker) Option {
	return func(o *Orchestrator) {
		o.breaker = b
	}
}

// WithMetrics records pipeline metrics to c.
func WithMetrics(c *observability.Collector) Option {
	return func(o *Orchestrator) {
		o.metrics = c
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// Orchestrator runs analysis requests. It holds no per-request state and is
// safe for concurrent use.
type Orchestrator struct {
	validator *validate.Validator
	backend   rusle.Client
	imagery   sentinel.Client
	merger    *merge.Merger
	bufferDeg float64
	breaker   *resilience.Breaker
	metrics   *observability.Collector
	now       func() time.Time
}

// New creates an Orchestrator.
func New(v *validate.Validator, backend rusle.Client, imagery sentinel.Client, m *merge.Merger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		validator: v,
		backend:   backend,
		imagery:   imagery,
		merger:    m,
		bufferDeg: region.DefaultBufferDeg,
		breaker:   resilience.NewBreaker(resilience.DefaultBreakerConfig("hotspots")),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run tracks the state of one request.
type run struct {
	o     *Orchestrator
	log   *zap.Logger
	state State
	stage time.Time
}

func (r *run) transition(to State, stage string) {
	now := r.o.now()
	if stage != "" {
		r.o.metrics.ObserveStage(stage, now.Sub(r.stage))
	}
	r.log.Debug("analysis state change", zap.String("from", string(r.state)), zap.String("to", string(to)))
	r.state = to
	r.stage = now
}

func (r *run) fail(err *Error) (*Response, error) {
	from := r.state
	r.state = StateErrored
	fields := []zap.Field{
		zap.String("kind", string(err.Kind)),
		zap.String("state", string(from)),
		zap.String("detail", err.Message),
	}
	switch err.Kind {
	case KindPolygonValidation, KindRegionConversion:
		r.log.Warn("analysis rejected", fields...)
	default:
		r.log.Error("analysis failed", append(fields, zap.Error(err.Err))...)
	}
	r.o.metrics.ObserveRequest(string(err.Kind))
	return nil, err
}

// Run executes the analysis. Failures are returned as *Error.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Response, error) {
	start := o.now()
	r := &run{o: o, log: observability.Logger(ctx), state: StateReceived, stage: start}

	res, err := o.validator.Validate(req.Coordinates)
	if err != nil {
		if ve, ok := validate.AsValidationError(err); ok {
			return r.fail(NewError(KindPolygonValidation, ve.Message, err))
		}
		return r.fail(NewError(KindInternalAssembly, "Polygon validation failed", err))
	}
	r.transition(StateValidated, observability.StageValidate)

	reg, err := region.Build(res.Ring, o.bufferDeg)
	if err != nil {
		return r.fail(NewError(KindRegionConversion, "Failed to parse coordinates: "+err.Error(), err))
	}
	geojson, err := reg.Marshal()
	if err != nil {
		return r.fail(NewError(KindRegionConversion, "Failed to parse coordinates: "+err.Error(), err))
	}
	r.transition(StateRegionBuilt, observability.StageRegion)
	r.log.Info("region built",
		zap.Float64("area_km2", res.Report.AreaKm2),
		zap.Float64("buffered_area_km2", reg.Properties.AreaKm2),
	)

	r.transition(StateAwaitingServices, "")
	image, backend, aerr := o.awaitServices(ctx, reg, geojson, req.Options)
	if aerr != nil {
		return r.fail(aerr)
	}
	r.transition(StateMerged, observability.StageServices)

	resp := &Response{
		Success:            true,
		ComputationTimeSec: roundSeconds(o.now().Sub(start)),
		Timestamp:          o.now().UTC().Format(time.RFC3339),
		Polygon:            geojson,
		PolygonMetadata:    res.Report.Metadata(),
		SatelliteImage:     image,
		Erosion:            backend.Erosion,
		Factors:            backend.Factors,
		Highlights:         backend.Hotspots,
		NumHotspots:        len(backend.Hotspots),
		Validation:         backend.Validation,
		TileURLs:           backend.TileURLs,
		HotspotSummary:     &backend.HotspotSummary,
		CrossValidation:    &backend.CrossValidation,
		Warnings:           res.Report.Warnings,
	}
	if _, err := json.Marshal(resp); err != nil {
		return r.fail(NewError(KindInternalAssembly, "Failed to assemble response", err))
	}
	r.transition(StateResponded, observability.StageMerge)

	o.metrics.ObserveStage(observability.StageTotal, o.now().Sub(start))
	o.metrics.ObserveRequest("success")
	r.log.Info("analysis completed",
		zap.Float64("mean_erosion", resp.Erosion.Mean),
		zap.Int("hotspots", resp.NumHotspots),
		zap.Float64("computation_time_sec", resp.ComputationTimeSec),
	)
	return resp, nil
}

// awaitServices fetches the imagery and runs the backend calls concurrently.
// Both are required; the first failure cancels the other.
func (o *Orchestrator) awaitServices(ctx context.Context, reg *region.Region, geojson json.RawMessage, opts Options) (string, model.MergedResult, *Error) {
	var (
		image  string
		merged model.MergedResult
	)

	g, gctx := errgroup.WithContext(ctx)
	// observe skips calls that only failed because their sibling did.
	observe := func(service string, err error) {
		if gctx.Err() != nil && ctx.Err() == nil {
			return
		}
		o.metrics.ObserveRequiredFailure(service, isTimeout(err))
	}
	g.Go(func() error {
		img, err := o.imagery.FetchImage(gctx, reg.Extent, opts.DateRange)
		if err != nil {
			observe("imagery", err)
			return requiredFailure("Satellite imagery", err)
		}
		image = img
		return nil
	})
	g.Go(func() error {
		m, err := o.callBackend(gctx, geojson, opts)
		if err != nil {
			observe("compute", err)
			return requiredFailure("RUSLE computation", err)
		}
		merged = m
		return nil
	})
	if err := g.Wait(); err != nil {
		return "", model.MergedResult{}, AsError(err)
	}
	return image, merged, nil
}

// callBackend runs the required compute call and the optional hotspot call
// concurrently and merges their results.
func (o *Orchestrator) callBackend(ctx context.Context, geojson json.RawMessage, opts Options) (model.MergedResult, error) {
	var (
		compute  *model.ComputeResult
		hotspots model.HotspotResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := o.backend.Compute(gctx, geojson, rusle.ComputeOptions{
			PToggle:              opts.PToggle,
			ComputeSensitivities: opts.ComputeSensitivities,
		})
		if err != nil {
			return err
		}
		compute = res
		return nil
	})
	g.Go(func() error {
		hotspots = o.callHotspots(gctx, geojson, opts.ThresholdTHaYr)
		return nil
	})
	if err := g.Wait(); err != nil {
		return model.MergedResult{}, err
	}
	return o.merger.Merge(*compute, hotspots), nil
}

var errHotspotsDegraded = errors.New("hotspot call degraded")

// callHotspots never fails. Degraded results count against the breaker
// unless the request itself was cancelled.
func (o *Orchestrator) callHotspots(ctx context.Context, geojson json.RawMessage, threshold float64) model.HotspotResult {
	res, err := resilience.ExecuteVal(ctx, o.breaker, func(ctx context.Context) (model.HotspotResult, error) {
		res := o.backend.Hotspots(ctx, geojson, threshold)
		if res.Summary.Error != "" && ctx.Err() == nil {
			return res, errHotspotsDegraded
		}
		return res, nil
	})
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		o.metrics.ObserveHotspotDegraded("circuit_open")
		observability.Logger(ctx).Warn("hotspot call skipped", zap.Error(err))
		return model.DegradedHotspots(err.Error())
	case err != nil:
		cause := "error"
		if res.Summary.Error == "ML service timeout" {
			cause = "timeout"
		}
		o.metrics.ObserveHotspotDegraded(cause)
		observability.Logger(ctx).Warn("hotspot call degraded", zap.String("reason", res.Summary.Error))
	}
	return res
}

func roundSeconds(d time.Duration) float64 {
	return float64(d.Round(10*time.Millisecond).Milliseconds()) / 1000
}
