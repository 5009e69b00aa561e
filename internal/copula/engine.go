package copula

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/scencast/scencast/internal/metrics"
	"github.com/scencast/scencast/internal/models"
)

// CopulaType selects the dependence structure imposed on the marginals.
type CopulaType string

const (
	// Spatial correlates locations at a shared forecast instant.
	Spatial CopulaType = "spatial"
	// Temporal correlates lead times (and locations) at a shared issue time.
	Temporal CopulaType = "temporal"
)

// Location pairs one location's marginal distribution with the control rows
// that align it to folds and forecast times.
type Location struct {
	Name     string
	Marginal models.Marginal
	Control  *models.ControlConfig
}

// Request describes one scenario-generation call. Locations are ordered: in
// temporal mode the covariance component layout follows this order.
type Request struct {
	Copula      CopulaType
	SampleCount int
	Locations   []Location
	Covariance  *models.CovarianceSet

	// Seed drives all Gaussian draws through deterministic per-fold
	// sub-seeds; the same seed yields the same scenarios at any parallelism.
	Seed uint64

	// Parallelism bounds the worker pool for fold sampling and per-location
	// transforms. Values below 1 run serially.
	Parallelism int
}

// Engine generates coherent scenario trajectories from marginal forecasts.
type Engine struct {
	log zerolog.Logger
}

func New(log zerolog.Logger) *Engine {
	return &Engine{log: log}
}

// Generate converts per-location marginal forecasts into multivariate
// scenarios: per-fold Gaussian sampling, reassembly into control row order,
// then the marginal-domain transform. Validation is eager; any task failure
// aborts the whole call with no partial result.
func (e *Engine) Generate(ctx context.Context, req Request) (map[string]*models.ScenarioSet, error) {
	start := time.Now()

	p, err := resolve(&req)
	if err != nil {
		metrics.ScenarioRunsTotal.WithLabelValues(string(req.Copula), "error").Inc()
		return nil, err
	}

	width := req.Parallelism
	if width < 1 {
		width = 1
		e.log.Warn().Msg("parallelism not set; running scenario tasks serially")
	}

	numLoc := len(req.Locations)
	foldBlocks := make([][]*sampleBlock, len(p.folds))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(width)
	for fi := range p.folds {
		fp := p.folds[fi]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			blocks, err := sampleFold(fp, req.Copula, numLoc, req.SampleCount, subSeed(req.Seed, fp.fold))
			if err != nil {
				return err
			}
			foldBlocks[fi] = blocks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		metrics.ScenarioRunsTotal.WithLabelValues(string(req.Copula), "error").Inc()
		return nil, err
	}

	sets := make([]*models.ScenarioSet, numLoc)
	g2, g2ctx := errgroup.WithContext(ctx)
	g2.SetLimit(width)
	for li := range req.Locations {
		loc := req.Locations[li]
		g2.Go(func() error {
			if err := g2ctx.Err(); err != nil {
				return err
			}
			var blocks []*sampleBlock
			for fi := range p.folds {
				if b := foldBlocks[fi][li]; b != nil && len(b.keys) > 0 {
					blocks = append(blocks, b)
				}
			}
			uniforms, err := reassemble(loc.Name, loc.Control, blocks, req.SampleCount)
			if err != nil {
				return err
			}

			tStart := time.Now()
			samples, err := transformLocation(loc, uniforms)
			if err != nil {
				return err
			}
			metrics.TransformDuration.WithLabelValues(p.kind.String()).Observe(time.Since(tStart).Seconds())

			sets[li] = &models.ScenarioSet{
				Location:   loc.Name,
				IssueTimes: append([]time.Time(nil), loc.Control.IssueTimes...),
				LeadTimes:  append([]time.Duration(nil), loc.Control.LeadTimes...),
				Samples:    samples,
			}
			return nil
		})
	}
	if err := g2.Wait(); err != nil {
		metrics.ScenarioRunsTotal.WithLabelValues(string(req.Copula), "error").Inc()
		return nil, err
	}

	out := make(map[string]*models.ScenarioSet, numLoc)
	for _, set := range sets {
		out[set.Location] = set
	}

	metrics.ScenarioRunsTotal.WithLabelValues(string(req.Copula), "ok").Inc()
	metrics.GenerateDuration.WithLabelValues(string(req.Copula)).Observe(time.Since(start).Seconds())
	e.log.Info().
		Str("copula", string(req.Copula)).
		Int("locations", numLoc).
		Int("folds", len(p.folds)).
		Int("samples", req.SampleCount).
		Dur("elapsed", time.Since(start)).
		Msg("scenario generation complete")
	return out, nil
}

// GenerateSingle is a convenience wrapper for the one-location case. The core
// always works on an ordered location list; the coercion happens here, at the
// boundary, with an advisory log.
func (e *Engine) GenerateSingle(ctx context.Context, copula CopulaType, sampleCount int, loc Location, cov *models.CovarianceSet, seed uint64) (*models.ScenarioSet, error) {
	e.log.Warn().Str("location", loc.Name).Msg("single marginal coerced into a one-element location list")

	out, err := e.Generate(ctx, Request{
		Copula:      copula,
		SampleCount: sampleCount,
		Locations:   []Location{loc},
		Covariance:  cov,
		Seed:        seed,
		Parallelism: 1,
	})
	if err != nil {
		return nil, err
	}
	set, ok := out[loc.Name]
	if !ok {
		return nil, fmt.Errorf("%w: no output for location %q", ErrConfigMismatch, loc.Name)
	}
	return set, nil
}
