package copula

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/scencast/scencast/internal/models"
)

func TestGenerateInvalidCopulaType(t *testing.T) {
	req := Request{
		Copula:      "spatiotemporal",
		SampleCount: 10,
		Locations: []Location{
			{Name: "a", Marginal: uniformMargin(1), Control: spatialControl("f1", []time.Time{t0}, []time.Duration{0})},
		},
		Covariance: identitySet("f1", 1),
	}
	_, err := New(zerolog.Nop()).Generate(context.Background(), req)
	require.ErrorIs(t, err, ErrInvalidCopulaType)
}

func TestGenerateControlMarginalMismatch(t *testing.T) {
	// Two marginal rows but a single control row must fail fast, before any
	// sampling happens.
	req := Request{
		Copula:      Spatial,
		SampleCount: 10,
		Locations: []Location{
			{Name: "a", Marginal: uniformMargin(2), Control: spatialControl("f1", []time.Time{t0}, []time.Duration{0})},
		},
		Covariance: identitySet("f1", 1),
	}
	_, err := New(zerolog.Nop()).Generate(context.Background(), req)
	require.ErrorIs(t, err, ErrConfigMismatch)
}

func TestGenerateMixedMarginalKinds(t *testing.T) {
	table := &models.QuantileTable{Levels: []float64{0.5}, Values: [][]float64{{1}}}
	ctrl := spatialControl("f1", []time.Time{t0}, []time.Duration{0})
	qctrl := spatialControl("f1", []time.Time{t0}, []time.Duration{0})
	qctrl.Tails = models.TailConfig{Method: "interpolate", L: 0, U: 2}

	req := Request{
		Copula:      Spatial,
		SampleCount: 10,
		Locations: []Location{
			{Name: "a", Marginal: table, Control: qctrl},
			{Name: "b", Marginal: uniformMargin(1), Control: ctrl},
		},
		Covariance: identitySet("f1", 2),
	}
	_, err := New(zerolog.Nop()).Generate(context.Background(), req)
	require.ErrorIs(t, err, ErrConfigMismatch)
}

func TestGenerateFoldKeyMismatch(t *testing.T) {
	cov := identitySet("f1", 1)
	cov.Mean = map[string][]float64{"f2": {0}}

	req := Request{
		Copula:      Spatial,
		SampleCount: 10,
		Locations: []Location{
			{Name: "a", Marginal: uniformMargin(1), Control: spatialControl("f1", []time.Time{t0}, []time.Duration{0})},
		},
		Covariance: cov,
	}
	_, err := New(zerolog.Nop()).Generate(context.Background(), req)
	require.ErrorIs(t, err, ErrConfigMismatch)
}

func TestGenerateUnknownFoldLabel(t *testing.T) {
	req := Request{
		Copula:      Spatial,
		SampleCount: 10,
		Locations: []Location{
			{Name: "a", Marginal: uniformMargin(1), Control: spatialControl("mystery", []time.Time{t0}, []time.Duration{0})},
		},
		Covariance: identitySet("f1", 1),
	}
	_, err := New(zerolog.Nop()).Generate(context.Background(), req)
	require.ErrorIs(t, err, ErrConfigMismatch)
}

func TestGenerateIssueTimeInTwoFolds(t *testing.T) {
	ctrl := &models.ControlConfig{
		Folds:      []string{"fa", "fb"},
		IssueTimes: []time.Time{t0, t0},
		LeadTimes:  []time.Duration{0, time.Hour},
	}
	cov := &models.CovarianceSet{
		Sigma: map[string]*mat.SymDense{
			"fa": mat.NewSymDense(1, []float64{1}),
			"fb": mat.NewSymDense(1, []float64{1}),
		},
		Mean: map[string][]float64{"fa": {0}, "fb": {0}},
	}
	req := Request{
		Copula:      Spatial,
		SampleCount: 10,
		Locations:   []Location{{Name: "a", Marginal: uniformMargin(2), Control: ctrl}},
		Covariance:  cov,
	}
	_, err := New(zerolog.Nop()).Generate(context.Background(), req)
	require.ErrorIs(t, err, ErrConfigMismatch)
}

func TestGenerateNonPSDCovariance(t *testing.T) {
	cov := &models.CovarianceSet{
		Sigma: map[string]*mat.SymDense{"f1": mat.NewSymDense(2, []float64{1, 2, 2, 1})},
		Mean:  map[string][]float64{"f1": {0, 0}},
	}
	ctrl := spatialControl("f1", []time.Time{t0}, []time.Duration{0})
	req := Request{
		Copula:      Spatial,
		SampleCount: 10,
		Locations: []Location{
			{Name: "a", Marginal: uniformMargin(1), Control: ctrl},
			{Name: "b", Marginal: uniformMargin(1), Control: ctrl},
		},
		Covariance: cov,
	}
	_, err := New(zerolog.Nop()).Generate(context.Background(), req)
	require.ErrorIs(t, err, ErrSamplingFailure)
}

func TestGenerateCovarianceDimensionMismatch(t *testing.T) {
	// One location, spatial: expected dimension 1, supplied 3. Divisible by
	// the location count, so it survives validation and fails in sampling.
	cov := identitySet("f1", 3)
	req := Request{
		Copula:      Spatial,
		SampleCount: 10,
		Locations: []Location{
			{Name: "a", Marginal: uniformMargin(1), Control: spatialControl("f1", []time.Time{t0}, []time.Duration{0})},
		},
		Covariance: cov,
	}
	_, err := New(zerolog.Nop()).Generate(context.Background(), req)
	require.ErrorIs(t, err, ErrSamplingFailure)
}

func TestGenerateQuantileMarginalWithoutTails(t *testing.T) {
	table := &models.QuantileTable{Levels: []float64{0.5}, Values: [][]float64{{1}}}
	req := Request{
		Copula:      Spatial,
		SampleCount: 10,
		Locations: []Location{
			{Name: "a", Marginal: table, Control: spatialControl("f1", []time.Time{t0}, []time.Duration{0})},
		},
		Covariance: identitySet("f1", 1),
	}
	_, err := New(zerolog.Nop()).Generate(context.Background(), req)
	require.ErrorIs(t, err, ErrConfigMismatch)
}

func TestGenerateQuantileFunctionFailure(t *testing.T) {
	m := uniformMargin(1)
	m.Quantile = func(p float64, _ []float64) (float64, error) {
		return 0, fmt.Errorf("family undefined at p=%g", p)
	}
	req := Request{
		Copula:      Spatial,
		SampleCount: 10,
		Locations: []Location{
			{Name: "a", Marginal: m, Control: spatialControl("f1", []time.Time{t0}, []time.Duration{0})},
		},
		Covariance:  identitySet("f1", 1),
		Parallelism: 1,
	}
	_, err := New(zerolog.Nop()).Generate(context.Background(), req)
	require.ErrorIs(t, err, ErrTransformFailure)
}

func TestGenerateTemporalLeadMismatch(t *testing.T) {
	ctrlA := &models.ControlConfig{
		Folds:      []string{"f1", "f1"},
		IssueTimes: []time.Time{t0, t0},
		LeadTimes:  []time.Duration{time.Hour, 2 * time.Hour},
	}
	ctrlB := &models.ControlConfig{
		Folds:      []string{"f1", "f1"},
		IssueTimes: []time.Time{t0, t0},
		LeadTimes:  []time.Duration{time.Hour, 3 * time.Hour},
	}
	req := Request{
		Copula:      Temporal,
		SampleCount: 10,
		Locations: []Location{
			{Name: "a", Marginal: uniformMargin(2), Control: ctrlA},
			{Name: "b", Marginal: uniformMargin(2), Control: ctrlB},
		},
		Covariance: identitySet("f1", 4),
	}
	_, err := New(zerolog.Nop()).Generate(context.Background(), req)
	require.ErrorIs(t, err, ErrConfigMismatch)
}
