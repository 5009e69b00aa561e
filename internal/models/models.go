package models

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Marginal is the per-location univariate distribution before the copula imposes
// joint dependence. Exactly one concrete kind is used per scenario-generation
// call: either a quantile-forecast table or a parametric margin.
type Marginal interface {
	Rows() int
	marginal()
}

// QuantileTable holds quantile forecasts: one row per observation, one column
// per quantile level. Rows are time-ordered by (issue time, lead time).
type QuantileTable struct {
	Levels []float64   // strictly increasing, each in (0,1)
	Values [][]float64 // len(Levels) columns per row
}

func (t *QuantileTable) Rows() int { return len(t.Values) }

func (t *QuantileTable) marginal() {}

func (t *QuantileTable) Validate() error {
	if len(t.Levels) == 0 {
		return fmt.Errorf("quantile table has no levels")
	}
	for i, lv := range t.Levels {
		if lv <= 0 || lv >= 1 {
			return fmt.Errorf("quantile level %g out of (0,1)", lv)
		}
		if i > 0 && lv <= t.Levels[i-1] {
			return fmt.Errorf("quantile levels not strictly increasing at index %d", i)
		}
	}
	for i, row := range t.Values {
		if len(row) != len(t.Levels) {
			return fmt.Errorf("row %d has %d values, want %d", i, len(row), len(t.Levels))
		}
	}
	return nil
}

// QuantileFunc evaluates a parametric quantile function at probability p for
// one observation's parameter row.
type QuantileFunc func(p float64, params []float64) (float64, error)

// ParametricMargin describes a distribution by per-observation parameter rows
// plus the quantile function of the family.
type ParametricMargin struct {
	ParamNames []string
	Params     [][]float64 // one row per observation, len(ParamNames) columns
	Quantile   QuantileFunc
}

func (m *ParametricMargin) Rows() int { return len(m.Params) }

func (m *ParametricMargin) marginal() {}

func (m *ParametricMargin) Validate() error {
	if m.Quantile == nil {
		return fmt.Errorf("parametric margin has no quantile function")
	}
	for i, row := range m.Params {
		if len(row) != len(m.ParamNames) {
			return fmt.Errorf("parameter row %d has %d values, want %d", i, len(row), len(m.ParamNames))
		}
	}
	return nil
}

// TailConfig controls how the inverse PIT behaves for uniform values outside
// the probability range covered by a quantile table.
type TailConfig struct {
	Method string  // "interpolate"
	L      float64 // distribution lower bound, attached at probability 0
	U      float64 // distribution upper bound, attached at probability 1
}

// ControlConfig aligns a location's marginal rows with cross-validation folds
// and forecast times. All slices are row-aligned with the marginal.
type ControlConfig struct {
	Folds      []string
	IssueTimes []time.Time
	LeadTimes  []time.Duration

	// Quantile-table marginals only.
	PITMethod string
	Tails     TailConfig
}

func (c *ControlConfig) Rows() int { return len(c.Folds) }

func (c *ControlConfig) Validate() error {
	if len(c.IssueTimes) != len(c.Folds) || len(c.LeadTimes) != len(c.Folds) {
		return fmt.Errorf("control sequences differ in length: folds=%d issues=%d leads=%d",
			len(c.Folds), len(c.IssueTimes), len(c.LeadTimes))
	}
	return nil
}

// CovarianceSet maps each cross-validation fold to the Gaussian dependence
// structure estimated for it. Sigma and Mean must carry identical fold sets,
// and within a fold the mean length must match the matrix dimension.
type CovarianceSet struct {
	Sigma map[string]*mat.SymDense
	Mean  map[string][]float64
}

// ScenarioSet is one location's generated scenarios: Samples is row-aligned
// with the location's original control order and has one column per sample.
type ScenarioSet struct {
	Location   string
	IssueTimes []time.Time
	LeadTimes  []time.Duration
	Samples    [][]float64
}
