package pit

import (
	"errors"
	"fmt"
	"sort"

	"github.com/scencast/scencast/internal/models"
)

// Interpolation methods and tail policies accepted by Forward and Inverse.
const (
	MethodLinear    = "linear"
	TailInterpolate = "interpolate"
)

var (
	// ErrUnknownMethod indicates an unsupported interpolation or tail method.
	ErrUnknownMethod = errors.New("pit: unknown method")

	// ErrNonMonotonic indicates a quantile row whose values decrease with level,
	// so the row does not describe a valid CDF.
	ErrNonMonotonic = errors.New("pit: quantile row not monotonic")
)

// Inverse maps uniform-domain samples back into a quantile table's native
// domain. uniforms is row-aligned with the table; each row may carry any
// number of sample columns. Uniform values outside the table's covered
// probability range are resolved through the tail segments (0, tails.L) and
// (1, tails.U).
func Inverse(table *models.QuantileTable, uniforms [][]float64, method string, tails models.TailConfig) ([][]float64, error) {
	if err := check(table, len(uniforms), method, tails); err != nil {
		return nil, err
	}

	out := make([][]float64, len(uniforms))
	probs := curveProbs(table.Levels)
	for i, samples := range uniforms {
		vals, err := curveValues(table.Values[i], tails, i)
		if err != nil {
			return nil, err
		}
		row := make([]float64, len(samples))
		for s, u := range samples {
			row[s] = interp(probs, vals, u)
		}
		out[i] = row
	}
	return out, nil
}

// Forward maps native-domain values into the uniform domain through each row's
// piecewise-linear CDF. It is the inverse of Inverse up to interpolation
// error, for values strictly inside the table's covered range.
func Forward(table *models.QuantileTable, values [][]float64, method string, tails models.TailConfig) ([][]float64, error) {
	if err := check(table, len(values), method, tails); err != nil {
		return nil, err
	}

	out := make([][]float64, len(values))
	probs := curveProbs(table.Levels)
	for i, samples := range values {
		vals, err := curveValues(table.Values[i], tails, i)
		if err != nil {
			return nil, err
		}
		row := make([]float64, len(samples))
		for s, v := range samples {
			row[s] = interp(vals, probs, v)
		}
		out[i] = row
	}
	return out, nil
}

func check(table *models.QuantileTable, rows int, method string, tails models.TailConfig) error {
	if err := table.Validate(); err != nil {
		return fmt.Errorf("pit: %w", err)
	}
	if rows != table.Rows() {
		return fmt.Errorf("pit: sample rows (%d) do not match table rows (%d)", rows, table.Rows())
	}
	if method != MethodLinear {
		return fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
	if tails.Method != TailInterpolate {
		return fmt.Errorf("%w: tail method %q", ErrUnknownMethod, tails.Method)
	}
	if tails.L > tails.U {
		return fmt.Errorf("pit: tail bounds inverted: L=%g U=%g", tails.L, tails.U)
	}
	return nil
}

// curveProbs extends the quantile levels with the 0 and 1 endpoints.
func curveProbs(levels []float64) []float64 {
	probs := make([]float64, 0, len(levels)+2)
	probs = append(probs, 0)
	probs = append(probs, levels...)
	return append(probs, 1)
}

// curveValues extends one row's quantile values with the tail bounds, checking
// the full curve is non-decreasing.
func curveValues(row []float64, tails models.TailConfig, rowIdx int) ([]float64, error) {
	vals := make([]float64, 0, len(row)+2)
	vals = append(vals, tails.L)
	vals = append(vals, row...)
	vals = append(vals, tails.U)
	for i := 1; i < len(vals); i++ {
		if vals[i] < vals[i-1] {
			return nil, fmt.Errorf("%w: row %d", ErrNonMonotonic, rowIdx)
		}
	}
	return vals, nil
}

// interp evaluates the piecewise-linear curve (xs, ys) at x. xs must be
// non-decreasing. Values beyond either end clamp to the end point.
func interp(xs, ys []float64, x float64) float64 {
	n := len(xs)
	if x <= xs[0] {
		return ys[0]
	}
	if x >= xs[n-1] {
		return ys[n-1]
	}
	i := sort.SearchFloat64s(xs, x)
	// SearchFloat64s returns the first index with xs[i] >= x; i is in [1, n-1] here.
	if xs[i] == xs[i-1] {
		return ys[i-1]
	}
	frac := (x - xs[i-1]) / (xs[i] - xs[i-1])
	return ys[i-1] + frac*(ys[i]-ys[i-1])
}
