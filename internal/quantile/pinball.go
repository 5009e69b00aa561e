package quantile

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/scencast/scencast/internal/models"
)

// PinballScore holds the mean pinball loss per quantile level plus the overall
// mean across levels. Lower is better.
type PinballScore struct {
	Levels  []float64
	Losses  []float64
	Overall float64
}

// Pinball scores a quantile-forecast table against row-aligned actuals.
// Rows with NaN actuals are skipped.
func Pinball(table *models.QuantileTable, actuals []float64) (*PinballScore, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	if len(actuals) != table.Rows() {
		return nil, fmt.Errorf("actuals length (%d) does not match table rows (%d)", len(actuals), table.Rows())
	}

	losses := make([]float64, len(table.Levels))
	for li, q := range table.Levels {
		sum, n := 0.0, 0
		for ri, row := range table.Values {
			y := actuals[ri]
			if math.IsNaN(y) {
				continue
			}
			diff := y - row[li]
			if diff >= 0 {
				sum += q * diff
			} else {
				sum += (q - 1) * diff
			}
			n++
		}
		if n == 0 {
			return nil, fmt.Errorf("no valid actuals to score")
		}
		losses[li] = sum / float64(n)
	}

	return &PinballScore{
		Levels:  append([]float64(nil), table.Levels...),
		Losses:  losses,
		Overall: stat.Mean(losses, nil),
	}, nil
}
