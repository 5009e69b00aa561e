package copula

import (
	"fmt"

	"github.com/scencast/scencast/internal/models"
	"github.com/scencast/scencast/internal/pit"
)

// transformLocation moves one location's uniform-domain samples into the
// marginal's native domain. The marginal kind was fixed at validation time, so
// the dispatch here cannot encounter an unknown variant.
func transformLocation(loc Location, uniforms [][]float64) ([][]float64, error) {
	switch m := loc.Marginal.(type) {
	case *models.QuantileTable:
		method := loc.Control.PITMethod
		if method == "" {
			method = pit.MethodLinear
		}
		out, err := pit.Inverse(m, uniforms, method, loc.Control.Tails)
		if err != nil {
			return nil, fmt.Errorf("%w: location %q: %v", ErrTransformFailure, loc.Name, err)
		}
		return out, nil

	case *models.ParametricMargin:
		out := make([][]float64, len(uniforms))
		for i, samples := range uniforms {
			row := make([]float64, len(samples))
			for s, u := range samples {
				v, err := m.Quantile(u, m.Params[i])
				if err != nil {
					return nil, fmt.Errorf("%w: location %q row %d sample %d: %v",
						ErrTransformFailure, loc.Name, i, s, err)
				}
				row[s] = v
			}
			out[i] = row
		}
		return out, nil

	default:
		return nil, fmt.Errorf("%w: location %q: unsupported marginal %T", ErrTransformFailure, loc.Name, loc.Marginal)
	}
}
