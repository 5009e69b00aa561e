package quantile

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/scencast/scencast/internal/models"
)

// Predictor is a trained quantile model.
type Predictor interface {
	Predict(features [][]float64) ([]float64, error)
}

// Regressor trains one model per quantile level. The boosting machinery itself
// lives outside this package; implementations typically wrap a gradient-boosted
// tree library's fit call with a pinball objective at the given level.
type Regressor interface {
	Fit(features [][]float64, target []float64, level float64) (Predictor, error)
}

// Dataset is the training input: row-aligned features, target and fold labels.
type Dataset struct {
	Features [][]float64
	Target   []float64
	Folds    []string
}

func (d *Dataset) validate() error {
	if len(d.Features) == 0 {
		return fmt.Errorf("empty dataset")
	}
	if len(d.Target) != len(d.Features) || len(d.Folds) != len(d.Features) {
		return fmt.Errorf("dataset rows misaligned: features=%d target=%d folds=%d",
			len(d.Features), len(d.Target), len(d.Folds))
	}
	return nil
}

// FitConfig controls cross-validated MultiQR fitting.
type FitConfig struct {
	Levels    []float64
	Regressor Regressor

	// SortRows sorts each output row ascending to resolve quantile crossing.
	SortRows bool

	Log zerolog.Logger
}

// FitMultiQR produces a quantile-forecast table by fitting one model per
// (level, fold) pair: the model for fold f trains on every row outside f and
// predicts the rows inside it, so every prediction is out-of-sample.
func FitMultiQR(ctx context.Context, data *Dataset, cfg FitConfig) (*models.QuantileTable, error) {
	if err := data.validate(); err != nil {
		return nil, err
	}
	if len(cfg.Levels) == 0 {
		return nil, fmt.Errorf("no quantile levels requested")
	}
	if cfg.Regressor == nil {
		return nil, fmt.Errorf("no regressor supplied")
	}

	n := len(data.Features)
	table := &models.QuantileTable{
		Levels: append([]float64(nil), cfg.Levels...),
		Values: make([][]float64, n),
	}
	sort.Float64s(table.Levels)
	for i := range table.Values {
		table.Values[i] = make([]float64, len(table.Levels))
	}

	folds := foldOrder(data.Folds)
	for li, level := range table.Levels {
		for _, fold := range folds {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			trainIdx, testIdx := split(data.Folds, fold)
			cfg.Log.Debug().Float64("level", level).Str("fold", fold).
				Int("train", len(trainIdx)).Int("test", len(testIdx)).Msg("fitting quantile model")

			model, err := cfg.Regressor.Fit(gather(data.Features, trainIdx), gatherF(data.Target, trainIdx), level)
			if err != nil {
				return nil, fmt.Errorf("fit level %g fold %s: %w", level, fold, err)
			}
			preds, err := model.Predict(gather(data.Features, testIdx))
			if err != nil {
				return nil, fmt.Errorf("predict level %g fold %s: %w", level, fold, err)
			}
			if len(preds) != len(testIdx) {
				return nil, fmt.Errorf("predict level %g fold %s: got %d predictions for %d rows",
					level, fold, len(preds), len(testIdx))
			}
			for pi, row := range testIdx {
				table.Values[row][li] = preds[pi]
			}
		}
	}

	if cfg.SortRows {
		for _, row := range table.Values {
			sort.Float64s(row)
		}
	}
	return table, nil
}

// foldOrder returns the distinct fold labels in first-appearance order.
func foldOrder(folds []string) []string {
	seen := make(map[string]bool, len(folds))
	var out []string
	for _, f := range folds {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

func split(folds []string, fold string) (train, test []int) {
	for i, f := range folds {
		if f == fold {
			test = append(test, i)
		} else {
			train = append(train, i)
		}
	}
	return train, test
}

func gather(rows [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, j := range idx {
		out[i] = rows[j]
	}
	return out
}

func gatherF(vals []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = vals[j]
	}
	return out
}
