package copula

import (
	"fmt"
	"sort"

	"github.com/scencast/scencast/internal/models"
)

// mergeBlocks concatenates one location's per-fold sample blocks and sorts the
// result ascending by (issue, lead). Duplicate keys cannot occur if the fold
// assignment is consistent, so they are treated as corrupt input.
func mergeBlocks(blocks []*sampleBlock) ([]timeKey, [][]float64, error) {
	total := 0
	for _, b := range blocks {
		total += len(b.keys)
	}

	keys := make([]timeKey, 0, total)
	rows := make([][]float64, 0, total)
	for _, b := range blocks {
		keys = append(keys, b.keys...)
		rows = append(rows, b.u...)
	}

	order := make([]int, len(keys))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return keys[order[a]].less(keys[order[b]]) })

	sortedKeys := make([]timeKey, len(keys))
	sortedRows := make([][]float64, len(rows))
	for i, j := range order {
		sortedKeys[i] = keys[j]
		sortedRows[i] = rows[j]
	}
	for i := 1; i < len(sortedKeys); i++ {
		if sortedKeys[i] == sortedKeys[i-1] {
			return nil, nil, fmt.Errorf("%w: duplicate sampled key (%s)", ErrConfigMismatch, sortedKeys[i])
		}
	}
	return sortedKeys, sortedRows, nil
}

// align restores the location's original row order: each control row is looked
// up by its (issue, lead) key in the merged sample table. A control row with
// no sampled key indicates inconsistent input and is a hard error rather than
// a silently missing result.
func align(name string, ctrl *models.ControlConfig, keys []timeKey, rows [][]float64, sampleCount int) ([][]float64, error) {
	index := make(map[timeKey]int, len(keys))
	for i, k := range keys {
		index[k] = i
	}

	out := make([][]float64, ctrl.Rows())
	for i := range out {
		k := makeKey(ctrl.IssueTimes[i], ctrl.LeadTimes[i])
		j, ok := index[k]
		if !ok {
			return nil, fmt.Errorf("%w: location %q control row %d (%s) has no sampled key",
				ErrConfigMismatch, name, i, k)
		}
		row := make([]float64, sampleCount)
		copy(row, rows[j])
		out[i] = row
	}
	return out, nil
}

// reassemble merges a location's fold blocks and aligns them to the original
// control row order.
func reassemble(name string, ctrl *models.ControlConfig, blocks []*sampleBlock, sampleCount int) ([][]float64, error) {
	keys, rows, err := mergeBlocks(blocks)
	if err != nil {
		return nil, err
	}
	return align(name, ctrl, keys, rows, sampleCount)
}
