package copula

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/scencast/scencast/internal/metrics"
)

// pcgStreamSalt separates the two PCG state words so folds whose hashes agree
// in one word still diverge.
const pcgStreamSalt = 0x9e3779b97f4a7c15

// subSeed derives a deterministic per-fold seed from the request seed, so
// concurrent fold tasks draw identical samples regardless of scheduling order
// or worker-pool width.
func subSeed(base uint64, fold string) uint64 {
	h := fnv.New64a()
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], base)
	h.Write(b[:])
	h.Write([]byte(fold))
	return h.Sum64()
}

// sampleBlock holds one location's uniform-domain draws for a single fold:
// one row per time key, one column per sample.
type sampleBlock struct {
	keys []timeKey
	u    [][]float64
}

// sampleFold draws the fold's correlated Gaussian samples and maps them to the
// uniform domain, returning one block per location in request order.
//
// Spatial mode: every draw has one component per location, all at a shared
// (issue, lead) instant. Temporal mode: every draw has one component per
// (location, lead) combination, all at a shared issue time; the component at
// index li*H+hi belongs to location li at lead index hi.
func sampleFold(fp foldPlan, copula CopulaType, numLoc, sampleCount int, seed uint64) ([]*sampleBlock, error) {
	var rows, dim, draws int
	switch copula {
	case Spatial:
		rows, dim, draws = len(fp.pairs), numLoc, len(fp.pairs)*sampleCount
	case Temporal:
		rows, dim, draws = len(fp.issues)*len(fp.leads), numLoc*len(fp.leads), len(fp.issues)*sampleCount
	}

	blocks := make([]*sampleBlock, numLoc)
	if rows == 0 {
		return blocks, nil
	}
	if got := fp.sigma.SymmetricDim(); got != dim {
		return nil, fmt.Errorf("%w: fold %s covariance dimension %d, want %d for %d locations",
			ErrSamplingFailure, fp.fold, got, dim, numLoc)
	}

	src := rand.NewPCG(seed, seed^pcgStreamSalt)
	normal, ok := distmv.NewNormal(fp.mean, fp.sigma, rand.New(src))
	if !ok {
		return nil, fmt.Errorf("%w: fold %s covariance is not positive semi-definite", ErrSamplingFailure, fp.fold)
	}

	for li := range blocks {
		b := &sampleBlock{keys: make([]timeKey, rows), u: make([][]float64, rows)}
		for r := range b.u {
			b.u[r] = make([]float64, sampleCount)
		}
		blocks[li] = b
	}

	x := make([]float64, dim)
	switch copula {
	case Spatial:
		for li := range blocks {
			copy(blocks[li].keys, fp.pairs)
		}
		for ki := range fp.pairs {
			for s := 0; s < sampleCount; s++ {
				normal.Rand(x)
				for li := range blocks {
					blocks[li].u[ki][s] = distuv.UnitNormal.CDF(x[li])
				}
			}
		}
	case Temporal:
		h := len(fp.leads)
		for li := range blocks {
			for ii, issue := range fp.issues {
				for hi, lead := range fp.leads {
					blocks[li].keys[ii*h+hi] = timeKey{issue: issue, lead: lead}
				}
			}
		}
		for ii := range fp.issues {
			for s := 0; s < sampleCount; s++ {
				normal.Rand(x)
				for li := range blocks {
					for hi := 0; hi < h; hi++ {
						blocks[li].u[ii*h+hi][s] = distuv.UnitNormal.CDF(x[li*h+hi])
					}
				}
			}
		}
	}

	metrics.SampleDrawsTotal.Add(float64(draws))
	return blocks, nil
}
