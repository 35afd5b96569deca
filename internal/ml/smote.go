package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// ErrResample signals that synthetic oversampling cannot run on this data
// (typically a singleton minority class). The trainer reacts by falling
// back to positive-class weighting instead.
var ErrResample = errors.New("oversampling not applicable")

// Oversample balances the classes by synthesizing new minority samples:
// each synthetic point is a random interpolation between a minority sample
// and one of its k nearest minority neighbors.
func Oversample(x [][]float64, y []float64, k int, seed int64) ([][]float64, []float64, error) {
	if len(x) != len(y) || len(x) == 0 {
		return nil, nil, fmt.Errorf("oversample: bad shape: %d rows, %d labels", len(x), len(y))
	}

	var pos, neg []int
	for i, label := range y {
		if label == 1 {
			pos = append(pos, i)
		} else {
			neg = append(neg, i)
		}
	}

	minority, majority := pos, neg
	minorityLabel := 1.0
	if len(neg) < len(pos) {
		minority, majority = neg, pos
		minorityLabel = 0
	}

	if len(minority) < 2 {
		return nil, nil, fmt.Errorf("%w: minority class has %d samples", ErrResample, len(minority))
	}
	need := len(majority) - len(minority)
	if need <= 0 {
		return x, y, nil
	}
	if k >= len(minority) {
		k = len(minority) - 1
	}

	neighbors := nearestNeighbors(x, minority, k)
	rng := rand.New(rand.NewSource(seed))

	outX := append([][]float64(nil), x...)
	outY := append([]float64(nil), y...)
	for s := 0; s < need; s++ {
		mi := rng.Intn(len(minority))
		a := x[minority[mi]]
		b := x[neighbors[mi][rng.Intn(k)]]
		u := rng.Float64()
		synth := make([]float64, len(a))
		for j := range a {
			synth[j] = a[j] + u*(b[j]-a[j])
		}
		outX = append(outX, synth)
		outY = append(outY, minorityLabel)
	}
	return outX, outY, nil
}

// nearestNeighbors returns, for each minority sample, the indices (into x)
// of its k nearest minority neighbors by euclidean distance.
func nearestNeighbors(x [][]float64, minority []int, k int) [][]int {
	type neighbor struct {
		idx  int
		dist float64
	}
	out := make([][]int, len(minority))
	for mi, i := range minority {
		cand := make([]neighbor, 0, len(minority)-1)
		for _, j := range minority {
			if i == j {
				continue
			}
			var d float64
			for c := range x[i] {
				diff := x[i][c] - x[j][c]
				d += diff * diff
			}
			cand = append(cand, neighbor{idx: j, dist: math.Sqrt(d)})
		}
		sort.Slice(cand, func(a, b int) bool { return cand[a].dist < cand[b].dist })
		nn := make([]int, k)
		for c := 0; c < k; c++ {
			nn[c] = cand[c].idx
		}
		out[mi] = nn
	}
	return out
}
