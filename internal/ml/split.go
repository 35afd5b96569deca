package ml

import (
	"fmt"
	"math/rand"
	"sort"
)

// StratifiedSplit partitions indices into train and test sets while
// preserving the class ratio: each class contributes testFrac of its
// members to the test side. A class with a single member stays in train.
func StratifiedSplit(y []float64, testFrac float64, seed int64) (train, test []int, err error) {
	if len(y) == 0 {
		return nil, nil, fmt.Errorf("stratified split: empty labels")
	}
	if testFrac <= 0 || testFrac >= 1 {
		return nil, nil, fmt.Errorf("stratified split: test fraction must be in (0,1), got %v", testFrac)
	}

	rng := rand.New(rand.NewSource(seed))
	for _, idx := range classIndices(y) {
		rng.Shuffle(len(idx), func(a, b int) { idx[a], idx[b] = idx[b], idx[a] })

		nTest := int(float64(len(idx)) * testFrac)
		if nTest == 0 && len(idx) > 1 {
			nTest = 1
		}
		test = append(test, idx[:nTest]...)
		train = append(train, idx[nTest:]...)
	}
	sort.Ints(train)
	sort.Ints(test)
	return train, test, nil
}

// StratifiedKFold assigns every sample to one of k folds, keeping the class
// ratio roughly constant across folds. Returns test-index sets per fold.
func StratifiedKFold(y []float64, k int, seed int64) [][]int {
	folds := make([][]int, k)
	rng := rand.New(rand.NewSource(seed))
	for _, idx := range classIndices(y) {
		rng.Shuffle(len(idx), func(a, b int) { idx[a], idx[b] = idx[b], idx[a] })
		for pos, i := range idx {
			f := pos % k
			folds[f] = append(folds[f], i)
		}
	}
	for _, f := range folds {
		sort.Ints(f)
	}
	return folds
}

// classIndices groups sample indices by label, ordered by label value so
// the seeded shuffles are reproducible.
func classIndices(y []float64) [][]int {
	byClass := make(map[float64][]int)
	for i, label := range y {
		byClass[label] = append(byClass[label], i)
	}
	labels := make([]float64, 0, len(byClass))
	for label := range byClass {
		labels = append(labels, label)
	}
	sort.Float64s(labels)
	out := make([][]int, 0, len(labels))
	for _, label := range labels {
		out = append(out, byClass[label])
	}
	return out
}

// gather selects the rows and labels at the given indices.
func gather(x [][]float64, y []float64, idx []int) ([][]float64, []float64) {
	gx := make([][]float64, len(idx))
	gy := make([]float64, len(idx))
	for n, i := range idx {
		gx[n] = x[i]
		gy[n] = y[i]
	}
	return gx, gy
}
