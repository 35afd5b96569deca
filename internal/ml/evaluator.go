package ml

import (
	"fmt"
	"sort"
)

// DefaultThreshold is the fixed cutoff used for the baseline metric set.
// The operating threshold persisted with the model comes from
// SelectThreshold, not from this constant.
const DefaultThreshold = 0.5

// minOperatingPrecision is the precision floor for threshold selection:
// among curve points at or above it, the one with the best recall wins.
const minOperatingPrecision = 0.9

// ThresholdMetrics is the confusion matrix and derived scores at one
// decision threshold.
type ThresholdMetrics struct {
	Threshold float64 `json:"threshold"`
	TP        int     `json:"tp"`
	FP        int     `json:"fp"`
	TN        int     `json:"tn"`
	FN        int     `json:"fn"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// PRCurve is the precision-recall curve over the distinct score grid,
// ordered by increasing threshold.
type PRCurve struct {
	Thresholds []float64 `json:"thresholds"`
	Precision  []float64 `json:"precision"`
	Recall     []float64 `json:"recall"`
}

// Metrics is the full evaluation result: the baseline metric set at the
// default threshold, the selected operating metric set, and the ranking
// scores.
type Metrics struct {
	Default ThresholdMetrics `json:"default"`
	Optimal ThresholdMetrics `json:"optimal"`
	ROCAUC  float64          `json:"roc_auc"`
	PRAUC   float64          `json:"pr_auc"`
	Curve   PRCurve          `json:"-"`
}

// Evaluate scores the test set with the model and computes all metrics.
func Evaluate(model *GBDT, xTest [][]float64, yTest []float64) (Metrics, error) {
	if len(xTest) == 0 || len(xTest) != len(yTest) {
		return Metrics{}, fmt.Errorf("evaluate: bad test shape: %d rows, %d labels", len(xTest), len(yTest))
	}
	return EvaluateScores(model.PredictProbs(xTest), yTest), nil
}

// EvaluateScores computes metrics from precomputed probabilities.
func EvaluateScores(probs, y []float64) Metrics {
	curve := PrecisionRecallCurve(probs, y)
	optimal := SelectThreshold(curve)
	return Metrics{
		Default: MetricsAt(probs, y, DefaultThreshold),
		Optimal: MetricsAt(probs, y, optimal),
		ROCAUC:  ROCAUC(probs, y),
		PRAUC:   PRAUC(curve),
		Curve:   curve,
	}
}

// MetricsAt computes the confusion matrix and derived scores at a
// threshold: flagged means probability >= threshold.
func MetricsAt(probs, y []float64, threshold float64) ThresholdMetrics {
	m := ThresholdMetrics{Threshold: threshold}
	for i, p := range probs {
		predicted := p >= threshold
		actual := y[i] == 1
		switch {
		case predicted && actual:
			m.TP++
		case predicted && !actual:
			m.FP++
		case !predicted && actual:
			m.FN++
		default:
			m.TN++
		}
	}
	if m.TP+m.FP > 0 {
		m.Precision = float64(m.TP) / float64(m.TP+m.FP)
	}
	if m.TP+m.FN > 0 {
		m.Recall = float64(m.TP) / float64(m.TP+m.FN)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	return m
}

// PrecisionRecallCurve walks the distinct score grid and records precision
// and recall at each threshold, ordered by increasing threshold.
func PrecisionRecallCurve(probs, y []float64) PRCurve {
	idx := make([]int, len(probs))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return probs[idx[a]] > probs[idx[b]] })

	var totalPos int
	for _, label := range y {
		if label == 1 {
			totalPos++
		}
	}

	var curve PRCurve
	var tp, fp int
	for n, i := range idx {
		if y[i] == 1 {
			tp++
		} else {
			fp++
		}
		// only record at distinct-score boundaries
		if n+1 < len(idx) && probs[idx[n+1]] == probs[i] {
			continue
		}
		precision := float64(tp) / float64(tp+fp)
		recall := 0.0
		if totalPos > 0 {
			recall = float64(tp) / float64(totalPos)
		}
		curve.Thresholds = append(curve.Thresholds, probs[i])
		curve.Precision = append(curve.Precision, precision)
		curve.Recall = append(curve.Recall, recall)
	}

	// reverse into increasing-threshold order
	for a, b := 0, len(curve.Thresholds)-1; a < b; a, b = a+1, b-1 {
		curve.Thresholds[a], curve.Thresholds[b] = curve.Thresholds[b], curve.Thresholds[a]
		curve.Precision[a], curve.Precision[b] = curve.Precision[b], curve.Precision[a]
		curve.Recall[a], curve.Recall[b] = curve.Recall[b], curve.Recall[a]
	}
	return curve
}

// SelectThreshold implements the operating-point policy: among curve
// points with precision >= 0.9, pick the one with maximum recall; if none
// qualifies, fall back to the threshold maximizing F1 over the grid.
func SelectThreshold(curve PRCurve) float64 {
	best := -1
	bestRecall := -1.0
	for i := range curve.Thresholds {
		if curve.Precision[i] >= minOperatingPrecision && curve.Recall[i] > bestRecall {
			best = i
			bestRecall = curve.Recall[i]
		}
	}
	if best >= 0 {
		return curve.Thresholds[best]
	}

	bestF1 := -1.0
	thr := DefaultThreshold
	for i := range curve.Thresholds {
		p, r := curve.Precision[i], curve.Recall[i]
		if p+r == 0 {
			continue
		}
		f1 := 2 * p * r / (p + r)
		if f1 > bestF1 {
			bestF1 = f1
			thr = curve.Thresholds[i]
		}
	}
	return thr
}

// PRAUC integrates the precision-recall curve over recall, anchored at the
// (recall 0, precision 1) endpoint above the highest threshold.
func PRAUC(curve PRCurve) float64 {
	if len(curve.Recall) == 0 {
		return 0
	}
	var area float64
	for i := 1; i < len(curve.Recall); i++ {
		dr := curve.Recall[i-1] - curve.Recall[i] // recall decreases with threshold
		area += dr * (curve.Precision[i-1] + curve.Precision[i]) / 2
	}
	last := len(curve.Recall) - 1
	area += curve.Recall[last] * (curve.Precision[last] + 1) / 2
	return area
}

// ROCAUC computes the area under the ROC curve via the rank-sum statistic,
// with average ranks for tied scores.
func ROCAUC(probs, y []float64) float64 {
	n := len(probs)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return probs[idx[a]] < probs[idx[b]] })

	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && probs[idx[j+1]] == probs[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg
		}
		i = j + 1
	}

	var posRankSum float64
	var nPos, nNeg int
	for i, label := range y {
		if label == 1 {
			posRankSum += ranks[i]
			nPos++
		} else {
			nNeg++
		}
	}
	if nPos == 0 || nNeg == 0 {
		return 0.5
	}
	return (posRankSum - float64(nPos)*float64(nPos+1)/2) / (float64(nPos) * float64(nNeg))
}
