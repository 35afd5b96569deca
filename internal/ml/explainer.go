package ml

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
)

// ExplanationEntry is one feature's contribution to a single prediction.
// Impact is signed: positive values are evidence toward fraud.
type ExplanationEntry struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
	Impact  float64 `json:"impact"`
}

// ExplainerConfig tunes the local surrogate fit.
type ExplainerConfig struct {
	NumFeatures int           // max entries returned (K)
	NumSamples  int           // neighborhood size
	KernelWidth float64       // locality kernel width; 0 = sqrt(d)*0.75
	RidgeAlpha  float64       // surrogate regularization
	Timeout     time.Duration // hard wall-clock bound per explanation
	Seed        int64
}

// DefaultExplainerConfig returns the standard settings (K=10).
func DefaultExplainerConfig() ExplainerConfig {
	return ExplainerConfig{
		NumFeatures: 10,
		NumSamples:  512,
		RidgeAlpha:  1.0,
		Timeout:     2 * time.Second,
	}
}

// Explainer produces local feature-attribution explanations for single
// predictions: it perturbs the instance's neighborhood, queries the model,
// and fits a weighted sparse linear surrogate whose coefficients are
// reported as impacts. Explanation is best-effort by contract: any failure
// yields a placeholder, never an error that blocks the probability result.
type Explainer struct {
	cfg     ExplainerConfig
	predict func([]float64) float64
	names   []string
}

// NewExplainer builds an explainer over a scoring function and the names
// of its input vector positions.
func NewExplainer(cfg ExplainerConfig, predict func([]float64) float64, names []string) *Explainer {
	if cfg.NumFeatures <= 0 {
		cfg.NumFeatures = 10
	}
	if cfg.NumSamples <= 0 {
		cfg.NumSamples = 512
	}
	if cfg.RidgeAlpha <= 0 {
		cfg.RidgeAlpha = 1.0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	return &Explainer{cfg: cfg, predict: predict, names: names}
}

const placeholderFeature = "explanation unavailable"

// PlaceholderExplanation is returned whenever the surrogate fit fails.
func PlaceholderExplanation() []ExplanationEntry {
	return []ExplanationEntry{{Feature: placeholderFeature, Value: 0, Impact: 0}}
}

// IsPlaceholder reports whether an explanation is the failure placeholder.
func IsPlaceholder(entries []ExplanationEntry) bool {
	return len(entries) == 1 && entries[0].Feature == placeholderFeature
}

// Explain computes the top-K entries for one instance, sorted by
// descending absolute impact. It is bounded by the configured timeout so a
// stuck computation cannot hold the request open indefinitely.
func (e *Explainer) Explain(x []float64) []ExplanationEntry {
	done := make(chan []ExplanationEntry, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Warn().Interface("panic", r).Msg("explanation computation panicked, using placeholder")
				done <- PlaceholderExplanation()
			}
		}()
		entries, err := e.explain(x)
		if err != nil {
			log.Warn().Err(err).Msg("explanation fit failed, using placeholder")
			done <- PlaceholderExplanation()
			return
		}
		done <- entries
	}()

	select {
	case entries := <-done:
		return entries
	case <-time.After(e.cfg.Timeout):
		log.Warn().Dur("timeout", e.cfg.Timeout).Msg("explanation timed out, using placeholder")
		return PlaceholderExplanation()
	}
}

func (e *Explainer) explain(x []float64) ([]ExplanationEntry, error) {
	d := len(x)
	if d == 0 || d != len(e.names) {
		return nil, fmt.Errorf("explainer: instance has %d features, names has %d", d, len(e.names))
	}

	kw := e.cfg.KernelWidth
	if kw <= 0 {
		kw = math.Sqrt(float64(d)) * 0.75
	}
	rng := rand.New(rand.NewSource(e.cfg.Seed))

	// Gaussian neighborhood around the instance. Inputs are standardized
	// by the pipeline, so unit-variance noise is the natural scale.
	n := e.cfg.NumSamples
	samples := make([][]float64, n)
	targets := make([]float64, n)
	weights := make([]float64, n)
	samples[0] = append([]float64(nil), x...) // anchor: the instance itself
	for i := 1; i < n; i++ {
		z := make([]float64, d)
		for j := range z {
			z[j] = x[j] + rng.NormFloat64()
		}
		samples[i] = z
	}
	for i, z := range samples {
		targets[i] = e.predict(z)
		var dist float64
		for j := range z {
			diff := z[j] - x[j]
			dist += diff * diff
		}
		weights[i] = math.Exp(-dist / (kw * kw))
	}

	coefs, err := weightedRidge(samples, targets, weights, e.cfg.RidgeAlpha)
	if err != nil {
		return nil, err
	}

	entries := make([]ExplanationEntry, d)
	for j := 0; j < d; j++ {
		entries[j] = ExplanationEntry{Feature: e.names[j], Value: x[j], Impact: coefs[j]}
	}
	sort.SliceStable(entries, func(a, b int) bool {
		return math.Abs(entries[a].Impact) > math.Abs(entries[b].Impact)
	})
	if len(entries) > e.cfg.NumFeatures {
		entries = entries[:e.cfg.NumFeatures]
	}
	return entries, nil
}

// weightedRidge solves the weighted ridge regression
// (Z'WZ + alpha*I) beta = Z'Wy with an intercept column. Returns the
// feature coefficients without the intercept.
func weightedRidge(z [][]float64, y, w []float64, alpha float64) ([]float64, error) {
	d := len(z[0])
	cols := d + 1 // intercept last

	a := make([][]float64, cols)
	for i := range a {
		a[i] = make([]float64, cols+1) // augmented with rhs
	}

	row := make([]float64, cols)
	for s := range z {
		copy(row, z[s])
		row[d] = 1
		for i := 0; i < cols; i++ {
			wi := w[s] * row[i]
			for j := 0; j < cols; j++ {
				a[i][j] += wi * row[j]
			}
			a[i][cols] += wi * y[s]
		}
	}
	for i := 0; i < d; i++ { // intercept is not penalized
		a[i][i] += alpha
	}

	beta, err := solveDense(a)
	if err != nil {
		return nil, err
	}
	return beta[:d], nil
}

// solveDense runs Gaussian elimination with partial pivoting on an
// augmented matrix.
func solveDense(a [][]float64) ([]float64, error) {
	n := len(a)
	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil, fmt.Errorf("surrogate system is singular at column %d", col)
		}
		a[col], a[pivot] = a[pivot], a[col]
		for r := col + 1; r < n; r++ {
			f := a[r][col] / a[col][col]
			for c := col; c <= n; c++ {
				a[r][c] -= f * a[col][c]
			}
		}
	}
	x := make([]float64, n)
	for r := n - 1; r >= 0; r-- {
		sum := a[r][n]
		for c := r + 1; c < n; c++ {
			sum -= a[r][c] * x[c]
		}
		x[r] = sum / a[r][r]
	}
	return x, nil
}
