// Package ml implements the fraud model: a gradient-boosted decision
// ensemble, its trainer with class-imbalance handling and tiered fail-soft
// retries, the evaluator that picks the operating threshold, a local
// surrogate explainer, and the prediction service that ties them together.
package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"

	"github.com/rs/zerolog/log"
)

// GBDTConfig holds the boosting hyperparameters. Zero values are replaced
// by defaults in Fit.
type GBDTConfig struct {
	NEstimators         int     `json:"n_estimators"`
	MaxDepth            int     `json:"max_depth"`
	LearningRate        float64 `json:"learning_rate"`
	Subsample           float64 `json:"subsample"`
	ColsampleByTree     float64 `json:"colsample_by_tree"`
	ScalePosWeight      float64 `json:"scale_pos_weight"`
	Lambda              float64 `json:"lambda"`
	MinChildWeight      float64 `json:"min_child_weight"`
	MaxBins             int     `json:"max_bins"`
	EarlyStoppingRounds int     `json:"early_stopping_rounds"`
	Seed                int64   `json:"seed"`
}

func (c *GBDTConfig) applyDefaults() {
	if c.NEstimators <= 0 {
		c.NEstimators = 100
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = 3
	}
	if c.LearningRate <= 0 {
		c.LearningRate = 0.1
	}
	if c.Subsample <= 0 || c.Subsample > 1 {
		c.Subsample = 1
	}
	if c.ColsampleByTree <= 0 || c.ColsampleByTree > 1 {
		c.ColsampleByTree = 1
	}
	if c.ScalePosWeight <= 0 {
		c.ScalePosWeight = 1
	}
	if c.Lambda <= 0 {
		c.Lambda = 1
	}
	if c.MinChildWeight <= 0 {
		c.MinChildWeight = 1
	}
	if c.MaxBins <= 0 {
		c.MaxBins = 32
	}
	if c.EarlyStoppingRounds <= 0 {
		c.EarlyStoppingRounds = 10
	}
}

type treeNode struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Leaf      bool    `json:"leaf"`
	Value     float64 `json:"v"`
}

type tree struct {
	Nodes []treeNode `json:"nodes"`
}

func (t *tree) predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if x[n.Feature] < n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// GBDT is a binary classifier: an additive ensemble of regression trees
// over the logistic loss. Immutable after Fit; safe for concurrent
// PredictProb calls.
type GBDT struct {
	Config        GBDTConfig `json:"config"`
	Trees         []tree     `json:"trees"`
	BestIteration int        `json:"best_iteration"`
	NumFeatures   int        `json:"num_features"`
}

// Fit trains the ensemble. When a validation set is supplied, boosting
// halts once validation ROC AUC has not improved for
// EarlyStoppingRounds rounds and the ensemble is truncated to the best
// round.
func (g *GBDT) Fit(x [][]float64, y []float64, xVal [][]float64, yVal []float64) error {
	if len(x) == 0 || len(x) != len(y) {
		return fmt.Errorf("gbdt: bad training shape: %d rows, %d labels", len(x), len(y))
	}
	g.Config.applyDefaults()
	cfg := g.Config
	g.NumFeatures = len(x[0])
	g.Trees = nil

	rng := rand.New(rand.NewSource(cfg.Seed))
	bins := buildBins(x, cfg.MaxBins)

	n := len(x)
	raw := make([]float64, n)
	rawVal := make([]float64, len(xVal))
	grad := make([]float64, n)
	hess := make([]float64, n)

	bestAUC := math.Inf(-1)
	bestRound := -1
	sinceBest := 0

	for round := 0; round < cfg.NEstimators; round++ {
		for i := range x {
			p := sigmoid(raw[i])
			w := 1.0
			if y[i] == 1 {
				w = cfg.ScalePosWeight
			}
			grad[i] = w * (p - y[i])
			hess[i] = w * p * (1 - p)
		}

		rows := sampleRows(n, cfg.Subsample, rng)
		cols := sampleCols(g.NumFeatures, cfg.ColsampleByTree, rng)

		tr := growTree(x, grad, hess, rows, cols, bins, cfg)
		g.Trees = append(g.Trees, tr)

		for i := range x {
			raw[i] += tr.predict(x[i])
		}

		if len(xVal) > 0 {
			for i := range xVal {
				rawVal[i] += tr.predict(xVal[i])
			}
			scores := make([]float64, len(xVal))
			for i, r := range rawVal {
				scores[i] = sigmoid(r)
			}
			auc := ROCAUC(scores, yVal)
			if auc > bestAUC {
				bestAUC = auc
				bestRound = round
				sinceBest = 0
			} else {
				sinceBest++
				if sinceBest >= cfg.EarlyStoppingRounds {
					log.Debug().Int("round", round).Int("best_round", bestRound).
						Float64("best_auc", bestAUC).Msg("early stopping triggered")
					break
				}
			}
		}
	}

	if bestRound >= 0 && bestRound+1 < len(g.Trees) {
		g.Trees = g.Trees[:bestRound+1]
	}
	g.BestIteration = len(g.Trees) - 1
	return nil
}

// PredictProb returns the fraud probability for one preprocessed vector.
func (g *GBDT) PredictProb(x []float64) float64 {
	var raw float64
	for i := range g.Trees {
		raw += g.Trees[i].predict(x)
	}
	return sigmoid(raw)
}

// PredictProbs scores a batch.
func (g *GBDT) PredictProbs(x [][]float64) []float64 {
	out := make([]float64, len(x))
	for i, row := range x {
		out[i] = g.PredictProb(row)
	}
	return out
}

// Save writes the model as a JSON artifact.
func (g *GBDT) Save(path string) error {
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("marshal model: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// LoadGBDT reads a model artifact.
func LoadGBDT(path string) (*GBDT, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model artifact: %w", err)
	}
	var g GBDT
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse model artifact: %w", err)
	}
	if len(g.Trees) == 0 {
		return nil, fmt.Errorf("model artifact has no trees")
	}
	return &g, nil
}

// buildBins picks up to maxBins candidate thresholds per feature from the
// quantiles of the training data. Splitting only on these candidates keeps
// tree growth linear in rows, in the spirit of histogram-based boosting.
func buildBins(x [][]float64, maxBins int) [][]float64 {
	if len(x) == 0 {
		return nil
	}
	d := len(x[0])
	bins := make([][]float64, d)
	vals := make([]float64, len(x))
	for j := 0; j < d; j++ {
		for i := range x {
			vals[i] = x[i][j]
		}
		sorted := append([]float64(nil), vals...)
		sort.Float64s(sorted)

		var cand []float64
		for b := 1; b < maxBins; b++ {
			q := sorted[len(sorted)*b/maxBins]
			if len(cand) == 0 || q > cand[len(cand)-1] {
				cand = append(cand, q)
			}
		}
		bins[j] = cand
	}
	return bins
}

// growTree builds one regression tree over the gradient/hessian targets
// using breadth-first node expansion.
func growTree(x [][]float64, grad, hess []float64, rows []int, cols []int, bins [][]float64, cfg GBDTConfig) tree {
	t := tree{}

	type pending struct {
		node  int
		rows  []int
		depth int
	}

	t.Nodes = append(t.Nodes, treeNode{})
	queue := []pending{{node: 0, rows: rows, depth: 0}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		var gSum, hSum float64
		for _, i := range cur.rows {
			gSum += grad[i]
			hSum += hess[i]
		}

		leafValue := -gSum / (hSum + cfg.Lambda) * cfg.LearningRate

		if cur.depth >= cfg.MaxDepth || len(cur.rows) < 2 {
			t.Nodes[cur.node] = treeNode{Leaf: true, Value: leafValue}
			continue
		}

		feat, thr, gain := bestSplit(x, grad, hess, cur.rows, cols, bins, cfg, gSum, hSum)
		if gain <= 0 {
			t.Nodes[cur.node] = treeNode{Leaf: true, Value: leafValue}
			continue
		}

		var left, right []int
		for _, i := range cur.rows {
			if x[i][feat] < thr {
				left = append(left, i)
			} else {
				right = append(right, i)
			}
		}
		if len(left) == 0 || len(right) == 0 {
			t.Nodes[cur.node] = treeNode{Leaf: true, Value: leafValue}
			continue
		}

		li := len(t.Nodes)
		t.Nodes = append(t.Nodes, treeNode{}, treeNode{})
		t.Nodes[cur.node] = treeNode{Feature: feat, Threshold: thr, Left: li, Right: li + 1}
		queue = append(queue,
			pending{node: li, rows: left, depth: cur.depth + 1},
			pending{node: li + 1, rows: right, depth: cur.depth + 1},
		)
	}
	return t
}

func bestSplit(x [][]float64, grad, hess []float64, rows []int, cols []int, bins [][]float64, cfg GBDTConfig, gSum, hSum float64) (feat int, thr float64, gain float64) {
	parentScore := gSum * gSum / (hSum + cfg.Lambda)
	feat, gain = -1, 0

	for _, j := range cols {
		cand := bins[j]
		if len(cand) == 0 {
			continue
		}
		gBin := make([]float64, len(cand)+1)
		hBin := make([]float64, len(cand)+1)
		for _, i := range rows {
			b := sort.SearchFloat64s(cand, x[i][j])
			// values equal to a candidate go right, matching the < split rule
			if b < len(cand) && x[i][j] == cand[b] {
				b++
			}
			gBin[b] += grad[i]
			hBin[b] += hess[i]
		}

		var gl, hl float64
		for b := 0; b < len(cand); b++ {
			gl += gBin[b]
			hl += hBin[b]
			gr := gSum - gl
			hr := hSum - hl
			if hl < cfg.MinChildWeight || hr < cfg.MinChildWeight {
				continue
			}
			g := gl*gl/(hl+cfg.Lambda) + gr*gr/(hr+cfg.Lambda) - parentScore
			if g > gain {
				gain = g
				feat = j
				thr = cand[b]
			}
		}
	}
	return feat, thr, gain
}

func sampleRows(n int, frac float64, rng *rand.Rand) []int {
	if frac >= 1 {
		rows := make([]int, n)
		for i := range rows {
			rows[i] = i
		}
		return rows
	}
	k := int(float64(n) * frac)
	if k < 1 {
		k = 1
	}
	perm := rng.Perm(n)[:k]
	sort.Ints(perm)
	return perm
}

func sampleCols(d int, frac float64, rng *rand.Rand) []int {
	if frac >= 1 {
		cols := make([]int, d)
		for i := range cols {
			cols[i] = i
		}
		return cols
	}
	k := int(float64(d) * frac)
	if k < 1 {
		k = 1
	}
	perm := rng.Perm(d)[:k]
	sort.Ints(perm)
	return perm
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
