package ml

import (
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"sync"

	"github.com/rs/zerolog/log"

	"trustnet/internal/features"
	"trustnet/internal/pipeline"
	"trustnet/internal/transaction"
)

// TrainingResourceError models resource exhaustion during training. Each
// occurrence triggers the next fallback tier; it is fatal only once every
// tier has failed.
type TrainingResourceError struct {
	Tier   string
	Reason string
}

func (e *TrainingResourceError) Error() string {
	return fmt.Sprintf("training resource exhaustion in tier %s: %s", e.Tier, e.Reason)
}

// subsampleRows bounds the last-resort training tier.
const subsampleRows = 10000

// TrainerConfig configures a training run.
type TrainerConfig struct {
	TestFraction       float64 // test split size, default 0.4
	ValidationFraction float64 // early-stopping carve-out, default 0.2
	MemoryEfficient    bool    // shrink grid and folds, disable parallel search
	MaxTrainRows       int     // resource budget in row-equivalents; 0 = unlimited
	OversampleK        int     // SMOTE neighbor count, default 5
	Seed               int64
	OutputDir          string
}

func (c *TrainerConfig) applyDefaults() {
	if c.TestFraction <= 0 || c.TestFraction >= 1 {
		c.TestFraction = 0.4
	}
	if c.ValidationFraction <= 0 || c.ValidationFraction >= 1 {
		c.ValidationFraction = 0.2
	}
	if c.OversampleK <= 0 {
		c.OversampleK = 5
	}
}

// Trainer runs the one-shot batch training job and produces the artifact
// set the prediction service loads.
type Trainer struct {
	cfg TrainerConfig

	// gridSearchHook replaces the grid-search tier when set (test seam for
	// injecting resource failures).
	gridSearchHook func(x [][]float64, y []float64, xVal [][]float64, yVal []float64, spw float64) (*GBDT, error)
}

// NewTrainer creates a trainer.
func NewTrainer(cfg TrainerConfig) *Trainer {
	cfg.applyDefaults()
	return &Trainer{cfg: cfg}
}

// TrainResult summarizes a completed training run.
type TrainResult struct {
	Model        *GBDT
	Pipeline     *pipeline.Fitted
	Metrics      Metrics
	Threshold    float64
	Tier         string
	TrainingRows int
}

// TrainAndSave runs the full training pipeline: engineer, split, fit the
// preprocessor, balance classes, search hyperparameters with tiered
// fallback, evaluate, and persist the matched artifact set.
func (t *Trainer) TrainAndSave(txs []transaction.Transaction, labels []float64) (*TrainResult, error) {
	if len(txs) != len(labels) {
		return nil, fmt.Errorf("train: %d transactions, %d labels", len(txs), len(labels))
	}

	rows, err := features.EngineerAll(txs)
	if err != nil {
		return nil, err
	}

	trainIdx, testIdx, err := StratifiedSplit(labels, t.cfg.TestFraction, t.cfg.Seed)
	if err != nil {
		return nil, err
	}
	trainRows := make([]features.Row, len(trainIdx))
	yTrain := make([]float64, len(trainIdx))
	for n, i := range trainIdx {
		trainRows[n] = rows[i]
		yTrain[n] = labels[i]
	}
	testRows := make([]features.Row, len(testIdx))
	yTest := make([]float64, len(testIdx))
	for n, i := range testIdx {
		testRows[n] = rows[i]
		yTest[n] = labels[i]
	}

	pipe, err := pipeline.Fit(trainRows)
	if err != nil {
		return nil, err
	}
	xTrain, err := pipe.TransformAll(trainRows)
	if err != nil {
		return nil, err
	}
	xTest, err := pipe.TransformAll(testRows)
	if err != nil {
		return nil, err
	}

	// Class balancing: oversample, or weight the positive class when
	// oversampling is not applicable. Never both.
	scalePosWeight := 1.0
	xRes, yRes, err := Oversample(xTrain, yTrain, t.cfg.OversampleK, t.cfg.Seed)
	if err != nil {
		log.Warn().Err(err).Msg("oversampling failed, falling back to positive-class weighting")
		xRes, yRes = xTrain, yTrain
		var pos, neg float64
		for _, label := range yTrain {
			if label == 1 {
				pos++
			} else {
				neg++
			}
		}
		if pos > 0 {
			scalePosWeight = neg / pos
		}
		log.Info().Float64("scale_pos_weight", scalePosWeight).Msg("class imbalance correction")
	} else {
		log.Info().Int("rows_after_resample", len(xRes)).Msg("minority class oversampled")
	}

	fitIdx, valIdx, err := StratifiedSplit(yRes, t.cfg.ValidationFraction, t.cfg.Seed+1)
	if err != nil {
		return nil, err
	}
	xFit, yFit := gather(xRes, yRes, fitIdx)
	xVal, yVal := gather(xRes, yRes, valIdx)

	model, tierName, err := t.fitTiered(xFit, yFit, xVal, yVal, scalePosWeight)
	if err != nil {
		return nil, err
	}

	metrics, err := Evaluate(model, xTest, yTest)
	if err != nil {
		return nil, err
	}
	threshold := metrics.Optimal.Threshold
	log.Info().
		Float64("roc_auc", metrics.ROCAUC).
		Float64("pr_auc", metrics.PRAUC).
		Float64("threshold", threshold).
		Str("tier", tierName).
		Msg("training complete")

	result := &TrainResult{
		Model:        model,
		Pipeline:     pipe,
		Metrics:      metrics,
		Threshold:    threshold,
		Tier:         tierName,
		TrainingRows: len(xRes),
	}
	if t.cfg.OutputDir != "" {
		manifest := Manifest{
			Threshold:    threshold,
			Metrics:      metrics,
			TrainingRows: len(xRes),
			Tier:         tierName,
		}
		if err := SaveArtifacts(t.cfg.OutputDir, model, pipe, manifest); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// fitTiered attempts the training strategies in order. A resource error
// moves to the next tier; any other error is fatal immediately.
func (t *Trainer) fitTiered(x [][]float64, y []float64, xVal [][]float64, yVal []float64, spw float64) (*GBDT, string, error) {
	tiers := []struct {
		name string
		fit  func() (*GBDT, error)
	}{
		{"grid-search", func() (*GBDT, error) {
			if t.gridSearchHook != nil {
				return t.gridSearchHook(x, y, xVal, yVal, spw)
			}
			return t.gridSearch(x, y, xVal, yVal, spw)
		}},
		{"minimal", func() (*GBDT, error) {
			return t.fitMinimal(x, y, xVal, yVal, spw)
		}},
		{"minimal-subsample", func() (*GBDT, error) {
			return t.fitSubsampled(x, y, xVal, yVal, spw)
		}},
	}

	for _, tier := range tiers {
		model, err := tier.fit()
		if err == nil {
			return model, tier.name, nil
		}
		var re *TrainingResourceError
		if errors.As(err, &re) {
			log.Warn().Err(err).Str("tier", tier.name).Msg("training tier exhausted resources, trying next tier")
			continue
		}
		return nil, "", err
	}
	return nil, "", &TrainingResourceError{Tier: "all", Reason: "every fallback tier failed"}
}

func (t *Trainer) searchGrid() []GBDTConfig {
	var nEstimators, maxDepth []int
	var learningRate, subsample, colsample []float64
	if t.cfg.MemoryEfficient {
		nEstimators = []int{100, 200}
		maxDepth = []int{3, 5}
		learningRate = []float64{0.1}
		subsample = []float64{0.8}
		colsample = []float64{0.8}
	} else {
		nEstimators = []int{100, 200, 300}
		maxDepth = []int{3, 5, 7}
		learningRate = []float64{0.01, 0.05, 0.1}
		subsample = []float64{0.7, 0.8, 0.9}
		colsample = []float64{0.7, 0.8, 0.9}
	}

	var grid []GBDTConfig
	for _, n := range nEstimators {
		for _, d := range maxDepth {
			for _, lr := range learningRate {
				for _, s := range subsample {
					for _, c := range colsample {
						grid = append(grid, GBDTConfig{
							NEstimators:     n,
							MaxDepth:        d,
							LearningRate:    lr,
							Subsample:       s,
							ColsampleByTree: c,
						})
					}
				}
			}
		}
	}
	return grid
}

// gridSearch cross-validates the hyperparameter grid ranked by ROC AUC and
// refits the winner on the full training set with early stopping.
func (t *Trainer) gridSearch(x [][]float64, y []float64, xVal [][]float64, yVal []float64, spw float64) (*GBDT, error) {
	grid := t.searchGrid()
	folds := 3
	workers := runtime.NumCPU()
	if t.cfg.MemoryEfficient {
		folds = 2
		workers = 1
	}

	if t.cfg.MaxTrainRows > 0 && len(x)*len(grid) > t.cfg.MaxTrainRows {
		return nil, &TrainingResourceError{
			Tier:   "grid-search",
			Reason: fmt.Sprintf("%d rows x %d candidates exceeds budget of %d row-equivalents", len(x), len(grid), t.cfg.MaxTrainRows),
		}
	}

	foldIdx := StratifiedKFold(y, folds, t.cfg.Seed)
	scores := make([]float64, len(grid))

	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)
	for ci := range grid {
		wg.Add(1)
		sem <- struct{}{}
		go func(ci int) {
			defer wg.Done()
			defer func() { <-sem }()
			scores[ci] = t.crossValidate(grid[ci], x, y, foldIdx, xVal, yVal, spw)
		}(ci)
	}
	wg.Wait()

	best := 0
	for ci := range grid {
		if scores[ci] > scores[best] {
			best = ci
		}
	}
	log.Info().
		Int("candidates", len(grid)).
		Int("folds", folds).
		Float64("cv_auc", scores[best]).
		Interface("params", grid[best]).
		Msg("grid search selected configuration")

	cfg := grid[best]
	cfg.ScalePosWeight = spw
	cfg.Seed = t.cfg.Seed
	model := &GBDT{Config: cfg}
	if err := model.Fit(x, y, xVal, yVal); err != nil {
		return nil, err
	}
	return model, nil
}

func (t *Trainer) crossValidate(cfg GBDTConfig, x [][]float64, y []float64, folds [][]int, xVal [][]float64, yVal []float64, spw float64) float64 {
	inFold := make([]int, len(y))
	for f, idx := range folds {
		for _, i := range idx {
			inFold[i] = f
		}
	}

	var sum float64
	var counted int
	for f := range folds {
		var trainIdx []int
		for i := range y {
			if inFold[i] != f {
				trainIdx = append(trainIdx, i)
			}
		}
		xf, yf := gather(x, y, trainIdx)
		xt, yt := gather(x, y, folds[f])
		if len(xt) == 0 || len(xf) == 0 {
			continue
		}

		c := cfg
		c.ScalePosWeight = spw
		c.Seed = t.cfg.Seed + int64(f)
		m := &GBDT{Config: c}
		if err := m.Fit(xf, yf, xVal, yVal); err != nil {
			log.Warn().Err(err).Int("fold", f).Msg("cross-validation fold failed")
			continue
		}
		sum += ROCAUC(m.PredictProbs(xt), yt)
		counted++
	}
	if counted == 0 {
		return 0
	}
	return sum / float64(counted)
}

// fitMinimal trains the fixed fallback configuration used when the grid
// search runs out of resources.
func (t *Trainer) fitMinimal(x [][]float64, y []float64, xVal [][]float64, yVal []float64, spw float64) (*GBDT, error) {
	if t.cfg.MaxTrainRows > 0 && len(x) > t.cfg.MaxTrainRows {
		return nil, &TrainingResourceError{
			Tier:   "minimal",
			Reason: fmt.Sprintf("%d rows exceeds budget of %d", len(x), t.cfg.MaxTrainRows),
		}
	}
	model := &GBDT{Config: GBDTConfig{
		NEstimators:    100,
		MaxDepth:       3,
		LearningRate:   0.1,
		ScalePosWeight: spw,
		Seed:           t.cfg.Seed,
	}}
	if err := model.Fit(x, y, xVal, yVal); err != nil {
		return nil, err
	}
	return model, nil
}

// fitSubsampled is the last tier: the minimal configuration on a bounded
// random subsample of the training data.
func (t *Trainer) fitSubsampled(x [][]float64, y []float64, xVal [][]float64, yVal []float64, spw float64) (*GBDT, error) {
	size := subsampleRows
	if t.cfg.MaxTrainRows > 0 && t.cfg.MaxTrainRows < size {
		size = t.cfg.MaxTrainRows
	}
	if size > len(x) {
		size = len(x)
	}
	if size < 2 {
		return nil, &TrainingResourceError{Tier: "minimal-subsample", Reason: "budget leaves fewer than 2 rows"}
	}

	rng := rand.New(rand.NewSource(t.cfg.Seed))
	idx := rng.Perm(len(x))[:size]
	xs, ys := gather(x, y, idx)
	log.Warn().Int("rows", size).Msg("training on bounded subsample")

	model := &GBDT{Config: GBDTConfig{
		NEstimators:    100,
		MaxDepth:       3,
		LearningRate:   0.1,
		ScalePosWeight: spw,
		Seed:           t.cfg.Seed,
	}}
	if err := model.Fit(xs, ys, xVal, yVal); err != nil {
		return nil, err
	}
	return model, nil
}
