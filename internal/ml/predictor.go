package ml

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"trustnet/internal/features"
	"trustnet/internal/pipeline"
	"trustnet/internal/transaction"
)

// MetricsInterface defines the metrics methods needed by the predictor.
type MetricsInterface interface {
	PredictionsInc()
	FlaggedInc()
	ValidationRejectsInc()
	ScoringLatencyObserve(float64)
	ExplanationLatencyObserve(float64)
	ExplanationFailuresInc()
	PredictionScoresObserve(float64)
	DegradedModeSet(float64)
	ModelAgeSet(float64)
}

// Result is a single scored transaction as returned to callers.
type Result struct {
	TransactionID    string             `json:"transaction_id"`
	FraudProbability float64            `json:"fraud_probability"`
	IsFraud          bool               `json:"is_fraud"`
	Timestamp        time.Time          `json:"timestamp"`
	Explanation      []ExplanationEntry `json:"explanation,omitempty"`
	Degraded         bool               `json:"degraded,omitempty"`
}

// Predictor scores transactions against the loaded artifact set. When the
// artifacts cannot be loaded it runs in degraded mode: a deterministic
// heuristic scorer over raw features, flagged in every response.
type Predictor struct {
	model     *GBDT
	pipe      *pipeline.Fitted
	manifest  Manifest
	explainer *Explainer
	threshold float64
	degraded  bool
	metrics   MetricsInterface
}

// NewPredictor loads the artifact set from dir. explainTimeout bounds each
// explanation computation; zero or negative keeps the default. It never
// fails: a missing or inconsistent artifact set yields a degraded predictor
// so the service can still start and report its state.
func NewPredictor(dir string, explainTimeout time.Duration, metrics MetricsInterface) *Predictor {
	p := &Predictor{threshold: DefaultThreshold, metrics: metrics}

	model, pipe, manifest, err := LoadArtifacts(dir)
	if err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("model artifacts unavailable, serving in degraded mode")
		p.degraded = true
		p.pipe = pipeline.Passthrough()
		if metrics != nil {
			metrics.DegradedModeSet(1)
		}
		return p
	}

	p.model = model
	p.pipe = pipe
	p.manifest = manifest
	p.threshold = manifest.Threshold
	cfg := DefaultExplainerConfig()
	if explainTimeout > 0 {
		cfg.Timeout = explainTimeout
	}
	cfg.Seed = time.Now().UnixNano()
	p.explainer = NewExplainer(cfg, model.PredictProb, pipe.OutputNames())
	if metrics != nil {
		metrics.DegradedModeSet(0)
		metrics.ModelAgeSet(time.Since(manifest.CreatedAt).Seconds())
	}
	log.Info().
		Str("dir", dir).
		Float64("threshold", p.threshold).
		Int("features", len(manifest.FeatureNames)).
		Time("created_at", manifest.CreatedAt).
		Msg("model artifacts loaded")
	return p
}

// Degraded reports whether the predictor is running without a real model.
func (p *Predictor) Degraded() bool { return p.degraded }

// Threshold returns the operating decision threshold.
func (p *Predictor) Threshold() float64 { return p.threshold }

// Manifest returns the loaded artifact manifest. Zero-valued in degraded
// mode.
func (p *Predictor) Manifest() Manifest { return p.manifest }

// Predict validates and scores one transaction. Validation failures are
// the only error path; scoring and explanation never fail the request.
func (p *Predictor) Predict(tx transaction.Transaction) (*Result, error) {
	if err := tx.Validate(); err != nil {
		if p.metrics != nil {
			p.metrics.ValidationRejectsInc()
		}
		return nil, err
	}
	tx.Normalize()

	start := time.Now()
	prob, err := p.score(tx)
	if err != nil {
		return nil, err
	}
	if p.metrics != nil {
		p.metrics.ScoringLatencyObserve(time.Since(start).Seconds())
		p.metrics.PredictionScoresObserve(prob)
		p.metrics.PredictionsInc()
	}

	result := &Result{
		TransactionID:    fmt.Sprintf("%s-%d", tx.NameOrig, time.Now().UnixNano()),
		FraudProbability: prob,
		IsFraud:          prob >= p.threshold,
		Timestamp:        time.Now().UTC(),
		Degraded:         p.degraded,
	}

	if result.IsFraud {
		if p.metrics != nil {
			p.metrics.FlaggedInc()
		}
		result.Explanation = p.explainFlagged(tx)
	}
	return result, nil
}

func (p *Predictor) score(tx transaction.Transaction) (float64, error) {
	if p.degraded {
		return heuristicScore(tx), nil
	}
	row, err := features.Engineer(tx)
	if err != nil {
		return 0, err
	}
	x, err := p.pipe.Transform(row)
	if err != nil {
		return 0, err
	}
	return p.model.PredictProb(x), nil
}

func (p *Predictor) explainFlagged(tx transaction.Transaction) []ExplanationEntry {
	if p.degraded || p.explainer == nil {
		return PlaceholderExplanation()
	}
	row, err := features.Engineer(tx)
	if err != nil {
		return PlaceholderExplanation()
	}
	x, err := p.pipe.Transform(row)
	if err != nil {
		return PlaceholderExplanation()
	}
	start := time.Now()
	entries := p.explainer.Explain(x)
	if p.metrics != nil {
		p.metrics.ExplanationLatencyObserve(time.Since(start).Seconds())
		if IsPlaceholder(entries) {
			p.metrics.ExplanationFailuresInc()
		}
	}
	return entries
}

// heuristicScore is the degraded-mode scorer: deterministic fraud cues
// computed directly from the transaction, no model required.
func heuristicScore(tx transaction.Transaction) float64 {
	score := 0.05
	if tx.Type == string(transaction.Transfer) || tx.Type == string(transaction.CashOut) {
		score += 0.15
	}
	ratio := tx.Amount / (tx.OldBalanceOrig + 1)
	if ratio > 0.9 {
		score += 0.3
	}
	if tx.NewBalanceOrig == 0 && tx.OldBalanceOrig > 0 {
		score += 0.25
	}
	if tx.OldBalanceDest == 0 && tx.NewBalanceDest == 0 && tx.Amount > 0 {
		score += 0.2
	}
	if score > 0.99 {
		score = 0.99
	}
	return score
}
