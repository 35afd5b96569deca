// Package sim replays transactions from a dataset file against a running
// scoring service, for load testing and end-to-end verification.
package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"trustnet/internal/dataset"
	"trustnet/internal/transaction"
)

// Config controls a replay run.
type Config struct {
	ServerURL      string        // base URL of the scoring service
	DataPath       string        // CSV file to replay
	SampleFraction float64       // keep this fraction of rows
	Limit          int           // stop after this many transactions; 0 = all
	Delay          time.Duration // pause between requests
	Timeout        time.Duration // per-request timeout
	Seed           int64
}

// Summary reports the outcome of a replay run.
type Summary struct {
	Sent    int
	Flagged int
	Errors  int
}

// Simulator posts recorded transactions to the scoring endpoint.
type Simulator struct {
	cfg  Config
	rest *resty.Client
}

// New creates a simulator.
func New(cfg Config) *Simulator {
	r := resty.New()
	if cfg.Timeout > 0 {
		r.SetTimeout(cfg.Timeout)
	} else {
		r.SetTimeout(5 * time.Second) // default fallback
	}
	return &Simulator{cfg: cfg, rest: r}
}

type predictResponse struct {
	TransactionID    string  `json:"transaction_id"`
	FraudProbability float64 `json:"fraud_probability"`
	IsFraud          bool    `json:"is_fraud"`
}

// Run replays the dataset until the limit is reached or the context is
// canceled.
func (s *Simulator) Run(ctx context.Context) (Summary, error) {
	var summary Summary

	txs, _, err := dataset.Load(s.cfg.DataPath, dataset.Options{
		SampleFraction: s.cfg.SampleFraction,
		Seed:           s.cfg.Seed,
	})
	if err != nil {
		return summary, err
	}
	if s.cfg.Limit > 0 && len(txs) > s.cfg.Limit {
		txs = txs[:s.cfg.Limit]
	}
	log.Info().Int("transactions", len(txs)).Str("server", s.cfg.ServerURL).Msg("starting replay")

	for i, tx := range txs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		resp, err := s.send(tx)
		if err != nil {
			summary.Errors++
			log.Warn().Err(err).Int("index", i).Msg("replay request failed")
		} else {
			summary.Sent++
			if resp.IsFraud {
				summary.Flagged++
				log.Info().
					Str("transaction_id", resp.TransactionID).
					Float64("probability", resp.FraudProbability).
					Msg("transaction flagged")
			}
		}

		if s.cfg.Delay > 0 && i < len(txs)-1 {
			select {
			case <-time.After(s.cfg.Delay):
			case <-ctx.Done():
				return summary, ctx.Err()
			}
		}
	}

	log.Info().
		Int("sent", summary.Sent).
		Int("flagged", summary.Flagged).
		Int("errors", summary.Errors).
		Msg("replay complete")
	return summary, nil
}

func (s *Simulator) send(tx transaction.Transaction) (*predictResponse, error) {
	result := &predictResponse{}
	resp, err := s.rest.R().
		SetHeader("Content-Type", "application/json").
		SetBody(tx).
		SetResult(result).
		Post(s.cfg.ServerURL + "/predict")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("API error: status %d, body: %s", resp.StatusCode(), resp.String())
	}
	return result, nil
}
