// Package storage provides persistent data storage for the fraud scoring
// service. It uses BoltDB as the underlying storage engine to store scored
// transactions and fraud alerts.
//
// The package provides thread-safe operations for storing and retrieving
// time-series data with efficient range queries and automatic bucket management.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"go.etcd.io/bbolt"

	"trustnet/internal/ml"
	"trustnet/internal/transaction"
)

const (
	predictionsBucket = "predictions" // Bucket name for every scored transaction
	alertsBucket      = "alerts"      // Bucket name for flagged transactions only
)

// PredictionRecord is the persisted form of one scored transaction.
type PredictionRecord struct {
	TransactionID    string    `json:"transaction_id"`
	Timestamp        time.Time `json:"timestamp"`
	Type             string    `json:"type"`
	Amount           float64   `json:"amount"`
	NameOrig         string    `json:"nameOrig"`
	NameDest         string    `json:"nameDest"`
	FraudProbability float64   `json:"fraud_probability"`
	IsFraud          bool      `json:"is_fraud"`
	Degraded         bool      `json:"degraded,omitempty"`
}

// AlertRecord is the persisted form of one fraud alert.
type AlertRecord struct {
	TransactionID    string                `json:"transaction_id"`
	Timestamp        time.Time             `json:"timestamp"`
	Type             string                `json:"type"`
	Amount           float64               `json:"amount"`
	NameOrig         string                `json:"nameOrig"`
	NameDest         string                `json:"nameDest"`
	FraudProbability float64               `json:"fraud_probability"`
	Explanation      []ml.ExplanationEntry `json:"explanation,omitempty"`
}

// Stats summarizes the stored history.
type Stats struct {
	TotalPredictions int     `json:"total_predictions"`
	TotalAlerts      int     `json:"total_alerts"`
	FraudRate        float64 `json:"fraud_rate"`
}

// Store provides persistent storage for scoring history using BoltDB.
type Store struct {
	db *bbolt.DB // BoltDB database instance
}

// New creates a new storage instance with the specified data path.
// It initializes the BoltDB database and creates necessary buckets.
// Returns an error if the database cannot be opened or buckets cannot be created.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, "trustnet-data.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(predictionsBucket)); err != nil {
			return fmt.Errorf("create predictions bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(alertsBucket)); err != nil {
			return fmt.Errorf("create alerts bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// StorePrediction stores a scored transaction in the predictions bucket,
// and additionally in the alerts bucket when it was flagged. The record is
// stored with a key format of "nameOrig_timestamp" for efficient range
// queries over an account's history.
func (s *Store) StorePrediction(tx transaction.Transaction, result *ml.Result) error {
	record := PredictionRecord{
		TransactionID:    result.TransactionID,
		Timestamp:        result.Timestamp,
		Type:             tx.Type,
		Amount:           tx.Amount,
		NameOrig:         tx.NameOrig,
		NameDest:         tx.NameDest,
		FraudProbability: result.FraudProbability,
		IsFraud:          result.IsFraud,
		Degraded:         result.Degraded,
	}

	return s.db.Update(func(btx *bbolt.Tx) error {
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal prediction: %w", err)
		}
		key := []byte(fmt.Sprintf("%s_%d", tx.NameOrig, result.Timestamp.UnixNano()))
		if err := btx.Bucket([]byte(predictionsBucket)).Put(key, data); err != nil {
			return err
		}

		if !result.IsFraud {
			return nil
		}
		alert := AlertRecord{
			TransactionID:    result.TransactionID,
			Timestamp:        result.Timestamp,
			Type:             tx.Type,
			Amount:           tx.Amount,
			NameOrig:         tx.NameOrig,
			NameDest:         tx.NameDest,
			FraudProbability: result.FraudProbability,
			Explanation:      result.Explanation,
		}
		data, err = json.Marshal(alert)
		if err != nil {
			return fmt.Errorf("marshal alert: %w", err)
		}
		return btx.Bucket([]byte(alertsBucket)).Put(key, data)
	})
}

// GetPredictionsInRange retrieves stored predictions for one originating
// account within a time range, ordered by timestamp. The range is inclusive
// of both start and end times.
func (s *Store) GetPredictionsInRange(nameOrig string, start, end time.Time) ([]PredictionRecord, error) {
	var records []PredictionRecord

	err := s.db.View(func(btx *bbolt.Tx) error {
		b := btx.Bucket([]byte(predictionsBucket))
		c := b.Cursor()

		prefix := []byte(nameOrig + "_")
		startKey := []byte(fmt.Sprintf("%s_%d", nameOrig, start.UnixNano()))
		endKey := []byte(fmt.Sprintf("%s_%d", nameOrig, end.UnixNano()))

		for k, v := c.Seek(startKey); k != nil && bytes.Compare(k, endKey) <= 0; k, v = c.Next() {
			if !bytes.HasPrefix(k, prefix) {
				continue
			}
			var record PredictionRecord
			if err := json.Unmarshal(v, &record); err != nil {
				continue // Skip malformed records
			}
			records = append(records, record)
		}
		return nil
	})

	return records, err
}

// RecentPredictions returns the newest stored predictions, most recent
// first, up to limit.
func (s *Store) RecentPredictions(limit int) ([]PredictionRecord, error) {
	var records []PredictionRecord
	err := s.recentRecords(predictionsBucket, limit, func(v []byte) {
		var record PredictionRecord
		if json.Unmarshal(v, &record) == nil {
			records = append(records, record)
		}
	})
	return records, err
}

// RecentAlerts returns the newest stored alerts, most recent first, up to
// limit.
func (s *Store) RecentAlerts(limit int) ([]AlertRecord, error) {
	var records []AlertRecord
	err := s.recentRecords(alertsBucket, limit, func(v []byte) {
		var record AlertRecord
		if json.Unmarshal(v, &record) == nil {
			records = append(records, record)
		}
	})
	return records, err
}

// recentRecords walks a bucket and collects the limit newest values by the
// timestamp suffix of their keys. Keys are prefixed by account, so ordering
// requires a full scan.
func (s *Store) recentRecords(bucketName string, limit int, collect func([]byte)) error {
	if limit <= 0 {
		limit = 50
	}
	type keyed struct {
		ts  int64
		val []byte
	}
	var all []keyed

	err := s.db.View(func(btx *bbolt.Tx) error {
		b := btx.Bucket([]byte(bucketName))
		return b.ForEach(func(k, v []byte) error {
			i := bytes.LastIndexByte(k, '_')
			if i < 0 {
				return nil
			}
			ts, err := strconv.ParseInt(string(k[i+1:]), 10, 64)
			if err != nil {
				return nil
			}
			val := make([]byte, len(v))
			copy(val, v)
			all = append(all, keyed{ts: ts, val: val})
			return nil
		})
	})
	if err != nil {
		return err
	}

	// newest first
	sort.Slice(all, func(i, j int) bool { return all[i].ts > all[j].ts })
	if len(all) > limit {
		all = all[:limit]
	}
	for _, rec := range all {
		collect(rec.val)
	}
	return nil
}

// GetStats computes summary statistics over the stored history.
func (s *Store) GetStats() (Stats, error) {
	var stats Stats
	err := s.db.View(func(btx *bbolt.Tx) error {
		stats.TotalPredictions = btx.Bucket([]byte(predictionsBucket)).Stats().KeyN
		stats.TotalAlerts = btx.Bucket([]byte(alertsBucket)).Stats().KeyN
		return nil
	})
	if err != nil {
		return stats, err
	}
	if stats.TotalPredictions > 0 {
		stats.FraudRate = float64(stats.TotalAlerts) / float64(stats.TotalPredictions)
	}
	return stats, nil
}
