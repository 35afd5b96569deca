package storage

import (
	"fmt"
	"testing"
	"time"

	"trustnet/internal/ml"
	"trustnet/internal/transaction"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func scoredTransaction(name string, ts time.Time, prob float64, flagged bool) (transaction.Transaction, *ml.Result) {
	tx := transaction.Transaction{
		Type:           "TRANSFER",
		Amount:         1000,
		NameOrig:       name,
		OldBalanceOrig: 1000,
		NameDest:       "C999",
	}
	result := &ml.Result{
		TransactionID:    fmt.Sprintf("%s-%d", name, ts.UnixNano()),
		FraudProbability: prob,
		IsFraud:          flagged,
		Timestamp:        ts,
	}
	if flagged {
		result.Explanation = []ml.ExplanationEntry{{Feature: "amount", Value: 1000, Impact: 0.4}}
	}
	return tx, result
}

func TestStorePredictionAndStats(t *testing.T) {
	store := testStore(t)
	base := time.Now().UTC()

	for i := 0; i < 4; i++ {
		tx, result := scoredTransaction(fmt.Sprintf("C%d", i), base.Add(time.Duration(i)*time.Second), 0.3, i == 0)
		if err := store.StorePrediction(tx, result); err != nil {
			t.Fatalf("StorePrediction() error: %v", err)
		}
	}

	stats, err := store.GetStats()
	if err != nil {
		t.Fatalf("GetStats() error: %v", err)
	}
	if stats.TotalPredictions != 4 {
		t.Errorf("total predictions = %d, want 4", stats.TotalPredictions)
	}
	if stats.TotalAlerts != 1 {
		t.Errorf("total alerts = %d, want 1", stats.TotalAlerts)
	}
	if stats.FraudRate != 0.25 {
		t.Errorf("fraud rate = %v, want 0.25", stats.FraudRate)
	}
}

func TestRecentPredictionsOrdering(t *testing.T) {
	store := testStore(t)
	base := time.Now().UTC()

	// insert out of chronological order
	for _, offset := range []int{2, 0, 3, 1} {
		tx, result := scoredTransaction("C1", base.Add(time.Duration(offset)*time.Second), 0.2, false)
		if err := store.StorePrediction(tx, result); err != nil {
			t.Fatal(err)
		}
	}

	records, err := store.RecentPredictions(3)
	if err != nil {
		t.Fatalf("RecentPredictions() error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want limit 3", len(records))
	}
	for i := 1; i < len(records); i++ {
		if records[i].Timestamp.After(records[i-1].Timestamp) {
			t.Fatal("records not ordered newest first")
		}
	}
	if !records[0].Timestamp.Equal(base.Add(3 * time.Second).Truncate(0)) {
		t.Errorf("newest record timestamp = %v, want %v", records[0].Timestamp, base.Add(3*time.Second))
	}
}

func TestRecentAlertsOnlyFlagged(t *testing.T) {
	store := testStore(t)
	base := time.Now().UTC()

	txA, resA := scoredTransaction("C1", base, 0.95, true)
	txB, resB := scoredTransaction("C2", base.Add(time.Second), 0.1, false)
	if err := store.StorePrediction(txA, resA); err != nil {
		t.Fatal(err)
	}
	if err := store.StorePrediction(txB, resB); err != nil {
		t.Fatal(err)
	}

	alerts, err := store.RecentAlerts(0)
	if err != nil {
		t.Fatalf("RecentAlerts() error: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(alerts))
	}
	if alerts[0].NameOrig != "C1" {
		t.Errorf("alert account = %q, want C1", alerts[0].NameOrig)
	}
	if len(alerts[0].Explanation) != 1 || alerts[0].Explanation[0].Feature != "amount" {
		t.Errorf("alert explanation = %+v, want the stored entry", alerts[0].Explanation)
	}
}

func TestGetPredictionsInRange(t *testing.T) {
	store := testStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		tx, result := scoredTransaction("C7", base.Add(time.Duration(i)*time.Minute), 0.2, false)
		if err := store.StorePrediction(tx, result); err != nil {
			t.Fatal(err)
		}
	}
	// another account inside the same window must not leak in
	txOther, resOther := scoredTransaction("C8", base.Add(time.Minute), 0.2, false)
	if err := store.StorePrediction(txOther, resOther); err != nil {
		t.Fatal(err)
	}

	records, err := store.GetPredictionsInRange("C7", base.Add(time.Minute), base.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("GetPredictionsInRange() error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records in range, want 3 (inclusive bounds)", len(records))
	}
	for _, rec := range records {
		if rec.NameOrig != "C7" {
			t.Errorf("record for %q leaked into C7's range", rec.NameOrig)
		}
	}
}

type countingMetrics struct{ storageErrors int }

func (m *countingMetrics) StorageErrorsInc() { m.storageErrors++ }

func TestRecorderDrainsOnClose(t *testing.T) {
	store := testStore(t)
	rec := NewRecorder(store, 32, &countingMetrics{})

	base := time.Now().UTC()
	for i := 0; i < 10; i++ {
		tx, result := scoredTransaction(fmt.Sprintf("C%d", i), base.Add(time.Duration(i)*time.Millisecond), 0.1, false)
		rec.Record(tx, result)
	}
	rec.Close()
	rec.Close() // idempotent

	stats, err := store.GetStats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalPredictions != 10 {
		t.Errorf("total predictions after drain = %d, want 10", stats.TotalPredictions)
	}
}
