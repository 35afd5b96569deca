package features

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"trustnet/internal/transaction"
)

func sampleTransfer() transaction.Transaction {
	return transaction.Transaction{
		Step:           1,
		Type:           "TRANSFER",
		Amount:         5000,
		NameOrig:       "C1234567890",
		OldBalanceOrig: 10000,
		NewBalanceOrig: 5000,
		NameDest:       "M9876543210",
		OldBalanceDest: 0,
		NewBalanceDest: 5000,
	}
}

func TestEngineerTransferScenario(t *testing.T) {
	row, err := Engineer(sampleTransfer())
	if err != nil {
		t.Fatalf("Engineer() unexpected error: %v", err)
	}

	if len(row.Numeric) != len(numericColumns) {
		t.Fatalf("numeric width = %d, want %d", len(row.Numeric), len(numericColumns))
	}
	if len(row.Categorical) != len(categoricalColumns) {
		t.Fatalf("categorical width = %d, want %d", len(row.Categorical), len(categoricalColumns))
	}

	col := func(name string) float64 {
		for j, c := range numericColumns {
			if c == name {
				return row.Numeric[j]
			}
		}
		t.Fatalf("unknown column %q", name)
		return 0
	}

	if got := col("amount"); got != 5000 {
		t.Errorf("amount = %v, want 5000", got)
	}
	wantRatio := 5000.0 / 10001.0
	if got := col("transactionRatio"); math.Abs(got-wantRatio) > 1e-12 {
		t.Errorf("transactionRatio = %v, want %v", got, wantRatio)
	}
	if got := col("origBalanceDiff"); got != 5000 {
		t.Errorf("origBalanceDiff = %v, want 5000", got)
	}
	if got := col("destBalanceDiff"); got != 5000 {
		t.Errorf("destBalanceDiff = %v, want 5000", got)
	}
	if got := col("origBalanceDiffEqualsAmount"); got != 1 {
		t.Errorf("origBalanceDiffEqualsAmount = %v, want 1", got)
	}
	if got := col("destBalanceDiffEqualsAmount"); got != 1 {
		t.Errorf("destBalanceDiffEqualsAmount = %v, want 1", got)
	}
	if got := col("origOldBalanceIsZero"); got != 0 {
		t.Errorf("origOldBalanceIsZero = %v, want 0", got)
	}
	if got := col("destOldBalanceIsZero"); got != 1 {
		t.Errorf("destOldBalanceIsZero = %v, want 1", got)
	}

	wantCat := []string{"TRANSFER", "C", "M"}
	if !reflect.DeepEqual(row.Categorical, wantCat) {
		t.Errorf("categorical = %v, want %v", row.Categorical, wantCat)
	}
}

func TestEngineerDeterministic(t *testing.T) {
	tx := sampleTransfer()
	a, err := Engineer(tx)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Engineer(tx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("Engineer() is not deterministic for identical input")
	}
}

func TestEngineerRejectsBadInput(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*transaction.Transaction)
	}{
		{"nan balance", func(tx *transaction.Transaction) { tx.OldBalanceDest = math.NaN() }},
		{"infinite amount", func(tx *transaction.Transaction) { tx.Amount = math.Inf(1) }},
		{"empty origin", func(tx *transaction.Transaction) { tx.NameOrig = "" }},
		{"empty type", func(tx *transaction.Transaction) { tx.Type = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := sampleTransfer()
			tt.mutate(&tx)
			_, err := Engineer(tx)
			var ferr *FeatureError
			if !errors.As(err, &ferr) {
				t.Fatalf("Engineer() error is %T (%v), want *FeatureError", err, err)
			}
		})
	}
}

func TestColumnsStable(t *testing.T) {
	cols := Columns()
	if len(cols) != 18 {
		t.Fatalf("Columns() has %d entries, want 18", len(cols))
	}
	if cols[0] != "step" || cols[len(cols)-1] != "destAccountType" {
		t.Errorf("unexpected column order: first %q, last %q", cols[0], cols[len(cols)-1])
	}

	// returned slices are copies, mutating them must not affect the schema
	cols[0] = "mutated"
	if Columns()[0] != "step" {
		t.Error("Columns() exposes internal state")
	}
}

func TestEngineerAllReportsRowIndex(t *testing.T) {
	good := sampleTransfer()
	bad := sampleTransfer()
	bad.Amount = math.NaN()

	_, err := EngineerAll([]transaction.Transaction{good, bad})
	if err == nil {
		t.Fatal("EngineerAll() expected error for bad row")
	}
	var ferr *FeatureError
	if !errors.As(err, &ferr) {
		t.Fatalf("EngineerAll() error does not wrap *FeatureError: %v", err)
	}
}
