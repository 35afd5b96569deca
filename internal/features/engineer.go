// Package features derives the fixed-width feature row the model consumes
// from a raw transaction. The column set and every derivation formula live
// only here; the trainer and the prediction service both call Engineer, so
// training-time and inference-time features cannot drift apart.
package features

import (
	"fmt"
	"math"

	"trustnet/internal/transaction"
)

// Tolerance is the absolute tolerance used when checking whether a balance
// delta equals the transaction amount.
const Tolerance = 0.01

var numericColumns = []string{
	"step",
	"amount",
	"oldbalanceOrg",
	"newbalanceOrig",
	"oldbalanceDest",
	"newbalanceDest",
	"transactionRatio",
	"origOldBalanceIsZero",
	"origNewBalanceIsZero",
	"destOldBalanceIsZero",
	"destNewBalanceIsZero",
	"origBalanceDiff",
	"destBalanceDiff",
	"origBalanceDiffEqualsAmount",
	"destBalanceDiffEqualsAmount",
}

var categoricalColumns = []string{
	"type",
	"originAccountType",
	"destAccountType",
}

// NumericColumns returns the ordered numeric column names.
func NumericColumns() []string {
	out := make([]string, len(numericColumns))
	copy(out, numericColumns)
	return out
}

// CategoricalColumns returns the ordered categorical column names.
func CategoricalColumns() []string {
	out := make([]string, len(categoricalColumns))
	copy(out, categoricalColumns)
	return out
}

// Columns returns the full ordered schema, numerics first.
func Columns() []string {
	return append(NumericColumns(), CategoricalColumns()...)
}

// Row is one engineered feature row. Numeric values follow NumericColumns
// order, categorical values follow CategoricalColumns order.
type Row struct {
	Numeric     []float64
	Categorical []string
}

// FeatureError reports a transaction that cannot be turned into a feature
// row (missing field, non-finite value). Distinct from a validation error:
// by the time this fires the record passed boundary validation, so it
// signals a contract violation between components.
type FeatureError struct {
	Field  string
	Reason string
}

func (e *FeatureError) Error() string {
	return fmt.Sprintf("feature engineering failed: field %s: %s", e.Field, e.Reason)
}

// Engineer derives the feature row for a single transaction. It is a pure
// function: identical input yields an identical row, and the column order
// never varies.
func Engineer(tx transaction.Transaction) (Row, error) {
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"amount", tx.Amount},
		{"oldbalanceOrg", tx.OldBalanceOrig},
		{"newbalanceOrig", tx.NewBalanceOrig},
		{"oldbalanceDest", tx.OldBalanceDest},
		{"newbalanceDest", tx.NewBalanceDest},
	} {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return Row{}, &FeatureError{Field: f.name, Reason: fmt.Sprintf("not finite: %v", f.value)}
		}
	}
	if tx.NameOrig == "" {
		return Row{}, &FeatureError{Field: "nameOrig", Reason: "missing account identifier"}
	}
	if tx.NameDest == "" {
		return Row{}, &FeatureError{Field: "nameDest", Reason: "missing account identifier"}
	}
	if tx.Type == "" {
		return Row{}, &FeatureError{Field: "type", Reason: "missing transaction type"}
	}

	origDiff := tx.OldBalanceOrig - tx.NewBalanceOrig
	destDiff := tx.NewBalanceDest - tx.OldBalanceDest

	return Row{
		Numeric: []float64{
			float64(tx.Step),
			tx.Amount,
			tx.OldBalanceOrig,
			tx.NewBalanceOrig,
			tx.OldBalanceDest,
			tx.NewBalanceDest,
			tx.Amount / (tx.OldBalanceOrig + 1),
			boolFlag(tx.OldBalanceOrig == 0),
			boolFlag(tx.NewBalanceOrig == 0),
			boolFlag(tx.OldBalanceDest == 0),
			boolFlag(tx.NewBalanceDest == 0),
			origDiff,
			destDiff,
			boolFlag(math.Abs(origDiff-tx.Amount) < Tolerance),
			boolFlag(math.Abs(destDiff-tx.Amount) < Tolerance),
		},
		Categorical: []string{
			tx.Type,
			tx.NameOrig[:1],
			tx.NameDest[:1],
		},
	}, nil
}

// EngineerAll applies Engineer across a dataset, failing on the first bad
// record with its index attached.
func EngineerAll(txs []transaction.Transaction) ([]Row, error) {
	rows := make([]Row, 0, len(txs))
	for i, tx := range txs {
		row, err := Engineer(tx)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func boolFlag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
