package pipeline

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustnet/internal/features"
	"trustnet/internal/transaction"
)

func testRows(t *testing.T) []features.Row {
	t.Helper()
	txs := []transaction.Transaction{
		{Step: 1, Type: "TRANSFER", Amount: 5000, NameOrig: "C1", OldBalanceOrig: 10000, NewBalanceOrig: 5000, NameDest: "M1", OldBalanceDest: 0, NewBalanceDest: 5000},
		{Step: 2, Type: "PAYMENT", Amount: 100, NameOrig: "C2", OldBalanceOrig: 500, NewBalanceOrig: 400, NameDest: "M2", OldBalanceDest: 50, NewBalanceDest: 150},
		{Step: 3, Type: "CASH_OUT", Amount: 900, NameOrig: "C3", OldBalanceOrig: 900, NewBalanceOrig: 0, NameDest: "C4", OldBalanceDest: 0, NewBalanceDest: 900},
		{Step: 4, Type: "PAYMENT", Amount: 250, NameOrig: "C5", OldBalanceOrig: 1000, NewBalanceOrig: 750, NameDest: "M3", OldBalanceDest: 0, NewBalanceDest: 0},
	}
	rows, err := features.EngineerAll(txs)
	require.NoError(t, err)
	return rows
}

func TestFitEmpty(t *testing.T) {
	_, err := Fit(nil)
	assert.ErrorIs(t, err, ErrEmptyFit)
}

func TestFitAndTransform(t *testing.T) {
	rows := testRows(t)
	pipe, err := Fit(rows)
	require.NoError(t, err)

	assert.Equal(t, features.NumericColumns(), pipe.NumericCols)
	assert.Equal(t, features.CategoricalColumns(), pipe.CategoricalCols)

	// vocabularies are sorted and deduplicated
	assert.Equal(t, []string{"CASH_OUT", "PAYMENT", "TRANSFER"}, pipe.Vocabs[0])

	vec, err := pipe.Transform(rows[0])
	require.NoError(t, err)
	assert.Len(t, vec, pipe.Width())
	assert.Len(t, pipe.OutputNames(), pipe.Width())

	// transforming the same row twice yields the same vector
	vec2, err := pipe.Transform(rows[0])
	require.NoError(t, err)
	assert.Equal(t, vec, vec2)

	// standardized columns have mean zero over the training set
	matrix, err := pipe.TransformAll(rows)
	require.NoError(t, err)
	for j := range pipe.NumericCols {
		var sum float64
		for _, r := range matrix {
			sum += r[j]
		}
		assert.InDelta(t, 0, sum/float64(len(matrix)), 1e-9, "column %s not centered", pipe.NumericCols[j])
	}
}

func TestTransformUnknownCategory(t *testing.T) {
	rows := testRows(t)
	pipe, err := Fit(rows)
	require.NoError(t, err)

	unknown := rows[0]
	unknown.Categorical = append([]string(nil), unknown.Categorical...)
	unknown.Categorical[0] = "DEBIT" // never seen at fit time

	vec, err := pipe.Transform(unknown)
	require.NoError(t, err)

	// the type one-hot block must be all zeros
	offset := len(pipe.NumericCols)
	for k := range pipe.Vocabs[0] {
		assert.Zero(t, vec[offset+k], "unknown category must encode as zeros")
	}
}

func TestTransformSchemaViolations(t *testing.T) {
	rows := testRows(t)
	pipe, err := Fit(rows)
	require.NoError(t, err)

	short := features.Row{Numeric: rows[0].Numeric[:3], Categorical: rows[0].Categorical}
	_, err = pipe.Transform(short)
	var serr *SchemaError
	require.ErrorAs(t, err, &serr)

	nan := rows[0]
	nan.Numeric = append([]float64(nil), nan.Numeric...)
	nan.Numeric[1] = math.NaN()
	_, err = pipe.Transform(nan)
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "amount", serr.Column)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	rows := testRows(t)
	pipe, err := Fit(rows)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "pipeline.json")
	require.NoError(t, pipe.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)

	want, err := pipe.Transform(rows[1])
	require.NoError(t, err)
	got, err := loaded.Transform(rows[1])
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestPassthrough(t *testing.T) {
	pipe := Passthrough()
	rows := testRows(t)

	vec, err := pipe.Transform(rows[0])
	require.NoError(t, err)
	assert.Equal(t, rows[0].Numeric, vec)
	assert.Len(t, pipe.OutputNames(), len(features.NumericColumns()))
}
