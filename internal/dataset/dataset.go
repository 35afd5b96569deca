// Package dataset loads labeled transaction data from CSV files in the
// mobile-money research format.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"

	"trustnet/internal/transaction"
)

// Options controls loading behavior.
type Options struct {
	SampleFraction float64 // keep this fraction of rows; <=0 or >=1 keeps all
	Float32        bool    // round numeric columns to float32 precision
	Seed           int64
}

// column names expected in the header. isFlaggedFraud is ignored when
// present.
var requiredColumns = []string{
	"step", "type", "amount",
	"nameOrig", "oldbalanceOrg", "newbalanceOrig",
	"nameDest", "oldbalanceDest", "newbalanceDest",
	"isFraud",
}

// Load reads the CSV at path and returns transactions with their fraud
// labels (0 or 1), in file order after optional row sampling.
func Load(path string, opts Options) ([]transaction.Transaction, []float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return Read(f, opts)
}

// Read parses CSV data from r. The first record must be a header naming
// all required columns; extra columns are ignored.
func Read(r io.Reader, opts Options) ([]transaction.Transaction, []float64, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, name := range requiredColumns {
		if _, ok := col[name]; !ok {
			return nil, nil, fmt.Errorf("dataset missing column %q", name)
		}
	}

	sample := opts.SampleFraction > 0 && opts.SampleFraction < 1
	rng := rand.New(rand.NewSource(opts.Seed))

	var txs []transaction.Transaction
	var labels []float64
	var total int
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read row %d: %w", total+2, err)
		}
		total++
		if sample && rng.Float64() >= opts.SampleFraction {
			continue
		}

		tx, label, err := parseRow(rec, col, opts.Float32)
		if err != nil {
			return nil, nil, fmt.Errorf("row %d: %w", total+1, err)
		}
		txs = append(txs, tx)
		labels = append(labels, label)
	}

	log.Info().
		Int("rows_read", total).
		Int("rows_kept", len(txs)).
		Bool("float32", opts.Float32).
		Msg("dataset loaded")
	return txs, labels, nil
}

func parseRow(rec []string, col map[string]int, round32 bool) (transaction.Transaction, float64, error) {
	num := func(name string) (float64, error) {
		v, err := strconv.ParseFloat(rec[col[name]], 64)
		if err != nil {
			return 0, fmt.Errorf("column %s: %w", name, err)
		}
		if round32 {
			v = float64(float32(v))
		}
		return v, nil
	}

	var tx transaction.Transaction
	var err error
	if tx.Step, err = strconv.Atoi(rec[col["step"]]); err != nil {
		return tx, 0, fmt.Errorf("column step: %w", err)
	}
	tx.Type = rec[col["type"]]
	tx.NameOrig = rec[col["nameOrig"]]
	tx.NameDest = rec[col["nameDest"]]
	if tx.Amount, err = num("amount"); err != nil {
		return tx, 0, err
	}
	if tx.OldBalanceOrig, err = num("oldbalanceOrg"); err != nil {
		return tx, 0, err
	}
	if tx.NewBalanceOrig, err = num("newbalanceOrig"); err != nil {
		return tx, 0, err
	}
	if tx.OldBalanceDest, err = num("oldbalanceDest"); err != nil {
		return tx, 0, err
	}
	if tx.NewBalanceDest, err = num("newbalanceDest"); err != nil {
		return tx, 0, err
	}

	label, err := strconv.ParseFloat(rec[col["isFraud"]], 64)
	if err != nil {
		return tx, 0, fmt.Errorf("column isFraud: %w", err)
	}
	if math.IsNaN(label) || (label != 0 && label != 1) {
		return tx, 0, fmt.Errorf("column isFraud: label %v is not 0 or 1", label)
	}
	return tx, label, nil
}
