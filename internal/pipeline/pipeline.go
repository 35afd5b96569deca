// Package pipeline implements the fitted preprocessing step between
// engineered feature rows and the numeric matrix the model sees: numeric
// standardization with statistics frozen at fit time, and one-hot encoding
// with a frozen vocabulary. A fitted pipeline is immutable; it is fitted
// once by the trainer and shared read-only at inference.
package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"trustnet/internal/features"
)

// ErrEmptyFit is returned when Fit is called with no rows.
var ErrEmptyFit = errors.New("pipeline: cannot fit on empty input")

// SchemaError reports a row that does not match the fitted schema. Missing
// numeric columns must fail loudly; silently defaulting them would poison
// every probability downstream.
type SchemaError struct {
	Column string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("pipeline schema violation: column %s: %s", e.Column, e.Reason)
}

// Fitted is a frozen preprocessing pipeline. All fields are exported for
// JSON artifact persistence but must not be mutated after Fit.
type Fitted struct {
	NumericCols     []string   `json:"numeric_cols"`
	CategoricalCols []string   `json:"categorical_cols"`
	Means           []float64  `json:"means"`
	Scales          []float64  `json:"scales"`
	Vocabs          [][]string `json:"vocabs"`
	Passthrough     bool       `json:"passthrough,omitempty"`
}

// Fit computes per-numeric-column mean/scale and per-categorical-column
// vocabulary over the training rows.
func Fit(rows []features.Row) (*Fitted, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyFit
	}

	numCols := features.NumericColumns()
	catCols := features.CategoricalColumns()
	for i, row := range rows {
		if len(row.Numeric) != len(numCols) {
			return nil, &SchemaError{Column: "numeric", Reason: fmt.Sprintf("row %d has %d values, want %d", i, len(row.Numeric), len(numCols))}
		}
		if len(row.Categorical) != len(catCols) {
			return nil, &SchemaError{Column: "categorical", Reason: fmt.Sprintf("row %d has %d values, want %d", i, len(row.Categorical), len(catCols))}
		}
	}

	n := float64(len(rows))
	means := make([]float64, len(numCols))
	scales := make([]float64, len(numCols))
	for j := range numCols {
		var sum float64
		for _, row := range rows {
			sum += row.Numeric[j]
		}
		mean := sum / n
		var ss float64
		for _, row := range rows {
			d := row.Numeric[j] - mean
			ss += d * d
		}
		scale := math.Sqrt(ss / n)
		if scale == 0 {
			scale = 1 // constant column passes through centered
		}
		means[j] = mean
		scales[j] = scale
	}

	vocabs := make([][]string, len(catCols))
	for j := range catCols {
		seen := make(map[string]struct{})
		for _, row := range rows {
			seen[row.Categorical[j]] = struct{}{}
		}
		vocab := make([]string, 0, len(seen))
		for v := range seen {
			vocab = append(vocab, v)
		}
		sort.Strings(vocab)
		vocabs[j] = vocab
	}

	return &Fitted{
		NumericCols:     numCols,
		CategoricalCols: catCols,
		Means:           means,
		Scales:          scales,
		Vocabs:          vocabs,
	}, nil
}

// Passthrough returns a degraded-mode pipeline that emits the numeric
// values untouched and drops categoricals. Used only when the real fitted
// artifact cannot be loaded.
func Passthrough() *Fitted {
	return &Fitted{
		NumericCols:     features.NumericColumns(),
		CategoricalCols: features.CategoricalColumns(),
		Passthrough:     true,
	}
}

// Width is the length of the vector Transform produces.
func (f *Fitted) Width() int {
	if f.Passthrough {
		return len(f.NumericCols)
	}
	w := len(f.NumericCols)
	for _, v := range f.Vocabs {
		w += len(v)
	}
	return w
}

// OutputNames returns one name per output vector position, used to label
// explanation entries.
func (f *Fitted) OutputNames() []string {
	names := make([]string, 0, f.Width())
	names = append(names, f.NumericCols...)
	if f.Passthrough {
		return names
	}
	for j, col := range f.CategoricalCols {
		for _, v := range f.Vocabs[j] {
			names = append(names, col+"="+v)
		}
	}
	return names
}

// Transform maps one engineered row onto the numeric vector. Unknown
// categorical values encode as an all-zero block; a numeric schema
// mismatch is a hard SchemaError.
func (f *Fitted) Transform(row features.Row) ([]float64, error) {
	if len(row.Numeric) != len(f.NumericCols) {
		return nil, &SchemaError{Column: "numeric", Reason: fmt.Sprintf("got %d values, want %d", len(row.Numeric), len(f.NumericCols))}
	}
	for j, v := range row.Numeric {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &SchemaError{Column: f.NumericCols[j], Reason: fmt.Sprintf("not finite: %v", v)}
		}
	}

	out := make([]float64, 0, f.Width())
	if f.Passthrough {
		out = append(out, row.Numeric...)
		return out, nil
	}

	if len(row.Categorical) != len(f.CategoricalCols) {
		return nil, &SchemaError{Column: "categorical", Reason: fmt.Sprintf("got %d values, want %d", len(row.Categorical), len(f.CategoricalCols))}
	}

	for j, v := range row.Numeric {
		out = append(out, (v-f.Means[j])/f.Scales[j])
	}
	for j, val := range row.Categorical {
		block := make([]float64, len(f.Vocabs[j]))
		for k, known := range f.Vocabs[j] {
			if val == known {
				block[k] = 1
				break
			}
		}
		out = append(out, block...)
	}
	return out, nil
}

// TransformAll transforms a batch of rows into a dense matrix.
func (f *Fitted) TransformAll(rows []features.Row) ([][]float64, error) {
	out := make([][]float64, 0, len(rows))
	for i, row := range rows {
		vec, err := f.Transform(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, vec)
	}
	return out, nil
}

// Save writes the fitted pipeline as a JSON artifact.
func (f *Fitted) Save(path string) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal pipeline: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Load reads a fitted pipeline artifact and checks it against the current
// feature schema so a stale artifact fails at load, not at scoring time.
func Load(path string) (*Fitted, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline artifact: %w", err)
	}
	var f Fitted
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse pipeline artifact: %w", err)
	}
	if !equalStrings(f.NumericCols, features.NumericColumns()) || !equalStrings(f.CategoricalCols, features.CategoricalColumns()) {
		return nil, &SchemaError{Column: "schema", Reason: "artifact columns do not match the current feature schema"}
	}
	return &f, nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
