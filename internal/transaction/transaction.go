// Package transaction defines the typed transaction schema accepted by the
// scoring service. All boundary validation happens here: anything that
// survives Validate is safe to hand to the feature engineer.
package transaction

import (
	"fmt"
	"strings"
)

// Type is the transaction type enum. Unknown values are rejected at the
// boundary, never mapped onto a known type.
type Type string

const (
	Payment  Type = "PAYMENT"
	Transfer Type = "TRANSFER"
	CashOut  Type = "CASH_OUT"
	Debit    Type = "DEBIT"
	CashIn   Type = "CASH_IN"
)

// Types lists all valid transaction types in canonical order.
func Types() []Type {
	return []Type{Payment, Transfer, CashOut, Debit, CashIn}
}

// ParseType normalizes a raw type string (trim + upper-case) and returns the
// matching Type, or a ValidationError for anything outside the enum.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case Payment, Transfer, CashOut, Debit, CashIn:
		return t, nil
	}
	return "", &ValidationError{Field: "type", Reason: fmt.Sprintf("unsupported transaction type %q", s)}
}

// Transaction is a single raw transaction record as received on the wire.
// Field names follow the PaySim column naming, including its oldbalanceOrg
// quirk.
type Transaction struct {
	Step           int     `json:"step,omitempty"`
	Type           string  `json:"type"`
	Amount         float64 `json:"amount"`
	NameOrig       string  `json:"nameOrig"`
	OldBalanceOrig float64 `json:"oldbalanceOrg"`
	NewBalanceOrig float64 `json:"newbalanceOrig"`
	NameDest       string  `json:"nameDest"`
	OldBalanceDest float64 `json:"oldbalanceDest"`
	NewBalanceDest float64 `json:"newbalanceDest"`
}

// ValidationError reports a malformed or out-of-range input field. It is
// returned to the caller as a structured rejection and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid transaction: field %s: %s", e.Field, e.Reason)
}

// Validate checks the record against the schema invariants. The type check
// runs first so an unsupported type is rejected before anything else looks
// at the record.
func (t *Transaction) Validate() error {
	if _, err := ParseType(t.Type); err != nil {
		return err
	}
	if t.Amount <= 0 || t.Amount != t.Amount {
		return &ValidationError{Field: "amount", Reason: fmt.Sprintf("must be positive, got %v", t.Amount)}
	}
	if t.NameOrig == "" {
		return &ValidationError{Field: "nameOrig", Reason: "must not be empty"}
	}
	if t.NameDest == "" {
		return &ValidationError{Field: "nameDest", Reason: "must not be empty"}
	}
	balances := []struct {
		name  string
		value float64
	}{
		{"oldbalanceOrg", t.OldBalanceOrig},
		{"newbalanceOrig", t.NewBalanceOrig},
		{"oldbalanceDest", t.OldBalanceDest},
		{"newbalanceDest", t.NewBalanceDest},
	}
	for _, b := range balances {
		if b.value < 0 {
			return &ValidationError{Field: b.name, Reason: fmt.Sprintf("must be non-negative, got %v", b.value)}
		}
		if b.value != b.value {
			return &ValidationError{Field: b.name, Reason: "must not be NaN"}
		}
	}
	return nil
}

// Normalize canonicalizes the mutable parts of the record in place
// (currently just the type casing) so downstream code sees one spelling.
func (t *Transaction) Normalize() {
	t.Type = strings.ToUpper(strings.TrimSpace(t.Type))
}
