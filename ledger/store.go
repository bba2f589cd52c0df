/*
store.go - Persistence contracts for ledger rows and option vocabularies

PURPOSE:
  Defines the boundary between the engine and the relational table it
  reads from. The engine never patches a row set: an instrument's rows are
  always replaced as a whole.

KEY INTERFACES:
  Store:       Row persistence (replace, delete-by-reference, lookups)
  TxStore:     Store plus an atomic transaction scope
  OptionStore: bank / account_type vocabularies

REPLACE SEMANTICS:
  ReplaceRows(id, rows) deletes every row of id, then inserts rows. An
  empty rows slice is a pure deletion. Run it inside WithTx so readers
  never observe a half-deleted set.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - ledger/store/memory.go: In-memory for testing

SEE ALSO:
  - lifecycle.go: Wraps ReplaceRows in WithTx
  - maturity.go: CloseExpired
*/
package ledger

import (
	"context"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
)

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	// ReplaceRows deletes all rows of id, then inserts rows.
	ReplaceRows(ctx context.Context, id InstrumentID, rows []Row) error

	// DeleteByReference removes every row sharing the reference name.
	DeleteByReference(ctx context.Context, reference string) (int, error)

	// FindByInstrument returns the rows of one instrument ordered by year.
	FindByInstrument(ctx context.Context, id InstrumentID) ([]Row, error)

	// Query applies a filter. An empty filter returns no rows.
	Query(ctx context.Context, f Filter) ([]Row, error)

	// Scan returns every row ordered by (reference, year).
	Scan(ctx context.Context) ([]Row, error)

	// CloseExpired marks Open rows whose maturity is before today as Closed.
	CloseExpired(ctx context.Context, today civil.Date) (int, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// FILTER
// =============================================================================

// Filter selects rows. Text fields match as case-insensitive substrings;
// maturity bounds are inclusive and exclude rows without a maturity date.
type Filter struct {
	Bank           string
	AccountType    string
	Classification string
	Status         string
	Year           string
	MaturityFrom   civil.Date
	MaturityTo     civil.Date
	UniqueOnly     bool
}

// IsEmpty reports whether no filter field is set.
func (f Filter) IsEmpty() bool {
	return f.Bank == "" && f.AccountType == "" && f.Classification == "" &&
		f.Status == "" && f.Year == "" &&
		f.MaturityFrom.IsZero() && f.MaturityTo.IsZero() && !f.UniqueOnly
}

// Match evaluates the per-row part of the filter. UniqueOnly needs the
// whole table and is applied by the store.
func (f Filter) Match(r Row) bool {
	if !containsFold(r.Bank, f.Bank) ||
		!containsFold(string(r.AccountType), f.AccountType) ||
		!containsFold(string(r.Classification), f.Classification) ||
		!containsFold(string(r.Status), f.Status) ||
		!containsFold(strconv.Itoa(r.Year), f.Year) {
		return false
	}
	if !f.MaturityFrom.IsZero() && (!r.HasMaturity() || r.MaturityDate.Before(f.MaturityFrom)) {
		return false
	}
	if !f.MaturityTo.IsZero() && (!r.HasMaturity() || r.MaturityDate.After(f.MaturityTo)) {
		return false
	}
	return true
}

func containsFold(s, sub string) bool {
	if sub == "" {
		return true
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// =============================================================================
// OPTIONS
// =============================================================================

type OptionKind string

const (
	OptionBank        OptionKind = "bank"
	OptionAccountType OptionKind = "account_type"
)

// ParseOptionKind rejects anything but the two known vocabularies.
func ParseOptionKind(s string) (OptionKind, error) {
	switch k := OptionKind(strings.TrimSpace(s)); k {
	case OptionBank, OptionAccountType:
		return k, nil
	}
	return "", &ValidationError{Field: "kind", Reason: "must be bank or account_type"}
}

type Option struct {
	Kind  OptionKind
	Value string
}

type OptionStore interface {
	// ListOptions returns the values of one kind, sorted.
	ListOptions(ctx context.Context, kind OptionKind) ([]string, error)
	// AllOptions returns every option ordered by kind then value.
	AllOptions(ctx context.Context) ([]Option, error)
	// AddOption inserts a value; existing values are ignored.
	AddOption(ctx context.Context, kind OptionKind, value string) error
	RemoveOption(ctx context.Context, kind OptionKind, value string) error
}
