/*
Package ledger provides the instrument schedule engine.

PURPOSE:
  Turns one user-entered instrument (a starting value, a start month, a
  maturity date and, for recurring deposits, a monthly increment) into a
  dense ledger of per-year rows carrying twelve monthly values. Every
  report is a fold over those rows.

KEY CONCEPTS IN THIS FILE (types.go):
  - Instrument: the compact user-facing description, never persisted as-is
  - Row: one (instrument, year) ledger row with twelve monthly values
  - Months: fixed [12] array indexed January=0 .. December=11
  - AccountType / Classification / Status: the descriptive vocabulary

DESIGN PRINCIPLES:
  1. Denormalized rows: every descriptive field is copied onto each row so
     aggregation never needs a join
  2. Precision: monthly values use decimal.Decimal
  3. Tolerance: malformed numeric text is "no value entered", never an error

SEE ALSO:
  - expand.go: Instrument -> []Row
  - store.go: Persistence contracts
  - aggregate.go: Folds over rows
*/
package ledger

import (
	"math"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// =============================================================================
// VOCABULARY
// =============================================================================

type AccountType string

const (
	AccountRD      AccountType = "RD"
	AccountFD      AccountType = "FD"
	AccountNSC     AccountType = "NSC"
	AccountSavings AccountType = "Savings"
)

// IsRecurring reports whether the value grows by a fixed increment each month.
func (a AccountType) IsRecurring() bool { return a == AccountRD }

// IsFixedTerm reports whether the value is held constant until maturity.
func (a AccountType) IsFixedTerm() bool { return a == AccountFD || a == AccountNSC }

// IsSavings matches case-insensitively; forms submit "savings" too.
func (a AccountType) IsSavings() bool { return strings.EqualFold(string(a), string(AccountSavings)) }

// Scheduled instruments span years and need a maturity date.
func (a AccountType) Scheduled() bool { return a.IsRecurring() || a.IsFixedTerm() }

type Classification string

const (
	ClassSaving   Classification = "Saving"
	ClassInvested Classification = "Invested"
)

type Status string

const (
	StatusOpen   Status = "Open"
	StatusClosed Status = "Closed"
)

// =============================================================================
// MONTHS
// =============================================================================

// MonthNames are the column/display names. Never used as keys internally.
var MonthNames = [12]string{"jan", "feb", "mar", "apr", "may", "jun", "jul", "aug", "sep", "oct", "nov", "dec"}

// Months holds one value per calendar month, January at index 0.
type Months [12]decimal.Decimal

// MonthIndex converts a time.Month to its slot.
func MonthIndex(m time.Month) int { return int(m) - 1 }

func (m Months) Total() decimal.Decimal {
	total := decimal.Zero
	for _, v := range m {
		total = total.Add(v)
	}
	return total
}

func (m Months) IsZero() bool {
	for _, v := range m {
		if !v.IsZero() {
			return false
		}
	}
	return true
}

func (m Months) Add(o Months) Months {
	var out Months
	for i := range m {
		out[i] = m[i].Add(o[i])
	}
	return out
}

// Equal compares numerically, so 1000 and 1000.00 are equal.
func (m Months) Equal(o Months) bool {
	for i := range m {
		if !m[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

// ParseAmount coerces raw numeric text. Anything unparsable, or outside
// float64 range, is zero.
func ParseAmount(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	// Bound the magnitude before Float64, which materializes 10^exp.
	if d.Exponent() < -400 || int(d.Exponent())+d.NumDigits() > 310 {
		return decimal.Zero
	}
	if f, _ := d.Float64(); math.IsInf(f, 0) {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// INSTRUMENT / ROW
// =============================================================================

type InstrumentID string

// Instrument is the user-facing input. Numeric slots stay raw text until
// expansion so the tolerance policy lives in one place.
type Instrument struct {
	ID             InstrumentID
	Reference      string
	Bank           string
	AccountType    AccountType
	Classification Classification
	Status         Status
	StartYear      int
	MaturityDate   civil.Date // zero value = open-ended
	Months         [12]string
	Increment      string // RD only
	Note           string
}

// HasMaturity reports whether a maturity date was supplied.
func (in Instrument) HasMaturity() bool { return !in.MaturityDate.IsZero() }

// Row is one persisted (instrument, year) ledger row.
type Row struct {
	// Seq is the store-assigned row identity, increasing with insertion.
	// Zero until persisted.
	Seq            int64
	InstrumentID   InstrumentID
	Year           int
	Reference      string
	Bank           string
	AccountType    AccountType
	Classification Classification
	Status         Status
	MaturityDate   civil.Date
	Note           string
	Months         Months
}

func (r Row) HasMaturity() bool { return !r.MaturityDate.IsZero() }

// FormatDate renders a civil date as stored, empty for the zero date.
func FormatDate(d civil.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}

// ParseDate accepts YYYY-MM-DD; empty input is the zero date.
func ParseDate(field, s string) (civil.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return civil.Date{}, nil
	}
	d, err := civil.ParseDate(s)
	if err != nil {
		return civil.Date{}, &ValidationError{Field: field, Reason: "want YYYY-MM-DD, got " + s}
	}
	return d, nil
}
