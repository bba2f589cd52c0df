/*
expand.go - Schedule expansion: one Instrument into per-year ledger rows

PURPOSE:
  Pure, deterministic translation of a compact instrument description
  into dense Rows. No I/O, no clock.

DISPATCH BY ACCOUNT TYPE:
  RD (recurring):
    Start at the first nonzero month of StartYear. Walk month by month
    while the first day of the month is on or before the maturity date,
    adding Increment to the value at each step. Years that receive no
    value are omitted.

  FD / NSC (fixed-term):
    The starting value is held constant from the start month through the
    maturity month inclusive. One row per covered year.

  Savings and anything else:
    The twelve raw values become a single row for StartYear. Savings
    never auto-close, so their status is forced to Open.

EXAMPLE:
  RD 1000 in jan 2023, increment 100, maturity 2023-04-30:
    2023: jan=1000 feb=1100 mar=1200 apr=1300, rest 0

  FD 5000 in jun 2023, maturity 2024-02-28:
    2023: jun..dec = 5000
    2024: jan..feb = 5000

SEE ALSO:
  - types.go: ParseAmount tolerance policy
  - lifecycle.go: Persists the expansion
*/
package ledger

import (
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Expand turns an instrument into its ledger rows.
// A scheduled instrument with no nonzero month yields no rows and no error.
func Expand(in Instrument) ([]Row, error) {
	values, err := parseMonths(in.Months)
	if err != nil {
		return nil, err
	}

	if in.AccountType.IsSavings() || !in.AccountType.Scheduled() {
		return expandSingle(in, values), nil
	}

	if !in.HasMaturity() {
		return nil, &ValidationError{Field: "maturity_date", Reason: "required for " + string(in.AccountType)}
	}

	startMonth, startValue, ok := firstNonZero(values)
	if !ok {
		return nil, nil
	}

	start := civil.Date{Year: in.StartYear, Month: time.Month(startMonth), Day: 1}
	if in.MaturityDate.Before(start) {
		return nil, &ScheduleError{
			AccountType: in.AccountType,
			StartYear:   in.StartYear,
			StartMonth:  startMonth,
			Maturity:    in.MaturityDate.String(),
		}
	}

	if in.AccountType.IsRecurring() {
		increment := ParseAmount(in.Increment)
		if increment.IsNegative() {
			return nil, &ValidationError{Field: "increment", Reason: "must not be negative"}
		}
		return expandRecurring(in, start, startValue, increment), nil
	}
	return expandFixed(in, start, startValue), nil
}

func parseMonths(raw [12]string) (Months, error) {
	var m Months
	for i, s := range raw {
		v := ParseAmount(s)
		if v.IsNegative() {
			return Months{}, &ValidationError{Field: MonthNames[i], Reason: "must not be negative"}
		}
		m[i] = v
	}
	return m, nil
}

// firstNonZero returns the 1-based month and value of the first positive slot.
func firstNonZero(m Months) (int, decimal.Decimal, bool) {
	for i, v := range m {
		if v.IsPositive() {
			return i + 1, v, true
		}
	}
	return 0, decimal.Zero, false
}

func expandRecurring(in Instrument, start civil.Date, value, increment decimal.Decimal) []Row {
	byYear := make(map[int]*Months)
	var years []int

	for cur := start; !cur.After(in.MaturityDate); cur = nextMonth(cur) {
		m, ok := byYear[cur.Year]
		if !ok {
			m = &Months{}
			byYear[cur.Year] = m
			years = append(years, cur.Year)
		}
		m[MonthIndex(cur.Month)] = value
		value = value.Add(increment)
	}

	rows := make([]Row, 0, len(years))
	for _, y := range years {
		rows = append(rows, newRow(in, y, *byYear[y]))
	}
	return rows
}

func expandFixed(in Instrument, start civil.Date, value decimal.Decimal) []Row {
	end := in.MaturityDate
	rows := make([]Row, 0, end.Year-start.Year+1)

	for y := start.Year; y <= end.Year; y++ {
		first, last := 1, 12
		if y == start.Year {
			first = int(start.Month)
		}
		if y == end.Year {
			last = int(end.Month)
		}

		var m Months
		for month := first; month <= last; month++ {
			m[month-1] = value
		}
		rows = append(rows, newRow(in, y, m))
	}
	return rows
}

func expandSingle(in Instrument, values Months) []Row {
	if in.AccountType.IsSavings() {
		in.Status = StatusOpen
	}
	return []Row{newRow(in, in.StartYear, values)}
}

func nextMonth(d civil.Date) civil.Date {
	if d.Month == time.December {
		return civil.Date{Year: d.Year + 1, Month: time.January, Day: 1}
	}
	return civil.Date{Year: d.Year, Month: d.Month + 1, Day: 1}
}

func newRow(in Instrument, year int, m Months) Row {
	return Row{
		InstrumentID:   in.ID,
		Year:           year,
		Reference:      in.Reference,
		Bank:           in.Bank,
		AccountType:    in.AccountType,
		Classification: in.Classification,
		Status:         in.Status,
		MaturityDate:   in.MaturityDate,
		Note:           in.Note,
		Months:         m,
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ParseYear converts a raw year field.
func ParseYear(s string) (int, error) {
	y, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || y < 1900 || y > 9999 {
		return 0, &ValidationError{Field: "year", Reason: "want a four-digit year, got " + strconv.Quote(s)}
	}
	return y, nil
}

// Validate checks required fields before expansion.
func (in Instrument) Validate() error {
	required := []struct {
		field, value string
	}{
		{"reference_name", in.Reference},
		{"bank", in.Bank},
		{"account_type", string(in.AccountType)},
		{"saving_invested", string(in.Classification)},
		{"status", string(in.Status)},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &ValidationError{Field: r.field, Reason: "required"}
		}
	}
	if in.StartYear < 1900 || in.StartYear > 9999 {
		return &ValidationError{Field: "year", Reason: "want a four-digit year, got " + strconv.Itoa(in.StartYear)}
	}
	switch in.Status {
	case StatusOpen, StatusClosed:
	default:
		return &ValidationError{Field: "status", Reason: "must be Open or Closed"}
	}
	switch in.Classification {
	case ClassSaving, ClassInvested:
	default:
		return &ValidationError{Field: "saving_invested", Reason: "must be Saving or Invested"}
	}
	return nil
}
