/*
aggregate.go - Folds over ledger rows for reporting

PURPOSE:
  Every report is a fold over Rows: sums per month, per year, per bank.
  The pure functions take rows; the Aggregator reads them from a Store
  after applying the lazy status transition.

REPORTS:
  MonthlyTotals        12-way elementwise sum of a row set
  GroupedOpenCounts    distinct Open RD/FD/NSC references per (bank, type)
  TotalsByType         distinct Open references per type
  MonthlySeriesByYear  12-way sums per year for Saving or Invested
  BankYearTotals       annual sums per (bank, year) for a classification
  CurrentMonthTotals   this month's value per (bank, year), all rows

SEE ALSO:
  - maturity.go: Refresh runs before every store-backed report
  - api/handlers.go: Dashboard and bank summary endpoints
*/
package ledger

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RESULT TYPES
// =============================================================================

// TypeCount counts distinct references. Bank is empty for all-bank totals.
type TypeCount struct {
	Bank        string
	AccountType AccountType
	Count       int
}

type YearSeries struct {
	Year   int
	Months Months
}

type BankYearTotal struct {
	Bank  string
	Year  int
	Total decimal.Decimal
}

// Dashboard bundles the counts and monthly series.
type Dashboard struct {
	OpenByBank      []TypeCount
	OpenByType      []TypeCount
	SavingsMonthly  []YearSeries
	InvestedMonthly []YearSeries
}

// BankSummary bundles the per-bank annual and current-month totals.
type BankSummary struct {
	Saving   []BankYearTotal
	Invested []BankYearTotal
	Current  []BankYearTotal
}

// =============================================================================
// PURE FOLDS
// =============================================================================

// MonthlyTotals sums the twelve monthly fields across rows.
func MonthlyTotals(rows []Row) Months {
	var total Months
	for _, r := range rows {
		total = total.Add(r.Months)
	}
	return total
}

// MatchesClassification routes Saving to the Savings account type and
// Invested to the Invested classification.
func MatchesClassification(r Row, class Classification) bool {
	if class == ClassSaving {
		return r.AccountType == AccountSavings
	}
	return r.Classification == class
}

func openCounts(rows []Row, byBank bool) []TypeCount {
	type key struct {
		bank string
		typ  AccountType
	}
	refs := make(map[key]map[string]struct{})
	for _, r := range rows {
		if r.Status != StatusOpen {
			continue
		}
		if byBank && !r.AccountType.Scheduled() {
			continue
		}
		k := key{typ: r.AccountType}
		if byBank {
			k.bank = r.Bank
		}
		if refs[k] == nil {
			refs[k] = make(map[string]struct{})
		}
		refs[k][r.Reference] = struct{}{}
	}

	out := make([]TypeCount, 0, len(refs))
	for k, set := range refs {
		out = append(out, TypeCount{Bank: k.bank, AccountType: k.typ, Count: len(set)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Bank != out[j].Bank {
			return out[i].Bank < out[j].Bank
		}
		return out[i].AccountType < out[j].AccountType
	})
	return out
}

// GroupedOpenCounts counts distinct Open RD/FD/NSC references per (bank, type).
func GroupedOpenCounts(rows []Row) []TypeCount { return openCounts(rows, true) }

// TotalsByType counts distinct Open references per type, all banks combined.
func TotalsByType(rows []Row) []TypeCount { return openCounts(rows, false) }

// MonthlySeriesByYear sums matching rows per year, ascending.
func MonthlySeriesByYear(rows []Row, class Classification) []YearSeries {
	byYear := make(map[int]Months)
	for _, r := range rows {
		if MatchesClassification(r, class) {
			byYear[r.Year] = byYear[r.Year].Add(r.Months)
		}
	}
	out := make([]YearSeries, 0, len(byYear))
	for y, m := range byYear {
		out = append(out, YearSeries{Year: y, Months: m})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}

// BankYearTotals sums all twelve months per (bank, year) for rows of class.
func BankYearTotals(rows []Row, class Classification) []BankYearTotal {
	return bankYear(rows, func(r Row) (decimal.Decimal, bool) {
		return r.Months.Total(), r.Classification == class
	})
}

// CurrentMonthTotals sums one month slot per (bank, year) across all rows.
func CurrentMonthTotals(rows []Row, monthIndex int) []BankYearTotal {
	return bankYear(rows, func(r Row) (decimal.Decimal, bool) {
		return r.Months[monthIndex], true
	})
}

func bankYear(rows []Row, value func(Row) (decimal.Decimal, bool)) []BankYearTotal {
	type key struct {
		bank string
		year int
	}
	sums := make(map[key]decimal.Decimal)
	for _, r := range rows {
		v, ok := value(r)
		if !ok {
			continue
		}
		k := key{r.Bank, r.Year}
		sums[k] = sums[k].Add(v)
	}
	out := make([]BankYearTotal, 0, len(sums))
	for k, v := range sums {
		out = append(out, BankYearTotal{Bank: k.bank, Year: k.year, Total: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Bank != out[j].Bank {
			return out[i].Bank < out[j].Bank
		}
		return out[i].Year < out[j].Year
	})
	return out
}

// =============================================================================
// AGGREGATOR - Store-backed reports
// =============================================================================

type Aggregator struct {
	Store   Store
	Tracker *Tracker
}

func NewAggregator(store Store, tracker *Tracker) *Aggregator {
	return &Aggregator{Store: store, Tracker: tracker}
}

func (a *Aggregator) rows(ctx context.Context) ([]Row, error) {
	if _, err := a.Tracker.Refresh(ctx); err != nil {
		return nil, err
	}
	rows, err := a.Store.Scan(ctx)
	return rows, WrapStore("scan", err)
}

func (a *Aggregator) GroupedOpenCounts(ctx context.Context) ([]TypeCount, error) {
	rows, err := a.rows(ctx)
	if err != nil {
		return nil, err
	}
	return GroupedOpenCounts(rows), nil
}

func (a *Aggregator) TotalsByType(ctx context.Context) ([]TypeCount, error) {
	rows, err := a.rows(ctx)
	if err != nil {
		return nil, err
	}
	return TotalsByType(rows), nil
}

func (a *Aggregator) MonthlySeriesByYear(ctx context.Context, class Classification) ([]YearSeries, error) {
	rows, err := a.rows(ctx)
	if err != nil {
		return nil, err
	}
	return MonthlySeriesByYear(rows, class), nil
}

func (a *Aggregator) BankYearTotals(ctx context.Context, class Classification) ([]BankYearTotal, error) {
	rows, err := a.rows(ctx)
	if err != nil {
		return nil, err
	}
	return BankYearTotals(rows, class), nil
}

// CurrentMonthTotals uses the tracker clock to pick the month.
func (a *Aggregator) CurrentMonthTotals(ctx context.Context) ([]BankYearTotal, error) {
	rows, err := a.rows(ctx)
	if err != nil {
		return nil, err
	}
	return CurrentMonthTotals(rows, MonthIndex(a.Tracker.Today().Month)), nil
}

// Dashboard computes all dashboard figures from one consistent scan.
func (a *Aggregator) Dashboard(ctx context.Context) (Dashboard, error) {
	rows, err := a.rows(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	return Dashboard{
		OpenByBank:      GroupedOpenCounts(rows),
		OpenByType:      TotalsByType(rows),
		SavingsMonthly:  MonthlySeriesByYear(rows, ClassSaving),
		InvestedMonthly: MonthlySeriesByYear(rows, ClassInvested),
	}, nil
}

// BankSummary computes all bank figures from one consistent scan.
func (a *Aggregator) BankSummary(ctx context.Context) (BankSummary, error) {
	rows, err := a.rows(ctx)
	if err != nil {
		return BankSummary{}, err
	}
	return BankSummary{
		Saving:   BankYearTotals(rows, ClassSaving),
		Invested: BankYearTotals(rows, ClassInvested),
		Current:  CurrentMonthTotals(rows, MonthIndex(a.Tracker.Today().Month)),
	}, nil
}
