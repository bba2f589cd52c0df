package ledger

import (
	"context"
	"sort"
	"time"

	"cloud.google.com/go/civil"
)

// =============================================================================
// MATURITY TRACKER
// =============================================================================

// DisplayDateFormat renders maturities like "15Jun24".
const DisplayDateFormat = "02Jan06"

// DefaultUpcomingLimit is the number of maturities shown by default.
const DefaultUpcomingLimit = 4

// Tracker derives Closed status from the clock and lists upcoming maturities.
// Status transitions are applied lazily by read paths, never on a timer.
type Tracker struct {
	Store Store
	Now   func() time.Time
}

func NewTracker(store Store) *Tracker {
	return &Tracker{Store: store, Now: time.Now}
}

// Today is the current civil date according to the tracker clock.
func (t *Tracker) Today() civil.Date {
	return civil.DateOf(t.Now())
}

// Refresh closes every Open row whose maturity date is strictly in the past.
// Idempotent; Closed never reverts.
func (t *Tracker) Refresh(ctx context.Context) (int, error) {
	n, err := t.Store.CloseExpired(ctx, t.Today())
	return n, WrapStore("close expired", err)
}

// Maturity is the earliest upcoming maturity of one reference.
type Maturity struct {
	Reference   string
	Bank        string
	AccountType AccountType
	Date        civil.Date
	Display     string
}

// Upcoming returns the soonest maturities on or after today, one per
// reference, ascending. limit <= 0 uses DefaultUpcomingLimit.
func (t *Tracker) Upcoming(ctx context.Context, limit int) ([]Maturity, error) {
	if limit <= 0 {
		limit = DefaultUpcomingLimit
	}
	rows, err := t.Store.Scan(ctx)
	if err != nil {
		return nil, WrapStore("scan", err)
	}
	return upcoming(rows, t.Today(), limit), nil
}

func upcoming(rows []Row, today civil.Date, limit int) []Maturity {
	earliest := make(map[string]Maturity)
	for _, r := range rows {
		if !r.HasMaturity() || r.MaturityDate.Before(today) {
			continue
		}
		if cur, ok := earliest[r.Reference]; ok && !r.MaturityDate.Before(cur.Date) {
			continue
		}
		earliest[r.Reference] = Maturity{
			Reference:   r.Reference,
			Bank:        r.Bank,
			AccountType: r.AccountType,
			Date:        r.MaturityDate,
		}
	}

	out := make([]Maturity, 0, len(earliest))
	for _, m := range earliest {
		m.Display = m.Date.In(time.UTC).Format(DisplayDateFormat)
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Reference < out[j].Reference
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
