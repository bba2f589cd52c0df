/*
lifecycle.go - Create, update and delete orchestration

PURPOSE:
  The only writer of ledger rows. Validates input, expands the schedule
  and replaces the instrument's rows inside one transaction.

STATE MACHINE (per instrument):
  Draft -> Expanded -> Persisted      Create
  Persisted -> Persisted              Update (re-expand, replace)
  Persisted -> Deleted                DeleteByReference (terminal)

FAILURE BEHAVIOR:
  Validation and expansion run before the transaction opens, so a bad
  request never touches the store. A store failure inside WithTx rolls
  back; readers see either the old row set or the new one.

SEE ALSO:
  - expand.go: Schedule expansion
  - store.go: ReplaceRows / WithTx contracts
*/
package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type Controller struct {
	Store   TxStore
	Tracker *Tracker
	Log     zerolog.Logger

	// NewID assigns instrument ids. Defaults to random UUIDs.
	NewID func() InstrumentID
}

func NewController(store TxStore, tracker *Tracker, log zerolog.Logger) *Controller {
	return &Controller{
		Store:   store,
		Tracker: tracker,
		Log:     log,
		NewID:   func() InstrumentID { return InstrumentID(uuid.NewString()) },
	}
}

// Create persists a new instrument under a fresh id.
// An empty reference name defaults to INV-<unix seconds>.
func (c *Controller) Create(ctx context.Context, in Instrument) (Instrument, []Row, error) {
	if strings.TrimSpace(in.Reference) == "" {
		in.Reference = fmt.Sprintf("INV-%d", c.Tracker.Now().Unix())
	}
	in.ID = c.NewID()
	if in.AccountType.IsSavings() {
		in.Status = StatusOpen
	}

	rows, err := c.persist(ctx, in, false)
	if err != nil {
		return Instrument{}, nil, err
	}
	c.Log.Info().
		Str("instrument_id", string(in.ID)).
		Str("reference", in.Reference).
		Str("account_type", string(in.AccountType)).
		Int("rows", len(rows)).
		Msg("instrument created")
	return in, rows, nil
}

// Update regenerates and fully replaces the row set of id.
func (c *Controller) Update(ctx context.Context, id InstrumentID, in Instrument) ([]Row, error) {
	in.ID = id
	rows, err := c.persist(ctx, in, true)
	if err != nil {
		return nil, err
	}
	c.Log.Info().
		Str("instrument_id", string(id)).
		Str("reference", in.Reference).
		Int("rows", len(rows)).
		Msg("instrument updated")
	return rows, nil
}

func (c *Controller) persist(ctx context.Context, in Instrument, mustExist bool) ([]Row, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	rows, err := Expand(in)
	if err != nil {
		return nil, err
	}

	err = c.Store.WithTx(ctx, func(s Store) error {
		if mustExist {
			existing, err := s.FindByInstrument(ctx, in.ID)
			if err != nil {
				return err
			}
			if len(existing) == 0 {
				return fmt.Errorf("%w: %s", ErrInstrumentNotFound, in.ID)
			}
		}
		return s.ReplaceRows(ctx, in.ID, rows)
	})
	if err != nil {
		c.Log.Warn().Err(err).Str("instrument_id", string(in.ID)).Msg("replace rows failed")
		return nil, WrapStore("replace rows", err)
	}

	// A freshly persisted instrument may already be past maturity. The rows
	// are committed at this point; the next read path retries the refresh.
	if _, err := c.Tracker.Refresh(ctx); err != nil {
		c.Log.Warn().Err(err).Str("instrument_id", string(in.ID)).Msg("status refresh after write failed")
	}
	return rows, nil
}

// DeleteByReference removes every row of the logical instrument.
func (c *Controller) DeleteByReference(ctx context.Context, reference string) (int, error) {
	if strings.TrimSpace(reference) == "" {
		return 0, &ValidationError{Field: "reference_name", Reason: "required"}
	}
	var n int
	err := c.Store.WithTx(ctx, func(s Store) error {
		var err error
		n, err = s.DeleteByReference(ctx, reference)
		return err
	})
	if err != nil {
		return 0, WrapStore("delete by reference", err)
	}
	c.Log.Info().Str("reference", reference).Int("rows", n).Msg("instrument deleted")
	return n, nil
}

// =============================================================================
// READ PATHS - refresh statuses first
// =============================================================================

// Find returns the current rows of one instrument.
func (c *Controller) Find(ctx context.Context, id InstrumentID) ([]Row, error) {
	if _, err := c.Tracker.Refresh(ctx); err != nil {
		return nil, err
	}
	rows, err := c.Store.FindByInstrument(ctx, id)
	if err != nil {
		return nil, WrapStore("find", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrInstrumentNotFound, id)
	}
	return rows, nil
}

// Query returns filtered rows; an empty filter yields none.
func (c *Controller) Query(ctx context.Context, f Filter) ([]Row, error) {
	if f.IsEmpty() {
		return nil, nil
	}
	if _, err := c.Tracker.Refresh(ctx); err != nil {
		return nil, err
	}
	rows, err := c.Store.Query(ctx, f)
	return rows, WrapStore("query", err)
}

// Snapshot returns every row; used by exports without a filter.
func (c *Controller) Snapshot(ctx context.Context) ([]Row, error) {
	if _, err := c.Tracker.Refresh(ctx); err != nil {
		return nil, err
	}
	rows, err := c.Store.Scan(ctx)
	return rows, WrapStore("scan", err)
}

// InstrumentFromRows rebuilds the editable form of an instrument from its
// rows: descriptive fields from the first row, monthly inputs from the
// start year. The RD increment is recovered from consecutive months.
func InstrumentFromRows(rows []Row) (Instrument, bool) {
	if len(rows) == 0 {
		return Instrument{}, false
	}
	first := rows[0]
	in := Instrument{
		ID:             first.InstrumentID,
		Reference:      first.Reference,
		Bank:           first.Bank,
		AccountType:    first.AccountType,
		Classification: first.Classification,
		Status:         first.Status,
		StartYear:      first.Year,
		MaturityDate:   first.MaturityDate,
		Note:           first.Note,
	}
	for _, r := range rows {
		if r.Year < in.StartYear {
			first, in.StartYear = r, r.Year
		}
	}

	if !in.AccountType.Scheduled() {
		for i, v := range first.Months {
			in.Months[i] = v.String()
		}
		return in, true
	}

	for i, v := range first.Months {
		if !v.IsPositive() {
			continue
		}
		in.Months[i] = v.String()
		if in.AccountType.IsRecurring() {
			if next, ok := valueAfter(rows, first.Year, i); ok {
				in.Increment = next.Sub(v).String()
			}
		}
		break
	}
	return in, true
}

func valueAfter(rows []Row, year, idx int) (decimal.Decimal, bool) {
	y, i := year, idx+1
	if i == 12 {
		y, i = year+1, 0
	}
	for _, r := range rows {
		if r.Year == y && r.Months[i].IsPositive() {
			return r.Months[i], true
		}
	}
	return decimal.Zero, false
}
