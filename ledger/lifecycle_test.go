package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/instrument-ledger/ledger"
	"github.com/warp/instrument-ledger/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestController(t *testing.T, s ledger.TxStore) *ledger.Controller {
	t.Helper()
	tracker := ledger.NewTracker(s)
	tracker.Now = fixedClock(2024, time.January, 10)

	c := ledger.NewController(s, tracker, zerolog.Nop())
	n := 0
	c.NewID = func() ledger.InstrumentID {
		n++
		return ledger.InstrumentID(fmt.Sprintf("inst-%d", n))
	}
	return c
}

func rdInstrument(ref string) ledger.Instrument {
	in := instrument(ledger.AccountRD, 2023, months(map[int]string{3: "1000"}), date(2024, 6, 15))
	in.ID = ""
	in.Reference = ref
	in.Increment = "100"
	return in
}

// errInjected fails ReplaceRows after it has already mutated the store.
var errInjected = errors.New("disk full")

type failingTxStore struct {
	*store.TxMemory
}

func (f *failingTxStore) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	return f.TxMemory.WithTx(ctx, func(s ledger.Store) error {
		return fn(&failingReplace{Store: s})
	})
}

type failingReplace struct {
	ledger.Store
}

func (f *failingReplace) ReplaceRows(ctx context.Context, id ledger.InstrumentID, rows []ledger.Row) error {
	if err := f.Store.ReplaceRows(ctx, id, rows); err != nil {
		return err
	}
	return errInjected
}

// errRefresh fails every status refresh.
var errRefresh = errors.New("database is locked")

type failingRefreshStore struct {
	*store.TxMemory
}

func (f *failingRefreshStore) CloseExpired(context.Context, civil.Date) (int, error) {
	return 0, errRefresh
}

// =============================================================================
// CREATE
// =============================================================================

func TestController_Create(t *testing.T) {
	// GIVEN: An RD spanning 2023-2024
	ctx := context.Background()
	c := newTestController(t, store.NewTxMemory())

	// WHEN: Created
	in, rows, err := c.Create(ctx, rdInstrument("RD-1"))
	require.NoError(t, err)

	// THEN: A fresh id is assigned and the rows are persisted under it
	assert.Equal(t, ledger.InstrumentID("inst-1"), in.ID)
	require.Len(t, rows, 2)

	stored, err := c.Find(ctx, in.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, 2023, stored[0].Year)
	assert.Equal(t, 2024, stored[1].Year)
	assert.Positive(t, stored[0].Seq)
	assert.True(t, stored[0].Months.Equal(rows[0].Months))
}

func TestController_Create_DefaultReference(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t, store.NewTxMemory())

	in, _, err := c.Create(ctx, rdInstrument("  "))
	require.NoError(t, err)

	want := fmt.Sprintf("INV-%d", c.Tracker.Now().Unix())
	assert.Equal(t, want, in.Reference)
}

func TestController_Create_PastMaturityClosesImmediately(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t, store.NewTxMemory())
	in := instrument(ledger.AccountFD, 2022, months(map[int]string{1: "100"}), date(2023, 12, 31))
	in.ID = ""

	created, _, err := c.Create(ctx, in)
	require.NoError(t, err)

	rows, err := c.Store.FindByInstrument(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.Equal(t, ledger.StatusClosed, r.Status)
	}
}

func TestController_Create_RefreshFailureStillCommits(t *testing.T) {
	// GIVEN: A store whose status refresh always fails
	ctx := context.Background()
	mem := store.NewTxMemory()
	c := newTestController(t, &failingRefreshStore{TxMemory: mem})

	// WHEN: Creating an instrument
	created, rows, err := c.Create(ctx, rdInstrument("RD-1"))

	// THEN: The committed write is reported as a success
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	stored, err := mem.FindByInstrument(ctx, created.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestController_Create_SavingsReportsOpen(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t, store.NewTxMemory())
	in := instrument(ledger.AccountSavings, 2024, months(map[int]string{1: "100"}), civil.Date{})
	in.ID = ""
	in.Classification = ledger.ClassSaving
	in.Status = ledger.StatusClosed

	created, rows, err := c.Create(ctx, in)

	require.NoError(t, err)
	assert.Equal(t, ledger.StatusOpen, created.Status)
	require.Len(t, rows, 1)
	assert.Equal(t, created.Status, rows[0].Status)
}

func TestController_Create_InvalidTouchesNothing(t *testing.T) {
	ctx := context.Background()
	mem := store.NewTxMemory()
	c := newTestController(t, mem)

	bad := rdInstrument("RD-1")
	bad.MaturityDate = date(2023, 1, 1)

	_, _, err := c.Create(ctx, bad)

	assert.ErrorIs(t, err, ledger.ErrInvalidSchedule)
	all, _ := mem.Scan(ctx)
	assert.Empty(t, all)
}

// =============================================================================
// UPDATE
// =============================================================================

func TestController_Update_ReplacesWholeRowSet(t *testing.T) {
	// GIVEN: An RD with rows in 2023 and 2024
	ctx := context.Background()
	c := newTestController(t, store.NewTxMemory())
	created, _, err := c.Create(ctx, rdInstrument("RD-1"))
	require.NoError(t, err)

	// WHEN: Shortened to mature within 2023
	edit := rdInstrument("RD-1")
	edit.MaturityDate = date(2023, 5, 31)
	rows, err := c.Update(ctx, created.ID, edit)
	require.NoError(t, err)

	// THEN: Exactly the new rows remain; nothing from 2024 lingers
	require.Len(t, rows, 1)
	stored, err := c.Find(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, 2023, stored[0].Year)
	assertMonths(t, [12]float64{0, 0, 1000, 1100, 1200}, stored[0].Months)
}

func TestController_Update_UnknownID(t *testing.T) {
	ctx := context.Background()
	mem := store.NewTxMemory()
	c := newTestController(t, mem)

	_, err := c.Update(ctx, "missing", rdInstrument("RD-1"))

	assert.True(t, ledger.IsNotFound(err))
	all, _ := mem.Scan(ctx)
	assert.Empty(t, all)
}

func TestController_Update_InvalidKeepsOldRows(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t, store.NewTxMemory())
	created, _, err := c.Create(ctx, rdInstrument("RD-1"))
	require.NoError(t, err)

	edit := rdInstrument("RD-1")
	edit.Months = months(map[int]string{3: "-1"})
	_, err = c.Update(ctx, created.ID, edit)
	require.Error(t, err)
	assert.True(t, ledger.IsClientError(err))

	stored, err := c.Find(ctx, created.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestController_Update_StoreFailureRollsBack(t *testing.T) {
	// GIVEN: An instrument persisted through a healthy store
	ctx := context.Background()
	mem := store.NewTxMemory()
	created, _, err := newTestController(t, mem).Create(ctx, rdInstrument("RD-1"))
	require.NoError(t, err)
	before, _ := mem.Scan(ctx)

	// WHEN: The replace fails after deleting and inserting
	c := newTestController(t, &failingTxStore{TxMemory: mem})
	edit := rdInstrument("RD-1")
	edit.MaturityDate = date(2023, 5, 31)
	_, err = c.Update(ctx, created.ID, edit)

	// THEN: The error is a store error and readers see the old row set
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrStore)
	assert.ErrorIs(t, err, errInjected)
	assert.False(t, ledger.IsClientError(err))

	after, _ := mem.Scan(ctx)
	assert.Equal(t, before, after)
}

// =============================================================================
// DELETE
// =============================================================================

func TestController_DeleteByReference_AllInstrumentsSharingName(t *testing.T) {
	ctx := context.Background()
	mem := store.NewTxMemory()
	c := newTestController(t, mem)

	_, _, err := c.Create(ctx, rdInstrument("SHARED"))
	require.NoError(t, err)
	_, _, err = c.Create(ctx, rdInstrument("SHARED"))
	require.NoError(t, err)
	keep, _, err := c.Create(ctx, rdInstrument("OTHER"))
	require.NoError(t, err)

	n, err := c.DeleteByReference(ctx, "SHARED")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	all, _ := mem.Scan(ctx)
	require.Len(t, all, 2)
	for _, r := range all {
		assert.Equal(t, keep.ID, r.InstrumentID)
	}

	_, err = c.Find(ctx, "inst-1")
	assert.True(t, ledger.IsNotFound(err))
}

func TestController_DeleteByReference_Empty(t *testing.T) {
	c := newTestController(t, store.NewTxMemory())

	_, err := c.DeleteByReference(context.Background(), "")

	assert.ErrorIs(t, err, ledger.ErrValidation)
}

// =============================================================================
// QUERY
// =============================================================================

func TestController_Query(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t, store.NewTxMemory())
	_, _, err := c.Create(ctx, rdInstrument("RD-1"))
	require.NoError(t, err)
	fd := instrument(ledger.AccountFD, 2024, months(map[int]string{2: "300"}), date(2025, 2, 1))
	fd.Reference = "FD-1"
	fd.Bank = "SBI"
	_, _, err = c.Create(ctx, fd)
	require.NoError(t, err)

	t.Run("empty filter returns nothing", func(t *testing.T) {
		rows, err := c.Query(ctx, ledger.Filter{})
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("bank substring case-insensitive", func(t *testing.T) {
		rows, err := c.Query(ctx, ledger.Filter{Bank: "sb"})
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "FD-1", rows[0].Reference)
	})

	t.Run("year substring", func(t *testing.T) {
		rows, err := c.Query(ctx, ledger.Filter{Year: "2024"})
		require.NoError(t, err)
		assert.Len(t, rows, 2)
	})

	t.Run("unique only", func(t *testing.T) {
		rows, err := c.Query(ctx, ledger.Filter{UniqueOnly: true})
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, 2023, rows[1].Year)
	})

	t.Run("maturity range", func(t *testing.T) {
		rows, err := c.Query(ctx, ledger.Filter{MaturityFrom: date(2025, 1, 1), MaturityTo: date(2025, 12, 31)})
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "FD-1", rows[0].Reference)
	})

	t.Run("snapshot returns everything", func(t *testing.T) {
		rows, err := c.Snapshot(ctx)
		require.NoError(t, err)
		assert.Len(t, rows, 4)
	})
}
