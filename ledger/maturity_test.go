package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/instrument-ledger/ledger"
	"github.com/warp/instrument-ledger/ledger/store"
)

func fixedClock(y int, m time.Month, d int) func() time.Time {
	return func() time.Time { return time.Date(y, m, d, 10, 30, 0, 0, time.Local) }
}

func seed(t *testing.T, s ledger.Store, id ledger.InstrumentID, rows ...ledger.Row) {
	t.Helper()
	require.NoError(t, s.ReplaceRows(context.Background(), id, rows))
}

func withMaturity(r ledger.Row, y, m, d int) ledger.Row {
	r.MaturityDate = date(y, m, d)
	return r
}

// =============================================================================
// STATUS REFRESH
// =============================================================================

func TestRefresh_ClosesYesterdaysMaturity(t *testing.T) {
	// GIVEN: An FD whose maturity was yesterday, still Open
	ctx := context.Background()
	mem := store.NewTxMemory()
	base := row("FD-1", "HDFC", ledger.AccountFD, ledger.ClassInvested, ledger.StatusOpen, 2023, 5000)
	seed(t, mem, "fd-1",
		withMaturity(base, 2024, 6, 15),
		withMaturity(func() ledger.Row { r := base; r.Year = 2024; return r }(), 2024, 6, 15),
	)
	tracker := ledger.NewTracker(mem)
	tracker.Now = fixedClock(2024, time.June, 16)

	// WHEN: Refreshing
	n, err := tracker.Refresh(ctx)
	require.NoError(t, err)

	// THEN: Both rows close
	assert.Equal(t, 2, n)
	rows, err := mem.FindByInstrument(ctx, "fd-1")
	require.NoError(t, err)
	for _, r := range rows {
		assert.Equal(t, ledger.StatusClosed, r.Status)
	}

	// AND: A second refresh changes nothing
	n, err = tracker.Refresh(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRefresh_MaturityTodayStaysOpen(t *testing.T) {
	ctx := context.Background()
	mem := store.NewTxMemory()
	seed(t, mem, "fd-1", withMaturity(row("FD-1", "HDFC", ledger.AccountFD, ledger.ClassInvested, ledger.StatusOpen, 2024, 1), 2024, 6, 15))
	tracker := ledger.NewTracker(mem)
	tracker.Now = fixedClock(2024, time.June, 15)

	n, err := tracker.Refresh(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	rows, _ := mem.FindByInstrument(ctx, "fd-1")
	assert.Equal(t, ledger.StatusOpen, rows[0].Status)
}

func TestRefresh_NoMaturityNeverCloses(t *testing.T) {
	ctx := context.Background()
	mem := store.NewTxMemory()
	seed(t, mem, "sav-1", row("SAV-1", "SBI", ledger.AccountSavings, ledger.ClassSaving, ledger.StatusOpen, 2001, 1))
	tracker := ledger.NewTracker(mem)
	tracker.Now = fixedClock(2030, time.January, 1)

	n, err := tracker.Refresh(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRefresh_ClosedNeverReopens(t *testing.T) {
	// GIVEN: A manually closed instrument maturing in the future
	ctx := context.Background()
	mem := store.NewTxMemory()
	seed(t, mem, "fd-1", withMaturity(row("FD-1", "HDFC", ledger.AccountFD, ledger.ClassInvested, ledger.StatusClosed, 2024, 1), 2030, 1, 1))
	tracker := ledger.NewTracker(mem)
	tracker.Now = fixedClock(2024, time.June, 1)

	_, err := tracker.Refresh(ctx)
	require.NoError(t, err)

	rows, _ := mem.FindByInstrument(ctx, "fd-1")
	assert.Equal(t, ledger.StatusClosed, rows[0].Status)
}

// =============================================================================
// UPCOMING
// =============================================================================

func TestUpcoming_OrderedLimitedOnePerReference(t *testing.T) {
	// GIVEN: Five references, one already matured, one spanning two rows
	mem := store.NewTxMemory()
	mk := func(ref string, y, m, d int) ledger.Row {
		return withMaturity(row(ref, "HDFC", ledger.AccountFD, ledger.ClassInvested, ledger.StatusOpen, 2024, 1), y, m, d)
	}
	seed(t, mem, "a", mk("A", 2024, 9, 1))
	seed(t, mem, "b", mk("B", 2024, 7, 1), func() ledger.Row { r := mk("B", 2024, 7, 1); r.Year = 2023; return r }())
	seed(t, mem, "c", mk("C", 2025, 1, 31))
	seed(t, mem, "d", mk("D", 2024, 6, 10))
	seed(t, mem, "e", mk("E", 2024, 6, 15))
	seed(t, mem, "f", mk("F", 2026, 3, 3))

	tracker := ledger.NewTracker(mem)
	tracker.Now = fixedClock(2024, time.June, 15)

	// WHEN: Asking for the default number
	got, err := tracker.Upcoming(context.Background(), 0)
	require.NoError(t, err)

	// THEN: Four soonest, today included, matured excluded
	require.Len(t, got, ledger.DefaultUpcomingLimit)
	var refs []string
	for _, m := range got {
		refs = append(refs, m.Reference)
	}
	assert.Equal(t, []string{"E", "B", "A", "C"}, refs)
	assert.Equal(t, "15Jun24", got[0].Display)
	assert.Equal(t, "31Jan25", got[3].Display)
	assert.Equal(t, date(2024, 7, 1), got[1].Date)
}

func TestUpcoming_TiesBreakByReference(t *testing.T) {
	mem := store.NewTxMemory()
	for _, ref := range []string{"Z", "M", "A"} {
		seed(t, mem, ledger.InstrumentID(ref),
			withMaturity(row(ref, "SBI", ledger.AccountRD, ledger.ClassInvested, ledger.StatusOpen, 2024, 1), 2024, 12, 1))
	}
	tracker := ledger.NewTracker(mem)
	tracker.Now = fixedClock(2024, time.January, 1)

	got, err := tracker.Upcoming(context.Background(), 10)
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, "A", got[0].Reference)
	assert.Equal(t, "M", got[1].Reference)
	assert.Equal(t, "Z", got[2].Reference)
	assert.Equal(t, ledger.AccountRD, got[0].AccountType)
	assert.Equal(t, "SBI", got[0].Bank)
}

func TestUpcoming_Empty(t *testing.T) {
	tracker := ledger.NewTracker(store.NewTxMemory())

	got, err := tracker.Upcoming(context.Background(), 3)

	require.NoError(t, err)
	assert.Empty(t, got)
}
