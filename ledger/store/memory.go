// Package store provides in-memory Store implementations.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"cloud.google.com/go/civil"
	"github.com/warp/instrument-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	rows    []ledger.Row // insertion order, Seq ascending
	nextSeq int64
	options map[ledger.OptionKind]map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{
		options: make(map[ledger.OptionKind]map[string]struct{}),
	}
}

func (m *Memory) ReplaceRows(_ context.Context, id ledger.InstrumentID, rows []ledger.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaceLocked(id, rows)
	return nil
}

func (m *Memory) replaceLocked(id ledger.InstrumentID, rows []ledger.Row) {
	m.deleteLocked(func(r ledger.Row) bool { return r.InstrumentID == id })
	for _, r := range rows {
		m.nextSeq++
		r.Seq = m.nextSeq
		r.InstrumentID = id
		m.rows = append(m.rows, r)
	}
}

func (m *Memory) deleteLocked(match func(ledger.Row) bool) int {
	kept := m.rows[:0]
	n := 0
	for _, r := range m.rows {
		if match(r) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	m.rows = kept
	return n
}

func (m *Memory) DeleteByReference(_ context.Context, reference string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteLocked(func(r ledger.Row) bool { return r.Reference == reference }), nil
}

func (m *Memory) FindByInstrument(_ context.Context, id ledger.InstrumentID) ([]ledger.Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findLocked(id), nil
}

func (m *Memory) findLocked(id ledger.InstrumentID) []ledger.Row {
	var out []ledger.Row
	for _, r := range m.rows {
		if r.InstrumentID == id {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}

func (m *Memory) Query(_ context.Context, f ledger.Filter) ([]ledger.Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queryLocked(f), nil
}

func (m *Memory) queryLocked(f ledger.Filter) []ledger.Row {
	if f.IsEmpty() {
		return nil
	}

	var firstSeq map[string]int64
	if f.UniqueOnly {
		firstSeq = make(map[string]int64)
		for _, r := range m.rows {
			if s, ok := firstSeq[r.Reference]; !ok || r.Seq < s {
				firstSeq[r.Reference] = r.Seq
			}
		}
	}

	var out []ledger.Row
	for _, r := range m.rows {
		if !f.Match(r) {
			continue
		}
		if f.UniqueOnly && firstSeq[r.Reference] != r.Seq {
			continue
		}
		out = append(out, r)
	}
	sortByReferenceYear(out)
	return out
}

func (m *Memory) Scan(_ context.Context) ([]ledger.Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.Row, len(m.rows))
	copy(out, m.rows)
	sortByReferenceYear(out)
	return out, nil
}

func (m *Memory) CloseExpired(_ context.Context, today civil.Date) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeExpiredLocked(today), nil
}

func (m *Memory) closeExpiredLocked(today civil.Date) int {
	n := 0
	for i := range m.rows {
		r := &m.rows[i]
		if r.HasMaturity() && r.MaturityDate.Before(today) && r.Status != ledger.StatusClosed {
			r.Status = ledger.StatusClosed
			n++
		}
	}
	return n
}

func sortByReferenceYear(rows []ledger.Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Reference != rows[j].Reference {
			return rows[i].Reference < rows[j].Reference
		}
		if rows[i].Year != rows[j].Year {
			return rows[i].Year < rows[j].Year
		}
		return rows[i].Seq < rows[j].Seq
	})
}

// =============================================================================
// OPTIONS
// =============================================================================

func (m *Memory) ListOptions(_ context.Context, kind ledger.OptionKind) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.options[kind]))
	for v := range m.options[kind] {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) AllOptions(ctx context.Context) ([]ledger.Option, error) {
	var out []ledger.Option
	for _, kind := range []ledger.OptionKind{ledger.OptionAccountType, ledger.OptionBank} {
		values, _ := m.ListOptions(ctx, kind)
		for _, v := range values {
			out = append(out, ledger.Option{Kind: kind, Value: v})
		}
	}
	return out, nil
}

func (m *Memory) AddOption(_ context.Context, kind ledger.OptionKind, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.options[kind] == nil {
		m.options[kind] = make(map[string]struct{})
	}
	m.options[kind][value] = struct{}{}
	return nil
}

func (m *Memory) RemoveOption(_ context.Context, kind ledger.OptionKind, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.options[kind], value)
	return nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// Readers block on the write lock, so they never see a partial replace.
func (tm *TxMemory) WithTx(_ context.Context, fn func(ledger.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()

	if err := fn(&txMemoryView{parent: tm.Memory}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	rows    []ledger.Row
	nextSeq int64
}

func (tm *TxMemory) snapshot() memorySnapshot {
	return memorySnapshot{rows: append([]ledger.Row(nil), tm.rows...), nextSeq: tm.nextSeq}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.rows = s.rows
	tm.nextSeq = s.nextSeq
}

// txMemoryView operates on the parent while its lock is held.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) ReplaceRows(_ context.Context, id ledger.InstrumentID, rows []ledger.Row) error {
	tv.parent.replaceLocked(id, rows)
	return nil
}

func (tv *txMemoryView) DeleteByReference(_ context.Context, reference string) (int, error) {
	return tv.parent.deleteLocked(func(r ledger.Row) bool { return r.Reference == reference }), nil
}

func (tv *txMemoryView) FindByInstrument(_ context.Context, id ledger.InstrumentID) ([]ledger.Row, error) {
	return tv.parent.findLocked(id), nil
}

func (tv *txMemoryView) Query(_ context.Context, f ledger.Filter) ([]ledger.Row, error) {
	return tv.parent.queryLocked(f), nil
}

func (tv *txMemoryView) Scan(_ context.Context) ([]ledger.Row, error) {
	out := append([]ledger.Row(nil), tv.parent.rows...)
	sortByReferenceYear(out)
	return out, nil
}

func (tv *txMemoryView) CloseExpired(_ context.Context, today civil.Date) (int, error) {
	return tv.parent.closeExpiredLocked(today), nil
}
