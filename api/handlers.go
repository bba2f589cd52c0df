/*
handlers.go - HTTP API handlers for the instrument ledger

PURPOSE:
  Exposes the lifecycle controller, aggregation engine and maturity
  tracker via REST. Handles HTTP parsing and JSON serialization and
  delegates everything else to the ledger package.

ENDPOINTS:
  Instruments:
    GET    /api/instruments            Filtered rows (empty filter = no rows)
    POST   /api/instruments            Create and expand
    GET    /api/instruments/{id}       Rows and editable form of one instrument
    PUT    /api/instruments/{id}       Regenerate and replace
    DELETE /api/references/{reference} Delete every row of a reference

  Reports:
    GET    /api/maturities             Upcoming maturities
    GET    /api/reports/dashboard      Open counts and monthly series
    GET    /api/reports/bank-summary   Per-bank annual and current totals
    GET    /api/reports/monthly-totals Monthly totals of a filtered set

  Options:
    GET    /api/options                List (optionally ?kind=)
    POST   /api/options                Add
    DELETE /api/options/{kind}/{value} Remove

  Export:
    GET    /api/export/{format}        csv or excel

ERROR HANDLING:
  - 400: ValidationError, ScheduleError, malformed body or query
  - 404: Unknown instrument
  - 500: Store failures

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/warp/instrument-ledger/export"
	"github.com/warp/instrument-ledger/ledger"
	"github.com/warp/instrument-ledger/logger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Controller *ledger.Controller
	Aggregator *ledger.Aggregator
	Tracker    *ledger.Tracker
	Options    ledger.OptionStore
	Log        zerolog.Logger
}

// Stores is satisfied by sqlite.Store and store.TxMemory.
type Stores interface {
	ledger.TxStore
	ledger.OptionStore
}

// NewHandler wires the ledger services over one store.
func NewHandler(store Stores, log zerolog.Logger) *Handler {
	tracker := ledger.NewTracker(store)
	return &Handler{
		Controller: ledger.NewController(store, tracker, log),
		Aggregator: ledger.NewAggregator(store, tracker),
		Tracker:    tracker,
		Options:    store,
		Log:        log,
	}
}

// =============================================================================
// INSTRUMENT HANDLERS
// =============================================================================

// ListRows returns rows matching the query filters with monthly totals.
// GET /api/instruments
func (h *Handler) ListRows(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f, err := parseFilter(r)
	if err != nil {
		h.writeLedgerError(w, r, "Invalid filter", err)
		return
	}

	rows, err := h.Controller.Query(ctx, f)
	if err != nil {
		h.writeLedgerError(w, r, "Failed to query rows", err)
		return
	}

	resp := RowsResponse{
		Rows:          toRowDTOs(rows),
		MonthlyTotals: monthsDTO(ledger.MonthlyTotals(rows)),
		NextMaturity:  []MaturityDTO{},
	}
	if !f.IsEmpty() {
		next, err := h.Tracker.Upcoming(ctx, ledger.DefaultUpcomingLimit)
		if err != nil {
			h.writeLedgerError(w, r, "Failed to load maturities", err)
			return
		}
		resp.NextMaturity = toMaturityDTOs(next)
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateInstrument expands and persists a new instrument.
// POST /api/instruments
func (h *Handler) CreateInstrument(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeInstrument(w, r)
	if !ok {
		return
	}

	created, rows, err := h.Controller.Create(r.Context(), in)
	if err != nil {
		h.writeLedgerError(w, r, "Failed to create instrument", err)
		return
	}

	writeJSON(w, http.StatusCreated, InstrumentDTO{
		InstrumentID:  string(created.ID),
		ReferenceName: created.Reference,
		Rows:          toRowDTOs(rows),
	})
}

// GetInstrument returns the persisted rows of one instrument and its
// editable form.
// GET /api/instruments/{id}
func (h *Handler) GetInstrument(w http.ResponseWriter, r *http.Request) {
	id := ledger.InstrumentID(chi.URLParam(r, "id"))

	rows, err := h.Controller.Find(r.Context(), id)
	if err != nil {
		h.writeLedgerError(w, r, "Failed to get instrument", err)
		return
	}

	resp := InstrumentDTO{
		InstrumentID:  string(id),
		ReferenceName: rows[0].Reference,
		Rows:          toRowDTOs(rows),
	}
	if in, ok := ledger.InstrumentFromRows(rows); ok {
		resp.Instrument = toInstrumentRequest(in)
	}
	writeJSON(w, http.StatusOK, resp)
}

// UpdateInstrument regenerates the full row set of an instrument.
// PUT /api/instruments/{id}
func (h *Handler) UpdateInstrument(w http.ResponseWriter, r *http.Request) {
	id := ledger.InstrumentID(chi.URLParam(r, "id"))
	in, ok := h.decodeInstrument(w, r)
	if !ok {
		return
	}

	rows, err := h.Controller.Update(r.Context(), id, in)
	if err != nil {
		h.writeLedgerError(w, r, "Failed to update instrument", err)
		return
	}

	writeJSON(w, http.StatusOK, InstrumentDTO{
		InstrumentID:  string(id),
		ReferenceName: in.Reference,
		Rows:          toRowDTOs(rows),
	})
}

// DeleteReference removes every row of a reference name.
// DELETE /api/references/{reference}
func (h *Handler) DeleteReference(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")

	n, err := h.Controller.DeleteByReference(r.Context(), reference)
	if err != nil {
		h.writeLedgerError(w, r, "Failed to delete reference", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"reference_name": reference, "deleted": n})
}

func (h *Handler) decodeInstrument(w http.ResponseWriter, r *http.Request) (ledger.Instrument, bool) {
	var req InstrumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return ledger.Instrument{}, false
	}
	in, err := req.ToInstrument()
	if err != nil {
		h.writeLedgerError(w, r, "Invalid instrument", err)
		return ledger.Instrument{}, false
	}
	return in, true
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// ListMaturities returns the soonest maturities.
// GET /api/maturities?limit=4
func (h *Handler) ListMaturities(w http.ResponseWriter, r *http.Request) {
	limit := ledger.DefaultUpcomingLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	ms, err := h.Tracker.Upcoming(r.Context(), limit)
	if err != nil {
		h.writeLedgerError(w, r, "Failed to load maturities", err)
		return
	}
	writeJSON(w, http.StatusOK, toMaturityDTOs(ms))
}

// GetDashboard returns open counts and monthly series.
// GET /api/reports/dashboard
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.Aggregator.Dashboard(r.Context())
	if err != nil {
		h.writeLedgerError(w, r, "Failed to build dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, DashboardDTO{
		OpenUnique:      toTypeCountDTOs(d.OpenByBank),
		Totals:          toTypeCountDTOs(d.OpenByType),
		SavingsMonthly:  toYearSeriesDTOs(d.SavingsMonthly),
		InvestedMonthly: toYearSeriesDTOs(d.InvestedMonthly),
	})
}

// GetBankSummary returns per-bank totals.
// GET /api/reports/bank-summary
func (h *Handler) GetBankSummary(w http.ResponseWriter, r *http.Request) {
	s, err := h.Aggregator.BankSummary(r.Context())
	if err != nil {
		h.writeLedgerError(w, r, "Failed to build bank summary", err)
		return
	}
	writeJSON(w, http.StatusOK, BankSummaryDTO{
		Saving:   toBankYearDTOs(s.Saving),
		Invested: toBankYearDTOs(s.Invested),
		Current:  toBankYearDTOs(s.Current),
	})
}

// GetMonthlyTotals returns only the twelve totals of a filtered set.
// GET /api/reports/monthly-totals
func (h *Handler) GetMonthlyTotals(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		h.writeLedgerError(w, r, "Invalid filter", err)
		return
	}
	rows, err := h.Controller.Query(r.Context(), f)
	if err != nil {
		h.writeLedgerError(w, r, "Failed to query rows", err)
		return
	}
	writeJSON(w, http.StatusOK, monthsDTO(ledger.MonthlyTotals(rows)))
}

// =============================================================================
// OPTION HANDLERS
// =============================================================================

// ListOptions returns all options, or one kind with ?kind=.
// GET /api/options
func (h *Handler) ListOptions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dtos := []OptionDTO{}

	if k := r.URL.Query().Get("kind"); k != "" {
		kind, err := ledger.ParseOptionKind(k)
		if err != nil {
			h.writeLedgerError(w, r, "Invalid kind", err)
			return
		}
		values, err := h.Options.ListOptions(ctx, kind)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to list options", err)
			return
		}
		for _, v := range values {
			dtos = append(dtos, OptionDTO{Kind: string(kind), Value: v})
		}
		writeJSON(w, http.StatusOK, dtos)
		return
	}

	opts, err := h.Options.AllOptions(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list options", err)
		return
	}
	for _, o := range opts {
		dtos = append(dtos, OptionDTO{Kind: string(o.Kind), Value: o.Value})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AddOption inserts a vocabulary value; duplicates are ignored.
// POST /api/options
func (h *Handler) AddOption(w http.ResponseWriter, r *http.Request) {
	var req OptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	kind, err := ledger.ParseOptionKind(req.Kind)
	if err != nil {
		h.writeLedgerError(w, r, "Invalid kind", err)
		return
	}
	if err := h.Options.AddOption(r.Context(), kind, req.Value); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to add option", err)
		return
	}
	writeJSON(w, http.StatusCreated, OptionDTO{Kind: string(kind), Value: req.Value})
}

// DeleteOption removes a vocabulary value.
// DELETE /api/options/{kind}/{value}
func (h *Handler) DeleteOption(w http.ResponseWriter, r *http.Request) {
	kind, err := ledger.ParseOptionKind(chi.URLParam(r, "kind"))
	if err != nil {
		h.writeLedgerError(w, r, "Invalid kind", err)
		return
	}
	if err := h.Options.RemoveOption(r.Context(), kind, chi.URLParam(r, "value")); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to remove option", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// EXPORT
// =============================================================================

// Export streams rows as a file. With no filter the whole table is exported.
// GET /api/export/{format}
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(chi.URLParam(r, "format"))
	if err != nil {
		h.writeLedgerError(w, r, "Invalid format", err)
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		h.writeLedgerError(w, r, "Invalid filter", err)
		return
	}

	var rows []ledger.Row
	if f.IsEmpty() {
		rows, err = h.Controller.Snapshot(r.Context())
	} else {
		rows, err = h.Controller.Query(r.Context(), f)
	}
	if err != nil {
		h.writeLedgerError(w, r, "Failed to load rows", err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+format.Filename()+`"`)
	if err := export.Write(w, format, rows); err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Str("format", string(format)).Msg("export failed")
	}
}

// Health reports liveness.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func parseFilter(r *http.Request) (ledger.Filter, error) {
	q := r.URL.Query()
	f := ledger.Filter{
		Bank:           q.Get("bank"),
		AccountType:    q.Get("account_type"),
		Classification: q.Get("saving_invested"),
		Status:         q.Get("status"),
		Year:           q.Get("year"),
		UniqueOnly:     q.Get("unique_only") != "",
	}
	var err error
	if f.MaturityFrom, err = ledger.ParseDate("start_date", q.Get("start_date")); err != nil {
		return f, err
	}
	if f.MaturityTo, err = ledger.ParseDate("end_date", q.Get("end_date")); err != nil {
		return f, err
	}
	return f, nil
}

// writeLedgerError maps ledger error kinds to HTTP statuses.
func (h *Handler) writeLedgerError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case ledger.IsClientError(err):
		status = http.StatusBadRequest
	case ledger.IsNotFound(err):
		status = http.StatusNotFound
	default:
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg(message)
	}

	resp := ErrorResponse{Error: message, Details: err.Error()}
	var verr *ledger.ValidationError
	if errors.As(err, &verr) {
		resp.Field = verr.Field
	}
	writeJSON(w, status, resp)
}

// writeJSON encodes before writing the header; encoding failures become 500.
func writeJSON(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(ErrorResponse{Error: "Failed to encode response", Details: err.Error()})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
