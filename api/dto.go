/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON shapes of the HTTP contract, decoupled from ledger types so field
  names can follow the form vocabulary (reference_name,
  saving_invested, notepad) while the engine uses Go names.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Done in handlers and the ledger package. DTOs are pure data carriers,
  except RawAmount which implements the numeric tolerance policy at the
  JSON boundary (numbers, numeric strings and junk all decode).

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/warp/instrument-ledger/ledger"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// RawAmount decodes from a JSON number, string or null and keeps the text.
type RawAmount string

func (a *RawAmount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*a = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*a = RawAmount(s)
		return nil
	}
	*a = RawAmount(b)
	return nil
}

// InstrumentRequest is the body of create and update.
type InstrumentRequest struct {
	ReferenceName  string        `json:"reference_name"`
	Bank           string        `json:"bank"`
	AccountType    string        `json:"account_type"`
	SavingInvested string        `json:"saving_invested"`
	Status         string        `json:"status"`
	Year           RawAmount     `json:"year"`
	MaturityDate   string        `json:"maturity_date"`
	Months         [12]RawAmount `json:"months"`
	RDIncrement    RawAmount     `json:"rd_increment"`
	Notepad        string        `json:"notepad"`
}

// ToInstrument converts and parses the year and maturity date.
func (req InstrumentRequest) ToInstrument() (ledger.Instrument, error) {
	year, err := ledger.ParseYear(string(req.Year))
	if err != nil {
		return ledger.Instrument{}, err
	}
	maturity, err := ledger.ParseDate("maturity_date", req.MaturityDate)
	if err != nil {
		return ledger.Instrument{}, err
	}

	in := ledger.Instrument{
		Reference:      strings.TrimSpace(req.ReferenceName),
		Bank:           strings.TrimSpace(req.Bank),
		AccountType:    ledger.AccountType(strings.TrimSpace(req.AccountType)),
		Classification: ledger.Classification(strings.TrimSpace(req.SavingInvested)),
		Status:         ledger.Status(strings.TrimSpace(req.Status)),
		StartYear:      year,
		MaturityDate:   maturity,
		Increment:      string(req.RDIncrement),
		Note:           req.Notepad,
	}
	for i, v := range req.Months {
		in.Months[i] = string(v)
	}
	return in, nil
}

// toInstrumentRequest renders an instrument in the editable request shape.
func toInstrumentRequest(in ledger.Instrument) *InstrumentRequest {
	req := &InstrumentRequest{
		ReferenceName:  in.Reference,
		Bank:           in.Bank,
		AccountType:    string(in.AccountType),
		SavingInvested: string(in.Classification),
		Status:         string(in.Status),
		Year:           RawAmount(strconv.Itoa(in.StartYear)),
		MaturityDate:   ledger.FormatDate(in.MaturityDate),
		RDIncrement:    RawAmount(in.Increment),
		Notepad:        in.Note,
	}
	for i, v := range in.Months {
		req.Months[i] = RawAmount(v)
	}
	return req
}

// OptionRequest adds one vocabulary value.
type OptionRequest struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// RowDTO represents one ledger row.
type RowDTO struct {
	ID             int64       `json:"id"`
	InstrumentID   string      `json:"instrument_id"`
	ReferenceName  string      `json:"reference_name"`
	Bank           string      `json:"bank"`
	AccountType    string      `json:"account_type"`
	SavingInvested string      `json:"saving_invested"`
	Status         string      `json:"status"`
	Year           int         `json:"year"`
	MaturityDate   string      `json:"maturity_date"`
	Months         [12]float64 `json:"months"`
	Notepad        string      `json:"notepad"`
}

func toRowDTO(r ledger.Row) RowDTO {
	return RowDTO{
		ID:             r.Seq,
		InstrumentID:   string(r.InstrumentID),
		ReferenceName:  r.Reference,
		Bank:           r.Bank,
		AccountType:    string(r.AccountType),
		SavingInvested: string(r.Classification),
		Status:         string(r.Status),
		Year:           r.Year,
		MaturityDate:   ledger.FormatDate(r.MaturityDate),
		Months:         monthsDTO(r.Months),
		Notepad:        r.Note,
	}
}

func toRowDTOs(rows []ledger.Row) []RowDTO {
	dtos := make([]RowDTO, len(rows))
	for i, r := range rows {
		dtos[i] = toRowDTO(r)
	}
	return dtos
}

func monthsDTO(m ledger.Months) [12]float64 {
	var out [12]float64
	for i, v := range m {
		out[i] = v.InexactFloat64()
	}
	return out
}

// InstrumentDTO is the create/update/get response. Instrument is only set
// by get and pre-fills an edit form.
type InstrumentDTO struct {
	InstrumentID  string             `json:"instrument_id"`
	ReferenceName string             `json:"reference_name"`
	Rows          []RowDTO           `json:"rows"`
	Instrument    *InstrumentRequest `json:"instrument,omitempty"`
}

// RowsResponse is the filtered listing with its monthly totals.
type RowsResponse struct {
	Rows          []RowDTO      `json:"rows"`
	MonthlyTotals [12]float64   `json:"monthly_totals"`
	NextMaturity  []MaturityDTO `json:"next_maturity"`
}

type MaturityDTO struct {
	ReferenceName string `json:"reference_name"`
	Bank          string `json:"bank"`
	AccountType   string `json:"account_type"`
	MaturityDate  string `json:"maturity_date"`
	Display       string `json:"display"`
}

func toMaturityDTOs(ms []ledger.Maturity) []MaturityDTO {
	dtos := make([]MaturityDTO, len(ms))
	for i, m := range ms {
		dtos[i] = MaturityDTO{
			ReferenceName: m.Reference,
			Bank:          m.Bank,
			AccountType:   string(m.AccountType),
			MaturityDate:  m.Date.String(),
			Display:       m.Display,
		}
	}
	return dtos
}

type TypeCountDTO struct {
	Bank        string `json:"bank,omitempty"`
	AccountType string `json:"account_type"`
	Count       int    `json:"count"`
}

type YearSeriesDTO struct {
	Year   int         `json:"year"`
	Months [12]float64 `json:"months"`
}

type BankYearTotalDTO struct {
	Bank  string  `json:"bank"`
	Year  int     `json:"year"`
	Total float64 `json:"total"`
}

// DashboardDTO mirrors ledger.Dashboard.
type DashboardDTO struct {
	OpenUnique      []TypeCountDTO  `json:"open_unique"`
	Totals          []TypeCountDTO  `json:"totals"`
	SavingsMonthly  []YearSeriesDTO `json:"savings_monthly"`
	InvestedMonthly []YearSeriesDTO `json:"invested_monthly"`
}

// BankSummaryDTO mirrors ledger.BankSummary.
type BankSummaryDTO struct {
	Saving   []BankYearTotalDTO `json:"saving_data"`
	Invested []BankYearTotalDTO `json:"invested_data"`
	Current  []BankYearTotalDTO `json:"current_data"`
}

func toTypeCountDTOs(cs []ledger.TypeCount) []TypeCountDTO {
	dtos := make([]TypeCountDTO, len(cs))
	for i, c := range cs {
		dtos[i] = TypeCountDTO{Bank: c.Bank, AccountType: string(c.AccountType), Count: c.Count}
	}
	return dtos
}

func toYearSeriesDTOs(ys []ledger.YearSeries) []YearSeriesDTO {
	dtos := make([]YearSeriesDTO, len(ys))
	for i, y := range ys {
		dtos[i] = YearSeriesDTO{Year: y.Year, Months: monthsDTO(y.Months)}
	}
	return dtos
}

func toBankYearDTOs(ts []ledger.BankYearTotal) []BankYearTotalDTO {
	dtos := make([]BankYearTotalDTO, len(ts))
	for i, t := range ts {
		dtos[i] = BankYearTotalDTO{Bank: t.Bank, Year: t.Year, Total: t.Total.InexactFloat64()}
	}
	return dtos
}

type OptionDTO struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Field   string `json:"field,omitempty"`
}
