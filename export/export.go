/*
Package export serializes ledger rows to flat tabular files.

FORMATS:
  csv    encoding/csv, one line per row
  excel  .xlsx workbook with a single "ledger" sheet (excelize)

COLUMNS:
  Mirror the ledger_rows table: id, instrument_id, reference_name, bank,
  account_type, saving_invested, status, year, maturity_date, jan..dec,
  notepad. Rows are written as given, no transformation.

SEE ALSO:
  - api/handlers.go: GET /api/export/{format}
  - cmd/ledgerctl: export subcommand
*/
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/warp/instrument-ledger/ledger"
	"github.com/xuri/excelize/v2"
)

type Format string

const (
	FormatCSV   Format = "csv"
	FormatExcel Format = "excel"
)

// ParseFormat accepts csv, excel and xlsx.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return FormatCSV, nil
	case "excel", "xlsx":
		return FormatExcel, nil
	}
	return "", &ledger.ValidationError{Field: "format", Reason: "must be csv or excel"}
}

// Filename is the attachment name for a format.
func (f Format) Filename() string {
	if f == FormatExcel {
		return "investments.xlsx"
	}
	return "investments.csv"
}

func (f Format) ContentType() string {
	if f == FormatExcel {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

// Write serializes rows in the given format.
func Write(w io.Writer, f Format, rows []ledger.Row) error {
	if f == FormatExcel {
		return WriteXLSX(w, rows)
	}
	return WriteCSV(w, rows)
}

// Header returns the column names in output order.
func Header() []string {
	h := []string{"id", "instrument_id", "reference_name", "bank", "account_type",
		"saving_invested", "status", "year", "maturity_date"}
	h = append(h, ledger.MonthNames[:]...)
	return append(h, "notepad")
}

func record(r ledger.Row) []string {
	rec := []string{
		strconv.FormatInt(r.Seq, 10),
		string(r.InstrumentID),
		r.Reference,
		r.Bank,
		string(r.AccountType),
		string(r.Classification),
		string(r.Status),
		strconv.Itoa(r.Year),
		ledger.FormatDate(r.MaturityDate),
	}
	for _, v := range r.Months {
		rec = append(rec, v.String())
	}
	return append(rec, r.Note)
}

// WriteCSV writes a header line then one line per row.
func WriteCSV(w io.Writer, rows []ledger.Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header()); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(record(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

const sheetName = "ledger"

// WriteXLSX writes a workbook. Month columns are numeric cells.
func WriteXLSX(w io.Writer, rows []ledger.Row) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	if err := setRow(f, 1, toAny(Header())); err != nil {
		return err
	}
	for i, r := range rows {
		values := []any{r.Seq, string(r.InstrumentID), r.Reference, r.Bank, string(r.AccountType),
			string(r.Classification), string(r.Status), r.Year, ledger.FormatDate(r.MaturityDate)}
		for _, v := range r.Months {
			values = append(values, v.InexactFloat64())
		}
		values = append(values, r.Note)
		if err := setRow(f, i+2, values); err != nil {
			return err
		}
	}
	return f.Write(w)
}

func setRow(f *excelize.File, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d: %w", row, err)
	}
	return nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
