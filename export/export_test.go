package export_test

import (
	"bytes"
	"encoding/csv"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/instrument-ledger/export"
	"github.com/warp/instrument-ledger/ledger"
	"github.com/xuri/excelize/v2"
)

func sampleRows() []ledger.Row {
	fd := ledger.Row{
		Seq:            7,
		InstrumentID:   "inst-1",
		Reference:      "FD-1",
		Bank:           "HDFC, Mumbai",
		AccountType:    ledger.AccountFD,
		Classification: ledger.ClassInvested,
		Status:         ledger.StatusOpen,
		Year:           2024,
		MaturityDate:   civil.Date{Year: 2025, Month: 2, Day: 1},
		Note:           "renew",
	}
	fd.Months[0] = decimal.RequireFromString("5000")
	fd.Months[1] = decimal.RequireFromString("12.5")

	sav := ledger.Row{
		Seq:            8,
		InstrumentID:   "inst-2",
		Reference:      "SAV-1",
		Bank:           "SBI",
		AccountType:    ledger.AccountSavings,
		Classification: ledger.ClassSaving,
		Status:         ledger.StatusOpen,
		Year:           2023,
		Note:           "salary",
	}
	return []ledger.Row{fd, sav}
}

func TestParseFormat(t *testing.T) {
	f, err := export.ParseFormat("CSV")
	require.NoError(t, err)
	assert.Equal(t, export.FormatCSV, f)
	assert.Equal(t, "investments.csv", f.Filename())
	assert.Equal(t, "text/csv", f.ContentType())

	f, err = export.ParseFormat("xlsx")
	require.NoError(t, err)
	assert.Equal(t, export.FormatExcel, f)
	assert.Equal(t, "investments.xlsx", f.Filename())

	_, err = export.ParseFormat("pdf")
	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "format", verr.Field)
}

func TestHeader(t *testing.T) {
	h := export.Header()

	require.Len(t, h, 22)
	assert.Equal(t, "id", h[0])
	assert.Equal(t, "maturity_date", h[8])
	assert.Equal(t, "jan", h[9])
	assert.Equal(t, "dec", h[20])
	assert.Equal(t, "notepad", h[21])
}

func TestWriteCSV(t *testing.T) {
	// GIVEN: Two rows, one with a comma in the bank name
	var buf bytes.Buffer

	// WHEN: Written as CSV
	require.NoError(t, export.Write(&buf, export.FormatCSV, sampleRows()))

	// THEN: A header and one quoted-correctly line per row
	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, export.Header(), records[0])

	fd := records[1]
	assert.Equal(t, "7", fd[0])
	assert.Equal(t, "inst-1", fd[1])
	assert.Equal(t, "HDFC, Mumbai", fd[3])
	assert.Equal(t, "2024", fd[7])
	assert.Equal(t, "2025-02-01", fd[8])
	assert.Equal(t, "5000", fd[9])
	assert.Equal(t, "12.5", fd[10])
	assert.Equal(t, "0", fd[11])
	assert.Equal(t, "renew", fd[21])

	assert.Equal(t, "", records[2][8])
}

func TestWriteCSV_NoRowsStillHasHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, export.WriteCSV(&buf, nil))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestWriteXLSX_ReadBack(t *testing.T) {
	// GIVEN: Two rows written as a workbook
	var buf bytes.Buffer
	require.NoError(t, export.Write(&buf, export.FormatExcel, sampleRows()))

	// WHEN: Opened with a spreadsheet reader
	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	// THEN: A single ledger sheet holds the header and both rows
	assert.Equal(t, []string{"ledger"}, f.GetSheetList())
	rows, err := f.GetRows("ledger")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, export.Header(), rows[0])
	assert.Equal(t, "FD-1", rows[1][2])
	assert.Equal(t, "5000", rows[1][9])
	assert.Equal(t, "12.5", rows[1][10])
	assert.Equal(t, "renew", rows[1][21])
	assert.Equal(t, "SAV-1", rows[2][2])

	// Month cells are numeric, not text.
	typ, err := f.GetCellType("ledger", "J2")
	require.NoError(t, err)
	assert.NotEqual(t, excelize.CellTypeSharedString, typ)
	assert.NotEqual(t, excelize.CellTypeInlineString, typ)
}
