package writer

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/gocarina/gocsv"

	"github.com/insightdelivered/statement-ledger/internal/models"
)

// CSVWriter writes a ledger as CSV.
type CSVWriter struct {
	IncludeHeader bool // "#" metadata rows above the column header
}

// csvRow is one output line; tag order matches models.Columns.
type csvRow struct {
	Date        string `csv:"Date"`
	Withdrawals string `csv:"Withdrawals"`
	Deposits    string `csv:"Deposits"`
	Payee       string `csv:"Payee"`
	Description string `csv:"Description"`
	Reference   string `csv:"Reference Number"`
}

func toRow(t models.Transaction) csvRow {
	r := t.Record()
	return csvRow{Date: r[0], Withdrawals: r[1], Deposits: r[2], Payee: r[3], Description: r[4], Reference: r[5]}
}

func (w *CSVWriter) Extension() string   { return ".csv" }
func (w *CSVWriter) ContentType() string { return "text/csv; charset=utf-8" }

// Write writes the optional metadata, the column header and one row per
// transaction.
func (w *CSVWriter) Write(out io.Writer, ledger *models.Ledger) error {
	writer := csv.NewWriter(out)

	if w.IncludeHeader {
		for _, row := range metadata(ledger) {
			if err := writer.Write(row); err != nil {
				return fmt.Errorf("failed to write CSV metadata: %w", err)
			}
		}
	}
	if err := writer.Write(models.Columns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	rows := make([]csvRow, len(ledger.Transactions))
	for i, txn := range ledger.Transactions {
		rows[i] = toRow(txn)
	}
	if err := gocsv.MarshalCSVWithoutHeaders(rows, gocsv.NewSafeCSVWriter(writer)); err != nil {
		return fmt.Errorf("failed to write CSV rows: %w", err)
	}
	writer.Flush()
	return writer.Error()
}
