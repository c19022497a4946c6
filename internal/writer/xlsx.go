package writer

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/insightdelivered/statement-ledger/internal/models"
)

const (
	ledgerSheet = "Ledger"
	infoSheet   = "Info"
)

// XLSXWriter writes a ledger as a single-sheet workbook. Amounts are numeric
// cells; an empty amount is an empty cell.
type XLSXWriter struct {
	IncludeHeader bool // adds an Info sheet with the metadata rows
}

func (w *XLSXWriter) Extension() string { return ".xlsx" }
func (w *XLSXWriter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (w *XLSXWriter) Write(out io.Writer, ledger *models.Ledger) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), ledgerSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	amount, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return fmt.Errorf("failed to create amount style: %w", err)
	}

	header := make([]any, len(models.Columns))
	for i, c := range models.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(ledgerSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(models.Columns), 1)
	if err := f.SetCellStyle(ledgerSheet, "A1", last, bold); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	for i, txn := range ledger.Transactions {
		row := []any{
			txn.Date,
			cellAmount(txn.Withdrawals.InexactFloat64()),
			cellAmount(txn.Deposits.InexactFloat64()),
			txn.Payee,
			txn.Description,
			txn.Reference,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(ledgerSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}
	if n := len(ledger.Transactions); n > 0 {
		end, _ := excelize.CoordinatesToCellName(3, n+1)
		if err := f.SetCellStyle(ledgerSheet, "B2", end, amount); err != nil {
			return fmt.Errorf("failed to style amounts: %w", err)
		}
	}
	_ = f.SetColWidth(ledgerSheet, "A", "A", 12)
	_ = f.SetColWidth(ledgerSheet, "E", "E", 48)
	_ = f.SetColWidth(ledgerSheet, "F", "F", 20)

	if w.IncludeHeader {
		if _, err := f.NewSheet(infoSheet); err != nil {
			return fmt.Errorf("failed to add info sheet: %w", err)
		}
		for i, kv := range metadata(ledger) {
			row := []any{kv[0][2:], kv[1]}
			cell, _ := excelize.CoordinatesToCellName(1, i+1)
			if err := f.SetSheetRow(infoSheet, cell, &row); err != nil {
				return fmt.Errorf("failed to write metadata: %w", err)
			}
		}
	}

	if err := f.Write(out); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func cellAmount(v float64) any {
	if v == 0 {
		return nil
	}
	return v
}
