package spreadsheet

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/insightdelivered/statement-ledger/internal/layout"
	"github.com/insightdelivered/statement-ledger/internal/models"
	"github.com/insightdelivered/statement-ledger/internal/normalize"
)

type header struct {
	row  int
	set  string
	cols map[models.Field]int
}

// findHeader scans the first HeaderRows rows for a header vocabulary. Sets
// are tried in declaration order, so the most specific set wins.
func (r *Reader) findHeader(rows [][]string) (header, bool) {
	limit := min(len(rows), r.cfg.HeaderRows)
	for i := 0; i < limit; i++ {
		cells := make([]string, len(rows[i]))
		for j, c := range rows[i] {
			cells[j] = strings.ToLower(normalize.Clean(c))
		}
		for _, set := range r.cfg.Headers {
			cols := matchColumns(cells, set)
			if covers(cols, set.Required) {
				return header{row: i, set: set.Name, cols: cols}, true
			}
		}
	}
	return header{}, false
}

// matchColumns claims at most one cell per field. "=term" must equal the
// cell; other terms need only be contained in it.
func matchColumns(cells []string, set layout.HeaderSet) map[models.Field]int {
	cols := make(map[models.Field]int)
	claimed := make(map[int]bool)
	for _, field := range models.Fields {
		terms := set.Columns[field]
	terms:
		for _, term := range terms {
			term = strings.ToLower(term)
			for j, cell := range cells {
				if claimed[j] || cell == "" {
					continue
				}
				if exact, ok := strings.CutPrefix(term, "="); ok {
					if cell != exact {
						continue
					}
				} else if !strings.Contains(cell, term) {
					continue
				}
				cols[field] = j
				claimed[j] = true
				break terms
			}
		}
	}
	return cols
}

func covers(cols map[models.Field]int, required []models.Field) bool {
	for _, f := range required {
		if _, ok := cols[f]; !ok {
			return false
		}
	}
	return true
}

var timeSuffix = regexp.MustCompile(`[ T]\d{1,2}:\d{2}(?::\d{2}(?:\.\d+)?)?$`)

func (r *Reader) rows(body [][]string, cols map[models.Field]int, kind Kind) []models.Transaction {
	var out []models.Transaction
	for _, row := range body {
		cell := func(f models.Field) string {
			j, ok := cols[f]
			if !ok || j >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[j])
		}

		date := r.date(cell(models.FieldDate), kind)
		if date == "" {
			continue
		}

		// separate sides need both columns, otherwise the signed amount decides
		var withdrawal, deposit decimal.Decimal
		_, hasDebit := cols[models.FieldDebit]
		_, hasCredit := cols[models.FieldCredit]
		if hasDebit && hasCredit {
			withdrawal = normalize.ParseAmount(cell(models.FieldDebit)).Abs()
			deposit = normalize.ParseAmount(cell(models.FieldCredit)).Abs()
		} else {
			v := normalize.ParseAmount(cell(models.FieldAmount))
			if v.IsNegative() {
				withdrawal = v.Abs()
			} else {
				deposit = v
			}
		}
		if withdrawal.IsZero() && deposit.IsZero() {
			continue
		}

		out = append(out, models.Transaction{
			Date:        date,
			Withdrawals: withdrawal,
			Deposits:    deposit,
			Description: normalize.Clean(cell(models.FieldDescription)),
			Reference:   normalize.Clean(cell(models.FieldReference)),
			Rule:        "column",
			Ambiguous:   !withdrawal.IsZero() && !deposit.IsZero(),
		})
	}
	return out
}

// date accepts the configured formats, then any known format. Workbook cells
// holding a serial number are converted from the 1900 date system.
func (r *Reader) date(raw string, kind Kind) string {
	if raw == "" {
		return ""
	}
	raw = timeSuffix.ReplaceAllString(raw, "")
	if d := normalize.ParseDate(raw, r.cfg.Formats...); d != "" {
		return d
	}
	if d := normalize.ParseDate(raw); d != "" {
		return d
	}
	if kind != KindWorkbook {
		return ""
	}
	serial, err := strconv.ParseFloat(raw, 64)
	if err != nil || serial < 1 {
		return ""
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return ""
	}
	return t.Format(normalize.CanonicalDateLayout)
}
