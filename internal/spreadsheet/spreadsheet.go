// Package spreadsheet converts CSV exports and Excel workbooks into a ledger
// using the header vocabularies declared in the layouts file.
package spreadsheet

import (
	"bytes"
	"context"
	"fmt"

	"github.com/insightdelivered/statement-ledger/internal/extractor"
	"github.com/insightdelivered/statement-ledger/internal/layout"
	"github.com/insightdelivered/statement-ledger/internal/logger"
	"github.com/insightdelivered/statement-ledger/internal/models"
)

// Kind is the container a grid was read from.
type Kind string

const (
	KindCSV      Kind = "csv"
	KindWorkbook Kind = "xlsx"
)

var (
	zipMagic = []byte("PK\x03\x04")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// Sheet is one grid of cell strings.
type Sheet struct {
	Name string
	Rows [][]string
}

// Reader maps spreadsheet rows onto ledger columns.
type Reader struct {
	cfg layout.Spreadsheets
}

// New returns a Reader for the given header vocabularies.
func New(cfg layout.Spreadsheets) *Reader {
	if cfg.HeaderRows <= 0 {
		cfg.HeaderRows = 30
	}
	if cfg.MinColumns <= 0 {
		cfg.MinColumns = 3
	}
	return &Reader{cfg: cfg}
}

// IsWorkbook reports whether data is a zip (xlsx) or OLE (encrypted xlsx,
// legacy xls) container.
func IsWorkbook(data []byte) bool {
	return bytes.HasPrefix(data, zipMagic) || bytes.HasPrefix(data, oleMagic)
}

// Read parses data and returns the ledger built from the first sheet with a
// recognised header. No recognised header yields an empty ledger, not an
// error.
func (r *Reader) Read(ctx context.Context, source string, data []byte, password string) (*models.Ledger, error) {
	log := logger.FromContext(ctx).With().Str("source", source).Logger()

	sheets, kind, err := r.load(data, password)
	if err != nil {
		return nil, err
	}

	ledger := &models.Ledger{Source: source, Institution: "Spreadsheet"}
	for _, sheet := range sheets {
		hdr, ok := r.findHeader(sheet.Rows)
		if !ok {
			log.Debug().Str("sheet", sheet.Name).Msg("no header row")
			continue
		}
		ledger.Layout = "spreadsheet:" + hdr.set
		ledger.Attempts = append(ledger.Attempts, ledger.Layout)
		ledger.Transactions = r.rows(sheet.Rows[hdr.row+1:], hdr.cols, kind)
		log.Info().
			Str("sheet", sheet.Name).
			Str("header", hdr.set).
			Int("row", hdr.row).
			Int("transactions", len(ledger.Transactions)).
			Msg("spreadsheet parsed")
		return ledger, nil
	}
	log.Warn().Int("sheets", len(sheets)).Msg("no recognised header row")
	return ledger, nil
}

func (r *Reader) load(data []byte, password string) ([]Sheet, Kind, error) {
	if IsWorkbook(data) {
		sheets, err := readWorkbook(data, password)
		return sheets, KindWorkbook, err
	}
	rows, err := readCSV(data)
	if err != nil {
		return nil, KindCSV, err
	}
	if !hasWidth(rows, r.cfg.MinColumns) {
		return nil, KindCSV, fmt.Errorf("%w: no row has %d or more columns", extractor.ErrUnreadable, r.cfg.MinColumns)
	}
	return []Sheet{{Name: "csv", Rows: rows}}, KindCSV, nil
}

func hasWidth(rows [][]string, n int) bool {
	for _, row := range rows {
		if len(row) >= n {
			return true
		}
	}
	return false
}
