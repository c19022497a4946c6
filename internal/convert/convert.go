// Package convert runs one input file through acquisition and layout
// dispatch, choosing the PDF or spreadsheet path from the file's bytes.
package convert

import (
	"context"
	"fmt"
	"strings"

	"github.com/insightdelivered/statement-ledger/internal/extractor"
	"github.com/insightdelivered/statement-ledger/internal/layout"
	"github.com/insightdelivered/statement-ledger/internal/logger"
	"github.com/insightdelivered/statement-ledger/internal/models"
	"github.com/insightdelivered/statement-ledger/internal/parser"
	"github.com/insightdelivered/statement-ledger/internal/spreadsheet"
)

// SpreadsheetLayout forces the spreadsheet path regardless of content.
const SpreadsheetLayout = "spreadsheet"

// Kind is the detected input container.
type Kind string

const (
	KindPDF         Kind = "pdf"
	KindSpreadsheet Kind = "spreadsheet"
)

// Sniff classifies data by its leading bytes. Anything that is neither a PDF
// nor a workbook is treated as delimited text.
func Sniff(data []byte) Kind {
	if extractor.IsPDF(data) {
		return KindPDF
	}
	return KindSpreadsheet
}

// Input is one file to convert.
type Input struct {
	Source   string // file name, used in logs and the ledger
	Data     []byte
	Password string
	Layout   string // forced layout name, "" to auto-detect
}

// Converter ties the document backend, the spreadsheet reader and the layout
// dispatcher together.
type Converter struct {
	reg        *layout.Registry
	extractor  *extractor.Extractor
	sheets     *spreadsheet.Reader
	dispatcher *parser.Dispatcher
}

// New returns a Converter over reg.
func New(reg *layout.Registry, ext *extractor.Extractor, opts parser.Options) *Converter {
	return &Converter{
		reg:        reg,
		extractor:  ext,
		sheets:     spreadsheet.New(reg.Spreadsheets()),
		dispatcher: parser.NewDispatcher(reg, opts),
	}
}

// Registry returns the layouts the converter dispatches over.
func (c *Converter) Registry() *layout.Registry {
	return c.reg
}

// Convert produces a ledger for in. Errors are the extractor sentinels
// (wrapped) or *parser.ErrUnknownLayout; a document that no layout can read
// yields an empty ledger and a nil error.
func (c *Converter) Convert(ctx context.Context, in Input) (*models.Ledger, error) {
	log := logger.FromContext(ctx).With().Str("source", in.Source).Logger()

	if len(in.Data) == 0 {
		return nil, fmt.Errorf("%w: empty file", extractor.ErrUnreadable)
	}
	forced := strings.TrimSpace(in.Layout)
	if forced != "" && !strings.EqualFold(forced, SpreadsheetLayout) {
		if _, ok := c.reg.Lookup(forced); !ok {
			return nil, &parser.ErrUnknownLayout{Name: forced, Known: c.reg.Names()}
		}
	}

	kind := Sniff(in.Data)
	if strings.EqualFold(forced, SpreadsheetLayout) {
		kind = KindSpreadsheet
	}
	log.Debug().Str("kind", string(kind)).Int("bytes", len(in.Data)).Msg("input sniffed")

	if kind == KindSpreadsheet {
		ledger, err := c.sheets.Read(ctx, in.Source, in.Data, in.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to read spreadsheet: %w", err)
		}
		return ledger, nil
	}

	doc, err := c.extractor.Open(ctx, in.Source, in.Data, in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	ledger, err := c.dispatcher.Run(ctx, doc, forced)
	if err != nil {
		return nil, err
	}
	ledger.Source = in.Source
	return ledger, nil
}
