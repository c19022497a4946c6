package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/insightdelivered/statement-ledger/internal/assemble"
	"github.com/insightdelivered/statement-ledger/internal/disambiguate"
	"github.com/insightdelivered/statement-ledger/internal/layout"
	"github.com/insightdelivered/statement-ledger/internal/logger"
	"github.com/insightdelivered/statement-ledger/internal/models"
	"github.com/insightdelivered/statement-ledger/internal/normalize"
	"github.com/insightdelivered/statement-ledger/internal/segment"
)

// Options apply to every engine a dispatcher builds.
type Options struct {
	// Unresolved overrides every layout's unresolved-amount policy when set.
	Unresolved layout.Policy
	// Debug keeps a per-line trace in the ledger.
	Debug bool
}

// Boundary sources, in precedence order.
const (
	SourceHeader  = "header"
	SourceCarry   = "carry"
	SourceSeed    = "seed"
	SourceDefault = "default"
)

// Carry is the state threaded from one page to the next.
type Carry struct {
	Boundaries segment.Boundaries   // from the most recent header
	Columns    map[models.Field]int // table column map from the most recent table header
	Balance    disambiguate.State
	Seed       segment.Boundaries // first header anywhere in the document
}

// PageResult is what one page contributes.
type PageResult struct {
	Transactions []models.Transaction
	Debug        []models.DebugLine
	Boundaries   segment.Boundaries
	Method       string
}

// Engine is the single parsing pipeline, parameterised by a descriptor.
type Engine struct {
	desc     *layout.Descriptor
	resolver *disambiguate.Resolver
	opts     Options
}

// NewEngine builds an engine for desc, which must be compiled.
func NewEngine(desc *layout.Descriptor, opts Options) *Engine {
	return &Engine{
		desc:     desc,
		resolver: disambiguate.New(desc, opts.Unresolved),
		opts:     opts,
	}
}

// Descriptor returns the layout the engine runs.
func (e *Engine) Descriptor() *layout.Descriptor {
	return e.desc
}

// Parse folds ProcessPage over the document's pages.
func (e *Engine) Parse(ctx context.Context, doc *models.Document) *models.Ledger {
	log := logger.FromContext(ctx).With().Str("layout", e.desc.Name).Logger()

	ledger := &models.Ledger{
		Layout:      e.desc.Name,
		Institution: e.desc.Institution,
		Currency:    e.desc.Currency,
		Source:      doc.Source,
	}
	carry := Carry{Seed: e.Seed(doc)}
	for _, page := range doc.Pages {
		if ctx.Err() != nil {
			log.Warn().Err(ctx.Err()).Int("page", page.Number).Msg("extraction cancelled")
			break
		}
		var res PageResult
		res, carry = e.ProcessPage(ctx, page, carry)
		ledger.Transactions = append(ledger.Transactions, res.Transactions...)
		if e.opts.Debug {
			ledger.DebugLines = append(ledger.DebugLines, res.Debug...)
		}
	}
	if e.desc.Description.Dedupe {
		ledger.Transactions = dedupe(ledger.Transactions)
	}
	log.Debug().Int("transactions", len(ledger.Transactions)).Msg("layout finished")
	return ledger
}

// Seed returns the boundaries of the first header found on any page, used
// for pages that precede every header.
func (e *Engine) Seed(doc *models.Document) segment.Boundaries {
	if e.desc.Source != layout.SourceWords || e.desc.Segmentation.Strategy == layout.StrategyFixed {
		return segment.Boundaries{}
	}
	seg := e.desc.Segmentation
	for _, page := range doc.Pages {
		rows := segment.GroupRows(page.Words, seg.RowTolerance)
		if h, ok := segment.DetectHeader(rows, seg.Vocabulary, seg.Required, seg.HeaderRows); ok {
			return segment.FromAnchors(h.Anchors, seg.BalanceGap)
		}
	}
	return segment.Boundaries{}
}

// ProcessPage turns one page into transactions. A panic anywhere in the page
// is recovered: the page yields nothing and the carry passes through.
func (e *Engine) ProcessPage(ctx context.Context, page models.Page, carry Carry) (res PageResult, next Carry) {
	log := logger.FromContext(ctx).With().Str("layout", e.desc.Name).Int("page", page.Number).Logger()
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Msg("page skipped")
			res, next = PageResult{}, carry
		}
	}()

	var records []assemble.Record
	var tr trace
	switch {
	case e.desc.Source == layout.SourceTables && len(page.Tables) > 0:
		records, carry = e.tablePage(page, carry, &tr)
		if e.desc.Description.Dedupe {
			var more []assemble.Record
			more, carry = e.textPage(page, carry, &tr)
			records = append(records, more...)
		}
		res.Method = "tables"
	case e.desc.Source == layout.SourceWords && len(page.Words) > 0:
		records, carry, res.Boundaries, res.Method = e.wordPage(page, carry, &tr)
	case e.readsText(page):
		records, carry = e.textPage(page, carry, &tr)
		res.Method = "text"
	default:
		tr.add(page.Number, 0, "", assemble.OutcomeIgnored, "no "+string(e.desc.Source))
		res.Method = "none"
	}

	for _, rec := range records {
		txn, balance, reason := e.finish(rec, carry.Balance)
		carry.Balance = balance
		if reason != "" {
			tr.add(rec.Page, rec.Line, rec.RawText(), "dropped", reason)
			continue
		}
		tr.add(rec.Page, rec.Line, rec.RawText(), "emitted", txn.Rule)
		res.Transactions = append(res.Transactions, txn)
	}
	res.Debug = tr.lines

	log.Debug().
		Str("method", res.Method).
		Str("boundaries", res.Boundaries.String()).
		Int("records", len(records)).
		Int("transactions", len(res.Transactions)).
		Msg("page processed")
	return res, carry
}

// readsText reports whether the page's plain text may be parsed line by
// line. Table and word layouts only do so for recognised pages or when the
// descriptor opts in.
func (e *Engine) readsText(page models.Page) bool {
	return e.desc.Source == layout.SourceText || page.OCR || e.desc.TextFallback
}

// boundaries picks the column map for a page: its own header, then the
// carried map, then the document seed, then the layout defaults.
func (e *Engine) boundaries(rows []segment.Row, carry Carry) (segment.Boundaries, []segment.Row, string, Carry) {
	seg := e.desc.Segmentation
	if seg.Strategy != layout.StrategyFixed {
		if h, ok := segment.DetectHeader(rows, seg.Vocabulary, seg.Required, seg.HeaderRows); ok {
			b := segment.FromAnchors(h.Anchors, seg.BalanceGap)
			carry.Boundaries = b
			return b, rows[h.Row+1:], SourceHeader, carry
		}
		if !carry.Boundaries.IsZero() {
			return carry.Boundaries, rows, SourceCarry, carry
		}
		if !carry.Seed.IsZero() {
			carry.Boundaries = carry.Seed
			return carry.Seed, rows, SourceSeed, carry
		}
	}
	return segment.FromDefaults(seg.Defaults, seg.BalanceGap), rows, SourceDefault, carry
}

func (e *Engine) wordPage(page models.Page, carry Carry, tr *trace) ([]assemble.Record, Carry, segment.Boundaries, string) {
	seg := e.desc.Segmentation
	rows := segment.GroupRows(page.Words, seg.RowTolerance)

	bounds, body, source, carry := e.boundaries(rows, carry)
	if bounds.IsZero() {
		if !e.readsText(page) {
			return nil, carry, bounds, "none"
		}
		records, carry := e.textPage(page, carry, tr)
		return records, carry, bounds, "text"
	}

	footer := 0.0
	if e.desc.Assembly.FooterMargin > 0 && page.Height > 0 {
		footer = page.Height - e.desc.Assembly.FooterMargin
	}

	var lines []assemble.Line
	for i, row := range body {
		text := row.Text()
		switch {
		case footer > 0 && row.Top >= footer:
			tr.add(page.Number, i, text, assemble.OutcomeIgnored, "footer")
			continue
		case e.desc.Ignored(text):
			tr.add(page.Number, i, text, assemble.OutcomeIgnored, "ignore")
			continue
		case e.desc.IsOpeningBalance(text):
			carry.Balance = e.openingBalance(text, carry.Balance)
			tr.add(page.Number, i, text, "opening", "")
			continue
		}
		fields := segment.Bucket(row, bounds, seg.NoiseLen)
		lines = append(lines, assemble.Line{
			Page:   page.Number,
			Index:  i,
			Top:    row.Top,
			Bottom: row.Bottom,
			Text:   text,
			Fields: fields,
			Start:  parseDate(e.desc, fields[models.FieldDate]) != "",
		})
	}

	method := fmt.Sprintf("%s/%s", source, e.desc.Assembly.Mode)
	switch e.desc.Assembly.Mode {
	case layout.ModeWindow:
		a := e.desc.Assembly
		return assemble.Window(lines, a.WindowAbove, a.WindowBelow, footer), carry, bounds, method
	case layout.ModeBand:
		if bands := segment.Bands(page.Rulings, seg.RulingMinTop); len(bands) > 0 {
			return assemble.Bands(lines, bands), carry, bounds, method
		}
		method = source + "/" + string(layout.ModeIncremental)
	}
	return e.feed(lines, tr), carry, bounds, method
}

func (e *Engine) machine() *assemble.Machine {
	return assemble.NewMachine(assemble.Options{
		ContinuationAmounts: e.desc.Assembly.ContinuationAmounts,
		SkipContinuation:    e.desc.SkipContinuation,
	})
}

func (e *Engine) feed(lines []assemble.Line, tr *trace) []assemble.Record {
	m := e.machine()
	for _, l := range lines {
		tr.add(l.Page, l.Index, l.Text, m.Feed(l), "")
	}
	return m.Records()
}

func (e *Engine) textPage(page models.Page, carry Carry, tr *trace) ([]assemble.Record, Carry) {
	m := e.machine()
	for i, raw := range page.Lines() {
		text := normalize.Clean(raw)
		switch {
		case e.desc.IsSeparator(text):
			m.Break()
			tr.add(page.Number, i, text, "separator", "")
			continue
		case e.desc.Ignored(text):
			tr.add(page.Number, i, text, assemble.OutcomeIgnored, "ignore")
			continue
		case e.desc.IsOpeningBalance(text):
			carry.Balance = e.openingBalance(text, carry.Balance)
			tr.add(page.Number, i, text, "opening", "")
			continue
		}
		tr.add(page.Number, i, text, m.Feed(e.textLine(page.Number, i, text)), "")
	}
	return m.Records(), carry
}

// textLine segments a plain text line: the start pattern yields the date,
// trailing amount tokens take the layout's roles and the rest is description.
func (e *Engine) textLine(pageNo, index int, text string) assemble.Line {
	l := assemble.Line{Page: pageNo, Index: index, Text: text}
	rest, date := text, ""
	if m := e.desc.StartPattern().FindStringSubmatchIndex(text); m != nil && m[2] >= 0 {
		if d := text[m[2]:m[3]]; parseDate(e.desc, d) != "" {
			l.Start = true
			date = d
			rest = text[m[1]:]
		}
	}

	fields := map[models.Field]string{}
	if l.Start || e.desc.Assembly.ContinuationAmounts {
		fields, rest = splitAmounts(e.desc, rest)
	}
	if rest = normalize.NormalizeWhitespace(rest); rest != "" {
		fields[models.FieldDescription] = rest
	}
	if date != "" {
		fields[models.FieldDate] = date
	}
	l.Fields = fields
	return l
}

func (e *Engine) tablePage(page models.Page, carry Carry, tr *trace) ([]assemble.Record, Carry) {
	seg := e.desc.Segmentation
	var records []assemble.Record
	for ti, table := range page.Tables {
		cols, body := e.tableColumns(table, carry)
		if cols == nil {
			tr.add(page.Number, ti, fmt.Sprintf("table %d", ti), assemble.OutcomeIgnored, "no header")
			continue
		}
		if len(body) < len(table) {
			carry.Columns = cols
		}

		m := e.machine()
		for ri, row := range body {
			text := normalize.Clean(strings.Join(row, " "))
			if text == "" {
				continue
			}
			switch {
			case e.desc.IsSeparator(text):
				m.Break()
				continue
			case e.desc.Ignored(text):
				tr.add(page.Number, ri, text, assemble.OutcomeIgnored, "ignore")
				continue
			case e.desc.IsOpeningBalance(text):
				carry.Balance = e.openingBalance(text, carry.Balance)
				continue
			}
			fields := make(map[models.Field]string, len(cols))
			for f, idx := range cols {
				if idx < len(row) {
					if v := normalize.Clean(row[idx]); v != "" && !segment.IsNoise(v, seg.NoiseLen) {
						fields[f] = v
					}
				}
			}
			l := assemble.Line{
				Page:   page.Number,
				Index:  ri,
				Text:   text,
				Fields: fields,
				Start:  parseDate(e.desc, fields[models.FieldDate]) != "",
			}
			tr.add(page.Number, ri, text, m.Feed(l), "table")
		}
		records = append(records, m.Records()...)
	}
	return records, carry
}

// tableColumns finds the table's header row, or falls back to the carried
// column map and then the layout's fixed columns.
func (e *Engine) tableColumns(table models.Table, carry Carry) (map[models.Field]int, [][]string) {
	seg := e.desc.Segmentation
	limit := min(seg.HeaderRows, len(table))
	for i := 0; i < limit; i++ {
		cols := segment.MatchCells(table[i], seg.Vocabulary)
		if segment.Covers(cols, seg.Required) {
			return cols, table[i+1:]
		}
	}
	if carry.Columns != nil {
		return carry.Columns, table
	}
	if len(e.desc.Amounts.Columns) > 0 {
		return e.desc.Amounts.Columns, table
	}
	return nil, nil
}

func (e *Engine) openingBalance(text string, st disambiguate.State) disambiguate.State {
	raw, ok := lastAmount(e.desc, text)
	if !ok {
		return st
	}
	a := normalize.ParseAmountToken(raw)
	if !a.OK {
		return st
	}
	return st.WithBalance(a.Value)
}

// finish normalizes a record. A non-empty reason means the record was dropped.
func (e *Engine) finish(rec assemble.Record, st disambiguate.State) (models.Transaction, disambiguate.State, string) {
	date := parseDate(e.desc, rec.Fields[models.FieldDate])
	if date == "" {
		return models.Transaction{}, st, "unparseable date"
	}

	raw := rec.Description()
	ref := normalize.Clean(rec.Fields[models.FieldReference])
	if len(ref) < e.desc.Reference.MinLength {
		ref = ""
	}
	if ref == "" {
		for _, re := range e.desc.ReferencePatterns() {
			if m := strings.TrimSpace(re.FindString(raw)); m != "" {
				ref = m
				raw = normalize.RemoveFragment(raw, m)
				break
			}
		}
	}
	description := normalize.CleanDescription(raw, e.desc.StripPatterns()...)

	if e.desc.Dropped(description) {
		if bal := normalize.ParseAmountToken(rec.Fields[models.FieldBalance]); bal.OK {
			st = st.WithBalance(bal.Value)
		}
		return models.Transaction{}, st, "summary row"
	}

	res, st := e.resolver.Resolve(disambiguate.Input{
		Debit:       rec.Fields[models.FieldDebit],
		Credit:      rec.Fields[models.FieldCredit],
		Amount:      rec.Fields[models.FieldAmount],
		Balance:     rec.Fields[models.FieldBalance],
		Description: description,
	}, st)
	switch {
	case res.Drop:
		return models.Transaction{}, st, "unresolved amount"
	case res.Empty():
		return models.Transaction{}, st, "no amount"
	}

	return models.Transaction{
		Date:        date,
		Withdrawals: res.Withdrawal,
		Deposits:    res.Deposit,
		Description: description,
		Reference:   ref,
		Page:        rec.Page,
		Rule:        res.Rule,
		Ambiguous:   res.Ambiguous,
	}, st, ""
}

func dedupe(txns []models.Transaction) []models.Transaction {
	seen := make(map[string]bool, len(txns))
	out := txns[:0:0]
	for _, t := range txns {
		key := strings.Join([]string{
			t.Date, t.Withdrawals.String(), t.Deposits.String(), normalize.Fold(t.Description),
		}, "|")
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}

type trace struct {
	lines []models.DebugLine
}

func (t *trace) add(page, line int, text, result, method string) {
	t.lines = append(t.lines, models.DebugLine{Page: page, Line: line, Text: text, Result: result, Method: method})
}
