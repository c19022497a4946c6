// Package assemble groups segmented lines into per-transaction records.
//
// The incremental Machine is a two-state automaton: Idle until a start line
// arrives, then Open while continuation lines accumulate. Window and Bands
// are variants that read a bounded vertical region instead.
package assemble

import (
	"math"
	"strings"

	"github.com/insightdelivered/statement-ledger/internal/models"
	"github.com/insightdelivered/statement-ledger/internal/segment"
)

// Line is one physical row or text line after segmentation.
type Line struct {
	Page   int
	Index  int
	Top    float64
	Bottom float64
	Text   string
	Fields map[models.Field]string
	Start  bool // carries a start marker
}

// Record is an assembled transaction before normalization.
type Record struct {
	Page   int
	Line   int // index of the start line
	Top    float64
	Fields map[models.Field]string // first value wins, description excluded
	Parts  []string                // description fragments in reading order
	Raw    []string                // full text of every line
}

// Description joins the description fragments with single spaces.
func (r Record) Description() string {
	return strings.Join(r.Parts, " ")
}

// RawText joins every line of the record.
func (r Record) RawText() string {
	return strings.Join(r.Raw, " ")
}

func newRecord(l Line) *Record {
	r := &Record{Page: l.Page, Line: l.Index, Top: l.Top, Fields: make(map[models.Field]string)}
	r.absorb(l, true, true)
	return r
}

// absorb merges l into r. Non-description fields are only filled when empty.
func (r *Record) absorb(l Line, description, amounts bool) {
	r.Raw = append(r.Raw, l.Text)
	for f, v := range l.Fields {
		if v == "" {
			continue
		}
		switch {
		case f == models.FieldDescription:
			if description {
				r.Parts = append(r.Parts, v)
			}
		case f == models.FieldSkip:
		case !amounts && f != models.FieldDate:
		default:
			if r.Fields[f] == "" {
				r.Fields[f] = v
			}
		}
	}
}

// State of the incremental machine.
type State int

const (
	Idle State = iota
	Open
)

func (s State) String() string {
	if s == Open {
		return "open"
	}
	return "idle"
}

// Outcome of feeding one line, recorded in debug traces.
const (
	OutcomeStart        = "start"
	OutcomeContinuation = "continuation"
	OutcomeSkipped      = "skipped"
	OutcomeIgnored      = "ignored"
)

// Options tune the incremental machine.
type Options struct {
	// ContinuationAmounts merges amount and reference fields found on
	// continuation lines into the open record when it has none yet.
	ContinuationAmounts bool
	// SkipContinuation keeps matching continuation lines out of the description.
	SkipContinuation func(text string) bool
}

// Machine assembles records incrementally.
type Machine struct {
	opts Options
	open *Record
	out  []Record
}

// NewMachine returns an Idle machine.
func NewMachine(opts Options) *Machine {
	return &Machine{opts: opts}
}

// State reports whether a record is open.
func (m *Machine) State() State {
	if m.open != nil {
		return Open
	}
	return Idle
}

// Feed advances the machine by one line and reports what happened to it.
func (m *Machine) Feed(l Line) string {
	if l.Start {
		m.Break()
		m.open = newRecord(l)
		return OutcomeStart
	}
	if m.open == nil {
		return OutcomeIgnored
	}
	if m.opts.SkipContinuation != nil && m.opts.SkipContinuation(l.Text) {
		m.open.Raw = append(m.open.Raw, l.Text)
		return OutcomeSkipped
	}
	m.open.absorb(l, true, m.opts.ContinuationAmounts)
	return OutcomeContinuation
}

// Break emits the open record, if any, and returns to Idle. It is called on
// a new start marker, a separator and at the end of every page.
func (m *Machine) Break() {
	if m.open == nil {
		return
	}
	m.out = append(m.out, *m.open)
	m.open = nil
}

// Records flushes the open record and returns everything emitted so far.
func (m *Machine) Records() []Record {
	m.Break()
	out := m.out
	m.out = nil
	return out
}

// Window builds one record per start line from the lines between
// start.Top-above and the next start's Top-above. A positive below caps the
// region at start.Top+below, and nothing at or beyond footer is read.
// Lines must be in top-to-bottom order.
func Window(lines []Line, above, below, footer float64) []Record {
	var starts []int
	for i, l := range lines {
		if l.Start {
			starts = append(starts, i)
		}
	}
	if len(starts) == 0 {
		return nil
	}
	if footer <= 0 {
		footer = math.Inf(1)
	}

	records := make([]Record, 0, len(starts))
	for k, si := range starts {
		start := lines[si]
		lo := start.Top - above
		hi := math.Inf(1)
		if k+1 < len(starts) {
			hi = lines[starts[k+1]].Top - above
		}
		if below > 0 {
			hi = math.Min(hi, start.Top+below)
		}
		hi = math.Min(hi, footer)

		rec := &Record{Page: start.Page, Line: start.Index, Top: start.Top, Fields: make(map[models.Field]string)}
		// The start line's own fields take precedence over its neighbours.
		for f, v := range start.Fields {
			if v != "" && f != models.FieldDescription && f != models.FieldSkip {
				rec.Fields[f] = v
			}
		}
		for i, l := range lines {
			if i != si && (l.Start || l.Top < lo || l.Top >= hi) {
				continue
			}
			rec.absorb(l, true, true)
		}
		records = append(records, *rec)
	}
	return records
}

// Bands builds one record per band holding at least one start line. Every
// line inside the band contributes; lines outside all bands are dropped.
func Bands(lines []Line, bands []segment.Band) []Record {
	var records []Record
	for _, b := range bands {
		var rec *Record
		var pending []Line
		for _, l := range lines {
			if !b.Contains(l.Top, l.Bottom) {
				continue
			}
			if rec == nil && !l.Start {
				pending = append(pending, l)
				continue
			}
			if rec == nil {
				rec = newRecord(l)
				// description lines above the date row still belong to the band
				parts := rec.Parts
				rec.Parts = nil
				rec.Raw = nil
				for _, p := range pending {
					rec.absorb(p, true, true)
				}
				rec.Parts = append(rec.Parts, parts...)
				rec.Raw = append(rec.Raw, l.Text)
				continue
			}
			rec.absorb(l, true, true)
		}
		if rec != nil {
			records = append(records, *rec)
		}
	}
	return records
}
