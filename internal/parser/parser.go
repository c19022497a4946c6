package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/insightdelivered/statement-ledger/internal/layout"
	"github.com/insightdelivered/statement-ledger/internal/logger"
	"github.com/insightdelivered/statement-ledger/internal/models"
	"github.com/insightdelivered/statement-ledger/internal/normalize"
)

// Parser turns an acquired document into a ledger.
type Parser interface {
	// Parse runs extraction. An empty ledger means the layout did not fit.
	Parse(ctx context.Context, doc *models.Document) *models.Ledger
	// Name returns the layout name.
	Name() string
}

// Name implements Parser.
func (e *Engine) Name() string {
	return e.desc.Name
}

// ErrUnknownLayout is returned for a forced layout the registry does not hold.
type ErrUnknownLayout struct {
	Name  string
	Known []string
}

func (e *ErrUnknownLayout) Error() string {
	return fmt.Sprintf("unknown layout %q (known: %s)", e.Name, strings.Join(e.Known, ", "))
}

// New returns the engine for the named layout.
func New(reg *layout.Registry, name string, opts Options) (Parser, error) {
	desc, ok := reg.Lookup(name)
	if !ok {
		return nil, &ErrUnknownLayout{Name: name, Known: reg.Names()}
	}
	return NewEngine(desc, opts), nil
}

// Score rates how well the first page matches desc. Zero means no match.
// Every "all" phrase is required and worth two points; "any" phrases need at
// least one hit and are worth one point each.
func Score(desc *layout.Descriptor, first models.Page) int {
	det := desc.Detect
	if det.Empty() {
		return 0
	}
	text := first.Text
	score := 0
	for _, phrase := range det.All {
		if !normalize.ContainsFold(text, phrase) {
			return 0
		}
		score += 2
	}
	if len(det.Any) > 0 {
		hits := 0
		for _, phrase := range det.Any {
			if normalize.ContainsFold(text, phrase) {
				hits++
			}
		}
		if hits == 0 {
			return 0
		}
		score += hits
	}
	if re := desc.DetectDate(); re != nil {
		if !re.MatchString(text) {
			return 0
		}
		score++
	}
	if det.NeedsRulings && countHorizontal(first.Rulings) < 2 {
		return 0
	}
	if det.NeedsTables && len(first.Tables) == 0 {
		return 0
	}
	return score
}

func countHorizontal(rulings []models.Ruling) int {
	n := 0
	for _, r := range rulings {
		if r.Horizontal() {
			n++
		}
	}
	return n
}

// AutoDetect returns the best scoring layout for doc, or nil when no
// descriptor's signatures match the first page.
func AutoDetect(reg *layout.Registry, doc *models.Document) *layout.Descriptor {
	if doc == nil || len(doc.Pages) == 0 {
		return nil
	}
	var best *layout.Descriptor
	bestScore := 0
	for _, d := range reg.All() {
		// registry order breaks ties
		if s := Score(d, doc.Pages[0]); s > bestScore {
			best, bestScore = d, s
		}
	}
	return best
}

// Dispatcher runs the ordered fallback chain of layouts.
type Dispatcher struct {
	reg  *layout.Registry
	opts Options
}

// NewDispatcher returns a dispatcher over reg.
func NewDispatcher(reg *layout.Registry, opts Options) *Dispatcher {
	return &Dispatcher{reg: reg, opts: opts}
}

// Candidates returns the layouts to try in order: the forced layout, the
// detected one, the rest of its family, the generic layouts without detect
// rules, then the registry order.
func (d *Dispatcher) Candidates(doc *models.Document, forced string) ([]*layout.Descriptor, error) {
	var out []*layout.Descriptor
	seen := make(map[string]bool)
	add := func(desc *layout.Descriptor) {
		if desc != nil && !seen[desc.Name] {
			seen[desc.Name] = true
			out = append(out, desc)
		}
	}

	if forced != "" {
		desc, ok := d.reg.Lookup(forced)
		if !ok {
			return nil, &ErrUnknownLayout{Name: forced, Known: d.reg.Names()}
		}
		add(desc)
	}
	if best := AutoDetect(d.reg, doc); best != nil {
		add(best)
		for _, sib := range d.reg.Family(best.Family) {
			add(sib)
		}
	}
	for _, desc := range d.reg.All() {
		if desc.Detect.Empty() {
			add(desc)
		}
	}
	for _, desc := range d.reg.All() {
		add(desc)
	}
	return out, nil
}

// Run tries each candidate and returns the first non-empty ledger. When
// every layout comes back empty the result is an empty ledger that still
// lists the attempts.
func (d *Dispatcher) Run(ctx context.Context, doc *models.Document, forced string) (*models.Ledger, error) {
	log := logger.FromContext(ctx)

	candidates, err := d.Candidates(doc, forced)
	if err != nil {
		return nil, err
	}

	var attempts []string
	var last *models.Ledger
	for _, desc := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		attempts = append(attempts, desc.Name)
		ledger := NewEngine(desc, d.opts).Parse(ctx, doc)
		if len(ledger.Transactions) > 0 {
			ledger.Attempts = attempts
			log.Info().
				Str("layout", desc.Name).
				Int("attempts", len(attempts)).
				Int("transactions", len(ledger.Transactions)).
				Msg("layout matched")
			return ledger, nil
		}
		log.Debug().Str("layout", desc.Name).Msg("layout yielded nothing")
		last = ledger
	}

	empty := &models.Ledger{Source: doc.Source, Attempts: attempts}
	if last != nil && d.opts.Debug {
		empty.DebugLines = last.DebugLines
	}
	log.Warn().Int("attempts", len(attempts)).Msg("no layout produced transactions")
	return empty, nil
}
