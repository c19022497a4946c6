// Package layout defines Layout Descriptors. A descriptor is a data value
// describing one statement template: how its columns are found, how rows are
// grouped into transactions and how withdrawals are told apart from deposits.
// The parser runs the same engine for every descriptor.
package layout

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/insightdelivered/statement-ledger/internal/models"
	"github.com/insightdelivered/statement-ledger/internal/normalize"
)

// Source selects which part of an acquired page the engine reads.
type Source string

const (
	SourceWords  Source = "words"
	SourceText   Source = "text"
	SourceTables Source = "tables"
)

// Strategy selects how column boundaries are found.
type Strategy string

const (
	StrategyHeader Strategy = "header"
	StrategyRuling Strategy = "ruling"
	StrategyFixed  Strategy = "fixed"
)

// Mode selects how lines are grouped into transactions.
type Mode string

const (
	ModeIncremental Mode = "incremental"
	ModeWindow      Mode = "window"
	ModeBand        Mode = "band"
)

// Rule names one step of debit/credit disambiguation.
type Rule string

const (
	RuleColumn  Rule = "column"
	RuleMarker  Rule = "marker"
	RuleBalance Rule = "balance"
	RuleKeyword Rule = "keyword"
)

// Policy is what happens to an amount no rule could place.
type Policy string

const (
	PolicyDeposit    Policy = "deposit"
	PolicyWithdrawal Policy = "withdrawal"
	PolicyDrop       Policy = "drop"
)

// ParsePolicy accepts "", deposit, withdrawal or drop.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", PolicyDeposit, PolicyWithdrawal, PolicyDrop:
		return p, nil
	default:
		return "", fmt.Errorf("invalid policy %q (must be deposit, withdrawal or drop)", s)
	}
}

const (
	// DefaultStart matches a date-shaped token at the start of a text line.
	DefaultStart = `^\s*(\d{1,2}[/.-]\d{1,2}[/.-]\d{2,4}|\d{1,2}[ -](?i:[a-z]{3,9})\.?[ -]\d{2,4}|\d{4}-\d{2}-\d{2}|\d{2}(?i:[a-z]{3})\d{2,4})\b`
	// DefaultAmount matches a money token with two decimals and an optional side marker.
	DefaultAmount = `[-+]?\(?(?:\d{1,3}(?:,\d{3})+|\d+)\.\d{2}\)?(?:\s?(?i:cr|dr)\b\.?)?-?`

	defaultHeaderRows   = 40
	defaultRowTolerance = 3.0
	defaultBalanceGap   = 85.0
	defaultNoiseLen     = 3
)

// Detect holds the first-page signatures the Format Detector scores.
type Detect struct {
	Any          []string `yaml:"any" json:"any,omitempty"`
	All          []string `yaml:"all" json:"all,omitempty"`
	DatePattern  string   `yaml:"date_pattern" json:"datePattern,omitempty"`
	NeedsRulings bool     `yaml:"needs_rulings" json:"needsRulings,omitempty"`
	NeedsTables  bool     `yaml:"needs_tables" json:"needsTables,omitempty"`
}

// Empty reports whether the descriptor can only be reached through the
// fallback chain.
func (d Detect) Empty() bool {
	return len(d.Any) == 0 && len(d.All) == 0 && d.DatePattern == ""
}

// DateSpec lists the accepted source date formats and the text-mode start marker.
type DateSpec struct {
	Formats []string `yaml:"formats" json:"formats,omitempty"`
	Start   string   `yaml:"start" json:"start,omitempty"`
}

// Segmentation configures the Row/Column Segmenter.
type Segmentation struct {
	Strategy     Strategy                  `yaml:"strategy" json:"strategy"`
	HeaderRows   int                       `yaml:"header_rows" json:"headerRows"`
	Vocabulary   map[models.Field][]string `yaml:"vocabulary" json:"vocabulary,omitempty"`
	Required     []models.Field            `yaml:"required" json:"required,omitempty"`
	Defaults     map[models.Field]float64  `yaml:"defaults" json:"defaults,omitempty"`
	BalanceGap   float64                   `yaml:"balance_gap" json:"balanceGap"`
	RowTolerance float64                   `yaml:"row_tolerance" json:"rowTolerance"`
	RulingMinTop float64                   `yaml:"ruling_min_top" json:"rulingMinTop,omitempty"`
	NoiseLen     int                       `yaml:"noise_len" json:"noiseLen"`
}

// Assembly configures the Transaction Assembler.
type Assembly struct {
	Mode                Mode     `yaml:"mode" json:"mode"`
	WindowAbove         float64  `yaml:"window_above" json:"windowAbove,omitempty"`
	WindowBelow         float64  `yaml:"window_below" json:"windowBelow,omitempty"`
	FooterMargin        float64  `yaml:"footer_margin" json:"footerMargin,omitempty"`
	ContinuationAmounts bool     `yaml:"continuation_amounts" json:"continuationAmounts,omitempty"`
	Ignore              []string `yaml:"ignore" json:"ignore,omitempty"`
	SkipContinuation    []string `yaml:"skip_continuation" json:"skipContinuation,omitempty"`
	Separator           string   `yaml:"separator" json:"separator,omitempty"`
	OpeningBalance      []string `yaml:"opening_balance" json:"openingBalance,omitempty"`
}

// Amounts configures how amount tokens map to fields.
type Amounts struct {
	Pattern  string                 `yaml:"pattern" json:"pattern,omitempty"`
	Trailing map[int][]models.Field `yaml:"trailing" json:"trailing,omitempty"`
	Columns  map[models.Field]int   `yaml:"columns" json:"columns,omitempty"`
}

// Disambiguation is the per-layout rule order and keyword tables.
type Disambiguation struct {
	Order              []Rule   `yaml:"order" json:"order"`
	CreditMarkers      []string `yaml:"credit_markers" json:"creditMarkers,omitempty"`
	DebitMarkers       []string `yaml:"debit_markers" json:"debitMarkers,omitempty"`
	MarkerAbsent       string   `yaml:"marker_absent" json:"markerAbsent,omitempty"`
	DepositKeywords    []string `yaml:"deposit_keywords" json:"depositKeywords,omitempty"`
	WithdrawalKeywords []string `yaml:"withdrawal_keywords" json:"withdrawalKeywords,omitempty"`
	Unresolved         Policy   `yaml:"unresolved" json:"unresolved"`
	DuplicateDefault   Policy   `yaml:"duplicate_default" json:"duplicateDefault"`
}

// Has reports whether rule is part of the order.
func (d Disambiguation) Has(rule Rule) bool {
	for _, r := range d.Order {
		if r == rule {
			return true
		}
	}
	return false
}

// Reference lists the reference-number patterns tried in order.
type Reference struct {
	Patterns  []string `yaml:"patterns" json:"patterns,omitempty"`
	MinLength int      `yaml:"min_length" json:"minLength,omitempty"`
}

// Description configures description cleanup.
type Description struct {
	Strip  []string `yaml:"strip" json:"strip,omitempty"`
	Drop   string   `yaml:"drop" json:"drop,omitempty"`
	Dedupe bool     `yaml:"dedupe" json:"dedupe,omitempty"`
}

// Descriptor describes one statement layout.
//
// Descriptors come from YAML through Parse, ParseDescriptor, LoadEmbedded or
// LoadFile, all of which validate and compile them. A zero Descriptor built
// by hand must go through Compile before use.
type Descriptor struct {
	Name           string         `yaml:"name" json:"name"`
	Institution    string         `yaml:"institution" json:"institution"`
	Family         string         `yaml:"family" json:"family,omitempty"`
	Currency       string         `yaml:"currency" json:"currency"`
	Priority       int            `yaml:"priority" json:"priority"`
	Source         Source         `yaml:"source" json:"source"`
	TextFallback   bool           `yaml:"text_fallback" json:"textFallback,omitempty"`
	Detect         Detect         `yaml:"detect" json:"detect"`
	Date           DateSpec       `yaml:"date" json:"date"`
	Segmentation   Segmentation   `yaml:"segmentation" json:"segmentation"`
	Assembly       Assembly       `yaml:"assembly" json:"assembly"`
	Amounts        Amounts        `yaml:"amounts" json:"amounts"`
	Disambiguation Disambiguation `yaml:"disambiguation" json:"disambiguation"`
	Reference      Reference      `yaml:"reference" json:"reference"`
	Description    Description    `yaml:"description" json:"description"`

	compiled *compiled
}

type compiled struct {
	start         *regexp.Regexp
	amount        *regexp.Regexp
	detectDate    *regexp.Regexp
	separator     *regexp.Regexp
	drop          *regexp.Regexp
	ignore        []*regexp.Regexp
	skipCont      []*regexp.Regexp
	references    []*regexp.Regexp
	strip         []*regexp.Regexp
	creditMarkers []*regexp.Regexp
	debitMarkers  []*regexp.Regexp
}

// ParseDescriptor decodes, validates and compiles a single descriptor.
func ParseDescriptor(data []byte) (*Descriptor, error) {
	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse descriptor YAML: %w", err)
	}
	if err := d.Compile(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Compile fills defaults, checks every field and compiles the regexes.
func (d *Descriptor) Compile() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("descriptor name cannot be empty")
	}
	if err := d.applyDefaults(); err != nil {
		return fmt.Errorf("layout %s: %w", d.Name, err)
	}
	if err := d.validate(); err != nil {
		return fmt.Errorf("layout %s: %w", d.Name, err)
	}
	c, err := d.compile()
	if err != nil {
		return fmt.Errorf("layout %s: %w", d.Name, err)
	}
	d.compiled = c
	return nil
}

func (d *Descriptor) applyDefaults() error {
	if d.Source == "" {
		d.Source = SourceWords
	}
	if d.Currency == "" {
		d.Currency = "AED"
	}
	if len(d.Date.Formats) == 0 {
		d.Date.Formats = append([]string(nil), normalize.DateFormats...)
	}
	if d.Date.Start == "" {
		d.Date.Start = DefaultStart
	}

	s := &d.Segmentation
	if s.Strategy == "" {
		s.Strategy = StrategyHeader
	}
	if s.HeaderRows == 0 {
		s.HeaderRows = defaultHeaderRows
	}
	if s.RowTolerance == 0 {
		s.RowTolerance = defaultRowTolerance
	}
	if s.BalanceGap == 0 {
		s.BalanceGap = defaultBalanceGap
	}
	if s.NoiseLen == 0 {
		s.NoiseLen = defaultNoiseLen
	}
	if len(s.Required) == 0 {
		s.Required = []models.Field{models.FieldDate, models.FieldDebit, models.FieldCredit}
	}

	if d.Assembly.Mode == "" {
		d.Assembly.Mode = ModeIncremental
		if s.Strategy == StrategyRuling {
			d.Assembly.Mode = ModeBand
		}
	}

	if d.Amounts.Pattern == "" {
		d.Amounts.Pattern = DefaultAmount
	}
	if len(d.Amounts.Trailing) == 0 {
		d.Amounts.Trailing = map[int][]models.Field{
			1: {models.FieldAmount},
			2: {models.FieldAmount, models.FieldBalance},
			3: {models.FieldDebit, models.FieldCredit, models.FieldBalance},
		}
	}

	m := &d.Disambiguation
	if len(m.Order) == 0 {
		m.Order = []Rule{RuleColumn, RuleMarker, RuleBalance, RuleKeyword}
	}
	if m.MarkerAbsent == "" {
		m.MarkerAbsent = "next"
	}
	if m.Unresolved == "" {
		m.Unresolved = PolicyDeposit
	}
	if m.DuplicateDefault == "" {
		m.DuplicateDefault = PolicyDeposit
	}
	return nil
}

func (d *Descriptor) validate() error {
	switch d.Source {
	case SourceWords, SourceText, SourceTables:
	default:
		return fmt.Errorf("invalid source %q (must be words, text or tables)", d.Source)
	}
	for _, f := range d.Date.Formats {
		if !normalize.KnownDateFormat(f) {
			return fmt.Errorf("unknown date format %q", f)
		}
	}

	s := d.Segmentation
	switch s.Strategy {
	case StrategyHeader, StrategyRuling, StrategyFixed:
	default:
		return fmt.Errorf("invalid segmentation strategy %q", s.Strategy)
	}
	for f, terms := range s.Vocabulary {
		if !f.Valid() {
			return fmt.Errorf("vocabulary: unknown field %q", f)
		}
		for _, t := range terms {
			if strings.TrimSpace(strings.TrimPrefix(t, "=")) == "" {
				return fmt.Errorf("vocabulary %s: empty term", f)
			}
		}
	}
	for _, f := range s.Required {
		if !f.Valid() {
			return fmt.Errorf("required: unknown field %q", f)
		}
		needsVocab := d.Source != SourceText && s.Strategy != StrategyFixed &&
			!(d.Source == SourceTables && len(d.Amounts.Columns) > 0)
		if needsVocab && len(s.Vocabulary[f]) == 0 {
			return fmt.Errorf("required field %q has no vocabulary", f)
		}
	}
	for f := range s.Defaults {
		if !f.Valid() {
			return fmt.Errorf("defaults: unknown field %q", f)
		}
	}
	if s.Strategy == StrategyFixed && len(s.Defaults) == 0 && d.Source == SourceWords {
		return fmt.Errorf("fixed strategy needs default anchors")
	}
	if s.RowTolerance < 0 || s.BalanceGap < 0 || s.HeaderRows < 0 {
		return fmt.Errorf("segmentation values must not be negative")
	}

	switch d.Assembly.Mode {
	case ModeIncremental, ModeWindow, ModeBand:
	default:
		return fmt.Errorf("invalid assembly mode %q", d.Assembly.Mode)
	}

	for n, roles := range d.Amounts.Trailing {
		if n <= 0 || len(roles) == 0 || len(roles) > n {
			return fmt.Errorf("amounts.trailing[%d]: needs between 1 and %d roles", n, n)
		}
		for _, r := range roles {
			if !r.IsAmount() && r != models.FieldSkip {
				return fmt.Errorf("amounts.trailing[%d]: %q is not an amount role", n, r)
			}
		}
	}
	for f, idx := range d.Amounts.Columns {
		if !f.Valid() || idx < 0 {
			return fmt.Errorf("amounts.columns: invalid mapping %s=%d", f, idx)
		}
	}

	m := d.Disambiguation
	for _, r := range m.Order {
		switch r {
		case RuleColumn, RuleMarker, RuleBalance, RuleKeyword:
		default:
			return fmt.Errorf("disambiguation: unknown rule %q", r)
		}
	}
	if m.MarkerAbsent != "next" && m.MarkerAbsent != string(PolicyWithdrawal) && m.MarkerAbsent != string(PolicyDeposit) {
		return fmt.Errorf("disambiguation: marker_absent must be next, withdrawal or deposit, got %q", m.MarkerAbsent)
	}
	for _, p := range []Policy{m.Unresolved, m.DuplicateDefault} {
		if _, err := ParsePolicy(string(p)); err != nil {
			return fmt.Errorf("disambiguation: %w", err)
		}
	}
	if m.DuplicateDefault == PolicyDrop {
		return fmt.Errorf("disambiguation: duplicate_default cannot be drop")
	}
	return nil
}

func (d *Descriptor) compile() (*compiled, error) {
	c := &compiled{}
	var err error

	if c.start, err = compileOne("date.start", d.Date.Start); err != nil {
		return nil, err
	}
	if c.start.NumSubexp() < 1 {
		return nil, fmt.Errorf("date.start must capture the date in group 1")
	}
	if c.amount, err = compileOne("amounts.pattern", d.Amounts.Pattern); err != nil {
		return nil, err
	}
	if d.Detect.DatePattern != "" {
		if c.detectDate, err = compileOne("detect.date_pattern", d.Detect.DatePattern); err != nil {
			return nil, err
		}
	}
	if d.Assembly.Separator != "" {
		if c.separator, err = compileOne("assembly.separator", d.Assembly.Separator); err != nil {
			return nil, err
		}
	}
	if d.Description.Drop != "" {
		if c.drop, err = compileOne("description.drop", d.Description.Drop); err != nil {
			return nil, err
		}
	}
	groups := []struct {
		name string
		src  []string
		dst  *[]*regexp.Regexp
	}{
		{"assembly.ignore", d.Assembly.Ignore, &c.ignore},
		{"assembly.skip_continuation", d.Assembly.SkipContinuation, &c.skipCont},
		{"reference.patterns", d.Reference.Patterns, &c.references},
		{"description.strip", d.Description.Strip, &c.strip},
		{"disambiguation.credit_markers", d.Disambiguation.CreditMarkers, &c.creditMarkers},
		{"disambiguation.debit_markers", d.Disambiguation.DebitMarkers, &c.debitMarkers},
	}
	for _, g := range groups {
		for _, src := range g.src {
			re, err := compileOne(g.name, src)
			if err != nil {
				return nil, err
			}
			*g.dst = append(*g.dst, re)
		}
	}
	return c, nil
}

func compileOne(name, expr string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return re, nil
}

func (d *Descriptor) c() *compiled {
	if d.compiled == nil {
		panic(fmt.Sprintf("layout %s used before Compile", d.Name))
	}
	return d.compiled
}

// StartPattern is the text-mode start marker; group 1 is the date.
func (d *Descriptor) StartPattern() *regexp.Regexp { return d.c().start }

// AmountPattern matches one money token.
func (d *Descriptor) AmountPattern() *regexp.Regexp { return d.c().amount }

// DetectDate is the first-page date signature, or nil.
func (d *Descriptor) DetectDate() *regexp.Regexp { return d.c().detectDate }

// ReferencePatterns are tried in order against the raw description.
func (d *Descriptor) ReferencePatterns() []*regexp.Regexp { return d.c().references }

// StripPatterns are removed from every description.
func (d *Descriptor) StripPatterns() []*regexp.Regexp { return d.c().strip }

// Ignored reports whether a row or line is page furniture.
func (d *Descriptor) Ignored(text string) bool { return anyMatch(d.c().ignore, text) }

// SkipContinuation reports whether a continuation line must not reach the description.
func (d *Descriptor) SkipContinuation(text string) bool { return anyMatch(d.c().skipCont, text) }

// IsSeparator reports whether a text line stands in for a ruling line.
func (d *Descriptor) IsSeparator(text string) bool {
	return d.c().separator != nil && d.c().separator.MatchString(text)
}

// Dropped reports whether an assembled description marks a non-transaction
// row such as an opening or closing balance.
func (d *Descriptor) Dropped(description string) bool {
	return d.c().drop != nil && d.c().drop.MatchString(description)
}

// CreditMarked reports whether raw amount text carries a layout credit marker.
func (d *Descriptor) CreditMarked(raw string) bool { return anyMatch(d.c().creditMarkers, raw) }

// DebitMarked reports whether raw amount text carries a layout debit marker.
func (d *Descriptor) DebitMarked(raw string) bool { return anyMatch(d.c().debitMarkers, raw) }

// IsOpeningBalance reports whether text is an opening balance row.
func (d *Descriptor) IsOpeningBalance(text string) bool {
	for _, phrase := range d.Assembly.OpeningBalance {
		if normalize.ContainsFold(text, phrase) {
			return true
		}
	}
	return false
}

// Roles returns the field roles for the trailing amount tokens of a text
// line holding n amount tokens. The entry with the largest count not above
// n is used; its roles apply to the last len(roles) tokens.
func (d *Descriptor) Roles(n int) []models.Field {
	if n <= 0 {
		return nil
	}
	keys := make([]int, 0, len(d.Amounts.Trailing))
	for k := range d.Amounts.Trailing {
		keys = append(keys, k)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(keys)))
	for _, k := range keys {
		if k <= n {
			return d.Amounts.Trailing[k]
		}
	}
	return nil
}

func anyMatch(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
