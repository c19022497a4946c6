// Package segment assigns positioned words to logical fields. It groups
// words into rows, finds header rows, derives column boundaries from header
// anchors and buckets every word by its x position.
package segment

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/insightdelivered/statement-ledger/internal/models"
	"github.com/insightdelivered/statement-ledger/internal/normalize"
)

// Row is a run of words sharing a baseline, left to right.
type Row struct {
	Top    float64
	Bottom float64
	Words  []models.Word
}

// Text joins the row's words with single spaces.
func (r Row) Text() string {
	parts := make([]string, 0, len(r.Words))
	for _, w := range r.Words {
		parts = append(parts, w.Text)
	}
	return normalize.NormalizeWhitespace(strings.Join(parts, " "))
}

// GroupRows sorts words top to bottom and groups those whose tops lie within
// tolerance of the row's first word.
func GroupRows(words []models.Word, tolerance float64) []Row {
	if len(words) == 0 {
		return nil
	}
	sorted := make([]models.Word, len(words))
	copy(sorted, words)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Top != sorted[j].Top {
			return sorted[i].Top < sorted[j].Top
		}
		return sorted[i].X0 < sorted[j].X0
	})

	var rows []Row
	current := Row{Top: sorted[0].Top, Bottom: sorted[0].Bottom, Words: []models.Word{sorted[0]}}
	for _, w := range sorted[1:] {
		if math.Abs(w.Top-current.Top) <= tolerance {
			current.Words = append(current.Words, w)
			current.Bottom = math.Max(current.Bottom, w.Bottom)
			continue
		}
		rows = append(rows, current)
		current = Row{Top: w.Top, Bottom: w.Bottom, Words: []models.Word{w}}
	}
	rows = append(rows, current)

	for i := range rows {
		ws := rows[i].Words
		sort.SliceStable(ws, func(a, b int) bool { return ws[a].X0 < ws[b].X0 })
	}
	return rows
}

// Center is the horizontal midpoint of a word.
func Center(w models.Word) float64 {
	return (w.X0 + w.X1) / 2
}

// Column is one field's half-open horizontal range [Left, Right).
type Column struct {
	Field models.Field `json:"field"`
	Left  float64      `json:"left"`
	Right float64      `json:"right"`
}

// Boundaries is a Column Position Map: non-overlapping columns sorted by Left.
type Boundaries struct {
	Columns []Column `json:"columns"`
}

// IsZero reports whether no columns are known.
func (b Boundaries) IsZero() bool {
	return len(b.Columns) == 0
}

// Has reports whether a column for f exists.
func (b Boundaries) Has(f models.Field) bool {
	for _, c := range b.Columns {
		if c.Field == f {
			return true
		}
	}
	return false
}

// Classify returns the field whose column contains x, or "" when there are
// no columns. It depends on nothing but x and b.
func (b Boundaries) Classify(x float64) models.Field {
	for _, c := range b.Columns {
		if x >= c.Left && x < c.Right {
			return c.Field
		}
	}
	return ""
}

// String renders the map for debug traces, e.g. "date<95 description<285".
func (b Boundaries) String() string {
	parts := make([]string, 0, len(b.Columns))
	for _, c := range b.Columns {
		if math.IsInf(c.Right, 1) {
			parts = append(parts, string(c.Field)+"<inf")
			continue
		}
		parts = append(parts, string(c.Field)+"<"+formatCoord(c.Right))
	}
	return strings.Join(parts, " ")
}

func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Anchor is the left x of a matched header token.
type Anchor struct {
	Field models.Field `json:"field"`
	X     float64      `json:"x"`
}

// FromAnchors derives boundaries as midpoints between consecutive sorted
// anchors. The first column starts at the page's left edge and the last one
// ends at its right edge. When no balance anchor is present and balanceGap is
// positive, a balance column opens balanceGap points after the last anchor.
func FromAnchors(anchors []Anchor, balanceGap float64) Boundaries {
	if len(anchors) == 0 {
		return Boundaries{}
	}
	sorted := make([]Anchor, len(anchors))
	copy(sorted, anchors)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].X < sorted[j].X })

	cols := make([]Column, len(sorted))
	for i, a := range sorted {
		left := math.Inf(-1)
		if i > 0 {
			left = (sorted[i-1].X + a.X) / 2
		}
		right := math.Inf(1)
		if i < len(sorted)-1 {
			right = (a.X + sorted[i+1].X) / 2
		}
		cols[i] = Column{Field: a.Field, Left: left, Right: right}
	}

	hasBalance := false
	for _, a := range sorted {
		if a.Field == models.FieldBalance {
			hasBalance = true
		}
	}
	if !hasBalance && balanceGap > 0 {
		last := sorted[len(sorted)-1]
		edge := last.X + balanceGap
		cols[len(cols)-1].Right = edge
		cols = append(cols, Column{Field: models.FieldBalance, Left: edge, Right: math.Inf(1)})
	}
	return Boundaries{Columns: cols}
}

// FromDefaults turns a descriptor's hard-coded anchor map into boundaries.
func FromDefaults(defaults map[models.Field]float64, balanceGap float64) Boundaries {
	anchors := make([]Anchor, 0, len(defaults))
	for _, f := range models.Fields {
		if x, ok := defaults[f]; ok {
			anchors = append(anchors, Anchor{Field: f, X: x})
		}
	}
	return FromAnchors(anchors, balanceGap)
}

// Bucket joins each field's words, left to right. A word belongs to the
// column holding its left edge, the same x the header anchors use, so
// right-aligned amounts stay in their own column. Foreign-script words
// shorter than noiseLen runes are dropped before classification.
func Bucket(row Row, b Boundaries, noiseLen int) map[models.Field]string {
	parts := make(map[models.Field][]string)
	for _, w := range row.Words {
		if IsNoise(w.Text, noiseLen) {
			continue
		}
		f := b.Classify(w.X0)
		if f == "" {
			continue
		}
		parts[f] = append(parts[f], w.Text)
	}
	out := make(map[models.Field]string, len(parts))
	for f, p := range parts {
		out[f] = normalize.NormalizeWhitespace(strings.Join(p, " "))
	}
	return out
}

// IsNoise reports whether text is a short foreign-script fragment.
func IsNoise(text string, noiseLen int) bool {
	return normalize.IsForeign(text) && utf8.RuneCountInString(strings.TrimSpace(text)) < noiseLen
}
