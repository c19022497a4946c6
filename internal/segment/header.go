package segment

import (
	"sort"
	"strings"

	"github.com/insightdelivered/statement-ledger/internal/models"
	"github.com/insightdelivered/statement-ledger/internal/normalize"
)

// Vocabulary maps a field to its header terms. A term is one or more words;
// each word matches a header token by case-folded prefix, or exactly when
// the term starts with "=".
type Vocabulary map[models.Field][]string

type token struct {
	text string
	word int
}

type term struct {
	field models.Field
	parts []string
	exact bool
}

const tokenTrim = ":()[]*|"

func tokenize(words []models.Word) []token {
	var toks []token
	for i, w := range words {
		for _, f := range strings.Fields(w.Text) {
			f = strings.Trim(normalize.Fold(f), tokenTrim)
			if f != "" {
				toks = append(toks, token{text: f, word: i})
			}
		}
	}
	return toks
}

func (v Vocabulary) terms() []term {
	var out []term
	for _, f := range models.Fields {
		for _, raw := range v[f] {
			exact := strings.HasPrefix(raw, "=")
			parts := strings.Fields(normalize.Fold(strings.TrimPrefix(raw, "=")))
			if len(parts) == 0 {
				continue
			}
			out = append(out, term{field: f, parts: parts, exact: exact})
		}
	}
	// Longer terms claim their tokens first so "value date" is not read as "date".
	sort.SliceStable(out, func(i, j int) bool { return len(out[i].parts) > len(out[j].parts) })
	return out
}

func (t term) matches(toks []token, at int, claimed []bool) bool {
	if at+len(t.parts) > len(toks) {
		return false
	}
	for k, p := range t.parts {
		if claimed[at+k] {
			return false
		}
		tok := toks[at+k].text
		if t.exact && tok != p {
			return false
		}
		if !t.exact && !strings.HasPrefix(tok, p) {
			return false
		}
	}
	return true
}

// MatchHeader returns one anchor per field found among words, at the left x
// of the field's leftmost match, sorted by x.
func MatchHeader(words []models.Word, vocab Vocabulary) []Anchor {
	toks := tokenize(words)
	if len(toks) == 0 {
		return nil
	}
	claimed := make([]bool, len(toks))
	leftmost := make(map[models.Field]float64)

	for _, t := range vocab.terms() {
		for at := 0; at < len(toks); at++ {
			if !t.matches(toks, at, claimed) {
				continue
			}
			for k := range t.parts {
				claimed[at+k] = true
			}
			x := words[toks[at].word].X0
			if cur, ok := leftmost[t.field]; !ok || x < cur {
				leftmost[t.field] = x
			}
		}
	}

	anchors := make([]Anchor, 0, len(leftmost))
	for _, f := range models.Fields {
		if x, ok := leftmost[f]; ok {
			anchors = append(anchors, Anchor{Field: f, X: x})
		}
	}
	sort.SliceStable(anchors, func(i, j int) bool { return anchors[i].X < anchors[j].X })
	return anchors
}

// Header is a detected header row.
type Header struct {
	Row     int // index into the scanned rows
	Anchors []Anchor
}

// DetectHeader scans the first limit rows for one whose matched fields
// include every required field.
func DetectHeader(rows []Row, vocab Vocabulary, required []models.Field, limit int) (Header, bool) {
	if limit <= 0 || limit > len(rows) {
		limit = len(rows)
	}
	for i := 0; i < limit; i++ {
		anchors := MatchHeader(rows[i].Words, vocab)
		if covers(anchors, required) {
			return Header{Row: i, Anchors: anchors}, true
		}
	}
	return Header{}, false
}

// MatchCells matches a table header row; anchors carry column indexes as x.
func MatchCells(cells []string, vocab Vocabulary) map[models.Field]int {
	words := make([]models.Word, len(cells))
	for i, c := range cells {
		words[i] = models.Word{Text: c, X0: float64(i), X1: float64(i)}
	}
	out := make(map[models.Field]int)
	for _, a := range MatchHeader(words, vocab) {
		out[a.Field] = int(a.X)
	}
	return out
}

// Covers reports whether every required field has a column.
func Covers(columns map[models.Field]int, required []models.Field) bool {
	for _, f := range required {
		if _, ok := columns[f]; !ok {
			return false
		}
	}
	return len(columns) > 0
}

func covers(anchors []Anchor, required []models.Field) bool {
	found := make(map[models.Field]int, len(anchors))
	for i, a := range anchors {
		found[a.Field] = i
	}
	return Covers(found, required)
}
