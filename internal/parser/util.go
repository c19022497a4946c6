package parser

import (
	"strings"

	"github.com/insightdelivered/statement-ledger/internal/layout"
	"github.com/insightdelivered/statement-ledger/internal/models"
	"github.com/insightdelivered/statement-ledger/internal/normalize"
)

// span is one amount token inside a text line.
type span struct {
	start, end int
	text       string
}

// amountTokens finds money tokens in s. Matches glued to digits, dots or
// slashes are parts of dates or codes and are skipped, so "10.12.2025"
// yields nothing.
func amountTokens(d *layout.Descriptor, s string) []span {
	var out []span
	for _, loc := range d.AmountPattern().FindAllStringIndex(s, -1) {
		start, end := loc[0], loc[1]
		if start > 0 && strings.ContainsRune("0123456789./,:", rune(s[start-1])) {
			continue
		}
		if end < len(s) && strings.ContainsRune("0123456789./:", rune(s[end])) {
			continue
		}
		out = append(out, span{start: start, end: end, text: strings.TrimSpace(s[start:end])})
	}
	return out
}

// lastAmount returns the last money token of s, the balance on summary rows.
func lastAmount(d *layout.Descriptor, s string) (string, bool) {
	toks := amountTokens(d, s)
	if len(toks) == 0 {
		return "", false
	}
	return toks[len(toks)-1].text, true
}

// splitAmounts assigns the layout's trailing roles to the last amount tokens
// of s and returns the remaining text.
func splitAmounts(d *layout.Descriptor, s string) (map[models.Field]string, string) {
	fields := make(map[models.Field]string)
	toks := amountTokens(d, s)
	roles := d.Roles(len(toks))
	if len(roles) == 0 {
		return fields, s
	}
	assigned := toks[len(toks)-len(roles):]
	rest := s
	// cut from the right so earlier offsets stay valid
	for i := len(assigned) - 1; i >= 0; i-- {
		tok, role := assigned[i], roles[i]
		if role != models.FieldSkip {
			fields[role] = tok.text
		}
		rest = rest[:tok.start] + " " + rest[tok.end:]
	}
	return fields, normalize.NormalizeWhitespace(rest)
}

// parseDate normalizes raw with the layout's formats. When the whole string
// does not parse, the first one to three tokens are tried so a cell holding
// two dates still yields the first.
func parseDate(d *layout.Descriptor, raw string) string {
	if got := normalize.ParseDate(raw, d.Date.Formats...); got != "" {
		return got
	}
	words := strings.Fields(raw)
	for n := min(3, len(words)-1); n >= 1; n-- {
		if got := normalize.ParseDate(strings.Join(words[:n], " "), d.Date.Formats...); got != "" {
			return got
		}
	}
	return ""
}
