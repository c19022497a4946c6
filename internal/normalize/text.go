package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// Clean applies NFKC, turns control and zero-width characters into spaces
// and collapses whitespace runs.
func Clean(s string) string {
	if s == "" {
		return ""
	}
	s = norm.NFKC.String(s)
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\ufeff' || r == '\u200b' || r == '\u200c' || r == '\u200d' || r == '\u200e' || r == '\u200f':
			return ' '
		case unicode.IsControl(r):
			return ' '
		}
		return r
	}, s)
	return NormalizeWhitespace(s)
}

// NormalizeWhitespace collapses runs of whitespace into one space and trims.
func NormalizeWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// IsForeign reports whether s contains Arabic script.
func IsForeign(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Arabic, r) {
			return true
		}
	}
	return false
}

// StripForeignScript removes Arabic-script characters and normalizes the
// whitespace left behind.
func StripForeignScript(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.Is(unicode.Arabic, r) {
			return ' '
		}
		return r
	}, s)
	return NormalizeWhitespace(s)
}

// Fold case-folds s for keyword comparison.
func Fold(s string) string {
	return cases.Fold().String(s)
}

// ContainsFold reports whether needle occurs in haystack ignoring case.
func ContainsFold(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	return strings.Contains(Fold(haystack), Fold(needle))
}

var (
	leakedDate   = regexp.MustCompile(`(?i)\b(?:\d{1,2}[/.-]\d{1,2}[/.-]\d{2,4}|\d{4}-\d{2}-\d{2}|\d{1,2}[ -](?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*[ -]\d{2,4}|\d{2}(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)\d{2,4})\b`)
	leakedAmount = regexp.MustCompile(`(?i)[-+]?\b(?:\d{1,3}(?:,\d{3})+|\d+)\.\d{2}(?:\s?(?:cr|dr)\b\.?|\b)`)
	edgePunct    = regexp.MustCompile(`^[\s\-.,:;|/]+|[\s\-.,:;|/]+$`)
)

// CleanDescription strips foreign script, leaked dates and amounts, the given
// extra fragments (references, artifacts) and edge punctuation.
func CleanDescription(s string, strip ...*regexp.Regexp) string {
	s = StripForeignScript(Clean(s))
	s = leakedDate.ReplaceAllString(s, " ")
	s = leakedAmount.ReplaceAllString(s, " ")
	for _, re := range strip {
		if re != nil {
			s = re.ReplaceAllString(s, " ")
		}
	}
	s = NormalizeWhitespace(s)
	return edgePunct.ReplaceAllString(s, "")
}

// RemoveFragment deletes the first occurrence of frag from s as a whole
// token run and normalizes whitespace.
func RemoveFragment(s, frag string) string {
	if frag == "" {
		return s
	}
	return NormalizeWhitespace(strings.Replace(s, frag, " ", 1))
}
