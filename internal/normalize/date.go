// Package normalize holds the small pure functions that turn raw cell and
// token strings into canonical ledger values. None of them return errors:
// a value that cannot be normalized comes back as its zero value.
package normalize

import (
	"regexp"
	"strings"
	"time"
)

// CanonicalDateLayout is the DD-MM-YYYY output format.
const CanonicalDateLayout = "02-01-2006"

// Source date formats, keyed by the names layout descriptors use.
var dateLayouts = map[string][]string{
	"dd/mm/yyyy":  {"02/01/2006", "2/1/2006"},
	"dd-mm-yyyy":  {"02-01-2006", "2-1-2006"},
	"dd.mm.yyyy":  {"02.01.2006", "2.1.2006"},
	"dd/mm/yy":    {"02/01/06", "2/1/06"},
	"dd-mmm-yyyy": {"02-Jan-2006", "2-Jan-2006"},
	"dd-mmm-yy":   {"02-Jan-06", "2-Jan-06"},
	"dd mmm yyyy": {"02 Jan 2006", "2 Jan 2006"},
	"dd mmm yy":   {"02 Jan 06", "2 Jan 06"},
	"dd/mmm/yyyy": {"02/Jan/2006"},
	"yyyy-mm-dd":  {"2006-01-02"},
	"yyyy/mm/dd":  {"2006/01/02"},
	"ddmmmyy":     {"02Jan06"},
	"ddmmmyyyy":   {"02Jan2006"},
}

// DateFormats is the order tried when no source format is given.
// Day-first formats come before year-first ones.
var DateFormats = []string{
	"dd/mm/yyyy", "dd-mm-yyyy", "dd.mm.yyyy", "dd-mmm-yyyy", "dd mmm yyyy",
	"dd/mmm/yyyy", "yyyy-mm-dd", "yyyy/mm/dd", "ddmmmyy", "ddmmmyyyy",
	"dd/mm/yy", "dd-mmm-yy", "dd mmm yy",
}

var (
	monthWord  = regexp.MustCompile(`(?i)\b([a-z]{3})[a-z]*\.?`)
	spaceRun   = regexp.MustCompile(`\s+`)
	dateLeadIn = regexp.MustCompile(`^[^\dA-Za-z]+|[^\dA-Za-z]+$`)
)

// KnownDateFormat reports whether name is a supported source format.
func KnownDateFormat(name string) bool {
	_, ok := dateLayouts[strings.ToLower(name)]
	return ok
}

// ParseDate converts raw into DD-MM-YYYY using the given source formats, or
// every known format when none are given. It returns "" when raw matches
// none of them.
func ParseDate(raw string, formats ...string) string {
	t, ok := ParseTime(raw, formats...)
	if !ok {
		return ""
	}
	return t.Format(CanonicalDateLayout)
}

// ParseTime is ParseDate returning the parsed time.
func ParseTime(raw string, formats ...string) (time.Time, bool) {
	s := cleanDate(raw)
	if s == "" {
		return time.Time{}, false
	}
	if len(formats) == 0 {
		formats = DateFormats
	}
	for _, name := range formats {
		for _, layout := range dateLayouts[strings.ToLower(name)] {
			t, err := time.Parse(layout, s)
			if err != nil {
				continue
			}
			if t.Year() < 1900 || t.Year() > 2199 {
				continue
			}
			return t, true
		}
	}
	return time.Time{}, false
}

func cleanDate(raw string) string {
	s := strings.TrimSpace(foldDigits(Clean(raw)))
	s = dateLeadIn.ReplaceAllString(s, "")
	s = spaceRun.ReplaceAllString(s, " ")
	// "September" and "Sept." both become "Sep".
	s = monthWord.ReplaceAllStringFunc(s, func(m string) string {
		return strings.TrimSuffix(m, ".")[:3]
	})
	return s
}
