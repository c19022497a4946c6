package normalize

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// Amount is a parsed numeric token together with the side markers that were
// attached to it in the source.
type Amount struct {
	Raw      string
	Value    decimal.Decimal // signed
	Credit   bool            // "Cr" suffix/prefix or explicit "+"
	Debit    bool            // "Dr" suffix/prefix, "-" or parentheses
	Negative bool
	OK       bool
}

// Abs is the unsigned magnitude.
func (a Amount) Abs() decimal.Decimal {
	return a.Value.Abs()
}

var (
	creditMarker  = regexp.MustCompile(`(?i)(?:^\s*cr\.?\s+|\s*cr\.?\s*$)`)
	debitMarker   = regexp.MustCompile(`(?i)(?:^\s*dr\.?\s+|\s*dr\.?\s*$)`)
	leadingCode   = regexp.MustCompile(`^([A-Za-z]{3})\s*([^A-Za-z]|$)`)
	trailingCode  = regexp.MustCompile(`\s+([A-Za-z]{3})$`)
	numericBody   = regexp.MustCompile(`^\d+(?:\.\d+)?$`)
	dotThousands  = regexp.MustCompile(`^\d{1,3}(?:\.\d{3})+$`)
	amountSymbols = strings.NewReplacer(
		"£", "", "$", "", "€", "", "₹", "", "¥", "",
		" ", "", "\u00a0", "", "\u2009", "", "\u202f", "", "'", "", "\u2019", "",
	)
)

// ParseAmount converts raw to a signed decimal. Thousands separators,
// currency codes and symbols, credit/debit markers and parenthesised
// negatives are understood. Anything that is not a number yields zero.
func ParseAmount(raw string) decimal.Decimal {
	return ParseAmountToken(raw).Value
}

// ParseAmountToken is ParseAmount keeping the side markers.
func ParseAmountToken(raw string) Amount {
	a := Amount{Raw: raw}
	s := strings.TrimSpace(foldDigits(Clean(raw)))
	if s == "" {
		return a
	}

	if creditMarker.MatchString(s) {
		a.Credit = true
		s = creditMarker.ReplaceAllString(s, "")
	} else if debitMarker.MatchString(s) {
		a.Debit = true
		s = debitMarker.ReplaceAllString(s, "")
	}
	s = stripCurrency(strings.TrimSpace(s))
	s = amountSymbols.Replace(s)

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	switch {
	case strings.HasPrefix(s, "-"):
		negative = true
		s = s[1:]
	case strings.HasSuffix(s, "-"):
		negative = true
		s = s[:len(s)-1]
	case strings.HasPrefix(s, "+"):
		a.Credit = true
		s = s[1:]
	}
	s = stripCurrency(s)
	s = amountSymbols.Replace(s)

	s = normalizeSeparators(s)
	if !numericBody.MatchString(s) {
		return Amount{Raw: raw}
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{Raw: raw}
	}
	if negative {
		v = v.Neg()
		a.Debit = true
	}
	a.Value = v
	a.Negative = negative
	a.OK = true
	return a
}

// stripCurrency removes an ISO 4217 code in front of the number, glued or
// not, and one separated from its end by whitespace. Other letters stay, so
// "AED75000.00" and "1,000.00 USD" lose their codes while "12abc" is left
// to fail as a number.
func stripCurrency(s string) string {
	if m := leadingCode.FindStringSubmatchIndex(s); m != nil && isCurrency(s[m[2]:m[3]]) {
		s = s[m[4]:]
	}
	if m := trailingCode.FindStringSubmatchIndex(s); m != nil && isCurrency(s[m[2]:m[3]]) {
		s = s[:m[0]]
	}
	return strings.TrimSpace(s)
}

func isCurrency(code string) bool {
	u, err := currency.ParseISO(code)
	return err == nil && u != currency.XXX
}

// normalizeSeparators turns "1,234.56", "1.234,56" and "1234,5" into a plain
// dot-decimal string. A single comma followed by one or two digits is a
// decimal comma; any other comma groups thousands.
func normalizeSeparators(s string) string {
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		parts := strings.Split(s, ",")
		if len(parts) == 2 && len(parts[1]) > 0 && len(parts[1]) <= 2 {
			return parts[0] + "." + parts[1]
		}
		return strings.ReplaceAll(s, ",", "")
	case strings.Count(s, ".") > 1:
		// "1.234.567" groups thousands with dots; "1.2.3" is not a number
		if !dotThousands.MatchString(s) {
			return ""
		}
		return strings.ReplaceAll(s, ".", "")
	}
	return s
}

// foldDigits maps Arabic-Indic and extended Arabic-Indic digits and the
// Arabic decimal/thousands separators onto ASCII.
func foldDigits(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= '٠' && r <= '٩':
			return '0' + (r - '٠')
		case r >= '۰' && r <= '۹':
			return '0' + (r - '۰')
		case r == '٫':
			return '.'
		case r == '٬':
			return ','
		}
		return r
	}, s)
}
