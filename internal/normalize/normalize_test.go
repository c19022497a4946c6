package normalize

import (
	"regexp"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		raw     string
		formats []string
		want    string
	}{
		{"15/01/2024", nil, "15-01-2024"},
		{"1/2/2024", nil, "01-02-2024"},
		{"01-Jan-2024", nil, "01-01-2024"},
		{"01 Jan 2024", nil, "01-01-2024"},
		{"01 January 2024", nil, "01-01-2024"},
		{"3 Sept 2023", nil, "03-09-2023"},
		{"2021-06-24", nil, "24-06-2021"},
		{"02NOV25", nil, "02-11-2025"},
		{"10.12.2025", nil, "10-12-2025"},
		{"05-03-2024", nil, "05-03-2024"},
		{"15 Jan 24", []string{"dd mmm yy"}, "15-01-2024"},
		{"15/01/2024", []string{"dd-mmm-yyyy"}, ""},
		{"31/02/2024", nil, ""},
		{"not a date", nil, ""},
		{"", nil, ""},
		{"  (01/02/2024) ", nil, "01-02-2024"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseDate(tt.raw, tt.formats...))
		})
	}
}

func TestParseDateIsTotal(t *testing.T) {
	canonical := regexp.MustCompile(`^\d{2}-\d{2}-\d{4}$`)
	inputs := []string{
		"01/02/2024", "1/2/24", "99/99/9999", "01-Feb-2024", "01 Feb 2024", "2024-02-01",
		"01FEB24", "01.02.2024", "Feb", "-", "//", "00/00/0000", "1-1-1", "٠١/٠٢/٢٠٢٤",
		"12/31/2024", "\x00\x01", "2024/13/45", "01 Foo 2024",
	}
	for _, in := range inputs {
		got := ParseDate(in)
		assert.True(t, got == "" || canonical.MatchString(got), "ParseDate(%q) = %q", in, got)
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"25.99", "25.99"},
		{"1,234.56", "1234.56"},
		{"£1,234,567.89", "1234567.89"},
		{"-25.99", "-25.99"},
		{"25.99-", "-25.99"},
		{"(1,234.56)", "-1234.56"},
		{"5,000.00 Cr", "5000"},
		{"518,802.21Cr", "518802.21"},
		{"27.75 Dr", "27.75"},
		{"AED 1,000.00", "1000"},
		{"AED75000.00", "75000"},
		{"1.234,56", "1234.56"},
		{"1234,5", "1234.5"},
		{"1,234", "1234"},
		{"+310.00", "310"},
		{"1 234.50", "1234.5"},
		{"0.00", "0"},
		{"", "0"},
		{"-", "0"},
		{"abc", "0"},
		{"N/A", "0"},
		{"12.34.ab", "0"},
		{"12abc", "0"},
		{"12 abc", "0"},
		{"12.3.4", "0"},
		{"1.2.3", "0"},
		{"1.234.567", "1234567"},
		{"1,000.00 USD", "1000"},
		{"usd 42.50", "42.5"},
		{"(AED 100.00)", "-100"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			want := decimal.RequireFromString(tt.want)
			got := ParseAmount(tt.raw)
			assert.True(t, got.Sub(want).Abs().LessThan(decimal.RequireFromString("0.005")),
				"ParseAmount(%q) = %s, want %s", tt.raw, got, want)
		})
	}
}

func TestParseAmountTokenMarkers(t *testing.T) {
	a := ParseAmountToken("1,250.00 CR")
	require.True(t, a.OK)
	assert.True(t, a.Credit)
	assert.False(t, a.Debit)

	a = ParseAmountToken("1,250.00Dr")
	require.True(t, a.OK)
	assert.True(t, a.Debit)

	a = ParseAmountToken("(45.00)")
	require.True(t, a.OK)
	assert.True(t, a.Negative)
	assert.True(t, a.Debit)
	assert.Equal(t, "45", a.Abs().String())

	a = ParseAmountToken("+12.00")
	require.True(t, a.OK)
	assert.True(t, a.Credit)

	a = ParseAmountToken("hello")
	assert.False(t, a.OK)
	assert.True(t, a.Value.IsZero())
}

func TestStripForeignScript(t *testing.T) {
	assert.Equal(t, "Salary transfer", StripForeignScript("Salary تحويل راتب transfer"))
	assert.Equal(t, "", StripForeignScript("الرصيد"))
	assert.Equal(t, "POS PURCHASE", StripForeignScript("POS\t  PURCHASE \ufefb"))
}

func TestIsForeign(t *testing.T) {
	assert.True(t, IsForeign("مدين"))
	assert.False(t, IsForeign("Debit"))
}

func TestClean(t *testing.T) {
	assert.Equal(t, "a b", Clean("\ufeffa\x00\u200bb  "))
	assert.Equal(t, "123", Clean("\uff11\uff12\uff13"))
}

func TestCleanDescription(t *testing.T) {
	ref := regexp.MustCompile(`\bFT\w+`)
	got := CleanDescription("POS PURCHASE 01/02/2024 CARREFOUR 123.45 FT24032ABCD -", ref)
	assert.Equal(t, "POS PURCHASE CARREFOUR", got)

	assert.Equal(t, "REFUND", CleanDescription("REFUND 1,200.00Cr"))
	assert.Equal(t, "Salary", CleanDescription(" - Salary الراتب ,"))
}

func TestContainsFold(t *testing.T) {
	assert.True(t, ContainsFold("Pos-Purchase at Store", "PURCHASE"))
	assert.False(t, ContainsFold("anything", ""))
}
