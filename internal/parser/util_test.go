package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/insightdelivered/statement-ledger/internal/models"
)

func TestAmountTokensSkipDates(t *testing.T) {
	d := engineFor(t, "universal", Options{}).Descriptor()

	toks := amountTokens(d, "10.12.2025 FEE 5.00 1,205.00 Cr")
	var got []string
	for _, tok := range toks {
		got = append(got, tok.text)
	}
	assert.Equal(t, []string{"5.00", "1,205.00 Cr"}, got)
}

func TestSplitAmounts(t *testing.T) {
	d := engineFor(t, "universal", Options{}).Descriptor()

	fields, rest := splitAmounts(d, "POS SHOP 10.00 990.00")
	assert.Equal(t, "POS SHOP", rest)
	assert.Equal(t, "10.00", fields[models.FieldAmount])
	assert.Equal(t, "990.00", fields[models.FieldBalance])

	fields, rest = splitAmounts(d, "TRANSFER 1.00 2.00 3.00")
	assert.Equal(t, "TRANSFER", rest)
	assert.Equal(t, "1.00", fields[models.FieldDebit])
	assert.Equal(t, "2.00", fields[models.FieldCredit])
	assert.Equal(t, "3.00", fields[models.FieldBalance])

	fields, rest = splitAmounts(d, "NO AMOUNTS HERE")
	assert.Empty(t, fields)
	assert.Equal(t, "NO AMOUNTS HERE", rest)
}

func TestParseDateTakesLeadingTokens(t *testing.T) {
	d := engineFor(t, "universal", Options{}).Descriptor()

	assert.Equal(t, "15-01-2024", parseDate(d, "15/01/2024"))
	assert.Equal(t, "15-01-2024", parseDate(d, "15/01/2024 16/01/2024"))
	assert.Equal(t, "03-09-2023", parseDate(d, "3 Sep 2023 value"))
	assert.Equal(t, "", parseDate(d, "Opening"))
}

func TestLastAmount(t *testing.T) {
	d := engineFor(t, "universal", Options{}).Descriptor()

	got, ok := lastAmount(d, "Balance brought forward 1,000.00 2,000.00")
	assert.True(t, ok)
	assert.Equal(t, "2,000.00", got)

	_, ok = lastAmount(d, "none")
	assert.False(t, ok)
}
