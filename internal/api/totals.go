package api

import (
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/insightdelivered/statement-ledger/internal/models"
)

// DefaultCurrency is used when the layout does not name one.
const DefaultCurrency = "AED"

// Totals sums each side of a ledger.
type Totals struct {
	Currency           string `json:"currency"`
	Withdrawals        string `json:"withdrawals"` // plain two-decimal amount
	Deposits           string `json:"deposits"`
	WithdrawalsDisplay string `json:"withdrawalsDisplay"` // with currency symbol
	DepositsDisplay    string `json:"depositsDisplay"`
	Count              int    `json:"count"`
}

func totals(ledger *models.Ledger) Totals {
	code := strings.ToUpper(ledger.Currency)
	if money.GetCurrency(code) == nil {
		code = DefaultCurrency
	}
	var out, in decimal.Decimal
	for _, txn := range ledger.Transactions {
		out = out.Add(txn.Withdrawals)
		in = in.Add(txn.Deposits)
	}
	return Totals{
		Currency:           code,
		Withdrawals:        out.StringFixed(2),
		Deposits:           in.StringFixed(2),
		WithdrawalsDisplay: fromDecimal(out, code).Display(),
		DepositsDisplay:    fromDecimal(in, code).Display(),
		Count:              len(ledger.Transactions),
	}
}

// fromDecimal converts to minor units using the currency's fraction digits.
func fromDecimal(amount decimal.Decimal, code string) *money.Money {
	currency := money.GetCurrency(code)
	multiplier := decimal.New(1, int32(currency.Fraction))
	return money.New(amount.Mul(multiplier).Round(0).IntPart(), code)
}
