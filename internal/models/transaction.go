package models

import "github.com/shopspring/decimal"

// Columns is the fixed output column order of every ledger.
var Columns = []string{"Date", "Withdrawals", "Deposits", "Payee", "Description", "Reference Number"}

// Transaction is one normalized ledger row.
type Transaction struct {
	Date        string          `json:"date"` // DD-MM-YYYY, empty when the source date did not parse
	Withdrawals decimal.Decimal `json:"withdrawals"`
	Deposits    decimal.Decimal `json:"deposits"`
	Payee       string          `json:"payee"`
	Description string          `json:"description"`
	Reference   string          `json:"referenceNumber"`

	Page      int    `json:"page,omitempty"`
	Rule      string `json:"rule,omitempty"`      // debug: which disambiguation rule decided the side
	Ambiguous bool   `json:"ambiguous,omitempty"` // both sides non-zero and no rule could pick one
}

// Record returns the row in Columns order with amounts formatted for output.
func (t Transaction) Record() []string {
	return []string{
		t.Date,
		FormatAmount(t.Withdrawals),
		FormatAmount(t.Deposits),
		t.Payee,
		t.Description,
		t.Reference,
	}
}

// FormatAmount renders a non-zero amount with two decimals, and zero as "".
func FormatAmount(d decimal.Decimal) string {
	if d.IsZero() {
		return ""
	}
	return d.StringFixed(2)
}

// DebugLine captures what the engine did with each input line or row.
type DebugLine struct {
	Page   int    `json:"page"`
	Line   int    `json:"line"`
	Text   string `json:"text"`
	Result string `json:"result"` // "start", "continuation", "ignored", "header", "dropped", "emitted"
	Method string `json:"method,omitempty"`
}

// Ledger is the result of one extraction pass over one document.
type Ledger struct {
	Layout       string        `json:"layout"`
	Institution  string        `json:"institution"`
	Currency     string        `json:"currency"`
	Source       string        `json:"source"`
	Attempts     []string      `json:"attempts"`
	Transactions []Transaction `json:"transactions"`
	DebugLines   []DebugLine   `json:"debugLines,omitempty"`
}
