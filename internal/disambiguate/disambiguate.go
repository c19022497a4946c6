// Package disambiguate decides whether an assembled transaction's amount is a
// withdrawal or a deposit.
package disambiguate

import (
	"github.com/shopspring/decimal"

	"github.com/insightdelivered/statement-ledger/internal/layout"
	"github.com/insightdelivered/statement-ledger/internal/normalize"
)

var (
	// duplicateTolerance is how close debit and credit must be to count as one value split twice.
	duplicateTolerance = decimal.RequireFromString("0.005")
	// balanceTolerance absorbs rounding when checking prev ± amount against the new balance.
	balanceTolerance = decimal.RequireFromString("0.015")
)

// Input is one transaction's raw amount tokens and description.
type Input struct {
	Debit       string
	Credit      string
	Amount      string
	Balance     string
	Description string
}

// State is the running balance threaded from one transaction to the next.
type State struct {
	Balance decimal.Decimal
	Known   bool
}

// WithBalance returns the state after observing balance.
func (s State) WithBalance(balance decimal.Decimal) State {
	return State{Balance: balance, Known: true}
}

// Result is the resolved split. Rule names the step that decided it.
type Result struct {
	Withdrawal decimal.Decimal
	Deposit    decimal.Decimal
	Rule       string
	Ambiguous  bool
	Drop       bool
}

// Empty reports whether no amount was found.
func (r Result) Empty() bool {
	return r.Withdrawal.IsZero() && r.Deposit.IsZero()
}

// Resolver applies one layout's disambiguation rules.
type Resolver struct {
	desc       *layout.Descriptor
	unresolved layout.Policy
}

// New builds a resolver for desc. A non-empty override replaces the layout's
// unresolved policy.
func New(desc *layout.Descriptor, override layout.Policy) *Resolver {
	p := desc.Disambiguation.Unresolved
	if override != "" {
		p = override
	}
	return &Resolver{desc: desc, unresolved: p}
}

// Resolve splits in into withdrawal and deposit and returns the state to
// carry to the next transaction.
func (r *Resolver) Resolve(in Input, st State) (Result, State) {
	debit := r.token(in.Debit)
	credit := r.token(in.Credit)
	amount := r.token(in.Amount)
	balance := normalize.ParseAmountToken(in.Balance)

	res := r.resolve(in, debit, credit, amount, balance, st)
	if balance.OK {
		st = st.WithBalance(balance.Value)
	}
	return res, st
}

func (r *Resolver) token(raw string) normalize.Amount {
	a := normalize.ParseAmountToken(raw)
	if !a.OK {
		return a
	}
	if r.desc.CreditMarked(raw) {
		a.Credit, a.Debit = true, false
	} else if r.desc.DebitMarked(raw) {
		a.Debit, a.Credit = true, false
	}
	return a
}

func (r *Resolver) resolve(in Input, debit, credit, amount, balance normalize.Amount, st State) Result {
	d, c := debit.Abs(), credit.Abs()
	hasDebit, hasCredit := debit.OK && !d.IsZero(), credit.OK && !c.IsZero()

	switch {
	case hasDebit && hasCredit:
		if d.Sub(c).Abs().LessThan(duplicateTolerance) {
			return r.collapse(d, balance, st)
		}
		// Two distinct values no rule can reconcile: both are kept and flagged.
		return Result{Withdrawal: d, Deposit: c, Rule: "column", Ambiguous: true}
	case hasDebit && r.desc.Disambiguation.Has(layout.RuleColumn):
		return Result{Withdrawal: d, Rule: "column"}
	case hasCredit && r.desc.Disambiguation.Has(layout.RuleColumn):
		return Result{Deposit: c, Rule: "column"}
	case hasDebit:
		amount = debit
	case hasCredit:
		amount = credit
	}

	a := amount.Abs()
	if !amount.OK || a.IsZero() {
		return Result{}
	}

	for _, rule := range r.desc.Disambiguation.Order {
		switch rule {
		case layout.RuleMarker:
			if res, ok := r.byMarker(amount); ok {
				return res
			}
		case layout.RuleBalance:
			if res, ok := byBalance(a, balance, st); ok {
				return res
			}
		case layout.RuleKeyword:
			if res, ok := r.byKeyword(a, in.Description); ok {
				return res
			}
		}
	}
	return r.policy(a, r.unresolved, "unresolved")
}

func (r *Resolver) collapse(a decimal.Decimal, balance normalize.Amount, st State) Result {
	if balance.OK && st.Known {
		switch balance.Value.Cmp(st.Balance) {
		case -1:
			return Result{Withdrawal: a, Rule: "duplicate"}
		case 1:
			return Result{Deposit: a, Rule: "duplicate"}
		}
	}
	return r.policy(a, r.desc.Disambiguation.DuplicateDefault, "duplicate")
}

func (r *Resolver) byMarker(amount normalize.Amount) (Result, bool) {
	a := amount.Abs()
	switch {
	case amount.Credit:
		return Result{Deposit: a, Rule: "marker"}, true
	case amount.Debit:
		return Result{Withdrawal: a, Rule: "marker"}, true
	}
	switch r.desc.Disambiguation.MarkerAbsent {
	case string(layout.PolicyWithdrawal):
		return Result{Withdrawal: a, Rule: "marker"}, true
	case string(layout.PolicyDeposit):
		return Result{Deposit: a, Rule: "marker"}, true
	}
	return Result{}, false
}

// byBalance checks which of prev-amount and prev+amount lands on the new
// balance, then falls back to the direction the balance moved.
func byBalance(a decimal.Decimal, balance normalize.Amount, st State) (Result, bool) {
	if !balance.OK || !st.Known {
		return Result{}, false
	}
	bal, prev := balance.Value, st.Balance
	debitDiff := prev.Sub(a).Sub(bal).Abs()
	creditDiff := prev.Add(a).Sub(bal).Abs()

	debitFits := debitDiff.LessThan(balanceTolerance)
	creditFits := creditDiff.LessThan(balanceTolerance)
	switch {
	case debitFits && !creditFits:
		return Result{Withdrawal: a, Rule: "balance"}, true
	case creditFits && !debitFits:
		return Result{Deposit: a, Rule: "balance"}, true
	case debitFits && creditFits:
		if debitDiff.LessThanOrEqual(creditDiff) {
			return Result{Withdrawal: a, Rule: "balance"}, true
		}
		return Result{Deposit: a, Rule: "balance"}, true
	}

	switch bal.Cmp(prev) {
	case -1:
		return Result{Withdrawal: a, Rule: "balance"}, true
	case 1:
		return Result{Deposit: a, Rule: "balance"}, true
	}
	return Result{}, false
}

// byKeyword checks withdrawal keywords first, so a description matching
// both tables is a withdrawal.
func (r *Resolver) byKeyword(a decimal.Decimal, description string) (Result, bool) {
	if MatchesAny(description, r.desc.Disambiguation.WithdrawalKeywords) {
		return Result{Withdrawal: a, Rule: "keyword"}, true
	}
	if MatchesAny(description, r.desc.Disambiguation.DepositKeywords) {
		return Result{Deposit: a, Rule: "keyword"}, true
	}
	return Result{}, false
}

func (r *Resolver) policy(a decimal.Decimal, p layout.Policy, rule string) Result {
	switch p {
	case layout.PolicyWithdrawal:
		return Result{Withdrawal: a, Rule: rule}
	case layout.PolicyDrop:
		return Result{Rule: rule, Drop: true}
	default:
		return Result{Deposit: a, Rule: rule}
	}
}

// MatchesAny reports whether description contains any keyword, ignoring case.
func MatchesAny(description string, keywords []string) bool {
	for _, kw := range keywords {
		if normalize.ContainsFold(description, kw) {
			return true
		}
	}
	return false
}
