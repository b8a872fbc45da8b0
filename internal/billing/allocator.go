package billing

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	MethodCash         PaymentMethod = "cash"
	MethodCard         PaymentMethod = "card"
	MethodCheck        PaymentMethod = "check"
	MethodBankTransfer PaymentMethod = "bank_transfer"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodCard, MethodCheck, MethodBankTransfer:
		return true
	}
	return false
}

// RequiresReference reports whether a line paid this way must carry a reference.
func (m PaymentMethod) RequiresReference() bool {
	return m != MethodCash
}

type PaymentLine struct {
	Amount    decimal.Decimal `json:"amount"`
	Method    PaymentMethod   `json:"method"`
	Reference string          `json:"reference,omitempty"`
}

var ErrLineIndex = errors.New("payment line index out of range")

// Allocator tracks an ordered list of payment lines against a fixed balance.
// It starts with a single cash line holding the whole balance.
type Allocator struct {
	balance decimal.Decimal
	lines   []PaymentLine
}

func NewAllocator(balance decimal.Decimal) *Allocator {
	a := &Allocator{balance: balance}
	a.lines = []PaymentLine{{Amount: a.nonNegative(balance), Method: MethodCash}}
	return a
}

// AllocatorFrom wraps lines submitted elsewhere so they can be re-validated
// against the current balance.
func AllocatorFrom(balance decimal.Decimal, lines []PaymentLine) *Allocator {
	cp := make([]PaymentLine, len(lines))
	copy(cp, lines)
	return &Allocator{balance: balance, lines: cp}
}

func (a *Allocator) Balance() decimal.Decimal { return a.balance }

// Lines returns a copy of the current lines.
func (a *Allocator) Lines() []PaymentLine {
	cp := make([]PaymentLine, len(a.lines))
	copy(cp, a.lines)
	return cp
}

// Add appends a cash line prefilled with the remaining balance (zero if over-allocated).
func (a *Allocator) Add() {
	a.lines = append(a.lines, PaymentLine{Amount: a.nonNegative(a.Remaining()), Method: MethodCash})
}

// Remove deletes line i. The last remaining line cannot be removed.
func (a *Allocator) Remove(i int) error {
	if i < 0 || i >= len(a.lines) {
		return ErrLineIndex
	}
	if len(a.lines) == 1 {
		return nil
	}
	a.lines = append(a.lines[:i], a.lines[i+1:]...)
	return nil
}

func (a *Allocator) SetAmount(i int, amount decimal.Decimal) error {
	if i < 0 || i >= len(a.lines) {
		return ErrLineIndex
	}
	a.lines[i].Amount = amount
	return nil
}

// SetMethod changes the payment method. Any previous reference is cleared.
func (a *Allocator) SetMethod(i int, method PaymentMethod) error {
	if i < 0 || i >= len(a.lines) {
		return ErrLineIndex
	}
	if a.lines[i].Method != method {
		a.lines[i].Reference = ""
	}
	a.lines[i].Method = method
	return nil
}

func (a *Allocator) SetReference(i int, ref string) error {
	if i < 0 || i >= len(a.lines) {
		return ErrLineIndex
	}
	a.lines[i].Reference = ref
	return nil
}

func (a *Allocator) TotalAllocated() decimal.Decimal {
	total := decimal.Zero
	for _, l := range a.lines {
		total = total.Add(l.Amount)
	}
	return total
}

// Remaining is balance minus allocated. Negative when over-allocated.
func (a *Allocator) Remaining() decimal.Decimal {
	return a.balance.Sub(a.TotalAllocated())
}

// Validate returns a *ValidationError listing everything that blocks submission.
// A positive remaining balance is allowed: it leaves the invoice partially paid.
func (a *Allocator) Validate() error {
	var issues []Issue

	total := a.TotalAllocated()
	if !total.IsPositive() {
		issues = append(issues, Issue{Line: -1, Field: "amount", Message: "allocated amount must be greater than zero"})
	}
	if total.GreaterThan(a.balance) {
		issues = append(issues, Issue{Line: -1, Field: "amount", Message: "allocated amount exceeds the balance due"})
	}

	for i, l := range a.lines {
		if l.Amount.IsNegative() {
			issues = append(issues, Issue{Line: i, Field: "amount", Message: "amount must not be negative"})
		}
		if !l.Method.Valid() {
			issues = append(issues, Issue{Line: i, Field: "method", Message: "unknown payment method"})
			continue
		}
		if l.Method.RequiresReference() && strings.TrimSpace(l.Reference) == "" {
			issues = append(issues, Issue{Line: i, Field: "reference", Message: "reference is required for " + string(l.Method) + " payments"})
		}
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

func (a *Allocator) CanSubmit() bool {
	return a.Validate() == nil
}

func (a *Allocator) nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
