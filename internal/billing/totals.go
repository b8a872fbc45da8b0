package billing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type ItemType string

const (
	ItemTreatment ItemType = "treatment"
	ItemProduct   ItemType = "product"
	ItemService   ItemType = "service"
)

func (t ItemType) Valid() bool {
	switch t {
	case ItemTreatment, ItemProduct, ItemService:
		return true
	}
	return false
}

var hundred = decimal.NewFromInt(100)

// LineItem is one billable entry on an invoice. Percentages are in [0, 100].
type LineItem struct {
	ItemType        ItemType        `json:"itemType"`
	Code            string          `json:"code,omitempty"`
	Description     string          `json:"description"`
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unitPrice"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
	TaxRate         decimal.Decimal `json:"taxRate"`
}

// Line is the computed breakdown of a single item. Nothing is rounded.
type Line struct {
	Gross         decimal.Decimal `json:"gross"`
	Discount      decimal.Decimal `json:"discount"`
	AfterDiscount decimal.Decimal `json:"afterDiscount"`
	Tax           decimal.Decimal `json:"tax"`
	Total         decimal.Decimal `json:"total"`
}

// LineBreakdown computes qty*unitPrice, the percentage discount on it, and tax
// on the discounted amount.
func LineBreakdown(item LineItem) Line {
	gross := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
	discount := gross.Mul(item.DiscountPercent).Div(hundred)
	after := gross.Sub(discount)
	tax := after.Mul(item.TaxRate).Div(hundred)
	return Line{
		Gross:         gross,
		Discount:      discount,
		AfterDiscount: after,
		Tax:           tax,
		Total:         after.Add(tax),
	}
}

type Totals struct {
	Subtotal      decimal.Decimal `json:"subtotal"`
	DiscountTotal decimal.Decimal `json:"discountTotal"`
	TaxTotal      decimal.Decimal `json:"taxTotal"`
	Total         decimal.Decimal `json:"total"`
}

// ComputeTotals sums the breakdowns of items. Subtotal is pre-discount.
// It holds no state, so recomputing over the same items yields the same totals.
func ComputeTotals(items []LineItem) Totals {
	t := Totals{
		Subtotal:      decimal.Zero,
		DiscountTotal: decimal.Zero,
		TaxTotal:      decimal.Zero,
	}
	for _, item := range items {
		l := LineBreakdown(item)
		t.Subtotal = t.Subtotal.Add(l.Gross)
		t.DiscountTotal = t.DiscountTotal.Add(l.Discount)
		t.TaxTotal = t.TaxTotal.Add(l.Tax)
	}
	t.Total = t.Subtotal.Sub(t.DiscountTotal).Add(t.TaxTotal)
	return t
}

// Display formats an amount with two decimals. Rounding happens here only.
func Display(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// ValidateItems checks every line and reports all problems at once.
func ValidateItems(items []LineItem) error {
	if len(items) == 0 {
		return &ValidationError{Issues: []Issue{{Line: -1, Field: "items", Message: "at least one line item is required"}}}
	}

	var issues []Issue
	for i, item := range items {
		if !item.ItemType.Valid() {
			issues = append(issues, Issue{Line: i, Field: "itemType", Message: fmt.Sprintf("unknown item type %q", item.ItemType)})
		}
		if strings.TrimSpace(item.Description) == "" {
			issues = append(issues, Issue{Line: i, Field: "description", Message: "description is required"})
		}
		if item.Quantity <= 0 {
			issues = append(issues, Issue{Line: i, Field: "quantity", Message: "quantity must be a positive integer"})
		}
		if item.UnitPrice.IsNegative() {
			issues = append(issues, Issue{Line: i, Field: "unitPrice", Message: "unit price must not be negative"})
		}
		if !percent(item.DiscountPercent) {
			issues = append(issues, Issue{Line: i, Field: "discountPercent", Message: "discount must be between 0 and 100"})
		}
		if !percent(item.TaxRate) {
			issues = append(issues, Issue{Line: i, Field: "taxRate", Message: "tax rate must be between 0 and 100"})
		}
	}
	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

func percent(d decimal.Decimal) bool {
	return !d.IsNegative() && d.LessThanOrEqual(hundred)
}
