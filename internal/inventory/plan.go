package inventory

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type StockStatus string

const (
	InStock    StockStatus = "in_stock"
	LowStock   StockStatus = "low_stock"
	OutOfStock StockStatus = "out_of_stock"
)

// ClassifyStock uses the product's reorder level, or threshold when the product has none.
func ClassifyStock(onHand, reorderLevel, threshold int) StockStatus {
	limit := reorderLevel
	if limit <= 0 {
		limit = threshold
	}
	switch {
	case onHand <= 0:
		return OutOfStock
	case onHand <= limit:
		return LowStock
	default:
		return InStock
	}
}

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

type Warning struct {
	ProductID uuid.UUID `json:"productId"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
}

// Consumption is one product line of a plan.
type Consumption struct {
	ProductID       uuid.UUID       `json:"productId"`
	Name            string          `json:"name"`
	Unit            string          `json:"unit"`
	Quantity        int             `json:"quantity"`
	DefaultQuantity int             `json:"defaultQuantity"`
	AvailableStock  int             `json:"availableStock"`
	StockStatus     StockStatus     `json:"stockStatus"`
	UnitCost        decimal.Decimal `json:"unitCost"`
}

func (c Consumption) Cost() decimal.Decimal {
	return c.UnitCost.Mul(decimal.NewFromInt(int64(c.Quantity)))
}

// Plan is the editable set of products a procedure will consume.
type Plan struct {
	Lines []Consumption `json:"lines"`
}

// SetQuantity changes the requested quantity of a product already in the plan.
func (p *Plan) SetQuantity(productID uuid.UUID, qty int) error {
	for i := range p.Lines {
		if p.Lines[i].ProductID == productID {
			if qty < 0 {
				return fmt.Errorf("%w: quantity must not be negative", ErrInvalidQuantity)
			}
			p.Lines[i].Quantity = qty
			return nil
		}
	}
	return ErrProductNotInPlan
}

// Add puts a product into the plan, or raises its quantity if already present.
func (p *Plan) Add(product Product, qty, threshold int) {
	for i := range p.Lines {
		if p.Lines[i].ProductID == product.ID {
			p.Lines[i].Quantity += qty
			return
		}
	}
	p.Lines = append(p.Lines, lineFor(product, qty, 0, threshold))
}

func (p *Plan) Remove(productID uuid.UUID) {
	for i := range p.Lines {
		if p.Lines[i].ProductID == productID {
			p.Lines = append(p.Lines[:i], p.Lines[i+1:]...)
			return
		}
	}
}

// Warnings lists blocking errors (out of stock, more requested than available)
// and non-blocking low stock warnings. An out-of-stock line blocks whatever its
// quantity; the other checks skip zero-quantity lines.
func (p Plan) Warnings() []Warning {
	var out []Warning
	for _, l := range p.Lines {
		switch {
		case l.StockStatus == OutOfStock:
			out = append(out, Warning{ProductID: l.ProductID, Severity: SeverityError, Message: l.Name + " is out of stock"})
		case l.Quantity == 0:
			continue
		case l.Quantity > l.AvailableStock:
			out = append(out, Warning{
				ProductID: l.ProductID,
				Severity:  SeverityError,
				Message:   fmt.Sprintf("%s: requested %d %s but only %d available", l.Name, l.Quantity, l.Unit, l.AvailableStock),
			})
		case l.StockStatus == LowStock:
			out = append(out, Warning{ProductID: l.ProductID, Severity: SeverityWarning, Message: l.Name + " is running low"})
		}
	}
	return out
}

func (p Plan) CanConfirm() bool {
	for _, w := range p.Warnings() {
		if w.Severity == SeverityError {
			return false
		}
	}
	return true
}

// TotalCost is the material cost of the plan: sum of quantity * unit cost.
func (p Plan) TotalCost() decimal.Decimal {
	total := decimal.Zero
	for _, l := range p.Lines {
		total = total.Add(l.Cost())
	}
	return total
}

func lineFor(product Product, qty, defaultQty, threshold int) Consumption {
	return Consumption{
		ProductID:       product.ID,
		Name:            product.Name,
		Unit:            product.Unit,
		Quantity:        qty,
		DefaultQuantity: defaultQty,
		AvailableStock:  product.QuantityOnHand,
		StockStatus:     ClassifyStock(product.QuantityOnHand, product.ReorderLevel, threshold),
		UnitCost:        product.UnitCost,
	}
}
