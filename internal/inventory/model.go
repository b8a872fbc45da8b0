package inventory

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrProductNotInPlan  = errors.New("product is not part of the consumption plan")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrNothingToConsume  = errors.New("consumption plan is empty")
)

type Product struct {
	ID             uuid.UUID       `json:"id"`
	OrganizationID uuid.UUID       `json:"organizationId"`
	Name           string          `json:"name"`
	Unit           string          `json:"unit"`
	UnitCost       decimal.Decimal `json:"unitCost"`
	QuantityOnHand int             `json:"quantityOnHand"`
	ReorderLevel   int             `json:"reorderLevel"`
}

// Template is the default quantity of a product a procedure consumes.
type Template struct {
	ProcedureCode   string
	ProductID       uuid.UUID
	DefaultQuantity int
}

type ConfirmLine struct {
	ProductID uuid.UUID `json:"productId"`
	Quantity  int       `json:"quantity"`
}

type ConfirmRequest struct {
	AppointmentID *uuid.UUID
	Lines         []ConfirmLine
}

// BlockedError carries the warnings that prevented confirmation.
type BlockedError struct {
	Warnings []Warning
}

func (e *BlockedError) Error() string {
	msgs := make([]string, 0, len(e.Warnings))
	for _, w := range e.Warnings {
		if w.Severity == SeverityError {
			msgs = append(msgs, w.Message)
		}
	}
	return "stock consumption blocked: " + strings.Join(msgs, "; ")
}

// ConfirmResult is what the completion flow folds into its payload.
type ConfirmResult struct {
	Plan         Plan            `json:"plan"`
	MaterialCost decimal.Decimal `json:"materialCost"`
	Warnings     []Warning       `json:"warnings"`
}
