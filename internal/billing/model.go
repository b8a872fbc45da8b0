package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceUnpaid        InvoiceStatus = "unpaid"
	InvoicePartiallyPaid InvoiceStatus = "partially_paid"
	InvoicePaid          InvoiceStatus = "paid"
)

type Invoice struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	ClinicID       uuid.UUID
	PatientID      uuid.UUID
	AppointmentID  *uuid.UUID
	Number         string
	Items          []LineItem
	Totals
	AmountPaid decimal.Decimal
	Status     InvoiceStatus
	Payments   []Payment
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Balance is what is still owed.
func (i Invoice) Balance() decimal.Decimal {
	return i.Total.Sub(i.AmountPaid)
}

type Payment struct {
	ID        uuid.UUID
	InvoiceID uuid.UUID
	Amount    decimal.Decimal
	Method    PaymentMethod
	Reference string
	CreatedAt time.Time
}

// StatusFor derives the invoice status from what has been paid against total.
// An invoice with nothing to collect is paid from the start.
func StatusFor(total, paid decimal.Decimal) InvoiceStatus {
	switch {
	case paid.GreaterThanOrEqual(total):
		return InvoicePaid
	case paid.IsPositive():
		return InvoicePartiallyPaid
	default:
		return InvoiceUnpaid
	}
}

type CreateInvoiceRequest struct {
	ClinicID      uuid.UUID
	PatientID     uuid.UUID
	AppointmentID *uuid.UUID
	Items         []LineItem
}
