package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hackgods/dental-practice-portal/internal/appointment"
	"github.com/hackgods/dental-practice-portal/internal/billing"
	"github.com/hackgods/dental-practice-portal/internal/inventory"
)

// Appointments

type BookAppointmentRequest struct {
	ClinicID    uuid.UUID `json:"clinicId" validate:"required"`
	PatientID   uuid.UUID `json:"patientId" validate:"required"`
	ProviderID  uuid.UUID `json:"providerId" validate:"required"`
	LocationID  uuid.UUID `json:"locationId" validate:"required"`
	Start       time.Time `json:"start" validate:"required"`
	End         time.Time `json:"end" validate:"required,gtfield=Start"`
	ServiceCode string    `json:"serviceCode" validate:"required,max=32"`
	ChairID     *string   `json:"chairId,omitempty" validate:"omitempty,max=64"`
	Notes       *string   `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

type ProcedureRequest struct {
	Code        string          `json:"code" validate:"required,max=32"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity" validate:"required,gt=0"`
	Tooth       string          `json:"tooth,omitempty" validate:"omitempty,max=8"`
	Surface     string          `json:"surface,omitempty" validate:"omitempty,max=8"`
}

type CompleteAppointmentRequest struct {
	Procedures   []ProcedureRequest `json:"procedures" validate:"required,min=1,dive"`
	MaterialCost decimal.Decimal    `json:"materialCost"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason" validate:"required,oneof=patient_request clinic_request illness scheduling_conflict other"`
	Notes  string `json:"notes,omitempty" validate:"required_if=Reason other,max=2000"`
}

type RescheduleAppointmentRequest struct {
	Start      time.Time  `json:"start" validate:"required"`
	End        time.Time  `json:"end" validate:"required,gtfield=Start"`
	ProviderID *uuid.UUID `json:"providerId,omitempty"`
}

type BulkConfirmRequest struct {
	IDs []uuid.UUID `json:"ids" validate:"required,min=1,max=200"`
}

type BulkConfirmResponse struct {
	Confirmed []uuid.UUID          `json:"confirmed"`
	Failed    map[uuid.UUID]string `json:"failed"`
}

type ProcedureResponse struct {
	Code        string          `json:"code"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Tooth       string          `json:"tooth,omitempty"`
	Surface     string          `json:"surface,omitempty"`
}

type AppointmentResponse struct {
	ID             uuid.UUID           `json:"id"`
	OrganizationID uuid.UUID           `json:"organizationId"`
	ClinicID       uuid.UUID           `json:"clinicId"`
	PatientID      uuid.UUID           `json:"patientId"`
	ProviderID     uuid.UUID           `json:"providerId"`
	LocationID     uuid.UUID           `json:"locationId"`
	Start          time.Time           `json:"start"`
	End            time.Time           `json:"end"`
	Status         string              `json:"status"`
	Confirmed      bool                `json:"confirmed"`
	ServiceCode    string              `json:"serviceCode"`
	ChairID        *string             `json:"chairId,omitempty"`
	Notes          *string             `json:"notes,omitempty"`
	CheckedInAt    *time.Time          `json:"checkedInAt,omitempty"`
	StartedAt      *time.Time          `json:"startedAt,omitempty"`
	CompletedAt    *time.Time          `json:"completedAt,omitempty"`
	CancelledAt    *time.Time          `json:"cancelledAt,omitempty"`
	CancelReason   *string             `json:"cancelReason,omitempty"`
	CancelNotes    *string             `json:"cancelNotes,omitempty"`
	Procedures     []ProcedureResponse `json:"procedures,omitempty"`
	MaterialCost   decimal.Decimal     `json:"materialCost"`
	Badge          appointment.Badge   `json:"badge"`
	Actions        []string            `json:"actions"`
	CreatedAt      time.Time           `json:"createdAt"`
	UpdatedAt      time.Time           `json:"updatedAt"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	resp := AppointmentResponse{
		ID:             a.ID,
		OrganizationID: a.OrganizationID,
		ClinicID:       a.ClinicID,
		PatientID:      a.PatientID,
		ProviderID:     a.ProviderID,
		LocationID:     a.LocationID,
		Start:          a.Start,
		End:            a.End,
		Status:         string(a.Status),
		Confirmed:      a.Confirmed,
		ServiceCode:    a.ServiceCode,
		ChairID:        a.ChairID,
		Notes:          a.Notes,
		CheckedInAt:    a.CheckedInAt,
		StartedAt:      a.StartedAt,
		CompletedAt:    a.CompletedAt,
		CancelledAt:    a.CancelledAt,
		CancelNotes:    a.CancelNotes,
		MaterialCost:   a.MaterialCost,
		Badge:          appointment.Classify(a.Status, a.Confirmed),
		Actions:        []string{},
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
	if a.CancelReason != nil {
		reason := string(*a.CancelReason)
		resp.CancelReason = &reason
	}
	for _, p := range a.Procedures {
		resp.Procedures = append(resp.Procedures, ProcedureResponse(p))
	}
	for _, act := range appointment.AvailableActions(a.Status) {
		resp.Actions = append(resp.Actions, string(act))
	}
	return resp
}

func toAppointmentList(list []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(list))
	for i := range list {
		out = append(out, toAppointmentResponse(&list[i]))
	}
	return out
}

// Patients

type CreatePatientRequest struct {
	ClinicID    uuid.UUID  `json:"clinicId"`
	FirstName   string     `json:"firstName" validate:"required,max=100"`
	LastName    string     `json:"lastName" validate:"required,max=100"`
	Email       string     `json:"email,omitempty" validate:"omitempty,email"`
	Phone       string     `json:"phone,omitempty" validate:"omitempty,max=32"`
	DateOfBirth *time.Time `json:"dateOfBirth,omitempty"`
}

type UpdatePatientRequest struct {
	FirstName   *string    `json:"firstName,omitempty" validate:"omitempty,min=1,max=100"`
	LastName    *string    `json:"lastName,omitempty" validate:"omitempty,min=1,max=100"`
	Email       *string    `json:"email,omitempty" validate:"omitempty,email"`
	Phone       *string    `json:"phone,omitempty" validate:"omitempty,max=32"`
	DateOfBirth *time.Time `json:"dateOfBirth,omitempty"`
}

// Billing

type LineItemRequest struct {
	ItemType        string          `json:"itemType" validate:"required,oneof=treatment product service"`
	Code            string          `json:"code,omitempty"`
	Description     string          `json:"description" validate:"required"`
	Quantity        int             `json:"quantity" validate:"required,gt=0"`
	UnitPrice       decimal.Decimal `json:"unitPrice"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
	TaxRate         decimal.Decimal `json:"taxRate"`
}

type CreateInvoiceRequest struct {
	ClinicID      uuid.UUID         `json:"clinicId" validate:"required"`
	PatientID     uuid.UUID         `json:"patientId" validate:"required"`
	AppointmentID *uuid.UUID        `json:"appointmentId,omitempty"`
	Items         []LineItemRequest `json:"items" validate:"required,min=1,dive"`
}

type PaymentLineRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method" validate:"required,oneof=cash card check bank_transfer"`
	Reference string          `json:"reference,omitempty" validate:"max=128"`
}

type RecordPaymentRequest struct {
	Payments []PaymentLineRequest `json:"payments" validate:"required,min=1,dive"`
}

type PaymentResponse struct {
	ID        uuid.UUID       `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
	Reference string          `json:"reference,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

type InvoiceResponse struct {
	ID            uuid.UUID          `json:"id"`
	Number        string             `json:"number"`
	ClinicID      uuid.UUID          `json:"clinicId"`
	PatientID     uuid.UUID          `json:"patientId"`
	AppointmentID *uuid.UUID         `json:"appointmentId,omitempty"`
	Items         []billing.LineItem `json:"items"`
	Lines         []billing.Line     `json:"lines"`
	Subtotal      decimal.Decimal    `json:"subtotal"`
	DiscountTotal decimal.Decimal    `json:"discountTotal"`
	TaxTotal      decimal.Decimal    `json:"taxTotal"`
	Total         decimal.Decimal    `json:"total"`
	AmountPaid    decimal.Decimal    `json:"amountPaid"`
	Balance       decimal.Decimal    `json:"balance"`
	Status        string             `json:"status"`
	Payments      []PaymentResponse  `json:"payments"`
	CreatedAt     time.Time          `json:"createdAt"`
}

func toInvoiceResponse(inv *billing.Invoice) InvoiceResponse {
	resp := InvoiceResponse{
		ID:            inv.ID,
		Number:        inv.Number,
		ClinicID:      inv.ClinicID,
		PatientID:     inv.PatientID,
		AppointmentID: inv.AppointmentID,
		Items:         inv.Items,
		Lines:         make([]billing.Line, 0, len(inv.Items)),
		Subtotal:      inv.Subtotal,
		DiscountTotal: inv.DiscountTotal,
		TaxTotal:      inv.TaxTotal,
		Total:         inv.Total,
		AmountPaid:    inv.AmountPaid,
		Balance:       inv.Balance(),
		Status:        string(inv.Status),
		Payments:      make([]PaymentResponse, 0, len(inv.Payments)),
		CreatedAt:     inv.CreatedAt,
	}
	for _, item := range inv.Items {
		resp.Lines = append(resp.Lines, billing.LineBreakdown(item))
	}
	for _, p := range inv.Payments {
		resp.Payments = append(resp.Payments, PaymentResponse{
			ID:        p.ID,
			Amount:    p.Amount,
			Method:    string(p.Method),
			Reference: p.Reference,
			CreatedAt: p.CreatedAt,
		})
	}
	return resp
}

// Inventory

type ConsumptionPlanRequest struct {
	ProcedureCodes []string `json:"procedureCodes" validate:"required,min=1,dive,required"`
}

type ConsumptionPlanResponse struct {
	Plan       inventory.Plan      `json:"plan"`
	Warnings   []inventory.Warning `json:"warnings"`
	CanConfirm bool                `json:"canConfirm"`
	TotalCost  decimal.Decimal     `json:"totalCost"`
}

type ConsumptionConfirmRequest struct {
	AppointmentID *uuid.UUID              `json:"appointmentId,omitempty"`
	Lines         []inventory.ConfirmLine `json:"lines" validate:"required,min=1"`
}

type ConsumptionConfirmResponse struct {
	MaterialCost decimal.Decimal     `json:"materialCost"`
	Warnings     []inventory.Warning `json:"warnings"`
}

// MFA

type BackupCodesResponse struct {
	Codes []string `json:"codes"`
}

type RedeemBackupCodeRequest struct {
	Code string `json:"code" validate:"required"`
}

// Scheduling

type SlotResponse struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type ErrorResponse struct {
	Error   string            `json:"error"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}
