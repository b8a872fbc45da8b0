// Package portal holds the front-desk mutation flows that sit on top of the
// API client: validate locally, send one request, then refresh and notify.
package portal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/hackgods/dental-practice-portal/internal/api"
	"github.com/hackgods/dental-practice-portal/internal/appointment"
	"github.com/hackgods/dental-practice-portal/internal/billing"
	"github.com/hackgods/dental-practice-portal/internal/inventory"
)

var (
	ErrMissingAppointment = errors.New("appointment id is required")
	ErrNoSelection        = errors.New("select at least one appointment")
	ErrMissingInvoice     = errors.New("invoice id is required")
)

// AppointmentClient is the subset of the API client the dispatcher drives.
type AppointmentClient interface {
	ConfirmAppointment(ctx context.Context, id uuid.UUID) (*api.AppointmentResponse, error)
	CheckIn(ctx context.Context, id uuid.UUID) (*api.AppointmentResponse, error)
	StartAppointment(ctx context.Context, id uuid.UUID) (*api.AppointmentResponse, error)
	CompleteAppointment(ctx context.Context, id uuid.UUID, req api.CompleteAppointmentRequest) (*api.AppointmentResponse, error)
	CancelAppointment(ctx context.Context, id uuid.UUID, req api.CancelAppointmentRequest) (*api.AppointmentResponse, error)
	MarkNoShow(ctx context.Context, id uuid.UUID) (*api.AppointmentResponse, error)
	UndoNoShow(ctx context.Context, id uuid.UUID) (*api.AppointmentResponse, error)
	RescheduleAppointment(ctx context.Context, id uuid.UUID, req api.RescheduleAppointmentRequest) (*api.AppointmentResponse, error)
	BulkConfirm(ctx context.Context, ids []uuid.UUID) (*api.BulkConfirmResponse, error)
}

// StockClient confirms material consumption before a completion.
type StockClient interface {
	ConfirmConsumption(ctx context.Context, req api.ConsumptionConfirmRequest) (*api.ConsumptionConfirmResponse, error)
}

// PaymentClient records split payments against an invoice.
type PaymentClient interface {
	RecordPayment(ctx context.Context, invoiceID uuid.UUID, req api.RecordPaymentRequest) (*api.InvoiceResponse, error)
}

// RefreshFunc re-fetches whatever views depend on the mutated data.
type RefreshFunc func(ctx context.Context)

// Dispatcher runs the mutation flows. It keeps no state of its own; after a
// successful request everything is re-read through refresh.
type Dispatcher struct {
	appointments AppointmentClient
	stock        StockClient
	payments     PaymentClient
	notifier     Notifier
	refresh      RefreshFunc
}

type Option func(*Dispatcher)

func WithStockClient(c StockClient) Option {
	return func(d *Dispatcher) { d.stock = c }
}

func WithPaymentClient(c PaymentClient) Option {
	return func(d *Dispatcher) { d.payments = c }
}

func NewDispatcher(appointments AppointmentClient, notifier Notifier, refresh RefreshFunc, opts ...Option) *Dispatcher {
	if notifier == nil {
		notifier = discardNotifier{}
	}
	if refresh == nil {
		refresh = func(context.Context) {}
	}
	d := &Dispatcher{appointments: appointments, notifier: notifier, refresh: refresh}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// run sends the request and reports the outcome. Request errors are shown to
// the user and swallowed.
func (d *Dispatcher) run(ctx context.Context, success, failure string, call func(ctx context.Context) error) {
	if err := call(ctx); err != nil {
		d.notifier.Error(failure, err)
		return
	}
	d.refresh(ctx)
	d.notifier.Success(success)
}

func (d *Dispatcher) single(ctx context.Context, id uuid.UUID, success, failure string, call func(context.Context, uuid.UUID) (*api.AppointmentResponse, error)) error {
	if id == uuid.Nil {
		return ErrMissingAppointment
	}
	d.run(ctx, success, failure, func(ctx context.Context) error {
		_, err := call(ctx, id)
		return err
	})
	return nil
}

func (d *Dispatcher) Confirm(ctx context.Context, id uuid.UUID) error {
	return d.single(ctx, id, "Appointment confirmed", "Failed to confirm appointment", d.appointments.ConfirmAppointment)
}

func (d *Dispatcher) CheckIn(ctx context.Context, id uuid.UUID) error {
	return d.single(ctx, id, "Patient checked in", "Failed to check in patient", d.appointments.CheckIn)
}

func (d *Dispatcher) Start(ctx context.Context, id uuid.UUID) error {
	return d.single(ctx, id, "Appointment started", "Failed to start appointment", d.appointments.StartAppointment)
}

func (d *Dispatcher) NoShow(ctx context.Context, id uuid.UUID) error {
	return d.single(ctx, id, "Appointment marked as no-show", "Failed to mark appointment as no-show", d.appointments.MarkNoShow)
}

func (d *Dispatcher) UndoNoShow(ctx context.Context, id uuid.UUID) error {
	return d.single(ctx, id, "No-show reverted", "Failed to revert no-show", d.appointments.UndoNoShow)
}

// Cancel requires notes when the reason is "other".
func (d *Dispatcher) Cancel(ctx context.Context, id uuid.UUID, req api.CancelAppointmentRequest) error {
	if id == uuid.Nil {
		return ErrMissingAppointment
	}
	if err := (appointment.CancelRequest{Reason: appointment.CancelReason(req.Reason), Notes: req.Notes}).Validate(); err != nil {
		return err
	}
	d.run(ctx, "Appointment cancelled", "Failed to cancel appointment", func(ctx context.Context) error {
		_, err := d.appointments.CancelAppointment(ctx, id, req)
		return err
	})
	return nil
}

func (d *Dispatcher) Reschedule(ctx context.Context, id uuid.UUID, req api.RescheduleAppointmentRequest) error {
	if id == uuid.Nil {
		return ErrMissingAppointment
	}
	if err := (appointment.RescheduleRequest{Start: req.Start, End: req.End, ProviderID: req.ProviderID}).Validate(); err != nil {
		return err
	}
	d.run(ctx, "Appointment rescheduled", "Failed to reschedule appointment", func(ctx context.Context) error {
		_, err := d.appointments.RescheduleAppointment(ctx, id, req)
		return err
	})
	return nil
}

// BulkConfirm confirms a selection. Partial failures are reported in one
// notification; the refresh still runs so confirmed rows update.
func (d *Dispatcher) BulkConfirm(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return ErrNoSelection
	}
	resp, err := d.appointments.BulkConfirm(ctx, ids)
	if err != nil {
		d.notifier.Error("Failed to confirm appointments", err)
		return nil
	}
	d.refresh(ctx)
	if len(resp.Failed) > 0 {
		d.notifier.Error(fmt.Sprintf("%d of %d appointments could not be confirmed", len(resp.Failed), len(ids)), nil)
		return nil
	}
	d.notifier.Success(fmt.Sprintf("%d appointments confirmed", len(resp.Confirmed)))
	return nil
}

// Complete submits the completion payload. Unlike the other actions the
// request error is returned so the caller can keep its form open.
func (d *Dispatcher) Complete(ctx context.Context, id uuid.UUID, req api.CompleteAppointmentRequest) error {
	if id == uuid.Nil {
		return ErrMissingAppointment
	}
	if err := completeRequest(req).Validate(); err != nil {
		return err
	}
	if _, err := d.appointments.CompleteAppointment(ctx, id, req); err != nil {
		d.notifier.Error("Failed to complete appointment", err)
		return err
	}
	d.refresh(ctx)
	d.notifier.Success("Appointment completed")
	return nil
}

// CompleteWithMaterials confirms the stock consumption plan first and folds
// its material cost into the completion payload.
//
// Stock is deducted before the appointment is completed. If completion then
// fails, the deduction stays recorded against the appointment and is not
// reversed; retrying completes with the original plan deducted a second time.
func (d *Dispatcher) CompleteWithMaterials(ctx context.Context, id uuid.UUID, procedures []api.ProcedureRequest, plan inventory.Plan) error {
	if id == uuid.Nil {
		return ErrMissingAppointment
	}
	if d.stock == nil {
		return errors.New("portal: no stock client configured")
	}
	req := api.CompleteAppointmentRequest{Procedures: procedures}
	if err := completeRequest(req).Validate(); err != nil {
		return err
	}
	if !plan.CanConfirm() {
		return &inventory.BlockedError{Warnings: plan.Warnings()}
	}

	lines := make([]inventory.ConfirmLine, 0, len(plan.Lines))
	for _, l := range plan.Lines {
		if l.Quantity > 0 {
			lines = append(lines, inventory.ConfirmLine{ProductID: l.ProductID, Quantity: l.Quantity})
		}
	}
	if len(lines) > 0 {
		res, err := d.stock.ConfirmConsumption(ctx, api.ConsumptionConfirmRequest{AppointmentID: &id, Lines: lines})
		if err != nil {
			d.notifier.Error("Failed to record material usage", err)
			return err
		}
		req.MaterialCost = res.MaterialCost
	}
	return d.Complete(ctx, id, req)
}

// SubmitPayment validates the allocation again at submission time and records it.
func (d *Dispatcher) SubmitPayment(ctx context.Context, invoiceID uuid.UUID, alloc *billing.Allocator) error {
	if invoiceID == uuid.Nil {
		return ErrMissingInvoice
	}
	if d.payments == nil {
		return errors.New("portal: no payment client configured")
	}
	if err := alloc.Validate(); err != nil {
		return err
	}

	req := api.RecordPaymentRequest{}
	for _, l := range alloc.Lines() {
		if l.Amount.IsZero() {
			continue
		}
		req.Payments = append(req.Payments, api.PaymentLineRequest{
			Amount:    l.Amount,
			Method:    string(l.Method),
			Reference: strings.TrimSpace(l.Reference),
		})
	}
	d.run(ctx, "Payment recorded", "Failed to record payment", func(ctx context.Context) error {
		_, err := d.payments.RecordPayment(ctx, invoiceID, req)
		return err
	})
	return nil
}

func completeRequest(req api.CompleteAppointmentRequest) appointment.CompleteRequest {
	procedures := make([]appointment.Procedure, 0, len(req.Procedures))
	for _, p := range req.Procedures {
		procedures = append(procedures, appointment.Procedure(p))
	}
	return appointment.CompleteRequest{Procedures: procedures, MaterialCost: req.MaterialCost}
}
