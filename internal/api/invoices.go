package api

import (
	"errors"
	"net/http"

	"github.com/hackgods/dental-practice-portal/internal/billing"
	"github.com/hackgods/dental-practice-portal/internal/tenancy"
)

func createInvoiceHandler(svc BillingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateInvoiceRequest
		if !bindJSON(w, r, &req) {
			return
		}

		items := make([]billing.LineItem, 0, len(req.Items))
		for _, it := range req.Items {
			items = append(items, billing.LineItem{
				ItemType:        billing.ItemType(it.ItemType),
				Code:            it.Code,
				Description:     it.Description,
				Quantity:        it.Quantity,
				UnitPrice:       it.UnitPrice,
				DiscountPercent: it.DiscountPercent,
				TaxRate:         it.TaxRate,
			})
		}
		inv, err := svc.CreateInvoice(r.Context(), billing.CreateInvoiceRequest{
			ClinicID:      req.ClinicID,
			PatientID:     req.PatientID,
			AppointmentID: req.AppointmentID,
			Items:         items,
		})
		if err != nil {
			handleBillingError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toInvoiceResponse(inv))
	}
}

func listInvoicesHandler(svc BillingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := uuidQuery(w, r, "patient_id")
		if !ok {
			return
		}
		list, err := svc.ListByPatient(r.Context(), patientID)
		if err != nil {
			handleBillingError(w, err)
			return
		}
		resp := make([]InvoiceResponse, 0, len(list))
		for i := range list {
			resp = append(resp, toInvoiceResponse(&list[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getInvoiceHandler(svc BillingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "invalid_invoice_id")
		if !ok {
			return
		}
		inv, err := svc.Get(r.Context(), id)
		if err != nil {
			handleBillingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toInvoiceResponse(inv))
	}
}

func recordPaymentHandler(svc BillingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "invalid_invoice_id")
		if !ok {
			return
		}
		var req RecordPaymentRequest
		if !bindJSON(w, r, &req) {
			return
		}

		lines := make([]billing.PaymentLine, 0, len(req.Payments))
		for _, p := range req.Payments {
			lines = append(lines, billing.PaymentLine{
				Amount:    p.Amount,
				Method:    billing.PaymentMethod(p.Method),
				Reference: p.Reference,
			})
		}
		inv, err := svc.RecordPayment(r.Context(), id, lines)
		if err != nil {
			handleBillingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toInvoiceResponse(inv))
	}
}

// InvoiceValidationResponse lists the inline issues that blocked a submission.
type InvoiceValidationResponse struct {
	Error  string          `json:"error"`
	Issues []billing.Issue `json:"issues"`
}

func handleBillingError(w http.ResponseWriter, err error) {
	var ve *billing.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, InvoiceValidationResponse{Error: "validation_failed", Issues: ve.Issues})
	case errors.Is(err, tenancy.ErrMissingOrganization):
		writeError(w, http.StatusBadRequest, "missing_organization", err.Error())
	case errors.Is(err, billing.ErrInvoiceNotFound):
		writeError(w, http.StatusNotFound, "invoice_not_found", err.Error())
	case errors.Is(err, billing.ErrInvoicePaid):
		writeError(w, http.StatusConflict, "invoice_paid", err.Error())
	case errors.Is(err, billing.ErrInvoiceBusy):
		writeError(w, http.StatusConflict, "invoice_busy", err.Error())
	case errors.Is(err, billing.ErrBalanceChanged):
		writeError(w, http.StatusConflict, "balance_changed", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
