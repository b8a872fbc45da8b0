package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/dental-practice-portal/internal/api"
	"github.com/hackgods/dental-practice-portal/internal/inventory"
	"github.com/hackgods/dental-practice-portal/internal/patient"
)

func (c *Client) SearchPatients(ctx context.Context, query string, limit int) ([]patient.Patient, error) {
	q := url.Values{}
	q.Set("q", query)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []patient.Patient
	if err := c.do(ctx, http.MethodGet, "/patients", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetPatient(ctx context.Context, id uuid.UUID) (*patient.Patient, error) {
	var out patient.Patient
	if err := c.do(ctx, http.MethodGet, "/patients/"+id.String(), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreatePatient(ctx context.Context, req api.CreatePatientRequest) (*patient.Patient, error) {
	var out patient.Patient
	if err := c.do(ctx, http.MethodPost, "/patients", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListProviders(ctx context.Context, clinicID uuid.UUID) ([]patient.Provider, error) {
	var out []patient.Provider
	if err := c.do(ctx, http.MethodGet, "/clinics/"+clinicID.String()+"/providers", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListLocations(ctx context.Context, clinicID uuid.UUID) ([]patient.Location, error) {
	var out []patient.Location
	if err := c.do(ctx, http.MethodGet, "/clinics/"+clinicID.String()+"/locations", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AvailableSlots lists the free slots of a provider on date.
func (c *Client) AvailableSlots(ctx context.Context, providerID uuid.UUID, date time.Time, duration time.Duration) ([]api.SlotResponse, error) {
	q := url.Values{}
	q.Set("date", date.Format("2006-01-02"))
	q.Set("duration", strconv.Itoa(int(duration/time.Minute)))

	var out []api.SlotResponse
	if err := c.do(ctx, http.MethodGet, "/providers/"+providerID.String()+"/slots", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateInvoice(ctx context.Context, req api.CreateInvoiceRequest) (*api.InvoiceResponse, error) {
	var out api.InvoiceResponse
	if err := c.do(ctx, http.MethodPost, "/invoices", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetInvoice(ctx context.Context, id uuid.UUID) (*api.InvoiceResponse, error) {
	var out api.InvoiceResponse
	if err := c.do(ctx, http.MethodGet, "/invoices/"+id.String(), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListInvoices(ctx context.Context, patientID uuid.UUID) ([]api.InvoiceResponse, error) {
	q := url.Values{}
	q.Set("patient_id", patientID.String())
	var out []api.InvoiceResponse
	if err := c.do(ctx, http.MethodGet, "/invoices", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) RecordPayment(ctx context.Context, invoiceID uuid.UUID, req api.RecordPaymentRequest) (*api.InvoiceResponse, error) {
	var out api.InvoiceResponse
	if err := c.do(ctx, http.MethodPost, "/invoices/"+invoiceID.String()+"/payments", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListStock(ctx context.Context) ([]inventory.ItemView, error) {
	var out []inventory.ItemView
	if err := c.do(ctx, http.MethodGet, "/inventory/items", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ConsumptionPlan(ctx context.Context, procedureCodes []string) (*api.ConsumptionPlanResponse, error) {
	var out api.ConsumptionPlanResponse
	if err := c.do(ctx, http.MethodPost, "/inventory/consumption/plan", nil, api.ConsumptionPlanRequest{ProcedureCodes: procedureCodes}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ConfirmConsumption(ctx context.Context, req api.ConsumptionConfirmRequest) (*api.ConsumptionConfirmResponse, error) {
	var out api.ConsumptionConfirmResponse
	if err := c.do(ctx, http.MethodPost, "/inventory/consumption/confirm", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GenerateBackupCodes(ctx context.Context, userID uuid.UUID) ([]string, error) {
	var out api.BackupCodesResponse
	if err := c.do(ctx, http.MethodPost, "/users/"+userID.String()+"/mfa/backup-codes", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Codes, nil
}

// ExportBackupCodes downloads the plaintext file once after generation.
func (c *Client) ExportBackupCodes(ctx context.Context, userID uuid.UUID) (string, error) {
	return c.text(ctx, http.MethodGet, "/users/"+userID.String()+"/mfa/backup-codes/export")
}

func (c *Client) RedeemBackupCode(ctx context.Context, userID uuid.UUID, code string) error {
	return c.do(ctx, http.MethodPost, "/users/"+userID.String()+"/mfa/backup-codes/redeem", nil, api.RedeemBackupCodeRequest{Code: code}, nil)
}
