package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/dental-practice-portal/internal/appointment"
	"github.com/hackgods/dental-practice-portal/internal/billing"
	"github.com/hackgods/dental-practice-portal/internal/inventory"
	"github.com/hackgods/dental-practice-portal/internal/logging"
	"github.com/hackgods/dental-practice-portal/internal/metrics"
	"github.com/hackgods/dental-practice-portal/internal/mfa"
	"github.com/hackgods/dental-practice-portal/internal/patient"
	"github.com/hackgods/dental-practice-portal/internal/scheduling"
)

type stubAppointments struct {
	appts         map[uuid.UUID]*appointment.Appointment
	transitionErr error
}

func (s *stubAppointments) Book(ctx context.Context, req appointment.BookRequest) (*appointment.Appointment, error) {
	a := &appointment.Appointment{
		ID:          uuid.New(),
		ClinicID:    req.ClinicID,
		PatientID:   req.PatientID,
		ProviderID:  req.ProviderID,
		LocationID:  req.LocationID,
		Start:       req.Start,
		End:         req.End,
		ServiceCode: req.ServiceCode,
		Status:      appointment.StatusPending,
	}
	s.appts[a.ID] = a
	return a, nil
}

func (s *stubAppointments) Get(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	a, ok := s.appts[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	return a, nil
}

func (s *stubAppointments) ListDay(ctx context.Context, clinicID uuid.UUID, day time.Time) ([]appointment.Appointment, error) {
	var out []appointment.Appointment
	for _, a := range s.appts {
		if a.ClinicID == clinicID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *stubAppointments) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]appointment.Appointment, error) {
	return nil, nil
}

func (s *stubAppointments) set(id uuid.UUID, status appointment.AppointmentStatus) (*appointment.Appointment, error) {
	if s.transitionErr != nil {
		return nil, s.transitionErr
	}
	a, err := s.Get(context.Background(), id)
	if err != nil {
		return nil, err
	}
	a.Status = status
	return a, nil
}

func (s *stubAppointments) Confirm(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	return s.set(id, appointment.StatusConfirmed)
}

func (s *stubAppointments) BulkConfirm(ctx context.Context, ids []uuid.UUID) appointment.BulkResult {
	res := appointment.BulkResult{Failed: map[uuid.UUID]string{}}
	for _, id := range ids {
		if _, err := s.Confirm(ctx, id); err != nil {
			res.Failed[id] = err.Error()
			continue
		}
		res.Confirmed = append(res.Confirmed, id)
	}
	return res
}

func (s *stubAppointments) CheckIn(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	return s.set(id, appointment.StatusCheckedIn)
}

func (s *stubAppointments) Start(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	return s.set(id, appointment.StatusInProgress)
}

func (s *stubAppointments) Complete(ctx context.Context, id uuid.UUID, req appointment.CompleteRequest) (*appointment.Appointment, error) {
	a, err := s.set(id, appointment.StatusCompleted)
	if err != nil {
		return nil, err
	}
	a.Procedures = req.Procedures
	a.MaterialCost = req.MaterialCost
	return a, nil
}

func (s *stubAppointments) Cancel(ctx context.Context, id uuid.UUID, req appointment.CancelRequest) (*appointment.Appointment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.set(id, appointment.StatusCancelled)
}

func (s *stubAppointments) MarkNoShow(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	return s.set(id, appointment.StatusNoShow)
}

func (s *stubAppointments) UndoNoShow(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	return s.set(id, appointment.StatusConfirmed)
}

func (s *stubAppointments) Reschedule(ctx context.Context, id uuid.UUID, req appointment.RescheduleRequest) (*appointment.Appointment, error) {
	a, err := s.set(id, appointment.StatusPending)
	if err != nil {
		return nil, err
	}
	a.Start, a.End = req.Start, req.End
	return a, nil
}

type stubPatients struct {
	patients  map[uuid.UUID]*patient.Patient
	locations []patient.Location
}

func (s *stubPatients) Search(ctx context.Context, query string, limit int) ([]patient.Patient, error) {
	var out []patient.Patient
	for _, p := range s.patients {
		if strings.Contains(strings.ToLower(p.FullName()), strings.ToLower(query)) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *stubPatients) Get(ctx context.Context, id uuid.UUID) (*patient.Patient, error) {
	p, ok := s.patients[id]
	if !ok {
		return nil, patient.ErrPatientNotFound
	}
	return p, nil
}

func (s *stubPatients) Create(ctx context.Context, req patient.CreateRequest) (*patient.Patient, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	p := &patient.Patient{ID: uuid.New(), ClinicID: req.ClinicID, FirstName: req.FirstName, LastName: req.LastName, Email: req.Email}
	s.patients[p.ID] = p
	return p, nil
}

func (s *stubPatients) Update(ctx context.Context, id uuid.UUID, req patient.UpdateRequest) (*patient.Patient, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	changed, err := req.Apply(p)
	if err != nil {
		return nil, err
	}
	if len(changed) == 0 {
		return nil, patient.ErrNoChanges
	}
	return p, nil
}

func (s *stubPatients) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := s.patients[id]; !ok {
		return patient.ErrPatientNotFound
	}
	delete(s.patients, id)
	return nil
}

func (s *stubPatients) ListProviders(ctx context.Context, clinicID uuid.UUID) ([]patient.Provider, error) {
	return nil, nil
}

func (s *stubPatients) ListLocations(ctx context.Context, clinicID uuid.UUID) ([]patient.Location, error) {
	return s.locations, nil
}

type stubSlots struct{}

var foreignProvider = uuid.MustParse("7b0e4a52-3c1d-4e0f-9a61-2f8d5c9e1b37")

func (stubSlots) Slots(ctx context.Context, providerID uuid.UUID, date time.Time, duration time.Duration) ([]scheduling.Interval, error) {
	if providerID == foreignProvider {
		return nil, fmt.Errorf("load provider calendar: %w", appointment.ErrProviderNotFound)
	}
	start := date.Add(9 * time.Hour)
	return []scheduling.Interval{{Start: start, End: start.Add(duration)}}, nil
}

type stubBilling struct {
	invoice *billing.Invoice
}

func (s *stubBilling) CreateInvoice(ctx context.Context, req billing.CreateInvoiceRequest) (*billing.Invoice, error) {
	if err := billing.ValidateItems(req.Items); err != nil {
		return nil, err
	}
	s.invoice = &billing.Invoice{
		ID:        uuid.New(),
		Number:    "INV-20260105-ABCDEF12",
		ClinicID:  req.ClinicID,
		PatientID: req.PatientID,
		Items:     req.Items,
		Totals:    billing.ComputeTotals(req.Items),
		Status:    billing.InvoiceUnpaid,
	}
	return s.invoice, nil
}

func (s *stubBilling) Get(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	if s.invoice == nil || s.invoice.ID != id {
		return nil, billing.ErrInvoiceNotFound
	}
	return s.invoice, nil
}

func (s *stubBilling) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]billing.Invoice, error) {
	return nil, nil
}

func (s *stubBilling) RecordPayment(ctx context.Context, invoiceID uuid.UUID, lines []billing.PaymentLine) (*billing.Invoice, error) {
	inv, err := s.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if err := billing.AllocatorFrom(inv.Balance(), lines).Validate(); err != nil {
		return nil, err
	}
	for _, l := range lines {
		inv.AmountPaid = inv.AmountPaid.Add(l.Amount)
	}
	inv.Status = billing.StatusFor(inv.Total, inv.AmountPaid)
	return inv, nil
}

type stubInventory struct {
	confirmErr error
}

func (s *stubInventory) ListItems(ctx context.Context) ([]inventory.ItemView, error) {
	return nil, nil
}

func (s *stubInventory) LoadPlan(ctx context.Context, codes []string) (inventory.Plan, error) {
	return inventory.Plan{Lines: []inventory.Consumption{{
		ProductID:      uuid.New(),
		Name:           "Composite resin",
		Unit:           "g",
		Quantity:       2,
		AvailableStock: 1,
		StockStatus:    inventory.LowStock,
		UnitCost:       decimal.NewFromInt(3),
	}}}, nil
}

func (s *stubInventory) Confirm(ctx context.Context, req inventory.ConfirmRequest) (inventory.ConfirmResult, error) {
	if s.confirmErr != nil {
		return inventory.ConfirmResult{}, s.confirmErr
	}
	return inventory.ConfirmResult{MaterialCost: decimal.NewFromInt(6)}, nil
}

type stubMFA struct {
	pending map[uuid.UUID]string
}

func (s *stubMFA) Generate(ctx context.Context, userID uuid.UUID) ([]string, error) {
	codes := []string{"abcd-efgh", "ijkl-mnop"}
	s.pending[userID] = mfa.FormatExport("front.desk@example.com", codes, time.Now())
	return codes, nil
}

func (s *stubMFA) Export(ctx context.Context, userID uuid.UUID) (string, error) {
	text, ok := s.pending[userID]
	if !ok {
		return "", mfa.ErrExportUnavailable
	}
	delete(s.pending, userID)
	return text, nil
}

func (s *stubMFA) Redeem(ctx context.Context, userID uuid.UUID, code string) error {
	if mfa.NormalizeCode(code) != "abcd-efgh" {
		return mfa.ErrInvalidCode
	}
	return nil
}

type fixture struct {
	handler      http.Handler
	org          uuid.UUID
	appointments *stubAppointments
	patients     *stubPatients
	billing      *stubBilling
	inventory    *stubInventory
	mfa          *stubMFA
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		org:          uuid.New(),
		appointments: &stubAppointments{appts: map[uuid.UUID]*appointment.Appointment{}},
		patients:     &stubPatients{patients: map[uuid.UUID]*patient.Patient{}},
		billing:      &stubBilling{},
		inventory:    &stubInventory{},
		mfa:          &stubMFA{pending: map[uuid.UUID]string{}},
	}
	f.handler = NewRouter(RouterConfig{
		Appointments: f.appointments,
		Patients:     f.patients,
		Slots:        stubSlots{},
		Billing:      f.billing,
		Inventory:    f.inventory,
		MFA:          f.mfa,
		Metrics:      metrics.New(prometheus.NewRegistry()),
		Logger:       logging.Discard(),
		Postgres:     PingFunc(func(context.Context) error { return nil }),
		Redis:        PingFunc(func(context.Context) error { return nil }),
		Env:          "test",
		Version:      "test",
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set(OrganizationHeader, f.org.String())
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (f *fixture) book(t *testing.T) AppointmentResponse {
	t.Helper()
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rec := f.do(t, http.MethodPost, "/appointments", map[string]any{
		"clinicId":    uuid.New(),
		"patientId":   uuid.New(),
		"providerId":  uuid.New(),
		"locationId":  uuid.New(),
		"start":       start,
		"end":         start.Add(30 * time.Minute),
		"serviceCode": "D1110",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[AppointmentResponse](t, rec)
}

func TestTenantHeaderRequired(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/patients?q=lee", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing_organization", decode[ErrorResponse](t, rec).Error)

	req = httptest.NewRequest(http.MethodGet, "/patients?q=lee", nil)
	req.Header.Set(OrganizationHeader, "not-a-uuid")
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_organization", decode[ErrorResponse](t, rec).Error)
}

func TestHealthEndpoints(t *testing.T) {
	down := PingFunc(func(context.Context) error { return errors.New("down") })
	up := PingFunc(func(context.Context) error { return nil })

	cases := []struct {
		name       string
		postgres   Pinger
		redis      Pinger
		wantCode   int
		wantStatus string
	}{
		{"all up", up, up, http.StatusOK, "ok"},
		{"redis down", up, down, http.StatusOK, "degraded"},
		{"postgres down", down, up, http.StatusServiceUnavailable, "error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHealthHandler(tc.postgres, tc.redis, "test", "v1")
			rec := httptest.NewRecorder()
			h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			assert.Equal(t, tc.wantCode, rec.Code)
			assert.Equal(t, tc.wantStatus, decode[ReadinessResponse](t, rec).Status)
		})
	}

	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBookAppointmentReturnsBadgeAndActions(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t)

	assert.Equal(t, "pending", appt.Status)
	assert.Equal(t, appointment.Badge{Label: "Needs Confirmation", Tone: appointment.ToneWarning}, appt.Badge)
	assert.Equal(t, []string{"check_in", "no_show"}, appt.Actions)

	rec := f.do(t, http.MethodPost, "/appointments/"+appt.ID.String()+"/check-in", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	checked := decode[AppointmentResponse](t, rec)
	assert.Equal(t, "checked_in", checked.Status)
	assert.Equal(t, []string{"start"}, checked.Actions)
}

func TestBookAppointmentValidation(t *testing.T) {
	f := newFixture(t)
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	rec := f.do(t, http.MethodPost, "/appointments", map[string]any{
		"clinicId":    uuid.New(),
		"patientId":   uuid.New(),
		"providerId":  uuid.New(),
		"locationId":  uuid.New(),
		"start":       start,
		"end":         start.Add(-time.Minute),
		"serviceCode": "D1110",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "gtfield", resp.Fields["end"])

	rec = f.do(t, http.MethodPost, "/appointments", map[string]any{"bogus": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAppointmentErrorMapping(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/appointments/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/appointments/nope", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	appt := f.book(t)
	f.appointments.transitionErr = appointment.ErrInvalidStatusTransition
	rec = f.do(t, http.MethodPost, "/appointments/"+appt.ID.String()+"/start", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_status_transition", decode[ErrorResponse](t, rec).Error)

	f.appointments.transitionErr = appointment.ErrAppointmentBusy
	rec = f.do(t, http.MethodPost, "/appointments/"+appt.ID.String()+"/confirm", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "appointment_busy", decode[ErrorResponse](t, rec).Error)
}

func TestCancelRequiresNotesForOther(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t)
	path := "/appointments/" + appt.ID.String() + "/cancel"

	rec := f.do(t, http.MethodPost, path, map[string]any{"reason": "other"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "required_if", decode[ErrorResponse](t, rec).Fields["notes"])

	rec = f.do(t, http.MethodPost, path, map[string]any{"reason": "illness"})
	require.Equal(t, http.StatusOK, rec.Code)
	cancelled := decode[AppointmentResponse](t, rec)
	assert.Equal(t, "cancelled", cancelled.Status)
	assert.Empty(t, cancelled.Actions)
}

func TestCompleteAppointment(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t)

	rec := f.do(t, http.MethodPost, "/appointments/"+appt.ID.String()+"/complete", map[string]any{
		"procedures":   []map[string]any{{"code": "D2391", "price": "120.00", "quantity": 1, "tooth": "14"}},
		"materialCost": "6.50",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	done := decode[AppointmentResponse](t, rec)
	assert.Equal(t, "completed", done.Status)
	require.Len(t, done.Procedures, 1)
	assert.Equal(t, "14", done.Procedures[0].Tooth)
	assert.True(t, decimal.RequireFromString("6.5").Equal(done.MaterialCost))

	rec = f.do(t, http.MethodPost, "/appointments/"+appt.ID.String()+"/complete", map[string]any{"procedures": []any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBulkConfirmReportsFailures(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t)
	missing := uuid.New()

	rec := f.do(t, http.MethodPost, "/appointments/bulk-confirm", map[string]any{"ids": []uuid.UUID{appt.ID, missing}})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[BulkConfirmResponse](t, rec)
	assert.Equal(t, []uuid.UUID{appt.ID}, resp.Confirmed)
	assert.Contains(t, resp.Failed, missing)
}

func TestCalendarExport(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t)
	f.patients.locations = []patient.Location{{ID: appt.LocationID, ClinicID: appt.ClinicID, Name: "Harbour Street Surgery"}}

	rec := f.do(t, http.MethodGet, "/appointments/"+appt.ID.String()+"/calendar.ics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "BEGIN:VCALENDAR\r\n"))
	assert.Contains(t, body, "LOCATION:Harbour Street Surgery\r\n")
	assert.Contains(t, body, "DTSTART:20260302T090000Z\r\n")
}

func TestPatientRoutes(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/patients", map[string]any{"firstName": "Ada", "lastName": "Okafor", "email": "ada@example.com"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decode[patient.Patient](t, rec)

	rec = f.do(t, http.MethodPost, "/patients", map[string]any{"firstName": "Ada", "lastName": "Okafor", "email": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/patients?q=okaf", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]patient.Patient](t, rec), 1)

	rec = f.do(t, http.MethodPut, "/patients/"+p.ID.String(), map[string]any{"phone": "+44 20 7946 0000"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPut, "/patients/"+p.ID.String(), map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "no_changes", decode[ErrorResponse](t, rec).Error)

	rec = f.do(t, http.MethodDelete, "/patients/"+p.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/patients/"+p.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSlotsQuery(t *testing.T) {
	f := newFixture(t)
	provider := uuid.NewString()

	rec := f.do(t, http.MethodGet, "/providers/"+provider+"/slots?date=2026-03-02&duration=45", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	slots := decode[[]SlotResponse](t, rec)
	require.Len(t, slots, 1)
	assert.Equal(t, 45*time.Minute, slots[0].End.Sub(slots[0].Start))

	rec = f.do(t, http.MethodGet, "/providers/"+provider+"/slots?date=2026-03-02&duration=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodGet, "/providers/"+provider+"/slots?date=March&duration=30", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/providers/"+foreignProvider.String()+"/slots?date=2026-03-02&duration=30", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "provider_not_found", decode[ErrorResponse](t, rec).Error)
}

func TestInvoiceAndPayments(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/invoices", map[string]any{
		"clinicId":  uuid.New(),
		"patientId": uuid.New(),
		"items": []map[string]any{{
			"itemType":        "treatment",
			"description":     "Filling",
			"quantity":        2,
			"unitPrice":       "100",
			"discountPercent": "10",
			"taxRate":         "19",
		}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	inv := decode[InvoiceResponse](t, rec)
	assert.True(t, decimal.RequireFromString("214.2").Equal(inv.Total))
	require.Len(t, inv.Lines, 1)

	path := "/invoices/" + inv.ID.String() + "/payments"
	rec = f.do(t, http.MethodPost, path, map[string]any{"payments": []map[string]any{{"amount": "50", "method": "card"}}})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var vr InvoiceValidationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &vr))
	assert.Equal(t, "validation_failed", vr.Error)
	assert.NotEmpty(t, vr.Issues)

	rec = f.do(t, http.MethodPost, path, map[string]any{"payments": []map[string]any{
		{"amount": "100", "method": "cash"},
		{"amount": "14.2", "method": "card", "reference": "AUTH-7781"},
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	paid := decode[InvoiceResponse](t, rec)
	assert.Equal(t, "partially_paid", paid.Status)
	assert.True(t, decimal.NewFromInt(100).Equal(paid.Balance))

	rec = f.do(t, http.MethodGet, "/invoices/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConsumptionRoutes(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/inventory/consumption/plan", map[string]any{"procedureCodes": []string{"D2391"}})
	require.Equal(t, http.StatusOK, rec.Code)
	plan := decode[ConsumptionPlanResponse](t, rec)
	assert.False(t, plan.CanConfirm)
	require.Len(t, plan.Warnings, 1)
	assert.Equal(t, inventory.SeverityError, plan.Warnings[0].Severity)

	f.inventory.confirmErr = &inventory.BlockedError{Warnings: plan.Warnings}
	rec = f.do(t, http.MethodPost, "/inventory/consumption/confirm", map[string]any{
		"lines": []map[string]any{{"productId": plan.Plan.Lines[0].ProductID, "quantity": 2}},
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	blocked := decode[ConsumptionBlockedResponse](t, rec)
	assert.Equal(t, "consumption_blocked", blocked.Error)
	assert.Len(t, blocked.Warnings, 1)
}

func TestBackupCodeExportIsOneShot(t *testing.T) {
	f := newFixture(t)
	base := "/users/" + uuid.NewString() + "/mfa/backup-codes"

	rec := f.do(t, http.MethodPost, base, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	codes := decode[BackupCodesResponse](t, rec).Codes
	require.Len(t, codes, 2)

	rec = f.do(t, http.MethodGet, base+"/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "abcd-efgh\n")

	rec = f.do(t, http.MethodGet, base+"/export", nil)
	assert.Equal(t, http.StatusGone, rec.Code)

	rec = f.do(t, http.MethodPost, base+"/redeem", map[string]any{"code": "ABCD EFGH"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, http.MethodPost, base+"/redeem", map[string]any{"code": "zzzz-zzzz"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMetricsRecordRoutePattern(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/appointments/"+uuid.NewString(), nil)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `route="/appointments/{id}`)
}
