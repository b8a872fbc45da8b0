package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/hackgods/dental-practice-portal/internal/appointment"
	"github.com/hackgods/dental-practice-portal/internal/billing"
	"github.com/hackgods/dental-practice-portal/internal/inventory"
	"github.com/hackgods/dental-practice-portal/internal/logging"
	"github.com/hackgods/dental-practice-portal/internal/metrics"
	"github.com/hackgods/dental-practice-portal/internal/patient"
	"github.com/hackgods/dental-practice-portal/internal/scheduling"
)

type AppointmentService interface {
	Book(ctx context.Context, req appointment.BookRequest) (*appointment.Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	ListDay(ctx context.Context, clinicID uuid.UUID, day time.Time) ([]appointment.Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]appointment.Appointment, error)
	Confirm(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	BulkConfirm(ctx context.Context, ids []uuid.UUID) appointment.BulkResult
	CheckIn(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	Start(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	Complete(ctx context.Context, id uuid.UUID, req appointment.CompleteRequest) (*appointment.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID, req appointment.CancelRequest) (*appointment.Appointment, error)
	MarkNoShow(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	UndoNoShow(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	Reschedule(ctx context.Context, id uuid.UUID, req appointment.RescheduleRequest) (*appointment.Appointment, error)
}

type PatientService interface {
	Search(ctx context.Context, query string, limit int) ([]patient.Patient, error)
	Get(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
	Create(ctx context.Context, req patient.CreateRequest) (*patient.Patient, error)
	Update(ctx context.Context, id uuid.UUID, req patient.UpdateRequest) (*patient.Patient, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListProviders(ctx context.Context, clinicID uuid.UUID) ([]patient.Provider, error)
	ListLocations(ctx context.Context, clinicID uuid.UUID) ([]patient.Location, error)
}

type SlotService interface {
	Slots(ctx context.Context, providerID uuid.UUID, date time.Time, duration time.Duration) ([]scheduling.Interval, error)
}

type BillingService interface {
	CreateInvoice(ctx context.Context, req billing.CreateInvoiceRequest) (*billing.Invoice, error)
	Get(ctx context.Context, id uuid.UUID) (*billing.Invoice, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]billing.Invoice, error)
	RecordPayment(ctx context.Context, invoiceID uuid.UUID, lines []billing.PaymentLine) (*billing.Invoice, error)
}

type InventoryService interface {
	ListItems(ctx context.Context) ([]inventory.ItemView, error)
	LoadPlan(ctx context.Context, procedureCodes []string) (inventory.Plan, error)
	Confirm(ctx context.Context, req inventory.ConfirmRequest) (inventory.ConfirmResult, error)
}

type MFAService interface {
	Generate(ctx context.Context, userID uuid.UUID) ([]string, error)
	Export(ctx context.Context, userID uuid.UUID) (string, error)
	Redeem(ctx context.Context, userID uuid.UUID, code string) error
}

type RouterConfig struct {
	Appointments AppointmentService
	Patients     PatientService
	Slots        SlotService
	Billing      BillingService
	Inventory    InventoryService
	MFA          MFAService

	Metrics  *metrics.Metrics
	Logger   *logging.Logger
	Postgres Pinger
	Redis    Pinger
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger, cfg.Metrics))
	r.Use(middleware.Recoverer)

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(TenancyMiddleware)

		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", bookAppointmentHandler(cfg.Appointments))
			r.Get("/", listAppointmentsHandler(cfg.Appointments))
			r.Post("/bulk-confirm", bulkConfirmHandler(cfg.Appointments))
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", getAppointmentHandler(cfg.Appointments))
				r.Get("/calendar.ics", calendarHandler(cfg.Appointments, cfg.Patients))
				r.Post("/confirm", transitionHandler(cfg.Appointments.Confirm))
				r.Post("/check-in", transitionHandler(cfg.Appointments.CheckIn))
				r.Post("/start", transitionHandler(cfg.Appointments.Start))
				r.Post("/no-show", transitionHandler(cfg.Appointments.MarkNoShow))
				r.Post("/undo-no-show", transitionHandler(cfg.Appointments.UndoNoShow))
				r.Post("/complete", completeAppointmentHandler(cfg.Appointments))
				r.Post("/cancel", cancelAppointmentHandler(cfg.Appointments))
				r.Post("/reschedule", rescheduleAppointmentHandler(cfg.Appointments))
			})
		})

		r.Route("/patients", func(r chi.Router) {
			r.Get("/", searchPatientsHandler(cfg.Patients))
			r.Post("/", createPatientHandler(cfg.Patients))
			r.Get("/{id}", getPatientHandler(cfg.Patients))
			r.Put("/{id}", updatePatientHandler(cfg.Patients))
			r.Delete("/{id}", deletePatientHandler(cfg.Patients))
			r.Get("/{id}/appointments", patientAppointmentsHandler(cfg.Appointments))
		})

		r.Get("/clinics/{id}/providers", listProvidersHandler(cfg.Patients))
		r.Get("/clinics/{id}/locations", listLocationsHandler(cfg.Patients))
		r.Get("/providers/{id}/slots", slotsHandler(cfg.Slots))

		r.Route("/invoices", func(r chi.Router) {
			r.Post("/", createInvoiceHandler(cfg.Billing))
			r.Get("/", listInvoicesHandler(cfg.Billing))
			r.Get("/{id}", getInvoiceHandler(cfg.Billing))
			r.Post("/{id}/payments", recordPaymentHandler(cfg.Billing))
		})

		r.Route("/inventory", func(r chi.Router) {
			r.Get("/items", listItemsHandler(cfg.Inventory))
			r.Post("/consumption/plan", consumptionPlanHandler(cfg.Inventory))
			r.Post("/consumption/confirm", consumptionConfirmHandler(cfg.Inventory))
		})

		r.Route("/users/{id}/mfa/backup-codes", func(r chi.Router) {
			r.Post("/", generateBackupCodesHandler(cfg.MFA))
			r.Get("/export", exportBackupCodesHandler(cfg.MFA))
			r.Post("/redeem", redeemBackupCodeHandler(cfg.MFA))
		})
	})

	return r
}
