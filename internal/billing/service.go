package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hackgods/dental-practice-portal/internal/logging"
	"github.com/hackgods/dental-practice-portal/internal/metrics"
	redisclient "github.com/hackgods/dental-practice-portal/internal/redis"
	"github.com/hackgods/dental-practice-portal/internal/tenancy"
)

var tracer = otel.Tracer("dental/billing")

const resourceInvoice = "invoice"

type Service struct {
	repo    Repository
	locker  redisclient.Locker
	metrics *metrics.Metrics
	logger  *logging.Logger
	now     func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, m *metrics.Metrics, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{repo: repo, locker: locker, metrics: m, logger: logger, now: time.Now}
}

// CreateInvoice validates the items, computes totals and numbers the invoice.
func (s *Service) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error) {
	ctx, span := tracer.Start(ctx, "billing.create_invoice")
	defer span.End()

	orgID, err := tenancy.RequireOrganization(ctx)
	if err != nil {
		return nil, err
	}
	if req.ClinicID == uuid.Nil || req.PatientID == uuid.Nil {
		return nil, &ValidationError{Issues: []Issue{{Line: -1, Field: "patientId", Message: "clinic and patient are required"}}}
	}
	if err := ValidateItems(req.Items); err != nil {
		return nil, err
	}

	id := uuid.New()
	totals := ComputeTotals(req.Items)
	inv, err := s.repo.CreateInvoice(ctx, Invoice{
		ID:             id,
		OrganizationID: orgID,
		ClinicID:       req.ClinicID,
		PatientID:      req.PatientID,
		AppointmentID:  req.AppointmentID,
		Number:         invoiceNumber(s.now(), id),
		Items:          req.Items,
		Totals:         totals,
		AmountPaid:     decimal.Zero,
		Status:         StatusFor(totals.Total, decimal.Zero),
	})
	if err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}
	span.SetAttributes(attribute.String("invoice.id", inv.ID.String()))

	s.logger.WithComponent("billing").WithFields(logrus.Fields{
		"invoice_id": inv.ID,
		"total":      Display(inv.Total),
	}).Info("invoice created")
	return inv, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	orgID, err := tenancy.RequireOrganization(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.GetInvoice(ctx, orgID, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Invoice, error) {
	orgID, err := tenancy.RequireOrganization(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListByPatient(ctx, orgID, patientID)
}

// RecordPayment settles part or all of an invoice with one or more payment lines.
// The allocation is validated again here against the balance read under the
// invoice lock, not the one the client saw when it built the lines.
func (s *Service) RecordPayment(ctx context.Context, invoiceID uuid.UUID, lines []PaymentLine) (*Invoice, error) {
	ctx, span := tracer.Start(ctx, "billing.record_payment")
	defer span.End()
	span.SetAttributes(attribute.String("invoice.id", invoiceID.String()))

	orgID, err := tenancy.RequireOrganization(ctx)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, &ValidationError{Issues: []Issue{{Line: -1, Field: "payments", Message: "at least one payment line is required"}}}
	}

	var updated *Invoice
	err = s.locker.WithLock(ctx, resourceInvoice, invoiceID, func(lockCtx context.Context) error {
		inv, err := s.repo.GetInvoice(lockCtx, orgID, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status == InvoicePaid {
			return ErrInvoicePaid
		}

		alloc := AllocatorFrom(inv.Balance(), lines)
		if err := alloc.Validate(); err != nil {
			return err
		}

		payments := make([]Payment, 0, len(lines))
		for _, l := range alloc.Lines() {
			if l.Amount.IsZero() {
				continue
			}
			payments = append(payments, Payment{
				ID:        uuid.New(),
				InvoiceID: inv.ID,
				Amount:    l.Amount,
				Method:    l.Method,
				Reference: strings.TrimSpace(l.Reference),
			})
		}

		newPaid := inv.AmountPaid.Add(alloc.TotalAllocated())
		updated, err = s.repo.RecordPayments(lockCtx, inv.ID, inv.AmountPaid, newPaid, StatusFor(inv.Total, newPaid), payments)
		if err != nil {
			return err
		}
		updated.Payments = append(inv.Payments, payments...)
		for _, p := range payments {
			s.metrics.ObservePayment(string(p.Method))
		}
		return nil
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return nil, ErrInvoiceBusy
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func invoiceNumber(now time.Time, id uuid.UUID) string {
	return fmt.Sprintf("INV-%s-%s", now.UTC().Format("20060102"), strings.ToUpper(id.String()[:8]))
}
