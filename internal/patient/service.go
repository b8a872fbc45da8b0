package patient

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/hackgods/dental-practice-portal/internal/events"
	"github.com/hackgods/dental-practice-portal/internal/logging"
	"github.com/hackgods/dental-practice-portal/internal/tenancy"
)

var tracer = otel.Tracer("dental/patient")

const (
	defaultSearchLimit = 25
	maxSearchLimit     = 100
)

type Service struct {
	repo   Repository
	events events.Sink
	logger *logging.Logger
}

func NewService(repo Repository, sink events.Sink, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{repo: repo, events: sink, logger: logger}
}

func (s *Service) Search(ctx context.Context, query string, limit int) ([]Patient, error) {
	orgID, err := tenancy.RequireOrganization(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	return s.repo.Search(ctx, orgID, query, limit)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	orgID, err := tenancy.RequireOrganization(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, orgID, id)
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*Patient, error) {
	ctx, span := tracer.Start(ctx, "patient.create")
	defer span.End()

	orgID, err := tenancy.RequireOrganization(ctx)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p, err := s.repo.Create(ctx, Patient{
		OrganizationID: orgID,
		ClinicID:       req.ClinicID,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Email:          req.Email,
		Phone:          req.Phone,
		DateOfBirth:    req.DateOfBirth,
	})
	if err != nil {
		return nil, fmt.Errorf("create patient: %w", err)
	}

	emit(ctx, s, events.PatientCreated{
		Meta:      events.Meta{OrganizationID: orgID, ClinicID: p.ClinicID},
		PatientID: p.ID,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Email:     p.Email,
	})
	return p, nil
}

// Update applies the non-nil fields. An update that changes nothing returns ErrNoChanges.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Patient, error) {
	ctx, span := tracer.Start(ctx, "patient.update")
	defer span.End()

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	changed, err := req.Apply(current)
	if err != nil {
		return nil, err
	}
	if len(changed) == 0 {
		return nil, ErrNoChanges
	}

	updated, err := s.repo.Update(ctx, *current)
	if err != nil {
		return nil, err
	}
	emit(ctx, s, events.PatientUpdated{
		Meta:          events.Meta{OrganizationID: updated.OrganizationID, ClinicID: updated.ClinicID},
		PatientID:     updated.ID,
		ChangedFields: changed,
	})
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, current.OrganizationID, id); err != nil {
		return err
	}
	emit(ctx, s, events.PatientDeleted{
		Meta:      events.Meta{OrganizationID: current.OrganizationID, ClinicID: current.ClinicID},
		PatientID: id,
	})
	return nil
}

func (s *Service) ListProviders(ctx context.Context, clinicID uuid.UUID) ([]Provider, error) {
	orgID, err := tenancy.RequireOrganization(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListProviders(ctx, orgID, clinicID)
}

func (s *Service) ListLocations(ctx context.Context, clinicID uuid.UUID) ([]Location, error) {
	orgID, err := tenancy.RequireOrganization(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListLocations(ctx, orgID, clinicID)
}

func emit[E events.Event](ctx context.Context, s *Service, evt E) {
	if s.events == nil {
		return
	}
	env, err := events.Seal(evt)
	if err == nil {
		err = s.events.Append(ctx, env)
	}
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"event_type":   evt.EventType(),
			"aggregate_id": evt.AggregateID(),
		}).Error("failed to record patient event")
	}
}
