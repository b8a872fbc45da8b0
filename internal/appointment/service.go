package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hackgods/dental-practice-portal/internal/config"
	"github.com/hackgods/dental-practice-portal/internal/events"
	"github.com/hackgods/dental-practice-portal/internal/logging"
	"github.com/hackgods/dental-practice-portal/internal/metrics"
	redisclient "github.com/hackgods/dental-practice-portal/internal/redis"
	"github.com/hackgods/dental-practice-portal/internal/tenancy"
)

var tracer = otel.Tracer("dental/appointment")

var (
	ErrScheduleConflict        = errors.New("provider already has an appointment in that time range")
	ErrAppointmentBusy         = errors.New("appointment is being modified, please retry")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)

const (
	resourceAppointment = "appointment"
	resourceProvider    = "provider"
	noShowBatchSize     = 200
)

type Service struct {
	repo    Repository
	locker  redisclient.Locker
	events  events.Sink
	metrics *metrics.Metrics
	logger  *logging.Logger
	cfg     config.Config
	now     func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, sink events.Sink, m *metrics.Metrics, logger *logging.Logger, cfg config.Config) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:    repo,
		locker:  locker,
		events:  sink,
		metrics: m,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Book creates a pending, unconfirmed appointment after checking the provider's
// calendar. The provider lock keeps two bookings from passing the conflict check together.
func (s *Service) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment.book")
	defer span.End()

	orgID, err := tenancy.RequireOrganization(ctx)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if ok, err := s.repo.PatientExists(ctx, orgID, req.PatientID); err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	} else if !ok {
		return nil, ErrPatientNotFound
	}
	if ok, err := s.repo.ProviderExists(ctx, orgID, req.ProviderID); err != nil {
		return nil, fmt.Errorf("load provider: %w", err)
	} else if !ok {
		return nil, ErrProviderNotFound
	}

	var created *Appointment
	err = s.withLock(ctx, resourceProvider, req.ProviderID, func(lockCtx context.Context) error {
		if err := s.checkConflict(lockCtx, orgID, req.ProviderID, req.Start, req.End, uuid.Nil); err != nil {
			return err
		}

		appt, err := s.repo.CreateAppointment(lockCtx, Appointment{
			OrganizationID: orgID,
			ClinicID:       req.ClinicID,
			PatientID:      req.PatientID,
			ProviderID:     req.ProviderID,
			LocationID:     req.LocationID,
			Start:          req.Start.UTC(),
			End:            req.End.UTC(),
			Status:         StatusPending,
			ServiceCode:    req.ServiceCode,
			ChairID:        req.ChairID,
			Notes:          req.Notes,
		})
		if err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}
		created = appt
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("appointment.id", created.ID.String()))
	emit(ctx, s, events.AppointmentBooked{
		Meta:          s.meta(created),
		AppointmentID: created.ID,
		PatientID:     created.PatientID,
		ProviderID:    created.ProviderID,
		LocationID:    created.LocationID,
		ServiceCode:   created.ServiceCode,
		Start:         created.Start,
		End:           created.End,
	})
	return created, nil
}

// Get returns the appointment if it belongs to the caller's organization.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	orgID, err := tenancy.RequireOrganization(ctx)
	if err != nil {
		return nil, err
	}
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.OrganizationID != orgID {
		return nil, ErrAppointmentNotFound
	}
	return appt, nil
}

// ListDay returns a clinic's appointments starting on the given calendar day.
func (s *Service) ListDay(ctx context.Context, clinicID uuid.UUID, day time.Time) ([]Appointment, error) {
	orgID, err := tenancy.RequireOrganization(ctx)
	if err != nil {
		return nil, err
	}
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	list, err := s.repo.ListByClinicRange(ctx, orgID, clinicID, from, from.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return list, nil
}

// ListByPatient pages through a patient's appointments, newest first.
func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	orgID, err := tenancy.RequireOrganization(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}
	list, err := s.repo.ListByPatient(ctx, orgID, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return list, nil
}

// ListProviderDay returns what occupies a provider of the caller's organization inside [from, to).
func (s *Service) ListProviderDay(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	orgID, err := tenancy.RequireOrganization(ctx)
	if err != nil {
		return nil, err
	}
	if ok, err := s.repo.ProviderExists(ctx, orgID, providerID); err != nil {
		return nil, fmt.Errorf("load provider: %w", err)
	} else if !ok {
		return nil, ErrProviderNotFound
	}
	return s.repo.ListProviderBlocking(ctx, orgID, providerID, from, to)
}

func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	confirmed := true
	_, after, err := s.apply(ctx, id, ActionConfirm, func(*Appointment, time.Time) (Patch, error) {
		return Patch{Confirmed: &confirmed}, nil
	})
	if err != nil {
		return nil, err
	}
	emit(ctx, s, events.AppointmentConfirmed{
		Meta:          s.meta(after),
		AppointmentID: after.ID,
		PatientID:     after.PatientID,
	})
	return after, nil
}

// BulkConfirm confirms each appointment independently; one failure does not stop the rest.
func (s *Service) BulkConfirm(ctx context.Context, ids []uuid.UUID) BulkResult {
	res := BulkResult{Failed: map[uuid.UUID]string{}}
	for _, id := range ids {
		if _, err := s.Confirm(ctx, id); err != nil {
			res.Failed[id] = err.Error()
			continue
		}
		res.Confirmed = append(res.Confirmed, id)
	}
	return res
}

func (s *Service) CheckIn(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	_, after, err := s.apply(ctx, id, ActionCheckIn, func(_ *Appointment, now time.Time) (Patch, error) {
		return Patch{CheckedInAt: &now}, nil
	})
	if err != nil {
		return nil, err
	}
	emit(ctx, s, events.AppointmentCheckedIn{
		Meta:          s.meta(after),
		AppointmentID: after.ID,
		PatientID:     after.PatientID,
		CheckedInAt:   *after.CheckedInAt,
		MinutesEarly:  int(after.Start.Sub(*after.CheckedInAt).Minutes()),
	})
	return after, nil
}

func (s *Service) Start(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	_, after, err := s.apply(ctx, id, ActionStart, func(_ *Appointment, now time.Time) (Patch, error) {
		return Patch{StartedAt: &now}, nil
	})
	if err != nil {
		return nil, err
	}
	wait := 0
	if after.CheckedInAt != nil {
		wait = int(after.StartedAt.Sub(*after.CheckedInAt).Minutes())
	}
	chair := ""
	if after.ChairID != nil {
		chair = *after.ChairID
	}
	emit(ctx, s, events.AppointmentStarted{
		Meta:          s.meta(after),
		AppointmentID: after.ID,
		ProviderID:    after.ProviderID,
		ChairID:       chair,
		StartedAt:     *after.StartedAt,
		WaitMinutes:   wait,
	})
	return after, nil
}

// Complete records the performed procedures and the material cost that the
// stock-consumption step computed.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, req CompleteRequest) (*Appointment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	cost := req.MaterialCost
	_, after, err := s.apply(ctx, id, ActionComplete, func(_ *Appointment, now time.Time) (Patch, error) {
		return Patch{CompletedAt: &now, Procedures: req.Procedures, MaterialCost: &cost}, nil
	})
	if err != nil {
		return nil, err
	}

	duration := 0
	if after.StartedAt != nil {
		duration = int(after.CompletedAt.Sub(*after.StartedAt).Minutes())
	}
	codes := make([]string, 0, len(req.Procedures))
	for _, p := range req.Procedures {
		codes = append(codes, p.Code)
	}
	emit(ctx, s, events.AppointmentCompleted{
		Meta:                  s.meta(after),
		AppointmentID:         after.ID,
		PatientID:             after.PatientID,
		ProviderID:            after.ProviderID,
		ProcedureCodes:        codes,
		ProceduresTotal:       req.ProceduresTotal(),
		MaterialCost:          cost,
		ActualDurationMinutes: duration,
		CompletedAt:           *after.CompletedAt,
	})
	return after, nil
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID, req CancelRequest) (*Appointment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	reason := req.Reason
	notes := req.Notes
	_, after, err := s.apply(ctx, id, ActionCancel, func(_ *Appointment, now time.Time) (Patch, error) {
		return Patch{CancelledAt: &now, CancelReason: &reason, CancelNotes: &notes}, nil
	})
	if err != nil {
		return nil, err
	}
	emit(ctx, s, events.AppointmentCancelled{
		Meta:          s.meta(after),
		AppointmentID: after.ID,
		PatientID:     after.PatientID,
		Reason:        string(reason),
		Notes:         notes,
	})
	return after, nil
}

func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.markNoShow(ctx, id, false)
}

// markNoShow moves the appointment to no_show and bumps the patient's no-show
// count in the same transaction, so the event always carries the new count.
func (s *Service) markNoShow(ctx context.Context, id uuid.UUID, automatic bool) (*Appointment, error) {
	var count int
	_, after, err := s.applyWith(ctx, id, ActionNoShow,
		func(*Appointment, time.Time) (Patch, error) { return Patch{}, nil },
		func(ctx context.Context, id uuid.UUID, from AppointmentStatus, patch Patch) (*Appointment, error) {
			appt, n, err := s.repo.ApplyNoShow(ctx, id, from, patch)
			count = n
			return appt, err
		})
	if err != nil {
		return nil, err
	}

	emit(ctx, s, events.AppointmentNoShow{
		Meta:               s.meta(after),
		AppointmentID:      after.ID,
		PatientID:          after.PatientID,
		ScheduledStart:     after.Start,
		PatientNoShowCount: count,
		Automatic:          automatic,
	})
	return after, nil
}

// UndoNoShow restores a no-show to confirmed so the patient can be checked in.
func (s *Service) UndoNoShow(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	confirmed := true
	_, after, err := s.apply(ctx, id, ActionUndoNoShow, func(*Appointment, time.Time) (Patch, error) {
		return Patch{Confirmed: &confirmed}, nil
	})
	return after, err
}

// Reschedule moves the appointment and puts it back to pending, unconfirmed.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, req RescheduleRequest) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment.reschedule")
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	providerID := current.ProviderID
	if req.ProviderID != nil && *req.ProviderID != uuid.Nil {
		providerID = *req.ProviderID
		if ok, err := s.repo.ProviderExists(ctx, current.OrganizationID, providerID); err != nil {
			return nil, fmt.Errorf("load provider: %w", err)
		} else if !ok {
			return nil, ErrProviderNotFound
		}
	}

	var before, after *Appointment
	err = s.withLock(ctx, resourceProvider, providerID, func(provCtx context.Context) error {
		return s.withLock(provCtx, resourceAppointment, id, func(lockCtx context.Context) error {
			appt, err := s.repo.GetAppointmentByID(lockCtx, id)
			if err != nil {
				return err
			}
			if _, err := Transition(ActionReschedule, appt.Status); err != nil {
				return err
			}
			if err := s.checkConflict(lockCtx, current.OrganizationID, providerID, req.Start, req.End, id); err != nil {
				return err
			}
			updated, err := s.repo.Reschedule(lockCtx, id, appt.Status, providerID, req.Start.UTC(), req.End.UTC())
			if errors.Is(err, ErrAppointmentNotFound) {
				return ErrInvalidStatusTransition
			}
			if err != nil {
				return fmt.Errorf("reschedule appointment: %w", err)
			}
			before, after = appt, updated
			return nil
		})
	})
	s.metrics.ObserveTransition(string(ActionReschedule), err)
	if err != nil {
		return nil, err
	}

	emit(ctx, s, events.AppointmentRescheduled{
		Meta:          s.meta(after),
		AppointmentID: after.ID,
		PreviousStart: before.Start,
		PreviousEnd:   before.End,
		Start:         after.Start,
		End:           after.End,
		ProviderID:    after.ProviderID,
	})
	return after, nil
}

// SweepNoShows marks pending or confirmed appointments whose start is more than
// the configured grace period in the past. Intended to be called by the worker periodically.
func (s *Service) SweepNoShows(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.NoShowGrace)
	candidates, err := s.repo.FindNoShowCandidates(ctx, cutoff, noShowBatchSize)
	if err != nil {
		return 0, fmt.Errorf("find no-show candidates: %w", err)
	}

	marked := 0
	for _, appt := range candidates {
		scoped := tenancy.WithOrganization(ctx, appt.OrganizationID)
		if _, err := s.markNoShow(scoped, appt.ID, true); err != nil {
			if !errors.Is(err, ErrInvalidStatusTransition) && !errors.Is(err, ErrAppointmentBusy) {
				s.logger.WithError(err).WithField("appointment_id", appt.ID).Warn("failed to mark no-show")
			}
			continue
		}
		marked++
	}
	return marked, nil
}

// apply runs one lifecycle action under the appointment lock. The update is
// conditional on the status read inside the lock, so a concurrent writer on
// another replica turns into ErrInvalidStatusTransition instead of a lost update.
func (s *Service) apply(ctx context.Context, id uuid.UUID, action Action, build func(appt *Appointment, now time.Time) (Patch, error)) (before, after *Appointment, err error) {
	return s.applyWith(ctx, id, action, build, s.repo.ApplyTransition)
}

type writeFunc func(ctx context.Context, id uuid.UUID, from AppointmentStatus, patch Patch) (*Appointment, error)

func (s *Service) applyWith(ctx context.Context, id uuid.UUID, action Action, build func(appt *Appointment, now time.Time) (Patch, error), write writeFunc) (before, after *Appointment, err error) {
	ctx, span := tracer.Start(ctx, "appointment."+string(action),
		trace.WithAttributes(attribute.String("appointment.id", id.String())))
	defer span.End()

	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		s.metrics.ObserveTransition(string(action), err)
	}()

	if _, err := s.Get(ctx, id); err != nil {
		return nil, nil, err
	}

	err = s.withLock(ctx, resourceAppointment, id, func(lockCtx context.Context) error {
		appt, err := s.repo.GetAppointmentByID(lockCtx, id)
		if err != nil {
			return err
		}
		to, err := Transition(action, appt.Status)
		if err != nil {
			return err
		}
		patch, err := build(appt, s.now().UTC())
		if err != nil {
			return err
		}
		patch.To = to

		updated, err := write(lockCtx, id, appt.Status, patch)
		if errors.Is(err, ErrAppointmentNotFound) {
			return ErrInvalidStatusTransition
		}
		if err != nil {
			return fmt.Errorf("%s appointment: %w", action, err)
		}
		before, after = appt, updated
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

func (s *Service) withLock(ctx context.Context, resource string, id uuid.UUID, fn func(context.Context) error) error {
	err := s.locker.WithLock(ctx, resource, id, fn)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrAppointmentBusy
	}
	return err
}

func (s *Service) checkConflict(ctx context.Context, orgID, providerID uuid.UUID, start, end time.Time, ignore uuid.UUID) error {
	existing, err := s.repo.ListProviderBlocking(ctx, orgID, providerID, start, end)
	if err != nil {
		return fmt.Errorf("check provider calendar: %w", err)
	}
	for _, a := range existing {
		if a.ID != ignore && a.Status.Blocking() && a.Overlaps(start, end) {
			return ErrScheduleConflict
		}
	}
	return nil
}

func (s *Service) meta(a *Appointment) events.Meta {
	return events.Meta{
		OrganizationID: a.OrganizationID,
		ClinicID:       a.ClinicID,
		OccurredAt:     s.now().UTC(),
	}
}

// emit seals and appends an event. Failures are logged, never returned: the
// transition has already been committed.
func emit[E events.Event](ctx context.Context, s *Service, evt E) {
	if s.events == nil {
		return
	}
	env, err := events.Seal(evt)
	if err != nil {
		s.logger.WithError(err).WithField("event_type", evt.EventType()).Error("failed to seal event")
		return
	}
	if err := s.events.Append(ctx, env); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"event_type":   env.EventType,
			"aggregate_id": env.AggregateID,
		}).Error("failed to append event")
	}
}
