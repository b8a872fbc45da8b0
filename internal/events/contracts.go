package events

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event is an immutable record of a state transition in one aggregate.
type Event interface {
	EventType() string
	EventVersion() int
	AggregateID() uuid.UUID
	Metadata() Meta
	validate() error
}

// Meta carries tenant scoping common to every event. ClinicID is nil for
// organization and user level events.
type Meta struct {
	OrganizationID uuid.UUID `json:"organizationId"`
	ClinicID       uuid.UUID `json:"clinicId"`
	OccurredAt     time.Time `json:"occurredAt"`
}

func (m Meta) Metadata() Meta { return m }

var (
	ErrMissingOrganization = errors.New("events: organizationId is required")
	ErrMissingClinic       = errors.New("events: clinicId is required")
	ErrMissingAggregate    = errors.New("events: aggregate id is required")
)

// New validates e and stamps OccurredAt when unset.
func New[E Event](e E) (E, error) {
	var zero E
	if e.Metadata().OrganizationID == uuid.Nil {
		return zero, ErrMissingOrganization
	}
	if e.AggregateID() == uuid.Nil {
		return zero, ErrMissingAggregate
	}
	if err := e.validate(); err != nil {
		return zero, fmt.Errorf("events: %s: %w", e.EventType(), err)
	}
	return stamp(e), nil
}

func stamp[E Event](e E) E {
	if !e.Metadata().OccurredAt.IsZero() {
		return e
	}
	if s, ok := any(&e).(interface{ setOccurredAt(time.Time) }); ok {
		s.setOccurredAt(nowFunc().UTC())
	}
	return e
}

var nowFunc = time.Now

func requireClinic(m Meta) error {
	if m.ClinicID == uuid.Nil {
		return ErrMissingClinic
	}
	return nil
}

func requireID(name string, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("%s is required", name)
	}
	return nil
}

func requireText(name, v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%s is required", name)
	}
	return nil
}

// Appointment lifecycle

type AppointmentBooked struct {
	Meta
	AppointmentID uuid.UUID `json:"appointmentId"`
	PatientID     uuid.UUID `json:"patientId"`
	ProviderID    uuid.UUID `json:"providerId"`
	LocationID    uuid.UUID `json:"locationId"`
	ServiceCode   string    `json:"serviceCode"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
}

func (AppointmentBooked) EventType() string            { return "appointment.booked" }
func (AppointmentBooked) EventVersion() int            { return 1 }
func (e AppointmentBooked) AggregateID() uuid.UUID     { return e.AppointmentID }
func (e *AppointmentBooked) setOccurredAt(t time.Time) { e.OccurredAt = t }
func (e AppointmentBooked) validate() error {
	if err := requireClinic(e.Meta); err != nil {
		return err
	}
	if err := requireID("patientId", e.PatientID); err != nil {
		return err
	}
	if err := requireID("providerId", e.ProviderID); err != nil {
		return err
	}
	if !e.End.After(e.Start) {
		return errors.New("end must be after start")
	}
	return nil
}

type AppointmentRescheduled struct {
	Meta
	AppointmentID uuid.UUID `json:"appointmentId"`
	PreviousStart time.Time `json:"previousStart"`
	PreviousEnd   time.Time `json:"previousEnd"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	ProviderID    uuid.UUID `json:"providerId"`
}

func (AppointmentRescheduled) EventType() string            { return "appointment.rescheduled" }
func (AppointmentRescheduled) EventVersion() int            { return 1 }
func (e AppointmentRescheduled) AggregateID() uuid.UUID     { return e.AppointmentID }
func (e *AppointmentRescheduled) setOccurredAt(t time.Time) { e.OccurredAt = t }
func (e AppointmentRescheduled) validate() error {
	if err := requireClinic(e.Meta); err != nil {
		return err
	}
	if !e.End.After(e.Start) {
		return errors.New("end must be after start")
	}
	return nil
}

type AppointmentCancelled struct {
	Meta
	AppointmentID uuid.UUID `json:"appointmentId"`
	PatientID     uuid.UUID `json:"patientId"`
	Reason        string    `json:"reason"`
	Notes         string    `json:"notes,omitempty"`
}

func (AppointmentCancelled) EventType() string            { return "appointment.cancelled" }
func (AppointmentCancelled) EventVersion() int            { return 1 }
func (e AppointmentCancelled) AggregateID() uuid.UUID     { return e.AppointmentID }
func (e *AppointmentCancelled) setOccurredAt(t time.Time) { e.OccurredAt = t }
func (e AppointmentCancelled) validate() error {
	if err := requireClinic(e.Meta); err != nil {
		return err
	}
	return requireText("reason", e.Reason)
}

type AppointmentConfirmed struct {
	Meta
	AppointmentID uuid.UUID `json:"appointmentId"`
	PatientID     uuid.UUID `json:"patientId"`
}

func (AppointmentConfirmed) EventType() string            { return "appointment.confirmed" }
func (AppointmentConfirmed) EventVersion() int            { return 1 }
func (e AppointmentConfirmed) AggregateID() uuid.UUID     { return e.AppointmentID }
func (e *AppointmentConfirmed) setOccurredAt(t time.Time) { e.OccurredAt = t }
func (e AppointmentConfirmed) validate() error            { return requireClinic(e.Meta) }

type AppointmentCheckedIn struct {
	Meta
	AppointmentID uuid.UUID `json:"appointmentId"`
	PatientID     uuid.UUID `json:"patientId"`
	CheckedInAt   time.Time `json:"checkedInAt"`
	// MinutesEarly is negative when the patient arrived late.
	MinutesEarly int `json:"minutesEarly"`
}

func (AppointmentCheckedIn) EventType() string            { return "appointment.checked_in" }
func (AppointmentCheckedIn) EventVersion() int            { return 1 }
func (e AppointmentCheckedIn) AggregateID() uuid.UUID     { return e.AppointmentID }
func (e *AppointmentCheckedIn) setOccurredAt(t time.Time) { e.OccurredAt = t }
func (e AppointmentCheckedIn) validate() error {
	if err := requireClinic(e.Meta); err != nil {
		return err
	}
	if e.CheckedInAt.IsZero() {
		return errors.New("checkedInAt is required")
	}
	return nil
}

type AppointmentStarted struct {
	Meta
	AppointmentID uuid.UUID `json:"appointmentId"`
	ProviderID    uuid.UUID `json:"providerId"`
	ChairID       string    `json:"chairId,omitempty"`
	StartedAt     time.Time `json:"startedAt"`
	// WaitMinutes is the time between check-in and start.
	WaitMinutes int `json:"waitMinutes"`
}

func (AppointmentStarted) EventType() string            { return "appointment.started" }
func (AppointmentStarted) EventVersion() int            { return 1 }
func (e AppointmentStarted) AggregateID() uuid.UUID     { return e.AppointmentID }
func (e *AppointmentStarted) setOccurredAt(t time.Time) { e.OccurredAt = t }
func (e AppointmentStarted) validate() error {
	if err := requireClinic(e.Meta); err != nil {
		return err
	}
	if e.StartedAt.IsZero() {
		return errors.New("startedAt is required")
	}
	return nil
}

type AppointmentCompleted struct {
	Meta
	AppointmentID         uuid.UUID       `json:"appointmentId"`
	PatientID             uuid.UUID       `json:"patientId"`
	ProviderID            uuid.UUID       `json:"providerId"`
	ProcedureCodes        []string        `json:"procedureCodes"`
	ProceduresTotal       decimal.Decimal `json:"proceduresTotal"`
	MaterialCost          decimal.Decimal `json:"materialCost"`
	ActualDurationMinutes int             `json:"actualDurationMinutes"`
	CompletedAt           time.Time       `json:"completedAt"`
}

func (AppointmentCompleted) EventType() string            { return "appointment.completed" }
func (AppointmentCompleted) EventVersion() int            { return 1 }
func (e AppointmentCompleted) AggregateID() uuid.UUID     { return e.AppointmentID }
func (e *AppointmentCompleted) setOccurredAt(t time.Time) { e.OccurredAt = t }
func (e AppointmentCompleted) validate() error {
	if err := requireClinic(e.Meta); err != nil {
		return err
	}
	if len(e.ProcedureCodes) == 0 {
		return errors.New("at least one procedure code is required")
	}
	if e.ActualDurationMinutes < 0 {
		return errors.New("actualDurationMinutes must not be negative")
	}
	if e.MaterialCost.IsNegative() {
		return errors.New("materialCost must not be negative")
	}
	return nil
}

type AppointmentNoShow struct {
	Meta
	AppointmentID      uuid.UUID `json:"appointmentId"`
	PatientID          uuid.UUID `json:"patientId"`
	ScheduledStart     time.Time `json:"scheduledStart"`
	PatientNoShowCount int       `json:"patientNoShowCount"`
	Automatic          bool      `json:"automatic"`
}

func (AppointmentNoShow) EventType() string            { return "appointment.no_show" }
func (AppointmentNoShow) EventVersion() int            { return 1 }
func (e AppointmentNoShow) AggregateID() uuid.UUID     { return e.AppointmentID }
func (e *AppointmentNoShow) setOccurredAt(t time.Time) { e.OccurredAt = t }
func (e AppointmentNoShow) validate() error {
	if err := requireClinic(e.Meta); err != nil {
		return err
	}
	if err := requireID("patientId", e.PatientID); err != nil {
		return err
	}
	if e.PatientNoShowCount < 1 {
		return errors.New("patientNoShowCount must be at least 1")
	}
	return nil
}

// Patients

type PatientCreated struct {
	Meta
	PatientID uuid.UUID `json:"patientId"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email,omitempty"`
}

func (PatientCreated) EventType() string            { return "patient.created" }
func (PatientCreated) EventVersion() int            { return 1 }
func (e PatientCreated) AggregateID() uuid.UUID     { return e.PatientID }
func (e *PatientCreated) setOccurredAt(t time.Time) { e.OccurredAt = t }
func (e PatientCreated) validate() error {
	if err := requireText("firstName", e.FirstName); err != nil {
		return err
	}
	return requireText("lastName", e.LastName)
}

type PatientUpdated struct {
	Meta
	PatientID     uuid.UUID `json:"patientId"`
	ChangedFields []string  `json:"changedFields"`
}

func (PatientUpdated) EventType() string            { return "patient.updated" }
func (PatientUpdated) EventVersion() int            { return 1 }
func (e PatientUpdated) AggregateID() uuid.UUID     { return e.PatientID }
func (e *PatientUpdated) setOccurredAt(t time.Time) { e.OccurredAt = t }
func (e PatientUpdated) validate() error {
	if len(e.ChangedFields) == 0 {
		return errors.New("changedFields must not be empty")
	}
	return nil
}

type PatientDeleted struct {
	Meta
	PatientID uuid.UUID `json:"patientId"`
}

func (PatientDeleted) EventType() string            { return "patient.deleted" }
func (PatientDeleted) EventVersion() int            { return 1 }
func (e PatientDeleted) AggregateID() uuid.UUID     { return e.PatientID }
func (e *PatientDeleted) setOccurredAt(t time.Time) { e.OccurredAt = t }
func (e PatientDeleted) validate() error            { return nil }

// Tenants, clinics and users

type TenantCreated struct {
	Meta
	Name string `json:"name"`
	Plan string `json:"plan,omitempty"`
}

func (TenantCreated) EventType() string            { return "tenant.created" }
func (TenantCreated) EventVersion() int            { return 1 }
func (e TenantCreated) AggregateID() uuid.UUID     { return e.OrganizationID }
func (e *TenantCreated) setOccurredAt(t time.Time) { e.OccurredAt = t }
func (e TenantCreated) validate() error            { return requireText("name", e.Name) }

type TenantSuspended struct {
	Meta
	Reason string `json:"reason"`
}

func (TenantSuspended) EventType() string            { return "tenant.suspended" }
func (TenantSuspended) EventVersion() int            { return 1 }
func (e TenantSuspended) AggregateID() uuid.UUID     { return e.OrganizationID }
func (e *TenantSuspended) setOccurredAt(t time.Time) { e.OccurredAt = t }
func (e TenantSuspended) validate() error            { return requireText("reason", e.Reason) }

type ClinicCreated struct {
	Meta
	Name     string `json:"name"`
	Timezone string `json:"timezone"`
}

func (ClinicCreated) EventType() string            { return "clinic.created" }
func (ClinicCreated) EventVersion() int            { return 1 }
func (e ClinicCreated) AggregateID() uuid.UUID     { return e.ClinicID }
func (e *ClinicCreated) setOccurredAt(t time.Time) { e.OccurredAt = t }
func (e ClinicCreated) validate() error {
	if err := requireText("name", e.Name); err != nil {
		return err
	}
	if _, err := time.LoadLocation(e.Timezone); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	return nil
}

type ClinicUpdated struct {
	Meta
	ChangedFields []string `json:"changedFields"`
}

func (ClinicUpdated) EventType() string            { return "clinic.updated" }
func (ClinicUpdated) EventVersion() int            { return 1 }
func (e ClinicUpdated) AggregateID() uuid.UUID     { return e.ClinicID }
func (e *ClinicUpdated) setOccurredAt(t time.Time) { e.OccurredAt = t }
func (e ClinicUpdated) validate() error {
	if len(e.ChangedFields) == 0 {
		return errors.New("changedFields must not be empty")
	}
	return nil
}

type UserCreated struct {
	Meta
	UserID uuid.UUID `json:"userId"`
	Email  string    `json:"email"`
	Role   string    `json:"role"`
}

func (UserCreated) EventType() string            { return "user.created" }
func (UserCreated) EventVersion() int            { return 1 }
func (e UserCreated) AggregateID() uuid.UUID     { return e.UserID }
func (e *UserCreated) setOccurredAt(t time.Time) { e.OccurredAt = t }
func (e UserCreated) validate() error {
	if err := requireText("email", e.Email); err != nil {
		return err
	}
	return requireText("role", e.Role)
}

type UserDeactivated struct {
	Meta
	UserID uuid.UUID `json:"userId"`
	Reason string    `json:"reason,omitempty"`
}

func (UserDeactivated) EventType() string            { return "user.deactivated" }
func (UserDeactivated) EventVersion() int            { return 1 }
func (e UserDeactivated) AggregateID() uuid.UUID     { return e.UserID }
func (e *UserDeactivated) setOccurredAt(t time.Time) { e.OccurredAt = t }
func (e UserDeactivated) validate() error            { return nil }
