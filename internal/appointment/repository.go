package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrProviderNotFound    = errors.New("provider not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// Patch carries the columns a lifecycle transition writes. Nil fields are left untouched.
type Patch struct {
	To           AppointmentStatus
	Confirmed    *bool
	CheckedInAt  *time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	CancelledAt  *time.Time
	CancelReason *CancelReason
	CancelNotes  *string
	Procedures   []Procedure
	MaterialCost *decimal.Decimal
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	PatientExists(ctx context.Context, orgID, patientID uuid.UUID) (bool, error)
	ProviderExists(ctx context.Context, orgID, providerID uuid.UUID) (bool, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListByClinicRange(ctx context.Context, orgID, clinicID uuid.UUID, from, to time.Time) ([]Appointment, error)
	ListByPatient(ctx context.Context, orgID, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
	// ListProviderBlocking returns appointments that occupy the provider inside [from, to).
	ListProviderBlocking(ctx context.Context, orgID, providerID uuid.UUID, from, to time.Time) ([]Appointment, error)

	CreateAppointment(ctx context.Context, appt Appointment) (*Appointment, error)
	// ApplyTransition updates the row only while it is still in status from.
	ApplyTransition(ctx context.Context, id uuid.UUID, from AppointmentStatus, patch Patch) (*Appointment, error)
	Reschedule(ctx context.Context, id uuid.UUID, from AppointmentStatus, providerID uuid.UUID, start, end time.Time) (*Appointment, error)

	// No-show sweep
	FindNoShowCandidates(ctx context.Context, startedBefore time.Time, limit int) ([]Appointment, error)
	// ApplyNoShow applies the no_show transition and increments the patient's
	// no-show count atomically, returning the new count.
	ApplyNoShow(ctx context.Context, id uuid.UUID, from AppointmentStatus, patch Patch) (*Appointment, int, error)
}
