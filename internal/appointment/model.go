package appointment

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AppointmentStatus string

const (
	StatusPending    AppointmentStatus = "pending"
	StatusConfirmed  AppointmentStatus = "confirmed"
	StatusCheckedIn  AppointmentStatus = "checked_in"
	StatusInProgress AppointmentStatus = "in_progress"
	StatusCompleted  AppointmentStatus = "completed"
	StatusCancelled  AppointmentStatus = "cancelled"
	StatusNoShow     AppointmentStatus = "no_show"
)

// Terminal reports whether no further lifecycle action applies.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Blocking reports whether an appointment in this status occupies its provider's time.
func (s AppointmentStatus) Blocking() bool {
	return s != StatusCancelled && s != StatusNoShow
}

type CancelReason string

const (
	ReasonPatientRequest     CancelReason = "patient_request"
	ReasonClinicRequest      CancelReason = "clinic_request"
	ReasonIllness            CancelReason = "illness"
	ReasonSchedulingConflict CancelReason = "scheduling_conflict"
	ReasonOther              CancelReason = "other"
)

func (r CancelReason) Valid() bool {
	switch r {
	case ReasonPatientRequest, ReasonClinicRequest, ReasonIllness, ReasonSchedulingConflict, ReasonOther:
		return true
	}
	return false
}

type Appointment struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	ClinicID       uuid.UUID
	PatientID      uuid.UUID
	ProviderID     uuid.UUID
	LocationID     uuid.UUID
	Start          time.Time
	End            time.Time
	Status         AppointmentStatus
	Confirmed      bool
	ServiceCode    string
	ChairID        *string
	Notes          *string

	CheckedInAt  *time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	CancelledAt  *time.Time
	CancelReason *CancelReason
	CancelNotes  *string
	Procedures   []Procedure
	MaterialCost decimal.Decimal

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Duration is the booked length of the appointment.
func (a Appointment) Duration() time.Duration {
	return a.End.Sub(a.Start)
}

// Overlaps reports whether [start, end) intersects the appointment.
func (a Appointment) Overlaps(start, end time.Time) bool {
	return a.Start.Before(end) && start.Before(a.End)
}

// Procedure is one treatment performed during a completed appointment.
type Procedure struct {
	Code        string          `json:"code"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Tooth       string          `json:"tooth,omitempty"`
	Surface     string          `json:"surface,omitempty"`
}

func (p Procedure) Total() decimal.Decimal {
	return p.Price.Mul(decimal.NewFromInt(int64(p.Quantity)))
}

var (
	ErrInvalidTimeRange   = errors.New("appointment end must be after start")
	ErrNotesRequired      = errors.New("notes are required when the cancellation reason is other")
	ErrInvalidReason      = errors.New("unknown cancellation reason")
	ErrNoProcedures       = errors.New("at least one procedure is required to complete an appointment")
	ErrInvalidProcedure   = errors.New("invalid procedure")
	ErrNegativeMaterial   = errors.New("material cost must not be negative")
	ErrMissingParticipant = errors.New("patient, provider and location are required")
)

type BookRequest struct {
	ClinicID    uuid.UUID
	PatientID   uuid.UUID
	ProviderID  uuid.UUID
	LocationID  uuid.UUID
	Start       time.Time
	End         time.Time
	ServiceCode string
	ChairID     *string
	Notes       *string
}

func (r BookRequest) Validate() error {
	if r.ClinicID == uuid.Nil || r.PatientID == uuid.Nil || r.ProviderID == uuid.Nil || r.LocationID == uuid.Nil {
		return ErrMissingParticipant
	}
	if !r.End.After(r.Start) {
		return ErrInvalidTimeRange
	}
	return nil
}

type CancelRequest struct {
	Reason CancelReason
	Notes  string
}

func (r CancelRequest) Validate() error {
	if !r.Reason.Valid() {
		return ErrInvalidReason
	}
	if r.Reason == ReasonOther && strings.TrimSpace(r.Notes) == "" {
		return ErrNotesRequired
	}
	return nil
}

type CompleteRequest struct {
	Procedures   []Procedure
	MaterialCost decimal.Decimal
}

func (r CompleteRequest) Validate() error {
	if len(r.Procedures) == 0 {
		return ErrNoProcedures
	}
	for i, p := range r.Procedures {
		switch {
		case strings.TrimSpace(p.Code) == "":
			return fmt.Errorf("%w: line %d has no code", ErrInvalidProcedure, i+1)
		case p.Quantity <= 0:
			return fmt.Errorf("%w: line %d quantity must be positive", ErrInvalidProcedure, i+1)
		case p.Price.IsNegative():
			return fmt.Errorf("%w: line %d price must not be negative", ErrInvalidProcedure, i+1)
		}
	}
	if r.MaterialCost.IsNegative() {
		return ErrNegativeMaterial
	}
	return nil
}

// ProceduresTotal sums price*quantity over the performed procedures.
func (r CompleteRequest) ProceduresTotal() decimal.Decimal {
	total := decimal.Zero
	for _, p := range r.Procedures {
		total = total.Add(p.Total())
	}
	return total
}

type RescheduleRequest struct {
	Start      time.Time
	End        time.Time
	ProviderID *uuid.UUID
}

func (r RescheduleRequest) Validate() error {
	if !r.End.After(r.Start) {
		return ErrInvalidTimeRange
	}
	return nil
}

// BulkResult reports a per-appointment outcome for bulk confirmation.
type BulkResult struct {
	Confirmed []uuid.UUID
	Failed    map[uuid.UUID]string
}
