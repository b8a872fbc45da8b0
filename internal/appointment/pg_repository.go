package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/dental-practice-portal/internal/db"
)

type PgRepository struct {
	db db.Querier
}

func NewPgRepository(q db.Querier) *PgRepository {
	return &PgRepository{db: q}
}

const appointmentColumns = `
	id, organization_id, clinic_id, patient_id, provider_id, location_id,
	start_time, end_time, status, confirmed, service_code, chair_id, notes,
	checked_in_at, started_at, completed_at, cancelled_at, cancel_reason, cancel_notes,
	procedures, material_cost, created_at, updated_at`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var procedures []byte

	err := row.Scan(
		&a.ID,
		&a.OrganizationID,
		&a.ClinicID,
		&a.PatientID,
		&a.ProviderID,
		&a.LocationID,
		&a.Start,
		&a.End,
		&a.Status,
		&a.Confirmed,
		&a.ServiceCode,
		&a.ChairID,
		&a.Notes,
		&a.CheckedInAt,
		&a.StartedAt,
		&a.CompletedAt,
		&a.CancelledAt,
		&a.CancelReason,
		&a.CancelNotes,
		&procedures,
		&a.MaterialCost,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if len(procedures) > 0 {
		if err := json.Unmarshal(procedures, &a.Procedures); err != nil {
			return nil, fmt.Errorf("decode procedures: %w", err)
		}
	}
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Interface methods

func (r *PgRepository) PatientExists(ctx context.Context, orgID, patientID uuid.UUID) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM patients
			WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL
		)
	`, patientID, orgID).Scan(&ok)
	return ok, err
}

func (r *PgRepository) ProviderExists(ctx context.Context, orgID, providerID uuid.UUID) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM providers
			WHERE id = $1 AND organization_id = $2 AND active
		)
	`, providerID, orgID).Scan(&ok)
	return ok, err
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `SELECT`+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListByClinicRange(ctx context.Context, orgID, clinicID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `SELECT`+appointmentColumns+`
		FROM appointments
		WHERE organization_id = $1
		  AND clinic_id = $2
		  AND start_time >= $3
		  AND start_time < $4
		ORDER BY start_time, id
	`, orgID, clinicID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list clinic appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListByPatient(ctx context.Context, orgID, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `SELECT`+appointmentColumns+`
		FROM appointments
		WHERE organization_id = $1
		  AND patient_id = $2
		ORDER BY start_time DESC
		LIMIT $3 OFFSET $4
	`, orgID, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list patient appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListProviderBlocking(ctx context.Context, orgID, providerID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `SELECT`+appointmentColumns+`
		FROM appointments
		WHERE organization_id = $1
		  AND provider_id = $2
		  AND status NOT IN ('cancelled', 'no_show')
		  AND start_time < $4
		  AND end_time > $3
		ORDER BY start_time
	`, orgID, providerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list provider appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments (
			id, organization_id, clinic_id, patient_id, provider_id, location_id,
			start_time, end_time, status, confirmed, service_code, chair_id, notes,
			material_cost, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 0, now(), now())
		RETURNING`+appointmentColumns,
		a.ID, a.OrganizationID, a.ClinicID, a.PatientID, a.ProviderID, a.LocationID,
		a.Start, a.End, a.Status, a.Confirmed, a.ServiceCode, a.ChairID, a.Notes,
	)
	return scanAppointment(row)
}

func (r *PgRepository) ApplyTransition(ctx context.Context, id uuid.UUID, from AppointmentStatus, p Patch) (*Appointment, error) {
	var procedures []byte
	if p.Procedures != nil {
		b, err := json.Marshal(p.Procedures)
		if err != nil {
			return nil, fmt.Errorf("encode procedures: %w", err)
		}
		procedures = b
	}

	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3,
		    confirmed = COALESCE($4, confirmed),
		    checked_in_at = COALESCE($5, checked_in_at),
		    started_at = COALESCE($6, started_at),
		    completed_at = COALESCE($7, completed_at),
		    cancelled_at = COALESCE($8, cancelled_at),
		    cancel_reason = COALESCE($9, cancel_reason),
		    cancel_notes = COALESCE($10, cancel_notes),
		    procedures = COALESCE($11, procedures),
		    material_cost = COALESCE($12, material_cost),
		    updated_at = now()
		WHERE id = $1
		  AND status = $2
		RETURNING`+appointmentColumns,
		id, from, p.To, p.Confirmed, p.CheckedInAt, p.StartedAt, p.CompletedAt,
		p.CancelledAt, p.CancelReason, p.CancelNotes, procedures, p.MaterialCost,
	)
	return scanAppointment(row)
}

func (r *PgRepository) Reschedule(ctx context.Context, id uuid.UUID, from AppointmentStatus, providerID uuid.UUID, start, end time.Time) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET start_time = $3,
		    end_time = $4,
		    provider_id = $5,
		    status = 'pending',
		    confirmed = false,
		    updated_at = now()
		WHERE id = $1
		  AND status = $2
		RETURNING`+appointmentColumns,
		id, from, start, end, providerID,
	)
	return scanAppointment(row)
}

func (r *PgRepository) FindNoShowCandidates(ctx context.Context, startedBefore time.Time, limit int) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `SELECT`+appointmentColumns+`
		FROM appointments
		WHERE status IN ('pending', 'confirmed')
		  AND start_time < $1
		ORDER BY start_time
		LIMIT $2
	`, startedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("find no-show candidates: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ApplyNoShow(ctx context.Context, id uuid.UUID, from AppointmentStatus, patch Patch) (*Appointment, int, error) {
	var (
		appt  *Appointment
		count int
	)
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		txRepo := NewPgRepository(tx)
		var err error
		if appt, err = txRepo.ApplyTransition(ctx, id, from, patch); err != nil {
			return err
		}
		count, err = txRepo.IncrementPatientNoShows(ctx, appt.PatientID)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return appt, count, nil
}

func (r *PgRepository) IncrementPatientNoShows(ctx context.Context, patientID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		UPDATE patients
		SET no_show_count = no_show_count + 1,
		    updated_at = now()
		WHERE id = $1
		RETURNING no_show_count
	`, patientID).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrPatientNotFound
		}
		return 0, fmt.Errorf("increment no-show count: %w", err)
	}
	return count, nil
}
