package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/dental-practice-portal/internal/db"
)

type Repository interface {
	Search(ctx context.Context, orgID uuid.UUID, query string, limit int) ([]Patient, error)
	Get(ctx context.Context, orgID, id uuid.UUID) (*Patient, error)
	Create(ctx context.Context, p Patient) (*Patient, error)
	Update(ctx context.Context, p Patient) (*Patient, error)
	SoftDelete(ctx context.Context, orgID, id uuid.UUID) error

	ListProviders(ctx context.Context, orgID, clinicID uuid.UUID) ([]Provider, error)
	ListLocations(ctx context.Context, orgID, clinicID uuid.UUID) ([]Location, error)
}

type PgRepository struct {
	db db.Querier
}

func NewPgRepository(q db.Querier) *PgRepository {
	return &PgRepository{db: q}
}

const patientColumns = `
	id, organization_id, clinic_id, first_name, last_name, email, phone, date_of_birth,
	no_show_count, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID,
		&p.OrganizationID,
		&p.ClinicID,
		&p.FirstName,
		&p.LastName,
		&p.Email,
		&p.Phone,
		&p.DateOfBirth,
		&p.NoShowCount,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
}

func (r *PgRepository) Search(ctx context.Context, orgID uuid.UUID, query string, limit int) ([]Patient, error) {
	rows, err := r.db.Query(ctx, `SELECT`+patientColumns+`
		FROM patients
		WHERE organization_id = $1
		  AND deleted_at IS NULL
		  AND ($2 = '' OR
		       first_name || ' ' || last_name ILIKE '%' || $2 || '%' OR
		       email ILIKE '%' || $2 || '%' OR
		       phone LIKE '%' || $2 || '%')
		ORDER BY last_name, first_name
		LIMIT $3
	`, orgID, escapeLike(strings.TrimSpace(query)), limit)
	if err != nil {
		return nil, fmt.Errorf("search patients: %w", err)
	}
	defer rows.Close()

	var out []Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *PgRepository) Get(ctx context.Context, orgID, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.db.QueryRow(ctx, `SELECT`+patientColumns+`
		FROM patients
		WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL
	`, id, orgID))
}

func (r *PgRepository) Create(ctx context.Context, p Patient) (*Patient, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return scanPatient(r.db.QueryRow(ctx, `
		INSERT INTO patients (
			id, organization_id, clinic_id, first_name, last_name, email, phone, date_of_birth,
			no_show_count, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, now(), now())
		RETURNING`+patientColumns,
		p.ID, p.OrganizationID, p.ClinicID, p.FirstName, p.LastName, p.Email, p.Phone, p.DateOfBirth,
	))
}

func (r *PgRepository) Update(ctx context.Context, p Patient) (*Patient, error) {
	return scanPatient(r.db.QueryRow(ctx, `
		UPDATE patients
		SET first_name = $3,
		    last_name = $4,
		    email = $5,
		    phone = $6,
		    date_of_birth = $7,
		    updated_at = now()
		WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL
		RETURNING`+patientColumns,
		p.ID, p.OrganizationID, p.FirstName, p.LastName, p.Email, p.Phone, p.DateOfBirth,
	))
}

func (r *PgRepository) SoftDelete(ctx context.Context, orgID, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE patients
		SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL
	`, id, orgID)
	if err != nil {
		return fmt.Errorf("delete patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPatientNotFound
	}
	return nil
}

func (r *PgRepository) ListProviders(ctx context.Context, orgID, clinicID uuid.UUID) ([]Provider, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, clinic_id, name, specialty, active
		FROM providers
		WHERE organization_id = $1 AND clinic_id = $2
		ORDER BY name
	`, orgID, clinicID)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	defer rows.Close()

	var out []Provider
	for rows.Next() {
		var p Provider
		if err := rows.Scan(&p.ID, &p.ClinicID, &p.Name, &p.Specialty, &p.Active); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PgRepository) ListLocations(ctx context.Context, orgID, clinicID uuid.UUID) ([]Location, error) {
	rows, err := r.db.Query(ctx, `
		SELECT l.id, l.clinic_id, l.name
		FROM locations l
		JOIN clinics c ON c.id = l.clinic_id
		WHERE c.organization_id = $1 AND l.clinic_id = $2
		ORDER BY l.name
	`, orgID, clinicID)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	defer rows.Close()

	var out []Location
	for rows.Next() {
		var l Location
		if err := rows.Scan(&l.ID, &l.ClinicID, &l.Name); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
