package patient

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/dental-practice-portal/internal/events"
	"github.com/hackgods/dental-practice-portal/internal/logging"
	"github.com/hackgods/dental-practice-portal/internal/tenancy"
)

type memRepo struct {
	patients map[uuid.UUID]*Patient
	deleted  map[uuid.UUID]bool
}

func newMemRepo() *memRepo {
	return &memRepo{patients: map[uuid.UUID]*Patient{}, deleted: map[uuid.UUID]bool{}}
}

func (r *memRepo) Search(ctx context.Context, orgID uuid.UUID, query string, limit int) ([]Patient, error) {
	var out []Patient
	q := strings.ToLower(query)
	for id, p := range r.patients {
		if p.OrganizationID != orgID || r.deleted[id] {
			continue
		}
		if strings.Contains(strings.ToLower(p.FullName()+" "+p.Email+" "+p.Phone), q) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memRepo) Get(ctx context.Context, orgID, id uuid.UUID) (*Patient, error) {
	p, ok := r.patients[id]
	if !ok || p.OrganizationID != orgID || r.deleted[id] {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memRepo) Create(ctx context.Context, p Patient) (*Patient, error) {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	r.patients[p.ID] = &p
	cp := p
	return &cp, nil
}

func (r *memRepo) Update(ctx context.Context, p Patient) (*Patient, error) {
	r.patients[p.ID] = &p
	cp := p
	return &cp, nil
}

func (r *memRepo) SoftDelete(ctx context.Context, orgID, id uuid.UUID) error {
	r.deleted[id] = true
	return nil
}

func (r *memRepo) ListProviders(ctx context.Context, orgID, clinicID uuid.UUID) ([]Provider, error) {
	return []Provider{{ID: uuid.New(), ClinicID: clinicID, Name: "Dr. Ana Ruiz", Active: true}}, nil
}

func (r *memRepo) ListLocations(ctx context.Context, orgID, clinicID uuid.UUID) ([]Location, error) {
	return nil, nil
}

func newPatientService() (*Service, *events.MemorySink, context.Context) {
	sink := &events.MemorySink{}
	svc := NewService(newMemRepo(), sink, logging.Discard())
	return svc, sink, tenancy.WithOrganization(context.Background(), uuid.New())
}

func TestCreateSearchUpdateDelete(t *testing.T) {
	svc, sink, ctx := newPatientService()

	p, err := svc.Create(ctx, CreateRequest{ClinicID: uuid.New(), FirstName: "Mira", LastName: "Okafor", Email: "mira@example.com", Phone: "555-0101"})
	require.NoError(t, err)

	found, err := svc.Search(ctx, "okaf", 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, p.ID, found[0].ID)

	phone := "555-0199"
	same := "Mira"
	updated, err := svc.Update(ctx, p.ID, UpdateRequest{Phone: &phone, FirstName: &same})
	require.NoError(t, err)
	assert.Equal(t, phone, updated.Phone)

	_, err = svc.Update(ctx, p.ID, UpdateRequest{Phone: &phone})
	assert.ErrorIs(t, err, ErrNoChanges)

	require.NoError(t, svc.Delete(ctx, p.ID))
	_, err = svc.Get(ctx, p.ID)
	assert.ErrorIs(t, err, ErrPatientNotFound)

	assert.Equal(t, []string{"patient.created", "patient.updated", "patient.deleted"}, sink.Types())
	assert.Contains(t, string(sink.Envelopes[1].Payload), `"changedFields":["phone"]`)
}

func TestCreateValidation(t *testing.T) {
	svc, sink, ctx := newPatientService()

	_, err := svc.Create(ctx, CreateRequest{FirstName: " ", LastName: "Okafor"})
	assert.ErrorIs(t, err, ErrNameRequired)

	_, err = svc.Create(ctx, CreateRequest{FirstName: "Mira", LastName: "Okafor", Email: "not-an-email"})
	assert.ErrorIs(t, err, ErrInvalidEmail)

	_, err = svc.Create(context.Background(), CreateRequest{FirstName: "Mira", LastName: "Okafor"})
	assert.ErrorIs(t, err, tenancy.ErrMissingOrganization)

	assert.Empty(t, sink.Envelopes)
}

func TestPatientsAreTenantScoped(t *testing.T) {
	svc, _, ctx := newPatientService()
	p, err := svc.Create(ctx, CreateRequest{FirstName: "Jon", LastName: "Berg"})
	require.NoError(t, err)

	other := tenancy.WithOrganization(context.Background(), uuid.New())
	_, err = svc.Get(other, p.ID)
	assert.ErrorIs(t, err, ErrPatientNotFound)
	assert.ErrorIs(t, svc.Delete(other, p.ID), ErrPatientNotFound)
}

func TestPgSoftDeleteMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgRepository(mock)
	org, id := uuid.New(), uuid.New()
	mock.ExpectExec("UPDATE patients").
		WithArgs(id, org).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	assert.ErrorIs(t, repo.SoftDelete(context.Background(), org, id), ErrPatientNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\%\_a\\b`, escapeLike(`100%_a\b`))
}
