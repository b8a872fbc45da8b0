package tenancy

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

type ctxKey string

const (
	orgKey    ctxKey = "dental.organization_id"
	clinicKey ctxKey = "dental.clinic_id"
)

var ErrMissingOrganization = errors.New("organization scope missing")

// WithOrganization stores the organization id in context.
func WithOrganization(ctx context.Context, orgID uuid.UUID) context.Context {
	return context.WithValue(ctx, orgKey, orgID)
}

// WithClinic stores the clinic id in context.
func WithClinic(ctx context.Context, clinicID uuid.UUID) context.Context {
	return context.WithValue(ctx, clinicKey, clinicID)
}

// OrganizationFromContext extracts the organization id if present.
func OrganizationFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(orgKey).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// ClinicFromContext extracts the clinic id if present.
func ClinicFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(clinicKey).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// RequireOrganization returns the organization id or ErrMissingOrganization.
func RequireOrganization(ctx context.Context) (uuid.UUID, error) {
	id, ok := OrganizationFromContext(ctx)
	if !ok {
		return uuid.Nil, ErrMissingOrganization
	}
	return id, nil
}
