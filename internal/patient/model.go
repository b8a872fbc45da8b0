package patient

import (
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound = errors.New("patient not found")
	ErrNameRequired    = errors.New("first and last name are required")
	ErrInvalidEmail    = errors.New("invalid email address")
	ErrNoChanges       = errors.New("no fields to update")
)

type Patient struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID uuid.UUID  `json:"organizationId"`
	ClinicID       uuid.UUID  `json:"clinicId"`
	FirstName      string     `json:"firstName"`
	LastName       string     `json:"lastName"`
	Email          string     `json:"email,omitempty"`
	Phone          string     `json:"phone,omitempty"`
	DateOfBirth    *time.Time `json:"dateOfBirth,omitempty"`
	NoShowCount    int        `json:"noShowCount"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

func (p Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

type CreateRequest struct {
	ClinicID    uuid.UUID
	FirstName   string
	LastName    string
	Email       string
	Phone       string
	DateOfBirth *time.Time
}

func (r CreateRequest) Validate() error {
	if strings.TrimSpace(r.FirstName) == "" || strings.TrimSpace(r.LastName) == "" {
		return ErrNameRequired
	}
	return validEmail(r.Email)
}

// UpdateRequest changes only the non-nil fields.
type UpdateRequest struct {
	FirstName   *string
	LastName    *string
	Email       *string
	Phone       *string
	DateOfBirth *time.Time
}

// Apply writes the request onto p and returns the names of the fields that changed.
func (r UpdateRequest) Apply(p *Patient) ([]string, error) {
	var changed []string

	if r.FirstName != nil && *r.FirstName != p.FirstName {
		if strings.TrimSpace(*r.FirstName) == "" {
			return nil, ErrNameRequired
		}
		p.FirstName = *r.FirstName
		changed = append(changed, "firstName")
	}
	if r.LastName != nil && *r.LastName != p.LastName {
		if strings.TrimSpace(*r.LastName) == "" {
			return nil, ErrNameRequired
		}
		p.LastName = *r.LastName
		changed = append(changed, "lastName")
	}
	if r.Email != nil && *r.Email != p.Email {
		if err := validEmail(*r.Email); err != nil {
			return nil, err
		}
		p.Email = *r.Email
		changed = append(changed, "email")
	}
	if r.Phone != nil && *r.Phone != p.Phone {
		p.Phone = *r.Phone
		changed = append(changed, "phone")
	}
	if r.DateOfBirth != nil && (p.DateOfBirth == nil || !p.DateOfBirth.Equal(*r.DateOfBirth)) {
		dob := *r.DateOfBirth
		p.DateOfBirth = &dob
		changed = append(changed, "dateOfBirth")
	}
	return changed, nil
}

func validEmail(v string) error {
	if v == "" {
		return nil
	}
	if _, err := mail.ParseAddress(v); err != nil {
		return ErrInvalidEmail
	}
	return nil
}

type Provider struct {
	ID        uuid.UUID `json:"id"`
	ClinicID  uuid.UUID `json:"clinicId"`
	Name      string    `json:"name"`
	Specialty string    `json:"specialty"`
	Active    bool      `json:"active"`
}

// Location is a bookable room or chair group inside a clinic.
type Location struct {
	ID       uuid.UUID `json:"id"`
	ClinicID uuid.UUID `json:"clinicId"`
	Name     string    `json:"name"`
}
