package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/dental-practice-portal/internal/config"
	"github.com/hackgods/dental-practice-portal/internal/db"
	"github.com/hackgods/dental-practice-portal/internal/events"
	"github.com/hackgods/dental-practice-portal/internal/logging"
)

const (
	organizationCount  = 2
	clinicsPerOrg      = 3
	providersPerClinic = 4
	patientsPerClinic  = 1500
	patientBatchSize   = 500
)

var specialties = []string{
	"General Dentistry",
	"Orthodontics",
	"Periodontics",
	"Endodontics",
	"Oral Surgery",
	"Pediatric Dentistry",
	"Prosthodontics",
	"Hygiene",
}

type product struct {
	name     string
	unit     string
	unitCost string
	reorder  int
}

var catalog = []product{
	{"Nitrile gloves", "pair", "0.18", 200},
	{"Patient bib", "piece", "0.05", 150},
	{"Composite resin A2", "g", "3.40", 40},
	{"Bonding agent", "ml", "2.10", 20},
	{"Lidocaine 2% cartridge", "cartridge", "0.95", 60},
	{"Prophy paste", "cup", "0.35", 80},
	{"Fluoride varnish", "dose", "1.20", 50},
	{"Gutta-percha points", "pack", "6.80", 10},
	{"Alginate impression material", "g", "0.04", 500},
	{"Sterilization pouch", "piece", "0.09", 300},
}

// templates maps a procedure code to catalog indexes and default quantities.
var templates = map[string]map[int]int{
	"D1110": {0: 1, 1: 1, 5: 1},             // adult prophylaxis
	"D1206": {0: 1, 1: 1, 6: 1},             // fluoride varnish
	"D2391": {0: 2, 1: 1, 2: 2, 3: 1, 4: 1}, // one surface posterior composite
	"D3310": {0: 2, 1: 1, 4: 2, 7: 1},       // anterior root canal
	"D0150": {0: 1, 1: 1, 9: 1},             // comprehensive oral evaluation
}

type seeder struct {
	pool *pgxpool.Pool
	log  *logrus.Entry
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().WithError(err).Fatal("config load error")
	}
	log := logging.New(cfg.LogLevel).WithComponent("seed")
	log.Info("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.WithError(err).Fatal("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())
	s := &seeder{pool: pool, log: log}

	for i := 0; i < organizationCount; i++ {
		if err := s.seedOrganization(context.Background()); err != nil {
			log.WithError(err).Fatal("seed organization")
		}
	}

	log.Info("seed complete")
}

func (s *seeder) seedOrganization(ctx context.Context) error {
	orgID := uuid.New()
	name := gofakeit.Company() + " Dental Group"
	log := s.log.WithField("organization_id", orgID)
	log.WithField("name", name).Info("seeding organization")

	var clinics []uuid.UUID
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO organizations (id, name, created_at)
			VALUES ($1, $2, now())
		`, orgID, name); err != nil {
			return fmt.Errorf("insert organization: %w", err)
		}
		if err := appendEvent(ctx, tx, events.TenantCreated{Meta: events.Meta{OrganizationID: orgID}, Name: name, Plan: "standard"}); err != nil {
			return err
		}

		for c := 0; c < clinicsPerOrg; c++ {
			clinicID, err := seedClinic(ctx, tx, orgID)
			if err != nil {
				return err
			}
			clinics = append(clinics, clinicID)
		}

		if err := seedUsers(ctx, tx, orgID); err != nil {
			return err
		}
		return seedInventory(ctx, tx, orgID)
	})
	if err != nil {
		return err
	}

	for _, clinicID := range clinics {
		if err := s.seedPatients(ctx, orgID, clinicID, patientsPerClinic); err != nil {
			return err
		}
	}
	return nil
}

func seedClinic(ctx context.Context, tx pgx.Tx, orgID uuid.UUID) (uuid.UUID, error) {
	clinicID := uuid.New()
	name := gofakeit.City() + " Dental"
	const tz = "UTC"

	if _, err := tx.Exec(ctx, `
		INSERT INTO clinics (id, organization_id, name, timezone, created_at)
		VALUES ($1, $2, $3, $4, now())
	`, clinicID, orgID, name, tz); err != nil {
		return uuid.Nil, fmt.Errorf("insert clinic: %w", err)
	}
	if err := appendEvent(ctx, tx, events.ClinicCreated{Meta: events.Meta{OrganizationID: orgID, ClinicID: clinicID}, Name: name, Timezone: tz}); err != nil {
		return uuid.Nil, err
	}

	for i := 1; i <= 2; i++ {
		if _, err := tx.Exec(ctx, `
			INSERT INTO locations (id, clinic_id, name)
			VALUES ($1, $2, $3)
		`, uuid.New(), clinicID, fmt.Sprintf("Operatory %d", i)); err != nil {
			return uuid.Nil, fmt.Errorf("insert location: %w", err)
		}
	}

	for i := 0; i < providersPerClinic; i++ {
		if _, err := tx.Exec(ctx, `
			INSERT INTO providers (id, organization_id, clinic_id, name, specialty, active)
			VALUES ($1, $2, $3, $4, $5, true)
		`, uuid.New(), orgID, clinicID, "Dr. "+gofakeit.Name(), specialties[gofakeit.Number(0, len(specialties)-1)]); err != nil {
			return uuid.Nil, fmt.Errorf("insert provider: %w", err)
		}
	}
	return clinicID, nil
}

func seedUsers(ctx context.Context, tx pgx.Tx, orgID uuid.UUID) error {
	for _, role := range []string{"admin", "front_desk", "front_desk", "billing"} {
		userID := uuid.New()
		email := strings.ToLower(gofakeit.Username()) + "@" + gofakeit.DomainName()
		if _, err := tx.Exec(ctx, `
			INSERT INTO users (id, organization_id, email, role, active, created_at)
			VALUES ($1, $2, $3, $4, true, now())
		`, userID, orgID, email, role); err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		if err := appendEvent(ctx, tx, events.UserCreated{Meta: events.Meta{OrganizationID: orgID}, UserID: userID, Email: email, Role: role}); err != nil {
			return err
		}
	}
	return nil
}

func seedInventory(ctx context.Context, tx pgx.Tx, orgID uuid.UUID) error {
	ids := make([]uuid.UUID, len(catalog))
	for i, p := range catalog {
		ids[i] = uuid.New()
		onHand := gofakeit.Number(0, p.reorder*4)
		if _, err := tx.Exec(ctx, `
			INSERT INTO products (id, organization_id, name, unit, unit_cost, quantity_on_hand, reorder_level)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, ids[i], orgID, p.name, p.unit, decimal.RequireFromString(p.unitCost), onHand, p.reorder); err != nil {
			return fmt.Errorf("insert product: %w", err)
		}
	}

	for code, lines := range templates {
		for idx, qty := range lines {
			if _, err := tx.Exec(ctx, `
				INSERT INTO consumption_templates (organization_id, procedure_code, product_id, default_quantity)
				VALUES ($1, $2, $3, $4)
			`, orgID, code, ids[idx], qty); err != nil {
				return fmt.Errorf("insert consumption template: %w", err)
			}
		}
	}
	return nil
}

func (s *seeder) seedPatients(ctx context.Context, orgID, clinicID uuid.UUID, count int) error {
	log := s.log.WithField("clinic_id", clinicID)

	for offset := 0; offset < count; offset += patientBatchSize {
		end := offset + patientBatchSize
		if end > count {
			end = count
		}

		err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
			for i := offset; i < end; i++ {
				id := uuid.New()
				first, last := gofakeit.FirstName(), gofakeit.LastName()
				email := gofakeit.Email()
				dob := gofakeit.DateRange(time.Now().AddDate(-90, 0, 0), time.Now().AddDate(-3, 0, 0))

				if _, err := tx.Exec(ctx, `
					INSERT INTO patients (id, organization_id, clinic_id, first_name, last_name, email, phone, date_of_birth, no_show_count, created_at, updated_at)
					VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, now(), now())
				`, id, orgID, clinicID, first, last, email, gofakeit.Phone(), dob); err != nil {
					return fmt.Errorf("insert patient: %w", err)
				}
				if err := appendEvent(ctx, tx, events.PatientCreated{
					Meta:      events.Meta{OrganizationID: orgID, ClinicID: clinicID},
					PatientID: id,
					FirstName: first,
					LastName:  last,
					Email:     email,
				}); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}

		log.WithField("seeded", end).WithField("total", count).Info("patients seeded")
	}
	return nil
}

func appendEvent[E events.Event](ctx context.Context, tx pgx.Tx, evt E) error {
	env, err := events.Seal(evt)
	if err != nil {
		return err
	}
	return events.AppendTx(ctx, tx, env)
}
