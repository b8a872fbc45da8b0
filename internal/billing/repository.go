package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/hackgods/dental-practice-portal/internal/db"
)

type Repository interface {
	CreateInvoice(ctx context.Context, inv Invoice) (*Invoice, error)
	GetInvoice(ctx context.Context, orgID, id uuid.UUID) (*Invoice, error)
	ListByPatient(ctx context.Context, orgID, patientID uuid.UUID) ([]Invoice, error)
	// RecordPayments stores payments and moves amount_paid from expectedPaid to newPaid.
	// It returns ErrBalanceChanged when amount_paid no longer equals expectedPaid.
	RecordPayments(ctx context.Context, invoiceID uuid.UUID, expectedPaid, newPaid decimal.Decimal, status InvoiceStatus, payments []Payment) (*Invoice, error)
}

type PgRepository struct {
	db db.Querier
}

func NewPgRepository(q db.Querier) *PgRepository {
	return &PgRepository{db: q}
}

const invoiceColumns = `
	id, organization_id, clinic_id, patient_id, appointment_id, number, items,
	subtotal, discount_total, tax_total, total, amount_paid, status, created_at, updated_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	var items []byte

	err := row.Scan(
		&inv.ID,
		&inv.OrganizationID,
		&inv.ClinicID,
		&inv.PatientID,
		&inv.AppointmentID,
		&inv.Number,
		&items,
		&inv.Subtotal,
		&inv.DiscountTotal,
		&inv.TaxTotal,
		&inv.Total,
		&inv.AmountPaid,
		&inv.Status,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &inv.Items); err != nil {
			return nil, fmt.Errorf("decode invoice items: %w", err)
		}
	}
	return &inv, nil
}

func (r *PgRepository) CreateInvoice(ctx context.Context, inv Invoice) (*Invoice, error) {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	items, err := json.Marshal(inv.Items)
	if err != nil {
		return nil, fmt.Errorf("encode invoice items: %w", err)
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO invoices (
			id, organization_id, clinic_id, patient_id, appointment_id, number, items,
			subtotal, discount_total, tax_total, total, amount_paid, status, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 0, $12, now(), now())
		RETURNING`+invoiceColumns,
		inv.ID, inv.OrganizationID, inv.ClinicID, inv.PatientID, inv.AppointmentID, inv.Number, items,
		inv.Subtotal, inv.DiscountTotal, inv.TaxTotal, inv.Total, inv.Status,
	)
	return scanInvoice(row)
}

func (r *PgRepository) GetInvoice(ctx context.Context, orgID, id uuid.UUID) (*Invoice, error) {
	inv, err := scanInvoice(r.db.QueryRow(ctx, `SELECT`+invoiceColumns+`
		FROM invoices
		WHERE id = $1 AND organization_id = $2
	`, id, orgID))
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, invoice_id, amount, method, reference, created_at
		FROM payments
		WHERE invoice_id = $1
		ORDER BY created_at, id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.Method, &p.Reference, &p.CreatedAt); err != nil {
			return nil, err
		}
		inv.Payments = append(inv.Payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return inv, nil
}

func (r *PgRepository) ListByPatient(ctx context.Context, orgID, patientID uuid.UUID) ([]Invoice, error) {
	rows, err := r.db.Query(ctx, `SELECT`+invoiceColumns+`
		FROM invoices
		WHERE organization_id = $1 AND patient_id = $2
		ORDER BY created_at DESC
	`, orgID, patientID)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

func (r *PgRepository) RecordPayments(ctx context.Context, invoiceID uuid.UUID, expectedPaid, newPaid decimal.Decimal, status InvoiceStatus, payments []Payment) (*Invoice, error) {
	var updated *Invoice
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		inv, err := scanInvoice(tx.QueryRow(ctx, `
			UPDATE invoices
			SET amount_paid = $3,
			    status = $4,
			    updated_at = now()
			WHERE id = $1
			  AND amount_paid = $2
			RETURNING`+invoiceColumns,
			invoiceID, expectedPaid, newPaid, status,
		))
		if errors.Is(err, ErrInvoiceNotFound) {
			return ErrBalanceChanged
		}
		if err != nil {
			return fmt.Errorf("update invoice: %w", err)
		}

		batch := &pgx.Batch{}
		for _, p := range payments {
			batch.Queue(`
				INSERT INTO payments (id, invoice_id, amount, method, reference, created_at)
				VALUES ($1, $2, $3, $4, $5, now())
			`, p.ID, invoiceID, p.Amount, p.Method, p.Reference)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert payments: %w", err)
		}
		updated = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
