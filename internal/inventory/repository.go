package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/dental-practice-portal/internal/db"
)

type Repository interface {
	ListProducts(ctx context.Context, orgID uuid.UUID) ([]Product, error)
	GetProducts(ctx context.Context, orgID uuid.UUID, ids []uuid.UUID) ([]Product, error)
	TemplatesFor(ctx context.Context, orgID uuid.UUID, procedureCodes []string) ([]Template, error)
	// Deduct subtracts every line from stock or nothing at all.
	Deduct(ctx context.Context, orgID uuid.UUID, appointmentID *uuid.UUID, lines []ConfirmLine) error
}

type PgRepository struct {
	db db.Querier
}

func NewPgRepository(q db.Querier) *PgRepository {
	return &PgRepository{db: q}
}

const productColumns = `id, organization_id, name, unit, unit_cost, quantity_on_hand, reorder_level`

func collectProducts(rows pgx.Rows) ([]Product, error) {
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.OrganizationID, &p.Name, &p.Unit, &p.UnitCost, &p.QuantityOnHand, &p.ReorderLevel); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PgRepository) ListProducts(ctx context.Context, orgID uuid.UUID) ([]Product, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE organization_id = $1
		ORDER BY name
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return collectProducts(rows)
}

func (r *PgRepository) GetProducts(ctx context.Context, orgID uuid.UUID, ids []uuid.UUID) ([]Product, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE organization_id = $1
		  AND id = ANY($2)
	`, orgID, ids)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	return collectProducts(rows)
}

func (r *PgRepository) TemplatesFor(ctx context.Context, orgID uuid.UUID, procedureCodes []string) ([]Template, error) {
	rows, err := r.db.Query(ctx, `
		SELECT procedure_code, product_id, default_quantity
		FROM consumption_templates
		WHERE organization_id = $1
		  AND procedure_code = ANY($2)
		ORDER BY procedure_code, product_id
	`, orgID, procedureCodes)
	if err != nil {
		return nil, fmt.Errorf("list consumption templates: %w", err)
	}
	defer rows.Close()

	var out []Template
	for rows.Next() {
		var t Template
		if err := rows.Scan(&t.ProcedureCode, &t.ProductID, &t.DefaultQuantity); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PgRepository) Deduct(ctx context.Context, orgID uuid.UUID, appointmentID *uuid.UUID, lines []ConfirmLine) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		for _, l := range lines {
			var remaining int
			err := tx.QueryRow(ctx, `
				UPDATE products
				SET quantity_on_hand = quantity_on_hand - $3,
				    updated_at = now()
				WHERE id = $1
				  AND organization_id = $2
				  AND quantity_on_hand >= $3
				RETURNING quantity_on_hand
			`, l.ProductID, orgID, l.Quantity).Scan(&remaining)
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: product %s", ErrInsufficientStock, l.ProductID)
			}
			if err != nil {
				return fmt.Errorf("deduct stock: %w", err)
			}

			if _, err := tx.Exec(ctx, `
				INSERT INTO stock_movements (id, organization_id, product_id, appointment_id, quantity, created_at)
				VALUES ($1, $2, $3, $4, $5, now())
			`, uuid.New(), orgID, l.ProductID, appointmentID, -l.Quantity); err != nil {
				return fmt.Errorf("record stock movement: %w", err)
			}
		}
		return nil
	})
}
