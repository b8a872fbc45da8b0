package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/hackgods/dental-practice-portal/internal/logging"
	"github.com/hackgods/dental-practice-portal/internal/metrics"
	"github.com/hackgods/dental-practice-portal/internal/tenancy"
)

var tracer = otel.Tracer("dental/inventory")

type Service struct {
	repo      Repository
	metrics   *metrics.Metrics
	logger    *logging.Logger
	threshold int
}

func NewService(repo Repository, m *metrics.Metrics, logger *logging.Logger, lowStockThreshold int) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{repo: repo, metrics: m, logger: logger, threshold: lowStockThreshold}
}

// ItemView is a product with its classified stock status.
type ItemView struct {
	Product
	StockStatus StockStatus `json:"stockStatus"`
}

func (s *Service) ListItems(ctx context.Context) ([]ItemView, error) {
	orgID, err := tenancy.RequireOrganization(ctx)
	if err != nil {
		return nil, err
	}
	products, err := s.repo.ListProducts(ctx, orgID)
	if err != nil {
		return nil, err
	}
	out := make([]ItemView, 0, len(products))
	for _, p := range products {
		out = append(out, ItemView{Product: p, StockStatus: ClassifyStock(p.QuantityOnHand, p.ReorderLevel, s.threshold)})
	}
	return out, nil
}

// LoadPlan builds the default consumption plan for the procedures performed.
// Products used by several procedures are merged into one line.
func (s *Service) LoadPlan(ctx context.Context, procedureCodes []string) (Plan, error) {
	ctx, span := tracer.Start(ctx, "inventory.load_plan")
	defer span.End()

	orgID, err := tenancy.RequireOrganization(ctx)
	if err != nil {
		return Plan{}, err
	}
	if len(procedureCodes) == 0 {
		return Plan{}, nil
	}

	templates, err := s.repo.TemplatesFor(ctx, orgID, procedureCodes)
	if err != nil {
		return Plan{}, err
	}

	defaults := map[uuid.UUID]int{}
	var order []uuid.UUID
	for _, t := range templates {
		if _, seen := defaults[t.ProductID]; !seen {
			order = append(order, t.ProductID)
		}
		defaults[t.ProductID] += t.DefaultQuantity
	}

	products, err := s.productsByID(ctx, orgID, order)
	if err != nil {
		return Plan{}, err
	}

	var plan Plan
	for _, id := range order {
		p, ok := products[id]
		if !ok {
			s.logger.WithComponent("inventory").WithField("product_id", id).Warn("consumption template references unknown product")
			continue
		}
		plan.Lines = append(plan.Lines, lineFor(p, defaults[id], defaults[id], s.threshold))
	}
	return plan, nil
}

// Confirm re-reads stock, rejects the plan if anything blocks it and deducts
// the stock. It returns the material cost for the completion payload.
func (s *Service) Confirm(ctx context.Context, req ConfirmRequest) (result ConfirmResult, err error) {
	ctx, span := tracer.Start(ctx, "inventory.confirm")
	defer span.End()
	defer func() { s.metrics.ObserveConsumption(err == nil) }()

	orgID, err := tenancy.RequireOrganization(ctx)
	if err != nil {
		return ConfirmResult{}, err
	}

	merged := map[uuid.UUID]int{}
	var order []uuid.UUID
	consumed := 0
	for _, l := range req.Lines {
		if l.Quantity < 0 {
			return ConfirmResult{}, fmt.Errorf("%w: quantity must not be negative", ErrInvalidQuantity)
		}
		if _, seen := merged[l.ProductID]; !seen {
			order = append(order, l.ProductID)
		}
		merged[l.ProductID] += l.Quantity
		consumed += l.Quantity
	}
	if consumed == 0 {
		return ConfirmResult{}, ErrNothingToConsume
	}

	products, err := s.productsByID(ctx, orgID, order)
	if err != nil {
		return ConfirmResult{}, err
	}

	// Zero-quantity lines stay in the plan so an out-of-stock item still blocks.
	var plan Plan
	lines := make([]ConfirmLine, 0, len(order))
	for _, id := range order {
		p, ok := products[id]
		if !ok {
			return ConfirmResult{}, fmt.Errorf("%w: %s", ErrProductNotFound, id)
		}
		plan.Lines = append(plan.Lines, lineFor(p, merged[id], 0, s.threshold))
		if merged[id] > 0 {
			lines = append(lines, ConfirmLine{ProductID: id, Quantity: merged[id]})
		}
	}

	warnings := plan.Warnings()
	if !plan.CanConfirm() {
		return ConfirmResult{}, &BlockedError{Warnings: warnings}
	}

	if err := s.repo.Deduct(ctx, orgID, req.AppointmentID, lines); err != nil {
		return ConfirmResult{}, err
	}

	return ConfirmResult{Plan: plan, MaterialCost: plan.TotalCost(), Warnings: warnings}, nil
}

func (s *Service) productsByID(ctx context.Context, orgID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]Product, error) {
	list, err := s.repo.GetProducts(ctx, orgID, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]Product, len(list))
	for _, p := range list {
		out[p.ID] = p
	}
	return out, nil
}
