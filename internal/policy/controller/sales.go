package controller

import (
	"context"
	"errors"
	"fmt"

	e "github.com/gartstein/insurecrm/internal/policy/errors"
	"github.com/gartstein/insurecrm/internal/policy/events"
	"github.com/gartstein/insurecrm/internal/policy/metrics"
	"github.com/gartstein/insurecrm/internal/policy/models"
	"github.com/gartstein/insurecrm/internal/policy/tracing"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SalesService keeps the sales ledger: at most one sale per policy.
type SalesService struct {
	repo     SalesRepository
	producer EventProducer
	clock    clockwork.Clock
	logger   *zap.Logger
}

func NewSalesService(repo SalesRepository, producer EventProducer, clock clockwork.Clock, logger *zap.Logger) *SalesService {
	return &SalesService{
		repo:     repo,
		producer: producer,
		clock:    clock,
		logger:   logger.Named("sales_service"),
	}
}

// RecordSale converts a policy of the caller's agency into a sale.
// Commission defaults to 0.
func (s *SalesService) RecordSale(ctx context.Context, id models.Identity, in models.NewSale) (_ *models.Sale, err error) {
	ctx, span := tracing.Start(ctx, "SalesService.RecordSale")
	defer func() { tracing.End(span, err) }()

	var v e.ValidationErrors
	if in.PolicyID == uuid.Nil {
		v.Add("policyId", "policy is required")
	}
	if in.CustomerID == uuid.Nil {
		v.Add("customerId", "customer is required")
	}
	if in.SalesAgentID == uuid.Nil {
		v.Add("salesAgentId", "sales agent is required")
	}
	if !isPositive(in.Amount) {
		v.Add("amount", "amount must be greater than 0")
	}
	if in.Commission != nil && in.Commission.IsNegative() {
		v.Add("commission", "commission must not be negative")
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	policy, err := s.repo.GetPolicy(ctx, id.AgencyID, in.PolicyID)
	if err := referenceError(err, policy != nil && policy.Status != models.StatusCancelled, e.ErrInvalidPolicy); err != nil {
		return nil, err
	}
	customer, err := s.repo.GetCustomer(ctx, id.AgencyID, in.CustomerID)
	if err := referenceError(err, customer != nil, e.ErrInvalidCustomer); err != nil {
		return nil, err
	}
	agent, err := s.repo.GetUser(ctx, id.AgencyID, in.SalesAgentID)
	if err := referenceError(err, agent != nil, e.ErrInvalidAgent); err != nil {
		return nil, err
	}

	commission := decimal.Zero
	if in.Commission != nil {
		commission = in.Commission.Round(2)
	}
	now := s.clock.Now().UTC()
	sale := &models.Sale{
		ID:           uuid.New(),
		PolicyID:     in.PolicyID,
		CustomerID:   in.CustomerID,
		SalesAgentID: in.SalesAgentID,
		AgencyID:     id.AgencyID,
		Amount:       in.Amount.Round(2),
		Commission:   commission,
		SaleDate:     now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.CreateSale(ctx, sale); err != nil {
		if errors.Is(err, e.ErrDuplicate) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to record sale: %w", err)
	}
	metrics.IncSales()

	sale.Policy, sale.Customer, sale.SalesAgent = policy, customer, agent
	s.logger.Info("sale recorded",
		zap.String("sale_id", sale.ID.String()),
		zap.String("policy_id", sale.PolicyID.String()),
	)
	s.producer.Produce(events.SaleEvent(sale, now))
	return sale, nil
}

// CorrectSale overwrites the amount, and the commission when given, of a sale.
func (s *SalesService) CorrectSale(ctx context.Context, id models.Identity, c models.SaleCorrection) (_ *models.Sale, err error) {
	ctx, span := tracing.Start(ctx, "SalesService.CorrectSale")
	defer func() { tracing.End(span, err) }()

	var v e.ValidationErrors
	if !isPositive(c.Amount) {
		v.Add("amount", "amount must be greater than 0")
	}
	if c.Commission != nil && c.Commission.IsNegative() {
		v.Add("commission", "commission must not be negative")
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	c.AgencyID = id.AgencyID
	c.Amount = c.Amount.Round(2)
	if c.Commission != nil {
		rounded := c.Commission.Round(2)
		c.Commission = &rounded
	}
	sale, err := s.repo.CorrectSale(ctx, c)
	if err != nil {
		if errors.Is(err, e.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to correct sale: %w", err)
	}
	return sale, nil
}

func (s *SalesService) GetSale(ctx context.Context, id models.Identity, saleID uuid.UUID) (*models.Sale, error) {
	sale, err := s.repo.GetSale(ctx, id.AgencyID, saleID)
	if err != nil {
		if errors.Is(err, e.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get sale: %w", err)
	}
	return sale, nil
}

func (s *SalesService) ListSales(ctx context.Context, id models.Identity) ([]models.Sale, error) {
	sales, err := s.repo.ListSales(ctx, id.AgencyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}
	return sales, nil
}

// Stats aggregates the caller agency's sales. Nothing is cached.
func (s *SalesService) Stats(ctx context.Context, id models.Identity) (_ models.SaleStats, err error) {
	ctx, span := tracing.Start(ctx, "SalesService.Stats")
	defer func() { tracing.End(span, err) }()

	totals, err := s.repo.SaleTotals(ctx, id.AgencyID)
	if err != nil {
		return models.SaleStats{}, fmt.Errorf("failed to total sales: %w", err)
	}
	top, err := s.repo.TopAgents(ctx, id.AgencyID, topAgentsLimit)
	if err != nil {
		return models.SaleStats{}, fmt.Errorf("failed to rank agents: %w", err)
	}
	return models.NewSaleStats(totals, top), nil
}
