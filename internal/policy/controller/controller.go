// Package controller implements the business logic of the policy service:
// the policy lifecycle, the sales ledger and catalog reads. It validates
// input, scopes every repository call to the caller's agency and publishes
// lifecycle events.
package controller

import (
	"context"
	"time"

	"github.com/gartstein/insurecrm/internal/policy/events"
	"github.com/gartstein/insurecrm/internal/policy/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
	topAgentsLimit  = 5
)

type EventProducer interface {
	Produce(event events.Event)
}

// CatalogRepository reads the reference data policies point at.
type CatalogRepository interface {
	GetCustomer(ctx context.Context, agencyID, id uuid.UUID) (*models.Customer, error)
	GetProduct(ctx context.Context, agencyID, id uuid.UUID) (*models.Product, error)
	GetPartner(ctx context.Context, agencyID, id uuid.UUID) (*models.Partner, error)
	GetUser(ctx context.Context, agencyID, id uuid.UUID) (*models.User, error)
	ListProducts(ctx context.Context, agencyID uuid.UUID) ([]models.Product, error)
	ListPartners(ctx context.Context, agencyID uuid.UUID) ([]models.Partner, error)
}

// PolicyRepository defines the storage interface for policies and their reminders.
type PolicyRepository interface {
	CatalogRepository
	CreatePolicy(ctx context.Context, policy *models.Policy) error
	GetPolicy(ctx context.Context, agencyID, id uuid.UUID) (*models.Policy, error)
	ListPolicies(ctx context.Context, filter models.PolicyFilter) (*models.PolicyPage, error)
	UpdatePolicy(ctx context.Context, agencyID, id uuid.UUID, mutate func(*models.Policy) error) (*models.Policy, error)
	TransitionPolicy(ctx context.Context, agencyID, id uuid.UUID, to models.PolicyStatus) (*models.Policy, error)
	CreateReminder(ctx context.Context, reminder *models.PolicyReminder) error
	ListReminders(ctx context.Context, policyID uuid.UUID) ([]models.PolicyReminder, error)
}

// SalesRepository defines the storage interface for the sales ledger.
type SalesRepository interface {
	GetPolicy(ctx context.Context, agencyID, id uuid.UUID) (*models.Policy, error)
	GetCustomer(ctx context.Context, agencyID, id uuid.UUID) (*models.Customer, error)
	GetUser(ctx context.Context, agencyID, id uuid.UUID) (*models.User, error)
	CreateSale(ctx context.Context, sale *models.Sale) error
	GetSale(ctx context.Context, agencyID, id uuid.UUID) (*models.Sale, error)
	ListSales(ctx context.Context, agencyID uuid.UUID) ([]models.Sale, error)
	CorrectSale(ctx context.Context, correction models.SaleCorrection) (*models.Sale, error)
	SaleTotals(ctx context.Context, agencyID uuid.UUID) (models.SaleTotals, error)
	TopAgents(ctx context.Context, agencyID uuid.UUID, limit int) ([]models.AgentSales, error)
}

func utc(t time.Time) time.Time {
	return t.UTC()
}

func isPositive(d decimal.Decimal) bool {
	return d.GreaterThan(decimal.Zero)
}
