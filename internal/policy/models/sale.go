package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Sale records the conversion of a policy into a completed transaction.
// A policy has at most one sale.
type Sale struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	PolicyID     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex" json:"policyId"`
	CustomerID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"customerId"`
	SalesAgentID uuid.UUID       `gorm:"type:uuid;not null;index" json:"salesAgentId"`
	AgencyID     uuid.UUID       `gorm:"type:uuid;not null;index" json:"agencyId"`
	Amount       decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	Commission   decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"commission"`
	SaleDate     time.Time       `gorm:"not null;index" json:"saleDate"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`

	Policy     *Policy   `gorm:"foreignKey:PolicyID" json:"policy,omitempty"`
	Customer   *Customer `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	SalesAgent *User     `gorm:"foreignKey:SalesAgentID" json:"salesAgent,omitempty"`
}

// NewSale carries the caller-supplied fields of a sale. Commission nil means 0.
type NewSale struct {
	AgencyID     uuid.UUID
	PolicyID     uuid.UUID
	CustomerID   uuid.UUID
	SalesAgentID uuid.UUID
	Amount       decimal.Decimal
	Commission   *decimal.Decimal
}

// SaleCorrection adjusts the money fields of an existing sale.
type SaleCorrection struct {
	ID         uuid.UUID
	AgencyID   uuid.UUID
	Amount     decimal.Decimal
	Commission *decimal.Decimal
}

// AgentSales aggregates the sales of one agent.
type AgentSales struct {
	SalesAgentID uuid.UUID
	AgentName    string
	Amount       decimal.Decimal
	Commission   decimal.Decimal
}

// SaleTotals is the raw aggregate over an agency's sales.
type SaleTotals struct {
	Amount     decimal.Decimal
	Commission decimal.Decimal
	Count      int64
}

// SaleStats is derived from SaleTotals and the top agents; nothing is stored.
type SaleStats struct {
	TotalSales      decimal.Decimal
	TotalCommission decimal.Decimal
	TotalPolicies   int64
	AverageSale     decimal.Decimal
	TopAgents       []AgentSales
}

// NewSaleStats derives averages from totals.
func NewSaleStats(totals SaleTotals, top []AgentSales) SaleStats {
	avg := decimal.Zero
	if totals.Count > 0 {
		avg = totals.Amount.Div(decimal.NewFromInt(totals.Count)).Round(2)
	}
	return SaleStats{
		TotalSales:      totals.Amount,
		TotalCommission: totals.Commission,
		TotalPolicies:   totals.Count,
		AverageSale:     avg,
		TopAgents:       top,
	}
}
