package db

import (
	"context"
	"errors"
	"fmt"

	e "github.com/gartstein/insurecrm/internal/policy/errors"
	"github.com/gartstein/insurecrm/internal/policy/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateSale inserts the sale unless its policy already has one.
func (r *Repository) CreateSale(ctx context.Context, sale *models.Sale) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Sale{}).Where("policy_id = ?", sale.PolicyID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return e.ErrDuplicateSale
		}
		return tx.Omit(clause.Associations).Create(sale).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return e.ErrDuplicateSale
	}
	return err
}

func (r *Repository) GetSale(ctx context.Context, agencyID, id uuid.UUID) (*models.Sale, error) {
	var sale models.Sale
	err := r.db.WithContext(ctx).
		Preload("Policy").
		Preload("Customer").
		Preload("SalesAgent").
		Where("id = ? AND agency_id = ?", id, agencyID).
		Take(&sale).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &sale, nil
}

// ListSales returns the agency's sales, latest first.
func (r *Repository) ListSales(ctx context.Context, agencyID uuid.UUID) ([]models.Sale, error) {
	var sales []models.Sale
	err := r.db.WithContext(ctx).
		Preload("Policy").
		Preload("Customer").
		Preload("SalesAgent").
		Where("agency_id = ?", agencyID).
		Order("sale_date DESC").
		Find(&sales).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}
	return sales, nil
}

// CorrectSale overwrites the money fields of a sale.
func (r *Repository) CorrectSale(ctx context.Context, c models.SaleCorrection) (*models.Sale, error) {
	updates := map[string]interface{}{"amount": c.Amount}
	if c.Commission != nil {
		updates["commission"] = *c.Commission
	}

	result := r.db.WithContext(ctx).Model(&models.Sale{}).
		Where("id = ? AND agency_id = ?", c.ID, c.AgencyID).
		Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to correct sale: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, e.ErrNotFound
	}
	return r.GetSale(ctx, c.AgencyID, c.ID)
}

func (r *Repository) SaleTotals(ctx context.Context, agencyID uuid.UUID) (models.SaleTotals, error) {
	var row struct {
		Amount     decimal.NullDecimal
		Commission decimal.NullDecimal
		Count      int64
	}
	err := r.db.WithContext(ctx).Model(&models.Sale{}).
		Select("SUM(amount) AS amount, SUM(commission) AS commission, COUNT(*) AS count").
		Where("agency_id = ?", agencyID).
		Scan(&row).Error
	if err != nil {
		return models.SaleTotals{}, fmt.Errorf("failed to total sales: %w", err)
	}
	return models.SaleTotals{
		Amount:     row.Amount.Decimal.Round(2),
		Commission: row.Commission.Decimal.Round(2),
		Count:      row.Count,
	}, nil
}

// TopAgents ranks the agency's sales agents by total sale amount.
func (r *Repository) TopAgents(ctx context.Context, agencyID uuid.UUID, limit int) ([]models.AgentSales, error) {
	var rows []struct {
		SalesAgentID uuid.UUID
		FirstName    string
		LastName     string
		Amount       decimal.Decimal
		Commission   decimal.Decimal
	}
	err := r.db.WithContext(ctx).Table("sales").
		Select("sales.sales_agent_id, users.first_name, users.last_name, SUM(sales.amount) AS amount, SUM(sales.commission) AS commission").
		Joins("JOIN users ON users.id = sales.sales_agent_id").
		Where("sales.agency_id = ?", agencyID).
		Group("sales.sales_agent_id, users.first_name, users.last_name").
		Order("amount DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to rank agents: %w", err)
	}

	agents := make([]models.AgentSales, 0, len(rows))
	for _, row := range rows {
		user := models.User{FirstName: row.FirstName, LastName: row.LastName}
		agents = append(agents, models.AgentSales{
			SalesAgentID: row.SalesAgentID,
			AgentName:    user.FullName(),
			Amount:       row.Amount.Round(2),
			Commission:   row.Commission.Round(2),
		})
	}
	return agents, nil
}
