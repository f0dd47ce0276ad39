package db

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	e "github.com/gartstein/insurecrm/internal/policy/errors"
	"github.com/gartstein/insurecrm/internal/policy/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// policyNumberAttempts bounds the retries when an allocated number collides
// with an existing row.
const policyNumberAttempts = 3

// policySequence is the per-agency, per-year policy number counter.
type policySequence struct {
	AgencyID  uuid.UUID `gorm:"type:uuid;primaryKey"`
	Year      int       `gorm:"primaryKey;autoIncrement:false"`
	LastValue int64     `gorm:"not null"`
}

func (policySequence) TableName() string {
	return "policy_sequences"
}

// FormatPolicyNumber renders the agency-scoped policy number.
func FormatPolicyNumber(year int, seq int64) string {
	return fmt.Sprintf("POL-%d-%06d", year, seq)
}

// CreatePolicy allocates the next policy number for the agency and inserts
// the policy in one transaction. The policy's CreatedAt decides the year.
func (r *Repository) CreatePolicy(ctx context.Context, policy *models.Policy) error {
	if policy.CreatedAt.IsZero() {
		policy.CreatedAt = time.Now().UTC()
	}
	year := policy.CreatedAt.Year()

	op := func() error {
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			seq, err := nextSequence(tx, policy.AgencyID, year)
			if err != nil {
				return err
			}
			policy.PolicyNumber = FormatPolicyNumber(year, seq)
			return tx.Omit(clause.Associations).Create(policy).Error
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// The counter bump rolled back with the insert; move the counter
			// past the numbers already taken before the next attempt.
			if err := r.advanceSequence(ctx, policy.AgencyID, year); err != nil {
				return backoff.Permanent(err)
			}
			return e.ErrDuplicatePolicyNumber
		}
		return backoff.Permanent(err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, policyNumberAttempts-1), ctx)
	return backoff.Retry(op, b)
}

// advanceSequence raises the agency's counter for year to the highest number
// already used by its policies, e.g. rows numbered before the counter existed.
func (r *Repository) advanceSequence(ctx context.Context, agencyID uuid.UUID, year int) error {
	prefix := fmt.Sprintf("POL-%d-", year)
	var numbers []string
	err := r.db.WithContext(ctx).Model(&models.Policy{}).
		Where("agency_id = ? AND policy_number LIKE ?", agencyID, prefix+"%").
		Pluck("policy_number", &numbers).Error
	if err != nil {
		return fmt.Errorf("failed to read policy numbers: %w", err)
	}

	var highest int64
	for _, number := range numbers {
		n, err := strconv.ParseInt(strings.TrimPrefix(number, prefix), 10, 64)
		if err == nil && n > highest {
			highest = n
		}
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq := policySequence{AgencyID: agencyID, Year: year, LastValue: highest}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seq).Error; err != nil {
			return fmt.Errorf("failed to start policy sequence: %w", err)
		}
		err := tx.Model(&policySequence{}).
			Where("agency_id = ? AND year = ? AND last_value < ?", agencyID, year, highest).
			UpdateColumn("last_value", highest).Error
		if err != nil {
			return fmt.Errorf("failed to advance policy sequence: %w", err)
		}
		return nil
	})
}

func nextSequence(tx *gorm.DB, agencyID uuid.UUID, year int) (int64, error) {
	bump := func() (int64, error) {
		res := tx.Model(&policySequence{}).
			Where("agency_id = ? AND year = ?", agencyID, year).
			UpdateColumn("last_value", gorm.Expr("last_value + 1"))
		return res.RowsAffected, res.Error
	}

	affected, err := bump()
	if err != nil {
		return 0, fmt.Errorf("failed to bump policy sequence: %w", err)
	}
	if affected == 0 {
		seq := policySequence{AgencyID: agencyID, Year: year, LastValue: 1}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seq)
		if res.Error != nil {
			return 0, fmt.Errorf("failed to start policy sequence: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			return 1, nil
		}
		// Another transaction started the sequence first.
		if _, err := bump(); err != nil {
			return 0, fmt.Errorf("failed to bump policy sequence: %w", err)
		}
	}

	var seq policySequence
	if err := tx.Where("agency_id = ? AND year = ?", agencyID, year).Take(&seq).Error; err != nil {
		return 0, fmt.Errorf("failed to read policy sequence: %w", err)
	}
	return seq.LastValue, nil
}

func (r *Repository) withPolicyJoins(tx *gorm.DB) *gorm.DB {
	return tx.
		Preload("Customer").
		Preload("Product").
		Preload("Partner").
		Preload("SalesAgent")
}

// GetPolicy loads a policy of the agency with its catalog joins and reminders.
func (r *Repository) GetPolicy(ctx context.Context, agencyID, id uuid.UUID) (*models.Policy, error) {
	var policy models.Policy
	result := r.withPolicyJoins(r.db.WithContext(ctx)).
		Preload("Reminders", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("reminder_date ASC")
		}).
		Where("id = ? AND agency_id = ?", id, agencyID).
		Take(&policy)
	if result.Error != nil {
		return nil, notFound(result.Error)
	}
	return &policy, nil
}

// ListPolicies returns one page of the agency's policies, newest first.
func (r *Repository) ListPolicies(ctx context.Context, filter models.PolicyFilter) (*models.PolicyPage, error) {
	query := r.db.WithContext(ctx).Model(&models.Policy{}).Where("agency_id = ?", filter.AgencyID)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.CustomerID != uuid.Nil {
		query = query.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.ProductID != uuid.Nil {
		query = query.Where("product_id = ?", filter.ProductID)
	}
	if filter.PartnerID != uuid.Nil {
		query = query.Where("partner_id = ?", filter.PartnerID)
	}
	if filter.SalesAgentID != uuid.Nil {
		query = query.Where("sales_agent_id = ?", filter.SalesAgentID)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("(LOWER(policy_number) LIKE ? OR LOWER(notes) LIKE ?)", like, like)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count policies: %w", err)
	}

	pagination := models.NewPagination(filter.Page, filter.Limit, total)
	// Pages past the last row are empty; checking first keeps the offset
	// from overflowing for huge page numbers.
	if int64(filter.Page-1) > total/int64(filter.Limit) {
		return &models.PolicyPage{Policies: []models.Policy{}, Pagination: pagination}, nil
	}

	var policies []models.Policy
	err := r.withPolicyJoins(query).
		Order("created_at DESC").
		Offset((filter.Page - 1) * filter.Limit).
		Limit(filter.Limit).
		Find(&policies).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}

	return &models.PolicyPage{Policies: policies, Pagination: pagination}, nil
}

// editableColumns are the fields UpdatePolicy writes. Status only changes
// through TransitionPolicy and ExpireOverdue.
var editableColumns = []string{"StartDate", "EndDate", "Premium", "Commission", "Notes", "Documents", "UpdatedAt"}

// UpdatePolicy reads the agency's policy under a row lock, lets mutate change
// it and writes the editable fields back in one transaction. mutate receives
// the policy with its product.
func (r *Repository) UpdatePolicy(
	ctx context.Context,
	agencyID, id uuid.UUID,
	mutate func(policy *models.Policy) error,
) (*models.Policy, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var policy models.Policy
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("Product").
			Where("id = ? AND agency_id = ?", id, agencyID).
			Take(&policy).Error
		if err != nil {
			return notFound(err)
		}
		read := policy.Status
		if err := mutate(&policy); err != nil {
			return err
		}
		return writePolicy(tx, &policy, read)
	})
	if err != nil {
		return nil, err
	}
	return r.GetPolicy(ctx, agencyID, id)
}

// writePolicy stores the editable fields of policy provided its status is
// still read. A status changed by another writer makes it fail with
// ErrInvalidTransition instead of overwriting that change.
func writePolicy(tx *gorm.DB, policy *models.Policy, read models.PolicyStatus) error {
	result := tx.Model(policy).
		Where("agency_id = ? AND status = ?", policy.AgencyID, read).
		Select(editableColumns).
		Updates(policy)
	if result.Error != nil {
		return fmt.Errorf("failed to update policy: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: policy status changed during update", e.ErrInvalidTransition)
	}
	return nil
}

// TransitionPolicy moves the policy to status `to` with a single conditional
// update, so concurrent transitions on one policy cannot both succeed. When no
// row changes the stored status is left as is and the error tells a missing
// policy from an illegal source status.
func (r *Repository) TransitionPolicy(ctx context.Context, agencyID, id uuid.UUID, to models.PolicyStatus) (*models.Policy, error) {
	sources := models.SourcesOf(to)
	result := r.db.WithContext(ctx).Model(&models.Policy{}).
		Where("id = ? AND agency_id = ? AND status IN ?", id, agencyID, sources).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update policy status: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		var current models.Policy
		err := r.db.WithContext(ctx).Select("id", "status").
			Where("id = ? AND agency_id = ?", id, agencyID).
			Take(&current).Error
		if err != nil {
			return nil, notFound(err)
		}
		return nil, fmt.Errorf("%w: policy is %s, cannot become %s", e.ErrInvalidTransition, current.Status, to)
	}

	return r.GetPolicy(ctx, agencyID, id)
}

// ExpireOverdue marks every ACTIVE policy whose end date lies before now as
// EXPIRED, across all agencies, and returns the policies it changed.
func (r *Repository) ExpireOverdue(ctx context.Context, now time.Time) ([]models.Policy, error) {
	var expired []models.Policy
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("status = ? AND end_date < ?", models.StatusActive, now).Find(&expired).Error; err != nil {
			return err
		}
		if len(expired) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, 0, len(expired))
		for _, p := range expired {
			ids = append(ids, p.ID)
		}
		return tx.Model(&models.Policy{}).
			Where("id IN ? AND status = ?", ids, models.StatusActive).
			Updates(map[string]interface{}{
				"status":     models.StatusExpired,
				"updated_at": now,
			}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to expire policies: %w", err)
	}

	for i := range expired {
		expired[i].Status = models.StatusExpired
	}
	return expired, nil
}
