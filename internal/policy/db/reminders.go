package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gartstein/insurecrm/internal/policy/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FindPoliciesDueForReminder returns ACTIVE policies of every agency whose
// end date falls in [from, to] and that have no sent reminder for their
// current end date. Customer, agent, product and agency are preloaded for the
// notification payloads.
func (r *Repository) FindPoliciesDueForReminder(ctx context.Context, from, to time.Time) ([]models.Policy, error) {
	var policies []models.Policy
	err := r.db.WithContext(ctx).
		Preload("Customer").
		Preload("SalesAgent").
		Preload("Product").
		Preload("Agency").
		Where("policies.status = ? AND policies.end_date >= ? AND policies.end_date <= ?", models.StatusActive, from, to).
		Where(`NOT EXISTS (
			SELECT 1 FROM policy_reminders pr
			WHERE pr.policy_id = policies.id AND pr.sent = ? AND pr.expiry_window = policies.end_date
		)`, true).
		Order("policies.end_date ASC").
		Find(&policies).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find policies due for reminder: %w", err)
	}
	return policies, nil
}

// ClaimReminder takes ownership of the automatic reminder for the policy's
// expiry window. A fresh window inserts the row. An unsent row whose claim is
// older than staleBefore is taken over, which lets a crashed sweep's work be
// redone. It returns false when another sweep holds the claim or the reminder
// was already sent; reminder then describes nothing.
func (r *Repository) ClaimReminder(ctx context.Context, reminder *models.PolicyReminder, staleBefore time.Time) (bool, error) {
	if reminder.ExpiryWindow == nil {
		return false, errors.New("automatic reminder without expiry window")
	}

	err := r.db.WithContext(ctx).Create(reminder).Error
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return false, fmt.Errorf("failed to claim reminder: %w", err)
	}

	result := r.db.WithContext(ctx).Model(&models.PolicyReminder{}).
		Where("policy_id = ? AND expiry_window = ? AND sent = ?", reminder.PolicyID, *reminder.ExpiryWindow, false).
		Where("claimed_at IS NULL OR claimed_at < ?", staleBefore).
		Update("claimed_at", reminder.ClaimedAt)
	if result.Error != nil {
		return false, fmt.Errorf("failed to reclaim reminder: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	var existing models.PolicyReminder
	err = r.db.WithContext(ctx).
		Where("policy_id = ? AND expiry_window = ?", reminder.PolicyID, *reminder.ExpiryWindow).
		Take(&existing).Error
	if err != nil {
		return false, fmt.Errorf("failed to load reclaimed reminder: %w", err)
	}
	*reminder = existing
	return true, nil
}

// MarkReminderSent flags the reminder as sent at the given instant.
func (r *Repository) MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.PolicyReminder{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"sent": true, "sent_at": at})
	if result.Error != nil {
		return fmt.Errorf("failed to mark reminder sent: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return notFound(gorm.ErrRecordNotFound)
	}
	return nil
}

// CreateReminder stores a manual reminder.
func (r *Repository) CreateReminder(ctx context.Context, reminder *models.PolicyReminder) error {
	if err := r.db.WithContext(ctx).Create(reminder).Error; err != nil {
		return fmt.Errorf("failed to create reminder: %w", err)
	}
	return nil
}

// ListReminders returns a policy's reminders, latest reminder date first.
func (r *Repository) ListReminders(ctx context.Context, policyID uuid.UUID) ([]models.PolicyReminder, error) {
	var reminders []models.PolicyReminder
	err := r.db.WithContext(ctx).
		Where("policy_id = ?", policyID).
		Order("reminder_date DESC").
		Find(&reminders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}
	return reminders, nil
}
