package models

import (
	"time"

	"github.com/google/uuid"
)

// ReminderKind tells sweep-created reminders from ones created by hand.
type ReminderKind string

const (
	ReminderAutomatic ReminderKind = "AUTOMATIC"
	ReminderManual    ReminderKind = "MANUAL"
)

// PolicyReminder records one expiry reminder for a policy.
//
// Automatic reminders carry the policy end date they were raised for in
// ExpiryWindow; the unique index on (PolicyID, ExpiryWindow) allows a single
// automatic reminder per policy per expiry window. Manual reminders leave
// ExpiryWindow NULL and never collide.
type PolicyReminder struct {
	ID           uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	PolicyID     uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_reminders_policy_window" json:"policyId"`
	ExpiryWindow *time.Time   `gorm:"uniqueIndex:idx_reminders_policy_window" json:"expiryWindow,omitempty"`
	Kind         ReminderKind `gorm:"size:16;not null" json:"kind"`
	ReminderDate time.Time    `gorm:"not null" json:"reminderDate"`
	Sent         bool         `gorm:"not null;default:false;index" json:"sent"`
	SentAt       *time.Time   `json:"sentAt,omitempty"`
	ClaimedAt    *time.Time   `json:"-"`
	CreatedAt    time.Time    `json:"createdAt"`
}
