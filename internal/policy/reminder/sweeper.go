// Package reminder runs the expiry reminder sweep and the schedules that
// trigger it. A sweep materializes expiry, finds ACTIVE policies ending
// within the horizon and sends one customer and one agent notification per
// policy per expiry window.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	e "github.com/gartstein/insurecrm/internal/policy/errors"
	"github.com/gartstein/insurecrm/internal/policy/events"
	"github.com/gartstein/insurecrm/internal/policy/metrics"
	"github.com/gartstein/insurecrm/internal/policy/models"
	"github.com/gartstein/insurecrm/internal/policy/tracing"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	DefaultHorizonDays = 30
	DefaultSendTimeout = 10 * time.Second
	// reminderLead is how long before the end date a reminder is due.
	reminderLead = 30 * 24 * time.Hour
	claimTTL     = 10 * time.Minute
	staleClaim   = 15 * time.Minute
	expiryLayout = "2006-01-02"
)

// Repository is the storage the sweep needs. It is the only caller that
// reads across agencies.
type Repository interface {
	ExpireOverdue(ctx context.Context, now time.Time) ([]models.Policy, error)
	FindPoliciesDueForReminder(ctx context.Context, from, to time.Time) ([]models.Policy, error)
	ClaimReminder(ctx context.Context, reminder *models.PolicyReminder, staleBefore time.Time) (bool, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error
}

type Notifier interface {
	Notify(ctx context.Context, notification events.Notification) error
}

type EventProducer interface {
	Produce(event events.Event)
}

// Result counts what a sweep did. Every found policy ends up in exactly one
// of Sent, Skipped and Failed.
type Result struct {
	Expired int `json:"expired"`
	Found   int `json:"found"`
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeSkipped
	outcomeFailed
)

func (o outcome) String() string {
	switch o {
	case outcomeSent:
		return "sent"
	case outcomeSkipped:
		return "skipped"
	}
	return "failed"
}

type SweeperConfig struct {
	HorizonDays int
	SendTimeout time.Duration
}

// Sweeper performs reminder sweeps. Sweeps never overlap.
type Sweeper struct {
	mu       sync.Mutex
	repo     Repository
	notifier Notifier
	claimer  Claimer
	producer EventProducer
	clock    clockwork.Clock
	logger   *zap.Logger
	horizon  int
	timeout  time.Duration
}

func NewSweeper(
	repo Repository,
	notifier Notifier,
	claimer Claimer,
	producer EventProducer,
	clock clockwork.Clock,
	logger *zap.Logger,
	cfg SweeperConfig,
) *Sweeper {
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = DefaultHorizonDays
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	return &Sweeper{
		repo:     repo,
		notifier: notifier,
		claimer:  claimer,
		producer: producer,
		clock:    clock,
		logger:   logger.Named("reminder_sweeper"),
		horizon:  cfg.HorizonDays,
		timeout:  cfg.SendTimeout,
	}
}

// Sweep runs one pass. Only a failed due-policy query fails the sweep; every
// per-policy problem is logged and counted.
func (s *Sweeper) Sweep(ctx context.Context, trigger string) (result Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, span := tracing.Start(ctx, "reminder.Sweep")
	defer func() { tracing.End(span, err) }()

	started := s.clock.Now()
	now := started.UTC()
	logger := s.logger.With(zap.String("trigger", trigger))
	defer func() { metrics.ObserveSweep(trigger, s.clock.Since(started)) }()

	expired, err := s.repo.ExpireOverdue(ctx, now)
	if err != nil {
		logger.Error("failed to expire overdue policies", zap.Error(err))
	} else {
		result.Expired = len(expired)
		metrics.AddExpired(len(expired))
		for i := range expired {
			s.producer.Produce(events.PolicyEvent(events.PolicyExpired, &expired[i], now))
		}
	}

	horizon := now.AddDate(0, 0, s.horizon)
	policies, err := s.repo.FindPoliciesDueForReminder(ctx, now, horizon)
	if err != nil {
		logger.Error("failed to find policies due for reminder", zap.Error(err))
		return result, fmt.Errorf("failed to find policies due for reminder: %w", err)
	}
	result.Found = len(policies)

	for i := range policies {
		o := s.remind(ctx, logger, &policies[i], now)
		metrics.ObserveReminder(o.String())
		switch o {
		case outcomeSent:
			result.Sent++
		case outcomeSkipped:
			result.Skipped++
		default:
			result.Failed++
		}
	}

	logger.Info("reminder sweep finished",
		zap.Int("expired", result.Expired),
		zap.Int("found", result.Found),
		zap.Int("sent", result.Sent),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// ClaimKey is the lock key of a policy's expiry window.
func ClaimKey(policy *models.Policy) string {
	return fmt.Sprintf("reminder:%s:%s", policy.ID, policy.EndDate.UTC().Format(time.RFC3339))
}

func (s *Sweeper) remind(ctx context.Context, logger *zap.Logger, policy *models.Policy, now time.Time) outcome {
	logger = logger.With(
		zap.String("policy_id", policy.ID.String()),
		zap.String("policy_number", policy.PolicyNumber),
	)

	ok, err := s.claimer.Claim(ctx, ClaimKey(policy), claimTTL)
	if err != nil {
		// The database claim below still guards the window.
		logger.Warn("lock claim failed, relying on database claim", zap.Error(err))
	} else if !ok {
		logger.Debug("reminder claimed elsewhere")
		return outcomeSkipped
	}

	window := policy.EndDate.UTC()
	claimedAt := now
	reminder := &models.PolicyReminder{
		ID:           uuid.New(),
		PolicyID:     policy.ID,
		ExpiryWindow: &window,
		Kind:         models.ReminderAutomatic,
		ReminderDate: window.Add(-reminderLead),
		ClaimedAt:    &claimedAt,
		CreatedAt:    now,
	}
	claimed, err := s.repo.ClaimReminder(ctx, reminder, now.Add(-staleClaim))
	if err != nil {
		logger.Error("failed to claim reminder", zap.Error(err))
		return outcomeFailed
	}
	if !claimed {
		logger.Debug("reminder already claimed or sent")
		return outcomeSkipped
	}

	var deliveryErrs []error
	for _, n := range buildNotifications(policy, now) {
		if err := s.send(ctx, n); err != nil {
			logger.Error("failed to send notification", zap.String("template", n.Template), zap.Error(err))
			deliveryErrs = append(deliveryErrs, err)
		}
	}

	if err := s.repo.MarkReminderSent(ctx, reminder.ID, now); err != nil {
		logger.Error("failed to mark reminder sent", zap.Error(err))
		return outcomeFailed
	}
	if len(deliveryErrs) > 0 {
		return outcomeFailed
	}
	logger.Info("reminder sent")
	return outcomeSent
}

func (s *Sweeper) send(ctx context.Context, n events.Notification) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.notifier.Notify(ctx, n)
	if err == nil {
		metrics.ObserveNotification(n.Template, "ok")
		return nil
	}
	metrics.ObserveNotification(n.Template, "error")
	if !errors.Is(err, e.ErrNotificationDelivery) {
		err = fmt.Errorf("%w: %s to %s: %v", e.ErrNotificationDelivery, n.Template, n.To, err)
	}
	return err
}

// DaysUntilExpiry rounds the time left up to whole days.
func DaysUntilExpiry(end, now time.Time) int {
	return int(math.Ceil(end.Sub(now).Hours() / 24))
}

// buildNotifications returns the customer and agent notifications for a
// policy, leaving out recipients without an email address.
func buildNotifications(policy *models.Policy, now time.Time) []events.Notification {
	var (
		customerName, customerEmail, customerPhone string
		agentName, agentEmail, agentPhone          string
		productName, agencyName                    string
	)
	if c := policy.Customer; c != nil {
		customerName, customerEmail, customerPhone = c.FullName(), c.Email, c.Phone
	}
	if a := policy.SalesAgent; a != nil {
		agentName, agentEmail, agentPhone = a.FullName(), a.Email, a.Phone
	}
	if policy.Product != nil {
		productName = policy.Product.Name
	}
	if policy.Agency != nil {
		agencyName = policy.Agency.Name
	}
	expiry := policy.EndDate.UTC().Format(expiryLayout)

	var out []events.Notification
	if customerEmail != "" {
		out = append(out, events.Notification{
			Template: events.TemplateCustomerReminder,
			To:       customerEmail,
			Subject:  "Policy Expiry Reminder - " + productName,
			PolicyID: policy.ID,
			Data: map[string]interface{}{
				"customerName":    customerName,
				"policyNumber":    policy.PolicyNumber,
				"productName":     productName,
				"expiryDate":      expiry,
				"agencyName":      agencyName,
				"salesAgentName":  agentName,
				"salesAgentEmail": agentEmail,
				"salesAgentPhone": agentPhone,
			},
		})
	}
	if agentEmail != "" {
		out = append(out, events.Notification{
			Template: events.TemplateAgentReminder,
			To:       agentEmail,
			Subject:  "Customer Policy Expiring Soon - " + customerName,
			PolicyID: policy.ID,
			Data: map[string]interface{}{
				"customerName":    customerName,
				"customerEmail":   customerEmail,
				"customerPhone":   customerPhone,
				"policyNumber":    policy.PolicyNumber,
				"productName":     productName,
				"expiryDate":      expiry,
				"daysUntilExpiry": DaysUntilExpiry(policy.EndDate, now),
			},
		})
	}
	return out
}
