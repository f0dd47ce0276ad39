package controller

import (
	"context"
	"errors"
	"fmt"
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

// PolicyService runs the policy lifecycle: creation with commission
// derivation, partial updates and the status state machine.
type PolicyService struct {
	repo     PolicyRepository
	producer EventProducer
	clock    clockwork.Clock
	logger   *zap.Logger
}

func NewPolicyService(repo PolicyRepository, producer EventProducer, clock clockwork.Clock, logger *zap.Logger) *PolicyService {
	return &PolicyService{
		repo:     repo,
		producer: producer,
		clock:    clock,
		logger:   logger.Named("policy_service"),
	}
}

// Create stores a DRAFT policy for the caller's agency with the caller as
// sales agent. Every invalid field is reported at once; references are only
// resolved once the input is well formed.
func (s *PolicyService) Create(ctx context.Context, id models.Identity, in models.NewPolicy) (_ *models.Policy, err error) {
	ctx, span := tracing.Start(ctx, "PolicyService.Create")
	defer func() { tracing.End(span, err) }()

	if err := validateNewPolicy(in); err != nil {
		return nil, err
	}

	customer, err := s.repo.GetCustomer(ctx, id.AgencyID, in.CustomerID)
	if err := referenceError(err, customer != nil && customer.IsActive, e.ErrInvalidCustomer); err != nil {
		return nil, err
	}
	partner, err := s.repo.GetPartner(ctx, id.AgencyID, in.PartnerID)
	if err := referenceError(err, partner != nil && partner.IsActive, e.ErrInvalidPartner); err != nil {
		return nil, err
	}
	product, err := s.repo.GetProduct(ctx, id.AgencyID, in.ProductID)
	if err := referenceError(err, product != nil && product.IsActive, e.ErrProductNotFound); err != nil {
		return nil, err
	}

	commission := product.CommissionFor(in.Premium)
	if in.Commission != nil {
		commission = in.Commission.Round(2)
	}

	now := s.clock.Now().UTC()
	policy := &models.Policy{
		ID:           uuid.New(),
		AgencyID:     id.AgencyID,
		CustomerID:   in.CustomerID,
		ProductID:    in.ProductID,
		PartnerID:    in.PartnerID,
		SalesAgentID: id.UserID,
		Status:       models.StatusDraft,
		StartDate:    utc(in.StartDate),
		EndDate:      utc(in.EndDate),
		Premium:      in.Premium.Round(2),
		Commission:   commission,
		Notes:        in.Notes,
		Documents:    in.Documents,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.CreatePolicy(ctx, policy); err != nil {
		if errors.Is(err, e.ErrDuplicate) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create policy: %w", err)
	}

	s.logger.Info("policy created",
		zap.String("policy_id", policy.ID.String()),
		zap.String("policy_number", policy.PolicyNumber),
	)
	return s.get(ctx, id.AgencyID, policy.ID)
}

func validateNewPolicy(in models.NewPolicy) error {
	var v e.ValidationErrors
	if in.CustomerID == uuid.Nil {
		v.Add("customerId", "customer is required")
	}
	if in.ProductID == uuid.Nil {
		v.Add("productId", "product is required")
	}
	if in.PartnerID == uuid.Nil {
		v.Add("partnerId", "partner is required")
	}
	if in.StartDate.IsZero() {
		v.Add("startDate", "start date is required")
	}
	if in.EndDate.IsZero() {
		v.Add("endDate", "end date is required")
	}
	if !in.StartDate.IsZero() && !in.EndDate.IsZero() && !in.EndDate.After(in.StartDate) {
		v.Add("endDate", "end date must be after start date")
	}
	if !isPositive(in.Premium) {
		v.Add("premium", "premium must be greater than 0")
	}
	if in.Commission != nil && in.Commission.IsNegative() {
		v.Add("commission", "commission must not be negative")
	}
	return v.Err()
}

// referenceError turns a failed or unusable reference lookup into its
// dependency error. Storage failures pass through wrapped.
func referenceError(err error, usable bool, dependency error) error {
	switch {
	case errors.Is(err, e.ErrNotFound):
		return dependency
	case err != nil:
		return fmt.Errorf("failed to resolve reference: %w", err)
	case !usable:
		return dependency
	}
	return nil
}

// Get retrieves a policy of the caller's agency.
func (s *PolicyService) Get(ctx context.Context, id models.Identity, policyID uuid.UUID) (_ *models.Policy, err error) {
	ctx, span := tracing.Start(ctx, "PolicyService.Get")
	defer func() { tracing.End(span, err) }()

	return s.get(ctx, id.AgencyID, policyID)
}

func (s *PolicyService) get(ctx context.Context, agencyID, policyID uuid.UUID) (*models.Policy, error) {
	policy, err := s.repo.GetPolicy(ctx, agencyID, policyID)
	if err != nil {
		if errors.Is(err, e.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get policy: %w", err)
	}
	return policy, nil
}

// List returns one page of the caller agency's policies. Page and limit are
// normalized rather than rejected.
func (s *PolicyService) List(ctx context.Context, id models.Identity, filter models.PolicyFilter) (_ *models.PolicyPage, err error) {
	ctx, span := tracing.Start(ctx, "PolicyService.List")
	defer func() { tracing.End(span, err) }()

	if filter.Status != "" && !filter.Status.Valid() {
		var v e.ValidationErrors
		v.Add("status", fmt.Sprintf("unknown status %q", filter.Status))
		return nil, v
	}

	filter.AgencyID = id.AgencyID
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = defaultPageSize
	}
	if filter.Limit > maxPageSize {
		filter.Limit = maxPageSize
	}

	page, err := s.repo.ListPolicies(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	return page, nil
}

// Update applies a partial update. Terminal policies are read-only. When the
// premium changes without an explicit commission, the commission follows the
// product rate.
func (s *PolicyService) Update(ctx context.Context, id models.Identity, update models.PolicyUpdate) (_ *models.Policy, err error) {
	ctx, span := tracing.Start(ctx, "PolicyService.Update")
	defer func() { tracing.End(span, err) }()

	if update.ID == uuid.Nil {
		return nil, fmt.Errorf("%w: invalid policy ID", e.ErrInvalidInput)
	}
	var v e.ValidationErrors
	if update.Premium != nil && !isPositive(*update.Premium) {
		v.Add("premium", "premium must be greater than 0")
	}
	if update.Commission != nil && update.Commission.IsNegative() {
		v.Add("commission", "commission must not be negative")
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	policy, err := s.repo.UpdatePolicy(ctx, id.AgencyID, update.ID, func(p *models.Policy) error {
		if p.Status.Terminal() {
			return fmt.Errorf("%w: %s policy cannot be updated", e.ErrInvalidTransition, p.Status)
		}
		applyUpdate(p, update)
		if !p.EndDate.After(p.StartDate) {
			var v e.ValidationErrors
			v.Add("endDate", "end date must be after start date")
			return v
		}
		p.UpdatedAt = now
		return nil
	})
	if err != nil {
		if errors.Is(err, e.ErrNotFound) || errors.Is(err, e.ErrInvalidTransition) || errors.Is(err, e.ErrInvalidInput) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update policy: %w", err)
	}

	s.producer.Produce(events.PolicyEvent(events.PolicyUpdated, policy, now))
	return policy, nil
}

func applyUpdate(p *models.Policy, update models.PolicyUpdate) {
	if update.StartDate != nil {
		p.StartDate = utc(*update.StartDate)
	}
	if update.EndDate != nil {
		p.EndDate = utc(*update.EndDate)
	}
	if update.Notes != nil {
		p.Notes = *update.Notes
	}
	if update.Documents != nil {
		p.Documents = *update.Documents
	}
	if update.Premium != nil {
		premium := update.Premium.Round(2)
		premiumChanged := !premium.Equal(p.Premium)
		p.Premium = premium
		if premiumChanged && update.Commission == nil && p.Product != nil {
			p.Commission = p.Product.CommissionFor(p.Premium)
		}
	}
	if update.Commission != nil {
		p.Commission = update.Commission.Round(2)
	}
}

// Submit moves a DRAFT policy to PENDING.
func (s *PolicyService) Submit(ctx context.Context, id models.Identity, policyID uuid.UUID) (*models.Policy, error) {
	return s.transition(ctx, id, policyID, models.StatusPending, events.PolicySubmitted)
}

// Activate moves a DRAFT or PENDING policy to ACTIVE.
func (s *PolicyService) Activate(ctx context.Context, id models.Identity, policyID uuid.UUID) (*models.Policy, error) {
	return s.transition(ctx, id, policyID, models.StatusActive, events.PolicyActivated)
}

// Cancel moves a DRAFT, PENDING or ACTIVE policy to CANCELLED.
func (s *PolicyService) Cancel(ctx context.Context, id models.Identity, policyID uuid.UUID) (*models.Policy, error) {
	return s.transition(ctx, id, policyID, models.StatusCancelled, events.PolicyCancelled)
}

func (s *PolicyService) transition(
	ctx context.Context,
	id models.Identity,
	policyID uuid.UUID,
	to models.PolicyStatus,
	eventType events.EventType,
) (_ *models.Policy, err error) {
	ctx, span := tracing.Start(ctx, "PolicyService.Transition")
	defer func() { tracing.End(span, err) }()

	policy, err := s.repo.TransitionPolicy(ctx, id.AgencyID, policyID, to)
	if err != nil {
		metrics.ObserveTransition(string(to), "rejected")
		if errors.Is(err, e.ErrNotFound) || errors.Is(err, e.ErrInvalidTransition) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to change policy status: %w", err)
	}
	metrics.ObserveTransition(string(to), "ok")

	s.logger.Info("policy status changed",
		zap.String("policy_id", policy.ID.String()),
		zap.String("policy_number", policy.PolicyNumber),
		zap.String("status", string(to)),
	)
	s.producer.Produce(events.PolicyEvent(eventType, policy, s.clock.Now().UTC()))
	return policy, nil
}

// CreateManualReminder schedules a reminder by hand. Manual reminders carry
// no expiry window, so they never block the automatic one.
func (s *PolicyService) CreateManualReminder(
	ctx context.Context,
	id models.Identity,
	policyID uuid.UUID,
	reminderDate time.Time,
) (_ *models.PolicyReminder, err error) {
	ctx, span := tracing.Start(ctx, "PolicyService.CreateManualReminder")
	defer func() { tracing.End(span, err) }()

	if reminderDate.IsZero() {
		var v e.ValidationErrors
		v.Add("reminderDate", "reminder date is required")
		return nil, v
	}
	if _, err := s.get(ctx, id.AgencyID, policyID); err != nil {
		return nil, err
	}

	reminder := &models.PolicyReminder{
		ID:           uuid.New(),
		PolicyID:     policyID,
		Kind:         models.ReminderManual,
		ReminderDate: utc(reminderDate),
		CreatedAt:    s.clock.Now().UTC(),
	}
	if err := s.repo.CreateReminder(ctx, reminder); err != nil {
		return nil, fmt.Errorf("failed to create reminder: %w", err)
	}
	return reminder, nil
}

// ListReminders returns the reminders of a policy of the caller's agency.
func (s *PolicyService) ListReminders(ctx context.Context, id models.Identity, policyID uuid.UUID) (_ []models.PolicyReminder, err error) {
	ctx, span := tracing.Start(ctx, "PolicyService.ListReminders")
	defer func() { tracing.End(span, err) }()

	if _, err := s.get(ctx, id.AgencyID, policyID); err != nil {
		return nil, err
	}
	reminders, err := s.repo.ListReminders(ctx, policyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}
	return reminders, nil
}
