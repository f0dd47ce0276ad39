package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	e "github.com/gartstein/insurecrm/internal/policy/errors"
	"github.com/gartstein/insurecrm/internal/policy/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

type createPolicyRequest struct {
	CustomerID string           `json:"customerId"`
	ProductID  string           `json:"productId"`
	PartnerID  string           `json:"partnerId"`
	StartDate  string           `json:"startDate"`
	EndDate    string           `json:"endDate"`
	Premium    *decimal.Decimal `json:"premium"`
	Commission *decimal.Decimal `json:"commission"`
	Notes      string           `json:"notes"`
	Documents  []string         `json:"documents"`
}

type updatePolicyRequest struct {
	StartDate  *string          `json:"startDate"`
	EndDate    *string          `json:"endDate"`
	Premium    *decimal.Decimal `json:"premium"`
	Commission *decimal.Decimal `json:"commission"`
	Notes      *string          `json:"notes"`
	Documents  *[]string        `json:"documents"`
}

type createReminderRequest struct {
	ReminderDate string `json:"reminderDate"`
}

type recordSaleRequest struct {
	PolicyID     string           `json:"policyId"`
	CustomerID   string           `json:"customerId"`
	SalesAgentID string           `json:"salesAgentId"`
	Amount       *decimal.Decimal `json:"amount"`
	Commission   *decimal.Decimal `json:"commission"`
}

type correctSaleRequest struct {
	Amount     *decimal.Decimal `json:"amount"`
	Commission *decimal.Decimal `json:"commission"`
}

type userSummary struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email,omitempty"`
}

type customerSummary struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email,omitempty"`
	Phone string    `json:"phone,omitempty"`
}

type partnerResponse struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Code     string    `json:"code"`
	Email    string    `json:"email,omitempty"`
	Phone    string    `json:"phone,omitempty"`
	IsActive bool      `json:"isActive"`
}

type productResponse struct {
	ID             uuid.UUID        `json:"id"`
	PartnerID      uuid.UUID        `json:"partnerId"`
	Name           string           `json:"name"`
	Description    string           `json:"description,omitempty"`
	Category       string           `json:"category"`
	BasePremium    json.Number      `json:"basePremium"`
	CommissionRate json.Number      `json:"commissionRate"`
	IsActive       bool             `json:"isActive"`
	Partner        *partnerResponse `json:"partner,omitempty"`
}

type reminderResponse struct {
	ID           uuid.UUID  `json:"id"`
	PolicyID     uuid.UUID  `json:"policyId"`
	Kind         string     `json:"kind"`
	ReminderDate time.Time  `json:"reminderDate"`
	ExpiryWindow *time.Time `json:"expiryWindow,omitempty"`
	Sent         bool       `json:"sent"`
	SentAt       *time.Time `json:"sentAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

type policyResponse struct {
	ID           uuid.UUID          `json:"id"`
	PolicyNumber string             `json:"policyNumber"`
	AgencyID     uuid.UUID          `json:"agencyId"`
	CustomerID   uuid.UUID          `json:"customerId"`
	ProductID    uuid.UUID          `json:"productId"`
	PartnerID    uuid.UUID          `json:"partnerId"`
	SalesAgentID uuid.UUID          `json:"salesAgentId"`
	Status       string             `json:"status"`
	StartDate    time.Time          `json:"startDate"`
	EndDate      time.Time          `json:"endDate"`
	Premium      json.Number        `json:"premium"`
	Commission   json.Number        `json:"commission"`
	Notes        string             `json:"notes,omitempty"`
	Documents    []string           `json:"documents"`
	CreatedAt    time.Time          `json:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt"`
	Customer     *customerSummary   `json:"customer,omitempty"`
	Product      *productResponse   `json:"product,omitempty"`
	Partner      *partnerResponse   `json:"partner,omitempty"`
	SalesAgent   *userSummary       `json:"salesAgent,omitempty"`
	Reminders    []reminderResponse `json:"reminders,omitempty"`
}

type listPoliciesResponse struct {
	Policies   []policyResponse  `json:"policies"`
	Pagination models.Pagination `json:"pagination"`
}

type policySummary struct {
	ID           uuid.UUID `json:"id"`
	PolicyNumber string    `json:"policyNumber"`
	Status       string    `json:"status"`
}

type saleResponse struct {
	ID           uuid.UUID        `json:"id"`
	PolicyID     uuid.UUID        `json:"policyId"`
	CustomerID   uuid.UUID        `json:"customerId"`
	SalesAgentID uuid.UUID        `json:"salesAgentId"`
	Amount       json.Number      `json:"amount"`
	Commission   json.Number      `json:"commission"`
	SaleDate     time.Time        `json:"saleDate"`
	CreatedAt    time.Time        `json:"createdAt"`
	Policy       *policySummary   `json:"policy,omitempty"`
	Customer     *customerSummary `json:"customer,omitempty"`
	SalesAgent   *userSummary     `json:"salesAgent,omitempty"`
}

type agentSalesResponse struct {
	SalesAgentID uuid.UUID   `json:"salesAgentId"`
	AgentName    string      `json:"agentName"`
	Amount       json.Number `json:"amount"`
	Commission   json.Number `json:"commission"`
}

type saleStatsResponse struct {
	TotalSales      json.Number          `json:"totalSales"`
	TotalCommission json.Number          `json:"totalCommission"`
	TotalPolicies   int64                `json:"totalPolicies"`
	AverageSale     json.Number          `json:"averageSale"`
	TopAgents       []agentSalesResponse `json:"topAgents"`
}

type identityResponse struct {
	UserID   uuid.UUID `json:"userId"`
	AgencyID uuid.UUID `json:"agencyId"`
	Role     string    `json:"role"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type validationResponse struct {
	Errors e.ValidationErrors `json:"errors"`
}

// money renders an amount with exactly two decimals, as a JSON number.
func money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

func derefDecimal(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

// parseDate accepts a calendar date or an RFC 3339 timestamp.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// fieldParser collects malformed request fields. Empty values are left to the
// services, which report missing fields themselves.
type fieldParser struct {
	errs e.ValidationErrors
}

func (p *fieldParser) id(field, value string) uuid.UUID {
	if value == "" {
		return uuid.Nil
	}
	id, err := uuid.Parse(value)
	if err != nil {
		p.errs.Add(field, "must be a valid UUID")
		return uuid.Nil
	}
	return id
}

func (p *fieldParser) date(field, value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := parseDate(value)
	if err != nil {
		p.errs.Add(field, "must be a date (YYYY-MM-DD) or an RFC 3339 timestamp")
		return time.Time{}
	}
	return t
}

func (p *fieldParser) integer(field, value string) int {
	if value == "" {
		return 0
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		p.errs.Add(field, "must be an integer")
		return 0
	}
	return n
}

func requestToNewPolicy(req *createPolicyRequest) (models.NewPolicy, error) {
	var p fieldParser
	in := models.NewPolicy{
		CustomerID: p.id("customerId", req.CustomerID),
		ProductID:  p.id("productId", req.ProductID),
		PartnerID:  p.id("partnerId", req.PartnerID),
		StartDate:  p.date("startDate", req.StartDate),
		EndDate:    p.date("endDate", req.EndDate),
		Premium:    derefDecimal(req.Premium),
		Commission: req.Commission,
		Notes:      req.Notes,
		Documents:  req.Documents,
	}
	return in, p.errs.Err()
}

func requestToPolicyUpdate(req *updatePolicyRequest, id uuid.UUID) (models.PolicyUpdate, error) {
	var p fieldParser
	update := models.PolicyUpdate{
		ID:         id,
		Premium:    req.Premium,
		Commission: req.Commission,
		Notes:      req.Notes,
		Documents:  req.Documents,
	}
	if req.StartDate != nil {
		start := p.date("startDate", *req.StartDate)
		update.StartDate = &start
	}
	if req.EndDate != nil {
		end := p.date("endDate", *req.EndDate)
		update.EndDate = &end
	}
	return update, p.errs.Err()
}

func queryToPolicyFilter(q url.Values) (models.PolicyFilter, error) {
	var p fieldParser
	filter := models.PolicyFilter{
		Status:       models.PolicyStatus(q.Get("status")),
		CustomerID:   p.id("customerId", q.Get("customerId")),
		ProductID:    p.id("productId", q.Get("productId")),
		PartnerID:    p.id("partnerId", q.Get("partnerId")),
		SalesAgentID: p.id("salesAgentId", q.Get("salesAgentId")),
		Search:       q.Get("search"),
		Page:         p.integer("page", q.Get("page")),
		Limit:        p.integer("limit", q.Get("limit")),
	}
	return filter, p.errs.Err()
}

func requestToNewSale(req *recordSaleRequest) (models.NewSale, error) {
	var p fieldParser
	in := models.NewSale{
		PolicyID:     p.id("policyId", req.PolicyID),
		CustomerID:   p.id("customerId", req.CustomerID),
		SalesAgentID: p.id("salesAgentId", req.SalesAgentID),
		Amount:       derefDecimal(req.Amount),
		Commission:   req.Commission,
	}
	return in, p.errs.Err()
}

func modelToPolicy(policy *models.Policy) policyResponse {
	resp := policyResponse{
		ID:           policy.ID,
		PolicyNumber: policy.PolicyNumber,
		AgencyID:     policy.AgencyID,
		CustomerID:   policy.CustomerID,
		ProductID:    policy.ProductID,
		PartnerID:    policy.PartnerID,
		SalesAgentID: policy.SalesAgentID,
		Status:       string(policy.Status),
		StartDate:    policy.StartDate,
		EndDate:      policy.EndDate,
		Premium:      money(policy.Premium),
		Commission:   money(policy.Commission),
		Notes:        policy.Notes,
		Documents:    policy.Documents,
		CreatedAt:    policy.CreatedAt,
		UpdatedAt:    policy.UpdatedAt,
		Customer:     modelToCustomerSummary(policy.Customer),
		SalesAgent:   modelToUserSummary(policy.SalesAgent),
	}
	if resp.Documents == nil {
		resp.Documents = []string{}
	}
	if policy.Product != nil {
		product := modelToProduct(policy.Product)
		resp.Product = &product
	}
	if policy.Partner != nil {
		partner := modelToPartner(policy.Partner)
		resp.Partner = &partner
	}
	for i := range policy.Reminders {
		resp.Reminders = append(resp.Reminders, modelToReminder(&policy.Reminders[i]))
	}
	return resp
}

func modelToCustomerSummary(c *models.Customer) *customerSummary {
	if c == nil {
		return nil
	}
	return &customerSummary{ID: c.ID, Name: c.FullName(), Email: c.Email, Phone: c.Phone}
}

func modelToUserSummary(u *models.User) *userSummary {
	if u == nil {
		return nil
	}
	return &userSummary{ID: u.ID, Name: u.FullName(), Email: u.Email}
}

func modelToPartner(p *models.Partner) partnerResponse {
	return partnerResponse{
		ID:       p.ID,
		Name:     p.Name,
		Code:     p.Code,
		Email:    p.Email,
		Phone:    p.Phone,
		IsActive: p.IsActive,
	}
}

func modelToProduct(p *models.Product) productResponse {
	resp := productResponse{
		ID:             p.ID,
		PartnerID:      p.PartnerID,
		Name:           p.Name,
		Description:    p.Description,
		Category:       p.Category,
		BasePremium:    money(p.BasePremium),
		CommissionRate: money(p.CommissionRate),
		IsActive:       p.IsActive,
	}
	if p.Partner != nil {
		partner := modelToPartner(p.Partner)
		resp.Partner = &partner
	}
	return resp
}

func modelToReminder(r *models.PolicyReminder) reminderResponse {
	return reminderResponse{
		ID:           r.ID,
		PolicyID:     r.PolicyID,
		Kind:         string(r.Kind),
		ReminderDate: r.ReminderDate,
		ExpiryWindow: r.ExpiryWindow,
		Sent:         r.Sent,
		SentAt:       r.SentAt,
		CreatedAt:    r.CreatedAt,
	}
}

func modelToSale(s *models.Sale) saleResponse {
	resp := saleResponse{
		ID:           s.ID,
		PolicyID:     s.PolicyID,
		CustomerID:   s.CustomerID,
		SalesAgentID: s.SalesAgentID,
		Amount:       money(s.Amount),
		Commission:   money(s.Commission),
		SaleDate:     s.SaleDate,
		CreatedAt:    s.CreatedAt,
		Customer:     modelToCustomerSummary(s.Customer),
		SalesAgent:   modelToUserSummary(s.SalesAgent),
	}
	if s.Policy != nil {
		resp.Policy = &policySummary{ID: s.Policy.ID, PolicyNumber: s.Policy.PolicyNumber, Status: string(s.Policy.Status)}
	}
	return resp
}

func modelToStats(stats models.SaleStats) saleStatsResponse {
	resp := saleStatsResponse{
		TotalSales:      money(stats.TotalSales),
		TotalCommission: money(stats.TotalCommission),
		TotalPolicies:   stats.TotalPolicies,
		AverageSale:     money(stats.AverageSale),
		TopAgents:       []agentSalesResponse{},
	}
	for _, a := range stats.TopAgents {
		resp.TopAgents = append(resp.TopAgents, agentSalesResponse{
			SalesAgentID: a.SalesAgentID,
			AgentName:    a.AgentName,
			Amount:       money(a.Amount),
			Commission:   money(a.Commission),
		})
	}
	return resp
}

// mapServiceError writes the HTTP response for a service error.
func (h *Handler) mapServiceError(w http.ResponseWriter, err error) {
	var validation e.ValidationErrors
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, validationResponse{Errors: validation})
	case errors.Is(err, e.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, e.ErrInvalidTransition),
		errors.Is(err, e.ErrDuplicate),
		errors.Is(err, e.ErrDependency),
		errors.Is(err, e.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, e.ErrUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
	case errors.Is(err, e.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error()})
	default:
		h.logger.Error("Internal server error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
