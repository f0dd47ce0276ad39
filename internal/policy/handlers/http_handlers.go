package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gartstein/insurecrm/internal/policy/auth"
	e "github.com/gartstein/insurecrm/internal/policy/errors"
	"github.com/gartstein/insurecrm/internal/policy/models"
	"github.com/gartstein/insurecrm/internal/policy/reminder"
	"github.com/google/uuid"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"go.uber.org/zap"
)

// PolicyController is the lifecycle engine as the handlers see it.
type PolicyController interface {
	Create(ctx context.Context, id models.Identity, in models.NewPolicy) (*models.Policy, error)
	Get(ctx context.Context, id models.Identity, policyID uuid.UUID) (*models.Policy, error)
	List(ctx context.Context, id models.Identity, filter models.PolicyFilter) (*models.PolicyPage, error)
	Update(ctx context.Context, id models.Identity, update models.PolicyUpdate) (*models.Policy, error)
	Submit(ctx context.Context, id models.Identity, policyID uuid.UUID) (*models.Policy, error)
	Activate(ctx context.Context, id models.Identity, policyID uuid.UUID) (*models.Policy, error)
	Cancel(ctx context.Context, id models.Identity, policyID uuid.UUID) (*models.Policy, error)
	CreateManualReminder(ctx context.Context, id models.Identity, policyID uuid.UUID, date time.Time) (*models.PolicyReminder, error)
	ListReminders(ctx context.Context, id models.Identity, policyID uuid.UUID) ([]models.PolicyReminder, error)
}

type SalesController interface {
	RecordSale(ctx context.Context, id models.Identity, in models.NewSale) (*models.Sale, error)
	CorrectSale(ctx context.Context, id models.Identity, c models.SaleCorrection) (*models.Sale, error)
	GetSale(ctx context.Context, id models.Identity, saleID uuid.UUID) (*models.Sale, error)
	ListSales(ctx context.Context, id models.Identity) ([]models.Sale, error)
	Stats(ctx context.Context, id models.Identity) (models.SaleStats, error)
}

type CatalogController interface {
	GetProduct(ctx context.Context, id models.Identity, productID uuid.UUID) (*models.Product, error)
	ListProducts(ctx context.Context, id models.Identity) ([]models.Product, error)
	GetPartner(ctx context.Context, id models.Identity, partnerID uuid.UUID) (*models.Partner, error)
	ListPartners(ctx context.Context, id models.Identity) ([]models.Partner, error)
}

// ReminderRunner triggers an immediate sweep.
type ReminderRunner interface {
	RunNow(ctx context.Context) (reminder.Result, error)
}

// Handler serves the JSON API on a grpc-gateway runtime mux.
type Handler struct {
	policies  PolicyController
	sales     SalesController
	catalog   CatalogController
	reminders ReminderRunner
	logger    *zap.Logger
}

func NewHandler(
	policies PolicyController,
	sales SalesController,
	catalog CatalogController,
	reminders ReminderRunner,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		policies:  policies,
		sales:     sales,
		catalog:   catalog,
		reminders: reminders,
		logger:    logger.Named("http_handler"),
	}
}

type route struct {
	method  string
	pattern string
	handle  func(w http.ResponseWriter, r *http.Request, id models.Identity, params map[string]string)
}

// Register adds every /v1 route to mux. The mux gives later registrations
// precedence, so literal paths follow the patterns they overlap.
func (h *Handler) Register(mux *runtime.ServeMux) error {
	routes := []route{
		{http.MethodPost, "/v1/policies", h.createPolicy},
		{http.MethodGet, "/v1/policies", h.listPolicies},
		{http.MethodGet, "/v1/policies/{id}", h.getPolicy},
		{http.MethodPut, "/v1/policies/{id}", h.updatePolicy},
		{http.MethodPut, "/v1/policies/{id}/submit", h.transition(h.policies.Submit)},
		{http.MethodPut, "/v1/policies/{id}/activate", h.transition(h.policies.Activate)},
		{http.MethodPut, "/v1/policies/{id}/cancel", h.transition(h.policies.Cancel)},
		{http.MethodPost, "/v1/policies/{id}/reminders", h.createReminder},
		{http.MethodGet, "/v1/policies/{id}/reminders", h.listReminders},
		{http.MethodPost, "/v1/reminders/run", h.runReminders},
		{http.MethodPost, "/v1/sales", h.recordSale},
		{http.MethodGet, "/v1/sales", h.listSales},
		{http.MethodGet, "/v1/sales/{id}", h.getSale},
		{http.MethodPut, "/v1/sales/{id}", h.correctSale},
		{http.MethodGet, "/v1/sales/stats", h.saleStats},
		{http.MethodGet, "/v1/products", h.listProducts},
		{http.MethodGet, "/v1/products/{id}", h.getProduct},
		{http.MethodGet, "/v1/partners", h.listPartners},
		{http.MethodGet, "/v1/partners/{id}", h.getPartner},
		{http.MethodGet, "/v1/me", h.me},
	}
	for _, rt := range routes {
		if err := mux.HandlePath(rt.method, rt.pattern, h.withIdentity(rt.handle)); err != nil {
			return fmt.Errorf("failed to register %s %s: %w", rt.method, rt.pattern, err)
		}
	}
	return nil
}

func (h *Handler) withIdentity(
	next func(w http.ResponseWriter, r *http.Request, id models.Identity, params map[string]string),
) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		id, ok := auth.IdentityFromContext(r.Context())
		if !ok {
			h.mapServiceError(w, e.ErrUnauthenticated)
			return
		}
		next(w, r, id, params)
	}
}

// pathID parses the {id} segment, answering 400 itself on failure.
func (h *Handler) pathID(w http.ResponseWriter, params map[string]string) (uuid.UUID, bool) {
	id, err := uuid.Parse(params["id"])
	if err != nil {
		var v e.ValidationErrors
		v.Add("id", "must be a valid UUID")
		h.mapServiceError(w, v)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.mapServiceError(w, fmt.Errorf("%w: malformed request body: %v", e.ErrInvalidInput, err))
		return false
	}
	return true
}

func (h *Handler) createPolicy(w http.ResponseWriter, r *http.Request, id models.Identity, _ map[string]string) {
	var req createPolicyRequest
	if !h.decode(w, r, &req) {
		return
	}
	in, err := requestToNewPolicy(&req)
	if err != nil {
		h.mapServiceError(w, err)
		return
	}

	created, err := h.policies.Create(r.Context(), id, in)
	if err != nil {
		h.mapServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, modelToPolicy(created))
}

func (h *Handler) listPolicies(w http.ResponseWriter, r *http.Request, id models.Identity, _ map[string]string) {
	filter, err := queryToPolicyFilter(r.URL.Query())
	if err != nil {
		h.mapServiceError(w, err)
		return
	}

	page, err := h.policies.List(r.Context(), id, filter)
	if err != nil {
		h.mapServiceError(w, err)
		return
	}
	resp := listPoliciesResponse{Policies: []policyResponse{}, Pagination: page.Pagination}
	for i := range page.Policies {
		resp.Policies = append(resp.Policies, modelToPolicy(&page.Policies[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getPolicy(w http.ResponseWriter, r *http.Request, id models.Identity, params map[string]string) {
	policyID, ok := h.pathID(w, params)
	if !ok {
		return
	}
	policy, err := h.policies.Get(r.Context(), id, policyID)
	if err != nil {
		h.mapServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, modelToPolicy(policy))
}

func (h *Handler) updatePolicy(w http.ResponseWriter, r *http.Request, id models.Identity, params map[string]string) {
	policyID, ok := h.pathID(w, params)
	if !ok {
		return
	}
	var req updatePolicyRequest
	if !h.decode(w, r, &req) {
		return
	}
	update, err := requestToPolicyUpdate(&req, policyID)
	if err != nil {
		h.mapServiceError(w, err)
		return
	}

	updated, err := h.policies.Update(r.Context(), id, update)
	if err != nil {
		h.mapServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, modelToPolicy(updated))
}

func (h *Handler) transition(
	apply func(ctx context.Context, id models.Identity, policyID uuid.UUID) (*models.Policy, error),
) func(w http.ResponseWriter, r *http.Request, id models.Identity, params map[string]string) {
	return func(w http.ResponseWriter, r *http.Request, id models.Identity, params map[string]string) {
		policyID, ok := h.pathID(w, params)
		if !ok {
			return
		}
		policy, err := apply(r.Context(), id, policyID)
		if err != nil {
			h.mapServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, modelToPolicy(policy))
	}
}

func (h *Handler) createReminder(w http.ResponseWriter, r *http.Request, id models.Identity, params map[string]string) {
	policyID, ok := h.pathID(w, params)
	if !ok {
		return
	}
	var req createReminderRequest
	if !h.decode(w, r, &req) {
		return
	}
	var p fieldParser
	date := p.date("reminderDate", req.ReminderDate)
	if err := p.errs.Err(); err != nil {
		h.mapServiceError(w, err)
		return
	}

	created, err := h.policies.CreateManualReminder(r.Context(), id, policyID, date)
	if err != nil {
		h.mapServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, modelToReminder(created))
}

func (h *Handler) listReminders(w http.ResponseWriter, r *http.Request, id models.Identity, params map[string]string) {
	policyID, ok := h.pathID(w, params)
	if !ok {
		return
	}
	reminders, err := h.policies.ListReminders(r.Context(), id, policyID)
	if err != nil {
		h.mapServiceError(w, err)
		return
	}
	resp := make([]reminderResponse, 0, len(reminders))
	for i := range reminders {
		resp = append(resp, modelToReminder(&reminders[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) runReminders(w http.ResponseWriter, r *http.Request, _ models.Identity, _ map[string]string) {
	result, err := h.reminders.RunNow(r.Context())
	if err != nil {
		h.mapServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) recordSale(w http.ResponseWriter, r *http.Request, id models.Identity, _ map[string]string) {
	var req recordSaleRequest
	if !h.decode(w, r, &req) {
		return
	}
	in, err := requestToNewSale(&req)
	if err != nil {
		h.mapServiceError(w, err)
		return
	}

	sale, err := h.sales.RecordSale(r.Context(), id, in)
	if err != nil {
		h.mapServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, modelToSale(sale))
}

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request, id models.Identity, _ map[string]string) {
	sales, err := h.sales.ListSales(r.Context(), id)
	if err != nil {
		h.mapServiceError(w, err)
		return
	}
	resp := make([]saleResponse, 0, len(sales))
	for i := range sales {
		resp = append(resp, modelToSale(&sales[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getSale(w http.ResponseWriter, r *http.Request, id models.Identity, params map[string]string) {
	saleID, ok := h.pathID(w, params)
	if !ok {
		return
	}
	sale, err := h.sales.GetSale(r.Context(), id, saleID)
	if err != nil {
		h.mapServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, modelToSale(sale))
}

func (h *Handler) correctSale(w http.ResponseWriter, r *http.Request, id models.Identity, params map[string]string) {
	saleID, ok := h.pathID(w, params)
	if !ok {
		return
	}
	var req correctSaleRequest
	if !h.decode(w, r, &req) {
		return
	}

	sale, err := h.sales.CorrectSale(r.Context(), id, models.SaleCorrection{
		ID:         saleID,
		Amount:     derefDecimal(req.Amount),
		Commission: req.Commission,
	})
	if err != nil {
		h.mapServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, modelToSale(sale))
}

func (h *Handler) saleStats(w http.ResponseWriter, r *http.Request, id models.Identity, _ map[string]string) {
	stats, err := h.sales.Stats(r.Context(), id)
	if err != nil {
		h.mapServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, modelToStats(stats))
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request, id models.Identity, _ map[string]string) {
	products, err := h.catalog.ListProducts(r.Context(), id)
	if err != nil {
		h.mapServiceError(w, err)
		return
	}
	resp := make([]productResponse, 0, len(products))
	for i := range products {
		resp = append(resp, modelToProduct(&products[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request, id models.Identity, params map[string]string) {
	productID, ok := h.pathID(w, params)
	if !ok {
		return
	}
	product, err := h.catalog.GetProduct(r.Context(), id, productID)
	if err != nil {
		h.mapServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, modelToProduct(product))
}

func (h *Handler) listPartners(w http.ResponseWriter, r *http.Request, id models.Identity, _ map[string]string) {
	partners, err := h.catalog.ListPartners(r.Context(), id)
	if err != nil {
		h.mapServiceError(w, err)
		return
	}
	resp := make([]partnerResponse, 0, len(partners))
	for i := range partners {
		resp = append(resp, modelToPartner(&partners[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getPartner(w http.ResponseWriter, r *http.Request, id models.Identity, params map[string]string) {
	partnerID, ok := h.pathID(w, params)
	if !ok {
		return
	}
	partner, err := h.catalog.GetPartner(r.Context(), id, partnerID)
	if err != nil {
		h.mapServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, modelToPartner(partner))
}

func (h *Handler) me(w http.ResponseWriter, _ *http.Request, id models.Identity, _ map[string]string) {
	writeJSON(w, http.StatusOK, identityResponse{UserID: id.UserID, AgencyID: id.AgencyID, Role: string(id.Role)})
}
