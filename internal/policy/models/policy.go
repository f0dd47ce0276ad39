package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Policy is an insurance contract tying a customer, product, partner and
// sales agent together for a coverage period. Policies are never deleted;
// CANCELLED and EXPIRED are terminal statuses.
type Policy struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	PolicyNumber string          `gorm:"size:32;not null;uniqueIndex:idx_policies_agency_number" json:"policyNumber"`
	AgencyID     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_policies_agency_number;index" json:"agencyId"`
	CustomerID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"customerId"`
	ProductID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"productId"`
	PartnerID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"partnerId"`
	SalesAgentID uuid.UUID       `gorm:"type:uuid;not null;index" json:"salesAgentId"`
	Status       PolicyStatus    `gorm:"size:16;not null;index" json:"status"`
	StartDate    time.Time       `gorm:"not null" json:"startDate"`
	EndDate      time.Time       `gorm:"not null;index" json:"endDate"`
	Premium      decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"premium"`
	Commission   decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"commission"`
	Notes        string          `gorm:"size:3000" json:"notes,omitempty"`
	Documents    []string        `gorm:"serializer:json" json:"documents,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`

	Customer   *Customer        `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	Product    *Product         `gorm:"foreignKey:ProductID" json:"product,omitempty"`
	Partner    *Partner         `gorm:"foreignKey:PartnerID" json:"partner,omitempty"`
	SalesAgent *User            `gorm:"foreignKey:SalesAgentID" json:"salesAgent,omitempty"`
	Agency     *Agency          `gorm:"foreignKey:AgencyID" json:"-"`
	Reminders  []PolicyReminder `gorm:"foreignKey:PolicyID" json:"reminders,omitempty"`
}

// NewPolicy carries the caller-supplied fields of a policy creation.
// Commission is optional; nil means derive it from the product rate.
type NewPolicy struct {
	AgencyID     uuid.UUID
	SalesAgentID uuid.UUID
	CustomerID   uuid.UUID
	ProductID    uuid.UUID
	PartnerID    uuid.UUID
	StartDate    time.Time
	EndDate      time.Time
	Premium      decimal.Decimal
	Commission   *decimal.Decimal
	Notes        string
	Documents    []string
}

// PolicyUpdate represents the fields that can be updated for a Policy.
// Pointer types are used to allow partial updates.
type PolicyUpdate struct {
	ID         uuid.UUID
	AgencyID   uuid.UUID
	StartDate  *time.Time
	EndDate    *time.Time
	Premium    *decimal.Decimal
	Commission *decimal.Decimal
	Notes      *string
	Documents  *[]string
}

// PolicyFilter narrows a policy listing. Zero values mean "any".
type PolicyFilter struct {
	AgencyID     uuid.UUID
	Status       PolicyStatus
	CustomerID   uuid.UUID
	ProductID    uuid.UUID
	PartnerID    uuid.UUID
	SalesAgentID uuid.UUID
	Search       string
	Page         int
	Limit        int
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

// NewPagination computes the page count for total rows.
func NewPagination(page, limit int, total int64) Pagination {
	pages := 0
	if limit > 0 {
		pages = int((total + int64(limit) - 1) / int64(limit))
	}
	return Pagination{Page: page, Limit: limit, Total: total, Pages: pages}
}

// PolicyPage is one page of policies.
type PolicyPage struct {
	Policies   []Policy
	Pagination Pagination
}
