package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Partner is an insurance carrier an agency sells for.
type Partner struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AgencyID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_partners_agency_code" json:"agencyId"`
	Name      string    `gorm:"size:200;not null" json:"name"`
	Code      string    `gorm:"size:50;not null;uniqueIndex:idx_partners_agency_code" json:"code"`
	Email     string    `gorm:"size:200" json:"email,omitempty"`
	Phone     string    `gorm:"size:50" json:"phone,omitempty"`
	IsActive  bool      `gorm:"not null" json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Product is a policy offering of a partner. CommissionRate is a percentage
// of the premium.
type Product struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	AgencyID       uuid.UUID       `gorm:"type:uuid;not null;index" json:"agencyId"`
	PartnerID      uuid.UUID       `gorm:"type:uuid;not null;index" json:"partnerId"`
	Partner        *Partner        `gorm:"foreignKey:PartnerID" json:"partner,omitempty"`
	Name           string          `gorm:"size:200;not null" json:"name"`
	Description    string          `gorm:"size:3000" json:"description,omitempty"`
	Category       string          `gorm:"size:50;not null" json:"category"`
	BasePremium    decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"basePremium"`
	CommissionRate decimal.Decimal `gorm:"type:numeric(5,2);not null;default:0" json:"commissionRate"`
	IsActive       bool            `gorm:"not null" json:"isActive"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

var hundred = decimal.NewFromInt(100)

// CommissionFor derives the commission owed on premium at the product's rate,
// rounded to cents.
func (p *Product) CommissionFor(premium decimal.Decimal) decimal.Decimal {
	return premium.Mul(p.CommissionRate).Div(hundred).Round(2)
}
