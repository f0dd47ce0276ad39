// Package models defines the domain models of the policy service, configured
// to work with GORM. Agencies, users and customers are reference data owned by
// other parts of the back office; policies, reminders and sales are owned here.
package models

import (
	"time"

	"github.com/google/uuid"
)

// UserRole is the role a back-office user holds inside an agency.
type UserRole string

const (
	RoleAgencyManager UserRole = "AGENCY_MANAGER"
	RoleHRManager     UserRole = "HR_MANAGER"
	RoleSalesAgent    UserRole = "SALES_AGENT"
)

// Valid reports whether r is one of the known roles.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAgencyManager, RoleHRManager, RoleSalesAgent:
		return true
	}
	return false
}

// Agency is a tenant. Every other entity carries an AgencyID.
type Agency struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"size:200;not null" json:"name"`
	Email     string    `gorm:"size:200" json:"email,omitempty"`
	Phone     string    `gorm:"size:50" json:"phone,omitempty"`
	IsActive  bool      `gorm:"not null" json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// User is an agency employee. Sales agents own the policies they create.
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AgencyID  uuid.UUID `gorm:"type:uuid;not null;index" json:"agencyId"`
	Agency    *Agency   `gorm:"foreignKey:AgencyID" json:"agency,omitempty"`
	Email     string    `gorm:"size:200;not null;uniqueIndex" json:"email"`
	FirstName string    `gorm:"size:100;not null" json:"firstName"`
	LastName  string    `gorm:"size:100;not null" json:"lastName"`
	Phone     string    `gorm:"size:50" json:"phone,omitempty"`
	Role      UserRole  `gorm:"size:32;not null" json:"role"`
	IsActive  bool      `gorm:"not null" json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FullName joins first and last name.
func (u *User) FullName() string {
	return joinName(u.FirstName, u.LastName)
}

// Customer is a person or company holding policies with an agency.
type Customer struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	AgencyID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"agencyId"`
	FirstName   string     `gorm:"size:100;not null" json:"firstName"`
	LastName    string     `gorm:"size:100;not null" json:"lastName"`
	CompanyName string     `gorm:"size:200" json:"companyName,omitempty"`
	IsCorporate bool       `gorm:"not null;default:false" json:"isCorporate"`
	Email       string     `gorm:"size:200" json:"email,omitempty"`
	Phone       string     `gorm:"size:50" json:"phone,omitempty"`
	AssignedTo  *uuid.UUID `gorm:"type:uuid;index" json:"assignedTo,omitempty"`
	IsActive    bool       `gorm:"not null" json:"isActive"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// FullName joins first and last name.
func (c *Customer) FullName() string {
	return joinName(c.FirstName, c.LastName)
}

func joinName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	}
	return first + " " + last
}

// Identity is the authenticated caller. It supplies the tenant scope of
// every request and the acting sales agent.
type Identity struct {
	UserID   uuid.UUID
	AgencyID uuid.UUID
	Role     UserRole
}
