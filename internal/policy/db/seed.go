package db

import (
	"context"
	"fmt"

	"github.com/gartstein/insurecrm/internal/policy/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Fixed ids of the demo tenant, so tokens minted by the mock authentication
// server keep working across restarts.
var (
	DemoAgencyID   = uuid.MustParse("6f1c2a90-0000-4000-8000-000000000001")
	DemoManagerID  = uuid.MustParse("6f1c2a90-0000-4000-8000-000000000010")
	DemoAgentID    = uuid.MustParse("6f1c2a90-0000-4000-8000-000000000011")
	DemoHRID       = uuid.MustParse("6f1c2a90-0000-4000-8000-000000000012")
	DemoCustomerID = uuid.MustParse("6f1c2a90-0000-4000-8000-000000000020")
	DemoPartnerID  = uuid.MustParse("6f1c2a90-0000-4000-8000-000000000030")
	DemoProductID  = uuid.MustParse("6f1c2a90-0000-4000-8000-000000000040")
)

// Seed creates the demo agency with one user per role, a customer and one
// partner product. Existing rows are left untouched.
func (r *Repository) Seed(ctx context.Context) error {
	rows := []interface{}{
		&models.Agency{
			ID:       DemoAgencyID,
			Name:     "Test Insurance Agency",
			Email:    "contact@testagency.com",
			Phone:    "+1234567890",
			IsActive: true,
		},
		&models.User{
			ID: DemoManagerID, AgencyID: DemoAgencyID,
			Email: "admin@insurance.com", FirstName: "Admin", LastName: "User",
			Phone: "+1234567890", Role: models.RoleAgencyManager, IsActive: true,
		},
		&models.User{
			ID: DemoAgentID, AgencyID: DemoAgencyID,
			Email: "agent@insurance.com", FirstName: "Sales", LastName: "Agent",
			Phone: "+1234567891", Role: models.RoleSalesAgent, IsActive: true,
		},
		&models.User{
			ID: DemoHRID, AgencyID: DemoAgencyID,
			Email: "hr@insurance.com", FirstName: "Human", LastName: "Resources",
			Role: models.RoleHRManager, IsActive: true,
		},
		&models.Customer{
			ID: DemoCustomerID, AgencyID: DemoAgencyID,
			FirstName: "Jane", LastName: "Doe", Email: "jane.doe@example.com",
			AssignedTo: &DemoAgentID, IsActive: true,
		},
		&models.Partner{
			ID: DemoPartnerID, AgencyID: DemoAgencyID,
			Name: "Acme Assurance", Code: "ACME", IsActive: true,
		},
		&models.Product{
			ID: DemoProductID, AgencyID: DemoAgencyID, PartnerID: DemoPartnerID,
			Name: "Home Shield", Category: "HOME",
			BasePremium:    decimal.NewFromInt(1000),
			CommissionRate: decimal.NewFromInt(5),
			IsActive:       true,
		},
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, row := range rows {
			if err := tx.FirstOrCreate(row).Error; err != nil {
				return fmt.Errorf("failed to seed %T: %w", row, err)
			}
		}
		return nil
	})
}
