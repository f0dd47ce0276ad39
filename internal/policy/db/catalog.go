package db

import (
	"context"
	"fmt"

	"github.com/gartstein/insurecrm/internal/policy/models"
	"github.com/google/uuid"
)

func (r *Repository) GetCustomer(ctx context.Context, agencyID, id uuid.UUID) (*models.Customer, error) {
	var customer models.Customer
	if err := r.db.WithContext(ctx).Where("id = ? AND agency_id = ?", id, agencyID).Take(&customer).Error; err != nil {
		return nil, notFound(err)
	}
	return &customer, nil
}

func (r *Repository) GetProduct(ctx context.Context, agencyID, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).Where("id = ? AND agency_id = ?", id, agencyID).Take(&product).Error; err != nil {
		return nil, notFound(err)
	}
	return &product, nil
}

func (r *Repository) GetPartner(ctx context.Context, agencyID, id uuid.UUID) (*models.Partner, error) {
	var partner models.Partner
	if err := r.db.WithContext(ctx).Where("id = ? AND agency_id = ?", id, agencyID).Take(&partner).Error; err != nil {
		return nil, notFound(err)
	}
	return &partner, nil
}

// GetUser loads a user of the agency.
func (r *Repository) GetUser(ctx context.Context, agencyID, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ? AND agency_id = ?", id, agencyID).Take(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// GetUserWithAgency loads a user by id together with the agency it belongs
// to. It is the only user lookup that is not agency scoped; the identity
// guard uses it to resolve a token subject.
func (r *Repository) GetUserWithAgency(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Preload("Agency").Where("id = ?", id).Take(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// ListProducts returns the agency's active products with their partners.
func (r *Repository) ListProducts(ctx context.Context, agencyID uuid.UUID) ([]models.Product, error) {
	var products []models.Product
	err := r.db.WithContext(ctx).
		Preload("Partner").
		Where("agency_id = ? AND is_active = ?", agencyID, true).
		Order("name ASC").
		Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

func (r *Repository) ListPartners(ctx context.Context, agencyID uuid.UUID) ([]models.Partner, error) {
	var partners []models.Partner
	err := r.db.WithContext(ctx).
		Where("agency_id = ? AND is_active = ?", agencyID, true).
		Order("name ASC").
		Find(&partners).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list partners: %w", err)
	}
	return partners, nil
}
