package controller

import (
	"context"
	"errors"
	"fmt"

	e "github.com/gartstein/insurecrm/internal/policy/errors"
	"github.com/gartstein/insurecrm/internal/policy/models"
	"github.com/google/uuid"
)

// CatalogService exposes the agency's partners and products read-only.
type CatalogService struct {
	repo CatalogRepository
}

func NewCatalogService(repo CatalogRepository) *CatalogService {
	return &CatalogService{repo: repo}
}

func (s *CatalogService) GetProduct(ctx context.Context, id models.Identity, productID uuid.UUID) (*models.Product, error) {
	product, err := s.repo.GetProduct(ctx, id.AgencyID, productID)
	if err != nil {
		if errors.Is(err, e.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return product, nil
}

func (s *CatalogService) ListProducts(ctx context.Context, id models.Identity) ([]models.Product, error) {
	products, err := s.repo.ListProducts(ctx, id.AgencyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

func (s *CatalogService) GetPartner(ctx context.Context, id models.Identity, partnerID uuid.UUID) (*models.Partner, error) {
	partner, err := s.repo.GetPartner(ctx, id.AgencyID, partnerID)
	if err != nil {
		if errors.Is(err, e.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get partner: %w", err)
	}
	return partner, nil
}

func (s *CatalogService) ListPartners(ctx context.Context, id models.Identity) ([]models.Partner, error) {
	partners, err := s.repo.ListPartners(ctx, id.AgencyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list partners: %w", err)
	}
	return partners, nil
}
