package repository

import (
	"context"
	"strings"

	"github.com/coursebeam/entitlesync/app/models"
	"gorm.io/gorm"
)

// productMappingRepository implements the ProductMappingRepository interface
type productMappingRepository struct {
	db *gorm.DB
}

// NewProductMappingRepository creates a new product mapping repository instance
func NewProductMappingRepository(db *gorm.DB) ProductMappingRepository {
	return &productMappingRepository{db: db}
}

// FindActive resolves an external product reference to its active mapping.
// Returns gorm.ErrRecordNotFound when no active mapping exists.
func (r *productMappingRepository) FindActive(ctx context.Context, provider, externalRef string) (*models.ProductMapping, error) {
	var m models.ProductMapping
	err := r.db.WithContext(ctx).
		Where("provider = ? AND external_ref = ? AND is_active = ?",
			strings.ToLower(strings.TrimSpace(provider)), strings.TrimSpace(externalRef), true).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}
