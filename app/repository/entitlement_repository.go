package repository

import (
	"context"
	"errors"

	"github.com/coursebeam/entitlesync/app/models"
	"gorm.io/gorm"
)

// entitlementRepository implements the EntitlementRepository interface
type entitlementRepository struct {
	db *gorm.DB
}

// NewEntitlementRepository creates a new entitlement repository instance
func NewEntitlementRepository(db *gorm.DB) EntitlementRepository {
	return &entitlementRepository{db: db}
}

// Exists reports whether the user already owns the product.
func (r *entitlementRepository) Exists(ctx context.Context, userID, productID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Entitlement{}).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Grant inserts a new entitlement row. The unique index on
// (user_id, product_id) is the real idempotency guard: when a concurrent
// duplicate delivery races past the existence pre-check, the losing insert
// comes back as ErrAlreadyGranted instead of a raw duplicate-key error.
func (r *entitlementRepository) Grant(ctx context.Context, entitlement *models.Entitlement) error {
	err := r.db.WithContext(ctx).Create(entitlement).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrAlreadyGranted
		}
		return err
	}
	return nil
}

// RevokeByOrder deletes the entitlement created under the given order for the
// given product and returns the number of rows removed. Zero rows is not an
// error: the entitlement may have been revoked already, or never granted
// under this order. Rows whose provenance is a different order survive.
func (r *entitlementRepository) RevokeByOrder(ctx context.Context, orderID string, productID uint) (int64, error) {
	tx := r.db.WithContext(ctx).
		Where("order_id = ? AND product_id = ?", orderID, productID).
		Delete(&models.Entitlement{})
	if tx.Error != nil {
		return 0, tx.Error
	}
	return tx.RowsAffected, nil
}

// ListByUser returns all entitlements of a user, newest first.
func (r *entitlementRepository) ListByUser(ctx context.Context, userID uint) ([]models.Entitlement, error) {
	var entitlements []models.Entitlement
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&entitlements).Error
	return entitlements, err
}
