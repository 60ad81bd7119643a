package models

import "time"

// ProductMapping maps a payment-platform product reference (SKU, price id,
// offer id) to an internal product. Several external refs may point at the
// same product, for example the same course sold on two platforms.
type ProductMapping struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Provider    string    `gorm:"type:varchar(20);not null;index:ux_product_mappings_ref,unique,priority:1;index" json:"provider"`
	ExternalRef string    `gorm:"type:varchar(191);not null;index:ux_product_mappings_ref,unique,priority:2" json:"external_ref"`
	ProductID   uint      `gorm:"not null;index" json:"product_id"`
	Product     Product   `gorm:"foreignKey:ProductID" json:"product,omitempty"`
	IsActive    bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
