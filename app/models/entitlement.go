package models

import "time"

// Entitlement records that a user owns a product. The unique index on
// (user_id, product_id) is the idempotency guard for concurrent duplicate
// webhook deliveries; the existence pre-check in the engine is only an
// optimization. OrderID carries provenance: revokes are scoped to the order
// that created the row, and manually granted rows have no order id.
//
// Progress and CompletedItems belong to the learning subsystem. This service
// initializes them on grant and never touches them again.
type Entitlement struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         uint      `gorm:"not null;index:ux_entitlements_user_product,unique,priority:1;index" json:"user_id"`
	User           User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	ProductID      uint      `gorm:"not null;index:ux_entitlements_user_product,unique,priority:2;index" json:"product_id"`
	Product        Product   `gorm:"foreignKey:ProductID" json:"product,omitempty"`
	OrderID        *string   `gorm:"type:varchar(191);default:null;index" json:"order_id,omitempty"`
	PurchasedAt    time.Time `gorm:"type:timestamp;not null" json:"purchased_at"`
	Progress       int       `gorm:"not null;default:0" json:"progress"`
	CompletedItems string    `gorm:"type:text;not null;default:'[]'" json:"completed_items"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
