package models

import "time"

// InboundEvent is the append-only record of every webhook delivery that
// reached the ingestion endpoint with a parseable body. One row per delivery:
// the row is written before any processing runs and later updated in place
// (by id, never by payload matching) with the final outcome. Rows are never
// deleted by this service.
type InboundEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	UUID            string     `gorm:"type:varchar(36);not null;uniqueIndex" json:"uuid"`
	Provider        string     `gorm:"type:varchar(20);not null;index" json:"provider"`
	ProviderEventID string     `gorm:"type:varchar(191);not null;default:'';index" json:"provider_event_id"`
	EventType       string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payload_json"`
	SignatureValid  bool       `gorm:"default:false;index" json:"signature_valid"`
	Processed       bool       `gorm:"default:false;index" json:"processed"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ErrorMessage    string     `gorm:"type:text" json:"error_message"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
