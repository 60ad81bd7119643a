package repository

import (
	"context"
	"time"

	"github.com/coursebeam/entitlesync/app/models"
	"gorm.io/gorm"
)

// eventLogRepository implements the EventLogRepository interface
type eventLogRepository struct {
	db *gorm.DB
}

// NewEventLogRepository creates a new event log repository instance
func NewEventLogRepository(db *gorm.DB) EventLogRepository {
	return &eventLogRepository{db: db}
}

// Record appends an inbound event row. Called before any processing runs so
// a crash mid-reconciliation still leaves a forensic trail.
func (r *eventLogRepository) Record(ctx context.Context, event *models.InboundEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// MarkOutcome updates the row written by Record with the processing result.
// The update is keyed by the row id returned from the initial write, never by
// matching on the payload.
func (r *eventLogRepository) MarkOutcome(ctx context.Context, id uint, processed bool, errorMessage string) error {
	updates := map[string]interface{}{
		"processed":     processed,
		"error_message": errorMessage,
	}
	if processed {
		now := time.Now()
		updates["processed_at"] = &now
	}
	return r.db.WithContext(ctx).Model(&models.InboundEvent{}).Where("id = ?", id).Updates(updates).Error
}

// GetByUUID loads a stored event by its public identifier (operator replay).
func (r *eventLogRepository) GetByUUID(ctx context.Context, uuid string) (*models.InboundEvent, error) {
	var event models.InboundEvent
	err := r.db.WithContext(ctx).Where("uuid = ?", uuid).First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}
