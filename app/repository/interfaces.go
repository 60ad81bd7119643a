package repository

import (
	"context"
	"errors"

	"github.com/coursebeam/entitlesync/app/models"
	"gorm.io/gorm"
)

// ErrAlreadyGranted is returned by EntitlementRepository.Grant when the
// (user_id, product_id) unique index rejected the insert. Callers treat it
// exactly like "the entitlement already existed".
var ErrAlreadyGranted = errors.New("entitlement already granted")

// UserRepository defines the read-only lookups against the member directory.
// This service never creates, updates or deletes users.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// ProductRepository defines read-only lookups against the product catalog.
type ProductRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Product, error)
}

// ProductMappingRepository resolves external product references to internal
// products.
type ProductMappingRepository interface {
	FindActive(ctx context.Context, provider, externalRef string) (*models.ProductMapping, error)
}

// EntitlementRepository defines the grant/revoke operations on user product
// ownership.
type EntitlementRepository interface {
	Exists(ctx context.Context, userID, productID uint) (bool, error)
	Grant(ctx context.Context, entitlement *models.Entitlement) error
	RevokeByOrder(ctx context.Context, orderID string, productID uint) (int64, error)
	ListByUser(ctx context.Context, userID uint) ([]models.Entitlement, error)
}

// EventLogRepository defines the append-only inbound event log. Rows are
// recorded before processing and updated in place by id with the outcome.
type EventLogRepository interface {
	Record(ctx context.Context, event *models.InboundEvent) error
	MarkOutcome(ctx context.Context, id uint, processed bool, errorMessage string) error
	GetByUUID(ctx context.Context, uuid string) (*models.InboundEvent, error)
}

// NotificationRepository creates inbox notifications for users.
type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
}

// Repositories struct holds all repository instances
type Repositories struct {
	User           UserRepository
	Product        ProductRepository
	ProductMapping ProductMappingRepository
	Entitlement    EntitlementRepository
	EventLog       EventLogRepository
	Notification   NotificationRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:           NewUserRepository(db),
		Product:        NewProductRepository(db),
		ProductMapping: NewProductMappingRepository(db),
		Entitlement:    NewEntitlementRepository(db),
		EventLog:       NewEventLogRepository(db),
		Notification:   NewNotificationRepository(db),
	}
}
