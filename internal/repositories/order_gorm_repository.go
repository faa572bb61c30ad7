package repositories

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"storefront/internal/models"
)

// GORMOrderRepository is a GORM implementation of OrderRepository.
type GORMOrderRepository struct {
	db *gorm.DB
}

// NewGORMOrderRepository creates a new instance of GORMOrderRepository.
func NewGORMOrderRepository(db *gorm.DB) *GORMOrderRepository {
	return &GORMOrderRepository{
		db: db,
	}
}

// Create persists the order with its lines in a single transaction. The
// unique index on external_payment_ref decides which of two racing writers
// wins.
func (r *GORMOrderRepository) Create(ctx context.Context, order *models.Order) error {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(order).Error
	})
	if err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateExternalRef
		}
		return errors.Wrapf(err, "create order %s", order.ID)
	}
	return nil
}

// GetByID retrieves a single order with its lines.
func (r *GORMOrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Preload("Lines").First(&order, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %s", id)
	}
	return &order, nil
}

// FindByExternalRef retrieves the order keyed by an external payment
// reference.
func (r *GORMOrderRepository) FindByExternalRef(ctx context.Context, ref string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Preload("Lines").First(&order, "external_payment_ref = ?", ref).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "find order by ref %s", ref)
	}
	return &order, nil
}

// ListByOwner returns the owner's orders, newest first.
func (r *GORMOrderRepository) ListByOwner(ctx context.Context, ownerUserID string) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Preload("Lines").
		Where("owner_user_id = ?", ownerUserID).
		Order("created_at DESC").
		Find(&orders).Error
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// TransitionStatus is a conditional update; it never reads before writing.
func (r *GORMOrderRepository) TransitionStatus(ctx context.Context, ref string, from []models.PaymentStatus, to models.PaymentStatus) (bool, error) {
	allowed := make([]models.PaymentStatus, 0, len(from))
	for _, f := range from {
		if models.CanTransition(f, to) {
			allowed = append(allowed, f)
		}
	}
	if len(allowed) == 0 {
		return false, nil
	}

	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("external_payment_ref = ? AND payment_status IN ?", ref, allowed).
		Updates(map[string]interface{}{
			"payment_status": to,
			"updated_at":     time.Now(),
		})
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "transition order %s to %s", ref, to)
	}
	return res.RowsAffected > 0, nil
}
