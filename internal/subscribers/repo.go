package subscribers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cornman/cornman-backend/pkg/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists ManyChat subscribers and the orders they place in chat.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	UpsertSubscriber(ctx context.Context, sub *models.ManyChatSubscriber) error
	UpsertPreferences(ctx context.Context, manyChatID string, prefs Preferences, now time.Time) error
	FindByManyChatID(ctx context.Context, manyChatID string) (*models.ManyChatSubscriber, error)
	FindByPhone(ctx context.Context, phone string) (*models.ManyChatSubscriber, error)
	UpsertOrder(ctx context.Context, order *models.ManyChatOrder) error
	FindOrder(ctx context.Context, manyChatOrderID string) (*models.ManyChatOrder, error)
}

// Preferences are the delivery settings a subscriber edits from the chat.
type Preferences struct {
	DeliveryAddress         *string
	PreferredDeliveryTime   *string
	SpecialInstructions     *string
	NotificationPreferences map[string]any
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a subscriber repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

// UpsertSubscriber inserts sub or refreshes the profile fields it carries. The original
// subscribed_at and id are kept on conflict.
func (r *repositoryImpl) UpsertSubscriber(ctx context.Context, sub *models.ManyChatSubscriber) error {
	if sub == nil || strings.TrimSpace(sub.ManyChatID) == "" {
		return errors.New("manychat subscriber id required")
	}
	updates := []string{"source", "updated_at"}
	if sub.FirstName != nil {
		updates = append(updates, "first_name")
	}
	if sub.LastName != nil {
		updates = append(updates, "last_name")
	}
	if sub.Phone != nil {
		updates = append(updates, "phone")
	}
	if sub.Email != nil {
		updates = append(updates, "email")
	}
	if sub.Preferences != nil {
		updates = append(updates, "preferences")
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "manychat_id"}},
			DoUpdates: clause.AssignmentColumns(updates),
		}).
		Create(sub).Error
}

// UpsertPreferences writes delivery preferences, creating a bare subscriber record when the
// id has not been seen before.
func (r *repositoryImpl) UpsertPreferences(ctx context.Context, manyChatID string, prefs Preferences, now time.Time) error {
	manyChatID = strings.TrimSpace(manyChatID)
	if manyChatID == "" {
		return errors.New("manychat subscriber id required")
	}
	sub := &models.ManyChatSubscriber{
		ManyChatID:              manyChatID,
		DeliveryAddress:         prefs.DeliveryAddress,
		PreferredDeliveryTime:   prefs.PreferredDeliveryTime,
		SpecialInstructions:     prefs.SpecialInstructions,
		NotificationPreferences: prefs.NotificationPreferences,
		Source:                  "manychat",
		SubscribedAt:            now,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "manychat_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"delivery_address",
				"preferred_delivery_time",
				"special_instructions",
				"notification_preferences",
				"updated_at",
			}),
		}).
		Create(sub).Error
}

func (r *repositoryImpl) FindByManyChatID(ctx context.Context, manyChatID string) (*models.ManyChatSubscriber, error) {
	var sub models.ManyChatSubscriber
	err := r.db.WithContext(ctx).Where("manychat_id = ?", manyChatID).Take(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repositoryImpl) FindByPhone(ctx context.Context, phone string) (*models.ManyChatSubscriber, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, nil
	}
	var sub models.ManyChatSubscriber
	err := r.db.WithContext(ctx).
		Where("phone = ?", phone).
		Order("updated_at DESC").
		Take(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// UpsertOrder stores an inbound order keyed by its ManyChat order id. Redelivered orders
// refresh their contents but keep status and order date.
func (r *repositoryImpl) UpsertOrder(ctx context.Context, order *models.ManyChatOrder) error {
	if order == nil || strings.TrimSpace(order.ManyChatOrderID) == "" {
		return errors.New("manychat order id required")
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "manychat_order_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"subscriber_id",
				"items",
				"total_amount",
				"delivery_address",
				"special_instructions",
				"updated_at",
			}),
		}).
		Create(order).Error
}

func (r *repositoryImpl) FindOrder(ctx context.Context, manyChatOrderID string) (*models.ManyChatOrder, error) {
	var order models.ManyChatOrder
	err := r.db.WithContext(ctx).Where("manychat_order_id = ?", manyChatOrderID).Take(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}
