package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ManyChatSubscriber mirrors a ManyChat contact that reached the storefront through a webhook.
type ManyChatSubscriber struct {
	ID                      uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	ManyChatID              string         `gorm:"column:manychat_id;not null;uniqueIndex"`
	FirstName               *string        `gorm:"column:first_name"`
	LastName                *string        `gorm:"column:last_name"`
	Phone                   *string        `gorm:"column:phone;index"`
	Email                   *string        `gorm:"column:email"`
	Preferences             map[string]any `gorm:"column:preferences;type:jsonb;serializer:json"`
	DeliveryAddress         *string        `gorm:"column:delivery_address"`
	PreferredDeliveryTime   *string        `gorm:"column:preferred_delivery_time"`
	SpecialInstructions     *string        `gorm:"column:special_instructions"`
	NotificationPreferences map[string]any `gorm:"column:notification_preferences;type:jsonb;serializer:json"`
	Source                  string         `gorm:"column:source;not null;default:'manychat'"`
	SubscribedAt            time.Time      `gorm:"column:subscribed_at;not null"`
	CreatedAt               time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt               time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (ManyChatSubscriber) TableName() string { return "manychat_subscribers" }

func (s *ManyChatSubscriber) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
