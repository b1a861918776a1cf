package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ManyChatOrderItem is one line of an order placed inside a ManyChat conversation.
type ManyChatOrderItem struct {
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// ManyChatOrder stores an order received from ManyChat before it is reconciled with the catalog.
type ManyChatOrder struct {
	ID                  uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	ManyChatOrderID     string              `gorm:"column:manychat_order_id;not null;uniqueIndex"`
	SubscriberID        string              `gorm:"column:subscriber_id;not null;index"`
	Items               []ManyChatOrderItem `gorm:"column:items;type:jsonb;serializer:json"`
	TotalAmount         decimal.Decimal     `gorm:"column:total_amount;type:numeric(12,2);not null"`
	DeliveryAddress     *string             `gorm:"column:delivery_address"`
	SpecialInstructions *string             `gorm:"column:special_instructions"`
	Status              string              `gorm:"column:status;not null;default:'received'"`
	OrderDate           time.Time           `gorm:"column:order_date;not null"`
	CreatedAt           time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (ManyChatOrder) TableName() string { return "manychat_orders" }

func (o *ManyChatOrder) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
