package cart

import (
	cartsvc "github.com/cornman/cornman-backend/internal/cart"
	"github.com/shopspring/decimal"
)

type addItemRequest struct {
	ProductID    string           `json:"product_id" validate:"required"`
	VariantID    *string          `json:"variant_id"`
	Name         string           `json:"name"`
	Image        string           `json:"image"`
	Weight       string           `json:"weight"`
	Price        decimal.Decimal  `json:"price"`
	ComparePrice *decimal.Decimal `json:"compare_price"`
	Quantity     int              `json:"quantity" validate:"gt=0,lte=999"`
	Attributes   string           `json:"attributes"`
}

type updateQuantityRequest struct {
	// Quantity at or below zero removes the line.
	Quantity *int `json:"quantity" validate:"required,lte=999"`
}

func toLineItemInput(payload addItemRequest) cartsvc.LineItemInput {
	return cartsvc.LineItemInput{
		ProductID:    payload.ProductID,
		VariantID:    payload.VariantID,
		Name:         payload.Name,
		Image:        payload.Image,
		Weight:       payload.Weight,
		Price:        payload.Price,
		ComparePrice: payload.ComparePrice,
		Quantity:     payload.Quantity,
		Attributes:   payload.Attributes,
	}
}
