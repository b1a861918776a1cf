package cart

import (
	cartsvc "github.com/cornman/cornman-backend/internal/cart"
	"github.com/shopspring/decimal"
)

type lineItemResponse struct {
	ID           string           `json:"id"`
	ProductID    string           `json:"product_id"`
	VariantID    *string          `json:"variant_id,omitempty"`
	Name         string           `json:"name"`
	Image        string           `json:"image"`
	Weight       string           `json:"weight,omitempty"`
	Price        decimal.Decimal  `json:"price"`
	ComparePrice *decimal.Decimal `json:"compare_price,omitempty"`
	Quantity     int              `json:"quantity"`
	Attributes   string           `json:"attributes,omitempty"`
	LineTotal    decimal.Decimal  `json:"line_total"`
}

type cartResponse struct {
	Items      []lineItemResponse `json:"items"`
	IsOpen     bool               `json:"is_open"`
	TotalItems int                `json:"total_items"`
	Subtotal   decimal.Decimal    `json:"subtotal"`
}

func newCartResponse(state cartsvc.State) cartResponse {
	items := make([]lineItemResponse, 0, len(state.Items))
	for _, item := range state.Items {
		items = append(items, lineItemResponse{
			ID:           item.ID,
			ProductID:    item.ProductID,
			VariantID:    item.VariantID,
			Name:         item.Name,
			Image:        item.Image,
			Weight:       item.Weight,
			Price:        item.Price,
			ComparePrice: item.ComparePrice,
			Quantity:     item.Quantity,
			Attributes:   item.Attributes,
			LineTotal:    item.LineTotal(),
		})
	}
	return cartResponse{
		Items:      items,
		IsOpen:     state.IsOpen,
		TotalItems: state.TotalItems,
		Subtotal:   state.Subtotal,
	}
}
