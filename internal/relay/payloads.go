package relay

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// OrderItem is one line of an order summary.
type OrderItem struct {
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// OrderDetails summarises an order for the thank-you flow.
type OrderDetails struct {
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	Items           []OrderItem     `json:"items"`
	DeliveryAddress string          `json:"deliveryAddress"`
}

// OrderConfirmed is sent once payment clears.
type OrderConfirmed struct {
	OrderID           string       `json:"orderId" validate:"required"`
	CustomerID        string       `json:"customerId" validate:"required"`
	CustomerName      string       `json:"customerName"`
	CustomerPhone     string       `json:"customerPhone"`
	OrderDetails      OrderDetails `json:"orderDetails"`
	EstimatedDelivery string       `json:"estimatedDelivery,omitempty"`
}

// PaymentFailed asks the customer to retry payment.
type PaymentFailed struct {
	OrderID       string `json:"orderId" validate:"required"`
	CustomerID    string `json:"customerId" validate:"required"`
	CustomerName  string `json:"customerName"`
	CustomerPhone string `json:"customerPhone"`
	FailureReason string `json:"failureReason"`
	RetryURL      string `json:"retryUrl"`
}

// DeliveryPerson is the rider assigned to an order.
type DeliveryPerson struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// OutForDelivery carries tracking details once the rider leaves.
type OutForDelivery struct {
	OrderID          string         `json:"orderId" validate:"required"`
	CustomerID       string         `json:"customerId" validate:"required"`
	CustomerName     string         `json:"customerName"`
	CustomerPhone    string         `json:"customerPhone"`
	DeliveryPerson   DeliveryPerson `json:"deliveryPerson"`
	TrackingLink     string         `json:"trackingLink"`
	EstimatedArrival string         `json:"estimatedArrival"`
}

// Delivered requests a review and offers a discount on the next order.
type Delivered struct {
	OrderID        string          `json:"orderId" validate:"required"`
	CustomerID     string          `json:"customerId" validate:"required"`
	CustomerName   string          `json:"customerName"`
	CustomerPhone  string          `json:"customerPhone"`
	DiscountCode   string          `json:"discountCode"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
}

// amount renders a decimal as a JSON number so flows can do arithmetic on it.
func amount(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}
