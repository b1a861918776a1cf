package relay

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/cornman/cornman-backend/pkg/manychat"
)

// Storefront holds the public values embedded in flow data.
type Storefront struct {
	BaseURL           string
	SupportContact    string
	DiscountValidDays int
}

func (s Storefront) link(path string) string {
	return strings.TrimRight(s.BaseURL, "/") + path
}

func orderConfirmedFlow(p OrderConfirmed) (string, map[string]any) {
	names := make([]string, 0, len(p.OrderDetails.Items))
	for _, item := range p.OrderDetails.Items {
		names = append(names, item.Name)
	}
	return manychat.FlowThankYou, map[string]any{
		"customer_name":      p.CustomerName,
		"order_id":           p.OrderID,
		"order_total":        amount(p.OrderDetails.TotalAmount),
		"estimated_delivery": p.EstimatedDelivery,
		"items":              strings.Join(names, ", "),
		"delivery_address":   p.OrderDetails.DeliveryAddress,
	}
}

func paymentFailedFlow(p PaymentFailed, sf Storefront) (string, map[string]any) {
	return manychat.FlowPaymentRetry, map[string]any{
		"customer_name":     p.CustomerName,
		"order_id":          p.OrderID,
		"failure_reason":    p.FailureReason,
		"retry_payment_url": p.RetryURL,
		"support_contact":   sf.SupportContact,
	}
}

func outForDeliveryFlow(p OutForDelivery) (string, map[string]any) {
	return manychat.FlowOutForDelivery, map[string]any{
		"customer_name":         p.CustomerName,
		"order_id":              p.OrderID,
		"delivery_person_name":  p.DeliveryPerson.Name,
		"delivery_person_phone": p.DeliveryPerson.Phone,
		"tracking_link":         p.TrackingLink,
		"estimated_arrival":     p.EstimatedArrival,
		"live_tracking_enabled": true,
	}
}

func deliveredFlow(p Delivered, sf Storefront) (string, map[string]any) {
	return manychat.FlowDelivered, map[string]any{
		"customer_name":       p.CustomerName,
		"order_id":            p.OrderID,
		"discount_code":       p.DiscountCode,
		"discount_amount":     amount(p.DiscountAmount),
		"discount_valid_days": sf.DiscountValidDays,
		"review_link":         sf.link(fmt.Sprintf("/review/%s", url.PathEscape(p.OrderID))),
		"next_order_link":     sf.link("/products"),
	}
}
