package enums

import "fmt"

// RelayEvent is an order lifecycle transition forwarded to ManyChat.
type RelayEvent string

const (
	RelayEventOrderConfirmed RelayEvent = "order_confirmed"
	RelayEventPaymentFailed  RelayEvent = "payment_failed"
	RelayEventOutForDelivery RelayEvent = "out_for_delivery"
	RelayEventDelivered      RelayEvent = "delivered"
)

var validRelayEvents = []RelayEvent{
	RelayEventOrderConfirmed,
	RelayEventPaymentFailed,
	RelayEventOutForDelivery,
	RelayEventDelivered,
}

// String implements fmt.Stringer.
func (e RelayEvent) String() string {
	return string(e)
}

// IsValid reports whether the value is a known RelayEvent.
func (e RelayEvent) IsValid() bool {
	for _, candidate := range validRelayEvents {
		if candidate == e {
			return true
		}
	}
	return false
}

// RelayEvents lists every supported relay event.
func RelayEvents() []RelayEvent {
	out := make([]RelayEvent, len(validRelayEvents))
	copy(out, validRelayEvents)
	return out
}

// ParseRelayEvent converts raw input into a RelayEvent.
func ParseRelayEvent(value string) (RelayEvent, error) {
	for _, candidate := range validRelayEvents {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid relay event %q", value)
}
