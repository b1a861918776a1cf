package enums

import "fmt"

// ManyChatEvent is an inbound webhook event emitted by ManyChat.
type ManyChatEvent string

const (
	ManyChatEventNewSubscriber  ManyChatEvent = "new_subscriber"
	ManyChatEventProfileUpdated ManyChatEvent = "profile_updated"
	ManyChatEventOrderPlaced    ManyChatEvent = "order_placed"
)

var validManyChatEvents = []ManyChatEvent{
	ManyChatEventNewSubscriber,
	ManyChatEventProfileUpdated,
	ManyChatEventOrderPlaced,
}

// String implements fmt.Stringer.
func (e ManyChatEvent) String() string {
	return string(e)
}

// IsValid reports whether the value is a known ManyChatEvent.
func (e ManyChatEvent) IsValid() bool {
	for _, candidate := range validManyChatEvents {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseManyChatEvent converts raw input into a ManyChatEvent.
func ParseManyChatEvent(value string) (ManyChatEvent, error) {
	for _, candidate := range validManyChatEvents {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid manychat event %q", value)
}
