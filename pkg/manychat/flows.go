package manychat

import (
	"context"
	"sort"
	"strings"

	"github.com/cornman/cornman-backend/pkg/config"
)

// Flow names used by the backend. Each resolves to a ManyChat flow id through configuration.
const (
	FlowThankYou       = "thank_you_flow"
	FlowPaymentRetry   = "payment_retry_flow"
	FlowOutForDelivery = "out_for_delivery_flow"
	FlowDelivered      = "delivered_flow"

	FlowNewSubscriberWelcome       = "new_subscriber_welcome"
	FlowProfileUpdatedConfirmation = "profile_updated_confirmation"
	FlowOrderConfirmation          = "order_confirmation"
)

// FlowIDs maps flow names to configured ManyChat flow ids.
type FlowIDs map[string]string

// FlowIDsFromConfig reads every known flow id from configuration. Unset ids stay empty.
func FlowIDsFromConfig(cfg config.ManyChatConfig) FlowIDs {
	return FlowIDs{
		FlowThankYou:                   strings.TrimSpace(cfg.FlowThankYou),
		FlowPaymentRetry:               strings.TrimSpace(cfg.FlowPaymentRetry),
		FlowOutForDelivery:             strings.TrimSpace(cfg.FlowOutForDelivery),
		FlowDelivered:                  strings.TrimSpace(cfg.FlowDelivered),
		FlowNewSubscriberWelcome:       strings.TrimSpace(cfg.FlowWelcome),
		FlowProfileUpdatedConfirmation: strings.TrimSpace(cfg.FlowProfileUpdated),
		FlowOrderConfirmation:          strings.TrimSpace(cfg.FlowOrderConfirmation),
	}
}

// Lookup returns the flow id for name, or "" when it is not configured.
func (f FlowIDs) Lookup(name string) string {
	if f == nil {
		return ""
	}
	return f[name]
}

type flowInfoer interface {
	FlowInfo(ctx context.Context, flowID string) (*Flow, error)
}

// Verify asks ManyChat about every configured flow and returns the lookup error per flow
// name. Unconfigured flows are not checked.
func (f FlowIDs) Verify(ctx context.Context, client flowInfoer) map[string]error {
	failed := map[string]error{}
	if client == nil {
		return failed
	}
	names := make([]string, 0, len(f))
	for name, id := range f {
		if id != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if _, err := client.FlowInfo(ctx, f[name]); err != nil {
			failed[name] = err
		}
	}
	return failed
}
