package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/cornman/cornman-backend/internal/relay"
	"github.com/cornman/cornman-backend/pkg/enums"
	"github.com/cornman/cornman-backend/pkg/logger"
)

// Name scopes the idempotency keys written by this consumer.
const Name = "manychat-relay"

type relayer interface {
	Send(ctx context.Context, event string, data json.RawMessage) (relay.Result, error)
}

type idempotencyManager interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error)
}

// Consumer turns order status events into ManyChat notifications.
type Consumer struct {
	relay        relayer
	subscription *pubsub.Subscriber
	idempotency  idempotencyManager
	logg         *logger.Logger
}

// NewConsumer builds an order status consumer.
func NewConsumer(r relayer, subscription *pubsub.Subscriber, manager idempotencyManager, logg *logger.Logger) (*Consumer, error) {
	if r == nil {
		return nil, fmt.Errorf("relay service required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("order status subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		relay:        r,
		subscription: subscription,
		idempotency:  manager,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

// envelope is the optional wrapper order services publish around the flat payload.
type envelope struct {
	EventID string          `json:"eventId"`
	Data    json.RawMessage `json:"data"`
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := strings.TrimSpace(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	if _, err := enums.ParseRelayEvent(eventType); err != nil {
		c.logg.Info(logCtx, "skipping non-relay event")
		return processResult{ack: true}
	}

	eventID, payload := unwrap(msg)
	if eventID == "" {
		c.logg.Warn(logCtx, "order status event without id")
		return processResult{ack: true}
	}
	logCtx = c.logg.WithField(logCtx, "event_id", eventID)

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, Name, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	res, err := c.relay.Send(ctx, eventType, payload)
	if err != nil {
		c.logg.Error(logCtx, "order status payload rejected", err)
		return processResult{ack: true}
	}
	if !res.OK {
		c.logg.Warn(c.logg.WithField(logCtx, "reason", res.Reason), "manychat notification failed")
		return processResult{ack: true}
	}
	c.logg.Info(logCtx, "manychat notified")
	return processResult{ack: true}
}

func unwrap(msg *pubsub.Message) (string, json.RawMessage) {
	var env envelope
	if err := json.Unmarshal(msg.Data, &env); err == nil && len(env.Data) > 0 && strings.TrimSpace(env.EventID) != "" {
		return strings.TrimSpace(env.EventID), env.Data
	}
	return strings.TrimSpace(msg.ID), json.RawMessage(msg.Data)
}
