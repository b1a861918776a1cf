package manychatwebhook

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/cornman/cornman-backend/internal/subscribers"
	"github.com/cornman/cornman-backend/pkg/db"
	"github.com/cornman/cornman-backend/pkg/db/models"
	"github.com/cornman/cornman-backend/pkg/enums"
	pkgerrors "github.com/cornman/cornman-backend/pkg/errors"
	"github.com/cornman/cornman-backend/pkg/logger"
	"github.com/cornman/cornman-backend/pkg/manychat"
	"github.com/cornman/cornman-backend/pkg/metrics"
	"github.com/shopspring/decimal"
)

const subscriberSource = "manychat"

// Custom fields written on the ManyChat subscriber when a chat order is recorded.
const (
	fieldLastOrderID    = "last_order_id"
	fieldLastOrderTotal = "last_order_total"
)

type flowSender interface {
	SendFlow(ctx context.Context, req manychat.SendFlowRequest) (json.RawMessage, error)
}

type fieldWriter interface {
	SetCustomField(ctx context.Context, subscriberID, field string, value any) error
}

type ServiceParams struct {
	Repo subscribers.Repository
	// Acker sends the acknowledgement flows. Nil disables acknowledgements.
	Acker flowSender
	// Fields tags subscribers with their latest order. Nil disables it.
	Fields  fieldWriter
	Flows   manychat.FlowIDs
	Logger  *logger.Logger
	Metrics *metrics.RelayMetrics
	Now     func() time.Time
}

// Service applies inbound ManyChat events to the local subscriber tables.
type Service struct {
	repo    subscribers.Repository
	acker   flowSender
	fields  fieldWriter
	flows   manychat.FlowIDs
	logg    *logger.Logger
	metrics *metrics.RelayMetrics
	now     func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscriber repo required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &Service{
		repo:    params.Repo,
		acker:   params.Acker,
		fields:  params.Fields,
		flows:   params.Flows,
		logg:    params.Logger,
		metrics: params.Metrics,
		now:     params.Now,
	}, nil
}

// Event is the body ManyChat posts to the receive endpoint.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type NewSubscriberData struct {
	SubscriberID externalID     `json:"subscriber_id"`
	FirstName    *string        `json:"first_name"`
	LastName     *string        `json:"last_name"`
	Phone        *string        `json:"phone"`
	Email        *string        `json:"email"`
	CustomFields map[string]any `json:"custom_fields"`
}

type ProfileUpdatedData struct {
	SubscriberID externalID `json:"subscriber_id"`
	CustomFields struct {
		DeliveryAddress         *string        `json:"delivery_address"`
		PreferredDeliveryTime   *string        `json:"preferred_delivery_time"`
		SpecialInstructions     *string        `json:"special_instructions"`
		NotificationPreferences map[string]any `json:"notification_preferences"`
	} `json:"custom_fields"`
}

type OrderPlacedData struct {
	SubscriberID externalID `json:"subscriber_id"`
	OrderData    *struct {
		OrderID             externalID                 `json:"order_id"`
		Items               []models.ManyChatOrderItem `json:"items"`
		TotalAmount         decimal.Decimal            `json:"total_amount"`
		DeliveryAddress     *string                    `json:"delivery_address"`
		SpecialInstructions *string                    `json:"special_instructions"`
	} `json:"order_data"`
}

// HandleEvent applies one webhook event. Unknown events are logged and ignored.
func (s *Service) HandleEvent(ctx context.Context, event *Event) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "manychat event required")
	}
	name := strings.TrimSpace(event.Event)
	logCtx := s.logg.WithEvent(ctx, name)

	kind, err := enums.ParseManyChatEvent(name)
	if err != nil {
		s.metrics.IncInbound(name, metrics.OutcomeSkipped)
		s.logg.Info(logCtx, "manychat.event_unhandled")
		return nil
	}

	switch kind {
	case enums.ManyChatEventNewSubscriber:
		err = s.newSubscriber(logCtx, event.Data)
	case enums.ManyChatEventProfileUpdated:
		err = s.profileUpdated(logCtx, event.Data)
	case enums.ManyChatEventOrderPlaced:
		err = s.orderPlaced(logCtx, event.Data)
	}
	if err != nil {
		s.metrics.IncInbound(name, metrics.OutcomeFailure)
		return err
	}
	s.metrics.IncInbound(name, metrics.OutcomeSuccess)
	return nil
}

func (s *Service) newSubscriber(ctx context.Context, raw json.RawMessage) error {
	var data NewSubscriberData
	if err := decodeData(raw, &data); err != nil {
		return err
	}
	subscriberID, err := requireSubscriber(string(data.SubscriberID))
	if err != nil {
		return err
	}

	prefs := data.CustomFields
	if prefs == nil {
		prefs = map[string]any{}
	}
	sub := &models.ManyChatSubscriber{
		ManyChatID:   subscriberID,
		FirstName:    data.FirstName,
		LastName:     data.LastName,
		Phone:        data.Phone,
		Email:        data.Email,
		Preferences:  prefs,
		Source:       subscriberSource,
		SubscribedAt: s.now().UTC(),
	}
	if err := s.repo.UpsertSubscriber(ctx, sub); err != nil {
		return persistError(err, "upsert subscriber")
	}
	s.logg.Info(s.logg.WithField(ctx, "subscriber_id", subscriberID), "manychat.subscriber_upserted")

	s.acknowledge(ctx, manychat.FlowNewSubscriberWelcome, subscriberID, map[string]any{
		"subscriber_id": subscriberID,
		"customerData": map[string]any{
			"manyChatId":   subscriberID,
			"firstName":    data.FirstName,
			"lastName":     data.LastName,
			"phone":        data.Phone,
			"email":        data.Email,
			"preferences":  prefs,
			"source":       subscriberSource,
			"subscribedAt": sub.SubscribedAt.Format(time.RFC3339),
		},
	})
	return nil
}

func (s *Service) profileUpdated(ctx context.Context, raw json.RawMessage) error {
	var data ProfileUpdatedData
	if err := decodeData(raw, &data); err != nil {
		return err
	}
	subscriberID, err := requireSubscriber(string(data.SubscriberID))
	if err != nil {
		return err
	}

	prefs := subscribers.Preferences{
		DeliveryAddress:         data.CustomFields.DeliveryAddress,
		PreferredDeliveryTime:   data.CustomFields.PreferredDeliveryTime,
		SpecialInstructions:     data.CustomFields.SpecialInstructions,
		NotificationPreferences: data.CustomFields.NotificationPreferences,
	}
	if err := s.repo.UpsertPreferences(ctx, subscriberID, prefs, s.now().UTC()); err != nil {
		return persistError(err, "update subscriber preferences")
	}
	s.logg.Info(s.logg.WithField(ctx, "subscriber_id", subscriberID), "manychat.preferences_updated")

	s.acknowledge(ctx, manychat.FlowProfileUpdatedConfirmation, subscriberID, map[string]any{
		"subscriber_id": subscriberID,
		"preferences": map[string]any{
			"deliveryAddress":         prefs.DeliveryAddress,
			"deliveryTime":            prefs.PreferredDeliveryTime,
			"specialInstructions":     prefs.SpecialInstructions,
			"notificationPreferences": prefs.NotificationPreferences,
		},
	})
	return nil
}

func (s *Service) orderPlaced(ctx context.Context, raw json.RawMessage) error {
	var data OrderPlacedData
	if err := decodeData(raw, &data); err != nil {
		return err
	}
	subscriberID, err := requireSubscriber(string(data.SubscriberID))
	if err != nil {
		return err
	}
	if data.OrderData == nil || strings.TrimSpace(string(data.OrderData.OrderID)) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "order_data.order_id is required").
			WithDetails(map[string]string{"order_data.order_id": "is required"})
	}
	if data.OrderData.TotalAmount.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "order total must not be negative").
			WithDetails(map[string]string{"order_data.total_amount": "must not be negative"})
	}

	items := data.OrderData.Items
	if items == nil {
		items = []models.ManyChatOrderItem{}
	}
	order := &models.ManyChatOrder{
		ManyChatOrderID:     strings.TrimSpace(string(data.OrderData.OrderID)),
		SubscriberID:        subscriberID,
		Items:               items,
		TotalAmount:         data.OrderData.TotalAmount,
		DeliveryAddress:     data.OrderData.DeliveryAddress,
		SpecialInstructions: data.OrderData.SpecialInstructions,
		Status:              "received",
		OrderDate:           s.now().UTC(),
	}
	if err := s.repo.UpsertOrder(ctx, order); err != nil {
		return persistError(err, "upsert manychat order")
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"subscriber_id":     subscriberID,
		"manychat_order_id": order.ManyChatOrderID,
	}), "manychat.order_recorded")

	s.tagLastOrder(ctx, subscriberID, order)

	s.acknowledge(ctx, manychat.FlowOrderConfirmation, subscriberID, map[string]any{
		"subscriber_id": subscriberID,
		"orderInfo": map[string]any{
			"manyChatOrderId":     order.ManyChatOrderID,
			"customerId":          subscriberID,
			"items":               order.Items,
			"totalAmount":         json.Number(order.TotalAmount.String()),
			"deliveryAddress":     order.DeliveryAddress,
			"specialInstructions": order.SpecialInstructions,
			"orderDate":           order.OrderDate.Format(time.RFC3339),
		},
	})
	return nil
}

// acknowledge sends the confirmation flow back to the subscriber. Failures are logged only.
func (s *Service) acknowledge(ctx context.Context, flowName, subscriberID string, data map[string]any) {
	logCtx := s.logg.WithField(ctx, "flow", flowName)
	if s.acker == nil {
		s.logg.Debug(logCtx, "manychat.ack_skipped_no_client")
		return
	}
	flowID := s.flows.Lookup(flowName)
	if flowID == "" {
		s.logg.Debug(logCtx, "manychat.ack_skipped_no_flow")
		return
	}
	if _, err := s.acker.SendFlow(ctx, manychat.SendFlowRequest{
		FlowID:       flowID,
		SubscriberID: subscriberID,
		Data:         data,
	}); err != nil {
		s.logg.Error(logCtx, "manychat.ack_failed", err)
		return
	}
	s.logg.Info(logCtx, "manychat.ack_sent")
}

// tagLastOrder mirrors the recorded order onto the subscriber's custom fields so ManyChat
// flows can reference it. Failures are logged only.
func (s *Service) tagLastOrder(ctx context.Context, subscriberID string, order *models.ManyChatOrder) {
	if s.fields == nil {
		return
	}
	values := []struct {
		field string
		value any
	}{
		{fieldLastOrderID, order.ManyChatOrderID},
		{fieldLastOrderTotal, order.TotalAmount.InexactFloat64()},
	}
	for _, v := range values {
		if err := s.fields.SetCustomField(ctx, subscriberID, v.field, v.value); err != nil {
			s.logg.Error(s.logg.WithField(ctx, "field", v.field), "manychat.custom_field_failed", err)
		}
	}
}

// externalID accepts ids ManyChat sends either as JSON strings or as numbers.
type externalID string

func (e *externalID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*e = externalID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*e = externalID(n.String())
	return nil
}

func decodeData(raw json.RawMessage, dest any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return pkgerrors.New(pkgerrors.CodeValidation, "event data is required")
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid event data")
	}
	return nil
}

func requireSubscriber(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "subscriber_id is required").
			WithDetails(map[string]string{"subscriber_id": "is required"})
	}
	return id, nil
}

func persistError(err error, msg string) error {
	if db.IsUniqueViolation(err, "") {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, msg)
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, msg)
}
