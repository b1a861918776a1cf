package relay

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/cornman/cornman-backend/pkg/enums"
	pkgerrors "github.com/cornman/cornman-backend/pkg/errors"
	"github.com/cornman/cornman-backend/pkg/logger"
	"github.com/cornman/cornman-backend/pkg/manychat"
	"github.com/cornman/cornman-backend/pkg/metrics"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Result reports whether a notification reached ManyChat. It is never retried.
type Result struct {
	OK     bool   `json:"success"`
	Reason string `json:"reason,omitempty"`
}

func Success() Result {
	return Result{OK: true}
}

func Failure(reason string) Result {
	return Result{Reason: reason}
}

// FlowSender triggers a ManyChat flow. *manychat.Client satisfies it.
type FlowSender interface {
	SendFlow(ctx context.Context, req manychat.SendFlowRequest) (json.RawMessage, error)
}

// SubscriberLookup maps a storefront customer to a ManyChat subscriber id. An empty id
// means the customer is unknown and the customer id is used as is.
type SubscriberLookup interface {
	SubscriberIDFor(ctx context.Context, customerID, phone string) (string, error)
}

type ServiceParams struct {
	// Client is nil when no ManyChat API key is configured; every dispatch then fails.
	Client      FlowSender
	Flows       manychat.FlowIDs
	Storefront  Storefront
	Subscribers SubscriberLookup
	Logger      *logger.Logger
	Metrics     *metrics.RelayMetrics
	Now         func() time.Time
}

// Service forwards order lifecycle events to ManyChat flows.
type Service struct {
	client      FlowSender
	flows       manychat.FlowIDs
	storefront  Storefront
	subscribers SubscriberLookup
	logg        *logger.Logger
	metrics     *metrics.RelayMetrics
	now         func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &Service{
		client:      params.Client,
		flows:       params.Flows,
		storefront:  params.Storefront,
		subscribers: params.Subscribers,
		logg:        params.Logger,
		metrics:     params.Metrics,
		now:         params.Now,
	}, nil
}

// Send decodes a raw event payload and dispatches it. The error is non-nil only when the
// input itself is rejected: an unknown event (CodeUnsupported) or a malformed payload
// (CodeValidation). Delivery problems are reported through the Result.
func (s *Service) Send(ctx context.Context, event string, data json.RawMessage) (Result, error) {
	kind, err := enums.ParseRelayEvent(strings.TrimSpace(event))
	if err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeUnsupported, err, "unhandled event type").
			WithDetails(map[string]any{"event": event})
	}

	switch kind {
	case enums.RelayEventOrderConfirmed:
		var p OrderConfirmed
		if err := decode(data, &p); err != nil {
			return Result{}, err
		}
		return s.OrderConfirmed(ctx, p), nil
	case enums.RelayEventPaymentFailed:
		var p PaymentFailed
		if err := decode(data, &p); err != nil {
			return Result{}, err
		}
		return s.PaymentFailed(ctx, p), nil
	case enums.RelayEventOutForDelivery:
		var p OutForDelivery
		if err := decode(data, &p); err != nil {
			return Result{}, err
		}
		return s.OutForDelivery(ctx, p), nil
	default:
		var p Delivered
		if err := decode(data, &p); err != nil {
			return Result{}, err
		}
		return s.Delivered(ctx, p), nil
	}
}

// OrderConfirmed triggers the thank-you flow.
func (s *Service) OrderConfirmed(ctx context.Context, p OrderConfirmed) Result {
	if err := validate.Struct(p); err != nil {
		return s.reject(ctx, enums.RelayEventOrderConfirmed, err)
	}
	flow, data := orderConfirmedFlow(p)
	return s.dispatch(ctx, enums.RelayEventOrderConfirmed, p.OrderID, p.CustomerID, p.CustomerPhone, flow, data)
}

// PaymentFailed triggers the payment retry sequence.
func (s *Service) PaymentFailed(ctx context.Context, p PaymentFailed) Result {
	if err := validate.Struct(p); err != nil {
		return s.reject(ctx, enums.RelayEventPaymentFailed, err)
	}
	flow, data := paymentFailedFlow(p, s.storefront)
	return s.dispatch(ctx, enums.RelayEventPaymentFailed, p.OrderID, p.CustomerID, p.CustomerPhone, flow, data)
}

// OutForDelivery sends rider and tracking details.
func (s *Service) OutForDelivery(ctx context.Context, p OutForDelivery) Result {
	if err := validate.Struct(p); err != nil {
		return s.reject(ctx, enums.RelayEventOutForDelivery, err)
	}
	flow, data := outForDeliveryFlow(p)
	return s.dispatch(ctx, enums.RelayEventOutForDelivery, p.OrderID, p.CustomerID, p.CustomerPhone, flow, data)
}

// Delivered requests a review and offers the next-order discount.
func (s *Service) Delivered(ctx context.Context, p Delivered) Result {
	if err := validate.Struct(p); err != nil {
		return s.reject(ctx, enums.RelayEventDelivered, err)
	}
	flow, data := deliveredFlow(p, s.storefront)
	return s.dispatch(ctx, enums.RelayEventDelivered, p.OrderID, p.CustomerID, p.CustomerPhone, flow, data)
}

func (s *Service) dispatch(ctx context.Context, event enums.RelayEvent, orderID, customerID, phone, flowName string, data map[string]any) Result {
	start := s.now()
	logCtx := s.logg.WithFields(s.logg.WithEvent(ctx, event.String()), map[string]any{
		"order_id": orderID,
		"flow":     flowName,
	})

	if s.client == nil {
		s.observe(event, metrics.OutcomeSkipped, start)
		s.logg.Warn(logCtx, "relay.api_key_missing")
		return Failure("manychat api key not configured")
	}
	flowID := s.flows.Lookup(flowName)
	if flowID == "" {
		s.observe(event, metrics.OutcomeSkipped, start)
		s.logg.Warn(logCtx, "relay.flow_id_missing")
		return Failure("flow id not configured for " + flowName)
	}

	subscriberID := s.resolveSubscriber(logCtx, customerID, phone)
	if _, err := s.client.SendFlow(ctx, manychat.SendFlowRequest{
		FlowID:       flowID,
		SubscriberID: subscriberID,
		Data:         data,
	}); err != nil {
		s.observe(event, metrics.OutcomeFailure, start)
		s.logg.Error(logCtx, "relay.dispatch_failed", err)
		return Failure(err.Error())
	}

	s.observe(event, metrics.OutcomeSuccess, start)
	s.logg.Info(logCtx, "relay.dispatched")
	return Success()
}

func (s *Service) resolveSubscriber(ctx context.Context, customerID, phone string) string {
	if s.subscribers == nil {
		return customerID
	}
	id, err := s.subscribers.SubscriberIDFor(ctx, customerID, phone)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "relay.subscriber_lookup_failed")
		return customerID
	}
	if strings.TrimSpace(id) == "" {
		return customerID
	}
	return id
}

func (s *Service) reject(ctx context.Context, event enums.RelayEvent, err error) Result {
	s.observe(event, metrics.OutcomeFailure, s.now())
	s.logg.Warn(s.logg.WithField(s.logg.WithEvent(ctx, event.String()), "error", err.Error()), "relay.invalid_payload")
	return Failure("invalid payload: " + err.Error())
}

func (s *Service) observe(event enums.RelayEvent, outcome string, start time.Time) {
	s.metrics.ObserveDispatch(event.String(), outcome, s.now().Sub(start))
}

func decode(data json.RawMessage, dest any) error {
	if len(data) == 0 || string(data) == "null" {
		return pkgerrors.New(pkgerrors.CodeValidation, "event data is required")
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid event data")
	}
	if err := validate.Struct(dest); err != nil {
		var verrs validator.ValidationErrors
		details := map[string]string{}
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				details[fe.Field()] = fe.Tag()
			}
		}
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid event data").WithDetails(details)
	}
	return nil
}
