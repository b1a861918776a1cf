package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/cornman/cornman-backend/api/responses"
	"github.com/cornman/cornman-backend/api/validators"
	"github.com/cornman/cornman-backend/internal/relay"
	manychatwebhook "github.com/cornman/cornman-backend/internal/webhooks/manychat"
	pkgerrors "github.com/cornman/cornman-backend/pkg/errors"
	"github.com/cornman/cornman-backend/pkg/logger"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-ManyChat-Signature"

const maxWebhookBytes = 1 << 20

type ManyChatWebhookService interface {
	HandleEvent(ctx context.Context, event *manychatwebhook.Event) error
}

type manyChatWebhookGuard interface {
	CheckAndMark(ctx context.Context, deliveryID string) (bool, error)
	Delete(ctx context.Context, deliveryID string) error
}

// ManyChatRelay is the outbound side used by the send endpoint.
type ManyChatRelay interface {
	Send(ctx context.Context, event string, data json.RawMessage) (relay.Result, error)
}

// SignaturePolicy decides which inbound requests are trusted.
type SignaturePolicy struct {
	Secret string
	// AllowUnsigned accepts requests without verification when no secret is set.
	AllowUnsigned bool
}

func (p SignaturePolicy) verify(payload []byte, header string) error {
	secret := strings.TrimSpace(p.Secret)
	if secret == "" {
		if p.AllowUnsigned {
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook secret not configured")
	}
	if strings.TrimSpace(header) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "manychat signature missing")
	}
	if !validateManyChatSignature(payload, secret, header) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid manychat signature")
	}
	return nil
}

type receiveResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ManyChatReceive handles events ManyChat posts about subscribers and chat orders.
func ManyChatReceive(svc ManyChatWebhookService, policy SignaturePolicy, guard manyChatWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		if err := policy.verify(payload, r.Header.Get(SignatureHeader)); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var event manychatwebhook.Event
		if err := validators.DecodeJSONBytes(payload, &event); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		deliveryID := manychatwebhook.DeliveryID(payload)
		if guard != nil {
			alreadyProcessed, err := guard.CheckAndMark(ctx, deliveryID)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
				return
			}
			if alreadyProcessed {
				if logg != nil {
					logg.Info(logg.WithField(ctx, "delivery_id", deliveryID), "manychat.webhook_duplicate")
				}
				responses.WriteSuccess(w, receiveResponse{Success: true, Message: "Webhook already processed"})
				return
			}
		}

		if err := svc.HandleEvent(ctx, &event); err != nil {
			if guard != nil {
				if releaseErr := guard.Delete(ctx, deliveryID); releaseErr != nil && logg != nil {
					logg.Error(logg.WithField(ctx, "delivery_id", deliveryID), "manychat.webhook_guard_release_failed", releaseErr)
				}
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, receiveResponse{Success: true, Message: "Webhook processed successfully"})
	}
}

type sendRequest struct {
	Event string          `json:"event" validate:"required"`
	Data  json.RawMessage `json:"data" validate:"required"`
}

// ManyChatSend relays an order lifecycle event to ManyChat.
func ManyChatSend(svc ManyChatRelay, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "relay unavailable"))
			return
		}

		var req sendRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		res, err := svc.Send(ctx, req.Event, req.Data)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if !res.OK {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeDependency, "failed to send webhook to manychat").
				WithDetails(map[string]string{"reason": res.Reason}))
			return
		}

		responses.WriteSuccess(w, receiveResponse{Success: true, Message: "Webhook sent to ManyChat successfully"})
	}
}

func validateManyChatSignature(payload []byte, secret, header string) bool {
	if header == "" || secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(header))))
}
