package cart

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cornman/cornman-backend/api/middleware"
	"github.com/cornman/cornman-backend/api/responses"
	"github.com/cornman/cornman-backend/api/validators"
	cartsvc "github.com/cornman/cornman-backend/internal/cart"
	pkgerrors "github.com/cornman/cornman-backend/pkg/errors"
	"github.com/cornman/cornman-backend/pkg/logger"
)

// Sessions resolves the cart store for a session. *cart.Registry satisfies it.
type Sessions interface {
	Get(ctx context.Context, sessionID string) (*cartsvc.Store, error)
}

// CartFetch returns the caller's cart.
func CartFetch(sessions Sessions, logg *logger.Logger) http.HandlerFunc {
	return withStore(sessions, logg, func(w http.ResponseWriter, r *http.Request, store *cartsvc.Store) {
		responses.WriteSuccess(w, newCartResponse(store.State()))
	})
}

// CartAddItem adds a product line, merging with an existing line for the same variant.
func CartAddItem(sessions Sessions, logg *logger.Logger) http.HandlerFunc {
	return withStore(sessions, logg, func(w http.ResponseWriter, r *http.Request, store *cartsvc.Store) {
		var payload addItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		state, err := store.AddItem(r.Context(), toLineItemInput(payload))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newCartResponse(state))
	})
}

// CartUpdateQuantity sets a line's quantity; zero or less removes it.
func CartUpdateQuantity(sessions Sessions, logg *logger.Logger) http.HandlerFunc {
	return withStore(sessions, logg, func(w http.ResponseWriter, r *http.Request, store *cartsvc.Store) {
		var payload updateQuantityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		state, err := store.UpdateQuantity(r.Context(), chi.URLParam(r, "itemId"), *payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(state))
	})
}

// CartRemoveItem drops a line. Unknown ids leave the cart unchanged.
func CartRemoveItem(sessions Sessions, logg *logger.Logger) http.HandlerFunc {
	return withStore(sessions, logg, func(w http.ResponseWriter, r *http.Request, store *cartsvc.Store) {
		responses.WriteSuccess(w, newCartResponse(store.RemoveItem(r.Context(), chi.URLParam(r, "itemId"))))
	})
}

func CartClear(sessions Sessions, logg *logger.Logger) http.HandlerFunc {
	return withStore(sessions, logg, func(w http.ResponseWriter, r *http.Request, store *cartsvc.Store) {
		responses.WriteSuccess(w, newCartResponse(store.ClearCart(r.Context())))
	})
}

func CartOpen(sessions Sessions, logg *logger.Logger) http.HandlerFunc {
	return withStore(sessions, logg, func(w http.ResponseWriter, r *http.Request, store *cartsvc.Store) {
		responses.WriteSuccess(w, newCartResponse(store.OpenCart(r.Context())))
	})
}

func CartClose(sessions Sessions, logg *logger.Logger) http.HandlerFunc {
	return withStore(sessions, logg, func(w http.ResponseWriter, r *http.Request, store *cartsvc.Store) {
		responses.WriteSuccess(w, newCartResponse(store.CloseCart(r.Context())))
	})
}

func CartToggle(sessions Sessions, logg *logger.Logger) http.HandlerFunc {
	return withStore(sessions, logg, func(w http.ResponseWriter, r *http.Request, store *cartsvc.Store) {
		responses.WriteSuccess(w, newCartResponse(store.ToggleCart(r.Context())))
	})
}

type storeHandler func(w http.ResponseWriter, r *http.Request, store *cartsvc.Store)

func withStore(sessions Sessions, logg *logger.Logger, next storeHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sessions == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		store, err := sessions.Get(r.Context(), middleware.CartSessionFromContext(r.Context()))
		if err != nil {
			if errors.Is(err, cartsvc.ErrInvalidSession) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cart session"))
				return
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "open cart"))
			return
		}
		next(w, r, store)
	}
}
