package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/cornman/cornman-backend/api/validators"
	"github.com/cornman/cornman-backend/pkg/logger"
)

// CartSessionHeader identifies the storefront cart a request acts on.
const CartSessionHeader = "X-Cart-Session"

const maxCartSessionLen = 128

// CartSession resolves the caller's cart session, minting one when the header is absent.
// The resolved id is echoed back so the storefront can keep using it.
func CartSession(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := validators.SanitizeString(r.Header.Get(CartSessionHeader), maxCartSessionLen)
			if session == "" {
				session = uuid.NewString()
			}

			w.Header().Set(CartSessionHeader, session)

			ctx := WithCartSession(r.Context(), session)
			if logg != nil {
				ctx = logg.WithCartSession(ctx, session)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
