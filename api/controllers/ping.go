package controllers

import (
	"net/http"

	"github.com/cornman/cornman-backend/api/middleware"
	"github.com/cornman/cornman-backend/api/responses"
)

func PublicPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"scope": "public", "status": "ok"})
	}
}

// CartPing reports the cart session the request resolved to.
func CartPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]string{"scope": "cart", "status": "ok"}
		if session := middleware.CartSessionFromContext(r.Context()); session != "" {
			payload["cart_session"] = session
		}
		responses.WriteSuccess(w, payload)
	}
}
