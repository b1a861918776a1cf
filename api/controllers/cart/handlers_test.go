package cart

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/cornman/cornman-backend/api/middleware"
	cartsvc "github.com/cornman/cornman-backend/internal/cart"
	pkgerrors "github.com/cornman/cornman-backend/pkg/errors"
)

func newTestRouter(t *testing.T, sessions Sessions) http.Handler {
	t.Helper()
	r := chi.NewRouter()
	r.Use(middleware.CartSession(nil))
	r.Get("/api/v1/cart", CartFetch(sessions, nil))
	r.Delete("/api/v1/cart", CartClear(sessions, nil))
	r.Post("/api/v1/cart/items", CartAddItem(sessions, nil))
	r.Patch("/api/v1/cart/items/{itemId}", CartUpdateQuantity(sessions, nil))
	r.Delete("/api/v1/cart/items/{itemId}", CartRemoveItem(sessions, nil))
	r.Post("/api/v1/cart/open", CartOpen(sessions, nil))
	r.Post("/api/v1/cart/close", CartClose(sessions, nil))
	r.Post("/api/v1/cart/toggle", CartToggle(sessions, nil))
	return r
}

func newRegistry(t *testing.T) *cartsvc.Registry {
	t.Helper()
	reg, err := cartsvc.NewRegistry(cartsvc.RegistryParams{Storage: cartsvc.NewMemoryStorage()})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return reg
}

type cartEnvelope struct {
	Data struct {
		Items []struct {
			ID        string `json:"id"`
			ProductID string `json:"product_id"`
			Quantity  int    `json:"quantity"`
			LineTotal string `json:"line_total"`
		} `json:"items"`
		IsOpen     bool   `json:"is_open"`
		TotalItems int    `json:"total_items"`
		Subtotal   string `json:"subtotal"`
	} `json:"data"`
}

func do(t *testing.T, h http.Handler, method, path, session, body string) (*httptest.ResponseRecorder, cartEnvelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if session != "" {
		req.Header.Set(middleware.CartSessionHeader, session)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env cartEnvelope
	if rec.Code < http.StatusBadRequest {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
		}
	}
	return rec, env
}

func TestCartAddFetchAndMerge(t *testing.T) {
	h := newTestRouter(t, newRegistry(t))

	rec, env := do(t, h, http.MethodPost, "/api/v1/cart/items", "s1",
		`{"product_id":"corn-1","name":"Sweet Corn","price":"12.90","quantity":2}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if len(env.Data.Items) != 1 || env.Data.TotalItems != 2 {
		t.Fatalf("unexpected cart %+v", env.Data)
	}

	_, env = do(t, h, http.MethodPost, "/api/v1/cart/items", "s1",
		`{"product_id":"corn-1","name":"Ignored","price":"12.90","quantity":1}`)
	if len(env.Data.Items) != 1 || env.Data.Items[0].Quantity != 3 {
		t.Fatalf("expected merged line, got %+v", env.Data.Items)
	}
	if env.Data.Subtotal != "38.7" || env.Data.Items[0].LineTotal != "38.7" {
		t.Fatalf("unexpected totals subtotal=%s line=%s", env.Data.Subtotal, env.Data.Items[0].LineTotal)
	}

	rec, env = do(t, h, http.MethodGet, "/api/v1/cart", "s1", "")
	if rec.Code != http.StatusOK || env.Data.TotalItems != 3 {
		t.Fatalf("unexpected fetch %d %+v", rec.Code, env.Data)
	}

	_, other := do(t, h, http.MethodGet, "/api/v1/cart", "s2", "")
	if len(other.Data.Items) != 0 {
		t.Fatalf("sessions must be isolated")
	}
}

func TestCartAddRejectsInvalidItems(t *testing.T) {
	h := newTestRouter(t, newRegistry(t))

	cases := map[string]string{
		"missing product": `{"name":"x","price":"1","quantity":1}`,
		"zero quantity":   `{"product_id":"p","price":"1","quantity":0}`,
		"negative price":  `{"product_id":"p","price":"-1","quantity":1}`,
		"unknown field":   `{"product_id":"p","price":"1","quantity":1,"color":"gold"}`,
		"over line limit": `{"product_id":"p","price":"1","quantity":1000}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec, _ := do(t, h, http.MethodPost, "/api/v1/cart/items", "s1", body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d (%s)", rec.Code, rec.Body.String())
			}
			var payload struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
				t.Fatalf("decode error: %v", err)
			}
			if payload.Error.Code != string(pkgerrors.CodeValidation) {
				t.Fatalf("unexpected code %s", payload.Error.Code)
			}
		})
	}
}

func TestCartUpdateAndRemove(t *testing.T) {
	h := newTestRouter(t, newRegistry(t))

	_, env := do(t, h, http.MethodPost, "/api/v1/cart/items", "s1", `{"product_id":"p","price":"5","quantity":1}`)
	id := env.Data.Items[0].ID

	_, env = do(t, h, http.MethodPatch, "/api/v1/cart/items/"+id, "s1", `{"quantity":4}`)
	if env.Data.TotalItems != 4 || env.Data.Subtotal != "20" {
		t.Fatalf("unexpected cart after update %+v", env.Data)
	}

	rec, _ := do(t, h, http.MethodPatch, "/api/v1/cart/items/"+id, "s1", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without quantity, got %d", rec.Code)
	}

	_, env = do(t, h, http.MethodDelete, "/api/v1/cart/items/unknown", "s1", "")
	if env.Data.TotalItems != 4 {
		t.Fatalf("unknown id should be a no-op")
	}

	_, env = do(t, h, http.MethodPatch, "/api/v1/cart/items/"+id, "s1", `{"quantity":0}`)
	if len(env.Data.Items) != 0 {
		t.Fatalf("zero quantity should remove the line")
	}

	do(t, h, http.MethodPost, "/api/v1/cart/items", "s1", `{"product_id":"p","price":"5","quantity":1}`)
	_, env = do(t, h, http.MethodGet, "/api/v1/cart", "s1", "")
	_, env = do(t, h, http.MethodDelete, "/api/v1/cart/items/"+env.Data.Items[0].ID, "s1", "")
	if len(env.Data.Items) != 0 {
		t.Fatalf("expected line removed")
	}
}

func TestCartQuantityLimit(t *testing.T) {
	h := newTestRouter(t, newRegistry(t))

	_, env := do(t, h, http.MethodPost, "/api/v1/cart/items", "s1", `{"product_id":"p","price":"1","quantity":999}`)
	id := env.Data.Items[0].ID

	rec, _ := do(t, h, http.MethodPost, "/api/v1/cart/items", "s1", `{"product_id":"p","price":"1","quantity":1}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for merge past the line limit, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec, _ = do(t, h, http.MethodPatch, "/api/v1/cart/items/"+id, "s1", `{"quantity":1000}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for quantity above the line limit, got %d", rec.Code)
	}

	_, env = do(t, h, http.MethodGet, "/api/v1/cart", "s1", "")
	if env.Data.TotalItems != 999 || env.Data.Subtotal != "999" {
		t.Fatalf("rejected updates must leave the cart unchanged %+v", env.Data)
	}
}

func TestCartVisibilityAndClear(t *testing.T) {
	h := newTestRouter(t, newRegistry(t))

	_, env := do(t, h, http.MethodPost, "/api/v1/cart/open", "s1", "")
	if !env.Data.IsOpen {
		t.Fatalf("expected open")
	}
	_, env = do(t, h, http.MethodPost, "/api/v1/cart/toggle", "s1", "")
	if env.Data.IsOpen {
		t.Fatalf("expected toggle to close")
	}
	_, env = do(t, h, http.MethodPost, "/api/v1/cart/toggle", "s1", "")
	if !env.Data.IsOpen {
		t.Fatalf("expected toggle to open")
	}

	do(t, h, http.MethodPost, "/api/v1/cart/items", "s1", `{"product_id":"p","price":"5","quantity":1}`)
	_, env = do(t, h, http.MethodDelete, "/api/v1/cart", "s1", "")
	if len(env.Data.Items) != 0 || env.Data.Subtotal != "0" {
		t.Fatalf("expected empty cart, got %+v", env.Data)
	}
	if !env.Data.IsOpen {
		t.Fatalf("clear must not change visibility")
	}

	_, env = do(t, h, http.MethodPost, "/api/v1/cart/close", "s1", "")
	if env.Data.IsOpen {
		t.Fatalf("expected closed")
	}
}

func TestCartEchoesGeneratedSession(t *testing.T) {
	h := newTestRouter(t, newRegistry(t))

	rec, _ := do(t, h, http.MethodGet, "/api/v1/cart", "", "")
	if rec.Header().Get(middleware.CartSessionHeader) == "" {
		t.Fatalf("expected generated session header")
	}
}

type failingSessions struct {
	err error
}

func (f failingSessions) Get(context.Context, string) (*cartsvc.Store, error) {
	return nil, f.err
}

func TestCartSessionErrors(t *testing.T) {
	rec, _ := do(t, newTestRouter(t, failingSessions{err: cartsvc.ErrInvalidSession}), http.MethodGet, "/api/v1/cart", "s1", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid session, got %d", rec.Code)
	}

	rec, _ = do(t, newTestRouter(t, failingSessions{err: errors.New("boom")}), http.MethodGet, "/api/v1/cart", "s1", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}

	rec, _ = do(t, newTestRouter(t, nil), http.MethodGet, "/api/v1/cart", "s1", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 without sessions, got %d", rec.Code)
	}
}
