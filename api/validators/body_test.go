package validators

import (
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/cornman/cornman-backend/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type itemRequest struct {
	ProductID string          `json:"product_id" validate:"required"`
	Quantity  int             `json:"quantity" validate:"min=1"`
	Price     decimal.Decimal `json:"price" validate:"gte=0"`
}

func TestDecodeJSONBodyValid(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"product_id":"p1","quantity":2,"price":"12.90"}`))
	var dest itemRequest
	require.NoError(t, DecodeJSONBody(req, &dest))
	require.Equal(t, "p1", dest.ProductID)
	require.True(t, dest.Price.Equal(decimal.RequireFromString("12.90")))
}

func TestDecodeJSONBodyValidationDetails(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"product_id":"","quantity":0,"price":-1}`))
	var dest itemRequest
	err := DecodeJSONBody(req, &dest)
	require.Error(t, err)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeValidation, typed.Code())

	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	require.Equal(t, "is required", details["product_id"])
	require.Equal(t, "must be at least 1", details["quantity"])
	require.Equal(t, "must be greater than or equal to 0", details["price"])
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"product_id":"p1","quantity":1,"price":1,"extra":true}`))
	var dest itemRequest
	err := DecodeJSONBody(req, &dest)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestDecodeJSONBytesToleratesUnknownFields(t *testing.T) {
	var dest itemRequest
	err := DecodeJSONBytes([]byte(`{"product_id":"p1","quantity":1,"price":1,"extra":true}`), &dest)
	require.NoError(t, err)
}

func TestSanitizeString(t *testing.T) {
	require.Equal(t, "abc", SanitizeString("  abc  ", 0))
	require.Equal(t, "ab", SanitizeString("abc", 2))
}
