package cart

import (
	"fmt"
	"strings"

	pkgerrors "github.com/cornman/cornman-backend/pkg/errors"
)

// InvalidItemError describes why an AddItem or UpdateQuantity input was rejected.
type InvalidItemError struct {
	Field  string
	Reason string
}

func (e *InvalidItemError) Error() string {
	return fmt.Sprintf("invalid cart item: %s %s", e.Field, e.Reason)
}

func invalidItem(field, reason string) error {
	cause := &InvalidItemError{Field: field, Reason: reason}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, cause, cause.Error()).
		WithDetails(map[string]string{field: reason})
}

func quantityLimitError() error {
	return invalidItem("quantity", fmt.Sprintf("must be at most %d per line", MaxLineQuantity))
}

func validateInput(in LineItemInput) error {
	switch {
	case strings.TrimSpace(in.ProductID) == "":
		return invalidItem("product_id", "is required")
	case in.Quantity <= 0:
		return invalidItem("quantity", "must be greater than 0")
	case in.Quantity > MaxLineQuantity:
		return quantityLimitError()
	case in.Price.IsNegative():
		return invalidItem("price", "must not be negative")
	case in.ComparePrice != nil && in.ComparePrice.IsNegative():
		return invalidItem("compare_price", "must not be negative")
	}
	return nil
}
