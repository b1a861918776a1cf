package enums

import "fmt"

// CartAction names a mutation accepted by the cart reducer.
type CartAction string

const (
	CartActionAddItem        CartAction = "add_item"
	CartActionRemoveItem     CartAction = "remove_item"
	CartActionUpdateQuantity CartAction = "update_quantity"
	CartActionClear          CartAction = "clear_cart"
	CartActionToggle         CartAction = "toggle_cart"
	CartActionSetOpen        CartAction = "set_open"
	CartActionLoad           CartAction = "load_cart"
)

var validCartActions = []CartAction{
	CartActionAddItem,
	CartActionRemoveItem,
	CartActionUpdateQuantity,
	CartActionClear,
	CartActionToggle,
	CartActionSetOpen,
	CartActionLoad,
}

// String implements fmt.Stringer.
func (c CartAction) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CartAction.
func (c CartAction) IsValid() bool {
	for _, candidate := range validCartActions {
		if candidate == c {
			return true
		}
	}
	return false
}

// Persists reports whether applying the action changes the persisted line items.
func (c CartAction) Persists() bool {
	switch c {
	case CartActionAddItem, CartActionRemoveItem, CartActionUpdateQuantity, CartActionClear:
		return true
	}
	return false
}

// ParseCartAction converts raw input into a CartAction.
func ParseCartAction(value string) (CartAction, error) {
	for _, candidate := range validCartActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cart action %q", value)
}
