package cart

import (
	"github.com/cornman/cornman-backend/pkg/enums"
)

// Action is a tagged mutation request. Only the fields relevant to Kind are read.
type Action struct {
	Kind     enums.CartAction
	Item     LineItem
	ItemID   string
	Quantity int
	Open     bool
	Items    []LineItem
}

// reduce applies action to state and reports whether anything observable changed.
// It never mutates the input state.
func reduce(state State, action Action) (State, bool) {
	switch action.Kind {
	case enums.CartActionAddItem:
		return addItem(state, action.Item), true

	case enums.CartActionRemoveItem:
		return removeItem(state, action.ItemID)

	case enums.CartActionUpdateQuantity:
		if action.Quantity <= 0 {
			return removeItem(state, action.ItemID)
		}
		return setQuantity(state, action.ItemID, action.Quantity)

	case enums.CartActionClear:
		if len(state.Items) == 0 {
			return state, false
		}
		next := state
		next.Items = []LineItem{}
		return withTotals(next), true

	case enums.CartActionToggle:
		next := state
		next.IsOpen = !state.IsOpen
		return next, true

	case enums.CartActionSetOpen:
		if state.IsOpen == action.Open {
			return state, false
		}
		next := state
		next.IsOpen = action.Open
		return next, true

	case enums.CartActionLoad:
		next := state
		next.Items = make([]LineItem, len(action.Items))
		copy(next.Items, action.Items)
		return withTotals(next), true
	}
	return state, false
}

func addItem(state State, item LineItem) State {
	key := item.Key()
	items := make([]LineItem, len(state.Items), len(state.Items)+1)
	copy(items, state.Items)

	merged := false
	for i := range items {
		if items[i].Key() == key {
			items[i].Quantity = addQuantity(items[i].Quantity, item.Quantity)
			merged = true
			break
		}
	}
	if !merged {
		items = append(items, item)
	}

	next := state
	next.Items = items
	return withTotals(next)
}

func removeItem(state State, id string) (State, bool) {
	idx := indexOf(state.Items, id)
	if idx < 0 {
		return state, false
	}
	items := make([]LineItem, 0, len(state.Items)-1)
	items = append(items, state.Items[:idx]...)
	items = append(items, state.Items[idx+1:]...)

	next := state
	next.Items = items
	return withTotals(next), true
}

func setQuantity(state State, id string, quantity int) (State, bool) {
	idx := indexOf(state.Items, id)
	if idx < 0 {
		return state, false
	}
	if state.Items[idx].Quantity == quantity {
		return state, false
	}
	items := make([]LineItem, len(state.Items))
	copy(items, state.Items)
	items[idx].Quantity = min(quantity, MaxLineQuantity)

	next := state
	next.Items = items
	return withTotals(next), true
}

func indexOf(items []LineItem, id string) int {
	for i, item := range items {
		if item.ID == id {
			return i
		}
	}
	return -1
}
