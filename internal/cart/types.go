package cart

import (
	"strings"

	"github.com/shopspring/decimal"
)

// noVariant is the LineKey sentinel for items sold without a variant.
const noVariant = "\x00"

// MaxLineQuantity caps the quantity of a single line.
const MaxLineQuantity = 999

// LineItem is one product/variant line of a cart. Display fields are a snapshot taken when
// the line was first added.
type LineItem struct {
	ID           string           `json:"id"`
	ProductID    string           `json:"product_id"`
	VariantID    *string          `json:"variant_id,omitempty"`
	Name         string           `json:"name"`
	Image        string           `json:"image"`
	Weight       string           `json:"weight,omitempty"`
	Price        decimal.Decimal  `json:"price"`
	ComparePrice *decimal.Decimal `json:"compare_price,omitempty"`
	Quantity     int              `json:"quantity"`
	Attributes   string           `json:"attributes,omitempty"`
}

// Key returns the line's merge identity.
func (i LineItem) Key() LineKey {
	return NewLineKey(i.ProductID, i.VariantID)
}

// LineTotal is price × quantity.
func (i LineItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// LineItemInput is what callers supply to AddItem; the store assigns the ID.
type LineItemInput struct {
	ProductID    string
	VariantID    *string
	Name         string
	Image        string
	Weight       string
	Price        decimal.Decimal
	ComparePrice *decimal.Decimal
	Quantity     int
	Attributes   string
}

// LineKey identifies a line by product and variant. Two inputs with the same key merge.
type LineKey struct {
	ProductID string
	VariantID string
}

// NewLineKey builds a LineKey, mapping an unset or blank variant to the no-variant sentinel.
func NewLineKey(productID string, variantID *string) LineKey {
	key := LineKey{ProductID: productID, VariantID: noVariant}
	if v := normalizeVariant(variantID); v != nil {
		key.VariantID = *v
	}
	return key
}

// HasVariant reports whether the key names a concrete variant.
func (k LineKey) HasVariant() bool {
	return k.VariantID != noVariant
}

func (k LineKey) String() string {
	if !k.HasVariant() {
		return k.ProductID
	}
	return k.ProductID + "/" + k.VariantID
}

// normalizeVariant treats a blank variant id as unset.
func normalizeVariant(variantID *string) *string {
	if variantID == nil {
		return nil
	}
	v := strings.TrimSpace(*variantID)
	if v == "" {
		return nil
	}
	return &v
}

// State is an immutable view of a cart. Items keep insertion order; TotalItems and Subtotal
// are recomputed from Items after every mutation.
type State struct {
	Items      []LineItem      `json:"items"`
	IsOpen     bool            `json:"is_open"`
	TotalItems int             `json:"total_items"`
	Subtotal   decimal.Decimal `json:"subtotal"`
}

// Empty reports whether the cart holds no lines.
func (s State) Empty() bool {
	return len(s.Items) == 0
}

// Item finds a line by ID.
func (s State) Item(id string) (LineItem, bool) {
	for _, item := range s.Items {
		if item.ID == id {
			return item, true
		}
	}
	return LineItem{}, false
}

// clone copies the state so callers never share the store's backing slice.
func (s State) clone() State {
	out := s
	out.Items = make([]LineItem, len(s.Items))
	copy(out.Items, s.Items)
	return out
}

// addQuantity sums two line quantities, saturating at MaxLineQuantity.
func addQuantity(a, b int) int {
	if b > MaxLineQuantity-a {
		return MaxLineQuantity
	}
	return a + b
}

func withTotals(s State) State {
	total := 0
	subtotal := decimal.Zero
	for _, item := range s.Items {
		total += item.Quantity
		subtotal = subtotal.Add(item.LineTotal())
	}
	s.TotalItems = total
	s.Subtotal = subtotal
	return s
}
