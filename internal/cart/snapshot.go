package cart

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// snapshotItem is the persisted shape of a LineItem. Keys and value types match the
// storefront's browser storage so payloads written by either side stay readable.
type snapshotItem struct {
	ID           string         `json:"id"`
	ProductID    string         `json:"productId"`
	VariantID    *string        `json:"variantId,omitempty"`
	Name         string         `json:"name"`
	Price        snapshotPrice  `json:"price"`
	ComparePrice *snapshotPrice `json:"comparePrice,omitempty"`
	Image        string         `json:"image"`
	Quantity     int            `json:"quantity"`
	Attributes   string         `json:"attributes,omitempty"`
	Weight       string         `json:"weight,omitempty"`
}

// snapshotPrice writes a bare JSON number. Decoding accepts numbers and quoted strings.
type snapshotPrice struct {
	decimal.Decimal
}

func (p snapshotPrice) MarshalJSON() ([]byte, error) {
	return []byte(p.Decimal.String()), nil
}

func toSnapshotPrice(d *decimal.Decimal) *snapshotPrice {
	if d == nil {
		return nil
	}
	return &snapshotPrice{Decimal: *d}
}

func fromSnapshotPrice(p *snapshotPrice) *decimal.Decimal {
	if p == nil {
		return nil
	}
	d := p.Decimal
	return &d
}

func encodeSnapshot(items []LineItem) (string, error) {
	out := make([]snapshotItem, 0, len(items))
	for _, item := range items {
		out = append(out, snapshotItem{
			ID:           item.ID,
			ProductID:    item.ProductID,
			VariantID:    item.VariantID,
			Name:         item.Name,
			Price:        snapshotPrice{Decimal: item.Price},
			ComparePrice: toSnapshotPrice(item.ComparePrice),
			Image:        item.Image,
			Quantity:     item.Quantity,
			Attributes:   item.Attributes,
			Weight:       item.Weight,
		})
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encode cart snapshot: %w", err)
	}
	return string(raw), nil
}

// decodeSnapshot parses a persisted payload. A payload that is not a JSON array is an error.
// Individual records that are malformed or break the line invariants are dropped, lines
// sharing a LineKey are merged, quantities are capped at MaxLineQuantity, and missing or
// duplicate IDs are reassigned.
func decodeSnapshot(payload string, newID func() string) ([]LineItem, int, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, 0, fmt.Errorf("decode cart snapshot: %w", err)
	}

	items := make([]LineItem, 0, len(raw))
	byKey := make(map[LineKey]int, len(raw))
	seenIDs := make(map[string]struct{}, len(raw))
	dropped := 0

	for _, entry := range raw {
		var rec snapshotItem
		if err := json.Unmarshal(entry, &rec); err != nil {
			dropped++
			continue
		}
		item := LineItem{
			ID:           strings.TrimSpace(rec.ID),
			ProductID:    strings.TrimSpace(rec.ProductID),
			VariantID:    normalizeVariant(rec.VariantID),
			Name:         rec.Name,
			Image:        rec.Image,
			Weight:       rec.Weight,
			Price:        rec.Price.Decimal,
			ComparePrice: fromSnapshotPrice(rec.ComparePrice),
			Quantity:     min(rec.Quantity, MaxLineQuantity),
			Attributes:   rec.Attributes,
		}
		if item.ProductID == "" || item.Quantity <= 0 || item.Price.IsNegative() {
			dropped++
			continue
		}

		key := item.Key()
		if idx, ok := byKey[key]; ok {
			items[idx].Quantity = addQuantity(items[idx].Quantity, item.Quantity)
			continue
		}
		if _, dup := seenIDs[item.ID]; item.ID == "" || dup {
			item.ID = newID()
		}
		seenIDs[item.ID] = struct{}{}
		byKey[key] = len(items)
		items = append(items, item)
	}
	return items, dropped, nil
}
