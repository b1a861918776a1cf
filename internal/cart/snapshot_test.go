package cart

import (
	"strings"
	"testing"

	"github.com/cornman/cornman-backend/pkg/enums"
)

func TestEncodeSnapshotUsesStorefrontKeys(t *testing.T) {
	compare := price("15.00")
	payload, err := encodeSnapshot([]LineItem{{
		ID:           "line-1",
		ProductID:    "corn-sweet",
		VariantID:    strPtr("500g"),
		Name:         "Sweet Corn",
		Image:        "/img/sweet.jpg",
		Price:        price("12.90"),
		ComparePrice: &compare,
		Quantity:     2,
	}})
	if err != nil {
		t.Fatalf("encodeSnapshot: %v", err)
	}

	for _, want := range []string{`"productId":"corn-sweet"`, `"variantId":"500g"`, `"price":12.9`, `"comparePrice":15`, `"quantity":2`} {
		if !strings.Contains(payload, want) {
			t.Fatalf("expected %s in %s", want, payload)
		}
	}
	if strings.Contains(payload, "isOpen") || strings.Contains(payload, "is_open") {
		t.Fatalf("visibility must not be persisted: %s", payload)
	}
}

func TestDecodeSnapshotAcceptsNumericAndQuotedPrices(t *testing.T) {
	items, dropped, err := decodeSnapshot(`[
		{"id":"a","productId":"p1","price":12.9,"comparePrice":15,"quantity":1},
		{"id":"b","productId":"p2","price":"15.90","quantity":1}
	]`, seqIDs())
	if err != nil || dropped != 0 {
		t.Fatalf("decodeSnapshot: %v dropped=%d", err, dropped)
	}
	if !items[0].Price.Equal(price("12.90")) || items[0].ComparePrice == nil || !items[0].ComparePrice.Equal(price("15")) {
		t.Fatalf("unexpected numeric prices %+v", items[0])
	}
	if !items[1].Price.Equal(price("15.90")) || items[1].ComparePrice != nil {
		t.Fatalf("unexpected quoted price %+v", items[1])
	}

	again, err := encodeSnapshot(items)
	if err != nil {
		t.Fatalf("encodeSnapshot: %v", err)
	}
	if !strings.Contains(again, `"price":15.9`) {
		t.Fatalf("expected numeric price after re-encode, got %s", again)
	}
}

func TestDecodeSnapshotRejectsNonArray(t *testing.T) {
	for _, payload := range []string{`{}`, `null-ish`, `"[]"`} {
		if _, _, err := decodeSnapshot(payload, seqIDs()); err == nil {
			t.Fatalf("expected error for %q", payload)
		}
	}
}

func TestDecodeSnapshotCountsDropped(t *testing.T) {
	items, dropped, err := decodeSnapshot(`[{"id":"a","productId":"p","price":"1","quantity":1},{"id":"b","productId":"p2","price":"x","quantity":1},{"id":"c","productId":"p3","price":"1","quantity":-4}]`, seqIDs())
	if err != nil {
		t.Fatalf("decodeSnapshot: %v", err)
	}
	if len(items) != 1 || dropped != 2 {
		t.Fatalf("expected 1 item and 2 dropped, got %d and %d", len(items), dropped)
	}
}

func TestLineKeyVariantSentinel(t *testing.T) {
	cases := []struct {
		name    string
		variant *string
		has     bool
		str     string
	}{
		{name: "unset", variant: nil, has: false, str: "p"},
		{name: "blank", variant: strPtr(" "), has: false, str: "p"},
		{name: "set", variant: strPtr("large"), has: true, str: "p/large"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			key := NewLineKey("p", tc.variant)
			if key.HasVariant() != tc.has || key.String() != tc.str {
				t.Fatalf("unexpected key %+v", key)
			}
		})
	}
	if NewLineKey("p", nil) != NewLineKey("p", strPtr("")) {
		t.Fatal("unset and empty variants must share a key")
	}
}

func TestReduceToggleAlwaysChanges(t *testing.T) {
	state := withTotals(State{Items: []LineItem{}})
	next, changed := reduce(state, Action{Kind: enums.CartActionToggle})
	if !changed || !next.IsOpen || state.IsOpen {
		t.Fatalf("toggle should flip a copy, got changed=%v next=%v orig=%v", changed, next.IsOpen, state.IsOpen)
	}
}

func TestReduceUnknownActionIsNoOp(t *testing.T) {
	state := withTotals(State{Items: []LineItem{}})
	if _, changed := reduce(state, Action{Kind: enums.CartAction("bogus")}); changed {
		t.Fatal("unknown action must not change state")
	}
}
