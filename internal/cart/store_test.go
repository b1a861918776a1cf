package cart

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	pkgerrors "github.com/cornman/cornman-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

func seqIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("line-%d", n)
	}
}

func newTestStore(t *testing.T, storage Storage) *Store {
	t.Helper()
	if storage == nil {
		storage = NewMemoryStorage()
	}
	store, err := NewStore(context.Background(), StoreParams{Storage: storage, NewID: seqIDs()})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func strPtr(s string) *string { return &s }

func price(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func input(productID string, variantID *string, unit string, qty int) LineItemInput {
	return LineItemInput{
		ProductID: productID,
		VariantID: variantID,
		Name:      "Corn " + productID,
		Image:     "/img/" + productID + ".jpg",
		Price:     price(unit),
		Quantity:  qty,
	}
}

func mustAdd(t *testing.T, s *Store, in LineItemInput) State {
	t.Helper()
	state, err := s.AddItem(context.Background(), in)
	if err != nil {
		t.Fatalf("AddItem(%s): %v", in.ProductID, err)
	}
	return state
}

func mustUpdate(t *testing.T, s *Store, id string, quantity int) State {
	t.Helper()
	state, err := s.UpdateQuantity(context.Background(), id, quantity)
	if err != nil {
		t.Fatalf("UpdateQuantity(%s, %d): %v", id, quantity, err)
	}
	return state
}

func assertTotals(t *testing.T, state State, items int, subtotal string) {
	t.Helper()
	if state.TotalItems != items {
		t.Fatalf("expected totalItems %d, got %d", items, state.TotalItems)
	}
	if !state.Subtotal.Equal(price(subtotal)) {
		t.Fatalf("expected subtotal %s, got %s", subtotal, state.Subtotal)
	}
}

func TestAddItemMergesSameProductAndVariant(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, nil)

	mustAdd(t, s, input("p1", strPtr("250g"), "12.90", 2))
	first := s.State().Items[0]

	in := input("p1", strPtr("250g"), "99.00", 3)
	in.Name = "renamed"
	state := mustAdd(t, s, in)

	if len(state.Items) != 1 {
		t.Fatalf("expected 1 line after merge, got %d", len(state.Items))
	}
	line := state.Items[0]
	if line.Quantity != 5 {
		t.Fatalf("expected merged quantity 5, got %d", line.Quantity)
	}
	if line.ID != first.ID {
		t.Fatalf("merge must keep the existing line id %s, got %s", first.ID, line.ID)
	}
	if line.Name != first.Name || !line.Price.Equal(price("12.90")) {
		t.Fatalf("display fields must keep the first write, got name=%q price=%s", line.Name, line.Price)
	}
	assertTotals(t, state, 5, "64.50")
}

func TestAddItemKeepsDistinctVariantsApart(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, nil)

	mustAdd(t, s, input("p1", nil, "10.00", 1))
	mustAdd(t, s, input("p1", strPtr("spicy"), "11.00", 1))
	mustAdd(t, s, input("p1", strPtr("sweet"), "12.00", 1))
	mustAdd(t, s, input("p2", nil, "13.00", 1))
	state := mustAdd(t, s, input("p1", strPtr("  "), "10.00", 2))

	if len(state.Items) != 4 {
		t.Fatalf("expected 4 distinct lines, got %d", len(state.Items))
	}
	if state.Items[0].Quantity != 3 {
		t.Fatalf("blank variant should merge with the unset variant line, got qty %d", state.Items[0].Quantity)
	}
	if state.Items[0].VariantID != nil {
		t.Fatalf("blank variant should be stored as unset")
	}

	ids := map[string]bool{}
	keys := map[LineKey]bool{}
	for _, item := range state.Items {
		if ids[item.ID] {
			t.Fatalf("duplicate id %s", item.ID)
		}
		if keys[item.Key()] {
			t.Fatalf("duplicate key %s", item.Key())
		}
		ids[item.ID] = true
		keys[item.Key()] = true
	}
	assertTotals(t, state, 6, "66.00")
}

func TestAddItemPreservesInsertionOrder(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, nil)
	for _, id := range []string{"c", "a", "b"} {
		mustAdd(t, s, input(id, nil, "1.00", 1))
	}
	mustAdd(t, s, input("a", nil, "1.00", 1))

	got := []string{}
	for _, item := range s.State().Items {
		got = append(got, item.ProductID)
	}
	if fmt.Sprint(got) != "[c a b]" {
		t.Fatalf("unexpected order %v", got)
	}
}

func TestAddItemRejectsInvalidInput(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		in    LineItemInput
		field string
	}{
		{name: "zero quantity", in: input("p1", nil, "1.00", 0), field: "quantity"},
		{name: "negative quantity", in: input("p1", nil, "1.00", -2), field: "quantity"},
		{name: "negative price", in: input("p1", nil, "-0.01", 1), field: "price"},
		{name: "missing product", in: input(" ", nil, "1.00", 1), field: "product_id"},
		{name: "above line limit", in: input("p1", nil, "1.00", MaxLineQuantity+1), field: "quantity"},
		{name: "max int", in: input("p1", nil, "1.00", math.MaxInt), field: "quantity"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestStore(t, nil)
			mustAdd(t, s, input("keep", nil, "2.00", 1))
			calls := 0
			s.Subscribe(func(State) { calls++ })

			state, err := s.AddItem(context.Background(), tc.in)
			if err == nil {
				t.Fatal("expected validation error")
			}
			var invalid *InvalidItemError
			if !errors.As(err, &invalid) {
				t.Fatalf("expected InvalidItemError, got %T", err)
			}
			if invalid.Field != tc.field {
				t.Fatalf("expected field %s, got %s", tc.field, invalid.Field)
			}
			if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation code")
			}
			if len(state.Items) != 1 || state.Items[0].ProductID != "keep" {
				t.Fatalf("state must be untouched, got %+v", state.Items)
			}
			if calls != 0 {
				t.Fatalf("rejected input must not notify observers")
			}
		})
	}
}

func TestAddItemRejectsMergePastLineLimit(t *testing.T) {
	t.Parallel()
	storage := &recordingStorage{MemoryStorage: NewMemoryStorage()}
	s := newTestStore(t, storage)
	mustAdd(t, s, input("p", nil, "1.00", MaxLineQuantity))
	savesBefore := storage.saves

	state, err := s.AddItem(context.Background(), input("p", nil, "1.00", 1))
	var invalid *InvalidItemError
	if !errors.As(err, &invalid) || invalid.Field != "quantity" {
		t.Fatalf("expected quantity InvalidItemError, got %v", err)
	}
	if len(state.Items) != 1 || state.Items[0].Quantity != MaxLineQuantity {
		t.Fatalf("line must keep its quantity, got %+v", state.Items)
	}
	assertTotals(t, s.State(), MaxLineQuantity, "999")
	if storage.saves != savesBefore {
		t.Fatalf("rejected merge must not persist")
	}

	// other lines are unaffected by the limit on p
	assertTotals(t, mustAdd(t, s, input("q", nil, "1.00", MaxLineQuantity)), 2*MaxLineQuantity, "1998")
}

func TestUpdateQuantityRejectsAboveLineLimit(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, nil)
	mustAdd(t, s, input("a", nil, "2.00", 3))
	id := s.State().Items[0].ID

	state, err := s.UpdateQuantity(context.Background(), id, MaxLineQuantity+1)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	assertTotals(t, state, 3, "6.00")

	assertTotals(t, mustUpdate(t, s, id, MaxLineQuantity), MaxLineQuantity, "1998")
}

func TestBlankVariantSharesUnsetLine(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, nil)
	mustAdd(t, s, input("p", strPtr(""), "1.00", 1))
	mustAdd(t, s, input("p", nil, "1.00", 1))
	state := mustAdd(t, s, input("p", strPtr("  "), "1.00", 1))

	if len(state.Items) != 1 || state.Items[0].Quantity != 3 {
		t.Fatalf("blank and unset variants should merge, got %+v", state.Items)
	}
	if state.Items[0].VariantID != nil {
		t.Fatalf("blank variant should be stored as unset, got %q", *state.Items[0].VariantID)
	}
}

func TestAddItemAllowsFreeItems(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, nil)
	state := mustAdd(t, s, input("sample", nil, "0", 2))
	assertTotals(t, state, 2, "0")
}

func TestAggregatesAfterEverySequence(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, nil)
	ctx := context.Background()

	mustAdd(t, s, input("a", nil, "3.30", 3))
	mustAdd(t, s, input("b", strPtr("x"), "0.10", 7))
	mustAdd(t, s, input("c", nil, "19.99", 1))
	assertTotals(t, s.State(), 11, "30.59")

	b := s.State().Items[1].ID
	mustUpdate(t, s, b, 10)
	assertTotals(t, s.State(), 14, "30.89")

	s.RemoveItem(ctx, s.State().Items[0].ID)
	assertTotals(t, s.State(), 11, "20.99")

	state := s.ClearCart(ctx)
	assertTotals(t, state, 0, "0")
}

func TestUpdateQuantityZeroOrNegativeRemoves(t *testing.T) {
	t.Parallel()
	for _, q := range []int{0, -1} {
		s := newTestStore(t, nil)
		ctx := context.Background()
		mustAdd(t, s, input("a", nil, "5.00", 2))
		mustAdd(t, s, input("b", nil, "1.00", 1))
		id := s.State().Items[0].ID

		state := mustUpdate(t, s, id, q)
		if _, ok := state.Item(id); ok {
			t.Fatalf("quantity %d should remove the line", q)
		}
		assertTotals(t, state, 1, "1.00")

		again := s.RemoveItem(ctx, id)
		if len(again.Items) != 1 {
			t.Fatalf("removing a gone id must be a no-op")
		}
	}
}

func TestUpdateQuantitySetsExactValue(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, nil)
	mustAdd(t, s, input("a", nil, "2.50", 1))
	id := s.State().Items[0].ID

	state := mustUpdate(t, s, id, 4)
	assertTotals(t, state, 4, "10.00")
}

func TestUnknownIDsAreNoOps(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, nil)
	ctx := context.Background()
	mustAdd(t, s, input("a", nil, "2.50", 1))
	before := s.State()

	calls := 0
	s.Subscribe(func(State) { calls++ })

	s.RemoveItem(ctx, "missing")
	mustUpdate(t, s, "missing", 3)
	mustUpdate(t, s, "missing", 0)

	after := s.State()
	if len(after.Items) != 1 || after.Items[0].Quantity != before.Items[0].Quantity {
		t.Fatalf("state changed on unknown id: %+v", after.Items)
	}
	if calls != 0 {
		t.Fatalf("no-op mutations must not notify, got %d", calls)
	}
}

func TestVisibilityOperations(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, nil)
	ctx := context.Background()

	if s.State().IsOpen {
		t.Fatal("new cart should start closed")
	}
	if !s.OpenCart(ctx).IsOpen || !s.OpenCart(ctx).IsOpen {
		t.Fatal("open twice should stay open")
	}
	if s.CloseCart(ctx).IsOpen || s.CloseCart(ctx).IsOpen {
		t.Fatal("close twice should stay closed")
	}
	if !s.ToggleCart(ctx).IsOpen {
		t.Fatal("toggle from closed should open")
	}
	if s.ToggleCart(ctx).IsOpen {
		t.Fatal("toggle from open should close")
	}
}

func TestIdempotentVisibilityDoesNotNotify(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, nil)
	ctx := context.Background()

	var seen []bool
	s.Subscribe(func(st State) { seen = append(seen, st.IsOpen) })

	s.OpenCart(ctx)
	s.OpenCart(ctx)
	s.CloseCart(ctx)
	s.CloseCart(ctx)

	if fmt.Sprint(seen) != "[true false]" {
		t.Fatalf("expected exactly two notifications, got %v", seen)
	}
}

func TestClearCartKeepsVisibility(t *testing.T) {
	t.Parallel()
	storage := NewMemoryStorage()
	s := newTestStore(t, storage)
	ctx := context.Background()

	mustAdd(t, s, input("a", nil, "1.00", 1))
	mustAdd(t, s, input("b", nil, "2.00", 1))
	mustAdd(t, s, input("c", nil, "3.00", 1))
	s.OpenCart(ctx)

	state := s.ClearCart(ctx)
	if len(state.Items) != 0 {
		t.Fatalf("expected empty cart, got %d items", len(state.Items))
	}
	assertTotals(t, state, 0, "0")
	if !state.IsOpen {
		t.Fatal("clear must not change visibility")
	}

	payload, _, _ := storage.Load(ctx, DefaultStorageKey)
	if payload != "[]" {
		t.Fatalf("expected empty persisted list, got %s", payload)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	t.Parallel()
	storage := NewMemoryStorage()
	ctx := context.Background()

	s := newTestStore(t, storage)
	mustAdd(t, s, input("A", nil, "12.90", 2))
	mustAdd(t, s, input("B", strPtr("large"), "15.90", 1))
	s.OpenCart(ctx)
	want := s.State()

	reloaded := newTestStore(t, storage)
	got := reloaded.State()

	if len(got.Items) != 2 {
		t.Fatalf("expected 2 items after reload, got %d", len(got.Items))
	}
	for i := range want.Items {
		w, g := want.Items[i], got.Items[i]
		if w.ID != g.ID || w.ProductID != g.ProductID || w.Quantity != g.Quantity || !w.Price.Equal(g.Price) {
			t.Fatalf("item %d mismatch: want %+v got %+v", i, w, g)
		}
	}
	if got.Items[1].VariantID == nil || *got.Items[1].VariantID != "large" {
		t.Fatalf("variant not preserved")
	}
	assertTotals(t, got, 3, "41.70")
	if got.Subtotal.StringFixed(2) != "41.70" {
		t.Fatalf("expected exact subtotal 41.70, got %s", got.Subtotal.StringFixed(2))
	}
	if got.IsOpen {
		t.Fatal("visibility is not persisted; reloaded cart starts closed")
	}
}

func TestPersistsAfterEveryItemMutation(t *testing.T) {
	t.Parallel()
	storage := &recordingStorage{MemoryStorage: NewMemoryStorage()}
	s := newTestStore(t, storage)
	ctx := context.Background()

	mustAdd(t, s, input("a", nil, "1.00", 1))
	id := s.State().Items[0].ID
	mustUpdate(t, s, id, 2)
	s.ToggleCart(ctx)
	s.OpenCart(ctx)
	s.RemoveItem(ctx, id)
	s.ClearCart(ctx)

	if storage.saves != 4 {
		t.Fatalf("expected 4 snapshot writes (add, update, remove, clear), got %d", storage.saves)
	}
}

func TestCorruptStorageYieldsEmptyCart(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"garbage":      "{not json",
		"object":       `{"items":[]}`,
		"number":       "42",
		"empty string": "",
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			storage := NewMemoryStorage()
			_ = storage.Save(context.Background(), DefaultStorageKey, payload)

			s := newTestStore(t, storage)
			state := s.State()
			if len(state.Items) != 0 {
				t.Fatalf("expected empty cart, got %+v", state.Items)
			}
			assertTotals(t, state, 0, "0")

			mustAdd(t, s, input("a", nil, "1.00", 1))
			if s.State().TotalItems != 1 {
				t.Fatal("cart must stay usable after corrupt hydration")
			}
		})
	}
}

func TestLoadFailureYieldsEmptyCart(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, &failingStorage{loadErr: errors.New("redis down")})
	if !s.State().Empty() {
		t.Fatal("expected empty cart when storage cannot be read")
	}
}

func TestHydrationSanitizesRecords(t *testing.T) {
	t.Parallel()
	storage := NewMemoryStorage()
	payload := `[
		{"id":"x1","productId":"A","name":"Corn","price":12.9,"image":"a.jpg","quantity":2},
		{"id":"x2","productId":"A","name":"Corn dup","price":1,"image":"a.jpg","quantity":1},
		{"id":"x3","productId":"B","variantId":"large","price":"15.90","quantity":0},
		{"id":"x4","productId":"","price":1,"quantity":1},
		{"id":"x5","productId":"C","price":-1,"quantity":1},
		{"productId":"D","price":"2.00","quantity":1},
		{"id":"x1","productId":"E","price":"3.00","quantity":1},
		"not-an-object"
	]`
	_ = storage.Save(context.Background(), DefaultStorageKey, payload)

	state := newTestStore(t, storage).State()
	if len(state.Items) != 3 {
		t.Fatalf("expected 3 surviving lines, got %d: %+v", len(state.Items), state.Items)
	}
	if state.Items[0].Quantity != 3 || state.Items[0].ID != "x1" {
		t.Fatalf("duplicate keys should merge into the first line, got %+v", state.Items[0])
	}
	if state.Items[1].ID == "" || state.Items[2].ID == "x1" {
		t.Fatalf("missing and duplicate ids should be reassigned, got %q %q", state.Items[1].ID, state.Items[2].ID)
	}
	assertTotals(t, state, 5, "43.70")
}

func TestHydrationCapsLineQuantities(t *testing.T) {
	t.Parallel()
	storage := NewMemoryStorage()
	payload := `[
		{"id":"x1","productId":"A","price":1,"quantity":5000},
		{"id":"x2","productId":"B","price":1,"quantity":998},
		{"id":"x3","productId":"B","price":1,"quantity":5}
	]`
	_ = storage.Save(context.Background(), DefaultStorageKey, payload)

	state := newTestStore(t, storage).State()
	if len(state.Items) != 2 {
		t.Fatalf("expected 2 lines, got %+v", state.Items)
	}
	for _, item := range state.Items {
		if item.Quantity != MaxLineQuantity {
			t.Fatalf("expected %s capped at %d, got %d", item.ProductID, MaxLineQuantity, item.Quantity)
		}
	}
	assertTotals(t, state, 2*MaxLineQuantity, "1998")
}

func TestPersistFailureDoesNotBlockMutation(t *testing.T) {
	t.Parallel()
	storage := &failingStorage{saveErr: errors.New("disk full")}
	s := newTestStore(t, storage)

	state, err := s.AddItem(context.Background(), input("a", nil, "4.00", 2))
	if err != nil {
		t.Fatalf("persistence failure must not surface: %v", err)
	}
	assertTotals(t, state, 2, "8.00")
	assertTotals(t, s.State(), 2, "8.00")
	if storage.saveCalls != 1 {
		t.Fatalf("expected one save attempt, got %d", storage.saveCalls)
	}

	if err := s.Flush(context.Background()); err == nil {
		t.Fatal("explicit flush should report the storage error")
	}
}

func TestSubscribersSeeChangesInOrder(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, nil)
	ctx := context.Background()

	var first, second []int
	unsubscribe := s.Subscribe(func(st State) { first = append(first, st.TotalItems) })
	s.Subscribe(func(st State) { second = append(second, st.TotalItems) })

	mustAdd(t, s, input("a", nil, "1.00", 1))
	mustAdd(t, s, input("a", nil, "1.00", 2))
	unsubscribe()
	unsubscribe()
	s.ClearCart(ctx)

	if fmt.Sprint(first) != "[1 3]" {
		t.Fatalf("unexpected first listener sequence %v", first)
	}
	if fmt.Sprint(second) != "[1 3 0]" {
		t.Fatalf("unexpected second listener sequence %v", second)
	}
}

func TestStateIsACopy(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, nil)
	mustAdd(t, s, input("a", nil, "1.00", 1))

	snapshot := s.State()
	snapshot.Items[0].Quantity = 99

	if s.State().Items[0].Quantity != 1 {
		t.Fatal("mutating a returned state must not leak into the store")
	}
}

func TestConcurrentMutationsAreSerialized(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = s.AddItem(ctx, input(fmt.Sprintf("p%d", i%5), nil, "1.00", 1))
			_ = s.State()
		}(i)
	}
	wg.Wait()

	state := s.State()
	if len(state.Items) != 5 {
		t.Fatalf("expected 5 lines, got %d", len(state.Items))
	}
	assertTotals(t, state, 50, "50.00")
}

func TestNewStoreRequiresStorage(t *testing.T) {
	t.Parallel()
	if _, err := NewStore(context.Background(), StoreParams{}); err == nil {
		t.Fatal("expected missing storage to fail")
	}
}

type recordingStorage struct {
	*MemoryStorage
	saves int
}

func (r *recordingStorage) Save(ctx context.Context, key, payload string) error {
	r.saves++
	return r.MemoryStorage.Save(ctx, key, payload)
}

type failingStorage struct {
	loadErr   error
	saveErr   error
	saveCalls int
}

func (f *failingStorage) Load(context.Context, string) (string, bool, error) {
	return "", false, f.loadErr
}

func (f *failingStorage) Save(context.Context, string, string) error {
	f.saveCalls++
	return f.saveErr
}

func (f *failingStorage) Backend() string { return "failing" }
