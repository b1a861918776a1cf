package cart

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornman/cornman-backend/pkg/enums"
	"github.com/cornman/cornman-backend/pkg/logger"
	"github.com/cornman/cornman-backend/pkg/metrics"
	"github.com/google/uuid"
)

// DefaultStorageKey is the key a single-session cart persists under.
const DefaultStorageKey = "cornman-cart"

const defaultPersistTimeout = 2 * time.Second

// Listener receives the cart state after every change. Listeners run on the dispatching
// goroutine in dispatch order and must not call mutating Store methods.
type Listener func(State)

// StoreParams wires a Store.
type StoreParams struct {
	Key            string
	Storage        Storage
	Logger         *logger.Logger
	Metrics        *metrics.CartMetrics
	NewID          func() string
	PersistTimeout time.Duration
	Now            func() time.Time
}

// Store owns one cart session. Every mutation is funneled through dispatch, which applies
// the reducer under a single lock, writes the snapshot and notifies listeners.
type Store struct {
	key            string
	storage        Storage
	logg           *logger.Logger
	metrics        *metrics.CartMetrics
	newID          func() string
	persistTimeout time.Duration
	now            func() time.Time

	mu      sync.Mutex
	current atomic.Pointer[State]

	listenersMu sync.RWMutex
	listeners   map[uint64]Listener
	nextID      uint64

	lastUsed atomic.Int64

	// retired is set under mu once the owning registry has let go of the store. A retired
	// store forwards to reopen and never writes storage again.
	retired atomic.Bool
	reopen  func(context.Context) (*Store, error)
}

// NewStore builds a store and hydrates it from storage. Missing or unreadable snapshots
// produce an empty cart; hydration never fails the constructor.
func NewStore(ctx context.Context, params StoreParams) (*Store, error) {
	if params.Storage == nil {
		return nil, errors.New("cart storage required")
	}
	key := strings.TrimSpace(params.Key)
	if key == "" {
		key = DefaultStorageKey
	}
	s := &Store{
		key:            key,
		storage:        params.Storage,
		logg:           params.Logger,
		metrics:        params.Metrics,
		newID:          params.NewID,
		persistTimeout: params.PersistTimeout,
		now:            params.Now,
		listeners:      map[uint64]Listener{},
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.persistTimeout <= 0 {
		s.persistTimeout = defaultPersistTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}

	initial := withTotals(State{Items: []LineItem{}})
	s.current.Store(&initial)
	s.touch()
	s.hydrate(ctx)
	return s, nil
}

// Key returns the storage key the store persists under.
func (s *Store) Key() string {
	return s.key
}

// State returns the latest state. The returned value is a copy.
func (s *Store) State() State {
	if next := s.successor(context.Background()); next != nil {
		return next.State()
	}
	s.touch()
	return s.current.Load().clone()
}

// AddItem merges the input into the line with the same product/variant or appends a new line.
// A merge that would take the line past MaxLineQuantity is rejected and leaves the cart as is.
func (s *Store) AddItem(ctx context.Context, in LineItemInput) (State, error) {
	if err := validateInput(in); err != nil {
		return s.State(), err
	}
	item := LineItem{
		ID:           s.newID(),
		ProductID:    strings.TrimSpace(in.ProductID),
		VariantID:    normalizeVariant(in.VariantID),
		Name:         in.Name,
		Image:        in.Image,
		Weight:       in.Weight,
		Price:        in.Price,
		ComparePrice: in.ComparePrice,
		Quantity:     in.Quantity,
		Attributes:   in.Attributes,
	}
	return s.apply(ctx, Action{Kind: enums.CartActionAddItem, Item: item}, func(current State) error {
		key := item.Key()
		for _, line := range current.Items {
			if line.Key() == key && line.Quantity > MaxLineQuantity-item.Quantity {
				return quantityLimitError()
			}
		}
		return nil
	})
}

// RemoveItem drops the line with the given id. Unknown ids are a no-op.
func (s *Store) RemoveItem(ctx context.Context, id string) State {
	return s.dispatch(ctx, Action{Kind: enums.CartActionRemoveItem, ItemID: id})
}

// UpdateQuantity sets a line's quantity; zero or negative removes the line. Quantities above
// MaxLineQuantity are rejected.
func (s *Store) UpdateQuantity(ctx context.Context, id string, quantity int) (State, error) {
	if quantity > MaxLineQuantity {
		return s.State(), quantityLimitError()
	}
	return s.dispatch(ctx, Action{Kind: enums.CartActionUpdateQuantity, ItemID: id, Quantity: quantity}), nil
}

// ClearCart removes every line and leaves visibility untouched.
func (s *Store) ClearCart(ctx context.Context) State {
	return s.dispatch(ctx, Action{Kind: enums.CartActionClear})
}

func (s *Store) ToggleCart(ctx context.Context) State {
	return s.dispatch(ctx, Action{Kind: enums.CartActionToggle})
}

func (s *Store) OpenCart(ctx context.Context) State {
	return s.dispatch(ctx, Action{Kind: enums.CartActionSetOpen, Open: true})
}

func (s *Store) CloseCart(ctx context.Context) State {
	return s.dispatch(ctx, Action{Kind: enums.CartActionSetOpen, Open: false})
}

// Subscribe registers fn for change notifications and returns its cancel func.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenersMu.Lock()
			delete(s.listeners, id)
			s.listenersMu.Unlock()
		})
	}
}

// IdleSince reports when the store was last read or mutated.
func (s *Store) IdleSince() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

// Flush writes the current line items to storage and returns any storage error. A retired
// store has nothing to flush.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retired.Load() {
		return nil
	}
	payload, err := encodeSnapshot(s.current.Load().Items)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, s.persistTimeout)
	defer cancel()
	return s.storage.Save(writeCtx, s.key, payload)
}

func (s *Store) dispatch(ctx context.Context, action Action) State {
	next, _ := s.apply(ctx, action, nil)
	return next
}

// apply runs action through the reducer under the store lock. check, when set, sees the
// current state first and can reject the action.
func (s *Store) apply(ctx context.Context, action Action, check func(State) error) (State, error) {
	s.mu.Lock()
	for attempt := 0; s.retired.Load() && s.reopen != nil && attempt < 2; attempt++ {
		s.mu.Unlock()
		if next := s.successor(ctx); next != nil {
			return next.apply(ctx, action, check)
		}
		s.mu.Lock()
	}
	defer s.mu.Unlock()
	s.touch()

	prev := *s.current.Load()
	if check != nil {
		if err := check(prev); err != nil {
			return prev.clone(), err
		}
	}
	next, changed := reduce(prev, action)
	if changed {
		s.current.Store(&next)
		s.metrics.IncMutation(action.Kind.String())
	}
	if action.Kind.Persists() && !s.retired.Load() {
		s.persist(ctx, next.Items)
	}
	if changed {
		s.notify(next)
	}
	return next.clone(), nil
}

// retire marks the store as replaced. It waits for an in-flight mutation to finish so the
// last write lands before a successor hydrates.
func (s *Store) retire() {
	s.mu.Lock()
	s.retired.Store(true)
	s.mu.Unlock()
}

// retireIfIdle retires the store when it has not been used since cutoff and no mutation is
// running.
func (s *Store) retireIfIdle(cutoff time.Time) bool {
	if !s.mu.TryLock() {
		return false
	}
	defer s.mu.Unlock()
	if !s.IdleSince().Before(cutoff) {
		return false
	}
	s.retired.Store(true)
	return true
}

// successor returns the live store that replaced a retired one, or nil while this store is
// still current.
func (s *Store) successor(ctx context.Context) *Store {
	if !s.retired.Load() || s.reopen == nil {
		return nil
	}
	next, err := s.reopen(ctx)
	if err != nil || next == s {
		if err != nil && s.logg != nil {
			s.logg.Error(s.logg.WithField(ctx, "storage_key", s.key), "cart.reopen_failed", err)
		}
		return nil
	}
	return next
}

func (s *Store) persist(ctx context.Context, items []LineItem) {
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := encodeSnapshot(items)
	if err == nil {
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.persistTimeout)
		err = s.storage.Save(writeCtx, s.key, payload)
		cancel()
	}
	if err == nil {
		return
	}
	s.metrics.IncPersistFailure(s.storage.Backend())
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"storage_key": s.key,
			"backend":     s.storage.Backend(),
		})
		s.logg.Error(logCtx, "cart.persist_failed", err)
	}
}

func (s *Store) hydrate(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	logCtx := ctx
	if s.logg != nil {
		logCtx = s.logg.WithFields(ctx, map[string]any{
			"storage_key": s.key,
			"backend":     s.storage.Backend(),
		})
	}

	payload, found, err := s.storage.Load(ctx, s.key)
	switch {
	case err != nil:
		s.metrics.IncHydration(metrics.HydrationError)
		if s.logg != nil {
			s.logg.Error(logCtx, "cart.hydrate_failed", err)
		}
		return
	case !found || strings.TrimSpace(payload) == "":
		s.metrics.IncHydration(metrics.HydrationEmpty)
		return
	}

	items, dropped, err := decodeSnapshot(payload, s.newID)
	if err != nil {
		s.metrics.IncHydration(metrics.HydrationCorrupt)
		if s.logg != nil {
			s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "cart.snapshot_corrupt")
		}
		return
	}
	if dropped > 0 && s.logg != nil {
		s.logg.Warn(s.logg.WithField(logCtx, "dropped_items", dropped), "cart.snapshot_sanitized")
	}

	s.mu.Lock()
	next, _ := reduce(*s.current.Load(), Action{Kind: enums.CartActionLoad, Items: items})
	s.current.Store(&next)
	s.mu.Unlock()
	s.metrics.IncHydration(metrics.HydrationLoaded)
}

func (s *Store) notify(state State) {
	s.listenersMu.RLock()
	ids := make([]uint64, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	s.listenersMu.RUnlock()
	slices.Sort(ids)

	for _, id := range ids {
		s.listenersMu.RLock()
		fn, ok := s.listeners[id]
		s.listenersMu.RUnlock()
		if ok {
			fn(state.clone())
		}
	}
}

func (s *Store) touch() {
	s.lastUsed.Store(s.now().UnixNano())
}
