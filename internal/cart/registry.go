package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornman/cornman-backend/pkg/logger"
	"github.com/cornman/cornman-backend/pkg/metrics"
	"go.uber.org/multierr"
)

const (
	defaultIdleTTL      = 30 * time.Minute
	maxSessionIDLength  = 128
	sessionKeySeparator = ":"
)

// ErrInvalidSession is returned for empty or oversized session identifiers.
var ErrInvalidSession = errors.New("invalid cart session id")

// RegistryParams wires a Registry.
type RegistryParams struct {
	Storage        Storage
	KeyPrefix      string
	IdleTTL        time.Duration
	PersistTimeout time.Duration
	Logger         *logger.Logger
	Metrics        *metrics.CartMetrics
	Now            func() time.Time
	NewID          func() string
}

// Registry holds one Store per cart session, creating and hydrating stores on first use.
type Registry struct {
	params RegistryParams

	mu      sync.Mutex
	entries map[string]*registryEntry
}

type registryEntry struct {
	once  sync.Once
	store atomic.Pointer[Store]
	err   error
}

func NewRegistry(params RegistryParams) (*Registry, error) {
	if params.Storage == nil {
		return nil, errors.New("cart storage required")
	}
	if strings.TrimSpace(params.KeyPrefix) == "" {
		params.KeyPrefix = DefaultStorageKey
	}
	if params.IdleTTL <= 0 {
		params.IdleTTL = defaultIdleTTL
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &Registry{params: params, entries: map[string]*registryEntry{}}, nil
}

// StorageKey namespaces a session under the configured prefix.
func StorageKey(prefix, sessionID string) string {
	return prefix + sessionKeySeparator + sessionID
}

// Get returns the store for sessionID, hydrating it from storage the first time. Each call
// counts as use of the session for idle eviction.
func (r *Registry) Get(ctx context.Context, sessionID string) (*Store, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" || len(sessionID) > maxSessionIDLength {
		return nil, ErrInvalidSession
	}

	for {
		r.mu.Lock()
		entry, ok := r.entries[sessionID]
		if !ok {
			entry = &registryEntry{}
			r.entries[sessionID] = entry
		}
		count := len(r.entries)
		r.mu.Unlock()

		entry.once.Do(func() {
			var store *Store
			store, entry.err = NewStore(ctx, StoreParams{
				Key:            StorageKey(r.params.KeyPrefix, sessionID),
				Storage:        r.params.Storage,
				Logger:         r.params.Logger,
				Metrics:        r.params.Metrics,
				NewID:          r.params.NewID,
				PersistTimeout: r.params.PersistTimeout,
				Now:            r.params.Now,
			})
			if store != nil {
				store.reopen = func(ctx context.Context) (*Store, error) {
					return r.Get(ctx, sessionID)
				}
			}
			entry.store.Store(store)
		})
		if entry.err != nil {
			r.drop(sessionID, entry)
			return nil, fmt.Errorf("open cart session: %w", entry.err)
		}
		if !ok {
			r.params.Metrics.SetSessions(count)
		}

		store := entry.store.Load()
		r.mu.Lock()
		current := r.entries[sessionID] == entry
		if current {
			store.touch()
		}
		r.mu.Unlock()
		if current {
			return store, nil
		}
		// evicted or disposed between lookup and use; open a fresh store
	}
}

// Dispose forgets the in-memory store for sessionID. The persisted snapshot is kept, and a
// caller still holding the old store is routed to the next one.
func (r *Registry) Dispose(sessionID string) {
	sessionID = strings.TrimSpace(sessionID)
	r.mu.Lock()
	if entry, ok := r.entries[sessionID]; ok {
		if store := entry.store.Load(); store != nil {
			store.retire()
		}
		delete(r.entries, sessionID)
	}
	count := len(r.entries)
	r.mu.Unlock()
	r.params.Metrics.SetSessions(count)
}

// Len reports the number of live stores.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// EvictIdle drops stores untouched for longer than the idle TTL and returns how many went.
// Stores with a mutation in flight are kept until the next sweep.
func (r *Registry) EvictIdle() int {
	cutoff := r.params.Now().Add(-r.params.IdleTTL)

	r.mu.Lock()
	evicted := 0
	for id, entry := range r.entries {
		store := entry.store.Load()
		if store == nil {
			continue
		}
		if store.retireIfIdle(cutoff) {
			delete(r.entries, id)
			evicted++
		}
	}
	count := len(r.entries)
	r.mu.Unlock()

	if evicted > 0 {
		r.params.Metrics.SetSessions(count)
	}
	return evicted
}

// Run sweeps idle stores every interval until ctx is canceled.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := r.EvictIdle(); n > 0 && r.params.Logger != nil {
				r.params.Logger.Info(r.params.Logger.WithField(ctx, "evicted", n), "cart.sessions_evicted")
			}
		}
	}
}

// Flush rewrites every live store's snapshot, collecting failures.
func (r *Registry) Flush(ctx context.Context) error {
	r.mu.Lock()
	stores := make([]*Store, 0, len(r.entries))
	for _, entry := range r.entries {
		if store := entry.store.Load(); store != nil {
			stores = append(stores, store)
		}
	}
	r.mu.Unlock()

	var errs error
	for _, store := range stores {
		if err := store.Flush(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("flush %s: %w", store.Key(), err))
		}
	}
	return errs
}

func (r *Registry) drop(sessionID string, entry *registryEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.entries[sessionID]; ok && current == entry {
		delete(r.entries, sessionID)
	}
}
