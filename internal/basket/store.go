package basket

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/healthplusinnovation/storefront/internal/catalog"
	"github.com/healthplusinnovation/storefront/pkg/logger"
	"github.com/healthplusinnovation/storefront/pkg/metrics"
)

// DefaultStorageKey is the versioned key snapshots are written under. Bumping the suffix
// starts every session from an empty basket.
const DefaultStorageKey = "hpi_cart_v3"

// State is the store lifecycle position.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Mutation operation names, used for observers and metrics.
const (
	OpAdd    = "add"
	OpRemove = "remove"
	OpUpdate = "update"
	OpClear  = "clear"
)

// Observer is notified synchronously after every applied mutation with a copy of the lines.
type Observer interface {
	BasketChanged(ctx context.Context, op string, lines []Line)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, op string, lines []Line)

func (f ObserverFunc) BasketChanged(ctx context.Context, op string, lines []Line) {
	f(ctx, op, lines)
}

// StoreOptions configures a Store.
type StoreOptions struct {
	// Scope identifies the browser session the snapshot belongs to.
	Scope string
	// Key defaults to DefaultStorageKey.
	Key     string
	Storage Storage
	Logger  *logger.Logger
	Metrics *metrics.BasketMetrics
}

// Store holds the basket lines of one session and derives its totals.
type Store struct {
	mu        sync.RWMutex
	state     State
	lines     []Line
	observers []Observer

	scope   string
	key     string
	storage Storage
	logg    *logger.Logger
	metrics *metrics.BasketMetrics
}

// NewStore builds an uninitialized store. When a storage is configured a Persister is
// registered as the first observer.
func NewStore(opts StoreOptions) *Store {
	key := opts.Key
	if key == "" {
		key = DefaultStorageKey
	}
	s := &Store{
		scope:   opts.Scope,
		key:     key,
		storage: opts.Storage,
		logg:    opts.Logger,
		metrics: opts.Metrics,
	}
	if opts.Storage != nil {
		s.observers = append(s.observers, NewPersister(opts.Storage, opts.Scope, key, opts.Logger, opts.Metrics))
	}
	return s
}

// Subscribe registers an additional observer.
func (s *Store) Subscribe(o Observer) {
	if o == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// State reports the lifecycle position.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Init restores the persisted snapshot and marks the store ready. Absent, malformed or
// unreadable snapshots yield an empty basket; Init never fails. Calling Init on a store that
// is already loading or ready does nothing.
func (s *Store) Init(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateUninitialized {
		s.mu.Unlock()
		return
	}
	s.state = StateLoading
	s.mu.Unlock()

	lines := s.restore(ctx)

	s.mu.Lock()
	s.lines = lines
	s.state = StateReady
	s.mu.Unlock()
}

func (s *Store) restore(ctx context.Context) []Line {
	if s.storage == nil {
		s.metrics.IncRestore(metrics.RestoreEmpty)
		return nil
	}
	data, ok, err := s.storage.Load(ctx, s.scope, s.key)
	if err != nil {
		s.metrics.IncRestore(metrics.RestoreError)
		s.warn(ctx, fmt.Sprintf("basket snapshot load failed, starting empty: %v", err))
		return nil
	}
	if !ok {
		s.metrics.IncRestore(metrics.RestoreEmpty)
		return nil
	}
	lines, repaired, err := decodeSnapshot(data)
	if err != nil {
		s.metrics.IncRestore(metrics.RestoreMalformed)
		s.warn(ctx, fmt.Sprintf("basket snapshot malformed, starting empty: %v", err))
		return nil
	}
	if repaired {
		s.warn(ctx, "basket snapshot contained invalid or duplicate lines; they were dropped or merged")
	}
	s.metrics.IncRestore(metrics.RestoreFound)
	return lines
}

func (s *Store) warn(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Warn(ctx, msg)
	}
}

// AddToCart increments the line for product by quantity, appending a new line when the
// product is not yet in the basket. Non-positive quantities are ignored and the line
// saturates at MaxLineQuantity.
func (s *Store) AddToCart(ctx context.Context, product catalog.Product, quantity int) {
	if quantity <= 0 {
		return
	}
	s.mutate(ctx, OpAdd, func(lines []Line) ([]Line, bool) {
		for i := range lines {
			if lines[i].ID == product.ID {
				next := addQuantity(lines[i].Quantity, quantity)
				if next == lines[i].Quantity {
					return lines, false
				}
				lines[i].Quantity = next
				return lines, true
			}
		}
		return append(lines, Line{Product: product, Quantity: clampQuantity(quantity)}), true
	})
}

// RemoveFromCart deletes the line for productID if present.
func (s *Store) RemoveFromCart(ctx context.Context, productID string) {
	s.mutate(ctx, OpRemove, func(lines []Line) ([]Line, bool) {
		return removeLine(lines, productID)
	})
}

// UpdateQuantity sets the quantity of an existing line, capped at MaxLineQuantity.
// Non-positive quantities remove it.
func (s *Store) UpdateQuantity(ctx context.Context, productID string, quantity int) {
	if quantity <= 0 {
		s.mutate(ctx, OpRemove, func(lines []Line) ([]Line, bool) {
			return removeLine(lines, productID)
		})
		return
	}
	quantity = clampQuantity(quantity)
	s.mutate(ctx, OpUpdate, func(lines []Line) ([]Line, bool) {
		for i := range lines {
			if lines[i].ID == productID {
				lines[i].Quantity = quantity
				return lines, true
			}
		}
		return lines, false
	})
}

// ClearCart empties the basket. The empty snapshot is persisted even if it already was empty.
func (s *Store) ClearCart(ctx context.Context) {
	s.mutate(ctx, OpClear, func([]Line) ([]Line, bool) {
		return nil, true
	})
}

func removeLine(lines []Line, productID string) ([]Line, bool) {
	for i := range lines {
		if lines[i].ID == productID {
			return append(lines[:i], lines[i+1:]...), true
		}
	}
	return lines, false
}

// mutate applies fn to a private copy of the lines and, if fn reports a change, swaps the copy
// in and notifies observers. Mutations before the store is ready are dropped.
func (s *Store) mutate(ctx context.Context, op string, fn func([]Line) ([]Line, bool)) {
	s.mu.Lock()
	if s.state != StateReady {
		s.mu.Unlock()
		return
	}
	next, changed := fn(cloneLines(s.lines))
	if !changed {
		s.mu.Unlock()
		return
	}
	s.lines = next
	observers := append([]Observer(nil), s.observers...)
	snapshot := cloneLines(next)
	s.mu.Unlock()

	s.metrics.IncMutation(op)
	for _, o := range observers {
		o.BasketChanged(ctx, op, cloneLines(snapshot))
	}
}

// Lines returns a copy of the ordered lines. It is empty until the store is ready.
func (s *Store) Lines() []Line {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateReady {
		return []Line{}
	}
	return cloneLines(s.lines)
}

// CartTotal is the sum of price × quantity over the current lines.
func (s *Store) CartTotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range s.Lines() {
		total = total.Add(l.Subtotal())
	}
	return total
}

// CartCount is the sum of quantities over the current lines.
func (s *Store) CartCount() int {
	count := 0
	for _, l := range s.Lines() {
		count += l.Quantity
	}
	return count
}

// TotalSavings is the sum of per-line savings against the mrp.
func (s *Store) TotalSavings() decimal.Decimal {
	total := decimal.Zero
	for _, l := range s.Lines() {
		total = total.Add(l.Savings())
	}
	return total
}

// View is a consistent read of the basket taken under a single lock.
type View struct {
	Lines        []Line
	CartTotal    decimal.Decimal
	CartCount    int
	TotalSavings decimal.Decimal
}

// Snapshot returns the lines and all derived totals computed from the same state.
func (s *Store) Snapshot() View {
	lines := s.Lines()
	view := View{Lines: lines, CartTotal: decimal.Zero, TotalSavings: decimal.Zero}
	for _, l := range lines {
		view.CartTotal = view.CartTotal.Add(l.Subtotal())
		view.CartCount += l.Quantity
		view.TotalSavings = view.TotalSavings.Add(l.Savings())
	}
	return view
}
