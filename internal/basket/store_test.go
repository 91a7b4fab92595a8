package basket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthplusinnovation/storefront/internal/catalog"
	"github.com/healthplusinnovation/storefront/pkg/logger"
	"github.com/healthplusinnovation/storefront/pkg/metrics"
)

func product(id string, price, mrp int64) catalog.Product {
	return catalog.Product{
		ID:       id,
		Name:     "Product " + id,
		Category: "Analgesics",
		Price:    decimal.NewFromInt(price),
		MRP:      decimal.NewFromInt(mrp),
	}
}

func testLogger(buf *bytes.Buffer) *logger.Logger {
	return logger.New(logger.Options{ServiceName: "basket-test", Level: logger.ParseLevel("debug"), Output: buf})
}

func readyStore(t *testing.T, storage Storage) *Store {
	t.Helper()
	s := NewStore(StoreOptions{Scope: "session-1", Storage: storage, Logger: testLogger(&bytes.Buffer{})})
	s.Init(context.Background())
	require.Equal(t, StateReady, s.State())
	return s
}

type recordingStorage struct {
	mu      sync.Mutex
	payload []byte
	present bool
	loadErr error
	saveErr error
	saves   int
}

func (r *recordingStorage) Load(context.Context, string, string) ([]byte, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.payload, r.present, r.loadErr
}

func (r *recordingStorage) Save(_ context.Context, _, _ string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	if r.saveErr != nil {
		return r.saveErr
	}
	r.payload = append([]byte(nil), data...)
	r.present = true
	return nil
}

func (r *recordingStorage) savedLines(t *testing.T) []map[string]any {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []map[string]any
	require.NoError(t, json.Unmarshal(r.payload, &out))
	return out
}

func TestAddToCartAccumulatesIntoSingleLine(t *testing.T) {
	s := readyStore(t, NewMemoryStorage())
	ctx := context.Background()
	p := product("A", 100, 120)

	for _, qty := range []int{1, 2, 3, 4} {
		s.AddToCart(ctx, p, qty)
	}

	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "A", lines[0].ID)
	assert.Equal(t, 10, lines[0].Quantity)
}

func TestAddToCartIgnoresNonPositiveQuantity(t *testing.T) {
	storage := &recordingStorage{}
	s := readyStore(t, storage)
	ctx := context.Background()

	s.AddToCart(ctx, product("A", 10, 10), 0)
	s.AddToCart(ctx, product("A", 10, 10), -3)

	assert.Empty(t, s.Lines())
	assert.Zero(t, storage.saves)
}

func TestAddToCartAppendsInInsertionOrder(t *testing.T) {
	s := readyStore(t, NewMemoryStorage())
	ctx := context.Background()
	s.AddToCart(ctx, product("B", 5, 5), 1)
	s.AddToCart(ctx, product("A", 5, 5), 1)
	s.AddToCart(ctx, product("B", 5, 5), 1)

	lines := s.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "B", lines[0].ID)
	assert.Equal(t, "A", lines[1].ID)
}

func TestUpdateQuantityNonPositiveMatchesRemove(t *testing.T) {
	ctx := context.Background()
	for _, qty := range []int{0, -1} {
		updated := readyStore(t, NewMemoryStorage())
		removed := readyStore(t, NewMemoryStorage())
		for _, s := range []*Store{updated, removed} {
			s.AddToCart(ctx, product("A", 10, 12), 2)
			s.AddToCart(ctx, product("B", 20, 20), 1)
		}

		updated.UpdateQuantity(ctx, "A", qty)
		removed.RemoveFromCart(ctx, "A")

		assert.Equal(t, removed.Lines(), updated.Lines(), "quantity %d", qty)
		require.Len(t, updated.Lines(), 1)
		assert.Equal(t, "B", updated.Lines()[0].ID)
	}
}

func TestUpdateQuantityIsAbsoluteAndIgnoresUnknownIDs(t *testing.T) {
	storage := &recordingStorage{}
	s := readyStore(t, storage)
	ctx := context.Background()
	s.AddToCart(ctx, product("A", 10, 10), 3)
	saves := storage.saves

	s.UpdateQuantity(ctx, "A", 1)
	assert.Equal(t, 1, s.Lines()[0].Quantity)

	s.UpdateQuantity(ctx, "missing", 4)
	s.RemoveFromCart(ctx, "missing")
	assert.Equal(t, saves+1, storage.saves)
	assert.Len(t, s.Lines(), 1)
}

func TestTotalsRecomputeAfterEveryMutation(t *testing.T) {
	s := readyStore(t, NewMemoryStorage())
	ctx := context.Background()
	a := product("A", 100, 120)
	b := product("B", 50, 50)

	check := func(total int64, count int) {
		t.Helper()
		assert.True(t, s.CartTotal().Equal(decimal.NewFromInt(total)), "total %s != %d", s.CartTotal(), total)
		assert.Equal(t, count, s.CartCount())
	}

	check(0, 0)
	s.AddToCart(ctx, a, 2)
	check(200, 2)
	s.AddToCart(ctx, b, 1)
	check(250, 3)
	s.UpdateQuantity(ctx, "B", 4)
	check(400, 6)
	s.RemoveFromCart(ctx, "A")
	check(200, 4)
	s.ClearCart(ctx)
	check(0, 0)
}

func TestTotalSavingsClampsNegativeLines(t *testing.T) {
	s := readyStore(t, NewMemoryStorage())
	ctx := context.Background()
	s.AddToCart(ctx, product("A", 100, 120), 2)
	s.AddToCart(ctx, product("B", 80, 60), 5)

	assert.True(t, s.TotalSavings().Equal(decimal.NewFromInt(40)), "got %s", s.TotalSavings())
}

func TestClearCartPersistsEmptySnapshot(t *testing.T) {
	storage := &recordingStorage{}
	s := readyStore(t, storage)
	ctx := context.Background()
	s.AddToCart(ctx, product("A", 10, 10), 1)

	s.ClearCart(ctx)

	assert.Empty(t, s.Lines())
	assert.True(t, s.CartTotal().IsZero())
	assert.Zero(t, s.CartCount())
	assert.Equal(t, "[]", string(storage.payload))
}

func TestRestoreFromSnapshot(t *testing.T) {
	storage := &recordingStorage{
		present: true,
		payload: []byte(`[{"id":"A","name":"A","price":100,"mrp":100,"quantity":2},{"id":"B","name":"B","price":50,"mrp":60,"quantity":1}]`),
	}
	s := readyStore(t, storage)

	assert.True(t, s.CartTotal().Equal(decimal.NewFromInt(250)))
	assert.Equal(t, 3, s.CartCount())
	assert.True(t, s.TotalSavings().Equal(decimal.NewFromInt(10)))
	assert.Zero(t, storage.saves)
}

func TestRestoreRepairsInvalidLines(t *testing.T) {
	storage := &recordingStorage{
		present: true,
		payload: []byte(`[{"id":"A","price":"10","quantity":1},{"id":"","price":"5","quantity":1},{"id":"C","price":"5","quantity":0},{"id":"A","price":"10","quantity":2}]`),
	}
	s := readyStore(t, storage)

	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 3, lines[0].Quantity)
}

func TestRestoreDropsLinesWithWrongTypes(t *testing.T) {
	buf := &bytes.Buffer{}
	storage := &recordingStorage{
		present: true,
		payload: []byte(`[{"id":"A","price":"10","quantity":"two"},{"id":"B","price":"5","quantity":2},7]`),
	}
	s := NewStore(StoreOptions{Scope: "s", Storage: storage, Logger: testLogger(buf)})
	s.Init(context.Background())

	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "B", lines[0].ID)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.Contains(t, buf.String(), "dropped or merged")
}

func TestRestoreCapsMergedQuantities(t *testing.T) {
	storage := &recordingStorage{
		present: true,
		payload: []byte(`[{"id":"A","price":"10","quantity":9223372036854775807},{"id":"A","price":"10","quantity":1},{"id":"B","price":"5","quantity":998},{"id":"B","price":"5","quantity":998}]`),
	}
	s := readyStore(t, storage)

	lines := s.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, MaxLineQuantity, lines[0].Quantity)
	assert.Equal(t, MaxLineQuantity, lines[1].Quantity)
	assert.Equal(t, 2*MaxLineQuantity, s.CartCount())
	assert.True(t, s.CartTotal().IsPositive())
}

func TestAddToCartSaturatesAtLineCap(t *testing.T) {
	storage := &recordingStorage{}
	s := readyStore(t, storage)
	ctx := context.Background()
	p := product("A", 10, 12)

	s.AddToCart(ctx, p, math.MaxInt)
	s.AddToCart(ctx, p, 1)

	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, MaxLineQuantity, lines[0].Quantity)
	assert.Equal(t, MaxLineQuantity, s.CartCount())
	assert.True(t, s.CartTotal().Equal(decimal.NewFromInt(10*MaxLineQuantity)))
	assert.Equal(t, 1, storage.saves, "a saturated add changes nothing and is not persisted")

	s.UpdateQuantity(ctx, "A", math.MaxInt)
	assert.Equal(t, MaxLineQuantity, s.Lines()[0].Quantity)
}

func TestMalformedSnapshotStartsEmpty(t *testing.T) {
	cases := map[string]string{
		"object":    `{"id":"A","quantity":1}`,
		"string":    `"hpi"`,
		"truncated": `[{"id":"A"`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			storage := &recordingStorage{present: true, payload: []byte(payload)}
			s := NewStore(StoreOptions{Scope: "s", Storage: storage, Logger: testLogger(buf)})
			s.Init(context.Background())

			assert.Equal(t, StateReady, s.State())
			assert.Empty(t, s.Lines())
			assert.Contains(t, buf.String(), "malformed")
		})
	}
}

func TestLoadErrorStartsEmpty(t *testing.T) {
	storage := &recordingStorage{loadErr: errors.New("connection refused")}
	s := readyStore(t, storage)
	assert.Empty(t, s.Lines())
}

func TestMutationsBeforeReadyAreIgnored(t *testing.T) {
	storage := &recordingStorage{present: true, payload: []byte(`[{"id":"A","price":"10","quantity":1}]`)}
	s := NewStore(StoreOptions{Scope: "s", Storage: storage})
	ctx := context.Background()

	assert.Equal(t, StateUninitialized, s.State())
	s.AddToCart(ctx, product("B", 1, 1), 1)
	s.ClearCart(ctx)
	assert.Empty(t, s.Lines())
	assert.True(t, s.CartTotal().IsZero())
	assert.Zero(t, storage.saves)

	s.Init(ctx)
	require.Len(t, s.Lines(), 1)
	assert.Equal(t, "A", s.Lines()[0].ID)
}

func TestInitIsIdempotent(t *testing.T) {
	storage := &recordingStorage{}
	s := readyStore(t, storage)
	ctx := context.Background()
	s.AddToCart(ctx, product("A", 1, 1), 1)

	storage.payload = []byte(`[]`)
	s.Init(ctx)
	assert.Len(t, s.Lines(), 1)
}

func TestWriteFailureKeepsInMemoryState(t *testing.T) {
	buf := &bytes.Buffer{}
	reg := prometheus.NewRegistry()
	storage := &recordingStorage{saveErr: errors.New("quota exceeded")}
	s := NewStore(StoreOptions{Scope: "s", Storage: storage, Logger: testLogger(buf), Metrics: metrics.NewBasketMetrics(reg)})
	ctx := context.Background()
	s.Init(ctx)

	s.AddToCart(ctx, product("A", 10, 10), 2)

	assert.Equal(t, 2, s.CartCount())
	assert.Contains(t, buf.String(), "basket snapshot write failed")
	mfs, err := reg.Gather()
	require.NoError(t, err)
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "basket_persist_total" {
			found = true
			assert.Equal(t, float64(1), mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found)
}

func TestScenarioAddAddRemoveAbsentUpdate(t *testing.T) {
	storage := &recordingStorage{}
	s := readyStore(t, storage)
	ctx := context.Background()
	p1 := product("P1", 10, 10)

	s.AddToCart(ctx, p1, 1)
	s.AddToCart(ctx, p1, 2)
	s.RemoveFromCart(ctx, "P2")
	s.UpdateQuantity(ctx, "P1", 5)

	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "P1", lines[0].ID)
	assert.Equal(t, 5, lines[0].Quantity)

	saved := storage.savedLines(t)
	require.Len(t, saved, 1)
	assert.Equal(t, "P1", saved[0]["id"])
	assert.Equal(t, float64(5), saved[0]["quantity"])
}

func TestObserversReceiveCopies(t *testing.T) {
	s := readyStore(t, nil)
	ctx := context.Background()
	var ops []string
	s.Subscribe(ObserverFunc(func(_ context.Context, op string, lines []Line) {
		ops = append(ops, op)
		for i := range lines {
			lines[i].Quantity = 99
		}
	}))

	s.AddToCart(ctx, product("A", 1, 1), 1)
	s.UpdateQuantity(ctx, "A", 2)
	s.UpdateQuantity(ctx, "A", 0)
	s.ClearCart(ctx)

	assert.Equal(t, []string{OpAdd, OpUpdate, OpRemove, OpClear}, ops)
	assert.Empty(t, s.Lines())
}

func TestLinesReturnsCopy(t *testing.T) {
	s := readyStore(t, NewMemoryStorage())
	s.AddToCart(context.Background(), product("A", 1, 1), 1)

	lines := s.Lines()
	lines[0].Quantity = 42
	assert.Equal(t, 1, s.Lines()[0].Quantity)
}

func TestSnapshotMatchesDerivedReads(t *testing.T) {
	s := readyStore(t, NewMemoryStorage())
	ctx := context.Background()
	s.AddToCart(ctx, product("A", 100, 150), 2)
	s.AddToCart(ctx, product("B", 25, 20), 3)

	view := s.Snapshot()
	assert.True(t, view.CartTotal.Equal(s.CartTotal()))
	assert.Equal(t, s.CartCount(), view.CartCount)
	assert.True(t, view.TotalSavings.Equal(s.TotalSavings()))
	assert.Len(t, view.Lines, 2)
}
