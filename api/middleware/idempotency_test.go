package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthplusinnovation/storefront/api/validators"
	pkgerrors "github.com/healthplusinnovation/storefront/pkg/errors"
	"github.com/healthplusinnovation/storefront/pkg/types"
)

type fakeStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Lookup(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = fmt.Sprint(value)
	return true, nil
}

func (f *fakeStore) Set(ctx context.Context, key string, value any, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = fmt.Sprint(value)
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func (f *fakeStore) Del(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func requestWithPattern(method, url, pattern string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, url, body)
	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{pattern}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rc)
	return req.WithContext(WithSessionID(ctx, "session-a"))
}

func checkoutRequest(key, body string) *http.Request {
	req := requestWithPattern(http.MethodPost, "/api/v1/checkout", "/api/v1/checkout", strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyHeader, key)
	}
	return req
}

func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env types.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Error.Code
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	called := false
	h := Idempotency(newFakeStore(), time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, checkoutRequest("", `{}`))

	assert.False(t, called)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeValidation), decodeErrorCode(t, rec))
}

func TestIdempotencyRequiresHeaderWithoutStore(t *testing.T) {
	h := Idempotency(nil, time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, checkoutRequest("", `{}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, checkoutRequest("k1", `{}`))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestIdempotencyIgnoresOtherRoutes(t *testing.T) {
	calls := 0
	h := Idempotency(newFakeStore(), time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	req := requestWithPattern(http.MethodPost, "/api/v1/basket/items", "/api/v1/basket/items", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	calls := 0
	h := Idempotency(store, time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"name":"Asha"}`, string(body))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"order_number":"12345678"}}`))
	}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, checkoutRequest("k1", `{"name":"Asha"}`))
	require.Equal(t, http.StatusCreated, first.Code)

	second := httptest.NewRecorder()
	h.ServeHTTP(second, checkoutRequest("k1", `{"name":"Asha"}`))

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
	assert.Equal(t, first.Body.String(), second.Body.String())
}

func TestIdempotencyRejectsDifferentBody(t *testing.T) {
	store := newFakeStore()
	h := Idempotency(store, time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	h.ServeHTTP(httptest.NewRecorder(), checkoutRequest("k1", `{"name":"Asha"}`))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, checkoutRequest("k1", `{"name":"Ravi"}`))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeIdempotency), decodeErrorCode(t, rec))
}

func TestIdempotencyRejectsInFlightDuplicate(t *testing.T) {
	store := newFakeStore()
	req := checkoutRequest("k1", `{}`)
	key := store.IdempotencyKey(buildScope(req), "k1")
	store.data[key] = pendingMarker

	called := false
	h := Idempotency(store, time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestIdempotencyReleasesRetryableResponses(t *testing.T) {
	for _, status := range []int{http.StatusPaymentRequired, http.StatusTooManyRequests, http.StatusServiceUnavailable} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			store := newFakeStore()
			calls := 0
			h := Idempotency(store, time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.WriteHeader(status)
			}))

			h.ServeHTTP(httptest.NewRecorder(), checkoutRequest("k1", `{}`))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, checkoutRequest("k1", `{}`))

			assert.Equal(t, 2, calls)
			assert.Equal(t, status, rec.Code)
			assert.Empty(t, store.data)
		})
	}
}

func TestIdempotencyScopesBySession(t *testing.T) {
	store := newFakeStore()
	calls := 0
	h := Idempotency(store, time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	h.ServeHTTP(httptest.NewRecorder(), checkoutRequest("k1", `{}`))

	other := checkoutRequest("k1", `{}`)
	other = other.WithContext(WithSessionID(other.Context(), "session-b"))
	h.ServeHTTP(httptest.NewRecorder(), other)

	assert.Equal(t, 2, calls)
}

func TestIdempotencyPersistsAfterClientDisconnect(t *testing.T) {
	cases := map[string]struct {
		status int
		stored bool
	}{
		"success recorded": {status: http.StatusCreated, stored: true},
		"failure released": {status: http.StatusServiceUnavailable, stored: false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			store := newFakeStore()
			h := Idempotency(store, time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))

			req := checkoutRequest("k1", `{"a":1}`)
			ctx, cancel := context.WithCancel(req.Context())
			cancel()
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req.WithContext(ctx))

			stored, ok, err := store.Lookup(context.Background(), store.IdempotencyKey("session-a|POST|/api/v1/checkout", "k1"))
			require.NoError(t, err)
			if !tc.stored {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.NotEqual(t, pendingMarker, stored)
			record, err := decodeRecord(stored)
			require.NoError(t, err)
			assert.Equal(t, tc.status, record.Status)
		})
	}
}

func TestIdempotencyRejectsOversizedBody(t *testing.T) {
	called := false
	store := newFakeStore()
	h := Idempotency(store, time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, checkoutRequest("k1", strings.Repeat("x", validators.MaxBodyBytes+1)))

	assert.False(t, called)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeValidation), decodeErrorCode(t, rec))
	assert.Empty(t, store.data)
}
