package cron

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryLockStore struct {
	data map[string]string
}

func (m *memoryLockStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryLockStore) Lookup(_ context.Context, key string) (string, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryLockStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func TestRedisLockExclusiveAndOwnerChecked(t *testing.T) {
	store := &memoryLockStore{data: map[string]string{}}
	ctx := context.Background()

	first, err := NewRedisLock(store, "hpi:maintenance:lock", 0)
	require.NoError(t, err)
	second, err := NewRedisLock(store, "hpi:maintenance:lock", 0)
	require.NoError(t, err)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, second.Release(ctx))
	assert.Contains(t, store.data, "hpi:maintenance:lock")

	require.NoError(t, first.Release(ctx))
	assert.NotContains(t, store.data, "hpi:maintenance:lock")
}

func TestRedisLockDoesNotDeleteForeignLease(t *testing.T) {
	store := &memoryLockStore{data: map[string]string{}}
	ctx := context.Background()

	lock, err := NewRedisLock(store, "k", time.Minute)
	require.NoError(t, err)
	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	store.data["k"] = "someone-else"
	require.NoError(t, lock.Release(ctx))
	assert.Equal(t, "someone-else", store.data["k"])
}

func TestNewRedisLockValidates(t *testing.T) {
	_, err := NewRedisLock(nil, "k", 0)
	assert.Error(t, err)
	_, err = NewRedisLock(&memoryLockStore{}, "", 0)
	assert.Error(t, err)
}

func TestLocalLock(t *testing.T) {
	var lock LocalLock
	ctx := context.Background()

	ok, _ := lock.Acquire(ctx)
	assert.True(t, ok)
	ok, _ = lock.Acquire(ctx)
	assert.False(t, ok)
	require.NoError(t, lock.Release(ctx))
	ok, _ = lock.Acquire(ctx)
	assert.True(t, ok)
}
