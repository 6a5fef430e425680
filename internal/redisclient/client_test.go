package redisclient

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("Integration test - set REDIS_TEST_ADDR")
	}
	c, err := NewClient(addr, os.Getenv("REDIS_TEST_PASSWORD"), 0, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestIdempotencyLifecycle(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	key := fmt.Sprintf("test-%d", time.Now().UnixNano())
	t.Cleanup(func() { _ = c.Release(ctx, key) })

	orderID, pending, err := c.Lookup(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, orderID)
	assert.False(t, pending)

	ok, err := c.Reserve(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Reserve(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok, "second reservation must fail")

	_, pending, err = c.Lookup(ctx, key)
	require.NoError(t, err)
	assert.True(t, pending)

	require.NoError(t, c.Complete(ctx, key, "65f1c0ffee0000000000abcd"))
	orderID, pending, err = c.Lookup(ctx, key)
	require.NoError(t, err)
	assert.False(t, pending)
	assert.Equal(t, "65f1c0ffee0000000000abcd", orderID)
}

func TestIdempotencyRelease(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	key := fmt.Sprintf("test-%d", time.Now().UnixNano())

	ok, err := c.Reserve(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, c.Release(ctx, key))

	ok, err = c.Reserve(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, c.Release(ctx, key))
}

func TestIdempotencyKeyNamespace(t *testing.T) {
	assert.Equal(t, "idempotency:order:abc", idempotencyKey("abc"))
}
