package client_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cl "github.com/illmade-knight/go-connectivity/pkg/client"
)

func TestInMemoryReachabilityCache_PutThenGetRoundTrips(t *testing.T) {
	ctx := context.Background()
	c := cl.NewInMemoryReachabilityCache()

	_, ok := c.Get(ctx, "svc:80")
	require.False(t, ok, "empty cache should miss")

	c.Put(ctx, "svc:80", true)
	reachable, ok := c.Get(ctx, "svc:80")
	require.True(t, ok)
	assert.True(t, reachable)

	c.Put(ctx, "down:80", false)
	reachable, ok = c.Get(ctx, "down:80")
	require.True(t, ok)
	assert.False(t, reachable)
}
