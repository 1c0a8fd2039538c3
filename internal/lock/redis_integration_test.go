//go:build integration

package lock

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestRedisLockIsExclusive(t *testing.T) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })

	first := NewRedis(client)
	second := NewRedis(client)
	const key = "practice-engine:notifications:2025-10-29T12"

	ok, err := first.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = second.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	require.ErrorIs(t, second.Unlock(ctx, key), ErrNotHeld)
	require.NoError(t, first.Unlock(ctx, key))

	ok, err = second.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, second.Unlock(ctx, key))
}

func TestRedisLockExpires(t *testing.T) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })

	holder := NewRedis(client)
	ok, err := holder.TryLock(ctx, "short", 200*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(500 * time.Millisecond)

	ok, err = NewRedis(client).TryLock(ctx, "short", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	// The expired holder must not release the new owner's lock.
	require.ErrorIs(t, holder.Unlock(ctx, "short"), ErrNotHeld)
}
