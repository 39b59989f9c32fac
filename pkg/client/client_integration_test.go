//go:build integration

package client

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Sternrassler/gemini-mind/internal/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedisContainer starts a Redis container and returns its URL.
func setupRedisContainer(t *testing.T) (string, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := redisContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := redisContainer.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cleanup := func() {
		redisContainer.Terminate(ctx)
	}

	return fmt.Sprintf("redis://%s:%s/0", host, port.Port()), cleanup
}

func newIntegrationClient(t *testing.T, mock *testutil.MockGemini, redisURL string, ttl time.Duration) *Client {
	t.Helper()

	cfg := DefaultConfig("integration-key")
	cfg.CacheEnabled = true
	cfg.CacheTTL = ttl
	cfg.RedisURL = redisURL

	c, err := New(cfg, WithBaseURL(mock.URL()), WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	require.NotNil(t, c.Cache())
	require.True(t, c.Cache().Enabled(), "cache should connect to the container")
	return c
}

func TestIntegration_FullRequestFlow(t *testing.T) {
	redisURL, cleanup := setupRedisContainer(t)
	defer cleanup()

	mock := testutil.NewMockGemini()
	defer mock.Close()
	mock.SetResponse("gemini-2.0-flash", testutil.NewTextResponse("integration"))

	c := newIntegrationClient(t, mock, redisURL, time.Hour)
	ctx := context.Background()

	// Request 1: Cache miss, API call, cache write
	resp, err := c.GenerateContent(ctx, "hello", GenerateOptions{})
	require.NoError(t, err)
	text, _ := resp.Text()
	assert.Equal(t, "integration", text)
	assert.Equal(t, 1, mock.GetRequestCount())

	// Request 2: Cache hit
	resp, err = c.GenerateContent(ctx, "hello", GenerateOptions{})
	require.NoError(t, err)
	text, _ = resp.Text()
	assert.Equal(t, "integration", text)
	assert.Equal(t, 1, mock.GetRequestCount(), "second call should be served from Redis")

	// Request 3: Different options, different fingerprint
	_, err = c.GenerateContent(ctx, "hello", GenerateOptions{
		Options: map[string]any{"generationConfig": map[string]any{"temperature": 0.9}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, mock.GetRequestCount())
}

func TestIntegration_ClearAll(t *testing.T) {
	redisURL, cleanup := setupRedisContainer(t)
	defer cleanup()

	mock := testutil.NewMockGemini()
	defer mock.Close()

	c := newIntegrationClient(t, mock, redisURL, time.Hour)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := c.GenerateContent(ctx, fmt.Sprintf("prompt %d", i), GenerateOptions{})
		require.NoError(t, err)
	}
	assert.Equal(t, 5, mock.GetRequestCount())

	// Unrelated keys survive ClearAll
	opts, err := redis.ParseURL(redisURL)
	require.NoError(t, err)
	other := redis.NewClient(opts)
	defer other.Close()
	require.NoError(t, other.Set(ctx, "unrelated:key", "keep", 0).Err())

	require.True(t, c.Cache().ClearAll(ctx))

	_, err = c.GenerateContent(ctx, "prompt 0", GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, 6, mock.GetRequestCount(), "cleared entry must be fetched again")

	value, err := other.Get(ctx, "unrelated:key").Result()
	require.NoError(t, err)
	assert.Equal(t, "keep", value)
}

func TestIntegration_ErrorClassification(t *testing.T) {
	redisURL, cleanup := setupRedisContainer(t)
	defer cleanup()

	mock := testutil.NewMockGemini()
	defer mock.Close()
	mock.SetResponse("gemini-2.0-flash", testutil.NewRateLimitResponse())

	c := newIntegrationClient(t, mock, redisURL, time.Hour)
	ctx := context.Background()

	// Failures are never cached
	for i := 0; i < 2; i++ {
		_, err := c.GenerateContent(ctx, "hello", GenerateOptions{})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrRateLimit)
	}
	assert.Equal(t, 2, mock.GetRequestCount())
}

func TestIntegration_CacheExpiration(t *testing.T) {
	redisURL, cleanup := setupRedisContainer(t)
	defer cleanup()

	mock := testutil.NewMockGemini()
	defer mock.Close()

	c := newIntegrationClient(t, mock, redisURL, time.Second)
	ctx := context.Background()

	_, err := c.GenerateContent(ctx, "hello", GenerateOptions{})
	require.NoError(t, err)
	_, err = c.GenerateContent(ctx, "hello", GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, mock.GetRequestCount())

	// Wait for the TTL to expire
	time.Sleep(1500 * time.Millisecond)

	_, err = c.GenerateContent(ctx, "hello", GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, mock.GetRequestCount(), "expired entry must be fetched again")
}
