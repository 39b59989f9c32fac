package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/Sternrassler/gemini-mind/internal/testutil"
	"github.com/Sternrassler/gemini-mind/pkg/cache"
	"github.com/Sternrassler/gemini-mind/pkg/client"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setEnv pins the configuration environment for one test.
func setEnv(t *testing.T, overrides map[string]string) {
	t.Helper()

	env := map[string]string{
		"GEMINI_API_KEY":       "cli-key",
		"GEMINI_DEFAULT_MODEL": "",
		"GEMINI_API_VERSION":   "",
		"GEMINI_TIMEOUT":       "",
		"GEMINI_MAX_RETRIES":   "",
		"GEMINI_CACHE_ENABLED": "",
		"GEMINI_CACHE_TTL":     "",
		"REDIS_URL":            "",
		"LOG_LEVEL":            "disabled",
		"LOG_PRETTY":           "",
		"PORT":                 "",
	}
	for k, v := range overrides {
		env[k] = v
	}
	for k, v := range env {
		t.Setenv(k, v)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	out := &bytes.Buffer{}
	cmd := newRootCmd(out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestGenerate(t *testing.T) {
	setEnv(t, nil)
	mock := testutil.NewMockGemini()
	defer mock.Close()
	mock.SetResponse("gemini-1.5-pro", testutil.NewTextResponse("Hi", "there"))

	out, err := execute(t, "generate", "Say hi",
		"--base-url", mock.URL(),
		"--model", "gemini-1.5-pro",
		"--system", "be brief",
		"--option", `generationConfig={"temperature":0.3}`,
	)
	require.NoError(t, err)
	assert.Equal(t, "Hi there\n", out)

	assert.Equal(t, "key=cli-key", mock.LastQuery())
	body := mock.LastBody()
	assert.Equal(t, map[string]any{"temperature": 0.3}, body["generationConfig"])
	assert.Contains(t, body, "system_instruction")
}

func TestGenerate_APIKeyFlag(t *testing.T) {
	setEnv(t, map[string]string{"GEMINI_API_KEY": ""})
	mock := testutil.NewMockGemini()
	defer mock.Close()

	_, err := execute(t, "generate", "hi", "--base-url", mock.URL())
	require.Error(t, err)
	assert.ErrorIs(t, err, client.ErrConfiguration)

	_, err = execute(t, "generate", "hi", "--base-url", mock.URL(), "--api-key", "flag-key")
	require.NoError(t, err)
	assert.Equal(t, "key=flag-key", mock.LastQuery())
}

func TestGenerate_Raw(t *testing.T) {
	setEnv(t, nil)
	mock := testutil.NewMockGemini()
	defer mock.Close()

	out, err := execute(t, "generate", "hi", "--base-url", mock.URL(), "--raw")
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	assert.Contains(t, payload, "candidates")
}

func TestGenerate_Errors(t *testing.T) {
	setEnv(t, nil)
	mock := testutil.NewMockGemini()
	defer mock.Close()

	mock.SetResponse("gemini-2.0-flash", testutil.NewRateLimitResponse())
	_, err := execute(t, "generate", "hi", "--base-url", mock.URL())
	assert.ErrorIs(t, err, client.ErrRateLimit)

	mock.SetResponse("gemini-2.0-flash", testutil.MockGeminiResponse{StatusCode: 200, Body: `{"candidates":[{"finishReason":"SAFETY"}]}`})
	_, err = execute(t, "generate", "hi", "--base-url", mock.URL())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocked")

	_, err = execute(t, "generate", "hi", "--base-url", mock.URL(), "--option", "broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key=json")

	_, err = execute(t, "generate")
	assert.Error(t, err, "prompt is required")
}

func TestFingerprint(t *testing.T) {
	setEnv(t, nil)

	out, err := execute(t, "fingerprint", "hello")
	require.NoError(t, err)

	expected := client.Fingerprint("hello", client.DefaultModel, nil, nil)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, expected, lines[0])
	assert.Equal(t, cache.Key(expected), lines[1])

	// Option flags and dedicated flags take part in the fingerprint
	out, err = execute(t, "fingerprint", "hello", "-m", "gemini-1.5-pro", "-s", "sys", "-o", `safetySettings=[]`)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out,
		client.Fingerprint("hello", "gemini-1.5-pro", client.String("sys"), map[string]any{"safetySettings": []any{}})))
}

func TestFingerprint_DefaultModelFromEnv(t *testing.T) {
	setEnv(t, map[string]string{"GEMINI_DEFAULT_MODEL": "gemini-exp"})

	out, err := execute(t, "fingerprint", "hello")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, client.Fingerprint("hello", "gemini-exp", nil, nil)))
}

func TestGenerate_EmptySystemFlag(t *testing.T) {
	setEnv(t, nil)
	mock := testutil.NewMockGemini()
	defer mock.Close()

	_, err := execute(t, "generate", "hi", "--base-url", mock.URL(), "--system", "")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"parts": []any{map[string]any{"text": ""}},
	}, mock.LastBody()["system_instruction"])

	_, err = execute(t, "generate", "hi", "--base-url", mock.URL())
	require.NoError(t, err)
	assert.NotContains(t, mock.LastBody(), "system_instruction")
}

func TestCache_Unavailable(t *testing.T) {
	setEnv(t, map[string]string{"REDIS_URL": "redis://127.0.0.1:1/0"})

	_, err := execute(t, "cache", "clear-all")
	assert.ErrorIs(t, err, errCacheUnavailable)

	_, err = execute(t, "cache", "clear", "abc")
	assert.ErrorIs(t, err, errCacheUnavailable)

	_, err = execute(t, "cache", "list")
	assert.ErrorIs(t, err, errCacheUnavailable)
}

func TestCache_NoAPIKeyNeeded(t *testing.T) {
	setEnv(t, map[string]string{"GEMINI_API_KEY": "", "REDIS_URL": "redis://127.0.0.1:1/0"})

	// Reaching the Redis check proves the missing key was not rejected
	_, err := execute(t, "cache", "clear-all")
	assert.ErrorIs(t, err, errCacheUnavailable)
}

func TestCache_ClearWithRedis(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	defer rdb.Close()
	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	require.NoError(t, rdb.FlushDB(ctx).Err())
	t.Cleanup(func() { rdb.FlushDB(context.Background()) })

	setEnv(t, map[string]string{"REDIS_URL": "redis://localhost:6379/15"})

	require.NoError(t, rdb.Set(ctx, cache.Key("one"), "{}", 0).Err())
	require.NoError(t, rdb.Set(ctx, cache.Key("two"), "{}", 0).Err())
	require.NoError(t, rdb.Set(ctx, "other", "keep", 0).Err())

	out, err := execute(t, "cache", "clear", "one")
	require.NoError(t, err)
	assert.Equal(t, "Cleared gemini_mind:one\n", out)
	assert.Equal(t, int64(0), rdb.Exists(ctx, cache.Key("one")).Val())
	assert.Equal(t, int64(1), rdb.Exists(ctx, cache.Key("two")).Val())

	out, err = execute(t, "cache", "list")
	require.NoError(t, err)
	assert.Equal(t, "two\n", out)

	out, err = execute(t, "cache", "clear-all")
	require.NoError(t, err)
	assert.Equal(t, "Cleared gemini_mind:two\nCleared 1 cached responses\n", out)
	assert.Equal(t, int64(0), rdb.Exists(ctx, cache.Key("two")).Val())
	assert.Equal(t, int64(1), rdb.Exists(ctx, "other").Val())
}

func TestParseOptionFlags(t *testing.T) {
	values, err := parseOptionFlags([]string{`a=1`, `b={"x":"y"}`, `c="text"`})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"a": float64(1),
		"b": map[string]any{"x": "y"},
		"c": "text",
	}, values)

	values, err = parseOptionFlags(nil)
	require.NoError(t, err)
	assert.Nil(t, values)

	_, err = parseOptionFlags([]string{"=1"})
	assert.Error(t, err)
	_, err = parseOptionFlags([]string{"a=not json"})
	assert.Error(t, err)
}

func TestGenerateOptions_FlagsWin(t *testing.T) {
	opts, err := generateOptions([]string{`model="from-option"`, `system_instruction="opt"`}, "from-flag", nil)
	require.NoError(t, err)
	assert.Equal(t, "from-flag", opts.Model)
	assert.Equal(t, client.String("opt"), opts.SystemInstruction)
	assert.Nil(t, opts.Options)

	opts, err = generateOptions([]string{`system_instruction="opt"`}, "", client.String(""))
	require.NoError(t, err)
	assert.Equal(t, client.String(""), opts.SystemInstruction)

	_, err = generateOptions([]string{`model=1`}, "", nil)
	assert.ErrorIs(t, err, client.ErrAPI)
}
