package client

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Sternrassler/gemini-mind/pkg/cache"
)

// Defaults used by DefaultConfig.
const (
	DefaultModel      = "gemini-2.0-flash"
	DefaultAPIVersion = "v1beta"
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultCacheTTL   = time.Hour
	DefaultRedisURL   = "redis://localhost:6379/0"
	DefaultBaseURL    = "https://generativelanguage.googleapis.com"
)

// Config holds the client configuration.
type Config struct {
	// APIKey is sent as the `key` query parameter (REQUIRED)
	APIKey string

	// DefaultModel is used when a call does not name a model
	DefaultModel string

	// APIVersion is the path prefix, e.g. "v1beta"
	APIVersion string

	// Timeout bounds a whole HTTP round trip
	Timeout time.Duration

	// MaxRetries is accepted for compatibility; the client never retries
	MaxRetries int

	// Caching
	CacheEnabled bool
	CacheTTL     time.Duration
	RedisURL     string
}

// DefaultConfig returns a fresh configuration with default values and the
// given API key.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:       apiKey,
		DefaultModel: DefaultModel,
		APIVersion:   DefaultAPIVersion,
		Timeout:      DefaultTimeout,
		MaxRetries:   DefaultMaxRetries,
		CacheEnabled: false,
		CacheTTL:     DefaultCacheTTL,
		RedisURL:     DefaultRedisURL,
	}
}

// Validate checks the configuration invariants and returns a
// KindConfiguration error describing the first violation.
func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return newError(KindConfiguration, "API key is required")
	}
	if c.CacheEnabled && c.CacheTTL <= 0 {
		return newError(KindConfiguration, "cache TTL must be positive when cache is enabled (got %s)", c.CacheTTL)
	}
	if c.CacheEnabled && c.RedisURL == "" {
		return newError(KindConfiguration, "redis URL is required when cache is enabled")
	}
	if c.DefaultModel == "" {
		return newError(KindConfiguration, "default model is required")
	}
	if c.APIVersion == "" {
		return newError(KindConfiguration, "API version is required")
	}
	if c.Timeout < 0 {
		return newError(KindConfiguration, "timeout must not be negative (got %s)", c.Timeout)
	}
	if c.MaxRetries < 0 {
		return newError(KindConfiguration, "max retries must not be negative (got %d)", c.MaxRetries)
	}
	return nil
}

// CacheConfig projects the cache-related fields for cache.NewManager.
func (c Config) CacheConfig() cache.Config {
	return cache.Config{
		Enabled:  c.CacheEnabled,
		TTL:      c.CacheTTL,
		RedisURL: c.RedisURL,
	}
}

// Overrides lists the configuration fields a caller may replace for one
// client. Nil fields leave the base value untouched.
type Overrides struct {
	APIKey       *string
	DefaultModel *string
	APIVersion   *string
	Timeout      *time.Duration
	MaxRetries   *int
	CacheEnabled *bool
	CacheTTL     *time.Duration
	RedisURL     *string
}

// Apply returns a copy of cfg with every non-nil override applied.
func (o Overrides) Apply(cfg Config) Config {
	if o.APIKey != nil {
		cfg.APIKey = *o.APIKey
	}
	if o.DefaultModel != nil {
		cfg.DefaultModel = *o.DefaultModel
	}
	if o.APIVersion != nil {
		cfg.APIVersion = *o.APIVersion
	}
	if o.Timeout != nil {
		cfg.Timeout = *o.Timeout
	}
	if o.MaxRetries != nil {
		cfg.MaxRetries = *o.MaxRetries
	}
	if o.CacheEnabled != nil {
		cfg.CacheEnabled = *o.CacheEnabled
	}
	if o.CacheTTL != nil {
		cfg.CacheTTL = *o.CacheTTL
	}
	if o.RedisURL != nil {
		cfg.RedisURL = *o.RedisURL
	}
	return cfg
}

// ParseOverrides converts a loosely typed map (decoded JSON, CLI flags)
// into Overrides. Recognized keys are api_key, default_model, api_version,
// timeout, max_retries, cache_enabled, cache_ttl and redis_url. Durations
// accept a Go duration string or a number of seconds. Unknown keys and
// mistyped values fail with KindConfiguration.
func ParseOverrides(values map[string]any) (Overrides, error) {
	var o Overrides

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		v := values[key]
		var err error
		switch key {
		case "api_key":
			o.APIKey, err = overrideString(key, v)
		case "default_model":
			o.DefaultModel, err = overrideString(key, v)
		case "api_version":
			o.APIVersion, err = overrideString(key, v)
		case "redis_url":
			o.RedisURL, err = overrideString(key, v)
		case "timeout":
			o.Timeout, err = overrideDuration(key, v)
		case "cache_ttl":
			o.CacheTTL, err = overrideDuration(key, v)
		case "max_retries":
			o.MaxRetries, err = overrideInt(key, v)
		case "cache_enabled":
			b, ok := v.(bool)
			if !ok {
				err = newError(KindConfiguration, "%s must be a boolean, got %T", key, v)
			}
			o.CacheEnabled = &b
		default:
			err = newError(KindConfiguration, "unknown configuration key %q", key)
		}
		if err != nil {
			return Overrides{}, err
		}
	}
	return o, nil
}

func overrideString(key string, v any) (*string, error) {
	s, ok := v.(string)
	if !ok {
		return nil, newError(KindConfiguration, "%s must be a string, got %T", key, v)
	}
	return &s, nil
}

func overrideInt(key string, v any) (*int, error) {
	switch n := v.(type) {
	case int:
		return &n, nil
	case int64:
		i := int(n)
		return &i, nil
	case float64:
		if n != float64(int(n)) {
			return nil, newError(KindConfiguration, "%s must be an integer, got %v", key, n)
		}
		i := int(n)
		return &i, nil
	default:
		return nil, newError(KindConfiguration, "%s must be an integer, got %T", key, v)
	}
}

func overrideDuration(key string, v any) (*time.Duration, error) {
	switch d := v.(type) {
	case time.Duration:
		return &d, nil
	case string:
		parsed, err := time.ParseDuration(d)
		if err != nil {
			return nil, &Error{Kind: KindConfiguration, Message: fmt.Sprintf("%s is not a duration", key), Err: err}
		}
		return &parsed, nil
	case int:
		parsed := time.Duration(d) * time.Second
		return &parsed, nil
	case int64:
		parsed := time.Duration(d) * time.Second
		return &parsed, nil
	case float64:
		parsed := time.Duration(d * float64(time.Second))
		return &parsed, nil
	default:
		return nil, newError(KindConfiguration, "%s must be a duration, got %T", key, v)
	}
}
