// Package appconfig loads the configuration of the gemini-mind binaries
// from environment variables and an optional config file.
package appconfig

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Sternrassler/gemini-mind/pkg/client"
	"github.com/Sternrassler/gemini-mind/pkg/logging"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// DefaultPort is the proxy listen port.
const DefaultPort = 8080

// Config holds everything a binary needs to start.
type Config struct {
	Client  client.Config
	Logging logging.Config
	Port    int
}

// envBindings maps configuration keys to the environment variables that
// set them. Config file keys use the same names as ParseOverrides.
var envBindings = map[string]string{
	"api_key":       "GEMINI_API_KEY",
	"default_model": "GEMINI_DEFAULT_MODEL",
	"api_version":   "GEMINI_API_VERSION",
	"timeout":       "GEMINI_TIMEOUT",
	"max_retries":   "GEMINI_MAX_RETRIES",
	"cache_enabled": "GEMINI_CACHE_ENABLED",
	"cache_ttl":     "GEMINI_CACHE_TTL",
	"redis_url":     "REDIS_URL",
	"log_level":     "LOG_LEVEL",
	"log_pretty":    "LOG_PRETTY",
	"port":          "PORT",
}

// Load reads the configuration. Environment variables take precedence
// over configFile (YAML, JSON or TOML, optional), which takes precedence
// over the library defaults. The API key is not required here; callers
// may still supply it through flags before client.New validates.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	defaults := client.DefaultConfig("")

	v.SetDefault("default_model", defaults.DefaultModel)
	v.SetDefault("api_version", defaults.APIVersion)
	v.SetDefault("timeout", defaults.Timeout.String())
	v.SetDefault("max_retries", defaults.MaxRetries)
	v.SetDefault("cache_enabled", defaults.CacheEnabled)
	v.SetDefault("cache_ttl", defaults.CacheTTL.String())
	v.SetDefault("redis_url", defaults.RedisURL)
	v.SetDefault("log_level", string(logging.LevelInfo))
	v.SetDefault("log_pretty", false)
	v.SetDefault("port", DefaultPort)
}

func fromViper(v *viper.Viper) (*Config, error) {
	maxRetries, err := cast.ToIntE(v.Get("max_retries"))
	if err != nil {
		return nil, fmt.Errorf("max_retries: %w", err)
	}
	cacheEnabled, err := cast.ToBoolE(v.Get("cache_enabled"))
	if err != nil {
		return nil, fmt.Errorf("cache_enabled: %w", err)
	}

	overrides, err := client.ParseOverrides(map[string]any{
		"api_key":       v.GetString("api_key"),
		"default_model": v.GetString("default_model"),
		"api_version":   v.GetString("api_version"),
		"timeout":       durationSetting(v.GetString("timeout")),
		"max_retries":   maxRetries,
		"cache_enabled": cacheEnabled,
		"cache_ttl":     durationSetting(v.GetString("cache_ttl")),
		"redis_url":     v.GetString("redis_url"),
	})
	if err != nil {
		return nil, err
	}

	level, err := logging.ParseLevel(v.GetString("log_level"))
	if err != nil {
		return nil, err
	}
	pretty, err := cast.ToBoolE(v.Get("log_pretty"))
	if err != nil {
		return nil, fmt.Errorf("log_pretty: %w", err)
	}

	port, err := cast.ToIntE(v.Get("port"))
	if err != nil {
		return nil, fmt.Errorf("port: %w", err)
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("port out of range: %d", port)
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = level
	logCfg.Pretty = pretty

	return &Config{
		Client:  overrides.Apply(client.DefaultConfig("")),
		Logging: logCfg,
		Port:    port,
	}, nil
}

// durationSetting passes bare numbers on as seconds and everything else
// as a Go duration string.
func durationSetting(s string) any {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
