// Package config loads forum-mcp configuration from defaults, an optional
// YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix applies to keys without a legacy binding: retry.max_attempts is
// read from FORUM_RETRY_MAX_ATTEMPTS and forum.requests_per_second from
// FORUM_REQUESTS_PER_SECOND.
const EnvPrefix = "FORUM"

// Transports accepted by server.transport.
const (
	TransportStdio          = "stdio"
	TransportSSE            = "sse"
	TransportStreamableHTTP = "streamable-http"
)

// Config is the complete, immutable configuration.
type Config struct {
	Forum   ForumConfig
	Retry   RetryConfig
	Auth    AuthConfig
	Cache   CacheConfig
	Server  ServerConfig
	Logging LoggingConfig
}

// ForumConfig describes the upstream forum and request pacing.
type ForumConfig struct {
	BaseURL           string
	UserAgent         string
	Timeout           time.Duration
	RequestsPerSecond float64
	MaxPages          int
	Concurrency       int
	WriteEnabled      bool
}

// RetryConfig mirrors client.RetryPolicy.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64
}

// AuthConfig holds startup credentials. Username/password win over the API key.
type AuthConfig struct {
	Username     string
	Password     string
	SecondFactor string
	APIKey       string
	ClientID     string
}

// CacheConfig enables the Redis-backed response cache and shared cooldowns.
type CacheConfig struct {
	RedisURL string
	TTL      time.Duration
	Disabled bool
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Transport       string
	Host            string
	Port            int
	Token           string
	ShutdownTimeout time.Duration
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level  string
	Pretty bool
}

// envBindings keeps the variable names of existing deployments.
var envBindings = map[string][]string{
	"forum.base_url":      {"USCARDFORUM_URL", "FORUM_BASE_URL"},
	"forum.timeout":       {"USCARDFORUM_TIMEOUT", "FORUM_TIMEOUT"},
	"forum.write_enabled": {"NITAN_WRITE_ENABLED", "FORUM_WRITE_ENABLED"},
	"auth.username":       {"NITAN_USERNAME"},
	"auth.password":       {"NITAN_PASSWORD"},
	"auth.second_factor":  {"NITAN_TOTP", "FORUM_SECOND_FACTOR"},
	"auth.api_key":        {"NITAN_API_KEY"},
	"auth.client_id":      {"NITAN_API_CLIENT_ID"},
	"server.token":        {"NITAN_TOKEN"},
	"server.transport":    {"MCP_TRANSPORT"},
	"server.host":         {"MCP_HOST"},
	"server.port":         {"MCP_PORT"},
	"cache.redis_url":     {"REDIS_URL"},
	"logging.level":       {"LOG_LEVEL"},
	"logging.pretty":      {"LOG_PRETTY"},
}

// SetDefaults installs the default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("forum.base_url", "https://www.uscardforum.com")
	v.SetDefault("forum.user_agent", "")
	v.SetDefault("forum.timeout", "15s")
	v.SetDefault("forum.requests_per_second", 4.0)
	v.SetDefault("forum.max_pages", 100)
	v.SetDefault("forum.concurrency", 4)
	v.SetDefault("forum.write_enabled", false)

	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.base_delay", "2s")
	v.SetDefault("retry.max_delay", "30s")
	v.SetDefault("retry.jitter", 0.2)

	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl", "2m")
	v.SetDefault("cache.disabled", false)

	v.SetDefault("server.transport", TransportStdio)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.pretty", false)
}

// NewViper returns a viper instance with defaults and environment bindings.
// configFile, when non-empty, is read as YAML.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}
	for _, key := range v.AllKeys() {
		rest, ok := strings.CutPrefix(key, "forum.")
		if _, bound := envBindings[key]; !ok || bound {
			continue
		}
		if err := v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(rest)); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return v, nil
}

// Load builds and validates a Config from v.
func Load(v *viper.Viper) (*Config, error) {
	timeout, err := seconds(v, "forum.timeout")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Forum: ForumConfig{
			BaseURL:           strings.TrimRight(v.GetString("forum.base_url"), "/"),
			UserAgent:         v.GetString("forum.user_agent"),
			Timeout:           timeout,
			RequestsPerSecond: v.GetFloat64("forum.requests_per_second"),
			MaxPages:          v.GetInt("forum.max_pages"),
			Concurrency:       v.GetInt("forum.concurrency"),
			WriteEnabled:      truthy(v.GetString("forum.write_enabled")),
		},
		Retry: RetryConfig{
			MaxAttempts: v.GetInt("retry.max_attempts"),
			BaseDelay:   v.GetDuration("retry.base_delay"),
			MaxDelay:    v.GetDuration("retry.max_delay"),
			Jitter:      v.GetFloat64("retry.jitter"),
		},
		Auth: AuthConfig{
			Username:     v.GetString("auth.username"),
			Password:     v.GetString("auth.password"),
			SecondFactor: v.GetString("auth.second_factor"),
			APIKey:       v.GetString("auth.api_key"),
			ClientID:     v.GetString("auth.client_id"),
		},
		Cache: CacheConfig{
			RedisURL: v.GetString("cache.redis_url"),
			TTL:      v.GetDuration("cache.ttl"),
			Disabled: v.GetBool("cache.disabled"),
		},
		Server: ServerConfig{
			Transport:       strings.ToLower(v.GetString("server.transport")),
			Host:            v.GetString("server.host"),
			Port:            v.GetInt("server.port"),
			Token:           v.GetString("server.token"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Pretty: v.GetBool("logging.pretty"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the client or server cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if u, err := url.Parse(c.Forum.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("forum.base_url must be an absolute URL (got %q)", c.Forum.BaseURL))
	}
	if c.Forum.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("forum.timeout must be positive"))
	}
	if c.Forum.RequestsPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("forum.requests_per_second must be positive"))
	}
	if c.Forum.MaxPages < 1 {
		errs = append(errs, fmt.Errorf("forum.max_pages must be at least 1"))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be at least 1"))
	}
	if c.Retry.BaseDelay <= 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		errs = append(errs, fmt.Errorf("retry delays must be positive with max_delay >= base_delay"))
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		errs = append(errs, fmt.Errorf("retry.jitter must be within [0,1] (got %v)", c.Retry.Jitter))
	}
	switch c.Server.Transport {
	case TransportStdio, TransportSSE, TransportStreamableHTTP:
	default:
		errs = append(errs, fmt.Errorf("server.transport must be stdio, sse or streamable-http (got %q)", c.Server.Transport))
	}
	if c.Server.Transport != TransportStdio && (c.Server.Port < 1 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Errorf("server.port out of range (got %d)", c.Server.Port))
	}

	return errors.Join(errs...)
}

// seconds accepts a Go duration ("15s") or plain seconds ("15", "2.5").
func seconds(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0, nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", key, raw)
	}
	return d, nil
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
