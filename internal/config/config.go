package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config aggregates every setting the relay server needs.
type Config struct {
	Server     ServerConfig
	Auth       AuthConfig
	Translator TranslatorConfig
	Store      StoreConfig
	Relay      RelayConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	auth, err := loadAuthConfig()
	if err != nil {
		return nil, err
	}

	trans, err := loadTranslatorConfig()
	if err != nil {
		return nil, err
	}

	relayCfg, err := loadRelayConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:     server,
		Auth:       auth,
		Translator: trans,
		Store:      loadStoreConfig(),
		Relay:      relayCfg,
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Accept ":8080" or "127.0.0.1:8080" as-is.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AuthConfig covers credential signing and provider API keys.
type AuthConfig struct {
	Secret        string
	Issuer        string
	CredentialTTL time.Duration

	// ProviderKeys authorize session creation. Token issuance for providers
	// is an external concern; the relay only checks membership.
	ProviderKeys []string
}

func loadAuthConfig() (AuthConfig, error) {
	secret := strings.TrimSpace(os.Getenv("AUTH_SECRET"))
	if secret == "" {
		return AuthConfig{}, fmt.Errorf("AUTH_SECRET is required")
	}

	ttl := 12 * time.Hour
	if override, err := parseOptionalIntEnv("AUTH_CREDENTIAL_TTL_MINUTES"); err != nil {
		return AuthConfig{}, err
	} else if override != nil {
		ttl = time.Duration(*override) * time.Minute
	}

	var keys []string
	for _, key := range strings.Split(os.Getenv("PROVIDER_API_KEYS"), ",") {
		if key = strings.TrimSpace(key); key != "" {
			keys = append(keys, key)
		}
	}

	return AuthConfig{
		Secret:        secret,
		Issuer:        getEnvOrDefault("AUTH_ISSUER", "lingobridge"),
		CredentialTTL: ttl,
		ProviderKeys:  keys,
	}, nil
}

// IsProviderKey reports whether the bearer key authorizes provider calls.
func (c AuthConfig) IsProviderKey(key string) bool {
	for _, k := range c.ProviderKeys {
		if k == key {
			return true
		}
	}
	return false
}

// TranslatorConfig describes the remote translation model.
type TranslatorConfig struct {
	APIKey    string
	AccessKey string
	SecretKey string
	Model     string
	BaseURL   string
	Region    string
	Timeout   time.Duration
}

func loadTranslatorConfig() (TranslatorConfig, error) {
	timeout := 20 * time.Second
	if override, err := parseOptionalIntEnv("TRANSLATOR_TIMEOUT_SECONDS"); err != nil {
		return TranslatorConfig{}, err
	} else if override != nil {
		timeout = time.Duration(*override) * time.Second
	}

	return TranslatorConfig{
		APIKey:    strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey: strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey: strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:     strings.TrimSpace(os.Getenv("TRANSLATOR_MODEL")),
		BaseURL:   getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:    getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Timeout:   timeout,
	}, nil
}

// Enabled reports whether remote translation credentials are configured.
// Without them the relay runs edge-only.
func (c TranslatorConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel builds the chat model instance behind the remote path.
func (c TranslatorConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("remote translator credentials missing: set ARK_API_KEY (or AK/SK) and TRANSLATOR_MODEL")
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:   c.BaseURL,
		Region:    c.Region,
		APIKey:    c.APIKey,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		Model:     c.Model,
	}

	return ark.NewChatModel(ctx, cfg)
}

// StoreConfig selects the session store backend.
type StoreConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// UseRedis reports whether sessions persist to redis instead of memory.
func (c StoreConfig) UseRedis() bool { return c.RedisAddr != "" }

func loadStoreConfig() StoreConfig {
	db := 0
	if raw := strings.TrimSpace(os.Getenv("REDIS_DB")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			db = parsed
		}
	}
	return StoreConfig{
		RedisAddr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       db,
	}
}

// RelayConfig tunes routing behavior.
type RelayConfig struct {
	OutboxCapacity int
	ProviderGrace  time.Duration
}

func loadRelayConfig() (RelayConfig, error) {
	capacity := 0
	if override, err := parseOptionalIntEnv("RELAY_OUTBOX_CAPACITY"); err != nil {
		return RelayConfig{}, err
	} else if override != nil {
		capacity = *override
	}

	grace := time.Duration(0)
	if override, err := parseOptionalIntEnv("RELAY_PROVIDER_GRACE_SECONDS"); err != nil {
		return RelayConfig{}, err
	} else if override != nil {
		grace = time.Duration(*override) * time.Second
	}

	return RelayConfig{OutboxCapacity: capacity, ProviderGrace: grace}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
