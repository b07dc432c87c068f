// Package config loads service settings from defaults, an optional YAML file
// and INSIGHT_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// INSIGHT_SERVER_HTTP_ADDR for server.http_addr.
const EnvPrefix = "INSIGHT"

// Config is the full service configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Stream     StreamConfig     `mapstructure:"stream"`
	Vision     VisionConfig     `mapstructure:"vision"`
	Generation GenerationConfig `mapstructure:"generation"`
	Backoff    BackoffConfig    `mapstructure:"backoff"`
	Breaker    BreakerConfig    `mapstructure:"breaker"`
	Cache      CacheConfig      `mapstructure:"cache"`
}

type ServerConfig struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	GRPCAddr        string        `mapstructure:"grpc_addr"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type StreamConfig struct {
	MinInterval time.Duration `mapstructure:"min_interval"`
	Keepalive   time.Duration `mapstructure:"keepalive"`
}

type VisionConfig struct {
	Endpoint             string        `mapstructure:"endpoint"`
	Key                  string        `mapstructure:"key"`
	APIVersion           string        `mapstructure:"api_version"`
	Language             string        `mapstructure:"language"`
	GenderNeutralCaption bool          `mapstructure:"gender_neutral_caption"`
	Timeout              time.Duration `mapstructure:"timeout"`
	MaxAttempts          int           `mapstructure:"max_attempts"`
}

type GenerationConfig struct {
	Provider    string        `mapstructure:"provider"` // azure, openai, gemini, relay or none
	Endpoint    string        `mapstructure:"endpoint"`
	Deployment  string        `mapstructure:"deployment"`
	APIVersion  string        `mapstructure:"api_version"`
	Model       string        `mapstructure:"model"`
	APIKeys     []string      `mapstructure:"api_keys"`
	MaxTokens   int32         `mapstructure:"max_tokens"`
	Temperature float32       `mapstructure:"temperature"`
	RelayURL    string        `mapstructure:"relay_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type BackoffConfig struct {
	MaxRetries int           `mapstructure:"max_retries"`
	Base       time.Duration `mapstructure:"base"`
	Factor     float64       `mapstructure:"factor"`
	MaxDelay   time.Duration `mapstructure:"max_delay"`
}

type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
}

type CacheConfig struct {
	RedisAddr     string        `mapstructure:"redis_addr"` // empty disables the cache
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
}

// Generation providers.
const (
	ProviderAzure  = "azure"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderRelay  = "relay"
	ProviderNone   = "none"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_addr", ":5000")
	v.SetDefault("server.grpc_addr", ":50051")
	v.SetDefault("server.metrics_addr", ":9090")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_upload_bytes", 16<<20)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("cors.allowed_origins", []string{"*"})

	v.SetDefault("stream.min_interval", 10*time.Millisecond)
	v.SetDefault("stream.keepalive", time.Duration(0))

	v.SetDefault("vision.endpoint", "")
	v.SetDefault("vision.key", "")
	v.SetDefault("vision.api_version", "2023-10-01")
	v.SetDefault("vision.language", "en")
	v.SetDefault("vision.gender_neutral_caption", true)
	v.SetDefault("vision.timeout", 30*time.Second)
	v.SetDefault("vision.max_attempts", 1)

	v.SetDefault("generation.provider", ProviderAzure)
	v.SetDefault("generation.endpoint", "")
	v.SetDefault("generation.deployment", "gpt-35-turbo")
	v.SetDefault("generation.api_version", "2022-12-01")
	v.SetDefault("generation.model", "")
	v.SetDefault("generation.api_keys", []string{})
	v.SetDefault("generation.max_tokens", 200)
	v.SetDefault("generation.temperature", 0.7)
	v.SetDefault("generation.relay_url", "")
	v.SetDefault("generation.timeout", 30*time.Second)

	v.SetDefault("backoff.max_retries", 5)
	v.SetDefault("backoff.base", 5*time.Second)
	v.SetDefault("backoff.factor", 1.5)
	v.SetDefault("backoff.max_delay", time.Duration(0))

	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.cooldown", 30*time.Second)

	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.ttl", time.Hour)
}

// New returns a viper instance with defaults and environment overrides
// registered. Callers may bind flags into it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load reads path (when non-empty) into v, applies legacy environment
// names and decodes the result.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyLegacyEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.Generation.APIKeys = splitKeys(cfg.Generation.APIKeys)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.Generation.Provider {
	case ProviderAzure, ProviderOpenAI, ProviderGemini, ProviderNone:
	case ProviderRelay:
		if c.Generation.RelayURL == "" {
			return errors.New("config: generation.relay_url is required for the relay provider")
		}
	default:
		return fmt.Errorf("config: unknown generation.provider %q", c.Generation.Provider)
	}

	if c.Backoff.MaxRetries < 1 {
		return errors.New("config: backoff.max_retries must be at least 1")
	}
	if c.Backoff.Factor < 1 {
		return errors.New("config: backoff.factor must be at least 1")
	}
	if c.Vision.MaxAttempts < 1 {
		return errors.New("config: vision.max_attempts must be at least 1")
	}
	return nil
}

// Settings returns a flattened, sorted view of v with secrets masked.
func Settings(v *viper.Viper) []string {
	flattened := map[string]string{}
	flattenSettings("", v.AllSettings(), flattened)

	lines := make([]string, 0, len(flattened))
	for key, value := range flattened {
		if isSecret(key) && value != "" {
			value = "********"
		}
		lines = append(lines, key+"="+value)
	}
	sort.Strings(lines)
	return lines
}

// legacyEnvOverrides maps config keys to the unprefixed variable names the
// service used to read.
func legacyEnvOverrides() map[string]string {
	return map[string]string{
		"vision.endpoint":     "AZURE_VISION_ENDPOINT",
		"vision.key":          "AZURE_VISION_KEY",
		"generation.endpoint": "AZURE_OPENAI_ENDPOINT",
		"generation.api_keys": "AZURE_OPENAI_KEY",
	}
}

func applyLegacyEnv(v *viper.Viper) {
	for key, legacy := range legacyEnvOverrides() {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if _, ok := os.LookupEnv(prefixed); ok {
			continue
		}
		if value, ok := os.LookupEnv(legacy); ok && value != "" {
			v.Set(key, value)
		}
	}
}

// splitKeys accepts both list values and a single comma-separated entry.
func splitKeys(in []string) []string {
	keys := []string{}
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				keys = append(keys, part)
			}
		}
	}
	return keys
}

func isSecret(key string) bool {
	return strings.HasSuffix(key, ".key") || strings.HasSuffix(key, "api_keys") || strings.HasSuffix(key, "password")
}

func flattenSettings(prefix string, settings map[string]interface{}, out map[string]string) {
	for key, value := range settings {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := value.(map[string]interface{}); ok {
			flattenSettings(fullKey, nested, out)
			continue
		}
		out[fullKey] = valueToString(value)
	}
}

func valueToString(value interface{}) string {
	switch typed := value.(type) {
	case []string:
		return strings.Join(typed, ",")
	case []interface{}:
		parts := make([]string, 0, len(typed))
		for _, item := range typed {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(value)
	}
}
