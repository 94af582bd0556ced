package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "MARINET"
	defaultHTTPAddress   = "0.0.0.0:8080"
	defaultLogLevel      = "info"
	defaultLogFormat     = "json"
	defaultStorageDriver = StorageSQLite
	defaultDatabasePath  = "marinet.db"
	defaultRedisURL      = "redis://127.0.0.1:6379/0"
	defaultRedisPrefix   = "marinet:"
	defaultTokenTTL      = 60
	defaultCookieName    = "marinet_access"
	defaultGeminiModel   = "gemini-2.0-flash"
	defaultTutorTimeout  = 30 * time.Second
	defaultUpstreamHost  = "generativelanguage.googleapis.com"
)

// Storage drivers accepted by storage.driver.
const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
	StorageRedis  = "redis"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress   string
	LogLevel      string
	LogFormat     string
	StorageDriver string
	DatabasePath  string
	RedisURL      string
	RedisPrefix   string
	SigningSecret string
	CookieName    string
	TokenTTL      time.Duration
	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string
	TutorTimeout  time.Duration
	TutorOffline  bool
	UpstreamHosts []string
	SeedEnabled   bool
	DemoProfiles  int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("storage.driver", defaultStorageDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("redis.url", defaultRedisURL)
	configViper.SetDefault("redis.prefix", defaultRedisPrefix)
	configViper.SetDefault("auth.cookie_name", defaultCookieName)
	configViper.SetDefault("token.ttl_minutes", defaultTokenTTL)
	configViper.SetDefault("gemini.model", defaultGeminiModel)
	configViper.SetDefault("tutor.timeout", defaultTutorTimeout)
	configViper.SetDefault("tutor.offline", false)
	configViper.SetDefault("gateway.upstream_hosts", []string{defaultUpstreamHost})
	configViper.SetDefault("seed.enabled", true)
	configViper.SetDefault("seed.demo_profiles", 0)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:   configViper.GetString("http.address"),
		LogLevel:      configViper.GetString("log.level"),
		LogFormat:     strings.ToLower(strings.TrimSpace(configViper.GetString("log.format"))),
		StorageDriver: strings.ToLower(strings.TrimSpace(configViper.GetString("storage.driver"))),
		DatabasePath:  configViper.GetString("database.path"),
		RedisURL:      configViper.GetString("redis.url"),
		RedisPrefix:   configViper.GetString("redis.prefix"),
		SigningSecret: configViper.GetString("auth.signing_secret"),
		CookieName:    configViper.GetString("auth.cookie_name"),
		TokenTTL:      time.Duration(configViper.GetInt("token.ttl_minutes")) * time.Minute,
		GeminiAPIKey:  configViper.GetString("gemini.api_key"),
		GeminiModel:   configViper.GetString("gemini.model"),
		GeminiBaseURL: configViper.GetString("gemini.base_url"),
		TutorTimeout:  configViper.GetDuration("tutor.timeout"),
		TutorOffline:  configViper.GetBool("tutor.offline"),
		UpstreamHosts: splitHosts(configViper.GetStringSlice("gateway.upstream_hosts")),
		SeedEnabled:   configViper.GetBool("seed.enabled"),
		DemoProfiles:  configViper.GetInt("seed.demo_profiles"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// TutorOnline reports whether tutor requests go to the Gemini API.
func (c AppConfig) TutorOnline() bool {
	return !c.TutorOffline && strings.TrimSpace(c.GeminiAPIKey) != ""
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.CookieName) == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token.ttl_minutes must be positive")
	}
	switch c.StorageDriver {
	case StorageMemory:
	case StorageSQLite:
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required")
		}
	case StorageRedis:
		if strings.TrimSpace(c.RedisURL) == "" {
			return fmt.Errorf("redis.url is required")
		}
	default:
		return fmt.Errorf("storage.driver %q is not supported", c.StorageDriver)
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return fmt.Errorf("log.format %q is not supported", c.LogFormat)
	}
	if c.TutorTimeout < 0 {
		return fmt.Errorf("tutor.timeout must not be negative")
	}
	if c.DemoProfiles < 0 {
		return fmt.Errorf("seed.demo_profiles must not be negative")
	}
	return nil
}

// splitHosts accepts both list values and a single comma separated string from the environment.
func splitHosts(values []string) []string {
	hosts := make([]string, 0, len(values))
	for _, value := range values {
		for _, host := range strings.Split(value, ",") {
			if host = strings.TrimSpace(host); host != "" {
				hosts = append(hosts, host)
			}
		}
	}
	return hosts
}
