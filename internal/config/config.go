package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                = "POKEDECK"
	defaultHTTPAddress       = "0.0.0.0:8080"
	defaultDatabasePath      = "pokedeck.db"
	defaultLogLevel          = "info"
	defaultLogEncoding       = "json"
	defaultPokeAPIURL        = "https://pokeapi.co/api/v2"
	defaultDeckServiceURL    = "http://localhost:8000"
	defaultRateLimitMillis   = 100
	defaultTimeoutSeconds    = 30
	defaultCacheTTLMinutes   = 60
	defaultAllowedOriginsRaw = "http://localhost:3000"
	defaultViewIdleMinutes   = 120
)

// AppConfig captures runtime configuration for the View API server.
type AppConfig struct {
	HTTPAddress        string
	DatabasePath       string
	LogLevel           string
	LogEncoding        string
	PokeAPIURL         string
	CatalogRateLimit   time.Duration
	CatalogCacheTTL    time.Duration
	DeckServiceURL     string
	DeckServiceTimeout time.Duration
	AllowedOrigins     []string
	ViewIdleTimeout    time.Duration
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
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.encoding", defaultLogEncoding)
	configViper.SetDefault("catalog.pokeapi_url", defaultPokeAPIURL)
	configViper.SetDefault("catalog.rate_limit_ms", defaultRateLimitMillis)
	configViper.SetDefault("catalog.cache_ttl_minutes", defaultCacheTTLMinutes)
	configViper.SetDefault("deckservice.base_url", defaultDeckServiceURL)
	configViper.SetDefault("deckservice.timeout_seconds", defaultTimeoutSeconds)
	configViper.SetDefault("cors.allowed_origins", defaultAllowedOriginsRaw)
	configViper.SetDefault("views.idle_timeout_minutes", defaultViewIdleMinutes)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		DatabasePath:       configViper.GetString("database.path"),
		LogLevel:           configViper.GetString("log.level"),
		LogEncoding:        strings.ToLower(strings.TrimSpace(configViper.GetString("log.encoding"))),
		PokeAPIURL:         strings.TrimSpace(configViper.GetString("catalog.pokeapi_url")),
		CatalogRateLimit:   time.Duration(configViper.GetInt("catalog.rate_limit_ms")) * time.Millisecond,
		CatalogCacheTTL:    time.Duration(configViper.GetInt("catalog.cache_ttl_minutes")) * time.Minute,
		DeckServiceURL:     strings.TrimSpace(configViper.GetString("deckservice.base_url")),
		DeckServiceTimeout: time.Duration(configViper.GetInt("deckservice.timeout_seconds")) * time.Second,
		AllowedOrigins:     splitList(configViper.GetString("cors.allowed_origins")),
		ViewIdleTimeout:    time.Duration(configViper.GetInt("views.idle_timeout_minutes")) * time.Minute,
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.HTTPAddress) == "" {
		return fmt.Errorf("http.address is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.LogEncoding != "json" && c.LogEncoding != "console" {
		return fmt.Errorf("log.encoding must be json or console, got %q", c.LogEncoding)
	}
	if !isAbsoluteURL(c.PokeAPIURL) {
		return fmt.Errorf("catalog.pokeapi_url must be an absolute url")
	}
	if !isAbsoluteURL(c.DeckServiceURL) {
		return fmt.Errorf("deckservice.base_url must be an absolute url")
	}
	if c.CatalogRateLimit <= 0 {
		return fmt.Errorf("catalog.rate_limit_ms must be positive")
	}
	if c.DeckServiceTimeout <= 0 {
		return fmt.Errorf("deckservice.timeout_seconds must be positive")
	}
	if c.CatalogCacheTTL < 0 {
		return fmt.Errorf("catalog.cache_ttl_minutes must not be negative")
	}
	if c.ViewIdleTimeout <= 0 {
		return fmt.Errorf("views.idle_timeout_minutes must be positive")
	}
	return nil
}

func splitList(raw string) []string {
	values := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}

func isAbsoluteURL(raw string) bool {
	parsed, err := url.Parse(raw)
	return err == nil && parsed.Scheme != "" && parsed.Host != ""
}
