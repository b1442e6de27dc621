// Package config holds the process-wide settings for the LiveAssist SDK.
// Settings are loaded once at startup and passed explicitly into the
// constructors that need them; nothing in the SDK reads the environment
// after that.
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultAppKey is the application key used when none is configured.
	DefaultAppKey = "721c180b09eb463d9f3191c41762bb68"
	// DefaultContextDataPath is the context ingestion endpoint path.
	DefaultContextDataPath = "/context-service/context"
	// DefaultDiscoveryBaseURL is the well-known domain discovery endpoint.
	DefaultDiscoveryBaseURL = "http://api.liveperson.net"
	// DefaultScheme is the URL scheme for account-scoped service calls.
	DefaultScheme = "https"
	// DefaultRequestTimeout bounds every network round trip.
	DefaultRequestTimeout = 5 * time.Second
)

// Settings is the immutable process configuration. Construct it once with
// Load (or by hand in tests) and share it freely; it is never mutated by the
// SDK.
type Settings struct {
	AccountID          string `yaml:"accountId"`
	AppKey             string `yaml:"appKey"`
	ConversationDomain string `yaml:"conversationDomain"`
	ContextDataHost    string `yaml:"contextDataHost"`
	ContextDataPath    string `yaml:"contextDataPath"`
	DiscoveryBaseURL   string `yaml:"discoveryBaseURL"`
	Scheme             string `yaml:"scheme"`
	LogLevel           string `yaml:"logLevel"`

	// RequestTimeout is configured through LA_REQUEST_TIMEOUT only.
	RequestTimeout time.Duration `yaml:"-"`
}

// Load reads settings from LA_* environment variables. A .env file in the
// working directory is picked up first when present.
func Load() (*Settings, error) {
	_ = godotenv.Load()

	s := &Settings{
		AccountID:          os.Getenv("LA_ACCOUNT_ID"),
		AppKey:             getEnv("LA_APP_KEY", DefaultAppKey),
		ConversationDomain: os.Getenv("LA_CONVERSATION_DOMAIN"),
		ContextDataHost:    os.Getenv("LA_CTX_DATA_HOST"),
		ContextDataPath:    getEnv("LA_CTX_DATA_PATH", DefaultContextDataPath),
		DiscoveryBaseURL:   getEnv("LA_DISCOVERY_BASE_URL", DefaultDiscoveryBaseURL),
		Scheme:             getEnv("LA_SCHEME", DefaultScheme),
		LogLevel:           getEnv("LA_LOG_LEVEL", "warn"),
		RequestTimeout:     DefaultRequestTimeout,
	}

	if raw := os.Getenv("LA_REQUEST_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid LA_REQUEST_TIMEOUT %q", raw)
		}
		s.RequestTimeout = d
	}

	return s, nil
}

// MergeFile overlays non-empty values from a YAML file on top of s.
// Environment values lose to file values, matching how the CLI treats an
// explicit --config flag.
func (s *Settings) MergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "could not read config file %s", path)
	}
	overlay := Settings{}
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return errors.Wrapf(err, "could not parse config file %s", path)
	}
	mergeString(&s.AccountID, overlay.AccountID)
	mergeString(&s.AppKey, overlay.AppKey)
	mergeString(&s.ConversationDomain, overlay.ConversationDomain)
	mergeString(&s.ContextDataHost, overlay.ContextDataHost)
	mergeString(&s.ContextDataPath, overlay.ContextDataPath)
	mergeString(&s.DiscoveryBaseURL, overlay.DiscoveryBaseURL)
	mergeString(&s.Scheme, overlay.Scheme)
	mergeString(&s.LogLevel, overlay.LogLevel)
	return nil
}

// ParseLevel maps the configured log level onto zerolog's levels, falling
// back to warn for anything unrecognized.
func (s *Settings) ParseLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(s.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.WarnLevel
	}
	return level
}

func mergeString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
