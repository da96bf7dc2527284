package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"fisbap/internal/buildinfo"
)

var (
	loaded = false
)

// Load loads environment variables from .env file (if it exists)
func Load() error {
	if !loaded {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("error loading .env file: %w", err)
		}
		loaded = true
	}
	return nil
}

// Get retrieves an environment variable with a default value
func Get(key, defaultValue string) string {
	_ = Load() // Ensure environment is loaded
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetInt retrieves an environment variable as an integer
func GetInt(key string, defaultValue int) int {
	_ = Load()
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetBool retrieves an environment variable as a boolean
func GetBool(key string, defaultValue bool) bool {
	_ = Load()
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetDuration retrieves an environment variable as a time.Duration
func GetDuration(key string, defaultValue time.Duration) time.Duration {
	_ = Load()
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Require checks that required environment variables are set
func Require(keys ...string) error {
	_ = Load()
	var missing []string

	for _, key := range keys {
		if os.Getenv(key) == "" {
			missing = append(missing, key)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("required environment variables not set: %s", strings.Join(missing, ", "))
	}

	return nil
}

// Config represents the application configuration
type Config struct {
	App        AppConfig        `yaml:"app"`
	Subscriber SubscriberConfig `yaml:"subscriber"`
	Network    NetworkConfig    `yaml:"network"`
	Signing    SigningConfig    `yaml:"signing"`
	Analytics  AnalyticsConfig  `yaml:"analytics"`
	Datadog    DatadogConfig    `yaml:"datadog"`
	Storage    StorageConfig    `yaml:"storage"`
	Wait       WaitConfig       `yaml:"wait"`
}

// AppConfig contains process-level settings
type AppConfig struct {
	Environment string `yaml:"environment"`
	ListenAddr  string `yaml:"listen_addr"`
	LogLevel    string `yaml:"log_level"`
}

// SubscriberConfig identifies this BAP on the network. Every outbound
// envelope carries BapID/BapURI; ARN and EUIN are the distributor
// credentials folded into agent blocks.
type SubscriberConfig struct {
	BapID        string `yaml:"bap_id"`
	BapURI       string `yaml:"bap_uri"`
	SubscriberID string `yaml:"subscriber_id"`
	ARN          string `yaml:"arn"`
	EUIN         string `yaml:"euin"`
}

// NetworkConfig contains gateway routing and the static terms blocks
type NetworkConfig struct {
	GatewayURL       string        `yaml:"gateway_url"`
	GatewaySignature string        `yaml:"gateway_signature"`
	BuyerTermsURL    string        `yaml:"buyer_terms_url"`
	SellerTermsURL   string        `yaml:"seller_terms_url"`
	HTTPTimeout      time.Duration `yaml:"http_timeout"`
}

// SigningConfig contains the Ed25519 request-signing key material
type SigningConfig struct {
	PrivateKeyBase64 string `yaml:"private_key_base64"`
	UniqueKeyID      string `yaml:"unique_key_id"`
}

// AnalyticsConfig configures the network observability push
type AnalyticsConfig struct {
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// DatadogConfig configures the optional Datadog log mirror
type DatadogConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	AppKey  string `yaml:"app_key"`
	Service string `yaml:"service"`
}

// StorageConfig configures the message store
type StorageConfig struct {
	BasePath string `yaml:"base_path"`
}

// WaitConfig bounds the callback polling loop
type WaitConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// LoadConfig builds the configuration from the environment, with an
// optional YAML overlay file (FISBAP_CONFIG, default config.yaml) read first
// so env vars always win.
func LoadConfig() (*Config, error) {
	if err := Load(); err != nil {
		return nil, err
	}

	cfg := &Config{}

	overlay := Get("FISBAP_CONFIG", "config.yaml")
	if data, err := os.ReadFile(overlay); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", overlay, err)
		}
	}

	cfg.App.Environment = Get("ENVIRONMENT", fallback(cfg.App.Environment, buildinfo.BuildEnvironment))
	cfg.App.ListenAddr = Get("LISTEN_ADDR", fallback(cfg.App.ListenAddr, ":8000"))
	cfg.App.LogLevel = Get("LOG_LEVEL", fallback(cfg.App.LogLevel, "info"))

	cfg.Subscriber.BapID = Get("BAP_ID", fallback(cfg.Subscriber.BapID, "investment.flashfund.in"))
	cfg.Subscriber.BapURI = Get("BAP_URI", fallback(cfg.Subscriber.BapURI, "https://investment.flashfund.in/ondc"))
	cfg.Subscriber.SubscriberID = Get("SUBSCRIBER_ID", fallback(cfg.Subscriber.SubscriberID, cfg.Subscriber.BapID))
	cfg.Subscriber.ARN = Get("ARN", cfg.Subscriber.ARN)
	cfg.Subscriber.EUIN = Get("EUIN", cfg.Subscriber.EUIN)

	cfg.Network.GatewayURL = Get("GATEWAY_URL", fallback(cfg.Network.GatewayURL, "https://preprod.gateway.ondc.org/search"))
	cfg.Network.GatewaySignature = Get("SIGNED_UNIQUE_REQ_ID", cfg.Network.GatewaySignature)
	cfg.Network.BuyerTermsURL = Get("BUYER_TERMS_URL", fallback(cfg.Network.BuyerTermsURL, "https://buyerapp.com/legal/ondc:fis14/static_terms?v=0.1"))
	cfg.Network.SellerTermsURL = Get("SELLER_TERMS_URL", fallback(cfg.Network.SellerTermsURL, "https://sellerapp.com/legal/ondc:fis14/static_terms?v=0.1"))
	cfg.Network.HTTPTimeout = GetDuration("HTTP_TIMEOUT", defaultDuration(cfg.Network.HTTPTimeout, 30*time.Second))

	cfg.Signing.PrivateKeyBase64 = Get("SIGNING_PRIVATE_KEY", cfg.Signing.PrivateKeyBase64)
	cfg.Signing.UniqueKeyID = Get("UNIQUE_KEY_ID", fallback(cfg.Signing.UniqueKeyID, "1"))

	cfg.Analytics.URL = Get("ANALYTICS_API_URL", cfg.Analytics.URL)
	cfg.Analytics.Token = Get("ANALYTICS_TOKEN", cfg.Analytics.Token)
	cfg.Analytics.Timeout = GetDuration("ANALYTICS_TIMEOUT", defaultDuration(cfg.Analytics.Timeout, 10*time.Second))

	cfg.Datadog.Enabled = GetBool("DD_FORWARD_ENABLED", cfg.Datadog.Enabled)
	cfg.Datadog.BaseURL = Get("DATADOG_BASE_URL", fallback(cfg.Datadog.BaseURL, "https://api.datadoghq.com"))
	cfg.Datadog.APIKey = Get("DD_API_KEY", cfg.Datadog.APIKey)
	cfg.Datadog.AppKey = Get("DD_APPLICATION_KEY", cfg.Datadog.AppKey)
	cfg.Datadog.Service = Get("DD_SERVICE", fallback(cfg.Datadog.Service, "fisbap"))

	cfg.Storage.BasePath = Get("STORAGE_PATH", fallback(cfg.Storage.BasePath, "./data"))

	cfg.Wait.Interval = GetDuration("WAIT_INTERVAL", defaultDuration(cfg.Wait.Interval, 2*time.Second))
	cfg.Wait.Timeout = GetDuration("WAIT_TIMEOUT", defaultDuration(cfg.Wait.Timeout, 30*time.Second))

	return cfg, nil
}

// Validate checks the configuration for completeness
func (c *Config) Validate() error {
	if c.Subscriber.BapID == "" || c.Subscriber.BapURI == "" {
		return fmt.Errorf("bap_id and bap_uri are required")
	}
	if c.Network.GatewayURL == "" {
		return fmt.Errorf("gateway_url is required")
	}
	if c.Signing.PrivateKeyBase64 == "" {
		return fmt.Errorf("signing private key is required")
	}
	if c.Wait.Interval <= 0 || c.Wait.Timeout <= 0 {
		return fmt.Errorf("wait interval and timeout must be positive")
	}
	return nil
}

func fallback(value, def string) string {
	if value != "" {
		return value
	}
	return def
}

func defaultDuration(value, def time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return def
}
