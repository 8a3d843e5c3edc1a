package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full runtime configuration of the API.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Paystack PaystackConfig `mapstructure:"paystack"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Pricing  PricingConfig  `mapstructure:"pricing"`
}

type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	PublicURL      string   `mapstructure:"public_url"`
	UploadDir      string   `mapstructure:"upload_dir"`
	MaxUploadSize  int64    `mapstructure:"max_upload_size"`
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig is optional. An empty Addr keeps the rate limiter in process memory.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type PaystackConfig struct {
	SecretKey   string        `mapstructure:"secret_key"`
	PublicKey   string        `mapstructure:"public_key"`
	BaseURL     string        `mapstructure:"base_url"`
	CallbackURL string        `mapstructure:"callback_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MinAmount   float64       `mapstructure:"min_amount"`
	MaxAmount   float64       `mapstructure:"max_amount"`
}

type WebhookConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	RateLimit   int           `mapstructure:"rate_limit"`
	RateWindow  time.Duration `mapstructure:"rate_window"`
	MaxBodySize int64         `mapstructure:"max_body_size"`
}

type PricingConfig struct {
	FreeShippingThreshold float64 `mapstructure:"free_shipping_threshold"`
	BaseShippingRate      float64 `mapstructure:"base_shipping_rate"`
	VATRate               float64 `mapstructure:"vat_rate"`
	PromoFile             string  `mapstructure:"promo_file"`
}

var defaults = map[string]any{
	"server.addr":                     ":8080",
	"server.allowed_origins":          []string{"http://localhost:5173"},
	"server.public_url":               "http://localhost:8080",
	"server.upload_dir":               "./uploads",
	"server.max_upload_size":          5 << 20,
	"server.trusted_proxies":          []string{},
	"log.level":                       "info",
	"database.dsn":                    "",
	"redis.addr":                      "",
	"redis.password":                  "",
	"redis.db":                        0,
	"jwt.secret":                      "",
	"jwt.ttl":                         72 * time.Hour,
	"paystack.secret_key":             "",
	"paystack.public_key":             "",
	"paystack.base_url":               "https://api.paystack.co",
	"paystack.callback_url":           "",
	"paystack.timeout":                15 * time.Second,
	"paystack.min_amount":             100.0,
	"paystack.max_amount":             10_000_000.0,
	"webhook.timeout":                 30 * time.Second,
	"webhook.rate_limit":              10,
	"webhook.rate_window":             60 * time.Second,
	"webhook.max_body_size":           1 << 20,
	"pricing.free_shipping_threshold": 50_000.0,
	"pricing.base_shipping_rate":      1_000.0,
	"pricing.vat_rate":                0.075,
	"pricing.promo_file":              "",
}

// Load reads .env (if present), then the optional YAML file at path, then
// SHOP_* environment variables. Later sources win.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded, relying on process environment")
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix("SHOP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: stat %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	return &cfg, nil
}

// Validate reports settings the server cannot start without. A missing
// Paystack secret is allowed: payment endpoints degrade instead.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn (SHOP_DATABASE_DSN) is required"))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret (SHOP_JWT_SECRET) is required"))
	}
	if c.Webhook.RateLimit <= 0 || c.Webhook.RateWindow <= 0 {
		errs = append(errs, errors.New("webhook rate limit and window must be positive"))
	}
	if c.Paystack.MinAmount <= 0 || c.Paystack.MaxAmount < c.Paystack.MinAmount {
		errs = append(errs, errors.New("paystack amount bounds are invalid"))
	}
	return errors.Join(errs...)
}
