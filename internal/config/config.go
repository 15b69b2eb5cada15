package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

type StripeConfig struct {
	SecretKey     string `yaml:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret"`
}

type PayPalConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	WebhookID    string `yaml:"webhook_id"`
	BaseURL      string `yaml:"base_url"`   // https://api-m.sandbox.paypal.com in dev
	ReturnURL    string `yaml:"return_url"` // where PayPal sends the buyer after approval
	CancelURL    string `yaml:"cancel_url"`
}

type PaymentConfig struct {
	Currency string       `yaml:"currency"`
	Stripe   StripeConfig `yaml:"stripe"`
	PayPal   PayPalConfig `yaml:"paypal"`
}

type NotifierConfig struct {
	SubscriptionURL string        `yaml:"subscription_url"`
	CycleURL        string        `yaml:"cycle_url"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxRetries      uint64        `yaml:"max_retries"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	MaxElapsed      time.Duration `yaml:"max_elapsed"`
}

type InspectionConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type AlertConfig struct {
	TelegramToken string `yaml:"telegram_token"`
	ChatID        int64  `yaml:"chat_id"`
	Workers       int    `yaml:"workers"`
}

type ReconcilerConfig struct {
	Interval   time.Duration `yaml:"interval"`
	StaleAfter time.Duration `yaml:"stale_after"`
}

type SecurityConfig struct {
	JWTSecret  string `yaml:"jwt_secret"`
	CookieName string `yaml:"cookie_name"`
	// RateLimit caps internal API calls per user and route per minute; negative disables it.
	RateLimit int `yaml:"rate_limit_per_minute"`
}

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Payment    PaymentConfig    `yaml:"payment"`
	Notifier   NotifierConfig   `yaml:"notifier"`
	Inspection InspectionConfig `yaml:"inspection"`
	Alert      AlertConfig      `yaml:"alert"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	Security   SecurityConfig   `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path, applies env overrides and defaults,
// and validates the settings the service cannot start without.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return cfg, nil
}

// Parse is LoadConfig without the file system.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Payment.Stripe.WebhookSecret == "" && cfg.Payment.PayPal.WebhookID == "" {
		return nil, errors.New("at least one of payment.stripe.webhook_secret or payment.paypal.webhook_id is required")
	}
	if cfg.Notifier.SubscriptionURL == "" || cfg.Notifier.CycleURL == "" {
		return nil, errors.New("notifier.subscription_url and notifier.cycle_url are required")
	}
	if cfg.Security.JWTSecret == "" {
		return nil, errors.New("security.jwt_secret is required")
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("STRIPE_SECRET_KEY"); v != "" {
		cfg.Payment.Stripe.SecretKey = v
	}
	if v := os.Getenv("STRIPE_WEBHOOK_SECRET"); v != "" {
		cfg.Payment.Stripe.WebhookSecret = v
	}
	if v := os.Getenv("PAYPAL_CLIENT_SECRET"); v != "" {
		cfg.Payment.PayPal.ClientSecret = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Security.JWTSecret = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout <= 0 {
		// must outlive a full notifier retry budget
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Redis.LockTTL <= 0 {
		cfg.Redis.LockTTL = 30 * time.Second
	}
	if cfg.Payment.Currency == "" {
		cfg.Payment.Currency = "EUR"
	}
	if cfg.Payment.PayPal.BaseURL == "" {
		cfg.Payment.PayPal.BaseURL = "https://api-m.sandbox.paypal.com"
	}
	if cfg.Notifier.Timeout <= 0 {
		cfg.Notifier.Timeout = 5 * time.Second
	}
	if cfg.Notifier.MaxRetries == 0 {
		cfg.Notifier.MaxRetries = 4
	}
	if cfg.Notifier.InitialInterval <= 0 {
		cfg.Notifier.InitialInterval = 200 * time.Millisecond
	}
	if cfg.Notifier.MaxInterval <= 0 {
		cfg.Notifier.MaxInterval = 2 * time.Second
	}
	if cfg.Notifier.MaxElapsed <= 0 {
		cfg.Notifier.MaxElapsed = 10 * time.Second
	}
	if cfg.Inspection.Timeout <= 0 {
		cfg.Inspection.Timeout = 5 * time.Second
	}
	if cfg.Alert.Workers <= 0 {
		cfg.Alert.Workers = 2
	}
	if cfg.Reconciler.Interval <= 0 {
		cfg.Reconciler.Interval = time.Minute
	}
	if cfg.Reconciler.StaleAfter <= 0 {
		cfg.Reconciler.StaleAfter = 15 * time.Minute
	}
	if cfg.Security.CookieName == "" {
		cfg.Security.CookieName = "token"
	}
	if cfg.Security.RateLimit == 0 {
		cfg.Security.RateLimit = 30
	}
	if cfg.Payment.PayPal.CancelURL == "" {
		cfg.Payment.PayPal.CancelURL = cfg.Payment.PayPal.ReturnURL
	}
}
