// Package config loads storefront settings from defaults, an optional YAML
// file and KRAYOT_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the full storefront configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Backend   BackendConfig   `yaml:"backend"`
	Storage   StorageConfig   `yaml:"storage"`
	Delivery  DeliveryConfig  `yaml:"delivery"`
	Pricing   PricingConfig   `yaml:"pricing"`
	Payment   PaymentConfig   `yaml:"payment"`
	Admin     AdminConfig     `yaml:"admin"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	Events    EventsConfig    `yaml:"events"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Port           string   `yaml:"port"`
	HTTPSPort      string   `yaml:"https_port"`
	LocalHTTPS     bool     `yaml:"local_https"`
	TrustedProxies []string `yaml:"trusted_proxies"`
	PublicURL      string   `yaml:"public_url"`
	SecureCookies  bool     `yaml:"secure_cookies"`
}

type BackendConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// StorageConfig selects the key/value store: "memory", "file" or "redis".
type StorageConfig struct {
	Driver          string        `yaml:"driver"`
	FilePath        string        `yaml:"file_path"`
	RedisURL        string        `yaml:"redis_url"`
	Namespace       string        `yaml:"namespace"`
	CartTTL         time.Duration `yaml:"cart_ttl"`
	AvailabilityTTL time.Duration `yaml:"availability_ttl"`
}

type DeliveryConfig struct {
	HourStart    int `yaml:"hour_start"`
	HourEnd      int `yaml:"hour_end"`
	LeadHours    int `yaml:"lead_hours"`
	SlotCapacity int `yaml:"slot_capacity"`
}

// PricingConfig amounts are decimal strings in shekels.
type PricingConfig struct {
	DeliveryFee     string `yaml:"delivery_fee"`
	FreeShippingMin string `yaml:"free_shipping_min"`
}

type PaymentConfig struct {
	TrustedOrigin string        `yaml:"trusted_origin"`
	FieldsBaseURL string        `yaml:"fields_base_url"`
	InitDelay     time.Duration `yaml:"init_delay"`
	InitTimeout   time.Duration `yaml:"init_timeout"`
}

// AdminConfig holds the admin gate. PasswordHash wins over Password.
type AdminConfig struct {
	Password     string        `yaml:"password"`
	PasswordHash string        `yaml:"password_hash"`
	SessionTTL   time.Duration `yaml:"session_ttl"`
	SecurityLog  string        `yaml:"security_log"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Pass     string `yaml:"pass"`
	NotifyTo string `yaml:"notify_to"`
}

type EventsConfig struct {
	AMQPURL string `yaml:"amqp_url"`
	Queue   string `yaml:"queue"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8082",
			HTTPSPort:      "8443",
			TrustedProxies: []string{"127.0.0.1", "::1"},
			PublicURL:      "http://localhost:8082",
		},
		Backend: BackendConfig{
			URL:     "http://localhost:4000",
			Timeout: 15 * time.Second,
		},
		Storage: StorageConfig{
			Driver:          "file",
			FilePath:        "./data.json",
			Namespace:       "krayot",
			CartTTL:         30 * 24 * time.Hour,
			AvailabilityTTL: 30 * time.Second,
		},
		Delivery: DeliveryConfig{
			HourStart:    8,
			HourEnd:      20,
			LeadHours:    2,
			SlotCapacity: 5,
		},
		Pricing: PricingConfig{
			DeliveryFee:     "15",
			FreeShippingMin: "279",
		},
		Payment: PaymentConfig{
			FieldsBaseURL: "https://secure.cardcom.solutions/api/openfields",
			TrustedOrigin: "https://secure.cardcom.solutions",
			InitDelay:     300 * time.Millisecond,
			InitTimeout:   20 * time.Second,
		},
		Admin: AdminConfig{
			SessionTTL:  12 * time.Hour,
			SecurityLog: "security.log",
		},
		SMTP: SMTPConfig{
			Host: "smtp.gmail.com",
			Port: 587,
		},
		Events: EventsConfig{
			Queue: "orders",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "krayot-storefront",
		},
	}
}

// Load builds a Config from defaults, the optional file and the environment,
// then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile overlays a YAML file onto c.
func (c *Config) LoadFromFile(path string) error {
	clean := filepath.Clean(path)
	ext := filepath.Ext(clean)
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config file extension %s: %w", ext, ErrInvalidConfig)
	}
	data, err := os.ReadFile(clean)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", clean, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %v: %w", clean, err, ErrInvalidConfig)
	}
	return nil
}

// LoadFromEnv overlays KRAYOT_* variables onto c. PORT and SMTP_* are also
// honoured for hosting platforms that set them.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("KRAYOT_PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("KRAYOT_LOCAL_HTTPS"); v != "" {
		c.Server.LocalHTTPS = parseBool(v)
	}
	if v := os.Getenv("KRAYOT_PUBLIC_URL"); v != "" {
		c.Server.PublicURL = v
	}
	if v := os.Getenv("KRAYOT_SECURE_COOKIES"); v != "" {
		c.Server.SecureCookies = parseBool(v)
	}
	if v := os.Getenv("KRAYOT_TRUSTED_PROXIES"); v != "" {
		c.Server.TrustedProxies = parseList(v)
	}
	if v := os.Getenv("KRAYOT_API_URL"); v != "" {
		c.Backend.URL = v
	}
	if v := os.Getenv("KRAYOT_STORAGE"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("KRAYOT_DATA_FILE"); v != "" {
		c.Storage.FilePath = v
	}
	if v := os.Getenv("KRAYOT_REDIS_URL"); v != "" {
		c.Storage.RedisURL = v
	} else if v := os.Getenv("REDIS_URL"); v != "" {
		c.Storage.RedisURL = v
	}
	if err := envInt("KRAYOT_HOUR_START", &c.Delivery.HourStart); err != nil {
		return err
	}
	if err := envInt("KRAYOT_HOUR_END", &c.Delivery.HourEnd); err != nil {
		return err
	}
	if err := envInt("KRAYOT_LEAD_HOURS", &c.Delivery.LeadHours); err != nil {
		return err
	}
	if err := envInt("KRAYOT_SLOT_CAPACITY", &c.Delivery.SlotCapacity); err != nil {
		return err
	}
	if v := os.Getenv("KRAYOT_DELIVERY_FEE"); v != "" {
		c.Pricing.DeliveryFee = v
	}
	if v := os.Getenv("KRAYOT_FREE_SHIPPING_MIN"); v != "" {
		c.Pricing.FreeShippingMin = v
	}
	if v := os.Getenv("KRAYOT_PAYMENT_ORIGIN"); v != "" {
		c.Payment.TrustedOrigin = v
	}
	if v := os.Getenv("KRAYOT_PAYMENT_FIELDS_URL"); v != "" {
		c.Payment.FieldsBaseURL = v
	}
	if v := os.Getenv("KRAYOT_ADMIN_PASSWORD"); v != "" {
		c.Admin.Password = v
	}
	if v := os.Getenv("KRAYOT_ADMIN_PASSWORD_HASH"); v != "" {
		c.Admin.PasswordHash = v
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		c.SMTP.Host = v
	}
	if err := envInt("SMTP_PORT", &c.SMTP.Port); err != nil {
		return err
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		c.SMTP.User = v
	}
	if v := os.Getenv("SMTP_PASS"); v != "" {
		c.SMTP.Pass = v
	}
	if v := os.Getenv("KRAYOT_NOTIFY_TO"); v != "" {
		c.SMTP.NotifyTo = v
	}
	if v := os.Getenv("KRAYOT_AMQP_URL"); v != "" {
		c.Events.AMQPURL = v
	} else if v := os.Getenv("RABBITMQ_URI"); v != "" {
		c.Events.AMQPURL = v
	}
	if v := os.Getenv("KRAYOT_TELEMETRY"); v != "" {
		c.Telemetry.Enabled = parseBool(v)
	}
	if v := os.Getenv("OTEL_SERVICE_NAME"); v != "" {
		c.Telemetry.ServiceName = v
	}
	return nil
}

// Validate checks the configuration for values the storefront cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required: %w", ErrInvalidConfig)
	}
	if c.Backend.URL == "" {
		return fmt.Errorf("backend url is required: %w", ErrInvalidConfig)
	}
	d := c.Delivery
	if d.HourStart < 0 || d.HourEnd > 23 || d.HourStart > d.HourEnd {
		return fmt.Errorf("delivery window %d..%d is not within a day: %w", d.HourStart, d.HourEnd, ErrInvalidConfig)
	}
	if d.LeadHours < 0 {
		return fmt.Errorf("lead hours must not be negative: %w", ErrInvalidConfig)
	}
	if d.SlotCapacity < 1 {
		return fmt.Errorf("slot capacity must be at least 1: %w", ErrInvalidConfig)
	}
	switch c.Storage.Driver {
	case "memory":
	case "file":
		if c.Storage.FilePath == "" {
			return fmt.Errorf("file storage needs a file path: %w", ErrInvalidConfig)
		}
	case "redis":
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("redis storage needs a redis url: %w", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("unknown storage driver %q: %w", c.Storage.Driver, ErrInvalidConfig)
	}
	if c.Admin.Password == "" && c.Admin.PasswordHash == "" {
		return fmt.Errorf("admin password or password hash is required: %w", ErrInvalidConfig)
	}
	if c.Payment.TrustedOrigin == "" {
		return fmt.Errorf("payment trusted origin is required: %w", ErrInvalidConfig)
	}
	return nil
}

func envInt(name string, dst *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s must be an integer: %w", name, ErrInvalidConfig)
	}
	*dst = n
	return nil
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

func parseList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
