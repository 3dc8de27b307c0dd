package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App           AppConfig
	Redis         RedisConfig
	JWT           JWTConfig
	AuthRateLimit AuthRateLimitConfig
	Commerce      CommerceConfig
	Payment       PaymentConfig
	Shipping      ShippingConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"VITRINE_APP_ENV" required:"true"`
	Port         string `envconfig:"VITRINE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"VITRINE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"VITRINE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type RedisConfig struct {
	URL          string        `envconfig:"VITRINE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"VITRINE_REDIS_ADDR"`
	Password     string        `envconfig:"VITRINE_REDIS_PASSWORD"`
	DB           int           `envconfig:"VITRINE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"VITRINE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"VITRINE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"VITRINE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"VITRINE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"VITRINE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"VITRINE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"VITRINE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"VITRINE_JWT_EXPIRATION_MINUTES" default:"1440"`
}

// Expiration returns the access token lifetime.
func (j JWTConfig) Expiration() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"VITRINE_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"VITRINE_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"VITRINE_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"VITRINE_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"VITRINE_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"VITRINE_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

// CommerceConfig points at the commerce platform REST API that owns
// products, customers, orders, and shipping zone configuration.
type CommerceConfig struct {
	BaseURL        string        `envconfig:"VITRINE_COMMERCE_BASE_URL" required:"true"`
	ConsumerKey    string        `envconfig:"VITRINE_COMMERCE_CONSUMER_KEY" required:"true"`
	ConsumerSecret string        `envconfig:"VITRINE_COMMERCE_CONSUMER_SECRET" required:"true"`
	Timeout        time.Duration `envconfig:"VITRINE_COMMERCE_TIMEOUT" default:"10s"`
}

type PaymentConfig struct {
	BaseURL      string        `envconfig:"VITRINE_PAYMENT_BASE_URL"`
	ClientID     string        `envconfig:"VITRINE_PAYMENT_CLIENT_ID" required:"true"`
	ClientSecret string        `envconfig:"VITRINE_PAYMENT_CLIENT_SECRET" required:"true"`
	Env          string        `envconfig:"VITRINE_PAYMENT_ENV" default:"sandbox"`
	Currency     string        `envconfig:"VITRINE_PAYMENT_CURRENCY" default:"BRL"`
	Timeout      time.Duration `envconfig:"VITRINE_PAYMENT_TIMEOUT" default:"15s"`
}

// Environment returns the normalized payment environment (sandbox/live).
func (p PaymentConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(p.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type ShippingConfig struct {
	FreeShippingThreshold string        `envconfig:"VITRINE_SHIPPING_FREE_THRESHOLD" default:"500.00"`
	FallbackCost          string        `envconfig:"VITRINE_SHIPPING_FALLBACK_COST" default:"25.00"`
	PerItemSurcharge      string        `envconfig:"VITRINE_SHIPPING_PER_ITEM_SURCHARGE" default:"2.00"`
	QuoteTimeout          time.Duration `envconfig:"VITRINE_SHIPPING_QUOTE_TIMEOUT" default:"8s"`
}
