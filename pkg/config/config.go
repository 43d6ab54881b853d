package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "SCRAPLINK"

	AppEnvDev  = "development"
	AppEnvProd = "production"

	EnvAppEnv = "SCRAPLINK_APP_ENV"
	EnvDBDSN  = "SCRAPLINK_DB_DSN"
	EnvDBHost = "SCRAPLINK_DB_HOST"
	EnvDBUser = "SCRAPLINK_DB_USER"
	EnvDBName = "SCRAPLINK_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Gateway  GatewayConfig
	Pricing  PricingConfig
	Eventing EventingConfig
	PubSub   PubSubConfig
	Outbox   OutboxConfig

	FeatureFlags FeatureFlagsConfig
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"SCRAPLINK_FEATURE_AUTO_MIGRATE" default:"false"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SCRAPLINK_APP_ENV" required:"true"`
	Port         string `envconfig:"SCRAPLINK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SCRAPLINK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SCRAPLINK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"SCRAPLINK_DB_DSN"`
	Driver string `envconfig:"SCRAPLINK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SCRAPLINK_DB_HOST"`
	LegacyPort     int    `envconfig:"SCRAPLINK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SCRAPLINK_DB_USER"`
	LegacyPassword string `envconfig:"SCRAPLINK_DB_PASSWORD"`
	LegacyName     string `envconfig:"SCRAPLINK_DB_NAME"`
	LegacySSLMode  string `envconfig:"SCRAPLINK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SCRAPLINK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SCRAPLINK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SCRAPLINK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SCRAPLINK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SCRAPLINK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SCRAPLINK_REDIS_ADDR"`
	Password     string        `envconfig:"SCRAPLINK_REDIS_PASSWORD"`
	DB           int           `envconfig:"SCRAPLINK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SCRAPLINK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SCRAPLINK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SCRAPLINK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SCRAPLINK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SCRAPLINK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"SCRAPLINK_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"SCRAPLINK_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"SCRAPLINK_JWT_EXPIRATION_MINUTES" default:"60"`
}

// GatewayConfig configures the outbound payment gateway client.
type GatewayConfig struct {
	BaseURL        string        `envconfig:"SCRAPLINK_GATEWAY_BASE_URL" required:"true"`
	APIKey         string        `envconfig:"SCRAPLINK_GATEWAY_API_KEY" required:"true"`
	CallbackToken  string        `envconfig:"SCRAPLINK_GATEWAY_CALLBACK_TOKEN" required:"true"`
	RequestTimeout time.Duration `envconfig:"SCRAPLINK_GATEWAY_REQUEST_TIMEOUT" default:"15s"`
	InvoiceExpiry  time.Duration `envconfig:"SCRAPLINK_GATEWAY_INVOICE_EXPIRY" default:"24h"`
}

// PricingConfig drives shipping and tax computation at order creation.
type PricingConfig struct {
	TaxRatePercent   string `envconfig:"SCRAPLINK_PRICING_TAX_RATE_PERCENT" default:"11"`
	ShippingBands    string `envconfig:"SCRAPLINK_PRICING_SHIPPING_BANDS" default:"1000:15000,5000:30000,20000:60000"`
	ShippingOverflow int64  `envconfig:"SCRAPLINK_PRICING_SHIPPING_OVERFLOW" default:"120000"`
}

type EventingConfig struct {
	WebhookIdempotencyTTL time.Duration `envconfig:"SCRAPLINK_EVENTING_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
}

type PubSubConfig struct {
	ProjectID                string `envconfig:"SCRAPLINK_PUBSUB_PROJECT_ID"`
	OrdersTopic              string `envconfig:"SCRAPLINK_PUBSUB_ORDERS_TOPIC" default:"sl-order-events"`
	NotificationTopic        string `envconfig:"SCRAPLINK_PUBSUB_NOTIFICATION_TOPIC" default:"sl-notification-events"`
	NotificationSubscription string `envconfig:"SCRAPLINK_PUBSUB_NOTIFICATION_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"SCRAPLINK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"SCRAPLINK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"SCRAPLINK_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
