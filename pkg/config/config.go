package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Stripe       StripeConfig
	PayPal       PayPalConfig
	Supplier     SupplierConfig
	Commission   CommissionConfig
	Payout       PayoutConfig
	Fulfillment  FulfillmentConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if _, err := cfg.Commission.RateDecimal(); err != nil {
		return nil, err
	}
	if !cfg.Commission.validBasis() {
		return nil, fmt.Errorf("%s must be %q or %q", EnvCommissionBasis, CommissionBasisMargin, CommissionBasisGross)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"DROPONE_APP_ENV" required:"true"`
	Port         string   `envconfig:"DROPONE_APP_PORT" required:"true"`
	BaseURL      string   `envconfig:"DROPONE_APP_BASE_URL" default:"http://localhost:8080"`
	LogLevel     string   `envconfig:"DROPONE_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"DROPONE_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"DROPONE_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

// URL joins path onto the public base URL.
func (a AppConfig) URL(path string) string {
	base := strings.TrimRight(strings.TrimSpace(a.BaseURL), "/")
	if path == "" {
		return base
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

type ServiceConfig struct {
	Kind string `envconfig:"DROPONE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"DROPONE_DB_DSN"`
	Driver string `envconfig:"DROPONE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"DROPONE_DB_HOST"`
	LegacyPort     int    `envconfig:"DROPONE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"DROPONE_DB_USER"`
	LegacyPassword string `envconfig:"DROPONE_DB_PASSWORD"`
	LegacyName     string `envconfig:"DROPONE_DB_NAME"`
	LegacySSLMode  string `envconfig:"DROPONE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DROPONE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DROPONE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DROPONE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DROPONE_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"DROPONE_DB_SLOW_QUERY_THRESHOLD" default:"200ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"DROPONE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"DROPONE_REDIS_ADDR"`
	Password     string        `envconfig:"DROPONE_REDIS_PASSWORD"`
	DB           int           `envconfig:"DROPONE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DROPONE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"DROPONE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DROPONE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DROPONE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DROPONE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies tokens minted by the storefront identity service.
type JWTConfig struct {
	Secret            string `envconfig:"DROPONE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"DROPONE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"DROPONE_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"DROPONE_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"DROPONE_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	WebhookGuardTTL      time.Duration `envconfig:"DROPONE_EVENTING_WEBHOOK_GUARD_TTL" default:"24h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"DROPONE_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"DROPONE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"DROPONE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic         string `envconfig:"DROPONE_PUBSUB_ORDERS_TOPIC" default:"dropone-order-events"`
	OrdersSubscription  string `envconfig:"DROPONE_PUBSUB_ORDERS_SUBSCRIPTION" default:"dropone-order-events-fulfillment"`
	PayoutsTopic        string `envconfig:"DROPONE_PUBSUB_PAYOUTS_TOPIC" default:"dropone-payout-events"`
	DeadLetterTopic     string `envconfig:"DROPONE_PUBSUB_DLQ_TOPIC"`
	MaxOutstandingMsgs  int    `envconfig:"DROPONE_PUBSUB_MAX_OUTSTANDING" default:"10"`
	ReceiveGoroutineCnt int    `envconfig:"DROPONE_PUBSUB_RECEIVE_GOROUTINES" default:"1"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"DROPONE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"DROPONE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"DROPONE_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"DROPONE_OUTBOX_RETENTION_DAYS" default:"14"`
}

type StripeConfig struct {
	APIKey   string `envconfig:"DROPONE_STRIPE_API_KEY"`
	Secret   string `envconfig:"DROPONE_STRIPE_SECRET"`
	Env      string `envconfig:"DROPONE_STRIPE_ENV" default:"test"`
	Currency string `envconfig:"DROPONE_STRIPE_CURRENCY" default:"eur"`
	// ConnectCountry is used when creating Express accounts for sellers.
	ConnectCountry string `envconfig:"DROPONE_STRIPE_CONNECT_COUNTRY" default:"FR"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type PayPalConfig struct {
	ClientID     string        `envconfig:"DROPONE_PAYPAL_CLIENT_ID"`
	ClientSecret string        `envconfig:"DROPONE_PAYPAL_CLIENT_SECRET"`
	Mode         string        `envconfig:"DROPONE_PAYPAL_MODE" default:"sandbox"`
	BaseURL      string        `envconfig:"DROPONE_PAYPAL_BASE_URL"`
	Currency     string        `envconfig:"DROPONE_PAYPAL_CURRENCY" default:"EUR"`
	Timeout      time.Duration `envconfig:"DROPONE_PAYPAL_TIMEOUT" default:"15s"`
}

// Enabled reports whether PayPal credentials were provided.
func (p PayPalConfig) Enabled() bool {
	return strings.TrimSpace(p.ClientID) != "" && strings.TrimSpace(p.ClientSecret) != ""
}

// APIBaseURL resolves the REST host for the configured mode.
func (p PayPalConfig) APIBaseURL() string {
	if base := strings.TrimSpace(p.BaseURL); base != "" {
		return strings.TrimRight(base, "/")
	}
	if strings.EqualFold(strings.TrimSpace(p.Mode), PayPalModeLive) {
		return PayPalLiveBaseURL
	}
	return PayPalSandboxBaseURL
}

type SupplierConfig struct {
	BaseURL         string        `envconfig:"DROPONE_SUPPLIER_BASE_URL" default:"https://developers.cjdropshipping.com/api2.0/v1"`
	Email           string        `envconfig:"DROPONE_SUPPLIER_EMAIL"`
	APIKey          string        `envconfig:"DROPONE_SUPPLIER_API_KEY"`
	WebhookToken    string        `envconfig:"DROPONE_SUPPLIER_WEBHOOK_TOKEN"`
	Timeout         time.Duration `envconfig:"DROPONE_SUPPLIER_TIMEOUT" default:"30s"`
	LogisticName    string        `envconfig:"DROPONE_SUPPLIER_LOGISTIC_NAME"`
	FromCountryCode string        `envconfig:"DROPONE_SUPPLIER_FROM_COUNTRY" default:"CN"`
	PayType         int           `envconfig:"DROPONE_SUPPLIER_PAY_TYPE" default:"2"`
	CatalogCacheTTL time.Duration `envconfig:"DROPONE_SUPPLIER_CATALOG_CACHE_TTL" default:"6h"`
}

// Enabled reports whether supplier credentials were provided.
func (s SupplierConfig) Enabled() bool {
	return strings.TrimSpace(s.Email) != "" && strings.TrimSpace(s.APIKey) != ""
}

type CommissionConfig struct {
	Rate  string `envconfig:"DROPONE_COMMISSION_RATE" default:"0.10"`
	Basis string `envconfig:"DROPONE_COMMISSION_BASIS" default:"margin"`
}

// RateDecimal parses the configured commission rate and checks it lies in [0, 1].
func (c CommissionConfig) RateDecimal() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(c.Rate))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", EnvCommissionRate, err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("%s must be between 0 and 1, got %s", EnvCommissionRate, rate)
	}
	return rate, nil
}

func (c CommissionConfig) validBasis() bool {
	switch strings.ToLower(strings.TrimSpace(c.Basis)) {
	case CommissionBasisMargin, CommissionBasisGross:
		return true
	}
	return false
}

type PayoutConfig struct {
	MinWithdrawalCents int64         `envconfig:"DROPONE_PAYOUT_MIN_WITHDRAWAL_CENTS" default:"1000"`
	RailTimeout        time.Duration `envconfig:"DROPONE_PAYOUT_RAIL_TIMEOUT" default:"20s"`
	Currency           string        `envconfig:"DROPONE_PAYOUT_CURRENCY" default:"EUR"`
	StaleAfter         time.Duration `envconfig:"DROPONE_PAYOUT_STALE_AFTER" default:"1h"`
}

type FulfillmentConfig struct {
	PollInterval     time.Duration `envconfig:"DROPONE_FULFILLMENT_POLL_INTERVAL" default:"30m"`
	PollBatchSize    int           `envconfig:"DROPONE_FULFILLMENT_POLL_BATCH_SIZE" default:"100"`
	PollConcurrency  int           `envconfig:"DROPONE_FULFILLMENT_POLL_CONCURRENCY" default:"4"`
	PendingSweepAge  time.Duration `envconfig:"DROPONE_FULFILLMENT_PENDING_SWEEP_AGE" default:"15m"`
	PendingSweepSize int           `envconfig:"DROPONE_FULFILLMENT_PENDING_SWEEP_SIZE" default:"50"`
}

type RateLimitConfig struct {
	WithdrawWindow     time.Duration `envconfig:"DROPONE_RATE_LIMIT_WITHDRAW_WINDOW" default:"1m"`
	WithdrawLimit      int           `envconfig:"DROPONE_RATE_LIMIT_WITHDRAW_LIMIT" default:"5"`
	CheckoutWindow     time.Duration `envconfig:"DROPONE_RATE_LIMIT_CHECKOUT_WINDOW" default:"1m"`
	CheckoutIPLimit    int           `envconfig:"DROPONE_RATE_LIMIT_CHECKOUT_IP_LIMIT" default:"20"`
	CheckoutStoreLimit int           `envconfig:"DROPONE_RATE_LIMIT_CHECKOUT_STORE_LIMIT" default:"120"`
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
