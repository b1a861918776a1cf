package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Cart         CartConfig
	ManyChat     ManyChatConfig
	Storefront   StorefrontConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DBDriverSQLite
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Cart.validate(cfg.Redis); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CORNMAN_APP_ENV" required:"true"`
	Port         string `envconfig:"CORNMAN_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"CORNMAN_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CORNMAN_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"CORNMAN_LOG_FORMAT" default:"json"`
	CORSOrigins  string `envconfig:"CORNMAN_CORS_ALLOWED_ORIGINS" default:"*"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// AllowedOrigins splits the comma separated CORS origin list.
func (a AppConfig) AllowedOrigins() []string {
	return splitCSV(a.CORSOrigins)
}

type ServiceConfig struct {
	Kind string `envconfig:"CORNMAN_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CORNMAN_DB_DSN"`
	Driver string `envconfig:"CORNMAN_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CORNMAN_DB_HOST"`
	LegacyPort     int    `envconfig:"CORNMAN_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CORNMAN_DB_USER"`
	LegacyPassword string `envconfig:"CORNMAN_DB_PASSWORD"`
	LegacyName     string `envconfig:"CORNMAN_DB_NAME"`
	LegacySSLMode  string `envconfig:"CORNMAN_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"CORNMAN_SQLITE_PATH" default:"cornman.db"`

	MaxOpenConns    int           `envconfig:"CORNMAN_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CORNMAN_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CORNMAN_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CORNMAN_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CORNMAN_REDIS_URL"`
	Address      string        `envconfig:"CORNMAN_REDIS_ADDR"`
	Password     string        `envconfig:"CORNMAN_REDIS_PASSWORD"`
	DB           int           `envconfig:"CORNMAN_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CORNMAN_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CORNMAN_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CORNMAN_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CORNMAN_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CORNMAN_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether enough settings exist to dial redis.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type CartConfig struct {
	StorageBackend string        `envconfig:"CORNMAN_CART_STORAGE" default:"redis"`
	StorageKey     string        `envconfig:"CORNMAN_CART_STORAGE_KEY" default:"cornman-cart"`
	SnapshotTTL    time.Duration `envconfig:"CORNMAN_CART_SNAPSHOT_TTL" default:"720h"`
	SessionIdleTTL time.Duration `envconfig:"CORNMAN_CART_SESSION_IDLE_TTL" default:"30m"`
	SweepInterval  time.Duration `envconfig:"CORNMAN_CART_SWEEP_INTERVAL" default:"1m"`
	PersistTimeout time.Duration `envconfig:"CORNMAN_CART_PERSIST_TIMEOUT" default:"2s"`
}

func (c CartConfig) validate(redis RedisConfig) error {
	switch strings.ToLower(strings.TrimSpace(c.StorageBackend)) {
	case CartStorageRedis:
		if !redis.Enabled() {
			return fmt.Errorf("%s=redis requires %s or %s", EnvCartStorage, EnvRedisURL, EnvRedisAddr)
		}
	case CartStorageDB, CartStorageMemory:
	default:
		return fmt.Errorf("unsupported %s %q", EnvCartStorage, c.StorageBackend)
	}
	if strings.TrimSpace(c.StorageKey) == "" {
		return fmt.Errorf("%s must not be empty", EnvCartStorageKey)
	}
	return nil
}

type ManyChatConfig struct {
	APIKey        string        `envconfig:"CORNMAN_MANYCHAT_API_KEY"`
	BaseURL       string        `envconfig:"CORNMAN_MANYCHAT_BASE_URL" default:"https://api.manychat.com"`
	Timeout       time.Duration `envconfig:"CORNMAN_MANYCHAT_TIMEOUT" default:"10s"`
	WebhookSecret string        `envconfig:"CORNMAN_MANYCHAT_WEBHOOK_SECRET"`
	AllowUnsigned bool          `envconfig:"CORNMAN_MANYCHAT_ALLOW_UNSIGNED" default:"false"`

	WebhookRateLimit  int           `envconfig:"CORNMAN_MANYCHAT_WEBHOOK_RATE_LIMIT" default:"120"`
	WebhookRateWindow time.Duration `envconfig:"CORNMAN_MANYCHAT_WEBHOOK_RATE_WINDOW" default:"1m"`

	FlowThankYou       string `envconfig:"CORNMAN_MANYCHAT_FLOW_THANK_YOU"`
	FlowPaymentRetry   string `envconfig:"CORNMAN_MANYCHAT_FLOW_PAYMENT_RETRY"`
	FlowOutForDelivery string `envconfig:"CORNMAN_MANYCHAT_FLOW_OUT_FOR_DELIVERY"`
	FlowDelivered      string `envconfig:"CORNMAN_MANYCHAT_FLOW_DELIVERED"`

	FlowWelcome           string `envconfig:"CORNMAN_MANYCHAT_FLOW_WELCOME"`
	FlowProfileUpdated    string `envconfig:"CORNMAN_MANYCHAT_FLOW_PROFILE_UPDATED"`
	FlowOrderConfirmation string `envconfig:"CORNMAN_MANYCHAT_FLOW_ORDER_CONFIRMATION"`
}

type StorefrontConfig struct {
	BaseURL           string `envconfig:"CORNMAN_STOREFRONT_BASE_URL" default:"https://cornman.com"`
	SupportContact    string `envconfig:"CORNMAN_SUPPORT_CONTACT" default:"+6012-3456789"`
	DiscountValidDays int    `envconfig:"CORNMAN_DISCOUNT_VALID_DAYS" default:"7"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"CORNMAN_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"CORNMAN_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"CORNMAN_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	WebhookTTL     time.Duration `envconfig:"CORNMAN_WEBHOOK_IDEMPOTENCY_TTL" default:"24h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"CORNMAN_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"CORNMAN_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"CORNMAN_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrderStatusSubscription string `envconfig:"CORNMAN_PUBSUB_ORDER_STATUS_SUBSCRIPTION" default:"cornman-order-status-manychat"`
	MaxOutstandingMessages  int    `envconfig:"CORNMAN_PUBSUB_MAX_OUTSTANDING_MESSAGES" default:"10"`
	NumGoroutines           int    `envconfig:"CORNMAN_PUBSUB_NUM_GOROUTINES" default:"1"`
}

type CronConfig struct {
	Interval              time.Duration `envconfig:"CORNMAN_CRON_INTERVAL" default:"1h"`
	SnapshotRetentionDays int           `envconfig:"CORNMAN_CART_SNAPSHOT_RETENTION_DAYS" default:"30"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if strings.EqualFold(db.Driver, DBDriverSQLite) {
		db.DSN = db.SQLitePath
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

func splitCSV(value string) []string {
	out := []string{}
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
