package config

const EnvPrefix = "CORNMAN"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	CartStorageRedis  = "redis"
	CartStorageDB     = "db"
	CartStorageMemory = "memory"
)

const (
	EnvAppEnv   = "CORNMAN_APP_ENV"
	EnvPort     = "CORNMAN_APP_PORT"
	EnvLogLevel = "CORNMAN_LOG_LEVEL"

	EnvDBDSN  = "CORNMAN_DB_DSN"
	EnvDBHost = "CORNMAN_DB_HOST"
	EnvDBUser = "CORNMAN_DB_USER"
	EnvDBName = "CORNMAN_DB_NAME"

	EnvRedisURL  = "CORNMAN_REDIS_URL"
	EnvRedisAddr = "CORNMAN_REDIS_ADDR"

	EnvCartStorage    = "CORNMAN_CART_STORAGE"
	EnvCartStorageKey = "CORNMAN_CART_STORAGE_KEY"

	EnvManyChatAPIKey        = "CORNMAN_MANYCHAT_API_KEY"
	EnvManyChatWebhookSecret = "CORNMAN_MANYCHAT_WEBHOOK_SECRET"
	EnvManyChatFlowThankYou  = "CORNMAN_MANYCHAT_FLOW_THANK_YOU"

	EnvUseSQLite = "CORNMAN_USE_SQLITE"

	EnvGCPProjectID          = "CORNMAN_GCP_PROJECT_ID"
	EnvPubSubOrderStatusSub  = "CORNMAN_PUBSUB_ORDER_STATUS_SUBSCRIPTION"
	EnvCronSnapshotRetention = "CORNMAN_CART_SNAPSHOT_RETENTION_DAYS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
