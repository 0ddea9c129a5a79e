package config

const (
	EnvPrefix = "SAGA"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	BusDriverKafka  = "kafka"
	BusDriverPubSub = "pubsub"
	BusDriverMemory = "memory"

	EnvAppEnv          = "SAGA_APP_ENV"
	EnvPort            = "SAGA_APP_PORT"
	EnvServiceName     = "SAGA_SERVICE_NAME"
	EnvLogLevel        = "SAGA_LOG_LEVEL"
	EnvDBDSN           = "SAGA_DB_DSN"
	EnvDBDriver        = "SAGA_DB_DRIVER"
	EnvDBHost          = "SAGA_DB_HOST"
	EnvDBUser          = "SAGA_DB_USER"
	EnvDBName          = "SAGA_DB_NAME"
	EnvRedisURL        = "SAGA_REDIS_URL"
	EnvBusDriver       = "SAGA_BUS_DRIVER"
	EnvBusGroup        = "SAGA_BUS_CONSUMER_GROUP"
	EnvKafkaBrokers    = "SAGA_KAFKA_BROKERS"
	EnvGCPProjectID    = "SAGA_GCP_PROJECT_ID"
	EnvPubSubSubSuffix = "SAGA_PUBSUB_SUBSCRIPTION_SUFFIX"
	EnvPaymentMinimum  = "SAGA_PAYMENT_MIN_AMOUNT"
	EnvDedupeTTL       = "SAGA_DEDUPE_TTL"
	EnvMetricsAddr     = "SAGA_METRICS_ADDR"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
