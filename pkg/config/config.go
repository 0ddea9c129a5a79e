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
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Bus          BusConfig
	Kafka        KafkaConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Saga         SagaConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Bus.validate(cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"SAGA_APP_ENV" required:"true"`
	Port         string   `envconfig:"SAGA_APP_PORT" default:"8080"`
	ServiceName  string   `envconfig:"SAGA_SERVICE_NAME"`
	LogLevel     string   `envconfig:"SAGA_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"SAGA_LOG_WARN_STACK" default:"false"`
	MetricsAddr  string   `envconfig:"SAGA_METRICS_ADDR" default:":9090"`
	CORSOrigins  []string `envconfig:"SAGA_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"SAGA_DB_DSN"`
	Driver string `envconfig:"SAGA_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SAGA_DB_HOST"`
	LegacyPort     int    `envconfig:"SAGA_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SAGA_DB_USER"`
	LegacyPassword string `envconfig:"SAGA_DB_PASSWORD"`
	LegacyName     string `envconfig:"SAGA_DB_NAME"`
	LegacySSLMode  string `envconfig:"SAGA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SAGA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SAGA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SAGA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SAGA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SAGA_REDIS_URL"`
	Address      string        `envconfig:"SAGA_REDIS_ADDR"`
	Password     string        `envconfig:"SAGA_REDIS_PASSWORD"`
	DB           int           `envconfig:"SAGA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SAGA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SAGA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SAGA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SAGA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SAGA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a Redis endpoint is configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"SAGA_AUTO_MIGRATE" default:"false"`
}

// BusConfig selects the message transport shared by every saga service.
type BusConfig struct {
	Driver        string `envconfig:"SAGA_BUS_DRIVER" default:"kafka"`
	ConsumerGroup string `envconfig:"SAGA_BUS_CONSUMER_GROUP"`
}

// Group returns the consumer group, falling back to the service name.
func (b BusConfig) Group(service string) string {
	if g := strings.TrimSpace(b.ConsumerGroup); g != "" {
		return g
	}
	return service
}

func (b BusConfig) validate(cfg Config) error {
	switch strings.ToLower(strings.TrimSpace(b.Driver)) {
	case BusDriverKafka:
		if len(cfg.Kafka.Brokers) == 0 {
			return fmt.Errorf("%s is required for the kafka bus", EnvKafkaBrokers)
		}
	case BusDriverPubSub:
		if strings.TrimSpace(cfg.GCP.ProjectID) == "" {
			return fmt.Errorf("%s is required for the pubsub bus", EnvGCPProjectID)
		}
	case BusDriverMemory:
	default:
		return fmt.Errorf("unsupported %s %q", EnvBusDriver, b.Driver)
	}
	return nil
}

type KafkaConfig struct {
	Brokers      []string      `envconfig:"SAGA_KAFKA_BROKERS"`
	BatchTimeout time.Duration `envconfig:"SAGA_KAFKA_BATCH_TIMEOUT" default:"10ms"`
	WriteTimeout time.Duration `envconfig:"SAGA_KAFKA_WRITE_TIMEOUT" default:"10s"`
	MaxWait      time.Duration `envconfig:"SAGA_KAFKA_MAX_WAIT" default:"1s"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"SAGA_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	// SubscriptionSuffix is appended to a topic name to form the
	// subscription a service reads from, e.g. payment-success.payment.
	SubscriptionSuffix string `envconfig:"SAGA_PUBSUB_SUBSCRIPTION_SUFFIX"`
}

// SubscriptionFor returns the subscription id bound to topic for group.
func (p PubSubConfig) SubscriptionFor(topic, group string) string {
	suffix := strings.TrimSpace(p.SubscriptionSuffix)
	if suffix == "" {
		suffix = group
	}
	if suffix == "" {
		return topic
	}
	return topic + "." + suffix
}

type SagaConfig struct {
	PaymentMinAmount float64       `envconfig:"SAGA_PAYMENT_MIN_AMOUNT" default:"0.1"`
	DedupeTTL        time.Duration `envconfig:"SAGA_DEDUPE_TTL" default:"168h"`
}

// OutboxConfig tunes the relay that publishes committed outbox rows.
type OutboxConfig struct {
	BatchSize    int           `envconfig:"SAGA_OUTBOX_BATCH_SIZE" default:"50"`
	PollInterval time.Duration `envconfig:"SAGA_OUTBOX_POLL_INTERVAL" default:"500ms"`
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
