package config

import "time"

type AppConfig struct {
	ConnectorName string `env:"CONNECTOR_NAME" envDefault:"email-connector"`
	HealthPort    string `env:"HEALTH_PORT" envDefault:"8080"`
}

type KafkaConfig struct {
	Brokers              []string `env:"KAFKA_BOOTSTRAP_SERVERS" envSeparator:"," envDefault:"localhost:9092"`
	RawMessagesTopic     string   `env:"KAFKA_RAW_MESSAGES_TOPIC" envDefault:"raw-messages"`
	DeadLetterTopic      string   `env:"KAFKA_DEAD_LETTER_TOPIC" envDefault:"dead-letter"`
	ParsedMessagesTopic  string   `env:"KAFKA_PARSED_MESSAGES_TOPIC" envDefault:"parsed-messages"`
	NormalizedTopic      string   `env:"KAFKA_NORMALIZED_TOPIC" envDefault:"normalized-messages"`
	ProcessorGroup       string   `env:"KAFKA_PROCESSOR_GROUP" envDefault:"email-processor"`
	NormalizerGroup      string   `env:"KAFKA_NORMALIZER_GROUP" envDefault:"ingestion-normalizer"`
	ProducerBatchTimeout time.Duration `env:"KAFKA_PRODUCER_BATCH_TIMEOUT" envDefault:"50ms"`
}

// RetryConfig drives the delivery engine's bounded exponential backoff:
// wait = min(InitialWait * Multiplier^(n-1), MaxWait).
type RetryConfig struct {
	MaxAttempts int           `env:"RETRY_MAX_ATTEMPTS" envDefault:"5"`
	InitialWait time.Duration `env:"RETRY_INITIAL_WAIT" envDefault:"1s"`
	MaxWait     time.Duration `env:"RETRY_MAX_WAIT" envDefault:"60s"`
	Multiplier  float64       `env:"RETRY_MULTIPLIER" envDefault:"2"`
}

type StorageConfig struct {
	Bucket            string `env:"STORAGE_BUCKET" envDefault:"commstack"`
	Region            string `env:"STORAGE_REGION" envDefault:"us-east-1"`
	Endpoint          string `env:"STORAGE_ENDPOINT"`
	AccessKeyID       string `env:"STORAGE_ACCESS_KEY_ID"`
	AccessKeySecret   string `env:"STORAGE_ACCESS_KEY_SECRET"`
	RawPrefix         string `env:"STORAGE_RAW_PREFIX" envDefault:"raw/email"`
	AttachmentsPrefix string `env:"STORAGE_ATTACHMENTS_PREFIX" envDefault:"raw/email/attachments"`
	NormalizedPrefix  string `env:"STORAGE_NORMALIZED_PREFIX" envDefault:"normalized"`
}

type IMAPConfig struct {
	Host         string        `env:"IMAP_HOST"`
	Port         int           `env:"IMAP_PORT" envDefault:"993"`
	UseSSL       bool          `env:"IMAP_USE_SSL" envDefault:"true"`
	Username     string        `env:"IMAP_USERNAME"`
	Password     string        `env:"IMAP_PASSWORD"`
	Mailbox      string        `env:"IMAP_MAILBOX" envDefault:"INBOX"`
	PollInterval time.Duration `env:"IMAP_POLL_INTERVAL" envDefault:"30s"`
}

type IngestionAPIConfig struct {
	BaseURL string        `env:"INGESTION_API_BASE_URL"`
	Timeout time.Duration `env:"INGESTION_API_TIMEOUT" envDefault:"30s"`
	APIKey  string        `env:"INGESTION_API_KEY"`
}

type NormalizerConfig struct {
	MonitoredDomains []string `env:"MONITORED_DOMAINS" envSeparator:","`
}

// DatabaseConfig is optional: when Host is empty the email connector
// keeps its mailbox cursor in memory only.
type DatabaseConfig struct {
	Host            string `env:"POSTGRES_HOST"`
	Port            string `env:"POSTGRES_PORT" envDefault:"5432"`
	User            string `env:"POSTGRES_USER"`
	Password        string `env:"POSTGRES_PASSWORD"`
	DBName          string `env:"POSTGRES_DB_NAME"`
	SSLMode         string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	MaxConn         int    `env:"POSTGRES_DB_MAX_CONN" envDefault:"10"`
	MaxIdleConn     int    `env:"POSTGRES_DB_MAX_IDLE_CONN" envDefault:"5"`
	ConnMaxLifetime int    `env:"POSTGRES_DB_CONN_MAX_LIFETIME" envDefault:"300"`
}

func (c *DatabaseConfig) Enabled() bool {
	return c.Host != ""
}
