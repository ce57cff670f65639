package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	GCS          GCSConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	Ledger       LedgerConfig
	Monitoring   MonitoringConfig
	Audit        AuditConfig
	Screening    ScreeningConfig
	Identity     IdentityConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if _, err := cfg.Ledger.Location(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"WALLETCORE_APP_ENV" required:"true"`
	Port         string `envconfig:"WALLETCORE_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"WALLETCORE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"WALLETCORE_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"WALLETCORE_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"WALLETCORE_SERVICE_KIND" default:"api"`
	// MetricsAddr is where worker binaries serve /metrics. Empty disables it.
	MetricsAddr string `envconfig:"WALLETCORE_METRICS_ADDR" default:":9090"`
}

type DBConfig struct {
	DSN    string `envconfig:"WALLETCORE_DB_DSN"`
	Driver string `envconfig:"WALLETCORE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"WALLETCORE_DB_HOST"`
	LegacyPort     int    `envconfig:"WALLETCORE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"WALLETCORE_DB_USER"`
	LegacyPassword string `envconfig:"WALLETCORE_DB_PASSWORD"`
	LegacyName     string `envconfig:"WALLETCORE_DB_NAME"`
	LegacySSLMode  string `envconfig:"WALLETCORE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"WALLETCORE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"WALLETCORE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"WALLETCORE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"WALLETCORE_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// LockTimeout bounds how long a transaction waits on a row lock before
	// Postgres aborts it with 55P03.
	LockTimeout   time.Duration `envconfig:"WALLETCORE_DB_LOCK_TIMEOUT" default:"3s"`
	SlowQueryTime time.Duration `envconfig:"WALLETCORE_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"WALLETCORE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"WALLETCORE_REDIS_ADDR"`
	Password     string        `envconfig:"WALLETCORE_REDIS_PASSWORD"`
	DB           int           `envconfig:"WALLETCORE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"WALLETCORE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"WALLETCORE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"WALLETCORE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"WALLETCORE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"WALLETCORE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate     bool `envconfig:"WALLETCORE_AUTO_MIGRATE" default:"false"`
	RemoteScreening bool `envconfig:"WALLETCORE_FEATURE_REMOTE_SCREENING" default:"false"`
	BigQueryExport  bool `envconfig:"WALLETCORE_FEATURE_BIGQUERY_EXPORT" default:"false"`
	AuditArchival   bool `envconfig:"WALLETCORE_FEATURE_AUDIT_ARCHIVAL" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"WALLETCORE_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"WALLETCORE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"WALLETCORE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	ArchiveBucket string `envconfig:"WALLETCORE_GCS_ARCHIVE_BUCKET"`
	ArchivePrefix string `envconfig:"WALLETCORE_GCS_ARCHIVE_PREFIX" default:"audit"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"WALLETCORE_PUBSUB_NOTIFICATION_TOPIC" default:"wc-notification-events"`
	LedgerEventsTopic string `envconfig:"WALLETCORE_PUBSUB_LEDGER_EVENTS_TOPIC" default:"wc-ledger-events"`
}

type BigQueryConfig struct {
	Dataset           string `envconfig:"WALLETCORE_BIGQUERY_DATASET" default:"walletcore"`
	DailyReportsTable string `envconfig:"WALLETCORE_BIGQUERY_DAILY_REPORTS_TABLE" default:"ledger_daily_reports"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"WALLETCORE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"WALLETCORE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"WALLETCORE_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"WALLETCORE_OUTBOX_RETENTION_DAYS" default:"30"`
	PruneBatchSize int `envconfig:"WALLETCORE_OUTBOX_PRUNE_BATCH_SIZE" default:"1000"`
}

type CronConfig struct {
	Interval           time.Duration `envconfig:"WALLETCORE_CRON_INTERVAL" default:"1m"`
	LockTTL            time.Duration `envconfig:"WALLETCORE_CRON_LOCK_TTL" default:"10m"`
	ScheduledBatchSize int           `envconfig:"WALLETCORE_CRON_SCHEDULED_BATCH_SIZE" default:"100"`
	// Retryable failures (lock timeouts) put a scheduled transfer back to
	// pending until ScheduledMaxAttempts is reached.
	ScheduledMaxAttempts  int           `envconfig:"WALLETCORE_CRON_SCHEDULED_MAX_ATTEMPTS" default:"5"`
	ScheduledRetryBackoff time.Duration `envconfig:"WALLETCORE_CRON_SCHEDULED_RETRY_BACKOFF" default:"1m"`
	// A row left in processing longer than ScheduledLease is claimable again.
	ScheduledLease time.Duration `envconfig:"WALLETCORE_CRON_SCHEDULED_LEASE" default:"15m"`
}

type LedgerConfig struct {
	Currency      string        `envconfig:"WALLETCORE_LEDGER_CURRENCY" default:"PKR"`
	Timezone      string        `envconfig:"WALLETCORE_LEDGER_TIMEZONE" default:"Asia/Karachi"`
	LockWait      time.Duration `envconfig:"WALLETCORE_LEDGER_LOCK_WAIT" default:"3s"`
	LockTTL       time.Duration `envconfig:"WALLETCORE_LEDGER_LOCK_TTL" default:"30s"`
	DBLockTimeout time.Duration `envconfig:"WALLETCORE_LEDGER_DB_LOCK_TIMEOUT" default:"2s"`

	OperationsRecipient string `envconfig:"WALLETCORE_LEDGER_OPERATIONS_RECIPIENT" default:"role:operations"`
}

// Location resolves the configured business timezone used for day and month windows.
func (l LedgerConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(l.Timezone)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("loading ledger timezone %q: %w", name, err)
	}
	return loc, nil
}

type MonitoringConfig struct {
	PersonalLargeTransaction decimal.Decimal `envconfig:"WALLETCORE_MONITORING_PERSONAL_LARGE_TX" default:"500000"`
	BusinessLargeTransaction decimal.Decimal `envconfig:"WALLETCORE_MONITORING_BUSINESS_LARGE_TX" default:"5000000"`
	CTRThreshold             decimal.Decimal `envconfig:"WALLETCORE_MONITORING_CTR_THRESHOLD" default:"2000000"`

	VelocityHourlyCount int             `envconfig:"WALLETCORE_MONITORING_VELOCITY_HOURLY_COUNT" default:"10"`
	VelocityDailyCount  int             `envconfig:"WALLETCORE_MONITORING_VELOCITY_DAILY_COUNT" default:"50"`
	VelocityDailyAmount decimal.Decimal `envconfig:"WALLETCORE_MONITORING_VELOCITY_DAILY_AMOUNT" default:"5000000"`

	StructuringWindow     time.Duration   `envconfig:"WALLETCORE_MONITORING_STRUCTURING_WINDOW" default:"24h"`
	StructuringMinPrior   int             `envconfig:"WALLETCORE_MONITORING_STRUCTURING_MIN_PRIOR" default:"3"`
	StructuringLowerBound decimal.Decimal `envconfig:"WALLETCORE_MONITORING_STRUCTURING_LOWER_BOUND" default:"450000"`

	RapidMovementFloor int `envconfig:"WALLETCORE_MONITORING_RAPID_MOVEMENT_FLOOR" default:"2"`

	RoundAmountUnit     decimal.Decimal `envconfig:"WALLETCORE_MONITORING_ROUND_AMOUNT_UNIT" default:"10000"`
	RoundAmountFloor    decimal.Decimal `envconfig:"WALLETCORE_MONITORING_ROUND_AMOUNT_FLOOR" default:"50000"`
	RoundAmountMinCount int             `envconfig:"WALLETCORE_MONITORING_ROUND_AMOUNT_MIN_COUNT" default:"3"`
	RoundAmountWindow   time.Duration   `envconfig:"WALLETCORE_MONITORING_ROUND_AMOUNT_WINDOW" default:"168h"`

	UnusualHourStart int `envconfig:"WALLETCORE_MONITORING_UNUSUAL_HOUR_START" default:"0"`
	UnusualHourEnd   int `envconfig:"WALLETCORE_MONITORING_UNUSUAL_HOUR_END" default:"5"`

	DormancyThreshold  time.Duration   `envconfig:"WALLETCORE_MONITORING_DORMANCY_THRESHOLD" default:"4320h"`
	DormantAmountFloor decimal.Decimal `envconfig:"WALLETCORE_MONITORING_DORMANT_AMOUNT_FLOOR" default:"100000"`

	SanctionsMatchScore float64         `envconfig:"WALLETCORE_MONITORING_SANCTIONS_MATCH_SCORE" default:"0.85"`
	HighRiskCountries   []string        `envconfig:"WALLETCORE_MONITORING_HIGH_RISK_COUNTRIES" default:"KP,IR,MM"`
	PEPAmountFloor      decimal.Decimal `envconfig:"WALLETCORE_MONITORING_PEP_AMOUNT_FLOOR" default:"1000000"`
	GeoIPDatabasePath   string          `envconfig:"WALLETCORE_MONITORING_GEOIP_DB_PATH"`

	RuleTimeout         time.Duration `envconfig:"WALLETCORE_MONITORING_RULE_TIMEOUT" default:"2s"`
	ComplianceRecipient string        `envconfig:"WALLETCORE_MONITORING_COMPLIANCE_RECIPIENT" default:"role:compliance"`
}

type AuditConfig struct {
	IntegrityKey     string `envconfig:"WALLETCORE_AUDIT_INTEGRITY_KEY" required:"true"`
	RetentionYears   int    `envconfig:"WALLETCORE_AUDIT_RETENTION_YEARS" default:"5"`
	ArchiveBatchSize int    `envconfig:"WALLETCORE_AUDIT_ARCHIVE_BATCH_SIZE" default:"500"`
}

type ScreeningConfig struct {
	BaseURL    string        `envconfig:"WALLETCORE_SCREENING_BASE_URL"`
	APIKey     string        `envconfig:"WALLETCORE_SCREENING_API_KEY"`
	Timeout    time.Duration `envconfig:"WALLETCORE_SCREENING_TIMEOUT" default:"2s"`
	MaxRetries int           `envconfig:"WALLETCORE_SCREENING_MAX_RETRIES" default:"2"`
}

type IdentityConfig struct {
	BaseURL    string        `envconfig:"WALLETCORE_IDENTITY_BASE_URL"`
	APIKey     string        `envconfig:"WALLETCORE_IDENTITY_API_KEY"`
	Timeout    time.Duration `envconfig:"WALLETCORE_IDENTITY_TIMEOUT" default:"5s"`
	MaxRetries int           `envconfig:"WALLETCORE_IDENTITY_MAX_RETRIES" default:"2"`
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
