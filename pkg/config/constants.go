package config

const (
	// EnvPrefix is the envconfig prefix; every field also resolves through its full tag name.
	EnvPrefix = "WALLETCORE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "WALLETCORE_APP_ENV"
	EnvPort     = "WALLETCORE_APP_PORT"
	EnvLogLevel = "WALLETCORE_LOG_LEVEL"

	EnvDBDSN  = "WALLETCORE_DB_DSN"
	EnvDBHost = "WALLETCORE_DB_HOST"
	EnvDBUser = "WALLETCORE_DB_USER"
	EnvDBName = "WALLETCORE_DB_NAME"

	EnvRedisURL = "WALLETCORE_REDIS_URL"

	EnvAuditIntegrityKey = "WALLETCORE_AUDIT_INTEGRITY_KEY"

	EnvLedgerTimezone = "WALLETCORE_LEDGER_TIMEZONE"
	EnvLedgerLockWait = "WALLETCORE_LEDGER_LOCK_WAIT"

	EnvMonitoringCTRThreshold      = "WALLETCORE_MONITORING_CTR_THRESHOLD"
	EnvMonitoringHighRiskCountries = "WALLETCORE_MONITORING_HIGH_RISK_COUNTRIES"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
