// Package dbtest opens isolated in-memory sqlite databases carrying the wallet schema.
package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Amounts use NUMERIC affinity so comparisons in WHERE clauses stay numeric.
var schema = []string{
	`CREATE TABLE accounts (
  id TEXT PRIMARY KEY,
  user_id TEXT,
  type TEXT NOT NULL,
  balance NUMERIC NOT NULL DEFAULT 0 CHECK (balance >= 0),
  currency TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'active',
  last_activity_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE customer_profiles (
  user_id TEXT PRIMARY KEY,
  full_name TEXT NOT NULL,
  country TEXT,
  is_pep INTEGER NOT NULL DEFAULT 0,
  risk_flags TEXT,
  verified_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE transactions (
  id TEXT PRIMARY KEY,
  reference TEXT NOT NULL UNIQUE,
  type TEXT NOT NULL,
  status TEXT NOT NULL,
  amount NUMERIC NOT NULL,
  currency TEXT NOT NULL,
  initiator_user_id TEXT,
  source_account_id TEXT,
  destination_account_id TEXT,
  reversal_of TEXT UNIQUE,
  metadata TEXT,
  created_at DATETIME,
  completed_at DATETIME,
  reversed_at DATETIME
);`,
	`CREATE TABLE ledger_entries (
  id TEXT PRIMARY KEY,
  transaction_ref TEXT NOT NULL,
  account_id TEXT NOT NULL,
  entry_type TEXT NOT NULL,
  amount NUMERIC NOT NULL CHECK (amount > 0),
  balance_after NUMERIC NOT NULL,
  currency TEXT NOT NULL,
  metadata TEXT,
  created_at DATETIME
);`,
	`CREATE TABLE user_limits (
  user_id TEXT PRIMARY KEY,
  kyc_level INTEGER NOT NULL DEFAULT 0,
  per_transaction_limit NUMERIC NOT NULL,
  daily_limit NUMERIC NOT NULL,
  monthly_limit NUMERIC NOT NULL,
  daily_spent NUMERIC NOT NULL DEFAULT 0,
  monthly_spent NUMERIC NOT NULL DEFAULT 0,
  daily_reset_at DATETIME NOT NULL,
  monthly_reset_at DATETIME NOT NULL,
  last_transaction_ref TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE limit_spends (
  transaction_ref TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  amount NUMERIC NOT NULL CHECK (amount > 0),
  created_at DATETIME
);`,
	`CREATE TABLE monitoring_alerts (
  id TEXT PRIMARY KEY,
  type TEXT NOT NULL,
  severity TEXT NOT NULL,
  description TEXT NOT NULL,
  transaction_ref TEXT NOT NULL,
  user_id TEXT NOT NULL,
  status TEXT NOT NULL,
  details TEXT,
  created_at DATETIME
);`,
	`CREATE TABLE compliance_reports (
  id TEXT PRIMARY KEY,
  report_type TEXT NOT NULL,
  transaction_ref TEXT NOT NULL,
  user_id TEXT NOT NULL,
  amount NUMERIC NOT NULL,
  currency TEXT NOT NULL,
  alert_ids TEXT,
  narrative TEXT,
  status TEXT NOT NULL,
  created_at DATETIME,
  UNIQUE (report_type, transaction_ref)
);`,
	`CREATE TABLE transaction_blocks (
  id TEXT PRIMARY KEY,
  transaction_ref TEXT NOT NULL UNIQUE,
  user_id TEXT NOT NULL,
  alert_ids TEXT,
  public_status TEXT NOT NULL,
  created_at DATETIME
);`,
	`CREATE TABLE sanctions_entries (
  id TEXT PRIMARY KEY,
  full_name TEXT NOT NULL,
  aliases TEXT,
  source_list TEXT NOT NULL,
  country TEXT,
  created_at DATETIME
);`,
	`CREATE TABLE audit_records (
  id TEXT PRIMARY KEY,
  user_id TEXT,
  action TEXT NOT NULL,
  entity_type TEXT NOT NULL,
  entity_id TEXT NOT NULL,
  old_values TEXT,
  new_values TEXT,
  ip_address TEXT,
  integrity_hash TEXT NOT NULL,
  created_at DATETIME
);`,
	`CREATE TABLE scheduled_transfers (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  from_account_id TEXT NOT NULL,
  to_account_id TEXT NOT NULL,
  amount NUMERIC NOT NULL,
  counterparty_name TEXT,
  counterparty_country TEXT,
  note TEXT,
  execute_at DATETIME NOT NULL,
  status TEXT NOT NULL,
  transaction_ref TEXT,
  failure_reason TEXT,
  executed_at DATETIME,
  attempts INTEGER NOT NULL DEFAULT 0,
  next_attempt_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE ledger_daily_reports (
  report_date TEXT PRIMARY KEY,
  total_debits NUMERIC NOT NULL,
  total_credits NUMERIC NOT NULL,
  entry_count INTEGER NOT NULL,
  transaction_count INTEGER NOT NULL,
  alert_count INTEGER NOT NULL,
  ctr_count INTEGER NOT NULL,
  str_count INTEGER NOT NULL,
  status TEXT NOT NULL,
  exported_at DATETIME,
  created_at DATETIME
);`,
	`CREATE TABLE outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
}

// Open returns a fresh database with every wallet table created. The pool is
// pinned to one connection so concurrent tests serialize on sqlite's writer.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}
