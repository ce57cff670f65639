package enums

// AuditAction names the state change or security event being recorded.
type AuditAction string

const (
	AuditActionTransferCompleted     AuditAction = "TRANSFER_COMPLETED"
	AuditActionTransferBlocked       AuditAction = "TRANSFER_BLOCKED"
	AuditActionTransferFailed        AuditAction = "TRANSFER_FAILED"
	AuditActionDepositCompleted      AuditAction = "DEPOSIT_COMPLETED"
	AuditActionWithdrawalCompleted   AuditAction = "WITHDRAWAL_COMPLETED"
	AuditActionTransactionReversed   AuditAction = "TRANSACTION_REVERSED"
	AuditActionLimitExceeded         AuditAction = "LIMIT_EXCEEDED"
	AuditActionKYCLevelChanged       AuditAction = "KYC_LEVEL_CHANGED"
	AuditActionKYCVerificationFailed AuditAction = "KYC_VERIFICATION_FAILED"
	AuditActionAccountStatusChanged  AuditAction = "ACCOUNT_STATUS_CHANGED"
	AuditActionMonitoringRuleFailure AuditAction = "MONITORING_RULE_FAILURE"
	AuditActionScheduledTransferRun  AuditAction = "SCHEDULED_TRANSFER_EXECUTED"
	AuditActionDailyReportGenerated  AuditAction = "DAILY_REPORT_GENERATED"
	AuditActionIntegrityViolation    AuditAction = "INTEGRITY_VIOLATION"
)

// AuditEntityType names the kind of entity an audit record refers to.
type AuditEntityType string

const (
	AuditEntityTransaction       AuditEntityType = "transaction"
	AuditEntityAccount           AuditEntityType = "account"
	AuditEntityUserLimits        AuditEntityType = "user_limits"
	AuditEntityCustomerProfile   AuditEntityType = "customer_profile"
	AuditEntityScheduledTransfer AuditEntityType = "scheduled_transfer"
	AuditEntityDailyReport       AuditEntityType = "ledger_daily_report"
	AuditEntityMonitoringRule    AuditEntityType = "monitoring_rule"
)
