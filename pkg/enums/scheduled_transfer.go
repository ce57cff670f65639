package enums

import "fmt"

// ScheduledTransferStatus tracks a future-dated transfer. Completed, failed and
// canceled are terminal.
type ScheduledTransferStatus string

const (
	ScheduledTransferPending    ScheduledTransferStatus = "pending"
	ScheduledTransferProcessing ScheduledTransferStatus = "processing"
	ScheduledTransferCompleted  ScheduledTransferStatus = "completed"
	ScheduledTransferFailed     ScheduledTransferStatus = "failed"
	ScheduledTransferCanceled   ScheduledTransferStatus = "canceled"
)

var validScheduledTransferStatuses = []ScheduledTransferStatus{
	ScheduledTransferPending,
	ScheduledTransferProcessing,
	ScheduledTransferCompleted,
	ScheduledTransferFailed,
	ScheduledTransferCanceled,
}

// IsValid reports whether the value is a known status.
func (s ScheduledTransferStatus) IsValid() bool {
	for _, candidate := range validScheduledTransferStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further execution may happen.
func (s ScheduledTransferStatus) IsTerminal() bool {
	switch s {
	case ScheduledTransferCompleted, ScheduledTransferFailed, ScheduledTransferCanceled:
		return true
	}
	return false
}

// ParseScheduledTransferStatus converts raw input into ScheduledTransferStatus.
func ParseScheduledTransferStatus(value string) (ScheduledTransferStatus, error) {
	for _, candidate := range validScheduledTransferStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid scheduled transfer status %q", value)
}

// DailyReportStatus records the outcome of a ledger daily report run.
type DailyReportStatus string

const (
	DailyReportCompleted          DailyReportStatus = "completed"
	DailyReportIntegrityViolation DailyReportStatus = "integrity_violation"
)

// IsValid reports whether the value is a known report status.
func (s DailyReportStatus) IsValid() bool {
	return s == DailyReportCompleted || s == DailyReportIntegrityViolation
}
