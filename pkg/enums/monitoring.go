package enums

import "fmt"

// AlertType identifies the monitoring rule that raised an alert.
type AlertType string

const (
	AlertTypeLargeTransaction    AlertType = "LARGE_TRANSACTION"
	AlertTypeCTRRequired         AlertType = "CTR_REQUIRED"
	AlertTypeVelocity            AlertType = "VELOCITY"
	AlertTypeStructuring         AlertType = "STRUCTURING"
	AlertTypeRapidMovement       AlertType = "RAPID_MOVEMENT"
	AlertTypeRoundAmount         AlertType = "ROUND_AMOUNT"
	AlertTypeUnusualHour         AlertType = "UNUSUAL_HOUR"
	AlertTypeDormantReactivation AlertType = "DORMANT_REACTIVATION"
	AlertTypeSanctionsHit        AlertType = "SANCTIONS_HIT"
	AlertTypeHighRiskGeography   AlertType = "HIGH_RISK_GEOGRAPHY"
	AlertTypePEPTransaction      AlertType = "PEP_TRANSACTION"
	// AlertTypeDeceased blocks settlement but no rule currently raises it.
	AlertTypeDeceased AlertType = "DECEASED"
)

var validAlertTypes = []AlertType{
	AlertTypeLargeTransaction,
	AlertTypeCTRRequired,
	AlertTypeVelocity,
	AlertTypeStructuring,
	AlertTypeRapidMovement,
	AlertTypeRoundAmount,
	AlertTypeUnusualHour,
	AlertTypeDormantReactivation,
	AlertTypeSanctionsHit,
	AlertTypeHighRiskGeography,
	AlertTypePEPTransaction,
	AlertTypeDeceased,
}

// IsValid reports whether the value is a known alert type.
func (t AlertType) IsValid() bool {
	for _, candidate := range validAlertTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseAlertType converts raw input into AlertType.
func ParseAlertType(value string) (AlertType, error) {
	for _, candidate := range validAlertTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid alert type %q", value)
}

// AlertSeverity ranks alerts for review routing.
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "LOW"
	SeverityMedium   AlertSeverity = "MEDIUM"
	SeverityHigh     AlertSeverity = "HIGH"
	SeverityCritical AlertSeverity = "CRITICAL"
)

var severityRank = map[AlertSeverity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// IsValid reports whether the value is a known severity.
func (s AlertSeverity) IsValid() bool {
	_, ok := severityRank[s]
	return ok
}

// Rank orders severities; unknown values rank lowest.
func (s AlertSeverity) Rank() int {
	return severityRank[s]
}

// ParseAlertSeverity converts raw input into AlertSeverity.
func ParseAlertSeverity(value string) (AlertSeverity, error) {
	s := AlertSeverity(value)
	if !s.IsValid() {
		return "", fmt.Errorf("invalid alert severity %q", value)
	}
	return s, nil
}

// AlertStatus is the compliance workflow state of an alert.
type AlertStatus string

const (
	AlertStatusOpen        AlertStatus = "OPEN"
	AlertStatusUnderReview AlertStatus = "UNDER_REVIEW"
	AlertStatusEscalated   AlertStatus = "ESCALATED"
	AlertStatusClosed      AlertStatus = "CLOSED"
)

// IsValid reports whether the value is a known alert status.
func (s AlertStatus) IsValid() bool {
	switch s {
	case AlertStatusOpen, AlertStatusUnderReview, AlertStatusEscalated, AlertStatusClosed:
		return true
	}
	return false
}

// ComplianceReportType distinguishes regulatory filings.
type ComplianceReportType string

const (
	ReportTypeCTR ComplianceReportType = "CTR"
	ReportTypeSTR ComplianceReportType = "STR"
)

// IsValid reports whether the value is a known report type.
func (t ComplianceReportType) IsValid() bool {
	return t == ReportTypeCTR || t == ReportTypeSTR
}

// ComplianceReportStatus tracks filing progress.
type ComplianceReportStatus string

const (
	ReportStatusDraft ComplianceReportStatus = "DRAFT"
	ReportStatusFiled ComplianceReportStatus = "FILED"
)

// IsValid reports whether the value is a known report status.
func (s ComplianceReportStatus) IsValid() bool {
	return s == ReportStatusDraft || s == ReportStatusFiled
}
