package enums

import "fmt"

// EntryType is the side of a ledger entry.
type EntryType string

const (
	EntryTypeDebit  EntryType = "debit"
	EntryTypeCredit EntryType = "credit"
)

// IsValid reports whether the entry type is debit or credit.
func (e EntryType) IsValid() bool {
	return e == EntryTypeDebit || e == EntryTypeCredit
}

// Opposite returns the compensating side.
func (e EntryType) Opposite() EntryType {
	if e == EntryTypeDebit {
		return EntryTypeCredit
	}
	return EntryTypeDebit
}

// TransactionType classifies a money movement.
type TransactionType string

const (
	TransactionTypeTransfer    TransactionType = "transfer"
	TransactionTypeDeposit     TransactionType = "deposit"
	TransactionTypeWithdrawal  TransactionType = "withdrawal"
	TransactionTypeRemittance  TransactionType = "remittance"
	TransactionTypeRefund      TransactionType = "refund"
	TransactionTypeBillPayment TransactionType = "bill_payment"
)

var validTransactionTypes = []TransactionType{
	TransactionTypeTransfer,
	TransactionTypeDeposit,
	TransactionTypeWithdrawal,
	TransactionTypeRemittance,
	TransactionTypeRefund,
	TransactionTypeBillPayment,
}

// String implements fmt.Stringer.
func (t TransactionType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known transaction type.
func (t TransactionType) IsValid() bool {
	for _, candidate := range validTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// IsTwoSided reports whether the type moves money between two accounts.
func (t TransactionType) IsTwoSided() bool {
	switch t {
	case TransactionTypeTransfer, TransactionTypeRemittance, TransactionTypeRefund, TransactionTypeBillPayment:
		return true
	}
	return false
}

// ParseTransactionType converts raw input into TransactionType.
func ParseTransactionType(value string) (TransactionType, error) {
	for _, candidate := range validTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction type %q", value)
}

// TransactionStatus tracks a transaction through settlement.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusReversed  TransactionStatus = "reversed"
)

var validTransactionStatuses = []TransactionStatus{
	TransactionStatusPending,
	TransactionStatusCompleted,
	TransactionStatusFailed,
	TransactionStatusReversed,
}

// IsValid reports whether the value is a known transaction status.
func (s TransactionStatus) IsValid() bool {
	for _, candidate := range validTransactionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseTransactionStatus converts raw input into TransactionStatus.
func ParseTransactionStatus(value string) (TransactionStatus, error) {
	for _, candidate := range validTransactionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction status %q", value)
}
