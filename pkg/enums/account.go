package enums

import "fmt"

// AccountType distinguishes customer wallets from internal pool accounts.
type AccountType string

const (
	AccountTypeCustomer    AccountType = "customer"
	AccountTypeBusiness    AccountType = "business"
	AccountTypeSettlement  AccountType = "settlement"
	AccountTypeOperational AccountType = "operational"
)

var validAccountTypes = []AccountType{
	AccountTypeCustomer,
	AccountTypeBusiness,
	AccountTypeSettlement,
	AccountTypeOperational,
}

// String implements fmt.Stringer.
func (t AccountType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known account type.
func (t AccountType) IsValid() bool {
	for _, candidate := range validAccountTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// IsBusiness reports whether large-transaction checks use the business threshold.
func (t AccountType) IsBusiness() bool {
	return t == AccountTypeBusiness
}

// ParseAccountType converts raw input into AccountType.
func ParseAccountType(value string) (AccountType, error) {
	for _, candidate := range validAccountTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid account type %q", value)
}

// AccountStatus tracks whether an account may move money. Closed is terminal.
type AccountStatus string

const (
	AccountStatusActive AccountStatus = "active"
	AccountStatusFrozen AccountStatus = "frozen"
	AccountStatusClosed AccountStatus = "closed"
)

var validAccountStatuses = []AccountStatus{
	AccountStatusActive,
	AccountStatusFrozen,
	AccountStatusClosed,
}

// String implements fmt.Stringer.
func (s AccountStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known account status.
func (s AccountStatus) IsValid() bool {
	for _, candidate := range validAccountStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether a status change is allowed.
func (s AccountStatus) CanTransitionTo(next AccountStatus) bool {
	if !next.IsValid() || s == AccountStatusClosed {
		return false
	}
	return s != next
}

// ParseAccountStatus converts raw input into AccountStatus.
func ParseAccountStatus(value string) (AccountStatus, error) {
	for _, candidate := range validAccountStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid account status %q", value)
}
