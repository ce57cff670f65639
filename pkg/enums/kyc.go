package enums

import "fmt"

// KYCLevel is the verification tier bounding how much a user may transact.
type KYCLevel int

const (
	KYCLevelUnverified KYCLevel = 0
	KYCLevelBasic      KYCLevel = 1
	KYCLevelStandard   KYCLevel = 2
	KYCLevelEnhanced   KYCLevel = 3
)

// IsValid reports whether the level is within the tier table.
func (l KYCLevel) IsValid() bool {
	return l >= KYCLevelUnverified && l <= KYCLevelEnhanced
}

// ParseKYCLevel converts a raw integer into KYCLevel.
func ParseKYCLevel(value int) (KYCLevel, error) {
	level := KYCLevel(value)
	if !level.IsValid() {
		return 0, fmt.Errorf("invalid kyc level %d", value)
	}
	return level, nil
}
