package ledger

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

const referencePrefix = "WTX"

// NewReference returns a transaction reference whose leading characters sort
// by creation time and whose tail is random.
func NewReference(now time.Time) string {
	return referencePrefix + ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
}

// ReferenceTime extracts the creation instant encoded in a generated reference.
func ReferenceTime(reference string) (time.Time, bool) {
	if !strings.HasPrefix(reference, referencePrefix) {
		return time.Time{}, false
	}
	id, err := ulid.ParseStrict(strings.TrimPrefix(reference, referencePrefix))
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(id.Time()), true
}
