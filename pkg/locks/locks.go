package locks

import (
	"context"
	"sort"
	"time"

	pkgerrors "github.com/angelmondragon/walletcore-backend/pkg/errors"
)

const (
	ScopeAccount = "account"
	ScopeUser    = "user"
	ScopeCron    = "cron"

	defaultWait = 3 * time.Second
)

// Release frees every lock taken by a single Acquire call. It is safe to call more than once.
type Release func()

// Locker grants exclusive ownership of keys within a scope for a bounded wait.
type Locker interface {
	Acquire(ctx context.Context, scope string, ids ...string) (Release, error)
}

// ErrTimeout is returned when a lock cannot be obtained within the wait window.
func ErrTimeout(scope string) error {
	return pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "timed out waiting for "+scope+" lock")
}

// orderedKeys dedupes ids and returns them in ascending order so every caller
// takes overlapping locks in the same sequence.
func orderedKeys(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func waitOrDefault(wait time.Duration) time.Duration {
	if wait <= 0 {
		return defaultWait
	}
	return wait
}

func releaseAll(releases []func()) Release {
	done := false
	return func() {
		if done {
			return
		}
		done = true
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
}
