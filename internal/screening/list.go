package screening

import (
	"context"
	"sync"
	"time"

	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
)

const defaultListTTL = 10 * time.Minute

type listName struct {
	normalized string
	display    string
	source     string
}

// ListMatcher fuzzy matches names against the local sanctions list. The list
// is loaded on first use and reloaded after ttl.
type ListMatcher struct {
	repo      Repository
	threshold float64
	ttl       time.Duration
	now       func() time.Time

	mu       sync.RWMutex
	names    []listName
	loadedAt time.Time
}

// NewListMatcher builds a matcher that reports scores at or above threshold.
func NewListMatcher(repo Repository, threshold float64, ttl time.Duration) *ListMatcher {
	if ttl <= 0 {
		ttl = defaultListTTL
	}
	return &ListMatcher{repo: repo, threshold: threshold, ttl: ttl, now: time.Now}
}

func (m *ListMatcher) Match(ctx context.Context, name string) (Match, error) {
	needle := normalizeName(name)
	if needle == "" {
		return Match{}, nil
	}
	names, err := m.snapshot(ctx)
	if err != nil {
		return Match{}, err
	}

	best := Match{}
	for _, candidate := range names {
		score := similarity(needle, candidate.normalized)
		if score > best.Score {
			best = Match{Score: score, SourceList: candidate.source, MatchedName: candidate.display}
		}
	}
	best.Matched = best.Score >= m.threshold
	return best, nil
}

// Refresh forces the next Match to reload the list.
func (m *ListMatcher) Refresh() {
	m.mu.Lock()
	m.loadedAt = time.Time{}
	m.mu.Unlock()
}

func (m *ListMatcher) snapshot(ctx context.Context) ([]listName, error) {
	m.mu.RLock()
	if !m.loadedAt.IsZero() && m.now().Sub(m.loadedAt) < m.ttl {
		names := m.names
		m.mu.RUnlock()
		return names, nil
	}
	m.mu.RUnlock()

	entries, err := m.repo.ListEntries(ctx)
	if err != nil {
		return nil, err
	}
	names := expandEntries(entries)

	m.mu.Lock()
	m.names = names
	m.loadedAt = m.now()
	m.mu.Unlock()
	return names, nil
}

func expandEntries(entries []models.SanctionsEntry) []listName {
	out := make([]listName, 0, len(entries))
	for _, entry := range entries {
		if normalized := normalizeName(entry.FullName); normalized != "" {
			out = append(out, listName{normalized: normalized, display: entry.FullName, source: entry.SourceList})
		}
		for _, alias := range entry.Aliases {
			if normalized := normalizeName(alias); normalized != "" {
				out = append(out, listName{normalized: normalized, display: entry.FullName, source: entry.SourceList})
			}
		}
	}
	return out
}
