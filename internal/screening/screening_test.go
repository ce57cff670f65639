package screening

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/walletcore-backend/pkg/config"
	"github.com/angelmondragon/walletcore-backend/pkg/db/dbtest"
	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
)

func TestSimilarity(t *testing.T) {
	cases := []struct {
		a, b string
		min  float64
		max  float64
	}{
		{"ahmed khan", "ahmed khan", 1, 1},
		{"ahmed khan", "khan ahmed", 1, 1},
		{"martha", "marhta", 0.96, 0.97},
		{"ahmed khan", "ahmad khan", 0.9, 1},
		{"ahmed khan", "sara lopez", 0, 0.6},
		{"", "sara", 0, 0},
	}
	for _, tc := range cases {
		got := similarity(tc.a, tc.b)
		if got < tc.min || got > tc.max {
			t.Fatalf("similarity(%q, %q) = %.4f, want [%.2f, %.2f]", tc.a, tc.b, got, tc.min, tc.max)
		}
	}
}

func TestNormalizeName(t *testing.T) {
	if got := normalizeName("  Al-Rashid,  OMAR  "); got != "al rashid omar" {
		t.Fatalf("unexpected normalization %q", got)
	}
}

type stubRepo struct {
	entries []models.SanctionsEntry
	calls   int
	err     error
}

func (s *stubRepo) ListEntries(context.Context) ([]models.SanctionsEntry, error) {
	s.calls++
	return s.entries, s.err
}

func (s *stubRepo) Create(_ context.Context, entry *models.SanctionsEntry) error {
	s.entries = append(s.entries, *entry)
	return nil
}

func TestListMatcherMatchesAliasesAndCachesList(t *testing.T) {
	repo := &stubRepo{entries: []models.SanctionsEntry{
		{ID: uuid.New(), FullName: "Viktor Bout", Aliases: pq.StringArray{"Victor Butt"}, SourceList: "UN-1267"},
	}}
	matcher := NewListMatcher(repo, 0.85, time.Minute)
	ctx := context.Background()

	hit, err := matcher.Match(ctx, "victor butt")
	require.NoError(t, err)
	require.True(t, hit.Matched)
	require.Equal(t, "UN-1267", hit.SourceList)
	require.Equal(t, "Viktor Bout", hit.MatchedName)

	miss, err := matcher.Match(ctx, "Jane Doe")
	require.NoError(t, err)
	require.False(t, miss.Matched)
	require.Equal(t, 1, repo.calls)

	matcher.Refresh()
	_, err = matcher.Match(ctx, "Jane Doe")
	require.NoError(t, err)
	require.Equal(t, 2, repo.calls)

	empty, err := matcher.Match(ctx, " ,. ")
	require.NoError(t, err)
	require.False(t, empty.Matched)
}

func TestRepositoryRoundTripsAliases(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.SanctionsEntry{
		ID:         uuid.New(),
		FullName:   "Ahmed Khan",
		Aliases:    pq.StringArray{"Ahmad Khan"},
		SourceList: "NACTA-4",
	}))

	hit, err := NewListMatcher(repo, 0.85, 0).Match(ctx, "AHMAD KHAN")
	require.NoError(t, err)
	require.True(t, hit.Matched)
	require.Equal(t, "NACTA-4", hit.SourceList)
}

func TestRemoteClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/screen", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		var req matchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(matchResponse{Matched: true, Score: 0.97, SourceList: "OFAC", Name: req.Name})
	}))
	defer srv.Close()

	client, err := NewRemoteClient(config.ScreeningConfig{BaseURL: srv.URL + "/", APIKey: "secret", MaxRetries: 2}, srv.Client())
	require.NoError(t, err)

	got, err := client.Match(context.Background(), "Some Name")
	require.NoError(t, err)
	require.True(t, got.Matched)
	require.Equal(t, "OFAC", got.SourceList)
	require.EqualValues(t, 2, calls.Load())
}

func TestRemoteClientSurfacesClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client, err := NewRemoteClient(config.ScreeningConfig{BaseURL: srv.URL}, srv.Client())
	require.NoError(t, err)

	_, err = client.Match(context.Background(), "Some Name")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)

	_, err = NewRemoteClient(config.ScreeningConfig{}, nil)
	require.ErrorIs(t, err, errBaseURLRequired)
}

type fixedMatcher struct {
	match Match
	err   error
}

func (f fixedMatcher) Match(context.Context, string) (Match, error) { return f.match, f.err }

func TestScreenerFailsOpenOnRemoteOutage(t *testing.T) {
	ctx := context.Background()
	local := fixedMatcher{match: Match{Score: 0.4}}

	screener, err := NewScreener(ScreenerParams{Local: local, Remote: fixedMatcher{err: errors.New("timeout")}})
	require.NoError(t, err)
	got, err := screener.Match(ctx, "anyone")
	require.NoError(t, err)
	require.False(t, got.Matched)

	screener, err = NewScreener(ScreenerParams{Local: local, Remote: fixedMatcher{match: Match{Matched: true, Score: 0.9, SourceList: "OFAC"}}})
	require.NoError(t, err)
	got, err = screener.Match(ctx, "anyone")
	require.NoError(t, err)
	require.True(t, got.Matched)
	require.Equal(t, "OFAC", got.SourceList)

	screener, err = NewScreener(ScreenerParams{Local: fixedMatcher{err: errors.New("db down")}})
	require.NoError(t, err)
	_, err = screener.Match(ctx, "anyone")
	require.Error(t, err)

	_, err = NewScreener(ScreenerParams{})
	require.Error(t, err)
}
