package identity

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
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/walletcore-backend/internal/accounts"
	"github.com/angelmondragon/walletcore-backend/internal/audit"
	"github.com/angelmondragon/walletcore-backend/internal/limits"
	"github.com/angelmondragon/walletcore-backend/pkg/config"
	"github.com/angelmondragon/walletcore-backend/pkg/db"
	"github.com/angelmondragon/walletcore-backend/pkg/db/dbtest"
	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
	"github.com/angelmondragon/walletcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/walletcore-backend/pkg/errors"
	"github.com/angelmondragon/walletcore-backend/pkg/locks"
)

type auditLog struct{ events []audit.Event }

func (a *auditLog) Record(_ context.Context, event audit.Event) uuid.UUID {
	a.events = append(a.events, event)
	return uuid.New()
}

type verifierFunc func(ctx context.Context, idNumber string, data PersonalData) (Result, error)

func (f verifierFunc) Verify(ctx context.Context, idNumber string, data PersonalData) (Result, error) {
	return f(ctx, idNumber, data)
}

type fixture struct {
	svc      *Service
	limits   limits.Service
	accounts accounts.Repository
	audit    *auditLog
}

func newFixture(t *testing.T, verifier Verifier) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	now := func() time.Time { return time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC) }
	limitSvc, err := limits.NewService(limits.ServiceParams{
		TxRunner:   db.Wrap(conn),
		Repository: limits.NewRepository(conn),
		Locker:     locks.NewMemoryLocker(time.Second),
		Now:        now,
	})
	require.NoError(t, err)
	accountRepo := accounts.NewRepository(conn)
	log := &auditLog{}
	svc, err := NewService(ServiceParams{
		Verifier: verifier,
		Limits:   limitSvc,
		Profiles: accountRepo,
		Auditor:  log,
		Now:      now,
	})
	require.NoError(t, err)
	return &fixture{svc: svc, limits: limitSvc, accounts: accountRepo, audit: log}
}

func validInput(userID uuid.UUID) UpgradeInput {
	return UpgradeInput{
		UserID:       userID,
		IDNumber:     "35202-1234567-1",
		PersonalData: PersonalData{FullName: "Ayesha Siddiqui", DateOfBirth: "1990-04-12"},
		IPAddress:    "203.0.113.4",
	}
}

func TestUpgradeRaisesTierAndStoresFlags(t *testing.T) {
	var received verifyRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/verify", r.URL.Path)
		require.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_ = json.NewEncoder(w).Encode(verifyResponse{Verified: true, KYCLevel: 2, RiskFlags: []string{"ADDRESS_MISMATCH"}})
	}))
	defer server.Close()

	verifier, err := NewHTTPVerifier(config.IdentityConfig{BaseURL: server.URL, APIKey: "key"}, server.Client())
	require.NoError(t, err)
	f := newFixture(t, verifier)
	ctx := context.Background()
	user := uuid.New()
	require.NoError(t, f.accounts.UpsertProfile(ctx, &models.CustomerProfile{UserID: user, FullName: "Ayesha Siddiqui"}))

	outcome, err := f.svc.Upgrade(ctx, validInput(user))
	require.NoError(t, err)
	require.True(t, outcome.Verified)
	require.Equal(t, enums.KYCLevelUnverified, outcome.Previous)
	require.Equal(t, enums.KYCLevelStandard, outcome.Level)
	require.Equal(t, "35202-1234567-1", received.IDNumber)

	row, err := f.limits.Get(ctx, user)
	require.NoError(t, err)
	require.Equal(t, enums.KYCLevelStandard, row.KYCLevel)
	require.True(t, row.DailyLimit.Equal(limits.TierFor(enums.KYCLevelStandard).Daily))

	profile, err := f.accounts.FindProfile(ctx, user)
	require.NoError(t, err)
	require.Equal(t, []string{"ADDRESS_MISMATCH"}, []string(profile.RiskFlags))
	require.NotNil(t, profile.VerifiedAt)

	require.Len(t, f.audit.events, 1)
	require.Equal(t, enums.AuditActionKYCLevelChanged, f.audit.events[0].Action)
}

func TestUpgradeFailsClosed(t *testing.T) {
	cases := []struct {
		name     string
		verifier verifierFunc
		wantErr  bool
	}{
		{
			name: "negative",
			verifier: func(context.Context, string, PersonalData) (Result, error) {
				return Result{Verified: false}, nil
			},
		},
		{
			name: "verified without tier",
			verifier: func(context.Context, string, PersonalData) (Result, error) {
				return Result{Verified: true, KYCLevel: enums.KYCLevelUnverified}, nil
			},
		},
		{
			name: "unreachable",
			verifier: func(context.Context, string, PersonalData) (Result, error) {
				return Result{}, errors.New("dial tcp: connection refused")
			},
			wantErr: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.verifier)
			ctx := context.Background()
			user := uuid.New()

			outcome, err := f.svc.Upgrade(ctx, validInput(user))
			if tc.wantErr {
				require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
			} else {
				require.NoError(t, err)
				require.False(t, outcome.Verified)
			}

			_, err = f.limits.Get(ctx, user)
			require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "kyc state must stay untouched")
			require.Len(t, f.audit.events, 1)
			require.Equal(t, enums.AuditActionKYCVerificationFailed, f.audit.events[0].Action)
		})
	}
}

func TestUpgradeNeverLowersTier(t *testing.T) {
	f := newFixture(t, verifierFunc(func(context.Context, string, PersonalData) (Result, error) {
		return Result{Verified: true, KYCLevel: enums.KYCLevelBasic}, nil
	}))
	ctx := context.Background()
	user := uuid.New()
	_, err := f.limits.SetKYCLevel(ctx, user, enums.KYCLevelEnhanced)
	require.NoError(t, err)

	outcome, err := f.svc.Upgrade(ctx, validInput(user))
	require.NoError(t, err)
	require.True(t, outcome.Verified)
	require.Equal(t, enums.KYCLevelEnhanced, outcome.Level)

	row, err := f.limits.Get(ctx, user)
	require.NoError(t, err)
	require.Equal(t, enums.KYCLevelEnhanced, row.KYCLevel)
}

func TestUpgradeValidation(t *testing.T) {
	f := newFixture(t, verifierFunc(func(context.Context, string, PersonalData) (Result, error) {
		t.Fatal("verifier must not be called")
		return Result{}, nil
	}))
	bad := []UpgradeInput{
		{},
		{UserID: uuid.New(), PersonalData: PersonalData{FullName: "x", DateOfBirth: "y"}},
		{UserID: uuid.New(), IDNumber: "1"},
	}
	for i, input := range bad {
		_, err := f.svc.Upgrade(context.Background(), input)
		if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestHTTPVerifierRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(verifyResponse{Verified: true, KYCLevel: 1})
	}))
	defer server.Close()

	verifier, err := NewHTTPVerifier(config.IdentityConfig{BaseURL: server.URL, MaxRetries: 2}, server.Client())
	require.NoError(t, err)
	result, err := verifier.Verify(context.Background(), "1", PersonalData{})
	require.NoError(t, err)
	require.True(t, result.Verified)
	require.Equal(t, int32(2), calls.Load())

	_, err = NewHTTPVerifier(config.IdentityConfig{}, nil)
	require.ErrorIs(t, err, errBaseURLRequired)
}

func TestHTTPVerifierRejectsUnknownTier(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(verifyResponse{Verified: true, KYCLevel: 7})
	}))
	defer server.Close()

	verifier, err := NewHTTPVerifier(config.IdentityConfig{BaseURL: server.URL}, server.Client())
	require.NoError(t, err)
	_, err = verifier.Verify(context.Background(), "1", PersonalData{})
	require.Error(t, err)
}
