package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/walletcore-backend/pkg/db/dbtest"
	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
	"github.com/angelmondragon/walletcore-backend/pkg/enums"
	"github.com/angelmondragon/walletcore-backend/pkg/logger"
	"github.com/angelmondragon/walletcore-backend/pkg/metrics"
)

func TestIsSensitiveKey(t *testing.T) {
	cases := map[string]bool{
		"password":      true,
		"new_password":  true,
		"pin":           true,
		"pin_code":      true,
		"accessToken":   true,
		"OTPCode":       true,
		"client-secret": true,
		"spinner":       false,
		"shipping":      false,
		"tokenizer":     false,
		"amount":        false,
		"kyc_level":     false,
	}
	for key, want := range cases {
		if got := isSensitiveKey(key); got != want {
			t.Fatalf("isSensitiveKey(%q) = %v, want %v", key, got, want)
		}
	}
}

func TestSanitizeRedactsNestedKeys(t *testing.T) {
	raw, err := sanitize(map[string]any{
		"amount": "100.00",
		"auth": map[string]any{
			"pin":    "1234",
			"device": "ios",
		},
		"factors": []any{
			map[string]any{"otp": "999999", "kind": "sms"},
		},
	})
	if err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	out := string(raw)
	for _, secret := range []string{"1234", "999999"} {
		if strings.Contains(out, secret) {
			t.Fatalf("secret %q leaked: %s", secret, out)
		}
	}
	for _, kept := range []string{"100.00", "ios", "sms"} {
		if !strings.Contains(out, kept) {
			t.Fatalf("expected %q to be kept: %s", kept, out)
		}
	}
	if raw, err := sanitize(nil); err != nil || raw != nil {
		t.Fatalf("nil values should stay nil, got %s %v", raw, err)
	}
}

func TestHashIsKeyedAndVerifiable(t *testing.T) {
	user := uuid.New()
	a := newHasher([]byte("key-a"))
	b := newHasher([]byte("key-b"))

	sumA := a.sum(&user, enums.AuditActionTransferCompleted, enums.AuditEntityTransaction, "WTX1")
	if len(sumA) != 64 {
		t.Fatalf("expected 32-byte hex digest, got %d chars", len(sumA))
	}
	if sumA == b.sum(&user, enums.AuditActionTransferCompleted, enums.AuditEntityTransaction, "WTX1") {
		t.Fatalf("different keys must yield different digests")
	}

	record := models.AuditRecord{
		UserID:        &user,
		Action:        enums.AuditActionTransferCompleted,
		EntityType:    enums.AuditEntityTransaction,
		EntityID:      "WTX1",
		IntegrityHash: sumA,
	}
	if !a.verify(record) {
		t.Fatalf("expected record to verify")
	}
	record.EntityID = "WTX2"
	if a.verify(record) {
		t.Fatalf("tampered record must not verify")
	}

	long := newHasher(bytes.Repeat([]byte("k"), 100))
	if long.sum(nil, enums.AuditActionDailyReportGenerated, enums.AuditEntityDailyReport, "2026-03-01") == "" {
		t.Fatalf("long keys should be accepted")
	}
}

func newTestService(t *testing.T, db *gorm.DB, reg *prometheus.Registry) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repository:   NewRepository(db),
		IntegrityKey: "test-key",
		Logger:       logger.New(logger.Options{ServiceName: "audit-test", Output: io.Discard}),
		Metrics:      metrics.NewAuditMetrics(reg),
	})
	require.NoError(t, err)
	return svc
}

func TestRecordPersistsSanitizedRecord(t *testing.T) {
	db := dbtest.Open(t)
	svc := newTestService(t, db, prometheus.NewRegistry())
	user := uuid.New()

	id := svc.Record(context.Background(), Event{
		UserID:     &user,
		Action:     enums.AuditActionKYCLevelChanged,
		EntityType: enums.AuditEntityUserLimits,
		EntityID:   user.String(),
		OldValues:  map[string]any{"kyc_level": 0},
		NewValues:  map[string]any{"kyc_level": 2, "otp": "123456"},
		IPAddress:  "10.0.0.1",
	})
	require.NotEqual(t, uuid.Nil, id)

	rows, err := NewRepository(db).ListByEntity(context.Background(), string(enums.AuditEntityUserLimits), user.String())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotContains(t, string(rows[0].NewValues), "123456")
	require.NotNil(t, rows[0].IPAddress)
	require.True(t, svc.Verify(rows[0]))
}

func TestRecordFailureNeverPropagates(t *testing.T) {
	reg := prometheus.NewRegistry()
	auditMetrics := metrics.NewAuditMetrics(reg)
	svc, err := NewService(ServiceParams{
		Repository:   &failingRepo{err: errors.New("db down")},
		IntegrityKey: "test-key",
		Logger:       logger.New(logger.Options{ServiceName: "audit-test", Output: io.Discard}),
		Metrics:      auditMetrics,
	})
	require.NoError(t, err)

	id := svc.Record(context.Background(), Event{
		Action:     enums.AuditActionTransferCompleted,
		EntityType: enums.AuditEntityTransaction,
		EntityID:   "WTX1",
	})
	require.Equal(t, uuid.Nil, id)

	require.Equal(t, 1.0, counterValue(t, reg, "walletcore_audit_write_failures_total"))

	require.Equal(t, uuid.Nil, svc.Record(context.Background(), Event{Action: enums.AuditActionTransferCompleted}))
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		total := 0.0
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
		return total
	}
	return 0
}

type failingRepo struct {
	Repository
	err error
}

func (f *failingRepo) Create(context.Context, *models.AuditRecord) error { return f.err }

type memoryStore struct {
	objects map[string][]byte
	fail    bool
}

func (m *memoryStore) ObjectName(parts ...string) string {
	return "audit/" + strings.Join(parts, "/")
}

func (m *memoryStore) UploadObject(_ context.Context, name, _ string, body io.Reader) error {
	if m.fail {
		return errors.New("bucket unavailable")
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[name] = data
	return nil
}

func seedAuditRecords(t *testing.T, db *gorm.DB, createdAt time.Time, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, db.Create(&models.AuditRecord{
			ID:            uuid.New(),
			Action:        enums.AuditActionTransferCompleted,
			EntityType:    enums.AuditEntityTransaction,
			EntityID:      uuid.NewString(),
			IntegrityHash: "h",
			CreatedAt:     createdAt.Add(time.Duration(i) * time.Second).UTC(),
		}).Error)
	}
}

func TestArchiverMovesOnlyExpiredRecords(t *testing.T) {
	db := dbtest.Open(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedAuditRecords(t, db, now.AddDate(-6, 0, 0), 5)
	seedAuditRecords(t, db, now.AddDate(-1, 0, 0), 2)

	store := &memoryStore{}
	archiver, err := NewArchiver(ArchiverParams{
		Repository: NewRepository(db),
		Store:      store,
		BatchSize:  2,
	})
	require.NoError(t, err)

	archived, err := archiver.Archive(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 5, archived)
	require.Len(t, store.objects, 3)

	lines := 0
	for _, body := range store.objects {
		scanner := bufio.NewScanner(bytes.NewReader(body))
		for scanner.Scan() {
			var rec archivedRecord
			require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
			lines++
		}
	}
	require.Equal(t, 5, lines)

	var remaining int64
	require.NoError(t, db.Model(&models.AuditRecord{}).Count(&remaining).Error)
	require.EqualValues(t, 2, remaining)
}

func TestArchiverKeepsRowsWhenUploadFails(t *testing.T) {
	db := dbtest.Open(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedAuditRecords(t, db, now.AddDate(-6, 0, 0), 3)

	archiver, err := NewArchiver(ArchiverParams{
		Repository: NewRepository(db),
		Store:      &memoryStore{fail: true},
	})
	require.NoError(t, err)

	archived, err := archiver.Archive(context.Background(), now)
	require.Error(t, err)
	require.Zero(t, archived)

	var remaining int64
	require.NoError(t, db.Model(&models.AuditRecord{}).Count(&remaining).Error)
	require.EqualValues(t, 3, remaining)
}
