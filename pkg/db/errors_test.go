package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_transactions_reference", Message: "duplicate key value violates unique constraint"}
	wrapped := fmt.Errorf("insert transaction: %w", pgErr)

	tests := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "pg any constraint", err: wrapped, want: true},
		{name: "pg matching constraint", err: wrapped, constraint: "ux_transactions_reference", want: true},
		{name: "pg other constraint", err: wrapped, constraint: "ux_accounts_user", want: false},
		{name: "pg other code", err: &pgconn.PgError{Code: "23503"}, want: false},
		{name: "sqlite message", err: errors.New("UNIQUE constraint failed: transactions.reference"), want: true},
		{name: "sqlite constraint column", err: errors.New("UNIQUE constraint failed: transactions.reference"), constraint: "transactions.reference", want: true},
		{name: "unrelated", err: errors.New("boom"), want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsUniqueViolation(tc.err, tc.constraint); got != tc.want {
				t.Fatalf("IsUniqueViolation() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestIsLockTimeout(t *testing.T) {
	if !IsLockTimeout(fmt.Errorf("lock rows: %w", &pgconn.PgError{Code: "55P03"})) {
		t.Fatal("expected lock_not_available to be a lock timeout")
	}
	if !IsLockTimeout(&pgconn.PgError{Code: "40P01"}) {
		t.Fatal("expected deadlock to be treated as lock conflict")
	}
	if IsLockTimeout(&pgconn.PgError{Code: "23505"}) {
		t.Fatal("unique violation is not a lock timeout")
	}
	if IsLockTimeout(nil) {
		t.Fatal("nil is not a lock timeout")
	}
}
