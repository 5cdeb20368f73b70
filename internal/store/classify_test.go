package store

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/skywatch-labs/skywatch/internal/model"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Store{db: sqlx.NewDb(db, "sqlite"), driver: DriverSQLite}, mock
}

func TestClassifyDuplicates(t *testing.T) {
	tests := []struct {
		name string
		err  error
		dup  bool
	}{
		{"postgres unique", &pgconn.PgError{Code: "23505", ConstraintName: "users_username_key"}, true},
		{"postgres other", &pgconn.PgError{Code: "23502"}, false},
		{"mysql duplicate entry", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'alice'"}, true},
		{"mysql other", &mysql.MySQLError{Number: 1048}, false},
		{"sqlite unique", errors.New("constraint failed: UNIQUE constraint failed: users.username (2067)"), true},
		{"plain", errors.New("connection reset"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			if errors.Is(got, ErrDuplicate) != tt.dup {
				t.Errorf("classify(%v) duplicate = %v, want %v", tt.err, !tt.dup, tt.dup)
			}
		})
	}
	if classify(nil) != nil {
		t.Error("classify(nil) should be nil")
	}
}

func TestCreateUserPostgresDuplicate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := s.CreateUser(context.Background(), &model.User{Username: "alice", PasswordHash: "h", Role: model.RoleUser})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSwapPasswordHashDriverError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET password_hash = ? WHERE id = ? AND password_hash = ?")).
		WithArgs("next", "u-1", "old").
		WillReturnError(errors.New("disk I/O error"))

	err := s.SwapPasswordHash(context.Background(), "u-1", "old", "next")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("driver failure must not be reported as ErrNotFound")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
