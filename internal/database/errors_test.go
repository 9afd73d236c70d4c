package database

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestViolationHelpers(t *testing.T) {
	unique := &pgconn.PgError{Code: ErrCodeUniqueViolation, ConstraintName: "person_pkey"}
	fkey := &pgconn.PgError{Code: ErrCodeForeignKeyViolation}
	check := &pgconn.PgError{Code: ErrCodeCheckViolation}
	notNull := &pgconn.PgError{Code: ErrCodeNotNullViolation}

	assert.True(t, IsUniqueViolation(unique))
	assert.False(t, IsUniqueViolation(fkey))
	assert.True(t, IsForeignKeyViolation(fkey))
	assert.True(t, IsCheckViolation(check))
	assert.True(t, IsNotNullViolation(notNull))
	assert.False(t, IsUniqueViolation(errors.New("not a pg error")))

	assert.Equal(t, "person_pkey", GetConstraintName(unique))
	assert.Equal(t, "person_pkey", GetConstraintName(fmt.Errorf("insert failed: %w", unique)))
	assert.Empty(t, GetConstraintName(errors.New("nope")))
}

func TestIsDisconnectClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"connection exception class", &pgconn.PgError{Code: "08006"}, true},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, true},
		{"crash shutdown", &pgconn.PgError{Code: "57P02"}, true},
		{"cannot connect now", &pgconn.PgError{Code: "57P03"}, true},
		{"too many connections", &pgconn.PgError{Code: "53300"}, true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"eof", io.EOF, true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"conn closed string", errors.New("conn closed"), true},
		{"plain error", errors.New("syntax error"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isDisconnect(tt.err))
		})
	}
}

func TestWrapErrTagsDisconnects(t *testing.T) {
	wrapped := wrapErr(&pgconn.PgError{Code: "08006"})
	var disc *DisconnectError
	assert.ErrorAs(t, wrapped, &disc)
	assert.True(t, disc.Disconnected())

	plain := wrapErr(errors.New("syntax error"))
	assert.False(t, errors.As(plain, &disc))

	assert.NoError(t, wrapErr(nil))
}
