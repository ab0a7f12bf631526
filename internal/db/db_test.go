package db

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureSchemaRunsEveryStep(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	for _, table := range []string{"workers", "advances", "advance_transitions", "payroll_deductions", "transactions", "notifications"} {
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS " + table + " ").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	err = EnsureSchema(context.Background(), conn, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchemaStopsOnFailure(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS workers").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS advances").WillReturnError(errors.New("permission denied"))

	err = EnsureSchema(context.Background(), conn, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ensure advances")
	assert.NoError(t, mock.ExpectationsWereMet())
}
