package repository

import (
	"context"
	"log/slog"
	"os"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/finledger/pipeline/internal/domain/common"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func TestRepository_ListAccounts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, type, name, institution, currency, parent_account_id")).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "type", "name", "institution", "currency", "parent_account_id"}).
			AddRow("acc-1", "user-1", "checking", "Main", "Inter", "BRL", nil))

	repo := New(mock, testLogger())
	accounts, err := repo.ListAccounts(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	require.Equal(t, "acc-1", accounts[0].ID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_GetAccount_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, type, name, institution, currency, parent_account_id")).
		WithArgs("acc-missing", "user-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "type", "name", "institution", "currency", "parent_account_id"}))

	repo := New(mock, testLogger())
	_, err = repo.GetAccount(context.Background(), "user-1", "acc-missing")
	require.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_FindImportSource_NotFoundReturnsNil(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, kind, file_name, file_hash, institution_hint, created_at")).
		WithArgs("user-1", "deadbeef").
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "kind", "file_name", "file_hash", "institution_hint", "created_at"}))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	repo := New(mock, testLogger())
	source, err := repo.FindImportSource(context.Background(), tx, "user-1", "deadbeef")
	require.NoError(t, err)
	require.Nil(t, source)
}
