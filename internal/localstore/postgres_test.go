package localstore

import (
	"context"
	"errors"
	"os"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgres(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgres(sqlx.NewDb(db, "postgres")), mock
}

func TestApplyMigrations(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS storefront_kv").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, ApplyMigrations(context.Background(), sqlx.NewDb(db, "postgres")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyMigrationsFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied"))

	err = ApplyMigrations(context.Background(), sqlx.NewDb(db, "postgres"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apply migration 1")
}

func TestPostgresGet(t *testing.T) {
	p, mock := newMockPostgres(t)
	query := regexp.QuoteMeta(`SELECT value FROM storefront_kv WHERE key = $1`)

	mock.ExpectQuery(query).WithArgs("cart").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(`[]`))
	v, err := p.Get(context.Background(), "cart")
	require.NoError(t, err)
	assert.Equal(t, `[]`, v)

	mock.ExpectQuery(query).WithArgs("session").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))
	_, err = p.Get(context.Background(), "session")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSetAndDelete(t *testing.T) {
	p, mock := newMockPostgres(t)

	mock.ExpectExec("INSERT INTO storefront_kv").WithArgs("cart", `[1]`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM storefront_kv WHERE key = $1`)).WithArgs("cart").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, p.Set(context.Background(), "cart", `[1]`))
	require.NoError(t, p.Delete(context.Background(), "cart"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}
	p, err := OpenPostgres(context.Background(), dsn)
	require.NoError(t, err)
	defer p.Close()
	exerciseStorage(t, p)
}
