package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trailing-lab/internal/storage"
)

func TestTranslate(t *testing.T) {
	assert.NoError(t, translate("op", nil))
	assert.ErrorIs(t, translate("op", &pgconn.PgError{Code: "23505"}), storage.ErrDuplicateKey)
	assert.ErrorIs(t, translate("op", pgx.ErrNoRows), storage.ErrNotFound)

	other := errors.New("boom")
	err := translate("insert thing", other)
	assert.ErrorIs(t, err, other)
	assert.EqualError(t, err, "insert thing: boom")
}

func TestNewPool_InvalidDSN(t *testing.T) {
	_, err := NewPool(context.Background(), "postgres://%zz")
	assert.Error(t, err)
}

func TestPool_ApplicationNameAndTx(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	var name string
	require.NoError(t, pool.QueryRow(ctx, "SHOW application_name").Scan(&name))
	assert.Equal(t, "trailbot-test", name)

	_, err := pool.Exec(ctx, "CREATE TABLE IF NOT EXISTS tx_probe (id int PRIMARY KEY)")
	require.NoError(t, err)

	failed := errors.New("abort")
	err = pool.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "INSERT INTO tx_probe VALUES (1)"); err != nil {
			return err
		}
		return failed
	})
	assert.ErrorIs(t, err, failed)

	var count int
	require.NoError(t, pool.QueryRow(ctx, "SELECT count(*) FROM tx_probe").Scan(&count))
	assert.Zero(t, count)
}
