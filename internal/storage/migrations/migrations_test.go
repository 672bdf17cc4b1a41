package migrations

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	sql := `
-- header comment; with a semicolon
CREATE TABLE a (x Int64);

CREATE TABLE b (
    y String DEFAULT 'a;b', -- trailing
    z String DEFAULT 'it''s'
);
`
	stmts := splitStatements(sql)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (x Int64)", stmts[0])
	assert.True(t, strings.HasPrefix(stmts[1], "CREATE TABLE b ("))
	assert.Contains(t, stmts[1], "'a;b'")
	assert.Contains(t, stmts[1], "'it''s'")
	assert.NotContains(t, stmts[1], "trailing")
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := DatabaseFromDSN("clickhouse://default:@localhost:9000/trailing")
	require.NoError(t, err)
	assert.Equal(t, "trailing", db)

	_, err = DatabaseFromDSN("clickhouse://localhost:9000")
	assert.Error(t, err)

	_, err = DatabaseFromDSN("clickhouse://localhost:9000/lab;DROP")
	assert.Error(t, err)
}

func TestEmbeddedMigrations(t *testing.T) {
	pg, err := load(PostgresFS, "postgres")
	require.NoError(t, err)
	require.NotEmpty(t, pg)
	assert.Equal(t, "001_backtest_runs.sql", pg[0].Name)
	assert.Contains(t, pg[0].SQL, "backtest_trades")

	ch, err := load(ClickhouseFS, "clickhouse")
	require.NoError(t, err)
	require.NotEmpty(t, ch)
	assert.Equal(t, "001_price_samples.sql", ch[0].Name)
}

// recordingExecer captures ClickHouse statements.
type recordingExecer struct {
	stmts []string
	err   error
}

func (r *recordingExecer) Exec(_ context.Context, query string, _ ...any) error {
	r.stmts = append(r.stmts, query)
	return r.err
}

func TestRunClickhouseMigrations(t *testing.T) {
	rec := &recordingExecer{}
	require.NoError(t, RunClickhouseMigrations(context.Background(), rec))

	require.NotEmpty(t, rec.stmts)
	assert.Contains(t, rec.stmts[0], "CREATE TABLE IF NOT EXISTS price_samples")
	for _, stmt := range rec.stmts {
		assert.False(t, strings.HasSuffix(stmt, ";"))
	}
}

func TestEnsureClickhouseDatabase(t *testing.T) {
	rec := &recordingExecer{}
	db, err := EnsureClickhouseDatabase(context.Background(), rec, "clickhouse://localhost:9000/lab")
	require.NoError(t, err)
	assert.Equal(t, "lab", db)
	assert.Equal(t, []string{"CREATE DATABASE IF NOT EXISTS lab"}, rec.stmts)

	rec = &recordingExecer{err: errors.New("denied")}
	_, err = EnsureClickhouseDatabase(context.Background(), rec, "clickhouse://localhost:9000/lab")
	assert.Error(t, err)
}
