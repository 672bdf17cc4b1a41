package migrations

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresExecer is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type PostgresExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// RunPostgresMigrations applies the embedded schema. Each file runs as a
// single multi-statement Exec and must be idempotent.
func RunPostgresMigrations(ctx context.Context, db PostgresExecer) error {
	files, err := load(PostgresFS, "postgres")
	if err != nil {
		return fmt.Errorf("load postgres migrations: %w", err)
	}
	for _, m := range files {
		if _, err := db.Exec(ctx, m.SQL); err != nil {
			return fmt.Errorf("apply postgres migration %s: %w", m.Name, err)
		}
	}
	return nil
}
