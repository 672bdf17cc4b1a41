package migrations

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ClickhouseExecer is satisfied by clickhouse driver.Conn.
type ClickhouseExecer interface {
	Exec(ctx context.Context, query string, args ...any) error
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// EnsureClickhouseDatabase creates the database named in dsn through an
// admin connection to the server default database.
func EnsureClickhouseDatabase(ctx context.Context, admin ClickhouseExecer, dsn string) (string, error) {
	dbName, err := DatabaseFromDSN(dsn)
	if err != nil {
		return "", err
	}
	if err := admin.Exec(ctx, "CREATE DATABASE IF NOT EXISTS "+dbName); err != nil {
		return "", fmt.Errorf("create database %s: %w", dbName, err)
	}
	return dbName, nil
}

// RunClickhouseMigrations applies the embedded schema one statement at a
// time; the native protocol rejects multi-statement queries.
func RunClickhouseMigrations(ctx context.Context, conn ClickhouseExecer) error {
	files, err := load(ClickhouseFS, "clickhouse")
	if err != nil {
		return fmt.Errorf("load clickhouse migrations: %w", err)
	}
	for _, m := range files {
		for i, stmt := range splitStatements(m.SQL) {
			if err := conn.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply clickhouse migration %s statement %d: %w", m.Name, i+1, err)
			}
		}
	}
	return nil
}

// splitStatements cuts sql at top-level semicolons. Semicolons inside
// single-quoted literals and "--" line comments do not split; comments are
// dropped from the output.
func splitStatements(sql string) []string {
	var (
		stmts    []string
		cur      strings.Builder
		inString bool
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			stmts = append(stmts, s)
		}
		cur.Reset()
	}

	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		switch {
		case inString:
			cur.WriteByte(ch)
			if ch == '\'' {
				if i+1 < len(sql) && sql[i+1] == '\'' {
					cur.WriteByte('\'')
					i++
					continue
				}
				inString = false
			}
		case ch == '\'':
			inString = true
			cur.WriteByte(ch)
		case ch == '-' && i+1 < len(sql) && sql[i+1] == '-':
			for i < len(sql) && sql[i] != '\n' {
				i++
			}
			cur.WriteByte('\n')
		case ch == ';':
			flush()
		default:
			cur.WriteByte(ch)
		}
	}
	flush()
	return stmts
}

// DatabaseFromDSN returns the database path component of a ClickHouse DSN.
// The name is used unquoted in DDL, so it must be a plain identifier.
func DatabaseFromDSN(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	db := strings.Trim(u.Path, "/")
	if db == "" {
		return "", fmt.Errorf("clickhouse dsn missing database")
	}
	if !identPattern.MatchString(db) {
		return "", fmt.Errorf("clickhouse database %q is not a plain identifier", db)
	}
	return db, nil
}
