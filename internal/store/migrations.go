package store

import (
	"context"
	"database/sql"
	_ "embed"
	"strings"

	"github.com/cadencehq/cadence/pkg/schema"
)

//go:embed migrations/001_initial_schema.sql
var initialSchema string

// schemaRevision is one versioned slice of the database schema. Revisions
// apply in order; the schema_version ledger records which are in place so
// Migrate stays idempotent across restarts.
type schemaRevision struct {
	version int
	name    string
	script  string
}

var schemaRevisions = []schemaRevision{
	{version: 1, name: "initial_schema", script: initialSchema},
}

const createLedger = `CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`

// runMigrations brings the database up to the latest schema revision.
func runMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, createLedger); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "create schema ledger: %s", err.Error()).WithCause(err)
	}

	var applied int
	row := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err := row.Scan(&applied); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "read schema ledger: %s", err.Error()).WithCause(err)
	}

	for _, rev := range schemaRevisions {
		if rev.version <= applied {
			continue
		}
		if err := applyRevision(ctx, db, rev); err != nil {
			return err
		}
	}
	return nil
}

// applyRevision runs one revision's statements and records it in the ledger,
// all inside a single transaction.
func applyRevision(ctx context.Context, db *sql.DB, rev schemaRevision) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "begin schema revision %d: %s", rev.version, err.Error()).WithCause(err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range sqlStatements(rev.script) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return schema.NewErrorf(schema.ErrCodeStore,
				"apply schema revision %d (%s): %s", rev.version, rev.name, err.Error()).
				WithCause(err).
				WithDetails(map[string]any{"statement": stmt})
		}
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version, name) VALUES (?, ?)`,
		rev.version, rev.name); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "record schema revision %d: %s", rev.version, err.Error()).WithCause(err)
	}

	if err := tx.Commit(); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "commit schema revision %d: %s", rev.version, err.Error()).WithCause(err)
	}
	return nil
}

// sqlStatements splits a migration script into executable statements.
// Comment lines are dropped first, then the remainder splits on semicolons,
// so a trailing comment never produces a phantom statement.
func sqlStatements(script string) []string {
	var code strings.Builder
	for _, line := range strings.Split(script, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		code.WriteString(line)
		code.WriteByte('\n')
	}

	var stmts []string
	for _, raw := range strings.Split(code.String(), ";") {
		if stmt := strings.TrimSpace(raw); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}
