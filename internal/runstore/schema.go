package runstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var baseSchema string

// migrations[i] moves runs.db from user_version i to i+1. Append only.
var migrations = []string{
	baseSchema,
}

// ErrSchemaMismatch means runs.db was written by a newer build.
var ErrSchemaMismatch = errors.New("run history schema is newer than this build")

// migrate brings the database up to len(migrations), tracking progress in
// SQLite's user_version header field.
func (s *Store) migrate(ctx context.Context) error {
	var current int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("read run history version: %w", err)
	}
	target := len(migrations)
	if current > target {
		return fmt.Errorf("%w: %s is at version %d, this build knows %d; upgrade video2notes or move the file aside",
			ErrSchemaMismatch, s.path, current, target)
	}
	for v := current; v < target; v++ {
		if err := s.apply(ctx, v+1, migrations[v]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) apply(ctx context.Context, version int, stmt string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migrate run history to v%d: %w", version, err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("migrate run history to v%d: %w", version, err)
	}
	// PRAGMA does not accept bound parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return fmt.Errorf("stamp run history v%d: %w", version, err)
	}
	return tx.Commit()
}
