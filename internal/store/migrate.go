package store

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lostfound/chatsync/internal/store/migrations"
)

// ErrDirtySchema means an earlier migration stopped halfway. The archive
// is a cache, so deleting the file is always a valid fix.
var ErrDirtySchema = errors.New("archive schema is dirty")

// MigrateResult is the schema version before and after Migrate.
type MigrateResult struct {
	From uint
	To   uint
}

// Changed reports whether Migrate applied anything.
func (r *MigrateResult) Changed() bool { return r.From != r.To }

// Migrate brings the schema up to the newest embedded version. It refuses
// to touch a dirty schema.
func (db *DB) Migrate() (*MigrateResult, error) {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}
	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return nil, fmt.Errorf("migration instance: %w", err)
	}

	from, err := schemaVersion(m)
	if err != nil {
		return nil, err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return nil, fmt.Errorf("migrate %s from version %d: %w", db.path, from, err)
	}
	to, err := schemaVersion(m)
	if err != nil {
		return nil, err
	}
	return &MigrateResult{From: from, To: to}, nil
}

// schemaVersion returns 0 for a fresh database.
func schemaVersion(m *migrate.Migrate) (uint, error) {
	v, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("read schema version: %w", err)
	case dirty:
		return v, fmt.Errorf("%w at version %d", ErrDirtySchema, v)
	}
	return v, nil
}
