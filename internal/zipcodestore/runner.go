package zipcodestore

import (
	"github.com/go-pg/migrations/v8"
	"github.com/go-pg/pg/v10"

	_ "github.com/resi-labs-ai/resi-labs-api/internal/zipcodestore/migrations"
)

// Migrate brings the schema up to the latest registered version. It is
// called once at startup before InitialSync-equivalent readiness checks
// pass — the store is not considered healthy until this returns nil.
func Migrate(db *pg.DB) error {
	if _, _, err := migrations.Run(db, "init"); err != nil {
		return err
	}
	_, _, err := migrations.Run(db, "up")
	return err
}

// Migrate is the Store-bound convenience wrapper used by cmd/broker.
func (s *Store) Migrate() error {
	return Migrate(s.db)
}
