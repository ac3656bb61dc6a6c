package db

import (
	"errors"

	"github.com/caseframe/backend/pkg/logger"
	"github.com/golang-migrate/migrate/v4"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

// Migrate applies all pending schema migrations. sourceURL defaults to the
// migrations directory next to the binary.
func Migrate(databaseURL, sourceURL string) error {
	if sourceURL == "" {
		sourceURL = "file://migrations"
	}

	m, err := migrate.New(sourceURL, databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Debug("[DB] Schema already up to date")
		return nil
	}
	if err != nil {
		return err
	}

	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	logger.Info("[DB] Migrations applied", "version", version, "dirty", dirty)
	return nil
}
