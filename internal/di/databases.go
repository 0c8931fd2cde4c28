package di

import (
	"fmt"

	"github.com/aristath/sentinel-alerts/internal/config"
	"github.com/aristath/sentinel-alerts/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens the four databases and applies their schemas.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	specs := []struct {
		target  **database.DB
		name    string
		profile database.DatabaseProfile
		driver  string
	}{
		// Rule state transitions must survive a crash.
		{&container.AlertsDB, "alerts", database.ProfileLedger, database.DriverModernc},
		{&container.PortfolioDB, "portfolio", database.ProfileStandard, database.DriverModernc},
		{&container.CacheDB, "cache", database.ProfileCache, database.DriverModernc},
		{&container.HistoryDB, "history", database.ProfileStandard, database.DriverMattn},
	}

	for _, spec := range specs {
		db, err := database.New(database.Config{
			Path:    cfg.DatabasePath(spec.name),
			Profile: spec.profile,
			Name:    spec.name,
			Driver:  spec.driver,
		})
		if err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to initialize %s database: %w", spec.name, err)
		}
		*spec.target = db
	}

	for _, db := range container.Databases() {
		if err := db.Migrate(); err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to apply schema to %s: %w", db.Name(), err)
		}
	}

	log.Info().Str("data_dir", cfg.DataDir).Msg("Databases initialized")
	return container, nil
}
