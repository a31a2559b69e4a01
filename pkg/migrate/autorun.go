package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/certify-backend/pkg/config"
	"github.com/angelmondragon/certify-backend/pkg/db"
	"github.com/angelmondragon/certify-backend/pkg/logger"
)

// MaybeRunDev applies the embedded migrations when the app runs in dev mode with auto-migrate
// enabled, or whenever the sqlite driver is in use (a fresh file has no schema).
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	sqliteMode := client.Driver() == db.DriverSQLite
	if !sqliteMode && (!cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate) {
		return nil
	}

	sqlDB, err := client.SQLDB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "driver": client.Driver()})
	logg.Info(ctx, "running goose migrations (auto-run)")

	results, err := Up(ctx, sqlDB, client.Driver())
	if err != nil {
		return err
	}

	logg.Info(logg.WithField(ctx, "applied", len(results)), "goose migrations completed")
	return nil
}
