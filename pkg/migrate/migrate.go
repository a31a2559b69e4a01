package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strconv"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/certify-backend/pkg/db"
)

// DefaultDir is the on-disk root used by the migrate CLI; each driver has its own subdirectory.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var embedded embed.FS

// DialectFor maps a db driver name onto the goose dialect used for its migrations.
func DialectFor(driver string) (goose.Dialect, error) {
	switch driver {
	case db.DriverPostgres, "":
		return goose.DialectPostgres, nil
	case db.DriverSQLite:
		return goose.DialectSQLite3, nil
	default:
		return "", fmt.Errorf("unsupported migration driver %q", driver)
	}
}

// DirFor returns the migration directory for driver beneath root.
func DirFor(root, driver string) string {
	if driver == "" {
		driver = db.DriverPostgres
	}
	return path.Join(root, driver)
}

// Embedded returns the migrations compiled into the binary for driver.
func Embedded(driver string) (fs.FS, error) {
	if _, err := DialectFor(driver); err != nil {
		return nil, err
	}
	return fs.Sub(embedded, DirFor("migrations", driver))
}

// Up applies every embedded migration for driver that has not run yet.
func Up(ctx context.Context, sqlDB *sql.DB, driver string) ([]*goose.MigrationResult, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("db is required")
	}
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	fsys, err := Embedded(driver)
	if err != nil {
		return nil, fmt.Errorf("load embedded migrations: %w", err)
	}

	provider, err := goose.NewProvider(dialect, sqlDB, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return results, fmt.Errorf("goose up: %w", err)
	}
	return results, nil
}

// Run executes a standard goose command that requires a DB connection.
func Run(ctx context.Context, sqlDB *sql.DB, driver, dir string, command string, args ...string) error {
	if sqlDB == nil {
		return fmt.Errorf("db is required")
	}
	if dir == "" {
		return fmt.Errorf("dir is required")
	}

	dialect, err := DialectFor(driver)
	if err != nil {
		return err
	}
	if err := goose.SetDialect(string(dialect)); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	// RunContext prints status output to stdout (goose internal)
	if err := goose.RunContext(ctx, command, sqlDB, dir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// MigrateToVersion migrates up/down to the requested version by comparing current DB version.
func MigrateToVersion(ctx context.Context, sqlDB *sql.DB, driver, dir string, targetVersion string) error {
	if targetVersion == "" {
		return fmt.Errorf("targetVersion is required")
	}

	dialect, err := DialectFor(driver)
	if err != nil {
		return err
	}
	if err := goose.SetDialect(string(dialect)); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}

	current, err := goose.GetDBVersionContext(ctx, sqlDB)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	switch {
	case current == target:
		return nil

	case current < target:
		if err := goose.UpToContext(ctx, sqlDB, dir, target); err != nil {
			return fmt.Errorf("goose up-to %d: %w", target, err)
		}
		return nil

	default:
		if err := goose.DownToContext(ctx, sqlDB, dir, target); err != nil {
			return fmt.Errorf("goose down-to %d: %w", target, err)
		}
		return nil
	}
}
