// Package migratetest opens throwaway sqlite databases carrying the real schema.
package migratetest

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/certify-backend/pkg/config"
	"github.com/angelmondragon/certify-backend/pkg/db"
	"github.com/angelmondragon/certify-backend/pkg/migrate"
)

// OpenSQLite returns a migrated in-memory database private to the calling test.
func OpenSQLite(tb testing.TB) *db.Client {
	tb.Helper()
	client, err := db.New(context.Background(), config.DBConfig{
		Driver:     db.DriverSQLite,
		SQLitePath: fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	}, nil)
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	tb.Cleanup(func() { _ = client.Close() })

	sqlDB, err := client.SQLDB()
	if err != nil {
		tb.Fatalf("sql handle: %v", err)
	}
	if _, err := migrate.Up(context.Background(), sqlDB, db.DriverSQLite); err != nil {
		tb.Fatalf("migrate sqlite: %v", err)
	}
	return client
}
