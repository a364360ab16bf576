package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	// Migrate creates the schema when missing. It is idempotent.
	Migrate(ctx context.Context) error
	IsInitialized(ctx context.Context) (bool, error)

	// SystemSetting model related methods.
	UpsertSystemSetting(ctx context.Context, upsert *SystemSetting) (*SystemSetting, error)
	ListSystemSettings(ctx context.Context, find *FindSystemSetting) ([]*SystemSetting, error)

	// RecapRun model related methods.
	CreateRecapRun(ctx context.Context, create *RecapRun) (*RecapRun, error)
	ListRecapRuns(ctx context.Context, find *FindRecapRun) ([]*RecapRun, error)
}
