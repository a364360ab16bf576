package store

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/hrygo/journalrecap/internal/profile"
	"github.com/hrygo/journalrecap/internal/version"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	return s.driver.Close()
}

// Migrate prepares the schema and records the version that last opened the database.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.driver.Migrate(ctx); err != nil {
		return errors.Wrap(err, "failed to migrate")
	}

	current := version.GetCurrentVersion(s.profile.Mode)
	stored, err := s.GetSystemSetting(ctx, SystemSettingVersionName)
	if err != nil {
		return err
	}
	if stored != nil && version.IsVersionGreaterThan(stored.Value, current) {
		slog.Warn("database was written by a newer version",
			slog.String("database_version", stored.Value),
			slog.String("current_version", current),
		)
		return nil
	}
	if stored == nil || stored.Value != current {
		if _, err := s.UpsertSystemSetting(ctx, &SystemSetting{Name: SystemSettingVersionName, Value: current}); err != nil {
			return err
		}
	}
	return nil
}
