package store

import "context"

const (
	// SystemSettingVersionName holds the version that last migrated the database.
	SystemSettingVersionName = "version"
	// SystemSettingRecapName holds the JSON encoded recap settings.
	SystemSettingRecapName = "recap"
)

// SystemSetting is one named value of instance-wide configuration.
type SystemSetting struct {
	Name      string
	Value     string
	UpdatedTs int64
}

// FindSystemSetting is the find condition for system settings.
type FindSystemSetting struct {
	Name *string
}

func (s *Store) UpsertSystemSetting(ctx context.Context, upsert *SystemSetting) (*SystemSetting, error) {
	return s.driver.UpsertSystemSetting(ctx, upsert)
}

// GetSystemSetting returns the named setting, or nil when it was never stored.
func (s *Store) GetSystemSetting(ctx context.Context, name string) (*SystemSetting, error) {
	list, err := s.driver.ListSystemSettings(ctx, &FindSystemSetting{Name: &name})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}
