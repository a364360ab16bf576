package postgres

import (
	"context"

	"github.com/pkg/errors"

	"github.com/hrygo/journalrecap/store"
)

func (d *DB) UpsertSystemSetting(ctx context.Context, upsert *store.SystemSetting) (*store.SystemSetting, error) {
	query := `
		INSERT INTO system_setting (name, value)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET
			value = EXCLUDED.value,
			updated_ts = EXTRACT(EPOCH FROM NOW())::BIGINT
		RETURNING name, value, updated_ts
	`
	var setting store.SystemSetting
	err := d.db.QueryRowContext(ctx, query, upsert.Name, upsert.Value).Scan(
		&setting.Name,
		&setting.Value,
		&setting.UpdatedTs,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to upsert system setting %s", upsert.Name)
	}
	return &setting, nil
}

func (d *DB) ListSystemSettings(ctx context.Context, find *store.FindSystemSetting) ([]*store.SystemSetting, error) {
	query := `SELECT name, value, updated_ts FROM system_setting WHERE 1=1`
	var args []interface{}
	if find.Name != nil {
		query += " AND name = $1"
		args = append(args, *find.Name)
	}
	query += " ORDER BY name"

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list system settings")
	}
	defer rows.Close()

	var settings []*store.SystemSetting
	for rows.Next() {
		var setting store.SystemSetting
		if err := rows.Scan(&setting.Name, &setting.Value, &setting.UpdatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan system setting")
		}
		settings = append(settings, &setting)
	}
	return settings, rows.Err()
}
