package sqlite

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/journalrecap/store"
)

// UpsertSystemSetting inserts or updates a system setting.
func (d *DB) UpsertSystemSetting(ctx context.Context, upsert *store.SystemSetting) (*store.SystemSetting, error) {
	stmt := `
		INSERT INTO system_setting (name, value, updated_ts)
		VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			value = excluded.value,
			updated_ts = excluded.updated_ts
		RETURNING name, value, updated_ts
	`
	var setting store.SystemSetting
	err := d.db.QueryRowContext(ctx, stmt,
		upsert.Name,
		upsert.Value,
		time.Now().Unix(),
	).Scan(
		&setting.Name,
		&setting.Value,
		&setting.UpdatedTs,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to upsert system setting %s", upsert.Name)
	}
	return &setting, nil
}

// ListSystemSettings lists system settings.
func (d *DB) ListSystemSettings(ctx context.Context, find *store.FindSystemSetting) ([]*store.SystemSetting, error) {
	query := `SELECT name, value, updated_ts FROM system_setting`
	var args []any
	if find.Name != nil {
		query += " WHERE name = ?"
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

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return settings, nil
}
