package postgres

import (
	"context"
	"database/sql"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/journalrecap/store"
)

// closedDB returns a driver whose pool is already closed, so every query fails
// before reaching a server.
func closedDB(t *testing.T) *DB {
	t.Helper()
	db, err := sql.Open("postgres", "host=127.0.0.1 dbname=journalrecap sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, db.Close())
	return &DB{db: db}
}

func TestQueryErrorsAreWrapped(t *testing.T) {
	d := closedDB(t)
	ctx := context.Background()

	_, err := d.CreateRecapRun(ctx, &store.RecapRun{UID: "u", DocumentPath: "/a.md", Status: store.RecapRunStatusSucceeded, Fields: "{}"})
	require.Error(t, err)
	assert.Regexp(t, `^failed to create recap run: sql: database is closed`, err.Error())
	assert.Equal(t, "sql: database is closed", errors.Cause(err).Error())

	_, err = d.ListRecapRuns(ctx, &store.FindRecapRun{})
	require.Error(t, err)
	assert.Regexp(t, `^failed to list recap runs: `, err.Error())

	_, err = d.UpsertSystemSetting(ctx, &store.SystemSetting{Name: "recap", Value: "{}"})
	require.Error(t, err)
	assert.Regexp(t, `^failed to upsert system setting recap: `, err.Error())

	_, err = d.ListSystemSettings(ctx, &store.FindSystemSetting{})
	require.Error(t, err)
	assert.Regexp(t, `^failed to list system settings: `, err.Error())
}
