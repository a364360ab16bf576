package sqlite_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/journalrecap/internal/profile"
	"github.com/hrygo/journalrecap/internal/version"
	"github.com/hrygo/journalrecap/store"
	"github.com/hrygo/journalrecap/store/db/sqlite"
)

func newTestStore(t *testing.T) (*store.Store, *profile.Profile) {
	t.Helper()
	dir := t.TempDir()
	p := &profile.Profile{
		Mode:   "dev",
		Driver: "sqlite",
		Data:   dir,
		DSN:    filepath.Join(dir, "journalrecap_test.db"),
		Secret: "test-secret",
	}
	driver, err := sqlite.NewDB(p)
	require.NoError(t, err)

	s := store.New(driver, p)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s, p
}

func TestMigrate_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	require.NoError(t, s.Migrate(ctx))

	ok, err := s.GetDriver().IsInitialized(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	v, err := s.GetSystemSetting(ctx, store.SystemSettingVersionName)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, version.GetCurrentVersion("dev"), v.Value)
}

func TestMigrate_KeepsNewerVersion(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_, err := s.UpsertSystemSetting(ctx, &store.SystemSetting{Name: store.SystemSettingVersionName, Value: "99.0.0"})
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))

	v, err := s.GetSystemSetting(ctx, store.SystemSettingVersionName)
	require.NoError(t, err)
	assert.Equal(t, "99.0.0", v.Value)
}

func TestRecapSettings_DefaultsOnEmptyStore(t *testing.T) {
	s, _ := newTestStore(t)

	settings, err := s.GetRecapSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, store.DefaultRecapSettings(), settings)
}

func TestRecapSettings_RoundTripSealsAPIKey(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	settings := store.DefaultRecapSettings()
	settings.APIKey = "sk-proj-secret-value"
	settings.Model = "gpt-4.1-mini"
	settings.SystemPrompt = ""
	settings.UseCustomCommand = true
	_, err := s.UpsertRecapSettings(ctx, settings)
	require.NoError(t, err)

	raw, err := s.GetSystemSetting(ctx, store.SystemSettingRecapName)
	require.NoError(t, err)
	require.NotNil(t, raw)
	assert.False(t, strings.Contains(raw.Value, "sk-proj-secret-value"), "API key must not be stored in clear")

	loaded, err := s.GetRecapSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sk-proj-secret-value", loaded.APIKey)
	assert.Equal(t, "gpt-4.1-mini", loaded.Model)
	assert.Equal(t, "", loaded.SystemPrompt)
	assert.True(t, loaded.UseCustomCommand)
	assert.JSONEq(t, string(settings.ResponseFormat.JSONSchema.Schema), string(loaded.ResponseFormat.JSONSchema.Schema))
}

func TestRecapSettings_SnapshotsAreIndependent(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	a, err := s.GetRecapSettings(ctx)
	require.NoError(t, err)
	a.Model = "mutated"
	a.ResponseFormat.JSONSchema.Name = "mutated"

	b, err := s.GetRecapSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", b.Model)
	assert.Equal(t, "summary", b.ResponseFormat.JSONSchema.Name)
}

func TestRecapSettings_RejectsInvalid(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	settings := store.DefaultRecapSettings()
	settings.BaseURL = "not a url"
	_, err := s.UpsertRecapSettings(ctx, settings)
	require.Error(t, err)

	stored, err := s.GetSystemSetting(ctx, store.SystemSettingRecapName)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestRecapSettings_WrongSecret(t *testing.T) {
	ctx := context.Background()
	s, p := newTestStore(t)

	settings := store.DefaultRecapSettings()
	settings.APIKey = "sk-test"
	_, err := s.UpsertRecapSettings(ctx, settings)
	require.NoError(t, err)

	p.Secret = "rotated"
	_, err = s.GetRecapSettings(ctx)
	assert.Error(t, err)
}

func TestRecapRuns(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	kind := "ApiError"
	message := "OpenAI API Error: 401 - bad key"
	runs := []*store.RecapRun{
		{DocumentPath: "/vault/a.md", Status: store.RecapRunStatusSucceeded, Fields: `{"summary":"a"}`, Model: "gpt-4o-mini", PromptTokens: 10, CompletionTokens: 4, DurationMs: 120, CreatedTs: 100},
		{DocumentPath: "/vault/b.md", Status: store.RecapRunStatusFailed, ErrorKind: &kind, ErrorMessage: &message, CreatedTs: 200},
		{DocumentPath: "/vault/a.md", Status: store.RecapRunStatusSucceeded, Fields: `{"summary":"again"}`, CreatedTs: 300},
	}
	for _, run := range runs {
		created, err := s.CreateRecapRun(ctx, run)
		require.NoError(t, err)
		assert.NotZero(t, created.ID)
		assert.NotEmpty(t, created.UID)
	}

	all, err := s.ListRecapRuns(ctx, &store.FindRecapRun{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, int64(300), all[0].CreatedTs)
	assert.Equal(t, int64(100), all[2].CreatedTs)

	limit := 1
	latest, err := s.ListRecapRuns(ctx, &store.FindRecapRun{Limit: &limit})
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, `{"summary":"again"}`, latest[0].Fields)

	failed := store.RecapRunStatusFailed
	failures, err := s.ListRecapRuns(ctx, &store.FindRecapRun{Status: &failed})
	require.NoError(t, err)
	require.Len(t, failures, 1)
	require.NotNil(t, failures[0].ErrorKind)
	assert.Equal(t, "ApiError", *failures[0].ErrorKind)
	assert.Equal(t, message, *failures[0].ErrorMessage)
	assert.Equal(t, "{}", failures[0].Fields)

	path := "/vault/a.md"
	forA, err := s.ListRecapRuns(ctx, &store.FindRecapRun{DocumentPath: &path})
	require.NoError(t, err)
	assert.Len(t, forA, 2)

	// Offset applies with or without a limit.
	offset := 1
	skipped, err := s.ListRecapRuns(ctx, &store.FindRecapRun{Offset: &offset})
	require.NoError(t, err)
	require.Len(t, skipped, 2)
	assert.Equal(t, int64(200), skipped[0].CreatedTs)

	page, err := s.ListRecapRuns(ctx, &store.FindRecapRun{Limit: &limit, Offset: &offset})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, int64(200), page[0].CreatedTs)

	got, err := s.GetRecapRun(ctx, all[1].UID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "/vault/b.md", got.DocumentPath)

	missing, err := s.GetRecapRun(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRecapRuns_FieldsKeepOrder(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	fields := `{"summary":"s","events":["b","a"]}`
	created, err := s.CreateRecapRun(ctx, &store.RecapRun{DocumentPath: "/n.md", Status: store.RecapRunStatusSucceeded, Fields: fields})
	require.NoError(t, err)

	got, err := s.GetRecapRun(ctx, created.UID)
	require.NoError(t, err)
	assert.Equal(t, fields, got.Fields)
	assert.True(t, json.Valid([]byte(got.Fields)))
}
