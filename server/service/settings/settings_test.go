package settings

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/journalrecap/ai/core/llm"
	"github.com/hrygo/journalrecap/ai/recap"
	"github.com/hrygo/journalrecap/internal/profile"
	"github.com/hrygo/journalrecap/store"
	"github.com/hrygo/journalrecap/store/db/sqlite"
)

type fakeService struct {
	requests []*llm.CompletionRequest
	err      error
}

func (f *fakeService) Complete(_ context.Context, req *llm.CompletionRequest) (string, *llm.LLMCallStats, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", nil, f.err
	}
	return `{"events":[],"summary":"ok"}`, &llm.LLMCallStats{}, nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	p := &profile.Profile{Mode: "dev", Driver: "sqlite", Data: dir, DSN: filepath.Join(dir, "settings.db"), Secret: "test-secret"}
	driver, err := sqlite.NewDB(p)
	require.NoError(t, err)
	s := store.New(driver, p)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func newTestService(t *testing.T, fake *fakeService) (*Service, *[]*llm.Config) {
	t.Helper()
	var configs []*llm.Config
	svc := NewService(newTestStore(t),
		WithServiceFactory(func(cfg *llm.Config) (llm.Service, error) {
			configs = append(configs, cfg)
			return fake, nil
		}),
		WithClock(func() time.Time { return time.Unix(1700000000, 0) }),
	)
	return svc, &configs
}

func TestParseField(t *testing.T) {
	tests := []struct {
		in   string
		want Field
	}{
		{"api-key", FieldAPIKey},
		{"apiKey", FieldAPIKey},
		{"base_url", FieldBaseURL},
		{"MODEL", FieldModel},
		{"useCustomCommand", FieldUseCustomCommand},
		{"system-prompt", FieldSystemPrompt},
		{"responseFormat", FieldResponseFormat},
	}
	for _, tt := range tests {
		got, err := ParseField(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseField("temperature")
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestSet(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, &fakeService{})

	got, err := svc.Set(ctx, FieldAPIKey, "  sk-test  ")
	require.NoError(t, err)
	assert.Equal(t, "sk-test", got.APIKey)

	got, err = svc.Set(ctx, FieldModel, "gpt-4.1-mini")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1-mini", got.Model)

	_, err = svc.Set(ctx, FieldBaseURL, "not-a-url")
	require.Error(t, err)

	loaded, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sk-test", loaded.APIKey)
	assert.Equal(t, "gpt-4.1-mini", loaded.Model)
	assert.Equal(t, llm.DefaultBaseURL, loaded.BaseURL)
}

func TestSet_CustomCommandGate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, &fakeService{})

	_, err := svc.Set(ctx, FieldSystemPrompt, "be brief")
	assert.ErrorIs(t, err, ErrCustomCommandDisabled)
	_, err = svc.Set(ctx, FieldResponseFormat, `{}`)
	assert.ErrorIs(t, err, ErrCustomCommandDisabled)

	_, err = svc.Set(ctx, FieldUseCustomCommand, "true")
	require.NoError(t, err)

	got, err := svc.Set(ctx, FieldSystemPrompt, "be brief")
	require.NoError(t, err)
	assert.Equal(t, "be brief", got.SystemPrompt)

	format := `{"type":"json_schema","json_schema":{"name":"mood","strict":true,"schema":{"type":"object","properties":{"mood":{"type":"string"}},"required":["mood"],"additionalProperties":false}}}`
	got, err = svc.Set(ctx, FieldResponseFormat, format)
	require.NoError(t, err)
	assert.Equal(t, "mood", got.ResponseFormat.JSONSchema.Name)

	_, err = svc.Set(ctx, FieldResponseFormat, `{"type":"json_schema","json_schema":{"name":"open","strict":true,"schema":{"type":"object"}}}`)
	require.Error(t, err)

	_, err = svc.Set(ctx, FieldResponseFormat, `not json`)
	require.Error(t, err)

	_, err = svc.Set(ctx, FieldUseCustomCommand, "maybe")
	require.Error(t, err)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, &fakeService{})

	enable := true
	prompt := "Summarize in French"
	model := "gpt-4o"
	got, err := svc.Update(ctx, &Patch{UseCustomCommand: &enable, SystemPrompt: &prompt, Model: &model})
	require.NoError(t, err)
	assert.True(t, got.UseCustomCommand)
	assert.Equal(t, prompt, got.SystemPrompt)
	assert.Equal(t, model, got.Model)

	disable := false
	_, err = svc.Update(ctx, &Patch{UseCustomCommand: &disable, SystemPrompt: &prompt})
	assert.ErrorIs(t, err, ErrCustomCommandDisabled)

	loaded, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.True(t, loaded.UseCustomCommand, "a rejected patch must not be persisted")
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, &fakeService{})

	enable := true
	prompt := "custom"
	_, err := svc.Update(ctx, &Patch{UseCustomCommand: &enable, SystemPrompt: &prompt})
	require.NoError(t, err)

	got, err := svc.Reset(ctx, FieldSystemPrompt)
	require.NoError(t, err)
	assert.Equal(t, recap.DefaultSystemPrompt, got.SystemPrompt)

	got, err = svc.Reset(ctx, FieldResponseFormat)
	require.NoError(t, err)
	assert.Equal(t, string(llm.DefaultSchema), string(got.ResponseFormat.JSONSchema.Schema))

	_, err = svc.Reset(ctx, FieldModel)
	assert.ErrorIs(t, err, ErrNotResettable)
}

func TestTestAPIKey(t *testing.T) {
	ctx := context.Background()
	fake := &fakeService{}
	svc, configs := newTestService(t, fake)

	_, err := svc.Set(ctx, FieldAPIKey, "sk-test")
	require.NoError(t, err)

	got, err := svc.TestAPIKey(ctx)
	require.NoError(t, err)
	require.NotNil(t, got.APIKeyTestedAt)
	assert.Equal(t, int64(1700000000), *got.APIKeyTestedAt)

	require.Len(t, fake.requests, 1)
	req := fake.requests[0]
	assert.Equal(t, "", req.SystemPrompt)
	assert.Equal(t, "test", req.UserContent)
	assert.Equal(t, llm.DefaultModel, req.Model)
	assert.Equal(t, string(llm.DefaultSchema), string(req.ResponseFormat.JSONSchema.Schema))
	require.Len(t, *configs, 1)
	assert.Equal(t, "sk-test", (*configs)[0].APIKey)
	assert.Equal(t, llm.DefaultBaseURL, (*configs)[0].BaseURL)

	loaded, err := svc.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded.APIKeyTestedAt)

	// A failed test clears the stamp.
	fake.err = &llm.APIError{StatusCode: 401, Message: "Incorrect API key provided"}
	got, err = svc.TestAPIKey(ctx)
	var apiErr *llm.APIError
	require.True(t, errors.As(err, &apiErr))
	require.NotNil(t, got)
	assert.Nil(t, got.APIKeyTestedAt)

	loaded, err = svc.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded.APIKeyTestedAt)
}

func TestTestAPIKey_Missing(t *testing.T) {
	fake := &fakeService{}
	svc, _ := newTestService(t, fake)

	_, err := svc.TestAPIKey(context.Background())
	assert.ErrorIs(t, err, llm.ErrMissingAPIKey)
	assert.Empty(t, fake.requests)
}

func TestSetAPIKey_ClearsTestedStamp(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, &fakeService{})

	_, err := svc.Set(ctx, FieldAPIKey, "sk-one")
	require.NoError(t, err)
	_, err = svc.TestAPIKey(ctx)
	require.NoError(t, err)

	got, err := svc.Set(ctx, FieldAPIKey, "sk-one")
	require.NoError(t, err)
	assert.NotNil(t, got.APIKeyTestedAt, "same key keeps the stamp")

	got, err = svc.Set(ctx, FieldAPIKey, "sk-two")
	require.NoError(t, err)
	assert.Nil(t, got.APIKeyTestedAt)
}

type blockingService struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingService) Complete(ctx context.Context, _ *llm.CompletionRequest) (string, *llm.LLMCallStats, error) {
	close(b.started)
	select {
	case <-b.release:
	case <-ctx.Done():
		return "", nil, ctx.Err()
	}
	return `{"events":[],"summary":"ok"}`, &llm.LLMCallStats{}, nil
}

func TestTestAPIKey_KeepsEditsMadeDuringCall(t *testing.T) {
	ctx := context.Background()
	blocking := &blockingService{started: make(chan struct{}), release: make(chan struct{})}
	svc := NewService(newTestStore(t),
		WithServiceFactory(func(*llm.Config) (llm.Service, error) { return blocking, nil }),
		WithClock(func() time.Time { return time.Unix(1700000000, 0) }),
	)

	_, err := svc.Set(ctx, FieldAPIKey, "sk-old")
	require.NoError(t, err)

	type result struct {
		settings *store.RecapSettings
		err      error
	}
	done := make(chan result, 1)
	go func() {
		got, err := svc.TestAPIKey(ctx)
		done <- result{got, err}
	}()

	<-blocking.started
	_, err = svc.Set(ctx, FieldAPIKey, "sk-new")
	require.NoError(t, err)
	_, err = svc.Set(ctx, FieldModel, "gpt-4.1")
	require.NoError(t, err)
	close(blocking.release)

	res := <-done
	require.NoError(t, res.err)
	require.NotNil(t, res.settings)
	assert.Equal(t, "sk-new", res.settings.APIKey)
	assert.Nil(t, res.settings.APIKeyTestedAt)

	loaded, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sk-new", loaded.APIKey)
	assert.Equal(t, "gpt-4.1", loaded.Model)
	assert.Nil(t, loaded.APIKeyTestedAt, "the rotated key was never tested")
}

func TestTestAPIKey_StampsWithoutRevertingOtherFields(t *testing.T) {
	ctx := context.Background()
	blocking := &blockingService{started: make(chan struct{}), release: make(chan struct{})}
	svc := NewService(newTestStore(t),
		WithServiceFactory(func(*llm.Config) (llm.Service, error) { return blocking, nil }),
		WithClock(func() time.Time { return time.Unix(1700000000, 0) }),
	)

	_, err := svc.Set(ctx, FieldAPIKey, "sk-same")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := svc.TestAPIKey(ctx)
		done <- err
	}()

	<-blocking.started
	_, err = svc.Set(ctx, FieldModel, "gpt-4.1")
	require.NoError(t, err)
	close(blocking.release)
	require.NoError(t, <-done)

	loaded, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1", loaded.Model)
	require.NotNil(t, loaded.APIKeyTestedAt)
	assert.Equal(t, int64(1700000000), *loaded.APIKeyTestedAt)
}
