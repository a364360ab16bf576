// Package settings implements the settings surface shared by the CLI and the HTTP API.
package settings

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/journalrecap/ai/core/llm"
	"github.com/hrygo/journalrecap/ai/recap"
	"github.com/hrygo/journalrecap/store"
)

// Field names one editable setting.
type Field string

const (
	FieldAPIKey           Field = "api-key"
	FieldBaseURL          Field = "base-url"
	FieldModel            Field = "model"
	FieldUseCustomCommand Field = "use-custom-command"
	FieldSystemPrompt     Field = "system-prompt"
	FieldResponseFormat   Field = "response-format"
)

// Fields lists every editable setting in display order.
var Fields = []Field{
	FieldAPIKey,
	FieldBaseURL,
	FieldModel,
	FieldUseCustomCommand,
	FieldSystemPrompt,
	FieldResponseFormat,
}

var (
	// ErrUnknownField is returned for a field name that is not editable.
	ErrUnknownField = errors.New("unknown settings field")
	// ErrCustomCommandDisabled is returned when the prompt or output format is edited
	// while use-custom-command is off.
	ErrCustomCommandDisabled = errors.New("enable use-custom-command to edit the prompt and output format")
	// ErrNotResettable is returned by Reset for fields without a default to restore.
	ErrNotResettable = errors.New("only system-prompt and response-format can be reset")
)

// InvalidError reports a value the settings cannot hold.
type InvalidError struct {
	Err error
}

func (e *InvalidError) Error() string {
	return "invalid settings: " + e.Err.Error()
}

func (e *InvalidError) Unwrap() error {
	return e.Err
}

// ParseField maps a user supplied name to a Field. Underscores and camelCase are accepted.
func ParseField(name string) (Field, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = strings.ReplaceAll(normalized, "_", "-")
	switch normalized {
	case "apikey":
		normalized = string(FieldAPIKey)
	case "baseurl":
		normalized = string(FieldBaseURL)
	case "usecustomcommand":
		normalized = string(FieldUseCustomCommand)
	case "systemprompt":
		normalized = string(FieldSystemPrompt)
	case "responseformat":
		normalized = string(FieldResponseFormat)
	}
	for _, f := range Fields {
		if string(f) == normalized {
			return f, nil
		}
	}
	return "", errors.Wrapf(ErrUnknownField, "%q", name)
}

// Service reads and edits the persisted recap settings.
type Service struct {
	// mu serializes read-modify-write cycles on the stored settings.
	mu         sync.Mutex
	store      *store.Store
	newService recap.ServiceFactory
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithServiceFactory replaces how the client for TestAPIKey is built.
func WithServiceFactory(f recap.ServiceFactory) Option {
	return func(s *Service) { s.newService = f }
}

// WithClock replaces the clock stamping apiKeyTestedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a settings Service.
func NewService(st *store.Store, opts ...Option) *Service {
	s := &Service{
		store:      st,
		newService: llm.NewService,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the current settings snapshot.
func (s *Service) Get(ctx context.Context) (*store.RecapSettings, error) {
	return s.store.GetRecapSettings(ctx)
}

// Set changes one field and persists the result.
func (s *Service) Set(ctx context.Context, field Field, value string) (*store.RecapSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.store.GetRecapSettings(ctx)
	if err != nil {
		return nil, err
	}
	if err := apply(current, field, value); err != nil {
		return nil, err
	}
	return s.save(ctx, current)
}

// Patch is a partial settings update; nil members are left unchanged.
type Patch struct {
	APIKey           *string             `json:"apiKey,omitempty"`
	BaseURL          *string             `json:"baseURL,omitempty"`
	Model            *string             `json:"model,omitempty"`
	UseCustomCommand *bool               `json:"useCustomCommand,omitempty"`
	SystemPrompt     *string             `json:"systemPrompt,omitempty"`
	ResponseFormat   *llm.ResponseFormat `json:"responseFormat,omitempty"`
}

// Update applies a partial update in one write. useCustomCommand is applied first,
// so a single patch may enable it and edit the prompt together.
func (s *Service) Update(ctx context.Context, patch *Patch) (*store.RecapSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.store.GetRecapSettings(ctx)
	if err != nil {
		return nil, err
	}
	if patch.UseCustomCommand != nil {
		current.UseCustomCommand = *patch.UseCustomCommand
	}
	if patch.APIKey != nil {
		setAPIKey(current, *patch.APIKey)
	}
	if patch.BaseURL != nil {
		current.BaseURL = strings.TrimSpace(*patch.BaseURL)
	}
	if patch.Model != nil {
		current.Model = strings.TrimSpace(*patch.Model)
	}
	if patch.SystemPrompt != nil || patch.ResponseFormat != nil {
		if !current.UseCustomCommand {
			return nil, ErrCustomCommandDisabled
		}
		if patch.SystemPrompt != nil {
			current.SystemPrompt = *patch.SystemPrompt
		}
		if patch.ResponseFormat != nil {
			current.ResponseFormat = patch.ResponseFormat.Clone()
		}
	}
	return s.save(ctx, current)
}

// Reset restores the system prompt or response format to its default.
func (s *Service) Reset(ctx context.Context, field Field) (*store.RecapSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.store.GetRecapSettings(ctx)
	if err != nil {
		return nil, err
	}
	defaults := store.DefaultRecapSettings()
	switch field {
	case FieldSystemPrompt:
		current.SystemPrompt = defaults.SystemPrompt
	case FieldResponseFormat:
		current.ResponseFormat = defaults.ResponseFormat
	default:
		return nil, errors.Wrapf(ErrNotResettable, "%q", field)
	}
	return s.save(ctx, current)
}

// TestAPIKey sends a minimal request with the stored key. On success apiKeyTestedAt is
// stamped; on failure it is cleared and the call error is returned with the saved settings.
// The stamp is only written when the stored key is still the one that was tested; edits
// made while the call is in flight are kept.
func (s *Service) TestAPIKey(ctx context.Context) (*store.RecapSettings, error) {
	current, err := s.store.GetRecapSettings(ctx)
	if err != nil {
		return nil, err
	}
	testedKey := current.APIKey

	callErr := s.testCall(ctx, current)
	if callErr != nil {
		slog.Warn("API key test failed", "model", current.Model, "error", callErr)
	} else {
		slog.Info("API key test succeeded", "model", current.Model)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	latest, err := s.store.GetRecapSettings(ctx)
	if err != nil {
		return nil, err
	}
	if latest.APIKey != testedKey {
		slog.Info("API key changed during test, result discarded")
		return latest, callErr
	}
	if callErr != nil {
		latest.APIKeyTestedAt = nil
	} else {
		ts := s.now().Unix()
		latest.APIKeyTestedAt = &ts
	}

	saved, err := s.store.UpsertRecapSettings(ctx, latest)
	if err != nil {
		return nil, err
	}
	return saved, callErr
}

func (s *Service) save(ctx context.Context, current *store.RecapSettings) (*store.RecapSettings, error) {
	if err := current.Validate(); err != nil {
		return nil, &InvalidError{Err: err}
	}
	return s.store.UpsertRecapSettings(ctx, current)
}

func (s *Service) testCall(ctx context.Context, current *store.RecapSettings) error {
	if strings.TrimSpace(current.APIKey) == "" {
		return llm.ErrMissingAPIKey
	}
	svc, err := s.newService(&llm.Config{APIKey: current.APIKey, BaseURL: current.BaseURL})
	if err != nil {
		return err
	}
	_, _, err = svc.Complete(ctx, &llm.CompletionRequest{
		SystemPrompt:   "",
		UserContent:    "test",
		ResponseFormat: llm.DefaultResponseFormat(),
		Model:          current.Model,
	})
	return err
}

func apply(current *store.RecapSettings, field Field, value string) error {
	switch field {
	case FieldAPIKey:
		setAPIKey(current, value)
	case FieldBaseURL:
		current.BaseURL = strings.TrimSpace(value)
	case FieldModel:
		current.Model = strings.TrimSpace(value)
	case FieldUseCustomCommand:
		enabled, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return &InvalidError{Err: errors.Errorf("%s must be true or false, got %q", field, value)}
		}
		current.UseCustomCommand = enabled
	case FieldSystemPrompt:
		if !current.UseCustomCommand {
			return ErrCustomCommandDisabled
		}
		current.SystemPrompt = value
	case FieldResponseFormat:
		if !current.UseCustomCommand {
			return ErrCustomCommandDisabled
		}
		var format llm.ResponseFormat
		if err := json.Unmarshal([]byte(value), &format); err != nil {
			return &InvalidError{Err: errors.Wrap(err, "response format must be a JSON object")}
		}
		current.ResponseFormat = &format
	default:
		return errors.Wrapf(ErrUnknownField, "%q", field)
	}
	return nil
}

// setAPIKey replaces the key; a new key has not been tested yet.
func setAPIKey(current *store.RecapSettings, key string) {
	key = strings.TrimSpace(key)
	if key != current.APIKey {
		current.APIKeyTestedAt = nil
	}
	current.APIKey = key
}
