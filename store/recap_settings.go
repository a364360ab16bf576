package store

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/journalrecap/ai/core/llm"
	"github.com/hrygo/journalrecap/ai/recap"
)

// RecapSettings is the configuration every summarize run reads.
// Values returned by the store are snapshots; mutating them changes nothing until upserted.
type RecapSettings struct {
	APIKey string `json:"apiKey"`
	// APIKeyTestedAt is the unix time of the last successful key test.
	APIKeyTestedAt   *int64              `json:"apiKeyTestedAt,omitempty"`
	BaseURL          string              `json:"baseURL"`
	Model            string              `json:"model"`
	SystemPrompt     string              `json:"systemPrompt"`
	ResponseFormat   *llm.ResponseFormat `json:"responseFormat"`
	UseCustomCommand bool                `json:"useCustomCommand"`
}

// storedRecapSettings is the persisted shape; the API key is sealed.
type storedRecapSettings struct {
	APIKeySealed     string              `json:"apiKeySealed,omitempty"`
	APIKeyTestedAt   *int64              `json:"apiKeyTestedAt,omitempty"`
	BaseURL          string              `json:"baseURL,omitempty"`
	Model            string              `json:"model,omitempty"`
	SystemPrompt     *string             `json:"systemPrompt,omitempty"`
	ResponseFormat   *llm.ResponseFormat `json:"responseFormat,omitempty"`
	UseCustomCommand bool                `json:"useCustomCommand"`
}

// DefaultRecapSettings returns the settings used before anything is saved.
func DefaultRecapSettings() *RecapSettings {
	return &RecapSettings{
		BaseURL:        llm.DefaultBaseURL,
		Model:          llm.DefaultModel,
		SystemPrompt:   recap.DefaultSystemPrompt,
		ResponseFormat: llm.DefaultResponseFormat(),
	}
}

// Clone returns a deep copy.
func (r *RecapSettings) Clone() *RecapSettings {
	out := *r
	if r.APIKeyTestedAt != nil {
		ts := *r.APIKeyTestedAt
		out.APIKeyTestedAt = &ts
	}
	out.ResponseFormat = r.ResponseFormat.Clone()
	return &out
}

// RunConfig converts the settings into the snapshot a run consumes.
func (r *RecapSettings) RunConfig() recap.Config {
	return recap.Config{
		APIKey:         r.APIKey,
		BaseURL:        r.BaseURL,
		Model:          r.Model,
		SystemPrompt:   r.SystemPrompt,
		ResponseFormat: r.ResponseFormat.Clone(),
	}
}

// MaskedAPIKey shows only the last four characters of the key.
func (r *RecapSettings) MaskedAPIKey() string {
	if r.APIKey == "" {
		return ""
	}
	if len(r.APIKey) <= 4 {
		return strings.Repeat("*", len(r.APIKey))
	}
	return strings.Repeat("*", 8) + r.APIKey[len(r.APIKey)-4:]
}

// Validate checks the settings can drive a run. An empty API key is allowed
// here; runs reject it.
func (r *RecapSettings) Validate() error {
	u, err := url.Parse(r.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.Errorf("invalid base URL %q", r.BaseURL)
	}
	if strings.TrimSpace(r.Model) == "" {
		return errors.New("model is required")
	}
	if err := r.ResponseFormat.Validate(); err != nil {
		return errors.Wrap(err, "invalid response format")
	}
	return nil
}

// GetRecapSettings returns a fresh snapshot, filling defaults for anything not stored.
func (s *Store) GetRecapSettings(ctx context.Context) (*RecapSettings, error) {
	setting, err := s.GetSystemSetting(ctx, SystemSettingRecapName)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load recap settings")
	}
	settings := DefaultRecapSettings()
	if setting == nil {
		return settings, nil
	}

	var stored storedRecapSettings
	if err := json.Unmarshal([]byte(setting.Value), &stored); err != nil {
		return nil, errors.Wrap(err, "failed to decode recap settings")
	}
	apiKey, err := OpenSecret(stored.APIKeySealed, s.profile.Secret)
	if err != nil {
		return nil, errors.Wrap(err, "failed to unseal API key, was the instance secret changed?")
	}

	settings.APIKey = apiKey
	settings.APIKeyTestedAt = stored.APIKeyTestedAt
	settings.UseCustomCommand = stored.UseCustomCommand
	if stored.BaseURL != "" {
		settings.BaseURL = stored.BaseURL
	}
	if stored.Model != "" {
		settings.Model = stored.Model
	}
	if stored.SystemPrompt != nil {
		settings.SystemPrompt = *stored.SystemPrompt
	}
	if stored.ResponseFormat != nil {
		settings.ResponseFormat = stored.ResponseFormat
	}
	return settings, nil
}

// UpsertRecapSettings validates and persists settings, sealing the API key.
func (s *Store) UpsertRecapSettings(ctx context.Context, settings *RecapSettings) (*RecapSettings, error) {
	if settings == nil {
		return nil, errors.New("settings are required")
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	sealed, err := SealSecret(settings.APIKey, s.profile.Secret)
	if err != nil {
		return nil, errors.Wrap(err, "failed to seal API key")
	}
	prompt := settings.SystemPrompt
	stored := storedRecapSettings{
		APIKeySealed:     sealed,
		APIKeyTestedAt:   settings.APIKeyTestedAt,
		BaseURL:          settings.BaseURL,
		Model:            settings.Model,
		SystemPrompt:     &prompt,
		ResponseFormat:   settings.ResponseFormat,
		UseCustomCommand: settings.UseCustomCommand,
	}
	value, err := json.Marshal(stored)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode recap settings")
	}
	if _, err := s.UpsertSystemSetting(ctx, &SystemSetting{Name: SystemSettingRecapName, Value: string(value)}); err != nil {
		return nil, errors.Wrap(err, "failed to save recap settings")
	}
	return settings.Clone(), nil
}
