package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/journalrecap/ai/core/llm"
	"github.com/hrygo/journalrecap/server/service/settings"
	"github.com/hrygo/journalrecap/store"
)

// Settings is the API view of the recap settings; the API key is masked.
type Settings struct {
	APIKey           string              `json:"apiKey"`
	APIKeySet        bool                `json:"apiKeySet"`
	APIKeyTestedAt   *int64              `json:"apiKeyTestedAt,omitempty"`
	BaseURL          string              `json:"baseURL"`
	Model            string              `json:"model"`
	SystemPrompt     string              `json:"systemPrompt"`
	ResponseFormat   *llm.ResponseFormat `json:"responseFormat"`
	UseCustomCommand bool                `json:"useCustomCommand"`
}

type TestSettingsResponse struct {
	OK       bool      `json:"ok"`
	Error    string    `json:"error,omitempty"`
	Settings *Settings `json:"settings"`
}

func convertSettings(s *store.RecapSettings) *Settings {
	return &Settings{
		APIKey:           s.MaskedAPIKey(),
		APIKeySet:        s.APIKey != "",
		APIKeyTestedAt:   s.APIKeyTestedAt,
		BaseURL:          s.BaseURL,
		Model:            s.Model,
		SystemPrompt:     s.SystemPrompt,
		ResponseFormat:   s.ResponseFormat,
		UseCustomCommand: s.UseCustomCommand,
	}
}

func (s *APIV1Service) GetSettings(c echo.Context) error {
	current, err := s.SettingsService.Get(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load settings").SetInternal(err)
	}
	return c.JSON(http.StatusOK, convertSettings(current))
}

func (s *APIV1Service) UpdateSettings(c echo.Context) error {
	patch := &settings.Patch{}
	if err := c.Bind(patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body").SetInternal(err)
	}
	updated, err := s.SettingsService.Update(c.Request().Context(), patch)
	if err != nil {
		return settingsError(err)
	}
	return c.JSON(http.StatusOK, convertSettings(updated))
}

func (s *APIV1Service) ResetSettings(c echo.Context) error {
	field, err := settings.ParseField(c.Param("field"))
	if err != nil {
		return settingsError(err)
	}
	updated, err := s.SettingsService.Reset(c.Request().Context(), field)
	if err != nil {
		return settingsError(err)
	}
	return c.JSON(http.StatusOK, convertSettings(updated))
}

// TestSettings calls the endpoint with the stored key. A failed call is a result, not a request error.
func (s *APIV1Service) TestSettings(c echo.Context) error {
	updated, err := s.SettingsService.TestAPIKey(c.Request().Context())
	if updated == nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to test API key").SetInternal(err)
	}
	response := &TestSettingsResponse{OK: err == nil, Settings: convertSettings(updated)}
	if err != nil {
		response.Error = err.Error()
	}
	return c.JSON(http.StatusOK, response)
}

func settingsError(err error) error {
	var invalid *settings.InvalidError
	switch {
	case errors.As(err, &invalid),
		errors.Is(err, settings.ErrUnknownField),
		errors.Is(err, settings.ErrNotResettable):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	case errors.Is(err, settings.ErrCustomCommandDisabled):
		return echo.NewHTTPError(http.StatusConflict, err.Error()).SetInternal(err)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to save settings").SetInternal(err)
	}
}
