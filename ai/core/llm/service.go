package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// DefaultBaseURL is the OpenAI-compatible endpoint used when none is configured.
const DefaultBaseURL = "https://api.openai.com/v1"

// DefaultModel is the chat model used when none is configured.
const DefaultModel = "gpt-4o-mini"

// LLMCallStats represents statistics for a single LLM call.
type LLMCallStats struct {
	// PromptTokens is the number of tokens in the input prompt.
	PromptTokens int `json:"prompt_tokens"`

	// CompletionTokens is the number of tokens in the generated response.
	CompletionTokens int `json:"completion_tokens"`

	// TotalTokens is the sum of prompt and completion tokens.
	TotalTokens int `json:"total_tokens"`

	// CacheReadTokens is the number of tokens read from cache (for providers that support it).
	CacheReadTokens int `json:"cache_read_tokens,omitempty"`

	// TotalDurationMs is the total wall-clock time for the request.
	TotalDurationMs int64 `json:"total_duration_ms"`
}

// SamplingParams are passed through to the completion endpoint unvalidated.
type SamplingParams struct {
	Temperature      float32
	MaxTokens        int
	TopP             float32
	FrequencyPenalty float32
	PresencePenalty  float32
}

// DefaultSampling returns the sampling parameters used when a request carries none.
func DefaultSampling() SamplingParams {
	return SamplingParams{
		Temperature:      1.15,
		MaxTokens:        2048,
		TopP:             1,
		FrequencyPenalty: 0,
		PresencePenalty:  1,
	}
}

// CompletionRequest is one structured-output chat completion.
type CompletionRequest struct {
	SystemPrompt string
	UserContent  string
	// ResponseFormat defaults to DefaultResponseFormat when nil.
	ResponseFormat *ResponseFormat
	// Model defaults to DefaultModel when empty.
	Model string
	// Sampling defaults to DefaultSampling when nil.
	Sampling *SamplingParams
}

// Service is the LLM service interface.
type Service interface {
	// Complete performs one blocking chat completion and returns the text of the first choice.
	// A response without choices yields an empty string and no error.
	Complete(ctx context.Context, req *CompletionRequest) (string, *LLMCallStats, error)
}

// Config represents LLM service configuration.
type Config struct {
	APIKey  string
	BaseURL string // default: https://api.openai.com/v1
	// HTTPClient overrides the default transport; tests point it at a fake endpoint.
	HTTPClient *http.Client
}

type service struct {
	client *openai.Client
	apiKey string
}

// NewService creates a new LLM Service.
func NewService(cfg *Config) (Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("llm config is required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = baseURL
	if cfg.HTTPClient != nil {
		clientConfig.HTTPClient = cfg.HTTPClient
	} else {
		clientConfig.HTTPClient = newHTTPClient()
	}

	return &service{
		client: openai.NewClientWithConfig(clientConfig),
		apiKey: cfg.APIKey,
	}, nil
}

func (s *service) Complete(ctx context.Context, req *CompletionRequest) (string, *LLMCallStats, error) {
	if s.apiKey == "" {
		return "", nil, ErrMissingAPIKey
	}
	if req == nil {
		req = &CompletionRequest{}
	}

	chatReq := buildRequest(req)

	slog.Debug("LLM: completion request",
		"model", chatReq.Model,
		"user_content_length", len(req.UserContent),
		"max_completion_tokens", chatReq.MaxCompletionTokens,
	)

	startTime := time.Now()

	resp, err := s.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		classified := classifyError(err)
		slog.Error("LLM: completion request failed", "model", chatReq.Model, "error", classified)
		return "", nil, classified
	}

	totalDuration := time.Since(startTime)

	stats := &LLMCallStats{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		TotalDurationMs:  totalDuration.Milliseconds(),
	}
	if resp.Usage.PromptTokensDetails != nil && resp.Usage.PromptTokensDetails.CachedTokens > 0 {
		stats.CacheReadTokens = resp.Usage.PromptTokensDetails.CachedTokens
	}

	if len(resp.Choices) == 0 {
		slog.Warn("LLM: completion returned no choices", "model", chatReq.Model)
		return "", stats, nil
	}

	content := resp.Choices[0].Message.Content
	slog.Debug("LLM: completion response received",
		"content_length", len(content),
		"total_tokens", stats.TotalTokens,
		"duration_ms", totalDuration.Milliseconds(),
	)

	return content, stats, nil
}

// buildRequest maps a CompletionRequest onto the wire request, filling defaults.
func buildRequest(req *CompletionRequest) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = DefaultModel
	}
	sampling := DefaultSampling()
	if req.Sampling != nil {
		sampling = *req.Sampling
	}
	format := req.ResponseFormat
	if format == nil {
		format = DefaultResponseFormat()
	}

	return openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			textMessage(openai.ChatMessageRoleSystem, req.SystemPrompt),
			textMessage(openai.ChatMessageRoleUser, req.UserContent),
		},
		ResponseFormat:      convertResponseFormat(format),
		Temperature:         sampling.Temperature,
		MaxCompletionTokens: sampling.MaxTokens,
		TopP:                sampling.TopP,
		FrequencyPenalty:    sampling.FrequencyPenalty,
		PresencePenalty:     sampling.PresencePenalty,
	}
}

func textMessage(role, text string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{
		Role: role,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: text},
		},
	}
}

func convertResponseFormat(f *ResponseFormat) *openai.ChatCompletionResponseFormat {
	out := &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatType(f.Type),
	}
	if f.JSONSchema != nil {
		out.JSONSchema = &openai.ChatCompletionResponseFormatJSONSchema{
			Name:        f.JSONSchema.Name,
			Description: f.JSONSchema.Description,
			Schema:      f.JSONSchema.Schema,
			Strict:      f.JSONSchema.Strict,
		}
	}
	return out
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 120 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}
