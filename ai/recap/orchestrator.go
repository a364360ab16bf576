// Package recap runs the summarize pipeline: read a note, ask the model for a
// structured recap, and merge the reply into the note's front matter.
package recap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/hrygo/journalrecap/ai/core/llm"
)

// Document is the note a run reads from and writes to.
type Document interface {
	// ID identifies the note for the in-flight guard.
	ID() string
	// Content returns the body without front matter; ok is false when the note is absent.
	Content() (content string, ok bool, err error)
	// InsertAtFrontMatter merges one key. value is a string or []string.
	InsertAtFrontMatter(key string, value any, overwrite bool) error
}

// Config is the settings snapshot one run uses.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	SystemPrompt   string
	ResponseFormat *llm.ResponseFormat
	// Sampling is nil for the default sampling parameters.
	Sampling *llm.SamplingParams
}

// Result describes what a run reached. It is returned on failure too.
type Result struct {
	Patch    Patch
	Merged   []string
	Stats    *llm.LLMCallStats
	Duration time.Duration
}

// OutcomeSuccess labels a run that merged every field.
const OutcomeSuccess = "success"

// Observer receives one call per finished run.
type Observer interface {
	ObserveRun(outcome string, duration time.Duration, stats *llm.LLMCallStats)
}

// ServiceFactory builds the completion client for a run.
type ServiceFactory func(cfg *llm.Config) (llm.Service, error)

// Orchestrator runs the pipeline. It is safe for concurrent use; runs on the
// same document are rejected while one is in flight.
type Orchestrator struct {
	newService ServiceFactory
	observer   Observer
	guard      *inflight
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithServiceFactory replaces how the completion client is built.
func WithServiceFactory(f ServiceFactory) Option {
	return func(o *Orchestrator) { o.newService = f }
}

// WithObserver reports every finished run to obs.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		newService: llm.NewService,
		guard:      newInflight(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// InFlight reports whether a run for the document id is pending.
func (o *Orchestrator) InFlight(id string) bool {
	return o.guard.busy(id)
}

// Run summarizes doc and merges the reply into its front matter.
// Every failure is reported through n once and returned as *Error.
func (o *Orchestrator) Run(ctx context.Context, cfg Config, doc Document, n Notifier) (*Result, error) {
	start := time.Now()
	result := &Result{}

	release, ok := o.guard.acquire(doc.ID())
	if !ok {
		err := newError(KindAlreadyInProgress, "a summary for this note is already running", nil)
		return result, o.finish(start, result, doc, n, err)
	}
	defer release()

	err := o.run(ctx, cfg, doc, n, result)
	return result, o.finish(start, result, doc, n, err)
}

func (o *Orchestrator) run(ctx context.Context, cfg Config, doc Document, n Notifier, result *Result) *Error {
	// 1. 检查配置
	if strings.TrimSpace(cfg.APIKey) == "" {
		return newError(KindMissingCredential, "API key is not set", nil)
	}

	// 2. 读取正文
	content, ok, err := doc.Content()
	if err != nil {
		return newError(KindNoInput, "failed to read note", err)
	}
	if !ok || strings.TrimSpace(content) == "" {
		return newError(KindNoInput, "note is empty or missing", nil)
	}

	// 3. 调用模型
	text, stats, callErr := o.invoke(ctx, cfg, content, n)
	result.Stats = stats
	if callErr != nil {
		return callErr
	}

	// 4. 解析回复
	format := cfg.ResponseFormat
	if format == nil {
		format = llm.DefaultResponseFormat()
	}
	patch, err := ParsePatch(text, format)
	if err != nil {
		var runErr *Error
		if errors.As(err, &runErr) {
			return runErr
		}
		return newError(KindMalformedResponse, "failed to parse reply", err)
	}
	result.Patch = patch

	// 5. 合并 front matter，失败即停，不回滚
	for _, field := range patch {
		if err := doc.InsertAtFrontMatter(field.Key, field.Value, true); err != nil {
			return partialMergeError(result.Merged, field.Key, err)
		}
		result.Merged = append(result.Merged, field.Key)
	}
	return nil
}

func (o *Orchestrator) invoke(ctx context.Context, cfg Config, content string, n Notifier) (string, *llm.LLMCallStats, *Error) {
	svc, err := o.newService(&llm.Config{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL})
	if err != nil {
		return "", nil, newError(KindTransportError, "failed to create completion client", err)
	}

	hide := n.Progress(progressNotice())
	defer hide()

	text, stats, err := svc.Complete(ctx, &llm.CompletionRequest{
		SystemPrompt:   cfg.SystemPrompt,
		UserContent:    content,
		ResponseFormat: cfg.ResponseFormat,
		Model:          cfg.Model,
		Sampling:       cfg.Sampling,
	})
	if err != nil {
		return "", stats, classifyCallError(err)
	}
	return text, stats, nil
}

func classifyCallError(err error) *Error {
	var apiErr *llm.APIError
	if errors.As(err, &apiErr) {
		return newError(KindAPIError, "completion request rejected", err)
	}
	if errors.Is(err, llm.ErrMissingAPIKey) {
		return newError(KindMissingCredential, "API key is not set", err)
	}
	return newError(KindTransportError, "completion request failed", err)
}

func (o *Orchestrator) finish(start time.Time, result *Result, doc Document, n Notifier, runErr *Error) error {
	result.Duration = time.Since(start)

	outcome := OutcomeSuccess
	if runErr != nil {
		outcome = string(runErr.Kind)
		n.Notify(failureNotice(runErr))
		slog.Warn("recap: run failed",
			"document", doc.ID(),
			"kind", runErr.Kind,
			"merged", result.Merged,
			"error", runErr,
			"duration_ms", result.Duration.Milliseconds(),
		)
	} else {
		n.Notify(successNotice())
		slog.Info("recap: run succeeded",
			"document", doc.ID(),
			"fields", result.Patch.Keys(),
			"duration_ms", result.Duration.Milliseconds(),
		)
	}

	if o.observer != nil {
		o.observer.ObserveRun(outcome, result.Duration, result.Stats)
	}

	if runErr != nil {
		return runErr
	}
	return nil
}
