// Package summarize runs the recap pipeline against a settings snapshot and keeps
// the run history.
package summarize

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/pkg/errors"

	"github.com/hrygo/journalrecap/ai/recap"
	"github.com/hrygo/journalrecap/plugin/webhook"
	"github.com/hrygo/journalrecap/store"
)

// Document is a note that also knows where it lives.
type Document interface {
	recap.Document
	Path() string
}

// Service runs summaries and records each run.
type Service struct {
	store        *store.Store
	orchestrator *recap.Orchestrator

	webhook    *webhook.Client
	webhookURL string
	deliveries sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithWebhook posts every finished run to url.
func WithWebhook(url string, client *webhook.Client) Option {
	return func(s *Service) {
		s.webhookURL = url
		s.webhook = client
	}
}

// NewService creates a summarize Service.
func NewService(st *store.Store, orchestrator *recap.Orchestrator, opts ...Option) *Service {
	s := &Service{store: st, orchestrator: orchestrator}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summarize runs the pipeline on doc with the settings stored at call time.
// The returned run is recorded in history; the error is the pipeline's *recap.Error.
func (s *Service) Summarize(ctx context.Context, doc Document, n recap.Notifier) (*store.RecapRun, error) {
	settings, err := s.store.GetRecapSettings(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load settings")
	}

	result, runErr := s.orchestrator.Run(ctx, settings.RunConfig(), doc, n)

	run := newRun(doc.Path(), settings.Model, result, runErr)
	// A cancelled request still gets its history row.
	saved, err := s.store.CreateRecapRun(context.WithoutCancel(ctx), run)
	if err != nil {
		slog.Error("failed to record recap run", "document", doc.Path(), "error", err)
		saved = run
	}
	s.notify(saved)
	return saved, runErr
}

// HistoryQuery selects runs from the history. Zero values do not filter.
type HistoryQuery struct {
	// Limit caps the number of runs; <= 0 lists everything.
	Limit  int
	Offset int
	Status store.RecapRunStatus
	Path   string
}

// History lists runs newest first.
func (s *Service) History(ctx context.Context, query HistoryQuery) ([]*store.RecapRun, error) {
	find := &store.FindRecapRun{}
	if query.Limit > 0 {
		find.Limit = &query.Limit
	}
	if query.Offset > 0 {
		find.Offset = &query.Offset
	}
	if query.Status != "" {
		find.Status = &query.Status
	}
	if query.Path != "" {
		find.DocumentPath = &query.Path
	}
	return s.store.ListRecapRuns(ctx, find)
}

// Get returns one run by uid, or nil.
func (s *Service) Get(ctx context.Context, uid string) (*store.RecapRun, error) {
	return s.store.GetRecapRun(ctx, uid)
}

func newRun(path, model string, result *recap.Result, runErr error) *store.RecapRun {
	run := &store.RecapRun{
		DocumentPath: path,
		Status:       store.RecapRunStatusSucceeded,
		Model:        model,
	}
	if result != nil {
		run.DurationMs = result.Duration.Milliseconds()
		if result.Stats != nil {
			run.PromptTokens = result.Stats.PromptTokens
			run.CompletionTokens = result.Stats.CompletionTokens
		}
		// Merged keys are always a prefix of the patch.
		merged := result.Patch
		if len(result.Merged) < len(merged) {
			merged = merged[:len(result.Merged)]
		}
		if len(merged) > 0 {
			if b, err := json.Marshal(merged); err == nil {
				run.Fields = string(b)
			}
		}
	}
	if runErr != nil {
		run.Status = store.RecapRunStatusFailed
		kind := string(recap.KindOf(runErr))
		message := runErr.Error()
		run.ErrorKind = &kind
		run.ErrorMessage = &message
	}
	return run
}

func (s *Service) notify(run *store.RecapRun) {
	if s.webhook == nil || s.webhookURL == "" {
		return
	}
	activity := webhook.ActivityTypeRecapSucceeded
	if run.Status == store.RecapRunStatusFailed {
		activity = webhook.ActivityTypeRecapFailed
	}
	payload := &webhook.WebhookRequestPayload{
		URL:          s.webhookURL,
		ActivityType: activity,
		Run:          ConvertRun(run),
	}
	s.deliveries.Add(1)
	go func() {
		defer s.deliveries.Done()
		if err := s.webhook.Post(context.Background(), payload); err != nil {
			slog.Warn("Failed to dispatch webhook",
				slog.String("url", payload.URL),
				slog.String("activityType", payload.ActivityType),
				slog.Any("err", err))
		}
	}()
}

// Wait blocks until pending webhook deliveries finish.
func (s *Service) Wait() {
	s.deliveries.Wait()
}

// ConvertRun converts a stored run to its JSON view.
func ConvertRun(run *store.RecapRun) *webhook.Run {
	out := &webhook.Run{
		UID:          run.UID,
		DocumentPath: run.DocumentPath,
		Status:       string(run.Status),
		Fields:       json.RawMessage(run.Fields),
		Model:        run.Model,

		PromptTokens:     run.PromptTokens,
		CompletionTokens: run.CompletionTokens,
		DurationMs:       run.DurationMs,
		CreatedTs:        run.CreatedTs,
	}
	if len(out.Fields) == 0 {
		out.Fields = json.RawMessage("{}")
	}
	if run.ErrorKind != nil {
		out.ErrorKind = *run.ErrorKind
	}
	if run.ErrorMessage != nil {
		out.ErrorMessage = *run.ErrorMessage
	}
	return out
}
