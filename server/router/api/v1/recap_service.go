package v1

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/feeds"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/journalrecap/ai/recap"
	"github.com/hrygo/journalrecap/plugin/markdown"
	"github.com/hrygo/journalrecap/plugin/webhook"
	"github.com/hrygo/journalrecap/server/service/summarize"
	"github.com/hrygo/journalrecap/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	feedItemLimit    = 20
)

type CreateRecapRequest struct {
	// Path is the note path relative to the vault root.
	Path  string `json:"path"`
	Plain bool   `json:"plain"`
}

type RunError struct {
	Kind    string   `json:"kind"`
	Message string   `json:"message"`
	Merged  []string `json:"merged,omitempty"`
	Failed  string   `json:"failed,omitempty"`
}

type CreateRecapResponse struct {
	Run     *webhook.Run `json:"run,omitempty"`
	Notices []string     `json:"notices"`
	Error   *RunError    `json:"error,omitempty"`
}

type ListRecapsResponse struct {
	Runs []*webhook.Run `json:"runs"`
}

// CreateRecap summarizes one vault note and merges the reply into its front matter.
func (s *APIV1Service) CreateRecap(c echo.Context) error {
	request := &CreateRecapRequest{}
	if err := c.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body").SetInternal(err)
	}
	if s.Vault == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no vault configured, start the server with --vault")
	}
	doc, err := s.Vault.Open(request.Path, markdown.WithPlainText(request.Plain))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	}

	notices := &recap.Recorder{}
	run, err := s.SummarizeService.Summarize(c.Request().Context(), doc, notices)
	response := &CreateRecapResponse{Notices: notices.Notices()}
	if run != nil {
		response.Run = summarize.ConvertRun(run)
	}
	if err != nil {
		var runErr *recap.Error
		if !errors.As(err, &runErr) {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to summarize note").SetInternal(err)
		}
		response.Error = &RunError{
			Kind:    string(runErr.Kind),
			Message: runErr.Error(),
			Merged:  runErr.Merged,
			Failed:  runErr.Failed,
		}
		return c.JSON(statusForKind(runErr.Kind), response)
	}
	return c.JSON(http.StatusOK, response)
}

// statusForKind maps a run failure to its HTTP status.
func statusForKind(kind recap.Kind) int {
	switch kind {
	case recap.KindAlreadyInProgress:
		return http.StatusConflict
	case recap.KindNoInput, recap.KindMissingCredential:
		return http.StatusBadRequest
	case recap.KindTransportError, recap.KindAPIError:
		return http.StatusBadGateway
	case recap.KindMalformedResponse, recap.KindSchemaMismatch:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// ListRecaps lists recent runs newest first, optionally filtered by status and note path.
func (s *APIV1Service) ListRecaps(c echo.Context) error {
	query := summarize.HistoryQuery{Limit: defaultListLimit}
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid limit %q", raw))
		}
		query.Limit = min(n, maxListLimit)
	}
	if raw := c.QueryParam("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid offset %q", raw))
		}
		query.Offset = n
	}
	if raw := c.QueryParam("status"); raw != "" {
		status, err := store.ParseRecapRunStatus(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
		}
		query.Status = status
	}
	if raw := c.QueryParam("path"); raw != "" {
		path, err := s.historyPath(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
		}
		query.Path = path
	}

	runs, err := s.SummarizeService.History(c.Request().Context(), query)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list recaps").SetInternal(err)
	}
	response := &ListRecapsResponse{Runs: make([]*webhook.Run, 0, len(runs))}
	for _, run := range runs {
		response.Runs = append(response.Runs, summarize.ConvertRun(run))
	}
	return c.JSON(http.StatusOK, response)
}

// historyPath maps a path filter to the absolute path runs are recorded under.
func (s *APIV1Service) historyPath(raw string) (string, error) {
	if filepath.IsAbs(raw) {
		return filepath.Clean(raw), nil
	}
	if s.Vault == nil {
		return "", errors.Errorf("path %q must be absolute when no vault is configured", raw)
	}
	return s.Vault.Resolve(raw)
}

func (s *APIV1Service) GetRecap(c echo.Context) error {
	run, err := s.SummarizeService.Get(c.Request().Context(), c.Param("uid"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get recap").SetInternal(err)
	}
	if run == nil {
		return echo.NewHTTPError(http.StatusNotFound, "recap not found")
	}
	return c.JSON(http.StatusOK, summarize.ConvertRun(run))
}

// GetRecapFeed renders recent runs as an Atom feed.
func (s *APIV1Service) GetRecapFeed(c echo.Context) error {
	runs, err := s.SummarizeService.History(c.Request().Context(), summarize.HistoryQuery{Limit: feedItemLimit})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list recaps").SetInternal(err)
	}

	baseURL := c.Scheme() + "://" + c.Request().Host
	feed := &feeds.Feed{
		Title:       "journal-recap",
		Link:        &feeds.Link{Href: baseURL + "/api/v1/recaps"},
		Description: "Recent journal summaries",
		Created:     time.Now(),
	}
	for _, run := range runs {
		feed.Items = append(feed.Items, convertFeedItem(baseURL, run))
	}
	if len(runs) > 0 {
		feed.Updated = time.Unix(runs[0].CreatedTs, 0)
	}

	atom, err := feed.ToAtom()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to render feed").SetInternal(err)
	}
	return c.Blob(http.StatusOK, "application/atom+xml; charset=utf-8", []byte(atom))
}

func convertFeedItem(baseURL string, run *store.RecapRun) *feeds.Item {
	title := strings.TrimSuffix(filepath.Base(run.DocumentPath), filepath.Ext(run.DocumentPath))
	description := feedDescription(run)
	if run.Status == store.RecapRunStatusFailed {
		title += " (failed)"
	}
	return &feeds.Item{
		Id:          run.UID,
		Title:       title,
		Link:        &feeds.Link{Href: baseURL + "/api/v1/recaps/" + run.UID},
		Description: description,
		Created:     time.Unix(run.CreatedTs, 0),
	}
}

// feedDescription prefers the "summary" field, then the error, then the raw fields.
func feedDescription(run *store.RecapRun) string {
	if run.Status == store.RecapRunStatusFailed && run.ErrorMessage != nil {
		return *run.ErrorMessage
	}
	fields := map[string]any{}
	if err := json.Unmarshal([]byte(run.Fields), &fields); err != nil {
		slog.Debug("recap fields are not an object", "uid", run.UID, "error", err)
		return run.Fields
	}
	if summary, ok := fields["summary"].(string); ok {
		return summary
	}
	return run.Fields
}
