package store

import (
	"context"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"
)

// RecapRunStatus is the outcome of a summarize run.
type RecapRunStatus string

const (
	// RecapRunStatusSucceeded means every field was merged.
	RecapRunStatusSucceeded RecapRunStatus = "SUCCEEDED"
	// RecapRunStatusFailed means the run stopped early; ErrorKind says where.
	RecapRunStatusFailed RecapRunStatus = "FAILED"
)

// ParseRecapRunStatus parses a status name case-insensitively.
func ParseRecapRunStatus(raw string) (RecapRunStatus, error) {
	switch status := RecapRunStatus(strings.ToUpper(strings.TrimSpace(raw))); status {
	case RecapRunStatusSucceeded, RecapRunStatusFailed:
		return status, nil
	default:
		return "", errors.Errorf("unknown run status %q", raw)
	}
}

// RecapRun is the history record of one summarize run.
type RecapRun struct {
	ID           int32
	UID          string
	DocumentPath string
	Status       RecapRunStatus
	ErrorKind    *string
	ErrorMessage *string
	// Fields is the JSON object of merged fields, in reply order.
	Fields           string
	Model            string
	PromptTokens     int
	CompletionTokens int
	DurationMs       int64
	CreatedTs        int64
}

// FindRecapRun is the find condition for recap runs.
type FindRecapRun struct {
	ID           *int32
	UID          *string
	DocumentPath *string
	Status       *RecapRunStatus
	Limit        *int
	Offset       *int
}

// CreateRecapRun stores a run, assigning its UID and creation time when unset.
func (s *Store) CreateRecapRun(ctx context.Context, create *RecapRun) (*RecapRun, error) {
	if create.UID == "" {
		create.UID = shortuuid.New()
	}
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}
	if create.Fields == "" {
		create.Fields = "{}"
	}
	return s.driver.CreateRecapRun(ctx, create)
}

// ListRecapRuns lists runs newest first.
func (s *Store) ListRecapRuns(ctx context.Context, find *FindRecapRun) ([]*RecapRun, error) {
	return s.driver.ListRecapRuns(ctx, find)
}

// GetRecapRun returns the run with uid, or nil.
func (s *Store) GetRecapRun(ctx context.Context, uid string) (*RecapRun, error) {
	list, err := s.ListRecapRuns(ctx, &FindRecapRun{UID: &uid})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}
