package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/journalrecap/store"
)

// CreateRecapRun inserts a run record.
func (d *DB) CreateRecapRun(ctx context.Context, create *store.RecapRun) (*store.RecapRun, error) {
	stmt := `
		INSERT INTO recap_run (
			uid, document_path, status, error_kind, error_message, fields,
			model, prompt_tokens, completion_tokens, duration_ms, created_ts
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	run := *create
	err := d.db.QueryRowContext(ctx, stmt,
		create.UID,
		create.DocumentPath,
		string(create.Status),
		create.ErrorKind,
		create.ErrorMessage,
		create.Fields,
		create.Model,
		create.PromptTokens,
		create.CompletionTokens,
		create.DurationMs,
		create.CreatedTs,
	).Scan(&run.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create recap run")
	}
	return &run, nil
}

// ListRecapRuns lists runs newest first.
func (d *DB) ListRecapRuns(ctx context.Context, find *store.FindRecapRun) ([]*store.RecapRun, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "uid = ?"), append(args, *find.UID)
	}
	if find.DocumentPath != nil {
		where, args = append(where, "document_path = ?"), append(args, *find.DocumentPath)
	}
	if find.Status != nil {
		where, args = append(where, "status = ?"), append(args, string(*find.Status))
	}

	query := `SELECT id, uid, document_path, status, error_kind, error_message, fields,
		model, prompt_tokens, completion_tokens, duration_ms, created_ts
		FROM recap_run
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts DESC, id DESC`

	if find.Limit != nil {
		query += " LIMIT ?"
		args = append(args, *find.Limit)
	} else if find.Offset != nil {
		// SQLite only accepts OFFSET after a LIMIT; -1 means no limit.
		query += " LIMIT -1"
	}
	if find.Offset != nil {
		query += " OFFSET ?"
		args = append(args, *find.Offset)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list recap runs")
	}
	defer rows.Close()

	var runs []*store.RecapRun
	for rows.Next() {
		var run store.RecapRun
		var errorKind, errorMessage sql.NullString
		err := rows.Scan(
			&run.ID,
			&run.UID,
			&run.DocumentPath,
			&run.Status,
			&errorKind,
			&errorMessage,
			&run.Fields,
			&run.Model,
			&run.PromptTokens,
			&run.CompletionTokens,
			&run.DurationMs,
			&run.CreatedTs,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan recap run")
		}
		if errorKind.Valid {
			run.ErrorKind = &errorKind.String
		}
		if errorMessage.Valid {
			run.ErrorMessage = &errorMessage.String
		}
		runs = append(runs, &run)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}
