package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pkg/errors"

	"github.com/hrygo/journalrecap/store"
)

func (d *DB) CreateRecapRun(ctx context.Context, create *store.RecapRun) (*store.RecapRun, error) {
	query := `
		INSERT INTO recap_run (
			uid, document_path, status, error_kind, error_message, fields,
			model, prompt_tokens, completion_tokens, duration_ms, created_ts
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	run := *create
	err := d.db.QueryRowContext(ctx, query,
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

func (d *DB) ListRecapRuns(ctx context.Context, find *store.FindRecapRun) ([]*store.RecapRun, error) {
	query := `
		SELECT id, uid, document_path, status, error_kind, error_message, fields,
			model, prompt_tokens, completion_tokens, duration_ms, created_ts
		FROM recap_run
		WHERE 1=1
	`
	var args []interface{}
	argIndex := 1

	if find.ID != nil {
		query += fmt.Sprintf(" AND id = $%d", argIndex)
		args = append(args, *find.ID)
		argIndex++
	}
	if find.UID != nil {
		query += fmt.Sprintf(" AND uid = $%d", argIndex)
		args = append(args, *find.UID)
		argIndex++
	}
	if find.DocumentPath != nil {
		query += fmt.Sprintf(" AND document_path = $%d", argIndex)
		args = append(args, *find.DocumentPath)
		argIndex++
	}
	if find.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, string(*find.Status))
		argIndex++
	}

	query += " ORDER BY created_ts DESC, id DESC"

	if find.Limit != nil {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, *find.Limit)
		argIndex++
	}
	if find.Offset != nil {
		query += fmt.Sprintf(" OFFSET $%d", argIndex)
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
		if err := rows.Scan(
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
		); err != nil {
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
	return runs, rows.Err()
}
