package main

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/hrygo/journalrecap/ai/recap"
	"github.com/hrygo/journalrecap/server/service/summarize"
	"github.com/hrygo/journalrecap/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent summarize runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		query, err := historyQuery(cmd)
		if err != nil {
			return err
		}

		storeInstance, _, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer storeInstance.Close()

		runs, err := summarize.NewService(storeInstance, recap.NewOrchestrator()).History(cmd.Context(), query)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "UID\tCREATED\tSTATUS\tTOKENS\tDURATION\tNOTE\tDETAIL")
		for _, run := range runs {
			detail := run.Fields
			if run.ErrorKind != nil {
				detail = *run.ErrorKind
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%s\t%s\n",
				run.UID,
				time.Unix(run.CreatedTs, 0).Format("2006-01-02 15:04:05"),
				run.Status,
				run.PromptTokens, run.CompletionTokens,
				(time.Duration(run.DurationMs) * time.Millisecond).String(),
				run.DocumentPath,
				detail,
			)
		}
		return w.Flush()
	},
}

func init() {
	addHistoryFlags(historyCmd)
}

func addHistoryFlags(cmd *cobra.Command) {
	cmd.Flags().Int("limit", 20, "number of runs to list, 0 for all")
	cmd.Flags().Int("offset", 0, "number of newest runs to skip")
	cmd.Flags().String("status", "", "only list runs with this status (succeeded or failed)")
	cmd.Flags().String("path", "", "only list runs of this note")
}

func historyQuery(cmd *cobra.Command) (summarize.HistoryQuery, error) {
	query := summarize.HistoryQuery{}
	var err error
	if query.Limit, err = cmd.Flags().GetInt("limit"); err != nil {
		return query, err
	}
	if query.Offset, err = cmd.Flags().GetInt("offset"); err != nil {
		return query, err
	}
	if query.Offset < 0 {
		return query, errors.Errorf("invalid offset %d", query.Offset)
	}
	status, err := cmd.Flags().GetString("status")
	if err != nil {
		return query, err
	}
	if status != "" {
		if query.Status, err = store.ParseRecapRunStatus(status); err != nil {
			return query, err
		}
	}
	path, err := cmd.Flags().GetString("path")
	if err != nil {
		return query, err
	}
	if path != "" {
		// Runs are recorded under the note's absolute path.
		if query.Path, err = filepath.Abs(path); err != nil {
			return query, errors.Wrapf(err, "failed to resolve %s", path)
		}
	}
	return query, nil
}
