package main

import (
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/hrygo/journalrecap/ai/recap"
	"github.com/hrygo/journalrecap/plugin/markdown"
	"github.com/hrygo/journalrecap/plugin/webhook"
	"github.com/hrygo/journalrecap/server/service/summarize"
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize <note.md>",
	Short: "Summarize a note and merge the recap into its front matter",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		plain, err := cmd.Flags().GetBool("plain")
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), terminationSignals...)
		defer stop()

		storeInstance, instanceProfile, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer storeInstance.Close()

		doc, err := markdown.NewFileDocument(markdown.NewFileStore(), args[0], markdown.WithPlainText(plain))
		if err != nil {
			return err
		}

		var opts []summarize.Option
		if instanceProfile.WebhookURL != "" {
			client := webhook.NewClient(time.Duration(instanceProfile.WebhookTimeout) * time.Second)
			opts = append(opts, summarize.WithWebhook(instanceProfile.WebhookURL, client))
		}
		service := summarize.NewService(storeInstance, recap.NewOrchestrator(), opts...)
		defer service.Wait()

		_, err = service.Summarize(ctx, doc, recap.WriterNotifier{W: cmd.OutOrStdout()})
		return err
	},
}

func init() {
	summarizeCmd.Flags().Bool("plain", false, "send the note as plain text instead of markdown")
}
