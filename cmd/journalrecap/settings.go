package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hrygo/journalrecap/server/service/settings"
	"github.com/hrygo/journalrecap/store"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show and edit the recap settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the settings; the API key is masked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withSettings(cmd, func(svc *settings.Service) error {
			current, err := svc.Get(cmd.Context())
			if err != nil {
				return err
			}
			return printSettings(cmd.OutOrStdout(), current)
		})
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <field> <value>",
	Short: "Change one setting",
	Long: `Change one setting. Fields: api-key, base-url, model, use-custom-command,
system-prompt, response-format. system-prompt and response-format accept @path to read
the value from a file, and require use-custom-command to be true.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		field, err := settings.ParseField(args[0])
		if err != nil {
			return err
		}
		value, err := readValue(args[1])
		if err != nil {
			return err
		}
		return withSettings(cmd, func(svc *settings.Service) error {
			updated, err := svc.Set(cmd.Context(), field, value)
			if err != nil {
				return err
			}
			return printSettings(cmd.OutOrStdout(), updated)
		})
	},
}

var settingsResetCmd = &cobra.Command{
	Use:       "reset <system-prompt|response-format>",
	Short:     "Restore the default system prompt or output format",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(settings.FieldSystemPrompt), string(settings.FieldResponseFormat)},
	RunE: func(cmd *cobra.Command, args []string) error {
		field, err := settings.ParseField(args[0])
		if err != nil {
			return err
		}
		return withSettings(cmd, func(svc *settings.Service) error {
			updated, err := svc.Reset(cmd.Context(), field)
			if err != nil {
				return err
			}
			return printSettings(cmd.OutOrStdout(), updated)
		})
	},
}

var settingsTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Send a test request with the stored API key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withSettings(cmd, func(svc *settings.Service) error {
			fmt.Fprintln(cmd.OutOrStdout(), "Testing api call...")
			updated, err := svc.TestAPIKey(cmd.Context())
			if updated == nil {
				return err
			}
			if err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Error: API is not working. %v\n", err)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Success! API working. Tested at %s\n",
				time.Unix(*updated.APIKeyTestedAt, 0).Format(time.RFC3339))
			return nil
		})
	},
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd, settingsResetCmd, settingsTestCmd)
}

func withSettings(cmd *cobra.Command, fn func(*settings.Service) error) error {
	storeInstance, _, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer storeInstance.Close()
	return fn(settings.NewService(storeInstance))
}

// readValue reads "@path" from a file ("@-" for stdin); anything else is literal.
func readValue(arg string) (string, error) {
	if !strings.HasPrefix(arg, "@") {
		return arg, nil
	}
	path := strings.TrimPrefix(arg, "@")
	if path == "-" {
		b, err := io.ReadAll(os.Stdin)
		return string(b), err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func printSettings(w io.Writer, s *store.RecapSettings) error {
	testedAt := "never"
	if s.APIKeyTestedAt != nil {
		testedAt = time.Unix(*s.APIKeyTestedAt, 0).Format(time.RFC3339)
	}
	format, err := json.MarshalIndent(s.ResponseFormat, "", "  ")
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "api-key:            %s\n", orNone(s.MaskedAPIKey()))
	fmt.Fprintf(w, "api-key tested at:  %s\n", testedAt)
	fmt.Fprintf(w, "base-url:           %s\n", s.BaseURL)
	fmt.Fprintf(w, "model:              %s\n", s.Model)
	fmt.Fprintf(w, "use-custom-command: %t\n", s.UseCustomCommand)
	fmt.Fprintf(w, "system-prompt:\n%s\n", indent(s.SystemPrompt))
	fmt.Fprintf(w, "response-format:\n%s\n", indent(string(format)))
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = "  " + line
	}
	return strings.Join(lines, "\n")
}
