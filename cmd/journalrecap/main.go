package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/journalrecap/ai/recap"
	"github.com/hrygo/journalrecap/internal/profile"
	"github.com/hrygo/journalrecap/internal/version"
	"github.com/hrygo/journalrecap/store"
	"github.com/hrygo/journalrecap/store/db"
)

var (
	rootCmd = &cobra.Command{
		Use:   "journalrecap",
		Short: `Summarize journal notes with an OpenAI model and keep the recap in each note's front matter.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Try to load .env file from current directory (ignore error if file doesn't exist)
			_ = godotenv.Load()
			setupLogger(viper.GetString("mode"))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.StringFull())
		},
	}
)

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")

	rootCmd.PersistentFlags().String("mode", "dev", `mode of journalrecap, can be "prod" or "dev"`)
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver (sqlite, postgres)")
	rootCmd.PersistentFlags().String("dsn", "", "database source name(aka. DSN)")
	rootCmd.PersistentFlags().String("secret", "", "secret sealing the stored API key, defaults to <data>/secret.key")
	rootCmd.PersistentFlags().String("webhook-url", "", "URL receiving every finished run")

	for _, name := range []string{"mode", "data", "driver", "dsn", "secret", "webhook-url"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("journalrecap")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	rootCmd.AddCommand(summarizeCmd, settingsCmd, historyCmd, serveCmd, tokenCmd, versionCmd)
}

// setupLogger installs a text handler in dev mode and a JSON handler in prod mode.
func setupLogger(mode string) {
	var handler slog.Handler
	if mode == "prod" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	slog.SetDefault(slog.New(handler))
}

// loadProfile builds the profile from flags, environment and .env.
func loadProfile() (*profile.Profile, error) {
	instanceProfile := &profile.Profile{
		Mode:       viper.GetString("mode"),
		Data:       viper.GetString("data"),
		Driver:     viper.GetString("driver"),
		DSN:        viper.GetString("dsn"),
		Secret:     viper.GetString("secret"),
		Addr:       viper.GetString("addr"),
		Port:       viper.GetInt("port"),
		Vault:      viper.GetString("vault"),
		RateLimit:   viper.GetFloat64("rate-limit"),
		CORSOrigins: viper.GetStringSlice("cors-origin"),
		WebhookURL:  viper.GetString("webhook-url"),
		Version:     version.GetCurrentVersion(viper.GetString("mode")),
	}
	instanceProfile.FromEnv()
	if err := instanceProfile.Validate(); err != nil {
		return nil, err
	}
	return instanceProfile, nil
}

// openStore loads the profile and returns a migrated store.
func openStore(ctx context.Context) (*store.Store, *profile.Profile, error) {
	instanceProfile, err := loadProfile()
	if err != nil {
		return nil, nil, err
	}
	dbDriver, err := db.NewDBDriver(instanceProfile)
	if err != nil {
		printDatabaseError(err, instanceProfile)
		return nil, nil, err
	}
	storeInstance := store.New(dbDriver, instanceProfile)
	if err := storeInstance.Migrate(ctx); err != nil {
		_ = storeInstance.Close()
		return nil, nil, err
	}
	return storeInstance, instanceProfile, nil
}

// printDatabaseError provides user-friendly error messages for database connection issues
func printDatabaseError(err error, profile *profile.Profile) {
	fmt.Fprintln(os.Stderr, "\nDatabase Connection Failed")

	errMsg := err.Error()
	switch {
	case strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "no such host"):
		fmt.Fprintln(os.Stderr, "\nPostgreSQL is not running.")
		fmt.Fprintf(os.Stderr, "\n   Or use the bundled SQLite database:\n")
		fmt.Fprintf(os.Stderr, "   Set: JOURNALRECAP_DRIVER=sqlite\n")
	case strings.Contains(errMsg, "SSL is not enabled") || strings.Contains(errMsg, "sslmode"):
		fmt.Fprintln(os.Stderr, "\nPostgreSQL SSL configuration mismatch.")
		fmt.Fprintf(os.Stderr, "\n   Add ?sslmode=disable to your DSN.\n")
	case strings.Contains(errMsg, "password authentication failed"):
		fmt.Fprintln(os.Stderr, "\nPostgreSQL authentication failed.")
		fmt.Fprintf(os.Stderr, "\n   Check your credentials in the DSN or .env file.\n")
	default:
		fmt.Fprintln(os.Stderr, "\nError:", errMsg)
	}
	if profile.Driver == "sqlite" {
		fmt.Fprintf(os.Stderr, "\n   Database file: %s\n", profile.DSN)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Pipeline failures were already reported as a notice.
		if recap.KindOf(err) == "" {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
