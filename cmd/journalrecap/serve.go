package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/journalrecap/internal/profile"
	"github.com/hrygo/journalrecap/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the local HTTP API for editor integrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		storeInstance, instanceProfile, err := openStore(ctx)
		if err != nil {
			return err
		}

		s, err := server.NewServer(ctx, instanceProfile, storeInstance)
		if err != nil {
			_ = storeInstance.Close()
			return err
		}

		c := make(chan os.Signal, 1)
		// Trigger graceful shutdown on SIGINT or SIGTERM.
		signal.Notify(c, terminationSignals...)

		if err := s.Start(ctx); err != nil {
			_ = storeInstance.Close()
			return err
		}

		printGreetings(instanceProfile)

		go func() {
			<-c
			s.Shutdown(ctx)
			cancel()
		}()

		// Wait for CTRL-C.
		<-ctx.Done()
		slog.Debug("serve exited")
		return nil
	},
}

func init() {
	viper.SetDefault("port", 28090)
	viper.SetDefault("addr", "127.0.0.1")

	serveCmd.Flags().String("addr", "127.0.0.1", "address of server")
	serveCmd.Flags().Int("port", 28090, "port of server")
	serveCmd.Flags().String("vault", "", "vault directory holding the notes")
	serveCmd.Flags().Float64("rate-limit", 0, "summarize requests per second, 0 for unlimited")
	serveCmd.Flags().StringSlice("cors-origin", []string{profile.DefaultCORSOrigin}, "browser origins allowed to call the API")

	for _, name := range []string{"addr", "port", "vault", "rate-limit", "cors-origin"} {
		if err := viper.BindPFlag(name, serveCmd.Flags().Lookup(name)); err != nil {
			panic(err)
		}
	}
}

func printGreetings(profile *profile.Profile) {
	fmt.Printf("journalrecap %s started successfully!\n", profile.Version)

	if profile.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
		if profile.DSN != "" {
			fmt.Fprintf(os.Stderr, "Database: %s\n", profile.DSN)
		}
	}

	fmt.Printf("Data directory: %s\n", profile.Data)
	fmt.Printf("Database driver: %s\n", profile.Driver)
	if profile.Vault != "" {
		fmt.Printf("Vault: %s\n", profile.Vault)
	} else {
		fmt.Fprint(os.Stderr, "No vault configured, POST /api/v1/recaps is disabled\n")
	}
	fmt.Printf("Server running on %s:%d\n", profile.Addr, profile.Port)
	fmt.Printf("API: http://%s:%d/api/v1\n", profile.Addr, profile.Port)
	fmt.Printf("Allowed origins: %s\n", strings.Join(profile.CORSOrigins, ", "))
	fmt.Println("Issue an API token with: journalrecap token")
}
