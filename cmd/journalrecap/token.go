package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hrygo/journalrecap/server/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an access token for the HTTP API",
	Long: `Issue a bearer token for editor plugins calling the HTTP API. Tokens are signed with
the instance secret; rotating the secret revokes every token.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		name, err := cmd.Flags().GetString("name")
		if err != nil {
			return err
		}
		ttl, err := cmd.Flags().GetDuration("ttl")
		if err != nil {
			return err
		}

		instanceProfile, err := loadProfile()
		if err != nil {
			return err
		}
		authenticator, err := auth.NewAuthenticator(instanceProfile.Secret)
		if err != nil {
			return err
		}

		now := time.Now()
		var expiresAt time.Time
		if ttl > 0 {
			expiresAt = now.Add(ttl)
		}
		token, err := authenticator.GenerateAccessToken(name, now, expiresAt)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().String("name", "editor", "label of the client the token is issued to")
	tokenCmd.Flags().Duration("ttl", 0, "token lifetime, 0 for no expiry")
}
