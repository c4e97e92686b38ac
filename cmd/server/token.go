package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	jwttoken "ezweb/internal/jwt_token"
	id "ezweb/pkg/domain"
)

var (
	tokenUser string
	tokenTTL  time.Duration
)

// tokenCmd mints an access token for local development and smoke tests.
// Production tokens come from the account service, which shares the key.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an access token for a user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := id.ParseUserID(tokenUser)
		if err != nil {
			return fmt.Errorf("token: %w", err)
		}
		ttl := tokenTTL
		if ttl <= 0 {
			ttl = cfg.Auth.AccessTokenTTL
		}

		jwtService := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience)
		token, err := jwtService.GenerateAccessToken(userID, ttl)
		if err != nil {
			return fmt.Errorf("token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "numeric user id placed in the token")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (default: auth.access_token_ttl)")
	_ = tokenCmd.MarkFlagRequired("user")
}
