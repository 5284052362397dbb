package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/martijn/sitecalm/internal/core/service"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage API tokens",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue an admin bearer token",
	RunE: func(cmd *cobra.Command, args []string) error {
		tokens := service.NewTokenService(cfg.JWTSecretKey, cfg.JWTAlgorithm)

		token, expiresAt, err := tokens.Issue(tokenSubject, []string{service.ScopeAdmin}, tokenTTL)
		if err != nil {
			return fmt.Errorf("failed to issue token: %w", err)
		}

		fmt.Println(token)
		fmt.Printf("Expires: %s\n", expiresAt.Format(time.RFC3339))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenIssueCmd)
	tokenIssueCmd.Flags().StringVar(&tokenSubject, "subject", "operator", "subject recorded in the token")
	tokenIssueCmd.Flags().DurationVar(&tokenTTL, "ttl", service.DefaultTokenTTL, "token lifetime")
}
