package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"VMS-backend/internal/platform/auth"
)

var (
	tokenAccountID int64
	tokenRole      string
	tokenTTL       time.Duration
)

var TokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an access token (JWT) for development and testing",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		switch tokenRole {
		case auth.RoleVolunteer, auth.RoleOperator, auth.RoleAdmin:
		default:
			return fmt.Errorf("unknown role %q", tokenRole)
		}
		if tokenAccountID <= 0 {
			return fmt.Errorf("--account must be positive")
		}
		ttl := tokenTTL
		if ttl <= 0 {
			ttl = cfg.Auth.TokenTTL
		}

		tok, err := auth.NewAccessToken(jwtSecret(cfg), tokenAccountID, tokenRole, ttl, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	TokenCmd.Flags().Int64Var(&tokenAccountID, "account", 0, "account id (volunteer id)")
	TokenCmd.Flags().StringVar(&tokenRole, "role", auth.RoleVolunteer, "volunteer | operator | admin")
	TokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (default auth.token_ttl)")
	_ = TokenCmd.MarkFlagRequired("account")
}
