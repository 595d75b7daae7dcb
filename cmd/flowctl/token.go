package main

import (
	"errors"
	"fmt"
	"time"

	"callflow-platform/internal/auth"
	"callflow-platform/internal/config"
	"callflow-platform/internal/rbac"

	"github.com/spf13/cobra"
)

// newTokenCmd issues a bearer token pair signed with JWT_SECRET, for local
// and staging use against the /v1 API. There is no login endpoint.
func newTokenCmd() *cobra.Command {
	var userID, ownerID, role string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API token pair for a user (non-production only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			if cfg.IsProduction() {
				return errors.New("token issuance is disabled in production")
			}
			if !rbac.Known(role) {
				return fmt.Errorf("unknown role %q", role)
			}
			m, err := auth.NewManager(cfg.Auth)
			if err != nil {
				return err
			}
			pair, err := m.Issue(time.Now(), auth.Identity{UserID: userID, OwnerID: ownerID, Role: role})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), pair)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&ownerID, "owner", "", "owner (tenant) id")
	cmd.Flags().StringVar(&role, "role", rbac.RoleOwner, "role")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}
