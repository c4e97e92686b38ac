package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"ezweb/internal/ownership/directory"
	"ezweb/internal/platform/postgres"
	id "ezweb/pkg/domain"
)

var (
	siteOwner string
	siteName  string
)

var siteCmd = &cobra.Command{
	Use:   "site",
	Short: "Manage the site directory",
}

var siteCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a site and its owner",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Database.URL == "" {
			return errors.New("site create: DATABASE_URL is not set")
		}
		owner, err := id.ParseUserID(siteOwner)
		if err != nil {
			return fmt.Errorf("site create: %w", err)
		}

		db, err := postgres.Open(cmd.Context(), cfg.Database.URL)
		if err != nil {
			return err
		}
		defer db.Close()

		siteID, err := directory.NewPostgres(db).CreateSite(cmd.Context(), owner, siteName)
		if err != nil {
			return fmt.Errorf("site create: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), siteID.String())
		return nil
	},
}

func init() {
	siteCreateCmd.Flags().StringVar(&siteOwner, "owner", "", "numeric user id of the owner")
	siteCreateCmd.Flags().StringVar(&siteName, "name", "", "display name")
	_ = siteCreateCmd.MarkFlagRequired("owner")
	siteCmd.AddCommand(siteCreateCmd)
}
