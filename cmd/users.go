/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/Fjallroth/matesrace/internal/db"
	"github.com/Fjallroth/matesrace/internal/services"
	"github.com/Fjallroth/matesrace/internal/store"
	"github.com/spf13/cobra"
)

var revokePremium bool

// usersCmd groups user administration commands.
var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Administer users",
}

var usersPremiumCmd = &cobra.Command{
	Use:   "premium <strava-athlete-id>",
	Short: "Grant or revoke premium status",
	Long: `Premium athletes are not bound by the organised and joined race quotas.

	matesrace users premium 1234567
	matesrace users premium 1234567 --off
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stravaID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid strava athlete id %q", args[0])
		}

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		dbConn, err := db.Open(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer dbConn.Close()

		users := services.NewUserService(store.NewUserRepository(dbConn), nil)
		premium := !revokePremium
		if err := users.SetPremium(cmd.Context(), stravaID, premium); err != nil {
			return err
		}
		slog.Info("premium status updated", "strava_id", stravaID, "premium", premium)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(usersCmd)
	usersCmd.AddCommand(usersPremiumCmd)
	usersPremiumCmd.Flags().BoolVar(&revokePremium, "off", false, "revoke premium status instead of granting it")
}
