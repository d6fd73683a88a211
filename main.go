package main

import (
	"os"

	"github.com/spf13/cobra"

	"VMS-backend/internal/commands"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "vms-attendance",
	Short: "Volunteer attendance verification service",
	Long: `Attendance verification for volunteer projects.

Operators issue short-lived QR tokens or 6-digit codes per project and action (check-in / check-out).
Volunteers scan or type them; the server consumes each credential once and keeps the check-in/check-out ledger.

  vms-attendance migrate --project "42:Beach Cleanup"
  vms-attendance serve
  vms-attendance token --account 7 --role volunteer
  vms-attendance code 482913 --access-token <jwt>`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	commands.RegisterCommands(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		rootCmd.PrintErrf("%v\n", err)
		os.Exit(1)
	}
}
