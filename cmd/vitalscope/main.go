package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vitalscope/vitalscope-business/internal/app"
	"github.com/vitalscope/vitalscope-business/internal/security"
)

// Version is set at build time.
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:     "vitalscope",
	Short:   "VitalScope subscription entitlement service",
	Version: Version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the entitlement API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return app.RunServer(ctx, configPath)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.Migrate(cmd.Context(), configPath)
	},
}

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Generate a webhook secret and an admin secret hash",
	RunE: func(cmd *cobra.Command, args []string) error {
		webhookSecret, errSecret := security.GenerateWebhookSecret()
		if errSecret != nil {
			return errSecret
		}
		adminSecret, errRandom := security.GenerateRandomString(32)
		if errRandom != nil {
			return errRandom
		}
		adminHash, errHash := security.HashPassword(adminSecret)
		if errHash != nil {
			return errHash
		}
		fmt.Printf("webhook-secret: %s\n", webhookSecret)
		fmt.Printf("admin-secret: %s\n", adminSecret)
		fmt.Printf("admin-secret-hash: %s\n", adminHash)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	rootCmd.AddCommand(serveCmd, migrateCmd, secretCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
