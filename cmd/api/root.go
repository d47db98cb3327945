package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bryanwahyu/analytics-bridge/internal/config"
	"github.com/bryanwahyu/analytics-bridge/internal/logging"
)

var (
	cfgFile  string
	logLevel string

	cfg *config.Config
	log zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "analytics-bridge",
	Short: "Backend-for-frontend for the multivariate analytics service",
	Long: `analytics-bridge sits between the browser UI and the remote analytics service.
It normalizes analyze and session responses into one canonical result, fills in
missing visualizations from the session store and generates exports locally
when the service cannot.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			c.Log.Level = logLevel
		}
		cfg = c
		log = logging.New(cfg.Log.Level, cfg.Log.Format)
		return nil
	},
}

// Execute is the entry point called by main.main()
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", path, "config file (env CONFIG_PATH)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd, sessionsCmd, exportCmd, configCmd)
}
