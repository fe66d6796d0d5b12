// Package cmd contains all the CLI commands for the application,
// built using the Cobra library.
package cmd

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/naka-gawa/prdash/internal/config"
	"github.com/naka-gawa/prdash/internal/gateway"
)

var rootCmd = &cobra.Command{
	Use:   "prdash",
	Short: "A CLI client for the PR dashboard.",
	Long: `prdash drives the PR dashboard's close-actor enhancement job and
data refresh endpoints from the terminal. It shows live job progress,
starts and stops the job, and lets you fill in close actors by hand.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose/debug logging")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the YAML config file")
	rootCmd.PersistentFlags().String("url", "", "Dashboard base URL (overrides config and "+config.EnvURL+")")
}

// newLogger discards everything unless --verbose is set.
func newLogger(cmd *cobra.Command) *log.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	logger := log.New(io.Discard, "", log.LstdFlags)
	if verbose {
		logger.SetOutput(os.Stderr)
	}
	return logger
}

func loadConfig(cmd *cobra.Command) config.Config {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path, nil)
	if err != nil {
		fail("Failed to load config: %v", err)
	}
	if u, _ := cmd.Flags().GetString("url"); u != "" {
		cfg.BaseURL = u
	}
	return cfg
}

func newDashboard(cfg config.Config, logger *log.Logger) gateway.DashboardAPI {
	api, err := gateway.NewDashboardClient(cfg.BaseURL, cfg.Token, cfg.Intervals.Request, logger)
	if err != nil {
		fail("Failed to create dashboard client: %v", err)
	}
	return api
}

// newLookup returns nil when no GitHub token is configured.
func newLookup(cfg config.Config, logger *log.Logger) gateway.ActorLookup {
	if cfg.GitHubToken == "" {
		return nil
	}
	lookup, err := gateway.NewGitHubGateway(cfg.GitHubToken, logger)
	if err != nil {
		fail("Failed to create GitHub gateway: %v", err)
	}
	return lookup
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
