package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/naka-gawa/prdash/internal/usecase"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh-all",
	Short: "Refreshes every data source on the dashboard in order",
	Long: `Runs the dashboard's data refresh endpoints one after another
(GitHub, GitLab, JIRA, App-interface and deployments by default; see
refresh_steps in the config file). The first failing step ends the run.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		logger := newLogger(cmd)
		cfg := loadConfig(cmd)

		seq := usecase.NewSequencer(newDashboard(cfg, logger), cfg.RefreshSteps, logger)
		err := seq.Run(ctx, func(ev usecase.StepEvent) {
			fmt.Println(stepLine(ev))
		})
		if err != nil {
			fail("%v", err)
		}
		fmt.Println("All data updated.")
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}

func stepLine(ev usecase.StepEvent) string {
	line := fmt.Sprintf("[%d/%d] %-8s %s", ev.Index+1, ev.Total, ev.Status, ev.Step.Name)
	if ev.Message != "" {
		line += ": " + ev.Message
	}
	return line
}
