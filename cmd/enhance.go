package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/naka-gawa/prdash/internal/config"
	"github.com/naka-gawa/prdash/internal/domain"
	"github.com/naka-gawa/prdash/internal/render"
	"github.com/naka-gawa/prdash/internal/tui"
	"github.com/naka-gawa/prdash/internal/usecase"
)

var enhanceCmd = &cobra.Command{
	Use:   "enhance",
	Short: "Controls the close-actor enhancement job",
	Long: `Shows and controls the server-side job that fills in who merged or
closed each PR. The server is the source of truth; every command re-reads
its state before acting.`,
}

var enhanceStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Shows coverage and the current job state",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		logger := newLogger(cmd)
		cfg := loadConfig(cmd)

		ctrl := usecase.NewController(newDashboard(cfg, logger), newLineView(io.Discard, os.Stderr), timing(cfg), logger)
		defer ctrl.Close()
		status, err := ctrl.Init(ctx)
		if err != nil {
			fail("Failed to initialize: %v", err)
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			printJSON(statusReport{
				Status:   status,
				State:    ctrl.State(),
				Mode:     ctrl.ViewModel().Mode,
				Coverage: render.FormatPercent(coverageOf(status)),
			})
			return
		}
		fmt.Println(render.Panel(ctrl.ViewModel(), render.Options{}))
	},
}

var enhanceStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Starts (or resumes) the enhancement job",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		logger := newLogger(cmd)
		cfg := loadConfig(cmd)

		view := newLineView(os.Stdout, os.Stderr)
		ctrl := usecase.NewController(newDashboard(cfg, logger), view, timing(cfg), logger)
		defer ctrl.Close()
		if _, err := ctrl.Init(ctx); err != nil {
			fail("Failed to initialize: %v", err)
		}
		if err := ctrl.StartEnhancement(ctx); err != nil {
			ctrl.Close()
			fail("Failed to start enhancement: %v", err)
		}

		if wait, _ := cmd.Flags().GetBool("follow"); wait {
			follow(ctx, ctrl, view)
		}
	},
}

var enhanceStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Asks the running job to stop after its current PR",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		logger := newLogger(cmd)
		cfg := loadConfig(cmd)

		view := newLineView(os.Stdout, os.Stderr)
		ctrl := usecase.NewController(newDashboard(cfg, logger), view, timing(cfg), logger)
		defer ctrl.Close()
		if _, err := ctrl.Init(ctx); err != nil {
			fail("Failed to initialize: %v", err)
		}
		if err := ctrl.StopEnhancement(ctx); err != nil {
			ctrl.Close()
			fail("Failed to stop enhancement: %v", err)
		}

		if wait, _ := cmd.Flags().GetBool("follow"); wait {
			follow(ctx, ctrl, view)
		}
	},
}

var enhanceWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Opens the live enhancement view",
	Long: `Opens an interactive view of the enhancement job. Keys: s start,
x stop, r refresh, m manual close-actor update, q quit. With --plain the
progress is printed line by line until the job ends.`,
	Run: func(cmd *cobra.Command, args []string) {
		logger := newLogger(cmd)
		cfg := loadConfig(cmd)
		api := newDashboard(cfg, logger)

		if plain, _ := cmd.Flags().GetBool("plain"); plain {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			view := newLineView(os.Stdout, os.Stderr)
			ctrl := usecase.NewController(api, view, timing(cfg), logger)
			defer ctrl.Close()
			if _, err := ctrl.Init(ctx); err != nil {
				fail("Failed to initialize: %v", err)
			}
			if s := ctrl.State(); s == domain.StateRunning || s == domain.StateStopping {
				follow(ctx, ctrl, view)
			}
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		bridge := &tui.Bridge{}
		ctrl := usecase.NewController(api, bridge, timing(cfg), logger)
		defer ctrl.Close()
		updater := usecase.NewManualUpdater(api, newLookup(cfg, logger), cfg.Intervals.MissingReload, logger)
		defer updater.Close()

		p := tea.NewProgram(tui.New(ctx, ctrl, updater, bridge), tea.WithAltScreen())
		bridge.Attach(p)
		if _, err := p.Run(); err != nil {
			fail("%v", err)
		}
	},
}

var enhanceMissingCmd = &cobra.Command{
	Use:   "missing",
	Short: "Lists PRs the job could not find a close actor for",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		logger := newLogger(cmd)
		cfg := loadConfig(cmd)

		updater := usecase.NewManualUpdater(newDashboard(cfg, logger), nil, cfg.Intervals.MissingReload, logger)
		records, err := updater.Open(ctx)
		if err != nil {
			fail("Failed to load PRs without a close actor: %v", err)
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			printJSON(records)
			return
		}
		if len(records) == 0 {
			fmt.Println("Every PR has a close actor.")
			return
		}
		for _, rec := range records {
			fmt.Printf("%s#%d\t%s\t%s\n", rec.Repository, rec.PRNumber, rec.State, rec.Title)
		}
	},
}

var enhanceManualCmd = &cobra.Command{
	Use:   "manual-update",
	Short: "Sets close actors by hand for PRs the job could not resolve",
	Long: `Sets close actors for PRs listed by "prdash enhance missing".
Each --set takes owner/repo#number=username; use "unknown" when the actor
cannot be determined. --suggest fills the remaining PRs from GitHub and
--verify checks that every username exists; both need a GitHub token.`,
	Example: `  prdash enhance manual-update --set acme/api#42=octocat --set acme/web#7=unknown`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		logger := newLogger(cmd)
		cfg := loadConfig(cmd)

		sets, _ := cmd.Flags().GetStringArray("set")
		assigned, err := parseAssignments(sets)
		if err != nil {
			fail("%v", err)
		}

		updater := usecase.NewManualUpdater(newDashboard(cfg, logger), newLookup(cfg, logger), cfg.Intervals.MissingReload, logger)
		defer updater.Close()
		records, err := updater.Open(ctx)
		if err != nil {
			fail("Failed to load PRs without a close actor: %v", err)
		}

		actors, unmatched := alignActors(records, assigned)
		if len(unmatched) > 0 {
			fail("not waiting for a close actor: %s", strings.Join(unmatched, ", "))
		}

		if suggest, _ := cmd.Flags().GetBool("suggest"); suggest {
			for i := range records {
				if actors[i] != "" {
					continue
				}
				actor, err := updater.Suggest(ctx, records[i])
				if err != nil {
					logger.Printf("no suggestion for %s#%d: %v\n", records[i].Repository, records[i].PRNumber, err)
					continue
				}
				actors[i] = actor
				fmt.Printf("%s#%d\tsuggested %s\n", records[i].Repository, records[i].PRNumber, actor)
			}
		}

		if verify, _ := cmd.Flags().GetBool("verify"); verify {
			unknown, err := updater.Verify(ctx, actors)
			if err != nil {
				fail("Failed to verify usernames: %v", err)
			}
			if len(unknown) > 0 {
				fail("no such GitHub users: %s", strings.Join(unknown, ", "))
			}
		}

		results, err := updater.Submit(ctx, records, actors)
		if err != nil {
			fail("Failed to update close actors: %v", err)
		}
		fmt.Printf("Updated %d PRs (%d failed).\n", results.Updated, results.Failed)
	},
}

type statusReport struct {
	Status   domain.JobStatus `json:"status"`
	State    domain.State     `json:"state"`
	Mode     render.Mode      `json:"mode"`
	Coverage string           `json:"coverage"`
}

func init() {
	rootCmd.AddCommand(enhanceCmd)
	enhanceCmd.AddCommand(enhanceStatusCmd, enhanceStartCmd, enhanceStopCmd, enhanceWatchCmd, enhanceMissingCmd, enhanceManualCmd)

	enhanceStatusCmd.Flags().Bool("json", false, "Print the status as JSON")
	enhanceStartCmd.Flags().BoolP("follow", "f", false, "Print progress until the job ends")
	enhanceStopCmd.Flags().BoolP("follow", "f", false, "Print progress until the job has stopped")
	enhanceWatchCmd.Flags().Bool("plain", false, "Print progress lines instead of the interactive view")
	enhanceMissingCmd.Flags().Bool("json", false, "Print the list as JSON")
	enhanceManualCmd.Flags().StringArray("set", nil, "Close actor as owner/repo#number=username (repeatable)")
	enhanceManualCmd.Flags().Bool("suggest", false, "Fill PRs without --set from GitHub")
	enhanceManualCmd.Flags().Bool("verify", false, "Check that every username exists on GitHub")
}

func timing(cfg config.Config) usecase.Timing {
	return usecase.Timing{
		Poll:         cfg.Intervals.Poll,
		StartSettle:  cfg.Intervals.StartSettle,
		StopBackstop: cfg.Intervals.StopBackstop,
		Reload:       cfg.Intervals.Reload,
	}
}

// follow blocks until the job ends or ctx is canceled, then prints the
// final panel from a fresh status. It returns at once when the action left
// no job pending, such as a stop with nothing running or an ignored start.
func follow(ctx context.Context, ctrl *usecase.Controller, view *lineView) {
	if jobPending(ctrl) {
		select {
		case <-view.Done():
		case <-ctx.Done():
			return
		}
		ctrl.CheckStatus(ctx)
	}
	fmt.Println()
	fmt.Println(render.Panel(ctrl.ViewModel(), render.Options{}))
}

// jobPending reports whether a job is active or a start request has not
// been confirmed by a poll yet.
func jobPending(ctrl *usecase.Controller) bool {
	switch ctrl.State() {
	case domain.StateRunning, domain.StateStopping:
		return true
	}
	return ctrl.ViewModel().Mode == render.ModeStarting
}

func coverageOf(status domain.JobStatus) float64 {
	if status.ExistingData == nil {
		return 0
	}
	return status.ExistingData.CoveragePercentage
}

func printJSON(v any) {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fail("Failed to marshal results to JSON: %v", err)
	}
	fmt.Println(string(jsonData))
}

// parseAssignments parses owner/repo#number=username pairs keyed by
// "owner/repo#number".
func parseAssignments(sets []string) (map[string]string, error) {
	out := make(map[string]string, len(sets))
	for _, s := range sets {
		key, actor, ok := strings.Cut(s, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --set %q: want owner/repo#number=username", s)
		}
		repo, num, ok := strings.Cut(strings.TrimSpace(key), "#")
		if !ok || repo == "" {
			return nil, fmt.Errorf("invalid --set %q: want owner/repo#number=username", s)
		}
		n, err := strconv.Atoi(num)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid --set %q: bad PR number %q", s, num)
		}
		out[prKey(repo, n)] = strings.TrimSpace(actor)
	}
	return out, nil
}

// alignActors orders assigned actors by record. Keys matching no record
// are returned sorted.
func alignActors(records []domain.MissingPrRecord, assigned map[string]string) ([]string, []string) {
	actors := make([]string, len(records))
	used := make(map[string]bool, len(assigned))
	for i, rec := range records {
		key := prKey(rec.Repository, rec.PRNumber)
		if actor, ok := assigned[key]; ok {
			actors[i] = actor
			used[key] = true
		}
	}
	var unmatched []string
	for key := range assigned {
		if !used[key] {
			unmatched = append(unmatched, key)
		}
	}
	sort.Strings(unmatched)
	return actors, unmatched
}

func prKey(repo string, number int) string {
	return fmt.Sprintf("%s#%d", repo, number)
}
