package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"uiverify/internal/browser"
	"uiverify/internal/config"
	"uiverify/internal/govinfo"
	"uiverify/internal/logging"
	"uiverify/internal/metrics"
	"uiverify/internal/report"
	"uiverify/internal/runner"
	"uiverify/internal/script"
	"uiverify/internal/store"
	"uiverify/internal/watch"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// errRunsFailed is returned when at least one script failed; the summary has
// already been printed.
var errRunsFailed = errors.New("one or more runs failed")

// run flags
var (
	runHeadless     bool
	runBaseURL      string
	runTimeout      time.Duration
	runReport       string
	runParallel     int
	runWatch        bool
	runMetricsFile  string
	runVars         []string
	runArtifactsDir string
	runShotOnFail   bool
)

var runCmd = &cobra.Command{
	Use:   "run [script|builtin ...]",
	Short: "Run interaction scripts against the target page",
	Long: `Runs each script in a fresh headless browser session. Steps run in order
and the first failing step ends the script; the remaining steps are reported
as skipped. The command exits non-zero when any script fails.

With no arguments every built-in script runs.

Examples:
  uiverify run create-atom
  uiverify run scripts/*.yaml --base-url http://localhost:4173 --parallel 2
  uiverify run bill-title-derivation --var bill_title="To amend title 5"`,
	RunE: runScripts,
}

func init() {
	runCmd.Flags().BoolVar(&runHeadless, "headless", true, "Run the browser without a window")
	runCmd.Flags().StringVar(&runBaseURL, "base-url", "", "Replace scheme and host of every script URL")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Default per-step timeout (overrides config)")
	runCmd.Flags().StringVar(&runReport, "report", "", "Write a JSON report to this path")
	runCmd.Flags().IntVarP(&runParallel, "parallel", "p", 0, "Scripts to run at once (overrides config)")
	runCmd.Flags().BoolVarP(&runWatch, "watch", "w", false, "Re-run a script whenever its file changes")
	runCmd.Flags().StringVar(&runMetricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile")
	runCmd.Flags().StringArrayVar(&runVars, "var", nil, "Script variable as name=value (repeatable)")
	runCmd.Flags().StringVar(&runArtifactsDir, "artifacts-dir", "", "Directory for screenshots (overrides config)")
	runCmd.Flags().BoolVar(&runShotOnFail, "screenshot-on-failure", false, "Capture the page when a step fails")
}

// browserConfig maps the loaded config onto the driver's.
func browserConfig(c *config.Config) browser.Config {
	return browser.Config{
		Bin:               c.Browser.Bin,
		LaunchFlags:       c.Browser.LaunchFlags,
		DebuggerURL:       c.Browser.DebuggerURL,
		Headless:          c.Browser.Headless,
		ViewportWidth:     c.Browser.ViewportWidth,
		ViewportHeight:    c.Browser.ViewportHeight,
		NavigationTimeout: c.GetNavigationTimeout(),
		SlowMotion:        c.GetSlowMotion(),
		PollInterval:      c.GetPollInterval(),
	}
}

// runnerOptions maps the loaded config onto runner options.
func runnerOptions(c *config.Config, vars map[string]string) runner.Options {
	return runner.Options{
		StepTimeout:         c.GetStepTimeout(),
		PollInterval:        c.GetPollInterval(),
		ArtifactsDir:        c.Run.ArtifactsDir,
		ScreenshotOnFailure: c.Run.ScreenshotOnFailure,
		BaseURL:             c.Run.BaseURL,
		Vars:                vars,
	}
}

// applyRunFlags folds explicitly set flags into the config.
func applyRunFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("headless") {
		c.Browser.Headless = runHeadless
	}
	if runBaseURL != "" {
		c.Run.BaseURL = runBaseURL
	}
	if runTimeout > 0 {
		c.Run.StepTimeout = runTimeout.String()
	}
	if runReport != "" {
		c.Run.ReportPath = runReport
	}
	if runParallel > 0 {
		c.Run.Parallel = runParallel
	}
	if runMetricsFile != "" {
		c.Run.MetricsFile = runMetricsFile
	}
	if runArtifactsDir != "" {
		c.Run.ArtifactsDir = runArtifactsDir
	}
	if flags.Changed("screenshot-on-failure") {
		c.Run.ScreenshotOnFailure = runShotOnFail
	}
}

// parseVars turns name=value pairs into a map.
func parseVars(pairs []string) (map[string]string, error) {
	vars := make(map[string]string, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --var %q: want name=value", p)
		}
		vars[name] = value
	}
	return vars, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// resolveScripts loads every argument, or all built-ins when there are none.
func resolveScripts(args []string) ([]*script.Script, error) {
	if len(args) == 0 {
		return script.Builtin()
	}
	scripts := make([]*script.Script, 0, len(args))
	for _, arg := range args {
		s, err := script.Resolve(arg)
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, s)
	}
	return scripts, nil
}

// openHistory opens the run history, or returns nil when it is disabled.
// Failing to open it only disables it.
func openHistory(c *config.Config) *store.History {
	if c.History.Path == "" {
		return nil
	}
	h, err := store.Open(c.History.Path)
	if err != nil {
		logging.BootWarn("run history disabled", zap.String("path", c.History.Path), zap.Error(err))
		return nil
	}
	logging.Boot("run history enabled", zap.String("path", h.Path()))
	return h
}

func runScripts(cmd *cobra.Command, args []string) error {
	applyRunFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	vars, err := parseVars(runVars)
	if err != nil {
		return err
	}
	scripts, err := resolveScripts(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	options := []runner.Option{
		runner.WithTitles(govinfo.NewClient(cfg.Govinfo.Upstream, cfg.GetGovinfoTimeout())),
	}
	if h := openHistory(cfg); h != nil {
		defer h.Close()
		options = append(options, runner.WithHistory(h))
	}
	r := runner.New(runner.FromLauncher(browser.NewLauncher(browserConfig(cfg))), runnerOptions(cfg, vars), options...)

	out := cmd.OutOrStdout()
	failed := executeRuns(ctx, r, scripts, out)
	if !runWatch {
		if failed {
			return errRunsFailed
		}
		return nil
	}
	return watchScripts(ctx, r, scripts, out)
}

// executeRuns runs scripts, prints the summary and writes the configured
// artifacts. It reports whether any run failed.
func executeRuns(ctx context.Context, r *runner.Runner, scripts []*script.Script, out io.Writer) bool {
	parallel := cfg.Run.Parallel
	if parallel < 1 {
		parallel = 1
	}
	logger.Info("running scripts", zap.Int("count", len(scripts)), zap.Int("parallel", parallel))

	reports, runErr := r.RunAll(ctx, scripts, parallel)
	fmt.Fprint(out, report.Summary(reports, report.DefaultStyles(), verbose))

	if cfg.Run.ReportPath != "" {
		if err := report.WriteFile(cfg.Run.ReportPath, reports); err != nil {
			logger.Error("failed to write report", zap.Error(err))
		} else {
			logger.Info("report written", zap.String("path", cfg.Run.ReportPath))
		}
	}
	if cfg.Run.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.Run.MetricsFile); err != nil {
			logger.Error("failed to write metrics", zap.Error(err))
		}
	}
	return runErr != nil
}

// watchScripts re-runs a script each time its file changes, until ctx ends.
func watchScripts(ctx context.Context, r *runner.Runner, scripts []*script.Script, out io.Writer) error {
	bySource := make(map[string]string)
	var paths []string
	for _, s := range scripts {
		if strings.HasPrefix(s.Source, "builtin:") || s.Source == "" {
			continue
		}
		abs, err := filepath.Abs(s.Source)
		if err != nil {
			return err
		}
		bySource[abs] = s.Source
		paths = append(paths, abs)
	}
	if len(paths) == 0 {
		return fmt.Errorf("--watch needs at least one script file; built-in scripts cannot be watched")
	}

	// runs triggered by the watcher are serialized
	var mu sync.Mutex
	log := logging.Get(logging.CategoryWatch)
	w, err := watch.New(paths, func(ctx context.Context, path string) {
		mu.Lock()
		defer mu.Unlock()
		s, err := script.Load(bySource[path])
		if err != nil {
			fmt.Fprintf(out, "%s %v\n", report.DefaultStyles().Failed.Render("invalid"), err)
			return
		}
		executeRuns(ctx, r, []*script.Script{s}, out)
	})
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}

	fmt.Fprintf(out, "Watching %d script(s); press Ctrl+C to stop.\n", len(paths))
	<-ctx.Done()
	w.Stop()

	stats := w.GetStats()
	log.Info("watch stopped",
		zap.Int("events", stats.Events),
		zap.Int("reruns", stats.Triggered),
		zap.Int("errors", stats.Errors),
		zap.String("last_path", stats.LastEventPath))
	return nil
}
