// Package main implements the uiverify CLI.
package main

import (
	"fmt"
	"os"

	"uiverify/internal/config"
	"uiverify/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// Loaded in PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "uiverify",
	Short: "Declarative headless-browser checks for the Atomic UX front-end",
	Long: `uiverify drives a headless Chromium through interaction scripts: it
opens the target page, performs each step (click, fill, select, wait, assert,
screenshot) and stops at the first step that fails.

Scripts are YAML files or one of the built-in scenarios (see "uiverify list").`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <script> [script...]",
	Short: "Check that scripts parse and are runnable",
	Args:  cobra.MinimumNArgs(1),
	RunE:  validateScripts,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the built-in scripts",
	Args:  cobra.NoArgs,
	RunE:  listBuiltins,
}

var describeCmd = &cobra.Command{
	Use:   "describe <script>",
	Short: "Render a script's steps as markdown",
	Args:  cobra.ExactArgs(1),
	RunE:  describeScript,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Config file")

	describeCmd.Flags().BoolVar(&describePlain, "plain", false, "Print raw markdown instead of rendering it")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(describeCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(serveGovinfoCmd)
}

// setup loads the config and initializes logging.
func setup() error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", configPath, err)
	}

	opts := logging.Options{
		Level:      loaded.Logging.Level,
		Format:     loaded.Logging.Format,
		Categories: loaded.Logging.Categories,
	}
	if verbose {
		opts.Level = "debug"
	}
	if err := logging.Init(opts); err != nil {
		return err
	}

	cfg = loaded
	logger = logging.Get(logging.CategoryBoot)
	logging.Boot("config loaded", zap.String("path", configPath), zap.String("level", opts.Level))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
