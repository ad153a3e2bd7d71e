package main

import (
	"fmt"
	"time"

	"uiverify/internal/report"
	"uiverify/internal/store"

	"github.com/spf13/cobra"
)

var (
	historyScript string
	historyLimit  int
	historyID     string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent runs from the history database",
	Args:  cobra.NoArgs,
	RunE:  showHistory,
}

func init() {
	historyCmd.Flags().StringVarP(&historyScript, "script", "s", "", "Only runs of this script")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum runs to show")
	historyCmd.Flags().StringVar(&historyID, "id", "", "Show the full report of one run")
}

func showHistory(cmd *cobra.Command, args []string) error {
	if cfg.History.Path == "" {
		return fmt.Errorf("run history is disabled (set history.path)")
	}
	h, err := store.Open(cfg.History.Path)
	if err != nil {
		return err
	}
	defer h.Close()

	out := cmd.OutOrStdout()
	if historyID != "" {
		return showRun(cmd, h, historyID)
	}

	var runs []store.Run
	if historyScript != "" {
		runs, err = h.ByScript(cmd.Context(), historyScript, historyLimit)
	} else {
		runs, err = h.Recent(cmd.Context(), historyLimit)
	}
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded yet.")
		return nil
	}
	fmt.Fprintln(out, historyTable(runs).View(report.DefaultStyles()))
	return nil
}

// showRun prints one stored run the way "run --verbose" summarizes it.
func showRun(cmd *cobra.Command, h *store.History, id string) error {
	run, err := h.Get(cmd.Context(), id)
	if err != nil {
		return err
	}
	rep, err := run.Report()
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), report.Summary([]*report.Report{rep}, report.DefaultStyles(), true))
	return nil
}

func historyTable(runs []store.Run) *report.Table {
	t := report.NewTable("Run history", "STARTED", "SCRIPT", "STATUS", "STEPS", "DURATION", "ERROR")
	for _, r := range runs {
		steps := fmt.Sprintf("%d/%d", r.StepsPassed, r.StepsTotal)
		errText := r.ErrorKind
		if r.FailedStep != nil {
			errText = fmt.Sprintf("%s at step %d", r.ErrorKind, *r.FailedStep)
		}
		t.AddRow(
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Script,
			string(r.Status),
			steps,
			(time.Duration(r.DurationMs) * time.Millisecond).String(),
			errText,
		)
	}
	return t
}
