package report

import (
	"fmt"
	"strings"
	"time"
)

// Summary renders a human-readable outcome for each report followed by a
// totals line.
func Summary(reports []*Report, styles Styles, verbose bool) string {
	var sb strings.Builder
	failed := 0
	for _, r := range reports {
		if !r.Passed() {
			failed++
		}
		writeRun(&sb, r, styles, verbose)
	}

	total := fmt.Sprintf("%d run(s): %d passed, %d failed", len(reports), len(reports)-failed, failed)
	if failed > 0 {
		sb.WriteString(styles.Failed.Render(total))
	} else {
		sb.WriteString(styles.Passed.Render(total))
	}
	sb.WriteString("\n")
	return sb.String()
}

func writeRun(sb *strings.Builder, r *Report, styles Styles, verbose bool) {
	passed, failed, skipped := r.Counts()
	fmt.Fprintf(sb, "%s %s %s\n",
		styles.Status(r.Status).Render(strings.ToUpper(string(r.Status))),
		styles.Bold.Render(r.Script),
		styles.Muted.Render(fmt.Sprintf("(%s, %d passed, %d failed, %d skipped)",
			formatDuration(r.DurationMs), passed, failed, skipped)))

	for _, st := range r.Steps {
		if !verbose && st.Status == StatusPassed {
			continue
		}
		fmt.Fprintf(sb, "  %s %s %s\n",
			styles.Status(st.Status).Render(stepMark(st.Status)),
			styles.Muted.Render(fmt.Sprintf("%2d", st.Index)),
			st.Description)
		if st.Error != "" {
			fmt.Fprintf(sb, "       %s\n", styles.Failed.Render(st.Error))
		}
	}
	if r.Error != "" && r.FailedStep == nil {
		fmt.Fprintf(sb, "  %s\n", styles.Failed.Render(r.Error))
	}
	for _, shot := range r.Screenshots {
		fmt.Fprintf(sb, "  %s %s\n", styles.Info.Render("screenshot"), shot)
	}
	if verbose {
		for _, c := range r.Console {
			fmt.Fprintf(sb, "  %s %s\n", styles.Muted.Render("console."+c.Type), c.Text)
		}
	}
}

func stepMark(s Status) string {
	switch s {
	case StatusPassed:
		return "ok  "
	case StatusFailed:
		return "FAIL"
	default:
		return "skip"
	}
}

func formatDuration(ms int64) string {
	return (time.Duration(ms) * time.Millisecond).Round(time.Millisecond).String()
}
