package main

import (
	"fmt"
	"strings"

	"uiverify/internal/report"
	"uiverify/internal/script"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

var describePlain bool

// validateScripts parses every argument and reports each problem. It fails
// when any script is invalid.
func validateScripts(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	styles := report.DefaultStyles()
	bad := 0
	for _, arg := range args {
		s, err := script.Resolve(arg)
		if err == nil {
			err = s.CheckVars(nil)
		}
		if err != nil {
			bad++
			fmt.Fprintf(out, "%s %s: %v\n", styles.Failed.Render("invalid"), arg, err)
			continue
		}
		fmt.Fprintf(out, "%s %s (%d steps)\n", styles.Passed.Render("ok"), s.Name, len(s.Steps))
	}
	if bad > 0 {
		return fmt.Errorf("%d of %d scripts invalid", bad, len(args))
	}
	return nil
}

func listBuiltins(cmd *cobra.Command, args []string) error {
	scripts, err := script.Builtin()
	if err != nil {
		return err
	}
	t := report.NewTable("Built-in scripts", "NAME", "STEPS", "DESCRIPTION")
	for _, s := range scripts {
		t.AddRow(s.Name, fmt.Sprint(len(s.Steps)), s.Description)
	}
	fmt.Fprintln(cmd.OutOrStdout(), t.View(report.DefaultStyles()))
	return nil
}

func describeScript(cmd *cobra.Command, args []string) error {
	s, err := script.Resolve(args[0])
	if err != nil {
		return err
	}
	md := describeMarkdown(s)
	if describePlain {
		fmt.Fprint(cmd.OutOrStdout(), md)
		return nil
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	rendered, err := renderer.Render(md)
	if err != nil {
		return fmt.Errorf("failed to render markdown: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), rendered)
	return nil
}

// describeMarkdown renders a script as a markdown document.
func describeMarkdown(s *script.Script) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", s.Name)
	if s.Description != "" {
		sb.WriteString(s.Description + "\n\n")
	}
	fmt.Fprintf(&sb, "- **URL:** `%s`\n", s.URL)
	if s.Source != "" {
		fmt.Fprintf(&sb, "- **Source:** `%s`\n", s.Source)
	}
	if s.Timeout != "" {
		fmt.Fprintf(&sb, "- **Step timeout:** %s\n", s.Timeout)
	}
	if s.Viewport != nil {
		fmt.Fprintf(&sb, "- **Viewport:** %dx%d\n", s.Viewport.Width, s.Viewport.Height)
	}

	if lk := s.TitleLookup; lk != nil {
		fmt.Fprintf(&sb, "- **Title lookup:** `%s` from %s %s %s\n", lk.Var, lk.Congress, lk.BillType, lk.BillNumber)
	}

	if len(s.Vars) > 0 {
		sb.WriteString("\n## Variables\n\n| Name | Default |\n|---|---|\n")
		for _, name := range sortedKeys(s.Vars) {
			fmt.Fprintf(&sb, "| `%s` | %s |\n", name, mdCell(s.Vars[name]))
		}
	}

	sb.WriteString("\n## Steps\n\n")
	fmt.Fprintf(&sb, "0. navigate `%s`\n", s.URL)
	for i := range s.Steps {
		st := &s.Steps[i]
		line := mdEscaper.Replace(st.Describe())
		if st.Timeout != "" {
			line += fmt.Sprintf(" _(timeout %s)_", st.Timeout)
		}
		fmt.Fprintf(&sb, "%d. %s\n", i+1, line)
	}
	return sb.String()
}

var mdEscaper = strings.NewReplacer("*", `\*`, "_", `\_`, "`", "\\`", "[", `\[`, "]", `\]`)

func mdCell(s string) string {
	return strings.ReplaceAll(mdEscaper.Replace(s), "|", `\|`)
}
