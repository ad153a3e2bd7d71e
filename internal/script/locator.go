package script

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// LocatorKind names the strategy used to resolve an element.
type LocatorKind string

const (
	ByRole        LocatorKind = "role"
	ByLabel       LocatorKind = "label"
	ByPlaceholder LocatorKind = "placeholder"
	ByTestID      LocatorKind = "test_id"
	ByText        LocatorKind = "text"
	ByCSS         LocatorKind = "css"
)

// Locator is a rule for resolving a UI element at the moment it is needed.
// Exactly one of the strategy fields is set. It is never cached: every use
// re-evaluates it against the live page.
type Locator struct {
	Role        string `yaml:"role,omitempty" json:"role,omitempty"`
	Name        string `yaml:"name,omitempty" json:"name,omitempty"` // accessible name, role only
	Label       string `yaml:"label,omitempty" json:"label,omitempty"`
	Placeholder string `yaml:"placeholder,omitempty" json:"placeholder,omitempty"`
	TestID      string `yaml:"test_id,omitempty" json:"test_id,omitempty"`
	Text        string `yaml:"text,omitempty" json:"text,omitempty"`
	CSS         string `yaml:"css,omitempty" json:"css,omitempty"`

	// HasText filters CSS matches by contained text. Set from a trailing
	// :has-text("...") in the CSS string or directly.
	HasText string `yaml:"has_text,omitempty" json:"has_text,omitempty"`

	Exact bool `yaml:"exact,omitempty" json:"exact,omitempty"`
	First bool `yaml:"first,omitempty" json:"first,omitempty"`
	Nth   *int `yaml:"nth,omitempty" json:"nth,omitempty"`
}

// Kind returns the single strategy in use, or an error when zero or several
// are set.
func (l Locator) Kind() (LocatorKind, error) {
	var kinds []LocatorKind
	if l.Role != "" {
		kinds = append(kinds, ByRole)
	}
	if l.Label != "" {
		kinds = append(kinds, ByLabel)
	}
	if l.Placeholder != "" {
		kinds = append(kinds, ByPlaceholder)
	}
	if l.TestID != "" {
		kinds = append(kinds, ByTestID)
	}
	if l.Text != "" {
		kinds = append(kinds, ByText)
	}
	if l.CSS != "" {
		kinds = append(kinds, ByCSS)
	}
	switch len(kinds) {
	case 0:
		return "", fmt.Errorf("locator has no strategy (want one of role, label, placeholder, test_id, text, css)")
	case 1:
		return kinds[0], nil
	default:
		return "", fmt.Errorf("locator sets multiple strategies: %v", kinds)
	}
}

// Value returns the query string for the active strategy.
func (l Locator) Value() string {
	kind, _ := l.Kind()
	switch kind {
	case ByRole:
		return l.Role
	case ByLabel:
		return l.Label
	case ByPlaceholder:
		return l.Placeholder
	case ByTestID:
		return l.TestID
	case ByText:
		return l.Text
	case ByCSS:
		return l.CSS
	}
	return ""
}

// Validate checks the locator is well formed.
func (l Locator) Validate() error {
	kind, err := l.Kind()
	if err != nil {
		return err
	}
	if l.Name != "" && kind != ByRole {
		return fmt.Errorf("name is only valid with a role locator")
	}
	if l.HasText != "" && kind != ByCSS {
		return fmt.Errorf("has_text is only valid with a css locator")
	}
	if l.Nth != nil {
		if *l.Nth < 0 {
			return fmt.Errorf("nth must not be negative (got %d)", *l.Nth)
		}
		if l.First {
			return fmt.Errorf("first and nth are mutually exclusive")
		}
	}
	return nil
}

// Strict reports whether more than one visible match is an error.
func (l Locator) Strict() bool {
	return !l.First && l.Nth == nil
}

// String renders the locator in selector-string form.
func (l Locator) String() string {
	kind, err := l.Kind()
	if err != nil {
		return "<invalid locator>"
	}
	var b strings.Builder
	switch kind {
	case ByRole:
		b.WriteString("role=" + l.Role)
		if l.Name != "" {
			fmt.Fprintf(&b, "[name=%q]", l.Name)
		}
	case ByCSS:
		b.WriteString("css=" + l.CSS)
		if l.HasText != "" {
			fmt.Fprintf(&b, ":has-text(%q)", l.HasText)
		}
	case ByTestID:
		b.WriteString("testid=" + l.TestID)
	default:
		b.WriteString(string(kind) + "=" + l.Value())
	}
	if l.Exact {
		b.WriteString(" exact")
	}
	if l.First {
		b.WriteString(" >> first")
	}
	if l.Nth != nil {
		fmt.Fprintf(&b, " >> nth=%d", *l.Nth)
	}
	return b.String()
}

var (
	roleSelectorRe = regexp.MustCompile(`^([a-z]+)(?:\[name=("(?:[^"\\]|\\.)*"|'[^']*'|[^\]]*)\])?$`)
	hasTextRe      = regexp.MustCompile(`^(.*):has-text\(("(?:[^"\\]|\\.)*"|'[^']*')\)$`)
	nthSuffixRe    = regexp.MustCompile(`\s*>>\s*nth=(\d+)$`)
	firstSuffixRe  = regexp.MustCompile(`\s*>>\s*first$`)
)

// ParseLocator parses a selector string. Supported prefixes are css=, text=,
// label=, placeholder=, testid= and role=; a string without a known prefix
// is CSS. Suffixes ">> first" and ">> nth=N" pick one of several matches.
func ParseLocator(s string) (Locator, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Locator{}, fmt.Errorf("empty selector")
	}

	var loc Locator
	if m := nthSuffixRe.FindStringSubmatchIndex(s); m != nil {
		n, err := strconv.Atoi(s[m[2]:m[3]])
		if err != nil {
			return Locator{}, fmt.Errorf("bad nth in %q: %w", s, err)
		}
		loc.Nth = &n
		s = s[:m[0]]
	} else if firstSuffixRe.MatchString(s) {
		loc.First = true
		s = firstSuffixRe.ReplaceAllString(s, "")
	}

	prefix, rest, found := strings.Cut(s, "=")
	if !found || strings.ContainsAny(prefix, " .#[>:") {
		prefix, rest = "css", s
	}

	switch prefix {
	case "css":
		loc.CSS = rest
		if m := hasTextRe.FindStringSubmatch(rest); m != nil {
			text, err := unquote(m[2])
			if err != nil {
				return Locator{}, fmt.Errorf("bad :has-text in %q: %w", s, err)
			}
			loc.CSS = strings.TrimSpace(m[1])
			loc.HasText = text
		}
	case "text":
		loc.Text, loc.Exact = unquoteExact(rest)
	case "label":
		loc.Label, loc.Exact = unquoteExact(rest)
	case "placeholder":
		loc.Placeholder, loc.Exact = unquoteExact(rest)
	case "testid", "test_id", "data-testid":
		loc.TestID, _ = unquoteExact(rest)
	case "role":
		m := roleSelectorRe.FindStringSubmatch(rest)
		if m == nil {
			return Locator{}, fmt.Errorf("bad role selector %q: want role=<role>[name=\"...\"]", s)
		}
		loc.Role = m[1]
		if m[2] != "" {
			loc.Name, _ = unquoteExact(m[2])
		}
	default:
		loc.CSS = s
	}

	if prefix == "css" && loc.CSS == "" {
		if loc.HasText == "" {
			return Locator{}, fmt.Errorf("empty css selector in %q", s)
		}
		loc.CSS = "*"
	}
	return loc, loc.Validate()
}

// unquoteExact strips surrounding quotes. Quoted values match exactly, like
// Playwright's text="..." form.
func unquoteExact(s string) (string, bool) {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		v, err := unquote(s)
		if err == nil {
			return v, true
		}
	}
	return s, false
}

func unquote(s string) (string, error) {
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return s[1 : len(s)-1], nil
	}
	return strconv.Unquote(s)
}

// UnmarshalYAML accepts either a mapping or a selector string.
func (l *Locator) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		parsed, err := ParseLocator(node.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		*l = parsed
		return nil
	}

	type plain Locator
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*l = Locator(p)
	if l.CSS != "" && l.HasText == "" {
		if m := hasTextRe.FindStringSubmatch(l.CSS); m != nil {
			if text, err := unquote(m[2]); err == nil {
				l.CSS = strings.TrimSpace(m[1])
				l.HasText = text
				if l.CSS == "" {
					l.CSS = "*"
				}
			}
		}
	}
	return nil
}
