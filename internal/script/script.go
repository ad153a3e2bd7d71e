// Package script defines the declarative interaction script format: a target
// URL and an ordered list of steps, each naming one browser action.
package script

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid script")

// Action names a step type.
type Action string

const (
	ActionNavigate        Action = "navigate"
	ActionClick           Action = "click"
	ActionFill            Action = "fill"
	ActionSelect          Action = "select"
	ActionWaitFor         Action = "wait_for"
	ActionWaitForFunction Action = "wait_for_function"
	ActionAssert          Action = "assert"
	ActionScreenshot      Action = "screenshot"
)

// Actions lists every supported action in documentation order.
var Actions = []Action{
	ActionNavigate, ActionClick, ActionFill, ActionSelect,
	ActionWaitFor, ActionWaitForFunction, ActionAssert, ActionScreenshot,
}

// Expectation names the predicate an assert step checks.
type Expectation string

const (
	ExpectVisible  Expectation = "visible"
	ExpectHidden   Expectation = "hidden"
	ExpectText     Expectation = "text"     // element text equals value
	ExpectContains Expectation = "contains" // element text contains value
	ExpectValue    Expectation = "value"    // input value equals value
	ExpectTitle    Expectation = "title"    // page title equals value
	ExpectURL      Expectation = "url"      // page URL equals value
)

// PageLevel reports whether the expectation applies to the page rather than
// a located element.
func (e Expectation) PageLevel() bool {
	return e == ExpectTitle || e == ExpectURL
}

// Viewport overrides the browser viewport for one script.
type Viewport struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// Script is a finite ordered list of steps run against one page.
type Script struct {
	Name        string            `yaml:"name" json:"name"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	URL         string            `yaml:"url" json:"url"`
	Timeout     string            `yaml:"timeout,omitempty" json:"timeout,omitempty"` // default step timeout
	Viewport    *Viewport         `yaml:"viewport,omitempty" json:"viewport,omitempty"`
	Vars        map[string]string `yaml:"vars,omitempty" json:"vars,omitempty"`
	TitleLookup *TitleLookup      `yaml:"title_lookup,omitempty" json:"title_lookup,omitempty"`
	Steps       []Step            `yaml:"steps" json:"steps"`

	// Source is the file the script was loaded from, or "builtin:<name>".
	Source string `yaml:"-" json:"source,omitempty"`
}

// TitleLookup defines Var as the display title of a bill ("HR123 - ...")
// fetched from the bill title service before the run. Fields may reference
// vars. A Var already given by vars or --var is not looked up.
type TitleLookup struct {
	Var        string `yaml:"var" json:"var"`
	Congress   string `yaml:"congress" json:"congress"`
	BillType   string `yaml:"bill_type" json:"bill_type"`
	BillNumber string `yaml:"bill_number" json:"bill_number"`
}

// Validate checks every field is set.
func (l *TitleLookup) Validate() error {
	if !varName.MatchString(l.Var) {
		return invalid("title_lookup: var %q is not a variable name", l.Var)
	}
	if l.Congress == "" || l.BillType == "" || l.BillNumber == "" {
		return invalid("title_lookup requires congress, bill_type and bill_number")
	}
	return nil
}

// Step is one browser action.
type Step struct {
	Name     string      `yaml:"name,omitempty" json:"name,omitempty"`
	Action   Action      `yaml:"action" json:"action"`
	Locator  *Locator    `yaml:"locator,omitempty" json:"locator,omitempty"`
	Value    string      `yaml:"value,omitempty" json:"value,omitempty"`
	URL      string      `yaml:"url,omitempty" json:"url,omitempty"`
	Expect   Expectation `yaml:"expect,omitempty" json:"expect,omitempty"`
	Script   string      `yaml:"script,omitempty" json:"script,omitempty"` // JS predicate for wait_for_function
	Path     string      `yaml:"path,omitempty" json:"path,omitempty"`
	FullPage bool        `yaml:"full_page,omitempty" json:"full_page,omitempty"`
	Timeout  string      `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// Load reads and validates a script file.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	s, err := Parse(name, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.Source = path
	return s, nil
}

// Parse decodes and validates a script. defaultName is used when the
// document has no name.
func Parse(defaultName string, data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if s.Name == "" {
		s.Name = defaultName
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate checks the script is runnable.
func (s *Script) Validate() error {
	if s.Name == "" {
		return invalid("name is required")
	}
	if s.URL == "" {
		return invalid("url is required")
	}
	if len(s.Steps) == 0 {
		return invalid("script %q has no steps", s.Name)
	}
	if s.Timeout != "" {
		if _, err := parsePositiveDuration(s.Timeout); err != nil {
			return invalid("timeout: %v", err)
		}
	}
	if s.TitleLookup != nil {
		if err := s.TitleLookup.Validate(); err != nil {
			return err
		}
	}
	if s.Viewport != nil && (s.Viewport.Width <= 0 || s.Viewport.Height <= 0) {
		return invalid("viewport must be positive (got %dx%d)", s.Viewport.Width, s.Viewport.Height)
	}
	for i := range s.Steps {
		if err := s.Steps[i].Validate(); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, s.Steps[i].Action, err)
		}
	}
	return nil
}

// Validate checks a single step.
func (st *Step) Validate() error {
	if st.Timeout != "" {
		if _, err := parsePositiveDuration(st.Timeout); err != nil {
			return invalid("timeout: %v", err)
		}
	}

	needLocator := func() error {
		if st.Locator == nil {
			return invalid("%s requires a locator", st.Action)
		}
		if err := st.Locator.Validate(); err != nil {
			return invalid("%v", err)
		}
		return nil
	}

	switch st.Action {
	case ActionNavigate:
		if st.URL == "" && st.Value == "" {
			return invalid("navigate requires url")
		}
	case ActionClick, ActionWaitFor:
		return needLocator()
	case ActionFill:
		// An empty value is allowed: it clears the field.
		return needLocator()
	case ActionSelect:
		if st.Value == "" {
			return invalid("select requires value")
		}
		return needLocator()
	case ActionWaitForFunction:
		if strings.TrimSpace(st.Script) == "" {
			return invalid("wait_for_function requires script")
		}
	case ActionAssert:
		return st.validateAssert(needLocator)
	case ActionScreenshot:
		if st.Path == "" && st.Value == "" {
			return invalid("screenshot requires path")
		}
	case "":
		return invalid("action is required")
	default:
		return invalid("unknown action %q", st.Action)
	}
	return nil
}

func (st *Step) validateAssert(needLocator func() error) error {
	switch st.Expect {
	case ExpectVisible, ExpectHidden, ExpectText, ExpectValue:
	case ExpectContains:
		if st.Value == "" {
			return invalid("assert contains requires value")
		}
	case ExpectTitle, ExpectURL:
		if st.Value == "" {
			return invalid("assert %s requires value", st.Expect)
		}
		if st.Locator != nil {
			return invalid("assert %s is page-level and takes no locator", st.Expect)
		}
		return nil
	case "":
		return invalid("assert requires expect")
	default:
		return invalid("unknown expectation %q", st.Expect)
	}
	return needLocator()
}

// NavigateURL returns the target of a navigate step.
func (st *Step) NavigateURL() string {
	if st.URL != "" {
		return st.URL
	}
	return st.Value
}

// ScreenshotPath returns the artifact path of a screenshot step.
func (st *Step) ScreenshotPath() string {
	if st.Path != "" {
		return st.Path
	}
	return st.Value
}

// GetTimeout returns the step timeout, falling back when unset.
func (st *Step) GetTimeout(fallback time.Duration) time.Duration {
	if d, err := parsePositiveDuration(st.Timeout); err == nil {
		return d
	}
	return fallback
}

// GetTimeout returns the script-wide step timeout, falling back when unset.
func (s *Script) GetTimeout(fallback time.Duration) time.Duration {
	if d, err := parsePositiveDuration(s.Timeout); err == nil {
		return d
	}
	return fallback
}

// Describe renders a one-line human description of the step.
func (st *Step) Describe() string {
	if st.Name != "" {
		return st.Name
	}
	switch st.Action {
	case ActionNavigate:
		return "navigate " + st.NavigateURL()
	case ActionClick, ActionWaitFor:
		return fmt.Sprintf("%s %s", st.Action, st.Locator)
	case ActionFill, ActionSelect:
		return fmt.Sprintf("%s %s = %q", st.Action, st.Locator, st.Value)
	case ActionWaitForFunction:
		return "wait_for_function " + oneLine(st.Script, 60)
	case ActionAssert:
		if st.Expect.PageLevel() {
			return fmt.Sprintf("assert page %s == %q", st.Expect, st.Value)
		}
		switch st.Expect {
		case ExpectVisible, ExpectHidden:
			return fmt.Sprintf("assert %s is %s", st.Locator, st.Expect)
		default:
			return fmt.Sprintf("assert %s %s %q", st.Locator, st.Expect, st.Value)
		}
	case ActionScreenshot:
		return "screenshot " + st.ScreenshotPath()
	}
	return string(st.Action)
}

func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > max {
		return s[:max-3] + "..."
	}
	return s
}

func parsePositiveDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", s)
	}
	return d, nil
}

var (
	varRef  = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)
	varName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

func (s *Script) mergeVars(overrides map[string]string) map[string]string {
	vars := make(map[string]string, len(s.Vars)+len(overrides))
	for k, v := range s.Vars {
		vars[k] = v
	}
	for k, v := range overrides {
		vars[k] = v
	}
	return vars
}

// expander substitutes ${name} references and collects undefined names.
type expander struct {
	vars    map[string]string
	missing []string
}

func (e *expander) sub(in string) string {
	return e.replace(in, func(v string) string { return v })
}

// js substitutes each value as a JavaScript string literal, so predicates
// reference variables without quoting them.
func (e *expander) js(in string) string {
	return e.replace(in, func(v string) string {
		b, _ := json.Marshal(v)
		return string(b)
	})
}

func (e *expander) replace(in string, quote func(string) string) string {
	return varRef.ReplaceAllStringFunc(in, func(ref string) string {
		name := varRef.FindStringSubmatch(ref)[1]
		v, ok := e.vars[name]
		if !ok {
			e.missing = append(e.missing, name)
			return ref
		}
		return quote(v)
	})
}

func (e *expander) err() error {
	if len(e.missing) == 0 {
		return nil
	}
	sort.Strings(e.missing)
	return invalid("undefined variables %s (pass --var name=value)", strings.Join(dedupe(e.missing), ", "))
}

// Expand returns a copy of the script with ${name} references substituted.
// overrides take precedence over the script's own vars. Referencing an
// undefined variable is an error. Inside wait_for_function scripts a
// reference expands to a quoted JavaScript string.
func (s *Script) Expand(overrides map[string]string) (*Script, error) {
	e := &expander{vars: s.mergeVars(overrides)}

	out := *s
	out.Vars = e.vars
	out.URL = e.sub(s.URL)
	if s.TitleLookup != nil {
		lk := e.lookup(s.TitleLookup)
		out.TitleLookup = &lk
	}
	out.Steps = make([]Step, len(s.Steps))
	for i, st := range s.Steps {
		st.Value = e.sub(st.Value)
		st.URL = e.sub(st.URL)
		st.Script = e.js(st.Script)
		st.Path = e.sub(st.Path)
		if st.Locator != nil {
			loc := *st.Locator
			loc.Role = e.sub(loc.Role)
			loc.Name = e.sub(loc.Name)
			loc.Label = e.sub(loc.Label)
			loc.Placeholder = e.sub(loc.Placeholder)
			loc.TestID = e.sub(loc.TestID)
			loc.Text = e.sub(loc.Text)
			loc.CSS = e.sub(loc.CSS)
			loc.HasText = e.sub(loc.HasText)
			st.Locator = &loc
		}
		out.Steps[i] = st
	}

	if err := e.err(); err != nil {
		return nil, err
	}
	return &out, nil
}

func (e *expander) lookup(l *TitleLookup) TitleLookup {
	return TitleLookup{
		Var:        l.Var,
		Congress:   e.sub(l.Congress),
		BillType:   e.sub(l.BillType),
		BillNumber: e.sub(l.BillNumber),
	}
}

// PendingLookup returns the expanded title lookup when the run must perform
// it, or nil when the script has none or its variable is already defined.
func (s *Script) PendingLookup(overrides map[string]string) (*TitleLookup, error) {
	if s.TitleLookup == nil {
		return nil, nil
	}
	e := &expander{vars: s.mergeVars(overrides)}
	if _, ok := e.vars[s.TitleLookup.Var]; ok {
		return nil, nil
	}
	lk := e.lookup(s.TitleLookup)
	if err := e.err(); err != nil {
		return nil, err
	}
	return &lk, nil
}

// CheckVars reports undefined variables the way a run would, counting the
// title lookup's variable as defined.
func (s *Script) CheckVars(overrides map[string]string) error {
	lk, err := s.PendingLookup(overrides)
	if err != nil {
		return err
	}
	if lk != nil {
		vars := make(map[string]string, len(overrides)+1)
		for k, v := range overrides {
			vars[k] = v
		}
		vars[lk.Var] = ""
		overrides = vars
	}
	_, err = s.Expand(overrides)
	return err
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}

// WithBaseURL returns a copy whose script URL and absolute navigate URLs have
// their scheme and host replaced by base. Relative navigate URLs resolve
// against the (rewritten) script URL.
func (s *Script) WithBaseURL(base string) (*Script, error) {
	out := *s
	out.Steps = append([]Step(nil), s.Steps...)

	var b *url.URL
	if base != "" {
		var err error
		b, err = url.Parse(base)
		if err != nil || b.Scheme == "" || b.Host == "" {
			return nil, fmt.Errorf("invalid base url %q", base)
		}
	}

	rebase := func(raw string) (string, error) {
		u, err := url.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("invalid url %q: %w", raw, err)
		}
		if b != nil && u.IsAbs() {
			u.Scheme = b.Scheme
			u.Host = b.Host
		}
		return u.String(), nil
	}

	root, err := rebase(s.URL)
	if err != nil {
		return nil, err
	}
	out.URL = root
	rootURL, _ := url.Parse(root)

	for i := range out.Steps {
		st := &out.Steps[i]
		if st.Action != ActionNavigate {
			continue
		}
		target, err := rebase(st.NavigateURL())
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		if u, _ := url.Parse(target); u != nil && !u.IsAbs() {
			target = rootURL.ResolveReference(u).String()
		}
		st.URL, st.Value = target, ""
	}
	return &out, nil
}
