// Package runner executes interaction scripts: it opens a browser session,
// performs each step in order, stops at the first failure and always tears
// the session down.
package runner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"uiverify/internal/browser"
	"uiverify/internal/govinfo"
	"uiverify/internal/logging"
	"uiverify/internal/metrics"
	"uiverify/internal/report"
	"uiverify/internal/script"
	"uiverify/internal/wait"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Page is the browser surface a script runs against.
type Page interface {
	Navigate(ctx context.Context, url string) error
	SetViewport(ctx context.Context, width, height int) error
	Click(ctx context.Context, loc script.Locator) error
	Fill(ctx context.Context, loc script.Locator, text string) error
	SelectOption(ctx context.Context, loc script.Locator, value string) error
	WaitVisible(ctx context.Context, loc script.Locator) error
	WaitFunction(ctx context.Context, js string) error

	// Single evaluations, no waiting.
	Visible(ctx context.Context, loc script.Locator) (bool, error)
	Text(ctx context.Context, loc script.Locator) (string, error)
	Value(ctx context.Context, loc script.Locator) (string, error)
	Title(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)

	Screenshot(ctx context.Context, path string, fullPage bool) error
	Console() []browser.ConsoleMessage
	Close() error
}

// Opener starts a fresh session for one run.
type Opener func(ctx context.Context) (Page, error)

// FromLauncher adapts a browser launcher.
func FromLauncher(l *browser.Launcher) Opener {
	return func(ctx context.Context) (Page, error) {
		s, err := l.Open(ctx)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Recorder persists finished runs.
type Recorder interface {
	Record(ctx context.Context, rep *report.Report) error
}

// TitleSource looks up bill titles for scripts with a title_lookup.
type TitleSource interface {
	FetchTitle(ctx context.Context, congress, billType, number string) (string, error)
}

// Options tune a runner.
type Options struct {
	StepTimeout         time.Duration
	PollInterval        time.Duration
	ArtifactsDir        string
	ScreenshotOnFailure bool
	BaseURL             string
	Vars                map[string]string
}

func (o Options) stepTimeout() time.Duration {
	if o.StepTimeout <= 0 {
		return 5 * time.Second
	}
	return o.StepTimeout
}

// Runner executes scripts. It is safe for concurrent use; every run opens
// its own session.
type Runner struct {
	open    Opener
	opts    Options
	history Recorder
	titles  TitleSource
	now     func() time.Time
	newID   func() string
}

// Option configures a Runner.
type Option func(*Runner)

// WithHistory records every finished run.
func WithHistory(r Recorder) Option {
	return func(rn *Runner) { rn.history = r }
}

// WithTitles resolves title_lookup variables through t.
func WithTitles(t TitleSource) Option {
	return func(rn *Runner) { rn.titles = t }
}

// New creates a runner.
func New(open Opener, opts Options, options ...Option) *Runner {
	r := &Runner{
		open:  open,
		opts:  opts,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, o := range options {
		o(r)
	}
	return r
}

// Run executes s and returns its report. The returned error is the run's
// failure (a *StepError once the session is open); the report is returned in
// every case.
func (r *Runner) Run(ctx context.Context, s *script.Script) (*report.Report, error) {
	log := logging.Runner().With(zap.String("script", s.Name))
	rep := &report.Report{
		ID:        r.newID(),
		Script:    s.Name,
		Source:    s.Source,
		URL:       s.URL,
		StartedAt: r.now(),
	}
	log = log.With(zap.String("run_id", rep.ID))

	err := r.run(ctx, s, rep, log)
	if err != nil {
		rep.Error = err.Error()
		rep.ErrorKind = Kind(err)
	}
	rep.Finish(r.now())

	metrics.RecordRun(rep.Script, string(rep.Status))
	if r.history != nil {
		// history must not change the outcome
		if herr := r.history.Record(context.WithoutCancel(ctx), rep); herr != nil {
			log.Warn("failed to record run history", zap.Error(herr))
		}
	}

	if err != nil {
		log.Error("run failed", zap.String("kind", rep.ErrorKind), zap.Error(err))
	} else {
		log.Info("run passed", zap.Int64("duration_ms", rep.DurationMs))
	}
	return rep, err
}

func (r *Runner) run(ctx context.Context, s *script.Script, rep *report.Report, log *zap.Logger) error {
	prepared, err := r.prepare(ctx, s, log)
	if err != nil {
		skipAll(rep, s, 0)
		return err
	}
	s = prepared
	rep.URL = s.URL

	page, err := r.open(ctx)
	if err != nil {
		skipAll(rep, s, 0)
		if !errors.Is(err, ErrSession) {
			err = fmt.Errorf("%w: %w", ErrSession, err)
		}
		return err
	}
	defer func() {
		rep.Console = consoleEntries(page.Console())
		if cerr := page.Close(); cerr != nil {
			log.Warn("failed to close browser session", zap.Error(cerr))
		}
	}()

	if s.Viewport != nil {
		if verr := page.SetViewport(ctx, s.Viewport.Width, s.Viewport.Height); verr != nil {
			log.Warn("failed to apply script viewport", zap.Error(verr))
		}
	}

	initial := script.Step{Action: script.ActionNavigate, URL: s.URL}
	if err := r.step(ctx, page, s, rep, 0, &initial, log); err != nil {
		skipAll(rep, s, 0)
		return err
	}
	for i := range s.Steps {
		if err := r.step(ctx, page, s, rep, i+1, &s.Steps[i], log); err != nil {
			skipAll(rep, s, i+1)
			return err
		}
	}
	return nil
}

// prepare looks up derived variables, expands variables and applies the base
// URL override.
func (r *Runner) prepare(ctx context.Context, s *script.Script, log *zap.Logger) (*script.Script, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	vars, err := r.lookupTitle(ctx, s, log)
	if err != nil {
		return nil, err
	}
	out, err := s.Expand(vars)
	if err != nil {
		return nil, err
	}
	if r.opts.BaseURL != "" {
		out, err = out.WithBaseURL(r.opts.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidScript, err)
		}
	}
	return out, nil
}

// lookupTitle returns the run's variables, adding the script's looked-up
// title when it is not already defined.
func (r *Runner) lookupTitle(ctx context.Context, s *script.Script, log *zap.Logger) (map[string]string, error) {
	lk, err := s.PendingLookup(r.opts.Vars)
	if err != nil || lk == nil || r.titles == nil {
		// without a source the variable stays undefined and Expand reports it
		return r.opts.Vars, err
	}

	title, err := r.titles.FetchTitle(ctx, lk.Congress, lk.BillType, lk.BillNumber)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s%s: %w", ErrTitleLookup, lk.Congress, lk.BillType, lk.BillNumber, err)
	}
	display := govinfo.DisplayTitle(lk.BillType, lk.BillNumber, title)
	log.Debug("looked up bill title", zap.String("var", lk.Var), zap.String("title", display))

	vars := make(map[string]string, len(r.opts.Vars)+1)
	for k, v := range r.opts.Vars {
		vars[k] = v
	}
	vars[lk.Var] = display
	return vars, nil
}

// step runs one step, appends its result and returns a *StepError on
// failure.
func (r *Runner) step(ctx context.Context, page Page, s *script.Script, rep *report.Report, index int, st *script.Step, log *zap.Logger) error {
	res := report.StepResult{
		Index:       index,
		Action:      string(st.Action),
		Description: st.Describe(),
	}
	if st.Locator != nil {
		res.Locator = st.Locator.String()
	}

	start := time.Now()
	err := r.exec(ctx, page, s, st, &res)
	res.DurationMs = time.Since(start).Milliseconds()
	metrics.RecordStep(res.Action, statusOf(err), time.Since(start))

	if err == nil {
		res.Status = report.StatusPassed
		rep.Steps = append(rep.Steps, res)
		if res.Screenshot != "" {
			rep.Screenshots = append(rep.Screenshots, res.Screenshot)
		}
		log.Debug("step passed", zap.Int("step", index), zap.String("desc", res.Description),
			zap.Int64("duration_ms", res.DurationMs))
		return nil
	}

	serr := &StepError{
		Index:       index,
		Action:      st.Action,
		Description: res.Description,
		Locator:     res.Locator,
		Err:         err,
	}
	res.Status = report.StatusFailed
	res.Error = err.Error()
	res.ErrorKind = serr.Kind()
	if r.opts.ScreenshotOnFailure {
		res.Screenshot = r.failureScreenshot(page, s, rep, log)
	}
	rep.Steps = append(rep.Steps, res)
	rep.FailedStep = &index
	return serr
}

func statusOf(err error) string {
	if err != nil {
		return string(report.StatusFailed)
	}
	return string(report.StatusPassed)
}

// exec dispatches one action. Panics are turned into errors so the session
// is still released.
func (r *Runner) exec(ctx context.Context, page Page, s *script.Script, st *script.Step, res *report.StepResult) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &panicError{value: p}
		}
	}()

	timeout := st.GetTimeout(s.GetTimeout(r.opts.stepTimeout()))
	if st.Action == script.ActionNavigate {
		// navigation has its own timeout; only an explicit step timeout bounds it
		timeout = st.GetTimeout(0)
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	switch st.Action {
	case script.ActionNavigate:
		err = page.Navigate(ctx, st.NavigateURL())
	case script.ActionClick:
		err = page.Click(ctx, *st.Locator)
	case script.ActionFill:
		err = page.Fill(ctx, *st.Locator, st.Value)
	case script.ActionSelect:
		err = page.SelectOption(ctx, *st.Locator, st.Value)
	case script.ActionWaitFor:
		err = page.WaitVisible(ctx, *st.Locator)
	case script.ActionWaitForFunction:
		err = page.WaitFunction(ctx, st.Script)
	case script.ActionAssert:
		err = r.assert(ctx, page, st)
	case script.ActionScreenshot:
		path := r.artifactPath(st.ScreenshotPath())
		if err = page.Screenshot(ctx, path, st.FullPage); err == nil {
			res.Screenshot = path
		}
	default:
		err = fmt.Errorf("%w: unknown action %q", ErrInvalidScript, st.Action)
	}

	if err != nil && timeout > 0 && errors.Is(err, ErrTimeout) {
		err = fmt.Errorf("after %s: %w", timeout, err)
	}
	return err
}

// assert polls the expectation until it holds or the step deadline passes.
// The error then carries the last observed actual value.
func (r *Runner) assert(ctx context.Context, page Page, st *script.Step) error {
	err := wait.Until(ctx, r.opts.PollInterval, func(ctx context.Context) (bool, error) {
		actual, ok, err := observe(ctx, page, st)
		if err != nil {
			if browser.IsElementNotFound(err) {
				return false, wait.Retry(err)
			}
			return false, err
		}
		if ok {
			return true, nil
		}
		return false, wait.Retry(&MismatchError{Expect: st.Expect, Expected: expected(st), Actual: actual})
	})

	var mm *MismatchError
	if err != nil && errors.As(err, &mm) {
		return mm
	}
	return err
}

func expected(st *script.Step) string {
	switch st.Expect {
	case script.ExpectVisible:
		return "visible"
	case script.ExpectHidden:
		return "hidden"
	}
	return st.Value
}

// observe reads the current state an assertion is about and reports whether
// it matches.
func observe(ctx context.Context, page Page, st *script.Step) (string, bool, error) {
	switch st.Expect {
	case script.ExpectVisible, script.ExpectHidden:
		visible, err := page.Visible(ctx, *st.Locator)
		if err != nil {
			return "", false, err
		}
		state := "hidden"
		if visible {
			state = "visible"
		}
		return state, (st.Expect == script.ExpectVisible) == visible, nil
	case script.ExpectText, script.ExpectContains:
		text, err := page.Text(ctx, *st.Locator)
		if err != nil {
			return "", false, err
		}
		text = normalizeSpace(text)
		if st.Expect == script.ExpectText {
			return text, text == normalizeSpace(st.Value), nil
		}
		return text, strings.Contains(text, normalizeSpace(st.Value)), nil
	case script.ExpectValue:
		v, err := page.Value(ctx, *st.Locator)
		return v, v == st.Value, err
	case script.ExpectTitle:
		title, err := page.Title(ctx)
		return title, title == st.Value, err
	case script.ExpectURL:
		u, err := page.URL(ctx)
		return u, u == st.Value, err
	}
	return "", false, fmt.Errorf("%w: unknown expectation %q", ErrInvalidScript, st.Expect)
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func (r *Runner) artifactPath(p string) string {
	if filepath.IsAbs(p) || r.opts.ArtifactsDir == "" {
		return p
	}
	return filepath.Join(r.opts.ArtifactsDir, p)
}

// failureScreenshot captures the page after a failed step. It never changes
// the outcome.
func (r *Runner) failureScreenshot(page Page, s *script.Script, rep *report.Report, log *zap.Logger) string {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id := rep.ID
	if len(id) > 8 {
		id = id[:8]
	}
	path := r.artifactPath(fmt.Sprintf("%s-failure-%s.png", s.Name, id))
	if err := page.Screenshot(ctx, path, true); err != nil {
		log.Warn("failed to capture failure screenshot", zap.Error(err))
		return ""
	}
	rep.Screenshots = append(rep.Screenshots, path)
	return path
}

// skipAll appends skipped results for every step from index on. Index 0 is
// the implicit navigation.
func skipAll(rep *report.Report, s *script.Script, from int) {
	done := make(map[int]bool, len(rep.Steps))
	for _, st := range rep.Steps {
		done[st.Index] = true
	}
	add := func(index int, st *script.Step) {
		if done[index] {
			return
		}
		rep.Steps = append(rep.Steps, report.StepResult{
			Index:       index,
			Action:      string(st.Action),
			Description: st.Describe(),
			Status:      report.StatusSkipped,
		})
		metrics.RecordStep(string(st.Action), string(report.StatusSkipped), 0)
	}
	if from == 0 {
		add(0, &script.Step{Action: script.ActionNavigate, URL: s.URL})
	}
	for i := range s.Steps {
		if i+1 >= from {
			add(i+1, &s.Steps[i])
		}
	}
}

func consoleEntries(msgs []browser.ConsoleMessage) []report.ConsoleEntry {
	if len(msgs) == 0 {
		return nil
	}
	out := make([]report.ConsoleEntry, len(msgs))
	for i, m := range msgs {
		out[i] = report.ConsoleEntry{Type: m.Type, Text: m.Text, Time: m.Time}
	}
	return out
}
