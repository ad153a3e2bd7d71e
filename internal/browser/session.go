// Package browser drives a headless Chrome through go-rod: it launches (or
// attaches to) the browser, owns one incognito page per session and performs
// locator-based interactions against it.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"uiverify/internal/logging"
	"uiverify/internal/script"
	"uiverify/internal/wait"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// Launcher starts browser sessions from one configuration.
type Launcher struct {
	cfg Config
}

// NewLauncher creates a launcher.
func NewLauncher(cfg Config) *Launcher {
	return &Launcher{cfg: cfg}
}

// Open connects to an existing Chrome or launches a new one and returns a
// session holding a fresh incognito page.
func (l *Launcher) Open(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log := logging.Browser()

	controlURL, proc, err := l.launch()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSession, err)
	}

	// The session outlives ctx so teardown still works after cancellation.
	sctx, cancel := context.WithCancel(context.Background())
	b := rod.New().ControlURL(controlURL).Context(sctx)
	if l.cfg.SlowMotion > 0 {
		b = b.SlowMotion(l.cfg.SlowMotion)
	}

	s := &Session{
		cfg:      l.cfg,
		browser:  b,
		launcher: proc,
		cancel:   cancel,
	}
	fail := func(step string, err error) (*Session, error) {
		_ = s.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrSession, step, err)
	}

	if err := b.Connect(); err != nil {
		return fail("connect to chrome", err)
	}
	s.connected = true

	incognito, err := b.Incognito()
	if err != nil {
		return fail("incognito context", err)
	}
	s.incognito = incognito

	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return fail("create page", err)
	}
	s.page = page

	if err := s.SetViewport(ctx, l.cfg.GetViewportWidth(), l.cfg.GetViewportHeight()); err != nil {
		log.Warn("failed to set viewport", zap.Error(err))
	}
	s.startConsoleStream()

	log.Debug("session opened",
		zap.String("control_url", controlURL),
		zap.Bool("launched", proc != nil),
		zap.Bool("headless", l.cfg.Headless))
	return s, nil
}

// launch returns a DevTools control URL and, when a process was started, its
// launcher so the process can be killed on close.
func (l *Launcher) launch() (string, *launcher.Launcher, error) {
	if l.cfg.DebuggerURL != "" {
		u, err := launcher.ResolveURL(l.cfg.DebuggerURL)
		if err != nil {
			return "", nil, fmt.Errorf("resolve debugger url %s: %w", l.cfg.DebuggerURL, err)
		}
		return u, nil, nil
	}

	proc := launcher.New().Headless(l.cfg.Headless)
	if l.cfg.Bin != "" {
		proc = proc.Bin(l.cfg.Bin)
	}
	for _, rawFlag := range l.cfg.LaunchFlags {
		flagStr := strings.TrimLeft(rawFlag, "-")
		name, val, hasVal := strings.Cut(flagStr, "=")
		if hasVal {
			proc = proc.Set(flags.Flag(name), val)
		} else {
			proc = proc.Set(flags.Flag(name))
		}
	}
	u, err := proc.Launch()
	if err == nil {
		return u, proc, nil
	}
	proc.Kill()
	if l.cfg.Bin == "" && len(l.cfg.LaunchFlags) == 0 {
		return "", nil, fmt.Errorf("launch chrome: %w", err)
	}

	// Fallback to rod's own browser lookup.
	logging.Browser().Warn("configured browser failed to launch, falling back to default lookup",
		zap.String("bin", l.cfg.Bin), zap.Error(err))
	fallback := launcher.New().Headless(l.cfg.Headless)
	alt, altErr := fallback.Launch()
	if altErr != nil {
		fallback.Kill()
		return "", nil, fmt.Errorf("launch chrome: %w (fallback: %v)", err, altErr)
	}
	return alt, fallback, nil
}

// ConsoleMessage is one console entry or uncaught exception from the page.
type ConsoleMessage struct {
	Type string    `json:"type"`
	Text string    `json:"text"`
	Time time.Time `json:"time"`
}

// Session owns one browser connection and the page scripts run against. It
// is used by a single run at a time.
type Session struct {
	cfg       Config
	browser   *rod.Browser
	incognito *rod.Browser
	page      *rod.Page
	launcher  *launcher.Launcher
	connected bool
	cancel    context.CancelFunc

	stopEvents context.CancelFunc
	mu         sync.Mutex
	console    []ConsoleMessage

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Close releases the page, the incognito context and, when it was launched
// here, the browser process. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.stopEvents != nil {
			s.stopEvents()
		}

		var errs []error
		if s.page != nil {
			if err := s.page.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close page: %w", err))
			}
		}
		if s.incognito != nil {
			if err := s.incognito.Close(); err != nil {
				errs = append(errs, fmt.Errorf("dispose incognito context: %w", err))
			}
		}
		if s.launcher != nil {
			if s.connected {
				_ = s.browser.Close()
			}
			s.launcher.Kill()
			s.launcher.Cleanup()
		}
		if s.cancel != nil {
			s.cancel()
		}
		s.closeErr = errors.Join(errs...)
		logging.Browser().Debug("session closed", zap.Error(s.closeErr))
	})
	return s.closeErr
}

func (s *Session) livePage(ctx context.Context) (*rod.Page, error) {
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}
	return s.page.Context(ctx), nil
}

// startConsoleStream records console API calls and uncaught exceptions until
// the session closes.
func (s *Session) startConsoleStream() {
	ctx, stop := context.WithCancel(context.Background())
	s.stopEvents = stop
	log := logging.Get(logging.CategoryConsole)

	record := func(kind, text string) {
		s.mu.Lock()
		s.console = append(s.console, ConsoleMessage{Type: kind, Text: text, Time: time.Now()})
		s.mu.Unlock()
		log.Info(text, zap.String("type", kind))
	}

	waitEvents := s.page.Context(ctx).EachEvent(
		func(ev *proto.RuntimeConsoleAPICalled) {
			record(string(ev.Type), stringifyConsoleArgs(ev.Args))
		},
		func(ev *proto.RuntimeExceptionThrown) {
			if ev.ExceptionDetails == nil {
				return
			}
			text := ev.ExceptionDetails.Text
			if ex := ev.ExceptionDetails.Exception; ex != nil && ex.Description != "" {
				text = ex.Description
			}
			record("pageerror", text)
		},
	)
	go waitEvents()
}

func stringifyConsoleArgs(args []*proto.RuntimeRemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		if a == nil {
			continue
		}
		if !a.Value.Nil() {
			parts = append(parts, a.Value.String())
			continue
		}
		if a.Description != "" {
			parts = append(parts, a.Description)
		}
	}
	return strings.Join(parts, " ")
}

// Console returns the console messages captured so far.
func (s *Session) Console() []ConsoleMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ConsoleMessage(nil), s.console...)
}

// SetViewport overrides the page's device metrics.
func (s *Session) SetViewport(ctx context.Context, width, height int) error {
	page, err := s.livePage(ctx)
	if err != nil {
		return err
	}
	return proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}.Call(page)
}

// Navigate loads url and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	page, err := s.livePage(ctx)
	if err != nil {
		return err
	}
	page = page.Timeout(s.cfg.GetNavigationTimeout())
	defer page.CancelTimeout()

	logging.Browser().Debug("navigate", zap.String("url", url))
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrNavigation, url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("%w: %s: page did not finish loading: %w", ErrNavigation, url, err)
	}
	return nil
}

// locate waits until loc designates exactly one visible element.
func (s *Session) locate(ctx context.Context, loc script.Locator) (*rod.Element, error) {
	var el *rod.Element
	err := wait.Until(ctx, s.cfg.GetPollInterval(), func(ctx context.Context) (bool, error) {
		found, err := s.resolve(ctx, loc)
		if err != nil {
			if IsElementNotFound(err) {
				return false, wait.Retry(err)
			}
			return false, err
		}
		el = found
		return true, nil
	})
	return el, err
}

// Click waits for loc and clicks it.
func (s *Session) Click(ctx context.Context, loc script.Locator) error {
	el, err := s.locate(ctx, loc)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %s: %w", loc, err)
	}
	return nil
}

// Fill waits for loc and replaces its value with text. An empty text clears
// the field.
func (s *Session) Fill(ctx context.Context, loc script.Locator, text string) error {
	el, err := s.locate(ctx, loc)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("fill %s: %w", loc, err)
	}
	if text == "" {
		err = el.Type(input.Backspace)
	} else {
		err = el.Input(text)
	}
	if err != nil {
		return fmt.Errorf("fill %s: %w", loc, err)
	}
	return nil
}

// SelectOption waits for loc and chooses the option whose value, or failing
// that whose label, equals value.
func (s *Session) SelectOption(ctx context.Context, loc script.Locator, value string) error {
	byValue := []string{fmt.Sprintf(`option[value="%s"]`, cssString(value))}
	byLabel := []string{"^\\s*" + regexp.QuoteMeta(value) + "\\s*$"}

	return wait.Until(ctx, s.cfg.GetPollInterval(), func(ctx context.Context) (bool, error) {
		el, err := s.resolve(ctx, loc)
		if err != nil {
			if IsElementNotFound(err) {
				return false, wait.Retry(err)
			}
			return false, err
		}
		if err := el.Select(byValue, true, rod.SelectorTypeCSSSector); err == nil {
			return true, nil
		}
		if err := el.Select(byLabel, true, rod.SelectorTypeRegex); err == nil {
			return true, nil
		}
		// options may still be loading
		return false, wait.Retry(&LocatorError{
			Locator: loc.String(),
			Err:     fmt.Errorf("%w: no option with value or label %q", ErrElementNotFound, value),
		})
	})
}

func cssString(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

// WaitVisible waits until loc designates exactly one visible element.
func (s *Session) WaitVisible(ctx context.Context, loc script.Locator) error {
	_, err := s.locate(ctx, loc)
	return err
}

// WaitFunction waits until the page-evaluated predicate returns a truthy
// value. Evaluation errors are retried: the page may be mid-navigation.
func (s *Session) WaitFunction(ctx context.Context, js string) error {
	fn := asFunction(js)
	return wait.Until(ctx, s.cfg.GetPollInterval(), func(ctx context.Context) (bool, error) {
		page, err := s.livePage(ctx)
		if err != nil {
			return false, err
		}
		res, err := page.Eval(fn)
		if err != nil {
			return false, wait.Retry(fmt.Errorf("evaluate predicate: %w", err))
		}
		return res.Value.Bool(), nil
	})
}

// asFunction turns a predicate into a function returning a boolean. Bare
// expressions are wrapped; promises are awaited.
func asFunction(js string) string {
	js = strings.TrimSpace(js)
	if !strings.HasPrefix(js, "function") && !strings.HasPrefix(js, "async") && !strings.Contains(js, "=>") {
		js = "() => (" + js + ")"
	}
	return "async () => !!(await (" + js + ")())"
}

// Visible reports whether loc currently designates a visible element. A
// strict locator with several visible matches is an error.
func (s *Session) Visible(ctx context.Context, loc script.Locator) (bool, error) {
	els, err := s.query(ctx, loc)
	if err != nil {
		return false, err
	}
	if len(els) == 0 {
		return false, nil
	}
	if _, err := pick(loc, len(els)); err != nil {
		if errors.Is(err, ErrAmbiguousLocator) {
			return false, err
		}
		// nth beyond the visible matches
		return false, nil
	}
	return true, nil
}

// Text returns the rendered text of the element loc designates now.
func (s *Session) Text(ctx context.Context, loc script.Locator) (string, error) {
	el, err := s.resolve(ctx, loc)
	if err != nil {
		return "", err
	}
	return el.Text()
}

// Value returns the current value property of the element loc designates now.
func (s *Session) Value(ctx context.Context, loc script.Locator) (string, error) {
	el, err := s.resolve(ctx, loc)
	if err != nil {
		return "", err
	}
	v, err := el.Property("value")
	if err != nil {
		return "", err
	}
	if v.Nil() {
		return "", nil
	}
	return v.Str(), nil
}

// Title returns the document title.
func (s *Session) Title(ctx context.Context) (string, error) {
	page, err := s.livePage(ctx)
	if err != nil {
		return "", err
	}
	info, err := page.Info()
	if err != nil {
		return "", err
	}
	return info.Title, nil
}

// URL returns the current page URL.
func (s *Session) URL(ctx context.Context) (string, error) {
	page, err := s.livePage(ctx)
	if err != nil {
		return "", err
	}
	info, err := page.Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

// Screenshot writes a PNG of the page to path, creating parent directories.
func (s *Session) Screenshot(ctx context.Context, path string, fullPage bool) error {
	page, err := s.livePage(ctx)
	if err != nil {
		return err
	}
	data, err := page.Screenshot(fullPage, nil)
	if err != nil {
		return fmt.Errorf("capture screenshot: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create screenshot dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write screenshot: %w", err)
	}
	logging.Browser().Debug("screenshot written", zap.String("path", path), zap.Int("bytes", len(data)))
	return nil
}
