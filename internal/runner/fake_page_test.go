package runner

import (
	"context"
	"fmt"
	"sync"

	"uiverify/internal/browser"
	"uiverify/internal/script"
	"uiverify/internal/wait"
)

// fakeElement is the state one locator resolves to.
type fakeElement struct {
	hidden  bool
	matches int      // visible matches; 0 means 1
	texts   []string // successive Text results, the last one sticks
	value   string
	options []string
}

func (e *fakeElement) text() string {
	if len(e.texts) == 0 {
		return ""
	}
	t := e.texts[0]
	if len(e.texts) > 1 {
		e.texts = e.texts[1:]
	}
	return t
}

// fakePage is an in-memory Page. Waiting methods block until ctx is done
// when their target never appears, like the real driver.
type fakePage struct {
	mu        sync.Mutex
	elements  map[string]*fakeElement
	functions map[string]bool
	title     string
	url       string
	navErr    error
	panicOn   script.Action
	calls     []string
	shots     []string
	closed    int
	console   []browser.ConsoleMessage
}

func newFakePage() *fakePage {
	return &fakePage{
		elements:  make(map[string]*fakeElement),
		functions: make(map[string]bool),
		title:     "Atomic UX",
	}
}

func (p *fakePage) with(sel string, el *fakeElement) *fakePage {
	loc, err := script.ParseLocator(sel)
	if err != nil {
		panic(err)
	}
	p.elements[loc.String()] = el
	return p
}

func (p *fakePage) record(format string, args ...any) {
	p.calls = append(p.calls, fmt.Sprintf(format, args...))
}

func (p *fakePage) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// lookup resolves loc once. Callers hold p.mu.
func (p *fakePage) lookup(loc script.Locator) (*fakeElement, error) {
	el, ok := p.elements[loc.String()]
	if !ok || el.hidden {
		return nil, &browser.LocatorError{Locator: loc.String(), Err: browser.ErrElementNotFound}
	}
	if el.matches > 1 && loc.Strict() {
		return nil, &browser.LocatorError{Locator: loc.String(), Visible: el.matches, Err: browser.ErrAmbiguousLocator}
	}
	return el, nil
}

// await resolves loc, blocking until ctx is done when it cannot.
func (p *fakePage) await(ctx context.Context, loc script.Locator) (*fakeElement, error) {
	p.mu.Lock()
	el, err := p.lookup(loc)
	p.mu.Unlock()
	if err == nil {
		return el, nil
	}
	<-ctx.Done()
	return nil, &wait.TimeoutError{Last: err}
}

func (p *fakePage) maybePanic(a script.Action) {
	if p.panicOn == a {
		panic("boom in " + string(a))
	}
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("navigate %s", url)
	if p.navErr != nil {
		return p.navErr
	}
	p.url = url
	return ctx.Err()
}

func (p *fakePage) SetViewport(ctx context.Context, width, height int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("viewport %dx%d", width, height)
	return nil
}

func (p *fakePage) Click(ctx context.Context, loc script.Locator) error {
	p.maybePanic(script.ActionClick)
	if _, err := p.await(ctx, loc); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("click %s", loc)
	return nil
}

func (p *fakePage) Fill(ctx context.Context, loc script.Locator, text string) error {
	el, err := p.await(ctx, loc)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("fill %s %q", loc, text)
	el.value = text
	return nil
}

func (p *fakePage) SelectOption(ctx context.Context, loc script.Locator, value string) error {
	el, err := p.await(ctx, loc)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, o := range el.options {
		if o == value {
			p.record("select %s %q", loc, value)
			el.value = value
			return nil
		}
	}
	return &browser.LocatorError{Locator: loc.String(), Err: fmt.Errorf("%w: no option %q", browser.ErrElementNotFound, value)}
}

func (p *fakePage) WaitVisible(ctx context.Context, loc script.Locator) error {
	_, err := p.await(ctx, loc)
	return err
}

func (p *fakePage) WaitFunction(ctx context.Context, js string) error {
	p.mu.Lock()
	ok := p.functions[js]
	p.mu.Unlock()
	if ok {
		return nil
	}
	<-ctx.Done()
	return &wait.TimeoutError{}
}

func (p *fakePage) Visible(ctx context.Context, loc script.Locator) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, ok := p.elements[loc.String()]
	if !ok || el.hidden {
		return false, nil
	}
	if _, err := p.lookup(loc); err != nil {
		return false, err
	}
	return true, nil
}

func (p *fakePage) Text(ctx context.Context, loc script.Locator) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, err := p.lookup(loc)
	if err != nil {
		return "", err
	}
	return el.text(), nil
}

func (p *fakePage) Value(ctx context.Context, loc script.Locator) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, err := p.lookup(loc)
	if err != nil {
		return "", err
	}
	return el.value, nil
}

func (p *fakePage) Title(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.title, nil
}

func (p *fakePage) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *fakePage) Screenshot(ctx context.Context, path string, fullPage bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("screenshot %s", path)
	p.shots = append(p.shots, path)
	return nil
}

func (p *fakePage) Console() []browser.ConsoleMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.console
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

func (p *fakePage) Closed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func openerFor(p *fakePage) Opener {
	return func(ctx context.Context) (Page, error) {
		return p, nil
	}
}
