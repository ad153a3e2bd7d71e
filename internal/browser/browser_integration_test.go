//go:build integration

package browser_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"uiverify/internal/browser"
	"uiverify/internal/script"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixturePage = `<!doctype html>
<html>
<head><title>Atomic UX</title></head>
<body>
	<h1>Atoms</h1>
	<button id="add">Add Atom</button>
	<button title="Flowchart view">F</button>
	<label for="congress">Congress</label>
	<input id="congress" placeholder="Congress (e.g., 119)" />
	<input data-testid="search" placeholder="Search atoms..." />
	<select id="kind">
		<option value="fact">Fact</option>
		<option value="experiment">Source text</option>
	</select>
	<p class="atom">First atom</p>
	<p class="atom">Second atom</p>
	<p class="hidden" style="display:none">Secret</p>
	<div id="late"></div>
	<script>
		document.getElementById('add').addEventListener('click', () => {
			console.log('clicked add');
			setTimeout(() => {
				document.getElementById('late').innerHTML = '<h2>Create New Atom</h2>';
				window.ready = true;
			}, 300);
		});
	</script>
</body>
</html>`

func newFixture(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, fixturePage)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func openSession(t *testing.T, ts *httptest.Server) *browser.Session {
	t.Helper()
	cfg := browser.DefaultConfig()
	cfg.NavigationTimeout = 10 * time.Second
	cfg.PollInterval = 50 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := browser.NewLauncher(cfg).Open(ctx)
	require.NoError(t, err, "failed to start browser")
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Logf("close error: %v", err)
		}
	})
	require.NoError(t, s.Navigate(ctx, ts.URL))
	return s
}

func loc(t *testing.T, sel string) script.Locator {
	t.Helper()
	l, err := script.ParseLocator(sel)
	require.NoError(t, err)
	return l
}

func TestSession_Interaction_Integration(t *testing.T) {
	s := openSession(t, newFixture(t))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	title, err := s.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Atomic UX", title)

	require.NoError(t, s.Click(ctx, loc(t, `role=button[name="Add Atom"]`)))
	require.NoError(t, s.WaitVisible(ctx, loc(t, `h2:has-text("Create New Atom")`)))
	require.NoError(t, s.WaitFunction(ctx, "window.ready === true"))

	require.NoError(t, s.Fill(ctx, loc(t, `placeholder="Congress (e.g., 119)"`), "118"))
	v, err := s.Value(ctx, loc(t, "label=Congress"))
	require.NoError(t, err)
	assert.Equal(t, "118", v)

	require.NoError(t, s.Fill(ctx, loc(t, "testid=search"), ""))
	v, err = s.Value(ctx, loc(t, "testid=search"))
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SelectOption(ctx, loc(t, "select"), "experiment"))
	v, err = s.Value(ctx, loc(t, "select"))
	require.NoError(t, err)
	assert.Equal(t, "experiment", v)

	require.NoError(t, s.SelectOption(ctx, loc(t, "select"), "Fact"), "falls back to the option label")
	v, err = s.Value(ctx, loc(t, "select"))
	require.NoError(t, err)
	assert.Equal(t, "fact", v)

	require.Eventually(t, func() bool {
		for _, m := range s.Console() {
			if m.Text == "clicked add" {
				return true
			}
		}
		return false
	}, 5*time.Second, 50*time.Millisecond)
}

func TestSession_LocatorStrictness_Integration(t *testing.T) {
	s := openSession(t, newFixture(t))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	_, err := s.Text(ctx, loc(t, "p.atom"))
	assert.ErrorIs(t, err, browser.ErrAmbiguousLocator)

	text, err := s.Text(ctx, loc(t, "p.atom >> nth=1"))
	require.NoError(t, err)
	assert.Equal(t, "Second atom", text)

	visible, err := s.Visible(ctx, loc(t, "text=Secret"))
	require.NoError(t, err)
	assert.False(t, visible, "display:none elements are not visible")

	visible, err = s.Visible(ctx, loc(t, `role=button[name="flowchart view"]`))
	require.NoError(t, err)
	assert.True(t, visible, "title attribute supplies the accessible name")

	short, cancelShort := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancelShort()
	err = s.Click(short, loc(t, `role=button[name="Delete"]`))
	assert.ErrorIs(t, err, browser.ErrElementNotFound)
}

func TestSession_NavigationAndScreenshot_Integration(t *testing.T) {
	s := openSession(t, newFixture(t))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	err := s.Navigate(ctx, "http://127.0.0.1:1/unreachable")
	assert.ErrorIs(t, err, browser.ErrNavigation)

	path := filepath.Join(t.TempDir(), "nested", "shot.png")
	require.NoError(t, s.Screenshot(ctx, path, true))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}
