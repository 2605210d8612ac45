package render

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/placescout/internal/fetch"
)

// Gate admits a navigation under the crawl's politeness rules and returns a
// release func. *fetch.Client implements it.
type Gate interface {
	Admit(ctx context.Context, rawURL string) (release func(), err error)
}

// ChromeRenderer loads pages in headless Chrome, scrolls to trigger lazy
// loading and returns the resulting DOM. Rendering is best effort: no
// guarantee is made that every script-built element is present.
//
// One browser process is started on first use and shared by every Render;
// each page gets its own tab. Close stops the browser.
type ChromeRenderer struct {
	// ExecPath overrides Chrome discovery. Empty uses chromedp's lookup.
	ExecPath  string
	UserAgent string
	// Gate is consulted before every navigation. Nil admits everything.
	Gate Gate
	// Settle is how long to wait after load for scripts to insert content.
	// Zero means 1500ms.
	Settle time.Duration
	// Scrolls is the number of viewport scrolls. Zero means 3.
	Scrolls int
	// Visible disables headless mode.
	Visible bool

	mu            sync.Mutex
	browser       context.Context
	cancelBrowser context.CancelFunc
	closed        bool
}

const scrollScript = `window.scrollTo(0, document.body ? document.body.scrollHeight : 0)`

// ErrRendererClosed is returned by Render after Close.
var ErrRendererClosed = errors.New("chrome renderer closed")

// Render implements Renderer.
func (r *ChromeRenderer) Render(ctx context.Context, rawURL string, timeout time.Duration) (Page, error) {
	if r.Gate != nil {
		release, err := r.Gate.Admit(ctx, rawURL)
		if err != nil {
			return Page{}, err
		}
		defer release()
	}
	browser, err := r.ensureBrowser()
	if err != nil {
		return Page{}, err
	}

	tabCtx, cancelTab := chromedp.NewContext(browser)
	defer cancelTab()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		tabCtx, cancel = context.WithTimeout(tabCtx, timeout)
		defer cancel()
	}

	settle := r.Settle
	if settle <= 0 {
		settle = 1500 * time.Millisecond
	}
	scrolls := r.Scrolls
	if scrolls <= 0 {
		scrolls = 3
	}
	actions := []chromedp.Action{
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(settle),
	}
	for i := 0; i < scrolls; i++ {
		actions = append(actions, chromedp.Evaluate(scrollScript, nil), chromedp.Sleep(settle/3))
	}
	var html, final string
	actions = append(actions,
		chromedp.Location(&final),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		if browser.Err() != nil {
			r.reset(browser)
		}
		return Page{}, fmt.Errorf("chrome render %s: %w", rawURL, err)
	}
	if final == "" {
		final = rawURL
	}
	return Page{URL: final, Body: []byte(html), Engine: "chrome"}, nil
}

// ensureBrowser starts the shared browser unless it is already running. The
// browser outlives any single request context.
func (r *ChromeRenderer) ensureBrowser() (context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRendererClosed
	}
	if r.browser != nil && r.browser.Err() == nil {
		return r.browser, nil
	}
	if r.cancelBrowser != nil {
		r.cancelBrowser()
	}

	ua := r.UserAgent
	if ua == "" {
		ua = fetch.DefaultUserAgent
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(ua),
		chromedp.DisableGPU,
		chromedp.Flag("headless", !r.Visible),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
	)
	if r.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(r.ExecPath))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browser, cancelBrowser := chromedp.NewContext(allocCtx)
	cancel := func() {
		cancelBrowser()
		cancelAlloc()
	}
	// an empty Run launches the process
	if err := chromedp.Run(browser); err != nil {
		cancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	log.Debug().Msg("chrome started")
	r.browser, r.cancelBrowser = browser, cancel
	return browser, nil
}

// reset drops a browser that died so the next Render starts a fresh one.
func (r *ChromeRenderer) reset(dead context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser == dead {
		r.cancelBrowser()
		r.browser, r.cancelBrowser = nil, nil
	}
}

// Close stops the browser. Render fails with ErrRendererClosed afterwards.
func (r *ChromeRenderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.cancelBrowser != nil {
		r.cancelBrowser()
		r.browser, r.cancelBrowser = nil, nil
	}
}
