package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"

	"github.com/webaudit/webaudit/internal/model"
)

// ChromeOptions configures the headless Chrome factory.
type ChromeOptions struct {
	// UserAgent overrides the browser's default User-Agent.
	UserAgent string

	// RenderTimeout bounds one page render, navigation included.
	RenderTimeout time.Duration

	// CaptureDelay is how long to wait after navigation before snapshotting
	// the DOM, giving client-side rendering time to settle.
	CaptureDelay time.Duration

	// Headless disables the visible browser window. Tests and debugging may
	// turn it off; production audits keep it on.
	Headless bool

	// ProfileDir is the parent directory for browser profiles. Each instance
	// gets its own subdirectory (Chrome locks a profile per process) which is
	// removed when the instance closes. Empty lets Chrome pick a temporary
	// profile under the system temp directory.
	ProfileDir string
}

// chromeInstance is one long-lived headless Chrome process. Each render
// opens a fresh tab against the shared browser context so page state never
// leaks between renders.
type chromeInstance struct {
	opts        ChromeOptions
	profile     string
	allocCancel context.CancelFunc
	browserCtx  context.Context
	browserCtxC context.CancelFunc
}

// NewChromeFactory returns a Factory that launches headless Chrome
// processes via chromedp. Zero-value fields get conservative defaults.
func NewChromeFactory(opts ChromeOptions) Factory {
	if opts.RenderTimeout <= 0 {
		opts.RenderTimeout = 60 * time.Second
	}
	if opts.CaptureDelay <= 0 {
		opts.CaptureDelay = 1500 * time.Millisecond
	}

	return func(ctx context.Context) (Instance, error) {
		execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", opts.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("no-sandbox", true),
		)
		if ua := strings.TrimSpace(opts.UserAgent); ua != "" {
			execOpts = append(execOpts, chromedp.UserAgent(ua))
		}

		var profile string
		if opts.ProfileDir != "" {
			profile = filepath.Join(opts.ProfileDir, uuid.NewString())
			if err := os.MkdirAll(profile, 0700); err != nil {
				return nil, fmt.Errorf("create chrome profile dir: %w", err)
			}
			execOpts = append(execOpts, chromedp.UserDataDir(profile))
		}

		// The allocator outlives the acquire call; tie it to Background,
		// not the caller's ctx, or the browser dies when the first render
		// finishes.
		allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), execOpts...)
		browserCtx, browserCancel := chromedp.NewContext(allocCtx)

		// Start the browser process now so a launch failure surfaces at
		// acquire time instead of on the first render.
		if err := chromedp.Run(browserCtx); err != nil {
			browserCancel()
			allocCancel()
			if profile != "" {
				os.RemoveAll(profile)
			}
			return nil, fmt.Errorf("launch chrome: %w", err)
		}

		return &chromeInstance{
			opts:        opts,
			profile:     profile,
			allocCancel: allocCancel,
			browserCtx:  browserCtx,
			browserCtxC: browserCancel,
		}, nil
	}
}

// Render navigates a fresh tab to pageURL and snapshots the rendered DOM.
func (c *chromeInstance) Render(ctx context.Context, pageURL string) (*model.FetchResult, error) {
	tabCtx, tabCancel := chromedp.NewContext(c.browserCtx)
	defer tabCancel()

	runCtx, cancel := context.WithTimeout(tabCtx, c.opts.RenderTimeout)
	defer cancel()

	// Honor caller cancellation without re-parenting the tab context.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	start := time.Now()
	var html string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(pageURL),
		chromedp.Sleep(c.opts.CaptureDelay),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", pageURL, err)
	}

	result := &model.FetchResult{
		URL:         pageURL,
		Body:        []byte(html),
		StatusCode:  200,
		ContentType: "text/html; charset=utf-8",
		Rendered:    true,
		FetchedAt:   time.Now(),
		Elapsed:     time.Since(start),
	}
	result.ComputeHash()
	return result, nil
}

// Close tears down the browser process and removes its profile directory.
func (c *chromeInstance) Close() error {
	c.browserCtxC()
	c.allocCancel()
	if c.profile != "" {
		return os.RemoveAll(c.profile)
	}
	return nil
}
