package browser

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/playwright-community/playwright-go"
)

// stealthScript strips the obvious automation signals before any page script
// runs. Dreamstime's challenge vendor keys on navigator.webdriver.
const stealthScript = `
	Object.defineProperty(navigator, 'webdriver', {
		get: () => undefined
	});
	Object.defineProperty(navigator, 'plugins', {
		get: () => [1, 2, 3, 4, 5]
	});
	Object.defineProperty(navigator, 'languages', {
		get: () => ['en-US', 'en']
	});
	window.chrome = { runtime: {} };
`

type Browser struct {
	pw       *playwright.Playwright
	browser  playwright.Browser
	context  playwright.BrowserContext
	attached bool
	timeout  time.Duration
	logger   *slog.Logger
}

type Options struct {
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	Locale         string
	TimezoneID     string
	CDPEndpoint    string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Timeout:        30 * time.Second,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		ViewportWidth:  1280,
		ViewportHeight: 720,
		Locale:         "en-US",
		TimezoneID:     "America/New_York",
	}
}

// New launches a fresh stealth-configured Chromium session.
func New(opts *Options) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
		Args: []string{
			"--start-maximized",
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
		},
	}

	b, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	context, err := newStealthContext(b, opts)
	if err != nil {
		b.Close()
		pw.Stop()
		return nil, err
	}

	return &Browser{
		pw:      pw,
		browser: b,
		context: context,
		timeout: opts.Timeout,
		logger:  slog.Default().With("component", "browser"),
	}, nil
}

// Attach connects to an already-running Chromium over CDP. The session is
// externally owned: Close detaches instead of killing the browser.
func Attach(endpoint string, opts *Options) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	b, err := pw.Chromium.ConnectOverCDP(endpoint)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to connect over CDP: %w", err)
	}

	var context playwright.BrowserContext
	if contexts := b.Contexts(); len(contexts) > 0 {
		context = contexts[0]
	} else {
		context, err = newStealthContext(b, opts)
		if err != nil {
			pw.Stop()
			return nil, err
		}
	}

	return &Browser{
		pw:       pw,
		browser:  b,
		context:  context,
		attached: true,
		timeout:  opts.Timeout,
		logger:   slog.Default().With("component", "browser", "mode", "cdp"),
	}, nil
}

func newStealthContext(b playwright.Browser, opts *Options) (playwright.BrowserContext, error) {
	context, err := b.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:  &opts.UserAgent,
		Locale:     &opts.Locale,
		TimezoneId: &opts.TimezoneID,
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	if err := context.AddInitScript(playwright.Script{
		Content: playwright.String(stealthScript),
	}); err != nil {
		context.Close()
		return nil, fmt.Errorf("failed to inject stealth script: %w", err)
	}

	return context, nil
}

// NewPage opens a page wrapped in the automation Page capability.
func (b *Browser) NewPage() (*PWPage, error) {
	page, err := b.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}

	page.SetDefaultTimeout(float64(b.timeout.Milliseconds()))

	return &PWPage{page: page, timeout: b.timeout}, nil
}

func (b *Browser) Context() playwright.BrowserContext {
	return b.context
}

// Attached reports whether the underlying browser is externally owned.
func (b *Browser) Attached() bool {
	return b.attached
}

// Close tears the session down. For attached sessions the remote browser is
// left running and only the CDP connection is dropped.
func (b *Browser) Close() error {
	var errs []error

	if !b.attached && b.context != nil {
		if err := b.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}

	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}
	return nil
}
