// Package browser implements the browser-driving capability over go-rod.
// One driver owns one page; callers are expected to serialize access (the
// command server does, and the page-load hooks run between commands in
// practice but are not actively guarded).
package browser

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/TensoriumAi/Glyde/internal/logging"
	"github.com/TensoriumAi/Glyde/internal/state"
)

// Config holds browser driver configuration.
type Config struct {
	// DebuggerURL attaches to an existing Chrome instead of launching one.
	DebuggerURL string
	// Bin overrides the Chrome binary used by the launcher.
	Bin string
	// ProfileDir is the persistent user-data directory for the session.
	ProfileDir string

	Headless            bool
	ViewportWidth       int
	ViewportHeight      int
	NavigationTimeoutMs int
}

// NavigationTimeout returns the navigation timeout.
func (c Config) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// Driver drives a single page in a single browser.
type Driver struct {
	cfg     Config
	browser *rod.Browser
	page    *rod.Page

	mu     sync.Mutex
	onLoad []func(url string)
}

// New returns an unstarted driver.
func New(cfg Config) *Driver {
	return &Driver{cfg: cfg}
}

// OnLoad registers a callback fired after each completed page load with the
// page's URL. Register before Start.
func (d *Driver) OnLoad(fn func(url string)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onLoad = append(d.onLoad, fn)
}

// Start launches (or attaches to) Chrome, opens the session page, and
// navigates to startURL if given. Failure here is fatal to the controller.
func (d *Driver) Start(ctx context.Context, startURL string) error {
	controlURL := d.cfg.DebuggerURL
	if controlURL == "" {
		launch := launcher.New().Headless(d.cfg.Headless)
		if d.cfg.Bin != "" {
			launch = launch.Bin(d.cfg.Bin)
		}
		if d.cfg.ProfileDir != "" {
			launch = launch.UserDataDir(d.cfg.ProfileDir)
		}
		url, err := launch.Launch()
		if err != nil {
			return fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = url
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}
	d.browser = browser

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		return fmt.Errorf("create page: %w", err)
	}
	d.page = page

	if d.cfg.ViewportWidth > 0 && d.cfg.ViewportHeight > 0 {
		if err := (proto.EmulationSetDeviceMetricsOverride{
			Width:             d.cfg.ViewportWidth,
			Height:            d.cfg.ViewportHeight,
			DeviceScaleFactor: 1.0,
			Mobile:            false,
		}).Call(page); err != nil {
			logging.BrowserWarn("set viewport: %v", err)
		}
	}

	d.watchLoads(ctx)

	if startURL != "" {
		if err := page.Timeout(d.cfg.NavigationTimeout()).Navigate(startURL); err != nil {
			logging.BrowserWarn("initial navigation to %s: %v", startURL, err)
		}
	}
	logging.Browser("driver started (headless=%v, profile=%s)", d.cfg.Headless, d.cfg.ProfileDir)
	return nil
}

// watchLoads wires page load events into the registered callbacks.
func (d *Driver) watchLoads(ctx context.Context) {
	wait := d.page.Context(ctx).EachEvent(func(*proto.PageLoadEventFired) {
		url, err := d.CurrentURL(ctx)
		if err != nil {
			logging.BrowserWarn("load event: resolve url: %v", err)
			return
		}
		logging.Browser("page load complete: %s", url)
		d.mu.Lock()
		callbacks := append([]func(string){}, d.onLoad...)
		d.mu.Unlock()
		for _, fn := range callbacks {
			fn(url)
		}
	})
	go wait()
}

// Evaluate runs raw script text in the page's global scope via indirect
// eval and returns the produced value. In-page exceptions and promise
// rejections surface as errors.
func (d *Driver) Evaluate(ctx context.Context, script string) (interface{}, error) {
	res, err := d.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           `src => (0, eval)(src)`,
		JSArgs:       []interface{}{script},
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	return res.Value.Val(), nil
}

// Click clicks the first element matching selector.
func (d *Driver) Click(ctx context.Context, selector string) error {
	el, err := d.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("element not found: %s", selector)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// Type inserts text into the first element matching selector.
func (d *Driver) Type(ctx context.Context, selector, text string) error {
	el, err := d.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("element not found: %s", selector)
	}
	return el.Input(text)
}

// Screenshot captures the page to path and returns the saved path.
func (d *Driver) Screenshot(ctx context.Context, path string) (string, error) {
	data, err := d.page.Context(ctx).Screenshot(false, nil)
	if err != nil {
		return "", fmt.Errorf("capture screenshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}
	return path, nil
}

// CurrentURL returns the page's current URL.
func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	info, err := d.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("page info: %w", err)
	}
	return info.URL, nil
}

// Reload reloads the page.
func (d *Driver) Reload(ctx context.Context) error {
	return d.page.Context(ctx).Reload()
}

// Navigate drives the page to a URL, bounded by the navigation timeout.
func (d *Driver) Navigate(ctx context.Context, url string) error {
	return d.page.Context(ctx).Timeout(d.cfg.NavigationTimeout()).Navigate(url)
}

// Snapshot captures the live cookies and localStorage for the state store.
func (d *Driver) Snapshot(ctx context.Context) (state.Snapshot, error) {
	snap := state.Snapshot{Timestamp: time.Now()}

	res, err := proto.NetworkGetCookies{}.Call(d.page.Context(ctx))
	if err != nil {
		return snap, fmt.Errorf("get cookies: %w", err)
	}
	for _, c := range res.Cookies {
		snap.Cookies = append(snap.Cookies, state.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  float64(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		})
	}

	snap.LocalStorage, err = d.localStorage(ctx)
	if err != nil {
		return snap, err
	}
	return snap, nil
}

func (d *Driver) localStorage(ctx context.Context) (map[string]string, error) {
	res, err := d.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS: `() => {
			const out = {};
			try {
				for (const key of Object.keys(localStorage)) {
					out[key] = localStorage.getItem(key);
				}
			} catch (e) {}
			return out;
		}`,
		ByValue: true,
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot localStorage: %w", err)
	}
	out := make(map[string]string)
	for k, v := range res.Value.Map() {
		out[k] = v.Str()
	}
	return out, nil
}

// Apply writes a (pre-merged) restore set into the live session. Callers
// pass only the cookies and keys absent from the live state; this method
// does not re-check.
func (d *Driver) Apply(ctx context.Context, snap state.Snapshot) error {
	if len(snap.Cookies) > 0 {
		params := make([]*proto.NetworkCookieParam, 0, len(snap.Cookies))
		for _, c := range snap.Cookies {
			params = append(params, &proto.NetworkCookieParam{
				Name:     c.Name,
				Value:    c.Value,
				Domain:   c.Domain,
				Path:     c.Path,
				Expires:  proto.TimeSinceEpoch(c.Expires),
				HTTPOnly: c.HTTPOnly,
				Secure:   c.Secure,
			})
		}
		if err := d.page.Context(ctx).SetCookies(params); err != nil {
			return fmt.Errorf("set cookies: %w", err)
		}
	}

	if len(snap.LocalStorage) > 0 {
		_, err := d.page.Context(ctx).Evaluate(&rod.EvalOptions{
			JS: `items => {
				try {
					Object.entries(items).forEach(([k, v]) => localStorage.setItem(k, v));
				} catch (e) {}
			}`,
			JSArgs:  []interface{}{snap.LocalStorage},
			ByValue: true,
		})
		if err != nil {
			return fmt.Errorf("restore localStorage: %w", err)
		}
	}
	return nil
}

// Close shuts the browser down.
func (d *Driver) Close() error {
	if d.browser == nil {
		return nil
	}
	err := d.browser.Close()
	d.browser = nil
	d.page = nil
	return err
}
