// Package browser owns the headless-browser driver: one lazily launched
// Chromium process per driver, reused while healthy and transparently
// relaunched when not. Callers get scoped page access; extraction logic
// runs inside the page context via an evaluated script.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/anatolykoptev/go_loom/internal/engine"
	"github.com/anatolykoptev/go_loom/internal/loom"
)

// Driver owns an optional browser-process handle with a reconnect-on-use
// policy: before use, liveness is probed; on failure the process is
// relaunched and replaced. Page operations are serialized; the underlying
// session is one authenticated identity and must not run two conflicting
// navigations at once.
type Driver struct {
	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
}

// NewDriver returns a driver with no browser yet; the process launches on
// first use.
func NewDriver() *Driver {
	return &Driver{}
}

// Close releases the held browser process. Safe to call with none held.
func (d *Driver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.teardown()
}

// teardown kills the current process. Caller holds d.mu.
func (d *Driver) teardown() {
	if d.browser != nil {
		if err := d.browser.Close(); err != nil {
			slog.Debug("browser close", slog.Any("error", err))
		}
		d.browser = nil
	}
	if d.launcher != nil {
		d.launcher.Kill()
		d.launcher = nil
	}
}

// handle returns a live browser, launching or relaunching as needed.
// Caller holds d.mu.
func (d *Driver) handle() (*rod.Browser, error) {
	if d.browser != nil {
		if _, err := (proto.BrowserGetVersion{}).Call(d.browser); err == nil {
			return d.browser, nil
		}
		slog.Warn("cached browser unreachable, relaunching")
		engine.IncrBrowserRelaunches()
		d.teardown()
	}

	l := launcher.New().
		Headless(engine.Cfg.Headless).
		NoSandbox(true).
		Leakless(true)
	if engine.Cfg.ChromePath != "" {
		l = l.Bin(engine.Cfg.ChromePath)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	engine.IncrBrowserLaunches()
	slog.Info("browser launched", slog.Bool("headless", engine.Cfg.Headless))
	d.browser, d.launcher = b, l
	return b, nil
}

// WithPage runs fn with an authenticated page, guaranteeing page release on
// all exit paths. Navigation may rotate platform-issued cookies, so the
// post-run cookie jar (filtered to the platform domain) is returned
// alongside fn's error for the caller to persist.
func (d *Driver) WithPage(ctx context.Context, cookies []loom.Cookie, fn func(page *rod.Page) error) ([]loom.Cookie, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, err := d.handle()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrTransient, err)
	}

	if err := b.SetCookies(cookieParams(cookies)); err != nil {
		return nil, fmt.Errorf("set cookies: %w", err)
	}

	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		// A dead process surfaces here too; drop the handle so the next
		// call relaunches.
		d.teardown()
		return nil, fmt.Errorf("%w: open page: %v", engine.ErrTransient, err)
	}
	defer page.Close()

	page = page.Context(ctx).Timeout(engine.Cfg.NavTimeout)

	fnErr := fn(page)

	updated, err := b.GetCookies()
	if err != nil {
		slog.Debug("cookie readback failed", slog.Any("error", err))
		return nil, fnErr
	}
	return loom.FilterCookies(fromProtoCookies(updated)), fnErr
}

// CaptureNetworkResponse arms a hijack for the first response whose URL
// satisfies match, runs trigger, and returns the captured body. The wait is
// bounded by ctx.
func CaptureNetworkResponse(ctx context.Context, page *rod.Page, match func(string) bool, trigger func() error) ([]byte, error) {
	router := page.HijackRequests()
	defer router.Stop()

	bodyCh := make(chan []byte, 1)
	err := router.Add("*", "", func(h *rod.Hijack) {
		u := h.Request.URL().String()
		if !match(u) {
			h.ContinueRequest(&proto.FetchContinueRequest{})
			return
		}
		if err := h.LoadResponse(http.DefaultClient, true); err != nil {
			slog.Debug("hijack load failed", slog.String("url", u), slog.Any("error", err))
			return
		}
		select {
		case bodyCh <- []byte(h.Response.Body()):
		default:
		}
	})
	if err != nil {
		return nil, fmt.Errorf("hijack add: %w", err)
	}
	go router.Run()

	if err := trigger(); err != nil {
		return nil, err
	}

	select {
	case body := <-bodyCh:
		return body, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: response capture: %v", engine.ErrTransient, ctx.Err())
	}
}

// cookieParams converts stored cookies to CDP set-cookie parameters.
func cookieParams(cookies []loom.Cookie) []*proto.NetworkCookieParam {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		path := c.Path
		if path == "" {
			path = "/"
		}
		p := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if c.Expires > 0 {
			p.Expires = proto.TimeSinceEpoch(c.Expires)
		}
		switch strings.ToLower(c.SameSite) {
		case "strict":
			p.SameSite = proto.NetworkCookieSameSiteStrict
		case "lax":
			p.SameSite = proto.NetworkCookieSameSiteLax
		case "none", "no_restriction":
			p.SameSite = proto.NetworkCookieSameSiteNone
		}
		params = append(params, p)
	}
	return params
}

// fromProtoCookies converts CDP cookies back to the stored shape.
func fromProtoCookies(cookies []*proto.NetworkCookie) []loom.Cookie {
	out := make([]loom.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, loom.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  float64(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	return out
}
