package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/ysmood/gson"

	"github.com/anatolykoptev/go_loom/internal/engine"
	"github.com/anatolykoptev/go_loom/internal/loom"
	"github.com/anatolykoptev/go_loom/internal/transcript"
)

// ExtractResult is the structured output of one page extraction.
type ExtractResult struct {
	Transcript     string
	SegmentCount   int
	Speakers       []string
	Heading        string
	Method         string
	DisplayedTotal int
}

// settleWait gives the client-side app time to hydrate after load; the
// transcript panel renders well after the document itself.
const settleWait = 10 * time.Second

// ExtractTranscript navigates to a share URL and runs the in-page
// virtual-scroll extraction. Returns the result plus the updated cookie jar.
func (d *Driver) ExtractTranscript(ctx context.Context, cookies []loom.Cookie, shareURL string) (*ExtractResult, []loom.Cookie, error) {
	engine.IncrExtractions()

	var result *ExtractResult
	updated, err := d.WithPage(ctx, cookies, func(page *rod.Page) error {
		if err := navigate(page, shareURL); err != nil {
			return err
		}

		res, err := runExtractScript(page)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		engine.IncrExtractionErrors()
		return nil, updated, err
	}
	return result, updated, nil
}

// CaptureCaptions extracts via the network-capture path: the caption file
// the player downloads is intercepted instead of scraping rendered DOM.
// Returns the raw caption blob.
func (d *Driver) CaptureCaptions(ctx context.Context, cookies []loom.Cookie, shareURL string) ([]byte, []loom.Cookie, error) {
	engine.IncrCaptureExtractions()

	var blob []byte
	updated, err := d.WithPage(ctx, cookies, func(page *rod.Page) error {
		captureCtx, cancel := context.WithTimeout(ctx, engine.Cfg.NavTimeout)
		defer cancel()

		body, err := CaptureNetworkResponse(captureCtx, page, loom.IsCaptionURL, func() error {
			return navigate(page, shareURL)
		})
		if err != nil {
			return err
		}
		if len(body) == 0 {
			return fmt.Errorf("%w: empty caption payload", engine.ErrExtractionFailed)
		}
		blob = body
		return nil
	})
	if err != nil {
		engine.IncrExtractionErrors()
		return nil, updated, err
	}
	return blob, updated, nil
}

// FetchLibrary navigates to the workspace library and returns the rendered
// HTML for host-side item discovery.
func (d *Driver) FetchLibrary(ctx context.Context, cookies []loom.Cookie) (string, []loom.Cookie, error) {
	engine.IncrLibraryFetches()

	libraryURL := engine.Cfg.LibraryURL
	if libraryURL == "" {
		libraryURL = loom.BaseURL + loom.LibraryPath
	}

	var body string
	updated, err := d.WithPage(ctx, cookies, func(page *rod.Page) error {
		if err := navigate(page, libraryURL); err != nil {
			return err
		}
		html, err := page.HTML()
		if err != nil {
			return fmt.Errorf("%w: read page: %v", engine.ErrTransient, err)
		}
		body = html
		return nil
	})
	if err != nil {
		return "", updated, err
	}
	return body, updated, nil
}

// Probe performs the keep-alive check through the browser: a lightweight
// authenticated navigation whose only question is "are we still signed in".
// Used when no TLS probe client is configured.
func (d *Driver) Probe(ctx context.Context, cookies []loom.Cookie, probeURL string) ([]loom.Cookie, error) {
	return d.WithPage(ctx, cookies, func(page *rod.Page) error {
		return navigate(page, probeURL)
	})
}

// navigate loads a URL, waits for it to settle, and converts a login
// redirect into ErrNeedsAuth.
func navigate(page *rod.Page, url string) error {
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("%w: navigate %s: %v", engine.ErrTransient, url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("%w: wait load: %v", engine.ErrTransient, err)
	}
	// Best-effort settle; hydration may finish before the idle deadline.
	if err := page.WaitIdle(settleWait); err != nil {
		slog.Debug("page idle wait ended early", slog.Any("error", err))
	}

	info, err := page.Info()
	if err != nil {
		return fmt.Errorf("%w: page info: %v", engine.ErrTransient, err)
	}
	if loom.IsLoginURL(info.URL) {
		return fmt.Errorf("%w: redirected to %s", engine.ErrNeedsAuth, info.URL)
	}
	return nil
}

// runExtractScript evaluates the extraction payload and decodes its result.
func runExtractScript(page *rod.Page) (*ExtractResult, error) {
	obj, err := page.Eval(extractScript, engine.Cfg.ScrollStep, engine.Cfg.PrewarmPasses)
	if err != nil {
		return nil, fmt.Errorf("%w: eval: %v", engine.ErrExtractionFailed, err)
	}

	var v gson.JSON = obj.Value
	res := &ExtractResult{
		Transcript:     v.Get("transcript").Str(),
		SegmentCount:   v.Get("segmentCount").Int(),
		Heading:        v.Get("heading").Str(),
		Method:         v.Get("method").Str(),
		DisplayedTotal: v.Get("displayedTotal").Int(),
	}
	for _, s := range v.Get("speakers").Arr() {
		if name := s.Str(); name != "" {
			res.Speakers = append(res.Speakers, name)
		}
	}

	if res.SegmentCount == 0 || res.Transcript == "" {
		return nil, fmt.Errorf("%w: no transcript rows found", engine.ErrExtractionFailed)
	}

	// Re-apply the dedup and ordering rules host-side.
	rows := transcript.DedupRows(strings.Split(res.Transcript, "\n\n"))
	transcript.SortRows(rows)
	res.Transcript = transcript.JoinRows(rows)
	res.SegmentCount = len(rows)

	// The container heuristic degrades silently when the markup shifts;
	// compare against the page's own counter when one is displayed.
	if res.DisplayedTotal > 0 && res.SegmentCount < res.DisplayedTotal {
		slog.Warn("extraction shortfall",
			slog.Int("collected", res.SegmentCount),
			slog.Int("displayed_total", res.DisplayedTotal),
			slog.String("method", res.Method))
	}

	return res, nil
}
