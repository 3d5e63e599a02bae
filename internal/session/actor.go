package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/anatolykoptev/go_loom/internal/browser"
	"github.com/anatolykoptev/go_loom/internal/engine"
	"github.com/anatolykoptev/go_loom/internal/loom"
	"github.com/anatolykoptev/go_loom/internal/transcript"
)

// Session health states.
const (
	StatusNoCookies = "no_cookies"
	StatusReady     = "ready"
	StatusExpired   = "expired"
)

// Health is the status snapshot returned by the health endpoint. Always a
// concrete state; reading health never has side effects.
type Health struct {
	Status         string  `json:"status"`
	CookieAgeHours float64 `json:"cookieAgeHours"`
	ExpiresInHours float64 `json:"expiresInHours"`
}

// Result is one finished transcript extraction.
type Result struct {
	Transcript   string   `json:"transcript"`
	SegmentCount int      `json:"segmentCount"`
	Speakers     []string `json:"speakers,omitempty"`
	Method       string   `json:"extractionMethod"`
	Title        string   `json:"title,omitempty"`
}

// Actor owns all session state for one user key. Operations against a key
// are strictly serialized; distinct keys share nothing and run in parallel.
type Actor struct {
	key     string
	mu      sync.Mutex
	driver  *browser.Driver
	limiter *rate.Limiter

	timerMu sync.Mutex
	timer   *time.Timer

	cancelMu sync.Mutex
	opCancel context.CancelFunc
}

func newActor(key string) *Actor {
	limit := rate.Inf
	burst := 1
	if engine.Cfg.ExtractPerMin > 0 {
		limit = rate.Limit(engine.Cfg.ExtractPerMin / 60.0)
		burst = engine.Cfg.ExtractBurst
		if burst <= 0 {
			burst = 1
		}
	}
	return &Actor{
		key:     key,
		driver:  browser.NewDriver(),
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Key returns the user key this actor serves.
func (a *Actor) Key() string { return a.key }

// Health reports the session state. Pure read of stored state.
func (a *Actor) Health(ctx context.Context) (Health, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	sess, err := loadSession(ctx, a.key)
	if err != nil {
		return Health{}, err
	}
	return healthOf(sess), nil
}

func healthOf(sess *Session) Health {
	if sess == nil {
		return Health{Status: StatusNoCookies}
	}
	h := Health{
		CookieAgeHours: time.Since(sess.UploadedAt).Hours(),
	}
	if !sess.Active || len(sess.Cookies) == 0 || time.Now().After(sess.ExpiresAt()) {
		h.Status = StatusExpired
		return h
	}
	h.Status = StatusReady
	h.ExpiresInHours = time.Until(sess.ExpiresAt()).Hours()
	return h
}

// UploadCookies filters the upload to platform cookies, persists the
// session, and arms the keep-alive wake-up one interval out. Rejects
// uploads containing no platform cookies without touching prior state.
func (a *Actor) UploadCookies(ctx context.Context, cookies []loom.Cookie) (time.Time, error) {
	filtered := loom.FilterCookies(cookies)
	if len(filtered) == 0 {
		return time.Time{}, fmt.Errorf("%w: no %s cookies in upload", engine.ErrValidation, loom.Domain)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	sess := &Session{
		UserKey:    a.key,
		Cookies:    filtered,
		UploadedAt: time.Now(),
		Active:     true,
	}
	if err := saveSession(ctx, sess); err != nil {
		return time.Time{}, err
	}

	engine.IncrCookieUploads()
	a.scheduleRefresh(ctx, engine.Cfg.RefreshInterval)
	slog.Info("cookies uploaded",
		slog.String("key", a.key),
		slog.Int("cookies", len(filtered)),
		slog.Time("expires_at", sess.ExpiresAt()))
	return sess.ExpiresAt(), nil
}

// Extract runs the virtual-scroll extraction for a share URL. Requires an
// active session; fails needs_auth without touching the browser otherwise.
func (a *Actor) Extract(ctx context.Context, rawURL string) (*Result, error) {
	canonical, err := loom.NormalizeShareURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrValidation, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	sess, err := a.readySession(ctx)
	if err != nil {
		return nil, err
	}

	cacheKey := engine.CacheKey("transcript", canonical)
	if cached, ok := engine.CacheGet(ctx, cacheKey); ok {
		return &Result{
			Transcript:   cached.Transcript,
			SegmentCount: cached.SegmentCount,
			Speakers:     cached.Speakers,
			Method:       cached.Method,
		}, nil
	}

	if !a.limiter.Allow() {
		return nil, fmt.Errorf("%w: extraction rate limit reached", engine.ErrTransient)
	}

	opCtx := a.trackOp(ctx)
	defer a.untrackOp()

	res, updated, err := a.driver.ExtractTranscript(opCtx, sess.Cookies, canonical)
	a.persistCookies(ctx, sess, updated)
	if err != nil {
		return nil, err
	}

	engine.CacheSet(ctx, cacheKey, engine.CachedTranscript{
		URL:          canonical,
		Transcript:   res.Transcript,
		SegmentCount: res.SegmentCount,
		Speakers:     res.Speakers,
		Method:       res.Method,
	})

	return &Result{
		Transcript:   res.Transcript,
		SegmentCount: res.SegmentCount,
		Speakers:     res.Speakers,
		Method:       res.Method,
		Title:        res.Heading,
	}, nil
}

// ListItems discovers recordings in the workspace library, newest first,
// limited to the last `days` days when days > 0.
func (a *Actor) ListItems(ctx context.Context, days int) ([]loom.Item, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.listItemsLocked(ctx, days)
}

func (a *Actor) listItemsLocked(ctx context.Context, days int) ([]loom.Item, error) {
	sess, err := a.readySession(ctx)
	if err != nil {
		return nil, err
	}

	opCtx := a.trackOp(ctx)
	defer a.untrackOp()

	body, updated, err := a.driver.FetchLibrary(opCtx, sess.Cookies)
	a.persistCookies(ctx, sess, updated)
	if err != nil {
		return nil, err
	}

	items := loom.ParseLibraryHTML(body)
	return loom.FilterSince(items, days), nil
}

// MeetingTranscript extracts the indexed discovered item via the
// network-capture path: the caption file the player downloads is parsed
// instead of scraping rendered rows.
func (a *Actor) MeetingTranscript(ctx context.Context, index, days int) (*Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	items, err := a.listItemsLocked(ctx, days)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(items) {
		return nil, fmt.Errorf("%w: index %d of %d items", engine.ErrNotFound, index, len(items))
	}
	res, err := a.captureLocked(ctx, items[index].ShareURL)
	if err != nil {
		return nil, err
	}
	res.Title = items[index].Title
	return res, nil
}

// ExtractItem picks the extraction path by item type: meetings go through
// caption capture, clips through DOM scroll.
func (a *Actor) ExtractItem(ctx context.Context, item loom.Item) (*Result, error) {
	if item.Type == loom.ItemMeeting {
		a.mu.Lock()
		defer a.mu.Unlock()
		res, err := a.captureLocked(ctx, item.ShareURL)
		if err != nil {
			return nil, err
		}
		res.Title = item.Title
		return res, nil
	}
	res, err := a.Extract(ctx, item.ShareURL)
	if err != nil {
		return nil, err
	}
	if res.Title == "" {
		res.Title = item.Title
	}
	return res, nil
}

func (a *Actor) captureLocked(ctx context.Context, shareURL string) (*Result, error) {
	sess, err := a.readySession(ctx)
	if err != nil {
		return nil, err
	}

	if !a.limiter.Allow() {
		return nil, fmt.Errorf("%w: extraction rate limit reached", engine.ErrTransient)
	}

	opCtx := a.trackOp(ctx)
	defer a.untrackOp()

	blob, updated, err := a.driver.CaptureCaptions(opCtx, sess.Cookies, shareURL)
	a.persistCookies(ctx, sess, updated)
	if err != nil {
		return nil, err
	}

	segments := transcript.ParseCaptions(string(blob))
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: caption payload had no segments", engine.ErrExtractionFailed)
	}
	return &Result{
		Transcript:   transcript.RenderSegments(segments),
		SegmentCount: len(segments),
		Speakers:     transcript.Speakers(segments),
		Method:       "network-capture",
	}, nil
}

// Disconnect clears all session state: cookies, schedule, and the held
// browser process. An in-flight browser operation is cancelled first.
func (a *Actor) Disconnect(ctx context.Context) error {
	a.cancelInFlight()

	a.mu.Lock()
	defer a.mu.Unlock()

	a.stopTimer()
	if err := clearSchedule(ctx, a.key); err != nil {
		return err
	}
	if err := deleteSession(ctx, a.key); err != nil {
		return err
	}
	a.driver.Close()
	slog.Info("session disconnected", slog.String("key", a.key))
	return nil
}

// RecordExecution appends one sync attempt to the bounded history.
func (a *Actor) RecordExecution(ctx context.Context, rec ExecutionRecord) error {
	return appendExecution(ctx, a.key, rec)
}

// Executions returns the recent execution history, newest first.
func (a *Actor) Executions(ctx context.Context, limit int) ([]ExecutionRecord, error) {
	return listExecutions(ctx, a.key, limit)
}

// readySession loads the session and enforces the active/TTL gate shared by
// every browser-touching operation.
func (a *Actor) readySession(ctx context.Context) (*Session, error) {
	sess, err := loadSession(ctx, a.key)
	if err != nil {
		return nil, err
	}
	if h := healthOf(sess); h.Status != StatusReady {
		return nil, fmt.Errorf("%w: session %s", engine.ErrNeedsAuth, h.Status)
	}
	return sess, nil
}

// persistCookies merges navigation-rotated cookies into the stored jar.
// Best-effort: a persistence failure never masks the operation's own error.
func (a *Actor) persistCookies(ctx context.Context, sess *Session, updated []loom.Cookie) {
	if len(updated) == 0 {
		return
	}
	sess.Cookies = loom.MergeCookies(sess.Cookies, updated)
	if err := saveSession(ctx, sess); err != nil {
		slog.Warn("cookie persist failed", slog.String("key", a.key), slog.Any("error", err))
	}
}

// trackOp derives a cancellable context for a browser operation and
// registers its cancel so Disconnect can abort mid-flight work.
func (a *Actor) trackOp(ctx context.Context) context.Context {
	opCtx, cancel := context.WithCancel(ctx)
	a.cancelMu.Lock()
	a.opCancel = cancel
	a.cancelMu.Unlock()
	return opCtx
}

func (a *Actor) untrackOp() {
	a.cancelMu.Lock()
	if a.opCancel != nil {
		a.opCancel()
		a.opCancel = nil
	}
	a.cancelMu.Unlock()
}

func (a *Actor) cancelInFlight() {
	a.cancelMu.Lock()
	if a.opCancel != nil {
		a.opCancel()
	}
	a.cancelMu.Unlock()
}

// --- keep-alive refresh ---

// scheduleRefresh arms the single pending wake-up, superseding any prior
// one, and persists its due time so restarts resume ticking.
func (a *Actor) scheduleRefresh(ctx context.Context, d time.Duration) {
	a.timerMu.Lock()
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(d, a.refreshTick)
	a.timerMu.Unlock()

	if err := saveSchedule(ctx, a.key, time.Now().Add(d)); err != nil {
		slog.Warn("schedule persist failed", slog.String("key", a.key), slog.Any("error", err))
	}
}

func (a *Actor) stopTimer() {
	a.timerMu.Lock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.timerMu.Unlock()
}

// resumeSchedule re-arms a persisted wake-up after process restart. Overdue
// ticks fire shortly after startup rather than immediately, letting the
// process finish coming up.
func (a *Actor) resumeSchedule(ctx context.Context) {
	sess, err := loadSession(ctx, a.key)
	if err != nil || healthOf(sess).Status != StatusReady {
		return
	}
	nextDue, err := loadSchedule(ctx, a.key)
	if err != nil || nextDue.IsZero() {
		return
	}
	wait := time.Until(nextDue)
	if wait < time.Minute {
		wait = time.Minute
	}
	a.timerMu.Lock()
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(wait, a.refreshTick)
	a.timerMu.Unlock()
	slog.Info("refresh schedule resumed", slog.String("key", a.key), slog.Duration("in", wait))
}

// refresh outcomes
type refreshOutcome int

const (
	refreshOK refreshOutcome = iota
	refreshTransient
	refreshExpired
)

// refreshTick is the scheduled keep-alive: a lightweight authenticated
// navigation that detects and extends session validity. Success and
// transient failure reschedule one interval out; a login redirect is
// terminal until the next upload.
func (a *Actor) refreshTick() {
	ctx, cancel := context.WithTimeout(context.Background(), engine.Cfg.NavTimeout)
	defer cancel()

	a.mu.Lock()
	defer a.mu.Unlock()

	engine.IncrRefreshTicks()

	sess, err := loadSession(ctx, a.key)
	if err != nil {
		slog.Warn("refresh: load failed", slog.String("key", a.key), slog.Any("error", err))
		a.scheduleRefresh(ctx, engine.Cfg.RefreshInterval)
		return
	}
	if healthOf(sess).Status != StatusReady {
		// Disconnected or already expired between scheduling and firing.
		return
	}

	outcome, replacements := a.probe(ctx, sess)
	switch outcome {
	case refreshOK:
		sess.Cookies = loom.MergeCookies(sess.Cookies, replacements)
		sess.UploadedAt = time.Now()
		if err := saveSession(ctx, sess); err != nil {
			slog.Warn("refresh: save failed", slog.String("key", a.key), slog.Any("error", err))
		}
		a.scheduleRefresh(ctx, engine.Cfg.RefreshInterval)
		slog.Debug("refresh ok", slog.String("key", a.key))

	case refreshTransient:
		// Retry next tick; transient failures never force re-auth.
		a.scheduleRefresh(ctx, engine.Cfg.RefreshInterval)
		slog.Warn("refresh transient failure", slog.String("key", a.key))

	case refreshExpired:
		engine.IncrRefreshExpiries()
		sess.Cookies = nil
		sess.Active = false
		if err := saveSession(ctx, sess); err != nil {
			slog.Warn("refresh: save failed", slog.String("key", a.key), slog.Any("error", err))
		}
		if err := clearSchedule(ctx, a.key); err != nil {
			slog.Warn("refresh: clear schedule failed", slog.String("key", a.key), slog.Any("error", err))
		}
		slog.Warn("session expired, re-sync required", slog.String("key", a.key))
	}
}

// probe checks session validity, preferring the TLS probe client (no
// browser involved) and falling back to a browser navigation.
func (a *Actor) probe(ctx context.Context, sess *Session) (refreshOutcome, []loom.Cookie) {
	probeURL := engine.Cfg.ProbeURL
	if probeURL == "" {
		probeURL = loom.BaseURL + loom.LibraryPath
	}

	if pc := engine.Cfg.ProbeClient; pc != nil {
		res, err := pc.Get(probeURL, loom.CookieHeader(sess.Cookies))
		if err != nil {
			return refreshTransient, nil
		}
		switch {
		case res.StatusCode >= 200 && res.StatusCode < 300:
			return refreshOK, setCookiesToLoom(res)
		case res.StatusCode >= 300 && res.StatusCode < 400:
			if loom.IsLoginURL(res.Location) {
				return refreshExpired, nil
			}
			// A non-login redirect still proves the session authenticates.
			return refreshOK, setCookiesToLoom(res)
		case res.StatusCode == 401 || res.StatusCode == 403:
			return refreshExpired, nil
		default:
			return refreshTransient, nil
		}
	}

	updated, err := a.driver.Probe(ctx, sess.Cookies, probeURL)
	switch {
	case err == nil:
		return refreshOK, updated
	case errors.Is(err, engine.ErrNeedsAuth):
		return refreshExpired, nil
	default:
		return refreshTransient, nil
	}
}

// setCookiesToLoom converts probe Set-Cookie replacements to the stored
// shape, keeping only platform-domain cookies.
func setCookiesToLoom(res *engine.ProbeResult) []loom.Cookie {
	var out []loom.Cookie
	for _, c := range res.SetCookies {
		lc := loom.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HttpOnly,
			Secure:   c.Secure,
		}
		if !c.Expires.IsZero() {
			lc.Expires = float64(c.Expires.Unix())
		}
		out = append(out, lc)
	}
	return loom.FilterCookies(out)
}
