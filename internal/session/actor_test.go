package session

import (
	"context"
	"errors"
	"testing"
	"time"

	fhttp "github.com/bogdanfinn/fhttp"

	"github.com/anatolykoptev/go_loom/internal/engine"
	"github.com/anatolykoptev/go_loom/internal/loom"
)

func probeSetCookies(name, value, domain string) []*fhttp.Cookie {
	return []*fhttp.Cookie{{Name: name, Value: value, Domain: domain, Path: "/"}}
}

type stubProber struct {
	res *engine.ProbeResult
	err error
}

func (s *stubProber) Get(url, cookieHeader string) (*engine.ProbeResult, error) {
	return s.res, s.err
}

func testActor(t *testing.T, key string) *Actor {
	t.Helper()
	resetStore(t)
	a := newActor(key)
	t.Cleanup(a.stopTimer)
	return a
}

func TestHealthNoCookies(t *testing.T) {
	a := testActor(t, "alice")

	h, err := a.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if h.Status != StatusNoCookies {
		t.Errorf("status = %q, want %q", h.Status, StatusNoCookies)
	}
}

func TestUploadCookiesFiltersForeignDomains(t *testing.T) {
	a := testActor(t, "alice")
	ctx := context.Background()

	cookies := append(testCookies(),
		loom.Cookie{Name: "ga", Value: "x", Domain: ".google.com"},
		loom.Cookie{Name: "li", Value: "y", Domain: ".linkedin.com"})

	expiresAt, err := a.UploadCookies(ctx, cookies)
	if err != nil {
		t.Fatalf("UploadCookies: %v", err)
	}
	if !expiresAt.After(time.Now()) {
		t.Errorf("expiresAt = %v, want future", expiresAt)
	}

	sess, err := loadSession(ctx, "alice")
	if err != nil {
		t.Fatalf("loadSession: %v", err)
	}
	if len(sess.Cookies) != 2 {
		t.Errorf("stored %d cookies, want 2 platform cookies", len(sess.Cookies))
	}
	for _, c := range sess.Cookies {
		if c.Domain == ".google.com" || c.Domain == ".linkedin.com" {
			t.Errorf("foreign cookie persisted: %+v", c)
		}
	}

	h, _ := a.Health(ctx)
	if h.Status != StatusReady {
		t.Errorf("status after upload = %q, want %q", h.Status, StatusReady)
	}

	// scheduleRefresh persisted the wake-up.
	due, err := loadSchedule(ctx, "alice")
	if err != nil || due.IsZero() {
		t.Errorf("expected persisted schedule, got %v, %v", due, err)
	}
}

func TestUploadCookiesRejectsEmptyUpload(t *testing.T) {
	a := testActor(t, "alice")
	ctx := context.Background()

	if _, err := a.UploadCookies(ctx, testCookies()); err != nil {
		t.Fatalf("UploadCookies: %v", err)
	}

	_, err := a.UploadCookies(ctx, []loom.Cookie{{Name: "ga", Value: "x", Domain: ".google.com"}})
	if !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}

	// Prior state untouched by the rejected upload.
	h, _ := a.Health(ctx)
	if h.Status != StatusReady {
		t.Errorf("status after rejected upload = %q, want %q", h.Status, StatusReady)
	}
}

func TestHealthExpiredAfterTTL(t *testing.T) {
	a := testActor(t, "alice")
	ctx := context.Background()

	sess := &Session{
		UserKey:    "alice",
		Cookies:    testCookies(),
		UploadedAt: time.Now().Add(-engine.Cfg.SessionTTL - time.Minute),
		Active:     true,
	}
	if err := saveSession(ctx, sess); err != nil {
		t.Fatalf("saveSession: %v", err)
	}

	h, _ := a.Health(ctx)
	if h.Status != StatusExpired {
		t.Errorf("status = %q, want %q", h.Status, StatusExpired)
	}
}

func TestReadySessionGatesOperations(t *testing.T) {
	a := testActor(t, "alice")

	_, err := a.Extract(context.Background(), "https://www.loom.com/share/1f2e3d4c5b6a79880917263545362718")
	if !errors.Is(err, engine.ErrNeedsAuth) {
		t.Fatalf("err = %v, want ErrNeedsAuth", err)
	}
}

func TestExtractRejectsBadURL(t *testing.T) {
	a := testActor(t, "alice")

	_, err := a.Extract(context.Background(), "https://example.com/not-a-share-link")
	if !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestDisconnect(t *testing.T) {
	a := testActor(t, "alice")
	ctx := context.Background()

	if _, err := a.UploadCookies(ctx, testCookies()); err != nil {
		t.Fatalf("UploadCookies: %v", err)
	}
	if err := a.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	h, _ := a.Health(ctx)
	if h.Status != StatusNoCookies {
		t.Errorf("status after disconnect = %q, want %q", h.Status, StatusNoCookies)
	}
	due, _ := loadSchedule(ctx, "alice")
	if !due.IsZero() {
		t.Errorf("schedule survived disconnect: %v", due)
	}
}

func TestRefreshTickSuccessExtendsSession(t *testing.T) {
	a := testActor(t, "alice")
	ctx := context.Background()

	engine.Cfg.ProbeClient = &stubProber{res: &engine.ProbeResult{StatusCode: 200}}

	uploaded := time.Now().Add(-50 * time.Minute)
	saveSession(ctx, &Session{UserKey: "alice", Cookies: testCookies(), UploadedAt: uploaded, Active: true})

	a.refreshTick()

	sess, _ := loadSession(ctx, "alice")
	if !sess.UploadedAt.After(uploaded) {
		t.Error("successful probe must extend the validity window")
	}
	if !sess.Active {
		t.Error("session must stay active after a successful probe")
	}
	due, _ := loadSchedule(ctx, "alice")
	if due.IsZero() {
		t.Error("successful probe must re-arm the schedule")
	}
}

func TestRefreshTickLoginRedirectExpires(t *testing.T) {
	a := testActor(t, "alice")
	ctx := context.Background()

	engine.Cfg.ProbeClient = &stubProber{res: &engine.ProbeResult{
		StatusCode: 302,
		Location:   "https://www.loom.com/login?next=%2Flooms%2Fvideos",
	}}

	saveSession(ctx, &Session{UserKey: "alice", Cookies: testCookies(), UploadedAt: time.Now(), Active: true})
	saveSchedule(ctx, "alice", time.Now().Add(time.Hour))

	a.refreshTick()

	sess, _ := loadSession(ctx, "alice")
	if sess == nil {
		t.Fatal("expiry must keep the row so health reports expired, not no_cookies")
	}
	if sess.Active || len(sess.Cookies) != 0 {
		t.Errorf("expired session kept cookies or active flag: %+v", sess)
	}
	h, _ := a.Health(ctx)
	if h.Status != StatusExpired {
		t.Errorf("status = %q, want %q", h.Status, StatusExpired)
	}
	due, _ := loadSchedule(ctx, "alice")
	if !due.IsZero() {
		t.Error("expiry must stop the keep-alive schedule")
	}
}

func TestRefreshTickAuthStatusExpires(t *testing.T) {
	a := testActor(t, "alice")
	ctx := context.Background()

	engine.Cfg.ProbeClient = &stubProber{res: &engine.ProbeResult{StatusCode: 401}}
	saveSession(ctx, &Session{UserKey: "alice", Cookies: testCookies(), UploadedAt: time.Now(), Active: true})

	a.refreshTick()

	h, _ := a.Health(ctx)
	if h.Status != StatusExpired {
		t.Errorf("status = %q, want %q", h.Status, StatusExpired)
	}
}

func TestRefreshTickTransientKeepsSession(t *testing.T) {
	a := testActor(t, "alice")
	ctx := context.Background()

	engine.Cfg.ProbeClient = &stubProber{err: errors.New("dial tcp: i/o timeout")}

	uploaded := time.Now().Add(-10 * time.Minute)
	saveSession(ctx, &Session{UserKey: "alice", Cookies: testCookies(), UploadedAt: uploaded, Active: true})

	a.refreshTick()

	sess, _ := loadSession(ctx, "alice")
	if !sess.Active || len(sess.Cookies) == 0 {
		t.Error("transient failure must not clear the session")
	}
	if sess.UploadedAt.After(uploaded.Add(time.Minute)) {
		t.Error("transient failure must not extend the validity window")
	}
	due, _ := loadSchedule(ctx, "alice")
	if due.IsZero() {
		t.Error("transient failure must re-arm the schedule")
	}
	h, _ := a.Health(ctx)
	if h.Status != StatusReady {
		t.Errorf("status = %q, want %q", h.Status, StatusReady)
	}
}

func TestRefreshTickMergesReplacementCookies(t *testing.T) {
	a := testActor(t, "alice")
	ctx := context.Background()

	engine.Cfg.ProbeClient = &stubProber{res: &engine.ProbeResult{
		StatusCode: 200,
		SetCookies: probeSetCookies("connect.sid", "rotated", ".loom.com"),
	}}

	saveSession(ctx, &Session{UserKey: "alice", Cookies: testCookies(), UploadedAt: time.Now(), Active: true})

	a.refreshTick()

	sess, _ := loadSession(ctx, "alice")
	var got string
	for _, c := range sess.Cookies {
		if c.Name == "connect.sid" {
			got = c.Value
		}
	}
	if got != "rotated" {
		t.Errorf("connect.sid = %q, want rotated replacement", got)
	}
	if len(sess.Cookies) != 2 {
		t.Errorf("merge changed jar size: %d cookies", len(sess.Cookies))
	}
}

func TestDashboardAggregation(t *testing.T) {
	a := testActor(t, "alice")
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	recs := []ExecutionRecord{
		{StartedAt: base, CompletedAt: base.Add(10 * time.Second), Success: true, Clips: 3, Meetings: 1},
		{StartedAt: base.Add(time.Minute), CompletedAt: base.Add(time.Minute + 20*time.Second), Success: false, Error: "browser crashed"},
		{StartedAt: base.Add(2 * time.Minute), CompletedAt: base.Add(2*time.Minute + 30*time.Second), Success: true, Clips: 2},
	}
	for _, rec := range recs {
		if err := a.RecordExecution(ctx, rec); err != nil {
			t.Fatalf("RecordExecution: %v", err)
		}
	}

	d, err := a.Dashboard(ctx)
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if d.TotalRuns != 3 || d.Successes != 2 || d.Failures != 1 {
		t.Errorf("runs/successes/failures = %d/%d/%d, want 3/2/1", d.TotalRuns, d.Successes, d.Failures)
	}
	if d.TotalClips != 5 || d.TotalMeets != 1 {
		t.Errorf("clips/meetings = %d/%d, want 5/1", d.TotalClips, d.TotalMeets)
	}
	if d.LastRun == nil || !d.LastRun.Success || d.LastRun.Clips != 2 {
		t.Errorf("lastRun = %+v, want newest record", d.LastRun)
	}

	an, err := a.Analytics(ctx)
	if err != nil {
		t.Fatalf("Analytics: %v", err)
	}
	if len(an.Days) != 1 || an.Days[0].Runs != 3 {
		t.Errorf("days = %+v, want one day with 3 runs", an.Days)
	}
	if an.AvgDurationSec != 20 {
		t.Errorf("avgDuration = %v, want 20s", an.AvgDurationSec)
	}
	if an.LastError != "browser crashed" {
		t.Errorf("lastError = %q", an.LastError)
	}
}

func TestRegistryReturnsSameActor(t *testing.T) {
	resetStore(t)
	t.Cleanup(CloseAll)

	a := For("alice")
	if For("alice") != a {
		t.Error("same key must map to the same actor")
	}
	if For("bob") == a {
		t.Error("distinct keys must get distinct actors")
	}
}
