package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/anatolykoptev/go_loom/internal/engine"
	"github.com/anatolykoptev/go_loom/internal/loom"
)

// resetStore points the package at a fresh temp database.
func resetStore(t *testing.T) {
	t.Helper()
	engine.Init(engine.Config{DataDir: t.TempDir()})
	sessionDB = nil
	sessionErr = nil
	sessionOnce = sync.Once{}
}

func testCookies() []loom.Cookie {
	return []loom.Cookie{
		{Name: "connect.sid", Value: "abc", Domain: ".loom.com", Path: "/", HTTPOnly: true, Secure: true},
		{Name: "loom_session", Value: "xyz", Domain: "www.loom.com", Path: "/"},
	}
}

func TestSessionRoundTrip(t *testing.T) {
	resetStore(t)
	ctx := context.Background()

	uploaded := time.Now().Truncate(time.Second)
	in := &Session{UserKey: "alice", Cookies: testCookies(), UploadedAt: uploaded, Active: true}
	if err := saveSession(ctx, in); err != nil {
		t.Fatalf("saveSession: %v", err)
	}

	out, err := loadSession(ctx, "alice")
	if err != nil {
		t.Fatalf("loadSession: %v", err)
	}
	if out == nil {
		t.Fatal("expected session, got nil")
	}
	if !out.Active {
		t.Error("expected active session")
	}
	if len(out.Cookies) != 2 {
		t.Errorf("cookies = %d, want 2", len(out.Cookies))
	}
	if out.Cookies[0].Name != "connect.sid" || !out.Cookies[0].HTTPOnly {
		t.Errorf("cookie round trip lost fields: %+v", out.Cookies[0])
	}
	if !out.UploadedAt.Equal(uploaded.UTC()) {
		t.Errorf("uploadedAt = %v, want %v", out.UploadedAt, uploaded)
	}
}

func TestLoadSessionMissing(t *testing.T) {
	resetStore(t)

	out, err := loadSession(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("loadSession: %v", err)
	}
	if out != nil {
		t.Errorf("expected nil session, got %+v", out)
	}
}

func TestSaveSessionZeroCookiesForcesInactive(t *testing.T) {
	resetStore(t)
	ctx := context.Background()

	in := &Session{UserKey: "alice", Cookies: nil, UploadedAt: time.Now(), Active: true}
	if err := saveSession(ctx, in); err != nil {
		t.Fatalf("saveSession: %v", err)
	}
	out, err := loadSession(ctx, "alice")
	if err != nil {
		t.Fatalf("loadSession: %v", err)
	}
	if out.Active {
		t.Error("session with no cookies must not be active")
	}
}

func TestDeleteSession(t *testing.T) {
	resetStore(t)
	ctx := context.Background()

	saveSession(ctx, &Session{UserKey: "alice", Cookies: testCookies(), UploadedAt: time.Now(), Active: true})
	if err := deleteSession(ctx, "alice"); err != nil {
		t.Fatalf("deleteSession: %v", err)
	}
	out, _ := loadSession(ctx, "alice")
	if out != nil {
		t.Error("session survived delete")
	}
}

func TestListSessionKeys(t *testing.T) {
	resetStore(t)
	ctx := context.Background()

	for _, key := range []string{"alice", "bob"} {
		saveSession(ctx, &Session{UserKey: key, Cookies: testCookies(), UploadedAt: time.Now(), Active: true})
	}
	keys, err := listSessionKeys(ctx)
	if err != nil {
		t.Fatalf("listSessionKeys: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("keys = %v, want 2 entries", keys)
	}
}

func TestScheduleRoundTrip(t *testing.T) {
	resetStore(t)
	ctx := context.Background()

	due := time.Now().Add(time.Hour).Truncate(time.Second)
	if err := saveSchedule(ctx, "alice", due); err != nil {
		t.Fatalf("saveSchedule: %v", err)
	}
	got, err := loadSchedule(ctx, "alice")
	if err != nil {
		t.Fatalf("loadSchedule: %v", err)
	}
	if !got.Equal(due.UTC()) {
		t.Errorf("nextDue = %v, want %v", got, due)
	}

	// Re-arming replaces, never accumulates.
	due2 := due.Add(30 * time.Minute)
	saveSchedule(ctx, "alice", due2)
	got, _ = loadSchedule(ctx, "alice")
	if !got.Equal(due2.UTC()) {
		t.Errorf("nextDue = %v, want %v after re-arm", got, due2)
	}

	if err := clearSchedule(ctx, "alice"); err != nil {
		t.Fatalf("clearSchedule: %v", err)
	}
	got, _ = loadSchedule(ctx, "alice")
	if !got.IsZero() {
		t.Errorf("schedule survived clear: %v", got)
	}
}

func TestExecutionHistoryTrim(t *testing.T) {
	resetStore(t)
	ctx := context.Background()

	start := time.Now().Add(-time.Hour)
	for i := 0; i < executionHistoryLimit+5; i++ {
		rec := ExecutionRecord{
			StartedAt:   start.Add(time.Duration(i) * time.Second),
			CompletedAt: start.Add(time.Duration(i)*time.Second + 500*time.Millisecond),
			Success:     i%2 == 0,
			Clips:       i,
		}
		if err := appendExecution(ctx, "alice", rec); err != nil {
			t.Fatalf("appendExecution %d: %v", i, err)
		}
	}

	recs, err := listExecutions(ctx, "alice", 0)
	if err != nil {
		t.Fatalf("listExecutions: %v", err)
	}
	if len(recs) != executionHistoryLimit {
		t.Fatalf("history = %d records, want %d", len(recs), executionHistoryLimit)
	}
	// Newest first; the oldest five were dropped.
	if recs[0].Clips != executionHistoryLimit+4 {
		t.Errorf("newest clips = %d, want %d", recs[0].Clips, executionHistoryLimit+4)
	}
	if recs[len(recs)-1].Clips != 5 {
		t.Errorf("oldest clips = %d, want 5", recs[len(recs)-1].Clips)
	}
}

func TestExecutionHistoryPerKey(t *testing.T) {
	resetStore(t)
	ctx := context.Background()

	appendExecution(ctx, "alice", ExecutionRecord{StartedAt: time.Now(), CompletedAt: time.Now(), Success: true})
	appendExecution(ctx, "bob", ExecutionRecord{StartedAt: time.Now(), CompletedAt: time.Now(), Error: "boom"})

	recs, err := listExecutions(ctx, "alice", 0)
	if err != nil {
		t.Fatalf("listExecutions: %v", err)
	}
	if len(recs) != 1 || !recs[0].Success {
		t.Errorf("alice history = %+v, want one success", recs)
	}
}
