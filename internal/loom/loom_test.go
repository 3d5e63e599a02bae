package loom

import (
	"strings"
	"testing"
	"time"
)

const testID = "1f2e3d4c5b6a79880917263545362718"

func TestNormalizeShareURL(t *testing.T) {
	canonical := BaseURL + "/share/" + testID

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"share url", "https://www.loom.com/share/" + testID, canonical, false},
		{"bare domain", "https://loom.com/share/" + testID, canonical, false},
		{"embed url", "https://www.loom.com/embed/" + testID, canonical, false},
		{"query stripped", "https://www.loom.com/share/" + testID + "?sid=x&t=5", canonical, false},
		{"bare id", testID, canonical, false},
		{"wrong host", "https://example.com/share/" + testID, "", true},
		{"wrong path", "https://www.loom.com/settings", "", true},
		{"short id", "https://www.loom.com/share/abc123", "", true},
		{"empty", "", "", true},
		{"ftp scheme", "ftp://www.loom.com/share/" + testID, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeShareURL(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestVideoID(t *testing.T) {
	if got := VideoID(BaseURL + "/share/" + testID); got != testID {
		t.Errorf("VideoID = %q, want %q", got, testID)
	}
	if got := VideoID("https://example.com/x"); got != "" {
		t.Errorf("VideoID on junk = %q, want empty", got)
	}
}

func TestIsLoginURL(t *testing.T) {
	if !IsLoginURL("https://www.loom.com/login?next=%2Flooms") {
		t.Error("expected /login to be a login URL")
	}
	if !IsLoginURL("https://www.loom.com/sign-in") {
		t.Error("expected /sign-in to be a login URL")
	}
	if IsLoginURL("https://www.loom.com/share/" + testID) {
		t.Error("share URL misdetected as login")
	}
}

func TestFilterCookies(t *testing.T) {
	in := []Cookie{
		{Name: "connect.sid", Value: "a", Domain: ".loom.com"},
		{Name: "ajs_user", Value: "b", Domain: "www.loom.com"},
		{Name: "ga", Value: "c", Domain: ".google.com"},
		{Name: "sess", Value: "d", Domain: "notloom.com"},
	}
	got := FilterCookies(in)
	if len(got) != 2 {
		t.Fatalf("expected 2 platform cookies, got %d", len(got))
	}
	if got[0].Name != "connect.sid" || got[1].Name != "ajs_user" {
		t.Errorf("wrong cookies kept: %+v", got)
	}
}

func TestFilterCookiesAllForeign(t *testing.T) {
	got := FilterCookies([]Cookie{{Name: "ga", Domain: ".google.com"}})
	if len(got) != 0 {
		t.Errorf("expected empty result, got %+v", got)
	}
}

func TestCookieHeader(t *testing.T) {
	h := CookieHeader([]Cookie{
		{Name: "a", Value: "1"},
		{Name: "", Value: "dropped"},
		{Name: "b", Value: "2"},
	})
	if h != "a=1; b=2" {
		t.Errorf("CookieHeader = %q", h)
	}
}

func TestMergeCookies(t *testing.T) {
	base := []Cookie{
		{Name: "sid", Value: "old"},
		{Name: "keep", Value: "1"},
	}
	merged := MergeCookies(base, []Cookie{
		{Name: "sid", Value: "new"},
		{Name: "extra", Value: "2"},
	})
	if len(merged) != 3 {
		t.Fatalf("expected 3 cookies, got %d", len(merged))
	}
	byName := make(map[string]string)
	for _, c := range merged {
		byName[c.Name] = c.Value
	}
	if byName["sid"] != "new" || byName["keep"] != "1" || byName["extra"] != "2" {
		t.Errorf("merge result wrong: %v", byName)
	}
}

func TestParseLibraryHTML(t *testing.T) {
	id2 := strings.Repeat("ab", 16)
	body := `<html><body>
	<a href="/share/` + testID + `" aria-label="Weekly standup">
		<time datetime="2026-08-20T10:00:00Z">Aug 20</time>
	</a>
	<a href="https://www.loom.com/share/` + id2 + `" class="card meeting-recording">
		All hands recording
		<time datetime="2026-08-25T09:30:00Z">Aug 25</time>
	</a>
	<a href="/share/` + testID + `">duplicate of first</a>
	<a href="/settings">not a share link</a>
	</body></html>`

	items := ParseLibraryHTML(body)
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d: %+v", len(items), items)
	}

	// Newest first.
	if items[0].ID != id2 {
		t.Errorf("expected newest item first, got %+v", items[0])
	}
	if items[0].Type != ItemMeeting {
		t.Errorf("meeting card type = %q", items[0].Type)
	}
	if items[0].Title != "All hands recording" {
		t.Errorf("title = %q", items[0].Title)
	}
	if items[1].Title != "Weekly standup" {
		t.Errorf("aria-label title = %q", items[1].Title)
	}
	if items[1].Type != ItemClip {
		t.Errorf("clip card type = %q", items[1].Type)
	}
}

func TestFilterSince(t *testing.T) {
	now := time.Now()
	items := []Item{
		{ID: "1", Date: now.AddDate(0, 0, -1)},
		{ID: "2", Date: now.AddDate(0, 0, -30)},
		{ID: "3"}, // undated, kept
	}
	got := FilterSince(items, 7)
	if len(got) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got))
	}
	if got[0].ID != "1" || got[1].ID != "3" {
		t.Errorf("wrong items kept: %+v", got)
	}
	if n := len(FilterSince(items, 0)); n != 3 {
		t.Errorf("days=0 should keep all, got %d", n)
	}
}
