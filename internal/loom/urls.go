// Package loom holds the platform-specific pieces: share-URL shapes, the
// cookie domain, and the rendered library page layout. Everything fragile
// about the target site lives here.
package loom

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const (
	// Domain is the cookie domain uploads are filtered to.
	Domain = "loom.com"

	// BaseURL is the canonical web origin.
	BaseURL = "https://www.loom.com"

	// LibraryPath is the workspace listing of recorded clips and meetings.
	LibraryPath = "/looms/videos"
)

// ErrBadURL reports a URL that does not address platform content.
var ErrBadURL = errors.New("not a recognized share URL")

// videoIDRe matches the platform's 32-hex content identifiers.
var videoIDRe = regexp.MustCompile(`^[0-9a-f]{32}$`)

// sharePathRe matches /share/<id> and /embed/<id> paths.
var sharePathRe = regexp.MustCompile(`^/(?:share|embed)/([0-9a-f]{32})`)

// NormalizeShareURL validates raw and returns the canonical share URL.
// Accepts full share/embed URLs on the platform domain or a bare video ID.
func NormalizeShareURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrBadURL
	}

	if videoIDRe.MatchString(raw) {
		return BaseURL + "/share/" + raw, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadURL, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return "", ErrBadURL
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host != Domain {
		return "", fmt.Errorf("%w: host %q", ErrBadURL, u.Hostname())
	}
	m := sharePathRe.FindStringSubmatch(u.Path)
	if m == nil {
		return "", fmt.Errorf("%w: path %q", ErrBadURL, u.Path)
	}
	return BaseURL + "/share/" + m[1], nil
}

// VideoID extracts the content identifier from a canonical share URL.
func VideoID(shareURL string) string {
	u, err := url.Parse(shareURL)
	if err != nil {
		return ""
	}
	if m := sharePathRe.FindStringSubmatch(u.Path); m != nil {
		return m[1]
	}
	return ""
}

// IsLoginURL reports whether a navigated-to or redirect URL is the
// platform's sign-in flow, i.e. the session no longer authenticates.
func IsLoginURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	p := strings.ToLower(u.Path)
	return strings.Contains(p, "/login") || strings.Contains(p, "/signin") || strings.Contains(p, "/sign-in")
}

// IsCaptionURL reports whether a network request URL carries a caption file.
// Meeting transcripts arrive as a downloaded caption payload rather than
// rendered DOM.
func IsCaptionURL(raw string) bool {
	lower := strings.ToLower(raw)
	if strings.Contains(lower, ".vtt") {
		return true
	}
	return strings.Contains(lower, "captions") || strings.Contains(lower, "closed-caption")
}
