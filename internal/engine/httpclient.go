package engine

import (
	"fmt"
	"io"

	fhttp "github.com/bogdanfinn/fhttp"
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"
)

// Prober issues one redirect-observing GET with a cookie header.
// Satisfied by ProbeClient; tests substitute a stub.
type Prober interface {
	Get(url, cookieHeader string) (*ProbeResult, error)
}

// ProbeClient wraps tls-client with a Chrome TLS fingerprint.
// Requests appear as Chrome 131+ to TLS fingerprinting (JA3 hash).
// Used for keep-alive session probes, where launching the full browser
// would be wasteful and redirects must be observed rather than followed.
type ProbeClient struct {
	client tls_client.HttpClient
}

// ProbeResult captures what a session probe needs from a response:
// the status, where a redirect points, and any replacement cookies
// the platform issued.
type ProbeResult struct {
	StatusCode int
	Location   string
	SetCookies []*fhttp.Cookie
}

// NewProbeClient creates a client that impersonates Chrome 131
// and does not follow redirects.
func NewProbeClient() (*ProbeClient, error) {
	opts := []tls_client.HttpClientOption{
		tls_client.WithTimeoutSeconds(15),
		tls_client.WithClientProfile(profiles.Chrome_131),
		tls_client.WithNotFollowRedirects(),
		tls_client.WithInsecureSkipVerify(),
	}
	client, err := tls_client.NewHttpClient(nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("tls-client init: %w", err)
	}
	return &ProbeClient{client: client}, nil
}

// Get executes a GET with Chrome TLS fingerprint and the given Cookie header.
func (pc *ProbeClient) Get(url, cookieHeader string) (*ProbeResult, error) {
	req, err := fhttp.NewRequest(fhttp.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	for k, v := range ChromeHeaders() {
		req.Header.Set(k, v)
	}
	if cookieHeader != "" {
		req.Header.Set("cookie", cookieHeader)
	}

	// Chrome-like header order matters for fingerprinting
	req.Header[fhttp.HeaderOrderKey] = []string{
		"accept",
		"accept-language",
		"accept-encoding",
		"referer",
		"cookie",
		"user-agent",
	}

	resp, err := pc.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tls request: %w", err)
	}
	defer resp.Body.Close()

	// Body content is irrelevant to the probe; drain so the connection is reusable.
	io.Copy(io.Discard, io.LimitReader(resp.Body, 256*1024))

	return &ProbeResult{
		StatusCode: resp.StatusCode,
		Location:   resp.Header.Get("Location"),
		SetCookies: resp.Cookies(),
	}, nil
}

// ChromeHeaders returns common Chrome browser headers.
func ChromeHeaders() map[string]string {
	return map[string]string{
		"accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"accept-language": "en-US,en;q=0.9",
		"accept-encoding": "gzip, deflate, br",
		"user-agent":      RandomUserAgent(),
	}
}
