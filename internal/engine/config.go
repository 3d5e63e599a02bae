package engine

import (
	"net/http"
	"time"
)

// Config holds all engine configuration, injected from main.
type Config struct {
	APIPort    string
	DataDir    string
	NavTimeout time.Duration // single navigation / extraction bound

	// Browser
	ChromePath string // empty = let the launcher resolve a local Chromium
	Headless   bool

	// Session lifecycle
	SessionTTL      time.Duration // cookie validity window from upload
	RefreshInterval time.Duration // keep-alive wake-up spacing
	ProbeURL        string        // lightweight authenticated page for refresh probes

	// Extraction
	LibraryURL    string  // workspace library listing page
	ScrollStep    int     // px per virtual-scroll increment
	PrewarmPasses int     // bottom-scroll passes before collection
	ExtractPerMin float64 // per-key browser extraction rate limit
	ExtractBurst  int

	// Cache
	CacheMaxEntries      int
	CacheCleanupInterval time.Duration

	// Notion write target
	NotionToken    string
	NotionVersion  string
	NotionParentID string
	NotionBaseURL  string

	HTTPClient  *http.Client
	ProbeClient Prober // nil = refresh probes fall back to the browser path
}

var cfg Config

// Cfg exposes the engine configuration for sub-packages (session, browser, syncer).
// Always points to the current cfg value.
var Cfg = &cfg

// Init initializes the engine with the given configuration.
func Init(c Config) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 24 * time.Hour
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = time.Hour
	}
	if c.ScrollStep <= 0 {
		c.ScrollStep = 400
	}
	if c.PrewarmPasses <= 0 {
		c.PrewarmPasses = 3
	}
	cfg = c
	Cfg = &cfg
}
