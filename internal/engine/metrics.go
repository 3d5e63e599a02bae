package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// Metrics tracks operational counters across the engine.
var metrics struct {
	CookieUploads       atomic.Int64
	Extractions         atomic.Int64
	ExtractionErrors    atomic.Int64
	CaptureExtractions  atomic.Int64
	LibraryFetches      atomic.Int64
	RefreshTicks        atomic.Int64
	RefreshExpiries     atomic.Int64
	BrowserLaunches     atomic.Int64
	BrowserRelaunches   atomic.Int64
	SyncJobsStarted     atomic.Int64
	SyncItemsWritten    atomic.Int64
	SyncItemsFailed     atomic.Int64
	NotionWrites        atomic.Int64
	NotionWriteErrors   atomic.Int64
}

// GetMetrics returns a snapshot of all metrics including cache stats.
func GetMetrics() map[string]int64 {
	hits, misses := CacheStats()
	return map[string]int64{
		"cookie_uploads":      metrics.CookieUploads.Load(),
		"extractions":         metrics.Extractions.Load(),
		"extraction_errors":   metrics.ExtractionErrors.Load(),
		"capture_extractions": metrics.CaptureExtractions.Load(),
		"library_fetches":     metrics.LibraryFetches.Load(),
		"refresh_ticks":       metrics.RefreshTicks.Load(),
		"refresh_expiries":    metrics.RefreshExpiries.Load(),
		"browser_launches":    metrics.BrowserLaunches.Load(),
		"browser_relaunches":  metrics.BrowserRelaunches.Load(),
		"sync_jobs_started":   metrics.SyncJobsStarted.Load(),
		"sync_items_written":  metrics.SyncItemsWritten.Load(),
		"sync_items_failed":   metrics.SyncItemsFailed.Load(),
		"notion_writes":       metrics.NotionWrites.Load(),
		"notion_write_errors": metrics.NotionWriteErrors.Load(),
		"cache_hits":          hits,
		"cache_misses":        misses,
	}
}

// FormatMetrics returns metrics as a simple text format for HTTP endpoint.
func FormatMetrics() string {
	m := GetMetrics()
	var sb strings.Builder
	keys := []string{
		"cookie_uploads",
		"extractions", "extraction_errors", "capture_extractions",
		"library_fetches",
		"refresh_ticks", "refresh_expiries",
		"browser_launches", "browser_relaunches",
		"sync_jobs_started", "sync_items_written", "sync_items_failed",
		"notion_writes", "notion_write_errors",
		"cache_hits", "cache_misses",
	}
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s %d\n", k, m[k])
	}
	return sb.String()
}

// Incrementors for session/ sub-package.
func IncrCookieUploads()   { metrics.CookieUploads.Add(1) }
func IncrRefreshTicks()    { metrics.RefreshTicks.Add(1) }
func IncrRefreshExpiries() { metrics.RefreshExpiries.Add(1) }

// Incrementors for browser/ sub-package.
func IncrExtractions()        { metrics.Extractions.Add(1) }
func IncrExtractionErrors()   { metrics.ExtractionErrors.Add(1) }
func IncrCaptureExtractions() { metrics.CaptureExtractions.Add(1) }
func IncrLibraryFetches()     { metrics.LibraryFetches.Add(1) }
func IncrBrowserLaunches()    { metrics.BrowserLaunches.Add(1) }
func IncrBrowserRelaunches()  { metrics.BrowserRelaunches.Add(1) }

// Incrementors for syncer/ and notion/ sub-packages.
func IncrSyncJobsStarted()   { metrics.SyncJobsStarted.Add(1) }
func IncrSyncItemsWritten()  { metrics.SyncItemsWritten.Add(1) }
func IncrSyncItemsFailed()   { metrics.SyncItemsFailed.Add(1) }
func IncrNotionWrites()      { metrics.NotionWrites.Add(1) }
func IncrNotionWriteErrors() { metrics.NotionWriteErrors.Add(1) }

// TrackOperation logs a warning if an operation takes longer than threshold.
func TrackOperation(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	if elapsed > 5*time.Second {
		slog.Warn("slow operation", slog.String("op", name), slog.Duration("elapsed", elapsed))
	}
	return err
}
