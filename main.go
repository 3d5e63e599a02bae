// go_loom: Loom transcript extraction server.
//
// Drives a headless browser with user-supplied authenticated cookies to
// extract transcripts from Loom recordings, keeps sessions alive with
// hourly probes, and syncs transcripts to Notion in background jobs.
// Exposes an HTTP API plus MCP tools over HTTP or stdio transport.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/anatolykoptev/go-mcpserver"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_loom/internal/engine"
	"github.com/anatolykoptev/go_loom/internal/loomserver"
	"github.com/anatolykoptev/go_loom/internal/notion"
	"github.com/anatolykoptev/go_loom/internal/server"
	"github.com/anatolykoptev/go_loom/internal/session"
	"github.com/anatolykoptev/go_loom/internal/syncer"
)

var (
	version = "dev"
	mcpPort = env.Str("MCP_PORT", "8892")
)

func main() {
	initEngine()

	engine.InitCache(
		env.Str("REDIS_URL", ""),
		env.Duration("CACHE_TTL", time.Hour),
		engine.Cfg.CacheMaxEntries,
		engine.Cfg.CacheCleanupInterval,
	)

	if err := session.ResumeSchedules(context.Background()); err != nil {
		slog.Warn("schedule resume failed", slog.Any("error", err))
	}

	var writer syncer.PageWriter
	if c := notion.NewClient(); c != nil {
		writer = c
		slog.Info("notion writer enabled")
	} else {
		slog.Info("notion not configured, sync runs fetch-only")
	}

	go runAPI(writer)

	slog.Info("starting go_loom",
		slog.String("mcp_port", mcpPort),
		slog.String("api_port", engine.Cfg.APIPort),
	)

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    "go_loom",
		Version: version,
	}, nil)

	loomserver.RegisterTools(mcpServer, writer)
	slog.Info("tools registered", slog.Int("count", 6))

	if err := mcpserver.Run(mcpServer, mcpserver.Config{
		Name:         "go_loom",
		Version:      version,
		Port:         mcpPort,
		WriteTimeout: 600 * time.Second,
		Metrics:      engine.FormatMetrics,
	}); err != nil {
		slog.Error("server failed", slog.Any("error", err))
	}
}

func runAPI(writer syncer.PageWriter) {
	srv := &http.Server{
		Addr:         ":" + engine.Cfg.APIPort,
		Handler:      server.New(writer).Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 600 * time.Second, // extractions hold the request open
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("api server failed", slog.Any("error", err))
	}
}

func initEngine() {
	c := engine.Config{
		APIPort:              env.Str("API_PORT", "8893"),
		DataDir:              env.Str("DATA_DIR", ""),
		NavTimeout:           env.Duration("NAV_TIMEOUT", 30*time.Second),
		ChromePath:           env.Str("CHROME_PATH", ""),
		Headless:             env.Str("HEADLESS", "true") != "false",
		SessionTTL:           env.Duration("SESSION_TTL", 24*time.Hour),
		RefreshInterval:      env.Duration("REFRESH_INTERVAL", time.Hour),
		ProbeURL:             env.Str("PROBE_URL", ""),
		LibraryURL:           env.Str("LIBRARY_URL", ""),
		ScrollStep:           env.Int("SCROLL_STEP", 400),
		PrewarmPasses:        env.Int("PREWARM_PASSES", 3),
		ExtractPerMin:        env.Float("EXTRACT_PER_MIN", 10),
		ExtractBurst:         env.Int("EXTRACT_BURST", 2),
		CacheMaxEntries:      env.Int("CACHE_MAX_ENTRIES", 1000),
		CacheCleanupInterval: env.Duration("CACHE_CLEANUP_INTERVAL", 300*time.Second),
		NotionToken:          env.Str("NOTION_TOKEN", ""),
		NotionVersion:        env.Str("NOTION_VERSION", "2022-06-28"),
		NotionParentID:       env.Str("NOTION_PARENT_ID", ""),
		NotionBaseURL:        env.Str("NOTION_BASE_URL", ""),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     60 * time.Second,
			},
		},
	}

	pc, err := engine.NewProbeClient()
	if err != nil {
		slog.Warn("probe client init failed, refresh will use the browser", slog.Any("error", err))
	} else {
		c.ProbeClient = pc
		slog.Info("probe client initialized")
	}

	engine.Init(c)
}
