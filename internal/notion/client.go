// Package notion writes extracted transcripts into a Notion workspace as
// child pages under a configured parent page.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/anatolykoptev/go_loom/internal/engine"
	"github.com/anatolykoptev/go_loom/internal/loom"
	"github.com/anatolykoptev/go_loom/internal/session"
)

const defaultBaseURL = "https://api.notion.com"

// Client is a minimal Notion API client covering page creation and block
// appends, which is all a transcript sync needs.
type Client struct {
	baseURL string
	token   string
	version string
	parent  string
	http    *http.Client
}

// NewClient builds a client from the engine configuration. Returns nil when
// no token or parent page is configured; callers treat nil as fetch-only.
func NewClient() *Client {
	if engine.Cfg.NotionToken == "" || engine.Cfg.NotionParentID == "" {
		return nil
	}
	baseURL := engine.Cfg.NotionBaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	version := engine.Cfg.NotionVersion
	if version == "" {
		version = "2022-06-28"
	}
	return &Client{
		baseURL: baseURL,
		token:   engine.Cfg.NotionToken,
		version: version,
		parent:  engine.Cfg.NotionParentID,
		http:    engine.Cfg.HTTPClient,
	}
}

type parentRef struct {
	PageID string `json:"page_id"`
}

type titleProperty struct {
	Title []richText `json:"title"`
}

type createPageRequest struct {
	Parent     parentRef                `json:"parent"`
	Properties map[string]titleProperty `json:"properties"`
	Children   []block                  `json:"children"`
}

type appendChildrenRequest struct {
	Children []block `json:"children"`
}

// WriteTranscript creates one page titled after the recording, with the
// transcript laid out as paragraph blocks. Bodies past Notion's per-request
// block limit are appended in follow-up batches.
func (c *Client) WriteTranscript(ctx context.Context, item loom.Item, res *session.Result) error {
	title := res.Title
	if title == "" {
		title = item.Title
	}
	if title == "" {
		title = "Loom transcript " + item.ID
	}

	blocks := buildBlocks(item, res)
	first := blocks
	if len(first) > maxChildrenPerRequest {
		first = blocks[:maxChildrenPerRequest]
	}

	var created struct {
		ID string `json:"id"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/pages", createPageRequest{
		Parent:     parentRef{PageID: c.parent},
		Properties: map[string]titleProperty{"title": {Title: plainText(title)}},
		Children:   first,
	}, &created)
	if err != nil {
		engine.IncrNotionWriteErrors()
		return fmt.Errorf("%w: create page: %v", engine.ErrUpstreamWrite, err)
	}

	for start := maxChildrenPerRequest; start < len(blocks); start += maxChildrenPerRequest {
		end := start + maxChildrenPerRequest
		if end > len(blocks) {
			end = len(blocks)
		}
		err := c.do(ctx, http.MethodPatch, "/v1/blocks/"+created.ID+"/children",
			appendChildrenRequest{Children: blocks[start:end]}, nil)
		if err != nil {
			engine.IncrNotionWriteErrors()
			return fmt.Errorf("%w: append blocks: %v", engine.ErrUpstreamWrite, err)
		}
	}

	engine.IncrNotionWrites()
	slog.Info("notion page written",
		slog.String("item", item.ID),
		slog.String("page_id", created.ID),
		slog.Int("blocks", len(blocks)))
	return nil
}

// do executes one authenticated API call with retry on transient statuses.
func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := engine.RetryHTTP(ctx, engine.DefaultRetryConfig, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, engine.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Notion-Version", c.version)
		req.Header.Set("Content-Type", "application/json")
		return c.http.Do(req)
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notion: %s %s: status %d: %s", method, path, resp.StatusCode, msg)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
