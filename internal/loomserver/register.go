// Package loomserver registers the transcript tools on an MCP server so
// agents can drive extraction and sync over the same session actors the
// HTTP API uses.
package loomserver

import (
	"context"
	"fmt"
	"regexp"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_loom/internal/loom"
	"github.com/anatolykoptev/go_loom/internal/session"
	"github.com/anatolykoptev/go_loom/internal/syncer"
)

var userKeyRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// RegisterTools registers all transcript tools on the given MCP server:
// loom_transcript, loom_meetings, loom_meeting_transcript,
// loom_session_health, loom_sync, loom_sync_status.
func RegisterTools(server *mcp.Server, writer syncer.PageWriter) {
	registerTranscript(server)
	registerMeetings(server)
	registerMeetingTranscript(server)
	registerSessionHealth(server)
	registerSync(server, writer)
	registerSyncStatus(server)
}

func actorFor(userKey string) (*session.Actor, error) {
	if !userKeyRe.MatchString(userKey) {
		return nil, fmt.Errorf("invalid user_key")
	}
	return session.For(userKey), nil
}

type TranscriptInput struct {
	UserKey string `json:"user_key" jsonschema:"Session key identifying whose cookies to use"`
	URL     string `json:"url" jsonschema:"Loom share URL or bare 32-character video ID"`
}

type TranscriptOutput struct {
	Transcript       string   `json:"transcript"`
	SegmentCount     int      `json:"segment_count"`
	Speakers         []string `json:"speakers,omitempty"`
	ExtractionMethod string   `json:"extraction_method"`
	Title            string   `json:"title,omitempty"`
}

func toOutput(res *session.Result) TranscriptOutput {
	return TranscriptOutput{
		Transcript:       res.Transcript,
		SegmentCount:     res.SegmentCount,
		Speakers:         res.Speakers,
		ExtractionMethod: res.Method,
		Title:            res.Title,
	}
}

func registerTranscript(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "loom_transcript",
		Description: "Extract the full transcript of a Loom recording by share URL. Requires an active cookie session for the user key; returns timestamped segments with speaker labels.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input TranscriptInput) (*mcp.CallToolResult, TranscriptOutput, error) {
		if input.URL == "" {
			return nil, TranscriptOutput{}, fmt.Errorf("url is required")
		}
		actor, err := actorFor(input.UserKey)
		if err != nil {
			return nil, TranscriptOutput{}, err
		}
		res, err := actor.Extract(ctx, input.URL)
		if err != nil {
			return nil, TranscriptOutput{}, err
		}
		return nil, toOutput(res), nil
	})
}

type MeetingsInput struct {
	UserKey string `json:"user_key" jsonschema:"Session key identifying whose cookies to use"`
	Days    int    `json:"days,omitempty" jsonschema:"Look-back window in days (default 7)"`
}

type MeetingsOutput struct {
	Count int         `json:"count"`
	Items []loom.Item `json:"items"`
}

func registerMeetings(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "loom_meetings",
		Description: "List recent recordings (clips and meetings) in the user's Loom library, newest first.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input MeetingsInput) (*mcp.CallToolResult, MeetingsOutput, error) {
		actor, err := actorFor(input.UserKey)
		if err != nil {
			return nil, MeetingsOutput{}, err
		}
		days := input.Days
		if days <= 0 {
			days = 7
		}
		items, err := actor.ListItems(ctx, days)
		if err != nil {
			return nil, MeetingsOutput{}, err
		}
		return nil, MeetingsOutput{Count: len(items), Items: items}, nil
	})
}

type MeetingTranscriptInput struct {
	UserKey string `json:"user_key" jsonschema:"Session key identifying whose cookies to use"`
	Index   int    `json:"index" jsonschema:"Zero-based index into the loom_meetings listing"`
	Days    int    `json:"days,omitempty" jsonschema:"Look-back window in days (default 7)"`
}

func registerMeetingTranscript(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "loom_meeting_transcript",
		Description: "Extract the transcript of a recording by its index in the loom_meetings listing. Uses caption-file capture, which preserves exact speaker timing.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input MeetingTranscriptInput) (*mcp.CallToolResult, TranscriptOutput, error) {
		actor, err := actorFor(input.UserKey)
		if err != nil {
			return nil, TranscriptOutput{}, err
		}
		days := input.Days
		if days <= 0 {
			days = 7
		}
		res, err := actor.MeetingTranscript(ctx, input.Index, days)
		if err != nil {
			return nil, TranscriptOutput{}, err
		}
		return nil, toOutput(res), nil
	})
}

type SessionHealthInput struct {
	UserKey string `json:"user_key" jsonschema:"Session key to inspect"`
}

func registerSessionHealth(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "loom_session_health",
		Description: "Report the cookie session state for a user key: no_cookies, ready, or expired, with cookie age and time to expiry.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input SessionHealthInput) (*mcp.CallToolResult, session.Health, error) {
		actor, err := actorFor(input.UserKey)
		if err != nil {
			return nil, session.Health{}, err
		}
		h, err := actor.Health(ctx)
		if err != nil {
			return nil, session.Health{}, err
		}
		return nil, h, nil
	})
}

type SyncInput struct {
	UserKey       string `json:"user_key" jsonschema:"Session key identifying whose cookies to use"`
	Days          int    `json:"days,omitempty" jsonschema:"Look-back window in days (default 7)"`
	WriteToNotion *bool  `json:"write_to_notion,omitempty" jsonschema:"Write extracted transcripts to Notion (default true); false runs fetch-only"`
}

type SyncOutput struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

func registerSync(server *mcp.Server, writer syncer.PageWriter) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "loom_sync",
		Description: "Start a background sync: discover recent library recordings, extract each transcript, and write them to Notion. Returns a job id to poll with loom_sync_status.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input SyncInput) (*mcp.CallToolResult, SyncOutput, error) {
		actor, err := actorFor(input.UserKey)
		if err != nil {
			return nil, SyncOutput{}, err
		}
		days := input.Days
		if days <= 0 {
			days = 7
		}
		jobWriter := writer
		if input.WriteToNotion != nil && !*input.WriteToNotion {
			jobWriter = nil
		}
		job, err := syncer.Start(ctx, input.UserKey, actor, jobWriter, days)
		if err != nil {
			return nil, SyncOutput{}, err
		}
		return nil, SyncOutput{JobID: job.JobID, Status: job.Status}, nil
	})
}

type SyncStatusInput struct {
	UserKey string `json:"user_key" jsonschema:"Session key that started the job"`
	JobID   string `json:"job_id" jsonschema:"Job id returned by loom_sync"`
}

func registerSyncStatus(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "loom_sync_status",
		Description: "Report progress of a background sync job: status, total items, written and failed counts.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input SyncStatusInput) (*mcp.CallToolResult, syncer.Job, error) {
		if input.JobID == "" {
			return nil, syncer.Job{}, fmt.Errorf("job_id is required")
		}
		if !userKeyRe.MatchString(input.UserKey) {
			return nil, syncer.Job{}, fmt.Errorf("invalid user_key")
		}
		job, err := syncer.GetJob(ctx, input.JobID)
		if err != nil {
			return nil, syncer.Job{}, err
		}
		if job.UserKey != input.UserKey {
			return nil, syncer.Job{}, fmt.Errorf("job %s not found", input.JobID)
		}
		return nil, *job, nil
	})
}
