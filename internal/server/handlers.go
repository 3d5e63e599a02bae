package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/anatolykoptev/go_loom/internal/engine"
	"github.com/anatolykoptev/go_loom/internal/loom"
	"github.com/anatolykoptev/go_loom/internal/session"
	"github.com/anatolykoptev/go_loom/internal/syncer"
)

const defaultSyncDays = 7

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, engine.FormatMetrics())
}

// handleSetup describes how to connect a session for this key.
func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request, userKey string) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"userKey": userKey,
		"steps": []string{
			"Log in to " + loom.BaseURL + " in your browser.",
			"Export cookies for " + loom.Domain + " with a cookie-export extension (JSON format).",
			"POST the export to /upload-cookies/" + userKey + ".",
			"Check /health/" + userKey + " shows status ready.",
		},
		"uploadEndpoint": "/upload-cookies/" + userKey,
		"sessionTTL":     engine.Cfg.SessionTTL.String(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, userKey string) {
	h, err := session.For(userKey).Health(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"status":         h.Status,
		"cookieAgeHours": h.CookieAgeHours,
		"expiresInHours": h.ExpiresInHours,
	})
}

func (s *Server) handleUploadCookies(w http.ResponseWriter, r *http.Request, userKey string) {
	cookies, err := decodeCookies(r)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", engine.ErrValidation, err))
		return
	}
	expiresAt, err := session.For(userKey).UploadCookies(r.Context(), cookies)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"expiresAt": expiresAt.Format(time.RFC3339),
	})
}

// decodeCookies accepts both a bare cookie array and the wrapped
// {"cookies": [...]} shape that export extensions produce.
func decodeCookies(r *http.Request) ([]loom.Cookie, error) {
	defer r.Body.Close()

	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	var cookies []loom.Cookie
	if err := json.Unmarshal(raw, &cookies); err == nil {
		return cookies, nil
	}
	var wrapped struct {
		Cookies []loom.Cookie `json:"cookies"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode cookies: %w", err)
	}
	return wrapped.Cookies, nil
}

// handleTranscript serves both POST with a {url} body and GET with ?url=.
func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request, userKey string) {
	url := r.URL.Query().Get("url")
	if url == "" && r.Method == http.MethodPost {
		var body struct {
			URL string `json:"url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			url = body.URL
		}
	}
	if url == "" {
		writeError(w, fmt.Errorf("%w: url is required", engine.ErrValidation))
		return
	}
	res, err := session.For(userKey).Extract(r.Context(), url)
	if err != nil {
		writeError(w, err)
		return
	}
	writeTranscript(w, res)
}

func writeTranscript(w http.ResponseWriter, res *session.Result) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"transcript":       res.Transcript,
		"segmentCount":     res.SegmentCount,
		"speakers":         res.Speakers,
		"extractionMethod": res.Method,
		"title":            res.Title,
	})
}

func (s *Server) handleMeetings(w http.ResponseWriter, r *http.Request, userKey string) {
	days := queryInt(r, "days", defaultSyncDays)
	items, err := session.For(userKey).ListItems(r.Context(), days)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(items),
		"items":   items,
	})
}

func (s *Server) handleMeetingTranscript(w http.ResponseWriter, r *http.Request, userKey string) {
	idx := r.URL.Query().Get("index")
	if idx == "" {
		writeError(w, fmt.Errorf("%w: index query parameter required", engine.ErrValidation))
		return
	}
	index, err := strconv.Atoi(idx)
	if err != nil || index < 0 {
		writeError(w, fmt.Errorf("%w: index must be a non-negative integer", engine.ErrValidation))
		return
	}
	days := queryInt(r, "days", defaultSyncDays)
	res, err := session.For(userKey).MeetingTranscript(r.Context(), index, days)
	if err != nil {
		writeError(w, err)
		return
	}
	writeTranscript(w, res)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request, userKey string) {
	days := queryInt(r, "days", defaultSyncDays)
	writeToNotion := true
	if v := r.URL.Query().Get("writeToNotion"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, fmt.Errorf("%w: writeToNotion must be a boolean", engine.ErrValidation))
			return
		}
		writeToNotion = parsed
	}

	actor := session.For(userKey)

	// Fail fast on a dead session instead of queueing a doomed job.
	h, err := actor.Health(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if h.Status != session.StatusReady {
		writeError(w, fmt.Errorf("%w: session %s", engine.ErrNeedsAuth, h.Status))
		return
	}

	if !writeToNotion {
		// No write target: run synchronously and return the summary.
		sum, err := syncer.FetchOnly(r.Context(), actor, days)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":  true,
			"clips":    sum.Clips,
			"meetings": sum.Meetings,
			"failed":   sum.Failed,
		})
		return
	}

	job, err := syncer.Start(r.Context(), userKey, actor, s.writer, days)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"success": true,
		"jobId":   job.JobID,
		"status":  job.Status,
	})
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request, userKey string) {
	jobID := r.URL.Query().Get("jobId")
	if jobID == "" {
		writeError(w, fmt.Errorf("%w: jobId query parameter required", engine.ErrValidation))
		return
	}
	job, err := syncer.GetJob(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	if job.UserKey != userKey {
		// Jobs are key-scoped; another key's job id is simply not found.
		writeError(w, fmt.Errorf("%w: job %s", engine.ErrNotFound, jobID))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"job":     job,
	})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request, userKey string) {
	if err := session.For(userKey).Disconnect(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, userKey string) {
	d, err := session.For(userKey).Dashboard(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "dashboard": d})
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request, userKey string) {
	a, err := session.For(userKey).Analytics(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "analytics": a})
}

func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
