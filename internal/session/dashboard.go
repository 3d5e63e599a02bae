package session

import (
	"context"
	"sort"
	"time"
)

// DashboardData summarizes recent sync activity for a key.
type DashboardData struct {
	Health      Health            `json:"health"`
	TotalRuns   int               `json:"totalRuns"`
	Successes   int               `json:"successes"`
	Failures    int               `json:"failures"`
	SuccessRate float64           `json:"successRate"`
	TotalClips  int               `json:"totalClips"`
	TotalMeets  int               `json:"totalMeetings"`
	LastRun     *ExecutionRecord  `json:"lastRun,omitempty"`
	Recent      []ExecutionRecord `json:"recent"`
}

// DayStats aggregates one calendar day of sync runs.
type DayStats struct {
	Date     string `json:"date"`
	Runs     int    `json:"runs"`
	Clips    int    `json:"clips"`
	Meetings int    `json:"meetings"`
	Failures int    `json:"failures"`
}

// Analytics is the per-day breakdown of sync history.
type Analytics struct {
	Days           []DayStats `json:"days"`
	AvgDurationSec float64    `json:"avgDurationSeconds"`
	LastError      string     `json:"lastError,omitempty"`
}

// Dashboard builds the activity summary from stored execution history.
func (a *Actor) Dashboard(ctx context.Context) (*DashboardData, error) {
	a.mu.Lock()
	sess, err := loadSession(ctx, a.key)
	a.mu.Unlock()
	if err != nil {
		return nil, err
	}

	recs, err := listExecutions(ctx, a.key, executionHistoryLimit)
	if err != nil {
		return nil, err
	}

	d := &DashboardData{
		Health: healthOf(sess),
		Recent: recs,
	}
	if len(recs) > 10 {
		d.Recent = recs[:10]
	}
	for i := range recs {
		d.TotalRuns++
		if recs[i].Success {
			d.Successes++
		} else {
			d.Failures++
		}
		d.TotalClips += recs[i].Clips
		d.TotalMeets += recs[i].Meetings
	}
	if d.TotalRuns > 0 {
		d.SuccessRate = float64(d.Successes) / float64(d.TotalRuns)
		d.LastRun = &recs[0]
	}
	return d, nil
}

// Analytics groups execution history by calendar day, newest day first.
func (a *Actor) Analytics(ctx context.Context) (*Analytics, error) {
	recs, err := listExecutions(ctx, a.key, executionHistoryLimit)
	if err != nil {
		return nil, err
	}

	byDay := map[string]*DayStats{}
	var totalDur time.Duration
	var timed int
	out := &Analytics{}
	for i := range recs {
		rec := &recs[i]
		day := rec.StartedAt.UTC().Format("2006-01-02")
		ds, ok := byDay[day]
		if !ok {
			ds = &DayStats{Date: day}
			byDay[day] = ds
		}
		ds.Runs++
		ds.Clips += rec.Clips
		ds.Meetings += rec.Meetings
		if !rec.Success {
			ds.Failures++
			if out.LastError == "" {
				out.LastError = rec.Error
			}
		}
		if rec.CompletedAt.After(rec.StartedAt) {
			totalDur += rec.CompletedAt.Sub(rec.StartedAt)
			timed++
		}
	}
	for _, ds := range byDay {
		out.Days = append(out.Days, *ds)
	}
	sort.Slice(out.Days, func(i, j int) bool { return out.Days[i].Date > out.Days[j].Date })
	if timed > 0 {
		out.AvgDurationSec = totalDur.Seconds() / float64(timed)
	}
	return out, nil
}
