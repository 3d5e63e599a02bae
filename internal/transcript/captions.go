// Package transcript holds the pure text algorithms of the extractor:
// caption-blob parsing, timestamp handling, and the row sort/dedup rules
// that mirror the in-page collection script.
package transcript

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Segment is one time-coded utterance of a finalized transcript.
type Segment struct {
	TimestampSeconds int    `json:"timestampSeconds"`
	Speaker          string `json:"speaker,omitempty"`
	Text             string `json:"text"`
}

// timingLineRe matches caption timing cues like "00:00:01.000 --> 00:00:03.456"
// with optional position/alignment metadata after the timestamps.
// The hour group is optional; some exporters emit MM:SS.mmm.
var timingLineRe = regexp.MustCompile(`^(\d{1,2}:)?\d{2}:\d{2}[.,]\d{3}\s*-->\s*(\d{1,2}:)?\d{2}:\d{2}[.,]\d{3}`)

// speakerLineRe matches "Speaker Name: text". The name part is kept short and
// wordy on purpose so sentences containing colons don't reassign the speaker.
var speakerLineRe = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9 .'\-]{0,62}):\s+(.+)$`)

// cueIDRe matches standalone numeric cue identifiers between blocks.
var cueIDRe = regexp.MustCompile(`^\d+$`)

// headerRe matches the caption file header and metadata lines.
var headerRe = regexp.MustCompile(`^(WEBVTT\b.*|Kind:.*|Language:.*|NOTE\b.*)$`)

// ParseCaptions converts a raw time-coded caption blob into ordered segments.
// A new timing line flushes the previous segment (if it accumulated any
// speaker or text) and opens a new one at the cue's start time. A
// "Name: text" line sets the current segment's speaker and text; any other
// non-empty line appends to the text with a single space.
func ParseCaptions(blob string) []Segment {
	var segments []Segment

	cur := Segment{TimestampSeconds: -1}
	flush := func() {
		if cur.TimestampSeconds >= 0 && (cur.Speaker != "" || cur.Text != "") {
			segments = append(segments, cur)
		}
	}

	for _, line := range strings.Split(blob, "\n") {
		line = strings.TrimSpace(strings.TrimRight(line, "\r"))

		switch {
		case line == "":
			continue
		case headerRe.MatchString(line):
			continue
		case cueIDRe.MatchString(line):
			continue
		case timingLineRe.MatchString(line):
			flush()
			start := strings.TrimSpace(strings.SplitN(line, "-->", 2)[0])
			cur = Segment{TimestampSeconds: parseCueTimestamp(start)}
		default:
			if cur.TimestampSeconds < 0 {
				// Text before any cue; tolerate sloppy exports.
				cur.TimestampSeconds = 0
			}
			if m := speakerLineRe.FindStringSubmatch(line); m != nil {
				cur.Speaker = strings.TrimSpace(m[1])
				cur.Text = strings.TrimSpace(m[2])
			} else if cur.Text == "" {
				cur.Text = line
			} else {
				cur.Text += " " + line
			}
		}
	}
	flush()

	return segments
}

// RenderSegments emits segments as a heading line per timestamp followed by
// "Speaker: text" (or bare text without a speaker), blank line between segments.
func RenderSegments(segments []Segment) string {
	var sb strings.Builder
	for i, seg := range segments {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(FormatTimestamp(seg.TimestampSeconds))
		sb.WriteByte('\n')
		if seg.Speaker != "" {
			sb.WriteString(seg.Speaker)
			sb.WriteString(": ")
		}
		sb.WriteString(seg.Text)
	}
	return sb.String()
}

// Speakers returns the distinct speaker names in order of first appearance.
func Speakers(segments []Segment) []string {
	seen := make(map[string]bool)
	var out []string
	for _, seg := range segments {
		if seg.Speaker != "" && !seen[seg.Speaker] {
			seen[seg.Speaker] = true
			out = append(out, seg.Speaker)
		}
	}
	return out
}

// FormatTimestamp renders seconds as M:SS, or H:MM:SS when an hour is reached.
func FormatTimestamp(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// parseCueTimestamp parses "HH:MM:SS.mmm" or "MM:SS.mmm" to whole seconds.
func parseCueTimestamp(ts string) int {
	ts = strings.ReplaceAll(ts, ",", ".")
	if i := strings.IndexByte(ts, '.'); i >= 0 {
		ts = ts[:i]
	}
	parts := strings.Split(ts, ":")
	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0
		}
		total = total*60 + n
	}
	return total
}
