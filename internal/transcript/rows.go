package transcript

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Host-side mirror of the in-page row collection rules. The browser script is
// authoritative during extraction; these helpers exist so captured row text
// (and the script's output in tests) can be re-validated without a browser.

// rowTimestampRe matches a leading MM:SS or H:MM:SS token.
var rowTimestampRe = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::(\d{2}))?\b`)

// ParseRowTimestamp parses the leading MM:SS (or H:MM:SS) token of a rendered
// row into seconds. Returns -1 when the row has no parsable token, which
// sorts such rows before all others.
func ParseRowTimestamp(row string) int {
	m := rowAnchors(row)
	if m == nil {
		return -1
	}
	if m[3] != "" {
		h, _ := strconv.Atoi(m[1])
		min, _ := strconv.Atoi(m[2])
		s, _ := strconv.Atoi(m[3])
		return h*3600 + min*60 + s
	}
	min, _ := strconv.Atoi(m[1])
	s, _ := strconv.Atoi(m[2])
	return min*60 + s
}

func rowAnchors(row string) []string {
	return rowTimestampRe.FindStringSubmatch(strings.TrimSpace(row))
}

// RowKey derives the dedup key from a row's leading timestamp token.
// Virtualized lists recycle DOM nodes, so the same row can be observed on
// several scroll passes; keying on the rendered timestamp keeps one copy.
func RowKey(row string) string {
	m := rowAnchors(row)
	if m == nil {
		return strings.TrimSpace(row)
	}
	return m[0]
}

// DedupRows keeps the first occurrence of each row key, preserving order.
func DedupRows(rows []string) []string {
	seen := make(map[string]bool, len(rows))
	out := rows[:0:0]
	for _, row := range rows {
		key := RowKey(row)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, row)
	}
	return out
}

// SortRows orders rows ascending by parsed leading timestamp. Rows with an
// unparsable token sort before all others. The sort is stable, so equal
// timestamps keep their collection order.
func SortRows(rows []string) {
	sort.SliceStable(rows, func(i, j int) bool {
		return ParseRowTimestamp(rows[i]) < ParseRowTimestamp(rows[j])
	})
}

// JoinRows renders collected rows as a blank-line-separated block, the same
// shape the in-page script returns.
func JoinRows(rows []string) string {
	return strings.Join(rows, "\n\n")
}
