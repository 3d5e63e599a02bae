package transcript

import (
	"reflect"
	"testing"
)

func TestParseRowTimestamp(t *testing.T) {
	tests := []struct {
		row  string
		want int
	}{
		{"0:05 Alice Hello there", 5},
		{"12:34 Bob mid-meeting", 754},
		{"1:02:03 Alice late remark", 3723},
		{"  3:00 leading spaces", 180},
		{"no timestamp here", -1},
		{"", -1},
	}
	for _, tt := range tests {
		if got := ParseRowTimestamp(tt.row); got != tt.want {
			t.Errorf("ParseRowTimestamp(%q) = %d, want %d", tt.row, got, tt.want)
		}
	}
}

func TestDedupRowsKeepsFirst(t *testing.T) {
	rows := []string{
		"0:05 Alice first take",
		"0:12 Bob reply",
		"0:05 Alice recycled node copy",
		"0:12 Bob recycled again",
		"0:20 Alice new row",
	}
	got := DedupRows(rows)
	want := []string{
		"0:05 Alice first take",
		"0:12 Bob reply",
		"0:20 Alice new row",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DedupRows = %v, want %v", got, want)
	}
}

func TestSortRowsOrdering(t *testing.T) {
	rows := []string{
		"1:00 later",
		"0:05 earlier",
		"unparsable row",
		"0:30 middle",
	}
	SortRows(rows)
	want := []string{
		"unparsable row",
		"0:05 earlier",
		"0:30 middle",
		"1:00 later",
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("SortRows = %v, want %v", rows, want)
	}
}

// Running dedup+sort twice over the same input yields identical output.
func TestRowPipelineIdempotent(t *testing.T) {
	rows := []string{
		"0:30 c",
		"0:05 a",
		"0:30 c duplicate",
		"0:12 b",
	}
	first := DedupRows(append([]string(nil), rows...))
	SortRows(first)
	second := DedupRows(append([]string(nil), first...))
	SortRows(second)
	if JoinRows(first) != JoinRows(second) {
		t.Errorf("pipeline not idempotent:\n%q\nvs\n%q", JoinRows(first), JoinRows(second))
	}
}
