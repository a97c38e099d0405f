package sync

import (
	"errors"
	"testing"

	"github.com/perchwatch/server/internal/gateway"
)

func listing(names ...string) []gateway.Entry {
	entries := make([]gateway.Entry, len(names))
	for i, name := range names {
		entries[i] = gateway.Entry{Filename: name, FetchURL: "http://cam.example/" + name}
	}
	return entries
}

func names(entries []gateway.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Filename
	}
	return out
}

func TestNewEntries(t *testing.T) {
	full := listing("a.jpg", "b.jpg", "c.jpg", "d.jpg")

	tests := []struct {
		name    string
		listing []gateway.Entry
		cursor  string
		want    []string
	}{
		{
			name:    "empty cursor returns the full listing",
			listing: full,
			cursor:  "",
			want:    []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg"},
		},
		{
			name:    "cursor in the middle returns the strict suffix",
			listing: full,
			cursor:  "b.jpg",
			want:    []string{"c.jpg", "d.jpg"},
		},
		{
			name:    "cursor at the end returns nothing",
			listing: full,
			cursor:  "d.jpg",
			want:    []string{},
		},
		{
			name:    "cursor at the start returns everything after it",
			listing: full,
			cursor:  "a.jpg",
			want:    []string{"b.jpg", "c.jpg", "d.jpg"},
		},
		{
			name:    "cursor absent from listing triggers a full re-scan",
			listing: full,
			cursor:  "rotated-away.jpg",
			want:    []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg"},
		},
		{
			name:    "empty listing with a cursor returns nothing",
			listing: nil,
			cursor:  "a.jpg",
			want:    []string{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := names(NewEntries(tc.listing, tc.cursor))
			if len(got) != len(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("got %v, want %v", got, tc.want)
				}
			}
		})
	}
}

func TestAdvanceCursorContiguousSuccess(t *testing.T) {
	failed := errors.New("sink rejected")

	tests := []struct {
		name     string
		previous string
		results  []FileResult
		want     string
	}{
		{
			name:     "all succeed advances to the last",
			previous: "",
			results: []FileResult{
				{Entry: gateway.Entry{Filename: "a.jpg"}, Ingested: true},
				{Entry: gateway.Entry{Filename: "b.jpg"}, Ingested: true},
				{Entry: gateway.Entry{Filename: "c.jpg"}, Ingested: true},
			},
			want: "c.jpg",
		},
		{
			name:     "failure in the middle stops before it",
			previous: "",
			results: []FileResult{
				{Entry: gateway.Entry{Filename: "a.jpg"}, Ingested: true},
				{Entry: gateway.Entry{Filename: "b.jpg"}, Err: failed},
				{Entry: gateway.Entry{Filename: "c.jpg"}, Ingested: true},
			},
			want: "a.jpg",
		},
		{
			name:     "first entry fails keeps the previous cursor",
			previous: "z.jpg",
			results: []FileResult{
				{Entry: gateway.Entry{Filename: "a.jpg"}, Err: failed},
				{Entry: gateway.Entry{Filename: "b.jpg"}, Ingested: true},
			},
			want: "z.jpg",
		},
		{
			name:     "no results keeps the previous cursor",
			previous: "z.jpg",
			results:  nil,
			want:     "z.jpg",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := AdvanceCursor(tc.previous, tc.results); got != tc.want {
				t.Errorf("AdvanceCursor() = %q, want %q", got, tc.want)
			}
		})
	}
}

// The contiguous-success rule and NewEntries must compose: whatever fails in
// one sweep is a candidate again in the next.
func TestFailedEntryIsRetriedNextSweep(t *testing.T) {
	full := listing("a.jpg", "b.jpg", "c.jpg")

	results := []FileResult{
		{Entry: full[0], Ingested: true},
		{Entry: full[1], Err: errors.New("fetch failed")},
		{Entry: full[2], Ingested: true},
	}

	cursor := AdvanceCursor("", results)
	if cursor != "a.jpg" {
		t.Fatalf("cursor = %q, want a.jpg", cursor)
	}

	next := names(NewEntries(full, cursor))
	want := []string{"b.jpg", "c.jpg"}
	if len(next) != 2 || next[0] != want[0] || next[1] != want[1] {
		t.Errorf("next sweep candidates = %v, want %v", next, want)
	}
}
