package storage

import (
	"testing"
	"time"

	"github.com/rhuss/codinit/pkg/api"
)

func entries(ids ...string) []Entry {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]Entry, len(ids))
	for i, id := range ids {
		out[i] = Entry{Run: &api.Run{RunID: id, Timestamp: base.Add(time.Duration(i) * time.Second)}}
	}
	return out
}

func ids(l *RunList) []string {
	var out []string
	for _, r := range l.Data {
		out = append(out, r.RunID)
	}
	return out
}

func TestPaginate(t *testing.T) {
	tests := []struct {
		name    string
		opts    ListOptions
		want    []string
		hasMore bool
	}{
		{"default desc", ListOptions{}, []string{"e", "d", "c", "b", "a"}, false},
		{"asc", ListOptions{Order: "asc"}, []string{"a", "b", "c", "d", "e"}, false},
		{"limit", ListOptions{Limit: 2}, []string{"e", "d"}, true},
		{"after", ListOptions{After: "d", Limit: 2}, []string{"c", "b"}, true},
		{"after asc", ListOptions{After: "c", Order: "asc"}, []string{"d", "e"}, false},
		{"after last", ListOptions{After: "a"}, nil, false},
		{"unknown cursor", ListOptions{After: "zzz"}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Paginate(entries("a", "b", "c", "d", "e"), tt.opts)
			if g := ids(got); len(g) != len(tt.want) {
				t.Fatalf("got %v, want %v", g, tt.want)
			}
			for i, id := range ids(got) {
				if id != tt.want[i] {
					t.Errorf("item %d = %s, want %s", i, id, tt.want[i])
				}
			}
			if got.HasMore != tt.hasMore {
				t.Errorf("HasMore = %v, want %v", got.HasMore, tt.hasMore)
			}
			if got.Data == nil {
				t.Error("Data should be an empty slice, not nil")
			}
		})
	}
}

func TestPaginateTimestampTie(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	in := []Entry{
		{Run: &api.Run{RunID: "b", Timestamp: ts}},
		{Run: &api.Run{RunID: "a", Timestamp: ts}},
	}
	got := Paginate(in, ListOptions{Order: "asc"})
	if got.FirstID != "a" || got.LastID != "b" {
		t.Errorf("FirstID/LastID = %s/%s, want a/b", got.FirstID, got.LastID)
	}
}

func TestListOptionsNormalize(t *testing.T) {
	tests := []struct {
		in   ListOptions
		want ListOptions
	}{
		{ListOptions{}, ListOptions{Limit: 20, Order: "desc"}},
		{ListOptions{Limit: 500, Order: "asc"}, ListOptions{Limit: 100, Order: "asc"}},
		{ListOptions{Limit: 5, Order: "sideways"}, ListOptions{Limit: 5, Order: "desc"}},
	}
	for _, tt := range tests {
		if got := tt.in.Normalize(); got != tt.want {
			t.Errorf("Normalize(%+v) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestNewRun(t *testing.T) {
	r := NewRun("abc123", "initial")
	if r.RunID == "" {
		t.Error("RunID should be set")
	}
	if r.GitSHA != "abc123" || r.CommitMessage != "initial" {
		t.Errorf("got %+v", r)
	}
	if r.Tasks == nil {
		t.Error("Tasks should be an empty slice")
	}
	if NewRun("", "").RunID == r.RunID {
		t.Error("run IDs should be unique")
	}
}

func TestVisible(t *testing.T) {
	tests := []struct {
		owner, tenant string
		want          bool
	}{
		{"", "", true},
		{"acme", "", true},
		{"acme", "acme", true},
		{"acme", "globex", false},
		{"", "acme", false},
	}
	for _, tt := range tests {
		if got := Visible(tt.owner, tt.tenant); got != tt.want {
			t.Errorf("Visible(%q, %q) = %v, want %v", tt.owner, tt.tenant, got, tt.want)
		}
	}
}
