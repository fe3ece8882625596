package journal

import (
	"testing"
	"time"

	"github.com/SmitUplenchwar2687/Robomon/internal/monitor"
)

func TestFilter_Empty_MatchesAll(t *testing.T) {
	f := Filter{}
	if !f.Match(entry("any", 0, "x", true)) || !f.Match(entry("any", 0, "x", false)) {
		t.Error("empty filter should match all entries")
	}
}

func TestFilter_Clients(t *testing.T) {
	f := Filter{Clients: []string{"r2d2", "c3po"}}

	if !f.Match(entry("r2d2", 0, "", true)) {
		t.Error("should match r2d2")
	}
	if f.Match(entry("bb8", 0, "", true)) {
		t.Error("should not match bb8")
	}
}

func TestFilter_Direction(t *testing.T) {
	received := Filter{Direction: monitor.Received}
	sent := Filter{Direction: monitor.Sent}
	in := entry("r2d2", 0, "", true)
	out := entry("r2d2", 0, "", false)

	if !received.Match(in) || received.Match(out) {
		t.Error("received filter mismatch")
	}
	if sent.Match(in) || !sent.Match(out) {
		t.Error("sent filter mismatch")
	}
}

func TestFilter_TimeWindow(t *testing.T) {
	f := Filter{After: epoch.Add(5 * time.Minute), Before: epoch.Add(10 * time.Minute)}

	if f.Match(entry("r2d2", 5*time.Minute, "", true)) {
		t.Error("should not match entry at exact After boundary")
	}
	if !f.Match(entry("r2d2", 6*time.Minute, "", true)) {
		t.Error("should match entry inside the window")
	}
	if f.Match(entry("r2d2", 10*time.Minute, "", true)) {
		t.Error("should not match entry at exact Before boundary")
	}
}

func TestMerge_StableAcrossClients(t *testing.T) {
	entries := []monitor.LogEntry{
		entry("r2d2", 2*time.Second, "r1", true),
		entry("c3po", time.Second, "c1", true),
		entry("c3po", 2*time.Second, "c2", false),
		entry("r2d2", 2*time.Second, "r2", false),
	}

	got := Merge(entries, nil)
	want := []string{"c1", "r1", "c2", "r2"}
	for i, e := range got {
		if e.Msg != want[i] {
			t.Errorf("Merge()[%d] = %q, want %q", i, e.Msg, want[i])
		}
	}
	if entries[0].Msg != "r1" {
		t.Error("Merge should not reorder its input")
	}
}

func TestMerge_Filtered(t *testing.T) {
	entries := []monitor.LogEntry{
		entry("r2d2", 0, "a", true),
		entry("c3po", 0, "b", true),
		entry("r2d2", time.Second, "c", false),
	}

	got := Merge(entries, &Filter{Clients: []string{"r2d2"}, Direction: monitor.Sent})
	if len(got) != 1 || got[0].Msg != "c" {
		t.Errorf("Merge() = %+v", got)
	}
}
