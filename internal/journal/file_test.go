package journal

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/SmitUplenchwar2687/Robomon/internal/monitor"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func entry(client string, offset time.Duration, msg string, received bool) monitor.LogEntry {
	return monitor.LogEntry{
		ClientName: client,
		Timestamp:  epoch.Add(offset).UnixMilli(),
		Msg:        msg,
		IsReceiver: received,
	}
}

func TestWriteJSON_RoundTrip(t *testing.T) {
	entries := []monitor.LogEntry{entry("r2d2", 0, "a", true), entry("c3po", time.Second, "b", false)}

	var buf bytes.Buffer
	if err := WriteJSON(&buf, entries); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadJSON(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 2 || loaded[0] != entries[0] || loaded[1] != entries[1] {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestWriteJSON_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, nil); err != nil {
		t.Fatal(err)
	}
	if got := bytes.TrimSpace(buf.Bytes()); string(got) != "[]" {
		t.Errorf("empty export = %s, want []", got)
	}
}

func TestWriteFile_ReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal.json")
	if err := os.WriteFile(path, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := WriteFile(path, []monitor.LogEntry{entry("r2d2", 0, "a", true)}); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 1 || loaded[0].Msg != "a" {
		t.Errorf("loaded = %+v", loaded)
	}

	files, _ := os.ReadDir(dir)
	if len(files) != 1 {
		t.Errorf("directory holds %d files, temporary file left behind", len(files))
	}
}

func TestWriteFile_MissingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope", "journal.json")
	if err := WriteFile(path, nil); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadJSON_Invalid(t *testing.T) {
	if _, err := LoadJSON(bytes.NewBufferString("{not json")); err == nil {
		t.Error("expected error for invalid JSON")
	}
}
