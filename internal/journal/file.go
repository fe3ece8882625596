package journal

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/SmitUplenchwar2687/Robomon/internal/monitor"
)

// WriteJSON writes entries to w as an indented JSON array. No entries is
// written as [] rather than null.
func WriteJSON(w io.Writer, entries []monitor.LogEntry) error {
	if entries == nil {
		entries = []monitor.LogEntry{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(entries), "encoding journal")
}

// WriteFile replaces the journal file at path. The entries go to a
// temporary file in the same directory first, so readers never see a
// half-written journal.
func WriteFile(path string, entries []monitor.LogEntry) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "creating journal file")
	}
	defer os.Remove(tmp.Name())

	if err := WriteJSON(tmp, entries); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "writing journal file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrap(err, "replacing journal file")
	}
	return nil
}

// LoadJSON reads a journal written by WriteJSON.
func LoadJSON(r io.Reader) ([]monitor.LogEntry, error) {
	var entries []monitor.LogEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, errors.Wrap(err, "decoding journal")
	}
	return entries, nil
}

// LoadFile reads a journal file written by WriteFile.
func LoadFile(path string) ([]monitor.LogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening journal file")
	}
	defer f.Close()
	return LoadJSON(f)
}
