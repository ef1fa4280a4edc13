// Package store implements the export pipeline collaborators: the read-only
// chapter store snapshot and the binary asset cache.
package store

import (
	"encoding/json"
	"fmt"
	"os"

	"bookbind/book"
)

// LoadSnapshot reads a chapter store snapshot from a JSON file. The snapshot
// is a point-in-time copy, the pipeline never writes it back.
func LoadSnapshot(path string) (*book.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read snapshot: %w", err)
	}
	return ParseSnapshot(data)
}

// ParseSnapshot decodes snapshot data making sure chapter IDs in the map and
// in the records agree.
func ParseSnapshot(data []byte) (*book.Snapshot, error) {
	var snap book.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unable to decode snapshot: %w", err)
	}
	for id, ch := range snap.Chapters {
		if ch == nil {
			delete(snap.Chapters, id)
			continue
		}
		if ch.ID == "" {
			ch.ID = id
		}
		if ch.Translation != nil {
			ch.Translation.NumberFootnotes()
		}
	}
	return &snap, nil
}
