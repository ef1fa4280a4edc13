package store

import (
	"testing"
)

func TestParseSnapshot(t *testing.T) {
	data := []byte(`{
		"title": "The Drifting Isle",
		"language": "en",
		"chapters": {
			"ch-1": {
				"number": 1,
				"content": "original text",
				"translation": {
					"content": "<p>translated</p>",
					"footnotes": ["a note"],
					"illustrations": ["data:image/png;base64,AAAA"]
				}
			},
			"ch-2": null
		}
	}`)

	snap, err := ParseSnapshot(data)
	if err != nil {
		t.Fatalf("ParseSnapshot: %v", err)
	}

	if snap.Title != "The Drifting Isle" {
		t.Errorf("title = %q", snap.Title)
	}
	if len(snap.Chapters) != 1 {
		t.Fatalf("expected null chapter dropped, have %d chapters", len(snap.Chapters))
	}

	ch := snap.Chapters["ch-1"]
	if ch.ID != "ch-1" {
		t.Errorf("chapter ID not backfilled from map key: %q", ch.ID)
	}
	if ch.Translation.Footnotes[0].Marker != "1" {
		t.Errorf("positional footnote marker = %q, want \"1\"", ch.Translation.Footnotes[0].Marker)
	}
	if ch.Translation.Illustrations[0].Inline == "" {
		t.Errorf("bare data URI not folded into inline field")
	}
}

func TestParseSnapshotRejectsGarbage(t *testing.T) {
	if _, err := ParseSnapshot([]byte(`{"chapters": 42}`)); err == nil {
		t.Fatal("expected decode error")
	}
}
