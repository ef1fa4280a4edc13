package book

import (
	"encoding/json"
	"testing"
)

func TestIllustrationRefUnmarshal(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected IllustrationRef
	}{
		{
			name:     "bare data URI string",
			input:    `"data:image/png;base64,AAAA"`,
			expected: IllustrationRef{Inline: "data:image/png;base64,AAAA"},
		},
		{
			name:     "bare URL string",
			input:    `"https://img.example.com/a.png"`,
			expected: IllustrationRef{URL: "https://img.example.com/a.png"},
		},
		{
			name:     "structured with cache key",
			input:    `{"marker":"ILL-1","prompt":"a forest","cache_key":"ch1/ILL-1"}`,
			expected: IllustrationRef{Marker: "ILL-1", Prompt: "a forest", CacheKey: "ch1/ILL-1"},
		},
		{
			name:     "structured with legacy data field",
			input:    `{"marker":"ILL-2","data":"data:image/gif;base64,R0lG"}`,
			expected: IllustrationRef{Marker: "ILL-2", Inline: "data:image/gif;base64,R0lG"},
		},
		{
			name:     "cache key and inline both present",
			input:    `{"marker":"ILL-3","cache_key":"k","inline_data":"data:image/png;base64,AA"}`,
			expected: IllustrationRef{Marker: "ILL-3", CacheKey: "k", Inline: "data:image/png;base64,AA"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got IllustrationRef
			if err := json.Unmarshal([]byte(tt.input), &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got != tt.expected {
				t.Errorf("got %+v, want %+v", got, tt.expected)
			}
		})
	}
}

func TestFootnoteUnmarshalAndNumbering(t *testing.T) {
	var tr Translation
	input := `{"content":"x","footnotes":["first note",{"marker":"7","text":"seventh"}]}`
	if err := json.Unmarshal([]byte(input), &tr); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	tr.NumberFootnotes()

	if len(tr.Footnotes) != 2 {
		t.Fatalf("expected 2 footnotes, got %d", len(tr.Footnotes))
	}
	if tr.Footnotes[0].Marker != "1" || tr.Footnotes[0].Text != "first note" {
		t.Errorf("positional footnote not numbered: %+v", tr.Footnotes[0])
	}
	if tr.Footnotes[1].Marker != "7" || tr.Footnotes[1].Text != "seventh" {
		t.Errorf("explicit marker lost: %+v", tr.Footnotes[1])
	}
}

func TestChapterLabel(t *testing.T) {
	tests := []struct {
		name     string
		chapter  Chapter
		expected string
	}{
		{"translated title preferred", Chapter{Number: 3, Title: "orig", TransTitle: "Departure"}, "Chapter 3: Departure"},
		{"original title fallback", Chapter{Number: 1, Title: "orig"}, "Chapter 1: orig"},
		{"no title at all", Chapter{Number: 12}, "Chapter 12"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.chapter.Label(); got != tt.expected {
				t.Errorf("Label() = %q, want %q", got, tt.expected)
			}
		})
	}
}
