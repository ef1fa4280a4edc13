// Package book defines the data model shared between the chapter store
// snapshot and the export pipeline.
package book

import (
	"fmt"
	"time"
)

// Snapshot is a read-only copy of the external chapter store taken at the
// beginning of an export run. It is never mutated by the pipeline.
type Snapshot struct {
	Title       string                    `json:"title,omitempty"`
	Author      string                    `json:"author,omitempty"`
	Language    string                    `json:"language,omitempty"`
	Description string                    `json:"description,omitempty"`
	Chapters    map[string]*SourceChapter `json:"chapters"`
}

// SourceChapter is a chapter record exactly as the store keeps it. Optional
// fields vary across producer versions, normalization happens once in the
// collector.
type SourceChapter struct {
	ID          string       `json:"id"`
	Number      int          `json:"number"`
	Title       string       `json:"title,omitempty"`
	Content     string       `json:"content,omitempty"`
	Translation *Translation `json:"translation,omitempty"`
	PrevID      string       `json:"prev,omitempty"`
	NextID      string       `json:"next,omitempty"`
}

// Translation holds the result produced by the translation machinery for a
// single chapter.
type Translation struct {
	Title         string            `json:"title,omitempty"`
	Content       string            `json:"content"`
	Footnotes     []Footnote        `json:"footnotes,omitempty"`
	Illustrations []IllustrationRef `json:"illustrations,omitempty"`
	Usage         *UsageMetrics     `json:"usage,omitempty"`
}

// Footnote is a single footnote attached to a chapter translation. Marker is
// the token placed in the translated text (without brackets), Text is the
// footnote body.
type Footnote struct {
	Marker string `json:"marker"`
	Text   string `json:"text"`
}

// IllustrationRef points at an illustration embedded in the translated text.
// Producers stored these in several shapes over time (bare URL string,
// structured cache key, inline data URI) - UnmarshalJSON accepts all of them.
type IllustrationRef struct {
	Marker   string `json:"marker"`
	Prompt   string `json:"prompt,omitempty"`
	CacheKey string `json:"cache_key,omitempty"`
	Inline   string `json:"inline_data,omitempty"` // data URI fallback
	URL      string `json:"url,omitempty"`         // legacy producer shape
}

// UsageMetrics is the telemetry recorded by the translation machinery. Used
// for the statistics page only.
type UsageMetrics struct {
	Provider         string        `json:"provider,omitempty"`
	Model            string        `json:"model,omitempty"`
	PromptTokens     int           `json:"prompt_tokens,omitempty"`
	CompletionTokens int           `json:"completion_tokens,omitempty"`
	Cost             float64       `json:"cost,omitempty"`
	Elapsed          time.Duration `json:"elapsed,omitempty"`
}

// TotalTokens returns combined token count for the chapter.
func (u *UsageMetrics) TotalTokens() int {
	if u == nil {
		return 0
	}
	return u.PromptTokens + u.CompletionTokens
}

// Chapter is the canonical record every pipeline stage past the collector
// works with. All heterogeneous source shapes are already folded in.
type Chapter struct {
	ID            string
	Number        int
	Title         string // original
	Content       string // original
	TransTitle    string
	TransContent  string
	Footnotes     []Footnote
	Illustrations []IllustrationRef
	PrevID        string
	NextID        string
	Usage         *UsageMetrics
}

// Label composes the human readable chapter label used for navigation
// entries.
func (c *Chapter) Label() string {
	title := c.TransTitle
	if title == "" {
		title = c.Title
	}
	if title == "" {
		return fmt.Sprintf("Chapter %d", c.Number)
	}
	return fmt.Sprintf("Chapter %d: %s", c.Number, title)
}
