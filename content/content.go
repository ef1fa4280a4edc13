// Package content defines the artifacts passed between export pipeline
// stages: collected chapters, resolved assets and built book content. Stages
// live in the export package, the container builder in export/epub - both
// work on these types.
package content

import (
	"fmt"
	"time"

	"github.com/beevik/etree"

	"bookbind/book"
)

// WarningCode classifies non-fatal problems recorded during an export run.
type WarningCode string

const (
	WarnMissingTranslation WarningCode = "missing-translation"
	WarnMissingContent     WarningCode = "missing-content"
	WarnOrderingGap        WarningCode = "ordering-gap"
	WarnCacheMiss          WarningCode = "cache-miss"
	WarnInvalidData        WarningCode = "invalid-data"
	WarnConversionFailed   WarningCode = "conversion-failed"
)

// Warning is a single diagnostic record. Warnings never abort the run, they
// are aggregated into the final result.
type Warning struct {
	Code    WarningCode
	Chapter string
	Marker  string
	Message string
}

func (w Warning) String() string {
	s := string(w.Code)
	if w.Chapter != "" {
		s += " chapter=" + w.Chapter
	}
	if w.Marker != "" {
		s += " marker=" + w.Marker
	}
	if w.Message != "" {
		s += ": " + w.Message
	}
	return s
}

// Collected is the collector stage output: canonical chapter records in final
// spine order plus book level metadata taken from the snapshot.
type Collected struct {
	Title       string
	Author      string
	Language    string
	Description string
	Chapters    []*book.Chapter
	Warnings    []Warning
}

// AssetKind tells what a placement marker stands for.
type AssetKind int

const (
	AssetIllustration AssetKind = iota
	AssetAudio
)

// ResolvedAsset is a binary payload obtained for a placement marker, ready
// for embedding.
type ResolvedAsset struct {
	ID        string
	MimeType  string
	Data      []byte
	Ext       string
	ChapterID string
	Marker    string
	Kind      AssetKind
}

// Filename returns the name the asset is stored under inside the container
// images directory.
func (a *ResolvedAsset) Filename() string {
	return a.ID + "." + a.Ext
}

// AssetID derives the deterministic asset identifier for a chapter marker.
// Stable across runs given a stable cache.
func AssetID(chapterID, marker string) string {
	return fmt.Sprintf("img-%s-%s", chapterID, marker)
}

// Outcome records what happened to a single placement marker. Every marker
// gets exactly one - either an asset or an explicit miss, never neither.
type Outcome struct {
	AssetID string
	Missing bool
}

// OutcomeKey indexes outcomes by chapter and marker.
func OutcomeKey(chapterID, marker string) string {
	return chapterID + "\x00" + marker
}

// Resolved is the resolver stage output.
type Resolved struct {
	*Collected
	Assets   []*ResolvedAsset   // deterministic order, resolved only
	Outcomes map[string]Outcome // OutcomeKey -> outcome, complete
	Warnings []Warning
	Missing  int
}

// Document is a single generated XHTML file.
type Document struct {
	ID       string
	Filename string // relative to the package document, e.g. "text/chapter0001.xhtml"
	Title    string
	Doc      *etree.Document
	Chapter  bool // book chapter, as opposed to title or statistics pages
	InSpine  bool
	InNav    bool
}

// ManifestItem describes one container file in the package document.
type ManifestItem struct {
	ID         string
	Href       string
	MediaType  string
	Properties string
}

// SpineItem is a reading order entry.
type SpineItem struct {
	IDRef  string
	Linear bool
}

// NavItem is a navigation document entry.
type NavItem struct {
	Title string
	Href  string
}

// Metadata is package level metadata derived once per book.
type Metadata struct {
	Title      string
	Author     string
	Language   string
	Identifier string
	Modified   time.Time
}

// Built is the content builder stage output.
type Built struct {
	Documents []Document
	Manifest  []ManifestItem
	Spine     []SpineItem
	Nav       []NavItem
	Meta      Metadata
	Styles    []byte // stylesheet shared by all documents
	Warnings  []Warning
}

// Packaged is the container builder output. StructuralErr aggregates
// post-assembly validation failures - Data is still produced for diagnostics
// even when validation fails.
type Packaged struct {
	Data          []byte
	StructuralErr error
	ParseErrors   []string
}
