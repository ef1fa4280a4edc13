package export

import (
	"context"
	"testing"

	"go.uber.org/zap/zaptest"

	"bookbind/book"
	"bookbind/config"
	"bookbind/content"
)

func tr(text string) *book.Translation {
	return &book.Translation{Content: text}
}

func hasWarning(warnings []content.Warning, code content.WarningCode, chapter string) bool {
	for _, w := range warnings {
		if w.Code == code && w.Chapter == chapter {
			return true
		}
	}
	return false
}

func TestCollectSkipsIncompleteChapters(t *testing.T) {
	snap := &book.Snapshot{
		Title: "Book",
		Chapters: map[string]*book.SourceChapter{
			"ch1": {ID: "ch1", Number: 1, Content: "orig", Translation: tr("text one")},
			"ch2": {ID: "ch2", Number: 2, Content: "orig"},                          // no translation
			"ch3": {ID: "ch3", Number: 3, Content: "", Translation: tr("text two")}, // no original
			"ch4": {ID: "ch4", Number: 4, Content: "orig", Translation: tr("   ")},  // blank translation
		},
	}

	col, err := Collect(context.Background(), Options{}, snap, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(col.Chapters) != 1 || col.Chapters[0].ID != "ch1" {
		t.Fatalf("expected only ch1 to survive, got %d chapters", len(col.Chapters))
	}
	if !hasWarning(col.Warnings, content.WarnMissingTranslation, "ch2") {
		t.Error("missing-translation warning for ch2 not recorded")
	}
	if !hasWarning(col.Warnings, content.WarnMissingContent, "ch3") {
		t.Error("missing-content warning for ch3 not recorded")
	}
	if !hasWarning(col.Warnings, content.WarnMissingTranslation, "ch4") {
		t.Error("missing-translation warning for ch4 not recorded")
	}
}

func TestCollectOrderByNumber(t *testing.T) {
	snap := &book.Snapshot{
		Chapters: map[string]*book.SourceChapter{
			"b": {ID: "b", Number: 5, Content: "o", Translation: tr("t")},
			"a": {ID: "a", Number: 1, Content: "o", Translation: tr("t")},
			"c": {ID: "c", Number: 2, Content: "o", Translation: tr("t")},
		},
	}

	col, err := Collect(context.Background(), Options{Ordering: config.OrderingByNumber}, snap, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a", "c", "b"}
	for i, id := range want {
		if col.Chapters[i].ID != id {
			t.Fatalf("position %d: got %s, want %s", i, col.Chapters[i].ID, id)
		}
	}
	if !hasWarning(col.Warnings, content.WarnOrderingGap, "b") {
		t.Error("ordering-gap warning for jump 2->5 not recorded")
	}
}

func TestCollectOrderByNavigation(t *testing.T) {
	snap := &book.Snapshot{
		Chapters: map[string]*book.SourceChapter{
			// Links say c->a->b; ordinals disagree on purpose.
			"a": {ID: "a", Number: 1, Content: "o", Translation: tr("t"), PrevID: "c", NextID: "b"},
			"b": {ID: "b", Number: 2, Content: "o", Translation: tr("t"), PrevID: "a"},
			"c": {ID: "c", Number: 3, Content: "o", Translation: tr("t"), NextID: "a"},
		},
	}

	col, err := Collect(context.Background(), Options{Ordering: config.OrderingByNavigation}, snap, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"c", "a", "b"}
	for i, id := range want {
		if col.Chapters[i].ID != id {
			t.Fatalf("position %d: got %s, want %s", i, col.Chapters[i].ID, id)
		}
	}
}

func TestCollectOrderByNavigationBrokenLinks(t *testing.T) {
	snap := &book.Snapshot{
		Chapters: map[string]*book.SourceChapter{
			"a": {ID: "a", Number: 1, Content: "o", Translation: tr("t"), NextID: "missing"},
			"b": {ID: "b", Number: 2, Content: "o", Translation: tr("t"), PrevID: "a"},
		},
	}

	col, err := Collect(context.Background(), Options{Ordering: config.OrderingByNavigation}, snap, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(col.Chapters) != 2 {
		t.Fatalf("broken links must not lose chapters, got %d", len(col.Chapters))
	}
	if !hasWarning(col.Warnings, content.WarnOrderingGap, "b") {
		t.Error("ordering-gap warning for unreachable chapter not recorded")
	}
}

func TestCollectNormalizesMarkers(t *testing.T) {
	snap := &book.Snapshot{
		Chapters: map[string]*book.SourceChapter{
			"ch1": {ID: "ch1", Number: 1, Content: "o", Translation: &book.Translation{
				Content: "Before ILL-1 after. Already [ILL-2] bracketed.",
				Illustrations: []book.IllustrationRef{
					{Marker: "ILL-1", CacheKey: "k1"},
					{Marker: "ILL-2", CacheKey: "k2"},
					{Marker: "ILL-2", CacheKey: "dup"}, // duplicate marker
					{CacheKey: "k4"},                   // no marker, gets positional one
				},
			}},
		},
	}

	col, err := Collect(context.Background(), Options{}, snap, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	ch := col.Chapters[0]
	if got, want := ch.TransContent, "Before [ILL-1] after. Already [ILL-2] bracketed."; got != want {
		t.Errorf("marker normalization:\ngot  %q\nwant %q", got, want)
	}
	if len(ch.Illustrations) != 3 {
		t.Fatalf("expected duplicate marker to be dropped, got %d refs", len(ch.Illustrations))
	}
	if ch.Illustrations[2].Marker != "ILL-4" {
		t.Errorf("positional marker: got %q, want ILL-4", ch.Illustrations[2].Marker)
	}
	if !hasWarning(col.Warnings, content.WarnInvalidData, "ch1") {
		t.Error("invalid-data warning for duplicate marker not recorded")
	}
}

func TestCollectMetadataOverrides(t *testing.T) {
	snap := &book.Snapshot{
		Title:    "Original Title",
		Author:   "Author",
		Chapters: map[string]*book.SourceChapter{},
	}
	col, err := Collect(context.Background(), Options{Title: "Override", Language: "de"}, snap, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	if col.Title != "Override" || col.Author != "Author" || col.Language != "de" {
		t.Errorf("unexpected metadata: %q / %q / %q", col.Title, col.Author, col.Language)
	}
}

func TestCollectCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Collect(ctx, Options{}, &book.Snapshot{}, zaptest.NewLogger(t)); err == nil {
		t.Fatal("expected context error")
	}
}
