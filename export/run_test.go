package export

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"bookbind/book"
	"bookbind/content"
	"bookbind/store"
)

func runSnapshot(t *testing.T) (*book.Snapshot, store.BlobCache) {
	t.Helper()
	cache := store.NewMemoryCache()
	cache.PutBlob("blob-1", pngBlob(t))

	snap := &book.Snapshot{
		Title:  "Example Book",
		Author: "Example Author",
		Chapters: map[string]*book.SourceChapter{
			"ch1": {
				ID: "ch1", Number: 1, Title: "One", Content: "original one",
				Translation: &book.Translation{
					Title:   "Chapter One",
					Content: "Text with image [ILL-1] and a claim[1].",
					Footnotes: []book.Footnote{
						{Marker: "1", Text: "a note"},
					},
					Illustrations: []book.IllustrationRef{
						{Marker: "ILL-1", CacheKey: "blob-1", Prompt: "a dragon"},
					},
				},
			},
			"ch2": {
				ID: "ch2", Number: 2, Title: "Two", Content: "original two",
				Translation: &book.Translation{Title: "Chapter Two", Content: "Plain text."},
			},
		},
	}
	return snap, cache
}

func archiveNames(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	files := make(map[string]string, len(zr.File))
	for _, f := range zr.File {
		r, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		body, err := io.ReadAll(r)
		r.Close()
		if err != nil {
			t.Fatal(err)
		}
		files[f.Name] = string(body)
	}
	return files
}

func TestRunHappyPath(t *testing.T) {
	snap, cache := runSnapshot(t)

	var events []Progress
	res := Run(context.Background(), Request{
		Snapshot: snap,
		Cache:    cache,
		Progress: func(p Progress) { events = append(events, p) },
		Log:      zaptest.NewLogger(t),
	})

	if !res.Success || res.Err != nil {
		t.Fatalf("expected success, got err=%v", res.Err)
	}
	if res.Stats.Chapters != 2 || res.Stats.AssetsResolved != 1 || res.Stats.AssetsMissing != 0 {
		t.Errorf("unexpected stats: %+v", res.Stats)
	}
	if res.Stats.Elapsed <= 0 {
		t.Error("elapsed time not recorded")
	}

	files := archiveNames(t, res.Data)
	chapter := files["OEBPS/text/chapter0001.xhtml"]
	if !strings.Contains(chapter, "images/img-ch1-ILL-1.png") {
		t.Errorf("chapter does not reference resolved asset:\n%s", chapter)
	}
	if _, ok := files["OEBPS/images/img-ch1-ILL-1.png"]; !ok {
		t.Error("asset payload missing from container")
	}

	// Progress is monotonic, starts at a collecting event and ends at 100.
	if len(events) == 0 {
		t.Fatal("no progress events")
	}
	last := -1
	for _, e := range events {
		if e.Percent < last {
			t.Fatalf("progress went backwards: %d after %d", e.Percent, last)
		}
		last = e.Percent
	}
	if events[0].Phase != PhaseCollecting {
		t.Errorf("first event phase = %s", events[0].Phase)
	}
	final := events[len(events)-1]
	if final.Phase != PhaseComplete || final.Percent != 100 {
		t.Errorf("final event = %s/%d", final.Phase, final.Percent)
	}
}

func TestRunDegradesOnMissingData(t *testing.T) {
	snap := &book.Snapshot{
		Title: "Degraded",
		Chapters: map[string]*book.SourceChapter{
			"ch1": {
				ID: "ch1", Number: 1, Content: "orig",
				Translation: &book.Translation{
					Content: "Has a gap [ILL-1] here.",
					Illustrations: []book.IllustrationRef{
						{Marker: "ILL-1", CacheKey: "nowhere"},
					},
				},
			},
			"ch2": {ID: "ch2", Number: 2, Content: "orig"}, // untranslated
		},
	}

	res := Run(context.Background(), Request{
		Snapshot: snap,
		Cache:    store.NewMemoryCache(),
		Log:      zaptest.NewLogger(t),
	})

	if !res.Success {
		t.Fatalf("partial data must still export, got err=%v", res.Err)
	}
	if res.Stats.Chapters != 1 || res.Stats.AssetsMissing != 1 {
		t.Errorf("unexpected stats: %+v", res.Stats)
	}

	var sawSkip, sawMiss bool
	for _, w := range res.Warnings {
		switch w.Code {
		case content.WarnMissingTranslation:
			sawSkip = true
		case content.WarnCacheMiss:
			sawMiss = true
		}
	}
	if !sawSkip || !sawMiss {
		t.Errorf("expected skip and miss warnings, got %v", res.Warnings)
	}

	chapter := archiveNames(t, res.Data)["OEBPS/text/chapter0001.xhtml"]
	if strings.Contains(chapter, "ILL-1") {
		t.Errorf("missing asset marker must be dropped:\n%s", chapter)
	}
}

func TestRunFailsFastWithoutChapters(t *testing.T) {
	snap := &book.Snapshot{
		Chapters: map[string]*book.SourceChapter{
			"ch1": {ID: "ch1", Number: 1, Content: "orig"}, // no translation
		},
	}

	var events []Progress
	res := Run(context.Background(), Request{
		Snapshot: snap,
		Progress: func(p Progress) { events = append(events, p) },
		Log:      zaptest.NewLogger(t),
	})

	if res.Success || !errors.Is(res.Err, ErrNoChapters) {
		t.Fatalf("expected ErrNoChapters, got success=%v err=%v", res.Success, res.Err)
	}
	if len(res.Data) != 0 {
		t.Error("failed run must not produce container bytes")
	}
	if len(events) == 0 || events[len(events)-1].Phase != PhaseError {
		t.Errorf("expected final error event, got %v", events)
	}
	// The skip warning still reaches the caller.
	if len(res.Warnings) == 0 {
		t.Error("expected diagnostics on failed run")
	}
}

func TestRunNilSnapshot(t *testing.T) {
	res := Run(context.Background(), Request{Log: zaptest.NewLogger(t)})
	if res.Success || res.Err == nil {
		t.Fatal("expected failure for nil snapshot")
	}
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	snap, cache := runSnapshot(t)

	res := Run(ctx, Request{Snapshot: snap, Cache: cache, Log: zaptest.NewLogger(t)})
	if res.Success || !errors.Is(res.Err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", res.Err)
	}
}

func TestRunSurvivesPanickingCache(t *testing.T) {
	snap, _ := runSnapshot(t)

	res := Run(context.Background(), Request{
		Snapshot: snap,
		Cache:    panickyCache{},
		Log:      zaptest.NewLogger(t),
	})

	if !res.Success {
		t.Fatalf("a broken cache must degrade, not fail the run: %v", res.Err)
	}
	if res.Stats.AssetsMissing != 1 {
		t.Errorf("expected the broken asset to be counted missing, got %d", res.Stats.AssetsMissing)
	}
	if !hasWarning(res.Warnings, content.WarnConversionFailed, "ch1") {
		t.Error("conversion-failed warning for the panic not surfaced")
	}
}

func TestRunRecoversPanic(t *testing.T) {
	snap, cache := runSnapshot(t)

	res := Run(context.Background(), Request{
		Snapshot: snap,
		Cache:    cache,
		Progress: func(p Progress) {
			if p.Phase == PhaseBuilding {
				panic("consumer exploded")
			}
		},
		Log: zaptest.NewLogger(t),
	})

	if res.Success {
		t.Fatal("panicked run must not succeed")
	}
	if res.Err == nil || !strings.Contains(res.Err.Error(), "panicked") {
		t.Fatalf("expected panic error, got %v", res.Err)
	}
}
