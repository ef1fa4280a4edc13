package export

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/maruel/natural"
	"go.uber.org/zap"

	"bookbind/book"
	"bookbind/config"
	"bookbind/content"
)

// Collect walks a snapshot of chapter records, normalizes heterogeneous
// per-chapter shapes into canonical records and flags data quality warnings.
// The snapshot is treated as read-only, canonical records are fresh copies.
// Missing optional fields never fail the stage - they degrade to defaults
// with a recorded warning.
func Collect(ctx context.Context, opts Options, snap *book.Snapshot, log *zap.Logger) (*content.Collected, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	col := &content.Collected{
		Title:       firstNonEmpty(opts.Title, snap.Title, "Untitled"),
		Author:      firstNonEmpty(opts.Author, snap.Author),
		Language:    firstNonEmpty(opts.Language, snap.Language, "en"),
		Description: firstNonEmpty(opts.Description, snap.Description),
	}

	// Deterministic traversal so that warning order is stable between runs.
	ids := make([]string, 0, len(snap.Chapters))
	for id := range snap.Chapters {
		ids = append(ids, id)
	}
	sort.Sort(natural.StringSlice(ids))

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		src := snap.Chapters[id]

		if src.Translation == nil || strings.TrimSpace(src.Translation.Content) == "" {
			col.Warnings = append(col.Warnings, content.Warning{
				Code:    content.WarnMissingTranslation,
				Chapter: id,
				Message: "chapter has no translation, skipped",
			})
			log.Debug("Skipping chapter without translation", zap.String("chapter", id))
			continue
		}
		if strings.TrimSpace(src.Content) == "" {
			col.Warnings = append(col.Warnings, content.Warning{
				Code:    content.WarnMissingContent,
				Chapter: id,
				Message: "chapter has empty original content, skipped",
			})
			log.Debug("Skipping chapter without original content", zap.String("chapter", id))
			continue
		}

		col.Chapters = append(col.Chapters, normalizeChapter(src, &col.Warnings))
	}

	orderChapters(col, opts.Ordering)

	log.Info("Collected chapters",
		zap.Int("chapters", len(col.Chapters)),
		zap.Int("warnings", len(col.Warnings)),
		zap.Stringer("ordering", opts.Ordering))
	return col, nil
}

// normalizeChapter folds all historical producer shapes into one canonical
// record. Nothing past this point branches on input shape.
func normalizeChapter(src *book.SourceChapter, warnings *[]content.Warning) *book.Chapter {
	tr := src.Translation

	ch := &book.Chapter{
		ID:           src.ID,
		Number:       src.Number,
		Title:        src.Title,
		Content:      src.Content,
		TransTitle:   tr.Title,
		TransContent: tr.Content,
		PrevID:       src.PrevID,
		NextID:       src.NextID,
		Usage:        tr.Usage,
	}

	ch.Footnotes = append(ch.Footnotes, tr.Footnotes...)

	// Placement markers must be unique within a chapter. Duplicates are a
	// producer bug - keep the first occurrence and warn.
	seen := make(map[string]bool, len(tr.Illustrations))
	for i, ref := range tr.Illustrations {
		if ref.Marker == "" {
			ref.Marker = fmt.Sprintf("ILL-%d", i+1)
		}
		if seen[ref.Marker] {
			*warnings = append(*warnings, content.Warning{
				Code:    content.WarnInvalidData,
				Chapter: src.ID,
				Marker:  ref.Marker,
				Message: "duplicate placement marker, keeping first occurrence",
			})
			continue
		}
		seen[ref.Marker] = true
		ch.Illustrations = append(ch.Illustrations, ref)
	}

	ch.TransContent = bracketMarkers(ch.TransContent, ch)
	return ch
}

// bracketMarkers rewrites bare occurrences of declared markers in translated
// text to the canonical bracketed form. Only structured markers (containing a
// dash) are rewritten - purely numeric footnote markers are too ambiguous to
// touch outside brackets.
func bracketMarkers(text string, ch *book.Chapter) string {
	rewrite := func(text, marker string) string {
		if len(marker) < 3 || !strings.Contains(marker, "-") {
			return text
		}
		var sb strings.Builder
		for {
			i := strings.Index(text, marker)
			if i < 0 {
				sb.WriteString(text)
				break
			}
			if i > 0 && text[i-1] == '[' {
				sb.WriteString(text[:i+len(marker)])
				text = text[i+len(marker):]
				continue
			}
			sb.WriteString(text[:i])
			sb.WriteString("[" + marker + "]")
			text = text[i+len(marker):]
		}
		return sb.String()
	}
	for _, ref := range ch.Illustrations {
		text = rewrite(text, ref.Marker)
	}
	for _, fn := range ch.Footnotes {
		text = rewrite(text, fn.Marker)
	}
	return text
}

func orderChapters(col *content.Collected, strategy config.OrderingStrategy) {
	switch strategy {
	case config.OrderingByNavigation:
		orderByNavigation(col)
	default:
		orderByNumber(col)
	}
}

func orderByNumber(col *content.Collected) {
	sort.SliceStable(col.Chapters, func(i, j int) bool {
		if col.Chapters[i].Number != col.Chapters[j].Number {
			return col.Chapters[i].Number < col.Chapters[j].Number
		}
		return natural.Less(col.Chapters[i].ID, col.Chapters[j].ID)
	})
	for i := 1; i < len(col.Chapters); i++ {
		prev, cur := col.Chapters[i-1], col.Chapters[i]
		if cur.Number > prev.Number+1 {
			col.Warnings = append(col.Warnings, content.Warning{
				Code:    content.WarnOrderingGap,
				Chapter: cur.ID,
				Message: fmt.Sprintf("ordinal jumps from %d to %d", prev.Number, cur.Number),
			})
		}
	}
}

// orderByNavigation follows prev/next links. Chapters unreachable from the
// head keep ordinal order at the tail, with a warning - broken links must not
// lose content.
func orderByNavigation(col *content.Collected) {
	byID := make(map[string]*book.Chapter, len(col.Chapters))
	for _, ch := range col.Chapters {
		byID[ch.ID] = ch
	}

	var head *book.Chapter
	for _, ch := range col.Chapters {
		if ch.PrevID == "" || byID[ch.PrevID] == nil {
			if head == nil || ch.Number < head.Number {
				head = ch
			}
		}
	}

	var ordered []*book.Chapter
	placed := make(map[string]bool, len(col.Chapters))
	for cur := head; cur != nil && !placed[cur.ID]; cur = byID[cur.NextID] {
		ordered = append(ordered, cur)
		placed[cur.ID] = true
	}

	if len(ordered) != len(col.Chapters) {
		var leftovers []*book.Chapter
		for _, ch := range col.Chapters {
			if !placed[ch.ID] {
				leftovers = append(leftovers, ch)
				col.Warnings = append(col.Warnings, content.Warning{
					Code:    content.WarnOrderingGap,
					Chapter: ch.ID,
					Message: "chapter not reachable through navigation links, appended in ordinal order",
				})
			}
		}
		sort.SliceStable(leftovers, func(i, j int) bool { return leftovers[i].Number < leftovers[j].Number })
		ordered = append(ordered, leftovers...)
	}
	col.Chapters = ordered
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
