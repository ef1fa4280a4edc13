package export

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"bookbind/book"
	"bookbind/content"
	"bookbind/store"
)

// resolveJob is one placement marker to resolve.
type resolveJob struct {
	chapterID string
	ref       book.IllustrationRef
}

// resolveResult is the outcome slot filled by exactly one worker.
type resolveResult struct {
	asset    *content.ResolvedAsset
	warnings []content.Warning
	err      error // context errors only, everything else degrades to a warning
}

// Resolve turns every placement marker of the collected chapters into either
// a concrete binary asset or a recorded miss. Markers resolve independently,
// so the fan-out runs one goroutine per marker, each writing into its own
// result slot. The outcome map is complete: one entry per marker, always.
func Resolve(ctx context.Context, opts Options, col *content.Collected, cache store.BlobCache, log *zap.Logger) (*content.Resolved, error) {
	var jobs []resolveJob
	for _, ch := range col.Chapters {
		for _, ref := range ch.Illustrations {
			jobs = append(jobs, resolveJob{chapterID: ch.ID, ref: ref})
		}
	}

	results := make([]resolveResult, len(jobs))

	var wg sync.WaitGroup
	for i, job := range jobs {
		wg.Add(1)
		go func(slot int, job resolveJob) {
			defer wg.Done()
			// A panicking cache backend or image decoder must not take
			// down the run - the marker degrades to a recorded miss.
			defer func() {
				if r := recover(); r != nil {
					log.Error("Asset resolution panicked",
						zap.String("chapter", job.chapterID),
						zap.String("marker", job.ref.Marker),
						zap.Any("reason", r))
					results[slot] = resolveResult{warnings: []content.Warning{{
						Code:    content.WarnConversionFailed,
						Chapter: job.chapterID,
						Marker:  job.ref.Marker,
						Message: fmt.Sprintf("resolution panicked: %v", r),
					}}}
				}
			}()
			results[slot] = resolveOne(ctx, opts, job, cache, log)
		}(i, job)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &content.Resolved{
		Collected: col,
		Outcomes:  make(map[string]content.Outcome, len(jobs)),
	}

	// Merge in job order so warnings and the asset list stay deterministic.
	for i, r := range results {
		if r.err != nil {
			return nil, r.err
		}
		job := jobs[i]
		res.Warnings = append(res.Warnings, r.warnings...)

		outcome := content.Outcome{Missing: r.asset == nil}
		if r.asset != nil {
			outcome.AssetID = r.asset.ID
			res.Assets = append(res.Assets, r.asset)
		} else {
			res.Missing++
		}
		res.Outcomes[content.OutcomeKey(job.chapterID, job.ref.Marker)] = outcome
	}

	log.Info("Resolved assets",
		zap.Int("markers", len(jobs)),
		zap.Int("resolved", len(res.Assets)),
		zap.Int("missing", res.Missing))
	return res, nil
}

// resolveOne runs the fallback chain for a single marker: blob cache first,
// inline data URI second, recorded miss last.
func resolveOne(ctx context.Context, opts Options, job resolveJob, cache store.BlobCache, log *zap.Logger) resolveResult {
	var res resolveResult

	warn := func(code content.WarningCode, format string, args ...any) {
		res.warnings = append(res.warnings, content.Warning{
			Code:    code,
			Chapter: job.chapterID,
			Marker:  job.ref.Marker,
			Message: fmt.Sprintf(format, args...),
		})
	}

	var data []byte
	var declared string

	if job.ref.CacheKey != "" && cache != nil {
		blob, err := cache.GetBlob(ctx, job.ref.CacheKey)
		switch {
		case err == nil:
			data = blob
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			res.err = err
			return res
		case errors.Is(err, store.ErrBlobNotFound):
			warn(content.WarnCacheMiss, "cache key %q not found", job.ref.CacheKey)
		default:
			warn(content.WarnInvalidData, "cache lookup failed: %s", err)
		}
	}

	if data == nil && job.ref.Inline != "" {
		payload, mimeType, err := decodeDataURI(job.ref.Inline)
		if err != nil {
			warn(content.WarnInvalidData, "inline data unusable: %s", err)
			return res
		}
		if job.ref.CacheKey == "" {
			warn(content.WarnCacheMiss, "no cache key, using inline fallback")
		}
		data, declared = payload, mimeType
	}

	if data == nil {
		if job.ref.URL != "" {
			// Legacy producers stored bare URLs. Remote fetching is not
			// done here, so name the shape instead of a generic miss.
			warn(content.WarnInvalidData, "remote URL %q is not a supported source", job.ref.URL)
		}
		if job.ref.CacheKey == "" {
			warn(content.WarnCacheMiss, "no cache key and no inline data")
		}
		return res
	}

	mimeType := sniffMime(data, declared)
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	if opts.NormalizeFormats && needsNormalization(mimeType) {
		if converted, err := normalizeImage(data); err != nil {
			warn(content.WarnConversionFailed, "normalizing %s failed: %s", mimeType, err)
		} else {
			data, mimeType = converted, "image/png"
		}
	}
	if opts.RasterizeSVG && mimeType == "image/svg+xml" {
		if converted, err := rasterizeSVG(data); err != nil {
			warn(content.WarnConversionFailed, "rasterizing svg failed: %s", err)
		} else {
			data, mimeType = converted, "image/png"
		}
	}

	kind := content.AssetIllustration
	if strings.HasPrefix(mimeType, "audio/") {
		kind = content.AssetAudio
	}

	res.asset = &content.ResolvedAsset{
		ID:        content.AssetID(job.chapterID, job.ref.Marker),
		MimeType:  mimeType,
		Data:      data,
		Ext:       mimeToExt(mimeType),
		ChapterID: job.chapterID,
		Marker:    job.ref.Marker,
		Kind:      kind,
	}
	log.Debug("Resolved asset",
		zap.String("id", res.asset.ID),
		zap.String("mime", mimeType),
		zap.Int("bytes", len(data)))
	return res
}

// decodeDataURI parses a base64 data URI of the form
// data:<mime>;base64,<payload> and returns the payload and declared type.
func decodeDataURI(uri string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, "", errors.New("not a data URI")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", errors.New("data URI has no payload")
	}
	mimeType, enc, _ := strings.Cut(meta, ";")
	if !strings.EqualFold(enc, "base64") {
		return nil, "", fmt.Errorf("unsupported data URI encoding %q", enc)
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return nil, "", fmt.Errorf("decoding base64 payload: %w", err)
	}
	if len(data) == 0 {
		return nil, "", errors.New("empty payload")
	}
	return data, mimeType, nil
}
