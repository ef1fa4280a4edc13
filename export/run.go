package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"bookbind/book"
	"bookbind/content"
	"bookbind/export/epub"
	"bookbind/store"
)

// ErrNoChapters is returned when the snapshot yields nothing exportable.
var ErrNoChapters = errors.New("no exportable chapters")

// Request describes one export run.
type Request struct {
	Snapshot *book.Snapshot
	Cache    store.BlobCache
	Options  Options
	Progress ProgressFunc // optional
	Log      *zap.Logger
}

// Stats summarizes what a run processed.
type Stats struct {
	Chapters       int
	AssetsResolved int
	AssetsMissing  int
	Warnings       int
	Elapsed        time.Duration
}

// Result is the structured outcome of a run. Warnings carries the full
// diagnostic trail regardless of success.
type Result struct {
	Success  bool
	Data     []byte
	Err      error
	Warnings []content.Warning
	Stats    Stats
}

// Run drives the pipeline through its stages: collect, resolve, build,
// package. The run never panics across the API boundary - a stage panic is
// recovered into a failed Result. Progress percentages only move forward and
// reach 100 exactly on success.
func Run(ctx context.Context, req Request) (result *Result) {
	log := req.Log
	if log == nil {
		log = zap.NewNop()
	}
	rpt := &reporter{fn: req.Progress}
	start := time.Now()

	result = &Result{}
	finish := func() {
		result.Stats.Elapsed = time.Since(start)
		result.Stats.Warnings = len(result.Warnings)
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("Export pipeline panicked", zap.Any("panic", r), zap.Stack("stack"))
			result = &Result{Err: fmt.Errorf("export pipeline panicked: %v", r)}
			result.Stats.Elapsed = time.Since(start)
			rpt.report(PhaseError, rpt.last, "export failed", fmt.Sprint(r))
		}
	}()

	fail := func(err error) *Result {
		result.Err = err
		finish()
		rpt.report(PhaseError, rpt.last, "export failed", err.Error())
		return result
	}

	if req.Snapshot == nil {
		return fail(errors.New("no snapshot provided"))
	}

	rpt.report(PhaseCollecting, 0, "collecting chapters", "")
	col, err := Collect(ctx, req.Options, req.Snapshot, log)
	if err != nil {
		return fail(err)
	}
	result.Warnings = append(result.Warnings, col.Warnings...)
	result.Stats.Chapters = len(col.Chapters)
	if len(col.Chapters) == 0 {
		return fail(ErrNoChapters)
	}
	rpt.report(PhaseCollecting, 20, "collected chapters", fmt.Sprintf("%d chapters", len(col.Chapters)))

	rpt.report(PhaseResolving, 20, "resolving assets", "")
	res, err := Resolve(ctx, req.Options, col, req.Cache, log)
	if err != nil {
		return fail(err)
	}
	result.Warnings = append(result.Warnings, res.Warnings...)
	result.Stats.AssetsResolved = len(res.Assets)
	result.Stats.AssetsMissing = res.Missing
	rpt.report(PhaseResolving, 55, "resolved assets",
		fmt.Sprintf("%d resolved, %d missing", len(res.Assets), res.Missing))

	rpt.report(PhaseBuilding, 55, "building content", "")
	built, err := Build(ctx, req.Options, res, log)
	if err != nil {
		return fail(err)
	}
	result.Warnings = append(result.Warnings, built.Warnings...)
	rpt.report(PhaseBuilding, 80, "built content", fmt.Sprintf("%d documents", len(built.Documents)))

	rpt.report(PhasePackaging, 80, "packaging container", "")
	pkg, err := epub.Package(built, res.Assets, log)
	if err != nil {
		return fail(err)
	}
	result.Data = pkg.Data
	for _, msg := range pkg.ParseErrors {
		result.Warnings = append(result.Warnings, content.Warning{
			Code:    content.WarnInvalidData,
			Message: msg,
		})
	}
	if pkg.StructuralErr != nil {
		result.Err = pkg.StructuralErr
		finish()
		rpt.report(PhaseError, 95, "container failed validation", pkg.StructuralErr.Error())
		return result
	}
	rpt.report(PhasePackaging, 95, "packaged container", fmt.Sprintf("%d bytes", len(pkg.Data)))

	result.Success = true
	finish()
	rpt.report(PhaseComplete, 100, "export complete", "")

	log.Info("Export finished",
		zap.Bool("success", result.Success),
		zap.Int("chapters", result.Stats.Chapters),
		zap.Int("assets", result.Stats.AssetsResolved),
		zap.Int("missing", result.Stats.AssetsMissing),
		zap.Int("warnings", result.Stats.Warnings),
		zap.Duration("elapsed", result.Stats.Elapsed))
	return result
}
