package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gosimple/slug"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"bookbind/config"
	"bookbind/export"
	"bookbind/export/epub"
	"bookbind/state"
	"bookbind/store"
)

func doExport(ctx context.Context, cmd *cli.Command) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("export")

	src := cmd.Args().Get(0)
	if len(src) == 0 {
		return errors.New("no snapshot file has been specified")
	}
	src, err = filepath.Abs(src)
	if err != nil {
		return err
	}

	dst := cmd.Args().Get(1)
	if len(dst) == 0 {
		if dst, err = os.Getwd(); err != nil {
			return fmt.Errorf("unable to get working directory: %w", err)
		}
	}
	if dst, err = filepath.Abs(dst); err != nil {
		return err
	}
	if cmd.Args().Len() > 2 {
		log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[2:]))
	}

	snap, err := store.LoadSnapshot(src)
	if err != nil {
		return fmt.Errorf("unable to load snapshot: %w", err)
	}
	if env.Rpt != nil {
		env.Rpt.Store(fmt.Sprintf("input/%s", filepath.Base(src)), src)
	}

	opts := export.OptionsFromConfig(env.Cfg)
	if s := cmd.String("ordering"); len(s) > 0 {
		ordering, err := config.ParseOrderingStrategy(s)
		if err != nil {
			log.Warn("Unknown ordering strategy requested, using ordinal order", zap.Error(err))
		}
		opts.Ordering = ordering
	}
	if s := cmd.String("title"); len(s) > 0 {
		opts.Title = s
	}
	if s := cmd.String("author"); len(s) > 0 {
		opts.Author = s
	}
	if s := cmd.String("language"); len(s) > 0 {
		opts.Language = s
	}
	env.Overwrite = cmd.Bool("overwrite")

	outPath, err := resolveDestination(dst, firstNonEmpty(opts.Title, snap.Title, "book"), env.Cfg.Document.FileNameTransliterate)
	if err != nil {
		return err
	}
	if _, err := os.Stat(outPath); err == nil && !env.Overwrite {
		return fmt.Errorf("destination file already exists: %s (use --overwrite)", outPath)
	}

	result := export.Run(ctx, export.Request{
		Snapshot: snap,
		Cache:    env.Cache,
		Options:  opts,
		Log:      log,
		Progress: func(p export.Progress) {
			log.Info("Progress",
				zap.Stringer("phase", p.Phase),
				zap.Int("percent", p.Percent),
				zap.String("message", p.Message),
				zap.String("detail", p.Detail))
		},
	})

	for _, w := range result.Warnings {
		log.Warn("Export diagnostic", zap.String("warning", w.String()))
	}
	if result.Err != nil {
		// A structurally broken container is still worth keeping around for
		// inspection when debugging.
		if env.Rpt != nil && len(result.Data) > 0 {
			env.Rpt.StoreData("output/broken.epub", result.Data)
		}
		return fmt.Errorf("export failed: %w", result.Err)
	}

	if err := writeContainer(outPath, result.Data, env.Cfg.Document.FixZip); err != nil {
		return err
	}
	if env.Rpt != nil {
		env.Rpt.Store(fmt.Sprintf("output/%s", filepath.Base(outPath)), outPath)
	}

	log.Info("Export succeeded",
		zap.String("output", outPath),
		zap.Int("chapters", result.Stats.Chapters),
		zap.Int("assets", result.Stats.AssetsResolved),
		zap.Int("missing", result.Stats.AssetsMissing),
		zap.Int("warnings", result.Stats.Warnings),
		zap.Duration("elapsed", result.Stats.Elapsed))
	return nil
}

// resolveDestination derives the output file path. A directory destination
// gets a file name based on the book title.
func resolveDestination(dst, title string, transliterate bool) (string, error) {
	if fi, err := os.Stat(dst); err == nil && fi.IsDir() {
		name := title
		if transliterate {
			name = slug.Make(name)
		} else {
			name = config.CleanFileName(name)
		}
		if len(name) == 0 {
			name = "book"
		}
		return filepath.Join(dst, name+".epub"), nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", fmt.Errorf("unable to create output directory: %w", err)
	}
	return dst, nil
}

// writeContainer stores the produced bytes, optionally rewriting the archive
// without data descriptors for picky readers.
func writeContainer(outPath string, data []byte, fixZip bool) error {
	if !fixZip {
		if err := os.WriteFile(outPath, data, 0644); err != nil {
			return fmt.Errorf("unable to write output file: %w", err)
		}
		return nil
	}

	tmp := outPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("unable to write temporary file: %w", err)
	}
	defer os.Remove(tmp)

	if err := epub.StripDataDescriptors(tmp, outPath); err != nil {
		return fmt.Errorf("unable to rewrite output archive: %w", err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
