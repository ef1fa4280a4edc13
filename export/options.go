// Package export implements the book export pipeline: collecting chapter
// records from a store snapshot, resolving cached binary assets, building
// XHTML content and packaging everything into an EPUB container.
package export

import (
	"bookbind/config"
)

// Options controls a single export run.
type Options struct {
	// Ordering selects the chapter ordering strategy for the spine.
	Ordering config.OrderingStrategy

	// Optional generated pages.
	TitlePage      bool
	StatisticsPage bool

	// Metadata overrides for generated pages.
	Acknowledgment string
	Description    string
	Footer         string

	// Book metadata overrides. Empty values fall back to the snapshot.
	Title    string
	Author   string
	Language string

	// Asset handling.
	NormalizeFormats bool
	RasterizeSVG     bool

	// Settings is a snapshot of provider configuration used purely for
	// statistics display. Secrets stay masked.
	Settings []config.ProviderSettings
}

// OptionsFromConfig derives run options from loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Ordering:         cfg.Document.Ordering,
		TitlePage:        cfg.Document.Pages.TitlePage,
		StatisticsPage:   cfg.Document.Pages.StatisticsPage,
		Acknowledgment:   cfg.Document.Pages.Acknowledgment,
		Description:      cfg.Document.Pages.Description,
		Footer:           cfg.Document.Pages.Footer,
		Language:         cfg.Document.Language,
		NormalizeFormats: cfg.Document.Assets.NormalizeFormats,
		RasterizeSVG:     cfg.Document.Assets.RasterizeSVG,
		Settings:         cfg.Settings,
	}
}
