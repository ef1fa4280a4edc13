package export

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/neurosnap/sentences/english"

	"bookbind/content"
)

// usageTotals aggregates translation metrics for one provider/model pair.
type usageTotals struct {
	Provider string
	Model    string
	Chapters int
	Tokens   int
	Cost     float64
	Elapsed  time.Duration
}

// textStats are word and sentence counts over the translated text.
type textStats struct {
	Words     int
	Sentences int
}

func collectTextStats(col *content.Collected) textStats {
	var stats textStats

	tokenizer, err := english.NewSentenceTokenizer(nil)
	for _, ch := range col.Chapters {
		stats.Words += len(strings.Fields(ch.TransContent))
		if err == nil {
			stats.Sentences += len(tokenizer.Tokenize(ch.TransContent))
		}
	}
	return stats
}

func collectUsageTotals(col *content.Collected) []usageTotals {
	byKey := make(map[string]*usageTotals)
	for _, ch := range col.Chapters {
		u := ch.Usage
		if u == nil {
			continue
		}
		key := u.Provider + "\x00" + u.Model
		t := byKey[key]
		if t == nil {
			t = &usageTotals{Provider: u.Provider, Model: u.Model}
			byKey[key] = t
		}
		t.Chapters++
		t.Tokens += u.TotalTokens()
		t.Cost += u.Cost
		t.Elapsed += u.Elapsed
	}

	totals := make([]usageTotals, 0, len(byKey))
	for _, t := range byKey {
		totals = append(totals, *t)
	}
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].Provider != totals[j].Provider {
			return totals[i].Provider < totals[j].Provider
		}
		return totals[i].Model < totals[j].Model
	})
	return totals
}

// buildStatisticsPage generates the closing document with translation cost,
// token and timing totals plus the provider configuration snapshot. Secrets
// stay masked.
func buildStatisticsPage(opts Options, col *content.Collected) content.Document {
	doc, body := createXHTMLDocument("Translation Statistics")

	section := body.CreateElement("section")
	section.CreateAttr("class", "statistics")
	section.CreateElement("h1").SetText("Translation Statistics")

	stats := collectTextStats(col)
	overview := section.CreateElement("table")
	addStatRow(overview, "Chapters", fmt.Sprintf("%d", len(col.Chapters)))
	addStatRow(overview, "Words", fmt.Sprintf("%d", stats.Words))
	addStatRow(overview, "Sentences", fmt.Sprintf("%d", stats.Sentences))

	totals := collectUsageTotals(col)
	if len(totals) > 0 {
		section.CreateElement("h2").SetText("Providers")
		table := section.CreateElement("table")
		header := table.CreateElement("tr")
		for _, h := range []string{"Provider", "Model", "Chapters", "Tokens", "Cost", "Time"} {
			header.CreateElement("th").SetText(h)
		}
		var grand usageTotals
		for _, t := range totals {
			row := table.CreateElement("tr")
			row.CreateElement("td").SetText(t.Provider)
			row.CreateElement("td").SetText(t.Model)
			row.CreateElement("td").SetText(fmt.Sprintf("%d", t.Chapters))
			row.CreateElement("td").SetText(fmt.Sprintf("%d", t.Tokens))
			row.CreateElement("td").SetText(fmt.Sprintf("%.4f", t.Cost))
			row.CreateElement("td").SetText(t.Elapsed.Round(time.Second).String())
			grand.Tokens += t.Tokens
			grand.Cost += t.Cost
			grand.Elapsed += t.Elapsed
		}
		total := table.CreateElement("tr")
		total.CreateElement("th").SetText("Total")
		total.CreateElement("th")
		total.CreateElement("th")
		total.CreateElement("th").SetText(fmt.Sprintf("%d", grand.Tokens))
		total.CreateElement("th").SetText(fmt.Sprintf("%.4f", grand.Cost))
		total.CreateElement("th").SetText(grand.Elapsed.Round(time.Second).String())
	}

	if len(opts.Settings) > 0 {
		section.CreateElement("h2").SetText("Configuration")
		table := section.CreateElement("table")
		for _, s := range opts.Settings {
			addStatRow(table, s.Name, fmt.Sprintf("model=%s temperature=%.2f", s.Model, s.Temperature))
		}
	}

	return content.Document{
		ID:       "statistics",
		Filename: "text/statistics.xhtml",
		Title:    "Translation Statistics",
		Doc:      doc,
		InSpine:  true,
		InNav:    true,
	}
}

func addStatRow(table *etree.Element, name, value string) {
	row := table.CreateElement("tr")
	row.CreateElement("th").SetText(name)
	row.CreateElement("td").SetText(value)
}
