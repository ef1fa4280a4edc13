package export

import (
	"bytes"
	"text/template"
	"time"

	"github.com/beevik/etree"
	sprig "github.com/go-task/slim-sprig/v3"

	"bookbind/content"
	"bookbind/misc"
)

// TemplateValues are the variables available in user supplied page template
// fields (acknowledgment, footer).
type TemplateValues struct {
	Title    string
	Author   string
	Language string
	Chapters int
	Date     string
	Version  string
}

func templateValues(col *content.Collected) TemplateValues {
	return TemplateValues{
		Title:    col.Title,
		Author:   col.Author,
		Language: col.Language,
		Chapters: len(col.Chapters),
		Date:     time.Now().Format("2006-01-02"),
		Version:  misc.GetVersion(),
	}
}

// expandTemplate renders a user supplied template field with sprig helpers.
// A field that fails to parse or execute is used verbatim, bad templates
// must not fail an export.
func expandTemplate(name, field string, values TemplateValues) string {
	tmpl, err := template.New(name).Funcs(sprig.FuncMap()).Parse(field)
	if err != nil {
		return field
	}
	buf := new(bytes.Buffer)
	if err := tmpl.Execute(buf, values); err != nil {
		return field
	}
	return buf.String()
}

// buildTitlePage generates the opening document with book metadata, the
// optional description and the acknowledgment block.
func buildTitlePage(opts Options, col *content.Collected) content.Document {
	doc, body := createXHTMLDocument(col.Title)

	section := body.CreateElement("section")
	section.CreateAttr("class", "titlepage")
	section.CreateAttr("epub:type", "titlepage")

	section.CreateElement("h1").SetText(col.Title)
	if col.Author != "" {
		author := section.CreateElement("p")
		author.CreateAttr("class", "author")
		author.SetText(col.Author)
	}

	description := firstNonEmpty(opts.Description, col.Description)
	if description != "" {
		desc := body.CreateElement("section")
		desc.CreateAttr("class", "description")
		desc.CreateAttr("epub:type", "preamble")
		sanitizeMarkup(description, desc)
	}

	if opts.Acknowledgment != "" {
		ack := body.CreateElement("section")
		ack.CreateAttr("class", "acknowledgment")
		ack.CreateAttr("epub:type", "acknowledgments")
		sanitizeMarkup(expandTemplate("acknowledgment", opts.Acknowledgment, templateValues(col)), ack)
	}

	return content.Document{
		ID:       "titlepage",
		Filename: "text/titlepage.xhtml",
		Title:    col.Title,
		Doc:      doc,
		InSpine:  true,
		InNav:    true,
	}
}

// appendFooter renders the configured footer template at the end of a
// chapter body.
func appendFooter(opts Options, body *etree.Element) {
	if opts.Footer == "" {
		return
	}
	p := body.CreateElement("p")
	p.CreateAttr("class", "footer")
	p.SetText(expandTemplate("footer", opts.Footer, TemplateValues{
		Date:    time.Now().Format("2006-01-02"),
		Version: misc.GetVersion(),
	}))
}
