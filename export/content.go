package export

import (
	"context"
	_ "embed"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"bookbind/book"
	"bookbind/content"
)

//go:embed stylesheet.css
var defaultStylesheet []byte

// markerRe matches bracketed placement markers in already sanitized text.
var markerRe = regexp.MustCompile(`\[([A-Za-z0-9._:-]+)\]`)

// Build turns resolved chapters and assets into XHTML documents with a
// manifest, spine and navigation skeleton. Placement markers become image or
// footnote elements, markers without an asset are dropped from the text.
func Build(ctx context.Context, opts Options, res *content.Resolved, log *zap.Logger) (*content.Built, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	built := &content.Built{
		Meta:   buildMetadata(res.Collected),
		Styles: defaultStylesheet,
	}

	assetsByID := make(map[string]*content.ResolvedAsset, len(res.Assets))
	for _, a := range res.Assets {
		assetsByID[a.ID] = a
	}

	if opts.TitlePage {
		built.Documents = append(built.Documents, buildTitlePage(opts, res.Collected))
	}

	for i, ch := range res.Chapters {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		built.Documents = append(built.Documents, buildChapter(opts, ch, i+1, res, assetsByID))
	}

	if opts.StatisticsPage {
		built.Documents = append(built.Documents, buildStatisticsPage(opts, res.Collected))
	}

	built.Manifest, built.Spine, built.Nav = assemblePackage(built.Documents, res.Assets)

	log.Info("Built content documents",
		zap.Int("documents", len(built.Documents)),
		zap.Int("manifest", len(built.Manifest)))
	return built, nil
}

// buildMetadata derives package metadata. The identifier is a fresh urn:uuid
// per export, the language tag is validated and falls back to English when
// the snapshot carries garbage.
func buildMetadata(col *content.Collected) content.Metadata {
	lang := col.Language
	if tag, err := language.Parse(lang); err != nil {
		lang = "en"
	} else {
		lang = tag.String()
	}
	return content.Metadata{
		Title:      col.Title,
		Author:     col.Author,
		Language:   lang,
		Identifier: "urn:uuid:" + uuid.New().String(),
		Modified:   time.Now().UTC().Truncate(time.Second),
	}
}

// createXHTMLDocument creates the standard XHTML shell shared by every
// generated document and returns it together with its body element.
func createXHTMLDocument(title string) (*etree.Document, *etree.Element) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	html := doc.CreateElement("html")
	html.CreateAttr("xmlns", "http://www.w3.org/1999/xhtml")
	html.CreateAttr("xmlns:epub", "http://www.idpf.org/2007/ops")

	head := html.CreateElement("head")

	meta := head.CreateElement("meta")
	meta.CreateAttr("http-equiv", "Content-Type")
	meta.CreateAttr("content", "text/html; charset=utf-8")

	link := head.CreateElement("link")
	link.CreateAttr("rel", "stylesheet")
	link.CreateAttr("type", "text/css")
	link.CreateAttr("href", "../stylesheet.css")

	head.CreateElement("title").SetText(title)

	return doc, html.CreateElement("body")
}

func buildChapter(opts Options, ch *book.Chapter, num int, res *content.Resolved, assets map[string]*content.ResolvedAsset) content.Document {
	title := ch.TransTitle
	if title == "" {
		title = ch.Label()
	}

	doc, body := createXHTMLDocument(title)
	section := body.CreateElement("section")
	section.CreateAttr("epub:type", "chapter")

	h1 := section.CreateElement("h1")
	h1.SetText(title)

	sanitizeMarkup(ch.TransContent, section)

	footnoteIndex := make(map[string]int, len(ch.Footnotes))
	for i, fn := range ch.Footnotes {
		footnoteIndex[fn.Marker] = i + 1
	}
	sub := &markerSubstituter{
		chapter:   ch,
		outcomes:  res.Outcomes,
		assets:    assets,
		footnotes: footnoteIndex,
	}
	sub.walk(section)

	appendFootnotes(section, ch.Footnotes)
	appendFooter(opts, section)

	return content.Document{
		ID:       fmt.Sprintf("chapter-%04d", num),
		Filename: fmt.Sprintf("text/chapter%04d.xhtml", num),
		Title:    ch.Label(),
		Doc:      doc,
		Chapter:  true,
		InSpine:  true,
		InNav:    true,
	}
}

// markerSubstituter rewrites bracketed markers inside text nodes into
// illustration or footnote reference elements.
type markerSubstituter struct {
	chapter   *book.Chapter
	outcomes  map[string]content.Outcome
	assets    map[string]*content.ResolvedAsset
	footnotes map[string]int
}

func (s *markerSubstituter) walk(el *etree.Element) {
	// Child tokens shift while splicing, take a fresh look every pass.
	for i := 0; i < len(el.Child); i++ {
		switch t := el.Child[i].(type) {
		case *etree.Element:
			s.walk(t)
		case *etree.CharData:
			i += s.splice(el, i, t)
		}
	}
}

// splice replaces one text token with text/element/text fragments and
// returns how many extra children were inserted before the scan position.
func (s *markerSubstituter) splice(parent *etree.Element, index int, cd *etree.CharData) int {
	text := cd.Data
	loc := markerRe.FindStringSubmatchIndex(text)
	if loc == nil {
		return 0
	}
	marker := text[loc[2]:loc[3]]

	replacement, known := s.replacementFor(parent, marker)
	if !known {
		// Not a declared marker, leave the bracketed text alone and keep
		// scanning past it.
		if rest := text[loc[1]:]; rest != "" {
			cd.Data = text[:loc[1]]
			parent.InsertChildAt(index+1, etree.NewText(rest))
		}
		return 0
	}

	inserted := 0
	cd.Data = text[:loc[0]]
	if replacement != nil {
		parent.InsertChildAt(index+1, replacement)
		inserted++
	}
	if rest := text[loc[1]:]; rest != "" {
		parent.InsertChildAt(index+1+inserted, etree.NewText(rest))
	}
	return inserted
}

// replacementFor builds the element replacing a marker. A nil element with
// known=true means the marker is dropped (missing asset).
func (s *markerSubstituter) replacementFor(parent *etree.Element, marker string) (*etree.Element, bool) {
	if n, ok := s.footnotes[marker]; ok {
		return footnoteRef(n), true
	}

	out, ok := s.outcomes[content.OutcomeKey(s.chapter.ID, marker)]
	if !ok {
		return nil, false
	}
	if out.Missing {
		return nil, true
	}
	asset := s.assets[out.AssetID]
	if asset == nil {
		return nil, true
	}
	return illustrationElement(parent, asset, s.prompt(marker)), true
}

func (s *markerSubstituter) prompt(marker string) string {
	for _, ref := range s.chapter.Illustrations {
		if ref.Marker == marker {
			return ref.Prompt
		}
	}
	return ""
}

func footnoteRef(n int) *etree.Element {
	a := etree.NewElement("a")
	a.CreateAttr("id", fmt.Sprintf("fnref-%d", n))
	a.CreateAttr("href", fmt.Sprintf("#fn-%d", n))
	a.CreateAttr("epub:type", "noteref")
	sup := a.CreateElement("sup")
	sup.SetText("[" + strconv.Itoa(n) + "]")
	return a
}

// illustrationElement builds the replacement for a resolved marker. Inside
// flow containers it becomes a captioned block, inside phrasing content only
// a bare img is valid.
func illustrationElement(parent *etree.Element, asset *content.ResolvedAsset, prompt string) *etree.Element {
	href := "../images/" + asset.Filename()

	if asset.Kind == content.AssetAudio {
		audio := etree.NewElement("audio")
		audio.CreateAttr("src", href)
		audio.CreateAttr("controls", "controls")
		return audio
	}

	img := etree.NewElement("img")
	img.CreateAttr("src", href)
	img.CreateAttr("alt", prompt)

	switch parent.Tag {
	case "body", "div", "section", "blockquote", "li", "figure":
		block := etree.NewElement("div")
		block.CreateAttr("class", "illustration")
		block.AddChild(img)
		if prompt != "" {
			caption := block.CreateElement("p")
			caption.CreateAttr("class", "caption")
			caption.SetText(prompt)
		}
		return block
	default:
		img.CreateAttr("class", "illustration")
		return img
	}
}

// appendFootnotes renders the chapter footnote list with back links.
func appendFootnotes(body *etree.Element, footnotes []book.Footnote) {
	if len(footnotes) == 0 {
		return
	}

	section := body.CreateElement("section")
	section.CreateAttr("class", "footnotes")
	section.CreateAttr("epub:type", "footnotes")
	section.CreateElement("hr")

	ol := section.CreateElement("ol")
	for i, fn := range footnotes {
		li := ol.CreateElement("li")
		li.CreateAttr("id", fmt.Sprintf("fn-%d", i+1))
		li.CreateText(fn.Text + " ")
		back := li.CreateElement("a")
		back.CreateAttr("href", fmt.Sprintf("#fnref-%d", i+1))
		back.CreateAttr("epub:type", "backlink")
		back.SetText("↩")
	}
}

// assemblePackage derives the manifest, spine and navigation entries from
// the generated documents and resolved assets.
func assemblePackage(docs []content.Document, assets []*content.ResolvedAsset) ([]content.ManifestItem, []content.SpineItem, []content.NavItem) {
	manifest := []content.ManifestItem{
		{ID: "nav", Href: "nav.xhtml", MediaType: "application/xhtml+xml", Properties: "nav"},
		{ID: "stylesheet", Href: "stylesheet.css", MediaType: "text/css"},
	}

	var spine []content.SpineItem
	var nav []content.NavItem
	for _, d := range docs {
		manifest = append(manifest, content.ManifestItem{
			ID:        d.ID,
			Href:      d.Filename,
			MediaType: "application/xhtml+xml",
		})
		if d.InSpine {
			spine = append(spine, content.SpineItem{IDRef: d.ID, Linear: true})
		}
		if d.InNav {
			nav = append(nav, content.NavItem{Title: d.Title, Href: d.Filename})
		}
	}

	for _, a := range assets {
		manifest = append(manifest, content.ManifestItem{
			ID:        a.ID,
			Href:      "images/" + a.Filename(),
			MediaType: a.MimeType,
		})
	}

	return manifest, spine, nav
}
