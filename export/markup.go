package export

import (
	"net/url"
	"strings"

	"github.com/beevik/etree"
	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// allowedTags is the whitelist of elements that survive sanitization into
// XHTML content documents. Everything else is escaped to visible text so no
// chapter content silently disappears.
var allowedTags = map[atom.Atom]bool{
	atom.H1: true, atom.H2: true, atom.H3: true,
	atom.H4: true, atom.H5: true, atom.H6: true,
	atom.P: true, atom.Em: true, atom.Strong: true,
	atom.I: true, atom.B: true, atom.Sub: true, atom.Sup: true,
	atom.Del: true, atom.Code: true, atom.Span: true, atom.Div: true,
	atom.Ul: true, atom.Ol: true, atom.Li: true,
	atom.Table: true, atom.Tr: true, atom.Td: true, atom.Th: true,
	atom.Thead: true, atom.Tbody: true,
	atom.Blockquote: true, atom.Section: true,
	atom.Figure: true, atom.Figcaption: true,
	atom.A: true, atom.Img: true, atom.Br: true, atom.Hr: true,
}

// inlineTags are elements that cannot sit directly under body in strict
// XHTML and get wrapped into a paragraph.
var inlineTags = map[atom.Atom]bool{
	atom.Em: true, atom.Strong: true, atom.I: true, atom.B: true,
	atom.Sub: true, atom.Sup: true, atom.Del: true, atom.Code: true,
	atom.Span: true, atom.A: true, atom.Img: true, atom.Br: true,
}

// sanitizeMarkup converts translated chapter text into sanitized XHTML
// children of parent. Plain text becomes paragraphs, markup is parsed
// leniently and filtered through the tag whitelist.
func sanitizeMarkup(text string, parent *etree.Element) {
	if !strings.Contains(text, "<") {
		plainTextBlocks(text, parent)
		return
	}

	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(text), ctx)
	if err != nil {
		// The tokenizer recovers from almost anything, a hard error means
		// the input is hostile enough to treat as plain text.
		plainTextBlocks(text, parent)
		return
	}

	var para *etree.Element // open paragraph for stray inline content
	flush := func() { para = nil }
	inlineTarget := func() *etree.Element {
		if para == nil {
			para = parent.CreateElement("p")
		}
		return para
	}

	for _, n := range nodes {
		switch {
		case n.Type == html.TextNode:
			if strings.TrimSpace(n.Data) == "" {
				continue
			}
			inlineTarget().CreateText(n.Data)
		case n.Type == html.ElementNode && inlineTags[n.DataAtom] && allowedTags[n.DataAtom]:
			convertNode(n, inlineTarget())
		default:
			flush()
			convertNode(n, parent)
		}
	}
}

// plainTextBlocks renders bare text as paragraphs. Blank lines split
// paragraphs, single newlines become <br/>.
func plainTextBlocks(text string, parent *etree.Element) {
	for _, block := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		p := parent.CreateElement("p")
		for i, line := range strings.Split(block, "\n") {
			if i > 0 {
				p.CreateElement("br")
			}
			p.CreateText(line)
		}
	}
}

// convertNode copies one parsed HTML node into the etree document, applying
// the whitelist. Disallowed elements degrade to escaped visible text while
// their children are still processed. script and style are the exception,
// their content is executable, not prose.
func convertNode(n *html.Node, parent *etree.Element) {
	switch n.Type {
	case html.TextNode:
		parent.CreateText(n.Data)
		return
	case html.CommentNode, html.DoctypeNode:
		return
	case html.ElementNode:
	default:
		return
	}

	if n.DataAtom == atom.Script || n.DataAtom == atom.Style {
		return
	}

	if !allowedTags[n.DataAtom] {
		parent.CreateText("<" + n.Data + ">")
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			convertNode(c, parent)
		}
		parent.CreateText("</" + n.Data + ">")
		return
	}

	el := parent.CreateElement(n.Data)
	for _, attr := range n.Attr {
		if !safeAttribute(attr) {
			continue
		}
		el.CreateAttr(attrName(attr), attr.Val)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		convertNode(c, el)
	}
}

func attrName(attr html.Attribute) string {
	if attr.Namespace != "" {
		return attr.Namespace + ":" + attr.Key
	}
	return attr.Key
}

func safeAttribute(attr html.Attribute) bool {
	key := strings.ToLower(attr.Key)
	if strings.HasPrefix(key, "on") {
		return false
	}
	if key == "style" {
		return safeStyle(attr.Val)
	}
	if isURIAttribute(attr) {
		return isSafeURI(attr.Val)
	}
	return true
}

// isURIAttribute reports whether the attribute may carry a URL and needs
// protocol checking.
func isURIAttribute(attr html.Attribute) bool {
	if attr.Key == "href" || attr.Key == "src" {
		return true
	}
	if attr.Namespace == "xlink" && attr.Key == "href" {
		return true
	}
	return attr.Key == "xlink:href"
}

// isSafeURI allows relative references, fragments, http(s), mailto and
// data:image URIs.
func isSafeURI(raw string) bool {
	v := strings.TrimSpace(raw)
	if v == "" {
		return true
	}
	if strings.HasPrefix(v, "#") || strings.HasPrefix(v, "/") ||
		strings.HasPrefix(v, "./") || strings.HasPrefix(v, "../") || strings.HasPrefix(v, "?") {
		return true
	}
	u, err := url.Parse(v)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "":
		return true
	case "http", "https", "mailto":
		return true
	case "data":
		return strings.HasPrefix(strings.ToLower(v), "data:image/")
	default:
		return false
	}
}

// safeStyle tokenizes an inline style value and rejects anything that can
// reach the network or execute: url(), expression() and javascript: values.
func safeStyle(value string) bool {
	lexer := css.NewLexer(parse.NewInputString(value))
	for {
		tt, data := lexer.Next()
		switch tt {
		case css.ErrorToken:
			return true
		case css.BadStringToken, css.BadURLToken, css.URLToken:
			return false
		case css.FunctionToken:
			name := strings.ToLower(string(data))
			if strings.HasPrefix(name, "url(") || strings.HasPrefix(name, "expression(") {
				return false
			}
		default:
			if strings.Contains(strings.ToLower(string(data)), "javascript:") {
				return false
			}
		}
	}
}
