// Package epub assembles built content documents and resolved assets into an
// OCF container. Validation failures never suppress output, a broken book
// you can inspect beats no book at all.
package epub

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"

	"github.com/beevik/etree"
	fixzip "github.com/hidez8891/zip"
	"github.com/maruel/natural"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"bookbind/content"
)

const (
	mimetypeContent = "application/epub+zip"
	oebpsDir        = "OEBPS"
)

// Package writes the final container to memory. The first entry is the
// uncompressed mimetype, per OCF. Structural problems are aggregated in
// Packaged.StructuralErr, re-parse failures of individual documents go to
// Packaged.ParseErrors with raw sources preserved under diagnostics/.
func Package(built *content.Built, assets []*content.ResolvedAsset, log *zap.Logger) (*content.Packaged, error) {
	pkg := &content.Packaged{StructuralErr: validate(built)}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	if err := writeMimetype(zw); err != nil {
		return nil, fmt.Errorf("unable to write mimetype: %w", err)
	}
	if err := writeContainer(zw); err != nil {
		return nil, fmt.Errorf("unable to write container: %w", err)
	}

	var diagnostics [][2]string // name, raw source
	for _, d := range built.Documents {
		data, err := serializeXML(d.Doc)
		if err != nil {
			return nil, fmt.Errorf("unable to serialize %s: %w", d.Filename, err)
		}
		if err := reparse(data); err != nil {
			msg := fmt.Sprintf("%s: %s", d.Filename, err)
			pkg.ParseErrors = append(pkg.ParseErrors, msg)
			diagnostics = append(diagnostics, [2]string{path.Base(d.Filename) + ".txt", string(data)})
			log.Warn("Generated document failed to re-parse", zap.String("file", d.Filename), zap.Error(err))
		}
		if err := writeDataToZip(zw, path.Join(oebpsDir, d.Filename), data); err != nil {
			return nil, fmt.Errorf("unable to write %s: %w", d.Filename, err)
		}
	}

	if err := writeNav(zw, built); err != nil {
		return nil, fmt.Errorf("unable to write NAV: %w", err)
	}
	if err := writeOPF(zw, built); err != nil {
		return nil, fmt.Errorf("unable to write OPF: %w", err)
	}
	if len(built.Styles) > 0 {
		if err := writeDataToZip(zw, path.Join(oebpsDir, "stylesheet.css"), built.Styles); err != nil {
			return nil, fmt.Errorf("unable to write stylesheet: %w", err)
		}
	}
	if err := writeAssets(zw, assets); err != nil {
		return nil, err
	}

	if len(diagnostics) > 0 {
		var report bytes.Buffer
		for _, msg := range pkg.ParseErrors {
			report.WriteString(msg)
			report.WriteByte('\n')
		}
		if err := writeDataToZip(zw, "diagnostics/parse-errors.txt", report.Bytes()); err != nil {
			return nil, fmt.Errorf("unable to write diagnostics: %w", err)
		}
		for _, d := range diagnostics {
			if err := writeDataToZip(zw, "diagnostics/"+d[0], []byte(d[1])); err != nil {
				return nil, fmt.Errorf("unable to write diagnostics: %w", err)
			}
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("unable to close output archive: %w", err)
	}

	pkg.Data = buf.Bytes()
	log.Info("Packaged container",
		zap.Int("bytes", len(pkg.Data)),
		zap.Int("documents", len(built.Documents)),
		zap.Int("parse_errors", len(pkg.ParseErrors)))
	return pkg, nil
}

// validate checks structural invariants of the package. Failures are
// reported together, not one at a time.
func validate(built *content.Built) error {
	var err error
	if len(built.Spine) == 0 {
		err = multierr.Append(err, errors.New("spine has no documents"))
	}
	chapters := 0
	for _, d := range built.Documents {
		if d.Chapter && d.InSpine {
			chapters++
		}
	}
	if chapters == 0 {
		// Front and back matter alone do not make a book.
		err = multierr.Append(err, errors.New("spine has no chapter documents"))
	}
	if len(built.Manifest) == 0 {
		err = multierr.Append(err, errors.New("manifest is empty"))
	}
	if built.Meta.Identifier == "" {
		err = multierr.Append(err, errors.New("package identifier is empty"))
	}

	ids := make(map[string]bool, len(built.Manifest))
	for _, m := range built.Manifest {
		if ids[m.ID] {
			err = multierr.Append(err, fmt.Errorf("duplicate manifest id %q", m.ID))
		}
		ids[m.ID] = true
	}
	for _, s := range built.Spine {
		if !ids[s.IDRef] {
			err = multierr.Append(err, fmt.Errorf("spine references unknown manifest id %q", s.IDRef))
		}
	}
	return err
}

func serializeXML(doc *etree.Document) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func reparse(data []byte) error {
	return etree.NewDocument().ReadFromBytes(data)
}

func writeMimetype(zw *zip.Writer) error {
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:   "mimetype",
		Method: zip.Store,
	})
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, mimetypeContent)
	return err
}

func writeContainer(zw *zip.Writer) error {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	container := doc.CreateElement("container")
	container.CreateAttr("version", "1.0")
	container.CreateAttr("xmlns", "urn:oasis:names:tc:opendocument:xmlns:container")

	rootfile := container.CreateElement("rootfiles").CreateElement("rootfile")
	rootfile.CreateAttr("full-path", path.Join(oebpsDir, "content.opf"))
	rootfile.CreateAttr("media-type", "application/oebps-package+xml")

	return writeXMLToZip(zw, "META-INF/container.xml", doc)
}

func writeOPF(zw *zip.Writer, built *content.Built) error {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	pkg := doc.CreateElement("package")
	pkg.CreateAttr("xmlns", "http://www.idpf.org/2007/opf")
	pkg.CreateAttr("version", "3.0")
	pkg.CreateAttr("unique-identifier", "BookId")

	metadata := pkg.CreateElement("metadata")
	metadata.CreateAttr("xmlns:dc", "http://purl.org/dc/elements/1.1/")

	dcIdentifier := metadata.CreateElement("dc:identifier")
	dcIdentifier.CreateAttr("id", "BookId")
	dcIdentifier.SetText(built.Meta.Identifier)

	metadata.CreateElement("dc:title").SetText(built.Meta.Title)
	metadata.CreateElement("dc:language").SetText(built.Meta.Language)

	if built.Meta.Author != "" {
		dcCreator := metadata.CreateElement("dc:creator")
		dcCreator.CreateAttr("id", "creator0")
		dcCreator.SetText(built.Meta.Author)

		roleMeta := metadata.CreateElement("meta")
		roleMeta.CreateAttr("refines", "#creator0")
		roleMeta.CreateAttr("property", "role")
		roleMeta.CreateAttr("scheme", "marc:relators")
		roleMeta.SetText("aut")
	}

	modified := metadata.CreateElement("meta")
	modified.CreateAttr("property", "dcterms:modified")
	modified.SetText(built.Meta.Modified.Format("2006-01-02T15:04:05Z"))

	manifest := pkg.CreateElement("manifest")
	for _, m := range built.Manifest {
		item := manifest.CreateElement("item")
		item.CreateAttr("id", m.ID)
		item.CreateAttr("href", m.Href)
		item.CreateAttr("media-type", m.MediaType)
		if m.Properties != "" {
			item.CreateAttr("properties", m.Properties)
		}
	}

	spine := pkg.CreateElement("spine")
	for _, s := range built.Spine {
		itemref := spine.CreateElement("itemref")
		itemref.CreateAttr("idref", s.IDRef)
		if !s.Linear {
			itemref.CreateAttr("linear", "no")
		}
	}

	return writeXMLToZip(zw, path.Join(oebpsDir, "content.opf"), doc)
}

func writeNav(zw *zip.Writer, built *content.Built) error {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	html := doc.CreateElement("html")
	html.CreateAttr("xmlns", "http://www.w3.org/1999/xhtml")
	html.CreateAttr("xmlns:epub", "http://www.idpf.org/2007/ops")

	head := html.CreateElement("head")
	head.CreateElement("meta").CreateAttr("charset", "utf-8")
	head.CreateElement("title").SetText("Table of Contents")

	body := html.CreateElement("body")

	nav := body.CreateElement("nav")
	nav.CreateAttr("epub:type", "toc")
	nav.CreateAttr("id", "toc")
	nav.CreateAttr("role", "doc-toc")
	nav.CreateElement("h2").SetText("Table of Contents")

	ol := nav.CreateElement("ol")
	for _, item := range built.Nav {
		a := ol.CreateElement("li").CreateElement("a")
		a.CreateAttr("href", item.Href)
		a.SetText(item.Title)
	}

	return writeXMLToZip(zw, path.Join(oebpsDir, "nav.xhtml"), doc)
}

// writeAssets stores binary payloads under the images directory in natural
// name order, so containers diff cleanly between runs.
func writeAssets(zw *zip.Writer, assets []*content.ResolvedAsset) error {
	byName := make(map[string]*content.ResolvedAsset, len(assets))
	names := make([]string, 0, len(assets))
	for _, a := range assets {
		byName[a.Filename()] = a
		names = append(names, a.Filename())
	}
	sort.Sort(natural.StringSlice(names))

	for _, name := range names {
		a := byName[name]
		if err := writeDataToZip(zw, path.Join(oebpsDir, "images", name), a.Data); err != nil {
			return fmt.Errorf("unable to write asset %s: %w", a.ID, err)
		}
	}
	return nil
}

func writeXMLToZip(zw *zip.Writer, name string, doc *etree.Document) error {
	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return err
	}
	return writeDataToZip(zw, name, buf.Bytes())
}

func writeDataToZip(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// StripDataDescriptors rewrites a finished container without streaming data
// descriptors. Some legacy readers refuse archives that carry them.
func StripDataDescriptors(from, to string) error {
	out, err := os.Create(to)
	if err != nil {
		return fmt.Errorf("unable to create target file (%s): %w", to, err)
	}
	defer out.Close()

	r, err := fixzip.OpenReader(from)
	if err != nil {
		return fmt.Errorf("unable to read archive file (%s): %w", from, err)
	}
	defer r.Close()

	w := fixzip.NewWriter(out)
	defer w.Close()

	for _, file := range r.File {
		// unset data descriptor flag
		file.Flags &= ^fixzip.FlagDataDescriptor

		if err := w.CopyFile(file); err != nil {
			return fmt.Errorf("unable to write target file (%s): %w", to, err)
		}
	}
	return nil
}
