package ingest

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// xnode is a generic WordprocessingML element. Names are matched on their
// local part only.
type xnode struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Nodes   []xnode    `xml:",any"`
	Text    string     `xml:",chardata"`
}

func (n xnode) child(local string) (xnode, bool) {
	for _, c := range n.Nodes {
		if c.XMLName.Local == local {
			return c, true
		}
	}
	return xnode{}, false
}

func (n xnode) attr(local string) string {
	for _, a := range n.Attrs {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// flag reads an on/off property such as <w:b/> or <w:b w:val="0"/>.
func (n xnode) flag(local string) bool {
	c, ok := n.child(local)
	if !ok {
		return false
	}
	switch c.attr("val") {
	case "0", "false", "none":
		return false
	}
	return true
}

func convertDOCX(data []byte) ([]string, error) {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	files := make(map[string]*zip.File, len(archive.File))
	for _, f := range archive.File {
		files[f.Name] = f
	}

	var doc xnode
	if err := decodePart(files, "word/document.xml", &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	body, ok := doc.child("body")
	if !ok {
		return nil, fmt.Errorf("%w: document body missing", ErrMalformed)
	}

	r := &docxRenderer{
		images:    loadImages(files),
		listKinds: loadListKinds(files),
	}
	r.walk(body.Nodes)
	r.breakPage()

	pages := make([]string, 0, len(r.pages))
	for _, blocks := range r.pages {
		var b strings.Builder
		b.WriteString(`<div class="docx-content">`)
		for _, block := range blocks {
			if err := html.Render(&b, block); err != nil {
				return nil, fmt.Errorf("render page: %w", err)
			}
		}
		b.WriteString(`</div>`)
		pages = append(pages, b.String())
	}
	return pages, nil
}

func readPart(files map[string]*zip.File, name string) ([]byte, error) {
	f, ok := files[name]
	if !ok {
		return nil, fmt.Errorf("%s not found", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func decodePart(files map[string]*zip.File, name string, into *xnode) error {
	raw, err := readPart(files, name)
	if err != nil {
		return err
	}
	return xml.Unmarshal(raw, into)
}

// loadImages maps relationship ids to data: URIs for every embedded image.
func loadImages(files map[string]*zip.File) map[string]string {
	var rels xnode
	if err := decodePart(files, "word/_rels/document.xml.rels", &rels); err != nil {
		return nil
	}
	images := make(map[string]string)
	for _, rel := range rels.Nodes {
		if rel.attr("TargetMode") == "External" || !strings.HasSuffix(rel.attr("Type"), "/image") {
			continue
		}
		target := rel.attr("Target")
		name := strings.TrimPrefix(target, "/")
		if !strings.HasPrefix(target, "/") {
			name = path.Join("word", target)
		}
		raw, err := readPart(files, name)
		if err != nil {
			continue
		}
		images[rel.attr("Id")] = "data:" + http.DetectContentType(raw) + ";base64," + base64.StdEncoding.EncodeToString(raw)
	}
	return images
}

// loadListKinds resolves each numbering id to "ul" or "ol" from its first level.
func loadListKinds(files map[string]*zip.File) map[string]string {
	var numbering xnode
	if err := decodePart(files, "word/numbering.xml", &numbering); err != nil {
		return nil
	}
	abstractKinds := make(map[string]string)
	for _, n := range numbering.Nodes {
		if n.XMLName.Local != "abstractNum" {
			continue
		}
		kind := "ol"
		for _, lvl := range n.Nodes {
			if lvl.XMLName.Local != "lvl" || lvl.attr("ilvl") != "0" {
				continue
			}
			if format, ok := lvl.child("numFmt"); ok && format.attr("val") == "bullet" {
				kind = "ul"
			}
		}
		abstractKinds[n.attr("abstractNumId")] = kind
	}
	kinds := make(map[string]string)
	for _, n := range numbering.Nodes {
		if n.XMLName.Local != "num" {
			continue
		}
		if abstract, ok := n.child("abstractNumId"); ok {
			kinds[n.attr("numId")] = abstractKinds[abstract.attr("val")]
		}
	}
	return kinds
}

type docxRenderer struct {
	images    map[string]string
	listKinds map[string]string

	pages  [][]*html.Node
	blocks []*html.Node
	list   *html.Node
	listID string
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attrs}
}

func textNode(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

// breakPage closes the current page. Empty pages are dropped.
func (r *docxRenderer) breakPage() {
	r.list = nil
	if len(r.blocks) == 0 {
		return
	}
	r.pages = append(r.pages, r.blocks)
	r.blocks = nil
}

func (r *docxRenderer) emit(block *html.Node) {
	r.list = nil
	r.blocks = append(r.blocks, block)
}

func (r *docxRenderer) emitListItem(numID string, item *html.Node) {
	if r.list == nil || r.listID != numID {
		kind := r.listKinds[numID]
		if kind == "ul" {
			r.list = element(atom.Ul)
		} else {
			r.list = element(atom.Ol)
		}
		r.listID = numID
		r.blocks = append(r.blocks, r.list)
	}
	r.list.AppendChild(item)
}

func (r *docxRenderer) walk(nodes []xnode) {
	for _, n := range nodes {
		switch n.XMLName.Local {
		case "p":
			r.paragraph(n)
		case "tbl":
			r.emit(r.table(n))
		case "sdt":
			if content, ok := n.child("sdtContent"); ok {
				r.walk(content.Nodes)
			}
		}
	}
}

var headingAtoms = map[string]atom.Atom{
	"title":    atom.H1,
	"heading1": atom.H1,
	"heading2": atom.H2,
	"heading3": atom.H3,
	"heading4": atom.H4,
	"heading5": atom.H5,
	"heading6": atom.H6,
}

func (r *docxRenderer) paragraph(p xnode) {
	props, _ := p.child("pPr")
	if props.flag("pageBreakBefore") {
		r.breakPage()
	}

	tag := atom.P
	if style, ok := props.child("pStyle"); ok {
		if heading, ok := headingAtoms[strings.ToLower(style.attr("val"))]; ok {
			tag = heading
		}
	}
	numID := ""
	if numbering, ok := props.child("numPr"); ok {
		if id, ok := numbering.child("numId"); ok && id.attr("val") != "0" {
			numID = id.attr("val")
			tag = atom.Li
		}
	}

	current := element(tag)
	flush := func() {
		if current.FirstChild == nil {
			return
		}
		if numID != "" {
			r.emitListItem(numID, current)
		} else {
			r.emit(current)
		}
		current = element(tag)
	}

	var visit func(nodes []xnode)
	visit = func(nodes []xnode) {
		for _, n := range nodes {
			switch n.XMLName.Local {
			case "r":
				r.run(n, func() *html.Node { return current }, func() {
					flush()
					r.breakPage()
				})
			case "hyperlink", "ins", "smartTag", "fldSimple":
				visit(n.Nodes)
			}
		}
	}
	visit(p.Nodes)
	flush()
}

// run appends the run's content to the paragraph returned by target.
// pageBreak is invoked for an explicit page break inside the run.
func (r *docxRenderer) run(run xnode, target func() *html.Node, pageBreak func()) {
	props, _ := run.child("rPr")
	wrap := func(n *html.Node) *html.Node {
		if props.flag("u") {
			u := element(atom.U)
			u.AppendChild(n)
			n = u
		}
		if props.flag("i") {
			em := element(atom.Em)
			em.AppendChild(n)
			n = em
		}
		if props.flag("b") {
			strong := element(atom.Strong)
			strong.AppendChild(n)
			n = strong
		}
		return n
	}

	for _, n := range run.Nodes {
		switch n.XMLName.Local {
		case "t":
			if n.Text != "" {
				target().AppendChild(wrap(textNode(n.Text)))
			}
		case "tab":
			target().AppendChild(textNode("\t"))
		case "br", "cr":
			if n.attr("type") == "page" {
				pageBreak()
				continue
			}
			target().AppendChild(element(atom.Br))
		case "drawing", "pict":
			for _, id := range blipIDs(n) {
				if src, ok := r.images[id]; ok {
					target().AppendChild(element(atom.Img,
						html.Attribute{Key: "src", Val: src},
						html.Attribute{Key: "style", Val: "max-width: 100%;"}))
				}
			}
		}
	}
}

func blipIDs(n xnode) []string {
	var ids []string
	if n.XMLName.Local == "blip" {
		if id := n.attr("embed"); id != "" {
			ids = append(ids, id)
		}
	}
	if n.XMLName.Local == "imagedata" {
		if id := n.attr("id"); id != "" {
			ids = append(ids, id)
		}
	}
	for _, c := range n.Nodes {
		ids = append(ids, blipIDs(c)...)
	}
	return ids
}

func (r *docxRenderer) table(tbl xnode) *html.Node {
	table := element(atom.Table, html.Attribute{Key: "class", Val: "docx-table"})
	body := element(atom.Tbody)
	table.AppendChild(body)
	for _, row := range tbl.Nodes {
		if row.XMLName.Local != "tr" {
			continue
		}
		tr := element(atom.Tr)
		for _, cell := range row.Nodes {
			if cell.XMLName.Local != "tc" {
				continue
			}
			td := element(atom.Td)
			inner := &docxRenderer{images: r.images, listKinds: r.listKinds}
			inner.walk(cell.Nodes)
			inner.breakPage()
			for _, blocks := range inner.pages {
				for _, block := range blocks {
					td.AppendChild(block)
				}
			}
			tr.AppendChild(td)
		}
		body.AppendChild(tr)
	}
	return table
}
