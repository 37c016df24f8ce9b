// Package ooxml reads and rewrites parts of Office Open XML packages (.docx).
package ooxml

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// DefaultDocumentPath is the main document part of a .docx when [Content_Types].xml does not name one.
const DefaultDocumentPath = "word/document.xml"

const contentTypesPath = "[Content_Types].xml"

const docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"

const (
	wordNS = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	mcNS   = "http://schemas.openxmlformats.org/markup-compatibility/2006"
)

// ErrNoBody is returned by Scan for XML without a <w:body> element.
var ErrNoBody = errors.New("document has no body")

var (
	partNameRe  = regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"`)
	partNameRe2 = regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"[^>]+PartName="([^"]+)"`)
)

// Package is an opened .docx held in memory.
type Package struct {
	zr      *zip.Reader
	docPath string
}

// Open reads a .docx from content and locates its main document part.
func Open(content []byte) (*Package, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("not a zip archive: %w", err)
	}
	docPath := mainDocumentPath(zr)
	if docPath == "" {
		docPath = DefaultDocumentPath
	}
	return &Package{zr: zr, docPath: docPath}, nil
}

// DocumentPath returns the name of the main document part.
func (p *Package) DocumentPath() string { return p.docPath }

// Document returns the XML of the main document part.
func (p *Package) Document() (string, error) {
	data, err := p.readPart(p.docPath)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (p *Package) readPart(name string) ([]byte, error) {
	for _, f := range p.zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%s not found", name)
}

// WithDocument returns a new package with the main document part replaced by doc.
// Every other entry is copied unchanged.
func (p *Package) WithDocument(doc string) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range p.zr.File {
		if f.Name != p.docPath {
			if err := zw.Copy(f); err != nil {
				return nil, fmt.Errorf("copy %s: %w", f.Name, err)
			}
			continue
		}
		hdr := f.FileHeader
		hdr.Method = zip.Deflate
		w, err := zw.CreateHeader(&hdr)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", f.Name, err)
		}
		if _, err := io.WriteString(w, doc); err != nil {
			return nil, fmt.Errorf("write %s: %w", f.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return buf.Bytes(), nil
}

func mainDocumentPath(zr *zip.Reader) string {
	for _, f := range zr.File {
		if f.Name != contentTypesPath {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return ""
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return ""
		}
		content := string(data)
		if m := partNameRe.FindStringSubmatch(content); len(m) > 1 {
			return strings.TrimPrefix(m[1], "/")
		}
		if m := partNameRe2.FindStringSubmatch(content); len(m) > 1 {
			return strings.TrimPrefix(m[1], "/")
		}
		return ""
	}
	return ""
}

// Paragraph is a <w:p> element of a document part.
type Paragraph struct {
	// Start and End are the byte offsets of the element in the document XML.
	Start, End int
	// Text is the visible text of the paragraph's own runs. Breaks become newlines and
	// tabs become tab characters. Paragraphs nested in text boxes are not included.
	Text string
	// Props is the paragraph's <w:pPr> element, RunProps the <w:rPr> of its first run.
	Props, RunProps string
	// Body reports a direct child of <w:body>, as opposed to table cells and text boxes.
	Body bool
	// Nested reports that the paragraph holds other paragraphs (text boxes, shapes),
	// so its markup cannot be rebuilt from Text.
	Nested bool
	// Fallback reports a paragraph inside mc:Fallback, a legacy copy of content that
	// also appears in the matching mc:Choice.
	Fallback bool
}

// Body is the paragraph layout of a document part.
type Body struct {
	Paragraphs []Paragraph
	// Start is the offset just after the <w:body> start tag.
	Start int
	// End is where appended content goes: the body's final <w:sectPr>, or </w:body>.
	End int
}

type openParagraph struct {
	index              int
	propsAt, runPropAt int
	text               strings.Builder
}

// Scan walks the document XML and locates every paragraph, at any depth.
func Scan(doc string) (*Body, error) {
	dec := xml.NewDecoder(strings.NewReader(doc))
	body := &Body{Start: -1, End: -1}
	var (
		stack    []xml.Name
		open     []*openParagraph
		fallback int
		sectAt   = -1
	)
	parent := func(up int) xml.Name {
		if len(stack) <= up {
			return xml.Name{}
		}
		return stack[len(stack)-1-up]
	}
	current := func() *openParagraph {
		if len(open) == 0 {
			return nil
		}
		return open[len(open)-1]
	}

	for {
		at := int(dec.InputOffset())
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse document: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			cur := current()
			switch {
			case isWord(t.Name, "body"):
				body.Start = int(dec.InputOffset())
			case isWord(t.Name, "p"):
				for _, o := range open {
					body.Paragraphs[o.index].Nested = true
				}
				open = append(open, &openParagraph{index: len(body.Paragraphs), propsAt: -1, runPropAt: -1})
				body.Paragraphs = append(body.Paragraphs, Paragraph{
					Start:    at,
					Body:     isWord(parent(0), "body"),
					Fallback: fallback > 0,
				})
			case isWord(t.Name, "sectPr") && isWord(parent(0), "body"):
				sectAt = at
			case t.Name.Local == "Fallback" && (t.Name.Space == mcNS || t.Name.Space == "mc"):
				fallback++
			case cur == nil:
			case isWord(t.Name, "pPr") && isWord(parent(0), "p"):
				cur.propsAt = at
			case isWord(t.Name, "rPr") && isWord(parent(0), "r") && isWord(parent(1), "p") &&
				body.Paragraphs[cur.index].RunProps == "":
				cur.runPropAt = at
			case isWord(parent(0), "r") && (isWord(t.Name, "br") || isWord(t.Name, "cr")):
				cur.text.WriteByte('\n')
			case isWord(parent(0), "r") && isWord(t.Name, "tab"):
				cur.text.WriteByte('\t')
			}
			stack = append(stack, t.Name)

		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			end := int(dec.InputOffset())
			cur := current()
			switch {
			case isWord(t.Name, "body"):
				body.End = at
				if sectAt >= 0 {
					body.End = sectAt
				}
			case t.Name.Local == "Fallback" && (t.Name.Space == mcNS || t.Name.Space == "mc"):
				fallback--
			case cur == nil:
			case isWord(t.Name, "p"):
				p := &body.Paragraphs[cur.index]
				p.End = end
				p.Text = cur.text.String()
				open = open[:len(open)-1]
			case isWord(t.Name, "pPr") && cur.propsAt >= 0 && isWord(parent(0), "p"):
				body.Paragraphs[cur.index].Props = doc[cur.propsAt:end]
				cur.propsAt = -1
			case isWord(t.Name, "rPr") && cur.runPropAt >= 0 && isWord(parent(0), "r"):
				body.Paragraphs[cur.index].RunProps = doc[cur.runPropAt:end]
				cur.runPropAt = -1
			}

		case xml.CharData:
			if cur := current(); cur != nil && isWord(parent(0), "t") {
				cur.text.Write(t)
			}
		}
	}
	if body.Start < 0 || body.End < 0 {
		return nil, ErrNoBody
	}
	return body, nil
}

func isWord(n xml.Name, local string) bool {
	return n.Local == local && (n.Space == wordNS || n.Space == "w")
}

// Paragraphs returns the text of every paragraph of a document XML in document order,
// leaving out legacy mc:Fallback copies.
func Paragraphs(doc string) ([]string, error) {
	body, err := Scan(doc)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(body.Paragraphs))
	for _, p := range body.Paragraphs {
		if !p.Fallback {
			out = append(out, p.Text)
		}
	}
	return out, nil
}

// EscapeText escapes s for use inside a <w:t> element.
func EscapeText(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
