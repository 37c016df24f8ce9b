package ooxml_test

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindhub/mindlink/internal/ooxml"
	"github.com/mindhub/mindlink/internal/ooxml/ooxmltest"
)

func TestOpen_findsMainDocument(t *testing.T) {
	pkg, err := ooxml.Open(ooxmltest.Docx("Olá", "Mundo"))
	require.NoError(t, err)
	assert.Equal(t, "word/document.xml", pkg.DocumentPath())

	doc, err := pkg.Document()
	require.NoError(t, err)
	texts, err := ooxml.Paragraphs(doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"Olá", "Mundo"}, texts)
}

func TestOpen_notZip(t *testing.T) {
	_, err := ooxml.Open([]byte("not a zip"))
	assert.Error(t, err)
}

func paragraphTexts(t *testing.T, body ...string) []string {
	t.Helper()
	texts, err := ooxml.Paragraphs(ooxmltest.DocumentXML(body...))
	require.NoError(t, err)
	return texts
}

func TestParagraphs_text(t *testing.T) {
	tests := []struct {
		name string
		xml  string
		want string
	}{
		{"split runs", `<w:p><w:r><w:t>Sal</w:t></w:r><w:r><w:t xml:space="preserve">ário base</w:t></w:r></w:p>`, "Salário base"},
		{"entities", `<w:p><w:r><w:t>A &amp; B</w:t></w:r></w:p>`, "A & B"},
		{"break and tab", `<w:p><w:r><w:t>a</w:t><w:br/><w:t>b</w:t><w:tab/><w:t>c</w:t></w:r></w:p>`, "a\nb\tc"},
		{"tab stops are not text", `<w:p><w:pPr><w:tabs><w:tab w:val="left" w:pos="2880"/><w:tab w:val="right" w:pos="9360"/></w:tabs></w:pPr><w:r><w:t>Prazo: 30 dias</w:t></w:r></w:p>`, "Prazo: 30 dias"},
		{"deleted text is skipped", `<w:p><w:del><w:r><w:delText>velho</w:delText></w:r></w:del><w:r><w:t>novo</w:t></w:r></w:p>`, "novo"},
		{"empty", `<w:p/>`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, []string{tt.want}, paragraphTexts(t, tt.xml))
		})
	}
}

const textBoxParagraph = `<w:p><w:r><w:t xml:space="preserve">Antes </w:t></w:r>` +
	`<w:r><w:pict><v:shape><v:textbox><w:txbxContent>` +
	`<w:p><w:r><w:t>Caixa</w:t></w:r></w:p>` +
	`</w:txbxContent></v:textbox></v:shape></w:pict></w:r>` +
	`<w:r><w:t>Depois 30</w:t></w:r></w:p>`

func TestScan_textBoxParagraphs(t *testing.T) {
	doc := ooxmltest.DocumentXML(textBoxParagraph)
	body, err := ooxml.Scan(doc)
	require.NoError(t, err)
	require.Len(t, body.Paragraphs, 2)

	outer, inner := body.Paragraphs[0], body.Paragraphs[1]
	assert.Equal(t, "Antes Depois 30", outer.Text)
	assert.True(t, outer.Nested)
	assert.True(t, outer.Body)
	assert.Equal(t, textBoxParagraph, doc[outer.Start:outer.End])

	assert.Equal(t, "Caixa", inner.Text)
	assert.False(t, inner.Nested)
	assert.False(t, inner.Body)
	assert.Equal(t, `<w:p><w:r><w:t>Caixa</w:t></w:r></w:p>`, doc[inner.Start:inner.End])
}

func TestScan_layout(t *testing.T) {
	table := `<w:tbl><w:tr><w:tc><w:p><w:r><w:t>A1</w:t></w:r></w:p></w:tc></w:tr></w:tbl>`
	doc := ooxmltest.DocumentXML(table, ooxmltest.Paragraph("um"), `<w:p/>`)
	body, err := ooxml.Scan(doc)
	require.NoError(t, err)
	require.Len(t, body.Paragraphs, 3)

	assert.False(t, body.Paragraphs[0].Body, "table cell paragraph")
	assert.True(t, body.Paragraphs[1].Body)
	assert.Equal(t, `<w:pPr><w:pStyle w:val="Normal"/></w:pPr>`, body.Paragraphs[1].Props)
	assert.Equal(t, `<w:rPr><w:b/></w:rPr>`, body.Paragraphs[1].RunProps)
	assert.Equal(t, body.Paragraphs[2].End, body.End)
	assert.True(t, strings.HasPrefix(doc[body.End:], "<w:sectPr"))
	assert.True(t, strings.HasPrefix(doc[body.Start:], "<w:tbl>"))
}

func TestScan_fallbackCopies(t *testing.T) {
	alt := `<w:p><w:r><mc:AlternateContent>` +
		`<mc:Choice Requires="wps"><w:drawing><w:txbxContent><w:p><w:r><w:t>Caixa</w:t></w:r></w:p></w:txbxContent></w:drawing></mc:Choice>` +
		`<mc:Fallback><w:pict><w:txbxContent><w:p><w:r><w:t>Caixa</w:t></w:r></w:p></w:txbxContent></w:pict></mc:Fallback>` +
		`</mc:AlternateContent></w:r></w:p>`
	body, err := ooxml.Scan(ooxmltest.DocumentXML(alt))
	require.NoError(t, err)
	require.Len(t, body.Paragraphs, 3)
	assert.False(t, body.Paragraphs[1].Fallback)
	assert.True(t, body.Paragraphs[2].Fallback)

	assert.Equal(t, []string{"", "Caixa"}, paragraphTexts(t, alt))
}

func TestScan_errors(t *testing.T) {
	_, err := ooxml.Scan(`<w:document xmlns:w="x"><w:p/></w:document>`)
	assert.ErrorIs(t, err, ooxml.ErrNoBody)

	_, err = ooxml.Scan(ooxmltest.DocumentXML(`<w:p><w:r></w:p>`))
	assert.Error(t, err)
}

func TestWithDocument_replacesOnlyMainPart(t *testing.T) {
	pkg, err := ooxml.Open(ooxmltest.Docx("antes"))
	require.NoError(t, err)

	out, err := pkg.WithDocument(ooxmltest.DocumentXML(ooxmltest.Paragraph("depois")))
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(out), int64(len(out)))
	require.NoError(t, err)
	assert.Len(t, zr.File, 3)

	again, err := ooxml.Open(out)
	require.NoError(t, err)
	doc, err := again.Document()
	require.NoError(t, err)
	texts, err := ooxml.Paragraphs(doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"depois"}, texts)
}

func TestEscapeText(t *testing.T) {
	assert.Equal(t, "a &lt;b&gt; &amp; c", ooxml.EscapeText("a <b> & c"))
}
