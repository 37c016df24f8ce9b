package mutate

import (
	"fmt"
	"strings"

	"github.com/mindhub/mindlink/internal/command"
	"github.com/mindhub/mindlink/internal/ooxml"
	"github.com/mindhub/mindlink/pkg/utils"
)

// runsXML renders text as run content, turning newlines into breaks and tabs into tab elements.
func runsXML(text string) string {
	var b strings.Builder
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			b.WriteString("<w:br/>")
		}
		for j, part := range strings.Split(line, "\t") {
			if j > 0 {
				b.WriteString("<w:tab/>")
			}
			if part != "" {
				b.WriteString(`<w:t xml:space="preserve">`)
				b.WriteString(ooxml.EscapeText(part))
				b.WriteString(`</w:t>`)
			}
		}
	}
	return b.String()
}

// newParagraph renders a plain paragraph holding text.
func newParagraph(text string) string {
	return "<w:p><w:r>" + runsXML(text) + "</w:r></w:p>"
}

// rewriteParagraph rebuilds p with text, keeping its paragraph properties and the
// formatting of its first run.
func rewriteParagraph(p ooxml.Paragraph, text string) string {
	var b strings.Builder
	b.WriteString("<w:p>")
	b.WriteString(p.Props)
	if text != "" {
		b.WriteString("<w:r>")
		b.WriteString(p.RunProps)
		b.WriteString(runsXML(text))
		b.WriteString("</w:r>")
	}
	b.WriteString("</w:p>")
	return b.String()
}

func mutateDocx(content []byte, cmd *command.Command) ([]byte, *Result, error) {
	pkg, err := ooxml.Open(content)
	if err != nil {
		return nil, nil, fmt.Errorf("open docx: %w", err)
	}
	doc, err := pkg.Document()
	if err != nil {
		return nil, nil, fmt.Errorf("read docx: %w", err)
	}

	body, err := ooxml.Scan(doc)
	if err != nil {
		return nil, nil, fmt.Errorf("read docx: %w", err)
	}
	ps := body.Paragraphs
	res := &Result{Action: cmd.Action}
	var out string

	switch cmd.Action {
	case command.ActionTop:
		at := body.Start
		for _, p := range ps {
			if p.Body {
				at = p.Start
				break
			}
		}
		out = doc[:at] + newParagraph(cmd.Content) + doc[at:]
		res.Changes = 1

	case command.ActionAppend:
		out = doc[:body.End] + newParagraph(cmd.Content) + doc[body.End:]
		res.Changes = 1

	case command.ActionInsert:
		at := -1
		for _, p := range ps {
			if !p.Fallback && strings.Contains(p.Text, cmd.After) {
				at = p.End
				break
			}
		}
		if at < 0 {
			at = body.End
			res.Fallback = true
		}
		out = doc[:at] + newParagraph(cmd.Content) + doc[at:]
		res.Changes = 1

	case command.ActionClear:
		out = rewriteParagraphs(doc, ps, func(p ooxml.Paragraph) (string, int) {
			if p.Text == "" {
				return "", 0
			}
			return "", 1
		}, res)

	case command.ActionReplace:
		ctxFold := utils.FoldLower(cmd.Context)
		out = rewriteParagraphs(doc, ps, func(p ooxml.Paragraph) (string, int) {
			n := strings.Count(p.Text, cmd.From)
			if n == 0 {
				return "", 0
			}
			if ctxFold != "" && !strings.Contains(utils.FoldLower(p.Text), ctxFold) {
				return "", 0
			}
			return strings.ReplaceAll(p.Text, cmd.From, cmd.To), n
		}, res)

	default:
		return nil, nil, fmt.Errorf("%w: action %q", command.ErrInvalidCommand, cmd.Action)
	}

	if res.Changes == 0 {
		return nil, res, nil
	}
	data, err := pkg.WithDocument(out)
	if err != nil {
		return nil, nil, fmt.Errorf("write docx: %w", err)
	}
	return data, res, nil
}

// rewriteParagraphs rebuilds every paragraph for which fn reports changes and adds them
// to res. Paragraphs holding text boxes are left alone, their own paragraphs are visited
// instead. Legacy mc:Fallback copies are rewritten alongside but not counted.
func rewriteParagraphs(doc string, ps []ooxml.Paragraph, fn func(ooxml.Paragraph) (string, int), res *Result) string {
	var b strings.Builder
	last := 0
	for _, p := range ps {
		if p.Nested {
			continue
		}
		text, n := fn(p)
		if n == 0 {
			continue
		}
		if !p.Fallback {
			res.Changes += n
		}
		b.WriteString(doc[last:p.Start])
		b.WriteString(rewriteParagraph(p, text))
		last = p.End
	}
	b.WriteString(doc[last:])
	return b.String()
}
