package extract

import (
	"fmt"
	"strings"

	"github.com/mindhub/mindlink/internal/ooxml"
)

// extractDOCX returns the text of every paragraph of the main document part, one per line.
// Empty paragraphs are dropped.
func extractDOCX(content []byte) (string, error) {
	pkg, err := ooxml.Open(content)
	if err != nil {
		return "", fmt.Errorf("extract DOCX: %w", err)
	}
	doc, err := pkg.Document()
	if err != nil {
		return "", fmt.Errorf("extract DOCX: %w", err)
	}
	paragraphs, err := ooxml.Paragraphs(doc)
	if err != nil {
		return "", fmt.Errorf("extract DOCX: %w", err)
	}
	var b strings.Builder
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(p)
	}
	return b.String(), nil
}
