package indexer

import (
	"strings"

	"github.com/mindhub/mindlink/pkg/utils"
)

// Preprocess normalizes extracted text for chunking: whitespace runs inside a line become one
// space, lines are trimmed and runs of blank lines collapse to a single paragraph break.
func Preprocess(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	var b strings.Builder
	blank := 0
	for _, line := range lines {
		line = utils.CollapseSpaces(line)
		if line == "" {
			blank++
			continue
		}
		if b.Len() > 0 {
			if blank > 0 {
				b.WriteString("\n\n")
			} else {
				b.WriteByte('\n')
			}
		}
		blank = 0
		b.WriteString(line)
	}
	return b.String()
}
