package extract

import (
	"bytes"
	"strings"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// extractPlain decodes text, CSV and Markdown files. A leading BOM is dropped, Windows
// line endings become "\n" and invalid UTF-8 is replaced with U+FFFD.
func extractPlain(content []byte) (string, error) {
	content = bytes.TrimPrefix(content, utf8BOM)
	s := strings.ToValidUTF8(string(content), "\ufffd")
	return strings.ReplaceAll(s, "\r\n", "\n"), nil
}
