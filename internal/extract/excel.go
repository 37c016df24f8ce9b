package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// extractExcel streams each worksheet and writes it as a "[Sheet]" header followed by
// its non-blank rows, cells joined by tabs. Sheets without content are omitted.
func extractExcel(content []byte) (string, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("open workbook: %w", err)
	}
	defer wb.Close()

	var out strings.Builder
	for _, name := range wb.GetSheetList() {
		if err := writeSheet(&out, wb, name); err != nil {
			return "", err
		}
	}
	return strings.TrimSpace(out.String()), nil
}

func writeSheet(out *strings.Builder, wb *excelize.File, name string) error {
	rows, err := wb.Rows(name)
	if err != nil {
		return fmt.Errorf("sheet %q: %w", name, err)
	}
	defer rows.Close()

	header := false
	for rows.Next() {
		cols, err := rows.Columns()
		if err != nil {
			return fmt.Errorf("sheet %q: %w", name, err)
		}
		line := strings.TrimRight(strings.Join(cols, "\t"), "\t")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !header {
			fmt.Fprintf(out, "[%s]\n", name)
			header = true
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	return rows.Error()
}
