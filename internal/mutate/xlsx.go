package mutate

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/mindhub/mindlink/internal/command"
	"github.com/mindhub/mindlink/pkg/utils"
)

// ColumnSeparator splits command content into the cells of a new row.
const ColumnSeparator = ";"

func mutateXlsx(content []byte, cmd *command.Command) ([]byte, *Result, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("workbook has no sheets")
	}
	first := sheets[0]
	res := &Result{Action: cmd.Action}

	switch cmd.Action {
	case command.ActionReplace:
		n, err := replaceCells(f, sheets, cmd)
		if err != nil {
			return nil, nil, err
		}
		res.Changes = n

	case command.ActionAppend:
		rows, err := f.GetRows(first)
		if err != nil {
			return nil, nil, fmt.Errorf("read sheet %q: %w", first, err)
		}
		if err := writeRow(f, first, len(rows)+1, cmd.Content); err != nil {
			return nil, nil, err
		}
		res.Changes = 1

	case command.ActionTop:
		if err := f.InsertRows(first, 1, 1); err != nil {
			return nil, nil, fmt.Errorf("insert row in %q: %w", first, err)
		}
		if err := writeRow(f, first, 1, cmd.Content); err != nil {
			return nil, nil, err
		}
		res.Changes = 1

	case command.ActionInsert:
		sheet, row, err := findRow(f, sheets, cmd.After)
		if err != nil {
			return nil, nil, err
		}
		if row == 0 {
			rows, err := f.GetRows(first)
			if err != nil {
				return nil, nil, fmt.Errorf("read sheet %q: %w", first, err)
			}
			sheet, row = first, len(rows)+1
			res.Fallback = true
		} else {
			row++
			if err := f.InsertRows(sheet, row, 1); err != nil {
				return nil, nil, fmt.Errorf("insert row in %q: %w", sheet, err)
			}
		}
		if err := writeRow(f, sheet, row, cmd.Content); err != nil {
			return nil, nil, err
		}
		res.Changes = 1

	case command.ActionClear:
		n, err := clearSheets(f, sheets)
		if err != nil {
			return nil, nil, err
		}
		res.Changes = n

	default:
		return nil, nil, fmt.Errorf("%w: action %q", command.ErrInvalidCommand, cmd.Action)
	}

	if res.Changes == 0 {
		return nil, res, nil
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf.Bytes(), res, nil
}

// replaceCells rewrites every cell matching cmd.From on rows that contain cmd.Context.
// Formula cells are left alone.
func replaceCells(f *excelize.File, sheets []string, cmd *command.Command) (int, error) {
	ctxFold := utils.FoldLower(cmd.Context)
	fromNum, fromIsNum := ParseNumber(cmd.From)
	changes := 0
	for _, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return 0, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		for r, row := range rows {
			if ctxFold != "" && !strings.Contains(utils.FoldLower(strings.Join(row, " ")), ctxFold) {
				continue
			}
			for c, val := range row {
				if val == "" {
					continue
				}
				whole := val == cmd.From
				if !whole && fromIsNum {
					if n, ok := ParseNumber(val); ok && n == fromNum {
						whole = true
					}
				}
				partial := !whole && !fromIsNum && strings.Contains(val, cmd.From)
				if !whole && !partial {
					continue
				}
				cell, err := excelize.CoordinatesToCellName(c+1, r+1)
				if err != nil {
					return 0, err
				}
				if formula, _ := f.GetCellFormula(sheet, cell); formula != "" {
					continue
				}
				if whole {
					err = setReplacement(f, sheet, cell, cmd.To)
				} else {
					err = f.SetCellStr(sheet, cell, strings.ReplaceAll(val, cmd.From, cmd.To))
				}
				if err != nil {
					return 0, fmt.Errorf("set %s!%s: %w", sheet, cell, err)
				}
				changes++
			}
		}
	}
	return changes, nil
}

// findRow returns the first row (1-based) of any sheet containing anchor, or row 0.
func findRow(f *excelize.File, sheets []string, anchor string) (string, int, error) {
	for _, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", 0, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		for r, row := range rows {
			for _, val := range row {
				if strings.Contains(val, anchor) {
					return sheet, r + 1, nil
				}
			}
		}
	}
	return "", 0, nil
}

func clearSheets(f *excelize.File, sheets []string) (int, error) {
	changes := 0
	for _, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return 0, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		for _, row := range rows {
			for _, val := range row {
				if val != "" {
					changes++
				}
			}
		}
		for r := len(rows); r >= 1; r-- {
			if err := f.RemoveRow(sheet, r); err != nil {
				return 0, fmt.Errorf("clear sheet %q: %w", sheet, err)
			}
		}
	}
	return changes, nil
}

// writeRow fills row with the ";"-separated cells of content.
func writeRow(f *excelize.File, sheet string, row int, content string) error {
	parts := strings.Split(content, ColumnSeparator)
	for i, part := range parts {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := setValue(f, sheet, cell, strings.TrimSpace(part)); err != nil {
			return fmt.Errorf("set %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}

// setReplacement overwrites a matched cell. Numbers stay numbers, keeping the cell style,
// unless the cell held text.
func setReplacement(f *excelize.File, sheet, cell, v string) error {
	typ, err := f.GetCellType(sheet, cell)
	if err != nil {
		return err
	}
	text := typ == excelize.CellTypeSharedString || typ == excelize.CellTypeInlineString
	if n, ok := ParseNumber(v); ok && !text {
		return f.SetCellFloat(sheet, cell, n, -1, 64)
	}
	return f.SetCellStr(sheet, cell, v)
}

// setValue writes numeric-looking values as numbers and everything else as text.
func setValue(f *excelize.File, sheet, cell, v string) error {
	if n, ok := ParseNumber(v); ok && !hasCurrency(v) {
		return f.SetCellFloat(sheet, cell, n, -1, 64)
	}
	return f.SetCellStr(sheet, cell, v)
}

var currencySymbols = []string{"R$", "US$", "$", "€", "£"}

func hasCurrency(s string) bool {
	for _, sym := range currencySymbols {
		if strings.Contains(s, sym) {
			return true
		}
	}
	return false
}

// ParseNumber reads numbers written the Brazilian or the English way, with optional currency
// symbols: "R$ 1.500,00", "1,500.00", "1500" and "1.500" all parse as 1500. The last of "." and ","
// is the decimal separator, except that a lone "." followed by exactly three digits groups thousands.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	for _, sym := range currencySymbols {
		s = strings.ReplaceAll(s, sym, "")
	}
	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\u00a0' {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return 0, false
	}
	for i, r := range s {
		if (r < '0' || r > '9') && r != '.' && r != ',' && !(r == '-' && i == 0) {
			return 0, false
		}
	}

	dots, commas := strings.Count(s, "."), strings.Count(s, ",")
	switch {
	case dots > 0 && commas > 0:
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
		if strings.Count(s, ".") > 1 {
			return 0, false
		}
	case commas > 1:
		s = strings.ReplaceAll(s, ",", "")
	case commas == 1:
		s = strings.Replace(s, ",", ".", 1)
	case dots > 1:
		s = strings.ReplaceAll(s, ".", "")
	case dots == 1:
		if i := strings.Index(s, "."); len(s)-i-1 == 3 {
			s = strings.Replace(s, ".", "", 1)
		}
	}

	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
