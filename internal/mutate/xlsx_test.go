package mutate

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/mindhub/mindlink/internal/command"
)

// workbook builds an .xlsx whose sheets hold the given rows.
func workbook(t *testing.T, sheets map[string][][]interface{}, order ...string) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, name := range order {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", name))
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		for r, row := range sheets[name] {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			require.NoError(t, err)
			row := row
			require.NoError(t, f.SetSheetRow(name, cell, &row))
		}
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func readRows(t *testing.T, content []byte, sheet string) [][]string {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(content))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	return rows
}

func benefits(t *testing.T) []byte {
	return workbook(t, map[string][][]interface{}{
		"Benefícios": {
			{"Benefício", "Valor"},
			{"Vale refeição", "R$ 1.500,00"},
			{"Vale alimentação", "R$ 1.500,00"},
		},
		"Reembolsos": {
			{"Item", "Valor"},
			{"Plano de saúde", 1500},
		},
	}, "Benefícios", "Reembolsos")
}

func TestXlsx_ReplaceChangesMatchingCell(t *testing.T) {
	src := benefits(t)
	out, res, err := Apply(src, ".xlsx", &command.Command{
		Action: command.ActionReplace, From: "R$ 1.500,00", To: "R$ 1.650,00", Context: "vale refeicao",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Changes)

	rows := readRows(t, out, "Benefícios")
	assert.Equal(t, "R$ 1.650,00", rows[1][1])
	assert.Equal(t, "R$ 1.500,00", rows[2][1])
}

func TestXlsx_ReplaceNormalisesNumbersAcrossSheets(t *testing.T) {
	src := benefits(t)
	out, res, err := Apply(src, ".xlsx", &command.Command{Action: command.ActionReplace, From: "1500", To: "1650"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Changes)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()
	typ, err := f.GetCellType("Reembolsos", "B2")
	require.NoError(t, err)
	assert.NotEqual(t, excelize.CellTypeSharedString, typ, "numeric cells stay numeric")
	v, err := f.GetCellValue("Reembolsos", "B2")
	require.NoError(t, err)
	assert.Equal(t, "1650", v)
}

func TestXlsx_ReplaceSubstring(t *testing.T) {
	src := workbook(t, map[string][][]interface{}{"S": {{"Horário: 9h às 18h"}}}, "S")
	out, _, err := Apply(src, ".xlsx", &command.Command{Action: command.ActionReplace, From: "18h", To: "17h"})
	require.NoError(t, err)
	assert.Equal(t, "Horário: 9h às 17h", readRows(t, out, "S")[0][0])
}

func TestXlsx_ReplaceNoMatchChangesNothing(t *testing.T) {
	src := benefits(t)
	out, res, err := Apply(src, ".xlsx", &command.Command{
		Action: command.ActionReplace, From: "R$ 1.500,00", To: "R$ 2.000,00", Context: "inexistente",
	})
	require.ErrorIs(t, err, ErrNoMatch)
	assert.Nil(t, out)
	assert.Equal(t, 0, res.Changes)
	assert.Equal(t, "R$ 1.500,00", readRows(t, src, "Benefícios")[1][1])
}

func TestXlsx_RowActions(t *testing.T) {
	src := workbook(t, map[string][][]interface{}{"S": {{"a", "1"}, {"b", "2"}}}, "S")

	out, _, err := Apply(src, ".xlsx", &command.Command{Action: command.ActionAppend, Content: "c; 3"})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "1"}, {"b", "2"}, {"c", "3"}}, readRows(t, out, "S"))

	out, _, err = Apply(src, ".xlsx", &command.Command{Action: command.ActionTop, Content: "Nome;Valor"})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Nome", "Valor"}, {"a", "1"}, {"b", "2"}}, readRows(t, out, "S"))

	out, res, err := Apply(src, ".xlsx", &command.Command{Action: command.ActionInsert, After: "a", Content: "a2;1.5"})
	require.NoError(t, err)
	assert.False(t, res.Fallback)
	assert.Equal(t, [][]string{{"a", "1"}, {"a2", "1.5"}, {"b", "2"}}, readRows(t, out, "S"))

	out, res, err = Apply(src, ".xlsx", &command.Command{Action: command.ActionInsert, After: "zzz", Content: "z"})
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Equal(t, [][]string{{"a", "1"}, {"b", "2"}, {"z"}}, readRows(t, out, "S"))
}

func TestXlsx_Clear(t *testing.T) {
	src := benefits(t)
	out, res, err := Apply(src, ".xlsx", &command.Command{Action: command.ActionClear})
	require.NoError(t, err)
	assert.Equal(t, 10, res.Changes)
	assert.Empty(t, readRows(t, out, "Benefícios"))
	assert.Empty(t, readRows(t, out, "Reembolsos"))
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1500", 1500, true},
		{"R$ 1.500,00", 1500, true},
		{"R$1.500", 1500, true},
		{"1,500.00", 1500, true},
		{"1.500.000", 1500000, true},
		{"1.5", 1.5, true},
		{"30,50", 30.5, true},
		{"-12,5", -12.5, true},
		{"€ 10", 10, true},
		{"", 0, false},
		{"R$", 0, false},
		{"abc", 0, false},
		{"12 horas", 0, false},
		{"1.2.3,4,5", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseNumber(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if tt.ok {
			assert.InDelta(t, tt.want, got, 1e-9, tt.in)
		}
	}
}
