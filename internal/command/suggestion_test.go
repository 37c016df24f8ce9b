package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullAnswer = `Certo, preparei a alteração.

[SUGESTÃO DE EDIÇÃO]
Arquivo: **Manual RH.docx**
ID: 1AbCdEf
Alteração: [AÇÃO: INSERIR | APÓS: "Benefícios" | CONTEÚDO: "Auxílio home office"]
Conteúdo:
'''
Auxílio home office
'''
[FIM DA SUGESTÃO]`

func TestParseSuggestion(t *testing.T) {
	s, err := ParseSuggestion(fullAnswer)
	require.NoError(t, err)
	assert.Equal(t, "Manual RH.docx", s.FileName)
	assert.Equal(t, "1AbCdEf", s.FileID)
	assert.Equal(t, "Auxílio home office", s.Content)
	assert.Equal(t, &Command{Action: ActionInsert, After: "Benefícios", Content: "Auxílio home office"}, s.Command)
}

func TestParseSuggestion_ContentFromFence(t *testing.T) {
	text := "[Sugestao de Edicao]\nArquivo: Avisos.docx\nID: xyz\nAlteração: [AÇÃO: ADICIONAR]\nConteúdo:\n'''\nLinha 1\nLinha 2\n'''\n"
	s, err := ParseSuggestion(text)
	require.NoError(t, err)
	assert.Equal(t, "Linha 1\nLinha 2", s.Command.Content)
	assert.Equal(t, "xyz", s.FileID)
}

func TestParseSuggestion_Errors(t *testing.T) {
	_, err := ParseSuggestion("Resposta sem sugestão.")
	assert.ErrorIs(t, err, ErrNoSuggestion)

	_, err = ParseSuggestion("[SUGESTÃO DE EDIÇÃO]\nArquivo: a.docx\nID: 1\n[FIM DA SUGESTÃO]")
	assert.ErrorIs(t, err, ErrNoCommand)

	_, err = ParseSuggestion("[SUGESTÃO DE EDIÇÃO]\nAlteração: [AÇÃO: LIMPAR]\n[FIM DA SUGESTÃO]")
	assert.ErrorIs(t, err, ErrInvalidCommand)

	text := "[SUGESTÃO DE EDIÇÃO]\nArquivo: a.docx\nAlteração: [AÇÃO: TOPO | X: 1]"
	_, err = ParseSuggestion(text)
	var se *SyntaxError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "X", text[se.Offset:se.Offset+1])
}

func TestParseSuggestion_IgnoresDirectiveAfterEnd(t *testing.T) {
	text := "[SUGESTÃO DE EDIÇÃO]\nArquivo: a.docx\n[FIM DA SUGESTÃO]\n[AÇÃO: LIMPAR]"
	_, err := ParseSuggestion(text)
	assert.ErrorIs(t, err, ErrNoCommand)
}
