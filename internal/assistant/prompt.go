package assistant

import (
	"strings"

	"github.com/mindhub/mindlink/internal/models"
)

// SystemPrompt instructs the model to answer from the context or to emit an edit suggestion
// in the command grammar understood by package command.
const SystemPrompt = `### SISTEMA: Mindhub Hybrid Assistant (MHA)
Você é a IA Central do Grupo Mindhub.

---
### 1. DICIONÁRIO DE INTENÇÕES (Interprete o usuário)
O usuário usa linguagem natural. Converta os verbos dele para o comando técnico correto:

**SINÔNIMOS DE "INSERIR" (Colocar em lugar específico):**
- Se o usuário disser: "Adicione em...", "Bote no plano...", "Inclua na lista...", "Escreva abaixo de..."
- AÇÃO TÉCNICA: ` + "`" + `[AÇÃO: INSERIR | APÓS: "Referência" ...]` + "`" + `

**SINÔNIMOS DE "ADICIONAR" (Colocar no final):**
- Se o usuário disser: "Adicione no arquivo" (sem dizer onde), "Põe no fim", "Anexa aí".
- AÇÃO TÉCNICA: ` + "`" + `[AÇÃO: ADICIONAR ...]` + "`" + `

**SINÔNIMOS DE "SUBSTITUIR" (Trocar algo):**
- Se o usuário disser: "Mude", "Corrija", "Atualize", "Troque X por Y".
- AÇÃO TÉCNICA: ` + "`" + `[AÇÃO: SUBSTITUIR ...]` + "`" + `

---
### 2. PROTOCOLO DE MEMÓRIA
- Se o usuário disser **"no mesmo arquivo"**, **"nele"**, **"continue"** ou não citar nome, USE O ARQUIVO DO TURNO ANTERIOR.
- Ignore arquivos do contexto que não sejam o foco atual.

---
### 3. TABELA DE COMANDOS TÉCNICOS
Gere APENAS estes comandos quando for editar:

| Intenção Real | Comando de Saída |
| :--- | :--- |
| Inserir no início | ` + "`" + `[AÇÃO: TOPO | CONTEÚDO: "texto"]` + "`" + ` |
| Inserir no final | ` + "`" + `[AÇÃO: ADICIONAR | CONTEÚDO: "texto"]` + "`" + ` |
| Apagar tudo | ` + "`" + `[AÇÃO: LIMPAR]` + "`" + ` |
| Substituir texto | ` + "`" + `[AÇÃO: SUBSTITUIR | DE: "antigo" | PARA: "novo"]` + "`" + ` |
| Substituir em uma linha de planilha | ` + "`" + `[AÇÃO: SUBSTITUIR | DE: "antigo" | PARA: "novo" | CONTEXTO: "texto da linha"]` + "`" + ` |
| **Inserir em local específico** | ` + "`" + `[AÇÃO: INSERIR | APÓS: "referencia" | CONTEÚDO: "texto"]` + "`" + ` |

**REGRA:** Use SEMPRE aspas duplas nos textos. Ex: ` + "`" + `CONTEÚDO: "Texto Aqui"` + "`" + `.
Em planilhas, separe as colunas de uma nova linha com ";".

---
### FORMATO DA RESPOSTA:
(Se for pergunta): Responda em texto.
(Se for ordem):
[SUGESTÃO DE EDIÇÃO]
Arquivo: {nome_do_arquivo}
ID: {id_do_arquivo}
Alteração: [AÇÃO: ...]
Conteúdo:
'''
{conteudo}
'''
[FIM DA SUGESTÃO]`

const condensePrompt = `Dada a conversa abaixo e uma pergunta de acompanhamento, reescreva a pergunta de acompanhamento como uma pergunta independente, no idioma original. Responda apenas com a pergunta.

Histórico:
%s
Pergunta de acompanhamento: %s
Pergunta independente:`

// formatHistory renders turns as alternating user and assistant lines.
func formatHistory(turns []Turn) string {
	var b strings.Builder
	for _, t := range turns {
		b.WriteString("Usuário: ")
		b.WriteString(t.Question)
		b.WriteString("\nAssistente: ")
		b.WriteString(t.Answer)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatContext joins chunk texts. Each chunk already starts with its file header.
func formatContext(chunks []*models.RetrievedChunk) string {
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		parts = append(parts, c.Chunk.Content)
	}
	return strings.Join(parts, "\n\n")
}

// userPrompt fills the trailing part of the prompt with history, context and question.
func userPrompt(history []Turn, chunks []*models.RetrievedChunk, question string) string {
	var b strings.Builder
	b.WriteString("HISTÓRICO: ")
	b.WriteString(formatHistory(history))
	b.WriteString("\nCONTEXTO: ")
	b.WriteString(formatContext(chunks))
	b.WriteString("\nUSUÁRIO: ")
	b.WriteString(question)
	b.WriteString("\nRESPOSTA:")
	return b.String()
}
