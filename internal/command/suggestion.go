package command

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoSuggestion is returned when an answer carries no suggestion block.
var ErrNoSuggestion = errors.New("no edit suggestion found")

// Suggestion is the edit proposal block of an assistant answer:
//
//	[SUGESTÃO DE EDIÇÃO]
//	Arquivo: Manual RH.docx
//	ID: 1AbC...
//	Alteração: [AÇÃO: ADICIONAR | CONTEÚDO: "texto"]
//	Conteúdo:
//	'''
//	texto
//	'''
//	[FIM DA SUGESTÃO]
type Suggestion struct {
	FileName string   `json:"file_name"`
	FileID   string   `json:"file_id"`
	Command  *Command `json:"command"`
	Content  string   `json:"content,omitempty"`
}

var (
	blockStart = regexp.MustCompile(`(?i)\[\s*sugest[aã]o\s+de\s+edi[cç][aã]o\s*\]`)
	blockEnd   = regexp.MustCompile(`(?i)\[\s*fim\s+da\s+sugest[aã]o\s*\]`)
	fileLine   = regexp.MustCompile(`(?im)^\s*arquivo\s*:\s*(.+?)\s*$`)
	idLine     = regexp.MustCompile(`(?im)^\s*id\s*:\s*(.+?)\s*$`)
	fence      = regexp.MustCompile(`(?s)'''\s*\n?(.*?)\n?\s*'''`)
)

// ParseSuggestion reads the first suggestion block of text. A missing closing marker is
// tolerated. When the directive lacks CONTEÚDO but the block has a fenced Conteúdo, the fenced
// text is used.
func ParseSuggestion(text string) (*Suggestion, error) {
	loc := blockStart.FindStringIndex(text)
	if loc == nil {
		return nil, ErrNoSuggestion
	}
	block := text[loc[1]:]
	if end := blockEnd.FindStringIndex(block); end != nil {
		block = block[:end[0]]
	}

	s := &Suggestion{}
	if m := fileLine.FindStringSubmatch(block); m != nil {
		s.FileName = trimDecoration(m[1])
	}
	if m := idLine.FindStringSubmatch(block); m != nil {
		s.FileID = trimDecoration(m[1])
	}
	if m := fence.FindStringSubmatch(block); m != nil {
		s.Content = m[1]
	}

	cmd, missing, err := scan(block)
	if err != nil {
		var se *SyntaxError
		if errors.As(err, &se) {
			se.Offset += loc[1]
		}
		return nil, fmt.Errorf("suggestion directive: %w", err)
	}
	if len(missing) == 1 && missing[0] == FieldContent && s.Content != "" {
		cmd.Content = s.Content
		missing = nil
	}
	if err := complete(cmd, missing); err != nil {
		return nil, err
	}
	s.Command = cmd
	if s.FileID == "" && s.FileName == "" {
		return nil, fmt.Errorf("%w: suggestion names no file", ErrInvalidCommand)
	}
	return s, nil
}

// trimDecoration strips markdown emphasis, code ticks and quotes the model sometimes adds.
func trimDecoration(v string) string {
	return strings.Trim(strings.TrimSpace(v), "*`\"'")
}
