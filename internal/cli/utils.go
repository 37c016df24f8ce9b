// Package cli provides output helpers for the mindlink command.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mindhub/mindlink/internal/assistant"
	"github.com/mindhub/mindlink/internal/editor"
	"github.com/mindhub/mindlink/internal/indexer"
	"github.com/mindhub/mindlink/pkg/utils"
)

// OutputFormat is the format of command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat maps a --format flag value to an OutputFormat.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (want text or json)", s)
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteAnswer writes an assistant answer with its sources.
func WriteAnswer(w io.Writer, ans *assistant.Answer, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, ans)
	}
	fmt.Fprintf(w, "\n%s\n", ans.Text)
	if len(ans.Sources) > 0 {
		fmt.Fprintln(w, "\n--- Fontes ---")
		for i, s := range ans.Sources {
			loc := s.FileName
			if s.Path != "" {
				loc = s.Path + "/" + s.FileName
			}
			fmt.Fprintf(w, "%d. %s (score %.4f)\n   ID: %s\n", i+1, loc, s.Score, s.FileID)
		}
	}
	if ans.Suggestion != nil {
		fmt.Fprintln(w, "\n--- Sugestão de edição ---")
		fmt.Fprintf(w, "Arquivo: %s\nID: %s\nAção: %s\n", ans.Suggestion.FileName, ans.Suggestion.FileID, ans.Suggestion.Command.Action)
		if ans.Suggestion.Content != "" {
			fmt.Fprintf(w, "Conteúdo: %s\n", utils.Truncate(ans.Suggestion.Content, 200))
		}
	}
	if ans.SuggestionError != "" {
		fmt.Fprintf(w, "\nSugestão inválida: %s\n", ans.SuggestionError)
	}
	return nil
}

// WriteOutcome writes the result of an applied edit.
func WriteOutcome(w io.Writer, out *editor.Outcome, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, out)
	}
	fmt.Fprintf(w, "Arquivo: %s (%s)\n", out.FileName, out.FileID)
	fmt.Fprintf(w, "Ação: %s, %d alteração(ões)\n", out.Result.Action, out.Result.Changes)
	if out.Result.Fallback {
		fmt.Fprintln(w, "Âncora não encontrada; conteúdo adicionado ao final.")
	}
	if !out.Reindexed {
		fmt.Fprintln(w, "Aviso: o arquivo foi salvo mas não reindexado.")
	}
	return nil
}

// WriteStats writes rebuild statistics.
func WriteStats(w io.Writer, st *indexer.Stats, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, st)
	}
	fmt.Fprintf(w, "Files: %d seen, %d indexed, %d skipped, %d failed\n",
		st.FilesSeen, st.FilesIndexed, st.FilesSkipped, st.FilesFailed)
	fmt.Fprintf(w, "Chunks: %d\nDuration: %s\n", st.Chunks, st.Duration)
	return nil
}
