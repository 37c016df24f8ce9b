package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mindhub/mindlink/internal/assistant"
	"github.com/mindhub/mindlink/internal/command"
	"github.com/mindhub/mindlink/internal/editor"
	"github.com/mindhub/mindlink/internal/indexer"
	"github.com/mindhub/mindlink/internal/models"
	"github.com/mindhub/mindlink/internal/mutate"
)

func sampleAnswer() *assistant.Answer {
	return &assistant.Answer{
		Text: "São 30 dias de férias.",
		Sources: []models.Source{
			{FileID: "1AbC", FileName: "Ferias.docx", Path: "empresa/RH", Score: 0.91},
		},
		Suggestion: &command.Suggestion{
			FileName: "Ferias.docx",
			FileID:   "1AbC",
			Command:  &command.Command{Action: command.ActionReplace, From: "30", To: "35"},
			Content:  "São 35 dias de férias.",
		},
	}
}

func TestWriteAnswer_text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteAnswer(&buf, sampleAnswer(), OutputText); err != nil {
		t.Fatalf("WriteAnswer(text): %v", err)
	}
	out := buf.String()
	for _, sub := range []string{"São 30 dias de férias.", "Fontes", "empresa/RH/Ferias.docx", "ID: 1AbC", "Sugestão de edição", "SUBSTITUIR", "Conteúdo: São 35 dias"} {
		if !strings.Contains(out, sub) {
			t.Errorf("text output missing %q:\n%s", sub, out)
		}
	}
}

func TestWriteAnswer_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteAnswer(&buf, sampleAnswer(), OutputJSON); err != nil {
		t.Fatalf("WriteAnswer(json): %v", err)
	}
	var decoded assistant.Answer
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Text != "São 30 dias de férias." || len(decoded.Sources) != 1 {
		t.Errorf("decoded answer = %+v", decoded)
	}
	if decoded.Suggestion == nil || decoded.Suggestion.Command.Action != command.ActionReplace {
		t.Errorf("suggestion lost in JSON: %+v", decoded.Suggestion)
	}
}

func TestWriteAnswer_invalidSuggestion(t *testing.T) {
	var buf bytes.Buffer
	ans := &assistant.Answer{Text: "ok", SuggestionError: "missing ID line"}
	if err := WriteAnswer(&buf, ans, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Sugestão inválida: missing ID line") {
		t.Errorf("got %q", buf.String())
	}
	if strings.Contains(buf.String(), "Fontes") {
		t.Errorf("no sources should print no source header: %q", buf.String())
	}
}

func TestWriteOutcome(t *testing.T) {
	out := &editor.Outcome{
		FileID:   "1AbC",
		FileName: "Planilha.xlsx",
		Result:   &mutate.Result{Action: command.ActionInsert, Changes: 1, Fallback: true},
	}
	var buf bytes.Buffer
	if err := WriteOutcome(&buf, out, OutputText); err != nil {
		t.Fatal(err)
	}
	s := buf.String()
	for _, sub := range []string{"Planilha.xlsx (1AbC)", "1 alteração", "Âncora não encontrada", "não reindexado"} {
		if !strings.Contains(s, sub) {
			t.Errorf("outcome output missing %q:\n%s", sub, s)
		}
	}
}

func TestWriteStats(t *testing.T) {
	st := &indexer.Stats{FilesSeen: 4, FilesIndexed: 3, FilesFailed: 1, Chunks: 12, Duration: 1500 * time.Millisecond}
	var buf bytes.Buffer
	if err := WriteStats(&buf, st, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "4 seen, 3 indexed, 0 skipped, 1 failed") || !strings.Contains(buf.String(), "1.5s") {
		t.Errorf("got %q", buf.String())
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"text", OutputText, false},
		{" JSON ", OutputJSON, false},
		{"yaml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}
