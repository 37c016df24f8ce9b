package models

import (
	"strings"
	"testing"
)

func TestQuestion_Validate(t *testing.T) {
	tests := []struct {
		name    string
		q       *Question
		wantErr bool
		want    string
	}{
		{"empty message", &Question{Message: ""}, true, ""},
		{"whitespace only", &Question{Message: "  \n "}, true, ""},
		{"trims message", &Question{Message: "  qual o prazo?  "}, false, "qual o prazo?"},
		{"too long", &Question{Message: strings.Repeat("a", MaxQuestionLength+1)}, true, ""},
		{"exactly max", &Question{Message: strings.Repeat("é", MaxQuestionLength)}, false, strings.Repeat("é", MaxQuestionLength)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.q.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && tt.q.Message != tt.want {
				t.Errorf("Message = %q, want %q", tt.q.Message, tt.want)
			}
		})
	}
}

func TestEditInput_Validate(t *testing.T) {
	in := &EditInput{FileID: " abc ", Text: "[AÇÃO: LIMPAR]"}
	if err := in.Validate(); err != nil {
		t.Fatal(err)
	}
	if in.FileID != "abc" {
		t.Errorf("FileID = %q", in.FileID)
	}
	if err := (&EditInput{FileID: "abc"}).Validate(); err == nil {
		t.Error("expected error for empty text")
	}
}
