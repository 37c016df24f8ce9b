package models

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxQuestionLength bounds the size of a chat message in runes.
const MaxQuestionLength = 4000

// Question is a chat message sent to the assistant.
type Question struct {
	Message string `json:"message"`
}

// Validate trims the message and rejects empty or oversized input.
func (q *Question) Validate() error {
	q.Message = strings.TrimSpace(q.Message)
	if q.Message == "" {
		return fmt.Errorf("message cannot be empty")
	}
	if utf8.RuneCountInString(q.Message) > MaxQuestionLength {
		return fmt.Errorf("message exceeds %d characters", MaxQuestionLength)
	}
	return nil
}

// EditInput is the body of a document edit request. Text holds either a bare command
// or a full suggestion block produced by the assistant.
type EditInput struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
	Text     string `json:"text"`
}

// Validate requires some instruction text.
func (e *EditInput) Validate() error {
	e.FileID = strings.TrimSpace(e.FileID)
	e.FileName = strings.TrimSpace(e.FileName)
	if strings.TrimSpace(e.Text) == "" {
		return fmt.Errorf("text cannot be empty")
	}
	return nil
}
