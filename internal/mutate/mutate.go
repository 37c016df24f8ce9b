// Package mutate applies parsed edit commands to in-memory copies of .docx and .xlsx files.
//
// A mutation never touches the source bytes: it returns a new file and a Result describing
// what changed. Zero changes yield ErrNoMatch so callers can skip the upload.
package mutate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mindhub/mindlink/internal/command"
)

var (
	// ErrNoMatch is returned when a command found nothing to change.
	ErrNoMatch = errors.New("no matching content")
	// ErrUnsupported is returned for file types without a mutator.
	ErrUnsupported = errors.New("unsupported file type")
)

// Result describes an applied mutation.
type Result struct {
	Action  command.Action `json:"action"`
	Changes int            `json:"changes"`
	// Fallback is set when INSERIR did not find its anchor and appended instead.
	Fallback bool `json:"fallback,omitempty"`
}

type mutator func(content []byte, cmd *command.Command) ([]byte, *Result, error)

var mutators = map[string]mutator{
	".docx": mutateDocx,
	".xlsx": mutateXlsx,
}

// Supported reports whether files with extension ext can be edited.
func Supported(ext string) bool {
	_, ok := mutators[strings.ToLower(ext)]
	return ok
}

// Apply runs cmd against content, a file with extension ext, and returns the new file.
func Apply(content []byte, ext string, cmd *command.Command) ([]byte, *Result, error) {
	if cmd == nil {
		return nil, nil, fmt.Errorf("%w: nil command", command.ErrInvalidCommand)
	}
	if err := cmd.Validate(); err != nil {
		return nil, nil, err
	}
	m, ok := mutators[strings.ToLower(ext)]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
	out, res, err := m(content, cmd)
	if err != nil {
		return nil, nil, err
	}
	if res.Changes == 0 {
		return nil, res, fmt.Errorf("%s: %w", cmd.Action, ErrNoMatch)
	}
	return out, res, nil
}
