// Package command parses the edit directives the assistant emits, e.g.
//
//	[AÇÃO: SUBSTITUIR | DE: "R$ 1.500,00" | PARA: "R$ 1.650,00" | CONTEXTO: "Vale refeição"]
//
// Keys are case-insensitive and accents are optional (ACAO, CONTEUDO, APOS). Values are double- or
// single-quoted with backslash escapes, or bare text up to the next "|" or "]".
package command

import (
	"errors"
	"fmt"
	"strings"
)

// Action is the kind of edit a command performs.
type Action string

const (
	ActionTop     Action = "TOPO"
	ActionAppend  Action = "ADICIONAR"
	ActionClear   Action = "LIMPAR"
	ActionReplace Action = "SUBSTITUIR"
	ActionInsert  Action = "INSERIR"
)

// Actions lists every action in canonical order.
var Actions = []Action{ActionTop, ActionAppend, ActionClear, ActionReplace, ActionInsert}

// Field names a command argument.
type Field string

const (
	FieldContent Field = "CONTEÚDO"
	FieldFrom    Field = "DE"
	FieldTo      Field = "PARA"
	FieldAfter   Field = "APÓS"
	FieldContext Field = "CONTEXTO"
)

var (
	// ErrNoCommand is returned when text contains no edit directive.
	ErrNoCommand = errors.New("no edit command found")
	// ErrInvalidCommand wraps validation failures of a syntactically correct directive.
	ErrInvalidCommand = errors.New("invalid edit command")
)

// SyntaxError reports a malformed directive. Offset is the byte offset in the parsed text.
type SyntaxError struct {
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("command syntax error at offset %d: %s", e.Offset, e.Msg)
}

// Command is a parsed edit directive.
type Command struct {
	Action  Action `json:"action"`
	Content string `json:"content,omitempty"`
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	After   string `json:"after,omitempty"`
	Context string `json:"context,omitempty"`
}

type fieldRule struct {
	required []Field
	optional []Field
}

var rules = map[Action]fieldRule{
	ActionTop:     {required: []Field{FieldContent}},
	ActionAppend:  {required: []Field{FieldContent}},
	ActionClear:   {},
	ActionReplace: {required: []Field{FieldFrom, FieldTo}, optional: []Field{FieldContext}},
	ActionInsert:  {required: []Field{FieldAfter, FieldContent}},
}

// Fields returns the fields of the action in canonical order, required first.
func (a Action) Fields() []Field {
	r := rules[a]
	return append(append([]Field(nil), r.required...), r.optional...)
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	_, ok := rules[a]
	return ok
}

func (c *Command) get(f Field) string {
	switch f {
	case FieldContent:
		return c.Content
	case FieldFrom:
		return c.From
	case FieldTo:
		return c.To
	case FieldAfter:
		return c.After
	case FieldContext:
		return c.Context
	}
	return ""
}

func (c *Command) set(f Field, v string) {
	switch f {
	case FieldContent:
		c.Content = v
	case FieldFrom:
		c.From = v
	case FieldTo:
		c.To = v
	case FieldAfter:
		c.After = v
	case FieldContext:
		c.Context = v
	}
}

// Validate checks that required fields are present and non-empty. PARA may be empty, which
// deletes the matched text.
func (c *Command) Validate() error {
	r, ok := rules[c.Action]
	if !ok {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidCommand, c.Action)
	}
	for _, f := range r.required {
		if f == FieldTo {
			continue
		}
		if strings.TrimSpace(c.get(f)) == "" {
			return fmt.Errorf("%w: %s requires %s", ErrInvalidCommand, c.Action, f)
		}
	}
	return nil
}

// String renders the canonical form of the command. Parse(c.String()) yields c again.
func (c *Command) String() string {
	var b strings.Builder
	b.WriteString("[AÇÃO: ")
	b.WriteString(string(c.Action))
	r := rules[c.Action]
	for _, f := range r.required {
		writeField(&b, f, c.get(f))
	}
	for _, f := range r.optional {
		if v := c.get(f); v != "" {
			writeField(&b, f, v)
		}
	}
	b.WriteString("]")
	return b.String()
}

func writeField(b *strings.Builder, f Field, v string) {
	b.WriteString(" | ")
	b.WriteString(string(f))
	b.WriteString(": ")
	b.WriteString(Quote(v))
}

var quoteReplacer = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\t", `\t`)

// Quote returns v as a double-quoted command value.
func Quote(v string) string {
	return `"` + quoteReplacer.Replace(v) + `"`
}
