package command

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mindhub/mindlink/pkg/utils"
)

var (
	actionKeys = map[string]bool{"acao": true}
	fieldKeys  = map[string]Field{
		"conteudo": FieldContent,
		"de":       FieldFrom,
		"para":     FieldTo,
		"apos":     FieldAfter,
		"contexto": FieldContext,
	}
	actionNames = map[string]Action{
		"topo":       ActionTop,
		"adicionar":  ActionAppend,
		"limpar":     ActionClear,
		"substituir": ActionReplace,
		"inserir":    ActionInsert,
	}
	closingQuote = map[rune]rune{'"': '"', '\'': '\'', '“': '”'}

	// directiveStart finds "[AÇÃO:" with any case, with or without accents, composed or
	// decomposed.
	directiveStart = regexp.MustCompile(`(?i)\[\s*a[cç]\p{Mn}*[aã]\p{Mn}*o\s*:`)
)

// Parse parses a single directive. Leading and trailing whitespace is ignored; anything else
// around the directive is an error.
func Parse(s string) (*Command, error) {
	p := &parser{src: s}
	p.skipSpace()
	cmd, missing, err := p.directive()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !p.eof() {
		return nil, p.errorf("unexpected text after directive")
	}
	if err := complete(cmd, missing); err != nil {
		return nil, err
	}
	return cmd, nil
}

func complete(cmd *Command, missing []Field) error {
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s requires %s", ErrInvalidCommand, cmd.Action, missing[0])
	}
	return cmd.Validate()
}

// Extract finds the first directive in free text, such as a full assistant answer, and parses
// it. It returns ErrNoCommand when the text has none, and a *SyntaxError with an offset into text
// when the first directive is malformed.
func Extract(text string) (*Command, error) {
	cmd, missing, err := scan(text)
	if err != nil {
		return nil, err
	}
	if err := complete(cmd, missing); err != nil {
		return nil, err
	}
	return cmd, nil
}

// scan parses the first directive in text without checking required fields, which it
// returns as missing.
func scan(text string) (*Command, []Field, error) {
	loc := directiveStart.FindStringIndex(text)
	if loc == nil {
		return nil, nil, ErrNoCommand
	}
	p := &parser{src: text, pos: loc[0]}
	return p.directive()
}

type parser struct {
	src string
	pos int
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) peek() rune {
	if p.eof() {
		return utf8.RuneError
	}
	r, _ := utf8.DecodeRuneInString(p.src[p.pos:])
	return r
}

func (p *parser) next() rune {
	r, size := utf8.DecodeRuneInString(p.src[p.pos:])
	p.pos += size
	return r
}

func (p *parser) skipSpace() {
	for !p.eof() && unicode.IsSpace(p.peek()) {
		p.next()
	}
}

func (p *parser) errorf(format string, args ...interface{}) *SyntaxError {
	return &SyntaxError{Offset: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) expect(r rune) error {
	if p.eof() {
		return p.errorf("expected %q, got end of input", r)
	}
	if got := p.peek(); got != r {
		return p.errorf("expected %q, got %q", r, got)
	}
	p.next()
	return nil
}

// word reads a run of letters, with any combining marks, and returns it accent-folded
// and lowercased.
func (p *parser) word() (string, int) {
	start := p.pos
	for !p.eof() && (unicode.IsLetter(p.peek()) || unicode.Is(unicode.Mn, p.peek())) {
		p.next()
	}
	return utils.FoldLower(p.src[start:p.pos]), start
}

func (p *parser) directive() (*Command, []Field, error) {
	if err := p.expect('['); err != nil {
		return nil, nil, err
	}
	p.skipSpace()
	key, at := p.word()
	if !actionKeys[key] {
		return nil, nil, &SyntaxError{Offset: at, Msg: "directive must start with AÇÃO"}
	}
	p.skipSpace()
	if err := p.expect(':'); err != nil {
		return nil, nil, err
	}
	p.skipSpace()
	name, at := p.word()
	action, ok := actionNames[name]
	if !ok {
		if name == "" {
			return nil, nil, &SyntaxError{Offset: at, Msg: "missing action name"}
		}
		return nil, nil, &SyntaxError{Offset: at, Msg: fmt.Sprintf("unknown action %q", p.src[at:p.pos])}
	}

	cmd := &Command{Action: action}
	allowed := make(map[Field]bool)
	for _, f := range action.Fields() {
		allowed[f] = true
	}
	seen := make(map[Field]bool)
	for {
		p.skipSpace()
		if p.eof() {
			return nil, nil, p.errorf("unterminated directive, expected \"]\"")
		}
		switch p.peek() {
		case ']':
			p.next()
			var missing []Field
			for _, f := range rules[action].required {
				if !seen[f] {
					missing = append(missing, f)
				}
			}
			return cmd, missing, nil
		case '|':
			p.next()
		default:
			return nil, nil, p.errorf("expected \"|\" or \"]\", got %q", p.peek())
		}
		p.skipSpace()
		key, at := p.word()
		field, ok := fieldKeys[key]
		if !ok {
			if key == "" {
				return nil, nil, &SyntaxError{Offset: at, Msg: "missing field name"}
			}
			return nil, nil, &SyntaxError{Offset: at, Msg: fmt.Sprintf("unknown field %q", p.src[at:p.pos])}
		}
		if seen[field] {
			return nil, nil, &SyntaxError{Offset: at, Msg: fmt.Sprintf("duplicate field %s", field)}
		}
		if !allowed[field] {
			return nil, nil, &SyntaxError{Offset: at, Msg: fmt.Sprintf("field %s not allowed for %s", field, action)}
		}
		seen[field] = true
		p.skipSpace()
		if err := p.expect(':'); err != nil {
			return nil, nil, err
		}
		p.skipSpace()
		value, err := p.value()
		if err != nil {
			return nil, nil, err
		}
		cmd.set(field, value)
	}
}

func (p *parser) value() (string, error) {
	if p.eof() {
		return "", p.errorf("expected value, got end of input")
	}
	if closing, ok := closingQuote[p.peek()]; ok {
		return p.quoted(closing)
	}
	start := p.pos
	for !p.eof() {
		if r := p.peek(); r == '|' || r == ']' {
			break
		}
		p.next()
	}
	return strings.TrimSpace(p.src[start:p.pos]), nil
}

func (p *parser) quoted(closing rune) (string, error) {
	start := p.pos
	p.next()
	var b strings.Builder
	for {
		if p.eof() {
			return "", &SyntaxError{Offset: start, Msg: "unterminated quoted value"}
		}
		r := p.next()
		switch {
		case r == closing:
			return b.String(), nil
		case r == '\\':
			if p.eof() {
				return "", &SyntaxError{Offset: start, Msg: "unterminated quoted value"}
			}
			esc := p.next()
			switch esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteRune(esc)
			}
		default:
			b.WriteRune(r)
		}
	}
}
