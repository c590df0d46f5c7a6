package query

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/drpcorg/recdb/recdb_errors"
)

// Parse reads a predicate such as
//
//	title = ? and (tags = missing or score >= 10) and not name startsWith 'a'
//
// Each ? takes the next argument, slices expand into several values.
func Parse(text string, args ...any) (Predicate, error) {
	p := &parser{args: args}
	if err := p.lex(text); err != nil {
		return nil, err
	}
	if len(p.tokens) == 0 {
		return nil, nil
	}
	pred, err := p.or()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.tokens) {
		return nil, p.errorf("unexpected %q", p.tokens[p.pos].text)
	}
	return pred, nil
}

// MustParse is Parse that panics, for static predicates.
func MustParse(text string, args ...any) Predicate {
	pred, err := Parse(text, args...)
	if err != nil {
		panic(err)
	}
	return pred
}

type tokenKind uint8

const (
	tokWord tokenKind = iota
	tokString
	tokNumber
	tokSymbol
)

type token struct {
	kind tokenKind
	text string
}

type parser struct {
	tokens []token
	pos    int
	args   []any
	argPos int
	source string
}

func (p *parser) errorf(format string, a ...any) error {
	return &recdb_errors.UnsupportedPredicateError{Predicate: p.source, Reason: fmt.Sprintf(format, a...)}
}

func (p *parser) lex(s string) error {
	p.source = s
	for i := 0; i < len(s); {
		c := rune(s[i])
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '\'' || c == '"':
			var b strings.Builder
			j := i + 1
			for ; j < len(s); j++ {
				if rune(s[j]) == c {
					if j+1 < len(s) && rune(s[j+1]) == c {
						b.WriteByte(s[j])
						j++
						continue
					}
					break
				}
				b.WriteByte(s[j])
			}
			if j >= len(s) {
				return p.errorf("unterminated string")
			}
			p.tokens = append(p.tokens, token{tokString, b.String()})
			i = j + 1
		case c == '-' || c == '+' || unicode.IsDigit(c):
			j := i + 1
			for j < len(s) && (unicode.IsDigit(rune(s[j])) || strings.ContainsRune(".eE+-", rune(s[j]))) {
				j++
			}
			p.tokens = append(p.tokens, token{tokNumber, s[i:j]})
			i = j
		case c == '_' || unicode.IsLetter(c):
			j := i + 1
			for j < len(s) && (s[j] == '_' || s[j] == '/' || s[j] == '.' || unicode.IsLetter(rune(s[j])) || unicode.IsDigit(rune(s[j]))) {
				j++
			}
			p.tokens = append(p.tokens, token{tokWord, s[i:j]})
			i = j
		default:
			sym := symbolAt(s[i:])
			if sym == "" {
				return p.errorf("unexpected character %q", c)
			}
			p.tokens = append(p.tokens, token{tokSymbol, sym})
			i += len(sym)
		}
	}
	return nil
}

var symbols = []string{"!=", "<>", "<=", ">=", "==", "=", "<", ">", "(", ")", "[", "]", ",", "?"}

func symbolAt(s string) string {
	for _, sym := range symbols {
		if strings.HasPrefix(s, sym) {
			return sym
		}
	}
	return ""
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *parser) keyword(word string) bool {
	t, ok := p.peek()
	if ok && t.kind == tokWord && strings.EqualFold(t.text, word) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) symbol(sym string) bool {
	t, ok := p.peek()
	if ok && t.kind == tokSymbol && t.text == sym {
		p.pos++
		return true
	}
	return false
}

func (p *parser) or() (Predicate, error) {
	left, err := p.and()
	if err != nil {
		return nil, err
	}
	children := []Predicate{left}
	for p.keyword("or") {
		right, err := p.and()
		if err != nil {
			return nil, err
		}
		children = append(children, right)
	}
	return OrOf(children...), nil
}

func (p *parser) and() (Predicate, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	children := []Predicate{left}
	for p.keyword("and") {
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		children = append(children, right)
	}
	return AndOf(children...), nil
}

func (p *parser) unary() (Predicate, error) {
	if p.keyword("not") {
		child, err := p.unary()
		if err != nil {
			return nil, err
		}
		return NotOf(child), nil
	}
	if p.symbol("(") {
		inner, err := p.or()
		if err != nil {
			return nil, err
		}
		if !p.symbol(")") {
			return nil, p.errorf("missing )")
		}
		return inner, nil
	}
	return p.comparison()
}

var operators = map[string]Operator{
	"=": EqualsAny, "==": EqualsAny, "!=": NotEqualsAll, "<>": NotEqualsAll,
	"<": Less, "<=": LessEqual, ">": Greater, ">=": GreaterEqual,
	"contains": Contains, "startswith": StartsWith,
}

func (p *parser) comparison() (Predicate, error) {
	t, ok := p.peek()
	if !ok || t.kind != tokWord {
		return nil, p.errorf("key expected")
	}
	p.pos++
	key := t.text
	t, ok = p.peek()
	if !ok {
		return nil, p.errorf("operator expected after %s", key)
	}
	op, known := operators[strings.ToLower(t.text)]
	if !known || t.kind == tokString || t.kind == tokNumber {
		return nil, p.errorf("unknown operator %q", t.text)
	}
	p.pos++
	var values []any
	if p.symbol("[") {
		for !p.symbol("]") {
			if len(values) > 0 && !p.symbol(",") {
				return nil, p.errorf("missing , in list")
			}
			vs, err := p.value()
			if err != nil {
				return nil, err
			}
			values = append(values, vs...)
		}
	} else {
		vs, err := p.value()
		if err != nil {
			return nil, err
		}
		values = vs
	}
	return &Comparison{Key: key, Op: op, Values: values}, nil
}

func (p *parser) value() ([]any, error) {
	t, ok := p.peek()
	if !ok {
		return nil, p.errorf("value expected")
	}
	p.pos++
	switch t.kind {
	case tokString:
		return []any{t.text}, nil
	case tokNumber:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, p.errorf("bad number %q", t.text)
		}
		return []any{f}, nil
	case tokWord:
		switch strings.ToLower(t.text) {
		case "missing":
			return []any{Missing}, nil
		case "true":
			return []any{true}, nil
		case "false":
			return []any{false}, nil
		case "null":
			return []any{nil}, nil
		}
		return []any{t.text}, nil
	}
	if t.text != "?" {
		return nil, p.errorf("unexpected %q", t.text)
	}
	if p.argPos >= len(p.args) {
		return nil, p.errorf("not enough arguments")
	}
	arg := p.args[p.argPos]
	p.argPos++
	return expand(arg), nil
}

func expand(arg any) []any {
	if arg == nil {
		return []any{nil}
	}
	if _, isBytes := arg.([]byte); isBytes {
		return []any{arg}
	}
	rv := reflect.ValueOf(arg)
	if rv.Kind() != reflect.Slice {
		return []any{arg}
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}
