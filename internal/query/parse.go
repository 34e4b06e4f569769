package query

import (
	"strconv"
	"strings"
	"unicode"
)

type tokKind uint8

const (
	tokEOF tokKind = iota
	tokPath
	tokString
	tokNumber
	tokTrue
	tokFalse
	tokNull
	tokAnd
	tokOr
	tokNot
	tokLParen
	tokRParen
	tokEq
	tokNe
	tokLt
	tokLe
	tokGt
	tokGe
)

type token struct {
	kind tokKind
	text string
	num  float64
	pos  int
}

type parser struct {
	src  string
	toks []token
	pos  int
}

func newParser(src string) *parser {
	return &parser{src: src}
}

func (p *parser) parse() (node, error) {
	if strings.TrimSpace(p.src) == "" {
		return nil, ErrEmptyQuery
	}
	if err := p.lex(); err != nil {
		return nil, err
	}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, syntaxErr(tok.pos, "unexpected %q", tok.text)
	}
	return root, nil
}

// ============================================================================
// Lexer
// ============================================================================

func (p *parser) lex() error {
	src := p.src
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			p.toks = append(p.toks, token{kind: tokLParen, text: "(", pos: i})
			i++
		case c == ')':
			p.toks = append(p.toks, token{kind: tokRParen, text: ")", pos: i})
			i++
		case c == '&':
			if i+1 >= len(src) || src[i+1] != '&' {
				return syntaxErr(i, "expected &&")
			}
			p.toks = append(p.toks, token{kind: tokAnd, text: "&&", pos: i})
			i += 2
		case c == '|':
			if i+1 >= len(src) || src[i+1] != '|' {
				return syntaxErr(i, "expected ||")
			}
			p.toks = append(p.toks, token{kind: tokOr, text: "||", pos: i})
			i += 2
		case c == '!':
			if i+1 < len(src) && src[i+1] == '=' {
				p.toks = append(p.toks, token{kind: tokNe, text: "!=", pos: i})
				i += 2
			} else {
				p.toks = append(p.toks, token{kind: tokNot, text: "!", pos: i})
				i++
			}
		case c == '=':
			if i+1 >= len(src) || src[i+1] != '=' {
				return syntaxErr(i, "expected ==")
			}
			p.toks = append(p.toks, token{kind: tokEq, text: "==", pos: i})
			i += 2
		case c == '<':
			if i+1 < len(src) && src[i+1] == '=' {
				p.toks = append(p.toks, token{kind: tokLe, text: "<=", pos: i})
				i += 2
			} else {
				p.toks = append(p.toks, token{kind: tokLt, text: "<", pos: i})
				i++
			}
		case c == '>':
			if i+1 < len(src) && src[i+1] == '=' {
				p.toks = append(p.toks, token{kind: tokGe, text: ">=", pos: i})
				i += 2
			} else {
				p.toks = append(p.toks, token{kind: tokGt, text: ">", pos: i})
				i++
			}
		case c == '\'' || c == '"':
			text, next, err := lexString(src, i)
			if err != nil {
				return err
			}
			p.toks = append(p.toks, token{kind: tokString, text: text, pos: i})
			i = next
		case c == '-' || (c >= '0' && c <= '9'):
			text, next, err := lexNumber(src, i)
			if err != nil {
				return err
			}
			num, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return syntaxErr(i, "bad number %q", text)
			}
			p.toks = append(p.toks, token{kind: tokNumber, text: text, num: num, pos: i})
			i = next
		case isPathStart(rune(c)):
			text, next := lexPath(src, i)
			kind := tokPath
			switch text {
			case "true":
				kind = tokTrue
			case "false":
				kind = tokFalse
			case "null":
				kind = tokNull
			}
			p.toks = append(p.toks, token{kind: kind, text: text, pos: i})
			i = next
		default:
			return syntaxErr(i, "unexpected character %q", string(c))
		}
	}
	p.toks = append(p.toks, token{kind: tokEOF, text: "", pos: len(src)})
	return nil
}

func lexString(src string, start int) (string, int, error) {
	quote := src[start]
	var b strings.Builder
	i := start + 1
	for i < len(src) {
		c := src[i]
		switch c {
		case quote:
			return b.String(), i + 1, nil
		case '\\':
			if i+1 >= len(src) {
				return "", 0, syntaxErr(start, "unterminated string")
			}
			b.WriteByte(src[i+1])
			i += 2
		default:
			b.WriteByte(c)
			i++
		}
	}
	return "", 0, syntaxErr(start, "unterminated string")
}

func lexNumber(src string, start int) (string, int, error) {
	i := start
	if src[i] == '-' {
		i++
		if i >= len(src) || src[i] < '0' || src[i] > '9' {
			return "", 0, syntaxErr(start, "bad number")
		}
	}
	for i < len(src) && (src[i] >= '0' && src[i] <= '9') {
		i++
	}
	if i < len(src) && src[i] == '.' {
		i++
		for i < len(src) && (src[i] >= '0' && src[i] <= '9') {
			i++
		}
	}
	return src[start:i], i, nil
}

func isPathStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

func isPathRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.' || r == '-'
}

func lexPath(src string, start int) (string, int) {
	i := start
	for i < len(src) && isPathRune(rune(src[i])) {
		i++
	}
	return src[start:i], i
}

// ============================================================================
// Parser
// ============================================================================

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	tok := p.toks[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &orNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &andNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.peek().kind == tokNot {
		p.next()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &notNode{inner: inner}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	tok := p.next()
	switch tok.kind {
	case tokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, syntaxErr(closing.pos, "expected )")
		}
		return inner, nil
	case tokPath:
		if op, ok := comparison(p.peek().kind); ok {
			p.next()
			lit, err := p.parseLiteral()
			if err != nil {
				return nil, err
			}
			return &cmpNode{path: tok.text, op: op, lit: lit}, nil
		}
		return &existsNode{path: tok.text}, nil
	case tokEOF:
		return nil, syntaxErr(tok.pos, "unexpected end of expression")
	default:
		return nil, syntaxErr(tok.pos, "unexpected %q", tok.text)
	}
}

func comparison(k tokKind) (cmpOp, bool) {
	switch k {
	case tokEq:
		return opEq, true
	case tokNe:
		return opNe, true
	case tokLt:
		return opLt, true
	case tokLe:
		return opLe, true
	case tokGt:
		return opGt, true
	case tokGe:
		return opGe, true
	default:
		return 0, false
	}
}

func (p *parser) parseLiteral() (literal, error) {
	tok := p.next()
	switch tok.kind {
	case tokString:
		return literal{kind: litString, str: tok.text}, nil
	case tokNumber:
		return literal{kind: litNumber, num: tok.num}, nil
	case tokTrue:
		return literal{kind: litBool, b: true}, nil
	case tokFalse:
		return literal{kind: litBool, b: false}, nil
	case tokNull:
		return literal{kind: litNull}, nil
	case tokEOF:
		return literal{}, syntaxErr(tok.pos, "expected literal, got end of expression")
	default:
		return literal{}, syntaxErr(tok.pos, "expected literal, got %q", tok.text)
	}
}
