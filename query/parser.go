// Package query parses the search language and executes it against an index.
//
// The grammar follows the usual conventions of mail search tools: bare terms
// are OR'd together across the default fields, "field:value" restricts a term
// to one field, double quotes form phrases, a trailing '*' makes a prefix
// query, and uppercase AND / OR / NOT (or a leading '-') combine terms.
// Date ranges use "date:[2021-01-01 TO 2021-06-30]".
package query

import (
	"fmt"
	"strings"
	"unicode"
)

// SyntaxError describes where a query failed to parse.
type SyntaxError struct {
	Query string
	Pos   int
	Msg   string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("query syntax error at position %d: %s", e.Pos, e.Msg)
}

type node interface{ isNode() }

type andNode struct{ left, right node }
type orNode struct{ left, right node }
type notNode struct{ child node }

// termNode is a single search term. An empty field means the default fields.
type termNode struct {
	field  string
	value  string
	phrase bool
	prefix bool
	pos    int
}

// rangeNode is an inclusive date range. Empty endpoints are open.
type rangeNode struct {
	field string
	start string
	end   string
	pos   int
}

func (andNode) isNode()   {}
func (orNode) isNode()    {}
func (notNode) isNode()   {}
func (termNode) isNode()  {}
func (rangeNode) isNode() {}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokLParen
	tokRParen
	tokMinus
	tokAnd
	tokOr
	tokNot
	tokTerm
	tokRange
)

type token struct {
	kind   tokenKind
	field  string
	value  string
	start  string
	end    string
	phrase bool
	prefix bool
	pos    int
}

// Parse turns a query string into its syntax tree. An empty or blank query
// returns a nil node without error.
func Parse(q string) (node, error) {
	lx := &lexer{src: q}
	tokens, err := lx.run()
	if err != nil {
		return nil, err
	}
	p := &parser{src: q, tokens: tokens}
	if p.peek().kind == tokEOF {
		return nil, nil
	}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, p.errorf(tok.pos, "unexpected %q", describeToken(tok))
	}
	return root, nil
}

type parser struct {
	src    string
	tokens []token
	idx    int
}

func (p *parser) peek() token {
	if p.idx >= len(p.tokens) {
		return token{kind: tokEOF, pos: len(p.src)}
	}
	return p.tokens[p.idx]
}

func (p *parser) next() token {
	tok := p.peek()
	p.idx++
	return tok
}

func (p *parser) errorf(pos int, format string, args ...any) error {
	return &SyntaxError{Query: p.src, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// parseOr handles both explicit OR and plain adjacency, which is also OR.
func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		switch tok.kind {
		case tokOr:
			p.next()
		case tokLParen, tokMinus, tokNot, tokTerm, tokRange:
			// adjacency
		default:
			return left, nil
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orNode{left: left, right: right}
	}
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
		left = andNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	tok := p.peek()
	if tok.kind == tokNot || tok.kind == tokMinus {
		p.next()
		child, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notNode{child: child}, nil
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
			return nil, p.errorf(closing.pos, "expected ')'")
		}
		return inner, nil
	case tokTerm:
		return termNode{field: tok.field, value: tok.value, phrase: tok.phrase, prefix: tok.prefix, pos: tok.pos}, nil
	case tokRange:
		return rangeNode{field: tok.field, start: tok.start, end: tok.end, pos: tok.pos}, nil
	default:
		return nil, p.errorf(tok.pos, "expected a term, got %q", describeToken(tok))
	}
}

func describeToken(tok token) string {
	switch tok.kind {
	case tokEOF:
		return "end of query"
	case tokLParen:
		return "("
	case tokRParen:
		return ")"
	case tokMinus:
		return "-"
	case tokAnd:
		return "AND"
	case tokOr:
		return "OR"
	case tokNot:
		return "NOT"
	case tokRange:
		return "[" + tok.start + " TO " + tok.end + "]"
	default:
		return tok.value
	}
}

type lexer struct {
	src string
	pos int
}

func (lx *lexer) run() ([]token, error) {
	var tokens []token
	for {
		lx.skipSpace()
		if lx.pos >= len(lx.src) {
			return tokens, nil
		}
		tok, err := lx.scan()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
	}
}

func (lx *lexer) skipSpace() {
	for lx.pos < len(lx.src) && unicode.IsSpace(rune(lx.src[lx.pos])) {
		lx.pos++
	}
}

func (lx *lexer) scan() (token, error) {
	start := lx.pos
	switch c := lx.src[lx.pos]; c {
	case '(':
		lx.pos++
		return token{kind: tokLParen, pos: start}, nil
	case ')':
		lx.pos++
		return token{kind: tokRParen, pos: start}, nil
	case '-':
		lx.pos++
		return token{kind: tokMinus, pos: start}, nil
	case '"':
		value, err := lx.scanPhrase()
		if err != nil {
			return token{}, err
		}
		return token{kind: tokTerm, value: value, phrase: true, pos: start}, nil
	}

	word := lx.scanWord()
	switch word {
	case "AND":
		return token{kind: tokAnd, pos: start}, nil
	case "OR":
		return token{kind: tokOr, pos: start}, nil
	case "NOT":
		return token{kind: tokNot, pos: start}, nil
	}

	// A colon introduces a fielded term; the value may be a phrase, a
	// bracketed range, or another bare word.
	if lx.pos < len(lx.src) && lx.src[lx.pos] == ':' {
		lx.pos++
		field := strings.ToLower(word)
		if lx.pos >= len(lx.src) {
			return token{}, lx.errorf(start, "field %q has no value", field)
		}
		switch lx.src[lx.pos] {
		case '"':
			value, err := lx.scanPhrase()
			if err != nil {
				return token{}, err
			}
			return token{kind: tokTerm, field: field, value: value, phrase: true, pos: start}, nil
		case '[':
			lo, hi, err := lx.scanRange()
			if err != nil {
				return token{}, err
			}
			return token{kind: tokRange, field: field, start: lo, end: hi, pos: start}, nil
		default:
			value := lx.scanWord()
			if value == "" {
				return token{}, lx.errorf(start, "field %q has no value", field)
			}
			value, prefix := trimWildcard(value)
			return token{kind: tokTerm, field: field, value: value, prefix: prefix, pos: start}, nil
		}
	}

	if word == "" {
		return token{}, lx.errorf(start, "unexpected character %q", lx.src[start])
	}
	value, prefix := trimWildcard(word)
	return token{kind: tokTerm, value: value, prefix: prefix, pos: start}, nil
}

func (lx *lexer) scanPhrase() (string, error) {
	open := lx.pos
	lx.pos++
	from := lx.pos
	for lx.pos < len(lx.src) {
		if lx.src[lx.pos] == '"' {
			value := lx.src[from:lx.pos]
			lx.pos++
			return value, nil
		}
		lx.pos++
	}
	return "", lx.errorf(open, "unterminated phrase")
}

func (lx *lexer) scanRange() (string, string, error) {
	open := lx.pos
	lx.pos++
	from := lx.pos
	for lx.pos < len(lx.src) {
		if lx.src[lx.pos] == ']' {
			inner := lx.src[from:lx.pos]
			lx.pos++
			lo, hi, ok := strings.Cut(inner, " TO ")
			if !ok {
				return "", "", lx.errorf(open, "range must use the form [start TO end]")
			}
			return normalizeBound(lo), normalizeBound(hi), nil
		}
		lx.pos++
	}
	return "", "", lx.errorf(open, "unterminated range, expected ']'")
}

func (lx *lexer) scanWord() string {
	from := lx.pos
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		if unicode.IsSpace(rune(c)) || c == '(' || c == ')' || c == '"' || c == ':' {
			break
		}
		lx.pos++
	}
	return lx.src[from:lx.pos]
}

func (lx *lexer) errorf(pos int, format string, args ...any) error {
	return &SyntaxError{Query: lx.src, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func trimWildcard(word string) (string, bool) {
	if strings.HasSuffix(word, "*") {
		return strings.TrimRight(word, "*"), true
	}
	return word, false
}

// normalizeBound treats '*' as an open endpoint.
func normalizeBound(s string) string {
	s = strings.TrimSpace(s)
	if s == "*" {
		return ""
	}
	return s
}
