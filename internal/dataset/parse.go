package dataset

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/ignite/campaign-dashboard/internal/domain"
)

// ParseError reports where FromSQL stopped understanding its input.
type ParseError struct {
	Offset int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("dataset: parse error at offset %d: %s", e.Offset, e.Msg)
}

// FromSQL parses SQL produced by BuildJoinSQL back into a Dataset.
//
// An empty string yields (nil, nil). Input that deviates from the generated
// grammar yields the tables recovered so far together with a *ParseError;
// the returned dataset is never nil in that case.
func FromSQL(sql string) (*domain.Dataset, error) {
	if strings.TrimSpace(sql) == "" {
		return nil, nil
	}
	p := &parser{lex: newLexer(sql)}
	p.next()
	d := &domain.Dataset{Tables: []domain.TableSpec{}}
	err := p.query(d)
	return d, err
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWord
	tokString
	tokIdent
	tokPunct
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

type lexer struct {
	src string
	pos int
}

func newLexer(src string) *lexer { return &lexer{src: src} }

func (l *lexer) scan() (token, error) {
	for l.pos < len(l.src) && unicode.IsSpace(rune(l.src[l.pos])) {
		l.pos++
	}
	start := l.pos
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: start}, nil
	}
	c := l.src[l.pos]
	switch {
	case c == '\'' || c == '"':
		text, err := l.quoted(c)
		if err != nil {
			return token{}, err
		}
		kind := tokString
		if c == '"' {
			kind = tokIdent
		}
		return token{kind: kind, text: text, pos: start}, nil
	case c == '_' || isAlnum(c):
		for l.pos < len(l.src) && (l.src[l.pos] == '_' || isAlnum(l.src[l.pos])) {
			l.pos++
		}
		return token{kind: tokWord, text: l.src[start:l.pos], pos: start}, nil
	case strings.IndexByte("()[],.=*;", c) >= 0:
		l.pos++
		return token{kind: tokPunct, text: string(c), pos: start}, nil
	default:
		return token{}, &ParseError{Offset: start, Msg: fmt.Sprintf("unexpected character %q", c)}
	}
}

// quoted reads a quote-delimited token where a doubled quote is an escape.
func (l *lexer) quoted(q byte) (string, error) {
	start := l.pos
	l.pos++
	var b strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == q {
			if l.pos+1 < len(l.src) && l.src[l.pos+1] == q {
				b.WriteByte(q)
				l.pos += 2
				continue
			}
			l.pos++
			return b.String(), nil
		}
		b.WriteByte(c)
		l.pos++
	}
	return "", &ParseError{Offset: start, Msg: "unterminated quoted text"}
}

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

type parser struct {
	lex *lexer
	tok token
	err error
}

func (p *parser) next() {
	if p.err != nil {
		return
	}
	tok, err := p.lex.scan()
	if err != nil {
		p.err = err
		p.tok = token{kind: tokEOF, pos: p.lex.pos}
		return
	}
	p.tok = tok
}

func (p *parser) fail(format string, args ...any) error {
	if p.err != nil {
		return p.err
	}
	return &ParseError{Offset: p.tok.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) isKeyword(kw string) bool {
	return p.tok.kind == tokWord && strings.EqualFold(p.tok.text, kw)
}

func (p *parser) keyword(kw string) error {
	if !p.isKeyword(kw) {
		return p.fail("expected %s, found %q", kw, p.tok.text)
	}
	p.next()
	return p.err
}

func (p *parser) punct(s string) error {
	if p.tok.kind != tokPunct || p.tok.text != s {
		return p.fail("expected %q, found %q", s, p.tok.text)
	}
	p.next()
	return p.err
}

// query := SELECT '*' FROM table { JOIN table } [';'] EOF
func (p *parser) query(d *domain.Dataset) error {
	if err := p.keyword("SELECT"); err != nil {
		return err
	}
	if err := p.punct("*"); err != nil {
		return err
	}
	if err := p.keyword("FROM"); err != nil {
		return err
	}
	if err := p.table(d); err != nil {
		return err
	}
	for p.isKeyword("JOIN") {
		p.next()
		if err := p.table(d); err != nil {
			return err
		}
	}
	if p.tok.kind == tokPunct && p.tok.text == ";" {
		p.next()
	}
	if p.tok.kind != tokEOF {
		return p.fail("unexpected %q after join list", p.tok.text)
	}
	return p.err
}

// table := read_parquet '(' '[' [string {',' string}] ']' ')' AS alias [ON '(' cond {AND cond} ')']
func (p *parser) table(d *domain.Dataset) error {
	if err := p.keyword("read_parquet"); err != nil {
		return err
	}
	if err := p.punct("("); err != nil {
		return err
	}
	if err := p.punct("["); err != nil {
		return err
	}
	files := []string{}
	for p.tok.kind == tokString {
		files = append(files, p.tok.text)
		p.next()
		if p.tok.kind == tokPunct && p.tok.text == "," {
			p.next()
			continue
		}
		break
	}
	if err := p.punct("]"); err != nil {
		return err
	}
	if err := p.punct(")"); err != nil {
		return err
	}
	if err := p.keyword("AS"); err != nil {
		return err
	}
	if _, err := p.alias(); err != nil {
		return err
	}

	d.Tables = append(d.Tables, domain.TableSpec{Files: files, Conditions: []domain.JoinCondition{}})
	cur := &d.Tables[len(d.Tables)-1]

	if !p.isKeyword("ON") {
		return nil
	}
	p.next()
	if err := p.punct("("); err != nil {
		return err
	}
	for {
		cond, err := p.condition()
		if err != nil {
			return err
		}
		cur.Conditions = append(cur.Conditions, cond)
		if !p.isKeyword("AND") {
			break
		}
		p.next()
	}
	return p.punct(")")
}

// alias := t_<n>
func (p *parser) alias() (int, error) {
	if p.tok.kind != tokWord || !strings.HasPrefix(p.tok.text, "t_") {
		return 0, p.fail("expected table alias, found %q", p.tok.text)
	}
	n, err := strconv.Atoi(strings.TrimPrefix(p.tok.text, "t_"))
	if err != nil {
		return 0, p.fail("malformed table alias %q", p.tok.text)
	}
	p.next()
	return n, p.err
}

// column := ident | "quoted ident"
func (p *parser) column() (string, error) {
	if p.tok.kind != tokWord && p.tok.kind != tokIdent {
		return "", p.fail("expected column name, found %q", p.tok.text)
	}
	name := p.tok.text
	p.next()
	return name, p.err
}

// cond := alias '.' column '=' alias '.' column
func (p *parser) condition() (domain.JoinCondition, error) {
	var c domain.JoinCondition
	src, err := p.alias()
	if err != nil {
		return c, err
	}
	if err := p.punct("."); err != nil {
		return c, err
	}
	if c.SourceColumn, err = p.column(); err != nil {
		return c, err
	}
	if err := p.punct("="); err != nil {
		return c, err
	}
	if _, err := p.alias(); err != nil {
		return c, err
	}
	if err := p.punct("."); err != nil {
		return c, err
	}
	if c.TargetColumn, err = p.column(); err != nil {
		return c, err
	}
	c.SourceTable = strconv.Itoa(src)
	return c, nil
}
