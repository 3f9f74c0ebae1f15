// Package templating renders SMS templates.
//
// Templates use Mustache tags ({{name}}, {{#section}}, {{^inverted}},
// {{{raw}}}, {{! comment}}). Placeholder names may hold any characters
// except braces, so "{{이름}}" and "{{user-name}}" are ordinary variables.
// The tag tree is compiled to a Liquid program over generated identifiers;
// user-supplied names are only ever used as map keys, never evaluated as
// Liquid expressions.
//
// Substitution is partial: a variable with no value renders back as its
// literal placeholder, so a message can be bound in two passes (warehouse
// columns first, operator values later) without losing slots.
package templating

import (
	"errors"
	"fmt"
	"log"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/osteele/liquid"
)

// ErrSyntax is returned for templates with unbalanced or unsupported tags.
var ErrSyntax = errors.New("template syntax error")

// mentionPattern matches rich-mention markup emitted by the dashboard editor.
var mentionPattern = regexp.MustCompile(`@\[(.*?)\]\(.*?\)`)

type nodeKind int

const (
	textNode     nodeKind = iota
	varNode               // {{name}}
	rawNode               // {{{name}}} or {{&name}}
	sectionNode           // {{#name}}...{{/name}}
	invertedNode          // {{^name}}...{{/name}}
)

type node struct {
	kind     nodeKind
	value    string // literal text, or the tag name
	children []node
}

// slot is one generated Liquid identifier and what it is bound to.
type slot struct {
	kind  nodeKind
	value string
}

// program is a parsed template: its top-level variables and the Liquid
// template that renders it.
type program struct {
	vars  []string
	slots []slot
	tpl   *liquid.Template
}

// Engine parses and renders templates, caching compiled programs by source.
type Engine struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*program
}

// NewEngine creates a template engine.
func NewEngine() *Engine {
	return &Engine{engine: liquid.NewEngine()}
}

var defaultEngine = NewEngine()

func (e *Engine) parse(src string) (*program, error) {
	if cached, ok := e.cache.Load(src); ok {
		return cached.(*program), nil
	}
	nodes, err := parseTags(src)
	if err != nil {
		return nil, err
	}

	p := &program{vars: []string{}}
	for _, n := range nodes {
		if n.kind == varNode {
			p.vars = append(p.vars, n.value)
		}
	}
	var b strings.Builder
	p.compile(&b, nodes)
	tpl, err := e.engine.ParseString(b.String())
	if err != nil {
		return nil, fmt.Errorf("compile template: %w", err)
	}
	p.tpl = tpl
	e.cache.Store(src, p)
	return p, nil
}

// ExtractVariables returns the top-level placeholder names in template
// order, duplicates included. Section, inverted, raw and comment tags are
// not variables. It returns nil for an empty template or one that does not
// parse, and an empty non-nil slice for a template without placeholders.
func (e *Engine) ExtractVariables(template string) []string {
	if template == "" {
		return nil
	}
	p, err := e.parse(template)
	if err != nil {
		return nil
	}
	return append([]string{}, p.vars...)
}

// Substitute renders template with data. Any variable whose value is
// missing or falsy renders as the literal "{{name}}". A nil data map returns
// the template unchanged, as does a template that fails to parse or render.
// data is never modified.
func (e *Engine) Substitute(template string, data map[string]any) string {
	if data == nil {
		return template
	}
	p, err := e.parse(template)
	if err != nil {
		return template
	}

	keep := make(map[string]bool, len(p.vars))
	for _, name := range p.vars {
		keep[name] = true
	}
	value := func(name string) any {
		v := lookup(data, name)
		if !truthy(v) && keep[name] {
			return "{{" + name + "}}"
		}
		return v
	}

	bindings := make(map[string]any, len(p.slots))
	for i, s := range p.slots {
		id := slotID(i)
		switch s.kind {
		case textNode:
			bindings[id] = s.value
		case varNode, rawNode:
			bindings[id] = value(s.value)
		case sectionNode, invertedNode:
			bindings[id] = sectionTruthy(value(s.value))
		}
	}

	out, err := p.tpl.RenderString(bindings)
	if err != nil {
		log.Printf("[templating] render error: %v", err)
		return template
	}
	return out
}

// ExtractVariables uses the package default engine.
func ExtractVariables(template string) []string { return defaultEngine.ExtractVariables(template) }

// Substitute uses the package default engine.
func Substitute(template string, data map[string]any) string {
	return defaultEngine.Substitute(template, data)
}

// ToPlainText strips mention markup: "@[visible](hidden)" becomes "visible".
func ToPlainText(template string) string {
	return mentionPattern.ReplaceAllString(template, "$1")
}

// parseTags splits src into a Mustache tag tree.
func parseTags(src string) ([]node, error) {
	type frame struct {
		kind  nodeKind
		name  string
		nodes []node
	}
	stack := []*frame{{}}
	add := func(n node) {
		top := stack[len(stack)-1]
		top.nodes = append(top.nodes, n)
	}

	rest := src
	for rest != "" {
		open := strings.Index(rest, "{{")
		if open < 0 {
			add(node{kind: textNode, value: rest})
			break
		}
		if open > 0 {
			add(node{kind: textNode, value: rest[:open]})
		}
		rest = rest[open+2:]

		closer := "}}"
		triple := strings.HasPrefix(rest, "{")
		if triple {
			closer = "}}}"
			rest = rest[1:]
		}
		end := strings.Index(rest, closer)
		if end < 0 {
			return nil, fmt.Errorf("%w: unclosed tag at offset %d", ErrSyntax, len(src)-len(rest))
		}
		tag := strings.TrimSpace(rest[:end])
		rest = rest[end+len(closer):]

		var sigil byte
		if triple {
			sigil = '&'
		} else if tag != "" && strings.IndexByte("#^/!>&=", tag[0]) >= 0 {
			sigil = tag[0]
			tag = strings.TrimSpace(tag[1:])
		}
		switch sigil {
		case '!':
			continue
		case '=':
			return nil, fmt.Errorf("%w: delimiter changes are not supported", ErrSyntax)
		}
		if tag == "" {
			return nil, fmt.Errorf("%w: empty tag", ErrSyntax)
		}

		switch sigil {
		case '>':
			// partials have nothing to resolve against and render empty
		case '&':
			add(node{kind: rawNode, value: tag})
		case '#':
			stack = append(stack, &frame{kind: sectionNode, name: tag})
		case '^':
			stack = append(stack, &frame{kind: invertedNode, name: tag})
		case '/':
			top := stack[len(stack)-1]
			if len(stack) == 1 || top.name != tag {
				return nil, fmt.Errorf("%w: unopened section %q", ErrSyntax, tag)
			}
			stack = stack[:len(stack)-1]
			add(node{kind: top.kind, value: top.name, children: top.nodes})
		default:
			add(node{kind: varNode, value: tag})
		}
	}
	if len(stack) > 1 {
		return nil, fmt.Errorf("%w: unclosed section %q", ErrSyntax, stack[len(stack)-1].name)
	}
	return stack[0].nodes, nil
}

// compile writes the Liquid form of nodes, recording one slot per
// generated identifier.
func (p *program) compile(b *strings.Builder, nodes []node) {
	for _, n := range nodes {
		id := slotID(len(p.slots))
		p.slots = append(p.slots, slot{kind: n.kind, value: n.value})
		switch n.kind {
		case sectionNode:
			b.WriteString("{% if " + id + " %}")
			p.compile(b, n.children)
			b.WriteString("{% endif %}")
		case invertedNode:
			b.WriteString("{% unless " + id + " %}")
			p.compile(b, n.children)
			b.WriteString("{% endunless %}")
		default:
			b.WriteString("{{ " + id + " }}")
		}
	}
}

func slotID(i int) string { return "s" + strconv.Itoa(i) }

// truthy mirrors the dashboard's notion of a usable value.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0 && !math.IsNaN(t)
	case float32:
		return t != 0 && !math.IsNaN(float64(t))
	case int:
		return t != 0
	case int64:
		return t != 0
	case int32:
		return t != 0
	default:
		return true
	}
}

// sectionTruthy is truthy, except that an empty list also hides a section.
func sectionTruthy(v any) bool {
	if !truthy(v) {
		return false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		return rv.Len() > 0
	}
	return true
}

func lookup(data map[string]any, path string) any {
	if v, ok := data[path]; ok {
		return v
	}
	var cur any = data
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[part]
		if !ok {
			return nil
		}
	}
	return cur
}
