package runtime

import (
	"sort"
	"strconv"
	"strings"

	"github.com/wippyai/nix-runtime/engine"
	"github.com/wippyai/nix-runtime/errors"
)

// DefaultMaxDepth bounds how deep Display descends into lists and sets.
const DefaultMaxDepth = 16

// DisplayOptions controls rendering.
type DisplayOptions struct {
	// MaxDepth is the nesting level at which containers are elided as «...».
	// Zero means DefaultMaxDepth.
	MaxDepth int
}

// Display forces the value and renders it as text.
// A string at the top level is returned raw; everything else is printed the
// way the nix command prints values.
func (rv *ReadyValue) Display(state *State) (string, error) {
	return rv.DisplayWith(state, DisplayOptions{})
}

// DisplayWith is Display with explicit options.
func (rv *ReadyValue) DisplayWith(state *State, opts DisplayOptions) (string, error) {
	if err := rv.Force(state); err != nil {
		return "", err
	}
	if rv.typ == engine.TypeString {
		return rv.StringValue()
	}

	p := &printer{state: state, maxDepth: opts.MaxDepth}
	if p.maxDepth <= 0 {
		p.maxDepth = DefaultMaxDepth
	}
	if err := p.print(rv, 0); err != nil {
		return "", err
	}
	return p.b.String(), nil
}

type printer struct {
	state    *State
	b        strings.Builder
	maxDepth int
}

func (p *printer) print(rv *ReadyValue, depth int) error {
	switch rv.typ {
	case engine.TypeString:
		s, err := rv.StringValue()
		if err != nil {
			return err
		}
		p.b.WriteString(quote(s))
	case engine.TypeInt:
		n, err := rv.Int()
		if err != nil {
			return err
		}
		p.b.WriteString(strconv.FormatInt(n, 10))
	case engine.TypeFloat:
		f, err := rv.Float()
		if err != nil {
			return err
		}
		p.b.WriteString(strconv.FormatFloat(f, 'g', 6, 64))
	case engine.TypeBool:
		v, err := rv.Bool()
		if err != nil {
			return err
		}
		p.b.WriteString(strconv.FormatBool(v))
	case engine.TypeNull:
		p.b.WriteString("null")
	case engine.TypePath:
		s, err := rv.Path()
		if err != nil {
			return err
		}
		p.b.WriteString(s)
	case engine.TypeFunction:
		p.b.WriteString("«lambda»")
	case engine.TypeExternal:
		p.b.WriteString("«external»")
	case engine.TypeList:
		if depth >= p.maxDepth {
			p.b.WriteString("«...»")
			return nil
		}
		return p.list(rv, depth)
	case engine.TypeAttrs:
		if depth >= p.maxDepth {
			p.b.WriteString("«...»")
			return nil
		}
		return p.attrs(rv, depth)
	default:
		return errors.Unsupported(errors.PhaseDisplay, "value of type "+rv.typ.String())
	}
	return nil
}

// nested forces and prints an element, then releases it.
func (p *printer) nested(child *ReadyValue, depth int) error {
	err := child.Force(p.state)
	if err == nil {
		err = p.print(child, depth)
	}
	if cerr := child.Close(); err == nil {
		err = cerr
	}
	return err
}

func (p *printer) list(rv *ReadyValue, depth int) error {
	n, err := rv.Len()
	if err != nil {
		return err
	}
	p.b.WriteString("[ ")
	for i := 0; i < n; i++ {
		child, err := rv.ListElem(p.state, i)
		if err != nil {
			return err
		}
		if err := p.nested(child, depth+1); err != nil {
			return err
		}
		p.b.WriteByte(' ')
	}
	p.b.WriteByte(']')
	return nil
}

func (p *printer) attrs(rv *ReadyValue, depth int) error {
	if err := rv.s.usable(p.state, errors.PhaseDisplay); err != nil {
		return err
	}
	n, err := rv.Len()
	if err != nil {
		return err
	}

	type entry struct {
		value *ReadyValue
		name  string
	}
	entries := make([]entry, 0, n)
	defer func() {
		for _, e := range entries {
			if e.value != nil {
				_ = e.value.Close()
			}
		}
	}()
	for i := 0; i < n; i++ {
		child, name, err := rv.attrAt(p.state, i)
		if err != nil {
			return err
		}
		entries = append(entries, entry{value: child, name: name})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })

	p.b.WriteString("{ ")
	for i := range entries {
		p.b.WriteString(attrName(entries[i].name))
		p.b.WriteString(" = ")
		child := entries[i].value
		entries[i].value = nil
		if err := p.nested(child, depth+1); err != nil {
			return err
		}
		p.b.WriteString("; ")
	}
	p.b.WriteByte('}')
	return nil
}

var keywords = map[string]bool{
	"assert": true, "else": true, "if": true, "in": true, "inherit": true,
	"let": true, "or": true, "rec": true, "then": true, "with": true,
}

// attrName quotes names that are not plain identifiers.
func attrName(name string) string {
	if isIdentifier(name) && !keywords[name] {
		return name
	}
	return quote(name)
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case i > 0 && ((r >= '0' && r <= '9') || r == '\'' || r == '-'):
		default:
			return false
		}
	}
	return true
}

// quote renders s as a double-quoted string literal.
func quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '$':
			if i+1 < len(s) && s[i+1] == '{' {
				b.WriteString(`\$`)
			} else {
				b.WriteByte('$')
			}
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}
