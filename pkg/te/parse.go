package te

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/macropower/decil/pkg/policy"
)

var (
	// ErrSyntax is returned for malformed statements.
	ErrSyntax = errors.New("te syntax error")
	// ErrUnsupportedStatement is returned for statements that have no rule
	// form, including macro calls.
	ErrUnsupportedStatement = errors.New("unsupported statement")
)

// Parse parses every statement in src and returns the resulting rules in
// statement order.
func Parse(src string) ([]*policy.Rule, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}

	p := &parser{toks: toks}

	var rules []*policy.Rule
	for !p.done() {
		rs, err := p.statement()
		if err != nil {
			return nil, err
		}

		rules = append(rules, rs...)
	}

	return rules, nil
}

// MustParse is like [Parse] but panics on error.
func MustParse(src string) []*policy.Rule {
	rules, err := Parse(src)
	if err != nil {
		panic(err)
	}

	return rules
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) done() bool {
	return p.pos >= len(p.toks)
}

func (p *parser) line() int {
	if p.done() {
		if len(p.toks) == 0 {
			return 1
		}

		return p.toks[len(p.toks)-1].line
	}

	return p.toks[p.pos].line
}

func (p *parser) errorf(err error, format string, args ...any) error {
	return fmt.Errorf("%w: line %d: %s", err, p.line(), fmt.Sprintf(format, args...))
}

func (p *parser) peek() (token, bool) {
	if p.done() {
		return token{}, false
	}

	return p.toks[p.pos], true
}

func (p *parser) next() (token, error) {
	if p.done() {
		return token{}, p.errorf(ErrSyntax, "unexpected end of input")
	}

	t := p.toks[p.pos]
	p.pos++

	return t, nil
}

func (p *parser) expect(punct string) error {
	t, err := p.next()
	if err != nil {
		return err
	}

	if !t.is(punct) {
		return p.errorf(ErrSyntax, "expected %q, got %q", punct, t)
	}

	return nil
}

func (p *parser) word() (string, error) {
	t, err := p.next()
	if err != nil {
		return "", err
	}

	if t.kind != tokWord {
		return "", p.errorf(ErrSyntax, "expected a name, got %q", t)
	}

	return t.text, nil
}

// skip advances past the end of the current statement.
func (p *parser) skip() {
	depth := 0
	for !p.done() {
		t := p.toks[p.pos]
		p.pos++

		switch {
		case t.is("("):
			depth++
		case t.is(")"):
			depth--
			if depth <= 0 {
				if n, ok := p.peek(); ok && n.is(";") {
					p.pos++
				}

				return
			}
		case t.is(";") && depth == 0:
			return
		}
	}
}

func (p *parser) statement() ([]*policy.Rule, error) {
	kw, err := p.word()
	if err != nil {
		return nil, err
	}

	if t, ok := p.peek(); ok && t.is("(") {
		p.skip()
		return nil, p.errorf(ErrUnsupportedStatement, "macro call %s", kw)
	}

	switch kw {
	case "allow", "auditallow", "dontaudit", "neverallow":
		return p.accessVector(kw)
	case "allowxperm", "dontauditxperm", "neverallowxperm":
		return p.extendedPerm(kw)
	case "type_transition":
		return p.typeTransition()
	case "type":
		return p.typeDecl()
	case "typeattribute":
		return p.typeAttribute()
	case "attribute", "permissive":
		return p.single(kw)
	case "expandattribute":
		return p.expandAttribute()
	}

	p.skip()

	return nil, p.errorf(ErrUnsupportedStatement, "%s", kw)
}

// accessVector parses `kw src tgt:classes perms;`.
func (p *parser) accessVector(kw string) ([]*policy.Rule, error) {
	kind, err := policy.ParseKind(kw)
	if err != nil {
		return nil, err //nolint:wrapcheck // Already describes the keyword.
	}

	src, tgt, classes, err := p.target()
	if err != nil {
		return nil, err
	}

	perms, err := p.nameSet()
	if err != nil {
		return nil, err
	}

	err = p.expect(";")
	if err != nil {
		return nil, err
	}

	rules := make([]*policy.Rule, 0, len(classes))
	for _, class := range classes {
		rules = append(rules, policy.New(kind, []policy.Part{src, tgt, policy.Name(class)}, policy.NewSet(perms...)))
	}

	return rules, nil
}

// extendedPerm parses `kw src tgt:classes operation values;`.
func (p *parser) extendedPerm(kw string) ([]*policy.Rule, error) {
	kind, err := policy.ParseKind(kw)
	if err != nil {
		return nil, err //nolint:wrapcheck // Already describes the keyword.
	}

	src, tgt, classes, err := p.target()
	if err != nil {
		return nil, err
	}

	op, err := p.word()
	if err != nil {
		return nil, err
	}

	raw, err := p.nameSet()
	if err != nil {
		return nil, err
	}

	err = p.expect(";")
	if err != nil {
		return nil, err
	}

	var values []string
	for _, v := range raw {
		expanded, err := expandIoctl(v)
		if err != nil {
			return nil, p.errorf(ErrSyntax, "%v", err)
		}

		values = append(values, expanded...)
	}

	rules := make([]*policy.Rule, 0, len(classes))
	for _, class := range classes {
		rules = append(rules, policy.New(kind,
			[]policy.Part{src, tgt, policy.Name(class), policy.Name(op)},
			policy.NewSet(values...),
		))
	}

	return rules, nil
}

// expandIoctl normalizes a hex value or enumerates a `lo-hi` range. Other
// values, such as placeholders, are returned unchanged.
func expandIoctl(v string) ([]string, error) {
	lo, hi, isRange := strings.Cut(v, "-")
	if !isRange {
		norm, err := policy.NormalizeIoctl(v)
		if err != nil {
			return []string{v}, nil //nolint:nilerr // Not a number.
		}

		return []string{norm}, nil
	}

	from, err := strconv.ParseUint(trimHex(lo), 16, 32)
	if err != nil {
		return nil, fmt.Errorf("ioctl range %q: %w", v, err)
	}

	to, err := strconv.ParseUint(trimHex(hi), 16, 32)
	if err != nil {
		return nil, fmt.Errorf("ioctl range %q: %w", v, err)
	}

	if to < from {
		return nil, fmt.Errorf("ioctl range %q is reversed", v)
	}

	out := make([]string, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, "0x"+strconv.FormatUint(i, 16))
	}

	return out, nil
}

func trimHex(s string) string {
	return strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
}

// typeTransition parses `type_transition src tgt:classes result ["name"];`.
func (p *parser) typeTransition() ([]*policy.Rule, error) {
	src, tgt, classes, err := p.target()
	if err != nil {
		return nil, err
	}

	result, err := p.word()
	if err != nil {
		return nil, err
	}

	var name policy.Set
	if t, ok := p.peek(); ok && t.kind == tokString {
		p.pos++
		name = policy.NewSet(t.text)
	}

	err = p.expect(";")
	if err != nil {
		return nil, err
	}

	rules := make([]*policy.Rule, 0, len(classes))
	for _, class := range classes {
		rules = append(rules, policy.New(policy.KindTypeTransition,
			[]policy.Part{src, tgt, policy.Name(class), policy.Name(result)},
			name,
		))
	}

	return rules, nil
}

// typeDecl parses `type name[, attr...];` into one typeattribute rule per
// attribute.
func (p *parser) typeDecl() ([]*policy.Rule, error) {
	name, err := p.word()
	if err != nil {
		return nil, err
	}

	attrs, err := p.commaList()
	if err != nil {
		return nil, err
	}

	rules := make([]*policy.Rule, 0, len(attrs))
	for _, attr := range attrs {
		rules = append(rules, policy.New(policy.KindTypeAttribute, policy.Names(name, attr), policy.Set{}))
	}

	return rules, nil
}

// typeAttribute parses `typeattribute type attr[, attr...];`.
func (p *parser) typeAttribute() ([]*policy.Rule, error) {
	name, err := p.word()
	if err != nil {
		return nil, err
	}

	first, err := p.word()
	if err != nil {
		return nil, err
	}

	rest, err := p.commaList()
	if err != nil {
		return nil, err
	}

	attrs := append([]string{first}, rest...)

	rules := make([]*policy.Rule, 0, len(attrs))
	for _, attr := range attrs {
		rules = append(rules, policy.New(policy.KindTypeAttribute, policy.Names(name, attr), policy.Set{}))
	}

	return rules, nil
}

// commaList parses `[, a, b];`.
func (p *parser) commaList() ([]string, error) {
	var out []string

	for {
		t, err := p.next()
		if err != nil {
			return nil, err
		}

		switch {
		case t.is(";"):
			return out, nil

		case t.is(","):
			w, err := p.word()
			if err != nil {
				return nil, err
			}

			out = append(out, w)

		default:
			return nil, p.errorf(ErrSyntax, "expected ',' or ';', got %q", t)
		}
	}
}

// single parses `kw name;`.
func (p *parser) single(kw string) ([]*policy.Rule, error) {
	kind, err := policy.ParseKind(kw)
	if err != nil {
		return nil, err //nolint:wrapcheck // Already describes the keyword.
	}

	name, err := p.word()
	if err != nil {
		return nil, err
	}

	err = p.expect(";")
	if err != nil {
		return nil, err
	}

	return []*policy.Rule{policy.New(kind, policy.Names(name), policy.Set{})}, nil
}

// expandAttribute parses `expandattribute name true|false;`.
func (p *parser) expandAttribute() ([]*policy.Rule, error) {
	name, err := p.word()
	if err != nil {
		return nil, err
	}

	value, err := p.word()
	if err != nil {
		return nil, err
	}

	err = p.expect(";")
	if err != nil {
		return nil, err
	}

	return []*policy.Rule{policy.New(policy.KindExpandAttribute, policy.Names(name, value), policy.Set{})}, nil
}

// target parses `src tgt:classes`.
func (p *parser) target() (policy.Part, policy.Part, []string, error) {
	src, err := p.typeExpr()
	if err != nil {
		return nil, nil, nil, err
	}

	tgt, err := p.typeExpr()
	if err != nil {
		return nil, nil, nil, err
	}

	err = p.expect(":")
	if err != nil {
		return nil, nil, nil, err
	}

	classes, err := p.nameSet()
	if err != nil {
		return nil, nil, nil, err
	}

	return src, tgt, classes, nil
}

// typeExpr parses a name, `*`, `~expr`, `{ a b -c }` or `{ a && b }`.
func (p *parser) typeExpr() (policy.Part, error) {
	t, err := p.next()
	if err != nil {
		return nil, err
	}

	switch {
	case t.kind == tokWord && t.text == "*":
		return policy.Wildcard(), nil

	case t.kind == tokWord:
		return policy.Name(t.text), nil

	case t.is("~"):
		inner, err := p.typeExpr()
		if err != nil {
			return nil, err
		}

		switch v := inner.(type) {
		case policy.Name:
			return policy.NewConditionalType(nil, []string{string(v)}), nil
		case *policy.ConditionalType:
			if v.All || !v.Excluded.Empty() {
				return nil, p.errorf(ErrUnsupportedStatement, "complement of %s", v)
			}

			return policy.NewConditionalType(nil, v.Included.Items()), nil
		}

	case t.is("{"):
		var (
			included, excluded []string
			intersect          bool
		)

		for {
			w, err := p.next()
			if err != nil {
				return nil, err
			}

			if w.is("}") {
				break
			}

			if w.kind != tokWord || w.text == "*" {
				return nil, p.errorf(ErrUnsupportedStatement, "type set member %q", w)
			}

			if w.text == "&&" {
				intersect = true
				continue
			}

			if name, ok := strings.CutPrefix(w.text, "-"); ok {
				excluded = append(excluded, name)
			} else {
				included = append(included, w.text)
			}
		}

		if len(included) == 0 {
			return nil, p.errorf(ErrSyntax, "empty type set")
		}

		if intersect {
			if len(included) < 2 || len(excluded) > 0 {
				return nil, p.errorf(ErrUnsupportedStatement, "intersection %v", included)
			}

			return policy.NewIntersection(included...), nil
		}

		if len(included) == 1 && len(excluded) == 0 {
			return policy.Name(included[0]), nil
		}

		return policy.NewConditionalType(included, excluded), nil
	}

	return nil, p.errorf(ErrSyntax, "expected a type, got %q", t)
}

// nameSet parses a name or `{ a b }`.
func (p *parser) nameSet() ([]string, error) {
	t, err := p.next()
	if err != nil {
		return nil, err
	}

	switch {
	case t.kind == tokWord && t.text != "*":
		return []string{t.text}, nil

	case t.is("{"):
		var out []string

		for {
			w, err := p.next()
			if err != nil {
				return nil, err
			}

			if w.is("}") {
				break
			}

			if w.kind != tokWord || w.text == "*" || strings.HasPrefix(w.text, "-") {
				return nil, p.errorf(ErrUnsupportedStatement, "set member %q", w)
			}

			out = append(out, w.text)
		}

		if len(out) == 0 {
			return nil, p.errorf(ErrSyntax, "empty set")
		}

		return out, nil
	}

	return nil, p.errorf(ErrUnsupportedStatement, "set %q", t)
}
