package match

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/macropower/decil/pkg/policy"
	"github.com/macropower/decil/pkg/store"
)

// ErrEmptyMacro is returned when a macro has no templates.
var ErrEmptyMacro = errors.New("macro has no templates")

var placeholderRe = regexp.MustCompile(`\$([1-9][0-9]*)`)

// word is a compiled template string: a literal, a whole `$N` placeholder,
// or a literal with embedded placeholders.
type word struct {
	literal string
	// pieces are the literal text around embedded placeholders, one more
	// than indices.
	pieces  []string
	indices []int
	whole   int
}

func compileWord(s string) word {
	locs := placeholderRe.FindAllStringSubmatchIndex(s, -1)
	if len(locs) == 0 {
		return word{literal: s}
	}

	if len(locs) == 1 && locs[0][0] == 0 && locs[0][1] == len(s) {
		n, _ := strconv.Atoi(s[locs[0][2]:locs[0][3]]) //nolint:errcheck // Matched digits.
		return word{whole: n, literal: s}
	}

	w := word{literal: s}

	last := 0
	for _, loc := range locs {
		w.pieces = append(w.pieces, s[last:loc[0]])

		n, _ := strconv.Atoi(s[loc[2]:loc[3]]) //nolint:errcheck // Matched digits.
		w.indices = append(w.indices, n)
		last = loc[1]
	}

	w.pieces = append(w.pieces, s[last:])

	return w
}

func (w word) isLiteral() bool {
	return w.whole == 0 && len(w.indices) == 0
}

func (w word) embedded() bool {
	return len(w.indices) > 0
}

func (w word) maxIndex() int {
	m := w.whole
	for _, i := range w.indices {
		m = max(m, i)
	}

	return m
}

// bindName returns every extension of b under which w renders as value.
func (w word) bindName(b Binding, value string) []Binding {
	switch {
	case w.whole != 0:
		p := policy.Name(value)
		if !b.CanAdd(w.whole, p) {
			return nil
		}

		return []Binding{b.Add(w.whole, p)}

	case w.embedded():
		return w.splits(b, value)
	}

	if w.literal != value {
		return nil
	}

	return []Binding{b}
}

// splits binds the embedded placeholders of w for every way value divides
// around the literal pieces. Each placeholder takes at least one character.
func (w word) splits(b Binding, value string) []Binding {
	rest, ok := strings.CutPrefix(value, w.pieces[0])
	if !ok {
		return nil
	}

	var out []Binding

	var walk func(i int, rest string, b Binding)
	walk = func(i int, rest string, b Binding) {
		sep := w.pieces[i+1]
		last := i == len(w.indices)-1

		for end := 1; end <= len(rest); end++ {
			tail := rest[end:]

			if (last && tail != sep) || (!last && !strings.HasPrefix(tail, sep)) {
				continue
			}

			p := policy.Name(rest[:end])
			if !b.CanAdd(w.indices[i], p) {
				continue
			}

			next := b.Add(w.indices[i], p)
			if last {
				out = append(out, next)
				continue
			}

			walk(i+1, tail[len(sep):], next)
		}
	}

	walk(0, rest, b)

	return out
}

// substitute renders w under b. It reports whether every placeholder was
// bound, and returns an error when an embedded placeholder is bound to a
// type expression.
func (w word) substitute(b Binding) (policy.Part, bool, error) {
	switch {
	case w.whole != 0:
		p, ok := b.Get(w.whole)
		return p, ok, nil

	case w.embedded():
		var (
			missing bool
			err     error
		)

		out := placeholderRe.ReplaceAllStringFunc(w.literal, func(m string) string {
			idx, _ := strconv.Atoi(m[1:]) //nolint:errcheck // Matched digits.

			p, ok := b.Get(idx)
			if !ok {
				missing = true
				return m
			}

			name, isName := p.(policy.Name)
			if !isName {
				err = fmt.Errorf("%s is bound to %s inside %s", m, p, w.literal)
				return m
			}

			return string(name)
		})

		switch {
		case err != nil:
			return nil, false, err
		case missing:
			return nil, false, nil
		}

		return policy.Name(out), true, nil
	}

	return policy.Name(w.literal), true, nil
}

// substituteName is [word.substitute] for positions that only accept names.
func (w word) substituteName(b Binding) (string, bool, error) {
	p, ok, err := w.substitute(b)
	if err != nil || !ok {
		return "", ok, err
	}

	name, isName := p.(policy.Name)
	if !isName {
		return "", false, fmt.Errorf("%s is bound to %s", w.literal, p)
	}

	return string(name), true, nil
}

// group is a compiled unordered set of template strings.
type group struct {
	byLiteral map[string]word
	words     []word
	literal   bool
}

func compileGroup(items []string) group {
	g := group{literal: true, byLiteral: make(map[string]word, len(items))}
	for _, it := range items {
		w := compileWord(it)
		g.words = append(g.words, w)
		g.byLiteral[it] = w
		if !w.isLiteral() {
			g.literal = false
		}
	}

	return g
}

func (g group) members() []string {
	out := make([]string, 0, len(g.words))
	for _, w := range g.words {
		out = append(out, w.literal)
	}

	return out
}

func (g group) maxIndex() int {
	m := 0
	for _, w := range g.words {
		m = max(m, w.maxIndex())
	}

	return m
}

func (g group) bind(b Binding, values []string) ([]Binding, error) {
	//nolint:wrapcheck // Returned unchanged to the store walk.
	return store.MatchGroup(g.members(),
		func(m string) bool { return !g.byLiteral[m].isLiteral() },
		values, b,
		func(st Binding, m, v string) []Binding { return g.byLiteral[m].bindName(st, v) },
	)
}

func (g group) substitute(b Binding) ([]string, bool, error) {
	out := make([]string, 0, len(g.words))
	for _, w := range g.words {
		s, ok, err := w.substituteName(b)
		if err != nil || !ok {
			return nil, ok, err
		}

		out = append(out, s)
	}

	return out, true, nil
}

// partTemplate is one compiled template part.
type partTemplate struct {
	cond     *policy.ConditionalType
	included group
	excluded group
	name     word
}

func compilePart(p policy.Part) partTemplate {
	switch v := p.(type) {
	case policy.Name:
		return partTemplate{name: compileWord(string(v))}
	case *policy.ConditionalType:
		return partTemplate{
			cond:     v,
			included: compileGroup(v.Included.Items()),
			excluded: compileGroup(v.Excluded.Items()),
		}
	}

	return partTemplate{}
}

func (pt partTemplate) isLiteral() bool {
	if pt.cond != nil {
		return pt.included.literal && pt.excluded.literal
	}

	return pt.name.isLiteral()
}

func (pt partTemplate) maxIndex() int {
	if pt.cond != nil {
		return max(pt.included.maxIndex(), pt.excluded.maxIndex())
	}

	return pt.name.maxIndex()
}

// bind binds the placeholders of pt against a concrete part.
func (pt partTemplate) bind(b Binding, v policy.Part) ([]Binding, error) {
	if pt.cond == nil {
		if pt.name.whole != 0 {
			if !b.CanAdd(pt.name.whole, v) {
				return nil, nil
			}

			return []Binding{b.Add(pt.name.whole, v)}, nil
		}

		name, ok := v.(policy.Name)
		if !ok {
			return nil, nil
		}

		return pt.name.bindName(b, string(name)), nil
	}

	ct, ok := v.(*policy.ConditionalType)
	if !ok || ct.All != pt.cond.All || ct.Intersect != pt.cond.Intersect {
		return nil, nil
	}

	states, err := pt.included.bind(b, ct.Included.Items())
	if err != nil {
		return nil, err
	}

	var out []Binding
	for _, st := range states {
		more, err := pt.excluded.bind(st, ct.Excluded.Items())
		if err != nil {
			return nil, err
		}

		out = append(out, more...)
	}

	return out, nil
}

func (pt partTemplate) substitute(b Binding) (policy.Part, bool, error) {
	if pt.cond == nil {
		return pt.name.substitute(b)
	}

	if pt.cond.All {
		return pt.cond, true, nil
	}

	included, ok, err := pt.included.substitute(b)
	if err != nil || !ok {
		return nil, ok, err
	}

	if pt.cond.Intersect {
		return policy.NewIntersection(included...), true, nil
	}

	excluded, ok, err := pt.excluded.substitute(b)
	if err != nil || !ok {
		return nil, ok, err
	}

	return policy.NewConditionalType(included, excluded), true, nil
}

// Template is one compiled template rule.
type Template struct {
	rule  *policy.Rule
	parts []partTemplate
	args  group
}

func compileTemplate(r *policy.Rule) *Template {
	t := &Template{rule: r, args: compileGroup(r.Args().Items())}
	for _, p := range r.Parts() {
		t.parts = append(t.parts, compilePart(p))
	}

	return t
}

// Rule returns the template rule.
func (t *Template) Rule() *policy.Rule {
	return t.rule
}

func (t *Template) maxIndex() int {
	m := t.args.maxIndex()
	for _, p := range t.parts {
		m = max(m, p.maxIndex())
	}

	return m
}

// substitute builds the concrete rule for b. complete is false when a
// placeholder is still unbound.
func (t *Template) substitute(b Binding) (*policy.Rule, bool, error) {
	parts := make([]policy.Part, 0, len(t.parts))
	for _, pt := range t.parts {
		p, ok, err := pt.substitute(b)
		if err != nil || !ok {
			return nil, ok, err
		}

		parts = append(parts, p)
	}

	args, ok, err := t.args.substitute(b)
	if err != nil || !ok {
		return nil, ok, err
	}

	return policy.New(t.rule.Kind(), parts, policy.NewSet(args...)), true, nil
}

// pattern returns the store pattern for t. Parts already bound in b become
// literals.
func (t *Template) pattern(b Binding) []store.Matcher[Binding] {
	pat := make([]store.Matcher[Binding], 0, len(t.parts)+1)

	for i, pt := range t.parts {
		if pt.isLiteral() {
			pat = append(pat, store.Literal[Binding](t.rule.Part(i).Key()))
			continue
		}

		if pt.cond == nil && pt.name.whole != 0 {
			if p, ok := b.Get(pt.name.whole); ok {
				pat = append(pat, store.Literal[Binding](p.Key()))
				continue
			}
		}

		pat = append(pat, store.Capture(func(v store.Value, st Binding) ([]Binding, error) {
			p, ok := v.(policy.Part)
			if !ok {
				return nil, nil
			}

			return pt.bind(st, p)
		}))
	}

	if t.args.literal {
		return append(pat, store.Literal[Binding](t.rule.Args().Key()))
	}

	return append(pat, store.Capture(func(v store.Value, st Binding) ([]Binding, error) {
		set, ok := v.(policy.Set)
		if !ok {
			return nil, nil
		}

		return t.args.bind(st, set.Items())
	}))
}

// Macro is a compiled macro.
type Macro struct {
	Name      string
	Templates []*Template
	Arity     int
}

// Compile compiles the template rules of a macro.
func Compile(name string, templates []*policy.Rule) (*Macro, error) {
	if len(templates) == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrEmptyMacro)
	}

	m := &Macro{Name: name}
	for _, r := range templates {
		t := compileTemplate(r)
		m.Templates = append(m.Templates, t)
		m.Arity = max(m.Arity, t.maxIndex())
	}

	return m, nil
}
