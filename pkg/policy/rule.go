package policy

import (
	"slices"
	"strconv"
	"strings"
)

// Rule is one normalized policy statement. Rules are immutable once created.
type Rule struct {
	macro string
	key   string
	parts []Part
	args  Set
	kind  Kind
}

// New creates a [Rule] of the given [Kind].
func New(kind Kind, parts []Part, args Set) *Rule {
	r := &Rule{
		kind:  kind,
		parts: slices.Clone(parts),
		args:  args,
	}
	r.key = r.computeKey()

	return r
}

// NewMacroCall creates a synthesized macro call `name(args...)`.
// Argument order is significant.
func NewMacroCall(name string, args ...string) *Rule {
	r := &Rule{
		kind:  KindMacro,
		macro: name,
		parts: Names(args...),
	}
	r.key = r.computeKey()

	return r
}

// Kind returns the statement kind.
func (r *Rule) Kind() Kind { return r.kind }

// Macro returns the macro name of a [KindMacro] rule.
func (r *Rule) Macro() string { return r.macro }

// IsMacro reports whether the rule is a synthesized macro call.
func (r *Rule) IsMacro() bool { return r.kind == KindMacro }

// Parts returns the positional parts. The returned slice must not be modified.
func (r *Rule) Parts() []Part { return r.parts }

// Part returns the i-th part.
func (r *Rule) Part(i int) Part { return r.parts[i] }

// Args returns the unordered arguments.
func (r *Rule) Args() Set { return r.args }

// Type returns the statement keyword, or the macro name for macro calls.
func (r *Rule) Type() string {
	if r.kind == KindMacro {
		return r.macro
	}

	return r.kind.String()
}

// Key returns the canonical identity of the rule.
func (r *Rule) Key() string { return r.key }

// Equal reports whether both rules are structurally equal.
func (r *Rule) Equal(o *Rule) bool {
	return r.key == o.key
}

// WithArgs returns a copy of the rule with its arguments replaced.
func (r *Rule) WithArgs(args Set) *Rule {
	if r.kind == KindMacro {
		return r
	}

	return New(r.kind, r.parts, args)
}

// WithParts returns a copy of the rule with its parts replaced.
func (r *Rule) WithParts(parts []Part) *Rule {
	if r.kind == KindMacro {
		return NewMacroCall(r.macro, partStrings(parts)...)
	}

	return New(r.kind, parts, r.args)
}

// Path returns the index path of the rule: the kind and arity, every part
// key in order, then the argument set key.
func (r *Rule) Path() []string {
	path := make([]string, 0, len(r.parts)+2)
	path = append(path, r.Head())
	for _, p := range r.parts {
		path = append(path, p.Key())
	}

	return append(path, r.args.Key())
}

// Head returns the first element of [Rule.Path]. Macro calls use a `macro:`
// prefix and never share a head with a statement.
func (r *Rule) Head() string {
	if r.kind == KindMacro {
		return Head("macro:"+r.macro, len(r.parts))
	}

	return Head(r.kind.String(), len(r.parts))
}

// IsProcessSigchld reports whether r is `allow a b:process sigchld;`.
// Macro bodies emit it conditionally on their arguments, so it has no
// template form.
func (r *Rule) IsProcessSigchld() bool {
	return r.kind == KindAllow &&
		len(r.parts) == 3 &&
		r.parts[2].Key() == "process" &&
		r.args.Len() == 1 &&
		r.args.Contains("sigchld")
}

// Head builds the first path element for a statement type and arity.
func Head(typ string, arity int) string {
	return typ + "/" + strconv.Itoa(arity)
}

func (r *Rule) computeKey() string {
	return strings.Join(r.Path(), "\x1e")
}

func partStrings(parts []Part) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, p.String())
	}

	return out
}
