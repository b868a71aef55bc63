package cil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/macropower/decil/pkg/log"
	"github.com/macropower/decil/pkg/policy"
)

// GeneratedPrefix is the name prefix of attributes generated by the policy
// compiler for type expressions.
const GeneratedPrefix = "base_typeattr_"

var (
	// ErrArity is returned when a statement has the wrong number of elements.
	ErrArity = errors.New("wrong statement arity")
	// ErrUnsupportedExpression is returned for expressions whose shape has no
	// known source form.
	ErrUnsupportedExpression = errors.New("unsupported expression")
)

// droppedKeywords have no equivalent in the source policy.
var droppedKeywords = map[string]bool{
	"category":            true,
	"categoryorder":       true,
	"class":               true,
	"classcommon":         true,
	"classorder":          true,
	"common":              true,
	"fsuse":               true,
	"handleunknown":       true,
	"mls":                 true,
	"mlsconstrain":        true,
	"mlsvalidatetrans":    true,
	"policycap":           true,
	"role":                true,
	"roleattribute":       true,
	"roleattributeset":    true,
	"roletype":            true,
	"sensitivity":         true,
	"sensitivitycategory": true,
	"sensitivityorder":    true,
	"sid":                 true,
	"sidcontext":          true,
	"sidorder":            true,
	"typealias":           true,
	"typealiasactual":     true,
	"user":                true,
	"userlevel":           true,
	"userrange":           true,
	"userrole":            true,
}

// IsGenerated reports whether name is a compiler-generated attribute.
func IsGenerated(name string) bool {
	return strings.HasPrefix(name, GeneratedPrefix)
}

// Result holds the normalized rules of one or more CIL inputs.
type Result struct {
	// Rules are the matchable rules, in input order.
	Rules []*policy.Rule
	// Genfs are the `genfscon` rules, in input order.
	Genfs []*policy.Rule
	// Types are the names declared with `(type x)`, in input order.
	Types []string
}

// Normalizer converts CIL statements into rules. Statements may be added in
// any order; generated attribute references are resolved by [Normalizer.Result].
type Normalizer struct {
	conditionals map[string]*policy.ConditionalType
	warned       map[string]struct{}
	declared     map[string]struct{}
	result       Result
}

// NewNormalizer creates a new [Normalizer].
func NewNormalizer() *Normalizer {
	return &Normalizer{
		conditionals: make(map[string]*policy.ConditionalType),
		warned:       make(map[string]struct{}),
		declared:     make(map[string]struct{}),
	}
}

// Normalize converts all statements and returns the substituted result.
func Normalize(ctx context.Context, stmts []Node) (*Result, error) {
	n := NewNormalizer()
	for _, stmt := range stmts {
		err := n.Add(ctx, stmt)
		if err != nil {
			return nil, err
		}
	}

	return n.Result(ctx), nil
}

// Add converts one top-level statement.
func (n *Normalizer) Add(ctx context.Context, stmt Node) error {
	err := n.add(ctx, stmt)
	if err != nil {
		return fmt.Errorf("line %d: %s: %w", stmt.Line, stmt, err)
	}

	return nil
}

func (n *Normalizer) add(ctx context.Context, stmt Node) error {
	if !stmt.IsList() || len(stmt.List) == 0 || stmt.List[0].IsList() {
		return fmt.Errorf("%w: expected a keyword", ErrSyntax)
	}

	keyword := stmt.List[0].Atom
	args := stmt.List[1:]

	if droppedKeywords[keyword] {
		return nil
	}

	switch keyword {
	case "allow", "auditallow", "dontaudit", "neverallow":
		return n.accessVector(keyword, args)

	case "allowx", "dontauditx", "neverallowx":
		return n.extendedPerm(keyword, args)

	case "type":
		name, err := atomArgs(args, 1)
		if err != nil {
			return err
		}

		if _, ok := n.declared[name[0]]; !ok {
			n.declared[name[0]] = struct{}{}
			n.result.Types = append(n.result.Types, name[0])
		}

		return nil

	case "typepermissive":
		name, err := atomArgs(args, 1)
		if err != nil {
			return err
		}

		n.emit(policy.New(policy.KindPermissive, policy.Names(name...), policy.Set{}))

		return nil

	case "typeattribute":
		name, err := atomArgs(args, 1)
		if err != nil {
			return err
		}

		if IsGenerated(name[0]) {
			return nil
		}

		n.emit(policy.New(policy.KindAttribute, policy.Names(name...), policy.Set{}))

		return nil

	case "typeattributeset":
		return n.typeAttributeSet(ctx, args)

	case "expandtypeattribute":
		return n.expandTypeAttribute(args)

	case "typetransition":
		return n.typeTransition(args)

	case "genfscon":
		return n.genfscon(args)
	}

	if _, ok := n.warned["keyword "+keyword]; !ok {
		n.warned["keyword "+keyword] = struct{}{}
		log.WithContext(ctx).WarnContext(ctx, "dropping statements with unknown keyword",
			slog.String("keyword", keyword),
		)
	}

	return nil
}

func (n *Normalizer) emit(r *policy.Rule) {
	n.result.Rules = append(n.result.Rules, r)
}

// (allow src tgt (class (perm...))).
func (n *Normalizer) accessVector(keyword string, args []Node) error {
	if len(args) != 3 {
		return fmt.Errorf("%w: %s takes 3 arguments, got %d", ErrArity, keyword, len(args))
	}

	src, tgt, err := typePair(args)
	if err != nil {
		return err
	}

	cp := args[2]
	if !cp.IsList() || len(cp.List) != 2 || cp.List[0].IsList() {
		return fmt.Errorf("%w: class permissions %s", ErrUnsupportedExpression, cp)
	}

	perms, ok := cp.List[1].Atoms()
	if !ok {
		return fmt.Errorf("%w: permissions %s", ErrUnsupportedExpression, cp.List[1])
	}

	kind, err := policy.ParseKind(keyword)
	if err != nil {
		return err //nolint:wrapcheck // Already describes the keyword.
	}

	r := policy.New(kind, policy.Names(src, tgt, cp.List[0].Atom), policy.NewSet(perms...))
	if r.IsProcessSigchld() {
		return nil
	}

	n.emit(r)

	return nil
}

// (allowx src tgt (ioctl class (value... (range lo hi)...))).
func (n *Normalizer) extendedPerm(keyword string, args []Node) error {
	if len(args) != 3 {
		return fmt.Errorf("%w: %s takes 3 arguments, got %d", ErrArity, keyword, len(args))
	}

	src, tgt, err := typePair(args)
	if err != nil {
		return err
	}

	xp := args[2]
	if !xp.IsList() || len(xp.List) != 3 || xp.List[0].IsList() || xp.List[1].IsList() {
		return fmt.Errorf("%w: extended permissions %s", ErrUnsupportedExpression, xp)
	}

	values, err := expandIoctls(xp.List[2])
	if err != nil {
		return err
	}

	kind, err := policy.ParseKind(keyword + "perm")
	if err != nil {
		return err //nolint:wrapcheck // Already describes the keyword.
	}

	n.emit(policy.New(kind,
		policy.Names(src, tgt, xp.List[1].Atom, xp.List[0].Atom),
		policy.NewSet(values...),
	))

	return nil
}

// expandIoctls enumerates every value of an ioctl list, including
// `(range lo hi)` entries.
func expandIoctls(values Node) ([]string, error) {
	if !values.IsList() {
		v, err := policy.NormalizeIoctl(values.Atom)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnsupportedExpression, err)
		}

		return []string{v}, nil
	}

	var out []string

	for _, v := range values.List {
		if !v.IsList() {
			norm, err := policy.NormalizeIoctl(v.Atom)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrUnsupportedExpression, err)
			}

			out = append(out, norm)

			continue
		}

		// A singly nested range: ((range lo hi)).
		if len(v.List) == 1 && v.List[0].IsList() {
			v = v.List[0]
		}

		bounds, ok := v.Atoms()
		if !ok || len(bounds) != 3 || bounds[0] != "range" {
			return nil, fmt.Errorf("%w: ioctl %s", ErrUnsupportedExpression, v)
		}

		lo, err := strconv.ParseUint(trimHex(bounds[1]), 16, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: ioctl range %s: %w", ErrUnsupportedExpression, v, err)
		}

		hi, err := strconv.ParseUint(trimHex(bounds[2]), 16, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: ioctl range %s: %w", ErrUnsupportedExpression, v, err)
		}

		for i := lo; i <= hi; i++ {
			out = append(out, "0x"+strconv.FormatUint(i, 16))
		}
	}

	return out, nil
}

func trimHex(s string) string {
	return strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
}

// (typetransition src tgt class [name] result).
func (n *Normalizer) typeTransition(args []Node) error {
	if len(args) != 4 && len(args) != 5 {
		return fmt.Errorf("%w: typetransition takes 4 or 5 arguments, got %d", ErrArity, len(args))
	}

	atoms, err := atomArgs(args, len(args))
	if err != nil {
		return err
	}

	parts := []string{atoms[0], atoms[1], atoms[2], atoms[len(atoms)-1]}

	var name policy.Set
	if len(atoms) == 5 {
		name = policy.NewSet(atoms[3])
	}

	n.emit(policy.New(policy.KindTypeTransition, policy.Names(parts...), name))

	return nil
}

// (expandtypeattribute (attr...) true|false).
func (n *Normalizer) expandTypeAttribute(args []Node) error {
	if len(args) != 2 || args[1].IsList() {
		return fmt.Errorf("%w: expandtypeattribute takes 2 arguments", ErrArity)
	}

	attrs := []string{args[0].Atom}
	if args[0].IsList() {
		var ok bool

		attrs, ok = args[0].Atoms()
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnsupportedExpression, args[0])
		}
	}

	for _, attr := range attrs {
		n.emit(policy.New(policy.KindExpandAttribute, policy.Names(attr, args[1].Atom), policy.Set{}))
	}

	return nil
}

// (genfscon fs path (user role type levelrange)).
func (n *Normalizer) genfscon(args []Node) error {
	if len(args) != 3 || args[0].IsList() || args[1].IsList() {
		return fmt.Errorf("%w: genfscon takes 3 arguments", ErrArity)
	}

	sctx := args[2]
	if !sctx.IsList() || len(sctx.List) != 4 {
		return fmt.Errorf("%w: context %s", ErrUnsupportedExpression, sctx)
	}

	ids, ok := NewList(sctx.List[:3]...).Atoms()
	if !ok {
		return fmt.Errorf("%w: context %s", ErrUnsupportedExpression, sctx)
	}

	lvl, err := levelRange(sctx.List[3])
	if err != nil {
		return err
	}

	label := strings.Join(append(ids, lvl), ":")
	n.result.Genfs = append(n.result.Genfs,
		policy.New(policy.KindGenFSCon, policy.Names(args[0].Atom, args[1].Atom, label), policy.Set{}))

	return nil
}

// levelRange renders ((s0) (s0 (c0 c1))) as `s0-s0:c0,c1`, collapsing equal
// bounds into a single level.
func levelRange(n Node) (string, error) {
	if !n.IsList() || len(n.List) != 2 {
		return "", fmt.Errorf("%w: level range %s", ErrUnsupportedExpression, n)
	}

	lo, err := level(n.List[0])
	if err != nil {
		return "", err
	}

	hi, err := level(n.List[1])
	if err != nil {
		return "", err
	}

	if lo == hi {
		return lo, nil
	}

	return lo + "-" + hi, nil
}

func level(n Node) (string, error) {
	if !n.IsList() || len(n.List) == 0 || len(n.List) > 2 || n.List[0].IsList() {
		return "", fmt.Errorf("%w: level %s", ErrUnsupportedExpression, n)
	}

	if len(n.List) == 1 {
		return n.List[0].Atom, nil
	}

	cats, ok := n.List[1].Atoms()
	if !ok {
		return "", fmt.Errorf("%w: categories %s", ErrUnsupportedExpression, n.List[1])
	}

	return n.List[0].Atom + ":" + strings.Join(cats, ","), nil
}

// (typeattributeset attr (member...)) or (typeattributeset attr expr).
func (n *Normalizer) typeAttributeSet(ctx context.Context, args []Node) error {
	if len(args) != 2 || args[0].IsList() || !args[1].IsList() {
		return fmt.Errorf("%w: typeattributeset takes a name and a list", ErrArity)
	}

	attr := args[0].Atom
	value := args[1]

	if !isConditional(value) {
		members, ok := value.Atoms()
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnsupportedExpression, value)
		}

		if IsGenerated(attr) {
			n.conditionals[attr] = policy.NewConditionalType(members, nil)
			return nil
		}

		for _, m := range members {
			n.emit(policy.New(policy.KindTypeAttribute, policy.Names(m, attr), policy.Set{}))
		}

		return nil
	}

	if !IsGenerated(attr) {
		log.WithContext(ctx).WarnContext(ctx, "dropping conditional typeattributeset without source form",
			slog.String("attribute", attr),
			slog.String("expression", value.String()),
		)

		return nil
	}

	ct, err := structure(value)
	if err != nil {
		return fmt.Errorf("%s: %w", attr, err)
	}

	if _, ok := n.conditionals[attr]; !ok {
		n.conditionals[attr] = ct
	}

	return nil
}

// Result substitutes generated attribute references and returns the rules.
func (n *Normalizer) Result(ctx context.Context) *Result {
	logger := log.WithContext(ctx)

	res := n.result
	res.Rules = make([]*policy.Rule, 0, len(n.result.Rules))

	for _, r := range n.result.Rules {
		parts := r.Parts()

		var replaced []policy.Part
		for i, p := range parts {
			name, ok := p.(policy.Name)
			if !ok || !IsGenerated(string(name)) {
				continue
			}

			ct, ok := n.conditionals[string(name)]
			if !ok {
				if _, seen := n.warned["type "+string(name)]; !seen {
					n.warned["type "+string(name)] = struct{}{}
					logger.WarnContext(ctx, "unresolved generated type",
						slog.String("type", string(name)),
					)
				}

				continue
			}

			if replaced == nil {
				replaced = append([]policy.Part(nil), parts...)
			}

			replaced[i] = ct
		}

		if replaced != nil {
			r = r.WithParts(replaced)
		}

		res.Rules = append(res.Rules, r)
	}

	return &res
}

func typePair(args []Node) (string, string, error) {
	if args[0].IsList() || args[1].IsList() {
		return "", "", fmt.Errorf("%w: anonymous type sets %s %s", ErrUnsupportedExpression, args[0], args[1])
	}

	return args[0].Atom, args[1].Atom, nil
}

func atomArgs(args []Node, want int) ([]string, error) {
	if len(args) != want {
		return nil, fmt.Errorf("%w: want %d arguments, got %d", ErrArity, want, len(args))
	}

	atoms, ok := NewList(args...).Atoms()
	if !ok {
		return nil, fmt.Errorf("%w: expected names", ErrUnsupportedExpression)
	}

	return atoms, nil
}

var operators = map[string]bool{"and": true, "not": true, "all": true}

// isConditional reports whether a typeattributeset value is an expression
// rather than a flat member list.
func isConditional(value Node) bool {
	if len(value.List) == 0 {
		return false
	}

	first := value.List[0]
	if first.IsList() {
		if len(first.List) == 0 || first.List[0].IsList() {
			return false
		}

		first = first.List[0]
	}

	return operators[first.Atom]
}

// structure converts an expression into a [policy.ConditionalType]. The
// accepted shapes are (all), (not (L)), (and (L1) (not (L2))) and the
// intersection of two single types (and (A) (B)).
func structure(value Node) (*policy.ConditionalType, error) {
	v := value.List
	if len(v) == 1 && v[0].IsList() {
		v = v[0].List
	}

	// (and (L1) ((not (L2)))).
	if len(v) == 3 && v[2].IsList() && len(v[2].List) == 1 &&
		v[2].List[0].IsList() && len(v[2].List[0].List) > 0 && v[2].List[0].List[0].IsAtom("not") {
		v = []Node{v[0], v[1], v[2].List[0]}
	}

	// (and (L1) (not (L2))) becomes [and (L1) not (L2)].
	if len(v) == 3 && v[0].IsAtom("and") && v[2].IsList() &&
		len(v[2].List) == 2 && v[2].List[0].IsAtom("not") {
		v = []Node{v[0], v[1], v[2].List[0], v[2].List[1]}
	}

	switch {
	case len(v) == 1 && v[0].IsAtom("all"):
		return policy.Wildcard(), nil

	case len(v) == 2 && v[0].IsAtom("not"):
		excluded, err := members(v[1])
		if err != nil {
			return nil, err
		}

		return policy.NewConditionalType(nil, excluded), nil

	case len(v) == 4 && v[0].IsAtom("and") && v[2].IsAtom("not"):
		included, err := members(v[1])
		if err != nil {
			return nil, err
		}

		excluded, err := members(v[3])
		if err != nil {
			return nil, err
		}

		return policy.NewConditionalType(included, excluded), nil

	case len(v) == 3 && v[0].IsAtom("and") && v[1].IsList() && v[2].IsList():
		a, err := members(v[1])
		if err != nil {
			return nil, err
		}

		b, err := members(v[2])
		if err != nil {
			return nil, err
		}

		if len(a) != 1 || len(b) != 1 {
			return nil, fmt.Errorf("%w: intersection of sets %s", ErrUnsupportedExpression, value)
		}

		return policy.NewIntersection(a[0], b[0]), nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnsupportedExpression, value)
}

func members(n Node) ([]string, error) {
	if !n.IsList() {
		if operators[n.Atom] {
			return nil, fmt.Errorf("%w: operator %s used as a member", ErrUnsupportedExpression, n.Atom)
		}

		return []string{n.Atom}, nil
	}

	atoms, ok := n.Atoms()
	if !ok || len(atoms) == 0 {
		return nil, fmt.Errorf("%w: members %s", ErrUnsupportedExpression, n)
	}

	for _, a := range atoms {
		if operators[a] {
			return nil, fmt.Errorf("%w: nested expression %s", ErrUnsupportedExpression, n)
		}
	}

	return atoms, nil
}
