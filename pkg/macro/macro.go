package macro

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/macropower/decil/pkg/expr"
	"github.com/macropower/decil/pkg/log"
	"github.com/macropower/decil/pkg/match"
	"github.com/macropower/decil/pkg/permset"
	"github.com/macropower/decil/pkg/policy"
	"github.com/macropower/decil/pkg/te"
)

var (
	// ErrPermissionSet is returned for invalid permission set definitions.
	ErrPermissionSet = errors.New("invalid permission set")

	// ErrDefinition is returned for invalid macro definitions.
	ErrDefinition = errors.New("invalid macro definition")

	environment = sync.OnceValues(func() (*expr.Environment, error) {
		return expr.NewEnvironment(
			cel.Variable("vars", cel.MapType(cel.StringType, cel.StringType)),
		)
	})
)

// PermissionSet is a named group of permissions. Perms may name other
// permission sets, which are expanded.
type PermissionSet struct {
	// Name is the set name used in place of its permissions, e.g. r_file_perms.
	Name string `json:"name" jsonschema:"title=Name"`
	// Perms are permissions or names of other sets.
	Perms []string `json:"perms" jsonschema:"title=Permissions"`
	// Kinds are the statement kinds the set is folded into. Defaults to
	// allow, auditallow and dontaudit.
	Kinds []string `json:"kinds,omitempty" jsonschema:"title=Statement Kinds"`
}

// Definition is a macro as written in a catalog.
type Definition struct {
	// Name is the macro name.
	Name string `json:"name" jsonschema:"title=Name"`
	// When is an optional CEL expression over `vars` that enables the macro.
	When string `json:"when,omitempty" jsonschema:"title=Condition"`
	// Body is the expanded macro body in .te syntax, using $1, $2, ... for
	// the macro arguments.
	Body string `json:"body" jsonschema:"title=Body"`
}

// PermissionSets are resolved permission sets.
type PermissionSets struct {
	folder   *permset.Folder
	expanded map[string]policy.Set
}

// NewPermissionSets resolves references between sets.
func NewPermissionSets(defs []*PermissionSet) (*PermissionSets, error) {
	expanded, folder, err := buildSets(defs)
	if err != nil {
		return nil, err
	}

	return &PermissionSets{folder: folder, expanded: expanded}, nil
}

// Sets returns the resolved sets in folding order.
func (p *PermissionSets) Sets() []permset.Set {
	return p.folder.Sets()
}

// Fold expands set names used in the permissions of r, then folds the
// permissions back into set names, largest set first.
func (p *PermissionSets) Fold(r *policy.Rule) *policy.Rule {
	return p.folder.Fold(p.expand(r))
}

func (p *PermissionSets) expand(r *policy.Rule) *policy.Rule {
	if !r.Kind().IsAccessVector() {
		return r
	}

	var (
		perms   []string
		changed bool
	)

	for _, name := range r.Args().Items() {
		if s, ok := p.expanded[name]; ok {
			perms = append(perms, s.Items()...)
			changed = true

			continue
		}

		perms = append(perms, name)
	}

	if !changed {
		return r
	}

	return r.WithArgs(policy.NewSet(perms...))
}

// Catalog is a set of compiled macros.
type Catalog struct {
	macros  []*match.Macro
	enabled []*Definition
}

// New compiles the enabled definitions of a catalog. Templates are folded
// with perms, so input rules must be folded with the same sets.
//
// Definitions whose When expression is false for vars are skipped, as are
// definitions whose body cannot be parsed (with a warning). Macros are
// ordered by template count, largest first; ties keep definition order.
func New(ctx context.Context, perms *PermissionSets, defs []*Definition, vars map[string]string) (*Catalog, error) {
	logger := log.WithContext(ctx)

	if perms == nil {
		perms = &PermissionSets{folder: permset.NewFolder()}
	}

	c := &Catalog{}

	if vars == nil {
		vars = map[string]string{}
	}

	for _, def := range defs {
		if def.Name == "" {
			return nil, fmt.Errorf("%w: missing name", ErrDefinition)
		}

		ok, err := enabled(def, vars)
		if err != nil {
			return nil, err
		}

		if !ok {
			logger.DebugContext(ctx, "macro disabled", slog.String("macro", def.Name))
			continue
		}

		rules, err := te.Parse(def.Body)
		if err != nil {
			logger.WarnContext(ctx, "skip macro with unparsable body",
				slog.String("macro", def.Name),
				slog.Any("error", err),
			)

			continue
		}

		for i, r := range rules {
			rules[i] = perms.Fold(r)
		}

		m, err := match.Compile(def.Name, rules)
		if err != nil {
			logger.WarnContext(ctx, "skip macro",
				slog.String("macro", def.Name),
				slog.Any("error", err),
			)

			continue
		}

		c.macros = append(c.macros, m)
		c.enabled = append(c.enabled, def)
	}

	slices.SortStableFunc(c.macros, func(a, b *match.Macro) int {
		return cmp.Compare(len(b.Templates), len(a.Templates))
	})

	logger.DebugContext(ctx, "compiled macro catalog",
		slog.Int("macros", len(c.macros)),
		slog.Int("permission_sets", len(perms.Sets())),
	)

	return c, nil
}

// Macros returns the compiled macros in matching order.
func (c *Catalog) Macros() []*match.Macro {
	return c.macros
}

// Definitions returns the enabled definitions in catalog order.
func (c *Catalog) Definitions() []*Definition {
	return c.enabled
}

func enabled(def *Definition, vars map[string]string) (bool, error) {
	if def.When == "" {
		return true, nil
	}

	env, err := environment()
	if err != nil {
		return false, err
	}

	program, err := env.Compile(def.When)
	if err != nil {
		return false, fmt.Errorf("%w: %s: when: %w", ErrDefinition, def.Name, err)
	}

	ok, err := expr.EvalBool(program, map[string]any{"vars": vars})
	if err != nil {
		return false, fmt.Errorf("%w: %s: when: %w", ErrDefinition, def.Name, err)
	}

	return ok, nil
}

// buildSets resolves references between permission sets and returns the
// expanded sets by name together with a folder over them.
func buildSets(defs []*PermissionSet) (map[string]policy.Set, *permset.Folder, error) {
	byName := make(map[string]*PermissionSet, len(defs))
	for _, d := range defs {
		if d.Name == "" {
			return nil, nil, fmt.Errorf("%w: missing name", ErrPermissionSet)
		}

		if _, ok := byName[d.Name]; ok {
			return nil, nil, fmt.Errorf("%w: %s: defined twice", ErrPermissionSet, d.Name)
		}

		byName[d.Name] = d
	}

	expanded := make(map[string]policy.Set, len(defs))

	var resolve func(name string, seen []string) (policy.Set, error)

	resolve = func(name string, seen []string) (policy.Set, error) {
		if s, ok := expanded[name]; ok {
			return s, nil
		}

		if slices.Contains(seen, name) {
			return policy.Set{}, fmt.Errorf("%w: %s: cycle through %v", ErrPermissionSet, name, seen)
		}

		seen = append(seen, name)

		var perms []string
		for _, p := range byName[name].Perms {
			if _, ok := byName[p]; !ok {
				perms = append(perms, p)
				continue
			}

			sub, err := resolve(p, seen)
			if err != nil {
				return policy.Set{}, err
			}

			perms = append(perms, sub.Items()...)
		}

		s := policy.NewSet(perms...)
		expanded[name] = s

		return s, nil
	}

	sets := make([]permset.Set, 0, len(defs))
	for _, d := range defs {
		perms, err := resolve(d.Name, nil)
		if err != nil {
			return nil, nil, err
		}

		if perms.Empty() {
			return nil, nil, fmt.Errorf("%w: %s: no permissions", ErrPermissionSet, d.Name)
		}

		kinds := make([]policy.Kind, 0, len(d.Kinds))
		for _, k := range d.Kinds {
			kind, err := policy.ParseKind(k)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: %s: %w", ErrPermissionSet, d.Name, err)
			}

			if !kind.IsAccessVector() {
				return nil, nil, fmt.Errorf("%w: %s: %s is not an access vector kind", ErrPermissionSet, d.Name, k)
			}

			kinds = append(kinds, kind)
		}

		sets = append(sets, permset.Set{Name: d.Name, Perms: perms, Kinds: kinds})
	}

	return expanded, permset.NewFolder(sets...), nil
}
