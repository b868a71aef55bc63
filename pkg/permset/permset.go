// Package permset folds named permission sets, such as `r_file_perms`, into
// the permissions of access vector rules.
package permset

import (
	"cmp"
	"slices"

	"github.com/macropower/decil/pkg/policy"
)

// DefaultKinds are the kinds a [Set] applies to when it names none.
var DefaultKinds = []policy.Kind{policy.KindAllow, policy.KindAuditAllow, policy.KindDontAudit}

// Set is a named group of permissions.
type Set struct {
	Name  string
	Perms policy.Set
	Kinds []policy.Kind
}

// Folder replaces permission subsets with set names.
type Folder struct {
	sets []Set
}

// NewFolder returns a [Folder] for sets. Larger sets are folded first; sets
// of equal size keep their order by name.
func NewFolder(sets ...Set) *Folder {
	sorted := slices.Clone(sets)
	for i := range sorted {
		if len(sorted[i].Kinds) == 0 {
			sorted[i].Kinds = DefaultKinds
		}
	}

	slices.SortStableFunc(sorted, func(a, b Set) int {
		if c := cmp.Compare(b.Perms.Len(), a.Perms.Len()); c != 0 {
			return c
		}

		return cmp.Compare(a.Name, b.Name)
	})

	return &Folder{sets: sorted}
}

// Sets returns the sets in folding order.
func (f *Folder) Sets() []Set {
	return f.sets
}

// Fold returns r with every contained set replaced by its name. Rules that
// are not access vectors are returned unchanged.
func (f *Folder) Fold(r *policy.Rule) *policy.Rule {
	if !r.Kind().IsAccessVector() {
		return r
	}

	args := r.Args()
	changed := false

	for _, s := range f.sets {
		if s.Perms.Empty() || !slices.Contains(s.Kinds, r.Kind()) || !args.ContainsAll(s.Perms) {
			continue
		}

		args = args.Difference(s.Perms).Union(policy.NewSet(s.Name))
		changed = true
	}

	if !changed {
		return r
	}

	return r.WithArgs(args)
}
