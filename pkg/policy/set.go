package policy

import (
	"slices"
	"strings"
)

// keySep separates members inside canonical keys. It cannot appear in policy
// identifiers.
const keySep = "\x1f"

// Set is an immutable, sorted set of strings. The zero value is empty.
type Set struct {
	items []string
}

// NewSet returns a [Set] holding the given items. Duplicates are removed.
func NewSet(items ...string) Set {
	if len(items) == 0 {
		return Set{}
	}

	s := slices.Clone(items)
	slices.Sort(s)

	return Set{items: slices.Compact(s)}
}

// Items returns the members in sorted order. The returned slice must not be
// modified.
func (s Set) Items() []string {
	return s.items
}

// Len returns the number of members.
func (s Set) Len() int {
	return len(s.items)
}

// Empty reports whether the set has no members.
func (s Set) Empty() bool {
	return len(s.items) == 0
}

// Contains reports whether v is a member.
func (s Set) Contains(v string) bool {
	_, ok := slices.BinarySearch(s.items, v)
	return ok
}

// ContainsAll reports whether every member of o is a member of s.
func (s Set) ContainsAll(o Set) bool {
	for _, v := range o.items {
		if !s.Contains(v) {
			return false
		}
	}

	return true
}

// Equal reports whether both sets hold the same members.
func (s Set) Equal(o Set) bool {
	return slices.Equal(s.items, o.items)
}

// Union returns a new set with the members of both sets.
func (s Set) Union(o Set) Set {
	return NewSet(append(slices.Clone(s.items), o.items...)...)
}

// Difference returns a new set with the members of s that are not in o.
func (s Set) Difference(o Set) Set {
	out := make([]string, 0, len(s.items))
	for _, v := range s.items {
		if !o.Contains(v) {
			out = append(out, v)
		}
	}

	return Set{items: out}
}

// Key returns the canonical key of the set.
func (s Set) Key() string {
	return "{" + strings.Join(s.items, keySep) + "}"
}

func (s Set) String() string {
	return "{ " + strings.Join(s.items, " ") + " }"
}
