package store

import (
	"errors"
	"fmt"

	"github.com/macropower/decil/pkg/policy"
)

// ErrNotFound is returned when a rule is not present in the store.
var ErrNotFound = errors.New("rule not found")

// Value is one level of a rule's index path.
type Value interface {
	Key() string
}

// node is either a *branch or a *leaf.
type node interface {
	isNode()
}

type edge struct {
	value Value
	next  node
}

type branch struct {
	children map[string]edge
	order    []string
}

type leaf struct {
	index int
}

func (*branch) isNode() {}
func (*leaf) isNode()   {}

func newBranch() *branch {
	return &branch{children: make(map[string]edge)}
}

func (b *branch) child(v Value, mk func() node) node {
	k := v.Key()
	if e, ok := b.children[k]; ok {
		return e.next
	}

	n := mk()
	b.children[k] = edge{value: v, next: n}
	b.order = append(b.order, k)

	return n
}

type entry struct {
	rule    *policy.Rule
	removed bool
}

// Store is an indexed set of rules that remembers insertion order.
// It is not safe for concurrent use.
type Store struct {
	roots   map[string]*branch
	byKey   map[string]int
	entries []entry
	live    int
}

// New returns an empty [Store].
func New() *Store {
	return &Store{
		roots: make(map[string]*branch),
		byKey: make(map[string]int),
	}
}

// path returns the index levels of r below its head.
func path(r *policy.Rule) []Value {
	parts := r.Parts()
	vals := make([]Value, 0, len(parts)+1)
	for _, p := range parts {
		vals = append(vals, p)
	}

	return append(vals, r.Args())
}

// Insert adds r. It reports false when an equal rule is already live.
// A rule that was removed is appended again at the end of the order.
func (s *Store) Insert(r *policy.Rule) bool {
	if i, ok := s.byKey[r.Key()]; ok && !s.entries[i].removed {
		return false
	}

	idx := len(s.entries)
	s.entries = append(s.entries, entry{rule: r})
	s.byKey[r.Key()] = idx
	s.live++

	root, ok := s.roots[r.Head()]
	if !ok {
		root = newBranch()
		s.roots[r.Head()] = root
	}

	vals := path(r)
	cur := root
	for i, v := range vals {
		if i == len(vals)-1 {
			n := cur.child(v, func() node { return &leaf{} })
			n.(*leaf).index = idx //nolint:forcetypeassert // Last level is always a leaf.

			break
		}

		cur = cur.child(v, func() node { return newBranch() }).(*branch) //nolint:forcetypeassert // Inner levels are branches.
	}

	return true
}

// Remove marks r as removed. It returns [ErrNotFound] when no equal rule is
// live.
func (s *Store) Remove(r *policy.Rule) error {
	i, ok := s.byKey[r.Key()]
	if !ok || s.entries[i].removed {
		return fmt.Errorf("%w: %s", ErrNotFound, r)
	}

	s.entries[i].removed = true
	s.live--

	return nil
}

// Get returns the live rule equal to r.
func (s *Store) Get(r *policy.Rule) (*policy.Rule, bool) {
	i, ok := s.byKey[r.Key()]
	if !ok || s.entries[i].removed {
		return nil, false
	}

	return s.entries[i].rule, true
}

// Contains reports whether a rule equal to r is live.
func (s *Store) Contains(r *policy.Rule) bool {
	_, ok := s.Get(r)
	return ok
}

// Len returns the number of live rules.
func (s *Store) Len() int {
	return s.live
}

// Walk calls fn for every live rule in insertion order until fn returns
// false.
func (s *Store) Walk(fn func(r *policy.Rule) bool) {
	for _, e := range s.entries {
		if e.removed {
			continue
		}

		if !fn(e.rule) {
			return
		}
	}
}

// Rules returns all live rules in insertion order.
func (s *Store) Rules() []*policy.Rule {
	out := make([]*policy.Rule, 0, s.live)
	s.Walk(func(r *policy.Rule) bool {
		out = append(out, r)
		return true
	})

	return out
}

// NextAfter returns the first live rule inserted after r. The position of a
// removed r is still known, so callers may pass a consumed rule.
func (s *Store) NextAfter(r *policy.Rule) (*policy.Rule, bool) {
	i, ok := s.byKey[r.Key()]
	if !ok {
		return nil, false
	}

	for j := i + 1; j < len(s.entries); j++ {
		if !s.entries[j].removed {
			return s.entries[j].rule, true
		}
	}

	return nil, false
}
