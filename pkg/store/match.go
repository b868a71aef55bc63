package store

import (
	"errors"
	"fmt"
	"slices"

	"github.com/macropower/decil/pkg/policy"
)

// ErrGroupTooLarge is returned when a group has more placeholder members than
// [MaxGroupPlaceholders].
var ErrGroupTooLarge = errors.New("too many placeholders in group")

// MaxGroupPlaceholders bounds the permutation search of [MatchGroup].
const MaxGroupPlaceholders = 6

type matcherKind int

const (
	matchLiteral matcherKind = iota
	matchAny
	matchCapture
)

// CaptureFunc is called for every candidate value of a capturing level. It
// returns the states that continue the match; an empty result rejects v.
type CaptureFunc[S any] func(v Value, s S) ([]S, error)

// Matcher selects children at one level of the index.
type Matcher[S any] struct {
	capture CaptureFunc[S]
	key     string
	kind    matcherKind
}

// Literal matches the value whose key is key.
func Literal[S any](key string) Matcher[S] {
	return Matcher[S]{kind: matchLiteral, key: key}
}

// Any matches every value without changing the state.
func Any[S any]() Matcher[S] {
	return Matcher[S]{kind: matchAny}
}

// Capture matches values accepted by fn.
func Capture[S any](fn CaptureFunc[S]) Matcher[S] {
	return Matcher[S]{kind: matchCapture, capture: fn}
}

// Hit is one matched rule and the state that led to it.
type Hit[S any] struct {
	Rule  *policy.Rule
	State S
}

// Match returns every live rule under head whose path satisfies pattern,
// ordered by insertion. pattern has one [Matcher] per part plus one for the
// argument set.
func Match[S any](s *Store, head string, pattern []Matcher[S], seed S) ([]Hit[S], error) {
	root, ok := s.roots[head]
	if !ok {
		return nil, nil
	}

	type hit struct {
		state S
		index int
	}

	var hits []hit

	var walk func(n node, depth int, st S) error
	walk = func(n node, depth int, st S) error {
		if l, ok := n.(*leaf); ok {
			if depth == len(pattern) && !s.entries[l.index].removed {
				hits = append(hits, hit{index: l.index, state: st})
			}

			return nil
		}

		b := n.(*branch) //nolint:forcetypeassert // Only two node variants.
		if depth >= len(pattern) {
			return nil
		}

		m := pattern[depth]

		switch m.kind {
		case matchLiteral:
			if e, ok := b.children[m.key]; ok {
				return walk(e.next, depth+1, st)
			}

		case matchAny:
			for _, k := range b.order {
				err := walk(b.children[k].next, depth+1, st)
				if err != nil {
					return err
				}
			}

		case matchCapture:
			for _, k := range b.order {
				e := b.children[k]

				states, err := m.capture(e.value, st)
				if err != nil {
					return err
				}

				for _, next := range states {
					err := walk(e.next, depth+1, next)
					if err != nil {
						return err
					}
				}
			}
		}

		return nil
	}

	err := walk(root, 0, seed)
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(hits, func(a, b hit) int { return a.index - b.index })

	out := make([]Hit[S], 0, len(hits))
	for _, h := range hits {
		out = append(out, Hit[S]{Rule: s.entries[h.index].rule, State: h.state})
	}

	return out, nil
}

// MatchGroup matches an unordered group of template members against an
// unordered group of concrete values of the same size. Literal members are
// matched by membership. Placeholder members are assigned to the remaining
// values in every possible way; assign returns every state that extends s
// with one assignment, or none to reject it.
func MatchGroup[S any](
	members []string,
	isPlaceholder func(string) bool,
	values []string,
	seed S,
	assign func(s S, member, value string) []S,
) ([]S, error) {
	if len(members) != len(values) {
		return nil, nil
	}

	remaining := slices.Clone(values)

	var placeholders []string
	for _, m := range members {
		if isPlaceholder(m) {
			placeholders = append(placeholders, m)
			continue
		}

		i := slices.Index(remaining, m)
		if i < 0 {
			return nil, nil
		}

		remaining = slices.Delete(remaining, i, i+1)
	}

	if len(placeholders) > MaxGroupPlaceholders {
		return nil, fmt.Errorf("%w: %d > %d", ErrGroupTooLarge, len(placeholders), MaxGroupPlaceholders)
	}

	var (
		out  []S
		used = make([]bool, len(remaining))
	)

	var permute func(i int, st S)
	permute = func(i int, st S) {
		if i == len(placeholders) {
			out = append(out, st)
			return
		}

		for j, v := range remaining {
			if used[j] {
				continue
			}

			next := assign(st, placeholders[i], v)
			if len(next) == 0 {
				continue
			}

			used[j] = true
			for _, n := range next {
				permute(i+1, n)
			}
			used[j] = false
		}
	}

	permute(0, seed)

	return out, nil
}
