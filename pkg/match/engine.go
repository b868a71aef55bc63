package match

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/macropower/decil/pkg/log"
	"github.com/macropower/decil/pkg/policy"
	"github.com/macropower/decil/pkg/store"
)

// ErrDoubleRemoval is returned when a consumed rule is gone from the store
// and no earlier macro call removed it.
var ErrDoubleRemoval = errors.New("consumed rule already removed")

// RuleMatch is one candidate macro expansion.
type RuleMatch struct {
	Macro    *Macro
	Binding  Binding
	consumed map[string]struct{}
	Consumed []*policy.Rule
	// Order is the position of the candidate across all macros, in catalog
	// order.
	Order int
	// MacroOrder is the position of the macro in the catalog.
	MacroOrder int
}

// Call returns the macro call rule for m.
func (m *RuleMatch) Call() *policy.Rule {
	return policy.NewMacroCall(m.Macro.Name, m.Binding.Args(m.Macro.Arity)...)
}

// covers reports whether m consumed every rule of o.
func (m *RuleMatch) covers(o *RuleMatch) bool {
	for k := range o.consumed {
		if _, ok := m.consumed[k]; !ok {
			return false
		}
	}

	return true
}

type branch struct {
	last     *policy.Rule
	binding  Binding
	consumed []*policy.Rule
	seen     map[string]struct{}
}

func (b branch) with(r *policy.Rule, binding Binding) branch {
	if _, ok := b.seen[r.Key()]; ok {
		return branch{binding: binding, consumed: b.consumed, seen: b.seen, last: r}
	}

	seen := make(map[string]struct{}, len(b.seen)+1)
	for k := range b.seen {
		seen[k] = struct{}{}
	}

	seen[r.Key()] = struct{}{}

	return branch{
		binding:  binding,
		consumed: append(slices.Clip(b.consumed), r),
		seen:     seen,
		last:     r,
	}
}

func (b branch) key() string {
	keys := make([]string, 0, len(b.consumed))
	for _, r := range b.consumed {
		keys = append(keys, r.Key())
	}

	slices.Sort(keys)

	return b.binding.Key() + "\x1d" + strings.Join(keys, "\x1d")
}

// FindMacro returns every binding under which all templates of m are live
// rules in s.
func FindMacro(ctx context.Context, s *store.Store, m *Macro) ([]*RuleMatch, error) {
	branches := []branch{{seen: map[string]struct{}{}}}

	for _, t := range m.Templates {
		var (
			next  []branch
			dedup = make(map[string]struct{})
		)

		add := func(b branch) {
			k := b.key()
			if _, ok := dedup[k]; ok {
				return
			}

			dedup[k] = struct{}{}
			next = append(next, b)
		}

		for _, b := range branches {
			concrete, complete, err := t.substitute(b.binding)
			if err != nil {
				log.WithContext(ctx).DebugContext(ctx, "dropping branch",
					slog.String("macro", m.Name),
					slog.Any("error", err),
				)

				continue
			}

			if complete {
				if found, ok := lookup(s, b.last, concrete); ok {
					add(b.with(found, b.binding))
				}

				continue
			}

			hits, err := store.Match(s, t.rule.Head(), t.pattern(b.binding), b.binding)
			if err != nil {
				return nil, fmt.Errorf("%s: %s: %w", m.Name, t.rule, err)
			}

			for _, h := range hits {
				add(b.with(h.Rule, h.State))
			}
		}

		branches = next
		if len(branches) == 0 {
			return nil, nil
		}
	}

	out := make([]*RuleMatch, 0, len(branches))
	for _, b := range branches {
		out = append(out, &RuleMatch{
			Macro:    m,
			Binding:  b.binding,
			Consumed: b.consumed,
			consumed: b.seen,
		})
	}

	return out, nil
}

// lookup finds concrete in s, trying the rule inserted right after last
// first.
func lookup(s *store.Store, last, concrete *policy.Rule) (*policy.Rule, bool) {
	if last != nil {
		if n, ok := s.NextAfter(last); ok && n.Equal(concrete) {
			return n, true
		}
	}

	return s.Get(concrete)
}

// Find runs [FindMacro] for every macro, in order, and numbers the
// candidates.
func Find(ctx context.Context, s *store.Store, macros []*Macro) ([]*RuleMatch, error) {
	logger := log.WithContext(ctx)

	var all []*RuleMatch
	for i, m := range macros {
		found, err := FindMacro(ctx, s, m)
		if err != nil {
			return nil, err
		}

		if len(found) == 0 {
			logger.DebugContext(ctx, "macro not matched", slog.String("macro", m.Name))
			continue
		}

		logger.DebugContext(ctx, "macro matched",
			slog.String("macro", m.Name),
			slog.Int("candidates", len(found)),
		)

		for _, rm := range found {
			rm.MacroOrder = i
			rm.Order = len(all)
			all = append(all, rm)
		}
	}

	return all, nil
}

// Resolve discards candidates that overlap a better candidate. A candidate A
// loses to an overlapping B when B consumed a strict superset of A's rules,
// or the same rules with fewer bound arguments, or the same rules with as
// many arguments and B comes first.
func Resolve(matches []*RuleMatch) []*RuleMatch {
	byRule := make(map[string][]int)
	for i, m := range matches {
		for k := range m.consumed {
			byRule[k] = append(byRule[k], i)
		}
	}

	out := make([]*RuleMatch, 0, len(matches))
	for i, a := range matches {
		if !dominated(i, a, matches, byRule) {
			out = append(out, a)
		}
	}

	return out
}

func dominated(i int, a *RuleMatch, matches []*RuleMatch, byRule map[string][]int) bool {
	checked := make(map[int]struct{})

	for k := range a.consumed {
		for _, j := range byRule[k] {
			if j == i {
				continue
			}

			if _, ok := checked[j]; ok {
				continue
			}

			checked[j] = struct{}{}

			b := matches[j]
			if !b.covers(a) {
				continue
			}

			if len(b.consumed) > len(a.consumed) {
				return true
			}

			// Same rule set.
			if b.Binding.Len() < a.Binding.Len() {
				return true
			}

			if b.Binding.Len() == a.Binding.Len() && b.Order < a.Order {
				return true
			}
		}
	}

	return false
}

// Apply replaces the consumed rules of every match with its macro call, in
// catalog order. A consumed rule that an earlier call already removed is
// shared with that call, since both macros expand to it. A match with no
// live rule left adds nothing and is skipped. Apply checks every match
// before touching the store, so an error leaves the store as it was for
// that match.
func Apply(ctx context.Context, s *store.Store, matches []*RuleMatch) (ApplyStats, error) {
	logger := log.WithContext(ctx)

	ordered := slices.Clone(matches)
	slices.SortStableFunc(ordered, func(a, b *RuleMatch) int {
		if a.MacroOrder != b.MacroOrder {
			return a.MacroOrder - b.MacroOrder
		}

		return a.Order - b.Order
	})

	var (
		stats   ApplyStats
		removed = make(map[string]*policy.Rule)
	)

	for _, m := range ordered {
		call := m.Call()

		live, err := liveRules(s, m, removed)
		if err != nil {
			return stats, fmt.Errorf("%s: %w", call, err)
		}

		if len(live) == 0 {
			logger.DebugContext(ctx, "skipping call covered by earlier calls",
				slog.String("call", call.String()),
			)

			stats.Skipped++

			continue
		}

		if len(live) < len(m.Consumed) {
			logger.DebugContext(ctx, "call shares rules with earlier calls",
				slog.String("call", call.String()),
				slog.Int("shared", len(m.Consumed)-len(live)),
			)
		}

		for _, r := range live {
			err := s.Remove(r)
			if err != nil {
				return stats, fmt.Errorf("%s: %w", call, err)
			}

			removed[r.Key()] = call
		}

		if s.Insert(call) {
			stats.Calls++
		}
	}

	return stats, nil
}

// liveRules returns the consumed rules of m that are still in s. A missing
// rule must have been removed by an earlier call, except for attribute
// rules, which several typeattributeset expansions can derive.
func liveRules(s *store.Store, m *RuleMatch, removed map[string]*policy.Rule) ([]*policy.Rule, error) {
	live := make([]*policy.Rule, 0, len(m.Consumed))

	for _, r := range m.Consumed {
		if s.Contains(r) {
			live = append(live, r)
			continue
		}

		if _, ok := removed[r.Key()]; ok || r.Kind().IsAttributeFamily() {
			continue
		}

		return nil, fmt.Errorf("%w: %s", ErrDoubleRemoval, r)
	}

	return live, nil
}

// ApplyStats summarizes an [Apply].
type ApplyStats struct {
	Calls   int
	Skipped int
}

// Stats summarizes a [Run].
type Stats struct {
	Candidates int
	Resolved   int
	Calls      int
	Skipped    int
}

// Run finds, resolves and applies every macro against s.
func Run(ctx context.Context, s *store.Store, macros []*Macro) (Stats, error) {
	found, err := Find(ctx, s, macros)
	if err != nil {
		return Stats{}, err
	}

	resolved := Resolve(found)

	applied, err := Apply(ctx, s, resolved)
	if err != nil {
		return Stats{}, err
	}

	return Stats{
		Candidates: len(found),
		Resolved:   len(resolved),
		Calls:      applied.Calls,
		Skipped:    applied.Skipped,
	}, nil
}
