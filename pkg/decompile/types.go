package decompile

import (
	"github.com/macropower/decil/pkg/policy"
)

// FoldTypes merges the leftover `typeattribute t a` rules of every declared
// type t into one `type t, a...;` statement, placed where the first of them
// was. It returns the new rules and the number of type statements created.
// Declared types without leftover attributes produce no statement.
func FoldTypes(rules []*policy.Rule, types []string) ([]*policy.Rule, int) {
	declared := make(map[string]struct{}, len(types))
	for _, t := range types {
		declared[t] = struct{}{}
	}

	attrs := map[string][]string{}
	first := map[string]int{}

	for i, r := range rules {
		name, ok := typeOf(r, declared)
		if !ok {
			continue
		}

		if _, seen := first[name]; !seen {
			first[name] = i
		}

		attrs[name] = append(attrs[name], r.Part(1).String())
	}

	out := make([]*policy.Rule, 0, len(rules))

	for i, r := range rules {
		name, ok := typeOf(r, declared)
		if !ok {
			out = append(out, r)
			continue
		}

		if first[name] == i {
			out = append(out, policy.New(policy.KindType, policy.Names(name), policy.NewSet(attrs[name]...)))
		}
	}

	return out, len(first)
}

func typeOf(r *policy.Rule, declared map[string]struct{}) (string, bool) {
	if r.Kind() != policy.KindTypeAttribute {
		return "", false
	}

	name, ok := r.Part(0).(policy.Name)
	if !ok {
		return "", false
	}

	if _, ok := declared[string(name)]; !ok {
		return "", false
	}

	if _, ok := r.Part(1).(policy.Name); !ok {
		return "", false
	}

	return string(name), true
}
