package match

import (
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/macropower/decil/pkg/policy"
)

// Binding maps placeholder indices to the parts they stand for. A Binding is
// immutable; [Binding.Add] returns a new value.
type Binding struct {
	vals map[int]policy.Part
}

// Get returns the part bound to placeholder i.
func (b Binding) Get(i int) (policy.Part, bool) {
	p, ok := b.vals[i]
	return p, ok
}

// CanAdd reports whether i is unbound or already bound to an equal part.
func (b Binding) CanAdd(i int, p policy.Part) bool {
	cur, ok := b.vals[i]
	return !ok || cur.Key() == p.Key()
}

// Add returns a copy of b with i bound to p.
func (b Binding) Add(i int, p policy.Part) Binding {
	vals := make(map[int]policy.Part, len(b.vals)+1)
	maps.Copy(vals, b.vals)
	vals[i] = p

	return Binding{vals: vals}
}

// Len returns the number of bound placeholders.
func (b Binding) Len() int {
	return len(b.vals)
}

// Key returns a canonical key for the binding.
func (b Binding) Key() string {
	var sb strings.Builder
	for _, i := range slices.Sorted(maps.Keys(b.vals)) {
		sb.WriteString(strconv.Itoa(i))
		sb.WriteByte('=')
		sb.WriteString(b.vals[i].Key())
		sb.WriteByte('\x1e')
	}

	return sb.String()
}

// Args renders the bound parts as macro call arguments, in placeholder order
// from 1 to arity. Unbound positions keep their placeholder.
func (b Binding) Args(arity int) []string {
	out := make([]string, 0, arity)
	for i := 1; i <= arity; i++ {
		if p, ok := b.vals[i]; ok {
			out = append(out, p.String())
		} else {
			out = append(out, "$"+strconv.Itoa(i))
		}
	}

	return out
}
