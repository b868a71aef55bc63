package policy

import "strings"

// Part is one positional element of a [Rule].
// It is either a [Name] or a [*ConditionalType].
type Part interface {
	// Key returns the canonical key used for equality and indexing.
	Key() string
	// String renders the part in policy source syntax.
	String() string

	isPart()
}

// Name is a plain type, attribute, class or object name.
type Name string

func (n Name) Key() string    { return string(n) }
func (n Name) String() string { return string(n) }
func (Name) isPart()          {}

// Names converts strings into [Name] parts.
func Names(names ...string) []Part {
	parts := make([]Part, 0, len(names))
	for _, n := range names {
		parts = append(parts, Name(n))
	}

	return parts
}

// ConditionalType is a boolean expression over type names that stands in for
// a single type. It matches the types of Included (a union) that are not in
// Excluded. An empty Included with a non-empty Excluded means "all types
// except Excluded"; All is the `*` wildcard. With Intersect, it matches the
// types that are in every member of Included.
type ConditionalType struct {
	Included  Set
	Excluded  Set
	All       bool
	Intersect bool
}

// NewConditionalType returns a [*ConditionalType] for the given members.
func NewConditionalType(included, excluded []string) *ConditionalType {
	return &ConditionalType{
		Included: NewSet(included...),
		Excluded: NewSet(excluded...),
	}
}

// NewIntersection returns the [*ConditionalType] `{ a && b }`.
func NewIntersection(members ...string) *ConditionalType {
	return &ConditionalType{
		Included:  NewSet(members...),
		Intersect: true,
	}
}

// Wildcard returns the `*` [*ConditionalType].
func Wildcard() *ConditionalType {
	return &ConditionalType{All: true}
}

func (*ConditionalType) isPart() {}

// Key returns a canonical key. It never collides with a [Name] key.
func (c *ConditionalType) Key() string {
	if c.All {
		return "{*}"
	}

	if c.Intersect {
		return "{&" + strings.Join(c.Included.Items(), keySep) + "}"
	}

	var sb strings.Builder

	sb.WriteString("{")
	sb.WriteString(strings.Join(c.Included.Items(), keySep))
	sb.WriteString("|")
	sb.WriteString(strings.Join(c.Excluded.Items(), keySep))
	sb.WriteString("}")

	return sb.String()
}

func (c *ConditionalType) String() string {
	if c.All {
		return "*"
	}

	if c.Intersect {
		return "{ " + strings.Join(c.Included.Items(), " && ") + " }"
	}

	if c.Included.Empty() {
		excluded := c.Excluded.Items()
		if len(excluded) == 1 {
			return "~" + excluded[0]
		}

		return "~{ " + strings.Join(excluded, " ") + " }"
	}

	if c.Excluded.Empty() && c.Included.Len() == 1 {
		return c.Included.Items()[0]
	}

	var sb strings.Builder

	sb.WriteString("{")
	for _, t := range c.Included.Items() {
		sb.WriteString(" ")
		sb.WriteString(t)
	}
	for _, t := range c.Excluded.Items() {
		sb.WriteString(" -")
		sb.WriteString(t)
	}
	sb.WriteString(" }")

	return sb.String()
}
