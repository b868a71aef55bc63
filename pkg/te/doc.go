// Package te parses SELinux `.te` source statements into [policy.Rule]s.
//
// It understands the statements that appear in fully expanded macro bodies
// and in build flag probes: the allow and xperm families, type_transition,
// type, typeattribute, attribute, expandattribute and permissive. Type sets
// such as `{ domain -coredomain }`, `~x` and `*` become
// [policy.ConditionalType] parts, and class sets expand into one rule per
// class. Macro calls and any other statement are rejected with
// [ErrUnsupportedStatement].
package te
