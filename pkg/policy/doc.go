// Package policy contains the normalized model for a single SELinux policy
// statement.
//
// A [Rule] is an immutable value: its [Kind], an ordered list of [Part]s and
// an unordered argument [Set] (permissions, ioctl values, attribute names or
// a type transition object name). Two rules are equal when their canonical
// [Rule.Key] is equal, which is computed once when the rule is created.
//
// A [Part] is either a plain [Name] or a [*ConditionalType] boolean
// expression over type names, as produced by the policy compiler for type
// sets such as `{ domain -coredomain }`.
package policy
