// Package store provides an indexed, ordered collection of [policy.Rule]s.
//
// Rules are indexed in a trie keyed by their [policy.Rule.Path]: the first
// level is the statement head (kind and arity), followed by one level per
// part and a final level for the argument set. [Match] walks the trie with
// one [Matcher] per level and threads a caller-defined state through the
// captures, so a template can bind placeholders while it descends.
//
// The store also remembers insertion order. [Store.Walk] and
// [Store.NextAfter] visit live rules in that order, which lets callers look
// at the rule emitted right after another one first.
package store
