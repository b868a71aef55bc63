// Package cil reads flat SELinux CIL and normalizes it into [policy.Rule]s.
//
// [Parse] turns CIL text into [Node] trees. A [Normalizer] converts each
// top-level statement into zero or more rules: statements without a source
// form are dropped, compiler-generated `base_typeattr_*` attributes are
// structured into [policy.ConditionalType] expressions and substituted into
// every rule that references them, ioctl ranges are enumerated, and
// `genfscon` statements are kept apart from the matchable rules.
package cil
