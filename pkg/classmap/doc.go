// Package classmap orders classes and permissions the way the policy
// declares them, and detects build flags from the rules of a compiled
// policy.
//
// A [Classmap] is read from a sepolgen `perm_map` style file: a `class NAME`
// line starts a class and each following non-empty line names one of its
// permissions in its first field. Classes and permissions that are not in
// the file sort after the known ones.
package classmap
