// Package output groups decompiled policy statements into files and writes
// them.
//
// Each statement is assigned to the file named by the first matching group
// [rule.Rule], or to the fallback file. Within a file, plain statements come
// before macro calls and are ordered by type, parts and arguments; a blank
// line separates runs of different types. genfscon statements are kept in
// input order in their own file.
package output
