// Package expr provides the CEL (Common Expression Language) environment
// used by output group rules, macro catalog conditions and watch filters.
//
// Besides the standard CEL library and the strings, lists and math
// extensions, expressions can use:
//   - domainOf(string): the domain a type belongs to (`vendor_foo_exec` -> `foo`)
//   - pathBase, pathDir, pathExt: [path/filepath] helpers
//   - fs.CREATE, fs.WRITE, fs.REMOVE, fs.RENAME, fs.CHMOD and the
//     `op.has(flags...)` macro for file events
package expr
