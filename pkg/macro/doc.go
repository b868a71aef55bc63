// Package macro compiles macro catalogs.
//
// A catalog lists permission sets and macro definitions. Each definition
// has a `.te` body, already expanded, in which `$1`, `$2`, ... stand for
// the macro arguments. [New] parses and compiles the enabled definitions
// into [match.Macro]s, folding permission sets into their templates the
// same way input rules are folded.
package macro
