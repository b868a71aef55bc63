// Package match finds macro expansions inside a [store.Store] and replaces
// them with macro calls.
//
// A macro is a list of template rules whose parts and arguments may contain
// `$N` placeholders. [Compile] prepares the templates, [Find] searches the
// store for every binding under which all templates exist as concrete
// rules, [Resolve] removes candidates that are dominated by a better
// candidate covering the same rules, and [Apply] removes the consumed rules
// and inserts one macro call per surviving candidate.
package match
