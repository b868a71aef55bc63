// Package decompile turns compiled CIL policy back into macro-based `.te`
// sources.
//
// A run parses and normalizes the CIL inputs, folds permission sets, loads
// the rules into a [store.Store], detects build variables, selects the
// enabled catalog macros, replaces every proven macro expansion with its
// call, folds leftover attributes of declared types into `type` statements
// and groups the result into output files.
package decompile
