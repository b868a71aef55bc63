// Package watch re-runs a function when input files change. Events are
// filtered with a CEL expression over the file path (`file`) and the event
// operation (`op`), e.g. `op.has(fs.WRITE, fs.CREATE)`.
package watch
