// Package rule assigns decompiled policy statements to output files using
// CEL (Common Expression Language) expressions.
//
// A [Rule] has a boolean Match expression and either a fixed File name or a
// FileExpr string expression. Expressions see the statement through the
// variables documented on [Rule].
package rule
