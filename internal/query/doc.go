// Package query compiles attribute filter expressions into feature
// predicates. Expressions name fields by JSON path over the feature
// document and combine comparisons with boolean operators, so stored
// selections and command-line filters share one language.
package query
