// Package script runs JSON edit scripts against the engine. A script
// is an ordered list of operations committed as one atomic
// transaction, optionally followed by chained blocks that commit as
// continuations and may reference the features earlier blocks created
// by name.
package script
