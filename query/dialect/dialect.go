// Package dialect declares the compiler boundary between the
// dialect-agnostic Query builder and a concrete SQL dialect.
// PostgreSQL (package dialect/postgres) is the only implementation;
// cross-dialect support is an explicit Non-goal.
package dialect

import "github.com/entropydb/entity/query"

// Dialect compiles a Query into parameterized SQL text.
type Dialect interface {
	// Compile renders sql with `$1..$N` placeholders (PostgreSQL's
	// positional-parameter syntax) and the matching ordered params slice.
	Compile(q *query.Query) (sql string, params []interface{}, err error)
}
