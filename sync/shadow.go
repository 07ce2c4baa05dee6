package sync

import (
	"fmt"
	"strings"

	"github.com/entropydb/entity"
	"github.com/entropydb/entity/ddl"
	reflectpkg "github.com/entropydb/entity/reflect"
)

// PositionsMatch reports whether every column e declares that still
// exists in live appears in the same relative order on both sides.
// Columns dropped or added don't count against the comparison — only
// the order of the columns the two sides have in common matters.
func PositionsMatch(e *entity.Entity, live *reflectpkg.Table) bool {
	liveIndex := make(map[string]int, len(live.Columns))
	for i, c := range live.Columns {
		liveIndex[c.Name] = i
	}

	var positions []int
	for _, f := range e.Fields() {
		if idx, ok := liveIndex[f.Name()]; ok {
			positions = append(positions, idx)
		}
	}
	for i := 1; i < len(positions); i++ {
		if positions[i] < positions[i-1] {
			return false
		}
	}
	return true
}

// RecreateViaShadow rebuilds e's table from scratch to fix a column-order
// mismatch an in-place ALTER TABLE cannot express: it creates "<table>_tmp"
// with e's current declaration, copies every row across by name, drops the
// original, and renames the temporary table back.
func RecreateViaShadow(e *entity.Entity) []ddl.Statement {
	tmpName := entity.QualifiedName{Schema: e.Qualified.Schema, Name: e.Qualified.Name + "_tmp"}
	tmp := e.Renamed(tmpName)

	var cols []string
	for _, f := range e.Fields() {
		cols = append(cols, ddl.QuoteIdent(f.Name()))
	}
	colList := strings.Join(cols, ", ")

	copyRows := ddl.Statement{
		SQL: fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
			ddl.QualifiedIdent(tmpName), colList, colList, ddl.QualifiedIdent(e.Qualified)),
		Kind: ddl.KindFixtureDML,
	}
	rename := ddl.Statement{
		SQL:  fmt.Sprintf("ALTER TABLE %s RENAME TO %s", ddl.QualifiedIdent(tmpName), ddl.QuoteIdent(e.Qualified.Name)),
		Kind: ddl.KindCreateTable,
	}

	return []ddl.Statement{
		ddl.CreateTable(tmp),
		copyRows,
		ddl.DropTable(e),
		rename,
	}
}
