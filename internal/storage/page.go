package storage

import (
	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
)

// Dialect builds Postgres statements with numbered placeholders.
var Dialect = goqu.Dialect("postgres")

// Page bounds a list query. Zero values mean "from the start" and "no limit".
type Page struct {
	Offset uint
	Limit  uint
}

// Apply adds OFFSET and LIMIT clauses when set.
func (p Page) Apply(ds *goqu.SelectDataset) *goqu.SelectDataset {
	if p.Offset > 0 {
		ds = ds.Offset(p.Offset)
	}
	if p.Limit > 0 {
		ds = ds.Limit(p.Limit)
	}
	return ds
}

// Window returns the slice bounds [lo, hi) of n items covered by p.
func (p Page) Window(n int) (int, int) {
	lo := int(p.Offset)
	if lo > n {
		lo = n
	}
	hi := n
	if p.Limit > 0 && lo+int(p.Limit) < n {
		hi = lo + int(p.Limit)
	}
	return lo, hi
}
