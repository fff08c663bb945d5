package instrumentz

import (
	"context"

	"github.com/zoobzio/instrumentz/sqltitle"
)

// defaultSQLTitle is used when a query has no name and no title can be
// extracted from it.
const defaultSQLTitle = "SQL"

var sqlTitles = sqltitle.New()

// SQLTitle returns the span title for a query: name when set, otherwise a
// title extracted from query, otherwise "SQL". It never fails.
func SQLTitle(name, query string) string {
	if name = SanitizeDescription(name); name != "" && name != InvalidDescription {
		return name
	}
	if title, ok := sqlTitles.Title(query); ok {
		return title
	}
	return defaultSQLTitle
}

// InstrumentSQL records a db.sql.query span around fn.
func InstrumentSQL(ctx context.Context, t Tracer, name, query string, fn func(context.Context, *SpanScope) error) error {
	return t.Instrument(ctx, CategorySQLQuery, SQLTitle(name, query), fn)
}
