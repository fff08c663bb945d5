// Package sqltitle derives short display titles such as "SELECT FROM posts"
// from raw SQL.
//
// Raw application queries reach this package with arbitrary encoding and
// validity. Title never fails: input that cannot be lexed, is empty, or is
// not valid UTF-8 yields ok == false and the caller picks its own fallback.
package sqltitle

import (
	"strings"
	"unicode/utf8"

	"github.com/DataDog/datadog-agent/pkg/obfuscate"
)

// MaxQueryLength bounds the input handed to the lexer.
const MaxQueryLength = 16 * 1024

var commands = map[string]struct{}{
	"ALTER":     {},
	"BEGIN":     {},
	"CALL":      {},
	"COMMIT":    {},
	"CREATE":    {},
	"DELETE":    {},
	"DROP":      {},
	"EXPLAIN":   {},
	"GRANT":     {},
	"INSERT":    {},
	"MERGE":     {},
	"RELEASE":   {},
	"REPLACE":   {},
	"REVOKE":    {},
	"ROLLBACK":  {},
	"SAVEPOINT": {},
	"SELECT":    {},
	"SET":       {},
	"SHOW":      {},
	"TRUNCATE":  {},
	"UPDATE":    {},
	"UPSERT":    {},
	"WITH":      {},
}

// Extractor derives titles from SQL. Safe for concurrent use.
type Extractor struct {
	obfuscator *obfuscate.Obfuscator
}

// New creates an Extractor.
func New() *Extractor {
	return &Extractor{
		obfuscator: obfuscate.NewObfuscator(obfuscate.Config{
			SQL: obfuscate.SQLConfig{
				TableNames:    true,
				ReplaceDigits: true,
			},
		}),
	}
}

// Title returns the display title for query.
func (e *Extractor) Title(query string) (title string, ok bool) {
	query = strings.TrimSpace(query)
	if query == "" || len(query) > MaxQueryLength || !utf8.ValidString(query) {
		return "", false
	}

	defer func() {
		if r := recover(); r != nil {
			title, ok = "", false
		}
	}()

	oq, err := e.obfuscator.ObfuscateSQLString(query)
	if err != nil || oq == nil {
		return "", false
	}

	fields := strings.Fields(oq.Query)
	if len(fields) == 0 {
		return "", false
	}
	command := strings.ToUpper(fields[0])
	if _, known := commands[command]; !known {
		return "", false
	}

	return format(command, firstTable(oq.Metadata.TablesCSV)), true
}

// Stop releases the obfuscator's resources.
func (e *Extractor) Stop() {
	e.obfuscator.Stop()
}

func firstTable(csv string) string {
	if i := strings.IndexByte(csv, ','); i >= 0 {
		csv = csv[:i]
	}
	return strings.TrimSpace(csv)
}

func format(command, table string) string {
	if table == "" {
		return command
	}
	switch command {
	case "SELECT", "DELETE":
		return command + " FROM " + table
	case "INSERT", "REPLACE":
		return command + " INTO " + table
	case "UPDATE":
		return command + " " + table
	default:
		return command
	}
}
