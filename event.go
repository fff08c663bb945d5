package instrumentz

import "strings"

// Well-known categories.
const (
	CategoryMethod   Category = "app.method"
	CategorySQLQuery Category = "db.sql.query"
	categoryOther             = "other"
)

// knownNamespaces lists the top-level category segments that pass through
// normalization unchanged.
var knownNamespaces = map[string]struct{}{
	"api":   {},
	"app":   {},
	"cache": {},
	"db":    {},
	"noop":  {},
	"other": {},
	"view":  {},
}

// Event describes what a span represents.
type Event struct {
	Category Category `json:"category"`
	Title    string   `json:"title,omitempty"`
}

// NewEvent builds a normalized event. It fails only for an empty category.
func NewEvent(category Category, title string) (Event, error) {
	if category == "" {
		return Event{}, ErrEmptyCategory
	}
	return Event{
		Category: NormalizeCategory(category),
		Title:    title,
	}, nil
}

// NormalizeCategory returns category unchanged when its top-level segment is
// a known namespace, and "other.<category>" otherwise.
func NormalizeCategory(category Category) Category {
	namespace := category
	if i := strings.IndexByte(category, '.'); i >= 0 {
		namespace = category[:i]
	}
	if _, ok := knownNamespaces[namespace]; ok {
		return category
	}
	return categoryOther + "." + category
}
