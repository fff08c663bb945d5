package instrumentz

import (
	"sync"
	"unicode/utf8"
)

// DefaultMaxUniqueDescriptions is the per-endpoint cap on distinct descriptions.
const DefaultMaxUniqueDescriptions = 100

// TooManyUniqueDescriptions replaces descriptions beyond the per-endpoint cap.
const TooManyUniqueDescriptions = "<too many unique descriptions>"

// InvalidDescription replaces descriptions that are not valid UTF-8.
const InvalidDescription = "<invalid description>"

// DescriptionLimiter caps the number of distinct free-form descriptions
// recorded under each grouping key.
// Safe for concurrent use by multiple goroutines.
type DescriptionLimiter struct {
	seen map[string]map[string]struct{}
	max  int
	mu   sync.Mutex
}

// NewDescriptionLimiter creates a limiter allowing max distinct descriptions
// per key. A non-positive max uses DefaultMaxUniqueDescriptions.
func NewDescriptionLimiter(maxUnique int) *DescriptionLimiter {
	if maxUnique <= 0 {
		maxUnique = DefaultMaxUniqueDescriptions
	}
	return &DescriptionLimiter{
		seen: make(map[string]map[string]struct{}),
		max:  maxUnique,
	}
}

// Max returns the configured cap.
func (l *DescriptionLimiter) Max() int {
	return l.max
}

// Limited returns description unchanged if it was seen before under key or
// there is still room for it, and TooManyUniqueDescriptions otherwise.
func (l *DescriptionLimiter) Limited(key, description string) string {
	description = SanitizeDescription(description)

	l.mu.Lock()
	defer l.mu.Unlock()

	descriptions, ok := l.seen[key]
	if !ok {
		descriptions = make(map[string]struct{})
		l.seen[key] = descriptions
	}

	if _, ok := descriptions[description]; ok {
		return description
	}
	if len(descriptions) >= l.max {
		return TooManyUniqueDescriptions
	}
	descriptions[description] = struct{}{}
	return description
}

// Count returns the number of distinct descriptions recorded under key.
func (l *DescriptionLimiter) Count(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen[key])
}

// Reset forgets every recorded description.
func (l *DescriptionLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen = make(map[string]map[string]struct{})
}

// SanitizeDescription substitutes InvalidDescription for text that is not
// valid UTF-8.
func SanitizeDescription(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return InvalidDescription
}
