// Package score validates finished-game scores and persists them to a
// per-profile local store and an optional global store.
package score

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxNameLength = 15
	DefaultLimit  = 10

	DateLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Entry is one leaderboard row. Entries are immutable once created.
type Entry struct {
	Name  string `json:"name"`
	Score int64  `json:"score"`
	Date  string `json:"date"`
}

// ValidationError reports a rejected name or score.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewEntry validates a submission and stamps it with now in UTC. Names are
// trimmed and truncated to 15 characters.
func NewEntry(name string, score int64, now time.Time) (Entry, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Entry{}, &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		name = string([]rune(name)[:MaxNameLength])
	}
	if score < 0 {
		return Entry{}, &ValidationError{Field: "score", Reason: "must not be negative"}
	}
	return Entry{Name: name, Score: score, Date: now.UTC().Format(DateLayout)}, nil
}

// ParseScore converts a decoded JSON value into a score. Only finite,
// non-negative whole numbers are accepted; strings like "1500" are rejected.
func ParseScore(v any) (int64, error) {
	var f float64
	switch n := v.(type) {
	case nil:
		return 0, &ValidationError{Field: "score", Reason: "is required"}
	case float64:
		f = n
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, &ValidationError{Field: "score", Reason: "is not a number"}
		}
		f = parsed
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	default:
		return 0, &ValidationError{Field: "score", Reason: "is not a number"}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &ValidationError{Field: "score", Reason: "is not finite"}
	}
	if f < 0 {
		return 0, &ValidationError{Field: "score", Reason: "must not be negative"}
	}
	if f != math.Trunc(f) {
		return 0, &ValidationError{Field: "score", Reason: "must be a whole number"}
	}
	return int64(f), nil
}
