package services

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MaxWorkTime bounds a single work log entry.
const MaxWorkTime = 24 * time.Hour

// NumericString accepts either a JSON number or a JSON string.
type NumericString string

func (n *NumericString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*n = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = NumericString(s)
		return nil
	}
	*n = NumericString(data)
	return nil
}

func parsePositiveInt(field string, v NumericString) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(string(v)))
	if err != nil {
		return 0, validationError("%s must be an integer, got %q", field, string(v))
	}
	if n <= 0 {
		return 0, validationError("%s must be positive, got %d", field, n)
	}
	return n, nil
}

func parseObjectID(what, hex string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(strings.TrimSpace(hex))
	if err != nil {
		return primitive.NilObjectID, validationError("invalid %s id %q", what, hex)
	}
	return id, nil
}

// parseObjectIDs keeps nil as nil so callers can tell "absent" from "empty".
// Duplicates are dropped, first occurrence wins.
func parseObjectIDs(what string, hexes []string) ([]primitive.ObjectID, error) {
	if hexes == nil {
		return nil, nil
	}
	ids := make([]primitive.ObjectID, 0, len(hexes))
	seen := make(map[primitive.ObjectID]bool, len(hexes))
	for _, h := range hexes {
		id, err := parseObjectID(what, h)
		if err != nil {
			return nil, err
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func parseOptionalObjectID(what, hex string) (*primitive.ObjectID, error) {
	if strings.TrimSpace(hex) == "" {
		return nil, nil
	}
	id, err := parseObjectID(what, hex)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func parseDate(field, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Time{}, validationError("%s must be a date, got %q", field, s)
}

func parseOptionalDate(field, s string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := parseDate(field, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// cleanTags trims, drops blanks and duplicates. A nil input stays nil.
func cleanTags(tags []string) []string {
	if tags == nil {
		return nil
	}
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

func validateWorkTime(ms int64) error {
	if ms <= 0 || time.Duration(ms)*time.Millisecond > MaxWorkTime {
		return validationError("work time must be between 1ms and %s, got %dms", MaxWorkTime, ms)
	}
	return nil
}

func validateComment(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", validationError("comment must not be empty")
	}
	return text, nil
}
