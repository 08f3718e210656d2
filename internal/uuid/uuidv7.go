// Package uuid wraps github.com/google/uuid with the id conventions used by
// the models: time-ordered v7 ids rendered as strings.
package uuid

import (
	googleuuid "github.com/google/uuid"
)

// New generates a new UUIDv7. v7 ids sort by creation time, which keeps
// primary-key inserts append-only.
func New() string {
	id, err := googleuuid.NewV7()
	if err != nil {
		return googleuuid.New().String()
	}
	return id.String()
}

// Parse validates and normalizes a UUID string.
func Parse(s string) (string, error) {
	parsed, err := googleuuid.Parse(s)
	if err != nil {
		return "", err
	}
	return parsed.String(), nil
}

// IsValid checks if a string is a valid UUID
func IsValid(s string) bool {
	_, err := googleuuid.Parse(s)
	return err == nil
}

// ParseAll normalizes every id in ids, failing on the first invalid one.
func ParseAll(ids []string) ([]string, error) {
	out := make([]string, 0, len(ids))
	for _, s := range ids {
		id, err := Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
