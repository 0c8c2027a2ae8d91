// Package idgen generates the identifiers of telemetry rows and kiosk
// sessions.
package idgen

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator of RFC 9562 version 7 UUIDs. They sort by
// creation time, so rows of one session stay adjacent in an index.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed prepends prefix to every ID of gen ("ses_", "evt_").
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default is UUIDv7.
var Default Generator = UUIDv7()

// New produces an ID with Default.
func New() string {
	return Default()
}

// Parse validates a UUID, with or without a prefix ending in '_', and
// returns it in canonical form.
func Parse(s string) (string, error) {
	prefix, raw := "", s
	if i := strings.LastIndexByte(s, '_'); i >= 0 {
		prefix, raw = s[:i+1], s[i+1:]
	}
	u, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("idgen: invalid id %q: %w", s, err)
	}
	return prefix + u.String(), nil
}
