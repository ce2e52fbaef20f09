// Package enums holds the string-backed states and kinds stored in Postgres.
// Each type lists its members once; IsValid and Parse* derive from that list.
package enums

import (
	"fmt"
	"slices"
)

func isMember[T ~string](value T, members []T) bool {
	return slices.Contains(members, value)
}

func parseMember[T ~string](kind, raw string, members []T) (T, error) {
	if value := T(raw); slices.Contains(members, value) {
		return value, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, raw)
}
