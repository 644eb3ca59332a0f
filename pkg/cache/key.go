package cache

import (
	"strings"
)

// Key identifies a cached payload.
type Key struct {
	// Identifier is the work item the payload belongs to (e.g. "bulbasaur").
	Identifier string

	// Namespace separates caches of different upstream endpoints sharing
	// one Redis instance. Empty means the default namespace.
	Namespace string
}

// String generates a deterministic Redis key.
// Format: pokefetch:<namespace>:<identifier>
//
// Example:
//
//	pokefetch:pokemon:bulbasaur
func (k Key) String() string {
	namespace := k.Namespace
	if namespace == "" {
		namespace = "default"
	}

	return strings.Join([]string{"pokefetch", namespace, k.Identifier}, ":")
}
