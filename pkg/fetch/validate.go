package fetch

import (
	"regexp"
)

// identifierPattern accepts lowercase letters and hyphens, minimum length 3.
var identifierPattern = regexp.MustCompile(`^[a-z-]{3,}$`)

// ValidIdentifier reports whether item is a fetchable work item.
// Invalid items are rejected before any network I/O.
func ValidIdentifier(item string) bool {
	return identifierPattern.MatchString(item)
}
