package roles

import (
	"strings"

	"golang.org/x/text/cases"
)

var nameFolder = cases.Fold()

// foldName normalizes a role name for case-insensitive uniqueness
// within a scope. Unicode case folding rather than plain lowercasing so
// names in any alphabet collide predictably.
func foldName(name string) string {
	return nameFolder.String(strings.TrimSpace(name))
}
