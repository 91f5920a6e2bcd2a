// Package cache holds the enrolled-template cache backends.
//
// Both backends return sentinel.ErrCacheMiss when no complete enrolled set is
// cached and sentinel.ErrUnavailable when the backend cannot be reached.
// Callers fall back to the template store in either case. A single-entry
// upsert never creates an index on its own: a lone entry would look like a
// complete enrolled set to readers.
package cache

import (
	"slices"
	"strings"

	"punchclock/internal/biometric/models"
)

// sortEntries orders entries by employee id so the scan order, and therefore
// tie-breaking, does not depend on backend iteration order.
func sortEntries(entries []models.Entry) {
	slices.SortFunc(entries, func(a, b models.Entry) int {
		return strings.Compare(a.EmployeeID.String(), b.EmployeeID.String())
	})
}
