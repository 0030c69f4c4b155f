// Package ids generates project, history and item identifiers.
package ids

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// ProjectPrefix returns the year prefix for project ids, e.g. "P2024".
func ProjectPrefix(now time.Time) string {
	return fmt.Sprintf("P%d", now.Year())
}

// NextProjectID returns the next sequential id for now's year: the highest
// numeric suffix among existing ids with the year prefix, plus one, padded to
// three digits. Ids from other years and non-numeric suffixes are ignored.
func NextProjectID(existing []string, now time.Time) string {
	prefix := ProjectPrefix(now)
	last := 0
	for _, id := range existing {
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(id, prefix))
		if err != nil || n < 0 {
			continue
		}
		last = max(last, n)
	}
	return fmt.Sprintf("%s%03d", prefix, last+1)
}

// HistoryID names a snapshot by project and save minute (UTC).
func HistoryID(projectID string, t time.Time) string {
	return projectID + "_" + t.UTC().Format("20060102_1504")
}

// NewItemID returns a fresh lower-case ULID for tasks and milestones.
func NewItemID() string {
	return strings.ToLower(ulid.Make().String())
}
