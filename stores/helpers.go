package stores

import (
	"time"

	"github.com/oarkflow/date"
)

// parseFlexibleTime accepts the assorted timestamp formats policy tooling
// writes into document rows.
func parseFlexibleTime(s string) (time.Time, error) {
	return date.Parse(s)
}

func timeOrNil(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
