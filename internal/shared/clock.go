package shared

import (
	"fmt"
	"time"
)

// Clock stamps records in a single configured timezone so that audit
// entries and backup names stay consistent across machines. The lab
// runs on Indian Standard Time regardless of where the host is.
type Clock struct {
	loc *time.Location
}

// NewClock loads the named timezone.
func NewClock(name string) (*Clock, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("shared: load timezone %q: %w", name, err)
	}
	return &Clock{loc: loc}, nil
}

// Now returns the current time in the configured zone.
func (c *Clock) Now() time.Time {
	return time.Now().In(c.loc)
}

// Location exposes the configured zone.
func (c *Clock) Location() *time.Location {
	return c.loc
}

// Stamp formats t for filenames, e.g. 2024-03-10_17-45-01.
func (c *Clock) Stamp(t time.Time) string {
	return t.In(c.loc).Format("2006-01-02_15-04-05")
}
