package audit

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"
)

// exportTimeLayout matches the on-screen trail format.
const exportTimeLayout = "2006-01-02 15:04:05"

// WriteCSV streams entries as CSV with a Timestamp,User,Action header.
// Timestamps are rendered in the given location.
func WriteCSV(w io.Writer, entries []Entry, loc *time.Location) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Timestamp", "User", "Action"}); err != nil {
		return fmt.Errorf("audit: write csv header: %w", err)
	}
	for _, e := range entries {
		actor := e.ActorName
		if actor == "" {
			actor = SystemActor
		}
		row := []string{e.CreatedAt.In(loc).Format(exportTimeLayout), actor, e.Action}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("audit: write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("audit: flush csv: %w", err)
	}
	return nil
}
