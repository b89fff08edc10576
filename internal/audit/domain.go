package audit

import "time"

// SystemActor is printed in exports when an entry has no user.
const SystemActor = "System"

// Entry is one immutable "who did what, when" record.
type Entry struct {
	ID        int64
	UserID    *int64
	ActorName string // display name at query time; empty for system actions
	Action    string
	CreatedAt time.Time
}

// Filters narrows a trail query. Search matches the actor display name
// and the action text, case-insensitively, as a substring.
type Filters struct {
	Search   string
	Page     int
	PageSize int
}
