package shared

// Option is a generic select-box entry.
type Option struct {
	ID   int64
	Name string
}
