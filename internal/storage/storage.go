package storage

import "time"

// Event is one transcript entry: a single user or assistant turn.
// Events are expected to be appended in chronological order.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	UserID    int64     `json:"user_id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
}

// Recorder abstracts append-only persistence of transcript events.
// Implementations can be file-based, database, etc.
// LoadInteractions should return events in chronological order.
// Implementations must be safe for concurrent use.
type Recorder interface {
	AppendInteraction(event Event) error
	LoadInteractions() ([]Event, error)
}
