package feedback

import "time"

// Entry is one piece of user feedback (suggestion, issue, ...).
type Entry struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}
