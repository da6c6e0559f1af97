package domain

import "time"

// DefaultQueueName is the queue synthesized when a ticket is created and no
// default queue exists yet.
const DefaultQueueName = "General"

// Queue is a named routing bucket for tickets. At most one queue is marked
// default at any time; the default queue receives tickets created without an
// explicit queue and cannot be deleted.
type Queue struct {
	ID          string
	Name        string
	Description string
	IsDefault   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// QueueSummary is the reference view of a queue embedded in ticket responses.
type QueueSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Summary projects the queue to its reference view.
func (q *Queue) Summary() QueueSummary {
	return QueueSummary{ID: q.ID, Name: q.Name}
}
