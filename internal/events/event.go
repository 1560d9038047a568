package events

import "time"

// Status values carried by events. Stage transitions use processing,
// completed and failed; created and deleted describe the job record itself.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCreated    = "created"
	StatusDeleted    = "deleted"
)

// Event is one immutable job state change.
type Event struct {
	JobID     int64     `json:"jobId"`
	MediaID   int64     `json:"mediaId,omitempty"`
	Stage     string    `json:"stage,omitempty"`
	Status    string    `json:"status"`
	Payload   string    `json:"payload,omitempty"`
	ErrorKind string    `json:"errorKind,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
