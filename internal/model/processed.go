package model

import "time"

// Outcome is the terminal state a message reaches after one pipeline pass.
type Outcome string

// Terminal outcomes for a processed message.
const (
	// OutcomeSuccess means at least one extraction path produced a durable upsert.
	OutcomeSuccess Outcome = "success"
	// OutcomeNoAction means no rule matched or the matched rule selected nothing.
	OutcomeNoAction Outcome = "no_action"
	// OutcomeFailed means every qualifying path for the matched rule failed.
	OutcomeFailed Outcome = "failed"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeSuccess, OutcomeNoAction, OutcomeFailed:
		return true
	}
	return false
}

// ProcessedEntry records that a message reached a terminal outcome. Failed
// entries carry an attempt counter; once it reaches the configured bound the
// message is dead-lettered and never reattempted automatically.
type ProcessedEntry struct {
	FirstSeenAt time.Time
	UpdatedAt   time.Time
	MessageID   string
	Outcome     Outcome
	LastError   string
	Attempts    int
}

// ArchivedDocument records that an attachment was uploaded to object storage.
type ArchivedDocument struct {
	UploadedAt time.Time
	MessageID  string
	Filename   string
	ObjectPath string
}
