package model

import (
	"time"

	"github.com/google/uuid"
)

type RecordID string

// NewRecordID generates a new unique RecordID
func NewRecordID() RecordID {
	return RecordID(uuid.New().String())
}

// ActionKind identifies the type of engagement action. Rate limiting and
// deduplication are tracked per kind.
type ActionKind string

const (
	ActionPost      ActionKind = "post"
	ActionComment   ActionKind = "comment"
	ActionReply     ActionKind = "reply"
	ActionVote      ActionKind = "vote"
	ActionFollow    ActionKind = "follow"
	ActionSubscribe ActionKind = "subscribe"
)

// Validate checks if the action kind is valid
func (k ActionKind) Validate() error {
	switch k {
	case ActionPost, ActionComment, ActionReply, ActionVote, ActionFollow, ActionSubscribe:
		return nil
	default:
		return ErrInvalidActionKind
	}
}

// EngagementRecord is the append-only audit record of one action taken.
// Dedup decisions use the AgentState identifier sets, not these records.
type EngagementRecord struct {
	ID        RecordID   `json:"id"`
	Kind      ActionKind `json:"kind"`
	Target    string     `json:"target"`
	Category  Category   `json:"category,omitempty"`
	Tier      Tier       `json:"tier,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Excerpt   string     `json:"excerpt,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// ContentLogEntry is one record of the append-only generated-content log,
// written per generation attempt for operator audit.
type ContentLogEntry struct {
	Timestamp time.Time  `json:"timestamp"`
	Kind      ActionKind `json:"kind"`
	Target    string     `json:"target,omitempty"`
	Category  Category   `json:"category,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Title     string     `json:"title,omitempty"`
	Content   string     `json:"content"`
	Published bool       `json:"published"`
}
