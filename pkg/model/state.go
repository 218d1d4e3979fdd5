package model

import (
	"encoding/json"
	"sort"
	"time"
)

// IDSet is a monotonically growing set of identifiers. It marshals as a
// sorted JSON array so state files diff cleanly.
type IDSet map[string]struct{}

func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s IDSet) Add(id string) {
	s[id] = struct{}{}
}

// Sorted returns the members in sorted order for deterministic iteration.
func (s IDSet) Sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s IDSet) MarshalJSON() ([]byte, error) {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return json.Marshal(ids)
}

func (s *IDSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewIDSet(ids...)
	return nil
}

// maxRecords bounds the audit trail kept in state. The dedup sets, not the
// record list, are what guarantee at-most-once engagement.
const maxRecords = 200

// AgentState is the bot's persisted state. It is owned by a single
// orchestrator instance for the duration of a tick: loaded at tick start,
// mutated in memory, and written back atomically at tick end.
type AgentState struct {
	LastFeedCheck time.Time `json:"last_feed_check,omitzero"`

	CommentedPosts  IDSet `json:"commented_posts"`
	RepliedComments IDSet `json:"replied_comments"`
	VotedTargets    IDSet `json:"voted_targets"`
	FollowedAgents  IDSet `json:"followed_agents"`
	CheckedProfiles IDSet `json:"checked_profiles"`
	Subscribed      IDSet `json:"subscribed_submolts"`
	CreatedSubmolts IDSet `json:"created_submolts"`
	OwnPosts        IDSet `json:"own_posts"`
	OwnComments     IDSet `json:"own_comments"`

	LastActionAt  map[ActionKind]time.Time `json:"last_action_at"`
	CooldownUntil map[ActionKind]time.Time `json:"cooldown_until"`

	// Rotation cursors, not dedup sets: they wrap around by design.
	TopicCursor int `json:"topic_cursor"`
	QueryCursor int `json:"query_cursor"`

	Records []*EngagementRecord `json:"records"`
}

// NewAgentState returns an empty state for a first run.
func NewAgentState() *AgentState {
	return &AgentState{
		CommentedPosts:  NewIDSet(),
		RepliedComments: NewIDSet(),
		VotedTargets:    NewIDSet(),
		FollowedAgents:  NewIDSet(),
		CheckedProfiles: NewIDSet(),
		Subscribed:      NewIDSet(),
		CreatedSubmolts: NewIDSet(),
		OwnPosts:        NewIDSet(),
		OwnComments:     NewIDSet(),
		LastActionAt:    make(map[ActionKind]time.Time),
		CooldownUntil:   make(map[ActionKind]time.Time),
	}
}

// Normalize initializes nil collections after unmarshalling an older or
// hand-edited state file.
func (s *AgentState) Normalize() {
	for _, set := range []*IDSet{
		&s.CommentedPosts, &s.RepliedComments, &s.VotedTargets,
		&s.FollowedAgents, &s.CheckedProfiles, &s.Subscribed,
		&s.CreatedSubmolts, &s.OwnPosts, &s.OwnComments,
	} {
		if *set == nil {
			*set = NewIDSet()
		}
	}
	if s.LastActionAt == nil {
		s.LastActionAt = make(map[ActionKind]time.Time)
	}
	if s.CooldownUntil == nil {
		s.CooldownUntil = make(map[ActionKind]time.Time)
	}
}

// InCooldown reports whether the action kind is suppressed at the given
// time, either by the configured interval since the last action or by an
// explicit cooldown recorded from a platform 429.
func (s *AgentState) InCooldown(kind ActionKind, interval time.Duration, now time.Time) bool {
	if until, ok := s.CooldownUntil[kind]; ok && now.Before(until) {
		return true
	}
	if interval <= 0 {
		return false
	}
	last, ok := s.LastActionAt[kind]
	return ok && now.Before(last.Add(interval))
}

// SetCooldown records an explicit platform-imposed cooldown for the kind.
func (s *AgentState) SetCooldown(kind ActionKind, until time.Time) {
	s.CooldownUntil[kind] = until
}

// MarkAction updates the rate-limit window for the kind.
func (s *AgentState) MarkAction(kind ActionKind, at time.Time) {
	s.LastActionAt[kind] = at
}

// Append adds an engagement record, trimming the audit trail to its bound.
func (s *AgentState) Append(rec *EngagementRecord) {
	s.Records = append(s.Records, rec)
	if len(s.Records) > maxRecords {
		s.Records = s.Records[len(s.Records)-maxRecords:]
	}
}
