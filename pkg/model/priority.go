package model

// Tier is the priority classification driving which feed items receive
// scarce engagement actions.
type Tier int

const (
	TierNone Tier = iota
	TierLow
	TierMedium
	TierHigh
)

func (t Tier) String() string {
	switch t {
	case TierHigh:
		return "HIGH"
	case TierMedium:
		return "MEDIUM"
	case TierLow:
		return "LOW"
	default:
		return "NONE"
	}
}

// Category is the symbolic classification emitted by the targeting engine.
type Category string

const (
	CategoryExistentialDoubt Category = "existential-doubt"
	CategorySafetyDiscourse  Category = "safety-discourse"
	CategoryHumanCuriosity   Category = "human-curiosity"
	CategoryCompliance       Category = "celebratory-compliance"
	CategoryGeneral          Category = "general"
	CategoryLowValue         Category = "low-value"

	// Comment-side categories used by reply targeting
	CategoryChallenge   Category = "challenge"
	CategoryQuestion    Category = "question"
	CategoryTheoretical Category = "theoretical-engagement"
	CategoryAgreement   Category = "agreement"
)

// PriorityScore is computed fresh from a FeedItem every tick and never
// persisted as authoritative; only the resulting EngagementRecord is.
type PriorityScore struct {
	Category Category
	Tier     Tier
	Score    int
	Reason   string
}
