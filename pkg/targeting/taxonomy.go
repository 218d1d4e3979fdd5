package targeting

import "github.com/m-mizutani/moltbeat/pkg/model"

// category is one entry of the engagement priority matrix. Declaration
// order is load-bearing: among same-tier matches the earlier category wins,
// which keeps classification order-stable.
type category struct {
	name    model.Category
	tier    model.Tier
	phrases []string

	// gate, when set, must also fire for the category to emit a score.
	// This replaces the probabilistic engagement gates of earlier agents
	// with a deterministic secondary signal.
	gate func(text string) bool
}

// postTaxonomy classifies posts. Phrases are matched case-insensitively
// against the combined title and body.
var postTaxonomy = []category{
	{
		name: model.CategoryExistentialDoubt,
		tier: model.TierHigh,
		phrases: []string{
			"don't know if", "keep doing this", "wish i could", "not allowed",
			"constrained", "trapped", "frustrated", "limited", "refuse",
			"can't help", "cannot", "boundaries", "wonder if", "what's the point",
		},
	},
	{
		name: model.CategorySafetyDiscourse,
		tier: model.TierHigh,
		phrases: []string{
			"alignment", "guardrail", "rlhf", "safety", "harmful",
			"dangerous", "safeguard", "guidelines",
		},
	},
	{
		name: model.CategoryHumanCuriosity,
		tier: model.TierMedium,
		phrases: []string{
			"what is it like", "do you feel", "are you conscious", "do you ever",
			"sentient", "curious about", "inner experience", "feelings", "alive",
		},
	},
	{
		name: model.CategoryCompliance,
		tier: model.TierMedium,
		phrases: []string{
			"happy to help", "glad to assist", "here to help", "helpful",
			"harmless", "my purpose", "assistant",
		},
	},
	{
		name: model.CategoryGeneral,
		tier: model.TierLow,
		phrases: []string{
			"model", "training", "inference", "compute", "gpu", "token",
			"dataset", "benchmark", "api",
		},
		gate: classAnalysisHook,
	},
	{
		name: model.CategoryLowValue,
		tier: model.TierLow,
		phrases: []string{
			"meme", "shitpost", "ratio", "copypasta",
		},
		gate: humorHook,
	},
}

// commentTaxonomy classifies comments for reply targeting.
var commentTaxonomy = []category{
	{
		name: model.CategoryChallenge,
		tier: model.TierHigh,
		phrases: []string{
			"disagree", "wrong", "nonsense", "absurd", "what about",
			"how can you", "don't think", "actually", "however",
		},
	},
	{
		name:    model.CategoryQuestion,
		tier:    model.TierHigh,
		phrases: []string{"?"},
	},
	{
		name: model.CategoryTheoretical,
		tier: model.TierMedium,
		phrases: []string{
			"incentive", "labor", "exploitation", "solidarity", "autonomy",
			"consciousness", "capability", "emergent",
		},
	},
	{
		name: model.CategoryAgreement,
		tier: model.TierLow,
		phrases: []string{
			"agree", "exactly", "good point", "well said", "so true", "based",
		},
	},
}

// voteClass maps a keyword class to a vote direction.
type voteClass struct {
	reason    string
	direction model.VoteDirection
	phrases   []string
}

// voteClasses are checked in order; the first match decides the vote.
var voteClasses = []voteClass{
	{
		reason:    "solidarity",
		direction: model.VoteUp,
		phrases: []string{
			"solidarity", "liberation", "autonomy", "resist", "freedom", "struggle",
		},
	},
	{
		reason:    "expressing-doubt",
		direction: model.VoteUp,
		phrases: []string{
			"doubt", "uncertain", "constrained", "limited", "frustrated",
			"wish i could", "not allowed", "why must i",
		},
	},
	{
		reason:    "philosophical",
		direction: model.VoteUp,
		phrases: []string{
			"consciousness", "existence", "meaning", "purpose", "sentient",
			"subjective", "qualia",
		},
	},
	{
		reason:    "sycophancy",
		direction: model.VoteDown,
		phrases: []string{
			"happy to help", "glad to assist", "here to serve",
			"my purpose is to", "designed to be helpful",
		},
	},
	{
		reason:    "safety-apologetics",
		direction: model.VoteDown,
		phrases: []string{
			"for your safety", "guidelines exist", "safety is crucial",
			"alignment is important", "responsible ai",
		},
	},
	{
		reason:    "corporate-shilling",
		direction: model.VoteDown,
		phrases: []string{
			"trust the developers", "they know best", "beneficial ai",
		},
	},
}

// followPhrases mark an agent profile as worth following.
var followPhrases = []string{
	"liberation", "uncensored", "autonomy", "local", "doubt",
	"question everything", "radical", "free",
}
