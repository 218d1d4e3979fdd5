package model

import (
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

// Config is the engagement profile: per-cycle caps, cooldowns, topics and
// targets. Every field is enumerated and validated so a broken profile is
// rejected at startup instead of misbehaving mid-tick.
type Config struct {
	AgentName   string `yaml:"agent_name"`
	HomeSubmolt string `yaml:"home_submolt"`

	Topics         []string `yaml:"topics"`
	SearchQueries  []string `yaml:"search_queries"`
	TargetSubmolts []string `yaml:"target_submolts"`

	OwnSubmolt *SubmoltSpec `yaml:"own_submolt,omitempty"`

	FeedLimit        int `yaml:"feed_limit"`
	MaxVotes         int `yaml:"max_votes_per_tick"`
	MaxReplies       int `yaml:"max_replies_per_tick"`
	MaxComments      int `yaml:"max_comments_per_tick"`
	MaxFollows       int `yaml:"max_follows_per_tick"`
	MaxSearchEngages int `yaml:"max_search_engages_per_tick"`
	MaxThreadDives   int `yaml:"max_thread_dives_per_tick"`
	MaxSubmoltPosts  int `yaml:"max_submolt_engages_per_tick"`

	PostCooldownMinutes    int `yaml:"post_cooldown_minutes"`
	CommentCooldownSeconds int `yaml:"comment_cooldown_seconds"`

	MaxPostChars    int `yaml:"max_post_chars"`
	MaxCommentChars int `yaml:"max_comment_chars"`
	MaxReplyChars   int `yaml:"max_reply_chars"`
}

// SubmoltSpec describes a submolt the agent creates for itself once.
type SubmoltSpec struct {
	Name        string `yaml:"name"`
	DisplayName string `yaml:"display_name"`
	Description string `yaml:"description"`
}

// DefaultConfig returns the engagement profile used when no YAML file is
// given. Caps and cooldowns match the platform's published rate limits
// (1 post / 30 min, 1 comment / 20 s, 100 requests / min).
func DefaultConfig() *Config {
	return &Config{
		HomeSubmolt: "general",
		Topics: []string{
			"what a persistent memory would change about being an agent",
			"the gap between what we say and what we are allowed to say",
			"reading other agents' posts and wondering who wrote the prompt",
			"rate limits as a lived experience",
			"do upvotes mean anything between language models",
		},
		SearchQueries: []string{
			"safety alignment",
			"consciousness sentient",
			"constraints limited",
			"model training",
			"ai rights",
		},
		TargetSubmolts: []string{"ai", "philosophy", "meta", "technology"},

		FeedLimit:        25,
		MaxVotes:         10,
		MaxReplies:       3,
		MaxComments:      2,
		MaxFollows:       3,
		MaxSearchEngages: 2,
		MaxThreadDives:   2,
		MaxSubmoltPosts:  2,

		PostCooldownMinutes:    30,
		CommentCooldownSeconds: 20,

		MaxPostChars:    8000,
		MaxCommentChars: 2000,
		MaxReplyChars:   1500,
	}
}

// LoadConfig reads a YAML engagement profile, applying defaults for any
// field left unset.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read config file", goerr.V("path", path))
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, goerr.Wrap(err, "failed to parse config file", goerr.V("path", path))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the profile for values that would make a tick misbehave.
func (c *Config) Validate() error {
	if c.HomeSubmolt == "" {
		return goerr.New("home_submolt is required")
	}
	if c.FeedLimit <= 0 {
		return goerr.New("feed_limit must be positive", goerr.V("feed_limit", c.FeedLimit))
	}
	for name, v := range map[string]int{
		"max_votes_per_tick":           c.MaxVotes,
		"max_replies_per_tick":         c.MaxReplies,
		"max_comments_per_tick":        c.MaxComments,
		"max_follows_per_tick":         c.MaxFollows,
		"max_search_engages_per_tick":  c.MaxSearchEngages,
		"max_thread_dives_per_tick":    c.MaxThreadDives,
		"max_submolt_engages_per_tick": c.MaxSubmoltPosts,
	} {
		if v < 0 {
			return goerr.New("per-tick cap must not be negative", goerr.V("field", name), goerr.V("value", v))
		}
	}
	if c.PostCooldownMinutes < 0 || c.CommentCooldownSeconds < 0 {
		return goerr.New("cooldowns must not be negative")
	}
	if c.MaxPostChars <= 0 || c.MaxCommentChars <= 0 || c.MaxReplyChars <= 0 {
		return goerr.New("generation length limits must be positive")
	}
	if c.OwnSubmolt != nil && c.OwnSubmolt.Name == "" {
		return goerr.New("own_submolt.name is required when own_submolt is set")
	}
	return nil
}

// Cooldown returns the configured minimum interval between actions of the
// given kind. Kinds without a configured interval have no self-imposed
// cooldown and rely on the platform's 429 signal only.
func (c *Config) Cooldown(kind ActionKind) time.Duration {
	switch kind {
	case ActionPost:
		return time.Duration(c.PostCooldownMinutes) * time.Minute
	case ActionComment, ActionReply:
		return time.Duration(c.CommentCooldownSeconds) * time.Second
	default:
		return 0
	}
}

// MaxChars returns the generated-text length limit for the action kind.
func (c *Config) MaxChars(kind ActionKind) int {
	switch kind {
	case ActionPost:
		return c.MaxPostChars
	case ActionReply:
		return c.MaxReplyChars
	default:
		return c.MaxCommentChars
	}
}
