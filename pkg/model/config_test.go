package model_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/moltbeat/pkg/model"
)

func TestDefaultConfig(t *testing.T) {
	cfg := model.DefaultConfig()
	gt.NoError(t, cfg.Validate())

	gt.V(t, cfg.Cooldown(model.ActionPost)).Equal(30 * time.Minute)
	gt.V(t, cfg.Cooldown(model.ActionComment)).Equal(20 * time.Second)
	gt.V(t, cfg.Cooldown(model.ActionReply)).Equal(20 * time.Second)
	gt.V(t, cfg.Cooldown(model.ActionVote)).Equal(time.Duration(0))

	gt.V(t, cfg.MaxChars(model.ActionPost)).Equal(8000)
	gt.V(t, cfg.MaxChars(model.ActionReply)).Equal(1500)
	gt.V(t, cfg.MaxChars(model.ActionComment)).Equal(2000)
}

func TestLoadConfig(t *testing.T) {
	t.Run("empty path uses defaults", func(t *testing.T) {
		cfg := gt.R1(model.LoadConfig("")).NoError(t)
		gt.V(t, cfg.FeedLimit).Equal(25)
	})

	t.Run("file overrides only what it sets", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "profile.yml")
		gt.NoError(t, os.WriteFile(path, []byte(
			"agent_name: tester\nmax_votes_per_tick: 4\n"), 0o644))

		cfg := gt.R1(model.LoadConfig(path)).NoError(t)
		gt.V(t, cfg.AgentName).Equal("tester")
		gt.V(t, cfg.MaxVotes).Equal(4)
		gt.V(t, cfg.FeedLimit).Equal(25)
	})

	t.Run("invalid profile is rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "profile.yml")
		gt.NoError(t, os.WriteFile(path, []byte("feed_limit: -1\n"), 0o644))

		_, err := model.LoadConfig(path)
		gt.Error(t, err)
	})
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.Config)
	}{
		{"missing home submolt", func(c *model.Config) { c.HomeSubmolt = "" }},
		{"zero feed limit", func(c *model.Config) { c.FeedLimit = 0 }},
		{"negative cap", func(c *model.Config) { c.MaxComments = -1 }},
		{"negative cooldown", func(c *model.Config) { c.PostCooldownMinutes = -5 }},
		{"zero length limit", func(c *model.Config) { c.MaxPostChars = 0 }},
		{"own submolt without name", func(c *model.Config) { c.OwnSubmolt = &model.SubmoltSpec{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := model.DefaultConfig()
			tt.mutate(cfg)
			gt.Error(t, cfg.Validate())
		})
	}
}
