package repository_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/moltbeat/pkg/model"
	"github.com/m-mizutani/moltbeat/pkg/repository"
)

func TestLoadStateMissingFile(t *testing.T) {
	dir := t.TempDir()
	repo := gt.R1(repository.NewLocal(filepath.Join(dir, "state.json"))).NoError(t)

	state := gt.R1(repo.LoadState(context.Background())).NoError(t)
	gt.V(t, state).NotNil()
	gt.V(t, len(state.CommentedPosts)).Equal(0)
	gt.V(t, len(state.Records)).Equal(0)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	repo := gt.R1(repository.NewLocal(filepath.Join(dir, "state.json"))).NoError(t)
	ctx := context.Background()

	state := model.NewAgentState()
	state.CommentedPosts.Add("p1")
	state.VotedTargets.Add("post:p2")
	state.SetCooldown(model.ActionPost, time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC))
	state.MarkAction(model.ActionComment, time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC))
	state.Append(&model.EngagementRecord{
		ID:     model.NewRecordID(),
		Kind:   model.ActionComment,
		Target: "p1",
	})

	gt.NoError(t, repo.SaveState(ctx, state))

	loaded := gt.R1(repo.LoadState(ctx)).NoError(t)
	gt.True(t, loaded.CommentedPosts.Has("p1"))
	gt.True(t, loaded.VotedTargets.Has("post:p2"))
	gt.A(t, loaded.Records).Length(1)

	// Cooldowns survive a restart.
	now := time.Date(2026, 9, 1, 11, 0, 0, 0, time.UTC)
	gt.True(t, loaded.InCooldown(model.ActionPost, 30*time.Minute, now))
	after := time.Date(2026, 9, 1, 13, 0, 0, 0, time.UTC)
	gt.False(t, loaded.InCooldown(model.ActionPost, 30*time.Minute, after))
}

func TestLoadStateCorruptFileFailsClosed(t *testing.T) {
	dir := t.TempDir()
	statePath := filepath.Join(dir, "state.json")
	gt.NoError(t, os.WriteFile(statePath, []byte("{not json"), 0o644))

	repo := gt.R1(repository.NewLocal(statePath)).NoError(t)

	_, err := repo.LoadState(context.Background())
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrStateCorrupted))
}

func TestSaveStateAtomicReplace(t *testing.T) {
	dir := t.TempDir()
	statePath := filepath.Join(dir, "state.json")
	repo := gt.R1(repository.NewLocal(statePath)).NoError(t)
	ctx := context.Background()

	first := model.NewAgentState()
	first.CommentedPosts.Add("old")
	gt.NoError(t, repo.SaveState(ctx, first))

	// A leftover temp file from a crash between write and rename must not
	// affect what a reader sees.
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "state.json.tmp-dead"), []byte("garbage"), 0o644))

	second := model.NewAgentState()
	second.CommentedPosts.Add("old")
	second.CommentedPosts.Add("new")
	gt.NoError(t, repo.SaveState(ctx, second))

	data := gt.R1(os.ReadFile(statePath)).NoError(t)
	var onDisk model.AgentState
	gt.NoError(t, json.Unmarshal(data, &onDisk))
	gt.True(t, onDisk.CommentedPosts.Has("new"))
}

func TestAppendContent(t *testing.T) {
	dir := t.TempDir()
	repo := gt.R1(repository.NewLocal(
		filepath.Join(dir, "state.json"),
		repository.WithContentLog(filepath.Join(dir, "content.jsonl")),
	)).NoError(t)
	ctx := context.Background()

	gt.NoError(t, repo.AppendContent(ctx, &model.ContentLogEntry{
		Kind:      model.ActionPost,
		Title:     "first",
		Content:   "hello",
		Published: true,
	}))
	gt.NoError(t, repo.AppendContent(ctx, &model.ContentLogEntry{
		Kind:    model.ActionComment,
		Content: "second",
	}))

	data := gt.R1(os.ReadFile(filepath.Join(dir, "content.jsonl"))).NoError(t)
	lines := 0
	for _, b := range data {
		if b == '\n' {
			lines++
		}
	}
	gt.V(t, lines).Equal(2)
}
