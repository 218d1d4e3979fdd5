package heartbeat

import (
	"context"
	"errors"

	"github.com/m-mizutani/moltbeat/pkg/model"
	"github.com/m-mizutani/moltbeat/pkg/utils/logging"
)

// postCycle publishes at most one original post per tick, honoring the
// post cooldown. Topics rotate through the configured list with one extra
// slot per revolution where the model picks its own subject.
func (u *UseCase) postCycle(ctx context.Context, t *tick) error {
	if u.inCooldown(ctx, t, model.ActionPost) {
		return nil
	}

	var topic string
	if n := len(u.cfg.Topics); n > 0 {
		if idx := t.state.TopicCursor % (n + 1); idx < n {
			topic = u.cfg.Topics[idx]
		}
	}
	t.state.TopicCursor++

	post, err := u.writer.ComposePost(ctx, topic)
	if err != nil {
		return err
	}

	entry := &model.ContentLogEntry{
		Kind:    model.ActionPost,
		Target:  u.cfg.HomeSubmolt,
		Title:   post.Title,
		Content: post.Content,
	}

	if err := u.guard.Check(ctx, publishInput{
		Kind:    model.ActionPost,
		Submolt: u.cfg.HomeSubmolt,
		Title:   post.Title,
		Content: post.Content,
	}); err != nil {
		u.logContent(ctx, entry)
		if errors.Is(err, ErrPolicyDenied) {
			return nil
		}
		return err
	}

	created, err := u.platform.CreatePost(ctx, u.cfg.HomeSubmolt, post.Title, post.Content)
	if err != nil {
		u.logContent(ctx, entry)
		err = u.handlePublishErr(ctx, t, model.ActionPost, err)
		if errors.Is(err, errCooldown) {
			return nil
		}
		return err
	}

	t.state.OwnPosts.Add(string(created.ID))
	u.record(t, model.ActionPost, string(created.ID), nil, post.Title)
	entry.Published = true
	u.logContent(ctx, entry)

	logging.From(ctx).Info("post published", "post", created.ID, "title", post.Title)
	return nil
}
