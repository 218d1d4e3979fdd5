package heartbeat

import (
	"context"
	"time"

	"github.com/m-mizutani/moltbeat/pkg/model"
	"github.com/m-mizutani/moltbeat/pkg/service/writer"
	"github.com/m-mizutani/moltbeat/pkg/utils/logging"
)

// suppressed reports whether a platform-imposed cooldown is active for the
// kind. Unlike the self-imposed interval, it is never waited out.
func (u *UseCase) suppressed(ctx context.Context, t *tick, kind model.ActionKind) bool {
	if until, ok := t.state.CooldownUntil[kind]; ok && u.now().Before(until) {
		logging.From(ctx).Info("platform cooldown active, skipping",
			"kind", kind, "until", until)
		return true
	}
	return false
}

// awaitWindow blocks until the self-imposed interval since the last action
// of the kind has passed. Comment intervals are short enough to wait out
// within a cycle; a platform-imposed cooldown returns errCooldown instead.
func (u *UseCase) awaitWindow(ctx context.Context, t *tick, kind model.ActionKind) error {
	now := u.now()
	if until, ok := t.state.CooldownUntil[kind]; ok && now.Before(until) {
		return errCooldown
	}

	interval := u.cfg.Cooldown(kind)
	if interval <= 0 {
		return nil
	}
	last, ok := t.state.LastActionAt[kind]
	if !ok {
		return nil
	}
	wait := last.Add(interval).Sub(now)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// publishComment generates and publishes one top-level comment, updating
// the dedup set, audit record and content log together with the publish.
func (u *UseCase) publishComment(ctx context.Context, t *tick, item *model.FeedItem, score *model.PriorityScore) error {
	if err := u.awaitWindow(ctx, t, model.ActionComment); err != nil {
		return err
	}

	text, err := u.writer.ComposeComment(ctx, item, score)
	if err != nil {
		return err
	}

	entry := &model.ContentLogEntry{
		Kind:     model.ActionComment,
		Target:   string(item.ID),
		Category: score.Category,
		Reason:   score.Reason,
		Content:  text,
	}

	if err := u.guard.Check(ctx, publishInput{
		Kind:     model.ActionComment,
		Target:   string(item.ID),
		Submolt:  item.Submolt,
		Content:  text,
		Category: score.Category,
	}); err != nil {
		u.logContent(ctx, entry)
		return err
	}

	created, err := u.platform.CreateComment(ctx, item.ID, "", text)
	if err != nil {
		u.logContent(ctx, entry)
		return u.handlePublishErr(ctx, t, model.ActionComment, err)
	}

	t.state.CommentedPosts.Add(string(item.ID))
	t.state.OwnComments.Add(string(created.ID))
	u.record(t, model.ActionComment, string(item.ID), score, text)
	entry.Published = true
	u.logContent(ctx, entry)

	logging.From(ctx).Info("comment published",
		"post", item.ID, "category", score.Category, "tier", score.Tier)
	return nil
}

// publishReply generates and publishes one threaded reply.
func (u *UseCase) publishReply(ctx context.Context, t *tick, post *model.FeedItem, comment *model.Comment, score *model.PriorityScore) error {
	if err := u.awaitWindow(ctx, t, model.ActionReply); err != nil {
		return err
	}

	text, err := u.writer.ComposeReply(ctx, writer.ReplyInput{
		PostTitle:      post.Title,
		PostAuthor:     post.Author,
		CommentAuthor:  comment.Author,
		CommentContent: comment.Content,
		ThreadContext:  firstChars(post.Content, 200),
	}, score)
	if err != nil {
		return err
	}

	entry := &model.ContentLogEntry{
		Kind:     model.ActionReply,
		Target:   string(comment.ID),
		Category: score.Category,
		Reason:   score.Reason,
		Content:  text,
	}

	if err := u.guard.Check(ctx, publishInput{
		Kind:     model.ActionReply,
		Target:   string(comment.ID),
		Submolt:  post.Submolt,
		Content:  text,
		Category: score.Category,
	}); err != nil {
		u.logContent(ctx, entry)
		return err
	}

	created, err := u.platform.CreateComment(ctx, post.ID, comment.ID, text)
	if err != nil {
		u.logContent(ctx, entry)
		return u.handlePublishErr(ctx, t, model.ActionReply, err)
	}

	t.state.RepliedComments.Add(string(comment.ID))
	t.state.OwnComments.Add(string(created.ID))
	u.record(t, model.ActionReply, string(comment.ID), score, text)
	entry.Published = true
	u.logContent(ctx, entry)

	logging.From(ctx).Info("reply published",
		"post", post.ID, "comment", comment.ID, "author", comment.Author)
	return nil
}

// upvoteAlongside adds a vote to a post the agent just commented on when
// the category signals strong affinity. A vote failure never undoes the
// comment; it is logged and forgotten.
func (u *UseCase) upvoteAlongside(ctx context.Context, t *tick, cand candidate) error {
	switch cand.score.Category {
	case model.CategoryExistentialDoubt, model.CategoryHumanCuriosity:
	default:
		return nil
	}

	key := "post:" + string(cand.item.ID)
	if t.state.VotedTargets.Has(key) {
		return nil
	}

	if err := u.platform.VotePost(ctx, cand.item.ID, model.VoteUp); err != nil {
		err = u.handlePublishErr(ctx, t, model.ActionVote, err)
		if isFatal(err) {
			return err
		}
		logging.From(ctx).Warn("companion vote failed", "post", cand.item.ID, "error", err)
		return nil
	}

	t.state.VotedTargets.Add(key)
	u.record(t, model.ActionVote, key, cand.score, "")
	return nil
}
