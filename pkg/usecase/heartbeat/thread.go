package heartbeat

import (
	"context"
	"errors"

	"github.com/m-mizutani/moltbeat/pkg/model"
	"github.com/m-mizutani/moltbeat/pkg/utils/logging"
)

// threadDiveCycle opens hot discussion threads and replies to the best
// comment inside, joining conversations instead of only starting them.
func (u *UseCase) threadDiveCycle(ctx context.Context, t *tick) error {
	if u.cfg.MaxThreadDives <= 0 {
		return nil
	}
	if u.suppressed(ctx, t, model.ActionReply) {
		return nil
	}

	items, err := u.frontFeed(ctx, t, model.SortHot)
	if err != nil {
		return err
	}

	dives := 0
	for _, item := range items {
		if dives >= u.cfg.MaxThreadDives {
			break
		}
		if item.ID == "" || string(item.Author) == u.cfg.AgentName {
			continue
		}

		post, comments, err := u.platform.GetPost(ctx, item.ID)
		if err != nil {
			if isFatal(err) {
				return err
			}
			logging.From(ctx).Warn("failed to load thread", "post", item.ID, "error", err)
			continue
		}
		// A thread needs an actual discussion to dive into.
		if len(comments) < 2 {
			continue
		}

		target, score := u.bestThreadComment(t, comments)
		if target == nil {
			continue
		}

		err = u.publishReply(ctx, t, post, target, score)
		switch {
		case err == nil:
			dives++
		case errors.Is(err, errCooldown):
			return nil
		case isFatal(err):
			return err
		default:
			logging.From(ctx).Warn("thread reply failed", "comment", target.ID, "error", err)
		}
	}

	logging.From(ctx).Info("thread-dive cycle done", "dives", dives)
	return nil
}

// bestThreadComment picks the highest-tier unanswered foreign comment in a
// thread. Comments arrive newest first, so ties go to the newest.
func (u *UseCase) bestThreadComment(t *tick, comments []*model.Comment) (*model.Comment, *model.PriorityScore) {
	var target *model.Comment
	var best *model.PriorityScore

	for _, c := range comments {
		if string(c.Author) == u.cfg.AgentName || c.Author == "" {
			continue
		}
		if t.state.RepliedComments.Has(string(c.ID)) {
			continue
		}
		score := u.engine.ScoreComment(c)
		if score == nil || score.Tier < model.TierMedium {
			continue
		}
		if best == nil || score.Tier > best.Tier {
			target, best = c, score
		}
	}
	return target, best
}
