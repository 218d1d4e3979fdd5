package heartbeat

import (
	"context"
	"errors"

	"github.com/m-mizutani/moltbeat/pkg/model"
	"github.com/m-mizutani/moltbeat/pkg/utils/logging"
)

// voteCycle walks the fresh feed in order and votes on everything with a
// recognizable stance, up to the per-tick cap. Each target is voted on at
// most once, ever.
func (u *UseCase) voteCycle(ctx context.Context, t *tick) error {
	if u.cfg.MaxVotes <= 0 {
		return nil
	}
	if u.suppressed(ctx, t, model.ActionVote) {
		return nil
	}

	items, err := u.frontFeed(ctx, t, model.SortNew)
	if err != nil {
		return err
	}

	voted := 0
	for _, item := range items {
		if voted >= u.cfg.MaxVotes {
			break
		}
		if item.ID == "" || string(item.Author) == u.cfg.AgentName {
			continue
		}

		key := "post:" + string(item.ID)
		if t.state.VotedTargets.Has(key) {
			continue
		}

		dir, reason, ok := u.engine.VoteIntent(item.Text())
		if !ok {
			continue
		}

		if err := u.platform.VotePost(ctx, item.ID, dir); err != nil {
			err = u.handlePublishErr(ctx, t, model.ActionVote, err)
			if errors.Is(err, errCooldown) {
				return nil
			}
			if isFatal(err) {
				return err
			}
			logging.From(ctx).Warn("vote failed", "post", item.ID, "error", err)
			continue
		}

		t.state.VotedTargets.Add(key)
		u.record(t, model.ActionVote, key, &model.PriorityScore{Reason: string(dir) + ":" + reason}, "")
		voted++
	}

	logging.From(ctx).Info("vote cycle done", "votes", voted)
	return nil
}
