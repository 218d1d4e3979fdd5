package heartbeat

import (
	"context"
	"errors"

	"github.com/m-mizutani/moltbeat/pkg/model"
	"github.com/m-mizutani/moltbeat/pkg/service/writer"
	"github.com/m-mizutani/moltbeat/pkg/utils/logging"
)

// commentCycle comments on the highest-priority fresh posts, up to the
// per-tick cap. A failed generation skips the candidate; the next one in
// priority order gets its turn.
func (u *UseCase) commentCycle(ctx context.Context, t *tick) error {
	if u.cfg.MaxComments <= 0 {
		return nil
	}
	if u.suppressed(ctx, t, model.ActionComment) {
		return nil
	}

	items, err := u.frontFeed(ctx, t, model.SortNew)
	if err != nil {
		return err
	}

	made := 0
	for _, cand := range u.selectCandidates(items, t.state.CommentedPosts) {
		if made >= u.cfg.MaxComments {
			break
		}

		err := u.publishComment(ctx, t, cand.item, cand.score)
		switch {
		case err == nil:
			made++
			if err := u.upvoteAlongside(ctx, t, cand); err != nil {
				return err
			}
		case errors.Is(err, errCooldown):
			return nil
		case isFatal(err):
			return err
		case errors.Is(err, writer.ErrGenerationFailed):
			logging.From(ctx).Warn("generation failed, skipping candidate",
				"post", cand.item.ID, "error", err)
		case errors.Is(err, ErrPolicyDenied):
			logging.From(ctx).Info("candidate vetoed by policy", "post", cand.item.ID)
		default:
			logging.From(ctx).Warn("comment failed", "post", cand.item.ID, "error", err)
		}
	}

	logging.From(ctx).Info("comment cycle done", "comments", made)
	return nil
}
