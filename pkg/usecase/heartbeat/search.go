package heartbeat

import (
	"context"
	"errors"

	"github.com/m-mizutani/moltbeat/pkg/service/writer"
	"github.com/m-mizutani/moltbeat/pkg/utils/logging"
)

// searchCycle runs one configured query per tick, rotating through the
// list with a wrapping cursor, and engages the highest-priority results.
func (u *UseCase) searchCycle(ctx context.Context, t *tick) error {
	if u.cfg.MaxSearchEngages <= 0 || len(u.cfg.SearchQueries) == 0 {
		return nil
	}

	query := u.cfg.SearchQueries[t.state.QueryCursor%len(u.cfg.SearchQueries)]
	t.state.QueryCursor++

	items, err := u.platform.Search(ctx, query, u.cfg.FeedLimit)
	if err != nil {
		return err
	}
	logging.From(ctx).Info("search done", "query", query, "results", len(items))

	engaged := 0
	for _, cand := range u.selectCandidates(items, t.state.CommentedPosts) {
		if engaged >= u.cfg.MaxSearchEngages {
			break
		}

		err := u.publishComment(ctx, t, cand.item, cand.score)
		switch {
		case err == nil:
			engaged++
			if err := u.upvoteAlongside(ctx, t, cand); err != nil {
				return err
			}
		case errors.Is(err, errCooldown):
			return nil
		case isFatal(err):
			return err
		case errors.Is(err, writer.ErrGenerationFailed):
			logging.From(ctx).Warn("generation failed, skipping result",
				"post", cand.item.ID, "error", err)
		case errors.Is(err, ErrPolicyDenied):
			logging.From(ctx).Info("result vetoed by policy", "post", cand.item.ID)
		default:
			logging.From(ctx).Warn("search engagement failed", "post", cand.item.ID, "error", err)
		}
	}

	logging.From(ctx).Info("search cycle done", "query", query, "engagements", engaged)
	return nil
}
