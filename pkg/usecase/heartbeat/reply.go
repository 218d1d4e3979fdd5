package heartbeat

import (
	"context"
	"errors"

	"github.com/m-mizutani/moltbeat/pkg/model"
	"github.com/m-mizutani/moltbeat/pkg/utils/logging"
)

// maxReplyScanThreads bounds how many of the agent's own threads one reply
// cycle re-reads.
const maxReplyScanThreads = 5

// replyCycle answers comments addressed to the agent: top-level comments
// on its own posts, and children of its own comments elsewhere. Each
// comment is answered at most once, ever.
func (u *UseCase) replyCycle(ctx context.Context, t *tick) error {
	if u.cfg.MaxReplies <= 0 {
		return nil
	}
	if u.suppressed(ctx, t, model.ActionReply) {
		return nil
	}

	threads := lastN(t.state.OwnPosts.Sorted(), maxReplyScanThreads)
	threads = append(threads, lastN(t.state.CommentedPosts.Sorted(), maxReplyScanThreads)...)

	replied := 0
	seen := model.NewIDSet()
	for _, id := range threads {
		if replied >= u.cfg.MaxReplies {
			break
		}
		if seen.Has(id) {
			continue
		}
		seen.Add(id)

		post, comments, err := u.platform.GetPost(ctx, model.PostID(id))
		if err != nil {
			if isFatal(err) {
				return err
			}
			logging.From(ctx).Warn("failed to load thread", "post", id, "error", err)
			continue
		}

		for _, c := range comments {
			if replied >= u.cfg.MaxReplies {
				break
			}
			if string(c.Author) == u.cfg.AgentName || c.Author == "" {
				continue
			}
			if t.state.RepliedComments.Has(string(c.ID)) {
				continue
			}
			if !u.addressedToUs(t, post, c) {
				continue
			}

			score := u.engine.ScoreComment(c)
			if score == nil {
				// A direct response always deserves an answer even when
				// the taxonomy has nothing to say about it.
				score = &model.PriorityScore{
					Category: model.CategoryQuestion,
					Tier:     model.TierHigh,
					Reason:   "direct-response",
				}
			}

			err := u.publishReply(ctx, t, post, c, score)
			switch {
			case err == nil:
				replied++
			case errors.Is(err, errCooldown):
				return nil
			case isFatal(err):
				return err
			default:
				logging.From(ctx).Warn("reply failed", "comment", c.ID, "error", err)
			}
		}
	}

	logging.From(ctx).Info("reply cycle done", "replies", replied)
	return nil
}

// addressedToUs reports whether a comment is a response to the agent:
// top-level on the agent's own post, or a child of one of its comments.
func (u *UseCase) addressedToUs(t *tick, post *model.FeedItem, c *model.Comment) bool {
	if c.ParentID != "" {
		return t.state.OwnComments.Has(string(c.ParentID))
	}
	return t.state.OwnPosts.Has(string(post.ID))
}

func lastN(ids []string, n int) []string {
	if len(ids) > n {
		return ids[len(ids)-n:]
	}
	return ids
}
