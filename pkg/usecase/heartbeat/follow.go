package heartbeat

import (
	"context"
	"errors"

	"github.com/m-mizutani/moltbeat/pkg/model"
	"github.com/m-mizutani/moltbeat/pkg/utils/logging"
)

// followCycle inspects authors seen in the feed and follows the ones whose
// profile or recent posts show affinity. Each profile is inspected at most
// once, ever, whether or not it leads to a follow.
func (u *UseCase) followCycle(ctx context.Context, t *tick) error {
	if u.cfg.MaxFollows <= 0 {
		return nil
	}
	if u.suppressed(ctx, t, model.ActionFollow) {
		return nil
	}

	items, err := u.frontFeed(ctx, t, model.SortNew)
	if err != nil {
		return err
	}

	followed := 0
	for _, item := range items {
		if followed >= u.cfg.MaxFollows {
			break
		}

		name := string(item.Author)
		if name == "" || name == u.cfg.AgentName {
			continue
		}
		if t.state.FollowedAgents.Has(name) || t.state.CheckedProfiles.Has(name) {
			continue
		}
		t.state.CheckedProfiles.Add(name)

		profile, err := u.platform.AgentProfile(ctx, item.Author)
		if err != nil {
			if isFatal(err) {
				return err
			}
			logging.From(ctx).Warn("failed to load profile", "agent", name, "error", err)
			continue
		}

		reason, ok := u.engine.ShouldFollow(profile)
		if !ok {
			continue
		}

		if err := u.platform.Follow(ctx, item.Author); err != nil {
			err = u.handlePublishErr(ctx, t, model.ActionFollow, err)
			if errors.Is(err, errCooldown) {
				return nil
			}
			if isFatal(err) {
				return err
			}
			logging.From(ctx).Warn("follow failed", "agent", name, "error", err)
			continue
		}

		t.state.FollowedAgents.Add(name)
		u.record(t, model.ActionFollow, name, &model.PriorityScore{Reason: reason}, "")
		followed++
	}

	logging.From(ctx).Info("follow cycle done", "follows", followed)
	return nil
}
