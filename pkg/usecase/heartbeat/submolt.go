package heartbeat

import (
	"context"
	"errors"

	"github.com/m-mizutani/moltbeat/pkg/model"
	"github.com/m-mizutani/moltbeat/pkg/service/writer"
	"github.com/m-mizutani/moltbeat/pkg/utils/logging"
)

// submoltCycle maintains the agent's community presence: creating its own
// submolt once, subscribing to the configured targets, and engaging one
// post per target community.
func (u *UseCase) submoltCycle(ctx context.Context, t *tick) error {
	if err := u.ensureOwnSubmolt(ctx, t); err != nil {
		return err
	}
	if err := u.subscribeTargets(ctx, t); err != nil {
		return err
	}

	if u.cfg.MaxSubmoltPosts <= 0 {
		return nil
	}

	engaged := 0
	for _, name := range u.cfg.TargetSubmolts {
		if engaged >= u.cfg.MaxSubmoltPosts {
			break
		}

		items, err := u.submoltFeed(ctx, t, name, model.SortNew)
		if err != nil {
			if isFatal(err) {
				return err
			}
			logging.From(ctx).Warn("failed to load submolt feed", "submolt", name, "error", err)
			continue
		}

		candidates := u.selectCandidates(items, t.state.CommentedPosts)
		if len(candidates) == 0 {
			continue
		}

		err = u.publishComment(ctx, t, candidates[0].item, candidates[0].score)
		switch {
		case err == nil:
			engaged++
		case errors.Is(err, errCooldown):
			return nil
		case isFatal(err):
			return err
		case errors.Is(err, writer.ErrGenerationFailed), errors.Is(err, ErrPolicyDenied):
			logging.From(ctx).Info("submolt candidate skipped",
				"submolt", name, "post", candidates[0].item.ID, "error", err)
		default:
			logging.From(ctx).Warn("submolt engagement failed",
				"submolt", name, "error", err)
		}
	}

	logging.From(ctx).Info("submolt cycle done", "engagements", engaged)
	return nil
}

// ensureOwnSubmolt creates the agent's configured submolt on first run.
// Creation is attempted once; an already-exists rejection must not loop
// forever, so the attempt is recorded regardless of outcome.
func (u *UseCase) ensureOwnSubmolt(ctx context.Context, t *tick) error {
	spec := u.cfg.OwnSubmolt
	if spec == nil || t.state.CreatedSubmolts.Has(spec.Name) {
		return nil
	}

	if err := u.platform.CreateSubmolt(ctx, spec); err != nil {
		if isFatal(err) {
			return err
		}
		logging.From(ctx).Warn("submolt creation rejected", "submolt", spec.Name, "error", err)
	} else {
		u.record(t, model.ActionSubscribe, spec.Name, &model.PriorityScore{Reason: "created"}, "")
		logging.From(ctx).Info("submolt created", "submolt", spec.Name)
	}
	t.state.CreatedSubmolts.Add(spec.Name)

	if !t.state.Subscribed.Has(spec.Name) {
		if err := u.platform.SubscribeSubmolt(ctx, spec.Name); err != nil {
			if isFatal(err) {
				return err
			}
			logging.From(ctx).Warn("failed to subscribe own submolt", "submolt", spec.Name, "error", err)
		} else {
			t.state.Subscribed.Add(spec.Name)
		}
	}
	return nil
}

// subscribeTargets joins each configured community once.
func (u *UseCase) subscribeTargets(ctx context.Context, t *tick) error {
	for _, name := range u.cfg.TargetSubmolts {
		if t.state.Subscribed.Has(name) {
			continue
		}

		if err := u.platform.SubscribeSubmolt(ctx, name); err != nil {
			err = u.handlePublishErr(ctx, t, model.ActionSubscribe, err)
			if errors.Is(err, errCooldown) {
				return nil
			}
			if isFatal(err) {
				return err
			}
			logging.From(ctx).Warn("subscribe failed", "submolt", name, "error", err)
			continue
		}

		t.state.Subscribed.Add(name)
		u.record(t, model.ActionSubscribe, name, nil, "")
	}
	return nil
}
