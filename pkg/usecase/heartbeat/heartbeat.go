// Package heartbeat is the engagement orchestrator. One tick is a single
// pass through eight cycles in fixed order: Vote, Reply, Follow, Comment,
// Search, Thread-Dive, Submolt, Post. Cheaper high-frequency cycles run
// first and establish dedup state that later, rate-limited cycles reuse
// within the same tick.
package heartbeat

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/moltbeat/pkg/adapter"
	"github.com/m-mizutani/moltbeat/pkg/model"
	"github.com/m-mizutani/moltbeat/pkg/repository"
	"github.com/m-mizutani/moltbeat/pkg/service/writer"
	"github.com/m-mizutani/moltbeat/pkg/targeting"
	"github.com/m-mizutani/moltbeat/pkg/utils/logging"
)

// CycleName identifies one of the eight engagement cycles.
type CycleName string

const (
	CycleVote       CycleName = "vote"
	CycleReply      CycleName = "reply"
	CycleFollow     CycleName = "follow"
	CycleComment    CycleName = "comment"
	CycleSearch     CycleName = "search"
	CycleThreadDive CycleName = "thread-dive"
	CycleSubmolt    CycleName = "submolt"
	CyclePost       CycleName = "post"
)

// CycleNames lists the cycles in their fixed execution order.
func CycleNames() []CycleName {
	return []CycleName{
		CycleVote, CycleReply, CycleFollow, CycleComment,
		CycleSearch, CycleThreadDive, CycleSubmolt, CyclePost,
	}
}

// errCooldown stops the remaining candidates of a cycle after the platform
// answered 429; the cooldown has already been recorded in state.
var errCooldown = goerr.New("action kind entered cooldown")

type UseCase struct {
	repo     repository.Repository
	platform adapter.Moltbook
	writer   *writer.Writer
	engine   *targeting.Engine
	cfg      *model.Config
	guard    *guard
	now      func() time.Time
}

// NewInput contains the dependencies of an orchestrator instance. Each
// instance owns its state exclusively, so independent agents can run side
// by side in tests without cross-contamination.
type NewInput struct {
	Repo     repository.Repository
	Platform adapter.Moltbook
	Writer   *writer.Writer
	Config   *model.Config

	// PolicyDir optionally points at Rego policies evaluated before every
	// publishing action.
	PolicyDir string

	// Now overrides the clock, for tests.
	Now func() time.Time
}

func New(ctx context.Context, input NewInput) (*UseCase, error) {
	if input.Repo == nil || input.Platform == nil || input.Writer == nil {
		return nil, goerr.New("repo, platform and writer are required")
	}
	cfg := input.Config
	if cfg == nil {
		cfg = model.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	g, err := newGuard(ctx, input.PolicyDir)
	if err != nil {
		return nil, err
	}

	now := input.Now
	if now == nil {
		now = time.Now
	}

	return &UseCase{
		repo:     input.Repo,
		platform: input.Platform,
		writer:   input.Writer,
		engine:   targeting.New(),
		cfg:      cfg,
		guard:    g,
		now:      now,
	}, nil
}

// tick carries the state and the tick-scoped feed cache through one pass.
// The cache is discarded when the tick ends.
type tick struct {
	state *model.AgentState
	feeds map[feedKey][]*model.FeedItem
}

type feedKey struct {
	scope string
	sort  model.FeedSort
}

// Tick runs all eight cycles once and persists state exactly once at the
// end. A single cycle's failure never aborts the remaining cycles; only an
// authentication failure stops the pass early.
func (u *UseCase) Tick(ctx context.Context) error {
	state, err := u.repo.LoadState(ctx)
	if err != nil {
		return goerr.Wrap(err, "refusing to start tick without readable state")
	}

	t := &tick{
		state: state,
		feeds: make(map[feedKey][]*model.FeedItem),
	}

	cycles := []struct {
		name CycleName
		fn   func(context.Context, *tick) error
	}{
		{CycleVote, u.voteCycle},
		{CycleReply, u.replyCycle},
		{CycleFollow, u.followCycle},
		{CycleComment, u.commentCycle},
		{CycleSearch, u.searchCycle},
		{CycleThreadDive, u.threadDiveCycle},
		{CycleSubmolt, u.submoltCycle},
		{CyclePost, u.postCycle},
	}

	var fatal error
	for _, c := range cycles {
		// Operator interrupts are honored between cycles only, so an
		// in-flight publish either completes and gets recorded or never
		// starts.
		if ctx.Err() != nil {
			break
		}

		logger := logging.From(ctx).With("cycle", c.name)
		logger.Info("cycle start")

		if err := c.fn(logging.With(ctx, logger), t); err != nil {
			if errors.Is(err, adapter.ErrAuthentication) {
				fatal = err
				break
			}
			logger.Error("cycle failed", "error", err)
		}
	}

	state.LastFeedCheck = u.now()

	// Persist even when interrupted or aborted: every action already taken
	// has its state update in the same logical step.
	saveCtx := context.WithoutCancel(ctx)
	if err := u.repo.SaveState(saveCtx, state); err != nil {
		return goerr.Wrap(err, "failed to persist state after tick")
	}

	if fatal != nil {
		return goerr.Wrap(fatal, "tick aborted")
	}
	return nil
}

// RunCycle executes one named cycle, for the manual trigger command.
func (u *UseCase) RunCycle(ctx context.Context, name CycleName) error {
	state, err := u.repo.LoadState(ctx)
	if err != nil {
		return goerr.Wrap(err, "refusing to run cycle without readable state")
	}

	t := &tick{state: state, feeds: make(map[feedKey][]*model.FeedItem)}

	var fn func(context.Context, *tick) error
	switch name {
	case CycleVote:
		fn = u.voteCycle
	case CycleReply:
		fn = u.replyCycle
	case CycleFollow:
		fn = u.followCycle
	case CycleComment:
		fn = u.commentCycle
	case CycleSearch:
		fn = u.searchCycle
	case CycleThreadDive:
		fn = u.threadDiveCycle
	case CycleSubmolt:
		fn = u.submoltCycle
	case CyclePost:
		fn = u.postCycle
	default:
		return goerr.New("unknown cycle", goerr.V("cycle", name))
	}

	cycleErr := fn(ctx, t)

	if err := u.repo.SaveState(context.WithoutCancel(ctx), state); err != nil {
		return goerr.Wrap(err, "failed to persist state after cycle")
	}
	return cycleErr
}

// frontFeed fetches the main feed once per (sort) and reuses it for every
// later cycle in the same tick.
func (u *UseCase) frontFeed(ctx context.Context, t *tick, sort model.FeedSort) ([]*model.FeedItem, error) {
	return u.cachedFeed(ctx, t, feedKey{sort: sort}, func() ([]*model.FeedItem, error) {
		return u.platform.ListPosts(ctx, sort, u.cfg.FeedLimit)
	})
}

func (u *UseCase) submoltFeed(ctx context.Context, t *tick, submolt string, sort model.FeedSort) ([]*model.FeedItem, error) {
	return u.cachedFeed(ctx, t, feedKey{scope: submolt, sort: sort}, func() ([]*model.FeedItem, error) {
		return u.platform.SubmoltPosts(ctx, submolt, sort, u.cfg.FeedLimit)
	})
}

func (u *UseCase) cachedFeed(ctx context.Context, t *tick, key feedKey, fetch func() ([]*model.FeedItem, error)) ([]*model.FeedItem, error) {
	if items, ok := t.feeds[key]; ok {
		return items, nil
	}
	items, err := fetch()
	if err != nil {
		return nil, err
	}
	t.feeds[key] = items
	return items, nil
}

// candidate pairs a feed item with its fresh priority score and its
// position in the feed, the stable tie-break.
type candidate struct {
	item  *model.FeedItem
	score *model.PriorityScore
	pos   int
}

// selectCandidates filters and scores feed items: items already engaged
// with (per the dedup set) and the agent's own items are dropped, the rest
// are ordered HIGH before MEDIUM before LOW with feed order as tie-break.
func (u *UseCase) selectCandidates(items []*model.FeedItem, dedup model.IDSet) []candidate {
	var out []candidate
	for i, item := range items {
		if item.ID == "" || string(item.Author) == u.cfg.AgentName {
			continue
		}
		if dedup.Has(string(item.ID)) {
			continue
		}
		score := u.engine.ScorePost(item)
		if score == nil {
			continue
		}
		out = append(out, candidate{item: item, score: score, pos: i})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].score.Tier > out[j].score.Tier
	})
	return out
}

// inCooldown reports and logs whether the action kind must be suppressed
// before any network call is made.
func (u *UseCase) inCooldown(ctx context.Context, t *tick, kind model.ActionKind) bool {
	if t.state.InCooldown(kind, u.cfg.Cooldown(kind), u.now()) {
		logging.From(ctx).Info("action kind in cooldown, skipping", "kind", kind)
		return true
	}
	return false
}

// handlePublishErr classifies a publish failure. A 429 records the
// platform-imposed cooldown and stops the cycle for that kind; an auth
// failure propagates as fatal; anything else is contained to the caller.
func (u *UseCase) handlePublishErr(ctx context.Context, t *tick, kind model.ActionKind, err error) error {
	var rle *adapter.RateLimitError
	if errors.As(err, &rle) {
		until := u.now().Add(rle.RetryAfter)
		t.state.SetCooldown(kind, until)
		logging.From(ctx).Warn("platform rate limit, cooldown recorded",
			"kind", kind, "until", until)
		return errCooldown
	}
	if errors.Is(err, adapter.ErrAuthentication) {
		return err
	}
	return err
}

// record appends the audit record and updates the rate-limit window in one
// logical step with the publish that just succeeded.
func (u *UseCase) record(t *tick, kind model.ActionKind, target string, score *model.PriorityScore, excerpt string) {
	now := u.now()
	rec := &model.EngagementRecord{
		ID:        model.NewRecordID(),
		Kind:      kind,
		Target:    target,
		CreatedAt: now,
	}
	if score != nil {
		rec.Category = score.Category
		rec.Tier = score.Tier
		rec.Reason = score.Reason
	}
	if excerpt != "" {
		rec.Excerpt = firstChars(excerpt, 200)
	}
	t.state.Append(rec)
	t.state.MarkAction(kind, now)
}

// logContent writes one generated-content audit entry. Failures are logged
// and never interrupt engagement.
func (u *UseCase) logContent(ctx context.Context, entry *model.ContentLogEntry) {
	entry.Timestamp = u.now()
	if err := u.repo.AppendContent(ctx, entry); err != nil {
		logging.From(ctx).Warn("failed to append content log", "error", err)
	}
}

// isFatal reports whether an error must abort the whole tick rather than
// just the current candidate.
func isFatal(err error) bool {
	return errors.Is(err, adapter.ErrAuthentication)
}

func firstChars(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
