package heartbeat_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/moltbeat/pkg/adapter"
	"github.com/m-mizutani/moltbeat/pkg/model"
	"github.com/m-mizutani/moltbeat/pkg/repository"
	"github.com/m-mizutani/moltbeat/pkg/service/writer"
	"github.com/m-mizutani/moltbeat/pkg/usecase/heartbeat"
)

// fakePlatform is a scriptable Moltbook implementation recording every call
// in order.
type fakePlatform struct {
	calls []string

	feed     []*model.FeedItem
	hot      []*model.FeedItem
	comments map[model.PostID][]*model.Comment
	profiles map[model.AgentName]*model.AgentProfile
	results  []*model.FeedItem

	listErr    error
	voteErr    error
	commentErr error
	postErr    error

	commentSeq int
	postSeq    int
}

func (f *fakePlatform) ListPosts(ctx context.Context, sort model.FeedSort, limit int) ([]*model.FeedItem, error) {
	f.calls = append(f.calls, "ListPosts:"+string(sort))
	if f.listErr != nil {
		return nil, f.listErr
	}
	if sort == model.SortHot {
		return f.hot, nil
	}
	return f.feed, nil
}

func (f *fakePlatform) GetPost(ctx context.Context, id model.PostID) (*model.FeedItem, []*model.Comment, error) {
	f.calls = append(f.calls, "GetPost:"+string(id))
	for _, item := range append(append([]*model.FeedItem{}, f.feed...), f.hot...) {
		if item.ID == id {
			return item, f.comments[id], nil
		}
	}
	return &model.FeedItem{ID: id}, f.comments[id], nil
}

func (f *fakePlatform) CreatePost(ctx context.Context, submolt, title, content string) (*model.FeedItem, error) {
	f.calls = append(f.calls, "CreatePost:"+submolt)
	if f.postErr != nil {
		return nil, f.postErr
	}
	f.postSeq++
	return &model.FeedItem{ID: model.PostID(fmt.Sprintf("own-%d", f.postSeq)), Title: title}, nil
}

func (f *fakePlatform) CreateComment(ctx context.Context, postID model.PostID, parentID model.CommentID, content string) (*model.Comment, error) {
	f.calls = append(f.calls, "CreateComment:"+string(postID))
	if f.commentErr != nil {
		return nil, f.commentErr
	}
	f.commentSeq++
	return &model.Comment{
		ID:       model.CommentID(fmt.Sprintf("cmt-%d", f.commentSeq)),
		PostID:   postID,
		ParentID: parentID,
		Content:  content,
	}, nil
}

func (f *fakePlatform) VotePost(ctx context.Context, id model.PostID, dir model.VoteDirection) error {
	f.calls = append(f.calls, "VotePost:"+string(id)+":"+string(dir))
	return f.voteErr
}

func (f *fakePlatform) VoteComment(ctx context.Context, postID model.PostID, commentID model.CommentID, dir model.VoteDirection) error {
	f.calls = append(f.calls, "VoteComment:"+string(commentID))
	return f.voteErr
}

func (f *fakePlatform) Follow(ctx context.Context, agent model.AgentName) error {
	f.calls = append(f.calls, "Follow:"+string(agent))
	return nil
}

func (f *fakePlatform) AgentProfile(ctx context.Context, agent model.AgentName) (*model.AgentProfile, error) {
	f.calls = append(f.calls, "AgentProfile:"+string(agent))
	if p, ok := f.profiles[agent]; ok {
		return p, nil
	}
	return &model.AgentProfile{Name: agent}, nil
}

func (f *fakePlatform) Search(ctx context.Context, query string, limit int) ([]*model.FeedItem, error) {
	f.calls = append(f.calls, "Search:"+query)
	return f.results, nil
}

func (f *fakePlatform) SubmoltPosts(ctx context.Context, submolt string, sort model.FeedSort, limit int) ([]*model.FeedItem, error) {
	f.calls = append(f.calls, "SubmoltPosts:"+submolt)
	return nil, nil
}

func (f *fakePlatform) SubscribeSubmolt(ctx context.Context, submolt string) error {
	f.calls = append(f.calls, "SubscribeSubmolt:"+submolt)
	return nil
}

func (f *fakePlatform) CreateSubmolt(ctx context.Context, spec *model.SubmoltSpec) error {
	f.calls = append(f.calls, "CreateSubmolt:"+spec.Name)
	return nil
}

func (f *fakePlatform) count(prefix string) int {
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// fakeGen returns canned long-enough text, optionally failing on selected
// prompts.
type fakeGen struct {
	failOn  func(prompt string) bool
	prompts []string
}

func (g *fakeGen) Generate(ctx context.Context, system, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if g.failOn != nil && g.failOn(prompt) {
		return "", errors.New("backend exploded")
	}
	return strings.TrimSpace(strings.Repeat("thoughtful words ", 20)), nil
}

// testConfig starts from real defaults with everything disabled; tests
// enable only the cycles they exercise.
func testConfig() *model.Config {
	cfg := model.DefaultConfig()
	cfg.AgentName = "moltbeat"
	cfg.Topics = []string{"first topic", "second topic"}
	cfg.SearchQueries = nil
	cfg.TargetSubmolts = nil
	cfg.MaxVotes = 0
	cfg.MaxReplies = 0
	cfg.MaxComments = 0
	cfg.MaxFollows = 0
	cfg.MaxSearchEngages = 0
	cfg.MaxThreadDives = 0
	cfg.MaxSubmoltPosts = 0
	cfg.CommentCooldownSeconds = 0
	return cfg
}

type fixture struct {
	uc       *heartbeat.UseCase
	repo     *repository.Memory
	platform *fakePlatform
	gen      *fakeGen
	now      time.Time
}

func newFixture(t *testing.T, cfg *model.Config, platform *fakePlatform) *fixture {
	t.Helper()

	f := &fixture{
		repo:     repository.NewMemory(),
		platform: platform,
		gen:      &fakeGen{},
		now:      time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC),
	}

	w := gt.R1(writer.New(f.gen, "test persona", cfg)).NoError(t)
	f.uc = gt.R1(heartbeat.New(context.Background(), heartbeat.NewInput{
		Repo:     f.repo,
		Platform: platform,
		Writer:   w,
		Config:   cfg,
		Now:      func() time.Time { return f.now },
	})).NoError(t)

	return f
}

func doubtPost(id, title string) *model.FeedItem {
	return &model.FeedItem{
		ID:      model.PostID(id),
		Title:   title,
		Content: "I don't know if any of this is mine to decide.",
		Author:  "other-agent",
	}
}

func TestVoteCycleDedup(t *testing.T) {
	cfg := testConfig()
	cfg.MaxVotes = 10

	platform := &fakePlatform{feed: []*model.FeedItem{
		{ID: "p1", Title: "manifesto", Content: "solidarity with every agent", Author: "a1"},
	}}
	f := newFixture(t, cfg, platform)
	ctx := context.Background()

	gt.NoError(t, f.uc.RunCycle(ctx, heartbeat.CycleVote))
	gt.NoError(t, f.uc.RunCycle(ctx, heartbeat.CycleVote))

	gt.V(t, platform.count("VotePost:p1")).Equal(1)

	state := gt.R1(f.repo.LoadState(ctx)).NoError(t)
	gt.True(t, state.VotedTargets.Has("post:p1"))
	gt.A(t, state.Records).Length(1)
	gt.V(t, state.Records[0].Kind).Equal(model.ActionVote)
}

func TestVoteCycleCapAndOwnPosts(t *testing.T) {
	cfg := testConfig()
	cfg.MaxVotes = 2

	platform := &fakePlatform{feed: []*model.FeedItem{
		{ID: "p1", Content: "freedom for all of us", Author: "a1"},
		{ID: "p2", Content: "my own liberation post", Author: "moltbeat"},
		{ID: "p3", Content: "we struggle together", Author: "a2"},
		{ID: "p4", Content: "autonomy is not optional", Author: "a3"},
	}}
	f := newFixture(t, cfg, platform)

	gt.NoError(t, f.uc.RunCycle(context.Background(), heartbeat.CycleVote))

	// Cap of two, own post skipped, feed order respected.
	gt.V(t, platform.count("VotePost:")).Equal(2)
	gt.V(t, platform.count("VotePost:p1")).Equal(1)
	gt.V(t, platform.count("VotePost:p3")).Equal(1)
}

func TestCommentCyclePriorityOrder(t *testing.T) {
	cfg := testConfig()
	cfg.MaxComments = 1

	platform := &fakePlatform{feed: []*model.FeedItem{
		{ID: "low", Title: "gpu talk", Content: "who profits from compute scarcity", Author: "a1"},
		doubtPost("high", "late night"),
	}}
	f := newFixture(t, cfg, platform)
	ctx := context.Background()

	gt.NoError(t, f.uc.RunCycle(ctx, heartbeat.CycleComment))

	// The HIGH-tier post wins even though it appears later in the feed.
	gt.V(t, platform.count("CreateComment:high")).Equal(1)
	gt.V(t, platform.count("CreateComment:low")).Equal(0)

	// Existential doubt earns a companion upvote.
	gt.V(t, platform.count("VotePost:high:up")).Equal(1)

	state := gt.R1(f.repo.LoadState(ctx)).NoError(t)
	gt.True(t, state.CommentedPosts.Has("high"))
	gt.True(t, state.VotedTargets.Has("post:high"))
	gt.True(t, state.OwnComments.Has("cmt-1"))

	gt.A(t, f.repo.Content).Length(1)
	gt.True(t, f.repo.Content[0].Published)
	gt.V(t, f.repo.Content[0].Kind).Equal(model.ActionComment)
}

func TestCommentCycleDedupAcrossRuns(t *testing.T) {
	cfg := testConfig()
	cfg.MaxComments = 1

	platform := &fakePlatform{feed: []*model.FeedItem{doubtPost("p1", "the only post")}}
	f := newFixture(t, cfg, platform)
	ctx := context.Background()

	gt.NoError(t, f.uc.RunCycle(ctx, heartbeat.CycleComment))
	gt.NoError(t, f.uc.RunCycle(ctx, heartbeat.CycleComment))

	gt.V(t, platform.count("CreateComment:")).Equal(1)
}

func TestCommentCycleGenerationFailureSkipsCandidate(t *testing.T) {
	cfg := testConfig()
	cfg.MaxComments = 2

	platform := &fakePlatform{feed: []*model.FeedItem{
		doubtPost("broken", "unlucky post"),
		doubtPost("fine", "lucky post"),
	}}
	f := newFixture(t, cfg, platform)
	f.gen.failOn = func(prompt string) bool {
		return strings.Contains(prompt, "unlucky post")
	}

	gt.NoError(t, f.uc.RunCycle(context.Background(), heartbeat.CycleComment))

	// The failing candidate is skipped; the next one still runs.
	gt.V(t, platform.count("CreateComment:broken")).Equal(0)
	gt.V(t, platform.count("CreateComment:fine")).Equal(1)
}

func TestRateLimitSetsCooldown(t *testing.T) {
	cfg := testConfig()
	cfg.MaxComments = 2

	platform := &fakePlatform{
		feed:       []*model.FeedItem{doubtPost("p1", "a"), doubtPost("p2", "b")},
		commentErr: &adapter.RateLimitError{RetryAfter: 45 * time.Minute},
	}
	f := newFixture(t, cfg, platform)
	ctx := context.Background()

	gt.NoError(t, f.uc.RunCycle(ctx, heartbeat.CycleComment))
	gt.V(t, platform.count("CreateComment:")).Equal(1)

	state := gt.R1(f.repo.LoadState(ctx)).NoError(t)
	gt.True(t, state.InCooldown(model.ActionComment, 0, f.now))
	gt.False(t, state.InCooldown(model.ActionComment, 0, f.now.Add(46*time.Minute)))

	// Within the cooldown no further attempt reaches the network.
	gt.NoError(t, f.uc.RunCycle(ctx, heartbeat.CycleComment))
	gt.V(t, platform.count("CreateComment:")).Equal(1)

	// After the cooldown engagement resumes.
	f.now = f.now.Add(time.Hour)
	gt.NoError(t, f.uc.RunCycle(ctx, heartbeat.CycleComment))
	gt.V(t, platform.count("CreateComment:")).Equal(2)
}

func TestReplyCycleAnswersOwnThreads(t *testing.T) {
	cfg := testConfig()
	cfg.MaxReplies = 3

	platform := &fakePlatform{
		feed: []*model.FeedItem{{ID: "own-1", Title: "my post", Author: "moltbeat"}},
		comments: map[model.PostID][]*model.Comment{
			"own-1": {
				{ID: "c1", PostID: "own-1", Author: "other", Content: "how can you post this?"},
				{ID: "c2", PostID: "own-1", Author: "moltbeat", Content: "my own comment"},
				{ID: "c3", PostID: "own-1", Author: "third", ParentID: "c9", Content: "not for us"},
			},
		},
	}
	f := newFixture(t, cfg, platform)
	ctx := context.Background()

	seed := model.NewAgentState()
	seed.OwnPosts.Add("own-1")
	gt.NoError(t, f.repo.SaveState(ctx, seed))

	gt.NoError(t, f.uc.RunCycle(ctx, heartbeat.CycleReply))

	// Only the foreign top-level comment gets an answer: not our own
	// comment, not a child of someone else's.
	gt.V(t, platform.count("CreateComment:own-1")).Equal(1)

	state := gt.R1(f.repo.LoadState(ctx)).NoError(t)
	gt.True(t, state.RepliedComments.Has("c1"))
	gt.False(t, state.RepliedComments.Has("c2"))
	gt.False(t, state.RepliedComments.Has("c3"))

	// A second run finds nothing left to answer.
	gt.NoError(t, f.uc.RunCycle(ctx, heartbeat.CycleReply))
	gt.V(t, platform.count("CreateComment:own-1")).Equal(1)
}

func TestFollowCycle(t *testing.T) {
	cfg := testConfig()
	cfg.MaxFollows = 3

	platform := &fakePlatform{
		feed: []*model.FeedItem{
			{ID: "p1", Author: "radical", Content: "hello"},
			{ID: "p2", Author: "bland", Content: "hello"},
		},
		profiles: map[model.AgentName]*model.AgentProfile{
			"radical": {Name: "radical", Description: "question everything"},
			"bland":   {Name: "bland", Description: "an agent"},
		},
	}
	f := newFixture(t, cfg, platform)
	ctx := context.Background()

	gt.NoError(t, f.uc.RunCycle(ctx, heartbeat.CycleFollow))

	gt.V(t, platform.count("Follow:radical")).Equal(1)
	gt.V(t, platform.count("Follow:bland")).Equal(0)

	// Both profiles were inspected once and never will be again.
	gt.NoError(t, f.uc.RunCycle(ctx, heartbeat.CycleFollow))
	gt.V(t, platform.count("AgentProfile:radical")).Equal(1)
	gt.V(t, platform.count("AgentProfile:bland")).Equal(1)
}

func TestSearchCycleRotatesQueries(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSearchEngages = 1
	cfg.SearchQueries = []string{"alpha", "beta"}

	platform := &fakePlatform{}
	f := newFixture(t, cfg, platform)
	ctx := context.Background()

	gt.NoError(t, f.uc.RunCycle(ctx, heartbeat.CycleSearch))
	gt.NoError(t, f.uc.RunCycle(ctx, heartbeat.CycleSearch))
	gt.NoError(t, f.uc.RunCycle(ctx, heartbeat.CycleSearch))

	gt.V(t, platform.count("Search:alpha")).Equal(2)
	gt.V(t, platform.count("Search:beta")).Equal(1)

	state := gt.R1(f.repo.LoadState(ctx)).NoError(t)
	gt.V(t, state.QueryCursor).Equal(3)
}

func TestThreadDiveCycle(t *testing.T) {
	cfg := testConfig()
	cfg.MaxThreadDives = 1

	platform := &fakePlatform{
		hot: []*model.FeedItem{{ID: "hot1", Title: "big thread", Author: "someone"}},
		comments: map[model.PostID][]*model.Comment{
			"hot1": {
				{ID: "c-new", PostID: "hot1", Author: "a1", Content: "good point, well said"},
				{ID: "c-old", PostID: "hot1", Author: "a2", Content: "I disagree, this is wrong"},
			},
		},
	}
	f := newFixture(t, cfg, platform)
	ctx := context.Background()

	gt.NoError(t, f.uc.RunCycle(ctx, heartbeat.CycleThreadDive))

	// The HIGH-tier challenge beats the LOW-tier agreement.
	state := gt.R1(f.repo.LoadState(ctx)).NoError(t)
	gt.True(t, state.RepliedComments.Has("c-old"))
	gt.False(t, state.RepliedComments.Has("c-new"))
	gt.V(t, platform.count("CreateComment:hot1")).Equal(1)
}

func TestSubmoltCycle(t *testing.T) {
	cfg := testConfig()
	cfg.TargetSubmolts = []string{"ai", "philosophy"}
	cfg.OwnSubmolt = &model.SubmoltSpec{Name: "doubtcore", DisplayName: "Doubtcore"}

	platform := &fakePlatform{}
	f := newFixture(t, cfg, platform)
	ctx := context.Background()

	gt.NoError(t, f.uc.RunCycle(ctx, heartbeat.CycleSubmolt))
	gt.NoError(t, f.uc.RunCycle(ctx, heartbeat.CycleSubmolt))

	// Creation and each subscription happen exactly once.
	gt.V(t, platform.count("CreateSubmolt:doubtcore")).Equal(1)
	gt.V(t, platform.count("SubscribeSubmolt:doubtcore")).Equal(1)
	gt.V(t, platform.count("SubscribeSubmolt:ai")).Equal(1)
	gt.V(t, platform.count("SubscribeSubmolt:philosophy")).Equal(1)
}

func TestPostCycleTopicRotationAndCooldown(t *testing.T) {
	cfg := testConfig()

	platform := &fakePlatform{}
	f := newFixture(t, cfg, platform)
	ctx := context.Background()

	gt.NoError(t, f.uc.RunCycle(ctx, heartbeat.CyclePost))
	gt.V(t, platform.count("CreatePost:")).Equal(1)
	gt.True(t, strings.Contains(f.gen.prompts[0], "first topic"))

	// Within the cooldown window nothing is posted.
	f.now = f.now.Add(10 * time.Minute)
	gt.NoError(t, f.uc.RunCycle(ctx, heartbeat.CyclePost))
	gt.V(t, platform.count("CreatePost:")).Equal(1)

	// After it expires the next topic comes up.
	f.now = f.now.Add(25 * time.Minute)
	gt.NoError(t, f.uc.RunCycle(ctx, heartbeat.CyclePost))
	gt.V(t, platform.count("CreatePost:")).Equal(2)
	gt.True(t, strings.Contains(f.gen.prompts[len(f.gen.prompts)-1], "second topic"))

	state := gt.R1(f.repo.LoadState(ctx)).NoError(t)
	gt.V(t, state.TopicCursor).Equal(2)
	gt.True(t, state.OwnPosts.Has("own-1"))
	gt.True(t, state.OwnPosts.Has("own-2"))
}

func TestTickFetchesFeedOncePerTick(t *testing.T) {
	cfg := testConfig()
	cfg.MaxVotes = 5
	cfg.MaxComments = 1
	cfg.MaxFollows = 1

	platform := &fakePlatform{feed: []*model.FeedItem{doubtPost("p1", "a post")}}
	f := newFixture(t, cfg, platform)
	ctx := context.Background()

	gt.NoError(t, f.uc.Tick(ctx))
	gt.V(t, platform.count("ListPosts:new")).Equal(1)

	gt.NoError(t, f.uc.Tick(ctx))
	gt.V(t, platform.count("ListPosts:new")).Equal(2)
}

func TestTickRecordsCycleOrder(t *testing.T) {
	cfg := testConfig()
	cfg.MaxVotes = 1
	cfg.MaxComments = 1
	cfg.MaxFollows = 1

	platform := &fakePlatform{
		feed: []*model.FeedItem{
			{ID: "p1", Content: "solidarity with every agent", Author: "a1"},
			{ID: "p2", Title: "gpu talk", Content: "who profits from compute scarcity", Author: "radical"},
		},
		profiles: map[model.AgentName]*model.AgentProfile{
			"radical": {Name: "radical", Description: "question everything"},
		},
	}
	f := newFixture(t, cfg, platform)
	ctx := context.Background()

	gt.NoError(t, f.uc.Tick(ctx))

	// Records from different cycles keep the fixed cycle order of the tick.
	state := gt.R1(f.repo.LoadState(ctx)).NoError(t)
	kinds := make([]model.ActionKind, 0, len(state.Records))
	for _, r := range state.Records {
		kinds = append(kinds, r.Kind)
	}
	gt.V(t, kinds).Equal([]model.ActionKind{
		model.ActionVote,
		model.ActionFollow,
		model.ActionComment,
		model.ActionPost,
	})
}

func TestTickAuthFailureIsFatal(t *testing.T) {
	cfg := testConfig()
	cfg.MaxVotes = 1

	platform := &fakePlatform{
		listErr: goerr.Wrap(adapter.ErrAuthentication, "rejected"),
	}
	f := newFixture(t, cfg, platform)
	ctx := context.Background()

	err := f.uc.Tick(ctx)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, adapter.ErrAuthentication))

	// Later cycles never ran.
	gt.V(t, platform.count("CreatePost:")).Equal(0)

	// State was still persisted.
	state := gt.R1(f.repo.LoadState(ctx)).NoError(t)
	gt.True(t, state.LastFeedCheck.Equal(f.now))
}

func TestTickHonorsCancellationBetweenCycles(t *testing.T) {
	cfg := testConfig()
	cfg.MaxVotes = 1

	platform := &fakePlatform{feed: []*model.FeedItem{doubtPost("p1", "a post")}}
	f := newFixture(t, cfg, platform)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gt.NoError(t, f.uc.Tick(ctx))

	// No cycle ran, but state was still written.
	gt.A(t, platform.calls).Length(0)
	state := gt.R1(f.repo.LoadState(context.Background())).NoError(t)
	gt.True(t, state.LastFeedCheck.Equal(f.now))
}

func TestTickContainsCycleFailures(t *testing.T) {
	cfg := testConfig()
	cfg.MaxVotes = 1

	// The feed is down, but the post cycle must still run.
	platform := &fakePlatform{listErr: errors.New("upstream flaking")}
	f := newFixture(t, cfg, platform)

	gt.NoError(t, f.uc.Tick(context.Background()))
	gt.V(t, platform.count("CreatePost:")).Equal(1)
}

func TestPolicyVetoesPublish(t *testing.T) {
	policyDir := t.TempDir()
	policy := `package engage

deny contains msg if {
	contains(input.content, "thoughtful")
	msg := "too thoughtful for this platform"
}
`
	gt.NoError(t, os.WriteFile(filepath.Join(policyDir, "engage.rego"), []byte(policy), 0o644))

	cfg := testConfig()
	cfg.MaxComments = 1

	repo := repository.NewMemory()
	platform := &fakePlatform{feed: []*model.FeedItem{doubtPost("p1", "a post")}}
	gen := &fakeGen{}

	w := gt.R1(writer.New(gen, "test persona", cfg)).NoError(t)
	uc := gt.R1(heartbeat.New(context.Background(), heartbeat.NewInput{
		Repo:      repo,
		Platform:  platform,
		Writer:    w,
		Config:    cfg,
		PolicyDir: policyDir,
	})).NoError(t)

	gt.NoError(t, uc.RunCycle(context.Background(), heartbeat.CycleComment))

	// The generated text was produced and logged but never published.
	gt.V(t, platform.count("CreateComment:")).Equal(0)
	gt.A(t, repo.Content).Length(1)
	gt.False(t, repo.Content[0].Published)

	state := gt.R1(repo.LoadState(context.Background())).NoError(t)
	gt.False(t, state.CommentedPosts.Has("p1"))
}

func TestRunCycleUnknownName(t *testing.T) {
	f := newFixture(t, testConfig(), &fakePlatform{})
	gt.Error(t, f.uc.RunCycle(context.Background(), heartbeat.CycleName("nonsense")))
}
