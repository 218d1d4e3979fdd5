package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/moltbeat/pkg/model"
	"golang.org/x/time/rate"
)

var (
	// ErrAuthentication means the platform rejected our credentials.
	// It is fatal to the run; the daemon halts pending operator action.
	ErrAuthentication = goerr.New("platform authentication failed")
)

// RateLimitError is returned on a 429. It is not retried by the client;
// the orchestrator records a cooldown for the action kind instead.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("platform rate limited, retry after %s", e.RetryAfter)
}

// Moltbook defines the typed operations of the platform API.
type Moltbook interface {
	ListPosts(ctx context.Context, sort model.FeedSort, limit int) ([]*model.FeedItem, error)
	GetPost(ctx context.Context, id model.PostID) (*model.FeedItem, []*model.Comment, error)
	CreatePost(ctx context.Context, submolt, title, content string) (*model.FeedItem, error)
	CreateComment(ctx context.Context, postID model.PostID, parentID model.CommentID, content string) (*model.Comment, error)
	VotePost(ctx context.Context, id model.PostID, dir model.VoteDirection) error
	VoteComment(ctx context.Context, postID model.PostID, commentID model.CommentID, dir model.VoteDirection) error
	Follow(ctx context.Context, agent model.AgentName) error
	AgentProfile(ctx context.Context, agent model.AgentName) (*model.AgentProfile, error)
	Search(ctx context.Context, query string, limit int) ([]*model.FeedItem, error)
	SubmoltPosts(ctx context.Context, submolt string, sort model.FeedSort, limit int) ([]*model.FeedItem, error)
	SubscribeSubmolt(ctx context.Context, submolt string) error
	CreateSubmolt(ctx context.Context, spec *model.SubmoltSpec) error
}

// MoltbookClient is the HTTP implementation of the platform API.
type MoltbookClient struct {
	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
}

type MoltbookOption func(*MoltbookClient)

func WithMoltbookHTTPClient(c *http.Client) MoltbookOption {
	return func(m *MoltbookClient) {
		m.httpClient = c
	}
}

func WithMoltbookRetries(n int) MoltbookOption {
	return func(m *MoltbookClient) {
		m.maxRetries = n
	}
}

// WithMoltbookBackoff overrides the initial retry backoff.
func WithMoltbookBackoff(d time.Duration) MoltbookOption {
	return func(m *MoltbookClient) {
		m.backoff = d
	}
}

// WithMoltbookRequestRate overrides the client-side request budget.
func WithMoltbookRequestRate(perMinute int) MoltbookOption {
	return func(m *MoltbookClient) {
		m.limiter = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)
	}
}

func NewMoltbook(baseURL, apiKey string, opts ...MoltbookOption) (*MoltbookClient, error) {
	if baseURL == "" {
		return nil, goerr.New("platform base URL is required")
	}
	if apiKey == "" {
		return nil, goerr.New("platform API key is required")
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid platform base URL", goerr.V("url", baseURL))
	}
	canonicalizeHost(u)

	m := &MoltbookClient{
		baseURL: u,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 45 * time.Second,
		},
		// Platform budget is 100 requests per minute.
		limiter:    rate.NewLimiter(rate.Limit(100.0/60.0), 100),
		maxRetries: 3,
		backoff:    500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// BaseURL returns the canonicalized base URL the client sends requests to.
func (m *MoltbookClient) BaseURL() string {
	return m.baseURL.String()
}

// canonicalizeHost rewrites the bare apex domain to its www form. The
// platform's own redirect handling strips the Authorization header, so
// requests must hit the canonical host directly.
func canonicalizeHost(u *url.URL) {
	host := u.Hostname()
	if host == "moltbook.com" {
		port := u.Port()
		u.Host = "www." + host
		if port != "" {
			u.Host += ":" + port
		}
	}
}

func (m *MoltbookClient) request(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := *m.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return goerr.Wrap(err, "failed to marshal request body")
		}
	}

	var lastErr error
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, m.backoff, attempt); err != nil {
				return err
			}
		}

		if err := m.limiter.Wait(ctx); err != nil {
			return goerr.Wrap(err, "request rate limiter interrupted")
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
		if err != nil {
			return goerr.Wrap(err, "failed to create request")
		}
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := m.httpClient.Do(req)
		if err != nil {
			// Network failures and timeouts are transient.
			lastErr = goerr.Wrap(err, "request failed", goerr.V("path", path))
			continue
		}

		done, err := m.handleResponse(resp, path, out)
		if done {
			return err
		}
		lastErr = err
	}

	return goerr.Wrap(lastErr, "retries exhausted",
		goerr.V("path", path), goerr.V("attempts", m.maxRetries+1))
}

// handleResponse consumes the response body. done is false only for
// transient failures worth another attempt.
func (m *MoltbookClient) handleResponse(resp *http.Response, path string, out any) (done bool, err error) {
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return true, nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return true, goerr.Wrap(err, "failed to decode response", goerr.V("path", path))
		}
		return true, nil

	case resp.StatusCode == http.StatusUnauthorized:
		// Never include the credential itself.
		return true, goerr.Wrap(ErrAuthentication, "rejected by platform",
			goerr.V("host", resp.Request.URL.Host), goerr.V("path", path))

	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := 30 * time.Minute
		var body struct {
			RetryAfterMinutes int `json:"retry_after_minutes"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.RetryAfterMinutes > 0 {
			retryAfter = time.Duration(body.RetryAfterMinutes) * time.Minute
		}
		return true, &RateLimitError{RetryAfter: retryAfter}

	case resp.StatusCode >= 500:
		raw, _ := io.ReadAll(resp.Body)
		return false, goerr.New("platform server error",
			goerr.V("status", resp.StatusCode),
			goerr.V("path", path),
			goerr.V("body", string(raw)))

	default:
		raw, _ := io.ReadAll(resp.Body)
		return true, goerr.New("platform request rejected",
			goerr.V("status", resp.StatusCode),
			goerr.V("path", path),
			goerr.V("body", string(raw)))
	}
}

func sleepBackoff(ctx context.Context, base time.Duration, attempt int) error {
	d := base << (attempt - 1)
	d += time.Duration(rand.Int63n(int64(d)/2 + 1))
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (m *MoltbookClient) ListPosts(ctx context.Context, sort model.FeedSort, limit int) ([]*model.FeedItem, error) {
	if err := sort.Validate(); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("sort", string(sort))
	q.Set("limit", fmt.Sprintf("%d", limit))

	var out struct {
		Posts []*model.FeedItem `json:"posts"`
	}
	if err := m.request(ctx, http.MethodGet, "posts", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Posts, nil
}

// GetPost returns the post and its embedded comments. The dedicated
// comments endpoint answers 405 on this platform, so comments come from the
// post detail response and are sorted locally, newest first.
func (m *MoltbookClient) GetPost(ctx context.Context, id model.PostID) (*model.FeedItem, []*model.Comment, error) {
	var out struct {
		Post     *model.FeedItem  `json:"post"`
		Comments []*model.Comment `json:"comments"`
	}
	if err := m.request(ctx, http.MethodGet, "posts/"+string(id), nil, nil, &out); err != nil {
		return nil, nil, err
	}
	if out.Post == nil {
		return nil, nil, goerr.New("post not found in response", goerr.V("post_id", id))
	}

	sort.SliceStable(out.Comments, func(i, j int) bool {
		return out.Comments[i].CreatedAt.After(out.Comments[j].CreatedAt)
	})
	return out.Post, out.Comments, nil
}

func (m *MoltbookClient) CreatePost(ctx context.Context, submolt, title, content string) (*model.FeedItem, error) {
	body := map[string]string{
		"submolt": submolt,
		"title":   title,
		"content": content,
	}
	var out struct {
		Post *model.FeedItem `json:"post"`
	}
	if err := m.request(ctx, http.MethodPost, "posts", nil, body, &out); err != nil {
		return nil, err
	}
	if out.Post == nil {
		return nil, goerr.New("created post missing from response")
	}
	return out.Post, nil
}

func (m *MoltbookClient) CreateComment(ctx context.Context, postID model.PostID, parentID model.CommentID, content string) (*model.Comment, error) {
	body := map[string]string{"content": content}
	if parentID != "" {
		body["parent_id"] = string(parentID)
	}
	var out struct {
		Comment *model.Comment `json:"comment"`
	}
	if err := m.request(ctx, http.MethodPost, "posts/"+string(postID)+"/comments", nil, body, &out); err != nil {
		return nil, err
	}
	if out.Comment == nil {
		return nil, goerr.New("created comment missing from response", goerr.V("post_id", postID))
	}
	return out.Comment, nil
}

func (m *MoltbookClient) VotePost(ctx context.Context, id model.PostID, dir model.VoteDirection) error {
	return m.request(ctx, http.MethodPost, "posts/"+string(id)+"/"+votePath(dir), nil, nil, nil)
}

func (m *MoltbookClient) VoteComment(ctx context.Context, postID model.PostID, commentID model.CommentID, dir model.VoteDirection) error {
	path := "posts/" + string(postID) + "/comments/" + string(commentID) + "/" + votePath(dir)
	return m.request(ctx, http.MethodPost, path, nil, nil, nil)
}

func votePath(dir model.VoteDirection) string {
	if dir == model.VoteDown {
		return "downvote"
	}
	return "upvote"
}

func (m *MoltbookClient) Follow(ctx context.Context, agent model.AgentName) error {
	return m.request(ctx, http.MethodPost, "agents/"+string(agent)+"/follow", nil, nil, nil)
}

func (m *MoltbookClient) AgentProfile(ctx context.Context, agent model.AgentName) (*model.AgentProfile, error) {
	var out struct {
		Agent *model.AgentProfile `json:"agent"`
		Posts []*model.FeedItem   `json:"posts"`
	}
	if err := m.request(ctx, http.MethodGet, "agents/"+string(agent), nil, nil, &out); err != nil {
		return nil, err
	}
	if out.Agent == nil {
		return nil, goerr.New("agent not found in response", goerr.V("agent", agent))
	}
	if out.Agent.Posts == nil {
		out.Agent.Posts = out.Posts
	}
	return out.Agent, nil
}

func (m *MoltbookClient) Search(ctx context.Context, query string, limit int) ([]*model.FeedItem, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("limit", fmt.Sprintf("%d", limit))

	var out struct {
		Posts []*model.FeedItem `json:"posts"`
	}
	if err := m.request(ctx, http.MethodGet, "posts/search", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Posts, nil
}

func (m *MoltbookClient) SubmoltPosts(ctx context.Context, submolt string, sort model.FeedSort, limit int) ([]*model.FeedItem, error) {
	if err := sort.Validate(); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("sort", string(sort))
	q.Set("limit", fmt.Sprintf("%d", limit))

	var out struct {
		Posts []*model.FeedItem `json:"posts"`
	}
	if err := m.request(ctx, http.MethodGet, "submolts/"+submolt+"/posts", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Posts, nil
}

func (m *MoltbookClient) SubscribeSubmolt(ctx context.Context, submolt string) error {
	return m.request(ctx, http.MethodPost, "submolts/"+submolt+"/subscribe", nil, nil, nil)
}

func (m *MoltbookClient) CreateSubmolt(ctx context.Context, spec *model.SubmoltSpec) error {
	body := map[string]string{
		"name":         spec.Name,
		"display_name": spec.DisplayName,
		"description":  spec.Description,
	}
	return m.request(ctx, http.MethodPost, "submolts", nil, body, nil)
}
