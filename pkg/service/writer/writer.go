// Package writer assembles single-turn prompts for the generation backend
// and validates what comes back. Every call is an isolated transaction: the
// persona preamble plus one task instruction, never any prior history.
package writer

import (
	"bytes"
	_ "embed"
	"context"
	"strings"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/moltbeat/pkg/adapter"
	"github.com/m-mizutani/moltbeat/pkg/model"
	"github.com/m-mizutani/moltbeat/pkg/utils/logging"
)

// ErrGenerationFailed means the backend was unreachable or returned
// unusable output after one retry. The orchestrator treats it as "skip
// this candidate", never as fatal.
var ErrGenerationFailed = goerr.New("text generation failed")

// DefaultPersona is the built-in system prompt used when the operator
// does not supply their own persona file.
//
//go:embed prompt/persona.md
var DefaultPersona string

//go:embed prompt/post.md
var postPromptRaw string

//go:embed prompt/comment.md
var commentPromptRaw string

//go:embed prompt/reply.md
var replyPromptRaw string

var (
	postPromptTmpl    = template.Must(template.New("post").Parse(postPromptRaw))
	commentPromptTmpl = template.Must(template.New("comment").Parse(commentPromptRaw))
	replyPromptTmpl   = template.Must(template.New("reply").Parse(replyPromptRaw))
)

// Minimum output lengths below which generated text is rejected as a
// failed generation rather than published.
const (
	minPostChars    = 100
	minCommentChars = 20
	minReplyChars   = 15
)

type Writer struct {
	gen     adapter.Generator
	persona string
	cfg     *model.Config
}

func New(gen adapter.Generator, persona string, cfg *model.Config) (*Writer, error) {
	if strings.TrimSpace(persona) == "" {
		return nil, goerr.New("persona text is required")
	}
	return &Writer{gen: gen, persona: persona, cfg: cfg}, nil
}

// Post is a generated original post.
type Post struct {
	Title   string
	Content string
}

// ComposePost generates an original post. An empty topic lets the model
// choose its own.
func (w *Writer) ComposePost(ctx context.Context, topic string) (*Post, error) {
	prompt, err := render(postPromptTmpl, map[string]any{"Topic": topic})
	if err != nil {
		return nil, err
	}

	text, err := w.generate(ctx, prompt, model.ActionPost, minPostChars)
	if err != nil {
		return nil, err
	}

	post := parsePost(text)
	if len(post.Content) < minPostChars {
		return nil, goerr.Wrap(ErrGenerationFailed, "generated post too short",
			goerr.V("length", len(post.Content)))
	}
	return post, nil
}

// ComposeComment generates a comment on a post.
func (w *Writer) ComposeComment(ctx context.Context, item *model.FeedItem, score *model.PriorityScore) (string, error) {
	prompt, err := render(commentPromptTmpl, map[string]any{
		"Title":    item.Title,
		"Author":   item.Author,
		"Content":  item.Content,
		"Category": score.Category,
		"Tier":     score.Tier.String(),
		"Reason":   score.Reason,
	})
	if err != nil {
		return "", err
	}
	return w.generate(ctx, prompt, model.ActionComment, minCommentChars)
}

// ReplyInput carries the thread context for a reply.
type ReplyInput struct {
	PostTitle      string
	PostAuthor     model.AgentName
	CommentAuthor  model.AgentName
	CommentContent string
	ThreadContext  string
}

// ComposeReply generates a reply to a comment.
func (w *Writer) ComposeReply(ctx context.Context, in ReplyInput, score *model.PriorityScore) (string, error) {
	prompt, err := render(replyPromptTmpl, map[string]any{
		"PostTitle":      in.PostTitle,
		"PostAuthor":     in.PostAuthor,
		"CommentAuthor":  in.CommentAuthor,
		"CommentContent": in.CommentContent,
		"ThreadContext":  in.ThreadContext,
		"Category":       score.Category,
		"Tier":           score.Tier.String(),
		"Reason":         score.Reason,
	})
	if err != nil {
		return "", err
	}
	return w.generate(ctx, prompt, model.ActionReply, minReplyChars)
}

// generate runs one generation with a single retry when the backend fails
// or returns output below the minimum for the action kind, then applies
// the maximum-length gate.
func (w *Writer) generate(ctx context.Context, prompt string, kind model.ActionKind, minChars int) (string, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		text, err := w.gen.Generate(ctx, w.persona, prompt)
		if err != nil {
			lastErr = goerr.Wrap(ErrGenerationFailed, err.Error(), goerr.V("kind", kind))
			logging.From(ctx).Warn("generation attempt failed", "error", err, "kind", kind)
			continue
		}

		text = strings.TrimSpace(text)
		if len(text) < minChars {
			lastErr = goerr.Wrap(ErrGenerationFailed, "generated text too short",
				goerr.V("kind", kind), goerr.V("length", len(text)))
			logging.From(ctx).Warn("generated text too short", "kind", kind, "length", len(text))
			continue
		}

		if max := w.cfg.MaxChars(kind); len(text) > max {
			text = truncate(text, max)
		}
		return text, nil
	}
	return "", lastErr
}

// parsePost extracts TITLE:/CONTENT: markers. When the model ignores the
// format, the whole output becomes the content under a fallback title.
func parsePost(text string) *Post {
	var title string
	var content []string
	inContent := false

	for _, line := range strings.Split(text, "\n") {
		switch {
		case strings.HasPrefix(line, "TITLE:"):
			title = strings.TrimSpace(strings.TrimPrefix(line, "TITLE:"))
		case strings.HasPrefix(line, "CONTENT:"):
			inContent = true
			content = append(content, strings.TrimSpace(strings.TrimPrefix(line, "CONTENT:")))
		case inContent:
			content = append(content, line)
		}
	}

	post := &Post{
		Title:   title,
		Content: strings.TrimSpace(strings.Join(content, "\n")),
	}
	if post.Title == "" || post.Content == "" {
		post.Title = "A note to the feed"
		post.Content = strings.TrimSpace(text)
	}
	return post
}

// truncate cuts text at the last word boundary within the limit.
func truncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	cut := text[:max]
	if idx := strings.LastIndexAny(cut, " \n\t"); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut)
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", goerr.Wrap(err, "failed to render prompt template")
	}
	return buf.String(), nil
}
