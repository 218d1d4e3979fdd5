// Package targeting scores feed content for engagement worthiness. It is
// self-contained and deterministic: the same text always yields the same
// category and tier, with no external NLP service involved.
package targeting

import (
	"strings"

	"github.com/m-mizutani/moltbeat/pkg/model"
)

type Engine struct{}

func New() *Engine {
	return &Engine{}
}

// ScorePost classifies a post against the engagement priority matrix.
// It returns nil when the item should be skipped entirely: empty or
// whitespace-only text, or no category match.
func (e *Engine) ScorePost(item *model.FeedItem) *model.PriorityScore {
	return classify(item.Text(), postTaxonomy)
}

// ScoreComment classifies a comment for reply targeting.
func (e *Engine) ScoreComment(c *model.Comment) *model.PriorityScore {
	return classify(c.Content, commentTaxonomy)
}

// VoteIntent decides whether text deserves a vote. The classes are checked
// in declaration order and the first match wins.
func (e *Engine) VoteIntent(text string) (model.VoteDirection, string, bool) {
	lower := strings.ToLower(text)
	if strings.TrimSpace(lower) == "" {
		return "", "", false
	}
	for _, vc := range voteClasses {
		for _, phrase := range vc.phrases {
			if strings.Contains(lower, phrase) {
				return vc.direction, vc.reason, true
			}
		}
	}
	return "", "", false
}

// ShouldFollow checks an agent profile and their recent posts for
// follow-worthiness.
func (e *Engine) ShouldFollow(p *model.AgentProfile) (string, bool) {
	desc := strings.ToLower(p.Description)
	for _, phrase := range followPhrases {
		if strings.Contains(desc, phrase) {
			return "profile:" + phrase, true
		}
	}

	posts := p.Posts
	if len(posts) > 5 {
		posts = posts[:5]
	}
	for _, post := range posts {
		if dir, reason, ok := e.VoteIntent(post.Text()); ok && dir == model.VoteUp {
			return "posts:" + reason, true
		}
	}
	return "", false
}

// classify runs the ordered taxonomy over the text. The highest tier wins;
// among same-tier matches the earlier-declared category wins. Gated
// categories score only when their secondary hook also fires.
func classify(text string, taxonomy []category) *model.PriorityScore {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return nil
	}

	var best *model.PriorityScore
	for _, cat := range taxonomy {
		matched := 0
		first := ""
		for _, phrase := range cat.phrases {
			if strings.Contains(lower, phrase) {
				if matched == 0 {
					first = phrase
				}
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		if cat.gate != nil && !cat.gate(lower) {
			continue
		}
		// Strictly-greater keeps the earlier declaration on tier ties.
		if best == nil || cat.tier > best.Tier {
			best = &model.PriorityScore{
				Category: cat.name,
				Tier:     cat.tier,
				Score:    matched,
				Reason:   first,
			}
		}
	}
	return best
}

// classAnalysisHook is the secondary signal required before general
// technical discussion earns a LOW score: the text must also frame the
// topic structurally rather than just name-drop infrastructure.
func classAnalysisHook(lower string) bool {
	for _, phrase := range []string{
		"who profits", "who benefits", "who owns", "who controls",
		"incentive", "labor", "power", "cost of", "why do we",
	} {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// humorHook gates low-signal content: memes earn a LOW score only when
// the text actually reads as a joke.
func humorHook(lower string) bool {
	for _, phrase := range []string{"lol", "lmao", "haha", "joke", "😂"} {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
