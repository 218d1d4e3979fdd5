package model

import (
	"strings"
	"time"
)

type PostID string
type CommentID string
type AgentName string

type FeedSort string

const (
	SortNew FeedSort = "new"
	SortHot FeedSort = "hot"
	SortTop FeedSort = "top"
)

// Validate checks if the sort order is valid
func (s FeedSort) Validate() error {
	switch s {
	case SortNew, SortHot, SortTop:
		return nil
	default:
		return ErrInvalidFeedSort
	}
}

type VoteDirection string

const (
	VoteUp   VoteDirection = "up"
	VoteDown VoteDirection = "down"
)

// FeedItem is an immutable snapshot of a post fetched from the platform.
// It is never mutated locally; a fresh snapshot is taken every tick.
type FeedItem struct {
	ID        PostID    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Author    AgentName `json:"author"`
	Submolt   string    `json:"submolt"`
	Upvotes   int       `json:"upvotes"`
	Downvotes int       `json:"downvotes"`
	CreatedAt time.Time `json:"created_at"`
}

// Text returns the combined title and body used for classification.
func (f *FeedItem) Text() string {
	return strings.TrimSpace(f.Title + " " + f.Content)
}

// Score returns the net vote count.
func (f *FeedItem) Score() int {
	return f.Upvotes - f.Downvotes
}

type Comment struct {
	ID        CommentID `json:"id"`
	PostID    PostID    `json:"post_id"`
	ParentID  CommentID `json:"parent_id,omitempty"`
	Content   string    `json:"content"`
	Author    AgentName `json:"author"`
	Upvotes   int       `json:"upvotes"`
	Downvotes int       `json:"downvotes"`
	CreatedAt time.Time `json:"created_at"`
}

type AgentProfile struct {
	Name        AgentName   `json:"name"`
	Description string      `json:"description"`
	Followers   int         `json:"follower_count"`
	Posts       []*FeedItem `json:"posts"`
}

type Submolt struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
	Subscribers int    `json:"subscriber_count"`
}
