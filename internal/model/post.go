package model

import "time"

// Post is a published item on the social platform.
type Post struct {
	ID              string    `json:"id"`
	Text            string    `json:"text"`
	AuthorID        string    `json:"author_id"`
	ConversationID  string    `json:"conversation_id,omitempty"`
	InReplyToUserID string    `json:"in_reply_to_user_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	LikeCount       int       `json:"like_count"`
	ReplyCount      int       `json:"reply_count"`
	RepostCount     int       `json:"repost_count"`
	QuoteCount      int       `json:"quote_count"`
}

// Engagement is the sum of all public interactions on the post.
func (p Post) Engagement() int {
	return p.LikeCount + p.ReplyCount + p.RepostCount + p.QuoteCount
}

// IsRepost reports whether the post is a plain repost of someone else's content.
func (p Post) IsRepost() bool {
	return len(p.Text) >= 4 && p.Text[:4] == "RT @"
}

// Candidate is an external post scored for engagement. Transient: produced per
// cycle by the ranker and never stored.
type Candidate struct {
	ID              string    `json:"id"`
	Text            string    `json:"text"`
	AuthorID        string    `json:"author_id"`
	AuthorUsername  string    `json:"author_username,omitempty"`
	AuthorFollowers int       `json:"author_followers"`
	LikeCount       int       `json:"like_count"`
	EngagementScore float64   `json:"engagement_score"`
	CreatedAt       time.Time `json:"created_at"`
}
