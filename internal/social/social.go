// Package social is the boundary to the social platform. Collaborators depend
// on the Client interface; every failure crossing the boundary is a *Error.
package social

import (
	"context"
	"time"

	"github.com/banabets/else/internal/model"
)

// SearchQuery selects recent posts.
type SearchQuery struct {
	Query      string
	StartTime  time.Time // zero = platform default window
	SinceID    string
	MaxResults int
}

type PostRequest struct {
	Text      string
	ReplyToID string
	MediaIDs  []string
}

type Client interface {
	Me(ctx context.Context) (model.User, error)
	HomeTimeline(ctx context.Context, userID string, maxResults int) ([]model.Post, error)
	SearchMentions(ctx context.Context, username, sinceID string, maxResults int) ([]model.Post, error)
	SearchRecent(ctx context.Context, q SearchQuery) ([]model.Post, error)
	LookupUsers(ctx context.Context, ids []string) ([]model.User, error)
	Following(ctx context.Context, userID string) ([]string, error)

	Post(ctx context.Context, req PostRequest) (string, error)
	Reply(ctx context.Context, inReplyToID, text string) (string, error)
	Follow(ctx context.Context, sourceUserID, targetUserID string) error
	UploadMedia(ctx context.Context, data []byte) (string, error)
}
