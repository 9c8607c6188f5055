// Package discovery finds external posts worth replying to and accounts worth
// following.
package discovery

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/banabets/else/internal/clock"
	"github.com/banabets/else/internal/model"
	"github.com/banabets/else/internal/social"
	"github.com/banabets/else/internal/strategy"
)

const (
	maxCandidateAge       = 48 * time.Hour
	notableFollowers      = 5000
	defaultCandidateLimit = 5
	rankSearchSize        = 50
)

type FilterMode int

const (
	// FilterStrict keeps recent posts with engagement or a notable author.
	FilterStrict FilterMode = iota
	// FilterRelaxed keeps posts with any engagement.
	FilterRelaxed
)

func (m FilterMode) String() string {
	if m == FilterRelaxed {
		return "relaxed"
	}
	return "strict"
}

// EngagementRanker scores recent posts on a topic. Candidates older than 48h
// are never returned, in either mode.
type EngagementRanker struct {
	client social.Client
	clock  clock.Clock
	rng    strategy.Random
	limit  int
}

func NewEngagementRanker(client social.Client, clk clock.Clock, rng strategy.Random) *EngagementRanker {
	return &EngagementRanker{
		client: client,
		clock:  clk,
		rng:    rng,
		limit:  defaultCandidateLimit,
	}
}

// Rank searches one randomly chosen topic and returns up to five candidates,
// best first. Posts by selfID and reposts are excluded.
func (r *EngagementRanker) Rank(ctx context.Context, topics []string, selfID string, mode FilterMode) ([]model.Candidate, error) {
	if len(topics) == 0 {
		return nil, fmt.Errorf("no topics configured")
	}
	topic := topics[r.rng.IntN(len(topics))]
	now := r.clock.Now()

	posts, err := r.client.SearchRecent(ctx, social.SearchQuery{
		Query:      topic + " -is:retweet lang:en",
		StartTime:  now.Add(-maxCandidateAge),
		MaxResults: rankSearchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", topic, err)
	}

	authors, err := r.authors(ctx, posts, selfID)
	if err != nil {
		return nil, err
	}

	candidates := make([]model.Candidate, 0, len(posts))
	for _, p := range posts {
		if p.AuthorID == selfID || p.IsRepost() {
			continue
		}
		if !within(p.CreatedAt, now, maxCandidateAge) {
			continue
		}

		author := authors[p.AuthorID]
		if !keep(p, author, mode) {
			continue
		}

		candidates = append(candidates, model.Candidate{
			ID:              p.ID,
			Text:            p.Text,
			AuthorID:        p.AuthorID,
			AuthorUsername:  author.Username,
			AuthorFollowers: author.FollowersCount,
			LikeCount:       p.LikeCount,
			EngagementScore: Score(author.FollowersCount, p.LikeCount),
			CreatedAt:       p.CreatedAt,
		})
	}

	slices.SortStableFunc(candidates, func(a, b model.Candidate) int {
		if c := cmp.Compare(b.EngagementScore, a.EngagementScore); c != 0 {
			return c
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if len(candidates) > r.limit {
		candidates = candidates[:r.limit]
	}

	slog.DebugContext(ctx, "ranked engagement candidates",
		"topic", topic,
		"mode", mode.String(),
		"searched", len(posts),
		"kept", len(candidates))

	return candidates, nil
}

// RankWithFallback runs a strict pass and, when it finds nothing, a relaxed
// pass on a freshly drawn topic.
func (r *EngagementRanker) RankWithFallback(ctx context.Context, topics []string, selfID string) ([]model.Candidate, error) {
	candidates, err := r.Rank(ctx, topics, selfID, FilterStrict)
	if err != nil || len(candidates) > 0 {
		return candidates, err
	}
	slog.DebugContext(ctx, "strict ranking found nothing, relaxing filter")
	return r.Rank(ctx, topics, selfID, FilterRelaxed)
}

// Score weights author reach against the post's own likes.
func Score(followers, likes int) float64 {
	return float64(followers)/1000 + float64(likes)
}

func keep(p model.Post, author model.User, mode FilterMode) bool {
	engaged := p.Engagement() > 0
	if mode == FilterRelaxed {
		return engaged
	}
	return engaged || author.FollowersCount > notableFollowers
}

func within(t, now time.Time, age time.Duration) bool {
	return !t.IsZero() && !t.Before(now.Add(-age))
}

func (r *EngagementRanker) authors(ctx context.Context, posts []model.Post, selfID string) (map[string]model.User, error) {
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		if p.AuthorID != "" && p.AuthorID != selfID {
			ids = append(ids, p.AuthorID)
		}
	}
	if len(ids) == 0 {
		return map[string]model.User{}, nil
	}

	users, err := r.client.LookupUsers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("looking up authors: %w", err)
	}
	byID := make(map[string]model.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	return byID, nil
}
