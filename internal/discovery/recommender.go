package discovery

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/banabets/else/internal/clock"
	"github.com/banabets/else/internal/model"
	"github.com/banabets/else/internal/social"
	"github.com/banabets/else/internal/strategy"
)

const (
	minFollowers      = 50
	maxFollowers      = 100000
	minPosts          = 20
	followSearchSize  = 50
	followSearchAge   = 24 * time.Hour
	defaultFollowWait = 30 * time.Second

	// keywords shorter than this match whole words only
	minSubstringKeyword = 3
)

var DefaultFollowTerms = []string{
	"complex systems",
	"emergence",
	"philosophy of mind",
	"cognitive science",
	"systems thinking",
	"consciousness",
	"cybernetics",
	"machine learning research",
}

var DefaultBioKeywords = []string{
	"research",
	"systems",
	"philosophy",
	"science",
	"complexity",
	"cognitive",
	"emergence",
	"math",
	"physics",
	"ai",
	"ml",
}

type RecommenderConfig struct {
	Terms       []string
	BioKeywords []string
	FollowDelay time.Duration
}

type FollowRecommender struct {
	client   social.Client
	clock    clock.Clock
	rng      strategy.Random
	terms    []string
	keywords []string
	delay    time.Duration
}

func NewFollowRecommender(client social.Client, clk clock.Clock, rng strategy.Random, cfg RecommenderConfig) *FollowRecommender {
	terms := cfg.Terms
	if len(terms) == 0 {
		terms = DefaultFollowTerms
	}
	keywords := cfg.BioKeywords
	if len(keywords) == 0 {
		keywords = DefaultBioKeywords
	}
	lowered := make([]string, len(keywords))
	for i, k := range keywords {
		lowered[i] = strings.ToLower(k)
	}
	delay := cfg.FollowDelay
	if delay <= 0 {
		delay = defaultFollowWait
	}

	return &FollowRecommender{
		client:   client,
		clock:    clk,
		rng:      rng,
		terms:    terms,
		keywords: lowered,
		delay:    delay,
	}
}

// Recommend returns up to limit accounts that recently posted on a random term
// and pass the profile filter, largest audience first.
func (f *FollowRecommender) Recommend(ctx context.Context, self model.User, limit int) ([]model.User, error) {
	if limit <= 0 {
		return nil, nil
	}
	term := f.terms[f.rng.IntN(len(f.terms))]

	posts, err := f.client.SearchRecent(ctx, social.SearchQuery{
		Query:      term + " -is:retweet",
		StartTime:  f.clock.Now().Add(-followSearchAge),
		MaxResults: followSearchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", term, err)
	}

	authorIDs := make([]string, 0, len(posts))
	seen := make(map[string]struct{}, len(posts))
	for _, p := range posts {
		if p.AuthorID == "" || p.AuthorID == self.ID {
			continue
		}
		if _, ok := seen[p.AuthorID]; ok {
			continue
		}
		seen[p.AuthorID] = struct{}{}
		authorIDs = append(authorIDs, p.AuthorID)
	}
	if len(authorIDs) == 0 {
		return nil, nil
	}

	following, err := f.client.Following(ctx, self.ID)
	if err != nil {
		return nil, fmt.Errorf("listing followed accounts: %w", err)
	}
	followed := make(map[string]struct{}, len(following))
	for _, id := range following {
		followed[id] = struct{}{}
	}

	profiles, err := f.client.LookupUsers(ctx, authorIDs)
	if err != nil {
		return nil, fmt.Errorf("looking up authors: %w", err)
	}

	picked := make([]model.User, 0, len(profiles))
	for _, u := range profiles {
		if u.ID == self.ID {
			continue
		}
		if _, ok := followed[u.ID]; ok {
			continue
		}
		if f.Eligible(u) {
			picked = append(picked, u)
		}
	}

	slices.SortStableFunc(picked, func(a, b model.User) int {
		return cmp.Compare(b.FollowersCount, a.FollowersCount)
	})
	if len(picked) > limit {
		picked = picked[:limit]
	}

	slog.DebugContext(ctx, "recommended accounts to follow",
		"term", term,
		"authors", len(authorIDs),
		"picked", len(picked))

	return picked, nil
}

// Eligible applies the profile filter: audience within bounds, an active
// posting history, and a bio that is either absent or on topic.
func (f *FollowRecommender) Eligible(u model.User) bool {
	if u.FollowersCount < minFollowers || u.FollowersCount > maxFollowers {
		return false
	}
	if u.TweetCount <= minPosts {
		return false
	}
	if !u.HasBio() {
		return true
	}
	return f.bioMatches(u.Description)
}

func (f *FollowRecommender) bioMatches(bio string) bool {
	lower := strings.ToLower(bio)
	var words []string

	for _, k := range f.keywords {
		if len(k) >= minSubstringKeyword {
			if strings.Contains(lower, k) {
				return true
			}
			continue
		}
		// short keywords like "ai" must match a whole word
		if words == nil {
			words = strings.FieldsFunc(lower, func(r rune) bool {
				return !unicode.IsLetter(r) && !unicode.IsDigit(r)
			})
		}
		if slices.Contains(words, k) {
			return true
		}
	}
	return false
}

// FollowBatch follows users one at a time with a fixed pause between follows.
// A rate-limit stops the batch and is returned with the count so far; any
// other failure skips only that account.
func (f *FollowRecommender) FollowBatch(ctx context.Context, selfID string, users []model.User) (int, error) {
	followed := 0
	for i, u := range users {
		if i > 0 {
			if err := f.clock.Sleep(ctx, f.delay); err != nil {
				return followed, err
			}
		}

		err := f.client.Follow(ctx, selfID, u.ID)
		switch {
		case err == nil:
			followed++
			slog.InfoContext(ctx, "followed account", "user_id", u.ID, "username", u.Username)
		case social.IsRateLimited(err):
			slog.WarnContext(ctx, "follow rate limited, stopping batch",
				"followed", followed,
				"remaining", len(users)-i)
			return followed, err
		case social.IsForbidden(err):
			slog.WarnContext(ctx, "follow forbidden, skipping account", "user_id", u.ID, "error", err)
		default:
			slog.WarnContext(ctx, "follow failed, skipping account", "user_id", u.ID, "error", err)
		}
	}
	return followed, nil
}
