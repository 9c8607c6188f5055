package discovery_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/banabets/else/internal/clock"
	"github.com/banabets/else/internal/discovery"
	"github.com/banabets/else/internal/model"
	"github.com/banabets/else/internal/social"
)

var _ = Describe("FollowRecommender", func() {
	var (
		ctx    context.Context
		now    time.Time
		clk    *clock.Fake
		client *mockSocial
		rec    *discovery.FollowRecommender
		self   model.User
	)

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
		clk = clock.NewFake(now)
		client = &mockSocial{}
		self = model.User{ID: "self", Username: "else"}
		rec = discovery.NewFollowRecommender(client, clk, fixedRandom{}, discovery.RecommenderConfig{
			Terms:       []string{"emergence"},
			BioKeywords: []string{"Research", "AI", "complex systems"},
			FollowDelay: 30 * time.Second,
		})
	})

	DescribeTable("Eligible",
		func(u model.User, want bool) {
			Expect(rec.Eligible(u)).To(Equal(want))
		},
		Entry("in range without bio", model.User{FollowersCount: 50, TweetCount: 21}, true),
		Entry("too few followers", model.User{FollowersCount: 49, TweetCount: 100}, false),
		Entry("too many followers", model.User{FollowersCount: 100001, TweetCount: 100}, false),
		Entry("upper bound inclusive", model.User{FollowersCount: 100000, TweetCount: 100}, true),
		Entry("not enough posts", model.User{FollowersCount: 500, TweetCount: 20}, false),
		Entry("bio with keyword prefix", model.User{FollowersCount: 500, TweetCount: 100, Description: "Researcher of odd things"}, true),
		Entry("bio with short keyword word", model.User{FollowersCount: 500, TweetCount: 100, Description: "building AI tools"}, true),
		Entry("short keyword inside a word", model.User{FollowersCount: 500, TweetCount: 100, Description: "I said hello"}, false),
		Entry("keyword inside a word", model.User{FollowersCount: 500, TweetCount: 100, Description: "postdoc in neuroscience"}, true),
		Entry("keyword as a suffix", model.User{FollowersCount: 500, TweetCount: 100, Description: "astrophysics nerd"}, true),
		Entry("keyword across punctuation", model.User{FollowersCount: 500, TweetCount: 100, Description: "Data-Science lead"}, true),
		Entry("bio with phrase", model.User{FollowersCount: 500, TweetCount: 100, Description: "into complex systems"}, true),
		Entry("off-topic bio", model.User{FollowersCount: 500, TweetCount: 100, Description: "sneaker deals daily"}, false),
		Entry("blank bio counts as absent", model.User{FollowersCount: 500, TweetCount: 100, Description: "   "}, true),
	)

	Describe("Recommend", func() {
		BeforeEach(func() {
			client.searchRecentFn = func(context.Context, social.SearchQuery) ([]model.Post, error) {
				return []model.Post{
					{ID: "1", AuthorID: "a"},
					{ID: "2", AuthorID: "a"},
					{ID: "3", AuthorID: "b"},
					{ID: "4", AuthorID: "c"},
					{ID: "5", AuthorID: "self"},
					{ID: "6", AuthorID: "d"},
				}, nil
			}
			client.followingFn = func(context.Context, string) ([]string, error) {
				return []string{"b"}, nil
			}
			client.lookupUsersFn = func(_ context.Context, ids []string) ([]model.User, error) {
				return []model.User{
					{ID: "a", FollowersCount: 300, TweetCount: 400},
					{ID: "b", FollowersCount: 900, TweetCount: 400},
					{ID: "c", FollowersCount: 10, TweetCount: 400},
					{ID: "d", FollowersCount: 2000, TweetCount: 400, Description: "AI research"},
				}, nil
			}
		})

		It("searches the last 24 hours and filters authors", func() {
			got, err := rec.Recommend(ctx, self, 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(client.queries[0].StartTime).To(Equal(now.Add(-24 * time.Hour)))
			Expect(client.lookups[0]).To(Equal([]string{"a", "b", "c", "d"}))

			ids := []string{}
			for _, u := range got {
				ids = append(ids, u.ID)
			}
			Expect(ids).To(Equal([]string{"d", "a"}))
		})

		It("respects the cap", func() {
			got, err := rec.Recommend(ctx, self, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(1))
		})

		It("fails when the followed list is unavailable", func() {
			client.followingFn = func(context.Context, string) ([]string, error) {
				return nil, &social.Error{Kind: social.KindOther}
			}
			_, err := rec.Recommend(ctx, self, 5)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("FollowBatch", func() {
		users := []model.User{{ID: "1"}, {ID: "2"}, {ID: "3"}, {ID: "4"}}

		It("paces follows with a fixed delay", func() {
			n, err := rec.FollowBatch(ctx, "self", users)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(4))
			Expect(clk.Sleeps()).To(Equal([]time.Duration{30 * time.Second, 30 * time.Second, 30 * time.Second}))
		})

		It("stops at the first rate limit and reports the count so far", func() {
			client.followFn = func(_ context.Context, _, target string) error {
				if target == "3" {
					return &social.Error{Kind: social.KindRateLimited, Op: "follow"}
				}
				return nil
			}

			n, err := rec.FollowBatch(ctx, "self", users)
			Expect(social.IsRateLimited(err)).To(BeTrue())
			Expect(n).To(Equal(2))
			Expect(client.followCalls).To(Equal([]string{"1", "2", "3"}))
		})

		It("skips forbidden accounts and carries on", func() {
			client.followFn = func(_ context.Context, _, target string) error {
				if target == "2" {
					return &social.Error{Kind: social.KindForbidden, Op: "follow"}
				}
				return nil
			}

			n, err := rec.FollowBatch(ctx, "self", users)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(3))
			Expect(client.followCalls).To(HaveLen(4))
		})

		It("stops when the context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			client.followFn = func(context.Context, string, string) error {
				cancel()
				return nil
			}

			n, err := rec.FollowBatch(cctx, "self", users)
			Expect(err).To(MatchError(context.Canceled))
			Expect(n).To(Equal(1))
		})
	})
})
