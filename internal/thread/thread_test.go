package thread_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/banabets/else/internal/clock"
	"github.com/banabets/else/internal/social"
	"github.com/banabets/else/internal/thread"
)

type mockPoster struct {
	social.Client
	postFn   func(ctx context.Context, req social.PostRequest) (string, error)
	requests []social.PostRequest
}

func (m *mockPoster) Post(ctx context.Context, req social.PostRequest) (string, error) {
	m.requests = append(m.requests, req)
	if m.postFn != nil {
		return m.postFn(ctx, req)
	}
	return fmt.Sprintf("id%d", len(m.requests)-1), nil
}

var _ = Describe("Poster", func() {
	var (
		ctx    context.Context
		clk    *clock.Fake
		client *mockPoster
		poster *thread.Poster
	)

	BeforeEach(func() {
		ctx = context.Background()
		clk = clock.NewFake(time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC))
		client = &mockPoster{}
		poster = thread.NewPoster(client, clk, 5*time.Second)
	})

	It("chains each segment to the previous returned id", func() {
		ids, err := poster.Post(ctx, []string{"s0", "s1", "s2"}, thread.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(ids).To(Equal([]string{"id0", "id1", "id2"}))

		Expect(client.requests).To(HaveLen(3))
		Expect(client.requests[0].ReplyToID).To(BeEmpty())
		Expect(client.requests[1].ReplyToID).To(Equal("id0"))
		Expect(client.requests[2].ReplyToID).To(Equal("id1"))
		Expect(clk.Sleeps()).To(Equal([]time.Duration{5 * time.Second, 5 * time.Second}))
	})

	It("attaches media to the root only", func() {
		_, err := poster.Post(ctx, []string{"s0", "s1"}, thread.Options{MediaIDs: []string{"m1"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(client.requests[0].MediaIDs).To(Equal([]string{"m1"}))
		Expect(client.requests[1].MediaIDs).To(BeEmpty())
	})

	It("aborts on the first failure without retrying", func() {
		boom := &social.Error{Kind: social.KindOther, Op: "reply"}
		client.postFn = func(_ context.Context, req social.PostRequest) (string, error) {
			if req.Text == "s1" {
				return "", boom
			}
			return "id" + strings.TrimPrefix(req.Text, "s"), nil
		}

		ids, err := poster.Post(ctx, []string{"s0", "s1", "s2"}, thread.Options{})
		Expect(errors.Is(err, boom)).To(BeTrue())
		Expect(ids).To(Equal([]string{"id0"}))
		Expect(client.requests).To(HaveLen(2))

		var pe *thread.PostError
		Expect(errors.As(err, &pe)).To(BeTrue())
		Expect(pe.Index).To(Equal(1))
		Expect(pe.Posted).To(Equal([]string{"id0"}))
	})

	It("keeps the rate-limit kind visible through the chain error", func() {
		client.postFn = func(context.Context, social.PostRequest) (string, error) {
			return "", &social.Error{Kind: social.KindRateLimited, Op: "post"}
		}

		ids, err := poster.Post(ctx, []string{"s0"}, thread.Options{})
		Expect(ids).To(BeEmpty())
		Expect(social.IsRateLimited(err)).To(BeTrue())
	})

	DescribeTable("rejects invalid chains before writing",
		func(segments []string) {
			_, err := poster.Post(ctx, segments, thread.Options{})
			Expect(err).To(MatchError(thread.ErrInvalidThread))
			Expect(client.requests).To(BeEmpty())
		},
		Entry("no segments", []string{}),
		Entry("too many segments", []string{"a", "b", "c", "d", "e"}),
		Entry("blank segment", []string{"a", "  "}),
		Entry("segment too long", []string{strings.Repeat("x", 251)}),
	)

	It("counts characters, not bytes", func() {
		Expect(thread.Validate([]string{strings.Repeat("é", 250)})).To(Succeed())
	})
})
