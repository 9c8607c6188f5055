package quota_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/banabets/else/internal/clock"
	"github.com/banabets/else/internal/quota"
	"github.com/banabets/else/internal/social"
)

func dailyExhausted(reset time.Time) error {
	zero := 0
	return &social.Error{
		Kind:           social.KindRateLimited,
		Op:             "me",
		DailyRemaining: &zero,
		DailyResetAt:   &reset,
	}
}

var _ = Describe("Guard", func() {
	var (
		ctx   context.Context
		clk   *clock.Fake
		guard *quota.Guard
		now   time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
		clk = clock.NewFake(now)
		guard = quota.New(clk)
	})

	It("starts unknown and allows writes", func() {
		Expect(guard.State()).To(Equal(quota.StateUnknown))
		Expect(guard.AllowWrite()).To(BeTrue())
	})

	It("moves to ok after a successful probe", func() {
		state := guard.Check(ctx, func(context.Context) error { return nil })
		Expect(state).To(Equal(quota.StateOk))
	})

	It("keeps its state when the probe fails for other reasons", func() {
		guard.Check(ctx, func(context.Context) error { return nil })
		state := guard.Check(ctx, func(context.Context) error { return errors.New("network down") })
		Expect(state).To(Equal(quota.StateOk))

		state = guard.Check(ctx, func(context.Context) error {
			return &social.Error{Kind: social.KindRateLimited, Op: "me"}
		})
		Expect(state).To(Equal(quota.StateOk))
	})

	Context("when the probe reports the daily quota gone", func() {
		reset := func() time.Time { return now.Add(3 * time.Hour) }

		BeforeEach(func() {
			guard.Check(ctx, func(context.Context) error { return dailyExhausted(reset()) })
		})

		It("becomes exhausted with the reset time", func() {
			Expect(guard.State()).To(Equal(quota.StateExhausted))
			Expect(*guard.ResetAt()).To(Equal(reset()))
			Expect(*guard.Snapshot().Remaining).To(Equal(0))
			Expect(guard.AllowWrite()).To(BeFalse())
		})

		It("does not probe again before the reset", func() {
			probes := 0
			guard.BeginCycle()
			guard.Check(ctx, func(context.Context) error { probes++; return nil })
			Expect(probes).To(Equal(0))
			Expect(guard.AllowWrite()).To(BeFalse())
		})

		It("returns to ok once the clock passes the reset", func() {
			clk.Advance(3*time.Hour - time.Second)
			Expect(guard.AllowWrite()).To(BeFalse())

			clk.Advance(time.Second)
			Expect(guard.State()).To(Equal(quota.StateOk))
			Expect(guard.AllowWrite()).To(BeTrue())
			Expect(guard.ResetAt()).To(BeNil())
		})
	})

	Describe("ObserveWriteError", func() {
		It("ignores non rate-limit errors", func() {
			Expect(guard.ObserveWriteError(ctx, &social.Error{Kind: social.KindForbidden})).To(BeFalse())
			Expect(guard.ObserveWriteError(ctx, errors.New("boom"))).To(BeFalse())
			Expect(guard.AllowWrite()).To(BeTrue())
		})

		It("exhausts the guard until the daily reset", func() {
			reset := now.Add(time.Hour)
			Expect(guard.ObserveWriteError(ctx, dailyExhausted(reset))).To(BeTrue())
			Expect(guard.State()).To(Equal(quota.StateExhausted))

			guard.BeginCycle()
			Expect(guard.AllowWrite()).To(BeFalse())

			clk.Set(reset)
			Expect(guard.AllowWrite()).To(BeTrue())
		})

		It("blocks only the current cycle when no reset is known", func() {
			Expect(guard.ObserveWriteError(ctx, &social.Error{Kind: social.KindRateLimited, Op: "post"})).To(BeTrue())
			Expect(guard.AllowWrite()).To(BeFalse())

			guard.BeginCycle()
			Expect(guard.AllowWrite()).To(BeTrue())
		})

		It("keeps the rest of the cycle blocked after the window reset passes", func() {
			window := now.Add(time.Minute)
			guard.ObserveWriteError(ctx, &social.Error{Kind: social.KindRateLimited, Op: "reply", ResetAt: &window})

			clk.Advance(2 * time.Minute)
			Expect(guard.State()).To(Equal(quota.StateOk))
			Expect(guard.AllowWrite()).To(BeFalse())
		})
	})

	Describe("RecordWrite", func() {
		It("decrements a known budget and never goes negative", func() {
			one := 1
			window := now.Add(time.Minute)
			guard.ObserveWriteError(ctx, &social.Error{Kind: social.KindRateLimited, DailyRemaining: &one, ResetAt: &window})
			clk.Advance(time.Hour)
			guard.BeginCycle()

			Expect(guard.State()).To(Equal(quota.StateOk))
			Expect(guard.Snapshot().Remaining).To(BeNil())

			guard.Check(ctx, func(context.Context) error {
				return &social.Error{Kind: social.KindOther, DailyRemaining: &one}
			})
			guard.RecordWrite()
			guard.RecordWrite()
			Expect(*guard.Snapshot().Remaining).To(Equal(0))
		})

		It("leaves an unknown budget unknown", func() {
			guard.RecordWrite()
			Expect(guard.Snapshot().Remaining).To(BeNil())
		})
	})
})
