package strategy_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/banabets/else/internal/model"
	"github.com/banabets/else/internal/strategy"
)

var _ = Describe("NewSelector", func() {
	It("accepts the default table", func() {
		_, err := strategy.NewSelector(strategy.DefaultTable)
		Expect(err).NotTo(HaveOccurred())
	})

	DescribeTable("rejects invalid tables",
		func(table []strategy.Weighted, msg string) {
			_, err := strategy.NewSelector(table)
			Expect(err).To(MatchError(ContainSubstring(msg)))
		},
		Entry("empty", nil, "empty"),
		Entry("sum below one", []strategy.Weighted{
			{Strategy: model.StrategyQuestion, Weight: 0.5},
			{Strategy: model.StrategyThread, Weight: 0.4},
		}, "sum"),
		Entry("negative weight", []strategy.Weighted{
			{Strategy: model.StrategyQuestion, Weight: 1.5},
			{Strategy: model.StrategyThread, Weight: -0.5},
		}, "invalid weight"),
		Entry("duplicate", []strategy.Weighted{
			{Strategy: model.StrategyQuestion, Weight: 0.5},
			{Strategy: model.StrategyQuestion, Weight: 0.5},
		}, "twice"),
		Entry("unknown strategy", []strategy.Weighted{
			{Strategy: "meme", Weight: 1},
		}, "unknown"),
	)
})

var _ = Describe("Selector", func() {
	var sel *strategy.Selector

	BeforeEach(func() {
		var err error
		sel, err = strategy.NewSelector(strategy.DefaultTable)
		Expect(err).NotTo(HaveOccurred())
	})

	DescribeTable("maps draws onto cumulative ranges",
		func(draw float64, want model.Strategy) {
			Expect(sel.Select(draw)).To(Equal(want))
		},
		Entry("start", 0.0, model.StrategyQuestion),
		Entry("inside question", 0.2499, model.StrategyQuestion),
		Entry("hot take boundary", 0.25, model.StrategyHotTake),
		Entry("thread boundary", 0.45, model.StrategyThread),
		Entry("observation boundary", 0.65, model.StrategyNumberedObservation),
		Entry("regular thought boundary", 0.80, model.StrategyRegularThought),
		Entry("tail", 0.9999999999, model.StrategyRegularThought),
		Entry("above range clamps", 1.0, model.StrategyRegularThought),
		Entry("below range clamps", -0.1, model.StrategyQuestion),
	)

	It("never selects a zero-weight strategy", func() {
		only, err := strategy.NewSelector([]strategy.Weighted{
			{Strategy: model.StrategyQuestion, Weight: 1},
			{Strategy: model.StrategyThread, Weight: 0},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(only.Select(0.9999999999)).To(Equal(model.StrategyQuestion))
		Expect(only.Select(1)).To(Equal(model.StrategyQuestion))
	})

	It("reports configured weights", func() {
		Expect(sel.Weight(model.StrategyThread)).To(Equal(0.20))
		Expect(sel.Weight("meme")).To(BeZero())
	})

	It("matches the configured weights over many draws", func() {
		const n = 200000
		rng := strategy.NewRandom(42)
		counts := map[model.Strategy]int{}
		for i := 0; i < n; i++ {
			counts[sel.Pick(rng)]++
		}

		for _, w := range strategy.DefaultTable {
			freq := float64(counts[w.Strategy]) / n
			Expect(freq).To(BeNumerically("~", w.Weight, 0.01), string(w.Strategy))
		}
	})

	It("is deterministic for a fixed seed", func() {
		a, b := strategy.NewRandom(7), strategy.NewRandom(7)
		for i := 0; i < 50; i++ {
			Expect(sel.Pick(a)).To(Equal(sel.Pick(b)))
		}
	})
})

var _ = Describe("Chance", func() {
	It("honours the extremes", func() {
		rng := strategy.NewRandom(1)
		for i := 0; i < 100; i++ {
			Expect(strategy.Chance(rng, 0)).To(BeFalse())
			Expect(strategy.Chance(rng, 1)).To(BeTrue())
		}
	})
})
