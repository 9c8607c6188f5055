package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/banabets/else/common/logger"
	"github.com/banabets/else/core/config"
)

var _ = Describe("LogFields", func() {
	It("returns empty fields for a bare context", func() {
		Expect(logger.GetLogFields(context.Background())).To(Equal(logger.LogFields{}))
	})

	It("merges newer non-empty values over existing ones", func() {
		ctx := logger.WithLogFields(context.Background(), logger.LogFields{
			CycleID:   logger.Ptr(int64(7)),
			Step:      logger.Ptr("reply_mentions"),
			Component: "agent.cycle",
		})
		ctx = logger.WithLogFields(ctx, logger.LogFields{Step: logger.Ptr("post")})

		fields := logger.GetLogFields(ctx)
		Expect(*fields.CycleID).To(Equal(int64(7)))
		Expect(*fields.Step).To(Equal("post"))
		Expect(fields.Component).To(Equal("agent.cycle"))
	})
})

var _ = Describe("Truncate", func() {
	DescribeTable("shortens long strings by rune",
		func(input string, maxLen int, expected string) {
			Expect(logger.Truncate(input, maxLen)).To(Equal(expected))
		},
		Entry("short string unchanged", "hello", 10, "hello"),
		Entry("exact length unchanged", "hello", 5, "hello"),
		Entry("long string truncated", "hello world", 5, "hello..."),
		Entry("multibyte runes kept whole", "héllo wörld", 4, "héll..."),
	)
})

var _ = Describe("TraceHandler", func() {
	It("adds context fields to every record", func() {
		var buf bytes.Buffer
		cfg := config.Config{Env: "production"}
		log := slog.New(logger.NewHandler(cfg, &buf))

		ctx := logger.WithLogFields(context.Background(), logger.LogFields{
			CycleID:   logger.Ptr(int64(42)),
			Strategy:  logger.Ptr("thread"),
			Component: "agent.thread",
		})
		log.InfoContext(ctx, "posted")

		var record map[string]any
		Expect(json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &record)).To(Succeed())
		Expect(record["cycle_id"]).To(BeNumerically("==", 42))
		Expect(record["strategy"]).To(Equal("thread"))
		Expect(record["component"]).To(Equal("agent.thread"))
	})

	It("uses a text handler in development", func() {
		var buf bytes.Buffer
		log := slog.New(logger.NewHandler(config.Config{Env: "development"}, &buf))
		log.Debug("visible at debug")

		Expect(strings.Contains(buf.String(), "visible at debug")).To(BeTrue())
	})
})
