package content_test

import (
	"context"

	"github.com/banabets/else/internal/model"
	"github.com/banabets/else/internal/social"
)

type mockText struct {
	generateFn func(ctx context.Context, prompt string, maxTokens int) (string, error)
	prompts    []string
	maxTokens  []int
}

func (m *mockText) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	m.prompts = append(m.prompts, prompt)
	m.maxTokens = append(m.maxTokens, maxTokens)
	if m.generateFn != nil {
		return m.generateFn(ctx, prompt, maxTokens)
	}
	return "a thought", nil
}

func (m *mockText) Model() string { return "mock" }

type mockSegmentText struct {
	mockText
	segmentsFn    func(ctx context.Context, prompt string, maxTokens int) ([]string, error)
	segmentsCalls int
}

func (m *mockSegmentText) GenerateSegments(ctx context.Context, prompt string, maxTokens int) ([]string, error) {
	m.segmentsCalls++
	if m.segmentsFn != nil {
		return m.segmentsFn(ctx, prompt, maxTokens)
	}
	return nil, nil
}

type mockImages struct {
	generateFn func(ctx context.Context, prompt string) ([]byte, error)
	prompts    []string
}

func (m *mockImages) Generate(ctx context.Context, prompt string) ([]byte, error) {
	m.prompts = append(m.prompts, prompt)
	if m.generateFn != nil {
		return m.generateFn(ctx, prompt)
	}
	return []byte("img"), nil
}

type mockTimeline struct {
	social.Client
	homeTimelineFn func(ctx context.Context, userID string, max int) ([]model.Post, error)
	calls          int
}

func (m *mockTimeline) HomeTimeline(ctx context.Context, userID string, max int) ([]model.Post, error) {
	m.calls++
	if m.homeTimelineFn != nil {
		return m.homeTimelineFn(ctx, userID, max)
	}
	return nil, nil
}
