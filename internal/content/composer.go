// Package content turns a content strategy into post text by prompting the
// text generator, and shapes the answers to fit the platform.
package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/banabets/else/common/llm"
	"github.com/banabets/else/common/logger"
	"github.com/banabets/else/internal/model"
	"github.com/banabets/else/internal/social"
	"github.com/banabets/else/internal/thread"
)

const (
	MaxPostLength = 280

	thinkTokens        = 200
	threadTokens       = 600
	replyTokens        = 150
	timelineSize       = 10
	timelineContextMax = 5
)

var (
	// ErrEmptyContent means the generator answered but nothing postable was
	// left after shaping.
	ErrEmptyContent = errors.New("generated content is empty")
	// ErrNoImageGenerator is returned by Image when images are not configured.
	ErrNoImageGenerator = errors.New("no image generator configured")
)

// ObservationCounter numbers NumberedObservation posts for the lifetime of the
// process. It only moves forward.
type ObservationCounter struct {
	n atomic.Int64
}

func (c *ObservationCounter) Value() int64 {
	return c.n.Load()
}

func (c *ObservationCounter) next() int64 {
	return c.n.Load() + 1
}

func (c *ObservationCounter) commit() int64 {
	return c.n.Add(1)
}

// Draft is generated content ready for the post step. Threads carry Segments;
// every other strategy carries Text.
type Draft struct {
	Strategy    model.Strategy
	Text        string
	Segments    []string
	Observation int64
}

// Body is the text used to describe the draft, e.g. for an image prompt.
func (d Draft) Body() string {
	if len(d.Segments) > 0 {
		return d.Segments[0]
	}
	return d.Text
}

// Input carries the per-cycle context a strategy may need.
type Input struct {
	SelfID  string
	Topic   string
	Counter *ObservationCounter
}

type Composer struct {
	text     llm.TextGenerator
	images   llm.ImageGenerator
	timeline social.Client
}

// NewComposer builds a composer. images may be nil; timeline is read for
// regular thoughts and may be nil.
func NewComposer(text llm.TextGenerator, images llm.ImageGenerator, timeline social.Client) *Composer {
	return &Composer{text: text, images: images, timeline: timeline}
}

func (c *Composer) HasImages() bool {
	return c.images != nil
}

// Compose generates content for the strategy. Every error it returns is a
// generation failure; it never writes to the platform.
func (c *Composer) Compose(ctx context.Context, st model.Strategy, in Input) (Draft, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Strategy: logger.Ptr(st.String())})

	switch st {
	case model.StrategyQuestion:
		return c.single(ctx, st, questionPrompt(in.Topic), 0)
	case model.StrategyHotTake:
		return c.single(ctx, st, hotTakePrompt(in.Topic), 0)
	case model.StrategyRegularThought:
		return c.single(ctx, st, thinkPrompt(c.observations(ctx, in.SelfID)), thinkTokens)
	case model.StrategyNumberedObservation:
		return c.numbered(ctx, in)
	case model.StrategyThread:
		return c.thread(ctx, in.Topic)
	default:
		return Draft{}, fmt.Errorf("unknown strategy %q", st)
	}
}

func (c *Composer) single(ctx context.Context, st model.Strategy, prompt string, maxTokens int) (Draft, error) {
	raw, err := c.text.Generate(ctx, prompt, maxTokens)
	if err != nil {
		return Draft{}, fmt.Errorf("generating %s: %w", st, err)
	}
	text := Shape(raw, MaxPostLength)
	if text == "" {
		return Draft{}, ErrEmptyContent
	}
	return Draft{Strategy: st, Text: text}, nil
}

func (c *Composer) numbered(ctx context.Context, in Input) (Draft, error) {
	counter := in.Counter
	if counter == nil {
		counter = &ObservationCounter{}
	}

	n := counter.next()
	prefix := fmt.Sprintf("Observation #%d: ", n)

	raw, err := c.text.Generate(ctx, observationPrompt(in.Topic), 0)
	if err != nil {
		return Draft{}, fmt.Errorf("generating observation: %w", err)
	}
	body := Shape(raw, MaxPostLength-len([]rune(prefix)))
	if body == "" {
		return Draft{}, ErrEmptyContent
	}

	counter.commit()
	return Draft{
		Strategy:    model.StrategyNumberedObservation,
		Text:        prefix + body,
		Observation: n,
	}, nil
}

func (c *Composer) thread(ctx context.Context, topic string) (Draft, error) {
	prompt := threadPrompt(topic)

	var segments []string
	if sg, ok := c.text.(llm.SegmentGenerator); ok {
		out, err := sg.GenerateSegments(ctx, prompt, threadTokens)
		if err != nil {
			slog.WarnContext(ctx, "structured thread generation failed, falling back to plain text", "error", err)
		} else {
			segments = out
		}
	}

	if len(segments) == 0 {
		raw, err := c.text.Generate(ctx, prompt, threadTokens)
		if err != nil {
			return Draft{}, fmt.Errorf("generating thread: %w", err)
		}
		segments = SplitSegments(raw)
	}

	shaped := make([]string, 0, thread.MaxSegments)
	for _, s := range segments {
		if len(shaped) == thread.MaxSegments {
			break
		}
		if t := Shape(s, thread.MaxSegmentLength); t != "" {
			shaped = append(shaped, t)
		}
	}
	if len(shaped) == 0 {
		return Draft{}, ErrEmptyContent
	}

	return Draft{Strategy: model.StrategyThread, Segments: shaped}, nil
}

// observations reads the home timeline as context. Failures only cost the
// context.
func (c *Composer) observations(ctx context.Context, selfID string) []string {
	if c.timeline == nil || selfID == "" {
		return nil
	}
	posts, err := c.timeline.HomeTimeline(ctx, selfID, timelineSize)
	if err != nil {
		slog.WarnContext(ctx, "reading home timeline failed, thinking without context", "error", err)
		return nil
	}

	out := make([]string, 0, timelineContextMax)
	for _, p := range posts {
		if len(out) == timelineContextMax {
			break
		}
		if t := strings.TrimSpace(p.Text); t != "" {
			out = append(out, t)
		}
	}
	slog.DebugContext(ctx, "read home timeline", "posts", len(posts), "used", len(out))
	return out
}

// MentionReply answers a post that mentioned the agent.
func (c *Composer) MentionReply(ctx context.Context, authorUsername string, mention model.Post) (string, error) {
	return c.reply(ctx, mentionReplyPrompt(authorUsername, mention.Text))
}

// EngageReply adds to an external post picked by the ranker.
func (c *Composer) EngageReply(ctx context.Context, cand model.Candidate) (string, error) {
	return c.reply(ctx, engageReplyPrompt(cand.AuthorUsername, cand.Text))
}

func (c *Composer) reply(ctx context.Context, prompt string) (string, error) {
	raw, err := c.text.Generate(ctx, prompt, replyTokens)
	if err != nil {
		return "", fmt.Errorf("generating reply: %w", err)
	}
	text := Shape(raw, MaxPostLength)
	if text == "" {
		return "", ErrEmptyContent
	}
	return text, nil
}

// Image renders an illustration for the draft.
func (c *Composer) Image(ctx context.Context, d Draft) ([]byte, error) {
	if c.images == nil {
		return nil, ErrNoImageGenerator
	}
	data, err := c.images.Generate(ctx, imagePrompt(d.Body()))
	if err != nil {
		return nil, fmt.Errorf("generating image: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("generating image: empty payload")
	}
	return data, nil
}
