// Package cycle runs the agent: one orchestrated pass of quota check, mention
// replies, optional engagement, optional follows and a post, repeated by the
// Runner on a fixed interval.
package cycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/banabets/else/common/logger"
	"github.com/banabets/else/internal/clock"
	"github.com/banabets/else/internal/content"
	"github.com/banabets/else/internal/model"
	"github.com/banabets/else/internal/social"
	"github.com/banabets/else/internal/status"
	"github.com/banabets/else/internal/strategy"
	"github.com/banabets/else/internal/thread"
)

type Composer interface {
	Compose(ctx context.Context, st model.Strategy, in content.Input) (content.Draft, error)
	MentionReply(ctx context.Context, authorUsername string, mention model.Post) (string, error)
	EngageReply(ctx context.Context, cand model.Candidate) (string, error)
	Image(ctx context.Context, d content.Draft) ([]byte, error)
	HasImages() bool
}

type Ranker interface {
	RankWithFallback(ctx context.Context, topics []string, selfID string) ([]model.Candidate, error)
}

type Recommender interface {
	Recommend(ctx context.Context, self model.User, limit int) ([]model.User, error)
	FollowBatch(ctx context.Context, selfID string, users []model.User) (int, error)
}

type ThreadPoster interface {
	Post(ctx context.Context, segments []string, opts thread.Options) ([]string, error)
}

type Selector interface {
	Pick(rng strategy.Random) model.Strategy
}

type IDGenerator interface {
	Next() int64
}

type Reporter interface {
	Report(ctx context.Context, r status.Report)
}

type Config struct {
	Topics            []string
	EngageProbability float64
	FollowProbability float64
	ImageProbability  float64
	MentionReplyLimit int
	EngageReplyLimit  int
	FollowCap         int
	ReplyDelay        time.Duration
}

// Deps are the collaborators of an Orchestrator. Reporter may be nil.
type Deps struct {
	Social      social.Client
	Composer    Composer
	Ranker      Ranker
	Recommender Recommender
	Threads     ThreadPoster
	Selector    Selector
	IDs         IDGenerator
	Reporter    Reporter
	Clock       clock.Clock
	Random      strategy.Random
}

const mentionSearchSize = 20

type Orchestrator struct {
	cfg   Config
	deps  Deps
	state *State
}

func NewOrchestrator(cfg Config, deps Deps, state *State) *Orchestrator {
	slog.InfoContext(context.Background(), "cycle orchestrator initialized",
		"topics", len(cfg.Topics),
		"engage_probability", cfg.EngageProbability,
		"follow_probability", cfg.FollowProbability,
		"image_probability", cfg.ImageProbability,
		"images_enabled", deps.Composer.HasImages())

	return &Orchestrator{cfg: cfg, deps: deps, state: state}
}

func (o *Orchestrator) State() *State {
	return o.state
}

type stepFunc func(ctx context.Context, c *model.Cycle) (model.StepResult, error)

// Run executes one cycle. Every step but post is best-effort: its failure is
// logged and recorded on the cycle. Only a post failure that is neither a
// rate-limit nor forbidden is returned.
func (o *Orchestrator) Run(ctx context.Context) (*model.Cycle, error) {
	c := model.NewCycle(o.deps.IDs.Next(), o.deps.Clock.Now())

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		CycleID:   &c.ID,
		Component: "agent.cycle.orchestrator",
	})
	sc := logger.StartSpan(ctx, "cycle.run")
	defer sc.End()
	ctx = sc.Context()
	sc.SetAttributes(attribute.Int64("cycle.id", c.ID))

	slog.InfoContext(ctx, "cycle started")
	o.state.Guard.BeginCycle()

	o.runStep(ctx, c, model.StepCheckQuota, o.checkQuota)
	o.runStep(ctx, c, model.StepReplyMentions, o.replyMentions)

	engage := strategy.Chance(o.deps.Random, o.cfg.EngageProbability)
	follow := strategy.Chance(o.deps.Random, o.cfg.FollowProbability)

	if engage {
		o.runStep(ctx, c, model.StepEngage, o.engage)
	} else {
		c.Mark(model.StepEngage, model.StepResultSkipped)
	}
	if follow {
		o.runStep(ctx, c, model.StepFollow, o.follow)
	} else {
		c.Mark(model.StepFollow, model.StepResultSkipped)
	}

	err := o.runStep(ctx, c, model.StepPost, o.post)

	c.FinishedAt = o.deps.Clock.Now()
	if err != nil {
		c.Outcome = model.OutcomeFailed
		c.Error = err.Error()
		sc.RecordError(err)
	} else if c.Outcome == "" {
		c.Outcome = model.OutcomeCompleted
	}
	sc.SetAttributes(attribute.String("cycle.outcome", string(c.Outcome)))

	slog.InfoContext(ctx, "cycle finished",
		"outcome", c.Outcome,
		"strategy", c.Strategy,
		"replies", c.Replies,
		"follows", c.Follows,
		"post_ids", c.PostIDs,
		"duration_ms", c.Duration().Milliseconds())

	o.report(ctx, c)
	return c, err
}

// runStep wraps a step in a span and log fields. Non-post errors are only
// logged; the post error is returned to Run.
func (o *Orchestrator) runStep(ctx context.Context, c *model.Cycle, step model.Step, fn stepFunc) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Step: logger.Ptr(string(step))})
	sc := logger.StartSpan(ctx, "cycle."+string(step))
	defer sc.End()
	ctx = sc.Context()

	result, err := fn(ctx, c)
	if err != nil {
		err = stepErr(step, err)
		sc.RecordError(err)
		if result == "" {
			result = model.StepResultFailed
		}
	}
	c.Mark(step, result)
	sc.SetAttributes(attribute.String("step.result", string(result)))

	if err == nil {
		return nil
	}
	if step == model.StepPost {
		slog.ErrorContext(ctx, "post step failed", "error", err)
		return err
	}
	slog.WarnContext(ctx, "step failed, continuing cycle", "error", err)
	return nil
}

// report publishes the finished cycle even when the cycle deadline has passed.
func (o *Orchestrator) report(ctx context.Context, c *model.Cycle) {
	if o.deps.Reporter == nil {
		return
	}
	o.deps.Reporter.Report(context.WithoutCancel(ctx), status.Report{
		Cycle:              *c,
		Quota:              o.state.Guard.Snapshot(),
		ObservationCounter: o.state.Counter.Value(),
		ReportedAt:         o.deps.Clock.Now(),
	})
}

// self returns the authenticated account, looking it up on first use.
func (o *Orchestrator) self(ctx context.Context) (model.User, error) {
	if o.state.Self != nil {
		return *o.state.Self, nil
	}
	u, err := o.deps.Social.Me(ctx)
	if err != nil {
		return model.User{}, fmt.Errorf("looking up own account: %w", err)
	}
	o.state.Self = &u
	return u, nil
}

// pause sleeps between writes of the same step.
func (o *Orchestrator) pause(ctx context.Context, first bool) error {
	if first || o.cfg.ReplyDelay <= 0 {
		return nil
	}
	return o.deps.Clock.Sleep(ctx, o.cfg.ReplyDelay)
}

func (o *Orchestrator) topic() string {
	if len(o.cfg.Topics) == 0 {
		return ""
	}
	return o.cfg.Topics[o.deps.Random.IntN(len(o.cfg.Topics))]
}
