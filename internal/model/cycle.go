package model

import "time"

type Step string

const (
	StepCheckQuota    Step = "check_quota"
	StepReplyMentions Step = "reply_mentions"
	StepEngage        Step = "engage"
	StepFollow        Step = "follow"
	StepPost          Step = "post"
)

type StepResult string

const (
	StepResultOK      StepResult = "ok"
	StepResultSkipped StepResult = "skipped"
	StepResultFailed  StepResult = "failed"
)

type Outcome string

const (
	OutcomeCompleted             Outcome = "completed"
	OutcomePostSkippedQuota      Outcome = "post_skipped_quota"
	OutcomePostSkippedGeneration Outcome = "post_skipped_generation"
	OutcomePostForbidden         Outcome = "post_forbidden"
	OutcomePostRateLimited       Outcome = "post_rate_limited"
	OutcomeFailed                Outcome = "failed"
)

// Cycle records one orchestrated pass. It is reported once the pass ends and
// then discarded.
type Cycle struct {
	ID         int64               `json:"id"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
	Steps      map[Step]StepResult `json:"steps"`
	Outcome    Outcome             `json:"outcome"`
	Strategy   Strategy            `json:"strategy,omitempty"`
	PostIDs    []string            `json:"post_ids,omitempty"`
	Replies    int                 `json:"replies"`
	Follows    int                 `json:"follows"`
	Error      string              `json:"error,omitempty"`
}

func NewCycle(id int64, startedAt time.Time) *Cycle {
	return &Cycle{
		ID:        id,
		StartedAt: startedAt,
		Steps:     make(map[Step]StepResult),
	}
}

// Mark records the result of a step. A step is recorded at most once; later
// calls overwrite.
func (c *Cycle) Mark(step Step, result StepResult) {
	c.Steps[step] = result
}

// Executed reports whether the step ran (successfully or not), as opposed to
// being skipped or never reached.
func (c *Cycle) Executed(step Step) bool {
	r, ok := c.Steps[step]
	return ok && r != StepResultSkipped
}

func (c *Cycle) Duration() time.Duration {
	if c.FinishedAt.IsZero() {
		return 0
	}
	return c.FinishedAt.Sub(c.StartedAt)
}
