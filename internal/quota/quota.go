// Package quota tracks whether the daily write quota of the social platform is
// available.
//
// The guard moves through Unknown -> Ok -> Exhausted -> Ok. It is owned by the
// cycle orchestrator and is not safe for concurrent use; readers outside the
// cycle get a copy through Snapshot.
package quota

import (
	"context"
	"log/slog"
	"time"

	"github.com/banabets/else/internal/clock"
	"github.com/banabets/else/internal/social"
)

type State string

const (
	StateUnknown   State = "unknown"
	StateOk        State = "ok"
	StateExhausted State = "exhausted"
)

// States lists every state, for gauges that need the full label set.
var States = []State{StateUnknown, StateOk, StateExhausted}

func (s State) String() string {
	return string(s)
}

// Quota is the last known daily write budget. Nil fields are unknown.
type Quota struct {
	State     State      `json:"state"`
	Remaining *int       `json:"remaining,omitempty"`
	ResetAt   *time.Time `json:"reset_at,omitempty"`
	Blocked   bool       `json:"blocked"`
}

type Guard struct {
	clock     clock.Clock
	state     State
	remaining *int
	resetAt   *time.Time
	blocked   bool
}

func New(c clock.Clock) *Guard {
	return &Guard{clock: c, state: StateUnknown}
}

// BeginCycle clears the per-cycle write block. Exhaustion itself persists
// until its reset time.
func (g *Guard) BeginCycle() {
	g.blocked = false
}

// State returns the current state, moving Exhausted back to Ok once the reset
// time has passed.
func (g *Guard) State() State {
	if g.state == StateExhausted && g.resetAt != nil && !g.clock.Now().Before(*g.resetAt) {
		slog.Info("write quota reset time elapsed", "reset_at", *g.resetAt)
		g.state = StateOk
		g.resetAt = nil
		g.remaining = nil
	}
	return g.state
}

// Check probes the platform with a cheap read. While the guard is exhausted
// and the reset time is still ahead, no probe is issued.
func (g *Guard) Check(ctx context.Context, probe func(ctx context.Context) error) State {
	if g.State() == StateExhausted {
		slog.InfoContext(ctx, "write quota exhausted, skipping probe", "reset_at", *g.resetAt)
		return g.state
	}

	err := probe(ctx)
	if err == nil {
		if g.state != StateOk {
			slog.DebugContext(ctx, "write quota available")
		}
		g.state = StateOk
		return g.state
	}

	se, ok := social.AsError(err)
	if ok {
		g.learn(se)
	}
	if ok && se.DailyQuotaExhausted() {
		g.exhaust(ctx, se)
		return g.state
	}

	slog.WarnContext(ctx, "quota probe failed, keeping state",
		"state", g.state,
		"error", err)
	return g.state
}

// AllowWrite reports whether a quota-consuming write may be issued now.
func (g *Guard) AllowWrite() bool {
	return !g.blocked && g.State() != StateExhausted
}

// ObserveWriteError inspects the error of a quota-consuming write. A
// rate-limit signal exhausts the guard and blocks writes for the rest of the
// cycle. Returns true when err was such a signal.
func (g *Guard) ObserveWriteError(ctx context.Context, err error) bool {
	se, ok := social.AsError(err)
	if !ok || se.Kind != social.KindRateLimited {
		return false
	}
	g.learn(se)
	g.exhaust(ctx, se)
	g.blocked = true
	return true
}

// RecordWrite accounts for a successful write against a known budget.
func (g *Guard) RecordWrite() {
	if g.remaining != nil && *g.remaining > 0 {
		r := *g.remaining - 1
		g.remaining = &r
	}
}

func (g *Guard) ResetAt() *time.Time {
	g.State()
	return g.resetAt
}

func (g *Guard) Snapshot() Quota {
	q := Quota{State: g.State(), Blocked: g.blocked}
	if g.remaining != nil {
		r := *g.remaining
		q.Remaining = &r
	}
	if g.resetAt != nil {
		t := *g.resetAt
		q.ResetAt = &t
	}
	return q
}

func (g *Guard) learn(se *social.Error) {
	if se.DailyRemaining == nil {
		return
	}
	r := max(*se.DailyRemaining, 0)
	g.remaining = &r
}

// exhaust records the reset time from the error: daily reset, then window
// reset, else now, which only blocks the current cycle.
func (g *Guard) exhaust(ctx context.Context, se *social.Error) {
	reset := g.clock.Now()
	if at := se.RetryAt(); at != nil {
		reset = *at
	}
	zero := 0
	if se.DailyQuotaExhausted() {
		g.remaining = &zero
	}

	g.state = StateExhausted
	g.resetAt = &reset

	attrs := []any{"op", se.Op, "reset_at", reset}
	if g.remaining != nil {
		attrs = append(attrs, "daily_remaining", *g.remaining)
	}
	slog.WarnContext(ctx, "write quota exhausted", attrs...)
}
