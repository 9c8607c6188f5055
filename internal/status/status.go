// Package status keeps the latest cycle report for the HTTP surface and
// publishes every report to a redis stream.
package status

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/banabets/else/internal/model"
	"github.com/banabets/else/internal/quota"
)

// Report is what the agent knows after a cycle.
type Report struct {
	Cycle              model.Cycle `json:"cycle"`
	Quota              quota.Quota `json:"quota"`
	ObservationCounter int64       `json:"observation_counter"`
	ReportedAt         time.Time   `json:"reported_at"`
}

// Board holds the most recent report. It is the only agent state read from
// other goroutines.
type Board struct {
	mu     sync.RWMutex
	latest *Report
	cycles int64
}

func NewBoard() *Board {
	return &Board{}
}

func (b *Board) Update(r Report) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.latest = &r
	b.cycles++
}

// Latest returns a copy of the last report and the number of reports seen.
func (b *Board) Latest() (Report, int64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.latest == nil {
		return Report{}, 0, false
	}
	return *b.latest, b.cycles, true
}

type Publisher interface {
	Publish(ctx context.Context, r Report) error
}

// Metrics is the part of the metrics collector the reporter feeds.
type Metrics interface {
	ObserveCycle(outcome string, d time.Duration)
	ObserveStep(step, result string)
	SetQuotaState(current string, known ...string)
	SetObservationCounter(v int64)
}

// Reporter fans a finished cycle out to the board, the publisher and metrics.
// Publisher and metrics are optional.
type Reporter struct {
	board     *Board
	publisher Publisher
	metrics   Metrics
}

func NewReporter(board *Board, publisher Publisher, metrics Metrics) *Reporter {
	return &Reporter{board: board, publisher: publisher, metrics: metrics}
}

func (r *Reporter) Report(ctx context.Context, rep Report) {
	r.board.Update(rep)

	if r.metrics != nil {
		r.metrics.ObserveCycle(string(rep.Cycle.Outcome), rep.Cycle.Duration())
		for step, result := range rep.Cycle.Steps {
			r.metrics.ObserveStep(string(step), string(result))
		}
		known := make([]string, len(quota.States))
		for i, s := range quota.States {
			known[i] = s.String()
		}
		r.metrics.SetQuotaState(rep.Quota.State.String(), known...)
		r.metrics.SetObservationCounter(rep.ObservationCounter)
	}

	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, rep); err != nil {
			slog.WarnContext(ctx, "failed to publish cycle status", "error", err)
		}
	}
}
