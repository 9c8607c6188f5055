package dto

import (
	"time"

	"github.com/banabets/else/internal/model"
	"github.com/banabets/else/internal/quota"
	"github.com/banabets/else/internal/status"
)

const (
	AgentStarting = "starting"
	AgentRunning  = "running"
)

type CycleResponse struct {
	ID         int64                           `json:"id,string"`
	StartedAt  time.Time                       `json:"started_at"`
	FinishedAt time.Time                       `json:"finished_at"`
	DurationMS int64                           `json:"duration_ms"`
	Steps      map[model.Step]model.StepResult `json:"steps"`
	Outcome    model.Outcome                   `json:"outcome"`
	Strategy   model.Strategy                  `json:"strategy,omitempty"`
	PostIDs    []string                        `json:"post_ids,omitempty"`
	Replies    int                             `json:"replies"`
	Follows    int                             `json:"follows"`
	Error      string                          `json:"error,omitempty"`
}

type StatusResponse struct {
	Status             string         `json:"status"`
	Cycles             int64          `json:"cycles"`
	LastCycle          *CycleResponse `json:"last_cycle,omitempty"`
	Quota              *quota.Quota   `json:"quota,omitempty"`
	ObservationCounter int64          `json:"observation_counter"`
	ReportedAt         *time.Time     `json:"reported_at,omitempty"`
}

func ToStatusResponse(r status.Report, cycles int64) *StatusResponse {
	c := r.Cycle
	q := r.Quota
	reportedAt := r.ReportedAt
	return &StatusResponse{
		Status: AgentRunning,
		Cycles: cycles,
		LastCycle: &CycleResponse{
			ID:         c.ID,
			StartedAt:  c.StartedAt,
			FinishedAt: c.FinishedAt,
			DurationMS: c.Duration().Milliseconds(),
			Steps:      c.Steps,
			Outcome:    c.Outcome,
			Strategy:   c.Strategy,
			PostIDs:    c.PostIDs,
			Replies:    c.Replies,
			Follows:    c.Follows,
			Error:      c.Error,
		},
		Quota:              &q,
		ObservationCounter: r.ObservationCounter,
		ReportedAt:         &reportedAt,
	}
}
