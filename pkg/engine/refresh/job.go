// Package refresh schedules background aggregation runs and guarantees at
// most one in-flight refresh per cache key.
package refresh

import (
	"context"
	"time"

	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/engine/cache"
)

// Status is the lifecycle state of a refresh job.
type Status string

const (
	// StatusPending means the job is waiting for the governor to admit at
	// least one source.
	StatusPending Status = "pending"
	// StatusRunning means the job is fetching and merging.
	StatusRunning Status = "running"
	// StatusSucceeded means the merge completed and the cache was updated,
	// possibly with partial coverage.
	StatusSucceeded Status = "succeeded"
	// StatusFailed means every source failed for the entire asset set.
	StatusFailed Status = "failed"
	// StatusTimedOut means the overall wall-clock timeout elapsed first.
	StatusTimedOut Status = "timed_out"
	// StatusCancelled means the job was cancelled, usually because its key
	// was invalidated externally.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusTimedOut, StatusCancelled:
		return true
	}
	return false
}

// Job is one background aggregation run for a cache key. Mutable fields are
// guarded by the coordinator's lock; observers get immutable Views.
type Job struct {
	ID         string
	Key        cache.Key
	Generation uint64

	status     Status
	reason     string
	coverage   float64
	createdAt  time.Time
	startedAt  time.Time
	finishedAt time.Time

	cancel    context.CancelFunc
	cancelled bool
	done      chan struct{}
}

// Done returns a channel closed when the job reaches a terminal state.
// Callers join an in-flight job by selecting on it.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// View is an immutable snapshot of a job for status polling.
type View struct {
	ID         string     `json:"id"`
	Key        string     `json:"key"`
	Status     Status     `json:"status"`
	Reason     string     `json:"reason,omitempty"`
	Coverage   float64    `json:"coverage"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

func (j *Job) view() View {
	v := View{
		ID:        j.ID,
		Key:       j.Key.String(),
		Status:    j.status,
		Reason:    j.reason,
		Coverage:  j.coverage,
		CreatedAt: j.createdAt,
	}
	if !j.startedAt.IsZero() {
		t := j.startedAt
		v.StartedAt = &t
	}
	if !j.finishedAt.IsZero() {
		t := j.finishedAt
		v.FinishedAt = &t
	}
	return v
}
