package pipeline

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State names a phase of an inspection job's lifecycle.
type State string

const (
	StateQueued        State = "queued"
	StatePreprocessing State = "preprocessing"
	StateDetecting     State = "detecting"
	StateAggregating   State = "aggregating"
	StateCompleted     State = "completed"
	StateFailed        State = "failed"
)

// Job is the transient per-submission state machine. It is created on
// submission and discarded once the result is handed to the caller;
// nothing here is persisted.
type Job struct {
	ID        string
	StartedAt time.Time

	mu    sync.Mutex
	state State
}

func newJob() *Job {
	return &Job{
		ID:        uuid.New().String(),
		StartedAt: time.Now(),
		state:     StateQueued,
	}
}

func (j *Job) setState(s State) {
	j.mu.Lock()
	prev := j.state
	j.state = s
	j.mu.Unlock()

	log.Printf("[PIPELINE] Job %s: %s -> %s", j.ID, prev, s)
}

// State returns the job's current phase.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}
